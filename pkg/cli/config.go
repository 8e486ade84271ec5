package cli

import (
	"context"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/momentseek/pkg/adapter"
	"github.com/m-mizutani/momentseek/pkg/model"
	"github.com/m-mizutani/momentseek/pkg/repository"
	"github.com/m-mizutani/momentseek/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string

	// Identity
	owner string

	// Repository
	store    string
	dbPath   string
	project  string
	database string

	// Predictor
	predictor      string
	endpoint       string
	predictTimeout time.Duration
	geminiProject  string
	geminiLocation string
	geminiModel    string

	// Storage
	archiveBucket string

	// Engine
	engine engineFlags
}

func logFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("MOMENTSEEK_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       string(logging.FormatConsole),
			Sources:     cli.EnvVars("MOMENTSEEK_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
	}
}

func ownerFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "owner",
			Usage:       "Owner of the query history (default: current OS user)",
			Sources:     cli.EnvVars("MOMENTSEEK_OWNER"),
			Destination: &cfg.owner,
		},
	}
}

// storeFlags returns flags selecting the history store
func storeFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "store",
			Usage:       "History store (sqlite, firestore, memory)",
			Value:       "sqlite",
			Sources:     cli.EnvVars("MOMENTSEEK_STORE"),
			Destination: &cfg.store,
		},
		&cli.StringFlag{
			Name:        "db-path",
			Usage:       "SQLite database file (default: <user config dir>/momentseek/history.db)",
			Sources:     cli.EnvVars("MOMENTSEEK_DB_PATH"),
			Destination: &cfg.dbPath,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
	}
}

// predictorFlags returns flags for the prediction service
func predictorFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "predictor",
			Usage:       "Prediction backend (http, gemini)",
			Value:       "http",
			Sources:     cli.EnvVars("MOMENTSEEK_PREDICTOR"),
			Destination: &cfg.predictor,
		},
		&cli.StringFlag{
			Name:        "endpoint",
			Usage:       "Base URL of the prediction server",
			Value:       "http://localhost:8000",
			Sources:     cli.EnvVars("MOMENTSEEK_ENDPOINT"),
			Destination: &cfg.endpoint,
		},
		&cli.DurationFlag{
			Name:        "predict-timeout",
			Usage:       "Timeout of one prediction request",
			Value:       10 * time.Minute,
			Sources:     cli.EnvVars("MOMENTSEEK_PREDICT_TIMEOUT"),
			Destination: &cfg.predictTimeout,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model name",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
	}
}

// storageFlags returns flags for Cloud Storage
func storageFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "archive-bucket",
			Usage:       "Cloud Storage bucket for raw prediction payloads",
			Sources:     cli.EnvVars("MOMENTSEEK_ARCHIVE_BUCKET"),
			Destination: &cfg.archiveBucket,
		},
	}
}

// setupLogger installs the configured logger and attaches it to ctx
func (cfg *config) setupLogger(ctx context.Context, w io.Writer) context.Context {
	logger := logging.NewWithFormat(cfg.logLevel, logging.Format(cfg.logFormat), w)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// ownerID returns the configured owner or the current OS user
func (cfg *config) ownerID() (model.OwnerID, error) {
	if owner := strings.TrimSpace(cfg.owner); owner != "" {
		return model.OwnerID(owner), nil
	}
	u, err := user.Current()
	if err != nil {
		return "", goerr.Wrap(err, "failed to get current user, set --owner")
	}
	return model.OwnerID(u.Username), nil
}

// newRepository creates the configured history store
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	switch cfg.store {
	case "memory":
		return repository.NewMemory(), nil

	case "firestore":
		if cfg.project == "" {
			return nil, goerr.New("project is required for firestore store")
		}
		if cfg.database == "" {
			return nil, goerr.New("database is required for firestore store")
		}
		repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, nil

	case "sqlite", "":
		path := cfg.dbPath
		if path == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				return nil, goerr.Wrap(err, "failed to locate user config dir, set --db-path")
			}
			path = filepath.Join(dir, "momentseek", "history.db")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, goerr.Wrap(err, "failed to create database directory", goerr.V("path", path))
		}
		repo, err := repository.NewSQLite(ctx, path)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, nil

	default:
		return nil, goerr.New("unknown store", goerr.V("store", cfg.store))
	}
}

// newPredictor creates the configured prediction backend
func (cfg *config) newPredictor(ctx context.Context) (adapter.Predictor, error) {
	switch cfg.predictor {
	case "http", "":
		if cfg.endpoint == "" {
			return nil, goerr.New("endpoint is required")
		}
		return adapter.NewHTTPPredictor(cfg.endpoint, adapter.WithPredictTimeout(cfg.predictTimeout)), nil

	case "gemini":
		if cfg.geminiProject == "" {
			return nil, goerr.New("gemini-project is required")
		}
		if cfg.geminiLocation == "" {
			return nil, goerr.New("gemini-location is required")
		}
		gemini, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation,
			adapter.WithGenerativeModel(cfg.geminiModel))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create gemini client")
		}
		return adapter.NewGeminiPredictor(gemini), nil

	default:
		return nil, goerr.New("unknown predictor", goerr.V("predictor", cfg.predictor))
	}
}

// newStorage creates a new Storage adapter instance
func (cfg *config) newStorage(ctx context.Context, bucketName string) (adapter.Storage, error) {
	if bucketName == "" {
		return nil, goerr.New("bucket name is required")
	}

	storage, err := adapter.NewStorage(ctx, bucketName)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

// newArchive returns nil when no archive bucket is configured
func (cfg *config) newArchive(ctx context.Context) (adapter.Storage, error) {
	if cfg.archiveBucket == "" {
		return nil, nil
	}
	return cfg.newStorage(ctx, cfg.archiveBucket)
}

// newVideo opens a local file or a gs:// object
func (cfg *config) newVideo(ctx context.Context, location string, duration float64) (*model.Video, error) {
	if strings.TrimSpace(location) == "" {
		return nil, goerr.Wrap(model.ErrVideoRequired, "--video is empty")
	}

	var video *model.Video
	if strings.HasPrefix(location, "gs://") {
		bucket, object, err := adapter.ParseGSURL(location)
		if err != nil {
			return nil, goerr.Wrap(model.ErrVideoRequired, "invalid video URL", goerr.V("cause", err.Error()))
		}
		st, err := cfg.newStorage(ctx, bucket)
		if err != nil {
			return nil, err
		}
		video = adapter.StorageVideo(st, object)
	} else {
		v, err := adapter.LocalVideo(location)
		if err != nil {
			return nil, err
		}
		video = v
	}

	video.Duration = duration
	return video, nil
}
