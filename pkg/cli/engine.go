package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/momentseek/pkg/metrics"
	"github.com/m-mizutani/momentseek/pkg/moment"
	"github.com/m-mizutani/momentseek/pkg/playback"
	"github.com/m-mizutani/momentseek/pkg/policy"
	"github.com/m-mizutani/momentseek/pkg/repository"
	"github.com/m-mizutani/momentseek/pkg/usecase/history"
	"github.com/m-mizutani/momentseek/pkg/usecase/query"
	"github.com/m-mizutani/momentseek/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// engineConfig is the optional YAML file tuning the engine
type engineConfig struct {
	Resolution       int     `yaml:"resolution"`
	FallbackDuration float64 `yaml:"fallback_duration"`
	SkipSeconds      float64 `yaml:"skip_seconds"`
	TopN             int     `yaml:"top_n"`
	PageSize         int     `yaml:"page_size"`
	PolicyDir        string  `yaml:"policy_dir"`
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		Resolution:       moment.DefaultResolution,
		FallbackDuration: moment.DefaultFallbackDuration,
		SkipSeconds:      playback.DefaultSkipDelta,
		TopN:             query.DefaultTopN,
		PageSize:         history.DefaultPageSize,
	}
}

// engineFlags holds flag values that override the YAML file
type engineFlags struct {
	configPath       string
	resolution       int64
	fallbackDuration float64
	skipSeconds      float64
	topN             int64
	pageSize         int64
	policyDir        string
}

func engineFlagList(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Engine config YAML file",
			Sources:     cli.EnvVars("MOMENTSEEK_CONFIG"),
			Destination: &cfg.engine.configPath,
		},
		&cli.IntFlag{
			Name:        "resolution",
			Usage:       "Number of confidence timeline samples",
			Sources:     cli.EnvVars("MOMENTSEEK_RESOLUTION"),
			Destination: &cfg.engine.resolution,
		},
		&cli.FloatFlag{
			Name:        "fallback-duration",
			Usage:       "Video duration in seconds assumed while the real one is unknown",
			Sources:     cli.EnvVars("MOMENTSEEK_FALLBACK_DURATION"),
			Destination: &cfg.engine.fallbackDuration,
		},
		&cli.FloatFlag{
			Name:        "skip-seconds",
			Usage:       "Default skip step of the player",
			Sources:     cli.EnvVars("MOMENTSEEK_SKIP_SECONDS"),
			Destination: &cfg.engine.skipSeconds,
		},
		&cli.IntFlag{
			Name:        "top-n",
			Usage:       "Number of top predictions to print",
			Sources:     cli.EnvVars("MOMENTSEEK_TOP_N"),
			Destination: &cfg.engine.topN,
		},
		&cli.IntFlag{
			Name:        "page-size",
			Usage:       "Default history page size",
			Sources:     cli.EnvVars("MOMENTSEEK_PAGE_SIZE"),
			Destination: &cfg.engine.pageSize,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego policies filtering predicted segments",
			Sources:     cli.EnvVars("MOMENTSEEK_POLICY_DIR"),
			Destination: &cfg.engine.policyDir,
		},
	}
}

// loadEngineConfig reads the YAML file, if any, and applies flags on top
func loadEngineConfig(path string, c *cli.Command, flags engineFlags) (engineConfig, error) {
	ec := defaultEngineConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return ec, goerr.Wrap(err, "failed to read engine config", goerr.V("path", path))
		}
		if err := yaml.Unmarshal(data, &ec); err != nil {
			return ec, goerr.Wrap(err, "failed to parse engine config", goerr.V("path", path))
		}
	}

	if c.IsSet("resolution") {
		ec.Resolution = int(flags.resolution)
	}
	if c.IsSet("fallback-duration") {
		ec.FallbackDuration = flags.fallbackDuration
	}
	if c.IsSet("skip-seconds") {
		ec.SkipSeconds = flags.skipSeconds
	}
	if c.IsSet("top-n") {
		ec.TopN = int(flags.topN)
	}
	if c.IsSet("page-size") {
		ec.PageSize = int(flags.pageSize)
	}
	if c.IsSet("policy-dir") {
		ec.PolicyDir = flags.policyDir
	}

	if err := ec.validate(); err != nil {
		return ec, err
	}
	return ec, nil
}

func (ec engineConfig) validate() error {
	switch {
	case ec.Resolution <= 0:
		return goerr.New("resolution must be positive", goerr.V("resolution", ec.Resolution))
	case ec.FallbackDuration <= 0:
		return goerr.New("fallback_duration must be positive", goerr.V("fallback_duration", ec.FallbackDuration))
	case ec.SkipSeconds <= 0:
		return goerr.New("skip_seconds must be positive", goerr.V("skip_seconds", ec.SkipSeconds))
	case ec.TopN <= 0:
		return goerr.New("top_n must be positive", goerr.V("top_n", ec.TopN))
	case ec.PageSize <= 0:
		return goerr.New("page_size must be positive", goerr.V("page_size", ec.PageSize))
	}
	return nil
}

// engine bundles what every command builds from the configuration
type engine struct {
	cfg    engineConfig
	repo   repository.Repository
	ledger *history.Ledger
}

func (cfg *config) newEngine(ctx context.Context, c *cli.Command) (*engine, error) {
	ec, err := loadEngineConfig(cfg.engine.configPath, c, cfg.engine)
	if err != nil {
		return nil, err
	}

	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}

	return &engine{
		cfg:    ec,
		repo:   repo,
		ledger: history.New(repo, history.WithDefaultPageSize(ec.PageSize)),
	}, nil
}

func (e *engine) Close() {
	if err := e.repo.Close(); err != nil {
		logging.Default().Warn("failed to close repository", "error", err)
	}
}

// newQueryUseCase wires the orchestrator with the configured collaborators
func (cfg *config) newQueryUseCase(ctx context.Context, e *engine, m *metrics.Metrics) (*query.UseCase, error) {
	predictor, err := cfg.newPredictor(ctx)
	if err != nil {
		return nil, err
	}

	opts := []query.Option{
		query.WithResolution(e.cfg.Resolution),
		query.WithFallbackDuration(e.cfg.FallbackDuration),
		query.WithTopN(e.cfg.TopN),
		query.WithMetrics(m),
	}

	archive, err := cfg.newArchive(ctx)
	if err != nil {
		return nil, err
	}
	if archive != nil {
		opts = append(opts, query.WithArchive(archive))
	}

	if e.cfg.PolicyDir != "" {
		p, err := policy.Load(ctx, e.cfg.PolicyDir)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to load policy", goerr.V("dir", e.cfg.PolicyDir))
		}
		if p == nil {
			logging.From(ctx).Warn("no policy files found", "dir", e.cfg.PolicyDir)
		}
		opts = append(opts, query.WithPolicy(p))
	}

	return query.New(predictor, e.ledger, opts...), nil
}

// timelineUseCase builds a query UseCase only for timeline synthesis
func (e *engine) timelineUseCase() *query.UseCase {
	return query.New(nil, e.ledger,
		query.WithResolution(e.cfg.Resolution),
		query.WithFallbackDuration(e.cfg.FallbackDuration),
		query.WithTopN(e.cfg.TopN))
}
