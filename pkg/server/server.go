// Package server exposes the query engine over HTTP for the presentation
// layer.
package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/m-mizutani/momentseek/pkg/adapter"
	"github.com/m-mizutani/momentseek/pkg/model"
	"github.com/m-mizutani/momentseek/pkg/usecase/history"
	"github.com/m-mizutani/momentseek/pkg/usecase/query"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultMaxUploadBytes = 512 << 20

// StorageOpener returns a Storage bound to bucket, for gs:// video input
type StorageOpener func(ctx context.Context, bucket string) (adapter.Storage, error)

// Server holds the HTTP handlers. One query session is kept per owner.
type Server struct {
	query   *query.UseCase
	ledger  *history.Ledger
	secret  []byte
	storage StorageOpener
	metrics http.Handler

	maxUploadBytes int64

	sessionsMu sync.Mutex
	sessions   map[model.OwnerID]*query.Session
}

type Option func(*Server)

// WithStorageOpener enables the video_url form field
func WithStorageOpener(open StorageOpener) Option {
	return func(s *Server) {
		s.storage = open
	}
}

// WithMetricsHandler serves h at /metrics
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

func New(uc *query.UseCase, ledger *history.Ledger, jwtSecret []byte, opts ...Option) *Server {
	s := &Server{
		query:          uc,
		ledger:         ledger,
		secret:         jwtSecret,
		metrics:        promhttp.Handler(),
		maxUploadBytes: defaultMaxUploadBytes,
		sessions:       make(map[model.OwnerID]*query.Session),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Handler builds the gin engine with every route
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.MaxMultipartMemory = 32 << 20
	r.Use(gin.Recovery(), requestLogger(), cors())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := r.Group("/api/v1", authenticate(s.secret))
	{
		queries := api.Group("/queries")
		{
			queries.POST("", s.submitQuery)
			queries.PUT("/latest/duration", s.updateDuration)
		}

		hist := api.Group("/history")
		{
			hist.GET("", s.listHistory)
			hist.GET("/:id", s.showHistory)
		}
	}

	return r
}

func (s *Server) session(owner model.OwnerID) *query.Session {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	sess, ok := s.sessions[owner]
	if !ok {
		sess = s.query.NewSession()
		s.sessions[owner] = sess
	}
	return sess
}
