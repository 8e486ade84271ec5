package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/momentseek/pkg/adapter"
	"github.com/m-mizutani/momentseek/pkg/metrics"
	"github.com/m-mizutani/momentseek/pkg/server"
	"github.com/m-mizutani/momentseek/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg       config
		addr      string
		jwtSecret string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address",
			Value:       ":8080",
			Sources:     cli.EnvVars("MOMENTSEEK_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "jwt-secret",
			Usage:       "HMAC secret verifying bearer tokens",
			Sources:     cli.EnvVars("MOMENTSEEK_JWT_SECRET"),
			Destination: &jwtSecret,
			Required:    true,
		},
	}
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, predictorFlags(&cfg)...)
	flags = append(flags, storageFlags(&cfg)...)
	flags = append(flags, engineFlagList(&cfg)...)
	flags = append(flags, logFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, c.Root().ErrWriter)
			logger := logging.From(ctx)

			e, err := cfg.newEngine(ctx, c)
			if err != nil {
				return err
			}
			defer e.Close()

			uc, err := cfg.newQueryUseCase(ctx, e, metrics.Default())
			if err != nil {
				return err
			}

			srv := server.New(uc, e.ledger, []byte(jwtSecret),
				server.WithStorageOpener(func(ctx context.Context, bucket string) (adapter.Storage, error) {
					return cfg.newStorage(ctx, bucket)
				}))

			baseCtx := ctx
			httpServer := &http.Server{
				Addr:              addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
				BaseContext:       func(_ net.Listener) context.Context { return baseCtx },
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("starting server", "addr", addr, "store", cfg.store, "predictor", cfg.predictor)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return goerr.Wrap(err, "server failed", goerr.V("addr", addr))
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server")
			}
			return nil
		},
	}
}
