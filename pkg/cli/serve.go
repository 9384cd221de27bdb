package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	httpctrl "github.com/secmon-lab/argus/pkg/controller/http"
	"github.com/secmon-lab/argus/pkg/service/worker"
	"github.com/secmon-lab/argus/pkg/utils/async"
	"github.com/secmon-lab/argus/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var addr string
	var maxUploadSize int
	var sweepInterval time.Duration
	var svcCfg serviceConfig

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("ARGUS_ADDR"),
			Destination: &addr,
		},
		&cli.IntFlag{
			Name:        "max-upload-size",
			Usage:       "Maximum size of an uploaded image in bytes",
			Value:       httpctrl.DefaultMaxUploadSize,
			Sources:     cli.EnvVars("ARGUS_MAX_UPLOAD_SIZE"),
			Destination: &maxUploadSize,
		},
		&cli.DurationFlag{
			Name:        "cache-sweep-interval",
			Usage:       "Interval of removing expired entries from the namespace cache",
			Value:       worker.DefaultSweepInterval,
			Category:    "Cache",
			Sources:     cli.EnvVars("ARGUS_CACHE_SWEEP_INTERVAL"),
			Destination: &sweepInterval,
		},
	}
	flags = append(flags, svcCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			svc, err := svcCfg.build(ctx, buildValidation)
			if err != nil {
				return err
			}
			defer svc.Close()

			sweeper := worker.NewCacheSweepWorker(svc.cache, sweepInterval)
			if err := sweeper.Start(ctx); err != nil {
				return goerr.Wrap(err, "failed to start cache sweep worker")
			}
			defer sweeper.Stop()

			httpOpts := []httpctrl.Options{
				httpctrl.WithMaxUploadSize(int64(maxUploadSize)),
			}
			for name, check := range svc.healthChecks {
				httpOpts = append(httpOpts, httpctrl.WithHealthCheck(name, check))

				// A service that is down at startup is reported but not fatal, it may come
				// up later and /health tells the operator.
				async.Dispatch(ctx, func(ctx context.Context) error {
					if err := check(ctx); err != nil {
						return goerr.Wrap(err, "health check failed at startup", goerr.V("check", name))
					}
					return nil
				})
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(svc.uc.Validation, svc.uc.Namespace, svc.registry, httpOpts...),
				ReadHeaderTimeout: 30 * time.Second,
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr, "services", svcCfg)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
