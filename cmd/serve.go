/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/valpere/legtrans/internal/httpapi"
	"github.com/valpere/legtrans/internal/metrics"
	"github.com/valpere/legtrans/internal/notify"
	"github.com/valpere/legtrans/internal/ocr"
	"github.com/valpere/legtrans/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the session API, the image proxy and the metrics endpoint.

Sessions connect to the configured translation backend once, at creation.
Set --location redis to keep session locations in Redis.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		conn, err := buildConnector(cfg, db, logger)
		if err != nil {
			return err
		}

		locations, ping, closeLocations := buildLocationStore(cfg)
		defer closeLocations()

		m := metrics.New()
		reg := session.NewRegistry(conn,
			session.WithStore(locations),
			session.WithErrorSink(notify.Log(logger)),
			session.WithRegistryMetrics(m),
			session.WithRegistryLogger(logger),
			session.WithIdleTimeout(cfg.Session.IdleTimeout),
			session.WithMaxSessions(cfg.Session.MaxSessions),
			session.WithSessionOptions(
				session.WithGuard(cfg.Guard()),
				session.WithDebounce(cfg.Session.Debounce),
				session.WithTranslateSeed(cfg.Session.TranslateSeed),
				session.WithConnectTimeout(cfg.Client.ConnectTimeout),
				session.WithPredictTimeout(cfg.Client.PredictTimeout),
			),
		)

		ready := func(ctx context.Context) error {
			if ping != nil {
				if err := ping(ctx); err != nil {
					return err
				}
			}
			if db != nil {
				return db.Ping(ctx)
			}
			return nil
		}

		srv := &http.Server{
			Addr: cfg.Server.Addr,
			Handler: httpapi.NewHandler(&httpapi.Server{
				Sessions: reg,
				OCR:      ocr.NewClient(cfg.OCR.URL, cfg.OCR.Timeout, ocr.WithMetrics(m), ocr.WithLogger(logger)),
				Metrics:  m,
				Logger:   logger,
				Ready:    ready,

				MaxBodyBytes:  cfg.Server.MaxBodyBytes,
				MaxImageBytes: cfg.Server.MaxImageBytes,
			}),
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("listening", "addr", srv.Addr, "backend", cfg.Client.Backend, "location", cfg.Location.Backend)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			return reg.Run(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down", "sessions", reg.Len())

			// Closing sessions ends their event streams so Shutdown can drain.
			reg.CloseAll()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("graceful shutdown did not complete", "timeout", cfg.Server.ShutdownTimeout, "error", err)
				return srv.Close()
			}
			return nil
		})

		if err := g.Wait(); err != nil {
			return err
		}
		logger.Info("stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "Listen address")
	serveCmd.Flags().String("backend", "gradio", "Translation backend: gradio, google, mymemory")
	serveCmd.Flags().String("space", "", "Hugging Face Space (owner/name or URL)")
	serveCmd.Flags().String("endpoint", "", "Gradio endpoint name")
	serveCmd.Flags().String("credentials", "", "Path to Google Cloud credentials")
	serveCmd.Flags().String("mymemory-email", "", "MyMemory email (for higher limits)")
	serveCmd.Flags().Duration("connect-timeout", 0, "Bound on the one-time connect")
	serveCmd.Flags().Duration("predict-timeout", 0, "Bound on each translation call")
	serveCmd.Flags().Duration("debounce", 0, "Quiet period before translating")
	serveCmd.Flags().Duration("idle-timeout", 0, "Close sessions unused for this long")
	serveCmd.Flags().Int("max-sessions", 0, "Maximum number of open sessions")
	serveCmd.Flags().String("location", "memory", "Session location store: memory or redis")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address for --location redis")
	serveCmd.Flags().String("ocr-url", "", "OCR backend URL")
	serveCmd.Flags().Duration("ocr-timeout", 0, "Bound on the OCR call")
	serveCmd.Flags().String("db", "legtrans.db", "Translation memory database path")
}
