package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/wallet-notifier/internal/bootstrap"
	httpSrv "github.com/jmehdipour/wallet-notifier/internal/http"
	"github.com/jmehdipour/wallet-notifier/internal/logger"
	"github.com/jmehdipour/wallet-notifier/internal/service/publisher"
	"github.com/jmehdipour/wallet-notifier/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the operator HTTP API (and the email consumer when broker.mode=local)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger.L()
		defer func() { _ = log.Sync() }()

		app, err := bootstrap.New(cfg, log)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var sink worker.ReportSink
		if app.Reports != nil {
			rw := worker.NewReportWriter(app.Reports, 0, 0, log)
			go rw.Run(ctx)
			sink = rw
		}

		svc, err := app.EmailService(sink)
		if err != nil {
			return err
		}

		// a local bus only reaches consumers in this process
		consumerDone := make(chan struct{})
		if cfg.Broker.Mode == "local" {
			go func() {
				defer close(consumerDone)
				if err := svc.Run(ctx); err != nil {
					log.Error("email consumer exited", zap.Error(err))
				}
			}()
		} else {
			close(consumerDone)
		}

		server := httpSrv.NewServer(cfg, httpSrv.Deps{
			Publisher: publisher.New(app.Broker),
			Outbox:    svc,
			Reports:   app.Reports,
			Redis:     app.Redis,
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		select {
		case <-ctx.Done():
			log.Info("signal received, shutting down")
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server exited", zap.Error(err))
			}
			stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		<-consumerDone

		return nil
	},
}
