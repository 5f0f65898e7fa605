package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/wallet-notifier/internal/bootstrap"
	"github.com/jmehdipour/wallet-notifier/internal/config"
	"github.com/jmehdipour/wallet-notifier/internal/logger"
	"github.com/jmehdipour/wallet-notifier/internal/metrics"
	"github.com/jmehdipour/wallet-notifier/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var emailCmd = &cobra.Command{
	Use:   "email",
	Short: "Consume wallet events and deliver notification emails",
	RunE:  runEmail,
}

func runEmail(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)
	log := logger.L()
	defer func() { _ = log.Sync() }()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) stores, bus, lock, transport
	app, err := bootstrap.New(cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	// 3) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4) optional delivery reports
	var sink worker.ReportSink
	reportsDone := make(chan struct{})
	if app.Reports != nil {
		rw := worker.NewReportWriter(app.Reports, 0, 0, log)
		go func() {
			defer close(reportsDone)
			rw.Run(ctx)
		}()
		sink = rw
	} else {
		close(reportsDone)
	}

	svc, err := app.EmailService(sink)
	if err != nil {
		return err
	}

	// 5) optional metrics endpoint
	if addr := cfg.Worker.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	log.Info("email worker starting",
		zap.String("broker", cfg.Broker.Mode),
		zap.String("topic", cfg.Broker.Topic),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("lock", cfg.Lock.Backend),
		zap.Bool("reports", app.Reports != nil),
	)

	err = svc.Run(ctx)
	<-reportsDone
	return err
}
