package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/timeoff"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long:  `Start the decision webhook and the chat API, and run auto-approval timers.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

// services is everything serve wires before listening.
type services struct {
	engine    *timeoff.Engine
	scheduler *timeoff.TimerScheduler
	router    http.Handler
}

func buildServices(cfg *config.Config, logger *zap.Logger, b *backend, reg *prometheus.Registry) *services {
	metrics := timeoff.NewMetrics(reg)

	mailer := notify.NewMailer(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		StartTLS: cfg.SMTP.UseTLS,
	})
	var chat notify.ChatSender
	if c := notify.NewChatClient(notify.ChatConfig{APIURL: cfg.Chat.APIURL, Token: cfg.Chat.Token}, nil); c != nil {
		chat = c
	} else {
		logger.Warn("chat.token not set, intern messages are disabled")
	}
	if cfg.SMTP.Host == "" {
		logger.Warn("smtp.host not set, supervisor emails are disabled")
	}
	gateway := notify.NewGateway(mailer, chat, logger.Named("notify"))

	sched := timeoff.NewTimerScheduler(logger.Named("scheduler"))
	sched.Metrics = metrics

	engine := timeoff.NewEngine(b.store, sched, gateway, timeoff.Config{
		AutoApproveAfter: cfg.Leave.AutoApproveAfter,
		DecisionBaseURL:  cfg.HTTP.BaseURL,
		NotifyTimeout:    cfg.Leave.NotifyTimeout,
	}, logger.Named("engine"))
	engine.Metrics = metrics

	handler := api.NewHandler(engine, logger.Named("http"))
	handler.Ping = b.ping

	opts := api.RouterOptions{AllowedOrigins: cfg.HTTP.AllowedOrigins}
	if cfg.Metrics.Enabled {
		opts.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	return &services{engine: engine, scheduler: sched, router: api.NewRouter(handler, opts)}
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	b, err := openBackend(ctx, cfg.Database, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Error("store close failed", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	svc := buildServices(cfg, logger, b, reg)

	svc.scheduler.Start(svc.engine.Timeout)
	defer svc.scheduler.Stop()

	if _, err := svc.engine.RearmPending(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           svc.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("driver", cfg.Database.Driver),
			zap.Duration("auto_approve_after", cfg.Leave.AutoApproveAfter))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
