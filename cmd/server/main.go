// Command server runs the live-support chat broker: the REST API, the
// WebSocket messaging channels, the SSE notification stream, and the
// background sweep that enforces the request wait budget.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/venturing/go-livechat-backend/internal/config"
	"github.com/venturing/go-livechat-backend/internal/events"
	httpapi "github.com/venturing/go-livechat-backend/internal/http"
	"github.com/venturing/go-livechat-backend/internal/observability"
	"github.com/venturing/go-livechat-backend/internal/repo"
	"github.com/venturing/go-livechat-backend/internal/services"
	"github.com/venturing/go-livechat-backend/internal/sse"
	"github.com/venturing/go-livechat-backend/internal/sysutil"
	"github.com/venturing/go-livechat-backend/internal/ws"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// .env is a dev convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}

	hub := ws.NewHub()
	go hub.Run(ctx)

	stream := sse.NewBroker()

	var publisher events.Publisher
	if cfg.AMQP.URL != "" {
		publisher, err = events.New(cfg.AMQP.URL, cfg.AMQP.Exchange, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("amqp connect failed")
		}
		defer publisher.Close()
	}

	notifSvc := &services.NotificationService{DB: db, Stream: stream, Events: publisher}
	reqSvc := &services.RequestService{
		DB:         db,
		Push:       hub,
		WaitBudget: cfg.WaitBudget,
		Notify: func(ctx context.Context, typ, title, body string) {
			if _, err := notifSvc.Create(ctx, typ, title, body, ""); err != nil {
				log.Warn().Err(err).Msg("record notification failed")
			}
		},
	}
	sessSvc := &services.SessionService{DB: db, Push: hub}

	go reqSvc.RunSweeper(ctx, cfg.SweepInterval)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:       db,
		Requests: reqSvc,
		Sessions: sessSvc,
		Feedback: &services.FeedbackService{DB: db},
		Notifs:   notifSvc,
		Channel: ws.NewServer(hub, sessSvc, ws.Options{
			ReadTimeout:    cfg.Channel.ReadTimeout,
			WriteTimeout:   cfg.Channel.WriteTimeout,
			PingInterval:   cfg.Channel.PingInterval,
			MaxMessageSize: cfg.Channel.MaxMessageSize,
		}),
		Stream: stream,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		// A global write deadline would sever the long-lived SSE streams;
		// WebSockets hijack the connection and run their own deadlines.
		WriteTimeout:   0,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", version).
			Dur("wait_budget", cfg.WaitBudget).
			Msg("chat broker listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
