package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/clinicazen/platform/libs/config"
	"github.com/clinicazen/platform/libs/db"
	"github.com/clinicazen/platform/libs/httpx"
	"github.com/clinicazen/platform/libs/kafkax"
	otelx "github.com/clinicazen/platform/libs/otel"
	"github.com/clinicazen/platform/libs/runtime"
	"github.com/clinicazen/platform/services/notification-service/internal/consumer"
	"github.com/clinicazen/platform/services/notification-service/internal/dispatch"
	"github.com/clinicazen/platform/services/notification-service/internal/inbox"
	"github.com/clinicazen/platform/services/notification-service/internal/mail"
	"github.com/clinicazen/platform/services/notification-service/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load .env failed", "err", err)
		os.Exit(1)
	}
	service := config.String("SERVICE_NAME", "notification-service")
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))
	if err := run(logger, service); err != nil {
		logger.Error("notification-service failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, service string) error {
	port, err := config.Port("PORT", "8085")
	if err != nil {
		return err
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return err
	}
	loc, err := config.Location("CLINIC_TIMEZONE", "Europe/Madrid")
	if err != nil {
		return err
	}
	smtpPort, err := config.Int("SMTP_PORT", 1025)
	if err != nil {
		return err
	}
	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: 4})
	if err != nil {
		return err
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	sender := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     config.String("SMTP_HOST", "mailpit"),
		Port:     smtpPort,
		Username: config.String("SMTP_USER", ""),
		Password: config.String("SMTP_PASS", ""),
		From:     config.String("SMTP_FROM", "citas@clinicazen.local"),
		FromName: config.String("SMTP_FROM_NAME", "Clínica Zen"),
	})
	dispatcher := dispatch.New(sender, storage.NewRepository(pool), loc, logger, reg)

	if len(brokers) > 0 {
		eventConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
			Topics:  mail.Topics,
		}, dispatcher.Handle)
		go eventConsumer.Run(ctx)
	} else {
		logger.Warn("KAFKA_BROKERS not set; no booking events will be emailed")
	}

	r := chi.NewRouter()
	runtime.MountHealth(r,
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	handler := httpx.Chain(r,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger, 10*time.Second)
	return nil
}
