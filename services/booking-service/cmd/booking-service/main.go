package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/clinicazen/platform/libs/auth"
	"github.com/clinicazen/platform/libs/config"
	"github.com/clinicazen/platform/libs/db"
	"github.com/clinicazen/platform/libs/httpx"
	"github.com/clinicazen/platform/libs/kafkax"
	otelx "github.com/clinicazen/platform/libs/otel"
	"github.com/clinicazen/platform/libs/runtime"
	"github.com/clinicazen/platform/services/booking-service/internal/appointments"
	"github.com/clinicazen/platform/services/booking-service/internal/availability"
	"github.com/clinicazen/platform/services/booking-service/internal/handlers"
	"github.com/clinicazen/platform/services/booking-service/internal/media"
	"github.com/clinicazen/platform/services/booking-service/internal/metrics"
	"github.com/clinicazen/platform/services/booking-service/internal/notify"
	"github.com/clinicazen/platform/services/booking-service/internal/outbox"
	"github.com/clinicazen/platform/services/booking-service/internal/payments"
	"github.com/clinicazen/platform/services/booking-service/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load .env failed", "err", err)
		os.Exit(1)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))
	if err := run(logger, service); err != nil {
		logger.Error("booking-service failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, service string) error {
	port, err := config.Port("PORT", "8080")
	if err != nil {
		return err
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return err
	}
	secret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		return err
	}
	loc, err := config.Location("CLINIC_TIMEZONE", "Europe/Madrid")
	if err != nil {
		return err
	}
	sessionTTL, err := config.Duration("SESSION_TTL", 7*24*time.Hour)
	if err != nil {
		return err
	}
	rateLimit, err := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		return err
	}
	requestTimeout, err := config.Duration("REQUEST_TIMEOUT", 15*time.Second)
	if err != nil {
		return err
	}

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

	pool, err := db.Open(ctx, dbURL, db.Options{})
	if err != nil {
		return err
	}
	defer pool.Close()
	store := storage.NewStore(pool)
	reg := metrics.New()

	var (
		rdb    *redis.Client
		broker notify.Broker = notify.NewLocalBroker()
	)
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
		})
		defer rdb.Close()
		broker = notify.NewRedisBroker(rdb)
	}
	notifier := notify.NewNotifier(store, broker)

	var pay appointments.Payments = payments.Noop{}
	if key := config.String("STRIPE_SECRET_KEY", ""); key != "" {
		pay = payments.NewStripe(key, config.String("STRIPE_CURRENCY", "eur"))
		logger.Info("stripe payments enabled")
	}

	var images handlers.ImageUploader
	mediaCfg := media.Config{
		Endpoint:  config.String("MINIO_ENDPOINT", ""),
		AccessKey: config.String("MINIO_ACCESS_KEY", ""),
		SecretKey: config.String("MINIO_SECRET_KEY", ""),
		Bucket:    config.String("MINIO_BUCKET", ""),
		UseSSL:    config.Bool("MINIO_USE_SSL", false),
		PublicURL: config.String("MINIO_PUBLIC_URL", ""),
	}
	if mediaCfg.Enabled() {
		img, err := media.NewImages(mediaCfg)
		if err != nil {
			return err
		}
		images = img
	}

	booking := appointments.NewService(
		func(ctx context.Context, fn func(appointments.Tx) error) error {
			return store.InTx(ctx, func(tx *storage.Tx) error { return fn(tx) })
		},
		appointments.Options{
			Location: loc,
			Notifier: notifier,
			Payments: pay,
			Metrics:  reg,
			Logger:   logger,
		},
	)

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	if len(brokers) > 0 {
		publisher := outbox.NewPublisher(pool, outbox.NewRepository(), logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go publisher.Run(ctx)
	} else {
		logger.Warn("KAFKA_BROKERS not set; outbox events stay unpublished")
	}

	origins := config.List("CORS_ALLOWED_ORIGINS", nil)
	tokens := auth.NewTokens(secret, service, sessionTTL)
	api := handlers.New(handlers.Deps{
		Store:        store,
		Booking:      booking,
		Slots:        availability.NewResolver(store, loc, reg),
		Tokens:       tokens,
		Images:       images,
		Stream:       notify.NewStreamHandler(broker, logger, origins),
		Logger:       logger,
		Location:     loc,
		CookieSecure: config.Bool("COOKIE_SECURE", true),
	})

	limiter := httpx.WithRateLimit(rateLimit, time.Minute)
	var redisCheck func(context.Context) error
	if rdb != nil {
		limiter = httpx.NewRedisRateLimiter(rdb, rateLimit, time.Minute, "zen:rl").Middleware(logger, true)
		redisCheck = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	r := chi.NewRouter()
	runtime.MountHealth(r,
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "redis", Check: redisCheck},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	r.Handle("/metrics", reg.Handler())
	r.Group(func(r chi.Router) {
		r.Use(limiter)
		r.Use(auth.Authenticate(tokens, logger))
		api.Routes(r)
	})

	httpHandler := httpx.Chain(r,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithTimeout(requestTimeout),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   origins,
			AllowCredentials: true,
			MaxAge:           10 * time.Minute,
		}),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger, 10*time.Second)
	return nil
}
