package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jozofdigital-blip/solo-booking-bot/libs/auth"
	"github.com/jozofdigital-blip/solo-booking-bot/libs/cache"
	"github.com/jozofdigital-blip/solo-booking-bot/libs/config"
	"github.com/jozofdigital-blip/solo-booking-bot/libs/db"
	"github.com/jozofdigital-blip/solo-booking-bot/libs/grpcx"
	"github.com/jozofdigital-blip/solo-booking-bot/libs/httpx"
	"github.com/jozofdigital-blip/solo-booking-bot/libs/kafkax"
	otelx "github.com/jozofdigital-blip/solo-booking-bot/libs/otel"
	"github.com/jozofdigital-blip/solo-booking-bot/libs/runtime"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/availability"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/handlers"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/outbox"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/policy"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/scheduling"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/storage"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
)

func main() {
	config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.PoolOptions{MaxConns: int32(config.Int("DB_MAX_CONNS", 10, 1))})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("DB_MIGRATE", true) {
		applied, err := db.Migrate(ctx, pool, migrations.FS, ".")
		if err != nil {
			logger.Error("db migration failed", "err", err)
			panic(err)
		}
		if len(applied) > 0 {
			logger.Info("db migrations applied", "versions", applied)
		}
	}

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}

	var rdb *redis.Client
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0, 0),
		})
		defer func() { _ = rdb.Close() }()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	repo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	var configCache cache.Cache = cache.NewMemory()
	if rdb != nil {
		configCache = cache.NewRedis(rdb, config.String("CACHE_PREFIX", "booking"))
	}
	resolver := scheduling.NewResolver(repo, configCache, config.Duration("CACHE_TTL", 5*time.Minute))

	fallbackOffsets := policy.ParseOffsets(config.List("REMINDER_OFFSETS", "24h,1h"))
	opts := handlers.Options{
		CapacityMode: availability.ParseCapacityMode(config.String("CAPACITY_MODE", string(availability.CapacityCountAppointments))),
		PhoneRegion:  config.String("PHONE_REGION", "RU"),
		MaxRangeDays: config.Int("MAX_RANGE_DAYS", 92, 1),
		Reminders:    policy.NewProfileProvider(resolver, fallbackOffsets, logger),
	}

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50, 1),
	})
	go outboxPublisher.Run(ctx)

	var jwksClient *auth.JWKSClient
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		jwksClient = auth.NewJWKSClient(jwksURL, config.Duration("JWKS_CACHE_TTL", 5*time.Minute))
	}
	verifier := auth.NewVerifier(config.String("JWT_SECRET", ""), jwksClient)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handlers.Register(mux,
		handlers.NewPublicHandler(repo, resolver, outboxRepo, logger, opts),
		handlers.NewOwnerHandler(repo, repo, resolver, outboxRepo, logger, opts),
		publicRateLimit(rdb, logger),
		verifier.RequireProfile,
	)

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,PUT,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id,Idempotency-Key"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20, 1))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 10*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(grpcx.UnaryServerRequestIDInterceptor()),
	)
	healthServer := grpcx.RegisterHealth(grpcServer, service)
	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("grpc server error", "err", err)
		}
	}()
	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcServer.GracefulStop()
	logger.Info("servers stopped")
}

// publicRateLimit throttles the unauthenticated booking link per client IP.
func publicRateLimit(rdb *redis.Client, logger *slog.Logger) httpx.Middleware {
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 60, 1)
	if rdb != nil {
		rl := httpx.NewRedisRateLimiter(rdb, limit, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl:booking"))
		logger.Info("public rate limiting enabled (redis)", "per_minute", limit)
		return rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
	}
	logger.Info("public rate limiting enabled (in-memory)", "per_minute", limit)
	return httpx.NewRateLimiter(limit, time.Minute).Middleware()
}
