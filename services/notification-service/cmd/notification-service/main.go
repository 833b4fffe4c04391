package main

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jozofdigital-blip/solo-booking-bot/libs/config"
	"github.com/jozofdigital-blip/solo-booking-bot/libs/db"
	"github.com/jozofdigital-blip/solo-booking-bot/libs/grpcx"
	"github.com/jozofdigital-blip/solo-booking-bot/libs/httpx"
	"github.com/jozofdigital-blip/solo-booking-bot/libs/kafkax"
	otelx "github.com/jozofdigital-blip/solo-booking-bot/libs/otel"
	"github.com/jozofdigital-blip/solo-booking-bot/libs/runtime"
	"github.com/jozofdigital-blip/solo-booking-bot/services/notification-service/internal/consumer"
	"github.com/jozofdigital-blip/solo-booking-bot/services/notification-service/internal/inbox"
	"github.com/jozofdigital-blip/solo-booking-bot/services/notification-service/internal/reminders"
	"github.com/jozofdigital-blip/solo-booking-bot/services/notification-service/internal/storage"
	"github.com/jozofdigital-blip/solo-booking-bot/services/notification-service/internal/telegram"
	"github.com/jozofdigital-blip/solo-booking-bot/services/notification-service/migrations"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
)

func main() {
	config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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

	sender, err := telegram.New(telegram.BotConfig{
		Token:     config.String("TELEGRAM_BOT_TOKEN", ""),
		APIURL:    config.String("TELEGRAM_API_URL", ""),
		PerSecond: float64(config.Int("TELEGRAM_RATE_PER_SECOND", 25, 1)),
		Burst:     config.Int("TELEGRAM_RATE_BURST", 1, 1),
	}, logger)
	if err != nil {
		logger.Error("telegram sender setup failed", "err", err)
		panic(err)
	}

	jobs := reminders.NewRepository()
	worker := reminders.NewWorker(pool, jobs, storage.NewRepository(), sender, logger, reminders.WorkerConfig{
		Interval:  config.Duration("REMINDER_POLL_INTERVAL", 5*time.Second),
		BatchSize: config.Int("REMINDER_BATCH_SIZE", 50, 1),
		Backoff:   config.Duration("REMINDER_RETRY_BACKOFF", time.Minute),
	})
	go worker.Run(ctx)

	dispatcher := reminders.NewDispatcher(jobs, logger)
	eventConsumer := consumer.New(logger, pool, inbox.NewRepository(), consumer.Config{
		Brokers:    config.String("KAFKA_BROKERS", ""),
		GroupID:    config.String("KAFKA_GROUP_ID", "notification-service"),
		Topics:     reminders.Topics(),
		MaxRetries: config.Int("KAFKA_MAX_RETRIES", 3, 1),
	}, dispatcher.Handle)
	go eventConsumer.Run(ctx)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}
	if addr := strings.TrimSpace(config.String("BOOKING_GRPC_ADDR", "")); addr != "" {
		booking := &lazyHealth{addr: addr, service: config.String("BOOKING_GRPC_SERVICE", "booking-service")}
		defer booking.Close()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "booking", Check: booking.Check})
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// lazyHealth dials booking-service on the first readiness check so startup
// order between the two services does not matter.
type lazyHealth struct {
	addr    string
	service string

	mu    sync.Mutex
	conn  *grpc.ClientConn
	check func(context.Context) error
}

func (l *lazyHealth) Check(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.check == nil {
		conn, err := grpcx.Dial(ctx, l.addr, grpcx.DialOptions{Timeout: 2 * time.Second})
		if err != nil {
			return err
		}
		l.conn = conn
		l.check = grpcx.HealthReadyCheck(conn, l.service)
	}
	return l.check(ctx)
}

func (l *lazyHealth) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		_ = l.conn.Close()
	}
}
