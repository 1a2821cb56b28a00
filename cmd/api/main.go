package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backend-tanquecheio/internal/config"
	"backend-tanquecheio/internal/db"
	"backend-tanquecheio/internal/metrics"
	"backend-tanquecheio/internal/notify"
	"backend-tanquecheio/internal/server"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	connectNATS     func(config.Config, *metrics.Collector) (*notify.NATSDispatcher, error)
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, Backends, <-chan os.Signal, ListenFunc) error
}

// Backends are the optional connections handed to the server. Any of them
// may be nil.
type Backends struct {
	Postgres *pgxpool.Pool
	Redis    *redis.Client
	NATS     *notify.NATSDispatcher
	Metrics  *metrics.Collector
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		connectNATS:     connectNATS,
		notify:          signal.Notify,
		run:             Run,
	}
}

// connectNATS returns a nil dispatcher when NATS_URL is empty.
func connectNATS(cfg config.Config, m *metrics.Collector) (*notify.NATSDispatcher, error) {
	if cfg.NATSURL == "" {
		return nil, nil
	}
	return notify.ConnectNATS(cfg.NATSURL, cfg.NATSSubjectPrefix, m)
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()

	var b Backends
	if cfg.MetricsEnabled {
		b.Metrics = metrics.NewCollector()
	}

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		log.Printf("postgres connection failed: %v", err)
	}
	b.Postgres = pg

	b.Redis = deps.connectRedis(cfg)

	nc, err := deps.connectNATS(cfg, b.Metrics)
	if err != nil {
		log.Printf("nats connection failed: %v", err)
	}
	b.NATS = nc

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, b, signals, nil); err != nil {
		log.Printf("server exited with error: %v", err)
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server and waits for termination signals.
func Run(ctx context.Context, cfg config.Config, b Backends, signals <-chan os.Signal, listen ListenFunc) error {
	opts := []server.Option{server.WithMetrics(b.Metrics)}
	if b.NATS != nil {
		opts = append(opts, server.WithDispatcher(b.NATS))
	}
	srv, err := server.NewServer(cfg, b.Postgres, b.Redis, opts...)
	if err != nil {
		return err
	}

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := shutdownFn(srv.App, shutdownCtx); err != nil {
		return err
	}
	if err := srv.Close(); err != nil {
		log.Printf("stream hub close: %v", err)
	}
	if b.NATS != nil {
		b.NATS.Close()
	}
	if b.Postgres != nil {
		b.Postgres.Close()
	}
	if b.Redis != nil {
		_ = b.Redis.Close()
	}
	return nil
}
