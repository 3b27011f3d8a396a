package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Abhinavchoudhary2005/AlertIQ/internal/config"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/db"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/logging"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/server"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

// Infra holds the optional external connections. Any field may be nil.
type Infra struct {
	Postgres *pgxpool.Pool
	Redis    *redis.Client
	Broker   *db.Broker
}

// Close releases every connection that is set.
func (i Infra) Close() {
	if i.Postgres != nil {
		i.Postgres.Close()
	}
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	i.Broker.Close()
}

type mainDeps struct {
	loadConfig      func() config.Config
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	connectAMQP     func(config.Config) (*db.Broker, error)
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, Infra, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		connectAMQP:     db.ConnectAMQP,
		notify:          signal.Notify,
		run:             Run,
	}
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()
	log := logging.New(cfg.LogLevel)

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		log.Warn("postgres connection failed, contacts and saved routes disabled", "error", err)
		pg = nil
	}

	broker, err := deps.connectAMQP(cfg)
	if err != nil {
		log.Warn("amqp connection failed, sms jobs will only be logged", "error", err)
		broker = nil
	}

	infra := Infra{Postgres: pg, Redis: deps.connectRedis(cfg), Broker: broker}

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, infra, signals, nil); err != nil {
		log.Error("server exited with error", "error", err)
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
func Run(ctx context.Context, cfg config.Config, infra Infra, signals <-chan os.Signal, listen ListenFunc) error {
	log := logging.New(cfg.LogLevel)
	defer infra.Close()
	srv := server.NewServer(cfg, infra.Postgres, infra.Redis, infra.Broker.Chan(), log)

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	srv.Start(bgCtx)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case sig := <-signals:
		log.Info("shutdown signal received", "signal", sigName(sig))
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			srv.Close()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stopBackground()
	srv.Close()
	return shutdownFn(srv.App, shutdownCtx)
}

func sigName(sig os.Signal) string {
	if sig == nil {
		return ""
	}
	return sig.String()
}
