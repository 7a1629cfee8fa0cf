package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/rl1809/split-market/internal/adapter/storage"
	"github.com/rl1809/split-market/internal/adapter/tokenbus"
	"github.com/rl1809/split-market/internal/config"
	"github.com/rl1809/split-market/internal/core/service"
	"github.com/rl1809/split-market/internal/port"
)

var errBusDisabled = errors.New("token bus disabled: RABBITMQ_URL is not set")

// offlineTokens stands in for the token service when no bus is configured.
// Mints stay pending until the reconciler gives up; purchases fail at once.
type offlineTokens struct{}

func (offlineTokens) Mint(context.Context, port.MintRequest) error         { return errBusDisabled }
func (offlineTokens) Transfer(context.Context, port.TransferRequest) error { return errBusDisabled }

// app holds everything a command needs plus the cleanup to run on exit, in
// reverse order of acquisition.
type app struct {
	market   *service.Marketplace
	conn     *amqp.Connection
	topology tokenbus.Topology
	closers  []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.WithError(err).Warn("close failed")
		}
	}
}

func topologyFromConfig(c config.RabbitMQConfig) tokenbus.Topology {
	return tokenbus.Topology{
		CommandsExchange: c.CommandsExchange,
		ResultsExchange:  c.ResultsExchange,
		ResultsQueue:     c.ResultsQueue,
	}
}

func wire(ctx context.Context) (*app, error) {
	a := &app{topology: topologyFromConfig(cfg.RabbitMQ)}

	store, err := openStore(ctx, a)
	if err != nil {
		a.close()
		return nil, err
	}
	guard, err := openGuard(ctx, a)
	if err != nil {
		a.close()
		return nil, err
	}
	tokens, err := openBus(a)
	if err != nil {
		a.close()
		return nil, err
	}

	a.market = service.NewMarketplace(store, tokens, guard, service.Options{
		SagaTimeout: cfg.SagaTimeout,
		MaxAttempts: cfg.MaxAttempts,
		Logger:      logger,
	})
	owner, err := a.market.EnsureMarketplaceOwner(ctx, cfg.MarketplaceOwner)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("seed marketplace owner: %w", err)
	}
	if owner != cfg.MarketplaceOwner {
		logger.WithField("owner", owner).Info("marketplace owner already set, MARKETPLACE_OWNER ignored")
	}
	return a, nil
}

func openSQL(ctx context.Context) (*storage.SQLStore, *sql.DB, error) {
	var (
		db    *sql.DB
		store *storage.SQLStore
		err   error
	)
	switch cfg.Store.Driver {
	case config.StoreSQLite:
		db, err = sql.Open("sqlite", cfg.Store.SQLiteDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		store = storage.NewSQLiteAdapter(db)
	case config.StoreMySQL:
		db, err = sql.Open("mysql", cfg.Store.MySQLDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
		store = storage.NewMySQLAdapter(db)
	default:
		return nil, nil, fmt.Errorf("store driver %q has no database", cfg.Store.Driver)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping %s: %w", cfg.Store.Driver, err)
	}
	logger.WithField("driver", cfg.Store.Driver).Info("connected to database")
	return store, db, nil
}

func openStore(ctx context.Context, a *app) (port.Store, error) {
	if cfg.Store.Driver == config.StoreMemory {
		logger.Warn("using in-memory store, state is lost on exit")
		return storage.NewMemoryStore(), nil
	}
	store, db, err := openSQL(ctx)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func openGuard(ctx context.Context, a *app) (port.CallbackGuard, error) {
	if cfg.RedisAddr == "" {
		return storage.NewMemoryGuard(), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	a.closers = append(a.closers, rdb.Close)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.WithField("addr", cfg.RedisAddr).Info("connected to redis")
	return storage.NewRedisGuard(rdb, 0), nil
}

func openBus(a *app) (port.TokenService, error) {
	if cfg.RabbitMQ.URL == "" {
		logger.Warn("RABBITMQ_URL not set, token calls will fail until it is configured")
		return offlineTokens{}, nil
	}
	conn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	a.conn = conn
	a.closers = append(a.closers, conn.Close)

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if err := a.topology.Declare(ch); err != nil {
		return nil, err
	}
	logger.Info("connected to rabbitmq")
	return tokenbus.NewGateway(ch, a.topology.CommandsExchange, logger), nil
}

func sweep(ctx context.Context, market *service.Marketplace) {
	report, err := market.Sweep(ctx)
	if err != nil {
		logger.WithError(err).Error("reconcile sweep failed")
		return
	}
	if report.Redispatched > 0 || report.Failed > 0 {
		logger.WithFields(logrus.Fields{
			"redispatched": report.Redispatched,
			"failed":       report.Failed,
		}).Info("reconcile sweep finished")
	}
}
