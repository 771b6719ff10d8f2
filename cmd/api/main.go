package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-shop-orders/internal/config"
	"github.com/ariefcatur/go-shop-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-shop-orders/internal/kafka"
	"github.com/ariefcatur/go-shop-orders/internal/logging"
	"github.com/ariefcatur/go-shop-orders/internal/memstore"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/ariefcatur/go-shop-orders/internal/rabbitmq"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
)

func main() {
	app := &cli.App{
		Name:   "shop-api",
		Usage:  "catalog and order HTTP API",
		Action: serve,
		Flags:  serveFlags,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server",
				Flags:  serveFlags,
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "apply or roll back the database schema",
				Subcommands: []*cli.Command{
					{Name: "up", Usage: "apply all migrations", Action: migrateUp},
					{Name: "down", Usage: "roll back all migrations", Action: migrateDown},
				},
			},
			{
				Name:  "users",
				Usage: "manage users",
				Subcommands: []*cli.Command{
					{
						Name:   "create",
						Usage:  "insert a user",
						Flags:  []cli.Flag{&cli.StringFlag{Name: "email", Required: true}},
						Action: createUser,
					},
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("shop-api")
	}
}

var serveFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "seed-email",
		Usage:   "register this user on startup if it does not exist",
		EnvVars: []string{"SEED_USER_EMAIL"},
	},
}

func setup() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

func serve(c *cli.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	if email := c.String("seed-email"); email != "" {
		u, err := orders.RegisterUser(ctx, store, email)
		switch {
		case orders.KindOf(err) == orders.KindConflict:
			log.WithField("email", email).Info("seed user already exists")
		case err != nil:
			return err
		default:
			log.WithFields(logrus.Fields{"user_id": u.ID, "email": u.Email}).Info("seed user created")
		}
	}

	sink, closeSink, err := openSink(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSink()

	cache, closeCache := openCache(ctx, cfg, log)
	defer closeCache()

	svc := orders.NewService(store, sink, log, cfg.OrderPolicy(), cfg.ServiceName)
	router := httpx.NewRouter(log)
	(&httpx.OrdersHandler{Service: svc, Cache: cache, Log: log}).Register(router)
	(&httpx.ProductsHandler{Catalog: orders.NewCatalog(store, log)}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (orders.Store, func(), error) {
	if cfg.StorageDriver == config.StorageMemory {
		log.Warn("using in-memory storage, data is lost on exit")
		return memstore.New(), func() {}, nil
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewStore(db), db.Close, nil
}

func openSink(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (orders.EventSink, func(), error) {
	switch cfg.EventBroker {
	case config.BrokerKafka:
		prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
		prod.Start()
		return prod, func() {
			prod.Close()
			prod.WaitClosed()
		}, nil
	case config.BrokerRabbitMQ:
		pub, err := rabbitmq.Dial(ctx, cfg.RabbitMQURL, cfg.RabbitMQExch, log)
		if err != nil {
			return nil, nil, err
		}
		return pub, func() {
			if err := pub.Close(); err != nil {
				log.WithError(err).Warn("rabbitmq close")
			}
		}, nil
	default:
		return orders.NopSink{}, func() {}, nil
	}
}

func openCache(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (httpx.Cache, func()) {
	if !cfg.CacheEnabled {
		return httpx.NopCache{}, func() {}
	}
	rdb := redisx.New(cfg.RedisAddr)
	if err := redisx.Ping(ctx, rdb); err != nil {
		// the cache is optional; requests still work against the database
		log.WithError(err).Warn("redis unavailable at startup")
	}
	return redisx.NewOrderCache(rdb, log), func() { _ = rdb.Close() }
}

func migrateUp(*cli.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if err := postgres.MigrateUp(cfg.PostgresDSN); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}

func migrateDown(*cli.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if err := postgres.MigrateDown(cfg.PostgresDSN); err != nil {
		return err
	}
	log.Info("migrations rolled back")
	return nil
}

func createUser(c *cli.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if cfg.StorageDriver != config.StoragePostgres {
		return errors.New("users create needs STORAGE_DRIVER=postgres")
	}
	db, err := postgres.Connect(c.Context, cfg.PostgresDSN, postgres.PoolOptions{MaxConns: 2})
	if err != nil {
		return err
	}
	defer db.Close()

	u, err := orders.RegisterUser(c.Context, postgres.NewStore(db), c.String("email"))
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"user_id": u.ID, "email": u.Email}).Info("user created")
	return nil
}
