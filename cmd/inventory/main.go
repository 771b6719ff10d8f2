package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/ariefcatur/go-shop-orders/internal/config"
	"github.com/ariefcatur/go-shop-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-shop-orders/internal/kafka"
	"github.com/ariefcatur/go-shop-orders/internal/logging"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
)

func main() {
	app := &cli.App{
		Name:   "shop-inventory",
		Usage:  "watch placed orders and raise low stock events",
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("shop-inventory")
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.EventBroker != config.BrokerKafka {
		return errors.Errorf("shop-inventory consumes from kafka, EVENT_BROKER is %q", cfg.EventBroker)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	service := cfg.ServiceName + "-inventory"
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start()
	defer prod.WaitClosed()
	defer prod.Close()

	svc := &inventory.Service{
		Products:    postgres.NewStore(db).Products(),
		Dedup:       redisx.NewDedup(rdb, service),
		Sink:        prod,
		Threshold:   cfg.LowStockThreshold,
		ServiceName: service,
		Log:         log,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.InventoryGroup, orders.TopicOrderCreated, cfg.InventoryWorkers, log)
	log.WithFields(logrus.Fields{
		"group":   cfg.InventoryGroup,
		"topic":   orders.TopicOrderCreated,
		"workers": cfg.InventoryWorkers,
	}).Info("inventory consumer started")
	if err := cons.Start(ctx, svc.HandleOrderCreated); err != nil {
		return err
	}
	log.Info("inventory consumer stopped")
	return nil
}
