// fleet_bridge republishes fleet multicast traffic onto a Kafka topic.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	fleet "github.com/fleetlink/go-fleet"
	"github.com/fleetlink/go-fleet/bridge"
	"github.com/fleetlink/go-fleet/config"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	cfg.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bridge.New(bridge.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	})
	defer b.Close()

	logrus.WithFields(logrus.Fields{
		"group":   cfg.Group.String(),
		"port":    cfg.Port,
		"brokers": cfg.Kafka.Brokers,
		"topic":   cfg.Kafka.Topic,
	}).Info("bridging fleet messages to kafka")

	if err := fleet.ListenAndServe(ctx, cfg.Group, cfg.Port, b.Handler(ctx)); err != nil &&
		!errors.Is(err, context.Canceled) {
		logrus.Fatal(err)
	}
}
