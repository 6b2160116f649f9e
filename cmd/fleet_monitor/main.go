// fleet_monitor joins the configured group and prints live receive
// statistics once a second.
package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	fleet "github.com/fleetlink/go-fleet"
	"github.com/fleetlink/go-fleet/config"
	"github.com/fleetlink/go-fleet/messages"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	cfg.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	receiver := &fleet.Receiver{
		Group: cfg.Group,
		Port:  cfg.Port,
		Handler: func(header messages.FleetHeader, payload []byte, src net.Addr) {
			// Counting happens in the loop's stats; nothing to do here.
		},
	}

	go printStats(ctx, receiver)

	if err := receiver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logrus.Fatal(err)
	}
}

func printStats(ctx context.Context, receiver *fleet.Receiver) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var prev fleet.Snapshot
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		snap := receiver.Stats().Snapshot()
		logrus.WithFields(logrus.Fields{
			"msg_per_sec":   snap.Dispatched - prev.Dispatched,
			"bytes_per_sec": snap.BytesReceived - prev.BytesReceived,
			"dispatched":    snap.Dispatched,
			"dropped":       snap.Dropped(),
			"read_errors":   snap.ReadErrors,
		}).Info("receive stats")
		prev = snap
	}
}
