// fleet_demo drives a sender, a receiver, or both against the configured
// multicast group for manual testing.
package main

import (
	"context"
	"errors"
	"fmt"
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

	mode := "both"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch mode {
	case "sender":
		err = runSender(ctx, cfg)
	case "receiver":
		err = runReceiver(ctx, cfg)
	case "both":
		go func() {
			if rerr := runReceiver(ctx, cfg); rerr != nil {
				logrus.WithError(rerr).Fatal("receiver failed")
			}
		}()
		time.Sleep(200 * time.Millisecond) // let the receiver join first
		err = runSender(ctx, cfg)
	default:
		fmt.Fprintf(os.Stderr, "usage: %s [sender|receiver|both]\n", os.Args[0])
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logrus.Fatal(err)
	}
}

func runSender(ctx context.Context, cfg *config.Config) error {
	sender, err := fleet.NewSender(cfg.Group, cfg.Port, cfg.SenderID)
	if err != nil {
		return err
	}
	defer sender.Close()
	if cfg.TTL != 1 {
		if err := sender.SetTTL(cfg.TTL); err != nil {
			return err
		}
	}

	for i := 0; i < 10; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
		if i%3 == 0 {
			if err := sender.SendHeartbeat(); err != nil {
				return err
			}
		}
		if err := sender.SendData([]byte(fmt.Sprintf("Data message #%d", i))); err != nil {
			return err
		}
		if i%5 == 0 {
			if err := sender.SendControl(fmt.Sprintf("CONTROL_CMD_%d", i)); err != nil {
				return err
			}
		}
	}
	logrus.Info("sender finished")
	return nil
}

func runReceiver(ctx context.Context, cfg *config.Config) error {
	handler := func(header messages.FleetHeader, payload []byte, src net.Addr) {
		logrus.WithFields(logrus.Fields{
			"type":  header.MessageType().String(),
			"src":   src.String(),
			"seq":   header.Sequence,
			"bytes": len(payload),
		}).Infof("%s", payload)
	}
	return fleet.ListenAndServe(ctx, cfg.Group, cfg.Port, handler)
}
