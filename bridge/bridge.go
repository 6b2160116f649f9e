// Package bridge republishes validated fleet multicast messages onto a
// Kafka topic, so consumers outside the multicast domain can observe
// fleet traffic.
package bridge

import (
	"context"
	"net"
	"strconv"
	"time"

	fleet "github.com/fleetlink/go-fleet"
	"github.com/fleetlink/go-fleet/messages"
	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// messageWriter is the subset of kafka.Writer the bridge needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers []string
	Topic   string
	// Logger defaults to the logrus standard logger.
	Logger *logrus.Logger
}

// Bridge adapts a Kafka writer into a fleet.Handler.
type Bridge struct {
	writer messageWriter
	log    *logrus.Entry
}

func New(cfg Config) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 10 * time.Second,
		Async:        false, // synchronous so publish errors are observable
	}
	return &Bridge{
		writer: writer,
		log:    logger.WithField("topic", cfg.Topic),
	}
}

// Handler returns a fleet.Handler that republishes each message. Publish
// failures are logged and dropped: the receive loop reports them but is
// never stalled by a broker outage beyond the writer's own timeout.
func (b *Bridge) Handler(ctx context.Context) fleet.Handler {
	return func(header messages.FleetHeader, payload []byte, src net.Addr) {
		if err := b.Publish(ctx, header, payload, src); err != nil {
			b.log.WithError(err).WithFields(logrus.Fields{
				"sender_id": header.SenderID,
				"seq":       header.Sequence,
			}).Warn("could not publish fleet message")
		}
	}
}

// Publish writes one fleet message to the topic. The key is the sender id,
// keeping a single sender's messages in partition order.
func (b *Bridge) Publish(ctx context.Context, header messages.FleetHeader, payload []byte, src net.Addr) error {
	// The payload aliases the receive buffer; copy before handing it off.
	value := make([]byte, len(payload))
	copy(value, payload)

	headers := []kafka.Header{
		{Key: "fleet-type", Value: []byte(header.MessageType().String())},
		{Key: "fleet-sequence", Value: []byte(strconv.FormatUint(uint64(header.Sequence), 10))},
	}
	if src != nil {
		headers = append(headers, kafka.Header{Key: "fleet-source", Value: []byte(src.String())})
	}

	return b.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(strconv.FormatUint(uint64(header.SenderID), 10)),
		Value:   value,
		Time:    time.UnixMilli(int64(header.Timestamp)),
		Headers: headers,
	})
}

func (b *Bridge) Close() error {
	return b.writer.Close()
}
