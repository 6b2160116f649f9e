package fleet

import (
	"fmt"
	"math"
	"net"

	"github.com/fleetlink/go-fleet/messages"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
)

// MaxDatagramSize is the receive buffer size, one standard Ethernet MTU.
// Datagrams larger than this are truncated by the transport.
const MaxDatagramSize = 1500

// Sender broadcasts framed fleet messages to an IPv4 multicast group. A
// Sender owns its sequence space: it is not safe for concurrent callers
// without external synchronization.
type Sender struct {
	conn     *ipv4.PacketConn
	dst      *net.UDPAddr
	senderID uint32
	seq      uint16
	log      *logrus.Entry
	stats    Stats
}

// NewSender binds an outbound socket for the given group and port. The
// multicast TTL starts at 1 (local network only); raise it with SetTTL.
func NewSender(group net.IP, port int, senderID uint32) (*Sender, error) {
	if group == nil || group.To4() == nil || !group.IsMulticast() {
		return nil, fmt.Errorf("invalid ipv4 multicast group: %v", group)
	}

	c, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("could not bind sender socket: %w", err)
	}
	conn := ipv4.NewPacketConn(c)
	if err := conn.SetMulticastTTL(1); err != nil {
		c.Close()
		return nil, fmt.Errorf("could not set multicast ttl: %w", err)
	}
	// Loop outbound datagrams back so co-located receivers see them.
	if err := conn.SetMulticastLoopback(true); err != nil {
		c.Close()
		return nil, fmt.Errorf("could not set multicast loopback: %w", err)
	}

	s := &Sender{
		conn:     conn,
		dst:      &net.UDPAddr{IP: group.To4(), Port: port},
		senderID: senderID,
		log: logrus.WithFields(logrus.Fields{
			"group":     group.String(),
			"port":      port,
			"sender_id": senderID,
		}),
	}
	s.log.Info("created multicast sender")
	return s, nil
}

// Send frames payload behind a fresh header and transmits it as a single
// datagram. The caller must keep header+payload within the transport's
// single-datagram limit; no fragmentation is performed and nothing is
// retried on failure.
func (s *Sender) Send(msgType messages.MessageType, payload []byte) error {
	if len(payload) > math.MaxUint16 {
		return fmt.Errorf("payload too large for a fleet message: %d bytes", len(payload))
	}

	header := messages.NewHeader(msgType, s.senderID, s.seq, uint16(len(payload)))
	s.seq++ // wraps at 2^16

	data, err := header.MarshalBinary()
	if err != nil {
		return err
	}
	frame := make([]byte, 0, messages.HeaderLen+len(payload))
	frame = append(frame, data...)
	frame = append(frame, payload...)

	if _, err := s.conn.WriteTo(frame, nil, s.dst); err != nil {
		return fmt.Errorf("could not send %s message: %w", msgType, err)
	}
	s.stats.MessagesSent.Inc()
	s.stats.BytesSent.Add(uint64(len(frame)))
	s.log.WithFields(logrus.Fields{
		"type":          msgType.String(),
		"seq":           header.Sequence,
		"payload_bytes": len(payload),
	}).Debug("sent message")
	return nil
}

// SendHeartbeat broadcasts a heartbeat with an empty payload.
func (s *Sender) SendHeartbeat() error {
	return s.Send(messages.HeartbeatType, nil)
}

// SendData broadcasts an arbitrary payload.
func (s *Sender) SendData(data []byte) error {
	return s.Send(messages.DataType, data)
}

// SendControl broadcasts a short command string.
func (s *Sender) SendControl(command string) error {
	return s.Send(messages.ControlType, []byte(command))
}

// SetTTL adjusts the multicast TTL for subsequent sends.
func (s *Sender) SetTTL(ttl int) error {
	return s.conn.SetMulticastTTL(ttl)
}

func (s *Sender) Stats() *Stats {
	return &s.stats
}

func (s *Sender) Close() error {
	return s.conn.Close()
}
