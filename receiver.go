// Package fleet implements a framed message protocol for broadcasting
// short status, control, and data messages over IPv4 UDP multicast among
// a fleet of peers. Every datagram carries a fixed 24-byte header (see
// package messages) that lets a receiver cheaply reject unrelated or
// corrupted traffic before touching the payload.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/fleetlink/go-fleet/messages"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
)

// Handler consumes one validated fleet message. The payload slice aliases
// the receive buffer and is only valid for the duration of the call;
// handlers that retain it must copy. Handlers run synchronously on the
// receive loop, so a slow handler stalls subsequent receives.
type Handler func(header messages.FleetHeader, payload []byte, src net.Addr)

// Receiver joins an IPv4 multicast group and dispatches validated fleet
// messages to Handler. Malformed or corrupted datagrams are logged and
// skipped; only socket setup can fail the loop.
type Receiver struct {
	Group   net.IP
	Port    int
	Handler Handler
	// IFace optionally pins group membership to one interface; nil lets
	// the OS choose.
	IFace *net.Interface
	// Logger defaults to the logrus standard logger.
	Logger *logrus.Logger

	conn  *ipv4.PacketConn
	log   *logrus.Entry
	stats Stats
}

// ListenAndServe receives fleet messages on group/port until ctx is
// cancelled, invoking handler once per validated message. It returns only
// on fatal setup error or cancellation.
func ListenAndServe(ctx context.Context, group net.IP, port int, handler Handler) error {
	r := &Receiver{Group: group, Port: port, Handler: handler}
	return r.Run(ctx)
}

func (r *Receiver) open() error {
	if r.Group == nil || r.Group.To4() == nil || !r.Group.IsMulticast() {
		return fmt.Errorf("invalid ipv4 multicast group: %v", r.Group)
	}
	if r.Handler == nil {
		return errors.New("receiver needs a handler")
	}
	logger := r.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	r.log = logger.WithFields(logrus.Fields{
		"group": r.Group.String(),
		"port":  r.Port,
	})

	pc, err := ListenMulticastUDP4(r.IFace, r.Port)
	if err != nil {
		return fmt.Errorf("could not bind receiver socket: %w", err)
	}
	conn := ipv4.NewPacketConn(pc)
	gaddr := &net.UDPAddr{IP: r.Group.To4(), Port: r.Port}
	if err := conn.JoinGroup(r.IFace, gaddr); err != nil {
		conn.Close()
		return fmt.Errorf("could not join group %s: %w", r.Group, err)
	}
	if err := conn.SetMulticastLoopback(true); err != nil {
		conn.Close()
		return fmt.Errorf("could not set multicast loopback: %w", err)
	}
	r.conn = conn
	return nil
}

// Run binds the wildcard address on Port, joins Group, and serves until
// ctx is cancelled or the socket is closed out of band. Group membership
// drops with the socket close.
func (r *Receiver) Run(ctx context.Context) error {
	if err := r.open(); err != nil {
		return err
	}
	defer r.conn.Close()

	// Closing the socket is what interrupts a pending ReadFrom.
	stop := context.AfterFunc(ctx, func() { r.conn.Close() })
	defer stop()

	r.log.Info("started multicast receiver")

	buf := make([]byte, MaxDatagramSize)
	for {
		n, _, src, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			r.stats.ReadErrors.Inc()
			r.log.WithError(err).Warn("error receiving multicast message")
			continue
		}
		r.handleDatagram(buf[:n], src)
	}
}

// handleDatagram validates one datagram and dispatches it. Every failure
// branch is a skip, never a fault: corrupted input must not stop the loop.
func (r *Receiver) handleDatagram(data []byte, src net.Addr) {
	r.stats.Datagrams.Inc()
	r.stats.BytesReceived.Add(uint64(len(data)))

	if len(data) < messages.HeaderLen {
		r.stats.TooSmall.Inc()
		r.log.WithFields(logrus.Fields{
			"src":   fmtAddr(src),
			"bytes": len(data),
		}).Warn("packet too small for header")
		return
	}

	var header messages.FleetHeader
	if err := header.UnmarshalBinary(data); err != nil {
		r.stats.InvalidHeader.Inc()
		r.log.WithError(err).WithField("src", fmtAddr(src)).Warn("failed to parse message header")
		return
	}
	if !header.IsValid() {
		r.stats.InvalidHeader.Inc()
		r.log.WithField("src", fmtAddr(src)).Warn("invalid message header")
		return
	}

	payload := data[messages.HeaderLen:]
	if len(payload) != int(header.PayloadLen) {
		r.stats.LengthMismatch.Inc()
		r.log.WithFields(logrus.Fields{
			"src":      fmtAddr(src),
			"expected": header.PayloadLen,
			"actual":   len(payload),
		}).Warn("payload length mismatch")
		return
	}

	r.stats.Dispatched.Inc()
	r.Handler(header, payload, src)
}

func (r *Receiver) Stats() *Stats {
	return &r.stats
}

// Close releases the socket out of band, stopping a running loop.
func (r *Receiver) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

func fmtAddr(addr net.Addr) string {
	if addr == nil {
		return "<nil>"
	}
	return addr.String()
}
