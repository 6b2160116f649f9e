package fleet

import (
	"fmt"
	"net"

	"github.com/fleetlink/go-fleet/messages"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ExtractDatagram pulls a fleet message out of a raw IPv4 packet, as
// captured off the wire. group and port filter the UDP destination; a nil
// group or zero port matches anything. The returned payload and source
// address are copied out of the packet's own buffer, and the message is
// held to the same validation policy as the live receive loop.
//
// This is an offline inspection path; the receive loop itself never goes
// through gopacket.
func ExtractDatagram(raw []byte, group net.IP, port uint16) (messages.FleetHeader, []byte, *net.UDPAddr, error) {
	var header messages.FleetHeader

	p := gopacket.NewPacket(raw, layers.LayerTypeIPv4, gopacket.NoCopy)
	ipHdr, ok := p.NetworkLayer().(*layers.IPv4)
	if !ok {
		return header, nil, nil, fmt.Errorf("not an ipv4 packet")
	}
	udpHdr, ok := p.TransportLayer().(*layers.UDP)
	if !ok {
		return header, nil, nil, fmt.Errorf("not a udp packet")
	}
	if group != nil && !ipHdr.DstIP.Equal(group) {
		return header, nil, nil, fmt.Errorf("destination %s is not group %s", ipHdr.DstIP, group)
	}
	if port > 0 && uint16(udpHdr.DstPort) != port {
		return header, nil, nil, fmt.Errorf("destination port %d is not %d", udpHdr.DstPort, port)
	}

	app := p.ApplicationLayer()
	if app == nil {
		return header, nil, nil, fmt.Errorf("packet carries no udp payload")
	}
	data := app.Payload()
	if len(data) < messages.HeaderLen {
		return header, nil, nil, fmt.Errorf("datagram too small for header: %d bytes", len(data))
	}
	if err := header.UnmarshalBinary(data); err != nil {
		return header, nil, nil, err
	}
	if !header.IsValid() {
		return messages.FleetHeader{}, nil, nil, fmt.Errorf("invalid message header")
	}
	rest := data[messages.HeaderLen:]
	if len(rest) != int(header.PayloadLen) {
		return messages.FleetHeader{}, nil, nil,
			fmt.Errorf("payload length mismatch: expected %d, got %d", header.PayloadLen, len(rest))
	}

	payload := make([]byte, len(rest))
	copy(payload, rest)
	srcIP := make(net.IP, len(ipHdr.SrcIP))
	copy(srcIP, ipHdr.SrcIP)
	return header, payload, &net.UDPAddr{IP: srcIP, Port: int(udpHdr.SrcPort)}, nil
}
