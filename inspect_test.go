package fleet_test

import (
	"net"
	"testing"

	fleet "github.com/fleetlink/go-fleet"
	"github.com/fleetlink/go-fleet/messages"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildIPv4Packet(t *testing.T, payload []byte, dst net.IP, dport uint16) []byte {
	t.Helper()

	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      1,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 0, 2, 10).To4(),
		DstIP:    dst.To4(),
	}
	udp := &layers.UDP{SrcPort: 5544, DstPort: layers.UDPPort(dport)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func fleetFrame(t *testing.T, msgType messages.MessageType, senderID uint32, seq uint16, payload []byte) []byte {
	t.Helper()
	header := messages.NewHeader(msgType, senderID, seq, uint16(len(payload)))
	data, err := header.MarshalBinary()
	require.NoError(t, err)
	return append(data, payload...)
}

func TestExtractDatagram(t *testing.T) {
	group := net.IPv4(239, 1, 1, 1)
	frame := fleetFrame(t, messages.ControlType, 901, 17, []byte("REBOOT"))
	raw := buildIPv4Packet(t, frame, group, 12345)

	header, payload, src, err := fleet.ExtractDatagram(raw, group, 12345)
	require.NoError(t, err)
	assert.Equal(t, messages.ControlType, header.MessageType())
	assert.Equal(t, uint32(901), header.SenderID)
	assert.Equal(t, uint16(17), header.Sequence)
	assert.Equal(t, []byte("REBOOT"), payload)
	require.NotNil(t, src)
	assert.True(t, src.IP.Equal(net.IPv4(192, 0, 2, 10)))
	assert.Equal(t, 5544, src.Port)
}

func TestExtractDatagramUnfiltered(t *testing.T) {
	frame := fleetFrame(t, messages.HeartbeatType, 1, 0, nil)
	raw := buildIPv4Packet(t, frame, net.IPv4(239, 9, 9, 9), 4000)

	// nil group and zero port match any destination.
	header, payload, _, err := fleet.ExtractDatagram(raw, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, messages.HeartbeatType, header.MessageType())
	assert.Empty(t, payload)
}

func TestExtractDatagramFiltersDestination(t *testing.T) {
	group := net.IPv4(239, 1, 1, 1)
	frame := fleetFrame(t, messages.DataType, 1, 0, []byte("x"))

	raw := buildIPv4Packet(t, frame, group, 12345)
	_, _, _, err := fleet.ExtractDatagram(raw, group, 9999)
	assert.Error(t, err, "wrong destination port must be filtered")

	raw = buildIPv4Packet(t, frame, net.IPv4(239, 2, 2, 2), 12345)
	_, _, _, err = fleet.ExtractDatagram(raw, group, 12345)
	assert.Error(t, err, "wrong destination group must be filtered")
}

func TestExtractDatagramRejectsMalformed(t *testing.T) {
	group := net.IPv4(239, 1, 1, 1)

	raw := buildIPv4Packet(t, []byte("tiny"), group, 12345)
	_, _, _, err := fleet.ExtractDatagram(raw, group, 12345)
	assert.Error(t, err)

	frame := fleetFrame(t, messages.DataType, 1, 0, []byte("pay"))
	frame[6] ^= 0xFF // corrupt the sequence; checksum catches it
	raw = buildIPv4Packet(t, frame, group, 12345)
	_, _, _, err = fleet.ExtractDatagram(raw, group, 12345)
	assert.Error(t, err)

	_, _, _, err = fleet.ExtractDatagram([]byte{0x00, 0x01}, group, 12345)
	assert.Error(t, err)
}
