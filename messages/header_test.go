package messages_test

import (
	"encoding/binary"
	"testing"

	"github.com/fleetlink/go-fleet/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHeaderFields(t *testing.T) {
	header := messages.NewHeader(messages.DataType, 12345, 100, 256)

	assert.Equal(t, messages.Magic, header.Magic)
	assert.Equal(t, messages.Version, header.Version)
	assert.Equal(t, uint8(messages.DataType), header.Type)
	assert.Equal(t, uint16(100), header.Sequence)
	assert.Equal(t, uint32(12345), header.SenderID)
	assert.Equal(t, uint16(256), header.PayloadLen)
	assert.NotZero(t, header.Timestamp)
	assert.True(t, header.IsValid())
	assert.Equal(t, messages.DataType, header.MessageType())
}

func TestHeaderRoundTrip(t *testing.T) {
	original := messages.NewHeader(messages.ControlType, 54321, 200, 8)
	data, err := original.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, messages.HeaderLen)

	var decoded messages.FleetHeader
	require.NoError(t, decoded.UnmarshalBinary(data))

	assert.Equal(t, original, decoded)
	assert.True(t, decoded.IsValid())
}

func TestDecodeShortBuffer(t *testing.T) {
	header := messages.NewHeader(messages.HeartbeatType, 1, 0, 0)
	data, err := header.MarshalBinary()
	require.NoError(t, err)

	var decoded messages.FleetHeader
	for _, n := range []int{0, 1, 4, messages.HeaderLen - 1} {
		if err := decoded.UnmarshalBinary(data[:n]); err == nil {
			t.Errorf("expected error decoding %d bytes, got nil", n)
		}
	}
}

func TestSingleByteCorruptionInvalidates(t *testing.T) {
	header := messages.NewHeader(messages.DataType, 777, 42, 13)
	data, err := header.MarshalBinary()
	require.NoError(t, err)

	// Flipping any byte covered by the checksum must be detected: the
	// byte-sum delta of b^0xFF is 255-2b, never zero mod 2^16.
	for i := 0; i < messages.HeaderLen-2; i++ {
		corrupted := make([]byte, len(data))
		copy(corrupted, data)
		corrupted[i] ^= 0xFF

		var decoded messages.FleetHeader
		require.NoError(t, decoded.UnmarshalBinary(corrupted))
		assert.Falsef(t, decoded.IsValid(), "corruption at byte %d went undetected", i)
	}
}

func TestMagicCorruptionInvalidatesDeterministically(t *testing.T) {
	header := messages.NewHeader(messages.DataType, 1, 1, 4)
	data, err := header.MarshalBinary()
	require.NoError(t, err)

	// Rewrite the magic and re-fix the checksum, so only the magic check
	// can catch it.
	binary.LittleEndian.PutUint32(data[0:4], 0xDEAD)
	fixChecksum(data)

	var decoded messages.FleetHeader
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.False(t, decoded.IsValid())
}

func TestVersionCorruptionInvalidatesDeterministically(t *testing.T) {
	header := messages.NewHeader(messages.HeartbeatType, 1, 1, 0)
	data, err := header.MarshalBinary()
	require.NoError(t, err)

	data[4] = messages.Version + 1
	fixChecksum(data)

	var decoded messages.FleetHeader
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.False(t, decoded.IsValid())
}

func TestUnknownTypeFallsBackToHeartbeat(t *testing.T) {
	for raw, want := range map[uint8]messages.MessageType{
		1:   messages.HeartbeatType,
		2:   messages.DataType,
		3:   messages.ControlType,
		0:   messages.HeartbeatType,
		4:   messages.HeartbeatType,
		255: messages.HeartbeatType,
	} {
		header := messages.FleetHeader{Type: raw}
		assert.Equalf(t, want, header.MessageType(), "raw type %d", raw)
	}
}

// fixChecksum recomputes the byte-sum checksum of an encoded header in
// place, after test-side corruption of other fields.
func fixChecksum(data []byte) {
	var sum uint32
	for _, b := range data[:messages.HeaderLen-2] {
		sum += uint32(b)
	}
	binary.LittleEndian.PutUint16(data[22:24], uint16(sum&0xFFFF))
}
