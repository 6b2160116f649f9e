package messages

import (
	"encoding/binary"
	"fmt"
	"time"
)

// message types
type MessageType uint8

const (
	_ MessageType = iota
	HeartbeatType
	DataType
	ControlType
)

func (t MessageType) String() string {
	switch t {
	case HeartbeatType:
		return "heartbeat"
	case DataType:
		return "data"
	case ControlType:
		return "control"
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Magic identifies fleet datagrams among unrelated multicast traffic.
const Magic uint32 = 0xFEED

// Current version
const Version uint8 = 1

// HeaderLen is the fixed wire size of a FleetHeader.
const HeaderLen = 24

/*
	offset  size  field

	+-------+-----+------------------------------------------+
	|  0    |  4  | magic        (= 0xFEED)                   |
	|  4    |  1  | version      (= 1)                        |
	|  5    |  1  | msg_type     (1=heartbeat 2=data 3=ctrl)  |
	|  6    |  2  | sequence                                  |
	|  8    |  8  | timestamp_ms                              |
	| 16    |  4  | sender_id                                 |
	| 20    |  2  | payload_len                               |
	| 22    |  2  | checksum                                  |
	+-------+-----+------------------------------------------+

	All multi-byte fields are little-endian. payload_len raw payload
	bytes follow the header in the same datagram.
*/
type FleetHeader struct {
	Magic      uint32
	Version    uint8
	Type       uint8
	Sequence   uint16
	Timestamp  uint64
	SenderID   uint32
	PayloadLen uint16
	Checksum   uint16
}

// NewHeader builds a header for an outbound message, stamped with the
// current wall clock in milliseconds and a computed checksum.
func NewHeader(msgType MessageType, senderID uint32, sequence uint16, payloadLen uint16) FleetHeader {
	h := FleetHeader{
		Magic:      Magic,
		Version:    Version,
		Type:       uint8(msgType),
		Sequence:   sequence,
		Timestamp:  uint64(time.Now().UnixMilli()),
		SenderID:   senderID,
		PayloadLen: payloadLen,
	}
	h.Checksum = h.computeChecksum()
	return h
}

func (h *FleetHeader) MarshalBinary() (data []byte, err error) {
	buf := make([]byte, HeaderLen)
	h.put(buf)
	return buf, nil
}

func (h *FleetHeader) put(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Type
	binary.LittleEndian.PutUint16(buf[6:8], h.Sequence)
	binary.LittleEndian.PutUint64(buf[8:16], h.Timestamp)
	binary.LittleEndian.PutUint32(buf[16:20], h.SenderID)
	binary.LittleEndian.PutUint16(buf[20:22], h.PayloadLen)
	binary.LittleEndian.PutUint16(buf[22:24], h.Checksum)
}

// UnmarshalBinary decodes the first HeaderLen bytes of data. It does not
// check payload_len against the remainder of the buffer; that is the
// receiver's job after decode succeeds.
func (h *FleetHeader) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderLen {
		return fmt.Errorf("data too short for FleetHeader: %d", len(data))
	}
	h.Magic = binary.LittleEndian.Uint32(data[0:4])
	h.Version = data[4]
	h.Type = data[5]
	h.Sequence = binary.LittleEndian.Uint16(data[6:8])
	h.Timestamp = binary.LittleEndian.Uint64(data[8:16])
	h.SenderID = binary.LittleEndian.Uint32(data[16:20])
	h.PayloadLen = binary.LittleEndian.Uint16(data[20:22])
	h.Checksum = binary.LittleEndian.Uint16(data[22:24])
	return nil
}

// IsValid reports whether the header carries the protocol magic, the
// current version, and a checksum matching its contents.
func (h *FleetHeader) IsValid() bool {
	return h.Magic == Magic &&
		h.Version == Version &&
		h.Checksum == h.computeChecksum()
}

// computeChecksum sums the first 22 wire bytes of the header with the
// checksum field zeroed, keeping the low 16 bits. Detects accidental
// corruption only, not tampering. Works on a scratch copy so a header in
// flight is never mutated.
func (h *FleetHeader) computeChecksum() uint16 {
	tmp := *h
	tmp.Checksum = 0
	var buf [HeaderLen]byte
	tmp.put(buf[:])

	var sum uint32
	for _, b := range buf[:HeaderLen-2] {
		sum += uint32(b)
	}
	return uint16(sum & 0xFFFF)
}

// MessageType maps the raw type byte to a MessageType. Unrecognized wire
// values fall back to HeartbeatType rather than failing; the raw byte
// stays visible in Type for callers that care about version skew.
func (h *FleetHeader) MessageType() MessageType {
	switch MessageType(h.Type) {
	case HeartbeatType, DataType, ControlType:
		return MessageType(h.Type)
	}
	return HeartbeatType
}
