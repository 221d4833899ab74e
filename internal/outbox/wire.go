package outbox

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const wireHeaderLen = 5

// ErrWireFormat is returned for values that do not carry the Schema Registry frame.
var ErrWireFormat = errors.New("invalid wire format")

// encodeWireFormat prefixes payload with magic byte 0 and the big-endian schema id.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, wireHeaderLen+len(payload))
	binary.BigEndian.PutUint32(frame[1:wireHeaderLen], uint32(schemaID))
	copy(frame[wireHeaderLen:], payload)
	return frame
}

// DecodeWireFormat splits a framed Kafka value into its schema id and payload.
// The payload aliases value.
func DecodeWireFormat(value []byte) (int, []byte, error) {
	if len(value) < wireHeaderLen {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrWireFormat, len(value))
	}
	if value[0] != 0 {
		return 0, nil, fmt.Errorf("%w: magic byte %#x", ErrWireFormat, value[0])
	}
	return int(binary.BigEndian.Uint32(value[1:wireHeaderLen])), value[wireHeaderLen:], nil
}
