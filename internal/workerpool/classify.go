package workerpool

import (
	"errors"

	"github.com/kstaniek/go-ampio-server/internal/packet"
)

// classify maps a decode error to a short, low-cardinality label for the
// decode_errors_total metric's "kind" dimension.
func classify(err error) string {
	switch {
	case errors.Is(err, packet.ErrInvalidDeviceID):
		return "invalid_device_id"
	case errors.Is(err, packet.ErrUnsupportedPacketType):
		return "unsupported_packet_type"
	case errors.Is(err, packet.ErrChecksumMismatch):
		return "checksum_mismatch"
	case errors.Is(err, packet.ErrNotEnoughBytes):
		return "not_enough_bytes"
	case errors.Is(err, packet.ErrMalformed):
		return "malformed"
	default:
		return "other"
	}
}
