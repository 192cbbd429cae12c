package packet

import (
	"errors"
	"fmt"
)

// Sentinel errors for the taxonomy in the error handling design. Callers
// classify with errors.Is; every ParseError returned by a decoder or the
// framer wraps exactly one of these.
var (
	ErrNotEnoughBytes        = errors.New("not enough bytes")
	ErrInvalidDeviceID       = errors.New("invalid device id")
	ErrUnsupportedPacketType = errors.New("unsupported packet type")
	ErrChecksumMismatch      = errors.New("checksum mismatch")
	ErrMalformed             = errors.New("malformed packet")
	ErrRtcMismatch           = errors.New("rtc mismatch")
	ErrReassemblyTimeout     = errors.New("reassembly timeout")
	ErrMalformedChannelData  = errors.New("malformed channel data")
)

// ParseError wraps one of the sentinels above with the packet type and
// device id involved, so logs and metrics can classify failures without
// string matching.
type ParseError struct {
	Type   Type
	Device uint32
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("packet %s (device=0x%08X): %v", e.Type, e.Device, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NewParseError constructs a ParseError wrapping sentinel for t/device.
func NewParseError(t Type, device uint32, sentinel error) *ParseError {
	return &ParseError{Type: t, Device: device, Err: sentinel}
}
