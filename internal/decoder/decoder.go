// Package decoder type-specializes a validated packet.Slice into a strongly
// typed Record: it checks device id, declared type, and checksum (in that
// order) before handing the payload bytes to a type-specific parse
// function. Grounded on internal/serial/codec.go's per-frame decode step,
// generalized to the registry-driven Fixed/Known/Unknown categories and to
// the eleven concrete packet types in eventpackettype.h.
package decoder

import (
	"github.com/pkg/errors"

	"github.com/kstaniek/go-ampio-server/internal/packet"
)

// Record is satisfied by every concrete decoded payload type.
type Record interface {
	Header() packet.Header
	Raw() []byte
}

// baseRecord supplies the common Header/Raw accessors; every concrete
// record type embeds it.
type baseRecord struct {
	header packet.Header
	raw    []byte
}

func (b baseRecord) Header() packet.Header { return b.header }
func (b baseRecord) Raw() []byte           { return b.raw }

// ParseFunc extracts the type-specific body of a record whose header,
// declared type, and checksum have already passed validation.
type ParseFunc[T Record] func(view []byte, h packet.Header) (T, error)

// Decoder validates a slice against one (expectedDevice, expectedType) pair
// and materializes it into T. Per spec, a Decoder holds only its expected
// device id and type plus the structural metadata needed to locate the
// checksum field; it has no other mutable state, so one instance per
// worker is safe with zero contention.
type Decoder[T Record] struct {
	expectedDevice uint32
	expectedType   packet.Type
	category       packet.Category
	known          packet.KnownLayout
	parse          ParseFunc[T]
}

// NewFixedDecoder builds a Decoder for a Fixed-category type.
func NewFixedDecoder[T Record](device uint32, t packet.Type, parse ParseFunc[T]) *Decoder[T] {
	return &Decoder[T]{expectedDevice: device, expectedType: t, category: packet.Fixed, parse: parse}
}

// NewKnownDecoder builds a Decoder for a Known-category type.
func NewKnownDecoder[T Record](device uint32, t packet.Type, layout packet.KnownLayout, parse ParseFunc[T]) *Decoder[T] {
	return &Decoder[T]{expectedDevice: device, expectedType: t, category: packet.Known, known: layout, parse: parse}
}

// NewUnknownDecoder builds a Decoder for an Unknown-category type.
func NewUnknownDecoder[T Record](device uint32, t packet.Type, parse ParseFunc[T]) *Decoder[T] {
	return &Decoder[T]{expectedDevice: device, expectedType: t, category: packet.Unknown, parse: parse}
}

// Decode validates view and, on success, returns the materialized record.
// Validation order: device id, declared type, checksum - matching the
// order consumers rely on to classify a failure without re-parsing.
// Payload-parse errors are wrapped with a causal chain via pkg/errors so
// the sentinel classification and the underlying cause both survive
// logging.
func (d *Decoder[T]) Decode(view []byte) (T, error) {
	var zero T
	if len(view) < packet.HeaderSize {
		return zero, packet.NewParseError(d.expectedType, d.expectedDevice, packet.ErrNotEnoughBytes)
	}
	h := packet.DecodeHeader(view)
	if h.DeviceID != d.expectedDevice {
		return zero, packet.NewParseError(h.PacketType, h.DeviceID, packet.ErrInvalidDeviceID)
	}
	if h.PacketType != d.expectedType {
		return zero, packet.NewParseError(h.PacketType, h.DeviceID, packet.ErrUnsupportedPacketType)
	}

	var ok bool
	switch d.category {
	case packet.Fixed:
		ok = packet.VerifyFixed(view)
	case packet.Known:
		ok = packet.VerifyKnown(view, packet.KnownChecksumOffset(view, d.known))
	case packet.Unknown:
		ok = packet.VerifyUnknown(view)
	}
	if !ok {
		return zero, packet.NewParseError(h.PacketType, h.DeviceID, packet.ErrChecksumMismatch)
	}

	rec, err := d.parse(view, h)
	if err != nil {
		return zero, errors.Wrapf(err, "decode %s payload", h.PacketType)
	}
	return rec, nil
}

// ExpectedType returns the wire packet type this Decoder is bound to, used
// by WorkerPool to tag each Result with its packet type.
func (d *Decoder[T]) ExpectedType() packet.Type { return d.expectedType }
