// Package sizeprobe peeks at a candidate packet region and returns either
// its byte length or a NeedMore/Malformed verdict, without copying.
package sizeprobe

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/kstaniek/go-ampio-server/internal/packet"
)

// Verdict is the outcome of a probe: exactly one of Size, NeedMore, or
// Malformed is meaningful, discriminated by Kind.
type Verdict struct {
	Kind VerdictKind
	Size int
}

type VerdictKind uint8

const (
	KindSize VerdictKind = iota
	KindNeedMore
	KindMalformed
)

func sized(n int) Verdict    { return Verdict{Kind: KindSize, Size: n} }
func needMore() Verdict      { return Verdict{Kind: KindNeedMore} }
func malformed() Verdict     { return Verdict{Kind: KindMalformed} }
func (v Verdict) IsSize() bool      { return v.Kind == KindSize }
func (v Verdict) IsNeedMore() bool  { return v.Kind == KindNeedMore }
func (v Verdict) IsMalformed() bool { return v.Kind == KindMalformed }

// Probe inspects buf[offset:] for a candidate packet of the given type and
// category, returning a Size, NeedMore, or Malformed verdict. It never
// allocates or copies.
func Probe(reg *packet.Registry, t packet.Type, buf []byte, offset int) Verdict {
	info, ok := reg.Lookup(t)
	if !ok {
		return malformed()
	}
	available := len(buf) - offset
	switch info.Category {
	case packet.Fixed:
		return probeFixed(info.FixedSize, available)
	case packet.Known:
		return probeKnown(info.Known, buf, offset, available)
	case packet.Unknown:
		return probeUnknown(info.Unknown, buf, offset, available)
	default:
		return malformed()
	}
}

func probeFixed(size, available int) Verdict {
	if available < size {
		return needMore()
	}
	return sized(size)
}

func probeKnown(layout packet.KnownLayout, buf []byte, offset, available int) Verdict {
	if available < layout.FixedPart {
		return needMore()
	}
	arrayLen := binary.LittleEndian.Uint32(buf[offset+layout.ArrayLenOff : offset+layout.ArrayLenOff+4])
	paddingLen := binary.LittleEndian.Uint16(buf[offset+layout.PaddingLenOff : offset+layout.PaddingLenOff+2])

	total64 := uint64(layout.FixedPart) + uint64(arrayLen)*uint64(layout.ItemSize) + uint64(paddingLen)*2 + 2
	if total64 == 0 || total64 > uint64(math.MaxInt32) {
		return malformed()
	}
	total := int(total64)
	if available < total {
		return needMore()
	}
	if total%8 != 0 {
		return malformed()
	}
	return sized(total)
}

func probeUnknown(layout packet.UnknownLayout, buf []byte, offset, available int) Verdict {
	if available < layout.FixedPart {
		return needMore()
	}
	sigLen := len(packet.Signature)
	for k := 0; k < layout.Limit; k++ {
		sigPos := layout.FixedPart + k*layout.RecordSize
		end := sigPos + sigLen + 2 // signature + checksum
		if end > available {
			return needMore()
		}
		if bytes.Equal(buf[offset+sigPos:offset+sigPos+sigLen], packet.Signature[:]) {
			return sized(end)
		}
	}
	return malformed()
}
