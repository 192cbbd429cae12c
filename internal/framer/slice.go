package framer

import "github.com/kstaniek/go-ampio-server/internal/packet"

// Slice is a (buffer, offset, length) view onto one framed packet. It
// aliases the framer's rolling buffer rather than copying it; see
// rollingBuffer's doc comment for why that's safe across compaction.
type Slice struct {
	Bytes  []byte
	Header packet.Header
}

// Type returns the packet type declared in the slice's header.
func (s Slice) Type() packet.Type { return s.Header.PacketType }
