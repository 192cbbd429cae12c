// Package framer owns a per-device rolling byte buffer, walks it to locate
// packet boundaries using sizeprobe, and emits packet slices downstream
// without copying. Grounded on internal/serial/codec.go's DecodeStream scan
// loop and internal/cnl/codec.go's stream decoding, generalized from a
// single CAN-UART framing rule to the registry-driven Fixed/Known/Unknown
// framing rules in internal/sizeprobe.
package framer

import (
	"log/slog"

	"github.com/kstaniek/go-ampio-server/internal/logging"
	"github.com/kstaniek/go-ampio-server/internal/metrics"
	"github.com/kstaniek/go-ampio-server/internal/packet"
	"github.com/kstaniek/go-ampio-server/internal/sizeprobe"
)

// Framer consumes incoming chunks for one device, locates packet boundaries,
// and emits ordered batches of Slices. Not safe for concurrent Push calls;
// the caller (one dedicated ingest task per device) serializes access.
type Framer struct {
	deviceID uint32
	registry *packet.Registry
	buf      rollingBuffer
	state    State
	stopped  bool
	logger   *slog.Logger
}

// New creates a Framer for one device's byte stream.
func New(deviceID uint32, registry *packet.Registry) *Framer {
	return &Framer{
		deviceID: deviceID,
		registry: registry,
		state:    Scanning,
		logger:   logging.L(),
	}
}

// State returns the framer's current scanning state.
func (f *Framer) State() State { return f.state }

// SetMeasurementStopped toggles the soft-stop test hook: while true, Push
// drops incoming bytes and clears the rolling buffer instead of framing it.
func (f *Framer) SetMeasurementStopped(stopped bool) {
	f.stopped = stopped
	if stopped {
		f.buf.reset()
		f.state = Scanning
	}
}

// Push appends chunk to the rolling buffer and runs one scan pass,
// returning the ordered batch of slices produced (possibly empty). Each
// call produces at most one batch, submitted atomically to the caller.
func (f *Framer) Push(chunk []byte) []Slice {
	if f.stopped {
		return nil
	}
	f.buf.push(chunk)
	f.state = Scanning
	return f.scan()
}

// Tick forces a scan pass without new input, to bound tail latency when
// called periodically. The package runs no timer of its own and defines no
// flush interval; the caller decides when to tick.
func (f *Framer) Tick() []Slice {
	if f.stopped || f.state != WaitingForBytes {
		return nil
	}
	f.state = Scanning
	return f.scan()
}

// scan walks the buffer from its read cursor, probing and emitting slices
// until it needs more bytes or hits a malformed region.
func (f *Framer) scan() []Slice {
	var batch []Slice
	for {
		f.buf.compact()
		tail := f.buf.tail()
		if len(tail) < packet.HeaderSize {
			f.state = WaitingForBytes
			return batch
		}
		t := packet.Type(tail[4])
		if _, ok := f.registry.CategoryFor(t); !ok {
			f.reportMalformed(t, packet.ErrUnsupportedPacketType)
			continue
		}
		verdict := sizeprobe.Probe(f.registry, t, tail, 0)
		switch verdict.Kind {
		case sizeprobe.KindSize:
			hdr := packet.DecodeHeader(tail[:packet.HeaderSize])
			slice := Slice{Bytes: tail[:verdict.Size], Header: hdr}
			batch = append(batch, slice)
			f.buf.consume(verdict.Size)
			metrics.IncPacketsFramed()
		case sizeprobe.KindNeedMore:
			f.state = WaitingForBytes
			return batch
		case sizeprobe.KindMalformed:
			f.reportMalformed(t, packet.ErrMalformed)
			continue
		}
	}
}

func (f *Framer) reportMalformed(t packet.Type, sentinel error) {
	f.state = Recovering
	metrics.IncMalformed()
	err := packet.NewParseError(t, f.deviceID, sentinel)
	f.logger.Warn("framer_malformed", "device_id", f.deviceID, "error", err)
	f.flushBroken()
	f.state = Scanning
}

// flushBroken discards bytes from the head of the buffer up to the next
// byte position that could plausibly begin a valid header: a registered
// packet type at the header's type offset and the framer's own device id
// in the device-id field. This is the only lossy recovery action (spec.md
// invariant 2) and operates purely on the rolling buffer, never a socket
// (spec.md open question 2).
func (f *Framer) flushBroken() {
	tail := f.buf.tail()
	for i := 1; i+packet.HeaderSize <= len(tail); i++ {
		t := packet.Type(tail[i+4])
		if _, ok := f.registry.CategoryFor(t); !ok {
			continue
		}
		hdr := packet.DecodeHeader(tail[i : i+packet.HeaderSize])
		if hdr.DeviceID == f.deviceID {
			f.buf.consume(i)
			return
		}
	}
	// No plausible resync point within the retained tail: drop everything
	// except enough trailing bytes to let a header that straddles the next
	// push be recognized.
	keep := packet.HeaderSize - 1
	if len(tail) <= keep {
		return
	}
	f.buf.consume(len(tail) - keep)
}
