// Package device composes the framer, worker-pool dispatch, and
// pair-coordination stages into PacketBuffer (spec.md 4.9), plus the
// multi-device registry and measurement-lifecycle gating that sit above
// one device's pipeline. Grounded on internal/server/server.go's "one
// struct owns every collaborator" composition, generalized from "one Hub
// shared by all connections" to "one PacketBuffer per device, each with
// its own Framer and pools". OnParsed/OnParsedRaw (spec.md 6) are the
// actual downstream-subscriber hooks; RegisterParser/RegisterPair are a
// separate, earlier stage wiring internal decode sinks, not subscribers.
package device

import (
	"io"
	"log/slog"

	"github.com/kstaniek/go-ampio-server/internal/emit"
	"github.com/kstaniek/go-ampio-server/internal/event"
	"github.com/kstaniek/go-ampio-server/internal/framer"
	"github.com/kstaniek/go-ampio-server/internal/logging"
	"github.com/kstaniek/go-ampio-server/internal/metrics"
	"github.com/kstaniek/go-ampio-server/internal/packet"
)

// subscriberBuffer is the buffered channel depth given to each OnParsed/
// OnParsedRaw subscriber's emit.Client.
const subscriberBuffer = 32

// SliceSink receives raw, checksummed-but-not-yet-decoded packet slices
// for one non-paired wire type. *workerpool.WorkerPool[T] satisfies this
// directly.
type SliceSink interface {
	Enqueue(view []byte)
}

// PairSink receives raw slices for one registered info/waveform pair.
// *pair.Coordinator[InfoT, WaveT] satisfies this directly.
type PairSink interface {
	EnqueuePair(info, wave []byte)
	EnqueueSingleInfo(info []byte)
	EnqueueSingleWave(wave []byte)
}

type pairRoute struct {
	infoType packet.Type
	waveType packet.Type
	sink     PairSink
}

type pendingHalf struct {
	info []byte
	wave []byte
}

// RawSlice is one wire slice that passed framing but has not been decoded
// yet: the payload OnParsedRaw subscribers receive (spec.md 6
// on_parsed_raw).
type RawSlice struct {
	Type  packet.Type
	Bytes []byte
}

// PacketBuffer is the per-device composition root: Framer -> registered
// parsers/pair coordinators -> OnParsed/OnParsedRaw subscribers. It owns
// no decode logic itself; decoding happens in whatever SliceSink/PairSink
// the caller registers, and decoded output only reaches the outside world
// through hub/rawHub, which the composition root feeds via PublishParsed
// and dispatchBatch respectively.
type PacketBuffer struct {
	deviceID uint32
	framer   *framer.Framer
	registry *packet.Registry
	parsers  map[packet.Type]SliceSink
	pairs    map[packet.Type]*pairRoute
	logger   *slog.Logger

	hub    *emit.Hub[[]event.Event]
	rawHub *emit.Hub[[]RawSlice]

	readBufSize int
}

// New creates a PacketBuffer for one device. Call RegisterParser and
// RegisterPair to wire decode sinks before the first ProcessData call.
func New(deviceID uint32, reg *packet.Registry) *PacketBuffer {
	return &PacketBuffer{
		deviceID:    deviceID,
		framer:      framer.New(deviceID, reg),
		registry:    reg,
		parsers:     make(map[packet.Type]SliceSink),
		pairs:       make(map[packet.Type]*pairRoute),
		logger:      logging.L(),
		hub:         emit.NewHub[[]event.Event](),
		rawHub:      emit.NewHub[[]RawSlice](),
		readBufSize: 64 * 1024,
	}
}

// OnParsed registers cb to be invoked with every batch of decoded,
// downstream-normalized events this device produces (spec.md 6
// on_parsed). It returns an unsubscribe function.
func (pb *PacketBuffer) OnParsed(cb func([]event.Event)) func() {
	return subscribe(pb.hub, cb)
}

// OnParsedRaw registers cb to be invoked with every batch of
// framed-but-undecoded (type, bytes) slices this device produces (spec.md
// 6 on_parsed_raw). It returns an unsubscribe function.
func (pb *PacketBuffer) OnParsedRaw(cb func([]RawSlice)) func() {
	return subscribe(pb.rawHub, cb)
}

// PublishParsed broadcasts one flushed batch to every OnParsed subscriber.
// The composition root's emit.Queue flush callback is the only caller
// (spec.md 4.9): dispatchBatch routes slices to decode sinks and
// broadcasts undecoded slices to OnParsedRaw subscribers, but never
// delivers to OnParsed subscribers itself.
func (pb *PacketBuffer) PublishParsed(batch []event.Event) {
	pb.hub.Broadcast(batch, metrics.IncEmitFanoutDrop, metrics.IncEmitFanoutKick)
}

func subscribe[T any](hub *emit.Hub[T], cb func(T)) func() {
	c := emit.NewClient[T](subscriberBuffer)
	hub.Add(c)
	metrics.SetEmitSubscribers(hub.Count())
	go func() {
		for {
			select {
			case batch, ok := <-c.Out:
				if !ok {
					return
				}
				cb(batch)
			case <-c.Closed:
				return
			}
		}
	}()
	return func() {
		hub.Remove(c)
		metrics.SetEmitSubscribers(hub.Count())
	}
}

// RegisterParser wires a non-paired wire type directly to a sink (usually
// a *workerpool.WorkerPool[T]).
func (pb *PacketBuffer) RegisterParser(t packet.Type, sink SliceSink) {
	pb.parsers[t] = sink
}

// RegisterPair wires an info/waveform pair of wire types to a shared sink
// (usually a *pair.Coordinator[InfoT, WaveT]). Both infoType and waveType
// are routed to it; within-batch correlation by rtc happens in
// dispatchBatch.
func (pb *PacketBuffer) RegisterPair(infoType, waveType packet.Type, sink PairSink) {
	route := &pairRoute{infoType: infoType, waveType: waveType, sink: sink}
	pb.pairs[infoType] = route
	pb.pairs[waveType] = route
}

// SetMeasurementStopped forwards the soft-stop test hook to the framer:
// while true, incoming bytes are dropped and the rolling buffer cleared.
func (pb *PacketBuffer) SetMeasurementStopped(stopped bool) {
	pb.framer.SetMeasurementStopped(stopped)
}

// ProcessData keeps reading r, pushing each chunk into the framer and
// dispatching every slice produced to its registered sink. It returns nil
// when r.Read returns io.EOF and returns any other read error, so over a
// live connection one call runs until disconnect.
func (pb *PacketBuffer) ProcessData(r io.Reader) error {
	chunk := make([]byte, pb.readBufSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			pb.dispatchBatch(pb.framer.Push(chunk[:n]))
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// Tick drives the framer's flush timer (spec.md 4.3), bounding tail
// latency for a batch that never reached NeedMore via new bytes alone.
func (pb *PacketBuffer) Tick() {
	pb.dispatchBatch(pb.framer.Tick())
}

func (pb *PacketBuffer) dispatchBatch(batch []framer.Slice) {
	if len(batch) == 0 {
		return
	}
	var rawBatch []RawSlice
	if pb.rawHub.Count() > 0 {
		rawBatch = make([]RawSlice, 0, len(batch))
	}
	var pending map[*pairRoute]map[uint64]*pendingHalf
	for _, s := range batch {
		t := s.Type()
		if rawBatch != nil {
			rawBatch = append(rawBatch, RawSlice{Type: t, Bytes: s.Bytes})
		}
		if sink, ok := pb.parsers[t]; ok {
			sink.Enqueue(s.Bytes)
			continue
		}
		if route, ok := pb.pairs[t]; ok {
			if pending == nil {
				pending = make(map[*pairRoute]map[uint64]*pendingHalf)
			}
			m := pending[route]
			if m == nil {
				m = make(map[uint64]*pendingHalf)
				pending[route] = m
			}
			half := m[s.Header.RTC]
			if half == nil {
				half = &pendingHalf{}
				m[s.Header.RTC] = half
			}
			if t == route.infoType {
				half.info = s.Bytes
			} else {
				half.wave = s.Bytes
			}
			continue
		}
		pb.logger.Warn("packetbuffer_unregistered_type", "device_id", pb.deviceID, "type", t.String())
		metrics.IncMalformed()
	}
	for route, m := range pending {
		for _, half := range m {
			switch {
			case half.info != nil && half.wave != nil:
				route.sink.EnqueuePair(half.info, half.wave)
			case half.info != nil:
				route.sink.EnqueueSingleInfo(half.info)
			case half.wave != nil:
				route.sink.EnqueueSingleWave(half.wave)
			}
		}
	}
	if len(rawBatch) > 0 {
		pb.rawHub.Broadcast(rawBatch, metrics.IncEmitFanoutDrop, metrics.IncEmitFanoutKick)
	}
}

// DeviceID returns the device id this buffer was created for.
func (pb *PacketBuffer) DeviceID() uint32 { return pb.deviceID }

// FramerState exposes the framer's current scanning state for diagnostics.
func (pb *PacketBuffer) FramerState() framer.State { return pb.framer.State() }
