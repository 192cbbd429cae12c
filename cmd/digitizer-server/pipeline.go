package main

import (
	"context"
	"time"

	"github.com/kstaniek/go-ampio-server/internal/decoder"
	"github.com/kstaniek/go-ampio-server/internal/device"
	"github.com/kstaniek/go-ampio-server/internal/emit"
	"github.com/kstaniek/go-ampio-server/internal/event"
	"github.com/kstaniek/go-ampio-server/internal/packet"
	"github.com/kstaniek/go-ampio-server/internal/pair"
	"github.com/kstaniek/go-ampio-server/internal/reassemble"
	"github.com/kstaniek/go-ampio-server/internal/separate"
	"github.com/kstaniek/go-ampio-server/internal/workerpool"
)

// closer is satisfied by every *workerpool.WorkerPool[T] and
// *pair.Coordinator[InfoT,WaveT] the pipeline registers, so Close can drain
// them uniformly without knowing their concrete type parameters.
type closer interface{ Close() }

// devicePipeline owns every per-device collaborator instantiated on top of
// a device.PacketBuffer: the concrete, type-specialized worker pools and
// pair coordinators spec.md leaves to the composition root, plus the
// reassembler/separator/emit stages downstream of them. This is the
// type-aware half of internal/device.Manager's wire hook.
type devicePipeline struct {
	deviceID    uint32
	closers     []closer
	reasm       *reassemble.Reassembler
	queue       *emit.Queue[event.Event]
	cancel      context.CancelFunc
	unsubscribe func()
}

// buildPipeline wires every registered wire type for one device: paired
// info/waveform types through pair.Coordinator, standalone types through
// workerpool.WorkerPool, and drains every resulting output channel into a
// single per-device emit.Queue, flushed batches of which reach pb's
// OnParsed subscribers via pb.PublishParsed - the downstream delivery half
// of spec.md 6, as distinct from RegisterParser/RegisterPair's internal
// decode-sink wiring above. onParsed is registered against pb here so its
// unsubscribe can be released alongside every other per-device collaborator
// in close().
func buildPipeline(parent context.Context, reg *packet.Registry, pb *device.PacketBuffer, cfg *appConfig, onParsed func([]event.Event)) *devicePipeline {
	ctx, cancel := context.WithCancel(parent)
	deviceID := pb.DeviceID()
	dp := &devicePipeline{
		deviceID:    deviceID,
		reasm:       reassemble.New(cfg.reassemblyTimeout),
		cancel:      cancel,
		unsubscribe: pb.OnParsed(onParsed),
	}
	dp.queue = emit.NewQueue[event.Event](cfg.emitInterval, cfg.emitBatchSize, cfg.emitFastPath, pb.PublishParsed)

	psdPair := pair.New(ctx, cfg.poolSize, cfg.poolQueueDepth, packet.PsdEventInfo, packet.PsdWaveform,
		func() *decoder.Decoder[decoder.PsdEventInfoRecord] { return decoder.NewPsdEventInfoDecoder(deviceID) },
		func() *decoder.Decoder[decoder.WaveformRecord] { return decoder.NewPsdWaveformDecoder(reg, deviceID) },
	)
	pb.RegisterPair(packet.PsdEventInfo, packet.PsdWaveform, psdPair)
	dp.closers = append(dp.closers, psdPair)
	go drainPair(dp, psdPair)

	phaPair := pair.New(ctx, cfg.poolSize, cfg.poolQueueDepth, packet.PhaEventInfo, packet.PhaWaveform,
		func() *decoder.Decoder[decoder.PhaEventInfoRecord] { return decoder.NewPhaEventInfoDecoder(deviceID) },
		func() *decoder.Decoder[decoder.WaveformRecord] { return decoder.NewPhaWaveformDecoder(reg, deviceID) },
	)
	pb.RegisterPair(packet.PhaEventInfo, packet.PhaWaveform, phaPair)
	dp.closers = append(dp.closers, phaPair)
	go drainPair(dp, phaPair)

	v2Pool := workerpool.New(ctx, cfg.poolSize, cfg.poolQueueDepth, packet.PsdEventInfoV2,
		func() *decoder.Decoder[decoder.PsdEventInfoRecord] { return decoder.NewPsdEventInfoV2Decoder(deviceID) })
	pb.RegisterParser(packet.PsdEventInfoV2, v2Pool)
	dp.closers = append(dp.closers, v2Pool)
	go dp.drainInfo(v2Pool)

	detStatPool := workerpool.New(ctx, cfg.poolSize, cfg.poolQueueDepth, packet.DetectronStatisticData,
		func() *decoder.Decoder[decoder.DetectronStatisticRecord] { return decoder.NewDetectronStatisticDecoder(deviceID) })
	pb.RegisterParser(packet.DetectronStatisticData, detStatPool)
	dp.closers = append(dp.closers, detStatPool)
	go dp.drainDetectronStatistic(detStatPool)

	det2DPool := workerpool.New(ctx, cfg.poolSize, cfg.poolQueueDepth, packet.Detectron2DData,
		func() *decoder.Decoder[decoder.Detectron2DRecord] { return decoder.NewDetectron2DDecoder(reg, deviceID) })
	pb.RegisterParser(packet.Detectron2DData, det2DPool)
	dp.closers = append(dp.closers, det2DPool)
	go dp.drainDetectron2D(det2DPool)

	spec16Pool := workerpool.New(ctx, cfg.poolSize, cfg.poolQueueDepth, packet.ConsistentChannelSpectrum16,
		func() *decoder.Decoder[decoder.Spectrum16Record] { return decoder.NewConsistentChannelSpectrum16Decoder(reg, deviceID) })
	pb.RegisterParser(packet.ConsistentChannelSpectrum16, spec16Pool)
	dp.closers = append(dp.closers, spec16Pool)
	go dp.drainSpectrum16(spec16Pool)

	spec32Pool := workerpool.New(ctx, cfg.poolSize, cfg.poolQueueDepth, packet.ConsistentChannelSpectrum32,
		func() *decoder.Decoder[decoder.Spectrum32Record] { return decoder.NewConsistentChannelSpectrum32Decoder(reg, deviceID) })
	pb.RegisterParser(packet.ConsistentChannelSpectrum32, spec32Pool)
	dp.closers = append(dp.closers, spec32Pool)
	go dp.drainSpectrum32(spec32Pool)

	interleavedPool := workerpool.New(ctx, cfg.poolSize, cfg.poolQueueDepth, packet.InterleavedWaveform,
		func() *decoder.Decoder[decoder.WaveformRecord] { return decoder.NewInterleavedWaveformDecoder(reg, deviceID) })
	pb.RegisterParser(packet.InterleavedWaveform, interleavedPool)
	dp.closers = append(dp.closers, interleavedPool)
	go dp.drainInterleavedWaveform(interleavedPool)

	splitPool := workerpool.New(ctx, cfg.poolSize, cfg.poolQueueDepth, packet.SplitUpWaveform,
		func() *decoder.Decoder[decoder.WaveformRecord] { return decoder.NewSplitUpWaveformDecoder(reg, deviceID) })
	pb.RegisterParser(packet.SplitUpWaveform, splitPool)
	dp.closers = append(dp.closers, splitPool)
	go dp.drainSplitUpWaveform(splitPool)

	return dp
}

func drainPair[InfoT decoder.Record](dp *devicePipeline, c *pair.Coordinator[InfoT, decoder.WaveformRecord]) {
	for item := range c.Output() {
		switch item.Kind {
		case pair.KindInfo:
			dp.queue.Push(infoEvent(dp.deviceID, item.Info.Header(), item.Info))
		case pair.KindWave:
			dp.queue.Push(waveformEvent(dp.deviceID, item.Wave))
		case pair.KindError:
			dp.queue.Push(errorEvent(dp.deviceID, item.ErrType, item.Err))
		}
	}
}

func (dp *devicePipeline) drainInfo(p *workerpool.WorkerPool[decoder.PsdEventInfoRecord]) {
	for res := range p.Output() {
		if res.Err != nil {
			dp.queue.Push(errorEvent(dp.deviceID, res.Type, res.Err))
			continue
		}
		dp.queue.Push(infoEvent(dp.deviceID, res.Record.Header(), res.Record))
	}
}

func (dp *devicePipeline) drainDetectronStatistic(p *workerpool.WorkerPool[decoder.DetectronStatisticRecord]) {
	for res := range p.Output() {
		if res.Err != nil {
			dp.queue.Push(errorEvent(dp.deviceID, res.Type, res.Err))
			continue
		}
		h := res.Record.Header()
		dp.queue.Push(event.Event{
			Kind: event.KindDetectronStatistic, Type: h.PacketType, DeviceID: dp.deviceID,
			ChannelID: h.ChannelID, RTC: h.RTC, DetectronStatistic: res.Record,
		})
	}
}

func (dp *devicePipeline) drainDetectron2D(p *workerpool.WorkerPool[decoder.Detectron2DRecord]) {
	for res := range p.Output() {
		if res.Err != nil {
			dp.queue.Push(errorEvent(dp.deviceID, res.Type, res.Err))
			continue
		}
		h := res.Record.Header()
		dp.queue.Push(event.Event{
			Kind: event.KindDetectron2D, Type: h.PacketType, DeviceID: dp.deviceID,
			ChannelID: h.ChannelID, RTC: h.RTC, Detectron2D: res.Record,
		})
	}
}

func (dp *devicePipeline) drainSpectrum16(p *workerpool.WorkerPool[decoder.Spectrum16Record]) {
	for res := range p.Output() {
		if res.Err != nil {
			dp.queue.Push(errorEvent(dp.deviceID, res.Type, res.Err))
			continue
		}
		h := res.Record.Header()
		channels, ok := separate.Consistent(h, res.Record.Bins, h.PacketType)
		if !ok {
			continue
		}
		for _, ch := range channels {
			dp.queue.Push(event.Event{
				Kind: event.KindSpectrum16, Type: h.PacketType, DeviceID: dp.deviceID,
				ChannelID: ch.ChannelID, RTC: h.RTC, Ints: ch.Samples, Aux: res.Record.SpectrumType,
			})
		}
	}
}

func (dp *devicePipeline) drainSpectrum32(p *workerpool.WorkerPool[decoder.Spectrum32Record]) {
	for res := range p.Output() {
		if res.Err != nil {
			dp.queue.Push(errorEvent(dp.deviceID, res.Type, res.Err))
			continue
		}
		h := res.Record.Header()
		channels, ok := separate.Consistent(h, res.Record.Bins, h.PacketType)
		if !ok {
			continue
		}
		for _, ch := range channels {
			dp.queue.Push(event.Event{
				Kind: event.KindSpectrum32, Type: h.PacketType, DeviceID: dp.deviceID,
				ChannelID: ch.ChannelID, RTC: h.RTC, Ints32: ch.Samples, Aux: res.Record.SpectrumType,
			})
		}
	}
}

func (dp *devicePipeline) drainInterleavedWaveform(p *workerpool.WorkerPool[decoder.WaveformRecord]) {
	for res := range p.Output() {
		if res.Err != nil {
			dp.queue.Push(errorEvent(dp.deviceID, res.Type, res.Err))
			continue
		}
		dp.emitSeparatedWaveform(res.Record)
	}
}

// drainSplitUpWaveform feeds every fragment through the reassembler and only
// emits (as an interleaved-separated waveform, same as any other multi-
// channel waveform) once a fragment completes its bucket.
func (dp *devicePipeline) drainSplitUpWaveform(p *workerpool.WorkerPool[decoder.WaveformRecord]) {
	for res := range p.Output() {
		if res.Err != nil {
			dp.queue.Push(errorEvent(dp.deviceID, res.Type, res.Err))
			continue
		}
		merged, ok := dp.reasm.Feed(res.Record)
		if !ok {
			continue
		}
		dp.emitSeparatedWaveform(merged)
	}
}

func (dp *devicePipeline) emitSeparatedWaveform(rec decoder.WaveformRecord) {
	h := rec.Header()
	for _, ch := range separate.Interleaved(h, rec.Samples) {
		dp.queue.Push(event.Event{
			Kind: event.KindWaveform, Type: h.PacketType, DeviceID: dp.deviceID,
			ChannelID: ch.ChannelID, RTC: h.RTC, Ints: ch.Samples, Aux: rec.DecimationFactor,
		})
	}
}

func infoEvent(deviceID uint32, h packet.Header, info any) event.Event {
	return event.Event{Kind: event.KindInfo, Type: h.PacketType, DeviceID: deviceID, ChannelID: h.ChannelID, RTC: h.RTC, Info: info}
}

func waveformEvent(deviceID uint32, rec decoder.WaveformRecord) event.Event {
	h := rec.Header()
	return event.Event{
		Kind: event.KindWaveform, Type: h.PacketType, DeviceID: deviceID,
		ChannelID: h.ChannelID, RTC: h.RTC, Ints: rec.Samples, Aux: rec.DecimationFactor,
	}
}

func errorEvent(deviceID uint32, t packet.Type, err error) event.Event {
	return event.Event{Kind: event.KindParseError, Type: t, DeviceID: deviceID, Err: err}
}

// sweepReassembly runs Reassembler.Sweep on every live device pipeline on a
// timer, bounding how long an incomplete split-waveform bucket survives.
func sweepReassembly(ctx context.Context, interval time.Duration, pipelines func() []*devicePipeline) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			for _, dp := range pipelines() {
				dp.reasm.Sweep()
			}
		case <-ctx.Done():
			return
		}
	}
}

// close drains every pool/coordinator and the emit queue, unregisters this
// pipeline's OnParsed subscriber, then cancels the context that fed them.
func (dp *devicePipeline) close() {
	for _, c := range dp.closers {
		c.Close()
	}
	dp.queue.Close()
	dp.unsubscribe()
	dp.cancel()
}
