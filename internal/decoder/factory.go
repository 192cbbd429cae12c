package decoder

import "github.com/kstaniek/go-ampio-server/internal/packet"

// NewPsdEventInfoDecoder builds the Decoder for PsdEventInfo (type 1).
func NewPsdEventInfoDecoder(device uint32) *Decoder[PsdEventInfoRecord] {
	return NewFixedDecoder(device, packet.PsdEventInfo, parsePsdEventInfo)
}

// NewPsdEventInfoV2Decoder builds the Decoder for PsdEventInfoV2 (type 10).
func NewPsdEventInfoV2Decoder(device uint32) *Decoder[PsdEventInfoRecord] {
	return NewFixedDecoder(device, packet.PsdEventInfoV2, parsePsdEventInfo)
}

// NewPhaEventInfoDecoder builds the Decoder for PhaEventInfo (type 3).
func NewPhaEventInfoDecoder(device uint32) *Decoder[PhaEventInfoRecord] {
	return NewFixedDecoder(device, packet.PhaEventInfo, parsePhaEventInfo)
}

// NewDetectronStatisticDecoder builds the Decoder for DetectronStatisticData
// (type 6).
func NewDetectronStatisticDecoder(device uint32) *Decoder[DetectronStatisticRecord] {
	return NewFixedDecoder(device, packet.DetectronStatisticData, parseDetectronStatistic)
}

func waveformLayout(reg *packet.Registry, t packet.Type) packet.KnownLayout {
	info, _ := reg.Lookup(t)
	return info.Known
}

// NewInterleavedWaveformDecoder builds the Decoder for InterleavedWaveform
// (type 0): a multi-channel waveform whose channelId is an active-channel
// bitmask, fanned out downstream by ChannelSeparator.
func NewInterleavedWaveformDecoder(reg *packet.Registry, device uint32) *Decoder[WaveformRecord] {
	layout := waveformLayout(reg, packet.InterleavedWaveform)
	return NewKnownDecoder(device, packet.InterleavedWaveform, layout, parseWaveform(layout))
}

// NewPsdWaveformDecoder builds the Decoder for PsdWaveform (type 2), the
// per-channel waveform half of a Psd info/waveform pair.
func NewPsdWaveformDecoder(reg *packet.Registry, device uint32) *Decoder[WaveformRecord] {
	layout := waveformLayout(reg, packet.PsdWaveform)
	return NewKnownDecoder(device, packet.PsdWaveform, layout, parseWaveform(layout))
}

// NewPhaWaveformDecoder builds the Decoder for PhaWaveform (type 4), the
// per-channel waveform half of a Pha info/waveform pair.
func NewPhaWaveformDecoder(reg *packet.Registry, device uint32) *Decoder[WaveformRecord] {
	layout := waveformLayout(reg, packet.PhaWaveform)
	return NewKnownDecoder(device, packet.PhaWaveform, layout, parseWaveform(layout))
}

// NewSplitUpWaveformDecoder builds the Decoder for SplitUpWaveform (type 7):
// a waveform fragment carrying Begin/End flags in its header, consumed by
// SplitReassembler before its samples reach a subscriber.
func NewSplitUpWaveformDecoder(reg *packet.Registry, device uint32) *Decoder[WaveformRecord] {
	layout := waveformLayout(reg, packet.SplitUpWaveform)
	return NewKnownDecoder(device, packet.SplitUpWaveform, layout, parseWaveform(layout))
}

// NewConsistentChannelSpectrum16Decoder builds the Decoder for
// ConsistentChannelSpectrum16 (type 8).
func NewConsistentChannelSpectrum16Decoder(reg *packet.Registry, device uint32) *Decoder[Spectrum16Record] {
	layout := waveformLayout(reg, packet.ConsistentChannelSpectrum16)
	return NewKnownDecoder(device, packet.ConsistentChannelSpectrum16, layout, parseSpectrum16(layout))
}

// NewConsistentChannelSpectrum32Decoder builds the Decoder for
// ConsistentChannelSpectrum32 (type 9).
func NewConsistentChannelSpectrum32Decoder(reg *packet.Registry, device uint32) *Decoder[Spectrum32Record] {
	layout := waveformLayout(reg, packet.ConsistentChannelSpectrum32)
	return NewKnownDecoder(device, packet.ConsistentChannelSpectrum32, layout, parseSpectrum32(layout))
}

// NewDetectron2DDecoder builds the Decoder for Detectron2DData (type 5).
func NewDetectron2DDecoder(reg *packet.Registry, device uint32) *Decoder[Detectron2DRecord] {
	info, _ := reg.Lookup(packet.Detectron2DData)
	return NewUnknownDecoder(device, packet.Detectron2DData, parseDetectron2D(info.Unknown))
}
