package decoder

import (
	"encoding/binary"

	"github.com/kstaniek/go-ampio-server/internal/packet"
)

// PsdEventInfoRecord is the Fixed-category event-info record shared by
// PsdEventInfo and PsdEventInfoV2 (psdnetworkpacket.h defines the type 1
// body; the captured sources never ship a distinct struct for type 10,
// only the eventpackettype.h discriminator, so this decodes the V2 wire
// type against the same field layout absent evidence of a difference).
type PsdEventInfoRecord struct {
	baseRecord
	QShort          int32
	QLong           int32
	CfdY1           int16
	CfdY2           int16
	Baseline        int16
	Height          int16
	EventCounter    uint32
	EventCounterPsd uint32
	PsdValue        int16
}

// PhaEventInfoRecord is the Fixed-category event-info body of
// phanetworkpacket.h.
type PhaEventInfoRecord struct {
	baseRecord
	TrapBaseline   int64
	TrapHeightMean int64
	TrapHeightMax  int64
	EventCounter   uint32
	RcCr2Y1        int16
	RcCr2Y2        int16
}

// WaveformRecord is the Known-category int16-sample body shared by
// InterleavedWaveform, PsdWaveform, PhaWaveform and SplitUpWaveform
// (waveformnetworkpacket.h); the flags distinguishing split fragments live
// in the common header.
type WaveformRecord struct {
	baseRecord
	DecimationFactor uint16
	Samples          []int16
}

// Spectrum16Record is the Known-category int16-bin consistent-channel
// spectrum body.
type Spectrum16Record struct {
	baseRecord
	SpectrumType uint16
	Bins         []int16
}

// Spectrum32Record is the Known-category int32-bin consistent-channel
// spectrum body (consistentchannelspectrum32.h).
type Spectrum32Record struct {
	baseRecord
	SpectrumType uint16
	Bins         []int32
}

// DetectronStatisticRecord is the Fixed-category trigger/processed-count
// body of detectronstatisticnetworkpacket.h.
type DetectronStatisticRecord struct {
	baseRecord
	AnodeTriggers  uint32
	AnodeProcessed uint32
	X1Triggers     uint32
	X1Processed    uint32
	X2Triggers     uint32
	X2Processed    uint32
	Y1Triggers     uint32
	Y1Processed    uint32
	Y2Triggers     uint32
	Y2Processed    uint32
	CntMonitor     uint32
}

// DetectronXY is one repeated record inside a Detectron2DRecord
// (event_info_detectron_xy_t in detectron2dnetworkpacket.h).
type DetectronXY struct {
	ChannelNum uint32
	Amp1       int16
	Amp2       int16
	RTC        uint64
}

// Detectron2DRecord is the Unknown-category body of
// detectron2dnetworkpacket.h: a run of DetectronXY entries terminated by
// the packet.Signature sentinel.
type Detectron2DRecord struct {
	baseRecord
	Entries []DetectronXY
}

// NewWaveformRecord synthesizes a WaveformRecord from already-decoded
// parts with no backing wire slice, used by SplitReassembler to merge a
// completed split-waveform assembly into a single logical record.
func NewWaveformRecord(h packet.Header, decimationFactor uint16, samples []int16) WaveformRecord {
	return WaveformRecord{
		baseRecord:       baseRecord{header: h},
		DecimationFactor: decimationFactor,
		Samples:          samples,
	}
}

func parsePsdEventInfo(view []byte, h packet.Header) (PsdEventInfoRecord, error) {
	b := view[packet.HeaderSize:]
	return PsdEventInfoRecord{
		baseRecord:      baseRecord{header: h, raw: view},
		QShort:          int32(binary.LittleEndian.Uint32(b[0:4])),
		QLong:           int32(binary.LittleEndian.Uint32(b[4:8])),
		CfdY1:           int16(binary.LittleEndian.Uint16(b[8:10])),
		CfdY2:           int16(binary.LittleEndian.Uint16(b[10:12])),
		Baseline:        int16(binary.LittleEndian.Uint16(b[12:14])),
		Height:          int16(binary.LittleEndian.Uint16(b[14:16])),
		EventCounter:    binary.LittleEndian.Uint32(b[16:20]),
		EventCounterPsd: binary.LittleEndian.Uint32(b[20:24]),
		PsdValue:        int16(binary.LittleEndian.Uint16(b[24:26])),
	}, nil
}

func parsePhaEventInfo(view []byte, h packet.Header) (PhaEventInfoRecord, error) {
	b := view[packet.HeaderSize:]
	return PhaEventInfoRecord{
		baseRecord:     baseRecord{header: h, raw: view},
		TrapBaseline:   int64(binary.LittleEndian.Uint64(b[0:8])),
		TrapHeightMean: int64(binary.LittleEndian.Uint64(b[8:16])),
		TrapHeightMax:  int64(binary.LittleEndian.Uint64(b[16:24])),
		EventCounter:   binary.LittleEndian.Uint32(b[24:28]),
		RcCr2Y1:        int16(binary.LittleEndian.Uint16(b[28:30])),
		RcCr2Y2:        int16(binary.LittleEndian.Uint16(b[30:32])),
	}, nil
}

func parseDetectronStatistic(view []byte, h packet.Header) (DetectronStatisticRecord, error) {
	b := view[packet.HeaderSize:]
	u32 := func(off int) uint32 { return binary.LittleEndian.Uint32(b[off : off+4]) }
	return DetectronStatisticRecord{
		baseRecord:     baseRecord{header: h, raw: view},
		AnodeTriggers:  u32(0),
		AnodeProcessed: u32(4),
		X1Triggers:     u32(8),
		X1Processed:    u32(12),
		X2Triggers:     u32(16),
		X2Processed:    u32(20),
		Y1Triggers:     u32(24),
		Y1Processed:    u32(28),
		Y2Triggers:     u32(32),
		Y2Processed:    u32(36),
		CntMonitor:     u32(40),
	}, nil
}

func parseWaveform(layout packet.KnownLayout) ParseFunc[WaveformRecord] {
	return func(view []byte, h packet.Header) (WaveformRecord, error) {
		arrayLen := binary.LittleEndian.Uint32(view[layout.ArrayLenOff : layout.ArrayLenOff+4])
		aux := binary.LittleEndian.Uint16(view[layout.AuxOff : layout.AuxOff+2])
		samples := make([]int16, arrayLen)
		off := layout.FixedPart
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(view[off : off+2]))
			off += 2
		}
		return WaveformRecord{
			baseRecord:       baseRecord{header: h, raw: view},
			DecimationFactor: aux,
			Samples:          samples,
		}, nil
	}
}

func parseSpectrum16(layout packet.KnownLayout) ParseFunc[Spectrum16Record] {
	return func(view []byte, h packet.Header) (Spectrum16Record, error) {
		arrayLen := binary.LittleEndian.Uint32(view[layout.ArrayLenOff : layout.ArrayLenOff+4])
		aux := binary.LittleEndian.Uint16(view[layout.AuxOff : layout.AuxOff+2])
		bins := make([]int16, arrayLen)
		off := layout.FixedPart
		for i := range bins {
			bins[i] = int16(binary.LittleEndian.Uint16(view[off : off+2]))
			off += 2
		}
		return Spectrum16Record{
			baseRecord:   baseRecord{header: h, raw: view},
			SpectrumType: aux,
			Bins:         bins,
		}, nil
	}
}

func parseSpectrum32(layout packet.KnownLayout) ParseFunc[Spectrum32Record] {
	return func(view []byte, h packet.Header) (Spectrum32Record, error) {
		arrayLen := binary.LittleEndian.Uint32(view[layout.ArrayLenOff : layout.ArrayLenOff+4])
		aux := binary.LittleEndian.Uint16(view[layout.AuxOff : layout.AuxOff+2])
		bins := make([]int32, arrayLen)
		off := layout.FixedPart
		for i := range bins {
			bins[i] = int32(binary.LittleEndian.Uint32(view[off : off+4]))
			off += 4
		}
		return Spectrum32Record{
			baseRecord:   baseRecord{header: h, raw: view},
			SpectrumType: aux,
			Bins:         bins,
		}, nil
	}
}

func parseDetectron2D(layout packet.UnknownLayout) ParseFunc[Detectron2DRecord] {
	return func(view []byte, h packet.Header) (Detectron2DRecord, error) {
		sigLen := len(packet.Signature)
		n := (len(view) - layout.FixedPart - sigLen - 2) / layout.RecordSize
		entries := make([]DetectronXY, n)
		off := layout.FixedPart
		for i := range entries {
			entries[i] = DetectronXY{
				ChannelNum: binary.LittleEndian.Uint32(view[off : off+4]),
				Amp1:       int16(binary.LittleEndian.Uint16(view[off+4 : off+6])),
				Amp2:       int16(binary.LittleEndian.Uint16(view[off+6 : off+8])),
				RTC:        binary.LittleEndian.Uint64(view[off+8 : off+16]),
			}
			off += layout.RecordSize
		}
		return Detectron2DRecord{
			baseRecord: baseRecord{header: h, raw: view},
			Entries:    entries,
		}, nil
	}
}
