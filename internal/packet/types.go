// Package packet defines the wire header, the packet-type discriminator, the
// three structural categories, and the checksum used across all digitizer
// packets.
package packet

import "encoding/binary"

// Type is the wire packet_type discriminator (offset 4 of the header).
type Type uint8

const (
	InterleavedWaveform         Type = 0
	PsdEventInfo                Type = 1
	PsdWaveform                 Type = 2
	PhaEventInfo                Type = 3
	PhaWaveform                 Type = 4
	Detectron2DData             Type = 5
	DetectronStatisticData      Type = 6
	SplitUpWaveform             Type = 7
	ConsistentChannelSpectrum16 Type = 8
	ConsistentChannelSpectrum32 Type = 9
	PsdEventInfoV2              Type = 10
	InvalidEventInfo            Type = 255
)

func (t Type) String() string {
	switch t {
	case InterleavedWaveform:
		return "InterleavedWaveform"
	case PsdEventInfo:
		return "PsdEventInfo"
	case PsdWaveform:
		return "PsdWaveform"
	case PhaEventInfo:
		return "PhaEventInfo"
	case PhaWaveform:
		return "PhaWaveform"
	case Detectron2DData:
		return "Detectron2DData"
	case DetectronStatisticData:
		return "DetectronStatisticData"
	case SplitUpWaveform:
		return "SplitUpWaveform"
	case ConsistentChannelSpectrum16:
		return "ConsistentChannelSpectrum16"
	case ConsistentChannelSpectrum32:
		return "ConsistentChannelSpectrum32"
	case PsdEventInfoV2:
		return "PsdEventInfoV2"
	case InvalidEventInfo:
		return "InvalidEventInfo"
	default:
		return "Unknown"
	}
}

// Category is the structural shape that determines how a packet's total
// length is derived from the wire content.
type Category uint8

const (
	Fixed Category = iota
	Known
	Unknown
)

// HeaderSize is the fixed 16-byte header present on every packet.
const HeaderSize = 16

// Header is the 16-byte wire header common to all packet categories. All
// multi-byte fields are little-endian.
type Header struct {
	DeviceID   uint32
	PacketType Type
	Flags      uint8
	ChannelID  uint16
	RTC        uint64
}

// Split-waveform flag bits, carried in Header.Flags for SplitUpWaveform.
const (
	FlagHasBegin uint8 = 1 << 0
	FlagHasEnd   uint8 = 1 << 1
)

// DecodeHeader reads the 16-byte header from the start of view.
// Caller must ensure len(view) >= HeaderSize.
func DecodeHeader(view []byte) Header {
	return Header{
		DeviceID:   binary.LittleEndian.Uint32(view[0:4]),
		PacketType: Type(view[4]),
		Flags:      view[5],
		ChannelID:  binary.LittleEndian.Uint16(view[6:8]),
		RTC:        binary.LittleEndian.Uint64(view[8:16]),
	}
}

// PutHeader writes h into the first HeaderSize bytes of view.
func PutHeader(view []byte, h Header) {
	binary.LittleEndian.PutUint32(view[0:4], h.DeviceID)
	view[4] = byte(h.PacketType)
	view[5] = h.Flags
	binary.LittleEndian.PutUint16(view[6:8], h.ChannelID)
	binary.LittleEndian.PutUint64(view[8:16], h.RTC)
}
