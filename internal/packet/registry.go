package packet

// Signature is the 6-byte sentinel terminating Unknown-category packets.
var Signature = [6]byte{0x11, 0xD0, 0xE1, 0xFE, 0xAD, 0xDE}

// KnownLayout describes the offsets/sizes of a Known-category payload:
//
//	header(16) | arrayLen(4) | aux(2) | paddingLen(2) | array[arrayLen*ItemSize] | checksum(2) | padding[paddingLen*2]
type KnownLayout struct {
	FixedPart     int // bytes before the array, including header+arrayLen+aux+paddingLen
	ArrayLenOff   int
	AuxOff        int
	PaddingLenOff int
	ItemSize      int
}

// UnknownLayout describes an Unknown-category packet: N fixed-size records
// followed by a sentinel signature and a checksum.
type UnknownLayout struct {
	FixedPart  int
	RecordSize int
	Limit      int
}

const (
	knownFixedPart     = HeaderSize + 4 + 2 + 2 // header + arrayLen + aux + paddingLen
	knownArrayLenOff   = HeaderSize
	knownAuxOff        = HeaderSize + 4
	knownPaddingLenOff = HeaderSize + 6
)

func knownLayout(itemSize int) KnownLayout {
	return KnownLayout{
		FixedPart:     knownFixedPart,
		ArrayLenOff:   knownArrayLenOff,
		AuxOff:        knownAuxOff,
		PaddingLenOff: knownPaddingLenOff,
		ItemSize:      itemSize,
	}
}

// TypeInfo is the per-type structural metadata the Registry hands to the
// size prober and decoders.
type TypeInfo struct {
	Type     Type
	Category Category

	FixedSize int // Fixed category only

	Known KnownLayout // Known category only

	Unknown UnknownLayout // Unknown category only
}

// Registry enumerates the wire packet_type discriminator and the per-type
// structural metadata needed to frame and decode it.
type Registry struct {
	byType map[Type]TypeInfo
}

// NewRegistry builds the default registry matching the wire packet type
// table (codes 0-10, plus the reserved 255).
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[Type]TypeInfo, 11)}
	r.register(TypeInfo{Type: InterleavedWaveform, Category: Known, Known: knownLayout(2)})
	r.register(TypeInfo{Type: PsdEventInfo, Category: Fixed, FixedSize: 48})
	r.register(TypeInfo{Type: PsdWaveform, Category: Known, Known: knownLayout(2)})
	r.register(TypeInfo{Type: PhaEventInfo, Category: Fixed, FixedSize: 56})
	r.register(TypeInfo{Type: PhaWaveform, Category: Known, Known: knownLayout(2)})
	r.register(TypeInfo{
		Type:     Detectron2DData,
		Category: Unknown,
		Unknown:  UnknownLayout{FixedPart: HeaderSize, RecordSize: 16, Limit: 64},
	})
	// DetectronStatisticNetworkPacket's original wire header carries no rtc
	// (8 bytes: deviceId+type+flags+channelId, rtc unused); the unified 16-byte
	// header adds 8 bytes, so FixedSize is the original 56 total - 8 original
	// header + 16 unified header = 64.
	r.register(TypeInfo{Type: DetectronStatisticData, Category: Fixed, FixedSize: 64})
	r.register(TypeInfo{Type: SplitUpWaveform, Category: Known, Known: knownLayout(2)})
	r.register(TypeInfo{Type: ConsistentChannelSpectrum16, Category: Known, Known: knownLayout(2)})
	r.register(TypeInfo{Type: ConsistentChannelSpectrum32, Category: Known, Known: knownLayout(4)})
	r.register(TypeInfo{Type: PsdEventInfoV2, Category: Fixed, FixedSize: 48})
	return r
}

func (r *Registry) register(info TypeInfo) { r.byType[info.Type] = info }

// Lookup returns the structural metadata for a wire type, or false if the
// type is not registered (including the reserved InvalidEventInfo=255).
func (r *Registry) Lookup(t Type) (TypeInfo, bool) {
	info, ok := r.byType[t]
	return info, ok
}

// CategoryFor returns the structural category for a wire type.
func (r *Registry) CategoryFor(t Type) (Category, bool) {
	info, ok := r.byType[t]
	return info.Category, ok
}
