// Package event defines the single downstream envelope type that every
// decoded wire type is normalized into before reaching emit.Queue/emit.Hub.
// Generics let each stage (decoder, pair, reassemble, separate) stay
// strongly typed in T, but a device's composition root still needs one
// concrete type to batch and fan out - Event is that join point, grounded
// on the teacher's can.Frame (the single payload type internal/hub.Hub was
// originally specialized to).
package event

import "github.com/kstaniek/go-ampio-server/internal/packet"

// Kind discriminates which payload field of an Event is populated.
type Kind uint8

const (
	KindInfo Kind = iota
	KindWaveform
	KindSpectrum16
	KindSpectrum32
	KindDetectronStatistic
	KindDetectron2D
	KindParseError
)

// Event is the normalized record handed to subscribers. Exactly one
// payload field is meaningful per Kind (Err for KindParseError).
type Event struct {
	Kind      Kind
	Type      packet.Type
	DeviceID  uint32
	ChannelID uint16
	RTC       uint64

	Info  any // decoder.PsdEventInfoRecord or decoder.PhaEventInfoRecord
	Ints  []int16
	Ints32 []int32
	Aux   uint16 // DecimationFactor or SpectrumType, whichever applies

	DetectronStatistic any // decoder.DetectronStatisticRecord
	Detectron2D        any // decoder.Detectron2DRecord

	Err error
}
