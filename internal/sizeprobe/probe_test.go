package sizeprobe

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kstaniek/go-ampio-server/internal/packet"
)

func TestProbeFixedNeedsMoreThenSizes(t *testing.T) {
	reg := packet.NewRegistry()
	buf := make([]byte, 48)

	require.True(t, Probe(reg, packet.PsdEventInfo, buf[:20], 0).IsNeedMore())
	require.True(t, Probe(reg, packet.PsdEventInfo, buf, 0).IsSize())
	require.Equal(t, 48, Probe(reg, packet.PsdEventInfo, buf, 0).Size)
}

func TestProbeKnownComputesSizeFromArrayLen(t *testing.T) {
	reg := packet.NewRegistry()
	// header(16) + arrayLen(4) + aux(2) + paddingLen(2) + array(4*2) + checksum(2) + padding(3*2) = 40
	buf := make([]byte, 16+4+2+2+8+2+6)
	binary.LittleEndian.PutUint32(buf[16:20], 4) // arrayLen=4
	binary.LittleEndian.PutUint16(buf[22:24], 3) // paddingLen=3

	v := Probe(reg, packet.PsdWaveform, buf, 0)
	require.True(t, v.IsSize())
	require.Equal(t, len(buf), v.Size)
}

func TestProbeKnownNeedsMoreBeforeArrayLenField(t *testing.T) {
	reg := packet.NewRegistry()
	buf := make([]byte, 18) // shorter than FixedPart (24)
	require.True(t, Probe(reg, packet.PsdWaveform, buf, 0).IsNeedMore())
}

func TestProbeKnownNeedsMoreForDeclaredButUnavailableArray(t *testing.T) {
	reg := packet.NewRegistry()
	buf := make([]byte, 24) // exactly FixedPart, no room for declared array
	binary.LittleEndian.PutUint32(buf[16:20], 10)
	require.True(t, Probe(reg, packet.PsdWaveform, buf, 0).IsNeedMore())
}

func TestProbeUnknownFindsSignature(t *testing.T) {
	reg := packet.NewRegistry()
	var buf []byte
	buf = append(buf, make([]byte, 16)...) // header
	buf = append(buf, make([]byte, 16)...) // one 16-byte record
	buf = append(buf, packet.Signature[:]...)
	buf = append(buf, 0, 0) // checksum placeholder

	v := Probe(reg, packet.Detectron2DData, buf, 0)
	require.True(t, v.IsSize())
	require.Equal(t, len(buf), v.Size)
}

func TestProbeUnknownNeedsMoreWithoutSignatureInWindow(t *testing.T) {
	reg := packet.NewRegistry()
	buf := make([]byte, 16+16) // header + one record, no signature yet
	require.True(t, Probe(reg, packet.Detectron2DData, buf, 0).IsNeedMore())
}

func TestProbeUnregisteredTypeIsMalformed(t *testing.T) {
	reg := packet.NewRegistry()
	require.True(t, Probe(reg, packet.InvalidEventInfo, make([]byte, 64), 0).IsMalformed())
}
