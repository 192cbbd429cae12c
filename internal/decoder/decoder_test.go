package decoder

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kstaniek/go-ampio-server/internal/packet"
)

const testDevice = 0xCAFEBABE

func putHeader(buf []byte, deviceID uint32, t packet.Type, channelID uint16, rtc uint64) {
	packet.PutHeader(buf, packet.Header{DeviceID: deviceID, PacketType: t, ChannelID: channelID, RTC: rtc})
}

// buildPsdEventInfo constructs a valid 48-byte PsdEventInfo packet.
func buildPsdEventInfo(deviceID uint32) []byte {
	buf := make([]byte, 48)
	putHeader(buf, deviceID, packet.PsdEventInfo, 3, 123456789)
	b := buf[packet.HeaderSize:]
	binary.LittleEndian.PutUint32(b[0:4], uint32(int32(-100)))
	binary.LittleEndian.PutUint32(b[4:8], 4096)
	binary.LittleEndian.PutUint16(b[8:10], 10)
	binary.LittleEndian.PutUint16(b[10:12], 20)
	binary.LittleEndian.PutUint16(b[12:14], 5)
	binary.LittleEndian.PutUint16(b[14:16], 500)
	binary.LittleEndian.PutUint32(b[16:20], 7)
	binary.LittleEndian.PutUint32(b[20:24], 8)
	binary.LittleEndian.PutUint16(b[24:26], 42)
	cs := packet.Checksum(buf[:46])
	binary.LittleEndian.PutUint16(buf[46:48], cs)
	return buf
}

func TestDecodePsdEventInfoSuccess(t *testing.T) {
	view := buildPsdEventInfo(testDevice)
	d := NewPsdEventInfoDecoder(testDevice)
	rec, err := d.Decode(view)
	require.NoError(t, err)
	require.EqualValues(t, -100, rec.QShort)
	require.EqualValues(t, 4096, rec.QLong)
	require.EqualValues(t, 42, rec.PsdValue)
	require.Equal(t, uint64(123456789), rec.Header().RTC)
	require.Equal(t, view, rec.Raw())
}

func TestDecodePsdEventInfoWrongDevice(t *testing.T) {
	view := buildPsdEventInfo(testDevice)
	d := NewPsdEventInfoDecoder(testDevice + 1)
	_, err := d.Decode(view)
	require.ErrorIs(t, err, packet.ErrInvalidDeviceID)
}

func TestDecodePsdEventInfoWrongType(t *testing.T) {
	view := buildPsdEventInfo(testDevice)
	d := NewPhaEventInfoDecoder(testDevice)
	_, err := d.Decode(view)
	require.ErrorIs(t, err, packet.ErrUnsupportedPacketType)
}

func TestDecodePsdEventInfoChecksumMismatch(t *testing.T) {
	view := buildPsdEventInfo(testDevice)
	view[20] ^= 0xFF // flip a body byte without fixing the checksum
	d := NewPsdEventInfoDecoder(testDevice)
	_, err := d.Decode(view)
	require.ErrorIs(t, err, packet.ErrChecksumMismatch)
}

// buildWaveform constructs a valid Known-category waveform packet with the
// given samples and no padding.
func buildWaveform(deviceID uint32, t packet.Type, channelID uint16, samples []int16) []byte {
	const fixedPart = 24
	total := fixedPart + len(samples)*2 + 2
	buf := make([]byte, total)
	putHeader(buf, deviceID, t, channelID, 42)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(samples)))
	binary.LittleEndian.PutUint16(buf[20:22], 1) // decimation factor
	binary.LittleEndian.PutUint16(buf[22:24], 0) // padding length
	off := fixedPart
	for _, s := range samples {
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(s))
		off += 2
	}
	cs := packet.Checksum(buf[:off])
	binary.LittleEndian.PutUint16(buf[off:off+2], cs)
	return buf
}

func TestDecodeWaveformSuccess(t *testing.T) {
	reg := packet.NewRegistry()
	samples := []int16{1, -2, 3, -4, 5}
	view := buildWaveform(testDevice, packet.PsdWaveform, 7, samples)
	d := NewPsdWaveformDecoder(reg, testDevice)
	rec, err := d.Decode(view)
	require.NoError(t, err)
	require.Equal(t, samples, rec.Samples)
	require.EqualValues(t, 1, rec.DecimationFactor)
	require.Equal(t, uint16(7), rec.Header().ChannelID)
}

func TestDecodeWaveformChecksumMismatch(t *testing.T) {
	reg := packet.NewRegistry()
	view := buildWaveform(testDevice, packet.PsdWaveform, 7, []int16{1, 2, 3})
	view[len(view)-1] ^= 0xFF
	d := NewPsdWaveformDecoder(reg, testDevice)
	_, err := d.Decode(view)
	require.ErrorIs(t, err, packet.ErrChecksumMismatch)
}

func TestDecodeSpectrum32Success(t *testing.T) {
	reg := packet.NewRegistry()
	const fixedPart = 24
	bins := []int32{10, -20, 30}
	total := fixedPart + len(bins)*4 + 2
	buf := make([]byte, total)
	putHeader(buf, testDevice, packet.ConsistentChannelSpectrum32, 0x0007, 99)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(bins)))
	binary.LittleEndian.PutUint16(buf[20:22], 1) // spectrumType
	binary.LittleEndian.PutUint16(buf[22:24], 0) // paddingLen
	off := fixedPart
	for _, v := range bins {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(v))
		off += 4
	}
	cs := packet.Checksum(buf[:off])
	binary.LittleEndian.PutUint16(buf[off:off+2], cs)

	d := NewConsistentChannelSpectrum32Decoder(reg, testDevice)
	rec, err := d.Decode(buf)
	require.NoError(t, err)
	require.Equal(t, bins, rec.Bins)
	require.EqualValues(t, 1, rec.SpectrumType)
}

// buildDetectron2D constructs a valid Unknown-category packet with n
// entries.
func buildDetectron2D(deviceID uint32, entries []DetectronXY) []byte {
	const fixedPart = packet.HeaderSize
	recSize := 16
	sigLen := len(packet.Signature)
	total := fixedPart + len(entries)*recSize + sigLen + 2
	buf := make([]byte, total)
	putHeader(buf, deviceID, packet.Detectron2DData, 0, 777)
	off := fixedPart
	for _, e := range entries {
		binary.LittleEndian.PutUint32(buf[off:off+4], e.ChannelNum)
		binary.LittleEndian.PutUint16(buf[off+4:off+6], uint16(e.Amp1))
		binary.LittleEndian.PutUint16(buf[off+6:off+8], uint16(e.Amp2))
		binary.LittleEndian.PutUint64(buf[off+8:off+16], e.RTC)
		off += recSize
	}
	copy(buf[off:off+sigLen], packet.Signature[:])
	off += sigLen
	cs := packet.Checksum(buf[:off])
	binary.LittleEndian.PutUint16(buf[off:off+2], cs)
	return buf
}

func TestDecodeDetectron2DSuccess(t *testing.T) {
	reg := packet.NewRegistry()
	entries := []DetectronXY{
		{ChannelNum: 1, Amp1: 10, Amp2: -10, RTC: 1000},
		{ChannelNum: 2, Amp1: 20, Amp2: -20, RTC: 2000},
	}
	view := buildDetectron2D(testDevice, entries)
	d := NewDetectron2DDecoder(reg, testDevice)
	rec, err := d.Decode(view)
	require.NoError(t, err)
	require.Equal(t, entries, rec.Entries)
}

func TestDecodeNotEnoughBytes(t *testing.T) {
	d := NewPsdEventInfoDecoder(testDevice)
	_, err := d.Decode(make([]byte, 4))
	require.True(t, errors.Is(err, packet.ErrNotEnoughBytes))
}
