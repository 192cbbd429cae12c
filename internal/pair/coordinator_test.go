package pair

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kstaniek/go-ampio-server/internal/decoder"
	"github.com/kstaniek/go-ampio-server/internal/packet"
)

const testDevice = 0x42

func buildInfo(rtc uint64, channelID uint16) []byte {
	buf := make([]byte, 48)
	packet.PutHeader(buf, packet.Header{DeviceID: testDevice, PacketType: packet.PsdEventInfo, ChannelID: channelID, RTC: rtc})
	cs := packet.Checksum(buf[:46])
	binary.LittleEndian.PutUint16(buf[46:48], cs)
	return buf
}

func buildWave(rtc uint64, channelID uint16) []byte {
	const fixedPart = 24
	buf := make([]byte, fixedPart+2)
	packet.PutHeader(buf, packet.Header{DeviceID: testDevice, PacketType: packet.PsdWaveform, ChannelID: channelID, RTC: rtc})
	cs := packet.Checksum(buf[:fixedPart])
	binary.LittleEndian.PutUint16(buf[fixedPart:fixedPart+2], cs)
	return buf
}

func newCoordinator(t *testing.T) *Coordinator[decoder.PsdEventInfoRecord, decoder.WaveformRecord] {
	t.Helper()
	reg := packet.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, 2, 8, packet.PsdEventInfo, packet.PsdWaveform,
		func() *decoder.Decoder[decoder.PsdEventInfoRecord] { return decoder.NewPsdEventInfoDecoder(testDevice) },
		func() *decoder.Decoder[decoder.WaveformRecord] { return decoder.NewPsdWaveformDecoder(reg, testDevice) },
	)
}

func drain2(t *testing.T, c *Coordinator[decoder.PsdEventInfoRecord, decoder.WaveformRecord]) (Item[decoder.PsdEventInfoRecord, decoder.WaveformRecord], Item[decoder.PsdEventInfoRecord, decoder.WaveformRecord]) {
	t.Helper()
	var items [2]Item[decoder.PsdEventInfoRecord, decoder.WaveformRecord]
	for i := range items {
		select {
		case items[i] = <-c.Output():
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for item %d", i)
		}
	}
	return items[0], items[1]
}

func TestCoordinatorMatchedPair(t *testing.T) {
	c := newCoordinator(t)
	c.EnqueuePair(buildInfo(100, 3), buildWave(100, 3))
	first, second := drain2(t, c)
	require.Equal(t, KindInfo, first.Kind)
	require.Equal(t, KindWave, second.Kind)
	require.Equal(t, uint64(100), first.Info.Header().RTC)
	require.Equal(t, uint64(100), second.Wave.Header().RTC)
}

func TestCoordinatorRtcMismatch(t *testing.T) {
	c := newCoordinator(t)
	c.EnqueuePair(buildInfo(100, 3), buildWave(200, 3))
	first, second := drain2(t, c)
	require.Equal(t, KindError, first.Kind)
	require.ErrorIs(t, first.Err, packet.ErrRtcMismatch)
	require.Equal(t, KindError, second.Kind)
	require.ErrorIs(t, second.Err, packet.ErrRtcMismatch)
}

func TestCoordinatorHalfFailure(t *testing.T) {
	c := newCoordinator(t)
	badInfo := buildInfo(100, 3)
	badInfo[46] ^= 0xFF
	c.EnqueuePair(badInfo, buildWave(100, 3))
	select {
	case item := <-c.Output():
		require.Equal(t, KindError, item.Kind)
		require.ErrorIs(t, item.Err, packet.ErrChecksumMismatch)
		require.Equal(t, packet.PsdEventInfo, item.ErrType)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error item")
	}
}

func TestCoordinatorOrphanSingleInfo(t *testing.T) {
	c := newCoordinator(t)
	c.EnqueueSingleInfo(buildInfo(55, 1))
	select {
	case item := <-c.Output():
		require.Equal(t, KindInfo, item.Kind)
		require.Equal(t, uint64(55), item.Info.Header().RTC)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for orphan info item")
	}
}
