package device

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kstaniek/go-ampio-server/internal/decoder"
	"github.com/kstaniek/go-ampio-server/internal/event"
	"github.com/kstaniek/go-ampio-server/internal/framer"
	"github.com/kstaniek/go-ampio-server/internal/pair"
	"github.com/kstaniek/go-ampio-server/internal/packet"
	"github.com/kstaniek/go-ampio-server/internal/workerpool"
)

const testDevice = 0x99

func buildPsdEventInfo(rtc uint64, channelID uint16) []byte {
	buf := make([]byte, 48)
	packet.PutHeader(buf, packet.Header{DeviceID: testDevice, PacketType: packet.PsdEventInfo, ChannelID: channelID, RTC: rtc})
	cs := packet.Checksum(buf[:46])
	binary.LittleEndian.PutUint16(buf[46:48], cs)
	return buf
}

func buildPsdWaveform(rtc uint64, channelID uint16) []byte {
	const fixedPart = 24
	const paddingLen = 3 // 24 + 2 + 3*2 = 32 bytes, a multiple of 8
	buf := make([]byte, fixedPart+2+paddingLen*2)
	packet.PutHeader(buf, packet.Header{DeviceID: testDevice, PacketType: packet.PsdWaveform, ChannelID: channelID, RTC: rtc})
	binary.LittleEndian.PutUint16(buf[22:24], paddingLen)
	cs := packet.Checksum(buf[:fixedPart])
	binary.LittleEndian.PutUint16(buf[fixedPart:fixedPart+2], cs)
	return buf
}

func TestPacketBufferRoutesMatchedPairThroughCoordinator(t *testing.T) {
	reg := packet.NewRegistry()
	pb := New(testDevice, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	coord := pair.New(ctx, 1, 4, packet.PsdEventInfo, packet.PsdWaveform,
		func() *decoder.Decoder[decoder.PsdEventInfoRecord] { return decoder.NewPsdEventInfoDecoder(testDevice) },
		func() *decoder.Decoder[decoder.WaveformRecord] { return decoder.NewPsdWaveformDecoder(reg, testDevice) },
	)
	pb.RegisterPair(packet.PsdEventInfo, packet.PsdWaveform, coord)

	var wire bytes.Buffer
	wire.Write(buildPsdEventInfo(500, 2))
	wire.Write(buildPsdWaveform(500, 2))

	require.NoError(t, pb.ProcessData(&wire))

	first, second := drainPairItems(t, coord)
	require.Equal(t, pair.KindInfo, first.Kind)
	require.Equal(t, pair.KindWave, second.Kind)
	require.Equal(t, uint64(500), first.Info.Header().RTC)
}

func drainPairItems(t *testing.T, c *pair.Coordinator[decoder.PsdEventInfoRecord, decoder.WaveformRecord]) (pair.Item[decoder.PsdEventInfoRecord, decoder.WaveformRecord], pair.Item[decoder.PsdEventInfoRecord, decoder.WaveformRecord]) {
	t.Helper()
	var items [2]pair.Item[decoder.PsdEventInfoRecord, decoder.WaveformRecord]
	for i := range items {
		select {
		case items[i] = <-c.Output():
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for item %d", i)
		}
	}
	return items[0], items[1]
}

func TestPacketBufferRoutesUnpairedTypeThroughParser(t *testing.T) {
	reg := packet.NewRegistry()
	pb := New(testDevice, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := workerpool.New(ctx, 2, 4, packet.PsdEventInfo, func() *decoder.Decoder[decoder.PsdEventInfoRecord] {
		return decoder.NewPsdEventInfoDecoder(testDevice)
	})
	pb.RegisterParser(packet.PsdEventInfo, pool)

	var wire bytes.Buffer
	wire.Write(buildPsdEventInfo(1, 0))
	require.NoError(t, pb.ProcessData(&wire))

	select {
	case res := <-pool.Output():
		require.NoError(t, res.Err)
		require.Equal(t, uint64(1), res.Record.Header().RTC)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for decoded result")
	}
}

func TestPacketBufferOnParsedReceivesPublishedBatch(t *testing.T) {
	reg := packet.NewRegistry()
	pb := New(testDevice, reg)

	received := make(chan int, 1)
	unsub := pb.OnParsed(func(batch []event.Event) { received <- len(batch) })
	defer unsub()

	pb.PublishParsed([]event.Event{{Kind: event.KindInfo, DeviceID: testDevice}, {Kind: event.KindWaveform, DeviceID: testDevice}})

	select {
	case n := <-received:
		require.Equal(t, 2, n)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnParsed callback")
	}
}

func TestPacketBufferOnParsedRawReceivesUndecodedSlices(t *testing.T) {
	reg := packet.NewRegistry()
	pb := New(testDevice, reg)

	received := make(chan []RawSlice, 1)
	unsub := pb.OnParsedRaw(func(batch []RawSlice) { received <- batch })
	defer unsub()

	var wire bytes.Buffer
	wire.Write(buildPsdEventInfo(1, 0))
	require.NoError(t, pb.ProcessData(&wire))

	select {
	case batch := <-received:
		require.Len(t, batch, 1)
		require.Equal(t, packet.PsdEventInfo, batch[0].Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnParsedRaw callback")
	}
}

func TestPacketBufferOnParsedUnsubscribeStopsDelivery(t *testing.T) {
	reg := packet.NewRegistry()
	pb := New(testDevice, reg)

	received := make(chan int, 1)
	unsub := pb.OnParsed(func(batch []event.Event) { received <- len(batch) })
	unsub()

	pb.PublishParsed([]event.Event{{Kind: event.KindInfo}})

	select {
	case <-received:
		t.Fatal("callback fired after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManagerConnectDisconnect(t *testing.T) {
	reg := packet.NewRegistry()
	wired := 0
	mgr := NewManager(reg, func(pb *PacketBuffer) { wired++ })

	pb := mgr.Connect(testDevice)
	require.NotNil(t, pb)
	require.Equal(t, 1, wired)
	require.Equal(t, 1, mgr.Count())

	same := mgr.Connect(testDevice)
	require.Same(t, pb, same)
	require.Equal(t, 1, wired)

	got, ok := mgr.Disconnect(testDevice)
	require.True(t, ok)
	require.Same(t, pb, got)
	require.Equal(t, 0, mgr.Count())
}

func TestMeasurementStateGatesAllDevices(t *testing.T) {
	reg := packet.NewRegistry()
	mgr := NewManager(reg, nil)
	mgr.Connect(testDevice)
	mgr.Connect(testDevice + 1)

	ms := NewMeasurementState(mgr)
	ms.Stopped()
	for _, id := range []uint32{testDevice, testDevice + 1} {
		pb, _ := mgr.Get(id)
		var wire bytes.Buffer
		wire.Write(buildPsdEventInfo(1, 0))
		require.NoError(t, pb.ProcessData(&wire))
		require.Equal(t, 0, wire.Len())                     // bytes consumed by Read regardless
		require.Equal(t, framer.Scanning, pb.FramerState()) // dropped before framing
	}

	ms.Started()
	pb, _ := mgr.Get(testDevice)
	var wire bytes.Buffer
	wire.Write(buildPsdEventInfo(1, 0))
	require.NoError(t, pb.ProcessData(&wire))
	require.Equal(t, framer.WaitingForBytes, pb.FramerState()) // framed again
}
