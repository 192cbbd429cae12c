package framer

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kstaniek/go-ampio-server/internal/packet"
)

const testDevice = 7

func validPsdEventInfo(rtc uint64) []byte {
	buf := make([]byte, 48)
	packet.PutHeader(buf, packet.Header{DeviceID: testDevice, PacketType: packet.PsdEventInfo, RTC: rtc})
	cs := packet.Checksum(buf[:46])
	binary.LittleEndian.PutUint16(buf[46:48], cs)
	return buf
}

func TestFramerEmitsOneSliceForOneChunk(t *testing.T) {
	f := New(testDevice, packet.NewRegistry())
	pkt := validPsdEventInfo(1)

	batch := f.Push(pkt)
	require.Len(t, batch, 1)
	require.Equal(t, pkt, batch[0].Bytes)
	require.Equal(t, Scanning, f.State())
}

// TestFramerByteAtATimeMatchesOneChunk is property 4 from spec.md 8:
// feeding a stream one byte at a time must emit the exact same sequence of
// slices as feeding it in one chunk.
func TestFramerByteAtATimeMatchesOneChunk(t *testing.T) {
	var stream []byte
	stream = append(stream, validPsdEventInfo(1)...)
	stream = append(stream, validPsdEventInfo(2)...)
	stream = append(stream, validPsdEventInfo(3)...)

	whole := New(testDevice, packet.NewRegistry())
	wholeBatch := whole.Push(stream)

	oneAtATime := New(testDevice, packet.NewRegistry())
	var trickleBatch []Slice
	for _, b := range stream {
		trickleBatch = append(trickleBatch, oneAtATime.Push([]byte{b})...)
	}

	require.Len(t, wholeBatch, 3)
	require.Len(t, trickleBatch, 3)
	for i := range wholeBatch {
		require.Equal(t, wholeBatch[i].Bytes, trickleBatch[i].Bytes)
		require.Equal(t, wholeBatch[i].Header, trickleBatch[i].Header)
	}
}

func TestFramerWaitsForMoreBytesOnTruncatedPacket(t *testing.T) {
	f := New(testDevice, packet.NewRegistry())
	pkt := validPsdEventInfo(10)

	batch := f.Push(pkt[:30])
	require.Empty(t, batch)
	require.Equal(t, WaitingForBytes, f.State())

	batch = f.Push(pkt[30:])
	require.Len(t, batch, 1)
	require.Equal(t, pkt, batch[0].Bytes)
}

func TestFramerRecoversFromMalformedLeadingBytes(t *testing.T) {
	f := New(testDevice, packet.NewRegistry())
	good := validPsdEventInfo(42)

	garbage := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x01, 0x02}
	stream := append(append([]byte{}, garbage...), good...)

	batch := f.Push(stream)
	require.Len(t, batch, 1)
	require.Equal(t, good, batch[0].Bytes)
}

func TestFramerSetMeasurementStoppedDropsAndClears(t *testing.T) {
	f := New(testDevice, packet.NewRegistry())
	f.Push(validPsdEventInfo(1)[:10])
	require.Equal(t, WaitingForBytes, f.State())

	f.SetMeasurementStopped(true)
	require.Equal(t, Scanning, f.State())
	require.Empty(t, f.Push(validPsdEventInfo(2)))

	f.SetMeasurementStopped(false)
	batch := f.Push(validPsdEventInfo(3))
	require.Len(t, batch, 1)
}

func TestFramerTickDrainsOnlyWhenWaiting(t *testing.T) {
	f := New(testDevice, packet.NewRegistry())
	require.Empty(t, f.Tick()) // Scanning state: Tick is a no-op

	f.Push(validPsdEventInfo(1)[:10])
	require.Equal(t, WaitingForBytes, f.State())
	require.Empty(t, f.Tick()) // still no new bytes to complete the packet
}
