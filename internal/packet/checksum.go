package packet

import "encoding/binary"

// KnownChecksumOffset computes the checksum field offset for a Known-category
// view whose array-length field has already been validated by sizeprobe:
// FixedPart + arrayLen*ItemSize.
func KnownChecksumOffset(view []byte, layout KnownLayout) int {
	arrayLen := binary.LittleEndian.Uint32(view[layout.ArrayLenOff : layout.ArrayLenOff+4])
	return layout.FixedPart + int(arrayLen)*layout.ItemSize
}

// Checksum computes the 16-bit one's-complement checksum used by every
// packet category: interpret data as little-endian 16-bit words (a trailing
// odd byte is ignored), sum with 16-bit wrap, then return the bitwise
// complement. The caller is responsible for passing the correct window:
// Known packets exclude the padding suffix *and* the checksum field itself;
// Fixed and Unknown packets exclude only the checksum field.
func Checksum(data []byte) uint16 {
	var sum uint16
	n := len(data) - len(data)%2
	for i := 0; i < n; i += 2 {
		sum += uint16(data[i]) | uint16(data[i+1])<<8
	}
	return ^sum
}

// VerifyFixed checks the checksum of a Fixed-category packet: the checksum
// field is the last 2 bytes of view and covers everything before it.
func VerifyFixed(view []byte) bool {
	if len(view) < 2 {
		return false
	}
	want := readU16(view[len(view)-2:])
	got := Checksum(view[:len(view)-2])
	return got == want
}

// VerifyKnown checks the checksum of a Known-category packet. checksumOff is
// the byte offset of the 2-byte checksum field (FixedPart + arrayLen*itemSize);
// the checksum covers [0, checksumOff) and excludes the padding suffix.
func VerifyKnown(view []byte, checksumOff int) bool {
	if checksumOff < 0 || checksumOff+2 > len(view) {
		return false
	}
	want := readU16(view[checksumOff : checksumOff+2])
	got := Checksum(view[:checksumOff])
	return got == want
}

// VerifyUnknown checks the checksum of an Unknown-category packet: the
// checksum is the last 2 bytes of view and covers everything before it
// (same window rule as Fixed).
func VerifyUnknown(view []byte) bool {
	return VerifyFixed(view)
}

func readU16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}
