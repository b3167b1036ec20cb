// Package bigendian provides fixed-width big-endian encodings for keys and
// values that must preserve lexicographic ordering equal to numeric ordering
// in the underlying sorted key-value store.
package bigendian

import "encoding/binary"

// PutUint64 appends the big-endian encoding of v to dst.
func PutUint64(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// Uint64 decodes a big-endian uint64 from the front of b.
func Uint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// PutUint32 appends the big-endian encoding of v to dst.
func PutUint32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

// Uint32 decodes a big-endian uint32 from the front of b.
func Uint32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// PutUint16 appends the big-endian encoding of v to dst.
func PutUint16(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}

// Uint16 decodes a big-endian uint16 from the front of b.
func Uint16(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}
