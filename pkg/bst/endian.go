package bst

import (
	"encoding/binary"
	"unsafe"

	"golang.org/x/sys/cpu"

	"imagestack/internal/expects"
	"imagestack/pkg/imagestack"
)

// HostByteOrder returns the byte order of the running machine.
func HostByteOrder() binary.ByteOrder {
	if cpu.IsBigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// ChangeEndianness reverses the byte order of v.
func ChangeEndianness[T imagestack.Scalar](v T) T {
	b := asBytes(unsafe.Slice(&v, 1))
	swapInPlace(b, len(b))
	return v
}

func sizeOf[T imagestack.Scalar]() int {
	var v T
	return int(unsafe.Sizeof(v))
}

// asBytes reinterprets s as its backing bytes in host order.
func asBytes[T imagestack.Scalar](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*sizeOf[T]())
}

// swapInPlace reverses every width-byte word of b.
func swapInPlace(b []byte, width int) {
	switch width {
	case 1:
	case 2:
		for i := 0; i+2 <= len(b); i += 2 {
			binary.BigEndian.PutUint16(b[i:], binary.LittleEndian.Uint16(b[i:]))
		}
	case 4:
		for i := 0; i+4 <= len(b); i += 4 {
			binary.BigEndian.PutUint32(b[i:], binary.LittleEndian.Uint32(b[i:]))
		}
	case 8:
		for i := 0; i+8 <= len(b); i += 8 {
			binary.BigEndian.PutUint64(b[i:], binary.LittleEndian.Uint64(b[i:]))
		}
	default:
		expects.That(false, "unsupported element width %d", width)
	}
}

// toHost converts big-endian words in b to host order in place.
func toHost(b []byte, width int) {
	if !cpu.IsBigEndian {
		swapInPlace(b, width)
	}
}
