package unsafer

import (
	"reflect"
	"unsafe"
)

// SliceToBytes interprets an arbitrary input slice as a byte slice.
//
// Note that the returned slice points to the same underlying data in memory. It
// does not make a copy.
func SliceToBytes[T any](input []T) []byte {
	header := *(*reflect.SliceHeader)(unsafe.Pointer(&input))
	header.Len = int(unsafe.Sizeof(input[0])) * len(input)
	header.Cap = header.Len
	bytesSlice := *(*[]byte)(unsafe.Pointer(&header))
	return bytesSlice
}

// SliceBytesToUint32 reinterprets a byte slice as a slice of uint32 words.
// The input length must be a multiple of four bytes.
//
// As with SliceToBytes the returned slice aliases the input memory.
func SliceBytesToUint32(input []byte) []uint32 {
	header := *(*reflect.SliceHeader)(unsafe.Pointer(&input))
	header.Len = len(input) / 4
	header.Cap = header.Len
	words := *(*[]uint32)(unsafe.Pointer(&header))
	return words
}
