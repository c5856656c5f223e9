package unsafer

import (
	"unsafe"
)

// StructToBytes interprets the memory of an arbitrary struct as a byte slice
// covering exactly unsafe.Sizeof(*input) bytes.
//
// The returned slice aliases the struct memory. It does not make a copy.
func StructToBytes[T any](input *T) []byte {
	size := unsafe.Sizeof(*input)
	return unsafe.Slice((*byte)(unsafe.Pointer(input)), size)
}
