package render

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// Buffer couples a Vulkan buffer with the device memory backing it. The
// memory is owned exclusively by the buffer and freed in Destroy.
type Buffer struct {
	dev *Device

	handle vk.Buffer
	memory vk.DeviceMemory
	size   vk.DeviceSize
}

// NewBuffer creates a buffer of the given size and usage and binds it to
// freshly allocated memory of a type satisfying the requested properties.
func (d *Device) NewBuffer(
	size vk.DeviceSize,
	usage vk.BufferUsageFlags,
	properties vk.MemoryPropertyFlags,
) (*Buffer, error) {
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}

	var buffer vk.Buffer
	res := vk.CreateBuffer(d.handle, &bufferInfo, nil, &buffer)
	if res != vk.Success {
		return nil, fmt.Errorf("failed to create buffer: %w", vk.Error(res))
	}

	var memRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.handle, buffer, &memRequirements)
	memRequirements.Deref()

	memTypeIndex, err := d.FindMemoryType(memRequirements.MemoryTypeBits, properties)
	if err != nil {
		vk.DestroyBuffer(d.handle, buffer, nil)
		return nil, err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memTypeIndex,
	}

	var bufferMemory vk.DeviceMemory
	res = vk.AllocateMemory(d.handle, &allocInfo, nil, &bufferMemory)
	if res != vk.Success {
		vk.DestroyBuffer(d.handle, buffer, nil)
		return nil, fmt.Errorf("failed to allocate buffer memory: %w", vk.Error(res))
	}

	res = vk.BindBufferMemory(d.handle, buffer, bufferMemory, 0)
	if res != vk.Success {
		vk.DestroyBuffer(d.handle, buffer, nil)
		vk.FreeMemory(d.handle, bufferMemory, nil)
		return nil, fmt.Errorf("failed to bind buffer memory: %w", vk.Error(res))
	}

	return &Buffer{
		dev:    d,
		handle: buffer,
		memory: bufferMemory,
		size:   size,
	}, nil
}

// Destroy releases the buffer and frees its backing memory.
func (b *Buffer) Destroy() {
	vk.DestroyBuffer(b.dev.handle, b.handle, nil)
	vk.FreeMemory(b.dev.handle, b.memory, nil)
}

// Handle returns the raw Vulkan buffer for binding into command buffers.
func (b *Buffer) Handle() vk.Buffer {
	return b.handle
}

// Size returns the byte size the buffer was created with.
func (b *Buffer) Size() vk.DeviceSize {
	return b.size
}

// Write maps the buffer memory, copies exactly len(data) bytes into it and
// unmaps again on every exit path. The buffer must be host visible.
func (b *Buffer) Write(data []byte) error {
	if vk.DeviceSize(len(data)) > b.size {
		return fmt.Errorf("write of %d bytes into buffer of size %d", len(data), b.size)
	}

	var pData unsafe.Pointer
	res := vk.MapMemory(b.dev.handle, b.memory, 0, b.size, 0, &pData)
	if res != vk.Success {
		return fmt.Errorf("failed to map buffer memory: %w", vk.Error(res))
	}
	defer vk.UnmapMemory(b.dev.handle, b.memory)

	vk.Memcopy(pData, data)
	return nil
}

// read maps the buffer memory and copies its whole content out into a fresh
// byte slice. The buffer must be host visible.
func (b *Buffer) read() ([]byte, error) {
	var pData unsafe.Pointer
	res := vk.MapMemory(b.dev.handle, b.memory, 0, b.size, 0, &pData)
	if res != vk.Success {
		return nil, fmt.Errorf("failed to map buffer memory: %w", vk.Error(res))
	}
	defer vk.UnmapMemory(b.dev.handle, b.memory)

	data := make([]byte, b.size)
	copy(data, unsafe.Slice((*byte)(pData), b.size))
	return data, nil
}

// Upload creates a device-local buffer with the given usage and fills it
// with data through a staging buffer. The copy is submitted as a one-shot
// command on the graphics queue and waited to completion, so the returned
// buffer is ready for use. The staging buffer and its memory are destroyed
// before returning.
//
// Upload blocks and is meant for setup time only.
func (d *Device) Upload(
	data []byte,
	usage vk.BufferUsageFlags,
) (*Buffer, error) {
	size := vk.DeviceSize(len(data))

	staging, err := d.NewBuffer(
		size,
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit),
	)
	if err != nil {
		return nil, fmt.Errorf("creating the staging buffer: %w", err)
	}
	defer staging.Destroy()

	if err := staging.Write(data); err != nil {
		return nil, fmt.Errorf("filling the staging buffer: %w", err)
	}

	dst, err := d.NewBuffer(
		size,
		usage|vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
	)
	if err != nil {
		return nil, fmt.Errorf("creating the device local buffer: %w", err)
	}

	if err := d.copyBuffer(staging, dst, size); err != nil {
		dst.Destroy()
		return nil, fmt.Errorf("failed to copy staging buffer into destination: %w", err)
	}

	return dst, nil
}

// Download copies a device-local buffer back into host memory through a
// host-visible readback buffer. It is the debug inverse of Upload and shares
// its blocking one-shot submission path. The source buffer must have been
// created with transfer-src usage.
func (b *Buffer) Download() ([]byte, error) {
	readback, err := b.dev.NewBuffer(
		b.size,
		vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit),
	)
	if err != nil {
		return nil, fmt.Errorf("creating the readback buffer: %w", err)
	}
	defer readback.Destroy()

	if err := b.dev.copyBuffer(b, readback, b.size); err != nil {
		return nil, fmt.Errorf("failed to copy into readback buffer: %w", err)
	}

	return readback.read()
}

func (d *Device) copyBuffer(src, dst *Buffer, size vk.DeviceSize) error {
	commandBuffer, err := d.beginOneShot()
	if err != nil {
		return fmt.Errorf("failed to begin single time commands: %w", err)
	}

	copyRegion := vk.BufferCopy{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      size,
	}

	vk.CmdCopyBuffer(
		commandBuffer,
		src.handle,
		dst.handle,
		1,
		[]vk.BufferCopy{copyRegion},
	)

	return d.endOneShot(commandBuffer)
}
