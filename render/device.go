// Package render implements the GPU resource and frame synchronization engine
// of the renderer: device memory allocation, staged host-to-device transfers,
// image and texture lifecycle, per-frame uniform updates and the
// frames-in-flight draw loop. Window, instance, device selection, swapchain
// and pipeline construction are collaborators supplied by the caller.
package render

import (
	"fmt"
	"math"

	vk "github.com/vulkan-go/vulkan"
)

// MemoryType is a snapshot of one entry of the physical device's memory type
// table.
type MemoryType struct {
	Flags vk.MemoryPropertyFlags
}

// DeviceConfig carries the handles the device provider created during
// bootstrap. The render package never creates or destroys these itself.
type DeviceConfig struct {
	Physical       vk.PhysicalDevice
	Handle         vk.Device
	GraphicsQueue  vk.Queue
	PresentQueue   vk.Queue
	GraphicsFamily uint32
}

// Device wraps the logical device together with the queues and the command
// pool the engine submits on. It owns the command pool and nothing else from
// DeviceConfig.
type Device struct {
	physical      vk.PhysicalDevice
	handle        vk.Device
	graphicsQueue vk.Queue
	presentQueue  vk.Queue

	commandPool vk.CommandPool

	// memoryTypes is the device memory type table, captured once so that
	// memory type selection is a pure table lookup.
	memoryTypes []MemoryType
}

// NewDevice wraps the supplied device handles and creates the command pool
// used for one-shot transfer submissions and for the per-image frame command
// buffers.
func NewDevice(cfg DeviceConfig) (*Device, error) {
	d := &Device{
		physical:      cfg.Physical,
		handle:        cfg.Handle,
		graphicsQueue: cfg.GraphicsQueue,
		presentQueue:  cfg.PresentQueue,
		memoryTypes:   queryMemoryTypes(cfg.Physical),
	}

	poolInfo := vk.CommandPoolCreateInfo{
		SType: vk.StructureTypeCommandPoolCreateInfo,
		Flags: vk.CommandPoolCreateFlags(
			vk.CommandPoolCreateResetCommandBufferBit,
		),
		QueueFamilyIndex: cfg.GraphicsFamily,
	}

	var commandPool vk.CommandPool
	res := vk.CreateCommandPool(d.handle, &poolInfo, nil, &commandPool)
	if err := vk.Error(res); err != nil {
		return nil, fmt.Errorf("failed to create command pool: %w", err)
	}
	d.commandPool = commandPool

	return d, nil
}

func queryMemoryTypes(physical vk.PhysicalDevice) []MemoryType {
	var memProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(physical, &memProperties)
	memProperties.Deref()

	types := make([]MemoryType, 0, memProperties.MemoryTypeCount)
	for i := uint32(0); i < memProperties.MemoryTypeCount; i++ {
		memType := memProperties.MemoryTypes[i]
		memType.Deref()

		types = append(types, MemoryType{Flags: memType.PropertyFlags})
	}

	return types
}

// Destroy releases the command pool. The wrapped device handles stay alive;
// destroying them is the device provider's job.
func (d *Device) Destroy() {
	vk.DestroyCommandPool(d.handle, d.commandPool, nil)
}

// Handle returns the wrapped logical device.
func (d *Device) Handle() vk.Device {
	return d.handle
}

// PresentQueue returns the queue presentation happens on.
func (d *Device) PresentQueue() vk.Queue {
	return d.presentQueue
}

// FindMemoryType selects the lowest-indexed memory type whose bit is set in
// typeBits and whose property flags contain all of the requested properties.
// It fails with ErrNoSuitableMemoryType when no type matches.
func (d *Device) FindMemoryType(
	typeBits uint32,
	properties vk.MemoryPropertyFlags,
) (uint32, error) {
	for i, memType := range d.memoryTypes {
		if typeBits&(1<<uint32(i)) == 0 {
			continue
		}

		if memType.Flags&properties != properties {
			continue
		}

		return uint32(i), nil
	}

	return 0, ErrNoSuitableMemoryType
}

// WaitIdle blocks until the device finished all submitted work.
func (d *Device) WaitIdle() {
	vk.DeviceWaitIdle(d.handle)
}

// NewSemaphore creates an unsignaled binary semaphore.
func (d *Device) NewSemaphore() (vk.Semaphore, error) {
	semaphoreInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	var semaphore vk.Semaphore
	res := vk.CreateSemaphore(d.handle, &semaphoreInfo, nil, &semaphore)
	if err := vk.Error(res); err != nil {
		return vk.NullSemaphore, fmt.Errorf("failed to create semaphore: %w", err)
	}

	return semaphore, nil
}

// NewFence creates a fence, optionally in the signaled state so the first
// wait on a fresh frame slot does not stall.
func (d *Device) NewFence(signaled bool) (vk.Fence, error) {
	fenceInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var fence vk.Fence
	res := vk.CreateFence(d.handle, &fenceInfo, nil, &fence)
	if err := vk.Error(res); err != nil {
		return vk.NullFence, fmt.Errorf("failed to create fence: %w", err)
	}

	return fence, nil
}

// DestroySemaphore releases a semaphore created by NewSemaphore.
func (d *Device) DestroySemaphore(semaphore vk.Semaphore) {
	vk.DestroySemaphore(d.handle, semaphore, nil)
}

// DestroyFence releases a fence created by NewFence.
func (d *Device) DestroyFence(fence vk.Fence) {
	vk.DestroyFence(d.handle, fence, nil)
}

// WaitForFence blocks until the fence is signaled. There is no timeout, the
// wait-forever sentinel is used.
func (d *Device) WaitForFence(fence vk.Fence) error {
	res := vk.WaitForFences(d.handle, 1, []vk.Fence{fence}, vk.True, math.MaxUint64)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("failed to wait for fence: %w", err)
	}
	return nil
}

// ResetFence returns the fence to the unsignaled state.
func (d *Device) ResetFence(fence vk.Fence) error {
	res := vk.ResetFences(d.handle, 1, []vk.Fence{fence})
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("failed to reset fence: %w", err)
	}
	return nil
}

// SubmitFrame submits one pre-recorded command buffer on the graphics queue,
// gated on the image-available semaphore at the color attachment output
// stage, signaling the render-finished semaphore and the slot fence.
func (d *Device) SubmitFrame(
	commandBuffer vk.CommandBuffer,
	wait vk.Semaphore,
	signal vk.Semaphore,
	fence vk.Fence,
) error {
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{wait},
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{commandBuffer},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{signal},
	}

	res := vk.QueueSubmit(d.graphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("queue submit error: %w", err)
	}

	return nil
}

// AllocateCommandBuffers allocates count primary command buffers from the
// device command pool.
func (d *Device) AllocateCommandBuffers(count int) ([]vk.CommandBuffer, error) {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}

	commandBuffers := make([]vk.CommandBuffer, count)
	res := vk.AllocateCommandBuffers(d.handle, &allocInfo, commandBuffers)
	if err := vk.Error(res); err != nil {
		return nil, fmt.Errorf("failed to allocate command buffers: %w", err)
	}

	return commandBuffers, nil
}

// FreeCommandBuffers returns command buffers to the device command pool.
func (d *Device) FreeCommandBuffers(commandBuffers []vk.CommandBuffer) {
	vk.FreeCommandBuffers(
		d.handle,
		d.commandPool,
		uint32(len(commandBuffers)),
		commandBuffers,
	)
}

// beginOneShot allocates a command buffer from the pool and starts recording
// it for a single submission.
func (d *Device) beginOneShot() (vk.CommandBuffer, error) {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		Level:              vk.CommandBufferLevelPrimary,
		CommandPool:        d.commandPool,
		CommandBufferCount: 1,
	}

	commandBuffers := make([]vk.CommandBuffer, 1)
	res := vk.AllocateCommandBuffers(d.handle, &allocInfo, commandBuffers)
	if res != vk.Success {
		return nil, fmt.Errorf("failed to allocate command buffer: %w", vk.Error(res))
	}
	commandBuffer := commandBuffers[0]

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}

	vk.BeginCommandBuffer(commandBuffer, &beginInfo)

	return commandBuffer, nil
}

// endOneShot finishes recording, submits on the graphics queue and blocks
// until the queue is idle. The command buffer is freed back to the pool in
// every case. Blocking is acceptable because one-shot submissions only
// happen during setup, never inside the frame loop.
func (d *Device) endOneShot(commandBuffer vk.CommandBuffer) error {
	commandBuffers := []vk.CommandBuffer{commandBuffer}

	defer func() {
		vk.FreeCommandBuffers(d.handle, d.commandPool, 1, commandBuffers)
	}()

	res := vk.EndCommandBuffer(commandBuffer)
	if res != vk.Success {
		return fmt.Errorf("failed end command buffer: %w", vk.Error(res))
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    commandBuffers,
	}

	res = vk.QueueSubmit(d.graphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence)
	if res != vk.Success {
		return fmt.Errorf("failed to submit to graphics queue: %w", vk.Error(res))
	}

	res = vk.QueueWaitIdle(d.graphicsQueue)
	if res != vk.Success {
		return fmt.Errorf("failed to wait on graphics queue idle: %w", vk.Error(res))
	}

	return nil
}
