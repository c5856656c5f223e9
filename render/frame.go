package render

import (
	"fmt"
	"time"

	vk "github.com/vulkan-go/vulkan"
)

// Swapchain is the presentation surface a FrameSync draws to. Acquire hands
// out the next image index, signaling the given semaphore once the image is
// actually free. Present queues the image for display, waiting on the given
// semaphore.
//
// Both report ErrSwapchainOutOfDate when the surface no longer matches the
// swapchain, and Present reports ErrSwapchainSuboptimal when presentation
// succeeded but the swapchain is due for recreation.
type Swapchain interface {
	Acquire(signal vk.Semaphore) (uint32, error)
	Present(wait vk.Semaphore, imageIndex uint32) error
}

// SyncDevice is the slice of the device a FrameSync needs: creating and
// destroying its synchronization objects, fence waits and frame submission.
// *Device implements it.
type SyncDevice interface {
	NewSemaphore() (vk.Semaphore, error)
	NewFence(signaled bool) (vk.Fence, error)
	DestroySemaphore(semaphore vk.Semaphore)
	DestroyFence(fence vk.Fence)

	WaitForFence(fence vk.Fence) error
	ResetFence(fence vk.Fence) error
	SubmitFrame(
		commandBuffer vk.CommandBuffer,
		wait vk.Semaphore,
		signal vk.Semaphore,
		fence vk.Fence,
	) error
}

// FrameUniforms receives the per-frame uniform refresh once the target image
// is known to be safe to write. *UniformSet implements it.
type FrameUniforms interface {
	Update(imageIndex uint32, delta time.Duration) error
}

// frameSlot is the synchronization state of one in-flight frame.
type frameSlot struct {
	imageAvailable vk.Semaphore
	renderFinished vk.Semaphore
	inFlight       vk.Fence
}

// noOwner marks a swapchain image no frame slot has rendered to yet.
const noOwner = -1

// FrameSync runs the frame loop over a fixed number of in-flight frame
// slots. Each slot carries its own semaphore pair and fence. On top of the
// slot fences it tracks which slot last rendered to each swapchain image, so
// that reusing an image acquired out of slot order still waits for the
// previous work on it.
type FrameSync struct {
	dev      SyncDevice
	chain    Swapchain
	uniforms FrameUniforms

	commands   []vk.CommandBuffer
	slots      []frameSlot
	current    int
	imageOwner []int
}

// NewFrameSync creates framesInFlight slots with fresh synchronization
// objects. Slot fences start signaled so the first pass over each slot does
// not block. commands holds one pre-recorded command buffer per swapchain
// image.
func NewFrameSync(
	dev SyncDevice,
	chain Swapchain,
	uniforms FrameUniforms,
	commands []vk.CommandBuffer,
	framesInFlight int,
) (*FrameSync, error) {
	if framesInFlight < 1 {
		return nil, fmt.Errorf("at least one frame in flight is required, got %d", framesInFlight)
	}

	f := &FrameSync{
		dev:      dev,
		chain:    chain,
		uniforms: uniforms,
		commands: commands,
	}
	f.resetOwners(len(commands))

	for i := 0; i < framesInFlight; i++ {
		slot := frameSlot{}
		var err error

		if slot.imageAvailable, err = dev.NewSemaphore(); err != nil {
			f.Destroy()
			return nil, fmt.Errorf("failed to create image available semaphore: %w", err)
		}
		if slot.renderFinished, err = dev.NewSemaphore(); err != nil {
			dev.DestroySemaphore(slot.imageAvailable)
			f.Destroy()
			return nil, fmt.Errorf("failed to create render finished semaphore: %w", err)
		}
		if slot.inFlight, err = dev.NewFence(true); err != nil {
			dev.DestroySemaphore(slot.imageAvailable)
			dev.DestroySemaphore(slot.renderFinished)
			f.Destroy()
			return nil, fmt.Errorf("failed to create in flight fence: %w", err)
		}

		f.slots = append(f.slots, slot)
	}

	return f, nil
}

// DrawFrame runs one frame tick: wait for the current slot's previous work,
// acquire an image, refresh its uniforms, make sure no older frame still
// targets that image, submit and present. The slot cursor advances on
// success and on a suboptimal present.
//
// ErrSwapchainOutOfDate and ErrSwapchainSuboptimal are recoverable. The
// caller recreates the swapchain and calls Reset before the next tick.
func (f *FrameSync) DrawFrame(delta time.Duration) error {
	slot := &f.slots[f.current]

	if err := f.dev.WaitForFence(slot.inFlight); err != nil {
		return err
	}

	imageIndex, err := f.chain.Acquire(slot.imageAvailable)
	if err != nil {
		return err
	}
	if int(imageIndex) >= len(f.commands) {
		return fmt.Errorf("acquired image index %d out of range", imageIndex)
	}

	if err := f.uniforms.Update(imageIndex, delta); err != nil {
		return err
	}

	// A previous frame may still be rendering to this image if images come
	// back out of slot order.
	if owner := f.imageOwner[imageIndex]; owner != noOwner && owner != f.current {
		if err := f.dev.WaitForFence(f.slots[owner].inFlight); err != nil {
			return err
		}
	}
	f.imageOwner[imageIndex] = f.current

	if err := f.dev.ResetFence(slot.inFlight); err != nil {
		return err
	}

	err = f.dev.SubmitFrame(
		f.commands[imageIndex],
		slot.imageAvailable,
		slot.renderFinished,
		slot.inFlight,
	)
	if err != nil {
		return err
	}

	err = f.chain.Present(slot.renderFinished, imageIndex)
	if err != nil {
		// The frame was submitted, so the cursor still moves on even when
		// presentation asks for a recreation.
		f.current = (f.current + 1) % len(f.slots)
		return err
	}

	f.current = (f.current + 1) % len(f.slots)
	return nil
}

// Reset rebinds the engine to a recreated swapchain: new pre-recorded
// command buffers and a cleared image ownership table. The frame slots and
// their synchronization objects carry over.
func (f *FrameSync) Reset(chain Swapchain, commands []vk.CommandBuffer) {
	f.chain = chain
	f.commands = commands
	f.resetOwners(len(commands))
}

// SetUniforms swaps the uniform receiver, used when the per-image uniform
// set is rebuilt after a swapchain recreation.
func (f *FrameSync) SetUniforms(uniforms FrameUniforms) {
	f.uniforms = uniforms
}

func (f *FrameSync) resetOwners(imageCount int) {
	f.imageOwner = make([]int, imageCount)
	for i := range f.imageOwner {
		f.imageOwner[i] = noOwner
	}
}

// Destroy releases all slot synchronization objects. The device must be idle.
func (f *FrameSync) Destroy() {
	for _, slot := range f.slots {
		f.dev.DestroySemaphore(slot.imageAvailable)
		f.dev.DestroySemaphore(slot.renderFinished)
		f.dev.DestroyFence(slot.inFlight)
	}
	f.slots = nil
}
