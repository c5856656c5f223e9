package main

import (
	"cmp"
	"fmt"
	"math"

	"vulkan-render/render"

	vk "github.com/vulkan-go/vulkan"
)

// SwapChain wraps the Vulkan swapchain together with its images and views.
// It implements render.Swapchain, translating the Vulkan out-of-date and
// suboptimal results into the engine's recoverable errors.
type SwapChain struct {
	device       vk.Device
	presentQueue vk.Queue

	handle vk.Swapchain
	images []vk.Image
	views  []vk.ImageView
	format vk.Format
	extent vk.Extent2D
}

// Acquire hands out the index of the next swapchain image, signaling the
// given semaphore when the image is actually ready. A suboptimal result on
// acquire still returns the image, the frame is drawn and presentation
// reports the condition instead.
func (s *SwapChain) Acquire(signal vk.Semaphore) (uint32, error) {
	var imageIndex uint32
	res := vk.AcquireNextImage(
		s.device,
		s.handle,
		math.MaxUint64,
		signal,
		vk.Fence(vk.NullHandle),
		&imageIndex,
	)

	if res == vk.ErrorOutOfDate {
		return 0, render.ErrSwapchainOutOfDate
	}
	if res != vk.Success && res != vk.Suboptimal {
		return 0, fmt.Errorf("failed to acquire swap chain image: %w", vk.Error(res))
	}

	return imageIndex, nil
}

// Present queues the image for display once the wait semaphore signals.
func (s *SwapChain) Present(wait vk.Semaphore, imageIndex uint32) error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{wait},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.handle},
		PImageIndices:      []uint32{imageIndex},
	}

	res := vk.QueuePresent(s.presentQueue, &presentInfo)
	switch res {
	case vk.ErrorOutOfDate:
		return render.ErrSwapchainOutOfDate
	case vk.Suboptimal:
		return render.ErrSwapchainSuboptimal
	}
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("failed to present swap chain image: %w", err)
	}

	return nil
}

// ImageCount returns the number of images in the swapchain.
func (s *SwapChain) ImageCount() int {
	return len(s.images)
}

// Extent returns the swapchain image extent.
func (s *SwapChain) Extent() vk.Extent2D {
	return s.extent
}

// Format returns the swapchain image format.
func (s *SwapChain) Format() vk.Format {
	return s.format
}

// Destroy releases the image views and the swapchain itself.
func (s *SwapChain) Destroy() {
	for _, view := range s.views {
		vk.DestroyImageView(s.device, view, nil)
	}
	s.views = nil

	if s.handle != vk.NullSwapchain {
		vk.DestroySwapchain(s.device, s.handle, nil)
		s.handle = vk.NullSwapchain
	}
}

func (a *renderApp) createSwapChain() error {
	swapChainSupport := a.querySwapChainSupport(a.physicalDevice)

	surfaceFormat := a.chooseSwapSurfaceFormat(swapChainSupport.formats)
	presentMode := a.chooseSwapPresentMode(swapChainSupport.presentModes)
	extent := a.chooseSwapExtent(swapChainSupport.capabilities)

	imageCount := swapChainSupport.capabilities.MinImageCount + 1
	if swapChainSupport.capabilities.MaxImageCount > 0 &&
		imageCount > swapChainSupport.capabilities.MaxImageCount {
		imageCount = swapChainSupport.capabilities.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          a.surface,
		MinImageCount:    imageCount,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageFormat:      surfaceFormat.Format,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     swapChainSupport.capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
	}

	indices := a.findQueueFamilies(a.physicalDevice)
	if indices.Graphics.Get() != indices.Present.Get() {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{
			indices.Graphics.Get(),
			indices.Present.Get(),
		}
	} else {
		createInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var swapChain vk.Swapchain
	res := vk.CreateSwapchain(a.device, &createInfo, nil, &swapChain)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("failed to create swap chain: %w", err)
	}

	var imagesCount uint32
	vk.GetSwapchainImages(a.device, swapChain, &imagesCount, nil)

	images := make([]vk.Image, imagesCount)
	vk.GetSwapchainImages(a.device, swapChain, &imagesCount, images)

	chain := &SwapChain{
		device:       a.device,
		presentQueue: a.dev.PresentQueue(),
		handle:       swapChain,
		images:       images,
		format:       surfaceFormat.Format,
		extent:       extent,
	}

	for i, image := range images {
		view, err := a.dev.NewImageView(
			image,
			surfaceFormat.Format,
			vk.ImageAspectFlags(vk.ImageAspectColorBit),
		)
		if err != nil {
			chain.Destroy()
			return fmt.Errorf("failed to create view for image %d: %w", i, err)
		}
		chain.views = append(chain.views, view)
	}

	a.swapChain = chain
	return nil
}

// swapChainSupportDetails describes a present surface. The type is suitable for
// passing around many details of the surface between functions.
type swapChainSupportDetails struct {
	capabilities vk.SurfaceCapabilities
	formats      []vk.SurfaceFormat
	presentModes []vk.PresentMode
}

func (a *renderApp) querySwapChainSupport(
	device vk.PhysicalDevice,
) swapChainSupportDetails {
	details := swapChainSupportDetails{}

	var capabilities vk.SurfaceCapabilities
	res := vk.GetPhysicalDeviceSurfaceCapabilities(device, a.surface, &capabilities)
	if err := vk.Error(res); err != nil {
		panic(fmt.Sprintf("failed to query device surface capabilities: %s", err))
	}
	capabilities.Deref()
	capabilities.CurrentExtent.Deref()
	capabilities.MinImageExtent.Deref()
	capabilities.MaxImageExtent.Deref()

	details.capabilities = capabilities

	var formatCount uint32
	res = vk.GetPhysicalDeviceSurfaceFormats(device, a.surface, &formatCount, nil)
	if err := vk.Error(res); err != nil {
		panic(fmt.Sprintf("failed to query device surface formats: %s", err))
	}

	if formatCount != 0 {
		formats := make([]vk.SurfaceFormat, formatCount)
		vk.GetPhysicalDeviceSurfaceFormats(device, a.surface, &formatCount, formats)
		for _, format := range formats {
			format.Deref()
			details.formats = append(details.formats, format)
		}
	}

	var presentModeCount uint32
	res = vk.GetPhysicalDeviceSurfacePresentModes(
		device, a.surface, &presentModeCount, nil,
	)
	if err := vk.Error(res); err != nil {
		panic(fmt.Sprintf("failed to query device surface present modes: %s", err))
	}

	if presentModeCount != 0 {
		presentModes := make([]vk.PresentMode, presentModeCount)
		vk.GetPhysicalDeviceSurfacePresentModes(
			device, a.surface, &presentModeCount, presentModes,
		)
		details.presentModes = presentModes
	}

	return details
}

func (a *renderApp) chooseSwapSurfaceFormat(
	availableFormats []vk.SurfaceFormat,
) vk.SurfaceFormat {
	for _, format := range availableFormats {
		if format.Format == vk.FormatB8g8r8a8Srgb &&
			format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format
		}
	}

	return availableFormats[0]
}

func (a *renderApp) chooseSwapPresentMode(
	available []vk.PresentMode,
) vk.PresentMode {
	for _, mode := range available {
		if mode == vk.PresentModeMailbox {
			return mode
		}
	}

	return vk.PresentModeFifo
}

func (a *renderApp) chooseSwapExtent(
	capabilities vk.SurfaceCapabilities,
) vk.Extent2D {
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		return capabilities.CurrentExtent
	}

	width, height := a.window.GetFramebufferSize()

	actualExtent := vk.Extent2D{
		Width:  uint32(width),
		Height: uint32(height),
	}

	actualExtent.Width = clamp(
		actualExtent.Width,
		capabilities.MinImageExtent.Width,
		capabilities.MaxImageExtent.Width,
	)

	actualExtent.Height = clamp(
		actualExtent.Height,
		capabilities.MinImageExtent.Height,
		capabilities.MaxImageExtent.Height,
	)

	return actualExtent
}

func clamp[T cmp.Ordered](val, min, max T) T {
	if val < min {
		val = min
	}
	if val > max {
		val = max
	}
	return val
}
