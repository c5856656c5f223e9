package render

import "errors"

var (
	// ErrNoSuitableMemoryType is returned when the device exposes no memory
	// type matching both the resource requirements and the requested property
	// flags. It is fatal for the allocation which asked for it.
	ErrNoSuitableMemoryType = errors.New("no suitable memory type")

	// ErrUnsupportedLayoutTransition is returned for an (old, new) image
	// layout pair outside of the supported transition table. It indicates a
	// programming error, never an expected runtime condition.
	ErrUnsupportedLayoutTransition = errors.New("unsupported layout transition")

	// ErrSwapchainOutOfDate is returned by the frame engine when the
	// swapchain no longer matches the surface. The caller is expected to
	// recreate the swapchain and call Reset before drawing again.
	ErrSwapchainOutOfDate = errors.New("swapchain is out of date")

	// ErrSwapchainSuboptimal is returned after a present which succeeded but
	// reported the swapchain as suboptimal for the surface. Handled the same
	// way as ErrSwapchainOutOfDate.
	ErrSwapchainSuboptimal = errors.New("swapchain is suboptimal")
)
