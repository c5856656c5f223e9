package render

import (
	"fmt"
	"image"

	vk "github.com/vulkan-go/vulkan"
)

// ImageProperties declares the shape of an image resource: its extent,
// format, usage and the aspect its view covers. All images are 2-D,
// single-sample and single-mip.
type ImageProperties struct {
	Width  uint32
	Height uint32
	Format vk.Format
	Usage  vk.ImageUsageFlags
	Aspect vk.ImageAspectFlags
}

// ImageSpec describes one of the image variants the renderer knows how to
// build. A spec reports the image properties and prepares a freshly bound
// image for its intended use: transitioning layouts and, for textures,
// copying the texel data in.
type ImageSpec interface {
	Properties() ImageProperties

	prepare(dev *Device, image vk.Image) error
}

// Image is an image resource together with its view and the device memory
// backing it.
type Image struct {
	dev *Device

	handle vk.Image
	view   vk.ImageView
	memory vk.DeviceMemory
	props  ImageProperties
}

// NewImage creates an image with the properties declared by spec, binds
// allocator-selected memory with the requested property flags, runs the
// spec's layout preparation and creates the image view.
func (d *Device) NewImage(
	spec ImageSpec,
	memoryProperties vk.MemoryPropertyFlags,
) (*Image, error) {
	props := spec.Properties()

	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  props.Width,
			Height: props.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        props.Format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         props.Usage,
		SharingMode:   vk.SharingModeExclusive,
		Samples:       vk.SampleCount1Bit,
	}

	var image vk.Image
	res := vk.CreateImage(d.handle, &imageInfo, nil, &image)
	if res != vk.Success {
		return nil, fmt.Errorf("failed to create an image: %w", vk.Error(res))
	}

	var memRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.handle, image, &memRequirements)
	memRequirements.Deref()

	memTypeIndex, err := d.FindMemoryType(
		memRequirements.MemoryTypeBits,
		memoryProperties,
	)
	if err != nil {
		vk.DestroyImage(d.handle, image, nil)
		return nil, err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memTypeIndex,
	}

	var imageMemory vk.DeviceMemory
	res = vk.AllocateMemory(d.handle, &allocInfo, nil, &imageMemory)
	if res != vk.Success {
		vk.DestroyImage(d.handle, image, nil)
		return nil, fmt.Errorf("failed to allocate image memory: %w", vk.Error(res))
	}

	res = vk.BindImageMemory(d.handle, image, imageMemory, 0)
	if res != vk.Success {
		vk.DestroyImage(d.handle, image, nil)
		vk.FreeMemory(d.handle, imageMemory, nil)
		return nil, fmt.Errorf("failed to bind image memory: %w", vk.Error(res))
	}

	if err := spec.prepare(d, image); err != nil {
		vk.DestroyImage(d.handle, image, nil)
		vk.FreeMemory(d.handle, imageMemory, nil)
		return nil, fmt.Errorf("preparing image for use: %w", err)
	}

	view, err := d.NewImageView(image, props.Format, props.Aspect)
	if err != nil {
		vk.DestroyImage(d.handle, image, nil)
		vk.FreeMemory(d.handle, imageMemory, nil)
		return nil, err
	}

	return &Image{
		dev:    d,
		handle: image,
		view:   view,
		memory: imageMemory,
		props:  props,
	}, nil
}

// Destroy releases the view, the image and its backing memory.
func (i *Image) Destroy() {
	vk.DestroyImageView(i.dev.handle, i.view, nil)
	vk.DestroyImage(i.dev.handle, i.handle, nil)
	vk.FreeMemory(i.dev.handle, i.memory, nil)
}

// View returns the image view for use as an attachment or in a descriptor.
func (i *Image) View() vk.ImageView {
	return i.view
}

// Properties returns the properties the image was created with.
func (i *Image) Properties() ImageProperties {
	return i.props
}

// NewImageView creates a 2-D view over the given image.
func (d *Device) NewImageView(
	image vk.Image,
	format vk.Format,
	aspectFlags vk.ImageAspectFlags,
) (vk.ImageView, error) {
	createInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectFlags,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var imageView vk.ImageView
	res := vk.CreateImageView(d.handle, &createInfo, nil, &imageView)
	if err := vk.Error(res); err != nil {
		return vk.NullImageView, fmt.Errorf("failed to create image view: %w", err)
	}

	return imageView, nil
}

// transitionRule is the fixed set of barrier parameters for one supported
// layout transition.
type transitionRule struct {
	srcAccess vk.AccessFlags
	dstAccess vk.AccessFlags
	srcStage  vk.PipelineStageFlags
	dstStage  vk.PipelineStageFlags
}

// layoutTransitionRule looks up the barrier parameters for an (old, new)
// layout pair. Pairs outside the table fail with
// ErrUnsupportedLayoutTransition before anything is recorded.
func layoutTransitionRule(
	oldLayout vk.ImageLayout,
	newLayout vk.ImageLayout,
) (transitionRule, error) {
	switch {
	case oldLayout == vk.ImageLayoutUndefined &&
		newLayout == vk.ImageLayoutTransferDstOptimal:
		return transitionRule{
			srcAccess: 0,
			dstAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
			srcStage:  vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
			dstStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		}, nil

	case oldLayout == vk.ImageLayoutUndefined &&
		newLayout == vk.ImageLayoutDepthStencilAttachmentOptimal:
		return transitionRule{
			srcAccess: 0,
			dstAccess: vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit) |
				vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
			srcStage: vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
			dstStage: vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
		}, nil

	case oldLayout == vk.ImageLayoutUndefined &&
		newLayout == vk.ImageLayoutColorAttachmentOptimal:
		return transitionRule{
			srcAccess: 0,
			dstAccess: vk.AccessFlags(vk.AccessColorAttachmentReadBit) |
				vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			srcStage: vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
			dstStage: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		}, nil

	case oldLayout == vk.ImageLayoutTransferDstOptimal &&
		newLayout == vk.ImageLayoutShaderReadOnlyOptimal:
		return transitionRule{
			srcAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
			dstAccess: vk.AccessFlags(vk.AccessShaderReadBit),
			srcStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			dstStage:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
		}, nil
	}

	return transitionRule{}, fmt.Errorf(
		"%w: %d -> %d",
		ErrUnsupportedLayoutTransition, oldLayout, newLayout,
	)
}

// transitionAspect selects the subresource aspect a transition touches.
// Everything except depth attachment targets is a color aspect.
func transitionAspect(
	newLayout vk.ImageLayout,
	format vk.Format,
) vk.ImageAspectFlags {
	if newLayout != vk.ImageLayoutDepthStencilAttachmentOptimal {
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}

	aspect := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	if HasStencilComponent(format) {
		aspect |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	return aspect
}

// HasStencilComponent reports whether a depth format carries a stencil
// aspect as well.
func HasStencilComponent(format vk.Format) bool {
	return format == vk.FormatD32SfloatS8Uint || format == vk.FormatD24UnormS8Uint
}

// TransitionImageLayout records and submits a single pipeline barrier moving
// the image from oldLayout to newLayout. The transition runs as a blocking
// one-shot submission on the graphics queue.
func (d *Device) TransitionImageLayout(
	image vk.Image,
	format vk.Format,
	oldLayout vk.ImageLayout,
	newLayout vk.ImageLayout,
) error {
	rule, err := layoutTransitionRule(oldLayout, newLayout)
	if err != nil {
		return err
	}

	commandBuffer, err := d.beginOneShot()
	if err != nil {
		return fmt.Errorf("failed to begin single time commands: %w", err)
	}

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     transitionAspect(newLayout, format),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		SrcAccessMask: rule.srcAccess,
		DstAccessMask: rule.dstAccess,
	}

	vk.CmdPipelineBarrier(
		commandBuffer,
		rule.srcStage, rule.dstStage,
		0,
		0, nil,
		0, nil,
		1, []vk.ImageMemoryBarrier{barrier},
	)

	return d.endOneShot(commandBuffer)
}

// copyBufferToImage copies the whole of a staging buffer into an image which
// must already be in the transfer-dst layout.
func (d *Device) copyBufferToImage(
	buffer vk.Buffer,
	image vk.Image,
	width, height uint32,
) error {
	commandBuffer, err := d.beginOneShot()
	if err != nil {
		return fmt.Errorf("failed to begin single time commands: %w", err)
	}

	region := vk.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,

		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},

		ImageOffset: vk.Offset3D{
			X: 0, Y: 0, Z: 0,
		},

		ImageExtent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
	}

	vk.CmdCopyBufferToImage(
		commandBuffer,
		buffer,
		image,
		vk.ImageLayoutTransferDstOptimal,
		1,
		[]vk.BufferImageCopy{region},
	)

	return d.endOneShot(commandBuffer)
}

// TextureSpec builds a sampled texture image: the staging buffer content is
// copied in between the undefined to transfer-dst and transfer-dst to
// shader-read-only transitions.
type TextureSpec struct {
	Props ImageProperties

	staging *Buffer
}

// Properties implements ImageSpec.
func (s *TextureSpec) Properties() ImageProperties {
	return s.Props
}

func (s *TextureSpec) prepare(dev *Device, image vk.Image) error {
	err := dev.TransitionImageLayout(
		image,
		s.Props.Format,
		vk.ImageLayoutUndefined,
		vk.ImageLayoutTransferDstOptimal,
	)
	if err != nil {
		return fmt.Errorf("transition to transfer destination: %w", err)
	}

	err = dev.copyBufferToImage(
		s.staging.handle, image, s.Props.Width, s.Props.Height,
	)
	if err != nil {
		return fmt.Errorf("copying buffer to image: %w", err)
	}

	err = dev.TransitionImageLayout(
		image,
		s.Props.Format,
		vk.ImageLayoutTransferDstOptimal,
		vk.ImageLayoutShaderReadOnlyOptimal,
	)
	if err != nil {
		return fmt.Errorf("transition to shader read only: %w", err)
	}

	return nil
}

// DepthSpec builds a depth attachment image. Nothing is copied into it, the
// image goes straight to the depth-stencil-attachment layout.
type DepthSpec struct {
	Props ImageProperties
}

// NewDepthSpec describes a depth image covering the given extent.
func NewDepthSpec(extent vk.Extent2D, format vk.Format) *DepthSpec {
	return &DepthSpec{
		Props: ImageProperties{
			Width:  extent.Width,
			Height: extent.Height,
			Format: format,
			Usage:  vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
			Aspect: vk.ImageAspectFlags(vk.ImageAspectDepthBit),
		},
	}
}

// Properties implements ImageSpec.
func (s *DepthSpec) Properties() ImageProperties {
	return s.Props
}

func (s *DepthSpec) prepare(dev *Device, image vk.Image) error {
	return dev.TransitionImageLayout(
		image,
		s.Props.Format,
		vk.ImageLayoutUndefined,
		vk.ImageLayoutDepthStencilAttachmentOptimal,
	)
}

// Texture is a device-local sampled image together with the sampler it is
// read through. The sampler lives and dies with the texture.
type Texture struct {
	*Image

	sampler vk.Sampler
}

// NewTexture uploads the RGBA pixels into a device-local image in the
// shader-read-only layout and creates its sampler. The staging buffer used
// for the upload is destroyed before returning.
func (d *Device) NewTexture(pixels *image.RGBA) (*Texture, error) {
	bounds := pixels.Bounds().Size()
	width := uint32(bounds.X)
	height := uint32(bounds.Y)

	staging, err := d.NewBuffer(
		vk.DeviceSize(len(pixels.Pix)),
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create texture staging buffer: %w", err)
	}
	defer staging.Destroy()

	if err := staging.Write(pixels.Pix); err != nil {
		return nil, fmt.Errorf("filling texture staging buffer: %w", err)
	}

	spec := &TextureSpec{
		Props: ImageProperties{
			Width:  width,
			Height: height,
			Format: vk.FormatR8g8b8a8Srgb,
			Usage: vk.ImageUsageFlags(vk.ImageUsageTransferDstBit) |
				vk.ImageUsageFlags(vk.ImageUsageSampledBit),
			Aspect: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		},
		staging: staging,
	}

	img, err := d.NewImage(spec, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, fmt.Errorf("failed to create texture image: %w", err)
	}

	sampler, err := d.newSampler()
	if err != nil {
		img.Destroy()
		return nil, err
	}

	return &Texture{
		Image:   img,
		sampler: sampler,
	}, nil
}

// Sampler returns the texture sampler.
func (t *Texture) Sampler() vk.Sampler {
	return t.sampler
}

// Destroy releases the sampler and then the image.
func (t *Texture) Destroy() {
	vk.DestroySampler(t.dev.handle, t.sampler, nil)
	t.Image.Destroy()
}

func (d *Device) newSampler() (vk.Sampler, error) {
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(d.physical, &properties)
	properties.Deref()
	properties.Limits.Deref()

	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        vk.True,
		MaxAnisotropy:           properties.Limits.MaxSamplerAnisotropy,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		MipLodBias:              0,
		MinLod:                  0,
		MaxLod:                  0,
	}

	var sampler vk.Sampler
	res := vk.CreateSampler(d.handle, &samplerInfo, nil, &sampler)
	if res != vk.Success {
		return vk.NullSampler, fmt.Errorf("failed to create sampler: %w", vk.Error(res))
	}

	return sampler, nil
}
