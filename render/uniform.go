package render

import (
	"fmt"
	"math"
	"time"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
	"github.com/xlab/linmath"

	"vulkan-render/unsafer"
)

// uniformData is the GPU-side layout of the per-frame uniform block. It must
// match the uniform buffer object declared in the vertex shader.
type uniformData struct {
	model linmath.Mat4x4
	view  linmath.Mat4x4
	proj  linmath.Mat4x4
}

// uniformDataSize returns the byte size of the uniform block.
func uniformDataSize() vk.DeviceSize {
	return vk.DeviceSize(unsafe.Sizeof(uniformData{}))
}

// UniformSnapshot accumulates the scene animation state. The rotation angle
// only moves when time is added to it, so advancing by zero leaves the
// produced matrices unchanged.
type UniformSnapshot struct {
	angle float32
}

// Advance adds the elapsed wall time to the model rotation.
func (s *UniformSnapshot) Advance(delta time.Duration) {
	s.angle += float32(delta.Seconds())
}

// Angle returns the accumulated rotation in radians.
func (s *UniformSnapshot) Angle() float32 {
	return s.angle
}

// data builds the uniform block for the current snapshot state: the model
// rotated around Z by the accumulated angle, a fixed look-at view and a
// perspective projection corrected for Vulkan's flipped Y clip space.
func (s *UniformSnapshot) data(aspect float32) uniformData {
	ubo := uniformData{}

	ubo.model.Identity()
	ubo.model.RotateZ(&ubo.model, s.angle)
	ubo.view.LookAt(
		&linmath.Vec3{2, 2, 2},
		&linmath.Vec3{0, 0, 0},
		&linmath.Vec3{0, 0, 1},
	)
	// Perspective takes the vertical field of view in radians.
	ubo.proj.Perspective(math.Pi/4, aspect, 0.1, 10)
	ubo.proj[1][1] *= -1

	return ubo
}

// UniformSet owns one host-visible uniform buffer and one descriptor set per
// swapchain image, all allocated from a pool sized exactly for that count.
// Descriptor sets are written once at construction and never updated again,
// only the buffer contents change from frame to frame.
type UniformSet struct {
	dev *Device

	snapshot UniformSnapshot
	aspect   float32

	buffers []*Buffer
	pool    vk.DescriptorPool
	sets    []vk.DescriptorSet
}

// NewUniformSet creates imageCount uniform buffers and binds each one,
// together with the texture, into its own descriptor set using the given
// layout.
func (d *Device) NewUniformSet(
	imageCount int,
	layout vk.DescriptorSetLayout,
	texture *Texture,
	aspect float32,
) (*UniformSet, error) {
	u := &UniformSet{
		dev:    d,
		aspect: aspect,
		pool:   vk.NullDescriptorPool,
	}

	for i := 0; i < imageCount; i++ {
		buffer, err := d.NewBuffer(
			uniformDataSize(),
			vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit),
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|
				vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit),
		)
		if err != nil {
			u.Destroy()
			return nil, fmt.Errorf("failed to create uniform buffer %d: %w", i, err)
		}
		u.buffers = append(u.buffers, buffer)
	}

	if err := u.createDescriptorSets(layout, texture); err != nil {
		u.Destroy()
		return nil, err
	}

	return u, nil
}

func (u *UniformSet) createDescriptorSets(
	layout vk.DescriptorSetLayout,
	texture *Texture,
) error {
	count := uint32(len(u.buffers))

	poolSizes := []vk.DescriptorPoolSize{
		{
			Type:            vk.DescriptorTypeUniformBuffer,
			DescriptorCount: count,
		},
		{
			Type:            vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: count,
		},
	}

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
		MaxSets:       count,
	}

	var pool vk.DescriptorPool
	res := vk.CreateDescriptorPool(u.dev.handle, &poolInfo, nil, &pool)
	if res != vk.Success {
		return fmt.Errorf("failed to create descriptor pool: %w", vk.Error(res))
	}
	u.pool = pool

	layouts := make([]vk.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = layout
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     u.pool,
		DescriptorSetCount: count,
		PSetLayouts:        layouts,
	}

	u.sets = make([]vk.DescriptorSet, count)

	res = vk.AllocateDescriptorSets(u.dev.handle, &allocInfo, &u.sets[0])
	if res != vk.Success {
		return fmt.Errorf("failed to allocate descriptor sets: %w", vk.Error(res))
	}

	for i := range u.sets {
		bufferInfo := vk.DescriptorBufferInfo{
			Buffer: u.buffers[i].Handle(),
			Offset: 0,
			Range:  vk.DeviceSize(vk.WholeSize),
		}

		imageInfo := vk.DescriptorImageInfo{
			ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			ImageView:   texture.View(),
			Sampler:     texture.Sampler(),
		}

		descriptorWrites := []vk.WriteDescriptorSet{
			{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          u.sets[i],
				DstBinding:      0,
				DstArrayElement: 0,
				DescriptorType:  vk.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,
				PBufferInfo:     []vk.DescriptorBufferInfo{bufferInfo},
			},
			{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          u.sets[i],
				DstBinding:      1,
				DstArrayElement: 0,
				DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
				DescriptorCount: 1,
				PImageInfo:      []vk.DescriptorImageInfo{imageInfo},
			},
		}

		vk.UpdateDescriptorSets(
			u.dev.handle,
			uint32(len(descriptorWrites)),
			descriptorWrites,
			0,
			nil,
		)
	}

	return nil
}

// Update advances the animation by delta and writes the resulting uniform
// block into the buffer for the given swapchain image. The image must not be
// in flight when this is called.
func (u *UniformSet) Update(imageIndex uint32, delta time.Duration) error {
	if int(imageIndex) >= len(u.buffers) {
		return fmt.Errorf("uniform buffer index %d out of range", imageIndex)
	}

	u.snapshot.Advance(delta)
	ubo := u.snapshot.data(u.aspect)

	if err := u.buffers[imageIndex].Write(unsafer.StructToBytes(&ubo)); err != nil {
		return fmt.Errorf("writing uniform buffer %d: %w", imageIndex, err)
	}

	return nil
}

// SetAspect changes the projection aspect ratio. Called after the swapchain
// extent changes.
func (u *UniformSet) SetAspect(aspect float32) {
	u.aspect = aspect
}

// DescriptorSet returns the descriptor set for one swapchain image.
func (u *UniformSet) DescriptorSet(imageIndex uint32) vk.DescriptorSet {
	return u.sets[imageIndex]
}

// Destroy releases the descriptor pool and all uniform buffers. The sets go
// away with the pool.
func (u *UniformSet) Destroy() {
	if u.pool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(u.dev.handle, u.pool, nil)
		u.pool = vk.NullDescriptorPool
	}
	for _, buffer := range u.buffers {
		buffer.Destroy()
	}
	u.buffers = nil
}

// NewUniformLayout creates the descriptor set layout shared by the pipeline
// and every UniformSet: a vertex-stage uniform buffer at binding 0 and a
// fragment-stage combined image sampler at binding 1.
func (d *Device) NewUniformLayout() (vk.DescriptorSetLayout, error) {
	uboLayoutBinding := vk.DescriptorSetLayoutBinding{
		Binding:            0,
		DescriptorType:     vk.DescriptorTypeUniformBuffer,
		DescriptorCount:    1,
		StageFlags:         vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		PImmutableSamplers: nil,
	}

	samplerLayoutBinding := vk.DescriptorSetLayoutBinding{
		Binding:            1,
		DescriptorCount:    1,
		DescriptorType:     vk.DescriptorTypeCombinedImageSampler,
		PImmutableSamplers: nil,
		StageFlags:         vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
	}

	bindings := []vk.DescriptorSetLayoutBinding{
		uboLayoutBinding,
		samplerLayoutBinding,
	}

	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}

	var layout vk.DescriptorSetLayout
	res := vk.CreateDescriptorSetLayout(d.handle, &layoutInfo, nil, &layout)
	if res != vk.Success {
		return vk.NullDescriptorSetLayout, fmt.Errorf(
			"creating descriptor set layout: %w", vk.Error(res),
		)
	}

	return layout, nil
}
