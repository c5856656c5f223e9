package render

import (
	"testing"

	. "github.com/onsi/gomega"
	vk "github.com/vulkan-go/vulkan"
)

func TestLayoutTransitionRule(t *testing.T) {
	tests := []struct {
		name string
		old  vk.ImageLayout
		new  vk.ImageLayout

		want transitionRule
	}{
		{
			name: "undefined to transfer destination",
			old:  vk.ImageLayoutUndefined,
			new:  vk.ImageLayoutTransferDstOptimal,
			want: transitionRule{
				srcAccess: 0,
				dstAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
				srcStage:  vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
				dstStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			},
		},
		{
			name: "undefined to depth stencil attachment",
			old:  vk.ImageLayoutUndefined,
			new:  vk.ImageLayoutDepthStencilAttachmentOptimal,
			want: transitionRule{
				srcAccess: 0,
				dstAccess: vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit) |
					vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
				srcStage: vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
				dstStage: vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
			},
		},
		{
			name: "undefined to color attachment",
			old:  vk.ImageLayoutUndefined,
			new:  vk.ImageLayoutColorAttachmentOptimal,
			want: transitionRule{
				srcAccess: 0,
				dstAccess: vk.AccessFlags(vk.AccessColorAttachmentReadBit) |
					vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
				srcStage: vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
				dstStage: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			},
		},
		{
			name: "transfer destination to shader read only",
			old:  vk.ImageLayoutTransferDstOptimal,
			new:  vk.ImageLayoutShaderReadOnlyOptimal,
			want: transitionRule{
				srcAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
				dstAccess: vk.AccessFlags(vk.AccessShaderReadBit),
				srcStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
				dstStage:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			g := NewWithT(t)

			got, err := layoutTransitionRule(test.old, test.new)
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(got).To(Equal(test.want))
		})
	}
}

func TestLayoutTransitionRuleUnsupported(t *testing.T) {
	tests := []struct {
		name string
		old  vk.ImageLayout
		new  vk.ImageLayout
	}{
		{
			name: "reverse of a supported pair",
			old:  vk.ImageLayoutTransferDstOptimal,
			new:  vk.ImageLayoutUndefined,
		},
		{
			name: "undefined to shader read only skips the copy",
			old:  vk.ImageLayoutUndefined,
			new:  vk.ImageLayoutShaderReadOnlyOptimal,
		},
		{
			name: "present source",
			old:  vk.ImageLayoutColorAttachmentOptimal,
			new:  vk.ImageLayoutPresentSrc,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			g := NewWithT(t)

			_, err := layoutTransitionRule(test.old, test.new)
			g.Expect(err).To(MatchError(ErrUnsupportedLayoutTransition))
		})
	}
}

func TestTransitionAspect(t *testing.T) {
	g := NewWithT(t)

	g.Expect(transitionAspect(
		vk.ImageLayoutTransferDstOptimal, vk.FormatR8g8b8a8Srgb,
	)).To(Equal(vk.ImageAspectFlags(vk.ImageAspectColorBit)))

	g.Expect(transitionAspect(
		vk.ImageLayoutDepthStencilAttachmentOptimal, vk.FormatD32Sfloat,
	)).To(Equal(vk.ImageAspectFlags(vk.ImageAspectDepthBit)))

	g.Expect(transitionAspect(
		vk.ImageLayoutDepthStencilAttachmentOptimal, vk.FormatD24UnormS8Uint,
	)).To(Equal(
		vk.ImageAspectFlags(vk.ImageAspectDepthBit) |
			vk.ImageAspectFlags(vk.ImageAspectStencilBit),
	))
}

func TestHasStencilComponent(t *testing.T) {
	g := NewWithT(t)

	g.Expect(HasStencilComponent(vk.FormatD32SfloatS8Uint)).To(BeTrue())
	g.Expect(HasStencilComponent(vk.FormatD24UnormS8Uint)).To(BeTrue())
	g.Expect(HasStencilComponent(vk.FormatD32Sfloat)).To(BeFalse())
	g.Expect(HasStencilComponent(vk.FormatR8g8b8a8Srgb)).To(BeFalse())
}

func TestDepthSpecProperties(t *testing.T) {
	g := NewWithT(t)

	spec := NewDepthSpec(vk.Extent2D{Width: 800, Height: 600}, vk.FormatD32Sfloat)

	props := spec.Properties()
	g.Expect(props.Width).To(Equal(uint32(800)))
	g.Expect(props.Height).To(Equal(uint32(600)))
	g.Expect(props.Format).To(Equal(vk.FormatD32Sfloat))
	g.Expect(props.Usage).To(Equal(
		vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
	))
	g.Expect(props.Aspect).To(Equal(vk.ImageAspectFlags(vk.ImageAspectDepthBit)))
}
