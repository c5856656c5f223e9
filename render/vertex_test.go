package render

import (
	"testing"

	. "github.com/onsi/gomega"
	vk "github.com/vulkan-go/vulkan"
)

func TestVertexBindingDescription(t *testing.T) {
	g := NewWithT(t)

	binding := Vertex{}.BindingDescription()
	g.Expect(binding.Binding).To(Equal(uint32(0)))
	g.Expect(binding.Stride).To(Equal(VertexSize()))
	g.Expect(binding.InputRate).To(Equal(vk.VertexInputRateVertex))
}

func TestVertexAttributeDescriptions(t *testing.T) {
	g := NewWithT(t)

	attrs := Vertex{}.AttributeDescriptions()
	g.Expect(attrs).To(HaveLen(3))

	g.Expect(attrs[0].Location).To(Equal(uint32(0)))
	g.Expect(attrs[0].Format).To(Equal(vk.FormatR32g32b32Sfloat))
	g.Expect(attrs[0].Offset).To(Equal(uint32(0)))

	g.Expect(attrs[1].Location).To(Equal(uint32(1)))
	g.Expect(attrs[1].Format).To(Equal(vk.FormatR32g32b32Sfloat))

	g.Expect(attrs[2].Location).To(Equal(uint32(2)))
	g.Expect(attrs[2].Format).To(Equal(vk.FormatR32g32Sfloat))

	// Attributes are packed in declaration order with no overlap.
	g.Expect(attrs[1].Offset).To(BeNumerically(">", attrs[0].Offset))
	g.Expect(attrs[2].Offset).To(BeNumerically(">", attrs[1].Offset))
	g.Expect(attrs[2].Offset).To(BeNumerically("<", VertexSize()))
}
