package render

import (
	"math"
	"testing"
	"time"

	. "github.com/onsi/gomega"
)

func TestUniformSnapshotAdvance(t *testing.T) {
	g := NewWithT(t)

	var snapshot UniformSnapshot
	g.Expect(snapshot.Angle()).To(Equal(float32(0)))

	snapshot.Advance(500 * time.Millisecond)
	g.Expect(snapshot.Angle()).To(BeNumerically("~", 0.5, 1e-6))

	snapshot.Advance(250 * time.Millisecond)
	g.Expect(snapshot.Angle()).To(BeNumerically("~", 0.75, 1e-6))
}

func TestUniformSnapshotZeroAdvanceKeepsData(t *testing.T) {
	g := NewWithT(t)

	var snapshot UniformSnapshot
	snapshot.Advance(1300 * time.Millisecond)

	const aspect = 16.0 / 9.0
	before := snapshot.data(aspect)

	snapshot.Advance(0)
	after := snapshot.data(aspect)

	g.Expect(after).To(Equal(before))
}

func TestUniformSnapshotDataProjection(t *testing.T) {
	g := NewWithT(t)

	var snapshot UniformSnapshot
	ubo := snapshot.data(1)

	// Vulkan clip space has Y pointing down, the projection must account
	// for it.
	g.Expect(ubo.proj[1][1]).To(BeNumerically("<", 0))
}

func TestUniformSnapshotDataFieldOfView(t *testing.T) {
	g := NewWithT(t)

	var snapshot UniformSnapshot
	ubo := snapshot.data(1)

	// A 45 degree vertical field of view puts 1/tan(fov/2) on the Y scale,
	// negated by the clip space flip.
	expected := -1 / math.Tan(math.Pi/8)
	g.Expect(ubo.proj[1][1]).To(BeNumerically("~", expected, 1e-4))
}

func TestUniformSnapshotDataRotates(t *testing.T) {
	g := NewWithT(t)

	var snapshot UniformSnapshot
	identity := snapshot.data(1)

	snapshot.Advance(time.Second)
	rotated := snapshot.data(1)

	g.Expect(rotated.model).NotTo(Equal(identity.model))
	g.Expect(rotated.view).To(Equal(identity.view))
	g.Expect(rotated.proj).To(Equal(identity.proj))
}
