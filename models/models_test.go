package models

import (
	"strings"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/xlab/linmath"
)

func TestLoadCube(t *testing.T) {
	g := NewWithT(t)

	mesh, err := Load("cube.obj")
	g.Expect(err).NotTo(HaveOccurred())

	// Six quad faces triangulate into twelve triangles.
	g.Expect(mesh.Indices).To(HaveLen(36))
	g.Expect(len(mesh.Vertices)).To(BeNumerically("<=", 36))

	for _, index := range mesh.Indices {
		g.Expect(int(index)).To(BeNumerically("<", len(mesh.Vertices)))
	}

	for _, vertex := range mesh.Vertices {
		g.Expect(vertex.Color).To(Equal(linmath.Vec3{1, 1, 1}))
		for _, c := range vertex.Pos {
			g.Expect(c).To(BeNumerically(">=", -0.5))
			g.Expect(c).To(BeNumerically("<=", 0.5))
		}
	}
}

func TestDecodeTriangle(t *testing.T) {
	g := NewWithT(t)

	const source = `
v 0 0 0
v 1 0 0
v 0 1 0
vt 0 0
vt 1 0
vt 0 1
f 1/1 2/2 3/3
`

	mesh, err := Decode(strings.NewReader(source))
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(mesh.Vertices).To(HaveLen(3))
	g.Expect(mesh.Indices).To(Equal([]uint32{0, 1, 2}))
	g.Expect(mesh.Vertices[1].Pos).To(Equal(linmath.Vec3{1, 0, 0}))
	g.Expect(mesh.Vertices[1].TexCoord).To(Equal(linmath.Vec2{1, 0}))
}

func TestDecodeDeduplicatesSharedCorners(t *testing.T) {
	g := NewWithT(t)

	const source = `
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
f 1/1 2/1 3/1
f 1/1 3/1 4/1
`

	mesh, err := Decode(strings.NewReader(source))
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(mesh.Vertices).To(HaveLen(4))
	g.Expect(mesh.Indices).To(Equal([]uint32{0, 1, 2, 0, 2, 3}))
}

func TestDecodeRejectsEmptyModel(t *testing.T) {
	g := NewWithT(t)

	_, err := Decode(strings.NewReader("v 0 0 0\n"))
	g.Expect(err).To(HaveOccurred())
}
