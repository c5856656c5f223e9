// Package models bundles the geometry shipped with the renderer and loads it
// into vertex and index data ready for the GPU.
package models

import (
	"embed"
	"fmt"
	"io"

	"github.com/mokiat/go-data-front/decoder/obj"
	"github.com/xlab/linmath"

	"vulkan-render/render"
)

// FS contains all the models shipped with the renderer. It makes it possible
// to generate a binary and just copy it to another machine.
//
//go:embed cube.obj
var FS embed.FS

// Mesh is indexed geometry in the renderer's vertex format.
type Mesh struct {
	Vertices []render.Vertex
	Indices  []uint32
}

// Load reads a Wavefront OBJ model from the bundled file system.
func Load(name string) (*Mesh, error) {
	fh, err := FS.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer fh.Close()

	return Decode(fh)
}

// Decode parses a Wavefront OBJ stream into a Mesh. Faces with more than
// three corners are triangulated with a fan and vertices shared between
// faces are deduplicated. Models without vertex colors come out white.
func Decode(r io.Reader) (*Mesh, error) {
	model, err := obj.NewDecoder(obj.DefaultLimits()).Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode OBJ model: %w", err)
	}

	mesh := &Mesh{}
	seen := make(map[render.Vertex]uint32)

	addCorner := func(ref obj.Reference) error {
		if ref.VertexIndex < 0 || int(ref.VertexIndex) >= len(model.Vertices) {
			return fmt.Errorf("vertex index %d out of range", ref.VertexIndex)
		}
		position := model.Vertices[ref.VertexIndex]

		vertex := render.Vertex{
			Pos:   linmath.Vec3{float32(position.X), float32(position.Y), float32(position.Z)},
			Color: linmath.Vec3{1, 1, 1},
		}

		if ref.HasTexCoord() {
			if int(ref.TexCoordIndex) >= len(model.TexCoords) {
				return fmt.Errorf("texture coordinate index %d out of range", ref.TexCoordIndex)
			}
			coord := model.TexCoords[ref.TexCoordIndex]
			vertex.TexCoord = linmath.Vec2{float32(coord.U), float32(coord.V)}
		}

		index, ok := seen[vertex]
		if !ok {
			index = uint32(len(mesh.Vertices))
			seen[vertex] = index
			mesh.Vertices = append(mesh.Vertices, vertex)
		}
		mesh.Indices = append(mesh.Indices, index)
		return nil
	}

	for _, object := range model.Objects {
		for _, objMesh := range object.Meshes {
			for _, face := range objMesh.Faces {
				refs := face.References
				if len(refs) < 3 {
					return nil, fmt.Errorf("face with %d corners", len(refs))
				}

				for i := 1; i+1 < len(refs); i++ {
					for _, ref := range []obj.Reference{refs[0], refs[i], refs[i+1]} {
						if err := addCorner(ref); err != nil {
							return nil, err
						}
					}
				}
			}
		}
	}

	if len(mesh.Indices) == 0 {
		return nil, fmt.Errorf("model contains no faces")
	}

	return mesh, nil
}
