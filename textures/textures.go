// Package textures bundles the images shipped with the renderer and prepares
// them for uploading to the GPU.
package textures

import (
	"embed"
	"fmt"
	"image"
	"image/draw"

	"github.com/disintegration/imaging"

	_ "image/png"
)

// FS contains all the textures shipped with the renderer. It makes it possible
// to generate a binary and just copy it to another machine.
//
//go:embed texture.png
var FS embed.FS

// Load decodes a bundled texture into RGBA pixels ready for a staging
// buffer. The image is flipped vertically so that its first row ends up at
// texture coordinate V=0.
func Load(name string) (*image.RGBA, error) {
	fh, err := FS.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open texture file: %w", err)
	}
	defer fh.Close()

	img, _, err := image.Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("failed to decode texture image: %w", err)
	}

	flipped := imaging.FlipV(img)

	rgba := image.NewRGBA(image.Rect(0, 0, flipped.Bounds().Dx(), flipped.Bounds().Dy()))
	draw.Draw(rgba, rgba.Bounds(), flipped, flipped.Bounds().Min, draw.Src)

	return rgba, nil
}
