package textures

import (
	"testing"

	. "github.com/onsi/gomega"
)

func TestLoad(t *testing.T) {
	g := NewWithT(t)

	rgba, err := Load("texture.png")
	g.Expect(err).NotTo(HaveOccurred())

	bounds := rgba.Bounds().Size()
	g.Expect(bounds.X).To(Equal(256))
	g.Expect(bounds.Y).To(Equal(256))
	g.Expect(rgba.Pix).To(HaveLen(256 * 256 * 4))
}

func TestLoadMissingFile(t *testing.T) {
	g := NewWithT(t)

	_, err := Load("no-such.png")
	g.Expect(err).To(HaveOccurred())
}
