package render

import (
	"testing"

	. "github.com/onsi/gomega"
	vk "github.com/vulkan-go/vulkan"
)

func TestFindMemoryType(t *testing.T) {
	hostVisible := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)
	hostCoherent := vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
	deviceLocal := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)

	dev := &Device{
		memoryTypes: []MemoryType{
			{Flags: deviceLocal},
			{Flags: hostVisible},
			{Flags: hostVisible | hostCoherent},
			{Flags: hostVisible | hostCoherent},
		},
	}

	tests := []struct {
		name       string
		typeBits   uint32
		properties vk.MemoryPropertyFlags

		want    uint32
		wantErr error
	}{
		{
			name:       "first match wins",
			typeBits:   0b1111,
			properties: hostVisible,
			want:       1,
		},
		{
			name:       "type bits narrow the candidates",
			typeBits:   0b1000,
			properties: hostVisible | hostCoherent,
			want:       3,
		},
		{
			name:       "all requested flags must be present",
			typeBits:   0b1111,
			properties: hostVisible | hostCoherent,
			want:       2,
		},
		{
			name:       "device local",
			typeBits:   0b1111,
			properties: deviceLocal,
			want:       0,
		},
		{
			name:       "no candidate satisfies the flags",
			typeBits:   0b1111,
			properties: deviceLocal | hostVisible,
			wantErr:    ErrNoSuitableMemoryType,
		},
		{
			name:       "type bits exclude the only match",
			typeBits:   0b1110,
			properties: deviceLocal,
			wantErr:    ErrNoSuitableMemoryType,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			g := NewWithT(t)

			got, err := dev.FindMemoryType(test.typeBits, test.properties)
			if test.wantErr != nil {
				g.Expect(err).To(MatchError(test.wantErr))
				return
			}

			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(got).To(Equal(test.want))
		})
	}
}

func TestFindMemoryTypeIsDeterministic(t *testing.T) {
	g := NewWithT(t)

	hostVisible := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)
	dev := &Device{
		memoryTypes: []MemoryType{
			{Flags: hostVisible},
			{Flags: hostVisible},
		},
	}

	for i := 0; i < 10; i++ {
		got, err := dev.FindMemoryType(0b11, hostVisible)
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(got).To(Equal(uint32(0)))
	}
}
