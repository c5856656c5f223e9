package main

import (
	"flag"
	"log"
	"runtime"

	vk "github.com/vulkan-go/vulkan"
)

func init() {
	// This is needed to arrange that main() runs on main thread.
	// See documentation for functions that are only allowed to be called
	// from the main thread.
	runtime.LockOSThread()

	flag.BoolVar(&args.debug, "debug", false, "Enable Vulkan validation layers")
	flag.IntVar(&args.frames, "frames", 2, "Number of frames in flight")
	flag.StringVar(&args.vertexShader, "vert", "shaders/vert.spv",
		"Path to the compiled vertex shader")
	flag.StringVar(&args.fragmentShader, "frag", "shaders/frag.spv",
		"Path to the compiled fragment shader")
	flag.StringVar(&args.model, "model", "cube.obj", "Bundled model to render")
	flag.StringVar(&args.texture, "texture", "texture.png",
		"Bundled texture for the model")
}

var args struct {
	debug          bool
	frames         int
	vertexShader   string
	fragmentShader string
	model          string
	texture        string
}

func main() {
	flag.Parse()

	if args.frames < 1 {
		log.Fatalf("ERROR: -frames must be at least 1")
	}

	app := &renderApp{
		width:                  1024,
		height:                 768,
		framesInFlight:         args.frames,
		enableValidationLayers: args.debug,
		validationLayers: []string{
			"VK_LAYER_KHRONOS_validation\x00",
		},
		deviceExtensions: []string{
			vk.KhrSwapchainExtensionName + "\x00",
		},
		physicalDevice: vk.PhysicalDevice(vk.NullHandle),
		surface:        vk.NullSurface,
	}
	if err := app.Run(); err != nil {
		log.Fatalf("ERROR: %s", err)
	}
}

const title = "Vulkan Renderer"
