package main

import (
	"errors"
	"fmt"
	"log"
	"time"

	"vulkan-render/models"
	"vulkan-render/queues"
	"vulkan-render/render"
	"vulkan-render/textures"
	"vulkan-render/unsafer"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
)

// renderApp owns the window, the Vulkan bootstrap objects and everything the
// render engine needs wired together: swapchain, pipeline, geometry, texture,
// uniforms and the frame loop.
type renderApp struct {
	width  int
	height int

	// validationLayers is the list of instance layers enabled when the
	// -debug flag is set.
	validationLayers       []string
	enableValidationLayers bool

	// deviceExtensions is the list of required device extensions needed by
	// this program.
	deviceExtensions []string

	framesInFlight int

	window   *glfw.Window
	instance vk.Instance
	surface  vk.Surface

	// physicalDevice is the physical device selected for this program.
	physicalDevice vk.PhysicalDevice

	dev *render.Device

	// device is the logical device. The render.Device wraps it but does not
	// own it.
	device vk.Device

	swapChain *SwapChain

	renderPass          vk.RenderPass
	descriptorSetLayout vk.DescriptorSetLayout
	pipelineLayout      vk.PipelineLayout
	graphicsPipeline    vk.Pipeline

	depthImage   *render.Image
	framebuffers []vk.Framebuffer

	mesh         *models.Mesh
	vertexBuffer *render.Buffer
	indexBuffer  *render.Buffer
	texture      *render.Texture

	uniforms       *render.UniformSet
	commandBuffers []vk.CommandBuffer
	frames         *render.FrameSync

	frameBufferResized bool
}

// Run runs the renderer until its window is closed.
func (a *renderApp) Run() error {
	if err := a.initWindow(); err != nil {
		return fmt.Errorf("initWindow: %w", err)
	}
	defer a.cleanWindow()

	if err := a.initVulkan(); err != nil {
		return fmt.Errorf("initVulkan: %w", err)
	}
	defer a.cleanVulkan()

	if err := a.mainLoop(); err != nil {
		return fmt.Errorf("mainLoop: %w", err)
	}

	return nil
}

func (a *renderApp) initWindow() error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("glfw.Init: %w", err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	window, err := glfw.CreateWindow(a.width, a.height, title, nil, nil)
	if err != nil {
		return fmt.Errorf("creating window: %w", err)
	}

	window.SetFramebufferSizeCallback(a.frameBufferResizeCallback)

	a.window = window
	return nil
}

func (a *renderApp) frameBufferResizeCallback(
	w *glfw.Window,
	width int,
	height int,
) {
	a.frameBufferResized = true
}

func (a *renderApp) cleanWindow() {
	a.window.Destroy()
	glfw.Terminate()
}

func (a *renderApp) initVulkan() error {
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())

	if err := vk.Init(); err != nil {
		return fmt.Errorf("failed to init Vulkan Go: %w", err)
	}

	if err := a.createInstance(); err != nil {
		return fmt.Errorf("createInstance: %w", err)
	}

	if err := a.createSurface(); err != nil {
		return fmt.Errorf("createSurface: %w", err)
	}

	if err := a.pickPhysicalDevice(); err != nil {
		return fmt.Errorf("pickPhysicalDevice: %w", err)
	}

	if err := a.createLogicalDevice(); err != nil {
		return fmt.Errorf("createLogicalDevice: %w", err)
	}

	if err := a.createSwapChain(); err != nil {
		return fmt.Errorf("createSwapChain: %w", err)
	}

	if err := a.createRenderPass(); err != nil {
		return fmt.Errorf("createRenderPass: %w", err)
	}

	layout, err := a.dev.NewUniformLayout()
	if err != nil {
		return fmt.Errorf("creating descriptor set layout: %w", err)
	}
	a.descriptorSetLayout = layout

	if err := a.createGraphicsPipeline(); err != nil {
		return fmt.Errorf("createGraphicsPipeline: %w", err)
	}

	if err := a.createDepthResources(); err != nil {
		return fmt.Errorf("createDepthResources: %w", err)
	}

	if err := a.createFramebuffers(); err != nil {
		return fmt.Errorf("createFramebuffers: %w", err)
	}

	if err := a.loadAssets(); err != nil {
		return fmt.Errorf("loadAssets: %w", err)
	}

	if err := a.createUniforms(); err != nil {
		return fmt.Errorf("createUniforms: %w", err)
	}

	if err := a.createCommandBuffers(); err != nil {
		return fmt.Errorf("createCommandBuffers: %w", err)
	}

	frames, err := render.NewFrameSync(
		a.dev, a.swapChain, a.uniforms, a.commandBuffers, a.framesInFlight,
	)
	if err != nil {
		return fmt.Errorf("creating frame engine: %w", err)
	}
	a.frames = frames

	return nil
}

func (a *renderApp) cleanVulkan() {
	if a.dev != nil {
		a.dev.WaitIdle()
	}

	if a.frames != nil {
		a.frames.Destroy()
	}

	a.cleanupSwapChain()

	if a.uniforms != nil {
		a.uniforms.Destroy()
	}
	if a.texture != nil {
		a.texture.Destroy()
	}
	if a.indexBuffer != nil {
		a.indexBuffer.Destroy()
	}
	if a.vertexBuffer != nil {
		a.vertexBuffer.Destroy()
	}

	vk.DestroyPipeline(a.device, a.graphicsPipeline, nil)
	vk.DestroyPipelineLayout(a.device, a.pipelineLayout, nil)
	vk.DestroyRenderPass(a.device, a.renderPass, nil)
	vk.DestroyDescriptorSetLayout(a.device, a.descriptorSetLayout, nil)

	if a.dev != nil {
		a.dev.Destroy()
	}
	if a.device != vk.Device(vk.NullHandle) {
		vk.DestroyDevice(a.device, nil)
	}
	if a.surface != vk.NullSurface {
		vk.DestroySurface(a.instance, a.surface, nil)
	}
	vk.DestroyInstance(a.instance, nil)
}

// cleanupSwapChain releases everything which depends on the swapchain extent
// or its image count. Used on shutdown and before recreation.
func (a *renderApp) cleanupSwapChain() {
	if len(a.commandBuffers) > 0 {
		a.dev.FreeCommandBuffers(a.commandBuffers)
		a.commandBuffers = nil
	}

	for _, frameBuffer := range a.framebuffers {
		vk.DestroyFramebuffer(a.device, frameBuffer, nil)
	}
	a.framebuffers = nil

	if a.depthImage != nil {
		a.depthImage.Destroy()
		a.depthImage = nil
	}

	if a.swapChain != nil {
		a.swapChain.Destroy()
		a.swapChain = nil
	}
}

// recreateSwapChain rebuilds the swapchain and its dependent resources after
// the surface changed. The frame engine keeps its synchronization objects and
// is pointed at the new swapchain and command buffers.
func (a *renderApp) recreateSwapChain() error {
	for {
		width, height := a.window.GetFramebufferSize()
		if width != 0 || height != 0 {
			break
		}

		glfw.WaitEvents()
	}

	a.dev.WaitIdle()

	oldUniforms := a.uniforms
	a.cleanupSwapChain()

	if err := a.createSwapChain(); err != nil {
		return fmt.Errorf("createSwapChain: %w", err)
	}
	if err := a.createDepthResources(); err != nil {
		return fmt.Errorf("createDepthResources: %w", err)
	}
	if err := a.createFramebuffers(); err != nil {
		return fmt.Errorf("createFramebuffers: %w", err)
	}

	// The image count may have changed, so the per-image uniform buffers and
	// descriptor sets are rebuilt as well.
	if err := a.createUniforms(); err != nil {
		return fmt.Errorf("createUniforms: %w", err)
	}
	if oldUniforms != nil {
		oldUniforms.Destroy()
	}

	if err := a.createCommandBuffers(); err != nil {
		return fmt.Errorf("createCommandBuffers: %w", err)
	}

	a.frames.Reset(a.swapChain, a.commandBuffers)
	a.frames.SetUniforms(a.uniforms)

	return nil
}

func (a *renderApp) createInstance() error {
	if a.enableValidationLayers && !a.checkValidationSupport() {
		return fmt.Errorf("validation layers requested but not available")
	}

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   title + "\x00",
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        "No Engine\x00",
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.ApiVersion10,
	}

	glfwExtensions := glfw.GetCurrentContext().GetRequiredInstanceExtensions()
	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(glfwExtensions)),
		PpEnabledExtensionNames: glfwExtensions,
	}

	if a.enableValidationLayers {
		createInfo.EnabledLayerCount = uint32(len(a.validationLayers))
		createInfo.PpEnabledLayerNames = a.validationLayers
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&createInfo, nil, &instance)); err != nil {
		return fmt.Errorf("failed to create Vulkan instance: %w", err)
	}

	a.instance = instance
	return nil
}

func (a *renderApp) checkValidationSupport() bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success {
		return false
	}
	availableLayers := make([]vk.LayerProperties, count)

	if vk.EnumerateInstanceLayerProperties(&count, availableLayers) != vk.Success {
		return false
	}

	availableLayersStr := make([]string, 0, count)
	for _, layer := range availableLayers {
		layer.Deref()

		layerName := vk.ToString(layer.LayerName[:])
		availableLayersStr = append(availableLayersStr, layerName+"\x00")
	}

	for _, validationLayer := range a.validationLayers {
		layerFound := false

		for _, instanceLayer := range availableLayersStr {
			if validationLayer == instanceLayer {
				layerFound = true
				break
			}
		}

		if !layerFound {
			return false
		}
	}

	return true
}

func (a *renderApp) createSurface() error {
	surfacePtr, err := a.window.CreateWindowSurface(a.instance, nil)
	if err != nil {
		return fmt.Errorf("cannot create surface within GLFW window: %w", err)
	}

	a.surface = vk.SurfaceFromPointer(surfacePtr)
	return nil
}

func (a *renderApp) pickPhysicalDevice() error {
	var deviceCount uint32
	err := vk.Error(vk.EnumeratePhysicalDevices(a.instance, &deviceCount, nil))
	if err != nil {
		return fmt.Errorf("failed to get the number of physical devices: %w", err)
	}
	if deviceCount == 0 {
		return fmt.Errorf("failed to find GPUs with Vulkan support")
	}

	pDevices := make([]vk.PhysicalDevice, deviceCount)
	err = vk.Error(vk.EnumeratePhysicalDevices(a.instance, &deviceCount, pDevices))
	if err != nil {
		return fmt.Errorf("failed to enumerate the physical devices: %w", err)
	}

	var (
		selectedDevice vk.PhysicalDevice
		score          uint32
	)

	for _, device := range pDevices {
		deviceScore := a.getDeviceScore(device)

		if deviceScore > score {
			selectedDevice = device
			score = deviceScore
		}
	}

	if selectedDevice == vk.PhysicalDevice(vk.NullHandle) {
		return fmt.Errorf("failed to find suitable physical devices")
	}

	a.physicalDevice = selectedDevice
	return nil
}

// getDeviceScore returns how suitable is this device for the current program.
// Bigger score means better. Zero means the device cannot be used.
func (a *renderApp) getDeviceScore(device vk.PhysicalDevice) uint32 {
	var (
		deviceScore uint32
		properties  vk.PhysicalDeviceProperties
	)

	vk.GetPhysicalDeviceProperties(device, &properties)
	properties.Deref()

	if properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
		deviceScore += 1000
	} else {
		deviceScore++
	}

	if !a.isDeviceSuitable(device) {
		deviceScore = 0
	}

	if args.debug {
		log.Printf(
			"Available device: %s (score: %d)",
			vk.ToString(properties.DeviceName[:]),
			deviceScore,
		)
	}

	return deviceScore
}

func (a *renderApp) isDeviceSuitable(device vk.PhysicalDevice) bool {
	indices := a.findQueueFamilies(device)
	extensionsSupported := a.checkDeviceExtensionSupport(device)

	swapChainAdequate := false
	if extensionsSupported {
		swapChainSupport := a.querySwapChainSupport(device)
		swapChainAdequate = len(swapChainSupport.formats) > 0 &&
			len(swapChainSupport.presentModes) > 0
	}

	var supportedFeatures vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(device, &supportedFeatures)
	supportedFeatures.Deref()

	return indices.IsComplete() &&
		extensionsSupported &&
		swapChainAdequate &&
		supportedFeatures.SamplerAnisotropy.B()
}

func (a *renderApp) checkDeviceExtensionSupport(device vk.PhysicalDevice) bool {
	var extensionsCount uint32
	res := vk.EnumerateDeviceExtensionProperties(device, "", &extensionsCount, nil)
	if err := vk.Error(res); err != nil {
		log.Printf(
			"WARNING: enumerating device (%d) extension properties count: %s",
			device,
			err,
		)
		return false
	}

	availableExtensions := make([]vk.ExtensionProperties, extensionsCount)
	res = vk.EnumerateDeviceExtensionProperties(device, "", &extensionsCount,
		availableExtensions)
	if err := vk.Error(res); err != nil {
		log.Printf("WARNING: getting device (%d) extension properties: %s", device, err)
		return false
	}

	requiredExtensions := make(map[string]struct{})
	for _, extensionName := range a.deviceExtensions {
		requiredExtensions[extensionName] = struct{}{}
	}

	for _, extension := range availableExtensions {
		extension.Deref()
		extensionName := vk.ToString(extension.ExtensionName[:])

		delete(requiredExtensions, extensionName+"\x00")
	}

	return len(requiredExtensions) == 0
}

// findQueueFamilies returns a FamilyIndices populated with Vulkan queue
// families needed by the renderer.
func (a *renderApp) findQueueFamilies(device vk.PhysicalDevice) queues.FamilyIndices {
	indices := queues.FamilyIndices{}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)

	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	for i, family := range queueFamilies {
		family.Deref()

		if family.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			indices.Graphics.Set(uint32(i))
		}

		var hasPresent vk.Bool32
		err := vk.Error(
			vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), a.surface, &hasPresent),
		)
		if err != nil {
			log.Printf("error querying surface support for queue family %d: %s", i, err)
		} else if hasPresent.B() {
			indices.Present.Set(uint32(i))
		}

		if indices.IsComplete() {
			break
		}
	}

	return indices
}

func (a *renderApp) createLogicalDevice() error {
	indices := a.findQueueFamilies(a.physicalDevice)
	if !indices.IsComplete() {
		return fmt.Errorf("createLogicalDevice called for physical device which does " +
			"not have all the queues required by the program")
	}

	queueFamilies := make(map[uint32]struct{})
	queueFamilies[indices.Graphics.Get()] = struct{}{}
	queueFamilies[indices.Present.Get()] = struct{}{}

	queueCreateInfos := []vk.DeviceQueueCreateInfo{}

	for familyIndex := range queueFamilies {
		queueCreateInfos = append(
			queueCreateInfos,
			vk.DeviceQueueCreateInfo{
				SType:            vk.StructureTypeDeviceQueueCreateInfo,
				QueueFamilyIndex: familyIndex,
				QueueCount:       1,
				PQueuePriorities: []float32{1.0},
			},
		)
	}

	deviceFeatures := []vk.PhysicalDeviceFeatures{{
		SamplerAnisotropy: vk.True,
	}}

	createInfo := vk.DeviceCreateInfo{
		SType:            vk.StructureTypeDeviceCreateInfo,
		PEnabledFeatures: deviceFeatures,

		PQueueCreateInfos:    queueCreateInfos,
		QueueCreateInfoCount: uint32(len(queueCreateInfos)),

		EnabledExtensionCount:   uint32(len(a.deviceExtensions)),
		PpEnabledExtensionNames: a.deviceExtensions,
	}

	if a.enableValidationLayers {
		createInfo.PpEnabledLayerNames = a.validationLayers
		createInfo.EnabledLayerCount = uint32(len(a.validationLayers))
	}

	var device vk.Device
	err := vk.Error(vk.CreateDevice(a.physicalDevice, &createInfo, nil, &device))
	if err != nil {
		return fmt.Errorf("failed to create logical device: %w", err)
	}
	a.device = device

	var graphicsQueue vk.Queue
	vk.GetDeviceQueue(a.device, indices.Graphics.Get(), 0, &graphicsQueue)

	var presentQueue vk.Queue
	vk.GetDeviceQueue(a.device, indices.Present.Get(), 0, &presentQueue)

	dev, err := render.NewDevice(render.DeviceConfig{
		Physical:       a.physicalDevice,
		Handle:         a.device,
		GraphicsQueue:  graphicsQueue,
		PresentQueue:   presentQueue,
		GraphicsFamily: indices.Graphics.Get(),
	})
	if err != nil {
		return fmt.Errorf("wrapping logical device: %w", err)
	}
	a.dev = dev

	return nil
}

func (a *renderApp) loadAssets() error {
	mesh, err := models.Load(args.model)
	if err != nil {
		return fmt.Errorf("loading model %q: %w", args.model, err)
	}
	a.mesh = mesh

	vertexBuffer, err := a.dev.Upload(
		unsafer.SliceToBytes(mesh.Vertices),
		vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit),
	)
	if err != nil {
		return fmt.Errorf("uploading vertex buffer: %w", err)
	}
	a.vertexBuffer = vertexBuffer

	indexBuffer, err := a.dev.Upload(
		unsafer.SliceToBytes(mesh.Indices),
		vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit),
	)
	if err != nil {
		return fmt.Errorf("uploading index buffer: %w", err)
	}
	a.indexBuffer = indexBuffer

	pixels, err := textures.Load(args.texture)
	if err != nil {
		return fmt.Errorf("loading texture %q: %w", args.texture, err)
	}

	texture, err := a.dev.NewTexture(pixels)
	if err != nil {
		return fmt.Errorf("uploading texture: %w", err)
	}
	a.texture = texture

	return nil
}

func (a *renderApp) createUniforms() error {
	extent := a.swapChain.Extent()
	aspect := float32(extent.Width) / float32(extent.Height)

	uniforms, err := a.dev.NewUniformSet(
		a.swapChain.ImageCount(),
		a.descriptorSetLayout,
		a.texture,
		aspect,
	)
	if err != nil {
		return fmt.Errorf("creating uniform set: %w", err)
	}

	a.uniforms = uniforms
	return nil
}

// createCommandBuffers allocates one command buffer per swapchain image and
// records it once. The buffers are submitted many times concurrently, hence
// the simultaneous use flag.
func (a *renderApp) createCommandBuffers() error {
	commandBuffers, err := a.dev.AllocateCommandBuffers(a.swapChain.ImageCount())
	if err != nil {
		return fmt.Errorf("allocating command buffers: %w", err)
	}

	for i, commandBuffer := range commandBuffers {
		if err := a.recordCommandBuffer(commandBuffer, uint32(i)); err != nil {
			a.dev.FreeCommandBuffers(commandBuffers)
			return fmt.Errorf("recording command buffer %d: %w", i, err)
		}
	}

	a.commandBuffers = commandBuffers
	return nil
}

func (a *renderApp) recordCommandBuffer(
	commandBuffer vk.CommandBuffer,
	imageIndex uint32,
) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit),
	}

	res := vk.BeginCommandBuffer(commandBuffer, &beginInfo)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("cannot add begin command to the buffer: %w", err)
	}

	extent := a.swapChain.Extent()

	var clearValues [2]vk.ClearValue
	clearValues[0].SetColor([]float32{0, 0, 0, 1})
	clearValues[1].SetDepthStencil(1, 0)

	renderPassInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  a.renderPass,
		Framebuffer: a.framebuffers[imageIndex],
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{
				X: 0,
				Y: 0,
			},
			Extent: extent,
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues[:],
	}

	vk.CmdBeginRenderPass(commandBuffer, &renderPassInfo, vk.SubpassContentsInline)
	vk.CmdBindPipeline(commandBuffer, vk.PipelineBindPointGraphics, a.graphicsPipeline)

	vertexBuffers := []vk.Buffer{a.vertexBuffer.Handle()}
	offsets := []vk.DeviceSize{0}
	vk.CmdBindVertexBuffers(commandBuffer, 0, 1, vertexBuffers, offsets)

	vk.CmdBindIndexBuffer(commandBuffer, a.indexBuffer.Handle(), 0, vk.IndexTypeUint32)

	viewport := vk.Viewport{
		X: 0, Y: 0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
	vk.CmdSetViewport(commandBuffer, 0, 1, []vk.Viewport{viewport})

	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: extent,
	}
	vk.CmdSetScissor(commandBuffer, 0, 1, []vk.Rect2D{scissor})

	vk.CmdBindDescriptorSets(
		commandBuffer,
		vk.PipelineBindPointGraphics,
		a.pipelineLayout,
		0,
		1,
		[]vk.DescriptorSet{a.uniforms.DescriptorSet(imageIndex)},
		0,
		nil,
	)

	vk.CmdDrawIndexed(commandBuffer, uint32(len(a.mesh.Indices)), 1, 0, 0, 0)
	vk.CmdEndRenderPass(commandBuffer)

	if err := vk.Error(vk.EndCommandBuffer(commandBuffer)); err != nil {
		return fmt.Errorf("recording commands to buffer failed: %w", err)
	}
	return nil
}

func (a *renderApp) mainLoop() error {
	log.Printf("main loop!\n")

	lastTick := time.Now()

	for !a.window.ShouldClose() {
		now := time.Now()
		delta := now.Sub(lastTick)
		lastTick = now

		err := a.frames.DrawFrame(delta)
		switch {
		case errors.Is(err, render.ErrSwapchainOutOfDate),
			errors.Is(err, render.ErrSwapchainSuboptimal):
			a.frameBufferResized = false
			if err := a.recreateSwapChain(); err != nil {
				return fmt.Errorf("recreating swapchain: %w", err)
			}
		case err != nil:
			return fmt.Errorf("error drawing a frame: %w", err)
		case a.frameBufferResized:
			a.frameBufferResized = false
			if err := a.recreateSwapChain(); err != nil {
				return fmt.Errorf("recreating swapchain: %w", err)
			}
		}

		glfw.PollEvents()
	}

	a.dev.WaitIdle()

	return nil
}
