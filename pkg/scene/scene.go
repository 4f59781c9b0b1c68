package scene

import (
	"github.com/df07/go-pathtracer/pkg/core"
	"github.com/df07/go-pathtracer/pkg/geometry"
	"github.com/df07/go-pathtracer/pkg/integrator"
	"github.com/df07/go-pathtracer/pkg/material"
	"github.com/df07/go-pathtracer/pkg/renderer"
)

// Scene contains all the elements needed for rendering
type Scene struct {
	Name           string
	World          *geometry.HittableList // Objects in the scene
	CameraConfig   renderer.CameraConfig
	SamplingConfig renderer.SamplingConfig
	Background     integrator.Background
}

// newScene creates an empty scene with default configuration
func newScene(name string, cameraConfig renderer.CameraConfig, cameraOverrides []renderer.CameraConfig) *Scene {
	// Apply any overrides using the reusable merge function
	if len(cameraOverrides) > 0 {
		cameraConfig = renderer.MergeCameraConfig(cameraConfig, cameraOverrides[0])
	}

	return &Scene{
		Name:           name,
		World:          geometry.NewHittableList(),
		CameraConfig:   cameraConfig,
		SamplingConfig: renderer.DefaultSamplingConfig(),
		Background:     integrator.DefaultBackground(),
	}
}

// AddSphere adds a sphere to the scene
func (s *Scene) AddSphere(center core.Vec3, radius float64, mat material.Material) {
	s.World.Add(geometry.NewSphere(center, radius, mat))
}

// GetPrimitiveCount returns the total number of primitive objects in the scene
func (s *Scene) GetPrimitiveCount() int {
	return s.World.Len()
}

// NewCamera builds the scene's camera after validating its configuration
func (s *Scene) NewCamera() (*renderer.Camera, error) {
	if err := s.CameraConfig.Validate(); err != nil {
		return nil, err
	}
	return renderer.NewCamera(s.CameraConfig), nil
}

// NewRenderer wires the scene into a path tracing renderer
func (s *Scene) NewRenderer(logger core.Logger) (*renderer.Renderer, error) {
	camera, err := s.NewCamera()
	if err != nil {
		return nil, err
	}
	if err := s.SamplingConfig.Validate(); err != nil {
		return nil, err
	}
	return renderer.NewPathTracer(s.World, camera, s.Background, s.SamplingConfig, logger), nil
}
