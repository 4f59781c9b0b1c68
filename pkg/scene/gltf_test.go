package scene

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/df07/go-pathtracer/pkg/core"
	"github.com/df07/go-pathtracer/pkg/geometry"
	"github.com/df07/go-pathtracer/pkg/material"
	"github.com/df07/go-pathtracer/pkg/renderer"
)

const testGLTF = `{
  "asset": {"version": "2.0"},
  "scene": 0,
  "scenes": [{
    "name": "Glass Trio",
    "nodes": [0, 1, 2, 3, 4],
    "extras": {
      "description": "Three spheres and a ground",
      "group": "Test Scenes",
      "samplesPerPixel": 16,
      "maxDepth": 8,
      "background": {"top": "#000000", "bottom": "#ffffff"}
    }
  }],
  "nodes": [
    {"name": "ground", "mesh": 0, "translation": [0, -100.5, -1], "scale": [100, 100, 100]},
    {"name": "glass", "mesh": 1, "translation": [-1, 0, -1], "scale": [0.5, 0.5, 0.5]},
    {"name": "gold", "mesh": 2, "translation": [1, 0, -1], "scale": [0.5, 0.5, 0.5]},
    {"name": "plain", "mesh": 3, "translation": [0, 0, -1]},
    {"name": "camera", "camera": 0, "translation": [0, 1, 3], "rotation": [0, 0, 0, 1]}
  ],
  "meshes": [
    {"primitives": [{"attributes": {}, "material": 0}]},
    {"primitives": [{"attributes": {}, "material": 1}]},
    {"primitives": [{"attributes": {}, "material": 2}]},
    {"primitives": [{"attributes": {}}]}
  ],
  "materials": [
    {"name": "ground", "pbrMetallicRoughness": {"baseColorFactor": [0.8, 0.8, 0.0, 1.0], "metallicFactor": 0.0}},
    {"name": "glass", "extensions": {
      "KHR_materials_transmission": {"transmissionFactor": 1.0},
      "KHR_materials_ior": {"ior": 1.33}
    }},
    {"name": "gold", "pbrMetallicRoughness": {"baseColorFactor": [0.8, 0.6, 0.2, 1.0], "metallicFactor": 1.0, "roughnessFactor": 0.3}}
  ],
  "cameras": [{
    "type": "perspective",
    "perspective": {"yfov": 0.7853981633974483, "aspectRatio": 2.0, "znear": 0.1},
    "extras": {"aperture": 0.2, "focusDistance": 4}
  }],
  "extensionsUsed": ["KHR_materials_transmission", "KHR_materials_ior"]
}`

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func sphereAt(t *testing.T, s *Scene, i int) *geometry.Sphere {
	t.Helper()
	sphere, ok := s.World.Objects[i].(*geometry.Sphere)
	if !ok {
		t.Fatalf("Object %d is %T, expected *geometry.Sphere", i, s.World.Objects[i])
	}
	return sphere
}

func TestLoadGLTF(t *testing.T) {
	path := writeTestFile(t, "glass-trio.gltf", testGLTF)

	s, err := LoadGLTF(path)
	if err != nil {
		t.Fatalf("LoadGLTF failed: %v", err)
	}
	if s.Name != "glass-trio" {
		t.Errorf("Expected name glass-trio, got %s", s.Name)
	}
	if s.GetPrimitiveCount() != 4 {
		t.Fatalf("Expected 4 spheres, got %d", s.GetPrimitiveCount())
	}

	ground := sphereAt(t, s, 0)
	if ground.Radius != 100 || ground.Center != core.NewVec3(0, -100.5, -1) {
		t.Errorf("Unexpected ground sphere %+v", ground)
	}
	if lambertian, ok := ground.Material.(*material.Lambertian); !ok || lambertian.Albedo != core.NewVec3(0.8, 0.8, 0.0) {
		t.Errorf("Expected yellow lambertian ground, got %#v", ground.Material)
	}

	glass := sphereAt(t, s, 1)
	if dielectric, ok := glass.Material.(*material.Dielectric); !ok || dielectric.RefractiveIndex != 1.33 {
		t.Errorf("Expected dielectric with ior 1.33, got %#v", glass.Material)
	}

	gold := sphereAt(t, s, 2)
	if metal, ok := gold.Material.(*material.Metal); !ok || metal.Fuzzness != 0.3 || metal.Albedo != core.NewVec3(0.8, 0.6, 0.2) {
		t.Errorf("Expected gold metal with fuzz 0.3, got %#v", gold.Material)
	}

	plain := sphereAt(t, s, 3)
	if plain.Radius != 1 {
		t.Errorf("Expected default scale to give radius 1, got %f", plain.Radius)
	}
	if lambertian, ok := plain.Material.(*material.Lambertian); !ok || lambertian.Albedo != core.NewVec3(0.5, 0.5, 0.5) {
		t.Errorf("Expected grey fallback material, got %#v", plain.Material)
	}
}

func TestLoadGLTFCamera(t *testing.T) {
	s, err := LoadGLTF(writeTestFile(t, "scene.gltf", testGLTF))
	if err != nil {
		t.Fatalf("LoadGLTF failed: %v", err)
	}

	config := s.CameraConfig
	if config.Center != core.NewVec3(0, 1, 3) {
		t.Errorf("Expected center (0,1,3), got %v", config.Center)
	}
	if !vecNear(config.LookAt, core.NewVec3(0, 1, 2)) {
		t.Errorf("Expected look-at one unit down -z, got %v", config.LookAt)
	}
	if !vecNear(config.Up, core.NewVec3(0, 1, 0)) {
		t.Errorf("Expected up (0,1,0), got %v", config.Up)
	}
	if math.Abs(config.VFov-45) > 1e-9 {
		t.Errorf("Expected vfov 45, got %f", config.VFov)
	}
	if config.AspectRatio != 2 || config.Aperture != 0.2 || config.FocusDistance != 4 {
		t.Errorf("Unexpected camera config %+v", config)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Expected loaded camera to be valid, got %v", err)
	}
}

func TestLoadGLTFSceneExtras(t *testing.T) {
	s, err := LoadGLTF(writeTestFile(t, "scene.gltf", testGLTF))
	if err != nil {
		t.Fatalf("LoadGLTF failed: %v", err)
	}

	if s.SamplingConfig.SamplesPerPixel != 16 || s.SamplingConfig.MaxDepth != 8 {
		t.Errorf("Expected 16 spp and depth 8, got %+v", s.SamplingConfig)
	}
	if s.SamplingConfig.NumWorkers != renderer.DefaultSamplingConfig().NumWorkers {
		t.Errorf("Expected unset fields to keep defaults, got %+v", s.SamplingConfig)
	}
	if s.Background.Top != (core.Vec3{}) || !vecNear(s.Background.Bottom, core.NewVec3(1, 1, 1)) {
		t.Errorf("Expected black-to-white background, got %+v", s.Background)
	}
}

func TestLoadGLTFCameraOverrides(t *testing.T) {
	s, err := LoadGLTF(writeTestFile(t, "scene.gltf", testGLTF), renderer.CameraConfig{Width: 64, Aperture: 0.5})
	if err != nil {
		t.Fatalf("LoadGLTF failed: %v", err)
	}
	if s.CameraConfig.Width != 64 || s.CameraConfig.Aperture != 0.5 {
		t.Errorf("Expected overrides to apply, got %+v", s.CameraConfig)
	}
	if s.CameraConfig.FocusDistance != 4 {
		t.Errorf("Expected file focus distance to survive, got %f", s.CameraConfig.FocusDistance)
	}
}

func TestLoadGLTFRotatedCamera(t *testing.T) {
	// Quarter turn about +Y: the camera looks down -x
	content := `{
  "asset": {"version": "2.0"},
  "nodes": [
    {"mesh": 0},
    {"camera": 0, "rotation": [0, 0.7071067811865476, 0, 0.7071067811865476]}
  ],
  "meshes": [{"primitives": [{"attributes": {}}]}],
  "cameras": [{"type": "perspective", "perspective": {"yfov": 1.0, "znear": 0.1}}]
}`
	s, err := LoadGLTF(writeTestFile(t, "rotated.gltf", content))
	if err != nil {
		t.Fatalf("LoadGLTF failed: %v", err)
	}

	forward := s.CameraConfig.LookAt.Subtract(s.CameraConfig.Center)
	if !vecNear(forward, core.NewVec3(-1, 0, 0)) {
		t.Errorf("Expected forward (-1,0,0), got %v", forward)
	}
	// No aspect ratio in the file keeps the default
	if s.CameraConfig.AspectRatio != renderer.DefaultCameraConfig().AspectRatio {
		t.Errorf("Expected default aspect ratio, got %f", s.CameraConfig.AspectRatio)
	}
}

func TestLoadGLTFNegativeScaleIsHollowShell(t *testing.T) {
	content := `{
  "asset": {"version": "2.0"},
  "nodes": [{"mesh": 0, "scale": [-0.45, -0.45, -0.45]}],
  "meshes": [{"primitives": [{"attributes": {}, "material": 0}]}],
  "materials": [{"extras": {"ior": 1.5}}]
}`
	s, err := LoadGLTF(writeTestFile(t, "shell.gltf", content))
	if err != nil {
		t.Fatalf("LoadGLTF failed: %v", err)
	}
	sphere := sphereAt(t, s, 0)
	if sphere.Radius != -0.45 {
		t.Errorf("Expected radius -0.45, got %f", sphere.Radius)
	}
	if _, ok := sphere.Material.(*material.Dielectric); !ok {
		t.Errorf("Expected ior extras to force a dielectric, got %T", sphere.Material)
	}
}

func TestLoadGLTFErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errText string
	}{
		{
			name:    "zero radius",
			content: `{"asset": {"version": "2.0"}, "nodes": [{"mesh": 0, "scale": [0, 1, 1]}], "meshes": [{"primitives": [{"attributes": {}}]}]}`,
			errText: "degenerate",
		},
		{
			name:    "no meshes",
			content: `{"asset": {"version": "2.0"}, "nodes": [{"name": "empty"}]}`,
			errText: "no mesh nodes",
		},
		{
			name:    "bad material index",
			content: `{"asset": {"version": "2.0"}, "nodes": [{"mesh": 0}], "meshes": [{"primitives": [{"attributes": {}, "material": 3}]}]}`,
			errText: "out of range",
		},
		{
			name:    "bad background color",
			content: `{"asset": {"version": "2.0"}, "scenes": [{"extras": {"background": {"top": "blue"}}}], "nodes": [{"mesh": 0}], "meshes": [{"primitives": [{"attributes": {}}]}]}`,
			errText: "invalid hex color",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadGLTF(writeTestFile(t, "broken.gltf", tt.content))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("Expected error containing %q, got %v", tt.errText, err)
			}
		})
	}

	if _, err := LoadGLTF(filepath.Join(t.TempDir(), "missing.gltf")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		input    string
		expected core.Vec3
		wantErr  bool
	}{
		{"#ffffff", core.NewVec3(1, 1, 1), false},
		{"#000000", core.NewVec3(0, 0, 0), false},
		{"#ff0000", core.NewVec3(1, 0, 0), false},
		{"#fff", core.NewVec3(1, 1, 1), false},
		{"white", core.Vec3{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseHexColor(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !vecNear(got, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}

	// Mid grey is linearised
	grey, err := ParseHexColor("#808080")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if grey.X >= 0.5 || grey.X <= 0.2 {
		t.Errorf("Expected linear mid grey around 0.22, got %f", grey.X)
	}
}

func vecNear(a, b core.Vec3) bool {
	return a.Subtract(b).Length() < 1e-9
}
