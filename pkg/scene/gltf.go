package scene

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/df07/go-pathtracer/pkg/core"
	"github.com/df07/go-pathtracer/pkg/material"
	"github.com/df07/go-pathtracer/pkg/renderer"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/qmuntal/gltf"
)

const (
	extensionIOR          = "KHR_materials_ior"
	extensionTransmission = "KHR_materials_transmission"
	defaultIOR            = 1.5
)

// gltfSceneExtras are read from the extras of the document's scene
type gltfSceneExtras struct {
	Description     string `json:"description"`
	Group           string `json:"group"`
	SamplesPerPixel int    `json:"samplesPerPixel"`
	MaxDepth        int    `json:"maxDepth"`
	Background      *struct {
		Top    string `json:"top"`
		Bottom string `json:"bottom"`
	} `json:"background"`
}

// gltfMaterialExtras override the PBR mapping
type gltfMaterialExtras struct {
	IOR *float64 `json:"ior"`
}

// gltfCameraExtras add depth of field to a perspective camera
type gltfCameraExtras struct {
	Aperture      float64 `json:"aperture"`
	FocusDistance float64 `json:"focusDistance"`
}

// LoadGLTF builds a scene from a .gltf or .glb file. Every node that references a
// mesh becomes a sphere centered at the node translation with radius equal to the
// node's X scale; the first perspective camera node positions the camera.
// Only local node transforms are used.
func LoadGLTF(path string, cameraOverrides ...renderer.CameraConfig) (*Scene, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open glTF scene %s: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return buildGLTFScene(name, doc, cameraOverrides)
}

func buildGLTFScene(name string, doc *gltf.Document, cameraOverrides []renderer.CameraConfig) (*Scene, error) {
	cameraConfig, err := gltfCameraConfig(doc)
	if err != nil {
		return nil, err
	}
	s := newScene(name, cameraConfig, cameraOverrides)

	if err := applyGLTFSceneExtras(s, doc); err != nil {
		return nil, err
	}

	// Materials are shared between the spheres that reference them
	materials := make([]material.Material, len(doc.Materials))
	for i, m := range doc.Materials {
		mat, err := gltfMaterial(m)
		if err != nil {
			return nil, fmt.Errorf("material %d (%s): %w", i, m.Name, err)
		}
		materials[i] = mat
	}
	fallback := material.NewLambertian(core.NewVec3(0.5, 0.5, 0.5))

	for i, node := range doc.Nodes {
		if node.Mesh == nil {
			continue
		}
		if *node.Mesh < 0 || *node.Mesh >= len(doc.Meshes) {
			return nil, fmt.Errorf("node %d (%s): mesh index %d out of range", i, node.Name, *node.Mesh)
		}

		radius := node.Scale[0]
		if node.Scale == [3]float64{} {
			radius = 1
		}
		if radius == 0 {
			return nil, fmt.Errorf("node %d (%s): zero scale gives a degenerate sphere", i, node.Name)
		}

		mat := material.Material(fallback)
		mesh := doc.Meshes[*node.Mesh]
		if len(mesh.Primitives) > 0 && mesh.Primitives[0].Material != nil {
			index := *mesh.Primitives[0].Material
			if index < 0 || index >= len(materials) {
				return nil, fmt.Errorf("node %d (%s): material index %d out of range", i, node.Name, index)
			}
			mat = materials[index]
		}

		center := core.NewVec3(node.Translation[0], node.Translation[1], node.Translation[2])
		s.AddSphere(center, radius, mat)
	}

	if s.World.Len() == 0 {
		return nil, fmt.Errorf("glTF scene %s has no mesh nodes", name)
	}
	return s, nil
}

// gltfMaterial maps a PBR metallic-roughness material onto the closest of the
// three material models
func gltfMaterial(m *gltf.Material) (material.Material, error) {
	baseColor := core.NewVec3(1, 1, 1)
	metallic, roughness := 1.0, 1.0
	if pbr := m.PBRMetallicRoughness; pbr != nil {
		if pbr.BaseColorFactor != nil {
			f := *pbr.BaseColorFactor
			baseColor = core.NewVec3(f[0], f[1], f[2])
		}
		if pbr.MetallicFactor != nil {
			metallic = *pbr.MetallicFactor
		}
		if pbr.RoughnessFactor != nil {
			roughness = *pbr.RoughnessFactor
		}
	}

	var extras gltfMaterialExtras
	if err := decodeGLTFValue(m.Extras, &extras); err != nil {
		return nil, fmt.Errorf("extras: %w", err)
	}
	if extras.IOR != nil {
		return material.NewDielectric(*extras.IOR), nil
	}

	var transmission struct {
		TransmissionFactor float64 `json:"transmissionFactor"`
	}
	if err := decodeGLTFValue(m.Extensions[extensionTransmission], &transmission); err != nil {
		return nil, fmt.Errorf("%s: %w", extensionTransmission, err)
	}
	if transmission.TransmissionFactor > 0 {
		ior := struct {
			IOR *float64 `json:"ior"`
		}{}
		if err := decodeGLTFValue(m.Extensions[extensionIOR], &ior); err != nil {
			return nil, fmt.Errorf("%s: %w", extensionIOR, err)
		}
		if ior.IOR != nil && *ior.IOR > 0 {
			return material.NewDielectric(*ior.IOR), nil
		}
		return material.NewDielectric(defaultIOR), nil
	}

	if metallic >= 0.5 {
		return material.NewMetal(baseColor, roughness), nil
	}
	return material.NewLambertian(baseColor), nil
}

// gltfCameraConfig reads the first node carrying a perspective camera
func gltfCameraConfig(doc *gltf.Document) (renderer.CameraConfig, error) {
	config := renderer.DefaultCameraConfig()

	for i, node := range doc.Nodes {
		if node.Camera == nil {
			continue
		}
		if *node.Camera < 0 || *node.Camera >= len(doc.Cameras) {
			return config, fmt.Errorf("node %d (%s): camera index %d out of range", i, node.Name, *node.Camera)
		}
		cam := doc.Cameras[*node.Camera]
		if cam.Perspective == nil {
			continue
		}

		rotation := node.Rotation
		if rotation == [4]float64{} {
			rotation = [4]float64{0, 0, 0, 1}
		}
		center := core.NewVec3(node.Translation[0], node.Translation[1], node.Translation[2])
		forward := rotateByQuaternion(rotation, core.NewVec3(0, 0, -1))

		config.Center = center
		config.LookAt = center.Add(forward)
		config.Up = rotateByQuaternion(rotation, core.NewVec3(0, 1, 0))
		config.VFov = cam.Perspective.Yfov * 180.0 / math.Pi
		if cam.Perspective.AspectRatio != nil && *cam.Perspective.AspectRatio > 0 {
			config.AspectRatio = *cam.Perspective.AspectRatio
		}

		var extras gltfCameraExtras
		if err := decodeGLTFValue(cam.Extras, &extras); err != nil {
			return config, fmt.Errorf("camera %d extras: %w", *node.Camera, err)
		}
		config.Aperture = extras.Aperture
		config.FocusDistance = extras.FocusDistance
		return config, nil
	}

	return config, nil
}

// applyGLTFSceneExtras applies sampling and background settings from the scene extras
func applyGLTFSceneExtras(s *Scene, doc *gltf.Document) error {
	extras, err := readGLTFSceneExtras(doc)
	if err != nil {
		return err
	}

	s.SamplingConfig = renderer.MergeSamplingConfig(s.SamplingConfig, renderer.SamplingConfig{
		SamplesPerPixel: extras.SamplesPerPixel,
		MaxDepth:        extras.MaxDepth,
	})

	if bg := extras.Background; bg != nil {
		if bg.Top != "" {
			top, err := ParseHexColor(bg.Top)
			if err != nil {
				return fmt.Errorf("background top: %w", err)
			}
			s.Background.Top = top
		}
		if bg.Bottom != "" {
			bottom, err := ParseHexColor(bg.Bottom)
			if err != nil {
				return fmt.Errorf("background bottom: %w", err)
			}
			s.Background.Bottom = bottom
		}
	}
	return nil
}

func readGLTFSceneExtras(doc *gltf.Document) (gltfSceneExtras, error) {
	var extras gltfSceneExtras
	if len(doc.Scenes) == 0 {
		return extras, nil
	}
	index := 0
	if doc.Scene != nil && *doc.Scene >= 0 && *doc.Scene < len(doc.Scenes) {
		index = *doc.Scene
	}
	if err := decodeGLTFValue(doc.Scenes[index].Extras, &extras); err != nil {
		return extras, fmt.Errorf("scene extras: %w", err)
	}
	return extras, nil
}

// decodeGLTFValue re-decodes an extras or extension value into target. The gltf
// package leaves unregistered extensions as raw JSON and extras as generic values.
func decodeGLTFValue(value any, target any) error {
	if value == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, target)
}

// rotateByQuaternion rotates v by the unit quaternion q = (x, y, z, w)
func rotateByQuaternion(q [4]float64, v core.Vec3) core.Vec3 {
	axis := core.NewVec3(q[0], q[1], q[2])
	t := axis.Cross(v).Multiply(2)
	return v.Add(t.Multiply(q[3])).Add(axis.Cross(t))
}

// ParseHexColor parses "#rrggbb" into a linear color
func ParseHexColor(s string) (core.Vec3, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return core.Vec3{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	r, g, b := c.LinearRgb()
	return core.NewVec3(r, g, b), nil
}
