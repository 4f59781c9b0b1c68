package scene

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/df07/go-pathtracer/pkg/renderer"
	"github.com/qmuntal/gltf"
)

// ErrUnknownScene is returned when a scene name matches neither a built-in nor a glTF file
var ErrUnknownScene = errors.New("unknown scene")

const (
	builtInGroup = "Built-in Scenes"
	gltfGroup    = "glTF Scenes"
	gltfPrefix   = "gltf:"
)

// SceneInfo represents a discovered scene with its metadata
type SceneInfo struct {
	ID          string `json:"id"`          // Unique identifier
	Name        string `json:"name"`        // Scene name
	DisplayName string `json:"displayName"` // UI display name
	Description string `json:"description"` // Optional description
	Group       string `json:"group"`       // Grouping category
	Type        string `json:"type"`        // "builtin" or "gltf"
	FilePath    string `json:"filePath"`    // Path to glTF file (gltf type only)
}

// SceneGroup represents a group of related scenes
type SceneGroup struct {
	Name   string      `json:"name"`
	Scenes []SceneInfo `json:"scenes"`
}

// ScenesResponse represents the complete response for /api/scenes
type ScenesResponse struct {
	Groups []SceneGroup `json:"groups"`
}

type builtInScene struct {
	info   SceneInfo
	create func(seed int64, cameraOverrides ...renderer.CameraConfig) *Scene
}

var builtInScenes = []builtInScene{
	{
		info: SceneInfo{
			ID:          "simple",
			Name:        "Simple",
			DisplayName: "Simple",
			Description: "Blue sphere resting on a yellow ground sphere",
			Group:       builtInGroup,
			Type:        "builtin",
		},
		create: func(seed int64, cameraOverrides ...renderer.CameraConfig) *Scene {
			return NewSimpleScene(cameraOverrides...)
		},
	},
	{
		info: SceneInfo{
			ID:          "default",
			Name:        "Default Scene",
			DisplayName: "Default Scene",
			Description: "Diffuse, hollow glass and metal spheres on a ground sphere",
			Group:       builtInGroup,
			Type:        "builtin",
		},
		create: func(seed int64, cameraOverrides ...renderer.CameraConfig) *Scene {
			return NewDefaultScene(cameraOverrides...)
		},
	},
	{
		info: SceneInfo{
			ID:          "random",
			Name:        "Random Spheres",
			DisplayName: "Random Spheres",
			Description: "Hundreds of seeded random spheres with depth of field",
			Group:       builtInGroup,
			Type:        "builtin",
		},
		create: NewRandomScene,
	},
}

// Names returns the IDs of the built-in scenes
func Names() []string {
	names := make([]string, 0, len(builtInScenes))
	for _, s := range builtInScenes {
		names = append(names, s.info.ID)
	}
	return names
}

// Create builds the scene with the given name. Names ending in .gltf or .glb are
// loaded from disk; "gltf:<name>" refers to a file discovered in the scenes directory.
// The seed only affects procedurally generated scenes.
func Create(name string, seed int64, cameraOverrides ...renderer.CameraConfig) (*Scene, error) {
	for _, s := range builtInScenes {
		if s.info.ID == name {
			return s.create(seed, cameraOverrides...), nil
		}
	}

	if isGLTFPath(name) {
		return LoadGLTF(name, cameraOverrides...)
	}

	if strings.HasPrefix(name, gltfPrefix) {
		scenes, err := ListGLTFScenes()
		if err != nil {
			return nil, err
		}
		for _, info := range scenes {
			if info.ID == name {
				return LoadGLTF(info.FilePath, cameraOverrides...)
			}
		}
	}

	return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownScene, name, strings.Join(Names(), ", "))
}

func isGLTFPath(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".gltf" || ext == ".glb"
}

// ListGLTFScenes scans the scenes directory and returns discovered glTF scenes
func ListGLTFScenes() ([]SceneInfo, error) {
	// Try different possible paths for scenes directory
	for _, path := range []string{"scenes", "../scenes"} {
		if _, err := os.Stat(path); err == nil {
			return ListGLTFScenesIn(path)
		}
	}

	// No scenes directory found, return empty list
	return []SceneInfo{}, nil
}

// ListGLTFScenesIn returns the glTF scenes in dir sorted by display name
func ListGLTFScenesIn(dir string) ([]SceneInfo, error) {
	scenes := []SceneInfo{}
	for _, pattern := range []string{"*.gltf", "*.glb"} {
		files, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to scan scenes directory: %w", err)
		}
		for _, filePath := range files {
			scenes = append(scenes, ParseGLTFMetadata(filePath))
		}
	}

	sort.Slice(scenes, func(i, j int) bool {
		return scenes[i].DisplayName < scenes[j].DisplayName
	})

	return scenes, nil
}

// ParseGLTFMetadata reads the scene name and extras of a glTF file. Files that
// cannot be read still get fallback values derived from the file name.
func ParseGLTFMetadata(filePath string) SceneInfo {
	filename := filepath.Base(filePath)
	nameWithoutExt := strings.TrimSuffix(filename, filepath.Ext(filename))

	sceneInfo := SceneInfo{
		ID:          gltfPrefix + nameWithoutExt,
		Name:        titleCase(nameWithoutExt),
		DisplayName: titleCase(nameWithoutExt),
		Group:       gltfGroup,
		Type:        "gltf",
		FilePath:    filePath,
	}

	doc, err := gltf.Open(filePath)
	if err != nil {
		return sceneInfo
	}

	if len(doc.Scenes) > 0 && doc.Scenes[0].Name != "" {
		sceneInfo.Name = doc.Scenes[0].Name
		sceneInfo.DisplayName = doc.Scenes[0].Name
	}
	if extras, err := readGLTFSceneExtras(doc); err == nil {
		sceneInfo.Description = extras.Description
		if extras.Group != "" {
			sceneInfo.Group = extras.Group
		}
	}

	return sceneInfo
}

// ListAllScenes returns both built-in and glTF scenes, grouped by category
func ListAllScenes() (ScenesResponse, error) {
	var response ScenesResponse

	allScenes := make([]SceneInfo, 0, len(builtInScenes))
	for _, s := range builtInScenes {
		allScenes = append(allScenes, s.info)
	}

	gltfScenes, err := ListGLTFScenes()
	if err != nil {
		return response, fmt.Errorf("failed to list glTF scenes: %w", err)
	}
	allScenes = append(allScenes, gltfScenes...)

	// Group scenes by their Group field
	groupMap := make(map[string][]SceneInfo)
	for _, scene := range allScenes {
		groupMap[scene.Group] = append(groupMap[scene.Group], scene)
	}

	// Create ordered groups (Built-in first, then alphabetical)
	var groupNames []string
	for groupName := range groupMap {
		if groupName != builtInGroup {
			groupNames = append(groupNames, groupName)
		}
	}
	sort.Strings(groupNames)

	if group, exists := groupMap[builtInGroup]; exists {
		response.Groups = append(response.Groups, SceneGroup{
			Name:   builtInGroup,
			Scenes: group,
		})
	}
	for _, groupName := range groupNames {
		response.Groups = append(response.Groups, SceneGroup{
			Name:   groupName,
			Scenes: groupMap[groupName],
		})
	}

	return response, nil
}

// titleCase converts a filename-style string to title case
// e.g., "glass-spheres" -> "Glass Spheres"
func titleCase(s string) string {
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")

	words := strings.Fields(s)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
	}

	return strings.Join(words, " ")
}
