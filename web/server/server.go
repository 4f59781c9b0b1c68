package server

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/df07/go-pathtracer/pkg/core"
	"github.com/df07/go-pathtracer/pkg/renderer"
	"github.com/df07/go-pathtracer/pkg/scene"
)

// Parameter limits shared by the render, image and inspect endpoints
const (
	defaultScene   = "default"
	defaultWidth   = 400
	minWidth       = 16
	maxWidth       = 2000
	defaultSamples = 10
	maxSamples     = 10000
	defaultDepth   = 50
	maxDepth       = 1000
)

// Server handles web requests for the path tracer
type Server struct {
	port      int
	staticDir string
}

// NewServer creates a new web server
func NewServer(port int) *Server {
	return &Server{port: port, staticDir: "static/"}
}

// RenderRequest represents a render request from the client
type RenderRequest struct {
	Scene           string  `json:"scene"`           // Built-in scene ID or gltf:<name>
	Width           int     `json:"width"`           // Image width, height follows the scene's aspect ratio
	VFov            float64 `json:"vfov"`            // Vertical field of view, 0 keeps the scene's
	SamplesPerPixel int     `json:"samplesPerPixel"` // Samples per pixel
	MaxDepth        int     `json:"maxDepth"`        // Maximum bounce depth
	Seed            int64   `json:"seed"`            // Sampling and scene generation seed
}

// Stats represents render statistics
type Stats struct {
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	TotalPixels      int     `json:"totalPixels"`
	TotalSamples     int     `json:"totalSamples"`
	SamplesPerPixel  int     `json:"samplesPerPixel"`
	Workers          int     `json:"workers"`
	ElapsedMs        int64   `json:"elapsedMs"`
	SamplesPerSecond float64 `json:"samplesPerSecond"`
	PrimitiveCount   int     `json:"primitiveCount"`
	AverageLuminance float64 `json:"averageLuminance"`
}

// Handler returns the routes served by the web server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Serve static files
	mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))

	// API endpoints
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/scenes", s.handleScenes)
	mux.HandleFunc("/api/scene-config", s.handleSceneConfig)
	mux.HandleFunc("/api/render", s.handleRender)
	mux.HandleFunc("/api/image", s.handleImage)
	mux.HandleFunc("/api/inspect", s.handleInspect)
	return mux
}

// Start starts the web server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	log.Printf("Starting web server on http://localhost%s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// handleHealth provides a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleScenes lists built-in and glTF scenes grouped for the scene picker
func (s *Server) handleScenes(w http.ResponseWriter, r *http.Request) {
	response, err := scene.ListAllScenes()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, response)
}

// handleSceneConfig returns the default configuration for a scene
func (s *Server) handleSceneConfig(w http.ResponseWriter, r *http.Request) {
	sceneName := r.URL.Query().Get("scene")
	if sceneName == "" {
		sceneName = defaultScene
	}
	if err := validateSceneID(sceneName); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sceneObj, err := scene.Create(sceneName, renderer.DefaultSamplingConfig().Seed)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	camera := sceneObj.CameraConfig
	sampling := sceneObj.SamplingConfig
	response := map[string]interface{}{
		"scene": sceneName,
		"defaults": map[string]interface{}{
			"width":           camera.Width,
			"height":          camera.ImageHeight(),
			"aspectRatio":     camera.AspectRatio,
			"vfov":            camera.VFov,
			"aperture":        camera.Aperture,
			"samplesPerPixel": sampling.SamplesPerPixel,
			"maxDepth":        sampling.MaxDepth,
			"seed":            sampling.Seed,
			"primitiveCount":  sceneObj.GetPrimitiveCount(),
		},
		"limits": map[string]interface{}{
			"width": map[string]int{
				"min": minWidth,
				"max": maxWidth,
			},
			"vfov": map[string]float64{
				"min": 0,
				"max": 179,
			},
			"samplesPerPixel": map[string]int{
				"min": 1,
				"max": maxSamples,
			},
			"maxDepth": map[string]int{
				"min": 1,
				"max": maxDepth,
			},
		},
	}

	writeJSON(w, http.StatusOK, response)
}

// parseCommonSceneParams parses the scene selection shared by every endpoint
func (s *Server) parseCommonSceneParams(r *http.Request, req *RenderRequest) error {
	query := r.URL.Query()

	req.Scene = query.Get("scene")
	if req.Scene == "" {
		req.Scene = defaultScene
	}
	if err := validateSceneID(req.Scene); err != nil {
		return err
	}

	var err error
	if req.Width, err = parseIntParam(query, "width", defaultWidth, minWidth, maxWidth); err != nil {
		return err
	}
	if req.VFov, err = parseFloatParam(query, "vfov", 0, 0, 179); err != nil {
		return err
	}
	seed, err := parseIntParam(query, "seed", int(renderer.DefaultSamplingConfig().Seed), 0, math.MaxInt32)
	if err != nil {
		return err
	}
	req.Seed = int64(seed)
	return nil
}

// validateSceneID accepts built-in scene IDs and gltf:<name> IDs discovered in the
// scenes directory. File paths are never opened on behalf of a client.
func validateSceneID(id string) error {
	if slices.Contains(scene.Names(), id) {
		return nil
	}
	if strings.HasPrefix(id, "gltf:") {
		scenes, err := scene.ListGLTFScenes()
		if err != nil {
			return err
		}
		for _, info := range scenes {
			if info.ID == id {
				return nil
			}
		}
	}
	return fmt.Errorf("unknown scene %q", id)
}

// parseRenderRequest parses request parameters
func (s *Server) parseRenderRequest(r *http.Request) (*RenderRequest, error) {
	req := &RenderRequest{}

	if err := s.parseCommonSceneParams(r, req); err != nil {
		return nil, err
	}

	var err error
	if req.SamplesPerPixel, err = parseIntParam(r.URL.Query(), "samples", defaultSamples, 1, maxSamples); err != nil {
		return nil, err
	}
	if req.MaxDepth, err = parseIntParam(r.URL.Query(), "depth", defaultDepth, 1, maxDepth); err != nil {
		return nil, err
	}

	// Performance warning
	if req.Width > 800 && req.SamplesPerPixel > 100 {
		log.Printf("Render warning: Large image with high samples may render slowly")
	}

	return req, nil
}

// createScene builds the requested scene with the request's width and sampling settings
func (s *Server) createScene(req *RenderRequest) (*scene.Scene, error) {
	sceneObj, err := scene.Create(req.Scene, req.Seed, renderer.CameraConfig{Width: req.Width, VFov: req.VFov})
	if err != nil {
		return nil, err
	}

	sceneObj.SamplingConfig = renderer.MergeSamplingConfig(sceneObj.SamplingConfig, renderer.SamplingConfig{
		SamplesPerPixel: req.SamplesPerPixel,
		MaxDepth:        req.MaxDepth,
	})
	// Zero is a valid seed here, so it is not merged
	sceneObj.SamplingConfig.Seed = req.Seed
	// Use every CPU for web renders
	sceneObj.SamplingConfig.NumWorkers = 0
	return sceneObj, nil
}

// newRenderer creates the scene and its renderer for a request
func (s *Server) newRenderer(req *RenderRequest, logger core.Logger) (*scene.Scene, *renderer.Renderer, error) {
	sceneObj, err := s.createScene(req)
	if err != nil {
		return nil, nil, err
	}
	r, err := sceneObj.NewRenderer(logger)
	if err != nil {
		return nil, nil, err
	}
	return sceneObj, r, nil
}

// parseIntParam parses an integer parameter from URL query with validation
func parseIntParam(values url.Values, key string, defaultValue, min, max int) (int, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", key, value)
		}
		if parsed < min || parsed > max {
			return 0, fmt.Errorf("%s must be between %d and %d, got: %d", key, min, max, parsed)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

// parseFloatParam parses a float parameter from URL query with validation
func parseFloatParam(values url.Values, key string, defaultValue, min, max float64) (float64, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", key, value)
		}
		if parsed < min || parsed > max {
			return 0, fmt.Errorf("%s must be between %f and %f, got: %f", key, min, max, parsed)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
