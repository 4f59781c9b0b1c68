package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"log"
	"net/http"
	"time"

	"github.com/df07/go-pathtracer/pkg/core"
	"github.com/df07/go-pathtracer/pkg/output"
	"github.com/df07/go-pathtracer/pkg/renderer"
	"github.com/df07/go-pathtracer/pkg/scene"
)

// ScanlineUpdate represents a single completed row sent via SSE
type ScanlineUpdate struct {
	Row       int    `json:"row"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Width     int    `json:"width"`
	ImageData string `json:"imageData"` // Base64 encoded PNG of just this row
}

// CompleteUpdate is sent once the image is finished
type CompleteUpdate struct {
	Stats     Stats  `json:"stats"`
	ImageData string `json:"imageData"` // Base64 encoded PNG of the full image
}

// SSEEvent represents a unified SSE event for thread-safe writing
type SSEEvent struct {
	Type string `json:"type"` // "console", "scanline", "error", "complete"
	Data string `json:"data"` // JSON-encoded data
}

// handleRender renders a scene and streams every completed scanline via SSE
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	// Set SSE headers
	s.setSSEHeaders(w)

	ctx := r.Context()

	// Create unified SSE event channel for thread-safe writing
	sseEventChan := make(chan SSEEvent, 100)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeSSEEvents(ctx, w, sseEventChan)
	}()
	defer func() {
		close(sseEventChan)
		<-writerDone
	}()

	req, err := s.parseRenderRequest(r)
	if err != nil {
		s.handleError(ctx, sseEventChan, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	// Setup console logging and streaming
	consoleChan, webLogger := s.setupConsoleLogging()
	streamerDone := make(chan struct{})
	go func() {
		defer close(streamerDone)
		s.streamConsoleMessages(ctx, consoleChan, sseEventChan)
	}()

	sceneObj, rt, err := s.newRenderer(req, webLogger)
	if err != nil {
		close(consoleChan)
		<-streamerDone
		s.handleError(ctx, sseEventChan, err.Error())
		return
	}

	fb, stats, err := rt.Render(ctx, renderer.RenderOptions{
		ScanlineCallback: func(result renderer.ScanlineResult) {
			s.handleScanlineUpdate(ctx, sseEventChan, result)
		},
	})

	// The logger is idle once Render returns
	close(consoleChan)
	<-streamerDone

	if err != nil {
		s.handleError(ctx, sseEventChan, fmt.Sprintf("Rendering failed: %v", err))
		return
	}

	s.handleComplete(ctx, sseEventChan, fb, stats, sceneObj)
}

// handleImage renders a scene and returns the finished image in one response
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRenderRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	formatName := r.URL.Query().Get("format")
	if formatName == "" {
		formatName = "png"
	}
	format, err := output.FormatFromPath("image." + formatName)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, rt, err := s.newRenderer(req, renderer.NopLogger{})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fb, stats, err := rt.Render(r.Context(), renderer.RenderOptions{})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Rendering failed: "+err.Error())
		return
	}

	// Encode before writing headers so a failure can still be reported
	var buf bytes.Buffer
	if err := output.Encode(&buf, format, fb); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", contentType(format))
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("X-Render-Duration", stats.Duration.String())
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func contentType(format output.Format) string {
	switch format {
	case output.FormatPNG:
		return "image/png"
	case output.FormatPPMGzip:
		return "application/gzip"
	case output.FormatPPMZstd:
		return "application/zstd"
	default:
		return "image/x-portable-pixmap"
	}
}

// setSSEHeaders sets the required headers for Server-Sent Events
func (s *Server) setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

// setupConsoleLogging creates console channel and web logger for a render
func (s *Server) setupConsoleLogging() (chan ConsoleMessage, core.Logger) {
	consoleChan := make(chan ConsoleMessage, 50)
	renderID := fmt.Sprintf("render-%d", time.Now().UnixNano())
	webLogger := NewWebLogger(renderID, consoleChan)
	return consoleChan, webLogger
}

// writeSSEEvents handles writing all SSE events in a single goroutine (thread-safe)
func (s *Server) writeSSEEvents(ctx context.Context, w http.ResponseWriter, sseEventChan chan SSEEvent) {
	for {
		select {
		case event, ok := <-sseEventChan:
			if !ok {
				// Channel closed
				return
			}

			// Write SSE event
			_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data)
			if err != nil {
				// Client disconnected during write
				return
			}
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}

		case <-ctx.Done():
			// Client disconnected
			return
		}
	}
}

// streamConsoleMessages forwards console messages until consoleChan is closed
func (s *Server) streamConsoleMessages(ctx context.Context, consoleChan chan ConsoleMessage, sseEventChan chan SSEEvent) {
	for {
		select {
		case consoleMsg, ok := <-consoleChan:
			if !ok {
				// Channel closed
				return
			}

			data, err := json.Marshal(consoleMsg)
			if err != nil {
				log.Printf("Error marshaling console message: %v", err)
				continue
			}

			select {
			case sseEventChan <- SSEEvent{Type: "console", Data: string(data)}:
			case <-ctx.Done():
				return
			}

		case <-ctx.Done():
			// Client disconnected
			return
		}
	}
}

// handleScanlineUpdate encodes a finished row and sends it as a scanline event
func (s *Server) handleScanlineUpdate(ctx context.Context, sseEventChan chan SSEEvent, result renderer.ScanlineResult) {
	// Check if client is still connected
	select {
	case <-ctx.Done():
		return
	default:
	}

	rowData, err := s.imageToBase64PNG(result.Framebuffer.ScanlineImage(result.Row))
	if err != nil {
		log.Printf("Error encoding scanline %d: %v", result.Row, err)
		return
	}

	update := ScanlineUpdate{
		Row:       result.Row,
		Completed: result.Completed,
		Total:     result.Total,
		Width:     result.Framebuffer.Width,
		ImageData: rowData,
	}

	data, err := json.Marshal(update)
	if err != nil {
		log.Printf("Error marshaling scanline update: %v", err)
		return
	}

	select {
	case sseEventChan <- SSEEvent{Type: "scanline", Data: string(data)}:
	case <-ctx.Done():
	}
}

// handleComplete sends the final image and statistics
func (s *Server) handleComplete(ctx context.Context, sseEventChan chan SSEEvent, fb *renderer.Framebuffer, stats renderer.RenderStats, sceneObj *scene.Scene) {
	imageData, err := s.imageToBase64PNG(fb)
	if err != nil {
		s.handleError(ctx, sseEventChan, fmt.Sprintf("Failed to encode image: %v", err))
		return
	}

	update := CompleteUpdate{
		Stats: Stats{
			Width:            fb.Width,
			Height:           fb.Height,
			TotalPixels:      stats.TotalPixels,
			TotalSamples:     stats.TotalSamples,
			SamplesPerPixel:  stats.SamplesPerPixel,
			Workers:          stats.Workers,
			ElapsedMs:        stats.Duration.Milliseconds(),
			SamplesPerSecond: stats.SamplesPerSecond(),
			PrimitiveCount:   sceneObj.GetPrimitiveCount(),
			AverageLuminance: renderer.CalculateAverageLuminance(fb),
		},
		ImageData: imageData,
	}

	data, err := json.Marshal(update)
	if err != nil {
		log.Printf("Error marshaling completion: %v", err)
		return
	}

	select {
	case sseEventChan <- SSEEvent{Type: "complete", Data: string(data)}:
	case <-ctx.Done():
	}
}

// imageToBase64PNG converts an image to base64-encoded PNG
func (s *Server) imageToBase64PNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// handleError sends an error event to the SSE channel
func (s *Server) handleError(ctx context.Context, sseEventChan chan SSEEvent, message string) {
	select {
	case sseEventChan <- SSEEvent{Type: "error", Data: message}:
	case <-ctx.Done():
		// Client disconnected, don't block
	}
}
