package renderer

import (
	"context"
	"fmt"
	"time"

	"github.com/df07/go-pathtracer/pkg/core"
	"github.com/df07/go-pathtracer/pkg/geometry"
	"github.com/df07/go-pathtracer/pkg/integrator"
)

// ScanlineResult describes a completed scanline. It is delivered on the
// assembling goroutine, so reading Framebuffer inside the callback is safe.
type ScanlineResult struct {
	Row         int // Scanline that just completed (0 = top)
	Completed   int // Number of completed scanlines so far
	Remaining   int // Scanlines still outstanding
	Total       int // Total scanlines in the image
	Framebuffer *Framebuffer
}

// RenderOptions configures optional render behavior
type RenderOptions struct {
	ScanlineCallback func(ScanlineResult) // Called once per completed scanline
}

// Renderer traces a world through a camera, one scanline per work unit
type Renderer struct {
	world      geometry.Hittable
	camera     *Camera
	integrator integrator.Integrator
	width      int
	height     int
	config     SamplingConfig
	logger     core.Logger
}

// NewRenderer creates a renderer. The world and camera are shared read-only
// by every worker and must not be mutated while a render is running.
func NewRenderer(world geometry.Hittable, camera *Camera, integ integrator.Integrator, config SamplingConfig, logger core.Logger) *Renderer {
	if logger == nil {
		logger = NewDefaultLogger()
	}
	cameraConfig := camera.GetConfig()
	return &Renderer{
		world:      world,
		camera:     camera,
		integrator: integ,
		width:      cameraConfig.Width,
		height:     cameraConfig.ImageHeight(),
		config:     config,
		logger:     logger,
	}
}

// Width returns the image width in pixels
func (r *Renderer) Width() int { return r.width }

// Height returns the image height in pixels
func (r *Renderer) Height() int { return r.height }

// RenderScanline traces every pixel of one row and hands each accumulated color to emit.
// The row's generator is seeded from the row index alone, so the result does not
// depend on which worker renders it.
func (r *Renderer) RenderScanline(row int, emit func(col int, accumulated core.Vec3) error) error {
	sampler := core.NewSeededSampler(r.config.Seed + int64(row))

	// Divide by (dimension - 1) so the jittered samples span the full viewport
	uScale := 1.0 / float64(max(r.width-1, 1))
	vScale := 1.0 / float64(max(r.height-1, 1))
	j := r.height - 1 - row

	for col := 0; col < r.width; col++ {
		colorAccum := core.Vec3{}
		for s := 0; s < r.config.SamplesPerPixel; s++ {
			u := (float64(col) + sampler.Get1D()) * uScale
			v := (float64(j) + sampler.Get1D()) * vScale
			ray := r.camera.GetRay(u, v, sampler)
			colorAccum = colorAccum.Add(r.integrator.RayColor(ray, r.world, sampler))
		}
		if err := emit(col, colorAccum); err != nil {
			return err
		}
	}
	return nil
}

// Render renders the full image. Pixels arrive from the workers in any order and are
// placed by (row, column); rendering ends once every expected pixel has arrived.
func (r *Renderer) Render(ctx context.Context, options RenderOptions) (*Framebuffer, RenderStats, error) {
	if err := r.camera.GetConfig().Validate(); err != nil {
		return nil, RenderStats{}, err
	}
	if err := r.config.Validate(); err != nil {
		return nil, RenderStats{}, err
	}

	startTime := time.Now()
	fb := NewFramebuffer(r.width, r.height, r.config.SamplesPerPixel)

	pool := NewWorkerPool(ctx, r, r.config.NumWorkers, r.height)
	stats := RenderStats{
		TotalPixels:     r.width * r.height,
		SamplesPerPixel: r.config.SamplesPerPixel,
		Scanlines:       r.height,
		Workers:         pool.GetNumWorkers(),
	}

	r.logger.Printf("Rendering %dx%d at %d samples/pixel, depth %d (using %d workers)...\n",
		r.width, r.height, r.config.SamplesPerPixel, r.config.MaxDepth, pool.GetNumWorkers())

	for row := 0; row < r.height; row++ {
		pool.SubmitTask(ScanlineTask{Row: row})
	}
	pool.CloseTasks()
	pool.Start()

	total := r.width * r.height
	received := 0
	rowCounts := make([]int, r.height)
	completed := 0
	remaining := r.height

	for received < total {
		select {
		case px := <-pool.Results():
			fb.Set(px.Row, px.Col, px.Color)
			received++

			rowCounts[px.Row]++
			if rowCounts[px.Row] < r.width {
				continue
			}
			// Each completed row lowers the high-water mark by one
			completed++
			remaining = r.height - completed
			r.logger.Printf("Scanlines remaining: %d\n", remaining)
			if options.ScanlineCallback != nil {
				options.ScanlineCallback(ScanlineResult{
					Row:         px.Row,
					Completed:   completed,
					Remaining:   remaining,
					Total:       r.height,
					Framebuffer: fb,
				})
			}
		case <-pool.Done():
			if err := pool.Wait(); err != nil {
				return nil, stats, fmt.Errorf("render aborted with %d scanlines remaining: %w", remaining, err)
			}
			return nil, stats, ctx.Err()
		}
	}

	if err := pool.Wait(); err != nil {
		return nil, stats, err
	}

	stats.TotalSamples = total * r.config.SamplesPerPixel
	stats.Duration = time.Since(startTime)
	r.logger.Printf("Render completed in %v (%.0f samples/sec)\n", stats.Duration, stats.SamplesPerSecond())

	return fb, stats, nil
}

// NewPathTracer is a convenience constructor wiring the default path tracing integrator
func NewPathTracer(world geometry.Hittable, camera *Camera, background integrator.Background, config SamplingConfig, logger core.Logger) *Renderer {
	return NewRenderer(world, camera, integrator.NewPathTracingIntegrator(config.MaxDepth, background), config, logger)
}
