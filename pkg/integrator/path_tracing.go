package integrator

import (
	"math"

	"github.com/df07/go-pathtracer/pkg/core"
	"github.com/df07/go-pathtracer/pkg/geometry"
)

// ShadowAcneEpsilon is the lower bound on hit distance for every traced ray
const ShadowAcneEpsilon = 0.001

// PathTracingIntegrator implements unidirectional path tracing
type PathTracingIntegrator struct {
	MaxDepth   int
	Background Background
}

// NewPathTracingIntegrator creates a new path tracing integrator
func NewPathTracingIntegrator(maxDepth int, background Background) *PathTracingIntegrator {
	return &PathTracingIntegrator{
		MaxDepth:   maxDepth,
		Background: background,
	}
}

// RayColor computes the color for a single ray using the configured bounce budget
func (pt *PathTracingIntegrator) RayColor(ray core.Ray, world geometry.Hittable, sampler core.Sampler) core.Vec3 {
	return pt.Trace(ray, world, sampler, pt.MaxDepth)
}

// Trace follows ray through at most depth scatter events.
// It is the loop form of color(r, d) = attenuation * color(scattered, d-1):
// throughput accumulates the attenuation product until the path escapes,
// is absorbed, or runs out of bounces.
func (pt *PathTracingIntegrator) Trace(ray core.Ray, world geometry.Hittable, sampler core.Sampler, depth int) core.Vec3 {
	throughput := core.NewVec3(1, 1, 1)
	current := ray

	for remaining := depth; remaining > 0; remaining-- {
		hit, isHit := world.Hit(current, ShadowAcneEpsilon, math.Inf(1))
		if !isHit {
			return throughput.MultiplyVec(pt.Background.Color(current))
		}
		if hit.Material == nil {
			return core.Vec3{}
		}

		scatter, didScatter := hit.Material.Scatter(current, *hit, sampler)
		if !didScatter {
			// Material absorbed the ray
			return core.Vec3{}
		}

		throughput = throughput.MultiplyVec(scatter.Attenuation)
		current = scatter.Scattered
	}

	// Bounce budget exhausted, no more light is gathered
	return core.Vec3{}
}
