package integrator

import (
	"github.com/df07/go-pathtracer/pkg/core"
	"github.com/df07/go-pathtracer/pkg/geometry"
)

// Integrator defines the interface for light transport algorithms
type Integrator interface {
	// RayColor returns the radiance estimate carried back along ray
	RayColor(ray core.Ray, world geometry.Hittable, sampler core.Sampler) core.Vec3
}

// Background is a vertical gradient evaluated for rays that escape the scene
type Background struct {
	Top    core.Vec3 // Color when the ray points straight up
	Bottom core.Vec3 // Color when the ray points straight down
}

// DefaultBackground returns the white to sky-blue gradient
func DefaultBackground() Background {
	return Background{
		Top:    core.NewVec3(0.5, 0.7, 1.0),
		Bottom: core.NewVec3(1.0, 1.0, 1.0),
	}
}

// Color returns the gradient color for a ray direction
func (b Background) Color(r core.Ray) core.Vec3 {
	// Normalize the ray direction to get consistent results
	unitDirection := r.Direction.Normalize()

	// Use the y-component to create a gradient (map from -1,1 to 0,1)
	t := 0.5 * (unitDirection.Y + 1.0)

	return b.Bottom.Lerp(b.Top, t)
}
