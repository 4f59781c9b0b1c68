package material

import (
	"testing"

	"github.com/df07/go-pathtracer/pkg/core"
)

// fixedSampler returns the same value for every draw
type fixedSampler struct {
	value float64
}

func (f fixedSampler) Get1D() float64 { return f.value }
func (f fixedSampler) Get2D() core.Vec2 {
	return core.NewVec2(f.value, f.value)
}
func (f fixedSampler) Get3D() core.Vec3 {
	return core.NewVec3(f.value, f.value, f.value)
}

// forbiddenSampler fails the test if any random number is drawn
type forbiddenSampler struct {
	t *testing.T
}

func (f forbiddenSampler) Get1D() float64 {
	f.t.Helper()
	f.t.Fatal("Unexpected random draw")
	return 0
}
func (f forbiddenSampler) Get2D() core.Vec2 { return core.NewVec2(f.Get1D(), f.Get1D()) }
func (f forbiddenSampler) Get3D() core.Vec3 {
	return core.NewVec3(f.Get1D(), f.Get1D(), f.Get1D())
}

func vecApproxEqual(a, b core.Vec3, tolerance float64) bool {
	return a.Subtract(b).Length() <= tolerance
}
