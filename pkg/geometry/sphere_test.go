package geometry

import (
	"math"
	"testing"

	"github.com/df07/go-pathtracer/pkg/core"
	"github.com/df07/go-pathtracer/pkg/material"
)

func vecNear(a, b core.Vec3) bool {
	const tolerance = 1e-9
	return math.Abs(a.X-b.X) <= tolerance &&
		math.Abs(a.Y-b.Y) <= tolerance &&
		math.Abs(a.Z-b.Z) <= tolerance
}

func TestSphere_Hit_Basic(t *testing.T) {
	mat := material.NewLambertian(core.NewVec3(0.5, 0.5, 0.5))
	sphere := NewSphere(core.NewVec3(0, 0, -1), 0.5, mat)
	ray := core.NewRay(core.NewVec3(0, 0, 0), core.NewVec3(0, 0, -1))

	hit, isHit := sphere.Hit(ray, 0.001, math.Inf(1))
	if !isHit {
		t.Fatal("Expected hit, but got miss")
	}
	if math.Abs(hit.T-0.5) > 1e-9 {
		t.Errorf("Expected t=0.5, got t=%f", hit.T)
	}
	if !vecNear(hit.Normal, core.NewVec3(0, 0, 1)) {
		t.Errorf("Expected normal (0, 0, 1), got %v", hit.Normal)
	}
	if !hit.FrontFace {
		t.Error("Expected front face hit")
	}
	if hit.Material != mat {
		t.Error("Expected hit record to carry the sphere's material")
	}
}

func TestSphere_Hit_Miss(t *testing.T) {
	sphere := NewSphere(core.NewVec3(5, 5, 5), 0.5, nil)
	ray := core.NewRay(core.NewVec3(0, 0, 0), core.NewVec3(0, 0, -1))

	hit, isHit := sphere.Hit(ray, 0.001, math.Inf(1))
	if isHit {
		t.Errorf("Expected miss, but got hit at t=%f", hit.T)
	}
}

func TestSphere_Hit_FrontAndBackFace(t *testing.T) {
	sphere := NewSphere(core.NewVec3(0, 0, 0), 1.0, nil)

	tests := []struct {
		name           string
		rayOrigin      core.Vec3
		rayDirection   core.Vec3
		expectedT      float64
		expectedFront  bool
		expectedNormal core.Vec3
	}{
		{
			name:           "front face hit",
			rayOrigin:      core.NewVec3(0, 0, 2),
			rayDirection:   core.NewVec3(0, 0, -1),
			expectedT:      1.0,
			expectedFront:  true,
			expectedNormal: core.NewVec3(0, 0, 1),
		},
		{
			name:           "back face hit from inside",
			rayOrigin:      core.NewVec3(0, 0, 0),
			rayDirection:   core.NewVec3(0, 0, 1),
			expectedT:      1.0,
			expectedFront:  false,
			expectedNormal: core.NewVec3(0, 0, -1),
		},
		{
			name:           "unnormalized direction",
			rayOrigin:      core.NewVec3(0, 0, 3),
			rayDirection:   core.NewVec3(0, 0, -2),
			expectedT:      1.0,
			expectedFront:  true,
			expectedNormal: core.NewVec3(0, 0, 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ray := core.NewRay(tt.rayOrigin, tt.rayDirection)
			hit, isHit := sphere.Hit(ray, 0.001, 1000.0)

			if !isHit {
				t.Fatal("Expected hit, but got miss")
			}
			if math.Abs(hit.T-tt.expectedT) > 1e-9 {
				t.Errorf("Expected t=%f, got t=%f", tt.expectedT, hit.T)
			}
			if hit.FrontFace != tt.expectedFront {
				t.Errorf("Expected front face %t, got %t", tt.expectedFront, hit.FrontFace)
			}
			if !vecNear(hit.Normal, tt.expectedNormal) {
				t.Errorf("Expected normal %v, got %v", tt.expectedNormal, hit.Normal)
			}
		})
	}
}

func TestSphere_Hit_SecondRootFallback(t *testing.T) {
	sphere := NewSphere(core.NewVec3(0, 0, 0), 1.0, nil)
	ray := core.NewRay(core.NewVec3(0, 0, 2), core.NewVec3(0, 0, -1))

	// Near root t=1 lies below tMin, so the far root t=3 must be reported
	hit, isHit := sphere.Hit(ray, 1.5, 1000.0)
	if !isHit {
		t.Fatal("Expected the far root to be used")
	}
	if math.Abs(hit.T-3.0) > 1e-9 {
		t.Errorf("Expected t=3, got t=%f", hit.T)
	}
	if hit.FrontFace {
		t.Error("Expected the far root to be a back face hit")
	}
}

func TestSphere_Hit_Bounds(t *testing.T) {
	sphere := NewSphere(core.NewVec3(0, 0, 0), 1.0, nil)
	ray := core.NewRay(core.NewVec3(0, 0, 2), core.NewVec3(0, 0, -1))

	if hit, isHit := sphere.Hit(ray, 0.001, 0.5); isHit {
		t.Errorf("Expected miss due to tMax bound, but got hit at t=%f", hit.T)
	}
	if hit, isHit := sphere.Hit(ray, 3.5, 1000.0); isHit {
		t.Errorf("Expected miss due to tMin bound, but got hit at t=%f", hit.T)
	}
	// The interval is open at both ends
	if hit, isHit := sphere.Hit(ray, 0.001, 1.0); isHit {
		t.Errorf("Expected t=tMax to be excluded, but got hit at t=%f", hit.T)
	}
}

func TestSphere_Hit_NegativeRadiusIsInvertedShell(t *testing.T) {
	// Negative radii are accepted on purpose: same surface, inward-pointing outward normal
	glass := material.NewDielectric(1.5)
	positive := NewSphere(core.NewVec3(0, 0, -1), 0.5, glass)
	negative := NewSphere(core.NewVec3(0, 0, -1), -0.5, glass)
	ray := core.NewRay(core.NewVec3(0, 0, 0), core.NewVec3(0, 0, -1))

	posHit, ok := positive.Hit(ray, 0.001, math.Inf(1))
	if !ok {
		t.Fatal("Expected positive sphere hit")
	}
	negHit, ok := negative.Hit(ray, 0.001, math.Inf(1))
	if !ok {
		t.Fatal("Expected negative-radius sphere hit")
	}

	if math.Abs(posHit.T-negHit.T) > 1e-12 {
		t.Errorf("Expected same hit distance, got %f and %f", posHit.T, negHit.T)
	}
	// The stored normal still faces the ray
	if !vecNear(negHit.Normal, core.NewVec3(0, 0, 1)) {
		t.Errorf("Expected normal (0, 0, 1), got %v", negHit.Normal)
	}
	// but the ray is classified as coming from inside
	if negHit.FrontFace {
		t.Error("Expected negative radius to flip the front face classification")
	}
	if math.Abs(negHit.Normal.Length()-1) > 1e-12 {
		t.Errorf("Expected unit normal, got length %f", negHit.Normal.Length())
	}
}

func TestSphere_Hit_DegenerateInputs(t *testing.T) {
	tests := []struct {
		name   string
		sphere *Sphere
		ray    core.Ray
	}{
		{
			name:   "zero radius",
			sphere: NewSphere(core.NewVec3(0, 0, -1), 0, nil),
			ray:    core.NewRay(core.NewVec3(0, 0, 0), core.NewVec3(0, 0, -1)),
		},
		{
			name:   "zero direction",
			sphere: NewSphere(core.NewVec3(0, 0, 0), 1, nil),
			ray:    core.NewRay(core.NewVec3(0, 0, 0), core.NewVec3(0, 0, 0)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit, isHit := tt.sphere.Hit(tt.ray, 0.001, math.Inf(1))
			if isHit {
				t.Errorf("Expected no hit, got %+v", hit)
			}
		})
	}
}

func TestSphere_Hit_NormalsAreFinite(t *testing.T) {
	sphere := NewSphere(core.NewVec3(0, -100.5, -1), 100, nil)
	sampler := core.NewSeededSampler(42)

	for i := 0; i < 1000; i++ {
		dir := core.RandomUnitVector(sampler)
		hit, isHit := sphere.Hit(core.NewRay(core.NewVec3(0, 0, 0), dir), 0.001, math.Inf(1))
		if !isHit {
			continue
		}
		if !hit.Normal.IsFinite() || !hit.Point.IsFinite() {
			t.Fatalf("Non-finite hit record for direction %v: %+v", dir, hit)
		}
		if math.Abs(hit.Normal.Length()-1) > 1e-9 {
			t.Fatalf("Expected unit normal, got length %f", hit.Normal.Length())
		}
	}
}
