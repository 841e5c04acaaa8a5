package pointcloud

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/df07/go-schwarzschild-raytracer/pkg/core"
)

type countingLogger struct {
	calls int
}

func (l *countingLogger) Printf(format string, args ...interface{}) {
	l.calls++
}

func vertexRadius(v [4]float32) float64 {
	return core.NewVec3(float64(v[0]), float64(v[1]), float64(v[2])).Length()
}

func TestSpiralVertices(t *testing.T) {
	points := SpiralVertices(100)
	if len(points) != 100 {
		t.Fatalf("Expected 100 points, got %d", len(points))
	}
	if !points[0].ApproxEquals(core.NewVec3(-16, 0, 0.001), 1e-12) {
		t.Errorf("Expected the spiral to start at (-16, 0, 0.001), got %v", points[0])
	}
	for i := 1; i < len(points); i++ {
		if points[i].Length() <= points[i-1].Length() {
			t.Fatalf("Point %d: expected the radius to grow, got %v after %v", i, points[i].Length(), points[i-1].Length())
		}
	}
}

func TestHeartVertices(t *testing.T) {
	points := HeartVertices(40)
	if !points[0].ApproxEquals(core.NewVec3(11, 0, 5), 1e-12) {
		t.Errorf("Expected the heart to start at (11, 0, 5), got %v", points[0])
	}
	for i, p := range points {
		if p.X != 11 {
			t.Errorf("Point %d: expected x = 11, got %v", i, p.X)
		}
		if math.Abs(p.Y) > 16 {
			t.Errorf("Point %d: y out of range: %v", i, p.Y)
		}
	}
}

func TestAccretionDiskVertices(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	points := AccretionDiskVertices(3, 500, rng)

	for i, p := range points {
		polar := core.CartesianToPolar(p)
		if polar.X < 6-1e-9 || polar.X > 12+1e-9 {
			t.Errorf("Point %d: radius %v outside [2R, 4R]", i, polar.X)
		}
		if math.Abs(polar.Z) > 0.1+1e-9 {
			t.Errorf("Point %d: elevation %v too large", i, polar.Z)
		}
	}
}

func TestNew_VerticesFollowPoints(t *testing.T) {
	points := HeartVertices(20)
	pc := New(points, 2, core.NewVec3(25, 0, 0), Options{Farside: true})

	if pc.Len() != 20 || !pc.HasFarside() {
		t.Fatalf("Expected 20 points with far side, got %d (far side %v)", pc.Len(), pc.HasFarside())
	}
	near := pc.Vertices()
	far := pc.FarsideVertices()
	if len(near) != 20 || len(far) != 20 {
		t.Fatalf("Expected 20 vertices per side, got %d and %d", len(near), len(far))
	}

	for i, p := range points {
		expected := p.Float32()
		for k := 0; k < 3; k++ {
			if near[i][k] != expected[k] || far[i][k] != expected[k] {
				t.Errorf("Point %d: expected position %v, got %v and %v", i, expected, near[i], far[i])
			}
		}
		if near[i][3] < 0 || near[i][3] > math.Pi+1e-6 {
			t.Errorf("Point %d: near side angle %v outside [0, pi]", i, near[i][3])
		}
		if far[i][3] > 0 || far[i][3] < -math.Pi-1e-6 {
			t.Errorf("Point %d: far side angle %v outside [-pi, 0]", i, far[i][3])
		}
	}
}

func TestNew_WithoutFarside(t *testing.T) {
	pc := New(HeartVertices(4), 2, core.NewVec3(25, 0, 0), Options{})
	if pc.HasFarside() || pc.FarsideVertices() != nil {
		t.Errorf("Expected no far side vertices, got %v", pc.FarsideVertices())
	}
}

func TestUpdate_StaticPointsStayInPlace(t *testing.T) {
	points := SpiralVertices(30)
	pc := New(points, 2, core.NewVec3(25, 0, 0), Options{})
	before := append([][4]float32(nil), pc.Vertices()...)

	pc.Update(core.NewVec3(25, 0, 0.5), 50*time.Millisecond)

	for i, v := range pc.Vertices() {
		if v[0] != before[i][0] || v[1] != before[i][1] || v[2] != before[i][2] {
			t.Errorf("Point %d moved from %v to %v", i, before[i], v)
		}
	}
}

func TestNew_OrbitInsideHorizonRespawns(t *testing.T) {
	pc := New([]core.Vec3{core.NewVec3(1, 0, 0)}, 5, core.NewVec3(25, 0, 0), Options{Orbits: true, Seed: 3})

	if r := vertexRadius(pc.Vertices()[0]); r < 16 || r > 26 {
		t.Errorf("Expected the particle to start on a spawn orbit, got radius %v", r)
	}
}

func TestUpdate_FallingParticlesRespawn(t *testing.T) {
	const schwarzR = 10.0
	logger := &countingLogger{}
	observer := core.NewVec3(60, 0, 0)

	// Inside the photon sphere every particle falls
	points := []core.Vec3{core.NewVec3(11, 0, 0), core.NewVec3(0, 11, 0.2)}
	points = append(points, AccretionDiskVertices(schwarzR, 20, rand.New(rand.NewPCG(4, 5)))...)
	pc := New(points, schwarzR, observer, Options{Orbits: true, Farside: true, Seed: 7, Logger: logger})

	for step := 0; step < 400; step++ {
		pc.Update(observer, 100*time.Millisecond)

		for i, v := range pc.Vertices() {
			if r := vertexRadius(v); r < schwarzR-1e-3 {
				t.Fatalf("Step %d, point %d: radius %v inside the horizon", step, i, r)
			}
			if math.IsNaN(float64(v[3])) || math.IsNaN(float64(pc.FarsideVertices()[i][3])) {
				t.Fatalf("Step %d, point %d: NaN angle", step, i)
			}
		}
	}

	if pc.Respawns() < 2 {
		t.Errorf("Expected both inner particles to respawn, got %d respawns", pc.Respawns())
	}
	if logger.calls == 0 {
		t.Errorf("Expected respawns to be logged")
	}
}

func TestGenerators(t *testing.T) {
	observer := core.NewVec3(25, 0, 0)

	tests := []struct {
		name     string
		create   func() *PointCloud
		expected int
	}{
		{"Spiral", func() *PointCloud { return NewSpiral(2, observer, Options{}) }, SpiralPoints},
		{"Heart", func() *PointCloud { return NewHeart(2, observer, Options{Farside: true}) }, HeartPoints},
		{"AccretionDisk", func() *PointCloud { return NewAccretionDisk(2, observer, Options{Seed: 1}) }, AccretionDiskPoints},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := tt.create()
			if pc.Len() != tt.expected || len(pc.Vertices()) != tt.expected {
				t.Errorf("Expected %d points, got %d", tt.expected, pc.Len())
			}
		})
	}
}
