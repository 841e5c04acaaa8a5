// Package pointcloud tracks sets of points as seen by the observer, with one
// ray connector per point and optionally an orbit per point.
package pointcloud

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/df07/go-schwarzschild-raytracer/pkg/connector"
	"github.com/df07/go-schwarzschild-raytracer/pkg/core"
	"github.com/df07/go-schwarzschild-raytracer/pkg/orbit"
)

const (
	SpiralPoints        = 10000
	HeartPoints         = 400
	AccretionDiskPoints = 5000

	// Particles orbit with angular momentum in [orbitRotation, orbitRotation+orbitRotationSpread)
	orbitRotation       = 18.0
	orbitRotationSpread = 2.0
)

// Options configure a point cloud
type Options struct {
	// Farside adds a second connector per point for the ray around the far side
	Farside bool
	// Orbits lets every point follow its own orbit
	Orbits bool
	// Seed seeds the random orbits and respawns
	Seed uint64
	// Logger receives respawn reports, may be nil
	Logger core.Logger
}

// PointCloud is a set of points with their incoming angles at the observer
type PointCloud struct {
	points          []*connector.RayConnector
	pointsFarside   []*connector.RayConnector
	orbits          []*orbit.Orbit
	vertices        [][4]float32
	verticesFarside [][4]float32

	schwarzR float64
	opts     Options
	rng      *rand.Rand
	respawns int
}

// New creates a point cloud from model vertices and solves every ray once
// for an observer at observerPos
func New(vertices []core.Vec3, schwarzR float64, observerPos core.Vec3, opts Options) *PointCloud {
	if opts.Logger == nil {
		opts.Logger = core.NopLogger{}
	}
	pc := &PointCloud{
		points:   make([]*connector.RayConnector, len(vertices)),
		vertices: make([][4]float32, len(vertices)),
		schwarzR: schwarzR,
		opts:     opts,
		rng:      rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
	}
	if opts.Farside {
		pc.pointsFarside = make([]*connector.RayConnector, len(vertices))
		pc.verticesFarside = make([][4]float32, len(vertices))
	}
	if opts.Orbits {
		pc.orbits = make([]*orbit.Orbit, len(vertices))
	}

	for i, v := range vertices {
		pc.points[i] = connector.New(schwarzR, v, true)
		if opts.Farside {
			pc.pointsFarside[i] = connector.New(schwarzR, v, false)
		}
		if opts.Orbits {
			orb, err := orbit.New(schwarzR, v, sideways(v), pc.randomRotation())
			if err != nil {
				// Points inside the horizon start on a fresh orbit
				orb = pc.spawnOrbit()
				pc.moveTo(i, orb.Position())
			}
			pc.orbits[i] = orb
		}
		pc.resetRays(i, observerPos)
	}

	return pc
}

// NewSpiral creates a flat spiral around the black hole
func NewSpiral(schwarzR float64, observerPos core.Vec3, opts Options) *PointCloud {
	opts.Orbits = false
	return New(SpiralVertices(SpiralPoints), schwarzR, observerPos, opts)
}

// NewHeart creates a heart standing next to the black hole
func NewHeart(schwarzR float64, observerPos core.Vec3, opts Options) *PointCloud {
	opts.Orbits = false
	return New(HeartVertices(HeartPoints), schwarzR, observerPos, opts)
}

// NewAccretionDisk creates a thin disk of orbiting particles
func NewAccretionDisk(schwarzR float64, observerPos core.Vec3, opts Options) *PointCloud {
	opts.Orbits = true
	rng := rand.New(rand.NewPCG(opts.Seed, ^opts.Seed))
	return New(AccretionDiskVertices(schwarzR, AccretionDiskPoints, rng), schwarzR, observerPos, opts)
}

// SpiralVertices returns n points on a spiral from r = 16 outwards
func SpiralVertices(n int) []core.Vec3 {
	points := make([]core.Vec3, n)
	for i := range points {
		t := float64(i) / float64(n) * (2*math.Pi + 0.05)
		r := 16 + 2*t
		sin, cos := math.Sincos(10 * t)
		points[i] = core.NewVec3(-r*cos, -r*sin, 0.001)
	}
	return points
}

// HeartVertices returns n points on a heart curve in the plane x = 11
func HeartVertices(n int) []core.Vec3 {
	points := make([]core.Vec3, n)
	for i := range points {
		t := float64(i) / float64(n) * 2 * math.Pi
		sin := math.Sin(t)
		points[i] = core.NewVec3(
			11,
			16*sin*sin*sin,
			13*math.Cos(t)-5*math.Cos(2*t)-2*math.Cos(3*t)-math.Cos(4*t),
		)
	}
	return points
}

// AccretionDiskVertices returns n points between 2R and 4R close to the equator
func AccretionDiskVertices(schwarzR float64, n int, rng *rand.Rand) []core.Vec3 {
	points := make([]core.Vec3, n)
	for i := range points {
		r := 2*schwarzR + 2*schwarzR*rng.Float64()
		phi := rng.Float64() * 2 * math.Pi
		theta := 0.2 * (rng.Float64() - 0.5)
		points[i] = core.PolarToCartesian(core.NewVec3(r, phi, theta))
	}
	return points
}

// sideways returns the counterclockwise direction around the z axis
func sideways(pos core.Vec3) core.Vec3 {
	return core.NewVec3(-pos.Y, pos.X, 0)
}

func (pc *PointCloud) randomRotation() float64 {
	return orbitRotation + orbitRotationSpread*pc.rng.Float64()
}

// spawnOrbit starts a new particle orbit between r = 16 and r = 26, pushed
// outwards for black holes larger than that shell
func (pc *PointCloud) spawnOrbit() *orbit.Orbit {
	r := max(16, 2*pc.schwarzR) + 10*pc.rng.Float64()
	phi := pc.rng.Float64() * 2 * math.Pi
	theta := 0.2 * (pc.rng.Float64() - 0.5)
	pos := core.PolarToCartesian(core.NewVec3(r, phi, theta))
	orb, err := orbit.New(pc.schwarzR, pos, sideways(pos), pc.randomRotation())
	if err != nil {
		// r > 2R is always outside the horizon
		panic(err)
	}
	return orb
}

func (pc *PointCloud) moveTo(i int, pos core.Vec3) {
	pc.points[i].SetPosition(pos)
	if pc.opts.Farside {
		pc.pointsFarside[i].SetPosition(pos)
	}
}

func (pc *PointCloud) resetRays(i int, observerPos core.Vec3) {
	pc.vertices[i] = pc.points[i].ResetRay(observerPos)
	if pc.opts.Farside {
		pc.verticesFarside[i] = pc.pointsFarside[i].ResetRay(observerPos)
	}
}

// Update advances the orbits by dt and follows every ray with one Newton
// iteration. Particles that fall into the black hole respawn on a new orbit.
func (pc *PointCloud) Update(observerPos core.Vec3, dt time.Duration) {
	step := dt.Seconds()
	respawned := 0

	for i := range pc.points {
		if pc.opts.Orbits {
			orb := pc.orbits[i]
			orb.DoStep(step)
			pos := orb.Position()

			if orb.IsSingular() || pos.LengthSquared() <= pc.schwarzR*pc.schwarzR {
				orb = pc.spawnOrbit()
				pc.orbits[i] = orb
				pos = orb.Position()
				pc.moveTo(i, pos)
				pc.resetRays(i, observerPos)
				respawned++
			}
			pc.moveTo(i, pos)
		}

		pc.vertices[i] = pc.points[i].UpdateRay(observerPos, 1)
		if pc.opts.Farside {
			pc.verticesFarside[i] = pc.pointsFarside[i].UpdateRay(observerPos, 1)
		}
	}

	if respawned > 0 {
		pc.respawns += respawned
		pc.opts.Logger.Printf("Point cloud: %d particles respawned (%d total)\n", respawned, pc.respawns)
	}
}

// Vertices returns [x, y, z, incoming angle] per point for the near side rays
func (pc *PointCloud) Vertices() [][4]float32 {
	return pc.vertices
}

// FarsideVertices returns the far side rays, nil without far side
func (pc *PointCloud) FarsideVertices() [][4]float32 {
	return pc.verticesFarside
}

// HasFarside reports whether far side rays are tracked
func (pc *PointCloud) HasFarside() bool {
	return pc.opts.Farside
}

// Len returns the number of points
func (pc *PointCloud) Len() int {
	return len(pc.points)
}

// Respawns returns how many particles have fallen in and respawned
func (pc *PointCloud) Respawns() int {
	return pc.respawns
}
