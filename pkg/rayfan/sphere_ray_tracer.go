// Package rayfan computes, for an observer at some radius, where the light rays
// leaving the observer in every direction hit a sphere around a Schwarzschild
// black hole.
package rayfan

import (
	"math"
)

const (
	// NoValue marks rays that never reach the sphere, roughly five rotations
	NoValue = 10.0

	DefaultMaxIter   = 1000
	DefaultStep      = math.Pi / 100
	DefaultNodesHalf = 200

	newtonRefinements = 3
)

// SphereRayTracer solves the light ray equation u'' + u = 3/2 R u² by shooting,
// one ray per sampled emission angle.
type SphereRayTracer struct {
	sphereR     float64
	schwarzR    float64
	maxIter     int
	defaultStep float64
	nrNodes     int
	grid        []float32
}

// New creates a tracer for a sphere of radius sphereR with a table of
// 2*nrNodesHalf entries
func New(sphereR, schwarzR float64, maxIter int, defaultStep float64, nrNodesHalf int) *SphereRayTracer {
	nrNodes := nrNodesHalf * 2
	grid := make([]float32, nrNodes)
	for i := range grid {
		grid[i] = NoValue
	}
	return &SphereRayTracer{
		sphereR:     sphereR,
		schwarzR:    schwarzR,
		maxIter:     maxIter,
		defaultStep: defaultStep,
		nrNodes:     nrNodes,
		grid:        grid,
	}
}

// NewDefault creates a tracer with the default integration limits
func NewDefault(sphereR, schwarzR float64) *SphereRayTracer {
	return New(sphereR, schwarzR, DefaultMaxIter, DefaultStep, DefaultNodesHalf)
}

// SphereR returns the radius of the traced sphere
func (s *SphereRayTracer) SphereR() float64 {
	return s.sphereR
}

// NrNodes returns the number of table entries
func (s *SphereRayTracer) NrNodes() int {
	return s.nrNodes
}

// SolveRayFan fills the table for an observer frozen at radius r. Entry i
// belongs to the ray leaving at angle pi*i/(n-1) from the direction towards
// the centre and holds pi/2 minus the angle it travels around the centre
// before hitting the sphere, or NoValue. The returned slice is reused by the
// next call.
func (s *SphereRayTracer) SolveRayFan(r float64) []float32 {
	for i := 0; i < s.nrNodes; i++ {
		theta := math.Pi/2 - math.Pi*float64(i)/float64(s.nrNodes-1)
		rotation := r * math.Cos(theta)

		var falling bool
		var energy float64
		if r < s.schwarzR {
			energy = math.Sin(-theta) * math.Sqrt(-1+s.schwarzR/r)
		} else {
			falling = theta > 0
			energy = math.Sqrt(1 - s.schwarzR/r)
		}

		travelled, ok := s.solveGeodesic(r, energy, rotation, falling)
		if !ok {
			s.grid[i] = NoValue
			continue
		}
		s.grid[i] = float32(math.Pi/2 - travelled)
	}
	return s.grid
}

// solveGeodesic returns the angle a ray travels around the centre before it
// hits the sphere and false if it never does
func (s *SphereRayTracer) solveGeodesic(r, energy, rotation float64, falling bool) (float64, bool) {
	outside := r > s.schwarzR
	sphereOutside := s.sphereR > s.schwarzR
	insideSphere := r < s.sphereR

	if rotation < 1e-10 {
		return s.radialRay(outside, sphereOutside, insideSphere, energy, falling)
	}

	b := rotation / energy
	r32 := 1.5 * s.schwarzR

	// Rays below the critical energy cannot cross the photon sphere
	barrier := s.schwarzR > 0 && 1/(b*b) < 4/(27*s.schwarzR*s.schwarzR)
	differentSides := ((r < r32) != (s.sphereR < r32)) && math.Abs(r-r32) > 1e-10

	switch {
	case insideSphere && !sphereOutside,
		!outside && sphereOutside && energy < 0,
		barrier && differentSides,
		r < r32 && insideSphere && falling,
		r > r32 && !insideSphere && !falling:
		return 0, false
	}

	u := 1 / r
	uBar := math.Sqrt(1/(b*b) - (1-s.schwarzR/r)/(r*r))
	if !falling {
		uBar = -uBar
	}

	bound := 0.9 * min(u, 1/max(s.sphereR, r32))
	sphereU := 1 / s.sphereR
	schwarzU := 1 / s.schwarzR
	step := s.defaultStep
	angle := 0.0

	for iteration := 0; iteration < s.maxIter && u > 0; iteration++ {
		// Falling inside the black hole
		if s.schwarzR != 0 && u > schwarzU && uBar > 0 {
			break
		}

		nextU, nextUBar := s.rk4(u, uBar, step)

		if (nextU > sphereU) != (u > sphereU) {
			return angle + s.refineCrossing(u, uBar, nextU, nextUBar, step, sphereU), true
		}
		if nextU < bound {
			return 0, false
		}
		u, uBar = nextU, nextUBar
		angle += step
	}
	return 0, false
}

// radialRay handles rays pointing straight at or away from the centre
func (s *SphereRayTracer) radialRay(outside, sphereOutside, insideSphere bool, energy float64, falling bool) (float64, bool) {
	switch {
	case insideSphere && outside:
		if !falling {
			return 0, true
		}
		if s.schwarzR == 0 {
			// Flat space, the ray passes the centre
			return math.Pi, true
		}
		return 0, false
	case insideSphere:
		if !sphereOutside || energy > 0 {
			return 0, true
		}
		return 0, false
	default:
		if sphereOutside && falling {
			return 0, true
		}
		return 0, false
	}
}

// refineCrossing finds the step length from (u, uBar) that lands on sphereU,
// with Newton iterations on a single RK4 step
func (s *SphereRayTracer) refineCrossing(u, uBar, nextU, nextUBar, step, sphereU float64) float64 {
	// Start at the side with the larger slope
	newtonStep, newtonU, newtonUBar := step, nextU, nextUBar
	if math.Abs(uBar) > math.Abs(nextUBar) {
		newtonStep, newtonU, newtonUBar = 0, u, uBar
	}

	for i := 0; i < newtonRefinements; i++ {
		newtonStep -= (newtonU - sphereU) / newtonUBar
		newtonU, newtonUBar = s.rk4(u, uBar, newtonStep)
	}
	return newtonStep
}

// rk4 does one classic Runge-Kutta step of (u, u') over step
func (s *SphereRayTracer) rk4(u, uBar, step float64) (float64, float64) {
	r32 := 1.5 * s.schwarzR
	accel := func(u float64) float64 { return -u + r32*u*u }
	half := step / 2

	aU := u + half*uBar
	aUBar := uBar + half*accel(u)
	bU := u + half*aUBar
	bUBar := uBar + half*accel(aU)
	cU := u + step*bUBar
	cUBar := uBar + step*accel(bU)

	nextU := u + step*(uBar+2*aUBar+2*bUBar+cUBar)/6
	nextUBar := uBar + step*(accel(u)+2*accel(aU)+2*accel(bU)+accel(cU))/6
	return nextU, nextUBar
}

// Lookup interpolates a ray fan table at the emission angle alpha, measured
// from the direction towards the centre. It returns false when the ray misses.
// Next to a miss the nearest entry is used without interpolation.
func Lookup(table []float32, alpha float64) (float64, bool) {
	n := len(table)
	if n == 0 {
		return 0, false
	}
	if n == 1 {
		return float64(table[0]), table[0] != NoValue
	}

	pos := max(0, min(1, alpha/math.Pi)) * float64(n-1)
	i := min(int(pos), n-2)
	frac := pos - float64(i)
	lo, hi := table[i], table[i+1]

	switch {
	case lo != NoValue && hi != NoValue:
		return float64(lo) + frac*float64(hi-lo), true
	case frac < 0.5 && lo != NoValue:
		return float64(lo), true
	case frac >= 0.5 && hi != NoValue:
		return float64(hi), true
	default:
		return 0, false
	}
}
