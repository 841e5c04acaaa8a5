package orbit

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Stability classifies where an orbit started with zero radial velocity ends up
type Stability int

const (
	HittingSingularity Stability = iota
	StableOrbit
	EscapeTrajectory
)

// String returns the name of the stability class
func (s Stability) String() string {
	switch s {
	case HittingSingularity:
		return "hitting singularity"
	case StableOrbit:
		return "stable orbit"
	case EscapeTrajectory:
		return "escape trajectory"
	default:
		return "unknown"
	}
}

// Color returns the indicator colour: red falls in, green stays, yellow escapes
func (s Stability) Color() colorful.Color {
	switch s {
	case StableOrbit:
		return colorful.Color{R: 0.2, G: 0.8, B: 0.2}
	case EscapeTrajectory:
		return colorful.Color{R: 0.9, G: 0.8, B: 0.1}
	default:
		return colorful.Color{R: 0.9, G: 0.2, B: 0.2}
	}
}

// IsStable classifies an orbit with angular momentum rotation that starts at
// distance r with zero radial velocity, using the effective potential.
func IsStable(rotation, schwarzR, r float64) Stability {
	l2 := rotation * rotation
	r2 := schwarzR * schwarzR
	// Below sqrt(3)·R there is no potential barrier at all
	if l2 < 3*r2 {
		return HittingSingularity
	}

	// Inner turning radius, the maximum of the effective potential
	r1 := l2 / schwarzR * (1 - math.Sqrt(1-3*r2/l2))
	if r < r1 {
		return HittingSingularity
	}

	energy := math.Sqrt((1 - schwarzR/r) * (1 + l2/(r*r)))
	if energy > 1 {
		return EscapeTrajectory
	}
	if energy*energy-(1-schwarzR/r1)*(l2/(r1*r1)+1) < 0 {
		return StableOrbit
	}
	return HittingSingularity
}
