// Package connector finds the light ray that connects a fixed point with a moving
// observer around a Schwarzschild black hole, frame after frame.
package connector

import (
	"math"

	"github.com/df07/go-schwarzschild-raytracer/pkg/core"
)

const (
	// NrNodes is the number of finite difference nodes along a ray, at least 3
	NrNodes = 48
	// SmallestAngle is the angular separation below which a ray counts as straight
	SmallestAngle = 0.05
	// MaxRadiusJump is the largest observer radius change a warm start can follow
	MaxRadiusJump = 0.5
	// ResetIterations is the number of Newton iterations after a reset
	ResetIterations = 5
)

const interior = NrNodes - 2

// RayConnector solves the boundary value problem u'' + u = 3/2 R u² between
// an observer (node 0) and a fixed point (last node), where u = 1/r and the
// angle along the ray is the free variable. The profile of the previous
// solve is the initial guess for the next one.
type RayConnector struct {
	schwarzR    float64
	pos         core.Vec3
	lastPhi     float64
	lessThan180 bool
	needsReset  bool
	uRay        [NrNodes]float64

	// Newton and Thomas buffers
	residual [interior]float64
	diag     [interior]float64
	thomasC  [interior]float64
}

// New creates a connector for the point pos. lessThan180 selects the short
// path around the black hole; the long path travels the other way around.
func New(schwarzR float64, pos core.Vec3, lessThan180 bool) *RayConnector {
	rc := &RayConnector{
		schwarzR:    schwarzR,
		pos:         pos,
		lastPhi:     1,
		lessThan180: lessThan180,
		needsReset:  true,
	}
	for i := range rc.uRay {
		rc.uRay[i] = 1
	}
	return rc
}

// separation returns the angle the ray has to travel from other to pos
func (rc *RayConnector) separation(other core.Vec3) float64 {
	phi := rc.pos.AngleBetween(other)
	if !rc.lessThan180 {
		phi = 2*math.Pi - phi
	}
	return phi
}

// ResetRay rebuilds the ray from a straight interpolation of the endpoints and
// returns [x, y, z, incoming angle] for an observer at other.
func (rc *RayConnector) ResetRay(other core.Vec3) [4]float32 {
	rc.needsReset = false
	u0 := other.LengthRecip()
	u1 := rc.pos.LengthRecip()
	rc.lastPhi = rc.separation(other)

	for i := range rc.uRay {
		weight := float64(i) / (NrNodes - 1)
		rc.uRay[i] = u0*(1-weight) + u1*weight
	}

	// After this many iterations the discretization error dominates
	return rc.UpdateRay(other, ResetIterations)
}

// UpdateRay continues the previous solution for an observer at other with the
// given number of Newton iterations and returns [x, y, z, incoming angle].
func (rc *RayConnector) UpdateRay(other core.Vec3, iterations int) [4]float32 {
	if rc.needsReset {
		return rc.ResetRay(other)
	}

	rc.lastPhi = rc.separation(other)

	// Nearly straight rays make the discrete problem unstable. The profile is
	// left untouched and rebuilt once the angle grows again.
	if rc.lastPhi < SmallestAngle {
		rc.needsReset = true
		return rc.output(rc.smallAngle(other))
	}

	u0 := other.LengthRecip()
	u1 := rc.pos.LengthRecip()

	if math.Abs(1/u0-1/rc.uRay[0]) > MaxRadiusJump {
		return rc.ResetRay(other)
	}

	// Shift the profile by a blend of how far both endpoints moved
	u0Delta := u0 - rc.uRay[0]
	u1Delta := u1 - rc.uRay[NrNodes-1]
	for i := range rc.uRay {
		weight := float64(i) / (NrNodes - 1)
		rc.uRay[i] += u0Delta*(1-weight) + u1Delta*weight
	}
	// Pin the boundary values exactly
	rc.uRay[0] = u0
	rc.uRay[NrNodes-1] = u1

	h := rc.lastPhi / (NrNodes - 1)
	for k := 0; k < iterations; k++ {
		rc.newtonStep(h)
	}

	// One sided difference corrected with u'' from the ODE
	uBar := (rc.uRay[1]-rc.uRay[0])/h - h/2*(-rc.uRay[0]+1.5*rc.schwarzR*rc.uRay[0]*rc.uRay[0])
	return rc.output(rc.calcRayAngle(uBar, 1/u0))
}

// newtonStep does one Newton iteration on the interior nodes with Dirichlet
// boundaries. The Jacobian of the discrete operator is tridiagonal.
func (rc *RayConnector) newtonStep(h float64) {
	scale := 1 / (h * h)
	u := &rc.uRay

	for i := 1; i < NrNodes-1; i++ {
		rc.residual[i-1] = scale*(-u[i-1]+2*u[i]-u[i+1]) - u[i] + 1.5*rc.schwarzR*u[i]*u[i]
		rc.diag[i-1] = 2*scale - 1 + 3*rc.schwarzR*u[i]
	}

	solveTridiagonal(rc.diag[:], -scale, rc.residual[:], rc.thomasC[:])

	for i := 1; i < NrNodes-1; i++ {
		u[i] -= rc.residual[i-1]
	}
}

// smallAngle estimates the incoming angle without the profile
func (rc *RayConnector) smallAngle(other core.Vec3) float64 {
	if rc.lastPhi == 0 {
		if other.Length() > rc.pos.Length() {
			return 0
		}
		return math.Pi
	}
	u0 := other.LengthRecip()
	uBar := (rc.pos.LengthRecip()-u0)/rc.lastPhi - rc.lastPhi/2*(-u0+1.5*rc.schwarzR*u0*u0)
	return rc.calcRayAngle(uBar, 1/u0)
}

// calcRayAngle returns the angle between the incoming ray and the direction
// to the centre, as seen by a frozen observer at radius r. Long way rays
// are negative.
func (rc *RayConnector) calcRayAngle(uBar, r float64) float64 {
	var theta float64
	h := 1 - rc.schwarzR/r
	if r > rc.schwarzR {
		theta = core.Signum(uBar) * math.Acos(math.Sqrt(1/(1+r*r*uBar*uBar/h)))
	} else {
		intermediate := -r*r*uBar*uBar/h - 1
		if intermediate > 0 {
			theta = -math.Pi/2 + math.Atan(math.Sqrt(1/intermediate))
		} else {
			// Approximation, only points inside the event horizon land here
			theta = 0
		}
	}

	angle := math.Pi/2 - theta
	if !rc.lessThan180 {
		angle = -angle
	}
	return angle
}

func (rc *RayConnector) output(angle float64) [4]float32 {
	p := rc.pos.Float32()
	return [4]float32{p[0], p[1], p[2], float32(angle)}
}

// SetPosition moves the tracked point. The next update follows the move.
func (rc *RayConnector) SetPosition(pos core.Vec3) {
	rc.pos = pos
}

// Position returns the tracked point
func (rc *RayConnector) Position() core.Vec3 {
	return rc.pos
}

// LastPhi returns the angle spanned by the most recent ray
func (rc *RayConnector) LastPhi() float64 {
	return rc.lastPhi
}

// NeedsReset reports whether the next update rebuilds the ray from scratch
func (rc *RayConnector) NeedsReset() bool {
	return rc.needsReset
}

// Profile returns the radius at every node of the current ray, from the
// observer to the tracked point
func (rc *RayConnector) Profile() []float64 {
	radii := make([]float64, NrNodes)
	for i, u := range rc.uRay {
		radii[i] = 1 / u
	}
	return radii
}
