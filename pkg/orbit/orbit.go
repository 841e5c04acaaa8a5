// Package orbit simulates the timelike geodesic of a massive observer around a
// Schwarzschild black hole.
package orbit

import (
	"errors"
	"math"

	"github.com/df07/go-schwarzschild-raytracer/pkg/core"
)

// ErrInsideHorizon is returned when an orbit would start at or inside the event horizon
var ErrInsideHorizon = errors.New("orbit: start position is inside the event horizon")

const (
	// maxU is the inverse radius at which the integration gives up
	maxU = 100.0
	// maxEstimatedU is the bound on the predicted inverse radius of the next time step
	maxEstimatedU = 50.0
	// fragmentsPerRadian and maxFragments bound the RK4 sub steps of one time step
	fragmentsPerRadian = 100.0
	maxFragments       = 1000
)

// Orbit integrates u = 1/r as a function of the orbital angle inside a plane
// that is tilted against the xy plane.
type Orbit struct {
	schwarzR   float64
	startPhi   float64
	tiltAngle  float64
	orbitAngle float64
	planeTilt  core.Mat3
	energy     float64
	rotation   float64 // angular momentum L

	r    float64
	u    float64
	uBar float64

	lastR    float64 // previous radius of the central fall
	singular bool
}

// New starts an orbit at position, heading sideways towards desiredDirection with
// angular momentum rotation. The radial velocity is zero at the start.
// Rotations below schwarzR*1e-5 are treated as a central fall.
func New(schwarzR float64, position, desiredDirection core.Vec3, rotation float64) (*Orbit, error) {
	r := position.Length()
	if r <= schwarzR {
		return nil, ErrInsideHorizon
	}
	if rotation < schwarzR*1e-5 {
		rotation = 0
	}

	o := &Orbit{
		schwarzR:  schwarzR,
		energy:    math.Sqrt((1 - schwarzR/r) * (1 + rotation*rotation/(r*r))),
		rotation:  rotation,
		r:         r,
		u:         1 / r,
		lastR:     r,
		planeTilt: core.Identity3(),
	}

	planeNormal := position.Cross(desiredDirection)
	tilt := planeNormal.AngleBetween(core.NewVec3(0, 0, 1))

	if tilt < 1e-10 || math.Pi-tilt < 1e-10 {
		// Orbit plane is the xy plane
		o.orbitAngle = math.Atan2(position.Y, position.X)
		return o, nil
	}

	horizontalCut := core.NewVec3(0, 0, 1).Cross(planeNormal)
	o.tiltAngle = tilt
	o.orbitAngle = horizontalCut.AngleBetween(position)
	if position.Z < 0 {
		o.orbitAngle = 2*math.Pi - o.orbitAngle
	}
	o.startPhi = math.Atan2(horizontalCut.Y, horizontalCut.X)
	o.planeTilt = core.RotationX(tilt)

	return o, nil
}

// DoStep advances the orbit by the proper time step dt. Once the singularity
// has been reached the orbit no longer changes.
func (o *Orbit) DoStep(dt float64) {
	if o.singular {
		return
	}

	if o.rotation == 0 {
		o.centralFallStep(dt)
		return
	}

	// phi and u depend on each other, so the angle step is refined a few times.
	// Errors in deltaPhi only change the simulation speed, not the orbit shape.
	l, u, uBar := o.rotation, o.u, o.uBar
	deltaPhi := dt * l * u * u / 2
	nextU := u + deltaPhi*uBar
	for i := 0; i < 2; i++ {
		deltaPhi = dt * l / 4 * (u*u + nextU*nextU)
		nextU = u + deltaPhi*uBar
	}
	deltaPhi = dt * l / 4 * (u*u + nextU*nextU)

	if nextU > maxEstimatedU {
		o.singular = true
		return
	}

	fragments := int(min(1+math.Floor(deltaPhi*fragmentsPerRadian), maxFragments))
	step := deltaPhi / float64(fragments)
	for i := 0; i < fragments; i++ {
		o.angleStep(step)
		if o.singular {
			return
		}
	}
}

// centralFallStep is a Störmer-Verlet step of r'' = -R/(2r²)
func (o *Orbit) centralFallStep(dt float64) {
	nextR := 2*o.r - o.lastR - dt*dt*o.schwarzR/(2*o.r*o.r)
	if nextR < 0 {
		o.singular = true
		return
	}
	o.lastR = o.r
	o.r = nextR
	o.u = 1 / nextR
}

// acceleration is u'' of the orbit equation
func (o *Orbit) acceleration(u float64) float64 {
	return o.schwarzR*(1/(2*o.rotation*o.rotation)+1.5*u*u) - u
}

// angleStep does one classic RK4 step of the system (u, u') over deltaPhi
func (o *Orbit) angleStep(deltaPhi float64) {
	u, uBar := o.u, o.uBar

	k1u := uBar
	k1v := o.acceleration(u)
	k2u := uBar + deltaPhi/2*k1v
	k2v := o.acceleration(u + deltaPhi/2*k1u)
	k3u := uBar + deltaPhi/2*k2v
	k3v := o.acceleration(u + deltaPhi/2*k2u)
	k4u := uBar + deltaPhi*k3v
	k4v := o.acceleration(u + deltaPhi*k3u)

	o.u += deltaPhi * (k1u + 2*k2u + 2*k3u + k4u) / 6
	o.uBar += deltaPhi * (k1v + 2*k2v + 2*k3v + k4v) / 6

	if math.IsInf(o.u, 0) || math.IsNaN(o.u) || o.u > maxU || o.u < 0 {
		o.singular = true
		return
	}
	o.r = 1 / o.u
	o.orbitAngle += deltaPhi
}

func (o *Orbit) h() float64 {
	return 1 - o.schwarzR/o.r
}

// inPlanePolar returns the polar position after tilting the orbit plane, before
// rotating it to its start angle
func (o *Orbit) inPlanePolar() core.Vec3 {
	return core.TransPolarVec(core.NewVec3(o.r, o.orbitAngle, 0), o.planeTilt)
}

// Position returns the current position in Cartesian coordinates
func (o *Orbit) Position() core.Vec3 {
	polar := o.inPlanePolar()
	polar.Y += o.startPhi
	return core.PolarToCartesian(polar)
}

// Velocity returns the four velocity as seen by a frozen observer in (t, r, phi) components
func (o *Orbit) Velocity() core.Vec3 {
	var falling float64
	if o.rotation == 0 {
		falling = -core.Signum(o.r - o.lastR)
	} else {
		falling = core.Signum(o.uBar)
	}

	h := o.h()
	l2 := o.rotation * o.rotation
	radial := max(0, o.energy*o.energy-h*(1+l2/(o.r*o.r)))

	return core.Vec3{
		X: o.energy / h,
		Y: -falling * math.Sqrt(radial),
		Z: o.rotation / (o.r * o.r),
	}
}

// CurrentTiltAngle returns the angle between the orbit plane and the plane
// spanned by the position and position × z
func (o *Orbit) CurrentTiltAngle() float64 {
	return o.tiltAngle * math.Cos(o.inPlanePolar().Y)
}

// IsSingular reports whether the orbit has reached the singularity
func (o *Orbit) IsSingular() bool {
	return o.singular
}

// IsCentralFall reports whether the orbit is a purely radial fall
func (o *Orbit) IsCentralFall() bool {
	return o.rotation == 0
}

// Energy returns the conserved energy per unit mass
func (o *Orbit) Energy() float64 {
	return o.energy
}

// Rotation returns the conserved angular momentum per unit mass
func (o *Orbit) Rotation() float64 {
	return o.rotation
}

// Radius returns the current distance from the centre
func (o *Orbit) Radius() float64 {
	return o.r
}
