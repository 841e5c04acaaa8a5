// Package observer implements the camera of the simulation: an observer moving
// through Schwarzschild spacetime whose view is bent by gravity and warped by
// its own motion.
package observer

import (
	"fmt"
	"math"

	"github.com/df07/go-schwarzschild-raytracer/pkg/core"
	"github.com/df07/go-schwarzschild-raytracer/pkg/orbit"
)

const (
	safeFracPi2  = math.Pi/2 - 0.0001
	movementStep = 0.051
	singularEps  = 1e-10
)

// Start values of a new or reset observer
var (
	StartPosition = core.NewVec3(25, 0, 0)
	StartCamera   = core.NewVec2(math.Pi, 0)
)

// State is the motion mode of the observer
type State int

const (
	// Unmoving observers hover at a fixed position, only possible outside the horizon
	Unmoving State = iota
	// FrozenFall observers fall radially with a conserved energy while the user moves them
	FrozenFall
	// Orbiting observers follow a simulated orbit
	Orbiting
)

// String returns the name of the state
func (s State) String() string {
	switch s {
	case Unmoving:
		return "unmoving"
	case FrozenFall:
		return "frozen fall"
	case Orbiting:
		return "orbiting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Observer is a camera around a black hole. The orbit is set exactly when
// the state is Orbiting.
type Observer struct {
	schwarzR float64
	position core.Vec3
	start    core.Vec3
	camera   core.Vec2 // yaw, pitch
	orbit    *orbit.Orbit
	state    State

	timeStep float64
	energy   float64

	mouseSensitivity float64
	fov              float64

	// Sub matrices of the pipeline. The camera rotation is applied last, so
	// looking around still works when the observer is singular.
	fovScaling         core.Mat3
	standardToMovement core.Mat3
	movementToCentral  core.Mat3
	centralToUV        core.Mat3
	psi                float64
}

// New creates an observer at the start position in frozen fall
func New(schwarzR, fov, width, height float64) *Observer {
	o := &Observer{
		schwarzR:           schwarzR,
		position:           StartPosition,
		start:              StartPosition,
		camera:             StartCamera,
		state:              FrozenFall,
		timeStep:           1.0 / 60,
		energy:             1,
		fov:                fov,
		mouseSensitivity:   fov / height,
		standardToMovement: core.Identity3(),
		movementToCentral:  core.Identity3(),
		centralToUV:        core.Identity3(),
		psi:                1,
	}
	o.setFovScaling(width, height)
	return o
}

func (o *Observer) setFovScaling(width, height float64) {
	fovHalfTan := math.Tan(o.fov / 2)
	o.fovScaling = core.Diagonal(core.NewVec3(fovHalfTan, fovHalfTan*width/height, 1))
}

func (o *Observer) h() float64 {
	return 1 - o.schwarzR/o.position.Length()
}

// UpdatePosition moves the observer by one frame. direction is given as
// (forward, left, up) relative to the camera yaw and ignored while orbiting.
func (o *Observer) UpdatePosition(direction core.Vec3) {
	switch o.state {
	case Orbiting:
		o.orbit.DoStep(o.timeStep)
		o.position = o.orbit.Position()
	default:
		step := core.RotationZ(-o.camera.X).MulVec(direction).Multiply(movementStep)
		o.position = o.position.Add(step)
	}
}

// Velocity returns the four velocity in (t, r, phi) components
func (o *Observer) Velocity() core.Vec3 {
	switch o.state {
	case Unmoving:
		return o.unmovingVelocity()
	case FrozenFall:
		return o.frozenFallVelocity()
	default:
		return o.orbit.Velocity()
	}
}

func (o *Observer) unmovingVelocity() core.Vec3 {
	if o.position.Length() > o.schwarzR {
		return core.NewVec3(1/math.Sqrt(o.h()), 0, 0)
	}
	// Inside the horizon nobody can stand still
	return core.NewVec3(0, -math.Sqrt(-o.h()), 0)
}

func (o *Observer) frozenFallVelocity() core.Vec3 {
	h := o.h()
	if o.energy*o.energy < h {
		return o.unmovingVelocity()
	}
	return core.NewVec3(o.energy/h, math.Sqrt(o.energy*o.energy-h), 0)
}

// StartOrbit puts the observer on an orbit with angular momentum rotation,
// heading counterclockwise around the z axis. The state is unchanged when
// the orbit cannot start.
func (o *Observer) StartOrbit(rotation float64) error {
	direction := core.NewVec3(-o.position.Y, o.position.X, 0)
	orb, err := orbit.New(o.schwarzR, o.position, direction, rotation)
	if err != nil {
		return fmt.Errorf("start orbit at r = %.3f: %w", o.position.Length(), err)
	}
	o.orbit = orb
	o.state = Orbiting
	return nil
}

// StartFrozenFall enters the frozen fall mode
func (o *Observer) StartFrozenFall() {
	o.orbit = nil
	o.state = FrozenFall
}

// StartUnmoving enters the unmoving mode, which is meaningless inside the horizon
func (o *Observer) StartUnmoving() {
	o.orbit = nil
	o.state = Unmoving
}

// ResetToStart moves the observer back to the start in frozen fall
func (o *Observer) ResetToStart() {
	o.position = o.start
	o.camera = StartCamera
	o.StartFrozenFall()
}

// IsSingular reports whether the pipeline cannot be updated at the current position
func (o *Observer) IsSingular() bool {
	r := o.position.Length()
	if math.Abs(r-o.schwarzR) < singularEps {
		return true
	}
	if o.state == Orbiting {
		return o.orbit.IsSingular()
	}
	return r < singularEps
}

// CalcTransformationPipeline returns the matrices that map screen directions
// to directions at the observer and further to sphere coordinates
func (o *Observer) CalcTransformationPipeline() TransformationPipeline {
	r := o.position.Length()

	// Position dependent parts keep their last values while singular
	if !o.IsSingular() {
		vel := o.Velocity()
		h := o.h()

		if r > o.schwarzR {
			o.psi = vel.X * vel.X * h
		} else {
			o.psi = -vel.Y * vel.Y / h
		}
		if o.psi-1 < 1e-10 {
			o.psi = 1
		}

		standardToCentral := core.LookToVecMat(o.position.Negate()).Transpose()
		if o.state == Orbiting && !o.orbit.IsCentralFall() {
			tilt := o.orbit.CurrentTiltAngle()
			angle1, angle2 := o.planeAngles(vel, r, h)

			orbitPlaneTilt := core.RotationZ(-tilt)
			o.standardToMovement = core.RotationX(-angle1).Mul(orbitPlaneTilt).Mul(standardToCentral)
			o.movementToCentral = orbitPlaneTilt.Transpose().Mul(core.RotationX(angle2))
		} else {
			o.standardToMovement = standardToCentral
			o.movementToCentral = core.Identity3()
		}
	}

	// Geodesics mirror the coordinates, so y is inverted. The origin has no
	// direction and keeps the last matrix.
	if o.position.LengthSquared() > 0 {
		o.centralToUV = core.LookToVecMat(o.position).Mul(core.Diagonal(core.NewVec3(1, -1, 1)))
	}

	cameraToStandard := core.LookToVecMat(core.Polar2ToCartesian(o.camera.X, o.camera.Y))
	displayToMovement := o.standardToMovement.Mul(cameraToStandard).Mul(o.fovScaling)

	return newTransformationPipeline(
		displayToMovement,
		o.movementToCentral,
		o.centralToUV,
		math.Sqrt((o.psi-1)/o.psi),
		o.position,
	)
}

// planeAngles returns the rotations between the orbit plane and the
// direction of movement, before and after the aberration
func (o *Observer) planeAngles(vel core.Vec3, r, h float64) (float64, float64) {
	if o.psi == 1 {
		return 0, 0
	}
	clampAcos := func(x float64) float64 {
		return math.Acos(max(-1, min(1, x)))
	}

	angle1 := clampAcos(-vel.X * vel.Y * core.Signum(r-o.schwarzR) /
		math.Sqrt((1+r*r*vel.Z*vel.Z)*o.psi*(o.psi-1)))

	var angle2 float64
	if r > o.schwarzR {
		angle2 = clampAcos(-vel.Y / math.Sqrt(h*(o.psi-1)))
	} else {
		angle2 = clampAcos(-vel.X * math.Sqrt(-h/(o.psi-1)))
	}
	return angle1, angle2
}

// UpdateScreenFormat adapts the aspect ratio and mouse sensitivity to a new window size
func (o *Observer) UpdateScreenFormat(width, height float64) {
	o.setFovScaling(width, height)
	o.mouseSensitivity = o.fov / height
}

// MoveCamera turns the camera by mouse movement in pixels
func (o *Observer) MoveCamera(horizontalPixels, verticalPixels float64) {
	o.camera.X += horizontalPixels * o.mouseSensitivity
	o.camera.Y += verticalPixels * o.mouseSensitivity
	o.camera.Y = max(-safeFracPi2, min(safeFracPi2, o.camera.Y))
}

// OrbitStability classifies an orbit with angular momentum rotation started
// at the current position
func (o *Observer) OrbitStability(rotation float64) orbit.Stability {
	return orbit.IsStable(rotation, o.schwarzR, o.position.Length())
}

// SetPosition places the observer, leaving an orbit if there is one
func (o *Observer) SetPosition(position core.Vec3) {
	if o.state == Orbiting {
		o.StartFrozenFall()
	}
	o.position = position
}

// SetStart changes the position ResetToStart returns to and moves there
func (o *Observer) SetStart(position core.Vec3) {
	o.start = position
	o.SetPosition(position)
}

// SchwarzR returns the event horizon radius
func (o *Observer) SchwarzR() float64 {
	return o.schwarzR
}

// Position returns the Cartesian position
func (o *Observer) Position() core.Vec3 {
	return o.position
}

// RadialPosition returns the distance from the centre
func (o *Observer) RadialPosition() float64 {
	return o.position.Length()
}

// Camera returns yaw and pitch of the look direction
func (o *Observer) Camera() core.Vec2 {
	return o.camera
}

// State returns the motion mode
func (o *Observer) State() State {
	return o.state
}

// Orbit returns the active orbit, nil unless orbiting
func (o *Observer) Orbit() *orbit.Orbit {
	return o.orbit
}

// Psi returns the aberration scalar of the last pipeline
func (o *Observer) Psi() float64 {
	return o.psi
}

// MouseSensitivity returns the camera angle per pixel
func (o *Observer) MouseSensitivity() float64 {
	return o.mouseSensitivity
}
