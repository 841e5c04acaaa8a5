package observer

import (
	"errors"
	"math"
	"testing"

	"github.com/df07/go-schwarzschild-raytracer/pkg/core"
	"github.com/df07/go-schwarzschild-raytracer/pkg/orbit"
)

const (
	testSchwarzR = 10.0
	testFov      = math.Pi / 2
	testWidth    = 800.0
	testHeight   = 600.0
)

func newTestObserver() *Observer {
	return New(testSchwarzR, testFov, testWidth, testHeight)
}

// checkOrbitInvariant fails if the orbit is not present exactly while orbiting
func checkOrbitInvariant(t *testing.T, o *Observer) {
	t.Helper()
	if (o.Orbit() != nil) != (o.State() == Orbiting) {
		t.Fatalf("Orbit present = %v in state %v", o.Orbit() != nil, o.State())
	}
}

func TestNew(t *testing.T) {
	o := newTestObserver()

	if !o.Position().Equals(core.NewVec3(25, 0, 0)) {
		t.Errorf("Expected start position (25, 0, 0), got %v", o.Position())
	}
	if o.Camera() != core.NewVec2(math.Pi, 0) {
		t.Errorf("Expected camera (pi, 0), got %v", o.Camera())
	}
	if o.State() != FrozenFall {
		t.Errorf("Expected frozen fall, got %v", o.State())
	}
	if math.Abs(o.MouseSensitivity()-testFov/testHeight) > 1e-15 {
		t.Errorf("Expected mouse sensitivity %v, got %v", testFov/testHeight, o.MouseSensitivity())
	}
	if o.SchwarzR() != testSchwarzR || o.RadialPosition() != 25 {
		t.Errorf("Unexpected radius values %v, %v", o.SchwarzR(), o.RadialPosition())
	}
	checkOrbitInvariant(t, o)
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{Unmoving, "unmoving"},
		{FrozenFall, "frozen fall"},
		{Orbiting, "orbiting"},
		{State(7), "State(7)"},
	}
	for _, tt := range tests {
		if tt.state.String() != tt.expected {
			t.Errorf("Expected %q, got %q", tt.expected, tt.state.String())
		}
	}
}

func TestUpdatePosition_MovesAlongCameraYaw(t *testing.T) {
	tests := []struct {
		name      string
		direction core.Vec3
		expected  core.Vec3
	}{
		// The camera looks down the -x axis at the start
		{"Forward", core.NewVec3(1, 0, 0), core.NewVec3(25-0.051, 0, 0)},
		{"Left", core.NewVec3(0, 1, 0), core.NewVec3(25, -0.051, 0)},
		{"Up", core.NewVec3(0, 0, 1), core.NewVec3(25, 0, 0.051)},
		{"Scaled backward", core.NewVec3(-2, 0, 0), core.NewVec3(25+0.102, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestObserver()
			o.UpdatePosition(tt.direction)

			const tolerance = 1e-12
			if !o.Position().ApproxEquals(tt.expected, tolerance) {
				t.Errorf("Expected %v, got %v", tt.expected, o.Position())
			}
		})
	}
}

func TestVelocity(t *testing.T) {
	o := newTestObserver()
	h := 1 - testSchwarzR/25

	fall := o.Velocity()
	expectedFall := core.NewVec3(1/h, math.Sqrt(1-h), 0)
	if !fall.ApproxEquals(expectedFall, 1e-12) {
		t.Errorf("Expected frozen fall velocity %v, got %v", expectedFall, fall)
	}

	o.StartUnmoving()
	still := o.Velocity()
	expectedStill := core.NewVec3(1/math.Sqrt(h), 0, 0)
	if !still.ApproxEquals(expectedStill, 1e-12) {
		t.Errorf("Expected static velocity %v, got %v", expectedStill, still)
	}

	// Inside the horizon the static formula turns into a fall
	o.SetPosition(core.NewVec3(5, 0, 0))
	inside := o.Velocity()
	if inside.X != 0 || math.Abs(inside.Y+1) > 1e-12 {
		t.Errorf("Expected (0, -1, 0) inside the horizon, got %v", inside)
	}
}

func TestStartOrbit_InsideHorizonKeepsState(t *testing.T) {
	o := newTestObserver()
	o.SetPosition(core.NewVec3(5, 0, 0))

	err := o.StartOrbit(OrbitRotation)
	if !errors.Is(err, orbit.ErrInsideHorizon) {
		t.Fatalf("Expected ErrInsideHorizon, got %v", err)
	}
	if o.State() != FrozenFall {
		t.Errorf("Expected the state to stay frozen fall, got %v", o.State())
	}
	checkOrbitInvariant(t, o)
}

func TestStateTransitions_KeepOrbitInvariant(t *testing.T) {
	o := newTestObserver()
	steps := []struct {
		name   string
		action func() error
		state  State
	}{
		{"Orbit", func() error { return o.StartOrbit(OrbitRotation) }, Orbiting},
		{"Unmoving", func() error { o.StartUnmoving(); return nil }, Unmoving},
		{"Central fall", func() error { return o.StartOrbit(0) }, Orbiting},
		{"Frozen fall", func() error { o.StartFrozenFall(); return nil }, FrozenFall},
		{"Orbit again", func() error { return o.StartOrbit(OrbitRotation) }, Orbiting},
		{"Reset", func() error { o.ResetToStart(); return nil }, FrozenFall},
		{"Orbit before move", func() error { return o.StartOrbit(OrbitRotation) }, Orbiting},
		{"Set position", func() error { o.SetPosition(core.NewVec3(30, 0, 0)); return nil }, FrozenFall},
	}

	for _, step := range steps {
		if err := step.action(); err != nil {
			t.Fatalf("%s: unexpected error %v", step.name, err)
		}
		if o.State() != step.state {
			t.Errorf("%s: expected state %v, got %v", step.name, step.state, o.State())
		}
		checkOrbitInvariant(t, o)
	}
}

func TestOrbiting_FollowsOrbit(t *testing.T) {
	o := newTestObserver()
	if err := o.StartOrbit(OrbitRotation); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	start := o.Position()
	for i := 0; i < 60; i++ {
		// Input is ignored while orbiting
		o.UpdatePosition(core.NewVec3(1, 1, 1))
	}
	if o.Position().ApproxEquals(start, 1e-3) {
		t.Errorf("Expected the orbit to move the observer")
	}
	if !o.Position().ApproxEquals(o.Orbit().Position(), 0) {
		t.Errorf("Expected the observer to sit on its orbit")
	}
	if o.Position().Z != 0 {
		t.Errorf("Expected an equatorial orbit, got z = %v", o.Position().Z)
	}
}

func TestIsSingular(t *testing.T) {
	o := newTestObserver()
	if o.IsSingular() {
		t.Errorf("Start position should not be singular")
	}

	o.SetPosition(core.NewVec3(0, testSchwarzR, 0))
	if !o.IsSingular() {
		t.Errorf("Expected the horizon to be singular")
	}

	o.SetPosition(core.NewVec3(0, 0, 0))
	if !o.IsSingular() {
		t.Errorf("Expected the centre to be singular")
	}

	o.ResetToStart()
	if err := o.StartOrbit(0); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for i := 0; i < 100000 && !o.Orbit().IsSingular(); i++ {
		o.UpdatePosition(core.Vec3{})
	}
	if !o.IsSingular() {
		t.Errorf("Expected the observer to share the singularity of its orbit")
	}
}

func TestMoveCamera(t *testing.T) {
	o := newTestObserver()
	o.MoveCamera(100, -50)

	expected := core.NewVec2(math.Pi+100*o.MouseSensitivity(), -50*o.MouseSensitivity())
	if math.Abs(o.Camera().X-expected.X) > 1e-12 || math.Abs(o.Camera().Y-expected.Y) > 1e-12 {
		t.Errorf("Expected camera %v, got %v", expected, o.Camera())
	}

	o.MoveCamera(0, 1e6)
	if o.Camera().Y != safeFracPi2 {
		t.Errorf("Expected pitch clamped to %v, got %v", safeFracPi2, o.Camera().Y)
	}
	o.MoveCamera(0, -1e7)
	if o.Camera().Y != -safeFracPi2 {
		t.Errorf("Expected pitch clamped to %v, got %v", -safeFracPi2, o.Camera().Y)
	}
}

func TestUpdateScreenFormat(t *testing.T) {
	o := newTestObserver()
	o.UpdateScreenFormat(1000, 500)

	if o.MouseSensitivity() != testFov/500 {
		t.Errorf("Expected mouse sensitivity %v, got %v", testFov/500, o.MouseSensitivity())
	}

	o.StartUnmoving()
	d2m := Mat3FromMat4(o.CalcTransformationPipeline().DisplayToMovement)
	expected := core.Diagonal(core.NewVec3(1, 2, 1))
	if !d2m.ApproxEquals(expected, 1e-6) {
		t.Errorf("Expected fov scaling %v, got %v", expected, d2m)
	}
}

func TestCalcTransformationPipeline_Unmoving(t *testing.T) {
	o := newTestObserver()
	o.StartUnmoving()
	p := o.CalcTransformationPipeline()

	if p.PsiFactor() != 0 {
		t.Errorf("Expected no aberration for a static observer, got %v", p.PsiFactor())
	}

	// Looking at the centre, the camera and central frames coincide
	fovHalfTan := math.Tan(testFov / 2)
	expected := core.Diagonal(core.NewVec3(fovHalfTan, fovHalfTan*testWidth/testHeight, 1))
	if d2m := Mat3FromMat4(p.DisplayToMovement); !d2m.ApproxEquals(expected, 1e-6) {
		t.Errorf("Expected display to movement %v, got %v", expected, d2m)
	}
	if m2c := Mat3FromMat4(p.MovementToCentral); !m2c.ApproxEquals(core.Identity3(), 0) {
		t.Errorf("Expected identity movement to central, got %v", m2c)
	}

	c2uv := Mat3FromMat4(p.CentralToUV)
	if math.Abs(c2uv.Determinant()+1) > 1e-6 {
		t.Errorf("Expected a mirrored central to uv, det %v", c2uv.Determinant())
	}
	if !c2uv.MulVec(core.NewVec3(0, 0, 1)).ApproxEquals(core.NewVec3(1, 0, 0), 1e-6) {
		t.Errorf("Expected the central z axis to map to the observer direction")
	}
	if !p.Position().Equals(core.NewVec3(25, 0, 0)) {
		t.Errorf("Expected the position in the pipeline, got %v", p.Position())
	}
}

func TestCalcTransformationPipeline_FrozenFall(t *testing.T) {
	o := newTestObserver()
	p := o.CalcTransformationPipeline()

	// Falling from rest at infinity passes at escape velocity
	expected := math.Sqrt(testSchwarzR / 25)
	if math.Abs(p.PsiFactor()-expected) > 1e-6 {
		t.Errorf("Expected speed %v, got %v", expected, p.PsiFactor())
	}
	if math.Abs(o.Psi()-25/(25-testSchwarzR)) > 1e-12 {
		t.Errorf("Expected psi %v, got %v", 25/(25-testSchwarzR), o.Psi())
	}

	// Singular positions keep the previous values
	o.SetPosition(core.NewVec3(testSchwarzR, 0, 0))
	o.CalcTransformationPipeline()
	if math.Abs(o.Psi()-25/(25-testSchwarzR)) > 1e-12 {
		t.Errorf("Expected psi to be kept while singular, got %v", o.Psi())
	}
}

func TestCalcTransformationPipeline_InsideHorizon(t *testing.T) {
	o := newTestObserver()
	o.SetPosition(core.NewVec3(5, 0, 0))
	p := o.CalcTransformationPipeline()

	// psi = (E² - h) / -h with h = -1
	if math.Abs(o.Psi()-2) > 1e-12 {
		t.Errorf("Expected psi 2, got %v", o.Psi())
	}
	if math.Abs(p.PsiFactor()-math.Sqrt(0.5)) > 1e-6 {
		t.Errorf("Expected speed sqrt(1/2), got %v", p.PsiFactor())
	}
}

func TestCalcTransformationPipeline_AtOrigin(t *testing.T) {
	o := newTestObserver()
	before := o.CalcTransformationPipeline()

	o.SetPosition(core.Vec3{})
	p := o.CalcTransformationPipeline()

	for i, v := range p.CentralToUV {
		if math.IsNaN(float64(v)) {
			t.Fatalf("Expected a finite central to uv at the origin, entry %d is NaN", i)
		}
	}
	if p.CentralToUV != before.CentralToUV {
		t.Errorf("Expected the central to uv to be kept at the origin, got %v", p.CentralToUV)
	}
}

func TestCalcTransformationPipeline_Orbiting(t *testing.T) {
	o := newTestObserver()
	if err := o.StartOrbit(OrbitRotation); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for frame := 0; frame < 120; frame++ {
		o.UpdatePosition(core.Vec3{})
		p := o.CalcTransformationPipeline()

		for _, m := range [][16]float32{p.DisplayToMovement, p.MovementToCentral, p.CentralToUV} {
			for i, v := range m {
				if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
					t.Fatalf("Frame %d: entry %d is %v", frame, i, v)
				}
			}
		}
		if f := p.PsiFactor(); f <= 0 || f >= 1 {
			t.Fatalf("Frame %d: expected a speed in (0, 1), got %v", frame, f)
		}

		m2c := Mat3FromMat4(p.MovementToCentral)
		if !m2c.Transpose().Mul(m2c).ApproxEquals(core.Identity3(), 1e-5) {
			t.Fatalf("Frame %d: movement to central is not a rotation", frame)
		}
	}
}

func TestOrbitStability(t *testing.T) {
	o := newTestObserver()
	if s := o.OrbitStability(10); s != orbit.HittingSingularity {
		t.Errorf("Expected a small rotation to fall in, got %v", s)
	}
	if s := o.OrbitStability(100); s != orbit.EscapeTrajectory {
		t.Errorf("Expected a large rotation to escape, got %v", s)
	}
}

func TestSetStart(t *testing.T) {
	o := newTestObserver()
	start := core.NewVec3(0, 40, 5)
	o.SetStart(start)
	if !o.Position().Equals(start) {
		t.Errorf("Expected the observer at %v, got %v", start, o.Position())
	}

	o.SetPosition(core.NewVec3(15, 0, 0))
	o.ResetToStart()
	if !o.Position().Equals(start) || o.State() != FrozenFall {
		t.Errorf("Expected a reset to %v in frozen fall, got %v in %v", start, o.Position(), o.State())
	}
}
