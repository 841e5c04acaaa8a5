package observer

import (
	"math"
	"testing"
	"time"

	"github.com/df07/go-schwarzschild-raytracer/pkg/core"
)

func TestController_Direction(t *testing.T) {
	tests := []struct {
		name     string
		pressed  []Key
		expected core.Vec3
	}{
		{"Nothing", nil, core.NewVec3(0, 0, 0)},
		{"Forward", []Key{KeyForward}, core.NewVec3(1, 0, 0)},
		{"Forward and backward cancel", []Key{KeyForward, KeyBackward}, core.NewVec3(0, 0, 0)},
		{"Right and down", []Key{KeyRight, KeyDown}, core.NewVec3(0, -1, -1)},
		{"Left and up", []Key{KeyLeft, KeyUp}, core.NewVec3(0, 1, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(DefaultSpeed)
			for _, key := range tt.pressed {
				if !c.ProcessKey(key, true) {
					t.Fatalf("Key %v not handled", key)
				}
			}
			if !c.Direction().Equals(tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, c.Direction())
			}
		})
	}
}

func TestController_ReleaseAndUnknownKeys(t *testing.T) {
	c := NewController(DefaultSpeed)
	c.ProcessKey(KeyForward, true)
	c.ProcessKey(KeyForward, false)
	if !c.Direction().Equals(core.Vec3{}) {
		t.Errorf("Expected released key to stop movement, got %v", c.Direction())
	}
	if c.ProcessKey(Key(42), true) {
		t.Errorf("Expected unknown key to be ignored")
	}
}

func TestController_Update(t *testing.T) {
	o := newTestObserver()
	c := NewController(DefaultSpeed)

	c.ProcessKey(KeyForward, true)
	c.ProcessMouse(10, 4)
	c.ProcessMouse(10, -2)
	c.Update(o, time.Second)

	// Speed 8 for one second towards the centre
	expected := core.NewVec3(25-8*0.051, 0, 0)
	if !o.Position().ApproxEquals(expected, 1e-12) {
		t.Errorf("Expected position %v, got %v", expected, o.Position())
	}
	yaw := math.Pi + 20*o.MouseSensitivity()
	pitch := 2 * o.MouseSensitivity()
	if math.Abs(o.Camera().X-yaw) > 1e-12 || math.Abs(o.Camera().Y-pitch) > 1e-12 {
		t.Errorf("Expected camera (%v, %v), got %v", yaw, pitch, o.Camera())
	}

	// Mouse movement is consumed, held keys are not
	c.Update(o, 0)
	if math.Abs(o.Camera().X-yaw) > 1e-12 {
		t.Errorf("Expected the mouse movement to be cleared, got %v", o.Camera())
	}
	if c.Direction().X != 1 {
		t.Errorf("Expected the key to stay pressed")
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		key      rune
		expected Mode
		ok       bool
	}{
		{'1', ModeUnmoving, true},
		{'2', ModeFrozenFall, true},
		{'3', ModeCentralFall, true},
		{'4', ModeOrbit, true},
		{'r', ModeReset, true},
		{'R', ModeReset, true},
		{'5', 0, false},
		{'x', 0, false},
	}

	for _, tt := range tests {
		mode, ok := ParseMode(tt.key)
		if mode != tt.expected || ok != tt.ok {
			t.Errorf("Key %q: expected (%v, %v), got (%v, %v)", tt.key, tt.expected, tt.ok, mode, ok)
		}
	}
}

func TestApplyMode(t *testing.T) {
	o := newTestObserver()

	tests := []struct {
		mode        Mode
		state       State
		centralFall bool
	}{
		{ModeOrbit, Orbiting, false},
		{ModeUnmoving, Unmoving, false},
		{ModeCentralFall, Orbiting, true},
		{ModeFrozenFall, FrozenFall, false},
	}

	for _, tt := range tests {
		if err := ApplyMode(o, tt.mode); err != nil {
			t.Fatalf("Mode %v: unexpected error %v", tt.mode, err)
		}
		if o.State() != tt.state {
			t.Errorf("Mode %v: expected %v, got %v", tt.mode, tt.state, o.State())
		}
		if tt.state == Orbiting && o.Orbit().IsCentralFall() != tt.centralFall {
			t.Errorf("Mode %v: expected central fall %v", tt.mode, tt.centralFall)
		}
		checkOrbitInvariant(t, o)
	}

	o.UpdatePosition(core.NewVec3(1, 0, 0))
	o.MoveCamera(30, 30)
	if err := ApplyMode(o, ModeReset); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !o.Position().Equals(StartPosition) || o.Camera() != StartCamera || o.State() != FrozenFall {
		t.Errorf("Expected reset to the start, got %v %v %v", o.Position(), o.Camera(), o.State())
	}

	o.SetPosition(core.NewVec3(3, 0, 0))
	if err := ApplyMode(o, ModeOrbit); err == nil {
		t.Errorf("Expected an orbit inside the horizon to fail")
	}
}
