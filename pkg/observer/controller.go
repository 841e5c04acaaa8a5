package observer

import (
	"time"

	"github.com/df07/go-schwarzschild-raytracer/pkg/core"
)

const (
	DefaultSpeed = 8.0
	// OrbitRotation is the angular momentum of the orbit mode
	OrbitRotation = 18.0
)

// Key is a movement key
type Key int

const (
	KeyForward Key = iota
	KeyBackward
	KeyLeft
	KeyRight
	KeyUp
	KeyDown
)

// Mode is a motion mode the user can switch to
type Mode int

const (
	ModeUnmoving Mode = iota + 1
	ModeFrozenFall
	ModeCentralFall
	ModeOrbit
	ModeReset
)

// ParseMode maps the mode keys 1-4 and r to a mode
func ParseMode(r rune) (Mode, bool) {
	switch r {
	case '1':
		return ModeUnmoving, true
	case '2':
		return ModeFrozenFall, true
	case '3':
		return ModeCentralFall, true
	case '4':
		return ModeOrbit, true
	case 'r', 'R':
		return ModeReset, true
	default:
		return 0, false
	}
}

// Controller collects key and mouse input between frames and applies it to an observer
type Controller struct {
	amount [6]float64 // indexed by Key

	rotateHorizontal float64
	rotateVertical   float64

	speed float64
}

// NewController creates a controller moving speed units per second
func NewController(speed float64) *Controller {
	return &Controller{speed: speed}
}

// ProcessKey records a key press or release
func (c *Controller) ProcessKey(key Key, pressed bool) bool {
	if key < KeyForward || key > KeyDown {
		return false
	}
	c.amount[key] = 0
	if pressed {
		c.amount[key] = 1
	}
	return true
}

// ProcessMouse adds mouse movement in pixels
func (c *Controller) ProcessMouse(dx, dy float64) {
	c.rotateHorizontal += dx
	c.rotateVertical += dy
}

// Direction returns the held keys as (forward, left, up)
func (c *Controller) Direction() core.Vec3 {
	return core.NewVec3(
		c.amount[KeyForward]-c.amount[KeyBackward],
		c.amount[KeyLeft]-c.amount[KeyRight],
		c.amount[KeyUp]-c.amount[KeyDown],
	)
}

// Update moves and turns the observer by the input of the last dt and
// clears the mouse movement
func (c *Controller) Update(o *Observer, dt time.Duration) {
	o.UpdatePosition(c.Direction().Multiply(c.speed * dt.Seconds()))

	o.MoveCamera(c.rotateHorizontal, c.rotateVertical)
	c.rotateHorizontal = 0
	c.rotateVertical = 0
}

// ApplyMode switches the observer into mode
func ApplyMode(o *Observer, mode Mode) error {
	switch mode {
	case ModeUnmoving:
		o.StartUnmoving()
	case ModeFrozenFall:
		o.StartFrozenFall()
	case ModeCentralFall:
		return o.StartOrbit(0)
	case ModeOrbit:
		return o.StartOrbit(OrbitRotation)
	case ModeReset:
		o.ResetToStart()
	}
	return nil
}
