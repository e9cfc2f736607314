// Package engine implements the proximity alert state machine: given
// destination changes and location samples it decides when to raise the
// arrival alert, with a two-radius hysteresis band so the alert fires at
// most once per approach.
package engine

import (
	"errors"
	"fmt"

	"github.com/mr1hm/go-arrival-alert/internal/geo"
)

// State is the alert lifecycle state.
type State int

const (
	// StateIdle means no destination is set.
	StateIdle State = iota
	// StateArmed means a destination is set and the alert may fire on the
	// next sample inside the alert radius.
	StateArmed
	// StateFired means the alert has been raised for the current approach
	// and stays suppressed until the clear radius is exceeded.
	StateFired
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateFired:
		return "fired"
	default:
		return "unknown"
	}
}

const (
	// DefaultAlertRadiusKm is the distance at which the alert fires.
	DefaultAlertRadiusKm = 2.0
	// DefaultClearRadiusKm is the distance the user must exceed before the
	// alert can fire again. Keeping it above the alert radius prevents the
	// alert from re-firing on every sample while lingering at the boundary.
	DefaultClearRadiusKm = 2.5
)

// DefaultVibratePattern is the vibration cadence requested with each
// alert, in milliseconds (off/on alternating, starting with a delay).
var DefaultVibratePattern = []int{0, 500, 200, 500}

// Event is an external input to the state machine. Exactly three kinds
// exist: selecting a destination, clearing it, and a location sample.
type Event interface {
	event()
}

// SelectDestination replaces the active destination and rearms the alert
// regardless of the current state.
type SelectDestination struct {
	Destination geo.Coordinate
}

// ClearDestination removes the active destination.
type ClearDestination struct{}

// Sample is one position fix from the location provider or map surface.
type Sample struct {
	Position geo.Coordinate
}

func (SelectDestination) event() {}
func (ClearDestination) event()  {}
func (Sample) event()            {}

// Effect is a fire-and-forget side-effect request produced by a
// transition. The caller dispatches them to the alert sink; failures
// there never feed back into the machine.
type Effect interface {
	effect()
}

// Vibrate requests the device vibration pattern.
type Vibrate struct {
	Pattern []int
}

// Notify requests a user-visible message.
type Notify struct {
	Message string
}

func (Vibrate) effect() {}
func (Notify) effect()  {}

// Result describes the outcome of applying one event.
type Result struct {
	State State
	// DistanceKm is the distance to the destination, valid only when
	// HasDistance is set. It is never computed unless both the sample
	// position and a destination are known.
	DistanceKm  float64
	HasDistance bool
	Effects     []Effect
}

// Options configures an Engine.
type Options struct {
	AlertRadiusKm  float64
	ClearRadiusKm  float64
	VibratePattern []int
}

// Engine is the proximity alert state machine. It is not safe for
// concurrent use: a single tracker session owns it and serializes all
// events onto it.
type Engine struct {
	alertRadiusKm  float64
	clearRadiusKm  float64
	vibratePattern []int

	state State
	dest  geo.Coordinate
}

// New builds an engine, filling unset options with the defaults. The
// clear radius must not be smaller than the alert radius.
func New(opts Options) (*Engine, error) {
	if opts.AlertRadiusKm == 0 {
		opts.AlertRadiusKm = DefaultAlertRadiusKm
	}
	if opts.ClearRadiusKm == 0 {
		opts.ClearRadiusKm = DefaultClearRadiusKm
	}
	if len(opts.VibratePattern) == 0 {
		opts.VibratePattern = DefaultVibratePattern
	}

	if opts.AlertRadiusKm <= 0 {
		return nil, fmt.Errorf("alert radius must be positive, got %v", opts.AlertRadiusKm)
	}
	if opts.ClearRadiusKm < opts.AlertRadiusKm {
		return nil, fmt.Errorf("clear radius %v is smaller than alert radius %v",
			opts.ClearRadiusKm, opts.AlertRadiusKm)
	}

	return &Engine{
		alertRadiusKm:  opts.AlertRadiusKm,
		clearRadiusKm:  opts.ClearRadiusKm,
		vibratePattern: opts.VibratePattern,
		state:          StateIdle,
	}, nil
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return e.state
}

// Destination returns the active destination, if any.
func (e *Engine) Destination() (geo.Coordinate, bool) {
	if e.state == StateIdle {
		return geo.Coordinate{}, false
	}
	return e.dest, true
}

// Apply runs one transition and returns the resulting state plus any
// side-effect requests. Unknown event types are rejected.
func (e *Engine) Apply(ev Event) (Result, error) {
	switch ev := ev.(type) {
	case SelectDestination:
		e.dest = ev.Destination
		e.state = StateArmed
		return Result{State: e.state}, nil

	case ClearDestination:
		e.dest = geo.Coordinate{}
		e.state = StateIdle
		return Result{State: e.state}, nil

	case Sample:
		return e.applySample(ev.Position), nil

	default:
		return Result{State: e.state}, errors.New("engine: unknown event type")
	}
}

func (e *Engine) applySample(pos geo.Coordinate) Result {
	// Without a destination there is nothing to measure against; the
	// sample is dropped before any distance computation.
	if e.state == StateIdle {
		return Result{State: StateIdle}
	}

	d := geo.DistanceKm(pos, e.dest)
	res := Result{DistanceKm: d, HasDistance: true}

	switch e.state {
	case StateArmed:
		if d <= e.alertRadiusKm {
			e.state = StateFired
			res.Effects = []Effect{
				Vibrate{Pattern: e.vibratePattern},
				Notify{Message: fmt.Sprintf("Approaching destination: %.2f km away", d)},
			}
		}
	case StateFired:
		if d > e.clearRadiusKm {
			e.state = StateArmed
		}
	}

	res.State = e.state
	return res
}
