// Package tracker owns one proximity-alert session: it serializes
// location samples, destination changes, and tracking toggles onto the
// engine, dispatches alert side effects to the sink, and publishes
// observable changes to the event stream.
package tracker

import (
	"context"
	"errors"
	"sync"

	"github.com/mr1hm/go-arrival-alert/internal/alert"
	"github.com/mr1hm/go-arrival-alert/internal/engine"
	"github.com/mr1hm/go-arrival-alert/internal/geo"
	"github.com/mr1hm/go-arrival-alert/internal/geocode"
	"github.com/mr1hm/go-arrival-alert/internal/location"
	"github.com/mr1hm/go-arrival-alert/internal/stream"
)

var (
	// ErrNoDestination rejects tracking without an active destination.
	ErrNoDestination = errors.New("tracker: no destination set")
	// ErrNoProvider means no location provider is configured, so
	// one-shot fixes and tracking mode are unavailable.
	ErrNoProvider = errors.New("tracker: no location provider configured")
	// ErrNoGeocoder means destination search is unavailable.
	ErrNoGeocoder = errors.New("tracker: no geocoder configured")
)

// Status is a snapshot of the session.
type Status struct {
	State       engine.State
	Destination *geo.Coordinate
	Position    *geo.Coordinate
	DistanceKm  float64
	HasDistance bool
	Tracking    bool
	// AlertFired is set when the status was produced by a sample that
	// raised the alert; AlertMessage and AlertPattern carry the
	// requested side effects.
	AlertFired   bool
	AlertMessage string
	AlertPattern []int
}

// Config wires a Tracker. Engine, Sink and Events are required;
// Provider and Resolver are optional (the matching operations fail with
// ErrNoProvider / ErrNoGeocoder).
type Config struct {
	Engine    *engine.Engine
	Provider  location.Provider
	Resolver  *geocode.Resolver
	Sink      alert.Sink
	Events    *stream.Broadcaster
	TrackOpts location.SubscribeOptions
}

// Tracker is safe for concurrent use; every event is applied under one
// mutex, so the engine never sees two events at once.
type Tracker struct {
	provider  location.Provider
	resolver  *geocode.Resolver
	sink      alert.Sink
	events    *stream.Broadcaster
	trackOpts location.SubscribeOptions

	mu       sync.Mutex
	eng      *engine.Engine
	sub      location.Subscription
	tracking bool
	// gen invalidates in-flight samples: it is bumped whenever tracking
	// stops, and samples carrying a stale generation are discarded. This
	// is what makes StopTracking a hard guarantee without holding the
	// session lock across the provider's Cancel.
	gen uint64

	pos          *geo.Coordinate
	lastDistance float64
	hasDistance  bool
}

func New(cfg Config) *Tracker {
	return &Tracker{
		eng:       cfg.Engine,
		provider:  cfg.Provider,
		resolver:  cfg.Resolver,
		sink:      cfg.Sink,
		events:    cfg.Events,
		trackOpts: cfg.TrackOpts,
	}
}

// SelectDestination activates a destination (map tap) and rearms the
// alert regardless of the current state.
func (t *Tracker) SelectDestination(dest geo.Coordinate) Status {
	t.mu.Lock()
	t.eng.Apply(engine.SelectDestination{Destination: dest})
	t.hasDistance = false
	st := t.statusLocked()
	t.mu.Unlock()

	t.events.Broadcast(stream.Event{
		Type:     stream.EventDestination,
		State:    st.State.String(),
		Position: &dest,
		Tracking: st.Tracking,
	})
	return st
}

// Search resolves a place-name query and selects the result.
func (t *Tracker) Search(ctx context.Context, query string) (Status, error) {
	if t.resolver == nil {
		return t.Status(), ErrNoGeocoder
	}

	dest, err := t.resolver.Resolve(ctx, query)
	if err != nil {
		// The destination is unchanged; the caller may retry.
		return t.Status(), err
	}
	return t.SelectDestination(dest), nil
}

// ClearDestination drops the destination, stops tracking, and returns
// the session to idle.
func (t *Tracker) ClearDestination() Status {
	t.mu.Lock()
	sub := t.sub
	t.sub = nil
	t.tracking = false
	t.gen++
	t.eng.Apply(engine.ClearDestination{})
	t.hasDistance = false
	st := t.statusLocked()
	t.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	t.events.Broadcast(stream.Event{Type: stream.EventCleared, State: st.State.String()})
	return st
}

// ApplySample feeds one position fix into the engine (the map surface
// pushes samples here; tracking mode arrives via the subscription).
func (t *Tracker) ApplySample(pos geo.Coordinate) Status {
	t.mu.Lock()
	st := t.applySampleLocked(pos)
	t.mu.Unlock()

	t.publishSample(st)
	return st
}

// Refresh acquires a one-shot fix and applies it. A provider failure
// leaves alert state untouched.
func (t *Tracker) Refresh(ctx context.Context) (Status, error) {
	if t.provider == nil {
		return t.Status(), ErrNoProvider
	}

	pos, err := t.provider.Current(ctx)
	if err != nil {
		return t.Status(), err
	}
	return t.ApplySample(pos), nil
}

// StartTracking subscribes to continuous location updates. It requires
// an active destination and is idempotent while tracking.
func (t *Tracker) StartTracking() error {
	t.mu.Lock()
	if t.tracking {
		t.mu.Unlock()
		return nil
	}
	if _, ok := t.eng.Destination(); !ok {
		t.mu.Unlock()
		return ErrNoDestination
	}
	if t.provider == nil {
		t.mu.Unlock()
		return ErrNoProvider
	}
	t.gen++
	gen := t.gen
	t.tracking = true
	t.mu.Unlock()

	// Subscribe outside the session lock: the provider invokes sample
	// callbacks under its own lock, and those callbacks take ours.
	sub, err := t.provider.Subscribe(t.trackOpts, func(pos geo.Coordinate) {
		t.onTrackedSample(gen, pos)
	})
	if err != nil {
		t.mu.Lock()
		if t.gen == gen {
			t.tracking = false
		}
		t.mu.Unlock()
		return err
	}

	t.mu.Lock()
	if t.gen != gen {
		// Stopped or cleared while subscribing; release immediately.
		t.mu.Unlock()
		sub.Cancel()
		return nil
	}
	t.sub = sub
	t.mu.Unlock()

	t.events.Broadcast(stream.Event{
		Type:     stream.EventTracking,
		State:    t.Status().State.String(),
		Tracking: true,
	})
	return nil
}

// StopTracking releases the subscription. After it returns, no further
// sample from that subscription can change alert state.
func (t *Tracker) StopTracking() {
	t.mu.Lock()
	sub := t.sub
	t.sub = nil
	wasTracking := t.tracking
	t.tracking = false
	t.gen++
	st := t.statusLocked()
	t.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	if wasTracking {
		t.events.Broadcast(stream.Event{
			Type:     stream.EventTracking,
			State:    st.State.String(),
			Tracking: false,
		})
	}
}

// Status returns a snapshot of the session.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked()
}

func (t *Tracker) onTrackedSample(gen uint64, pos geo.Coordinate) {
	t.mu.Lock()
	if !t.tracking || t.gen != gen {
		t.mu.Unlock()
		return
	}
	st := t.applySampleLocked(pos)
	t.mu.Unlock()

	t.publishSample(st)
}

func (t *Tracker) applySampleLocked(pos geo.Coordinate) Status {
	res, _ := t.eng.Apply(engine.Sample{Position: pos})

	p := pos
	t.pos = &p
	if res.HasDistance {
		t.lastDistance = res.DistanceKm
		t.hasDistance = true
	}

	st := t.statusLocked()
	for _, ef := range res.Effects {
		st.AlertFired = true
		switch ef := ef.(type) {
		case engine.Vibrate:
			st.AlertPattern = ef.Pattern
			t.sink.Vibrate(ef.Pattern)
		case engine.Notify:
			st.AlertMessage = ef.Message
			t.sink.Notify(ef.Message)
		}
	}
	return st
}

func (t *Tracker) publishSample(st Status) {
	if !st.HasDistance {
		return
	}

	d := st.DistanceKm
	ev := stream.Event{
		Type:       stream.EventDistance,
		State:      st.State.String(),
		Position:   st.Position,
		DistanceKm: &d,
		Tracking:   st.Tracking,
	}
	if st.AlertFired {
		ev.Type = stream.EventAlert
		ev.Message = st.AlertMessage
		ev.Pattern = st.AlertPattern
	}
	t.events.Broadcast(ev)
}

func (t *Tracker) statusLocked() Status {
	st := Status{
		State:       t.eng.State(),
		Tracking:    t.tracking,
		DistanceKm:  t.lastDistance,
		HasDistance: t.hasDistance,
	}
	if dest, ok := t.eng.Destination(); ok {
		st.Destination = &dest
	}
	if t.pos != nil {
		p := *t.pos
		st.Position = &p
	}
	return st
}
