// Package location defines the location provider contract the tracker
// depends on, plus an MQTT-backed implementation fed by device GPS
// samples published to a broker topic.
package location

import (
	"context"
	"errors"
	"time"

	"github.com/mr1hm/go-arrival-alert/internal/geo"
)

var (
	// ErrPermissionDenied means the device refused access to location.
	// It is terminal for the session; no distance is ever computed.
	ErrPermissionDenied = errors.New("location: permission denied")
	// ErrUnavailable means no fix could be acquired in time. It does not
	// alter alert state; the caller may retry.
	ErrUnavailable = errors.New("location: no fix available")
)

const (
	// DefaultMinInterval and DefaultMinDistanceM are the subscription
	// filter defaults: a sample is delivered when this much time has
	// passed or the device moved this far since the last delivery.
	DefaultMinInterval  = 10 * time.Second
	DefaultMinDistanceM = 50
)

// SubscribeOptions filters a continuous sample stream.
type SubscribeOptions struct {
	MinInterval  time.Duration
	MinDistanceM float64
}

func (o SubscribeOptions) withDefaults() SubscribeOptions {
	if o.MinInterval <= 0 {
		o.MinInterval = DefaultMinInterval
	}
	if o.MinDistanceM <= 0 {
		o.MinDistanceM = DefaultMinDistanceM
	}
	return o
}

// Subscription is a handle on a continuous sample stream. Cancel is
// synchronous: once it returns, the callback is never invoked again.
type Subscription interface {
	Cancel()
}

// Provider supplies position fixes, either one-shot or as a stream.
type Provider interface {
	// Current returns the latest known position, waiting for a fresh fix
	// up to the context deadline. Fails with ErrPermissionDenied or
	// ErrUnavailable.
	Current(ctx context.Context) (geo.Coordinate, error)
	// Subscribe delivers filtered samples to onSample until the returned
	// subscription is cancelled.
	Subscribe(opts SubscribeOptions, onSample func(geo.Coordinate)) (Subscription, error)
}
