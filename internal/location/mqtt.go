package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mr1hm/go-arrival-alert/internal/geo"
)

// maxFixAge bounds how stale a cached fix may be before Current waits
// for a fresh sample instead.
const maxFixAge = 30 * time.Second

type sampleMessage struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}

func validateSampleMessage(msg *sampleMessage) error {
	if msg.Latitude < -90 || msg.Latitude > 90 {
		return fmt.Errorf("latitude: must be between -90 and 90")
	}
	if msg.Longitude < -180 || msg.Longitude > 180 {
		return fmt.Errorf("longitude: must be between -180 and 180")
	}
	if msg.Timestamp <= 0 {
		return fmt.Errorf("timestamp: must be positive")
	}
	return nil
}

// MQTTProvider implements Provider on top of GPS samples published as
// JSON to a single broker topic. It keeps the latest fix for one-shot
// reads and fans filtered samples out to subscriptions.
type MQTTProvider struct {
	client mqtt.Client
	topic  string

	mu         sync.Mutex
	last       geo.Coordinate
	lastAt     time.Time
	subs       map[uint64]*mqttSubscription
	waiters    map[uint64]chan geo.Coordinate
	nextSubID  uint64
	nextWaitID uint64
}

type mqttSubscription struct {
	provider *MQTTProvider
	id       uint64
	opts     SubscribeOptions
	onSample func(geo.Coordinate)

	delivered   bool
	lastSent    time.Time
	lastSentPos geo.Coordinate
}

// NewMQTTProvider subscribes to topic on an already-connected client.
func NewMQTTProvider(client mqtt.Client, topic string) (*MQTTProvider, error) {
	p := &MQTTProvider{
		client:  client,
		topic:   topic,
		subs:    make(map[uint64]*mqttSubscription),
		waiters: make(map[uint64]chan geo.Coordinate),
	}

	token := client.Subscribe(topic, 1, p.handleMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	return p, nil
}

func (p *MQTTProvider) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var raw sampleMessage
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		slog.Warn("invalid location payload", "topic", msg.Topic(), "error", err)
		return
	}
	if err := validateSampleMessage(&raw); err != nil {
		slog.Warn("rejected location sample", "topic", msg.Topic(), "error", err)
		return
	}

	p.dispatch(geo.Coordinate{Lat: raw.Latitude, Lon: raw.Longitude})
}

// dispatch runs under the provider lock, including the subscription
// callbacks. That makes Cancel a hard barrier: once it returns, no
// callback for that subscription can still be running or start later.
// Callbacks must therefore never call Cancel themselves.
func (p *MQTTProvider) dispatch(c geo.Coordinate) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	p.last = c
	p.lastAt = now

	for id, ch := range p.waiters {
		ch <- c
		delete(p.waiters, id)
	}

	for _, sub := range p.subs {
		if sub.wants(c, now) {
			sub.delivered = true
			sub.lastSent = now
			sub.lastSentPos = c
			sub.onSample(c)
		}
	}
}

// wants reports whether the sample passes the subscription's interval
// and distance filter: deliver when enough time passed or the device
// moved far enough. The first sample always passes.
func (s *mqttSubscription) wants(c geo.Coordinate, now time.Time) bool {
	if !s.delivered {
		return true
	}
	if now.Sub(s.lastSent) >= s.opts.MinInterval {
		return true
	}
	return geo.DistanceKm(s.lastSentPos, c)*1000 >= s.opts.MinDistanceM
}

func (s *mqttSubscription) Cancel() {
	s.provider.mu.Lock()
	delete(s.provider.subs, s.id)
	s.provider.mu.Unlock()
}

func (p *MQTTProvider) Subscribe(opts SubscribeOptions, onSample func(geo.Coordinate)) (Subscription, error) {
	if onSample == nil {
		return nil, errors.New("location: nil sample callback")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextSubID++
	sub := &mqttSubscription{
		provider: p,
		id:       p.nextSubID,
		opts:     opts.withDefaults(),
		onSample: onSample,
	}
	p.subs[sub.id] = sub
	return sub, nil
}

func (p *MQTTProvider) Current(ctx context.Context) (geo.Coordinate, error) {
	p.mu.Lock()
	if !p.lastAt.IsZero() && time.Since(p.lastAt) <= maxFixAge {
		c := p.last
		p.mu.Unlock()
		return c, nil
	}

	// No fresh fix cached; wait for the next published sample.
	ch := make(chan geo.Coordinate, 1)
	p.nextWaitID++
	id := p.nextWaitID
	p.waiters[id] = ch
	p.mu.Unlock()

	select {
	case c := <-ch:
		return c, nil
	case <-ctx.Done():
		p.mu.Lock()
		delete(p.waiters, id)
		p.mu.Unlock()
		return geo.Coordinate{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	}
}

// Close releases the broker subscription. Outstanding Current calls
// fail on their own deadlines.
func (p *MQTTProvider) Close() error {
	token := p.client.Unsubscribe(p.topic)
	token.Wait()
	return token.Error()
}
