// Package events is the fan-out bus between the acquisition pipeline and
// its consumers (the HTTP event stream, the status page, tests). Multiple
// clients subscribe to a single stream of typed events; publishers never
// block on a slow subscriber.
package events

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"
)

// Kind names an event category. Kinds are stable strings because they are
// serialized onto the GUI event stream.
type Kind string

const (
	// KindExposureUpdate reports a shutter/gain change applied to the camera.
	KindExposureUpdate Kind = "exposure.update"
	// KindBrightness reports the smoothed scene brightness sample.
	KindBrightness Kind = "brightness.update"
	// KindTrackLock reports the tracker acquiring a ball.
	KindTrackLock Kind = "track.lock"
	// KindTrackUnlock reports the tracker losing the ball.
	KindTrackUnlock Kind = "track.unlock"
	// KindRadarSpeed reports a single validated radar speed reading.
	KindRadarSpeed Kind = "radar.speed"
	// KindSwingTrigger reports a swing trigger firing.
	KindSwingTrigger Kind = "swing.trigger"
	// KindCaptureComplete reports a finished burst capture with trajectory.
	KindCaptureComplete Kind = "capture.complete"
	// KindCaptureMissed reports a trigger that fired without a tracked ball.
	KindCaptureMissed Kind = "capture.missed"
	// KindComponentStatus reports component health transitions.
	KindComponentStatus Kind = "component.status"
)

// Event is a single bus message. Payload holds the domain struct for the
// kind and must be JSON-marshalable.
type Event struct {
	Kind    Kind        `json:"kind"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload,omitempty"`
}

// ComponentStatus is the payload for KindComponentStatus.
type ComponentStatus struct {
	Component string `json:"component"`
	Level     string `json:"level"` // "ok", "degraded", "fatal"
	Detail    string `json:"detail,omitempty"`
}

// Bus fans events out to subscribers. Publish never blocks: subscribers
// that fall behind their buffer lose events, and the drop count is exposed
// for the status page.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string]chan Event
	buffer      int
	closed      bool
	dropped     atomic.Uint64
}

// NewBus creates a Bus whose subscriber channels buffer up to buffer events.
func NewBus(buffer int) *Bus {
	if buffer < 1 {
		buffer = 1
	}
	return &Bus{
		subscribers: make(map[string]chan Event),
		buffer:      buffer,
	}
}

// randomID generates a random subscriber ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a new channel for receiving events. The returned ID
// identifies the subscription for Unsubscribe.
func (b *Bus) Subscribe() (string, <-chan Event) {
	id := randomID()
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

// Publish delivers the event to every subscriber whose buffer has room.
// Full subscribers are skipped so publishers in the acquisition loops are
// never blocked by a slow reader.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Emit is shorthand for Publish with the current time.
func (b *Bus) Emit(kind Kind, payload interface{}) {
	b.Publish(Event{Kind: kind, Time: time.Now(), Payload: payload})
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Dropped returns the total number of events skipped because a subscriber
// buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes all subscriber channels. Further Publish calls are no-ops
// and further Subscribe calls return closed channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
