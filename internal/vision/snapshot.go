package vision

import (
	"sync/atomic"
	"time"
)

// TrackState is the tracker's lock state.
type TrackState string

const (
	// StateUnlocked means no ball is being followed.
	StateUnlocked TrackState = "unlocked"
	// StateLocked means a template and filter are maintaining a position.
	StateLocked TrackState = "locked"
)

// TrackSnapshot is an immutable copy of the tracker's state, published
// after every frame so the radar side can read lock quality without
// touching the tracker itself.
type TrackSnapshot struct {
	State      TrackState `json:"state"`
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	Radius     float64    `json:"radius"`
	Confidence float64    `json:"confidence"`
	Seq        uint64     `json:"seq"`
	Time       time.Time  `json:"time"`
}

// SnapshotHolder publishes TrackSnapshots across goroutines. Load always
// returns a complete snapshot: the camera loop stores a fresh pointer, so
// readers can never observe a half-written state.
type SnapshotHolder struct {
	p atomic.Pointer[TrackSnapshot]
}

// NewSnapshotHolder creates a holder primed with an unlocked snapshot.
func NewSnapshotHolder() *SnapshotHolder {
	h := &SnapshotHolder{}
	h.Store(TrackSnapshot{State: StateUnlocked})
	return h
}

// Store publishes a snapshot.
func (h *SnapshotHolder) Store(s TrackSnapshot) {
	h.p.Store(&s)
}

// Load returns the most recently published snapshot.
func (h *SnapshotHolder) Load() TrackSnapshot {
	return *h.p.Load()
}
