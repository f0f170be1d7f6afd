package monitor

import "sync"

var _ Sink = &Slot{}

// Slot holds the latest snapshot. The worker writes it through OnMeasurement,
// the render layer copies it out with Read.
type Slot struct {
	mx   sync.Mutex
	snap Snapshot
}

// NewSlot returns a slot holding the disconnected snapshot for v.
func NewSlot(v Variant) *Slot {
	return &Slot{snap: Disconnected(v)}
}

func (s *Slot) Publish(snap Snapshot) {
	s.mx.Lock()
	s.snap = snap
	s.mx.Unlock()
}

func (s *Slot) Read() Snapshot {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.snap
}

func (s *Slot) OnMeasurement(snap Snapshot) {
	s.Publish(snap)
}
