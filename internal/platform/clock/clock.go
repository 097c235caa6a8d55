package clock

import (
	"sync"
	"time"
)

type Clock interface{ Now() time.Time }

// Real はシステム時刻（UTC）
type Real struct{}

func (Real) Now() time.Time { return time.Now().UTC() }

// Manual is a settable clock for tests and fixture replays.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(t time.Time) *Manual { return &Manual{now: t.UTC()} }

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t.UTC()
	m.mu.Unlock()
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Stamp normalizes t for storage: UTC, microsecond precision (DATETIME(6)).
func Stamp(t time.Time) time.Time { return t.UTC().Truncate(time.Microsecond) }
