package lifetime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lifetime timer errors.
var (
	ErrTimerNotFound   = errors.New("timer not found")
	ErrInvalidDuration = errors.New("invalid duration")
)

// Timer represents an active lifetime timer.
type Timer struct {
	// ID is the resource the timer belongs to.
	ID uuid.UUID

	// StartTime is when the timer was last (re)started.
	StartTime time.Time

	// Duration is the lifetime granted at StartTime.
	Duration time.Duration

	timer *time.Timer
}

// ExpiresAt returns when the timer will expire.
func (t *Timer) ExpiresAt() time.Time {
	return t.StartTime.Add(t.Duration)
}

// RemainingTime returns time until expiry.
func (t *Timer) RemainingTime() time.Duration {
	remaining := t.Duration - time.Since(t.StartTime)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsExpired returns true if the timer has expired.
func (t *Timer) IsExpired() bool {
	return time.Since(t.StartTime) >= t.Duration
}

// Manager manages lifetime timers keyed by UUID.
type Manager struct {
	mu sync.RWMutex

	timers map[uuid.UUID]*Timer

	onExpiry func(id uuid.UUID)
}

// NewManager creates a new lifetime timer manager.
func NewManager() *Manager {
	return &Manager{
		timers: make(map[uuid.UUID]*Timer),
	}
}

// Set creates or replaces the timer for id.
func (m *Manager) Set(id uuid.UUID, d time.Duration) error {
	if d <= 0 {
		return ErrInvalidDuration
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.timers[id]; ok {
		existing.timer.Stop()
	}

	t := &Timer{ID: id, StartTime: time.Now(), Duration: d}
	t.timer = time.AfterFunc(d, func() {
		m.expire(t)
	})
	m.timers[id] = t
	return nil
}

// Touch restarts the timer for id with its original duration.
func (m *Manager) Touch(id uuid.UUID) error {
	m.mu.RLock()
	t, ok := m.timers[id]
	m.mu.RUnlock()
	if !ok {
		return ErrTimerNotFound
	}
	return m.Set(id, t.Duration)
}

// Cancel stops the timer for id without triggering the expiry callback.
func (m *Manager) Cancel(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.timers[id]
	if !ok {
		return ErrTimerNotFound
	}
	t.timer.Stop()
	delete(m.timers, id)
	return nil
}

// CancelAll stops every timer (e.g. on shutdown).
func (m *Manager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, t := range m.timers {
		t.timer.Stop()
		delete(m.timers, id)
	}
}

// Remaining returns the time left for id.
func (m *Manager) Remaining(id uuid.UUID) (time.Duration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.timers[id]
	if !ok {
		return 0, false
	}
	return t.RemainingTime(), true
}

// Get returns a copy of the timer for id, or nil.
func (m *Manager) Get(id uuid.UUID) *Timer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.timers[id]
	if !ok {
		return nil
	}
	return &Timer{ID: t.ID, StartTime: t.StartTime, Duration: t.Duration}
}

// Count returns the number of active timers.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.timers)
}

// OnExpiry sets the callback for timer expiry.
func (m *Manager) OnExpiry(fn func(id uuid.UUID)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpiry = fn
}

// expire removes t if it is still the current timer for its id.
func (m *Manager) expire(t *Timer) {
	m.mu.Lock()

	current, ok := m.timers[t.ID]
	if !ok || current != t {
		m.mu.Unlock()
		return
	}
	delete(m.timers, t.ID)
	callback := m.onExpiry

	m.mu.Unlock()

	// Call callback outside lock
	if callback != nil {
		callback(t.ID)
	}
}
