// clock отдаёт текущее время в UTC и позволяет подменить его в тестах.
package clock

import (
	"sync"
	"time"
)

// Clock - источник текущего времени.
type Clock interface {
	Now() time.Time
}

// System читает системные часы.
type System struct{}

// Now возвращает текущее время в UTC.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Fixed - часы с управляемым временем.
type Fixed struct {
	mu  sync.RWMutex
	now time.Time
}

// NewFixed создаёт часы, остановленные на t (приводится к UTC).
func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t.UTC()}
}

func (f *Fixed) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.now
}

// Set переставляет часы на t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.now = t.UTC()
	f.mu.Unlock()
}

// Advance сдвигает часы на d и возвращает новое значение.
func (f *Fixed) Advance(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)
	return f.now
}
