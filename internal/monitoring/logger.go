// Package monitoring holds the diagnostic logging hooks shared by the
// measurement core. Packages log through Logf so that tests and the command
// line tools can redirect or mute output without touching the standard logger.
package monitoring

import (
	"log"
	"sync"
	"time"
)

// LogFunc matches the signature of log.Printf.
type LogFunc func(format string, v ...interface{})

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger.
var Logf LogFunc = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f LogFunc) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Throttle suppresses repeats of the same message key within a window. The
// geoid lookup and the IMU feed run at sample rate, so their degraded-mode
// messages go through a Throttle rather than straight to Logf.
type Throttle struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	last   map[string]time.Time
	// suppressed counts dropped messages per key since the last emitted one
	suppressed map[string]int
}

// NewThrottle returns a Throttle that emits each key at most once per window.
func NewThrottle(window time.Duration) *Throttle {
	return &Throttle{
		window:     window,
		now:        time.Now,
		last:       make(map[string]time.Time),
		suppressed: make(map[string]int),
	}
}

// Logf emits the message through the package logger unless the key was
// emitted less than one window ago.
func (t *Throttle) Logf(key, format string, v ...interface{}) {
	t.mu.Lock()
	now := t.now()
	if last, ok := t.last[key]; ok && now.Sub(last) < t.window {
		t.suppressed[key]++
		t.mu.Unlock()
		return
	}
	dropped := t.suppressed[key]
	t.last[key] = now
	t.suppressed[key] = 0
	t.mu.Unlock()

	if dropped > 0 {
		Logf(format+" (%d similar suppressed)", append(v, dropped)...)
		return
	}
	Logf(format, v...)
}
