package measure

import "sync"

// Log is the ordered sequence of captured points. Appends and deletions are
// serialised; readers get copies.
type Log struct {
	mu     sync.RWMutex
	points []Point
}

// NewLog returns a log seeded with points in capture order, as restored from
// storage.
func NewLog(points ...Point) *Log {
	l := &Log{}
	l.points = append(l.points, points...)
	return l
}

// Append adds p to the end of the log.
func (l *Log) Append(p Point) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.points = append(l.points, p)
}

// Last returns the most recently captured point.
func (l *Log) Last() (Point, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.points) == 0 {
		return Point{}, false
	}
	return l.points[len(l.points)-1], true
}

// Get returns the point with the given id.
func (l *Log) Get(id string) (Point, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, p := range l.points {
		if p.ID == id {
			return p, true
		}
	}
	return Point{}, false
}

// Delete removes the point with the given id, preserving the order of the
// remaining points. It reports whether a point was removed.
func (l *Log) Delete(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, p := range l.points {
		if p.ID == id {
			l.points = append(l.points[:i], l.points[i+1:]...)
			return true
		}
	}
	return false
}

// Points returns a copy of the log in capture order.
func (l *Log) Points() []Point {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Point, len(l.points))
	copy(out, l.points)
	return out
}

// Len returns the number of points in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.points)
}
