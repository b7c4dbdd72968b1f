package serialmux

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/geomeasure/internal/timeutil"
)

var errPortClosed = errors.New("serial port closed")

// LineFunc produces the next line a mock device emits at now.
type LineFunc func(now time.Time) string

// Replay cycles through lines forever.
func Replay(lines ...string) LineFunc {
	var mu sync.Mutex
	i := 0
	return func(time.Time) string {
		if len(lines) == 0 {
			return ""
		}
		mu.Lock()
		defer mu.Unlock()
		line := lines[i%len(lines)]
		i++
		return line
	}
}

// MockSerialPort emits generated lines on a ticker and records every command
// written to it.
type MockSerialPort struct {
	r    *io.PipeReader
	w    *io.PipeWriter
	done chan struct{}

	mu      sync.Mutex
	written bytes.Buffer
	closed  bool
}

func (m *MockSerialPort) Read(p []byte) (int, error) { return m.r.Read(p) }

func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errPortClosed
	}
	return m.written.Write(p)
}

func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	m.mu.Unlock()
	return m.r.Close()
}

// Written returns everything sent to the device so far.
func (m *MockSerialPort) Written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.String()
}

// NewMockSerialMux returns a mux whose device emits next(now) every interval
// of clock until the mux is closed.
func NewMockSerialMux(name string, next LineFunc, interval time.Duration, clock timeutil.Clock) *SerialMux[*MockSerialPort] {
	r, w := io.Pipe()
	port := &MockSerialPort{r: r, w: w, done: make(chan struct{})}

	go func() {
		defer w.Close()
		ticker := clock.NewTicker(interval)
		defer ticker.Stop()
		for {
			var now time.Time
			select {
			case <-port.done:
				return
			case now = <-ticker.C():
			}
			line := next(now)
			if line == "" {
				continue
			}
			if _, err := io.WriteString(w, line+"\r\n"); err != nil {
				return
			}
		}
	}()

	return NewSerialMux(name, port)
}

// TestableSerialPort is an in-memory SerialPorter with injectable failures.
type TestableSerialPort struct {
	mu       sync.Mutex
	readCond *sync.Cond

	ReadBuffer  *bytes.Buffer
	WriteBuffer *bytes.Buffer

	// ReadError and WriteError are returned once by the next call.
	ReadError  error
	WriteError error
	CloseError error

	// ShortWrite makes Write report one byte fewer than it was given.
	ShortWrite bool

	Closed bool
}

func NewTestableSerialPort() *TestableSerialPort {
	t := &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	t.readCond = sync.NewCond(&t.mu)
	return t
}

// Read blocks until data is added or the port is closed.
func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}
	for !t.Closed && t.ReadBuffer.Len() == 0 {
		t.readCond.Wait()
	}
	if t.ReadBuffer.Len() == 0 {
		return 0, io.EOF
	}
	return t.ReadBuffer.Read(p)
}

func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return 0, errPortClosed
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}
	n, err := t.WriteBuffer.Write(p)
	if t.ShortWrite && n > 0 {
		n--
	}
	return n, err
}

func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	t.readCond.Broadcast()
	return t.CloseError
}

// AddReadData queues data for subsequent reads.
func (t *TestableSerialPort) AddReadData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.WriteString(data)
	t.readCond.Broadcast()
}

// Written returns everything written to the port.
func (t *TestableSerialPort) Written() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.WriteBuffer.String()
}
