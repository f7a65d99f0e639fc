package rak811

import (
	"context"
	"io"
	"sync"
)

// TestTransport is a test helper that simulates a blocking transport using
// channels. The Loop's scanner goroutine continuously reads from the
// transport, so reads must block until data is available, like a real
// serial port would.
type TestTransport struct {
	mu       sync.Mutex
	readChan chan []byte
	writes   chan string
	closed   bool
}

// NewTestTransport creates a new test transport. Exported for use in
// tests.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan: make(chan []byte, 10),
		writes:   make(chan string, 32),
	}
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	select {
	case t.writes <- string(p):
	default:
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	data, ok := <-t.readChan
	if !ok {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

// SendData queues data to be read by the transport. This simulates the
// module talking on the line.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

// NextWrite returns the next line written to the transport, blocking until
// one is available.
func (t *TestTransport) NextWrite() string {
	return <-t.writes
}

// Dial implements Dialer, returning the transport itself. This lets tests
// hand a TestTransport straight to the config builder.
func (t *TestTransport) Dial(_ context.Context) (Transport, error) {
	return t, nil
}
