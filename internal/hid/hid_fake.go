package hid

import (
	"sync"
	"time"
)

// FakeDevice is a scripted in-memory Device for tests. A Handler
// function plays the role of the firmware: it receives every written
// report and returns the input reports the device should answer with.
// Reports can also be queued directly with Enqueue to simulate
// unsolicited traffic.
type FakeDevice struct {
	Handler func(report []byte) [][]byte

	mu     sync.Mutex
	queue  [][]byte
	writes [][]byte
	closed bool
}

func (f *FakeDevice) Enqueue(reports ...[]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range reports {
		buf := make([]byte, len(r))
		copy(buf, r)
		f.queue = append(f.queue, buf)
	}
}

// Writes returns every report written so far, in order.
func (f *FakeDevice) Writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

func (f *FakeDevice) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)

	f.mu.Lock()
	f.writes = append(f.writes, buf)
	handler := f.Handler
	f.mu.Unlock()

	if handler != nil {
		f.Enqueue(handler(buf)...)
	}
	return len(p), nil
}

// ReadTimeout pops the next queued report. An empty queue behaves like
// hidapi's timed read: it waits out the timeout and returns 0 bytes
// with no error.
func (f *FakeDevice) ReadTimeout(p []byte, timeout time.Duration) (int, error) {
	f.mu.Lock()
	if len(f.queue) > 0 {
		r := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return copy(p, r), nil
	}
	f.mu.Unlock()

	time.Sleep(timeout)
	return 0, nil
}

func (f *FakeDevice) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (f *FakeDevice) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
