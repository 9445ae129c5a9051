package room

import (
	"context"
	"sync"
)

// MockHandle is an in-memory room used by tests and mock connection mode.
type MockHandle struct {
	mu      sync.Mutex
	frames  chan Frame
	written []Frame
	closed  bool
}

func NewMockHandle() *MockHandle {
	return &MockHandle{frames: make(chan Frame, 64)}
}

// PushAudio injects an inbound frame as if a participant had spoken.
func (h *MockHandle) PushAudio(f Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.frames <- f
}

func (h *MockHandle) AudioIn() <-chan Frame { return h.frames }

func (h *MockHandle) WriteAudio(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.written = append(h.written, f)
	return nil
}

// Written returns a copy of all outbound frames emitted so far.
func (h *MockHandle) Written() []Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Frame, len(h.written))
	copy(out, h.written)
	return out
}

func (h *MockHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	close(h.frames)
	return nil
}

// ScriptedDialer fails a configured number of joins before succeeding.
type ScriptedDialer struct {
	mu        sync.Mutex
	failures  int
	attempts  int
	handle    *MockHandle
	failError error
}

func NewScriptedDialer(failures int, failError error) *ScriptedDialer {
	return &ScriptedDialer{failures: failures, failError: failError}
}

func (d *ScriptedDialer) Connect(ctx context.Context, roomName, _ string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.attempts <= d.failures {
		return nil, &ConnectError{Room: roomName, Attempts: d.attempts, Cause: d.failError}
	}
	if d.handle == nil {
		d.handle = NewMockHandle()
	}
	return d.handle, nil
}

// Attempts reports how many joins were tried.
func (d *ScriptedDialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

// Handle exposes the mock room once a join has succeeded.
func (d *ScriptedDialer) Handle() *MockHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == nil {
		d.handle = NewMockHandle()
	}
	return d.handle
}
