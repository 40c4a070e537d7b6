package smpp

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrSessionClosed is returned by MockSession operations after Close.
var ErrSessionClosed = errors.New("smpp: session closed")

// MockSession is an in-memory Session used in tests and in deployments that
// run without a live gateway. It records every submitted segment and can
// inject bind/submit failures. Safe for concurrent use.
type MockSession struct {
	mu        sync.Mutex
	bound     bool
	closed    bool
	nextID    int64
	submitted []Segment
	handler   ReceiptHandler

	// BindErr and SubmitErr, when set, are returned by the corresponding
	// operations.
	BindErr   error
	SubmitErr error
}

// NewMockSession returns an unbound MockSession.
func NewMockSession() *MockSession {
	return &MockSession{nextID: 1000}
}

// Bind marks the session bound.
func (m *MockSession) Bind(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrSessionClosed
	}
	if m.BindErr != nil {
		return m.BindErr
	}
	m.bound = true
	return nil
}

// IsBound reports the current bind state.
func (m *MockSession) IsBound() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bound && !m.closed
}

// Unbind drops the session into the unbound state, simulating a disconnect.
func (m *MockSession) Unbind() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bound = false
}

// Submit records the segment and returns a fresh numeric message id.
func (m *MockSession) Submit(_ context.Context, seg Segment) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrSessionClosed
	}
	if m.SubmitErr != nil {
		return "", m.SubmitErr
	}
	if !m.bound {
		return "", errors.New("smpp: session not bound")
	}
	id := m.nextID
	m.nextID++
	m.submitted = append(m.submitted, cloneSegment(seg))
	return fmt.Sprintf("%d", id), nil
}

// OnReceipt registers the receipt handler.
func (m *MockSession) OnReceipt(handler ReceiptHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// DeliverReceipt invokes the registered handler with the receipt, mimicking
// an inbound delivery-confirmation PDU.
func (m *MockSession) DeliverReceipt(r Receipt) {
	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()
	if handler != nil {
		handler(r)
	}
}

// Submitted returns a copy of all segments submitted so far.
func (m *MockSession) Submitted() []Segment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Segment, len(m.submitted))
	for i, seg := range m.submitted {
		out[i] = cloneSegment(seg)
	}
	return out
}

// Close marks the session closed.
func (m *MockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.bound = false
	return nil
}

func cloneSegment(seg Segment) Segment {
	clone := seg
	if len(seg.Payload) > 0 {
		clone.Payload = append([]byte(nil), seg.Payload...)
	}
	if seg.Sar != nil {
		sar := *seg.Sar
		clone.Sar = &sar
	}
	return clone
}
