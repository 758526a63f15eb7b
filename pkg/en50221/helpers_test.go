package en50221

import (
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// sentAPDU is one call recorded by recordingSender.
type sentAPDU struct {
	Session uint16
	Data    []byte
}

// recordingSender keeps a copy of everything sent through it.
type recordingSender struct {
	mu   sync.Mutex
	sent []sentAPDU
	err  error
}

func (s *recordingSender) SendData(sessionNumber uint16, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentAPDU{Session: sessionNumber, Data: append([]byte(nil), data...)})
	return nil
}

func (s *recordingSender) all() []sentAPDU {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentAPDU(nil), s.sent...)
}

var errLinkDown = errors.New("link down")

// observedLogger returns a logger whose entries can be inspected by the test.
func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func mustAI(t *testing.T, sender Sender, opts ...Option) *AI {
	t.Helper()
	ai, err := NewAI(sender, opts...)
	if err != nil {
		t.Fatalf("NewAI failed: %v", err)
	}
	return ai
}
