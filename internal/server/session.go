package server

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// SessionManager bounds the period in which protocol requests are accepted.
// Sessions are stateless: a request acquires a slot, runs, and releases it;
// nothing outlives the request. Stop rejects new requests and waits for the
// in-flight ones.
type SessionManager struct {
	logger *zap.Logger

	mu       sync.Mutex
	running  bool
	inflight sync.WaitGroup
	active   atomic.Int64
}

// NewSessionManager creates a stopped manager.
func NewSessionManager(logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{logger: logger}
}

// Start begins accepting requests.
func (m *SessionManager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.logger.Info("session manager started", zap.String("mode", "stateless"))
}

// Acquire reserves a slot for one request. ok is false when the manager is
// not running; otherwise release must be called exactly once.
func (m *SessionManager) Acquire() (release func(), ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil, false
	}
	m.inflight.Add(1)
	m.active.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			m.active.Add(-1)
			m.inflight.Done()
		})
	}, true
}

// Stop rejects new requests and waits until in-flight ones finish or ctx
// ends, whichever comes first.
func (m *SessionManager) Stop(ctx context.Context) error {
	m.mu.Lock()
	wasRunning := m.running
	m.running = false
	m.mu.Unlock()
	if !wasRunning {
		return nil
	}

	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("session manager stopped")
		return nil
	case <-ctx.Done():
		m.logger.Warn("session manager stopped with requests in flight", zap.Int64("active", m.active.Load()))
		return ctx.Err()
	}
}

// Running reports whether requests are being accepted.
func (m *SessionManager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Active returns the number of requests currently holding a slot.
func (m *SessionManager) Active() int64 { return m.active.Load() }
