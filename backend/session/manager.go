package session

import (
	"log"
	"sync"
	"time"

	"github.com/andi/stepline/backend/workflow"
)

// Manager owns the live workflow sessions, one per order id. A session is
// created on first use and swept once it has been idle long enough,
// provided no draft is open.
type Manager struct {
	idleTimeout   time.Duration
	sweepInterval time.Duration

	mu       sync.Mutex
	sessions map[string]*workflow.Session
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  bool
}

// New creates a session manager.
func New(idleTimeout, sweepInterval time.Duration) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	return &Manager{
		idleTimeout:   idleTimeout,
		sweepInterval: sweepInterval,
		sessions:      make(map[string]*workflow.Session),
		stopChan:      make(chan struct{}),
	}
}

// Start starts the idle sweep loop.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop stops the sweep loop and waits for it to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()

	close(m.stopChan)
	m.wg.Wait()
}

// Get returns the session for an order, creating it if needed.
func (m *Manager) Get(orderID string) *workflow.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[orderID]
	if !ok {
		s = workflow.NewSession(orderID)
		m.sessions[orderID] = s
	}
	return s
}

// Peek returns the session for an order without creating one.
func (m *Manager) Peek(orderID string) (*workflow.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[orderID]
	return s, ok
}

// Drop removes an order's session.
func (m *Manager) Drop(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, orderID)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep drops sessions that have been idle past the timeout. Sessions with
// an open draft are never swept; discarding a user's edits is not ours to
// decide.
func (m *Manager) sweep() {
	cutoff := time.Now().Add(-m.idleTimeout)

	m.mu.Lock()
	defer m.mu.Unlock()

	for orderID, s := range m.sessions {
		if s.Editing() {
			continue
		}
		if s.IdleSince().Before(cutoff) {
			delete(m.sessions, orderID)
			log.Printf("Dropped idle session for order %s", orderID)
		}
	}
}
