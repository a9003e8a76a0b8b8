package verification

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sas-verify/core/internal/logger"
)

// TimeoutPolicy optionally cancels transactions that take too long to
// reach ShortCodeReady. It is off by default: a caller embedding this
// core in a request/response transport (rather than a long-lived
// session) may not want one at all.
type TimeoutPolicy struct {
	// MaxAge is how long after registration (Put) a transaction may stay
	// in a state before ShortCodeReady before the manager cancels it with
	// CancelTimeout; from ShortCodeReady onward it is never timed out.
	// Zero disables the policy.
	MaxAge time.Duration
	// Interval is how often the manager sweeps for aged-out transactions.
	Interval time.Duration
}

// Manager owns the set of in-flight transactions, keyed by transaction
// id, the way session.Manager owns crypto sessions: a map guarded by
// an RWMutex plus a background cleanup ticker. GetOrCreate additionally
// collapses concurrent creation for the same id through a singleflight
// group, since two inbound Start deliveries for the same id racing
// each other must not produce two live transactions.
type Manager struct {
	mu    sync.RWMutex
	txs   map[string]*Transaction
	group singleflight.Group

	timeout       TimeoutPolicy
	startedAt     map[string]time.Time
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	closed        bool

	log logger.Logger
}

// NewManager creates a Manager with no timeout policy.
func NewManager(log logger.Logger) *Manager {
	return NewManagerWithTimeout(TimeoutPolicy{}, log)
}

// NewManagerWithTimeout creates a Manager that cancels transactions
// still short of ShortCodeReady policy.MaxAge after they were
// registered. A zero MaxAge disables the sweep.
func NewManagerWithTimeout(policy TimeoutPolicy, log logger.Logger) *Manager {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	m := &Manager{
		txs:         make(map[string]*Transaction),
		startedAt:   make(map[string]time.Time),
		timeout:     policy,
		stopCleanup: make(chan struct{}),
		log:         log,
	}
	if policy.MaxAge > 0 {
		interval := policy.Interval
		if interval <= 0 {
			interval = policy.MaxAge / 4
			if interval <= 0 {
				interval = time.Second
			}
		}
		m.cleanupTicker = time.NewTicker(interval)
		go m.runCleanup()
	}
	return m
}

// Get returns the transaction with the given id, if present.
func (m *Manager) Get(id string) (*Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.txs[id]
	return t, ok
}

// Put registers an already-constructed transaction. Returns
// ErrTransactionExists if a non-terminal transaction with the same id
// is already tracked.
func (m *Manager) Put(t *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	if existing, ok := m.txs[t.id]; ok && !existing.State().Terminal() {
		return ErrTransactionExists
	}
	m.txs[t.id] = t
	m.startedAt[t.id] = time.Now()
	return nil
}

// GetOrCreate returns the existing transaction for id if one is
// tracked, otherwise calls create exactly once even under concurrent
// callers racing on the same id, and tracks the result.
func (m *Manager) GetOrCreate(id string, create func() (*Transaction, error)) (*Transaction, error) {
	if t, ok := m.Get(id); ok {
		return t, nil
	}
	v, err, _ := m.group.Do(id, func() (interface{}, error) {
		if t, ok := m.Get(id); ok {
			return t, nil
		}
		t, err := create()
		if err != nil {
			return nil, err
		}
		if err := m.Put(t); err != nil {
			return nil, err
		}
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Transaction), nil
}

// Remove drops a transaction from tracking without cancelling it; use
// after a transaction reaches a terminal state.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.txs, id)
	delete(m.startedAt, id)
}

// Count returns the number of tracked transactions, terminal or not.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txs)
}

// Close stops the cleanup sweep and cancels every non-terminal
// transaction still tracked.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	txs := make([]*Transaction, 0, len(m.txs))
	for _, t := range m.txs {
		txs = append(txs, t)
	}
	m.txs = make(map[string]*Transaction)
	m.startedAt = make(map[string]time.Time)
	m.mu.Unlock()

	if m.cleanupTicker != nil {
		close(m.stopCleanup)
		m.cleanupTicker.Stop()
	}

	ctx := context.Background()
	for _, t := range txs {
		if !t.State().Terminal() {
			_ = t.Cancel(ctx, CancelUser)
		}
	}
	return nil
}

func (m *Manager) runCleanup() {
	for {
		select {
		case <-m.cleanupTicker.C:
			m.sweepTimedOut()
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *Manager) sweepTimedOut() {
	now := time.Now()
	m.mu.RLock()
	var aged []*Transaction
	for id, t := range m.txs {
		state := t.State()
		if state.Terminal() || state >= StateShortCodeReady {
			continue
		}
		if now.Sub(m.startedAt[id]) >= m.timeout.MaxAge {
			aged = append(aged, t)
		}
	}
	m.mu.RUnlock()

	ctx := context.Background()
	for _, t := range aged {
		if err := t.Cancel(ctx, CancelTimeout); err != nil {
			m.log.Warn("timeout cancel failed", logger.String("transaction_id", t.ID()), logger.Error(err))
		}
	}
}
