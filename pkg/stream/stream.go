// Package stream is the resilient subscription manager described in
// spec.md §4.3: one long-lived stream per program, ping/pong keepalive,
// a connecting/connected/disconnected/error state machine, exponential
// backoff reconnects, and reconnect rate limiting.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pumpstream/ingest/pkg/config"
)

// State is one point in the subscription's connection state machine.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
	StateStopped      State = "stopped"
)

// Update is one inbound message off the stream: a transaction, an account
// change, or a ping requiring a pong reply.
type Update struct {
	Kind          UpdateKind
	Transaction   *TransactionUpdate
	Account       *AccountUpdate
	PingID        int64
}

// UpdateKind tags which field of Update is populated.
type UpdateKind string

const (
	UpdateKindTransaction UpdateKind = "transaction"
	UpdateKindAccount     UpdateKind = "account"
	UpdateKindPing        UpdateKind = "ping"
)

// TransactionUpdate carries everything the parser needs out of a raw
// transaction notification.
type TransactionUpdate struct {
	Signature       string
	Slot            uint64
	BlockTime       time.Time
	Accounts        []string
	Logs            []string
	InstructionData []byte
	ProgramID       string
}

// AccountUpdate carries a raw account-state notification.
type AccountUpdate struct {
	Owner    string
	Pubkey   string
	Data     []byte
	Lamports uint64
	Slot     uint64
}

// Subscriber is the transport-level contract a production gRPC client and
// a test fake both satisfy. Connect blocks until the stream ends or ctx is
// cancelled, delivering updates to handle and replying to pings itself is
// NOT done here — Subscriber only delivers; the Manager writes pongs back
// via Pong.
type Subscriber interface {
	// Connect opens the stream for programID and calls handle for every
	// inbound Update until the stream ends, errors, or ctx is cancelled.
	Connect(ctx context.Context, programID string, commitment string, handle func(Update)) error
	// Pong writes a pong reply carrying the same id as an observed ping.
	Pong(ctx context.Context, id int64) error
	// Close releases the underlying transport connection.
	Close() error
}

// Manager runs one resilient subscription per program.
type Manager struct {
	sub Subscriber
	cfg config.StreamConfig
	log zerolog.Logger

	mu    sync.RWMutex
	state State

	backoffAttempt int
	reconnects     []time.Time // timestamps within the last minute, for rate limiting

	lastSlot    uint64
	lastMsgTime time.Time
}

// NewManager builds a Manager around a Subscriber implementation.
func NewManager(sub Subscriber, cfg config.StreamConfig, log zerolog.Logger) *Manager {
	return &Manager{sub: sub, cfg: cfg, log: log, state: StateDisconnected}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// LastSlot returns the most recently observed slot.
func (m *Manager) LastSlot() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSlot
}

// Run drives reconnect/backoff until ctx is cancelled, at which point the
// state transitions directly to the terminal Stopped state.
func (m *Manager) Run(ctx context.Context, programID string, handle func(Update)) {
	defer m.setState(StateStopped)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !m.allowReconnect() {
			m.waitOut(ctx, time.Second)
			continue
		}

		m.setState(StateConnecting)
		err := m.sub.Connect(ctx, programID, m.cfg.Commitment, func(u Update) {
			m.onUpdate(ctx, u, handle)
		})

		if ctx.Err() != nil {
			return
		}

		if err != nil {
			m.setState(StateError)
			m.log.Warn().Err(err).Str("program", programID).Msg("stream connection failed")
		} else {
			m.setState(StateDisconnected)
		}

		delay := m.nextBackoff()
		m.waitOut(ctx, delay)
	}
}

func (m *Manager) onUpdate(ctx context.Context, u Update, handle func(Update)) {
	m.mu.Lock()
	m.lastMsgTime = time.Now()
	if m.state != StateConnected {
		m.state = StateConnected
		m.backoffAttempt = 0
	}
	if u.Kind == UpdateKindTransaction && u.Transaction != nil && u.Transaction.Slot >= m.lastSlot {
		m.lastSlot = u.Transaction.Slot
	}
	m.mu.Unlock()

	if u.Kind == UpdateKindPing {
		if err := m.sub.Pong(ctx, u.PingID); err != nil {
			m.log.Warn().Err(err).Int64("ping_id", u.PingID).Msg("failed to write pong")
		}
		return
	}

	handle(u)
}

// nextBackoff returns the next reconnect delay, doubling from BaseDelay up
// to MaxDelay. After MaxConsecutiveFailures attempts the attempt counter
// goes back to zero, so the next delay is BaseDelay again; no slot position
// is reset, and the next subscription carries no starting slot.
func (m *Manager) nextBackoff() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	base := m.cfg.ReconnectBaseDelay
	if base <= 0 {
		base = time.Second
	}
	max := m.cfg.ReconnectMaxDelay
	if max <= 0 {
		max = 60 * time.Second
	}

	delay := base
	for i := 0; i < m.backoffAttempt; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	m.backoffAttempt++

	maxFailures := m.cfg.MaxConsecutiveFailures
	if maxFailures > 0 && m.backoffAttempt >= maxFailures {
		m.backoffAttempt = 0
	}

	return delay
}

// allowReconnect enforces the per-minute reconnect rate limit.
func (m *Manager) allowReconnect() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit := m.cfg.MaxReconnectsPerMinute
	if limit <= 0 {
		return true
	}

	cutoff := time.Now().Add(-time.Minute)
	kept := m.reconnects[:0]
	for _, t := range m.reconnects {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	m.reconnects = kept

	if len(m.reconnects) >= limit {
		return false
	}
	m.reconnects = append(m.reconnects, time.Now())
	return true
}

func (m *Manager) waitOut(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
