package gesture

import (
	"errors"
	"sync"
	"time"
)

// DefaultHoldThreshold is how long a press must last to open the detailed log
const DefaultHoldThreshold = 500 * time.Millisecond

// ErrDisabled is returned by Press while quitting mode is active
var ErrDisabled = errors.New("logging gesture disabled in recovery mode")

// State of the press/hold machine
type State int

const (
	Idle State = iota
	Pressing
	QuickLogged
	DetailedLogTriggered
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pressing:
		return "pressing"
	case QuickLogged:
		return "quick-logged"
	case DetailedLogTriggered:
		return "detailed-log"
	default:
		return "unknown"
	}
}

// Timer is the part of *time.Timer the machine needs
type Timer interface {
	Stop() bool
}

// AfterFunc arms a timer; time.AfterFunc satisfies it through NewMachine
type AfterFunc func(d time.Duration, f func()) Timer

// Handlers receive the machine's outcomes. Both are called without the
// machine's lock held.
type Handlers struct {
	QuickLog        func()
	OpenDetailedLog func()
}

// Machine classifies a press as a tap (quick log) or a hold (detailed log)
type Machine struct {
	mu         sync.Mutex
	state      State
	hold       time.Duration
	generation int
	timer      Timer

	quitting  func() bool
	handlers  Handlers
	afterFunc AfterFunc
}

// NewMachine creates a machine. quitting is consulted on every press and
// release; a nil quitting means never.
func NewMachine(hold time.Duration, quitting func() bool, handlers Handlers) *Machine {
	if hold <= 0 {
		hold = DefaultHoldThreshold
	}
	if quitting == nil {
		quitting = func() bool { return false }
	}
	return &Machine{
		hold:     hold,
		quitting: quitting,
		handlers: handlers,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
	}
}

// WithAfterFunc replaces the timer source, for tests
func (m *Machine) WithAfterFunc(af AfterFunc) *Machine {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.afterFunc = af
	return m
}

// State returns the current state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Press starts a press and arms the hold timer
func (m *Machine) Press() error {
	if m.quitting() {
		return ErrDisabled
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Idle {
		return nil
	}

	m.state = Pressing
	m.generation++
	gen := m.generation
	m.timer = m.afterFunc(m.hold, func() {
		m.expire(gen)
	})

	return nil
}

// Release ends a press. A release before the hold threshold logs a quick
// session unless quitting mode is active. It returns the state the press
// resolved to.
func (m *Machine) Release() State {
	quitting := m.quitting()

	m.mu.Lock()

	switch m.state {
	case Pressing:
		m.cancelTimer()
		if quitting {
			m.state = Idle
			m.mu.Unlock()
			return Idle
		}
		m.state = QuickLogged
		m.mu.Unlock()

		if m.handlers.QuickLog != nil {
			m.handlers.QuickLog()
		}

		m.mu.Lock()
		if m.state == QuickLogged {
			m.state = Idle
		}
		m.mu.Unlock()
		return QuickLogged

	case DetailedLogTriggered:
		m.state = Idle
		m.mu.Unlock()
		return DetailedLogTriggered

	default:
		m.mu.Unlock()
		return m.State()
	}
}

// expire fires when the hold threshold elapses
func (m *Machine) expire(gen int) {
	m.mu.Lock()
	if gen != m.generation || m.state != Pressing {
		// Stale timer, the press was already released
		m.mu.Unlock()
		return
	}
	m.state = DetailedLogTriggered
	m.timer = nil
	m.mu.Unlock()

	if m.handlers.OpenDetailedLog != nil {
		m.handlers.OpenDetailedLog()
	}
}

// Reset cancels any pending press and returns to Idle
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelTimer()
	m.state = Idle
}

func (m *Machine) cancelTimer() {
	m.generation++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
