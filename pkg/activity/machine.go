package activity

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Listener is notified of every state change. It runs with the machine
// locked, in transition order, and must not call Apply.
type Listener func(prev, next State)

// Config configures a Machine.
type Config struct {
	// Clock drives dwell timers and personality ticks. Default: wall clock.
	Clock clock.Clock

	// Rand picks personality excursions. Default: time-seeded source.
	Rand *rand.Rand

	// Logger for transitions. Default: slog.Default().
	Logger *slog.Logger
}

// Machine holds the current activity state.
type Machine struct {
	clock  clock.Clock
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	gen       uint64
	dwell     *clock.Timer
	listeners map[int]Listener
	nextLis   int

	randMu sync.Mutex
	rand   *rand.Rand
}

// NewMachine creates a machine in the Off state.
func NewMachine(cfg Config) *Machine {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Machine{
		clock:     cfg.Clock,
		logger:    cfg.Logger.With("component", "activity"),
		rand:      cfg.Rand,
		state:     Off,
		listeners: make(map[int]Listener),
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn for state changes and returns a function that
// removes it.
func (m *Machine) Subscribe(fn Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextLis
	m.nextLis++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Apply feeds ev through Transition and returns the resulting state.
// Any change cancels a pending dwell revert. Entering a transient state,
// or re-entering it through an Excursion, arms a fresh one.
func (m *Machine) Apply(ev Event) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyLocked(ev)
}

func (m *Machine) applyLocked(ev Event) State {
	prev := m.state
	next := Transition(prev, ev)

	_, excursion := ev.(Excursion)
	rearm := excursion && next == prev && next.Transient()
	if next == prev && !rearm {
		return next
	}

	m.gen++
	if m.dwell != nil {
		m.dwell.Stop()
		m.dwell = nil
	}
	m.state = next

	if d := Dwell(next); d > 0 {
		gen := m.gen
		m.dwell = m.clock.AfterFunc(d, func() { m.dwellElapsed(gen, next) })
	}

	if next != prev {
		m.logger.Debug("activity transition", "from", prev, "to", next)
		for _, fn := range m.listeners {
			fn(prev, next)
		}
	}
	return next
}

// dwellElapsed reverts a transient state unless something newer happened.
func (m *Machine) dwellElapsed(gen uint64, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.applyLocked(DwellElapsed{State: s})
}

// RunPersonality rolls for an idle excursion every interval until ctx is
// done. Each roll succeeds with the given probability and then picks one of
// PersonalityStates uniformly. Excursions only land while Idle.
func (m *Machine) RunPersonality(ctx context.Context, interval time.Duration, probability float64) {
	if interval <= 0 || probability <= 0 {
		return
	}
	ticker := m.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s, ok := m.roll(probability); ok {
				m.Apply(Excursion{State: s, Source: FromPersonality})
			}
		}
	}
}

func (m *Machine) roll(probability float64) (State, bool) {
	if m.State() != Idle {
		return Off, false
	}
	m.randMu.Lock()
	defer m.randMu.Unlock()
	if m.rand.Float64() >= probability {
		return Off, false
	}
	return PersonalityStates[m.rand.Intn(len(PersonalityStates))], true
}
