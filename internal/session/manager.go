// Package session owns the session lifecycle: start, state transitions, explicit end and
// inactivity timeout. Every event goes through the event logger, and end/timeout flush it.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	eventdomain "ux-telemetry/backend/internal/event/domain"
	"ux-telemetry/backend/internal/session/domain"
)

// DefaultTimeout is the inactivity window after which an idle session times out.
const DefaultTimeout = 5 * time.Minute

// Names of the records the Manager logs itself.
const (
	EventSessionStarted  = "SessionStarted"
	EventSessionEnded    = "SessionEnded"
	EventSessionTimedOut = "SessionTimedOut"
	EventStateChanged    = "StateChanged"

	MetadataPreviousState = "PreviousState"
	MetadataCurrentState  = "CurrentState"
)

var (
	// ErrSessionActive is returned by StartSession while a session is already active.
	ErrSessionActive = errors.New("session: a session is already active")
	// ErrNoActiveSession is returned by operations that need an active session.
	ErrNoActiveSession = errors.New("session: no active session")
	// ErrEmptyEventName is returned by LogSessionEvent for a record without a name.
	ErrEmptyEventName = errors.New("session: event record name is empty")
)

// EventLogger is the part of event.Logger the Manager writes through.
type EventLogger interface {
	LogEvent(ctx context.Context, record eventdomain.EventRecord)
	ResetLog(ctx context.Context)
}

// SessionTracker is told the id of each new session before its first record is logged
// (e.g. observer.SessionID).
type SessionTracker interface {
	SetSession(id string)
}

// Manager runs the session state machine. Safe for concurrent use; the inactivity timer
// is serialized with activity through the same lock.
type Manager struct {
	logger  EventLogger
	clock   clockwork.Clock
	timeout time.Duration
	tracker SessionTracker
	log     *slog.Logger

	mu          sync.Mutex
	session     *domain.Session
	current     eventdomain.ApplicationState
	previous    eventdomain.ApplicationState
	hasCurrent  bool
	hasPrevious bool
	timer       clockwork.Timer
	generation  uint64

	notifications broadcaster
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for timestamps and the inactivity timer.
func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithTimeout sets the inactivity window. Non-positive values keep DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithSessionTracker registers t to be told each new session id.
func WithSessionTracker(t SessionTracker) Option {
	return func(m *Manager) { m.tracker = t }
}

// WithSlog sets the diagnostic logger. Defaults to slog.Default().
func WithSlog(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager returns a Manager with no active session.
func NewManager(logger EventLogger, opts ...Option) *Manager {
	m := &Manager{
		logger:  logger,
		clock:   clockwork.NewRealClock(),
		timeout: DefaultTimeout,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers fn for notifications of kind. The returned func unsubscribes.
func (m *Manager) Subscribe(kind NotificationKind, fn Listener) (unsubscribe func()) {
	return m.notifications.subscribe(kind, fn)
}

// Timeout returns the inactivity window.
func (m *Manager) Timeout() time.Duration { return m.timeout }

// StartSession begins a new session in StartState. It fails with ErrSessionActive if
// a session is already active.
func (m *Manager) StartSession(ctx context.Context) error {
	m.mu.Lock()
	if m.activeLocked() {
		m.mu.Unlock()
		return ErrSessionActive
	}
	now := m.clock.Now()
	m.session = &domain.Session{
		ID:        uuid.NewString(),
		StartTime: now,
		States:    []eventdomain.ApplicationState{eventdomain.StartState},
	}
	if m.tracker != nil {
		m.tracker.SetSession(m.session.ID)
	}
	m.logLocked(ctx, eventdomain.NewEventRecord(EventSessionStarted, now, nil))
	m.current, m.hasCurrent = eventdomain.StartState, true
	m.previous, m.hasPrevious = eventdomain.ApplicationState{}, false
	n := Notification{Kind: SessionStarted, Session: m.session.Clone(), CurrentState: m.current}
	m.mu.Unlock()

	m.log.InfoContext(ctx, "session: started", "session_id", n.Session.ID)
	m.notifications.publish(n)
	return nil
}

// LogSessionEvent records activity: it restarts the inactivity timer and forwards
// record to the event logger. A zero record time is set to now.
func (m *Manager) LogSessionEvent(ctx context.Context, record eventdomain.EventRecord) error {
	if record.Name == "" {
		return ErrEmptyEventName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.activeLocked() {
		return ErrNoActiveSession
	}
	if record.Time.IsZero() {
		record.Time = m.clock.Now()
	}
	m.logLocked(ctx, record)
	return nil
}

// GoToState moves the session to target and logs a StateChanged record carrying the
// previous and new state names.
func (m *Manager) GoToState(ctx context.Context, target eventdomain.ApplicationState) error {
	m.mu.Lock()
	if !m.activeLocked() {
		m.mu.Unlock()
		return ErrNoActiveSession
	}
	record := eventdomain.NewEventRecord(EventStateChanged, m.clock.Now(), eventdomain.M(
		MetadataPreviousState, m.current.Name,
		MetadataCurrentState, target.Name,
	))
	m.logLocked(ctx, record)
	m.previous, m.hasPrevious = m.current, true
	m.current = target
	m.session.States = append(m.session.States, target)
	n := Notification{
		Kind:          StateChanged,
		Session:       m.session.Clone(),
		PreviousState: m.previous,
		CurrentState:  m.current,
	}
	m.mu.Unlock()

	m.notifications.publish(n)
	return nil
}

// EndSession closes the active session, flushes the event logger and notifies
// SessionEnded listeners.
func (m *Manager) EndSession(ctx context.Context) error {
	n, ok := m.finish(ctx, EventSessionEnded, SessionEnded, 0)
	if !ok {
		return ErrNoActiveSession
	}
	m.log.InfoContext(ctx, "session: ended", "session_id", n.Session.ID, "duration", n.Session.Duration())
	m.notifications.publish(n)
	return nil
}

// onTimeout runs on the clock's goroutine. A fire from a timer armed before the latest
// activity (stale generation) is ignored.
func (m *Manager) onTimeout(generation uint64) {
	ctx := context.Background()
	n, ok := m.finish(ctx, EventSessionTimedOut, SessionTimedOut, generation)
	if !ok {
		return
	}
	m.log.InfoContext(ctx, "session: timed out", "session_id", n.Session.ID, "idle", m.timeout)
	m.notifications.publish(n)
}

// finish ends the session with a closing record named name. generation 0 means an
// explicit end; otherwise it must match the armed timer. The flush runs under the lock so
// a new session cannot start until the previous one is flushed.
func (m *Manager) finish(ctx context.Context, name string, kind NotificationKind, generation uint64) (Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.activeLocked() || (generation != 0 && generation != m.generation) {
		return Notification{}, false
	}
	record := eventdomain.NewEventRecord(name, m.clock.Now(), nil)
	m.session.EventRecords = append(m.session.EventRecords, record)
	m.logger.LogEvent(ctx, record)
	m.session.EndTime = record.Time
	m.disarmLocked()

	n := Notification{Kind: kind, Session: m.session.Clone(), PreviousState: m.previous, CurrentState: m.current}
	m.current, m.hasCurrent = eventdomain.ApplicationState{}, false
	m.previous, m.hasPrevious = eventdomain.ApplicationState{}, false

	m.logger.ResetLog(ctx)
	return n, true
}

// logLocked appends record to the session, restarts the inactivity timer and forwards
// record to the event logger.
func (m *Manager) logLocked(ctx context.Context, record eventdomain.EventRecord) {
	m.session.EventRecords = append(m.session.EventRecords, record)
	m.armLocked()
	m.logger.LogEvent(ctx, record)
}

func (m *Manager) armLocked() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.generation++
	generation := m.generation
	m.timer = m.clock.AfterFunc(m.timeout, func() { m.onTimeout(generation) })
}

func (m *Manager) disarmLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.generation++
}

func (m *Manager) activeLocked() bool {
	return m.session != nil && !m.session.Ended()
}

// Active reports whether a session is in progress.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked()
}

// CurrentState returns the state of the active session. ok is false when no session is active.
func (m *Manager) CurrentState() (state eventdomain.ApplicationState, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.hasCurrent
}

// PreviousState returns the state before the last GoToState of the active session.
// ok is false until the first transition.
func (m *Manager) PreviousState() (state eventdomain.ApplicationState, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.previous, m.hasPrevious
}

// Snapshot is a view of the Manager taken under a single lock, so its fields always
// describe the same moment.
type Snapshot struct {
	Active bool
	// Session is the current or most recently ended session. HasSession is false if no
	// session was ever started.
	Session    domain.Session
	HasSession bool

	CurrentState  eventdomain.ApplicationState
	HasCurrent    bool
	PreviousState eventdomain.ApplicationState
	HasPrevious   bool
}

// Snapshot returns the session, its states and whether it is active in one consistent read.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		Active:        m.activeLocked(),
		CurrentState:  m.current,
		HasCurrent:    m.hasCurrent,
		PreviousState: m.previous,
		HasPrevious:   m.hasPrevious,
	}
	if m.session != nil {
		snap.Session, snap.HasSession = m.session.Clone(), true
	}
	return snap
}

// Session returns a snapshot of the current or most recently ended session.
// ok is false if no session was ever started.
func (m *Manager) Session() (s domain.Session, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return domain.Session{}, false
	}
	return m.session.Clone(), true
}
