package session

import (
	"sync"

	eventdomain "ux-telemetry/backend/internal/event/domain"
	"ux-telemetry/backend/internal/session/domain"
)

// NotificationKind names a session lifecycle notification.
type NotificationKind int

const (
	SessionStarted NotificationKind = iota
	SessionEnded
	SessionTimedOut
	StateChanged
)

func (k NotificationKind) String() string {
	switch k {
	case SessionStarted:
		return "SessionStarted"
	case SessionEnded:
		return "SessionEnded"
	case SessionTimedOut:
		return "SessionTimedOut"
	case StateChanged:
		return "StateChanged"
	default:
		return "unknown"
	}
}

// Notification is delivered to listeners after a transition. Session is a snapshot
// taken when the transition completed.
type Notification struct {
	Kind          NotificationKind
	Session       domain.Session
	PreviousState eventdomain.ApplicationState
	CurrentState  eventdomain.ApplicationState
}

// Listener receives notifications synchronously, before the transition method returns.
// Listeners may call back into the Manager.
type Listener func(Notification)

type subscription struct {
	fn Listener
}

type broadcaster struct {
	mu   sync.Mutex
	subs map[NotificationKind][]*subscription
}

func (b *broadcaster) subscribe(kind NotificationKind, fn Listener) func() {
	sub := &subscription{fn: fn}
	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[NotificationKind][]*subscription)
	}
	b.subs[kind] = append(b.subs[kind], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[kind]
			for i, s := range list {
				if s == sub {
					b.subs[kind] = append(list[:i:i], list[i+1:]...)
					return
				}
			}
		})
	}
}

// publish calls the listeners registered when publish starts, in subscription order.
func (b *broadcaster) publish(n Notification) {
	b.mu.Lock()
	list := append([]*subscription(nil), b.subs[n.Kind]...)
	b.mu.Unlock()
	for _, s := range list {
		s.fn(n)
	}
}
