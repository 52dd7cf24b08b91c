// Package session owns the lifecycle of one in-flight assistant response:
// relaying upstream fragments to the client, accumulating the full text,
// and persisting the result on every terminal transition.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tidechat/tidechat/internal/chatstore"
	"github.com/tidechat/tidechat/internal/provider"
)

// StopMarker is the terminal frame relayed to the client when a stream is
// cancelled by the user.
const StopMarker = "[Stopped by user]"

// persistTimeout bounds the terminal AppendMessage call, which runs on a
// fresh context because the request context may already be cancelled.
const persistTimeout = 5 * time.Second

// State is the lifecycle phase of a Session.
type State int

const (
	StatePending State = iota
	StateStreaming
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Relay delivers one fragment frame to the waiting client.
type Relay interface {
	Send(fragment string) error
}

// Pinger is implemented by relays that support keep-alive comment frames.
type Pinger interface {
	Ping() error
}

// Session drives one streamed assistant response for one chat. At most one
// live Session exists per chat id, enforced by Registry.
type Session struct {
	chatID   string
	store    chatstore.Store
	registry *Registry
	cancel   context.CancelFunc

	// PingInterval, when positive, emits keep-alive pings while waiting
	// for upstream fragments. Set before Run.
	PingInterval time.Duration

	mu        sync.Mutex
	state     State
	stopped   bool
	buf       strings.Builder
}

// New creates a Session in StatePending. cancel must abort the upstream
// completion stream when invoked.
func New(chatID string, store chatstore.Store, registry *Registry, cancel context.CancelFunc) *Session {
	return &Session{
		chatID:   chatID,
		store:    store,
		registry: registry,
		cancel:   cancel,
		state:    StatePending,
	}
}

// ChatID returns the owning chat identifier.
func (s *Session) ChatID() string { return s.chatID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Text returns the accumulated response so far.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Cancel requests cooperative cancellation. Safe to call multiple times and
// from any goroutine; the relay loop observes it at its next suspension point.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
}

func (s *Session) stopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) append(fragment string) {
	s.mu.Lock()
	s.buf.WriteString(fragment)
	s.mu.Unlock()
}

// Run relays events until a terminal transition, persists the accumulated
// buffer as one assistant message, and deregisters the session. It returns
// the persisted message (nil when persistence itself failed), the terminal
// state, and the upstream error for StateFailed.
//
// Fragments are appended to the buffer and relayed strictly in arrival
// order; the next event is not read before the previous frame was written.
func (s *Session) Run(ctx context.Context, events <-chan provider.Event, relay Relay) (*chatstore.Message, State, error) {
	s.setState(StateStreaming)
	defer s.registry.Deregister(s.chatID)

	terminal := StateCompleted
	var streamErr error

	var tick <-chan time.Time
	if s.PingInterval > 0 {
		ticker := time.NewTicker(s.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

loop:
	for {
		select {
		case <-ctx.Done():
			terminal = StateCancelled
			break loop
		case <-tick:
			if p, ok := relay.(Pinger); ok {
				if err := p.Ping(); err != nil {
					terminal = StateCancelled
					break loop
				}
			}
		case ev, ok := <-events:
			if !ok {
				// The provider closes the channel both on natural end and
				// after cancellation; the stop signal disambiguates.
				if s.stopRequested() || ctx.Err() != nil {
					terminal = StateCancelled
				}
				break loop
			}
			if ev.Err != nil {
				terminal = StateFailed
				streamErr = ev.Err
				break loop
			}
			s.append(ev.Fragment)
			if err := relay.Send(ev.Fragment); err != nil {
				// Client went away mid-stream; treat like cancellation so
				// the partial answer is kept.
				terminal = StateCancelled
				break loop
			}
		}
	}

	if terminal == StateCancelled {
		s.cancel()
		// Best effort: the client may already be gone.
		_ = relay.Send(StopMarker)
	}
	s.setState(terminal)

	pctx, pcancel := context.WithTimeout(context.Background(), persistTimeout)
	defer pcancel()
	msg, perr := s.store.AppendMessage(pctx, s.chatID, chatstore.RoleAssistant, s.Text())
	if perr != nil {
		if streamErr == nil {
			streamErr = perr
		}
		return nil, terminal, streamErr
	}
	return msg, terminal, streamErr
}
