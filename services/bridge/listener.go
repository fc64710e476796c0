package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
)

var ErrAlreadyRunning = errors.New("bridge listener already running")

// Envelope addresses a raw message to one session.
type Envelope struct {
	SessionID string          `json:"session_id"`
	Payload   json.RawMessage `json:"payload"`
}

// Target receives the decoded messages for one session. Implementations check
// that the message belongs to their pending challenge before acting on it.
type Target interface {
	Deliver(ctx context.Context, msg Message)
}

type TargetFunc func(ctx context.Context, msg Message)

func (f TargetFunc) Deliver(ctx context.Context, msg Message) {
	f(ctx, msg)
}

type Transport interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(ctx context.Context) (<-chan Envelope, error)
}

// Listener is the single subscriber for a process. Sessions register a Target
// and the listener routes every envelope to the target for its session id.
type Listener struct {
	transport Transport

	mu      sync.RWMutex
	targets map[string]Target
	running bool
}

func NewListener(transport Transport) *Listener {
	return &Listener{
		transport: transport,
		targets:   make(map[string]Target),
	}
}

func (l *Listener) Register(sessionID string, t Target) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.targets[sessionID] = t
}

func (l *Listener) Unregister(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.targets, sessionID)
}

// Publish hands a raw payload to the transport for delivery to sessionID.
func (l *Listener) Publish(ctx context.Context, sessionID string, payload []byte) error {
	return l.transport.Publish(ctx, Envelope{SessionID: sessionID, Payload: payload})
}

// Run subscribes once and dispatches until ctx is cancelled or the transport closes.
func (l *Listener) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	l.running = true
	l.mu.Unlock()

	envelopes, err := l.transport.Subscribe(ctx)
	if err != nil {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
		return err
	}

	log.Println("Bridge listener started")
	for {
		select {
		case <-ctx.Done():
			log.Println("Bridge listener stopping")
			return nil
		case env, ok := <-envelopes:
			if !ok {
				log.Println("Bridge transport closed")
				return nil
			}
			l.Dispatch(ctx, env)
		}
	}
}

// Dispatch decodes one envelope and hands it to its target. Unknown message types
// and unknown sessions are dropped.
func (l *Listener) Dispatch(ctx context.Context, env Envelope) {
	msg, err := Decode(env.Payload)
	if err != nil {
		if !errors.Is(err, ErrUnknownType) {
			log.Printf("[Session: %s] Dropping bridge message: %v", env.SessionID, err)
		}
		return
	}

	l.mu.RLock()
	target, ok := l.targets[env.SessionID]
	l.mu.RUnlock()
	if !ok {
		log.Printf("[Session: %s] No target for %s message", env.SessionID, msg.Type())
		return
	}

	target.Deliver(ctx, msg)
}
