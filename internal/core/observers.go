// Package core runs the per-turn control loop: resolve the action,
// dispatch to a handler, apply the result, persist the session and fan the
// turn out to observers and the messaging channel.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vampirenirmal/convocart/internal/action"
	"github.com/vampirenirmal/convocart/internal/conversation"
)

// TurnInput is the inbound half of a turn event.
type TurnInput struct {
	Action    string        `json:"action"`
	Principal string        `json:"principal"`
	Params    action.Params `json:"params,omitempty"`
}

// TurnEvent is the fixed observer payload published after each processed
// turn. Context is a snapshot taken after the turn was applied, so
// observers never share mutable state with the next turn.
type TurnEvent struct {
	ID      string                `json:"id"`
	Input   TurnInput             `json:"input"`
	Context conversation.Snapshot `json:"context"`
	Intent  string                `json:"intent"`
	Result  action.Result         `json:"result"`
	At      time.Time             `json:"at"`
}

// Observer receives turn events for analytics or auditing. Delivery is
// best-effort: a slow or failing observer never affects the turn.
type Observer interface {
	Notify(ctx context.Context, event TurnEvent)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, event TurnEvent)

// Notify implements Observer.
func (f ObserverFunc) Notify(ctx context.Context, event TurnEvent) { f(ctx, event) }

// Notifier fans turn events out to registered observers asynchronously.
type Notifier struct {
	mu        sync.RWMutex
	observers []Observer
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewNotifier creates an empty notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger}
}

// Register adds an observer. Registration is expected before serving
// begins.
func (n *Notifier) Register(o Observer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.observers = append(n.observers, o)
}

// Publish delivers the event to every observer on its own goroutine. A
// panicking observer is logged and dropped for this event.
func (n *Notifier) Publish(ctx context.Context, event TurnEvent) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	n.mu.RLock()
	observers := make([]Observer, len(n.observers))
	copy(observers, n.observers)
	n.mu.RUnlock()

	for _, o := range observers {
		o := o
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					n.logger.Error("observer panicked",
						"event", event.ID, "panic", fmt.Sprint(rec))
				}
			}()
			o.Notify(ctx, event)
		}()
	}
}

// Wait blocks until all in-flight deliveries finish. Used in shutdown and
// tests.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
