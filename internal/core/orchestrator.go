package core

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/vampirenirmal/convocart/internal/action"
	"github.com/vampirenirmal/convocart/internal/conversation"
	"github.com/vampirenirmal/convocart/internal/messaging"
	"github.com/vampirenirmal/convocart/internal/store"
)

// lockStripes bounds the per-principal lock table. Two principals may
// share a stripe; that only costs contention, never correctness.
const lockStripes = 64

// Orchestrator drives one conversation turn end to end: load the session,
// dispatch the classified action, apply the handler's result, persist, and
// fan out to observers and the messaging channel.
//
// Turns for the same principal are serialized on a striped lock, so a
// duplicate delivery can never interleave with the original mid-turn.
// Turns for different principals run independently.
type Orchestrator struct {
	registry  *action.Registry
	contexts  store.ContextStore
	messenger messaging.Messenger
	notifier  *Notifier
	logger    *slog.Logger
	convOpts  []conversation.ContextOption
	locks     [lockStripes]sync.Mutex
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithNotifier attaches an observer notifier.
func WithNotifier(n *Notifier) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithContextOptions sets the options (timeout, clock) applied to every
// lazily created conversation context.
func WithContextOptions(opts ...conversation.ContextOption) Option {
	return func(o *Orchestrator) {
		o.convOpts = opts
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an orchestrator over a handler registry, context store and
// messenger.
func New(registry *action.Registry, contexts store.ContextStore, messenger messaging.Messenger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:  registry,
		contexts:  contexts,
		messenger: messenger,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.notifier == nil {
		o.notifier = NewNotifier(o.logger)
	}
	return o
}

// Notifier returns the observer notifier for registration.
func (o *Orchestrator) Notifier() *Notifier { return o.notifier }

func (o *Orchestrator) lockFor(principal string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(principal))
	return &o.locks[h.Sum32()%lockStripes]
}

// HandleTurn processes one inbound turn. It always returns a Result whose
// messages were already handed to the messenger; the error reports
// infrastructure faults for the caller's observability and is never
// surfaced to the user as-is.
func (o *Orchestrator) HandleTurn(ctx context.Context, actionName, principal string, params action.Params) (action.Result, error) {
	lock := o.lockFor(principal)
	lock.Lock()
	defer lock.Unlock()

	conv, err := o.loadContext(ctx, principal)
	if err != nil {
		o.logger.Error("context load failed", "principal", principal, "error", err)
		return o.failTurn(ctx, principal), err
	}

	conv.AddExchange(conversation.EntryUser, actionName)

	result := o.registry.Execute(ctx, actionName, principal, params, conv)

	o.applyResult(principal, conv, result)

	if err := o.contexts.Put(ctx, principal, conv); err != nil {
		// The patch and phase transition must land together or not at
		// all; a failed save voids the whole turn.
		o.logger.Error("context save failed", "principal", principal, "error", err)
		return o.failTurn(ctx, principal), err
	}

	o.notifier.Publish(ctx, TurnEvent{
		Input:   TurnInput{Action: actionName, Principal: principal, Params: params},
		Context: conv.Snapshot(),
		Intent:  actionName,
		Result:  result,
		At:      o.now(),
	})

	if err := o.messenger.Send(ctx, result.Messages); err != nil {
		o.logger.Error("message delivery failed", "principal", principal, "error", err)
	}
	return result, nil
}

// applyResult folds a handler result into the context: the phase
// transition first, then the context patch, so a patch written for a fresh
// run survives a terminal-phase loop-back.
func (o *Orchestrator) applyResult(principal string, conv *conversation.Context, result action.Result) {
	if result.NextPhase != nil {
		from := conv.Phase()
		if err := conv.TransitionTo(*result.NextPhase); err != nil {
			// The turn still completes and messages are still delivered;
			// only the phase stays put.
			o.logger.Warn("handler requested invalid transition",
				"principal", principal,
				"from", from,
				"to", *result.NextPhase)
		} else if from.IsTerminal() && !result.NextPhase.IsTerminal() {
			conv.ClearTransient()
		}
	}
	conv.MergeStateData(result.ContextPatch)
	if len(result.Messages) > 0 {
		conv.AddExchange(conversation.EntrySystem, result.Messages[0].Body)
	}
}

// loadContext loads or lazily creates the principal's session. An expired
// context is archived (slots preserved) and replaced with a fresh one
// seeded from those slots; it is never surfaced as an error.
func (o *Orchestrator) loadContext(ctx context.Context, principal string) (*conversation.Context, error) {
	conv, err := o.contexts.Get(ctx, principal)
	switch {
	case err == nil:
		if !conv.IsExpired() {
			return conv, nil
		}
		slots, archiveErr := o.contexts.Archive(ctx, principal)
		if archiveErr != nil && !errors.Is(archiveErr, store.ErrNotFound) {
			return nil, archiveErr
		}
		o.logger.Info("session expired, archived with slots preserved",
			"principal", principal, "slots", len(slots))
		return o.newContext(principal, slots), nil

	case errors.Is(err, store.ErrNotFound):
		slots, slotsErr := o.contexts.ArchivedSlots(ctx, principal)
		if slotsErr != nil {
			slots = nil
		}
		return o.newContext(principal, slots), nil

	default:
		return nil, err
	}
}

func (o *Orchestrator) newContext(principal string, slots map[string]any) *conversation.Context {
	opts := o.convOpts
	if len(slots) > 0 {
		opts = append(append([]conversation.ContextOption(nil), opts...), conversation.WithSlots(slots))
	}
	return conversation.NewContext(principal, opts...)
}

// failTurn sends the uniform safe reply used when infrastructure fails
// mid-turn, so the conversation never goes silent.
func (o *Orchestrator) failTurn(ctx context.Context, principal string) action.Result {
	result := action.Fail(principal, action.CodeInternal,
		"Sorry, something went wrong on our side. Please try again in a moment.")
	if err := o.messenger.Send(ctx, result.Messages); err != nil {
		o.logger.Error("message delivery failed", "principal", principal, "error", err)
	}
	return result
}
