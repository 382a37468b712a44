package conversation

import (
	"time"
)

const (
	// MaxHistory bounds the exchange history. The oldest entry is evicted
	// first once the bound is reached.
	MaxHistory = 10

	// DefaultTimeout is how long a session stays live without activity.
	DefaultTimeout = 24 * time.Hour
)

// EntryKind classifies a history entry.
type EntryKind string

const (
	EntryUser       EntryKind = "user"
	EntrySystem     EntryKind = "system"
	EntryTransition EntryKind = "transition"
)

// HistoryEntry is one record in the bounded conversation history: either a
// user/system exchange or a phase transition.
type HistoryEntry struct {
	Kind    EntryKind `json:"kind"`
	Content string    `json:"content,omitempty"`
	From    Phase     `json:"from,omitempty"`
	To      Phase     `json:"to,omitempty"`
	At      time.Time `json:"at"`
}

// Context holds one principal's running session: current phase, transient
// per-phase state data, durable extracted slots, a bounded history and
// timeout bookkeeping.
//
// Context is not safe for concurrent use. The orchestrator serializes turns
// per principal before touching it.
type Context struct {
	principal string
	machine   *StateMachine
	stateData map[string]any
	slots     map[string]any
	history   []HistoryEntry

	startedAt      time.Time
	lastActivityAt time.Time
	expiresAt      time.Time
	timeout        time.Duration

	// Version is bumped by the context store on every successful save and
	// used for optimistic concurrency checks. Zero for a fresh context.
	Version int64

	now func() time.Time
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithTimeout overrides the session inactivity timeout.
func WithTimeout(d time.Duration) ContextOption {
	return func(c *Context) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) ContextOption {
	return func(c *Context) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSlots seeds the slot map, e.g. from an archived session.
func WithSlots(slots map[string]any) ContextOption {
	return func(c *Context) {
		for k, v := range slots {
			c.slots[k] = v
		}
	}
}

// NewContext creates a fresh session context for a principal, starting at
// INITIAL.
func NewContext(principal string, opts ...ContextOption) *Context {
	c := &Context{
		principal: principal,
		machine:   NewStateMachine(PhaseInitial),
		stateData: make(map[string]any),
		slots:     make(map[string]any),
		timeout:   DefaultTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	t := c.now()
	c.startedAt = t
	c.lastActivityAt = t
	c.expiresAt = t.Add(c.timeout)
	return c
}

// touch records activity and recomputes the expiry deadline. Every mutation
// goes through here.
func (c *Context) touch() {
	c.lastActivityAt = c.now()
	c.expiresAt = c.lastActivityAt.Add(c.timeout)
}

// Principal returns the session owner's identifier.
func (c *Context) Principal() string { return c.principal }

// Phase returns the current conversation phase.
func (c *Context) Phase() Phase { return c.machine.Current() }

// CanTransitionTo reports whether the phase table allows moving to the
// given phase from the current one.
func (c *Context) CanTransitionTo(to Phase) bool {
	return c.machine.CanTransitionTo(to)
}

// TransitionTo moves to the given phase and records the move in history.
// On an illegal move the phase is left unchanged and the error returned.
func (c *Context) TransitionTo(to Phase) error {
	from := c.machine.Current()
	if err := c.machine.TransitionTo(to); err != nil {
		return err
	}
	c.appendHistory(HistoryEntry{Kind: EntryTransition, From: from, To: to, At: c.now()})
	c.touch()
	return nil
}

// StateData returns the value stored under the given key and whether it
// was present.
func (c *Context) StateData(key string) (any, bool) {
	v, ok := c.stateData[key]
	return v, ok
}

// StateDataString returns a string state-data entry, or "" when absent or
// not a string.
func (c *Context) StateDataString(key string) string {
	if v, ok := c.stateData[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SetStateData stores one state-data entry.
func (c *Context) SetStateData(key string, value any) {
	c.stateData[key] = value
	c.touch()
}

// DeleteStateData removes one state-data entry.
func (c *Context) DeleteStateData(key string) {
	delete(c.stateData, key)
	c.touch()
}

// MergeStateData applies a patch map onto the state data. A nil value in
// the patch deletes the key.
func (c *Context) MergeStateData(patch map[string]any) {
	if len(patch) == 0 {
		return
	}
	for k, v := range patch {
		if v == nil {
			delete(c.stateData, k)
			continue
		}
		c.stateData[k] = v
	}
	c.touch()
}

// Slot returns the slot value for the given key and whether it was present.
func (c *Context) Slot(key string) (any, bool) {
	v, ok := c.slots[key]
	return v, ok
}

// SetSlot stores a durable extracted entity.
func (c *Context) SetSlot(key string, value any) {
	c.slots[key] = value
	c.touch()
}

// ClearSlot removes one slot.
func (c *Context) ClearSlot(key string) {
	delete(c.slots, key)
	c.touch()
}

// Slots returns a copy of the slot map.
func (c *Context) Slots() map[string]any {
	out := make(map[string]any, len(c.slots))
	for k, v := range c.slots {
		out[k] = v
	}
	return out
}

// AddExchange appends a user or system message to the bounded history.
func (c *Context) AddExchange(kind EntryKind, content string) {
	c.appendHistory(HistoryEntry{Kind: kind, Content: content, At: c.now()})
	c.touch()
}

func (c *Context) appendHistory(e HistoryEntry) {
	c.history = append(c.history, e)
	if len(c.history) > MaxHistory {
		c.history = c.history[len(c.history)-MaxHistory:]
	}
}

// History returns a copy of the history, oldest first.
func (c *Context) History() []HistoryEntry {
	out := make([]HistoryEntry, len(c.history))
	copy(out, c.history)
	return out
}

// StartedAt returns when the session began.
func (c *Context) StartedAt() time.Time { return c.startedAt }

// LastActivityAt returns the time of the most recent mutation.
func (c *Context) LastActivityAt() time.Time { return c.lastActivityAt }

// ExpiresAt returns the current expiry deadline.
func (c *Context) ExpiresAt() time.Time { return c.expiresAt }

// IsTimedOut reports whether at least threshold has elapsed since the last
// activity. The boundary is inclusive: exactly threshold counts as timed
// out.
func (c *Context) IsTimedOut(threshold time.Duration) bool {
	return c.now().Sub(c.lastActivityAt) >= threshold
}

// IsExpired reports whether the stored expiry deadline has passed.
func (c *Context) IsExpired() bool {
	return !c.now().Before(c.expiresAt)
}

// Reset reinitializes phase, state data and history for a new run through
// the flow. Slots are left untouched here: preserving or dropping them
// across a reset is the context store's decision, not this type's.
func (c *Context) Reset() {
	c.machine = NewStateMachine(PhaseInitial)
	c.stateData = make(map[string]any)
	c.history = nil
	c.touch()
}

// ClearTransient drops state data and history while keeping the current
// phase and slots. The orchestrator calls it when a terminal phase loops
// back to an entry phase, so the next run starts with a clean scratch map.
func (c *Context) ClearTransient() {
	c.stateData = make(map[string]any)
	c.history = nil
	c.touch()
}
