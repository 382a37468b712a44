package conversation

import "time"

// Snapshot is the serializable form of a Context, used by context stores
// and observers. ExpiresAt is not carried: it is recomputed from
// LastActivityAt plus the timeout on restore, so a changed timeout
// configuration takes effect on existing sessions.
type Snapshot struct {
	Principal      string         `json:"principal"`
	Phase          Phase          `json:"phase"`
	StateData      map[string]any `json:"state_data,omitempty"`
	Slots          map[string]any `json:"slots,omitempty"`
	History        []HistoryEntry `json:"history,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
	Version        int64          `json:"version"`
}

// Snapshot captures the current context state. Maps and history are copied
// so the snapshot is safe to hand to another goroutine.
func (c *Context) Snapshot() Snapshot {
	sd := make(map[string]any, len(c.stateData))
	for k, v := range c.stateData {
		sd[k] = v
	}
	return Snapshot{
		Principal:      c.principal,
		Phase:          c.machine.Current(),
		StateData:      sd,
		Slots:          c.Slots(),
		History:        c.History(),
		StartedAt:      c.startedAt,
		LastActivityAt: c.lastActivityAt,
		Version:        c.Version,
	}
}

// FromSnapshot rebuilds a Context from its serialized form. The expiry
// deadline is recomputed as LastActivityAt + timeout. Maps and history are
// copied, so mutating the restored context never writes through to a
// snapshot a store may still be holding.
func FromSnapshot(snap Snapshot, opts ...ContextOption) *Context {
	c := &Context{
		principal: snap.Principal,
		machine:   NewStateMachine(snap.Phase),
		stateData: make(map[string]any, len(snap.StateData)),
		slots:     make(map[string]any, len(snap.Slots)),
		history:   append([]HistoryEntry(nil), snap.History...),
		timeout:   DefaultTimeout,
		Version:   snap.Version,
		now:       time.Now,
	}
	for k, v := range snap.StateData {
		c.stateData[k] = v
	}
	for k, v := range snap.Slots {
		c.slots[k] = v
	}
	for _, opt := range opts {
		opt(c)
	}
	c.startedAt = snap.StartedAt
	c.lastActivityAt = snap.LastActivityAt
	c.expiresAt = snap.LastActivityAt.Add(c.timeout)
	return c
}
