package action

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/vampirenirmal/convocart/internal/conversation"
)

// Registry owns all handler registrations and resolves which handler runs
// for a given action name. Resolution is strict single dispatch: only the
// top-ranked supporting handler is invoked, with no fallback chaining to
// lower-ranked handlers on failure. Low priorities (1-9) are a naming
// convention for catch-all handlers, not a chaining mechanism.
type Registry struct {
	mu       sync.RWMutex
	handlers []Handler
	cache    map[string][]Handler
	logger   *slog.Logger
}

// NewRegistry creates an empty handler registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cache:  make(map[string][]Handler),
		logger: logger,
	}
}

// Register appends a handler and invalidates the ranking cache.
// Registration is expected to complete before dispatch begins.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
	r.cache = make(map[string][]Handler)
	r.logger.Debug("handler registered", "handler", h.Name(), "priority", h.Priority())
}

// HandlersFor returns all handlers supporting the named action, sorted by
// priority descending, stable on ties by registration order. The ranking
// is cached until the next registration; callers get their own copy, so
// reordering or truncating the returned slice never corrupts the cache.
func (r *Registry) HandlersFor(name string) []Handler {
	r.mu.RLock()
	if ranked, ok := r.cache[name]; ok {
		r.mu.RUnlock()
		return append([]Handler(nil), ranked...)
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if ranked, ok := r.cache[name]; ok {
		return append([]Handler(nil), ranked...)
	}
	var ranked []Handler
	for _, h := range r.handlers {
		if h.Supports(name) {
			ranked = append(ranked, h)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Priority() > ranked[j].Priority()
	})
	r.cache[name] = ranked
	return append([]Handler(nil), ranked...)
}

// FindSupporting returns every handler whose Supports reports true for the
// name, in ranked order. Intended for introspection and extension tooling.
func (r *Registry) FindSupporting(name string) []Handler {
	return r.HandlersFor(name)
}

// Execute resolves the named action and invokes the single highest-ranked
// supporting handler. Callers never receive a raw error or panic: an
// unsupported name yields a "no handler" failure, and an unexpected fault
// inside the handler is logged and converted to a generic failure.
func (r *Registry) Execute(ctx context.Context, name, principal string, params Params, conv *conversation.Context) (res Result) {
	ranked := r.HandlersFor(name)
	if len(ranked) == 0 {
		r.logger.Warn("no handler for action", "action", name, "principal", principal)
		return Fail(principal, CodeNoHandler,
			"Sorry, I don't know how to help with that yet.")
	}

	chosen := ranked[0]
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("handler panicked",
				"action", name,
				"handler", chosen.Name(),
				"principal", principal,
				"panic", fmt.Sprint(rec))
			res = Fail(principal, CodeInternal,
				"Something went wrong on our side. Please try again in a moment.")
		}
	}()

	// Copy params so the injected action name never leaks back to the
	// caller's map.
	dispatchParams := make(Params, len(params)+1)
	for k, v := range params {
		dispatchParams[k] = v
	}
	dispatchParams[ParamAction] = name

	r.logger.Debug("dispatching action",
		"action", name,
		"handler", chosen.Name(),
		"priority", chosen.Priority(),
		"candidates", len(ranked))
	return chosen.Handle(ctx, principal, dispatchParams, conv)
}
