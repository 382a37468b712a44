package action

import (
	"context"

	"github.com/vampirenirmal/convocart/internal/conversation"
)

// DefaultPriority is used by handlers that do not care about ranking.
// Catch-all handlers conventionally register below 10; specialized
// overrides register above it.
const DefaultPriority = 10

// Params are the classified parameters extracted for one action, e.g.
// {"product_id": "sku-1", "quantity": 2}.
type Params map[string]any

// ParamAction is the reserved params key under which the registry injects
// the dispatched action name, so a handler supporting several actions can
// tell which one fired.
const ParamAction = "__action"

// Handler is one unit of business logic. Exactly one handler runs per
// turn: the highest-priority registered handler whose Supports reports
// true for the action name.
type Handler interface {
	// Handle executes the action for a principal against their loaded
	// conversation context. Recoverable business errors are returned as
	// failed Results, never raised.
	Handle(ctx context.Context, principal string, params Params, conv *conversation.Context) Result

	// Supports reports whether this handler can process the named action.
	Supports(name string) bool

	// Name identifies the handler in logs and introspection output.
	Name() string

	// Priority ranks this handler against others supporting the same
	// action. Higher wins; ties break by registration order.
	Priority() int
}
