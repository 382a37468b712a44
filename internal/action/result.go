// Package action defines the handler capability contract, the structured
// result of one handler invocation, and the priority-based registry that
// picks which handler runs for a given action name.
package action

import (
	"github.com/vampirenirmal/convocart/internal/conversation"
	"github.com/vampirenirmal/convocart/internal/messaging"
)

// Error codes carried by ResultError. The code is machine-facing; the
// message is user-facing.
const (
	CodeNoHandler       = "no_handler"
	CodeValidation      = "validation_error"
	CodeInternal        = "internal_error"
	CodeConflict        = "conflict"
	CodeProcessing      = "already_processing"
	CodeStock           = "stock_error"
	CodeDiscount        = "discount_error"
	CodePayment         = "payment_error"
	CodeWrongPhase      = "wrong_phase"
	CodeCartEmpty       = "cart_empty"
	CodeUnknownProduct  = "unknown_product"
	CodeUnknownDiscount = "unknown_discount"
)

// ResultError describes why a handler invocation failed.
type ResultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ResultError) Error() string {
	return e.Code + ": " + e.Message
}

// Result is the structured outcome of one handler invocation. A failed
// result carries a non-nil Err, and outside pure-error paths still carries
// at least one user-facing message so the conversation never goes silent.
type Result struct {
	Success      bool
	Messages     []messaging.Message
	NextPhase    *conversation.Phase
	ContextPatch map[string]any
	Err          *ResultError
}

// OK builds a successful result with the given outbound messages.
func OK(msgs ...messaging.Message) Result {
	return Result{Success: true, Messages: msgs}
}

// WithPhase sets the requested next phase.
func (r Result) WithPhase(next conversation.Phase) Result {
	r.NextPhase = &next
	return r
}

// WithPatch sets the context patch merged into state data after the turn.
func (r Result) WithPatch(patch map[string]any) Result {
	r.ContextPatch = patch
	return r
}

// Fail builds a failure result. The user message is also delivered as an
// outbound text message to the principal.
func Fail(principal, code, userMessage string) Result {
	return Result{
		Success:  false,
		Messages: []messaging.Message{messaging.Text(principal, userMessage)},
		Err:      &ResultError{Code: code, Message: userMessage},
	}
}

// FailSilent builds a failure result with no outbound message. Reserved
// for pure-error paths where the caller owns user communication.
func FailSilent(code, message string) Result {
	return Result{
		Success: false,
		Err:     &ResultError{Code: code, Message: message},
	}
}
