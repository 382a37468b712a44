package commerce

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vampirenirmal/convocart/internal/action"
	"github.com/vampirenirmal/convocart/internal/conversation"
	"github.com/vampirenirmal/convocart/internal/idempotency"
	"github.com/vampirenirmal/convocart/internal/messaging"
)

// confirmScope is the operation scope for confirmation idempotency
// records.
const confirmScope = "confirm_order"

// ConfirmOrderHandler turns a cart into an order with an at-most-once
// guarantee: duplicate or concurrent confirmations of the same cart
// produce exactly one order, and losers are answered with the winner's
// result.
//
// The protocol, in order:
//
//  1. Re-validate stock and any applied discount before touching the
//     claim, so a doomed confirmation never burns a lock slot.
//  2. Atomically claim the idempotency key (principal + cart + scope).
//  3. On a lost claim, look the order up by cart ID and replay it; if the
//     winner is still mid-flight, answer "still processing" without
//     retrying the claim.
//  4. On a won claim, create the order and charge payment. A payment
//     failure cancels the order but keeps the claim until TTL so rapid
//     retries stay deduplicated.
type ConfirmOrderHandler struct {
	baseHandler
	inventory Inventory
	carts     CartService
	discounts DiscountService
	orders    OrderService
	payment   PaymentProcessor
	guard     idempotency.Guard
	ttl       time.Duration
	logger    *slog.Logger
}

// NewConfirmOrderHandler wires the confirmation critical section.
func NewConfirmOrderHandler(
	inventory Inventory,
	carts CartService,
	discounts DiscountService,
	orders OrderService,
	payment PaymentProcessor,
	guard idempotency.Guard,
	ttl time.Duration,
	logger *slog.Logger,
) *ConfirmOrderHandler {
	if ttl <= 0 {
		ttl = idempotency.DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfirmOrderHandler{
		baseHandler: baseHandler{
			name:     "confirm_order",
			priority: 15,
			actions:  []string{"confirm_order"},
		},
		inventory: inventory,
		carts:     carts,
		discounts: discounts,
		orders:    orders,
		payment:   payment,
		guard:     guard,
		ttl:       ttl,
		logger:    logger,
	}
}

// Handle implements action.Handler.
func (h *ConfirmOrderHandler) Handle(ctx context.Context, principal string, params action.Params, conv *conversation.Context) action.Result {
	// A late duplicate after the winner already completed the session is
	// answered with the existing confirmation, not an error.
	if conv.Phase() == conversation.PhaseCompleted {
		if id := conv.StateDataString(conversation.KeyLastOrderID); id != "" {
			return action.OK(messaging.Text(principal,
				fmt.Sprintf("Your order %s is already confirmed.", id)))
		}
	}
	if conv.Phase() != conversation.PhasePayment {
		return action.Fail(principal, action.CodeWrongPhase,
			"You're not at the payment step yet. Send proceed_to_payment first.")
	}

	cart, err := h.carts.CartFor(ctx, principal)
	if err != nil {
		return action.Fail(principal, action.CodeInternal,
			"I couldn't open your cart. Please try again.")
	}
	if len(cart.Lines) == 0 {
		return action.Fail(principal, action.CodeCartEmpty,
			"Your cart is empty, there's nothing to confirm.")
	}

	// Step 1: pre-lock re-validation. Stock and discount terms may have
	// changed since the cart was built, and a failed validation must not
	// consume a claim slot.
	if failures := h.revalidateStock(ctx, cart); len(failures) > 0 {
		return stockFailure(principal, failures)
	}
	discount, res := h.revalidateDiscount(ctx, principal, cart)
	if res != nil {
		return *res
	}
	total := cart.TotalCents(discount)

	// Step 2: atomic claim.
	key := idempotency.Key(principal, cart.ID, confirmScope)
	won, err := h.guard.Claim(ctx, key, confirmScope, h.ttl)
	if err != nil {
		h.logger.Error("idempotency claim failed", "principal", principal, "cart", cart.ID, "error", err)
		return action.Fail(principal, action.CodeInternal,
			"I couldn't confirm your order just now. Please try again in a moment.")
	}

	if !won {
		// Step 3: loser path. Read downstream state only; never touch the
		// winner's claim.
		return h.replayExisting(ctx, principal, cart)
	}

	// Step 4: winner path.
	return h.placeOrder(ctx, principal, cart, discount, total, conv)
}

// revalidateStock checks every cart line against current availability and
// collects all mismatches rather than stopping at the first.
func (h *ConfirmOrderHandler) revalidateStock(ctx context.Context, cart *Cart) []*StockError {
	var failures []*StockError
	for _, line := range cart.Lines {
		available, err := h.inventory.Available(ctx, line.ProductID)
		if err != nil {
			failures = append(failures, &StockError{
				ProductID: line.ProductID,
				Name:      line.Name,
				Available: 0,
				Requested: line.Quantity,
			})
			continue
		}
		if available < line.Quantity {
			failures = append(failures, &StockError{
				ProductID: line.ProductID,
				Name:      line.Name,
				Available: available,
				Requested: line.Quantity,
			})
		}
	}
	return failures
}

func stockFailure(principal string, failures []*StockError) action.Result {
	var b strings.Builder
	b.WriteString("I couldn't confirm your order:\n")
	for _, f := range failures {
		fmt.Fprintf(&b, "- %s\n", f.Error())
	}
	b.WriteString("Please adjust your cart and try again.")
	return action.Fail(principal, action.CodeStock, b.String())
}

// revalidateDiscount re-checks an applied code. It returns either the
// discount to apply (possibly nil when no code is set) or a ready failure
// result.
func (h *ConfirmOrderHandler) revalidateDiscount(ctx context.Context, principal string, cart *Cart) (*Discount, *action.Result) {
	if cart.DiscountCode == "" {
		return nil, nil
	}
	discount, err := h.discounts.Validate(ctx, cart.DiscountCode, cart.SubtotalCents())
	if err != nil {
		res := action.Fail(principal, action.CodeDiscount, discountMessage(err))
		return nil, &res
	}
	return discount, nil
}

// replayExisting resolves a lost claim race: return the winner's order if
// it is already visible, otherwise a transient "still processing" reply.
func (h *ConfirmOrderHandler) replayExisting(ctx context.Context, principal string, cart *Cart) action.Result {
	existing, err := h.orders.FindByCartID(ctx, cart.ID)
	if err != nil || existing.Status != OrderConfirmed {
		h.logger.Info("duplicate confirmation while winner in flight",
			"principal", principal, "cart", cart.ID)
		return action.Fail(principal, action.CodeProcessing,
			"I'm already processing that order, one moment please.")
	}
	h.logger.Info("replaying confirmed order for duplicate confirmation",
		"principal", principal, "cart", cart.ID, "order", existing.ID)
	return h.confirmationResult(principal, existing)
}

func (h *ConfirmOrderHandler) placeOrder(ctx context.Context, principal string, cart *Cart, discount *Discount, total int, conv *conversation.Context) action.Result {
	if err := h.inventory.Reserve(ctx, cart.Lines); err != nil {
		// A competing purchase drained stock between validation and
		// reservation. The claim stays in place; its TTL bounds how long
		// the user waits to retry.
		if stockErr, ok := err.(*StockError); ok {
			return stockFailure(principal, []*StockError{stockErr})
		}
		h.logger.Error("stock reservation failed", "principal", principal, "cart", cart.ID, "error", err)
		return action.Fail(principal, action.CodeInternal,
			"I couldn't reserve your items. Please try again shortly.")
	}

	order, err := h.orders.CreateFromCart(ctx, cart, total)
	if err != nil {
		h.logger.Error("order creation failed", "principal", principal, "cart", cart.ID, "error", err)
		return action.Fail(principal, action.CodeInternal,
			"I couldn't create your order. Please try again shortly.")
	}

	if err := h.payment.Charge(ctx, order); err != nil {
		// Roll back the order and the stock reservation, but keep the
		// idempotency record: retries within the TTL window must stay
		// deduplicated, not re-charged.
		if cancelErr := h.orders.Cancel(ctx, order.ID); cancelErr != nil {
			h.logger.Error("order cancellation failed after payment failure",
				"order", order.ID, "error", cancelErr)
		}
		if releaseErr := h.inventory.Release(ctx, cart.Lines); releaseErr != nil {
			h.logger.Error("stock release failed after payment failure",
				"cart", cart.ID, "error", releaseErr)
		}
		h.logger.Warn("payment failed, order cancelled",
			"principal", principal, "order", order.ID, "error", err)
		return action.Fail(principal, action.CodePayment,
			"Your payment didn't go through, so the order wasn't placed. Please check your payment method and try again later.")
	}

	if err := h.orders.Confirm(ctx, order.ID); err != nil {
		h.logger.Error("order confirm flag failed", "order", order.ID, "error", err)
	}
	order.Status = OrderConfirmed
	if discount != nil {
		if err := h.discounts.Consume(ctx, discount.Code); err != nil {
			h.logger.Warn("discount consume failed", "code", discount.Code, "error", err)
		}
	}
	if err := h.carts.Clear(ctx, principal); err != nil {
		h.logger.Warn("cart clear failed", "principal", principal, "error", err)
	}

	h.logger.Info("order confirmed",
		"principal", principal, "cart", cart.ID, "order", order.ID, "total_cents", total)
	return h.confirmationResult(principal, order)
}

// confirmationResult is shared by the winner and the replaying loser so a
// duplicate caller sees the same confirmation as the original.
func (h *ConfirmOrderHandler) confirmationResult(principal string, order *Order) action.Result {
	body := fmt.Sprintf("Order %s confirmed! Total: %s. Thank you for shopping with us.",
		order.ID, formatCents(order.TotalCents))
	return action.OK(messaging.Receipt(principal, body, map[string]any{
		"order_id":    order.ID,
		"cart_id":     order.CartID,
		"total_cents": order.TotalCents,
	})).
		WithPhase(conversation.PhaseCompleted).
		WithPatch(map[string]any{
			conversation.KeyLastOrderID: order.ID,
			conversation.KeySubPhase:    nil,
			conversation.KeyCartID:      nil,
		})
}
