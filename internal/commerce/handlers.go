package commerce

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vampirenirmal/convocart/internal/action"
	"github.com/vampirenirmal/convocart/internal/conversation"
	"github.com/vampirenirmal/convocart/internal/messaging"
)

// baseHandler carries the name/priority/supported-actions boilerplate
// shared by all commerce handlers.
type baseHandler struct {
	name     string
	priority int
	actions  []string
}

func (b *baseHandler) Name() string { return b.name }

func (b *baseHandler) Priority() int {
	if b.priority == 0 {
		return action.DefaultPriority
	}
	return b.priority
}

func (b *baseHandler) Supports(name string) bool {
	for _, a := range b.actions {
		if a == name {
			return true
		}
	}
	return false
}

// phaseIfLegal returns a pointer to the target phase when the move is
// legal from the current one, nil otherwise. Handlers use it so a result
// only requests transitions the table can honor.
func phaseIfLegal(conv *conversation.Context, to conversation.Phase) *conversation.Phase {
	if conv.Phase() != to && conv.CanTransitionTo(to) {
		return &to
	}
	return nil
}

func formatCents(cents int) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

// MenuHandler greets the user and shows the main menu. It registers above
// DefaultPriority so it beats any generic handler also claiming the menu
// actions.
type MenuHandler struct {
	baseHandler
	inventory Inventory
}

// NewMenuHandler creates the menu handler.
func NewMenuHandler(inventory Inventory) *MenuHandler {
	return &MenuHandler{
		baseHandler: baseHandler{
			name:     "menu",
			priority: 20,
			actions:  []string{"greet", "show_main_menu"},
		},
		inventory: inventory,
	}
}

// Handle implements action.Handler.
func (h *MenuHandler) Handle(ctx context.Context, principal string, params action.Params, conv *conversation.Context) action.Result {
	greeting := "Welcome!"
	if name, ok := conv.Slot(conversation.SlotCustomerName); ok {
		greeting = fmt.Sprintf("Welcome back, %v!", name)
	}
	body := greeting + " What would you like to do?\n" +
		"1. Browse products\n2. View cart\n3. Checkout"
	res := action.OK(messaging.Menu(principal, body))
	if next := phaseIfLegal(conv, conversation.PhaseBrowsing); next != nil {
		res = res.WithPhase(*next)
	}
	return res
}

// BrowseHandler lists the catalog and shows single products.
type BrowseHandler struct {
	baseHandler
	inventory Inventory
}

// NewBrowseHandler creates the browse handler.
func NewBrowseHandler(inventory Inventory) *BrowseHandler {
	return &BrowseHandler{
		baseHandler: baseHandler{
			name:    "browse",
			actions: []string{"browse_products", "view_product"},
		},
		inventory: inventory,
	}
}

// Handle implements action.Handler.
func (h *BrowseHandler) Handle(ctx context.Context, principal string, params action.Params, conv *conversation.Context) action.Result {
	if params[action.ParamAction] == "view_product" {
		return h.viewProduct(ctx, principal, params, conv)
	}
	return h.listProducts(ctx, principal, conv)
}

func (h *BrowseHandler) listProducts(ctx context.Context, principal string, conv *conversation.Context) action.Result {
	products, err := h.inventory.List(ctx)
	if err != nil {
		return action.Fail(principal, action.CodeInternal,
			"Our catalog is unavailable right now. Please try again shortly.")
	}
	var b strings.Builder
	b.WriteString("Here's what we have:\n")
	for _, p := range products {
		fmt.Fprintf(&b, "- %s: %s (%s, %d in stock)\n", p.ID, p.Name, formatCents(p.PriceCents), p.Stock)
	}
	b.WriteString("Send view_product with a product id for details.")
	res := action.OK(messaging.Text(principal, b.String()))
	if next := phaseIfLegal(conv, conversation.PhaseBrowsing); next != nil {
		res = res.WithPhase(*next)
	}
	return res
}

func (h *BrowseHandler) viewProduct(ctx context.Context, principal string, params action.Params, conv *conversation.Context) action.Result {
	var p viewProductParams
	if err := decodeParams(params, &p); err != nil {
		return action.Fail(principal, action.CodeValidation,
			"Which product would you like to see? Please send a product id.")
	}
	product, err := h.inventory.Product(ctx, p.ProductID)
	if err != nil {
		return action.Fail(principal, action.CodeUnknownProduct,
			fmt.Sprintf("I couldn't find a product with id %s.", p.ProductID))
	}
	conv.SetSlot(conversation.SlotPreferredProduct, product.ID)
	body := fmt.Sprintf("%s\nPrice: %s\nIn stock: %d\nSend add_to_cart to order.",
		product.Name, formatCents(product.PriceCents), product.Stock)
	return action.OK(messaging.Text(principal, body)).WithPatch(map[string]any{
		conversation.KeySubPhase:      conversation.SubPhaseViewingProduct,
		conversation.KeyViewedProduct: product.ID,
	})
}

// CartHandler adds, removes and shows cart lines.
type CartHandler struct {
	baseHandler
	inventory Inventory
	carts     CartService
}

// NewCartHandler creates the cart handler.
func NewCartHandler(inventory Inventory, carts CartService) *CartHandler {
	return &CartHandler{
		baseHandler: baseHandler{
			name:    "cart",
			actions: []string{"add_to_cart", "view_cart", "remove_from_cart"},
		},
		inventory: inventory,
		carts:     carts,
	}
}

// Handle implements action.Handler.
func (h *CartHandler) Handle(ctx context.Context, principal string, params action.Params, conv *conversation.Context) action.Result {
	cart, err := h.carts.CartFor(ctx, principal)
	if err != nil {
		return action.Fail(principal, action.CodeInternal,
			"I couldn't open your cart. Please try again.")
	}

	switch params[action.ParamAction] {
	case "add_to_cart":
		return h.add(ctx, principal, params, cart, conv)
	case "remove_from_cart":
		return h.remove(ctx, principal, params, cart)
	default:
		return h.view(principal, cart)
	}
}

func (h *CartHandler) add(ctx context.Context, principal string, params action.Params, cart *Cart, conv *conversation.Context) action.Result {
	var p addToCartParams
	if err := decodeParams(params, &p); err != nil {
		return action.Fail(principal, action.CodeValidation,
			"To add something, tell me the product id and a quantity of at least 1.")
	}
	product, err := h.inventory.Product(ctx, p.ProductID)
	if err != nil {
		return action.Fail(principal, action.CodeUnknownProduct,
			fmt.Sprintf("I couldn't find a product with id %s.", p.ProductID))
	}
	// Informational check only; the authoritative check happens again at
	// confirmation time.
	if product.Stock < p.Quantity {
		stockErr := &StockError{
			ProductID: product.ID,
			Name:      product.Name,
			Available: product.Stock,
			Requested: p.Quantity,
		}
		return action.Fail(principal, action.CodeStock, stockErr.Error()+".")
	}
	cart.AddLine(product, p.Quantity)
	if err := h.carts.Save(ctx, cart); err != nil {
		return action.Fail(principal, action.CodeInternal,
			"I couldn't update your cart. Please try again.")
	}
	body := fmt.Sprintf("Added %d x %s. Cart total: %s.",
		p.Quantity, product.Name, formatCents(cart.SubtotalCents()))
	res := action.OK(messaging.Text(principal, body)).WithPatch(map[string]any{
		conversation.KeyCartID: cart.ID,
	})
	if next := phaseIfLegal(conv, conversation.PhaseCart); next != nil {
		res = res.WithPhase(*next)
	}
	return res
}

func (h *CartHandler) remove(ctx context.Context, principal string, params action.Params, cart *Cart) action.Result {
	var p removeFromCartParams
	if err := decodeParams(params, &p); err != nil {
		return action.Fail(principal, action.CodeValidation,
			"Which product should I remove? Please send its product id.")
	}
	if !cart.RemoveLine(p.ProductID) {
		return action.Fail(principal, action.CodeUnknownProduct,
			fmt.Sprintf("%s isn't in your cart.", p.ProductID))
	}
	if err := h.carts.Save(ctx, cart); err != nil {
		return action.Fail(principal, action.CodeInternal,
			"I couldn't update your cart. Please try again.")
	}
	return action.OK(messaging.Text(principal,
		fmt.Sprintf("Removed. Cart total: %s.", formatCents(cart.SubtotalCents()))))
}

func (h *CartHandler) view(principal string, cart *Cart) action.Result {
	if len(cart.Lines) == 0 {
		return action.OK(messaging.Text(principal, "Your cart is empty."))
	}
	var b strings.Builder
	b.WriteString("Your cart:\n")
	for _, l := range cart.Lines {
		fmt.Fprintf(&b, "- %d x %s (%s each)\n", l.Quantity, l.Name, formatCents(l.UnitPriceCents))
	}
	fmt.Fprintf(&b, "Subtotal: %s", formatCents(cart.SubtotalCents()))
	return action.OK(messaging.Text(principal, b.String()))
}

// DiscountHandler applies a discount code to the open cart.
type DiscountHandler struct {
	baseHandler
	discounts DiscountService
	carts     CartService
}

// NewDiscountHandler creates the discount handler.
func NewDiscountHandler(discounts DiscountService, carts CartService) *DiscountHandler {
	return &DiscountHandler{
		baseHandler: baseHandler{
			name:    "discount",
			actions: []string{"apply_discount"},
		},
		discounts: discounts,
		carts:     carts,
	}
}

// Handle implements action.Handler.
func (h *DiscountHandler) Handle(ctx context.Context, principal string, params action.Params, conv *conversation.Context) action.Result {
	var p applyDiscountParams
	if err := decodeParams(params, &p); err != nil {
		return action.Fail(principal, action.CodeValidation,
			"Please send a discount code (letters and numbers only).")
	}
	cart, err := h.carts.CartFor(ctx, principal)
	if err != nil {
		return action.Fail(principal, action.CodeInternal,
			"I couldn't open your cart. Please try again.")
	}
	discount, err := h.discounts.Validate(ctx, p.Code, cart.SubtotalCents())
	if err != nil {
		return action.Fail(principal, action.CodeDiscount, discountMessage(err))
	}
	cart.DiscountCode = discount.Code
	if err := h.carts.Save(ctx, cart); err != nil {
		return action.Fail(principal, action.CodeInternal,
			"I couldn't update your cart. Please try again.")
	}
	return action.OK(messaging.Text(principal,
		fmt.Sprintf("Code %s applied (%d%% off). New total: %s.",
			discount.Code, discount.PercentOff, formatCents(cart.TotalCents(discount)))))
}

// discountMessage renders a discount validation error as user-facing copy.
func discountMessage(err error) string {
	var derr *DiscountError
	if !errors.As(err, &derr) {
		return "That discount code can't be applied right now."
	}
	switch derr.Reason {
	case ErrDiscountNotFound:
		return fmt.Sprintf("I don't recognize the code %s.", derr.Code)
	case ErrDiscountExpired:
		return fmt.Sprintf("Sorry, the coupon %s has expired.", derr.Code)
	case ErrDiscountExhausted:
		return fmt.Sprintf("The code %s has reached its usage limit.", derr.Code)
	case ErrDiscountBelowMin:
		return fmt.Sprintf("Your cart total is below the minimum spend for %s.", derr.Code)
	case ErrDiscountAboveMax:
		return fmt.Sprintf("Your cart total is above the maximum spend for %s.", derr.Code)
	default:
		return "That discount code can't be applied right now."
	}
}

// CheckoutHandler walks the user from cart to the payment step.
type CheckoutHandler struct {
	baseHandler
	carts CartService
}

// NewCheckoutHandler creates the checkout handler.
func NewCheckoutHandler(carts CartService) *CheckoutHandler {
	return &CheckoutHandler{
		baseHandler: baseHandler{
			name:    "checkout",
			actions: []string{"begin_checkout", "set_address", "proceed_to_payment"},
		},
		carts: carts,
	}
}

// Handle implements action.Handler.
func (h *CheckoutHandler) Handle(ctx context.Context, principal string, params action.Params, conv *conversation.Context) action.Result {
	switch params[action.ParamAction] {
	case "set_address":
		return h.setAddress(principal, params, conv)
	case "proceed_to_payment":
		return h.proceed(principal, conv)
	default:
		return h.begin(ctx, principal, conv)
	}
}

func (h *CheckoutHandler) begin(ctx context.Context, principal string, conv *conversation.Context) action.Result {
	cart, err := h.carts.CartFor(ctx, principal)
	if err != nil {
		return action.Fail(principal, action.CodeInternal,
			"I couldn't open your cart. Please try again.")
	}
	if len(cart.Lines) == 0 {
		return action.Fail(principal, action.CodeCartEmpty,
			"Your cart is empty. Add something before checking out.")
	}
	res := action.OK(messaging.Text(principal,
		"Let's check out. What's your delivery address?")).
		WithPatch(map[string]any{
			conversation.KeySubPhase: conversation.SubPhaseEnteringAddress,
		})
	if next := phaseIfLegal(conv, conversation.PhaseCheckout); next != nil {
		res = res.WithPhase(*next)
	}
	return res
}

func (h *CheckoutHandler) setAddress(principal string, params action.Params, conv *conversation.Context) action.Result {
	var p setAddressParams
	if err := decodeParams(params, &p); err != nil {
		return action.Fail(principal, action.CodeValidation,
			"That address looks too short. Please send your full delivery address.")
	}
	conv.SetSlot(conversation.SlotDeliveryAddress, p.Address)
	return action.OK(messaging.Text(principal,
		"Address saved. Send proceed_to_payment when you're ready.")).
		WithPatch(map[string]any{
			conversation.KeyAddress:  p.Address,
			conversation.KeySubPhase: conversation.SubPhaseChoosingPayment,
		})
}

func (h *CheckoutHandler) proceed(principal string, conv *conversation.Context) action.Result {
	if conv.StateDataString(conversation.KeyAddress) == "" {
		return action.Fail(principal, action.CodeValidation,
			"I need a delivery address first. Please send set_address with your address.")
	}
	res := action.OK(messaging.Text(principal,
		"Almost there. Send confirm_order to place your order."))
	if next := phaseIfLegal(conv, conversation.PhasePayment); next != nil {
		res = res.WithPhase(*next)
	}
	return res
}

// AbandonHandler cancels the current flow.
type AbandonHandler struct {
	baseHandler
	carts CartService
}

// NewAbandonHandler creates the abandon handler.
func NewAbandonHandler(carts CartService) *AbandonHandler {
	return &AbandonHandler{
		baseHandler: baseHandler{
			name:    "abandon",
			actions: []string{"cancel", "abandon"},
		},
		carts: carts,
	}
}

// Handle implements action.Handler.
func (h *AbandonHandler) Handle(ctx context.Context, principal string, params action.Params, conv *conversation.Context) action.Result {
	_ = h.carts.Clear(ctx, principal)
	res := action.OK(messaging.Text(principal,
		"No problem, I've cancelled that. Say hi whenever you want to start again."))
	if next := phaseIfLegal(conv, conversation.PhaseAbandoned); next != nil {
		res = res.WithPhase(*next)
	}
	return res
}

// FallbackHandler catches any action nothing else claimed. It registers in
// the fallback tier (below DefaultPriority) so every specialized handler
// outranks it; only one handler ever runs regardless.
type FallbackHandler struct {
	baseHandler
}

// NewFallbackHandler creates the fallback handler.
func NewFallbackHandler() *FallbackHandler {
	return &FallbackHandler{
		baseHandler: baseHandler{name: "fallback", priority: 5},
	}
}

// Supports implements action.Handler: the fallback claims every action.
func (h *FallbackHandler) Supports(name string) bool { return true }

// Handle implements action.Handler.
func (h *FallbackHandler) Handle(ctx context.Context, principal string, params action.Params, conv *conversation.Context) action.Result {
	return action.OK(messaging.Text(principal,
		"I didn't quite get that. Send show_main_menu to see what I can do."))
}
