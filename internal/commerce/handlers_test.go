package commerce_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/vampirenirmal/convocart/internal/action"
	"github.com/vampirenirmal/convocart/internal/commerce"
	"github.com/vampirenirmal/convocart/internal/conversation"
)

// withAction builds the params map the way the registry delivers it, with
// the dispatched action name injected.
func withAction(name string, params action.Params) action.Params {
	out := action.Params{action.ParamAction: name}
	for k, v := range params {
		out[k] = v
	}
	return out
}

func TestMenuHandlerGreetsByName(t *testing.T) {
	f := newConfirmFixture()
	h := commerce.NewMenuHandler(f.inventory)

	conv := conversation.NewContext(testPrincipal)
	conv.SetSlot(conversation.SlotCustomerName, "Ada")

	res := h.Handle(context.Background(), testPrincipal, withAction("greet", nil), conv)

	if !res.Success {
		t.Fatalf("greet failed: %+v", res.Err)
	}
	if !strings.Contains(res.Messages[0].Body, "Welcome back, Ada") {
		t.Errorf("greeting should use the stored name, got %q", res.Messages[0].Body)
	}
	if res.NextPhase == nil || *res.NextPhase != conversation.PhaseBrowsing {
		t.Error("greeting from INITIAL should move to BROWSING")
	}
}

func TestMenuHandlerAnonymousGreeting(t *testing.T) {
	f := newConfirmFixture()
	h := commerce.NewMenuHandler(f.inventory)

	res := h.Handle(context.Background(), testPrincipal,
		withAction("greet", nil), conversation.NewContext(testPrincipal))

	if !strings.HasPrefix(res.Messages[0].Body, "Welcome!") {
		t.Errorf("anonymous greeting = %q", res.Messages[0].Body)
	}
}

func TestBrowseHandlerViewProductSetsSlotAndSubPhase(t *testing.T) {
	f := newConfirmFixture()
	h := commerce.NewBrowseHandler(f.inventory)

	conv := conversation.NewContext(testPrincipal)
	if err := conv.TransitionTo(conversation.PhaseBrowsing); err != nil {
		t.Fatal(err)
	}

	res := h.Handle(context.Background(), testPrincipal,
		withAction("view_product", action.Params{"product_id": "sku-espresso"}), conv)

	if !res.Success {
		t.Fatalf("view_product failed: %+v", res.Err)
	}
	if got, ok := conv.Slot(conversation.SlotPreferredProduct); !ok || got != "sku-espresso" {
		t.Errorf("preferred product slot = %v", got)
	}
	if res.ContextPatch[conversation.KeySubPhase] != conversation.SubPhaseViewingProduct {
		t.Errorf("patch sub-phase = %v", res.ContextPatch[conversation.KeySubPhase])
	}
}

func TestBrowseHandlerUnknownProduct(t *testing.T) {
	f := newConfirmFixture()
	h := commerce.NewBrowseHandler(f.inventory)

	res := h.Handle(context.Background(), testPrincipal,
		withAction("view_product", action.Params{"product_id": "sku-nope"}),
		conversation.NewContext(testPrincipal))

	if res.Success {
		t.Fatal("unknown product must fail")
	}
	if res.Err.Code != action.CodeUnknownProduct {
		t.Errorf("code = %s, want %s", res.Err.Code, action.CodeUnknownProduct)
	}
}

func TestCartHandlerAddValidation(t *testing.T) {
	f := newConfirmFixture()
	h := commerce.NewCartHandler(f.inventory, f.carts)
	conv := conversation.NewContext(testPrincipal)

	cases := []struct {
		name   string
		params action.Params
	}{
		{"missing product", action.Params{"quantity": 1}},
		{"zero quantity", action.Params{"product_id": "sku-espresso", "quantity": 0}},
		{"excessive quantity", action.Params{"product_id": "sku-espresso", "quantity": 100}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := h.Handle(context.Background(), testPrincipal,
				withAction("add_to_cart", tc.params), conv)
			if res.Success {
				t.Fatal("invalid params must fail")
			}
			if res.Err.Code != action.CodeValidation {
				t.Errorf("code = %s, want %s", res.Err.Code, action.CodeValidation)
			}
		})
	}
}

func TestCartHandlerAddAndView(t *testing.T) {
	f := newConfirmFixture()
	h := commerce.NewCartHandler(f.inventory, f.carts)

	conv := conversation.NewContext(testPrincipal)
	if err := conv.TransitionTo(conversation.PhaseBrowsing); err != nil {
		t.Fatal(err)
	}

	res := h.Handle(context.Background(), testPrincipal,
		withAction("add_to_cart", action.Params{"product_id": "sku-espresso", "quantity": 2}), conv)
	if !res.Success {
		t.Fatalf("add failed: %+v", res.Err)
	}
	if res.NextPhase == nil || *res.NextPhase != conversation.PhaseCart {
		t.Error("adding from BROWSING should move to CART")
	}
	if res.ContextPatch[conversation.KeyCartID] == nil {
		t.Error("add should patch the cart id into state data")
	}

	view := h.Handle(context.Background(), testPrincipal, withAction("view_cart", nil), conv)
	if !strings.Contains(view.Messages[0].Body, "2 x Espresso Beans 1kg") {
		t.Errorf("cart view = %q", view.Messages[0].Body)
	}
	if !strings.Contains(view.Messages[0].Body, "$37.00") {
		t.Errorf("cart subtotal missing: %q", view.Messages[0].Body)
	}
}

func TestCartHandlerAddBeyondStock(t *testing.T) {
	f := newConfirmFixture()
	h := commerce.NewCartHandler(f.inventory, f.carts)

	res := h.Handle(context.Background(), testPrincipal,
		withAction("add_to_cart", action.Params{"product_id": "sku-grinder", "quantity": 9}),
		conversation.NewContext(testPrincipal))

	if res.Success {
		t.Fatal("adding beyond stock must fail")
	}
	if res.Err.Code != action.CodeStock {
		t.Errorf("code = %s, want %s", res.Err.Code, action.CodeStock)
	}
	if !strings.Contains(res.Messages[0].Body, "3 available") {
		t.Errorf("message = %q", res.Messages[0].Body)
	}
}

func TestDiscountHandlerAppliesCode(t *testing.T) {
	f := newConfirmFixture()
	f.discounts = commerce.NewMemoryDiscounts(commerce.Discount{
		Code:       "WELCOME10",
		PercentOff: 10,
		ExpiresAt:  time.Now().Add(24 * time.Hour),
	})
	f.fillCart(t, "sku-grinder", 1)
	h := commerce.NewDiscountHandler(f.discounts, f.carts)

	res := h.Handle(context.Background(), testPrincipal,
		withAction("apply_discount", action.Params{"code": "WELCOME10"}),
		conversation.NewContext(testPrincipal))

	if !res.Success {
		t.Fatalf("apply failed: %+v", res.Err)
	}
	if !strings.Contains(res.Messages[0].Body, "10% off") {
		t.Errorf("message = %q", res.Messages[0].Body)
	}
	// 6500 - 10% = 5850
	if !strings.Contains(res.Messages[0].Body, "$58.50") {
		t.Errorf("discounted total missing: %q", res.Messages[0].Body)
	}

	cart, err := f.carts.CartFor(context.Background(), testPrincipal)
	if err != nil {
		t.Fatal(err)
	}
	if cart.DiscountCode != "WELCOME10" {
		t.Errorf("cart discount code = %q", cart.DiscountCode)
	}
}

func TestDiscountHandlerUnknownCode(t *testing.T) {
	f := newConfirmFixture()
	f.fillCart(t, "sku-espresso", 1)
	h := commerce.NewDiscountHandler(f.discounts, f.carts)

	res := h.Handle(context.Background(), testPrincipal,
		withAction("apply_discount", action.Params{"code": "NOPE123"}),
		conversation.NewContext(testPrincipal))

	if res.Success {
		t.Fatal("unknown code must fail")
	}
	if res.Err.Code != action.CodeDiscount {
		t.Errorf("code = %s, want %s", res.Err.Code, action.CodeDiscount)
	}
	if !strings.Contains(res.Messages[0].Body, "NOPE123") {
		t.Errorf("message should name the code: %q", res.Messages[0].Body)
	}
}

func TestCheckoutFlow(t *testing.T) {
	f := newConfirmFixture()
	f.fillCart(t, "sku-espresso", 1)
	h := commerce.NewCheckoutHandler(f.carts)

	conv := conversation.NewContext(testPrincipal)
	for _, p := range []conversation.Phase{conversation.PhaseBrowsing, conversation.PhaseCart} {
		if err := conv.TransitionTo(p); err != nil {
			t.Fatal(err)
		}
	}

	begin := h.Handle(context.Background(), testPrincipal, withAction("begin_checkout", nil), conv)
	if !begin.Success {
		t.Fatalf("begin_checkout failed: %+v", begin.Err)
	}
	if begin.NextPhase == nil || *begin.NextPhase != conversation.PhaseCheckout {
		t.Error("begin_checkout should move to CHECKOUT")
	}
	if err := conv.TransitionTo(conversation.PhaseCheckout); err != nil {
		t.Fatal(err)
	}
	conv.MergeStateData(begin.ContextPatch)

	// Payment before an address is rejected.
	early := h.Handle(context.Background(), testPrincipal, withAction("proceed_to_payment", nil), conv)
	if early.Success {
		t.Fatal("proceed without an address must fail")
	}
	if early.Err.Code != action.CodeValidation {
		t.Errorf("code = %s, want %s", early.Err.Code, action.CodeValidation)
	}

	addr := h.Handle(context.Background(), testPrincipal,
		withAction("set_address", action.Params{"address": "12 Baker Street, London"}), conv)
	if !addr.Success {
		t.Fatalf("set_address failed: %+v", addr.Err)
	}
	conv.MergeStateData(addr.ContextPatch)
	if got, ok := conv.Slot(conversation.SlotDeliveryAddress); !ok || got != "12 Baker Street, London" {
		t.Errorf("delivery address slot = %v", got)
	}

	proceed := h.Handle(context.Background(), testPrincipal, withAction("proceed_to_payment", nil), conv)
	if !proceed.Success {
		t.Fatalf("proceed_to_payment failed: %+v", proceed.Err)
	}
	if proceed.NextPhase == nil || *proceed.NextPhase != conversation.PhasePayment {
		t.Error("proceed_to_payment should move to PAYMENT")
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newConfirmFixture()
	h := commerce.NewCheckoutHandler(f.carts)

	res := h.Handle(context.Background(), testPrincipal,
		withAction("begin_checkout", nil), conversation.NewContext(testPrincipal))

	if res.Success {
		t.Fatal("checkout with an empty cart must fail")
	}
	if res.Err.Code != action.CodeCartEmpty {
		t.Errorf("code = %s, want %s", res.Err.Code, action.CodeCartEmpty)
	}
}

func TestAbandonClearsCart(t *testing.T) {
	f := newConfirmFixture()
	filled := f.fillCart(t, "sku-espresso", 2)
	h := commerce.NewAbandonHandler(f.carts)

	conv := conversation.NewContext(testPrincipal)
	for _, p := range []conversation.Phase{conversation.PhaseBrowsing, conversation.PhaseCart} {
		if err := conv.TransitionTo(p); err != nil {
			t.Fatal(err)
		}
	}

	res := h.Handle(context.Background(), testPrincipal, withAction("cancel", nil), conv)
	if !res.Success {
		t.Fatalf("cancel failed: %+v", res.Err)
	}
	if res.NextPhase == nil || *res.NextPhase != conversation.PhaseAbandoned {
		t.Error("cancel should move to ABANDONED")
	}

	cart, err := f.carts.CartFor(context.Background(), testPrincipal)
	if err != nil {
		t.Fatal(err)
	}
	if cart.ID == filled.ID || len(cart.Lines) != 0 {
		t.Error("cancel should have dropped the old cart")
	}
}

func TestFallbackHandlerClaimsEverything(t *testing.T) {
	h := commerce.NewFallbackHandler()

	if !h.Supports("definitely_not_an_action") {
		t.Fatal("fallback must support any action")
	}
	if h.Priority() >= action.DefaultPriority {
		t.Errorf("fallback priority = %d, must sit below the default tier", h.Priority())
	}

	res := h.Handle(context.Background(), testPrincipal,
		withAction("definitely_not_an_action", nil), conversation.NewContext(testPrincipal))
	if !res.Success {
		t.Fatal("fallback reply should be a successful result")
	}
	if !strings.Contains(res.Messages[0].Body, "show_main_menu") {
		t.Errorf("fallback should point at the menu: %q", res.Messages[0].Body)
	}
}
