package conversation

// State-data keys form a closed set so that producers and consumers of the
// per-phase scratch map cannot drift apart. Handlers must not invent keys
// outside this list.
const (
	// KeySubPhase holds the fine-grained sub-phase within BROWSING, CART or
	// CHECKOUT. Sub-phases are informational only; the transition table
	// never consults them.
	KeySubPhase = "sub_phase"

	// KeyCartID is the identifier of the cart being built this session.
	KeyCartID = "cart_id"

	// KeyViewedProduct is the product the user is currently looking at.
	KeyViewedProduct = "viewed_product"

	// KeyAddress is the delivery address captured during checkout.
	KeyAddress = "address"

	// KeyLastOrderID is the order created by the most recent confirmation.
	KeyLastOrderID = "last_order_id"
)

// SubPhase values for KeySubPhase.
const (
	SubPhaseViewingProduct  = "viewing_product"
	SubPhaseEnteringAddress = "entering_address"
	SubPhaseChoosingPayment = "choosing_payment"
	SubPhaseAwaitingAgent   = "awaiting_human_agent"
)

// Slot keys. Slots are durable extracted entities that outlive a session
// reset, unlike state data.
const (
	SlotCustomerName     = "customer_name"
	SlotLanguage         = "language"
	SlotPreferredProduct = "preferred_product"
	SlotDeliveryAddress  = "delivery_address"
)
