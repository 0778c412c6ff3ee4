package tools

import "fmt"

// Backends are the domain systems behind the built-in tools.
type Backends struct {
	Inventory *Inventory
	Accounts  *AccountBook
	Carts     *CartStore
	Retriever ContextRetriever
}

// DefaultBackends returns demo backends; Retriever is left for the caller.
func DefaultBackends() Backends {
	return Backends{
		Inventory: DefaultInventory(),
		Accounts:  DefaultAccountBook(),
		Carts:     DefaultCartStore(),
	}
}

// Builtin returns every built-in tool with searchKnowledgeBase bound to
// cartridgeID.
func Builtin(b Backends, cartridgeID string, opts ...Option) (*Registry, error) {
	if b.Inventory == nil || b.Accounts == nil || b.Carts == nil {
		return nil, fmt.Errorf("builtin tools: missing backend")
	}

	decls := []Declaration{
		checkRoomAvailabilityDecl(),
		lookupAccountBalanceDecl(),
		recoverAbandonedCartDecl(),
		searchKnowledgeBaseDecl(),
	}
	impls := map[string]Func{
		CheckRoomAvailability: checkRoomAvailabilityFunc(b.Inventory),
		LookupAccountBalance:  lookupAccountBalanceFunc(b.Accounts),
		RecoverAbandonedCart:  recoverAbandonedCartFunc(b.Carts),
		SearchKnowledgeBase:   searchKnowledgeBaseFunc(b.Retriever, cartridgeID),
	}
	return NewRegistry(decls, impls, opts...)
}

// ForCartridge builds the registry a cartridge session may use.
func ForCartridge(b Backends, cartridgeID string, names []string, opts ...Option) (*Registry, error) {
	all, err := Builtin(b, cartridgeID, opts...)
	if err != nil {
		return nil, err
	}
	return all.Subset(names)
}

// Widget kinds pushed to the UI when a tool runs.
const (
	WidgetHotel  = "hotel"
	WidgetBank   = "bank"
	WidgetRetail = "retail"
)

// WidgetFor maps a tool name to the side panel it drives, or "".
func WidgetFor(toolName string) string {
	switch toolName {
	case CheckRoomAvailability:
		return WidgetHotel
	case LookupAccountBalance:
		return WidgetBank
	case RecoverAbandonedCart:
		return WidgetRetail
	default:
		return ""
	}
}
