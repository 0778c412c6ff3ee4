package tools

import (
	"context"
	"strings"
	"sync"
)

// RecoverAbandonedCart is the retail cart recovery tool name.
const RecoverAbandonedCart = "recoverAbandonedCart"

// recoveryDiscount is offered on every recovered cart.
const recoveryDiscount = "OFF15"

// Cart is an abandoned shopping cart.
type Cart struct {
	Items      []string
	TotalValue float64
}

// CartStore holds abandoned carts by customer email.
type CartStore struct {
	mu    sync.RWMutex
	carts map[string]Cart
}

// NewCartStore creates a store from carts keyed by email.
func NewCartStore(carts map[string]Cart) *CartStore {
	s := &CartStore{carts: make(map[string]Cart, len(carts))}
	for email, c := range carts {
		s.carts[strings.ToLower(email)] = c
	}
	return s
}

// DefaultCartStore holds one demo cart.
func DefaultCartStore() *CartStore {
	return NewCartStore(map[string]Cart{
		"cliente@example.com": {Items: []string{"Smartphone Ultra Z", "Protective Case"}, TotalValue: 3499.00},
	})
}

// Put stores an abandoned cart.
func (s *CartStore) Put(email string, c Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[strings.ToLower(email)] = c
}

// Recovery is the result of recoverAbandonedCart.
type Recovery struct {
	Found        bool     `json:"found"`
	Items        []string `json:"items"`
	DiscountCode string   `json:"discountCode,omitempty"`
	TotalValue   float64  `json:"totalValue"`
}

// Recover looks up the cart for email.
func (s *CartStore) Recover(email string) Recovery {
	s.mu.RLock()
	c, ok := s.carts[strings.ToLower(email)]
	s.mu.RUnlock()
	if !ok {
		return Recovery{Found: false, Items: []string{}}
	}
	return Recovery{
		Found:        true,
		Items:        append([]string(nil), c.Items...),
		DiscountCode: recoveryDiscount,
		TotalValue:   c.TotalValue,
	}
}

func recoverAbandonedCartDecl() Declaration {
	return Declaration{
		Name:        RecoverAbandonedCart,
		Description: "Recovers the items of an abandoned shopping cart by customer email.",
		Parameters: object("Cart lookup", []string{"email"}, map[string]*Schema{
			"email": str("Customer email"),
		}),
	}
}

func recoverAbandonedCartFunc(store *CartStore) Func {
	return func(_ context.Context, args map[string]any) (any, error) {
		email, err := stringArg(args, "email")
		if err != nil {
			return nil, err
		}
		return store.Recover(email), nil
	}
}
