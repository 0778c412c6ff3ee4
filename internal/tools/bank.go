package tools

import (
	"context"
	"fmt"
	"sync"
)

// LookupAccountBalance is the banking balance tool name.
const LookupAccountBalance = "lookupAccountBalance"

// Account is one bank account known to the AccountBook.
type Account struct {
	Balance         float64
	LastTransaction string
}

// AccountBook is an in-memory set of verified accounts.
type AccountBook struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// NewAccountBook creates a book from accounts.
func NewAccountBook(accounts map[string]Account) *AccountBook {
	b := &AccountBook{accounts: make(map[string]Account, len(accounts))}
	for id, a := range accounts {
		b.accounts[id] = a
	}
	return b
}

// DefaultAccountBook holds one demo account.
func DefaultAccountBook() *AccountBook {
	return NewAccountBook(map[string]Account{
		"12345-6": {Balance: 8420.57, LastTransaction: "PIX transfer received (R$ 450,00)"},
	})
}

// Set creates or replaces an account.
func (b *AccountBook) Set(id string, a Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[id] = a
}

// Balance is the result of lookupAccountBalance.
type Balance struct {
	Balance         string `json:"balance"`
	Currency        string `json:"currency"`
	Status          string `json:"status"`
	LastTransaction string `json:"lastTransaction"`
}

// Lookup returns the balance of accountID.
func (b *AccountBook) Lookup(accountID string) (Balance, error) {
	b.mu.RLock()
	a, ok := b.accounts[accountID]
	b.mu.RUnlock()
	if !ok {
		return Balance{}, fmt.Errorf("account %s not found", accountID)
	}
	return Balance{
		Balance:         fmt.Sprintf("%.2f", a.Balance),
		Currency:        "BRL",
		Status:          "Verified",
		LastTransaction: a.LastTransaction,
	}, nil
}

func lookupAccountBalanceDecl() Declaration {
	return Declaration{
		Name:        LookupAccountBalance,
		Description: "Looks up the current balance of an authenticated bank account.",
		Parameters: object("Balance query", []string{"accountId"}, map[string]*Schema{
			"accountId": str("Unique bank account identifier"),
		}),
	}
}

func lookupAccountBalanceFunc(book *AccountBook) Func {
	return func(_ context.Context, args map[string]any) (any, error) {
		id, err := stringArg(args, "accountId")
		if err != nil {
			return nil, err
		}
		return book.Lookup(id)
	}
}
