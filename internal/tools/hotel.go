package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// CheckRoomAvailability is the hotel availability tool name.
const CheckRoomAvailability = "checkRoomAvailability"

// Inventory holds nightly rates per room type and booked nights.
type Inventory struct {
	mu     sync.RWMutex
	rates  map[string]float64
	booked map[string]map[string]bool // date -> room type
}

// NewInventory creates an inventory with the given nightly rates.
func NewInventory(rates map[string]float64) *Inventory {
	inv := &Inventory{
		rates:  make(map[string]float64, len(rates)),
		booked: make(map[string]map[string]bool),
	}
	for k, v := range rates {
		inv.rates[strings.ToLower(k)] = v
	}
	return inv
}

// DefaultInventory has standard, deluxe and suite rooms, nothing booked.
func DefaultInventory() *Inventory {
	return NewInventory(map[string]float64{
		"standard": 250,
		"deluxe":   420,
		"suite":    690,
	})
}

// Book marks a room type as taken for date (YYYY-MM-DD).
func (inv *Inventory) Book(date, roomType string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	day, ok := inv.booked[date]
	if !ok {
		day = make(map[string]bool)
		inv.booked[date] = day
	}
	day[strings.ToLower(roomType)] = true
}

// Availability is the result of checkRoomAvailability.
type Availability struct {
	Available bool     `json:"available"`
	Price     *float64 `json:"price"`
	Message   string   `json:"message"`
}

// Check reports whether roomType is free on date.
func (inv *Inventory) Check(date, roomType string) (Availability, error) {
	day, err := parseDate(date)
	if err != nil {
		return Availability{}, err
	}
	roomType = strings.ToLower(roomType)

	inv.mu.RLock()
	defer inv.mu.RUnlock()

	rate, ok := inv.rates[roomType]
	if !ok {
		return Availability{}, fmt.Errorf("unknown room type %q", roomType)
	}
	if inv.booked[day][roomType] {
		return Availability{
			Available: false,
			Message:   fmt.Sprintf("Unfortunately we are fully booked for %s rooms on %s.", roomType, day),
		}, nil
	}
	return Availability{
		Available: true,
		Price:     &rate,
		Message:   fmt.Sprintf("%s rooms are available on %s.", titleCase(roomType), day),
	}, nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339 and normalizes to YYYY-MM-DD.
func parseDate(s string) (string, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.Format(time.DateOnly), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format(time.DateOnly), nil
	}
	return "", fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func checkRoomAvailabilityDecl() Declaration {
	return Declaration{
		Name:        CheckRoomAvailability,
		Description: "Checks hotel room availability for a specific date.",
		Parameters: object("Availability query", []string{"date", "roomType"}, map[string]*Schema{
			"date":     str("Reservation date (ISO format)"),
			"roomType": str("Room type (e.g. suite, standard, deluxe)"),
		}),
	}
}

func checkRoomAvailabilityFunc(inv *Inventory) Func {
	return func(_ context.Context, args map[string]any) (any, error) {
		date, err := stringArg(args, "date")
		if err != nil {
			return nil, err
		}
		roomType, err := stringArg(args, "roomType")
		if err != nil {
			return nil, err
		}
		return inv.Check(date, roomType)
	}
}
