package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ValueObject represents an immutable domain concept defined by its attributes.
type ValueObject interface {
	Equals(other ValueObject) bool
}

var (
	ErrNegativeAmount  = errors.New("amount cannot be negative")
	ErrInvalidCurrency = errors.New("currency must be a three-letter ISO code")
)

// Money represents a monetary amount in minor currency units (cents).
// Amounts are kept in minor units end to end so that no floating-point
// arithmetic ever touches a price.
type Money struct {
	amount   int64
	currency string
}

// NewMoney creates a Money value from minor units and an ISO currency code.
func NewMoney(amount int64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, ErrNegativeAmount
	}
	currency = strings.ToLower(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return Money{}, ErrInvalidCurrency
	}
	return Money{amount: amount, currency: currency}, nil
}

// RehydrateMoney recreates a Money value from persisted state without validation.
func RehydrateMoney(amount int64, currency string) Money {
	return Money{amount: amount, currency: currency}
}

// Amount returns the amount in minor currency units.
func (m Money) Amount() int64 { return m.amount }

// Currency returns the lowercase ISO currency code.
func (m Money) Currency() string { return m.currency }

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.amount == 0 }

// String renders the amount for logging, e.g. "1500 usd".
func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.amount, m.currency)
}

// Equals checks if two Money values are equal.
func (m Money) Equals(other ValueObject) bool {
	if o, ok := other.(Money); ok {
		return m.amount == o.amount && m.currency == o.currency
	}
	return false
}
