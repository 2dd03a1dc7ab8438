package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	sharedDomain "github.com/tutorhive/tutorhive/internal/shared/domain"
)

var (
	ErrEmptyCouponCode   = errors.New("coupon code cannot be empty")
	ErrInvalidPercentOff = errors.New("percent off must be between 1 and 100")
	ErrCouponExhausted   = errors.New("coupon has no redemptions left")
)

// Coupon is a discount code applied at checkout. An unredeemable coupon
// never blocks a checkout; it is simply ignored for discount purposes.
type Coupon struct {
	sharedDomain.BaseEntity
	code       string
	percentOff int
	active     bool
	expiresAt  *time.Time
	maxUses    int
	usedCount  int
}

// NewCoupon creates an active coupon. maxUses of zero means unlimited.
func NewCoupon(code string, percentOff, maxUses int, expiresAt *time.Time) (*Coupon, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrEmptyCouponCode
	}
	if percentOff < 1 || percentOff > 100 {
		return nil, ErrInvalidPercentOff
	}
	return &Coupon{
		BaseEntity: sharedDomain.NewBaseEntity(),
		code:       code,
		percentOff: percentOff,
		active:     true,
		expiresAt:  expiresAt,
		maxUses:    maxUses,
	}, nil
}

func (c *Coupon) Code() string          { return c.code }
func (c *Coupon) PercentOff() int       { return c.percentOff }
func (c *Coupon) IsActive() bool        { return c.active }
func (c *Coupon) ExpiresAt() *time.Time { return c.expiresAt }
func (c *Coupon) MaxUses() int          { return c.maxUses }
func (c *Coupon) UsedCount() int        { return c.usedCount }

// IsRedeemable reports whether the coupon can currently be applied.
func (c *Coupon) IsRedeemable(now time.Time) bool {
	if !c.active {
		return false
	}
	if c.expiresAt != nil && !now.Before(*c.expiresAt) {
		return false
	}
	if c.maxUses > 0 && c.usedCount >= c.maxUses {
		return false
	}
	return true
}

// Apply discounts an amount in minor units, rounding in the student's favor.
func (c *Coupon) Apply(amount int64) int64 {
	discount := (amount*int64(c.percentOff) + 99) / 100
	return amount - discount
}

// Redeem consumes one use.
func (c *Coupon) Redeem(now time.Time) error {
	if !c.IsRedeemable(now) {
		return ErrCouponExhausted
	}
	c.usedCount++
	c.Touch()
	return nil
}

// Deactivate retires the coupon.
func (c *Coupon) Deactivate() {
	c.active = false
	c.Touch()
}

// RehydrateCoupon recreates a coupon from persisted state.
func RehydrateCoupon(
	id uuid.UUID,
	code string,
	percentOff int,
	active bool,
	expiresAt *time.Time,
	maxUses, usedCount int,
	createdAt, updatedAt time.Time,
) *Coupon {
	return &Coupon{
		BaseEntity: sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		code:       code,
		percentOff: percentOff,
		active:     active,
		expiresAt:  expiresAt,
		maxUses:    maxUses,
		usedCount:  usedCount,
	}
}
