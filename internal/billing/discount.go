package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// DiscountKind tags the variant of a Promocode.
type DiscountKind string

const (
	DiscountPercentage     DiscountKind = "percentage"
	DiscountFixedAmount    DiscountKind = "fixed_amount"
	DiscountRecurringOffer DiscountKind = "recurring_offer"
	DiscountItem           DiscountKind = "item_discount"
)

// Component names a part of the bill a discount may target.
type Component string

const (
	ComponentTime   Component = "time"
	ComponentOrders Component = "orders"
)

// ItemMode controls how an item discount changes the targeted order lines.
type ItemMode string

const (
	ItemFree        ItemMode = "free"
	ItemPercentage  ItemMode = "percentage"
	ItemFixedAmount ItemMode = "fixed_amount"
)

// PromoStatus is the administrative state of a promocode.
type PromoStatus string

const (
	PromoActive   PromoStatus = "active"
	PromoInactive PromoStatus = "inactive"
	PromoExpired  PromoStatus = "expired"
)

// Promocode is a named discount rule. Which fields matter depends on Kind:
// Percentage and FixedAmount use Value and AppliesTo, RecurringOffer uses PayHours and
// FreeHours, ItemDiscount uses TargetProductID, ItemMode and Value.
// A zero ValidFrom or ValidUntil leaves that side of the window open.
type Promocode struct {
	Code            string          `json:"code"`
	Kind            DiscountKind    `json:"kind"`
	Value           decimal.Decimal `json:"value"`
	AppliesTo       []Component     `json:"applies_to,omitempty"`
	PayHours        int             `json:"pay_hours,omitempty"`
	FreeHours       int             `json:"free_hours,omitempty"`
	TargetProductID string          `json:"target_product_id,omitempty"`
	ItemMode        ItemMode        `json:"item_mode,omitempty"`
	Status          PromoStatus     `json:"status"`
	ValidFrom       time.Time       `json:"valid_from"`
	ValidUntil      time.Time       `json:"valid_until"`
}

// Validate checks that the code may be applied at now.
func (p Promocode) Validate(now time.Time) error {
	if p.Status != PromoActive {
		return fmt.Errorf("promocode %q is %s: %w", p.Code, p.Status, ErrPromocodeInvalid)
	}
	if !p.ValidFrom.IsZero() && now.Before(p.ValidFrom) {
		return fmt.Errorf("promocode %q is not valid before %s: %w", p.Code, p.ValidFrom.Format(time.RFC3339), ErrPromocodeInvalid)
	}
	if !p.ValidUntil.IsZero() && now.After(p.ValidUntil) {
		return fmt.Errorf("promocode %q expired at %s: %w", p.Code, p.ValidUntil.Format(time.RFC3339), ErrPromocodeInvalid)
	}

	switch p.Kind {
	case DiscountPercentage:
		if p.Value.IsNegative() || p.Value.GreaterThan(hundred) {
			return fmt.Errorf("promocode %q has percentage %s outside 0-100: %w", p.Code, p.Value, ErrPromocodeInvalid)
		}
	case DiscountFixedAmount:
		if p.Value.IsNegative() {
			return fmt.Errorf("promocode %q has a negative amount: %w", p.Code, ErrPromocodeInvalid)
		}
	case DiscountRecurringOffer:
		if p.PayHours <= 0 || p.FreeHours <= 0 {
			return fmt.Errorf("promocode %q needs positive pay and free hours: %w", p.Code, ErrPromocodeInvalid)
		}
	case DiscountItem:
		if p.TargetProductID == "" {
			return fmt.Errorf("promocode %q has no target product: %w", p.Code, ErrPromocodeInvalid)
		}
		switch p.ItemMode {
		case ItemFree:
		case ItemPercentage:
			if p.Value.IsNegative() || p.Value.GreaterThan(hundred) {
				return fmt.Errorf("promocode %q has percentage %s outside 0-100: %w", p.Code, p.Value, ErrPromocodeInvalid)
			}
		case ItemFixedAmount:
			if p.Value.IsNegative() {
				return fmt.Errorf("promocode %q has a negative amount: %w", p.Code, ErrPromocodeInvalid)
			}
		default:
			return fmt.Errorf("promocode %q has unknown item mode %q: %w", p.Code, p.ItemMode, ErrPromocodeInvalid)
		}
	default:
		return fmt.Errorf("promocode %q has unknown kind %q: %w", p.Code, p.Kind, ErrPromocodeInvalid)
	}
	return nil
}

func (p Promocode) targets(c Component) bool {
	if len(p.AppliesTo) == 0 {
		return true
	}
	for _, target := range p.AppliesTo {
		if target == c {
			return true
		}
	}
	return false
}

func (p Promocode) base(timeCost, ordersCost decimal.Decimal) decimal.Decimal {
	base := decimal.Zero
	if p.targets(ComponentTime) {
		base = base.Add(timeCost)
	}
	if p.targets(ComponentOrders) {
		base = base.Add(ordersCost)
	}
	return base
}

// DiscountResult is the outcome of applying a promocode to a bill.
type DiscountResult struct {
	FinalTotal     decimal.Decimal `json:"final_total"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	AppliedNote    string          `json:"applied_note"`
}

// ApplyDiscount validates code and applies it on top of the time and order costs.
// Item discounts are computed per unit: a fixed amount is taken off every unit of the
// target product, never more than the unit price. The final total never drops below
// zero and is rounded up.
func ApplyDiscount(timeCost, ordersCost decimal.Decimal, durationMinutes int, orders []OrderLine, code Promocode, now time.Time) (DiscountResult, error) {
	if err := code.Validate(now); err != nil {
		return DiscountResult{}, err
	}

	var (
		discount decimal.Decimal
		note     string
	)
	switch code.Kind {
	case DiscountPercentage:
		discount = code.base(timeCost, ordersCost).Mul(code.Value).Div(hundred)
		note = fmt.Sprintf("%s%% off %s", code.Value.String(), code.targetNames())
	case DiscountFixedAmount:
		discount = decimal.Min(code.Value, code.base(timeCost, ordersCost))
		note = fmt.Sprintf("%s off %s", code.Value.String(), code.targetNames())
	case DiscountRecurringOffer:
		discount = recurringDiscount(timeCost, durationMinutes, code.PayHours, code.FreeHours)
		note = fmt.Sprintf("pay %d get %d hours free", code.PayHours, code.FreeHours)
	case DiscountItem:
		discount = itemDiscount(orders, code)
		note = fmt.Sprintf("%s on %s", code.ItemMode, code.TargetProductID)
	}

	subtotal := timeCost.Add(ordersCost)
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	final := subtotal.Sub(discount)
	if final.IsNegative() {
		final = decimal.Zero
	}

	return DiscountResult{
		FinalTotal:     final.Ceil(),
		DiscountAmount: discount,
		AppliedNote:    fmt.Sprintf("%s: %s", code.Code, note),
	}, nil
}

func (p Promocode) targetNames() string {
	names := make([]string, 0, 2)
	if p.targets(ComponentTime) {
		names = append(names, string(ComponentTime))
	}
	if p.targets(ComponentOrders) {
		names = append(names, string(ComponentOrders))
	}
	return strings.Join(names, "+")
}

// recurringDiscount waives freeHours for every full (payHours+freeHours) cycle and
// prorates the time cost to the remaining billable hours.
func recurringDiscount(timeCost decimal.Decimal, durationMinutes, payHours, freeHours int) decimal.Decimal {
	if durationMinutes <= 0 || timeCost.IsZero() {
		return decimal.Zero
	}
	totalHours := decimal.NewFromInt(int64(durationMinutes)).Div(sixty)
	cycles := totalHours.Div(decimal.NewFromInt(int64(payHours + freeHours))).Floor()
	billable := totalHours.Sub(cycles.Mul(decimal.NewFromInt(int64(freeHours))))
	return timeCost.Sub(timeCost.Mul(billable).Div(totalHours))
}

func itemDiscount(orders []OrderLine, code Promocode) decimal.Decimal {
	discount := decimal.Zero
	for _, line := range orders {
		if line.ProductID != code.TargetProductID {
			continue
		}
		qty := decimal.NewFromInt(int64(line.Quantity))
		var perUnit decimal.Decimal
		switch code.ItemMode {
		case ItemFree:
			perUnit = line.UnitPrice
		case ItemPercentage:
			perUnit = line.UnitPrice.Mul(code.Value).Div(hundred)
		case ItemFixedAmount:
			perUnit = decimal.Min(code.Value, line.UnitPrice)
		}
		discount = discount.Add(perUnit.Mul(qty))
	}
	return discount
}
