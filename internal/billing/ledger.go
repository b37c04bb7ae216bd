package billing

import "github.com/shopspring/decimal"

// OrderLine is one product on a member's tab.
type OrderLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Cost returns UnitPrice * Quantity.
func (l OrderLine) Cost() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Ledger keeps a member's order lines in insertion order. Quantities are always positive.
type Ledger struct {
	Lines []OrderLine `json:"lines"`
}

// AddOrUpdate applies delta to the line for productID. A positive delta on a missing
// product inserts a new line; a line whose quantity drops to zero or below is removed.
// The ledger has no notion of stock: callers validate positive deltas beforehand.
func (l *Ledger) AddOrUpdate(productID, name string, unitPrice decimal.Decimal, delta int) error {
	if delta == 0 {
		return ErrInvalidQuantity
	}

	idx := l.index(productID)
	if idx < 0 {
		if delta < 0 {
			return ErrOrderLineNotFound
		}
		l.Lines = append(l.Lines, OrderLine{
			ProductID: productID,
			Name:      name,
			UnitPrice: unitPrice,
			Quantity:  delta,
		})
		return nil
	}

	newQuantity := l.Lines[idx].Quantity + delta
	if newQuantity <= 0 {
		l.Lines = append(l.Lines[:idx], l.Lines[idx+1:]...)
		return nil
	}
	l.Lines[idx].Quantity = newQuantity
	return nil
}

// Line returns the line for productID, if any.
func (l *Ledger) Line(productID string) (OrderLine, bool) {
	idx := l.index(productID)
	if idx < 0 {
		return OrderLine{}, false
	}
	return l.Lines[idx], true
}

// Total sums the cost of every line.
func (l *Ledger) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range l.Lines {
		total = total.Add(line.Cost())
	}
	return total
}

func (l *Ledger) index(productID string) int {
	for i, line := range l.Lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

func (l Ledger) clone() Ledger {
	if l.Lines == nil {
		return Ledger{}
	}
	lines := make([]OrderLine, len(l.Lines))
	copy(lines, l.Lines)
	return Ledger{Lines: lines}
}
