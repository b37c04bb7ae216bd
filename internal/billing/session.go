package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind says whether a session bills a single table or a whole hall.
type Kind string

const (
	KindTable Kind = "table"
	KindHall  Kind = "hall"
)

// Valid reports whether k is a known session kind.
func (k Kind) Valid() bool {
	return k == KindTable || k == KindHall
}

// SettledBill is the receipt snapshot taken when a member checks out.
type SettledBill struct {
	DurationMinutes int             `json:"duration_minutes"`
	TimeCost        decimal.Decimal `json:"time_cost"`
	OrdersCost      decimal.Decimal `json:"orders_cost"`
	Total           decimal.Decimal `json:"total"`
}

// Member is one participation span inside a session. A member who leaves and comes
// back gets a new Member entry.
type Member struct {
	ID          string       `json:"id"`
	DisplayName string       `json:"display_name"`
	Contact     string       `json:"contact,omitempty"`
	JoinedAt    time.Time    `json:"joined_at"`
	LeftAt      *time.Time   `json:"left_at,omitempty"`
	Orders      Ledger       `json:"orders"`
	SettledBill *SettledBill `json:"settled_bill,omitempty"`
}

// Active reports whether the member has not left yet.
func (m *Member) Active() bool {
	return m.LeftAt == nil
}

// presentDuring reports whether the member covers the whole of [from, to).
func (m *Member) presentDuring(from, to time.Time) bool {
	if m.JoinedAt.After(from) {
		return false
	}
	return m.LeftAt == nil || !m.LeftAt.Before(to)
}

func (m *Member) clone() *Member {
	c := *m
	c.Orders = m.Orders.clone()
	if m.LeftAt != nil {
		left := *m.LeftAt
		c.LeftAt = &left
	}
	if m.SettledBill != nil {
		bill := *m.SettledBill
		c.SettledBill = &bill
	}
	return &c
}

// Session is one billed occupancy of a table or hall.
type Session struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Model     Model          `json:"model"`
	Resources []ResourceSpan `json:"resources"`
	Members   []*Member      `json:"members"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
}

// Closed reports whether the session has ended.
func (s *Session) Closed() bool {
	return s.EndedAt != nil
}

// Current returns the open resource span.
func (s *Session) Current() (ResourceSpan, bool) {
	for i := len(s.Resources) - 1; i >= 0; i-- {
		if s.Resources[i].Open() {
			return s.Resources[i], true
		}
	}
	return ResourceSpan{}, false
}

// ActiveMember returns the participation record of memberID that has not left yet.
func (s *Session) ActiveMember(memberID string) (*Member, bool) {
	for _, m := range s.Members {
		if m.ID == memberID && m.Active() {
			return m, true
		}
	}
	return nil, false
}

// ActiveMembers returns every member still present.
func (s *Session) ActiveMembers() []*Member {
	active := make([]*Member, 0, len(s.Members))
	for _, m := range s.Members {
		if m.Active() {
			active = append(active, m)
		}
	}
	return active
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	c.Resources = make([]ResourceSpan, len(s.Resources))
	for i, span := range s.Resources {
		c.Resources[i] = span.clone()
	}
	c.Members = make([]*Member, len(s.Members))
	for i, m := range s.Members {
		c.Members[i] = m.clone()
	}
	if s.EndedAt != nil {
		ended := *s.EndedAt
		c.EndedAt = &ended
	}
	return &c
}

func (r ResourceSpan) clone() ResourceSpan {
	c := r
	c.Units = append([]string(nil), r.Units...)
	if r.EndedAt != nil {
		ended := *r.EndedAt
		c.EndedAt = &ended
	}
	return c
}

// Totals is a running or final bill before discounts.
type Totals struct {
	TimeCost   decimal.Decimal `json:"time_cost"`
	OrdersCost decimal.Decimal `json:"orders_cost"`
	Total      decimal.Decimal `json:"total"`
}

// HistorySession is the immutable receipt of a closed session.
type HistorySession struct {
	ID             string          `json:"id"`
	Kind           Kind            `json:"kind"`
	Model          Model           `json:"model"`
	Resources      []ResourceSpan  `json:"resources"`
	Members        []*Member       `json:"members"`
	StartedAt      time.Time       `json:"started_at"`
	EndedAt        time.Time       `json:"ended_at"`
	TimeCost       decimal.Decimal `json:"time_cost"`
	OrdersCost     decimal.Decimal `json:"orders_cost"`
	Discount       decimal.Decimal `json:"discount"`
	GrandTotal     decimal.Decimal `json:"grand_total"`
	SettledEarlier decimal.Decimal `json:"settled_earlier"`
	AmountDue      decimal.Decimal `json:"amount_due"`
	PaymentMethod  string          `json:"payment_method"`
	PromocodeCode  string          `json:"promocode,omitempty"`
	AppliedNote    string          `json:"applied_note,omitempty"`
}
