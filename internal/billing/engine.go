package billing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Engine runs the session state machine. It holds no sessions itself: callers own the
// *Session and pass it to every operation. An operation that fails leaves the session
// exactly as it was.
type Engine struct {
	resources     ResourceDirectory
	members       MemberDirectory
	inventory     Inventory
	defaultModels map[Kind]Model
	now           func() time.Time
	newID         func() string
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces the uuid session id generator.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// WithDefaultModel sets the billing model used for kind when a create call names none.
func WithDefaultModel(kind Kind, model Model) Option {
	return func(e *Engine) { e.defaultModels[kind] = model }
}

// NewEngine wires the engine to its collaborators.
func NewEngine(resources ResourceDirectory, members MemberDirectory, inventory Inventory, opts ...Option) *Engine {
	e := &Engine{
		resources: resources,
		members:   members,
		inventory: inventory,
		defaultModels: map[Kind]Model{
			KindTable: ModelPerMemberTiered,
			KindHall:  ModelPerHead,
		},
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateParams describes a new session. Model may be left empty to use the default
// model of Kind.
type CreateParams struct {
	Kind        Kind
	Model       Model
	ResourceIDs []string
	Members     []MemberInfo
}

// Create opens a session on one table or hall and reserves all of its units.
func (e *Engine) Create(ctx context.Context, params CreateParams) (*Session, error) {
	if len(params.Members) == 0 {
		return nil, ErrEmptyMembers
	}
	if len(params.ResourceIDs) == 0 {
		return nil, ErrEmptyResources
	}
	if len(params.ResourceIDs) > 1 {
		return nil, ErrMultipleResources
	}
	if !params.Kind.Valid() {
		return nil, fmt.Errorf("%q: %w", params.Kind, ErrUnknownKind)
	}

	model := params.Model
	if model == "" {
		model = e.defaultModels[params.Kind]
	}
	if !model.Valid() {
		return nil, fmt.Errorf("%q: %w", model, ErrUnknownModel)
	}

	seen := make(map[string]struct{}, len(params.Members))
	for _, info := range params.Members {
		if _, dup := seen[info.ID]; dup {
			return nil, fmt.Errorf("member %s listed twice: %w", info.ID, ErrDuplicateMember)
		}
		seen[info.ID] = struct{}{}
		if err := e.EnsureMemberFree(ctx, info.ID, ""); err != nil {
			return nil, err
		}
	}

	resource, err := e.resolve(ctx, params.ResourceIDs[0], params.Kind)
	if err != nil {
		return nil, err
	}

	sessionID := e.newID()
	if err := e.reserveAll(ctx, resource.Units, sessionID); err != nil {
		return nil, err
	}

	now := e.now()
	session := &Session{
		ID:        sessionID,
		Kind:      params.Kind,
		Model:     model,
		StartedAt: now,
		Resources: []ResourceSpan{{
			ResourceID:   resource.ID,
			ResourceName: resource.Name,
			Units:        append([]string(nil), resource.Units...),
			Tier:         resource.Tier,
			StartedAt:    now,
		}},
	}
	for _, info := range params.Members {
		session.Members = append(session.Members, &Member{
			ID:          info.ID,
			DisplayName: info.DisplayName,
			Contact:     info.Contact,
			JoinedAt:    now,
		})
	}
	return session, nil
}

// EnsureMemberFree fails with ErrMemberBusyElsewhere when memberID is active in a
// session other than sessionID.
func (e *Engine) EnsureMemberFree(ctx context.Context, memberID, sessionID string) error {
	if e.members == nil {
		return nil
	}
	other, found, err := e.members.FindActiveSessionFor(ctx, memberID)
	if err != nil {
		return fmt.Errorf("lookup active session for member %s: %w", memberID, err)
	}
	if found && other != sessionID {
		return fmt.Errorf("member %s is in session %s: %w", memberID, other, ErrMemberBusyElsewhere)
	}
	return nil
}

// AddMember starts a new participation record for info.
func (e *Engine) AddMember(ctx context.Context, s *Session, info MemberInfo) (*Member, error) {
	if s.Closed() {
		return nil, ErrAlreadyClosed
	}
	if _, ok := s.ActiveMember(info.ID); ok {
		return nil, ErrDuplicateMember
	}
	if err := e.EnsureMemberFree(ctx, info.ID, s.ID); err != nil {
		return nil, err
	}

	member := &Member{
		ID:          info.ID,
		DisplayName: info.DisplayName,
		Contact:     info.Contact,
		JoinedAt:    e.now(),
	}
	s.Members = append(s.Members, member)
	return member, nil
}

// RemoveMember checks a member out. With settleNow the member's bill is computed over
// their own join/leave span and frozen on the record.
func (e *Engine) RemoveMember(_ context.Context, s *Session, memberID string, settleNow bool) (*Member, error) {
	if s.Closed() {
		return nil, ErrAlreadyClosed
	}
	member, ok := s.ActiveMember(memberID)
	if !ok {
		return nil, ErrMemberNotFound
	}

	now := e.now()
	departed := member.clone()
	departed.LeftAt = &now
	if settleNow {
		bill, err := settle(s, departed, now)
		if err != nil {
			return nil, err
		}
		departed.SettledBill = &bill
	}

	*member = *departed
	return member, nil
}

// OrderInput is a quantity change for one product on a member's tab.
type OrderInput struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Delta     int
}

// AdjustOrder changes a member's order. A positive delta must pass the stock check
// and, once accepted, reduces stock and records revenue exactly once.
func (e *Engine) AdjustOrder(ctx context.Context, s *Session, memberID string, input OrderInput) (OrderLine, error) {
	if s.Closed() {
		return OrderLine{}, ErrAlreadyClosed
	}
	member, ok := s.ActiveMember(memberID)
	if !ok {
		return OrderLine{}, ErrMemberNotFound
	}

	if input.Delta > 0 && e.inventory != nil {
		inStock, err := e.inventory.CheckStock(ctx, input.ProductID, input.Delta)
		if err != nil {
			return OrderLine{}, fmt.Errorf("check stock of %s: %w", input.ProductID, err)
		}
		if !inStock {
			return OrderLine{}, fmt.Errorf("product %s x%d: %w", input.ProductID, input.Delta, ErrInsufficientStock)
		}
	}

	ledger := member.Orders.clone()
	if err := ledger.AddOrUpdate(input.ProductID, input.Name, input.UnitPrice, input.Delta); err != nil {
		return OrderLine{}, err
	}

	if input.Delta > 0 && e.inventory != nil {
		if err := e.inventory.ReduceStock(ctx, input.ProductID, input.Delta); err != nil {
			return OrderLine{}, fmt.Errorf("reduce stock of %s: %w", input.ProductID, err)
		}
		revenue := input.UnitPrice.Mul(decimal.NewFromInt(int64(input.Delta)))
		note := fmt.Sprintf("session %s member %s: %s x%d", s.ID, memberID, input.Name, input.Delta)
		if err := e.inventory.RecordRevenue(ctx, revenue, note); err != nil {
			// stock is already gone, keep the order so the tab matches the shelf
			log.Printf("Warning: failed to record revenue for %s: %v", note, err)
		}
	}

	member.Orders = ledger
	line, _ := ledger.Line(input.ProductID)
	return line, nil
}

// TransferResource moves the session to another table or hall. The new units are
// reserved before the old ones are released; if anything fails the session keeps
// its current resource and reservations.
func (e *Engine) TransferResource(ctx context.Context, s *Session, newResourceID string) error {
	if s.Closed() {
		return ErrAlreadyClosed
	}
	current, ok := s.Current()
	if !ok {
		return ErrEmptyResources
	}
	if current.ResourceID == newResourceID {
		return fmt.Errorf("session already uses %s: %w", newResourceID, ErrResourceUnavailable)
	}

	target, err := e.resolve(ctx, newResourceID, s.Kind)
	if err != nil {
		return err
	}
	if err := e.reserveAll(ctx, target.Units, s.ID); err != nil {
		return err
	}
	if err := e.releaseAll(ctx, current.Units); err != nil {
		if rollbackErr := e.releaseAll(ctx, target.Units); rollbackErr != nil {
			log.Printf("Error: failed to roll back reservation of %s for session %s: %v", target.ID, s.ID, rollbackErr)
		}
		return fmt.Errorf("release %s: %w", current.ResourceID, err)
	}

	now := e.now()
	for i := range s.Resources {
		if s.Resources[i].Open() {
			ended := now
			s.Resources[i].EndedAt = &ended
		}
	}
	s.Resources = append(s.Resources, ResourceSpan{
		ResourceID:   target.ID,
		ResourceName: target.Name,
		Units:        append([]string(nil), target.Units...),
		Tier:         target.Tier,
		StartedAt:    now,
	})
	return nil
}

// LiveTotal prices the session as of now. Open spans and active members run until now.
func (e *Engine) LiveTotal(s *Session) (Totals, error) {
	now := e.now()
	if s.EndedAt != nil {
		now = *s.EndedAt
	}
	return totals(s, now)
}

// EndParams carries the checkout options.
type EndParams struct {
	Promocode     *Promocode
	PaymentMethod string
}

// End closes the session: remaining members are settled, the open span is closed,
// the promocode is applied and every reserved unit is released.
func (e *Engine) End(ctx context.Context, s *Session, params EndParams) (HistorySession, error) {
	if s.Closed() {
		return HistorySession{}, ErrAlreadyClosed
	}

	now := e.now()
	if params.Promocode != nil {
		if err := params.Promocode.Validate(now); err != nil {
			return HistorySession{}, err
		}
	}

	closed := s.Clone()
	settledEarlier := decimal.Zero
	for _, m := range closed.Members {
		if m.SettledBill != nil {
			settledEarlier = settledEarlier.Add(m.SettledBill.Total)
			continue
		}
		if m.LeftAt == nil {
			left := now
			m.LeftAt = &left
		}
		bill, err := settle(closed, m, now)
		if err != nil {
			return HistorySession{}, err
		}
		m.SettledBill = &bill
	}
	for i := range closed.Resources {
		if closed.Resources[i].Open() {
			ended := now
			closed.Resources[i].EndedAt = &ended
		}
	}
	closed.EndedAt = &now

	sum, err := totals(closed, now)
	if err != nil {
		return HistorySession{}, err
	}

	history := HistorySession{
		ID:             closed.ID,
		Kind:           closed.Kind,
		Model:          closed.Model,
		Resources:      closed.Resources,
		Members:        closed.Members,
		StartedAt:      closed.StartedAt,
		EndedAt:        now,
		TimeCost:       sum.TimeCost,
		OrdersCost:     sum.OrdersCost,
		Discount:       decimal.Zero,
		GrandTotal:     sum.Total,
		SettledEarlier: settledEarlier,
		PaymentMethod:  params.PaymentMethod,
	}

	if params.Promocode != nil {
		duration, err := ElapsedMinutes(closed.StartedAt, &now, now)
		if err != nil {
			return HistorySession{}, err
		}
		var orders []OrderLine
		for _, m := range closed.Members {
			orders = append(orders, m.Orders.Lines...)
		}
		result, err := ApplyDiscount(sum.TimeCost, sum.OrdersCost, duration, orders, *params.Promocode, now)
		if err != nil {
			return HistorySession{}, err
		}
		history.Discount = result.DiscountAmount
		history.GrandTotal = result.FinalTotal
		history.PromocodeCode = params.Promocode.Code
		history.AppliedNote = result.AppliedNote
	}

	history.AmountDue = history.GrandTotal.Sub(settledEarlier)
	if history.AmountDue.IsNegative() {
		history.AmountDue = decimal.Zero
	}

	current, _ := s.Current()
	if err := e.releaseAll(ctx, current.Units); err != nil {
		return HistorySession{}, fmt.Errorf("release %s: %w", current.ResourceID, err)
	}

	*s = *closed
	return history, nil
}

func (e *Engine) resolve(ctx context.Context, resourceID string, kind Kind) (Resource, error) {
	resource, err := e.resources.Resolve(ctx, resourceID)
	if err != nil {
		return Resource{}, fmt.Errorf("resolve resource %s: %w", resourceID, err)
	}
	if resource.Kind != kind {
		return Resource{}, fmt.Errorf("resource %s is a %s, not a %s: %w", resourceID, resource.Kind, kind, ErrResourceUnavailable)
	}
	if len(resource.Units) == 0 {
		resource.Units = []string{resource.ID}
	}
	return resource, nil
}

// reserveAll reserves every unit or none of them.
func (e *Engine) reserveAll(ctx context.Context, units []string, sessionID string) error {
	reserved := make([]string, 0, len(units))
	rollback := func() {
		if err := e.releaseAll(ctx, reserved); err != nil {
			log.Printf("Error: failed to roll back reservations for session %s: %v", sessionID, err)
		}
	}

	for _, unit := range units {
		available, err := e.resources.IsAvailable(ctx, unit)
		if err != nil {
			rollback()
			return fmt.Errorf("check availability of %s: %w", unit, err)
		}
		if !available {
			rollback()
			return fmt.Errorf("unit %s: %w", unit, ErrResourceUnavailable)
		}
		if err := e.resources.Reserve(ctx, unit, sessionID); err != nil {
			rollback()
			if errors.Is(err, ErrResourceUnavailable) || errors.Is(err, ErrConflict) {
				return err
			}
			return fmt.Errorf("reserve %s: %w", unit, err)
		}
		reserved = append(reserved, unit)
	}
	return nil
}

func (e *Engine) releaseAll(ctx context.Context, units []string) error {
	var errs []error
	for _, unit := range units {
		if err := e.resources.Release(ctx, unit); err != nil {
			errs = append(errs, fmt.Errorf("unit %s: %w", unit, err))
		}
	}
	return errors.Join(errs...)
}

func settle(s *Session, m *Member, now time.Time) (SettledBill, error) {
	duration, timeCost, err := memberTimeCost(s.Model, s.Resources, m, now)
	if err != nil {
		return SettledBill{}, err
	}
	ordersCost := m.Orders.Total()
	return SettledBill{
		DurationMinutes: duration,
		TimeCost:        timeCost,
		OrdersCost:      ordersCost,
		Total:           timeCost.Add(ordersCost).Ceil(),
	}, nil
}

func totals(s *Session, now time.Time) (Totals, error) {
	timeCost := decimal.Zero
	ordersCost := decimal.Zero

	switch s.Model {
	case ModelPerHead:
		cost, err := AggregateTimeCost(s.Resources, s.Members, now)
		if err != nil {
			return Totals{}, err
		}
		timeCost = cost
	case ModelPerMemberTiered:
		for _, m := range s.Members {
			if m.SettledBill != nil {
				timeCost = timeCost.Add(m.SettledBill.TimeCost)
				continue
			}
			_, cost, err := memberTimeCost(s.Model, s.Resources, m, now)
			if err != nil {
				return Totals{}, err
			}
			timeCost = timeCost.Add(cost)
		}
	default:
		return Totals{}, fmt.Errorf("%q: %w", s.Model, ErrUnknownModel)
	}

	for _, m := range s.Members {
		ordersCost = ordersCost.Add(m.Orders.Total())
	}
	return Totals{
		TimeCost:   timeCost,
		OrdersCost: ordersCost,
		Total:      timeCost.Add(ordersCost).Ceil(),
	}, nil
}
