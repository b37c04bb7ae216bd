package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// fakeVenue implements every collaborator on plain maps.
type fakeVenue struct {
	resources   map[string]Resource
	reservedBy  map[string]string
	sessions    map[string]*Session
	stock       map[string]int
	revenue     []decimal.Decimal
	reserveFail map[string]error
	releaseFail map[string]error
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		resources: map[string]Resource{
			"t1":     {ID: "t1", Name: "Table 1", Kind: KindTable, Tier: tier(25, 15)},
			"t2":     {ID: "t2", Name: "Table 2", Kind: KindTable, Tier: tier(30, 20)},
			"hall-a": {ID: "hall-a", Name: "Hall A", Kind: KindHall, Tier: tier(10, 10), Units: []string{"a1", "a2", "a3"}},
		},
		reservedBy:  map[string]string{},
		sessions:    map[string]*Session{},
		stock:       map[string]int{"cola": 10, "snack": 1},
		reserveFail: map[string]error{},
		releaseFail: map[string]error{},
	}
}

func (f *fakeVenue) Resolve(_ context.Context, id string) (Resource, error) {
	r, ok := f.resources[id]
	if !ok {
		return Resource{}, fmt.Errorf("resource %s: %w", id, ErrResourceUnavailable)
	}
	return r, nil
}

func (f *fakeVenue) IsAvailable(_ context.Context, unit string) (bool, error) {
	_, taken := f.reservedBy[unit]
	return !taken, nil
}

func (f *fakeVenue) Reserve(_ context.Context, unit, sessionID string) error {
	if err := f.reserveFail[unit]; err != nil {
		return err
	}
	f.reservedBy[unit] = sessionID
	return nil
}

func (f *fakeVenue) Release(_ context.Context, unit string) error {
	if err := f.releaseFail[unit]; err != nil {
		return err
	}
	delete(f.reservedBy, unit)
	return nil
}

func (f *fakeVenue) FindActiveSessionFor(_ context.Context, memberID string) (string, bool, error) {
	for id, s := range f.sessions {
		if s.Closed() {
			continue
		}
		if _, ok := s.ActiveMember(memberID); ok {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (f *fakeVenue) Lookup(_ context.Context, memberID string) (MemberInfo, error) {
	return MemberInfo{ID: memberID, DisplayName: "Member " + memberID}, nil
}

func (f *fakeVenue) CheckStock(_ context.Context, productID string, qty int) (bool, error) {
	return f.stock[productID] >= qty, nil
}

func (f *fakeVenue) ReduceStock(_ context.Context, productID string, qty int) error {
	f.stock[productID] -= qty
	return nil
}

func (f *fakeVenue) RecordRevenue(_ context.Context, amount decimal.Decimal, _ string) error {
	f.revenue = append(f.revenue, amount)
	return nil
}

type engineFixture struct {
	engine *Engine
	venue  *fakeVenue
	clock  *fakeClock
}

func newEngineFixture() *engineFixture {
	venue := newFakeVenue()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)}
	ids := 0
	engine := NewEngine(venue, venue, venue,
		WithClock(clock.Now),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("s%d", ids)
		}),
	)
	return &engineFixture{engine: engine, venue: venue, clock: clock}
}

func (f *engineFixture) open(t *testing.T, kind Kind, resourceID string, memberIDs ...string) *Session {
	t.Helper()
	infos := make([]MemberInfo, 0, len(memberIDs))
	for _, id := range memberIDs {
		infos = append(infos, MemberInfo{ID: id, DisplayName: "Member " + id})
	}
	s, err := f.engine.Create(context.Background(), CreateParams{Kind: kind, ResourceIDs: []string{resourceID}, Members: infos})
	require.NoError(t, err)
	f.venue.sessions[s.ID] = s
	return s
}

func TestEngine_Create(t *testing.T) {
	f := newEngineFixture()
	s := f.open(t, KindTable, "t1", "m1", "m2")

	assert.Equal(t, "s1", s.ID)
	assert.Equal(t, ModelPerMemberTiered, s.Model)
	require.Len(t, s.Resources, 1)
	assert.True(t, s.Resources[0].Open())
	assert.Equal(t, s.StartedAt, s.Resources[0].StartedAt)
	assert.Equal(t, []string{"t1"}, s.Resources[0].Units)
	assert.Len(t, s.Members, 2)
	assert.Equal(t, "s1", f.venue.reservedBy["t1"])
}

func TestEngine_CreateHallReservesEveryTable(t *testing.T) {
	f := newEngineFixture()
	s := f.open(t, KindHall, "hall-a", "m1")

	assert.Equal(t, ModelPerHead, s.Model)
	for _, unit := range []string{"a1", "a2", "a3"} {
		assert.Equal(t, s.ID, f.venue.reservedBy[unit], unit)
	}
}

func TestEngine_CreateValidation(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	member := []MemberInfo{{ID: "m1"}}

	_, err := f.engine.Create(ctx, CreateParams{Kind: KindTable, ResourceIDs: []string{"t1"}})
	assert.ErrorIs(t, err, ErrEmptyMembers)

	_, err = f.engine.Create(ctx, CreateParams{Kind: KindTable, Members: member})
	assert.ErrorIs(t, err, ErrEmptyResources)

	_, err = f.engine.Create(ctx, CreateParams{Kind: KindTable, ResourceIDs: []string{"t1", "t2"}, Members: member})
	assert.ErrorIs(t, err, ErrMultipleResources)

	_, err = f.engine.Create(ctx, CreateParams{Kind: KindTable, ResourceIDs: []string{"t1"}, Members: []MemberInfo{{ID: "m1"}, {ID: "m1"}}})
	assert.ErrorIs(t, err, ErrDuplicateMember)

	_, err = f.engine.Create(ctx, CreateParams{Kind: KindTable, Model: "hourly", ResourceIDs: []string{"t1"}, Members: member})
	assert.ErrorIs(t, err, ErrUnknownModel)

	_, err = f.engine.Create(ctx, CreateParams{Kind: "booth", ResourceIDs: []string{"t1"}, Members: member})
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.NotErrorIs(t, err, ErrResourceUnavailable)

	_, err = f.engine.Create(ctx, CreateParams{Kind: KindTable, ResourceIDs: []string{"hall-a"}, Members: member})
	assert.ErrorIs(t, err, ErrResourceUnavailable)

	assert.Empty(t, f.venue.reservedBy)
}

func TestEngine_CreateRollsBackPartialHallReservation(t *testing.T) {
	f := newEngineFixture()
	f.venue.reservedBy["a3"] = "someone-else"

	_, err := f.engine.Create(context.Background(), CreateParams{Kind: KindHall, ResourceIDs: []string{"hall-a"}, Members: []MemberInfo{{ID: "m1"}}})
	assert.ErrorIs(t, err, ErrResourceUnavailable)

	assert.NotContains(t, f.venue.reservedBy, "a1")
	assert.NotContains(t, f.venue.reservedBy, "a2")
	assert.Equal(t, "someone-else", f.venue.reservedBy["a3"])
}

func TestEngine_MemberBusyElsewhere(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	f.open(t, KindTable, "t1", "m1")
	b := f.open(t, KindTable, "t2", "m2")

	_, err := f.engine.AddMember(ctx, b, MemberInfo{ID: "m1"})
	assert.ErrorIs(t, err, ErrMemberBusyElsewhere)
	assert.Len(t, b.Members, 1)

	_, err = f.engine.Create(ctx, CreateParams{Kind: KindHall, ResourceIDs: []string{"hall-a"}, Members: []MemberInfo{{ID: "m2"}}})
	assert.ErrorIs(t, err, ErrMemberBusyElsewhere)
}

func TestEngine_AddMember(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	s := f.open(t, KindTable, "t1", "m1")

	_, err := f.engine.AddMember(ctx, s, MemberInfo{ID: "m1"})
	assert.ErrorIs(t, err, ErrDuplicateMember)

	f.clock.Advance(10 * time.Minute)
	joined, err := f.engine.AddMember(ctx, s, MemberInfo{ID: "m2", DisplayName: "Bob"})
	require.NoError(t, err)
	assert.Equal(t, s.StartedAt.Add(10*time.Minute), joined.JoinedAt)
	assert.Len(t, s.Members, 2)
}

func TestEngine_RejoinCreatesNewRecord(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	s := f.open(t, KindTable, "t1", "m1", "m2")

	f.clock.Advance(20 * time.Minute)
	_, err := f.engine.RemoveMember(ctx, s, "m1", false)
	require.NoError(t, err)

	f.clock.Advance(20 * time.Minute)
	_, err = f.engine.AddMember(ctx, s, MemberInfo{ID: "m1"})
	require.NoError(t, err)

	require.Len(t, s.Members, 3)
	assert.NotNil(t, s.Members[0].LeftAt)
	assert.Nil(t, s.Members[2].LeftAt)
	assert.Equal(t, "m1", s.Members[2].ID)
}

func TestEngine_SettledMemberScenario(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	s := f.open(t, KindTable, "t1", "m1", "m2")

	_, err := f.engine.AdjustOrder(ctx, s, "m1", OrderInput{ProductID: "cola", Name: "Cola", UnitPrice: money(25), Delta: 2})
	require.NoError(t, err)

	f.clock.Advance(95 * time.Minute)
	member, err := f.engine.RemoveMember(ctx, s, "m1", true)
	require.NoError(t, err)

	require.NotNil(t, member.SettledBill)
	assert.Equal(t, 95, member.SettledBill.DurationMinutes)
	assertMoney(t, "40", member.SettledBill.TimeCost)
	assertMoney(t, "50", member.SettledBill.OrdersCost)
	assertMoney(t, "90", member.SettledBill.Total)

	_, err = f.engine.RemoveMember(ctx, s, "m1", true)
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestEngine_SettleUsesMembersOwnSpan(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	s := f.open(t, KindTable, "t1", "m1")

	f.clock.Advance(100 * time.Minute)
	_, err := f.engine.AddMember(ctx, s, MemberInfo{ID: "m2"})
	require.NoError(t, err)

	f.clock.Advance(30 * time.Minute)
	member, err := f.engine.RemoveMember(ctx, s, "m2", true)
	require.NoError(t, err)
	assert.Equal(t, 30, member.SettledBill.DurationMinutes)
	assertMoney(t, "25", member.SettledBill.TimeCost)
}

func TestEngine_LastMemberLeavingDoesNotClose(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	s := f.open(t, KindTable, "t1", "m1")

	f.clock.Advance(30 * time.Minute)
	_, err := f.engine.RemoveMember(ctx, s, "m1", true)
	require.NoError(t, err)

	assert.False(t, s.Closed())
	assert.Empty(t, s.ActiveMembers())
	assert.Equal(t, s.ID, f.venue.reservedBy["t1"])
}

func TestEngine_AdjustOrder(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	s := f.open(t, KindTable, "t1", "m1")

	line, err := f.engine.AdjustOrder(ctx, s, "m1", OrderInput{ProductID: "cola", Name: "Cola", UnitPrice: money(5), Delta: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, line.Quantity)
	assert.Equal(t, 7, f.venue.stock["cola"])
	require.Len(t, f.venue.revenue, 1)
	assertMoney(t, "15", f.venue.revenue[0])

	_, err = f.engine.AdjustOrder(ctx, s, "m1", OrderInput{ProductID: "cola", Name: "Cola", UnitPrice: money(5), Delta: -1})
	require.NoError(t, err)
	assert.Len(t, f.venue.revenue, 1, "negative deltas do not record revenue")

	_, err = f.engine.AdjustOrder(ctx, s, "m1", OrderInput{ProductID: "snack", Name: "Snack", UnitPrice: money(3), Delta: 2})
	assert.ErrorIs(t, err, ErrInsufficientStock)
	_, ok := s.Members[0].Orders.Line("snack")
	assert.False(t, ok)
	assert.Equal(t, 1, f.venue.stock["snack"])

	_, err = f.engine.AdjustOrder(ctx, s, "nobody", OrderInput{ProductID: "cola", Delta: 1})
	assert.ErrorIs(t, err, ErrMemberNotFound)

	line, _ = s.Members[0].Orders.Line("cola")
	assert.Equal(t, 2, line.Quantity)
}

func TestEngine_TransferResource(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	s := f.open(t, KindTable, "t1", "m1")

	f.clock.Advance(30 * time.Minute)
	require.NoError(t, f.engine.TransferResource(ctx, s, "t2"))

	require.Len(t, s.Resources, 2)
	assert.False(t, s.Resources[0].Open())
	assert.Equal(t, *s.Resources[0].EndedAt, s.Resources[1].StartedAt)
	current, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "t2", current.ResourceID)
	assert.NotContains(t, f.venue.reservedBy, "t1")
	assert.Equal(t, s.ID, f.venue.reservedBy["t2"])

	f.clock.Advance(60 * time.Minute)
	totals, err := f.engine.LiveTotal(s)
	require.NoError(t, err)
	// 30 minutes on t1 (25) and 60 minutes on t2 (30)
	assertMoney(t, "55", totals.TimeCost)
}

func TestEngine_TransferFailureKeepsOldResource(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	s := f.open(t, KindTable, "t1", "m1")
	f.venue.reservedBy["t2"] = "other"

	err := f.engine.TransferResource(ctx, s, "t2")
	assert.ErrorIs(t, err, ErrResourceUnavailable)
	assert.Len(t, s.Resources, 1)
	assert.Equal(t, s.ID, f.venue.reservedBy["t1"])

	delete(f.venue.reservedBy, "t2")
	f.venue.reserveFail["t2"] = errors.New("database is down")
	err = f.engine.TransferResource(ctx, s, "t2")
	assert.Error(t, err)
	assert.Len(t, s.Resources, 1)
	assert.Equal(t, s.ID, f.venue.reservedBy["t1"])
	assert.NotContains(t, f.venue.reservedBy, "t2")

	delete(f.venue.reserveFail, "t2")
	f.venue.releaseFail["t1"] = errors.New("database is down")
	err = f.engine.TransferResource(ctx, s, "t2")
	assert.Error(t, err)
	assert.Len(t, s.Resources, 1)
	assert.NotContains(t, f.venue.reservedBy, "t2")

	err = f.engine.TransferResource(ctx, s, "t1")
	assert.ErrorIs(t, err, ErrResourceUnavailable)
}

func TestEngine_PerHeadTransferSumsSpans(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	s := f.open(t, KindTable, "t1", "m1")
	s.Model = ModelPerHead

	f.clock.Advance(30 * time.Minute)
	require.NoError(t, f.engine.TransferResource(ctx, s, "t2"))
	f.clock.Advance(60 * time.Minute)

	history, err := f.engine.End(ctx, s, EndParams{PaymentMethod: "cash"})
	require.NoError(t, err)

	onX, err := AggregateTimeCost(history.Resources[:1], history.Members, history.EndedAt)
	require.NoError(t, err)
	onY, err := AggregateTimeCost(history.Resources[1:], history.Members, history.EndedAt)
	require.NoError(t, err)
	assertMoney(t, onX.Add(onY).String(), history.TimeCost)
	assertMoney(t, "43", history.TimeCost)
}

func TestEngine_EndTwice(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	s := f.open(t, KindTable, "t1", "m1")

	f.clock.Advance(45 * time.Minute)
	history, err := f.engine.End(ctx, s, EndParams{PaymentMethod: "card"})
	require.NoError(t, err)
	assert.Equal(t, s.ID, history.ID)
	assert.True(t, s.Closed())
	assert.Empty(t, f.venue.reservedBy)

	_, err = f.engine.End(ctx, s, EndParams{PaymentMethod: "card"})
	assert.ErrorIs(t, err, ErrAlreadyClosed)

	_, err = f.engine.AddMember(ctx, s, MemberInfo{ID: "m9"})
	assert.ErrorIs(t, err, ErrAlreadyClosed)
}

func TestEngine_EndSettlesEveryoneAndAppliesDiscount(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	s := f.open(t, KindTable, "t1", "m1", "m2", "m3")

	_, err := f.engine.AdjustOrder(ctx, s, "m2", OrderInput{ProductID: "cola", Name: "Cola", UnitPrice: money(5), Delta: 2})
	require.NoError(t, err)

	f.clock.Advance(50 * time.Minute)
	_, err = f.engine.RemoveMember(ctx, s, "m1", true)
	require.NoError(t, err)
	_, err = f.engine.RemoveMember(ctx, s, "m3", false)
	require.NoError(t, err)

	f.clock.Advance(40 * time.Minute)
	code := activeCode(DiscountPercentage)
	code.Value = money(10)
	code.ValidFrom = time.Time{}
	code.ValidUntil = time.Time{}

	history, err := f.engine.End(ctx, s, EndParams{Promocode: &code, PaymentMethod: "cash"})
	require.NoError(t, err)

	for _, m := range history.Members {
		require.NotNil(t, m.SettledBill, m.ID)
		require.NotNil(t, m.LeftAt, m.ID)
	}
	// m1 25 (settled early), m3 25, m2 90 minutes = 40 plus 10 of orders
	assertMoney(t, "90", history.TimeCost)
	assertMoney(t, "10", history.OrdersCost)
	assertMoney(t, "10", history.Discount)
	assertMoney(t, "90", history.GrandTotal)
	assertMoney(t, "25", history.SettledEarlier)
	assertMoney(t, "65", history.AmountDue)
	assert.Equal(t, "TEST", history.PromocodeCode)
	assert.Equal(t, "cash", history.PaymentMethod)
	assert.False(t, history.Resources[0].Open())
}

func TestEngine_EndRejectsInvalidPromocodeWithoutClosing(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	s := f.open(t, KindTable, "t1", "m1")

	code := activeCode(DiscountPercentage)
	code.Status = PromoInactive

	_, err := f.engine.End(ctx, s, EndParams{Promocode: &code})
	assert.ErrorIs(t, err, ErrPromocodeInvalid)
	assert.False(t, s.Closed())
	assert.True(t, s.Members[0].Active())
	assert.Equal(t, s.ID, f.venue.reservedBy["t1"])
}

func TestEngine_EndReleasesEveryHallTable(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	s := f.open(t, KindHall, "hall-a", "m1", "m2")

	f.clock.Advance(90 * time.Minute)
	history, err := f.engine.End(ctx, s, EndParams{PaymentMethod: "cash"})
	require.NoError(t, err)

	// 2 heads * 1.5h * 10
	assertMoney(t, "30", history.TimeCost)
	assert.Empty(t, f.venue.reservedBy)
}

func TestEngine_LiveTotalIsReadOnly(t *testing.T) {
	f := newEngineFixture()
	s := f.open(t, KindTable, "t1", "m1", "m2")
	before := s.Clone()

	f.clock.Advance(61 * time.Minute)
	totals, err := f.engine.LiveTotal(s)
	require.NoError(t, err)

	assertMoney(t, "80", totals.TimeCost)
	assertMoney(t, "80", totals.Total)
	assert.Equal(t, before, s)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("save: %w", ErrConflict)))
	assert.False(t, IsRetryable(ErrAlreadyClosed))
}
