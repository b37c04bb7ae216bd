package billing

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var (
	sixty          = decimal.NewFromInt(60)
	secondsPerHour = decimal.NewFromInt(3600)
)

// Model selects how elapsed time is turned into money for a session.
type Model string

const (
	// ModelPerMemberTiered bills every member separately: the first hour is charged in
	// full and each started subsequent hour is charged at the subsequent rate.
	ModelPerMemberTiered Model = "per_member_tiered"
	// ModelPerHead bills rate * hours * members present, with no first-hour tier.
	ModelPerHead Model = "per_head"
)

// Valid reports whether m names a known billing model.
func (m Model) Valid() bool {
	return m == ModelPerMemberTiered || m == ModelPerHead
}

// PricingTier holds the hourly rates of a resource. The per-head model bills
// FirstHourRate as the per-person hourly rate.
type PricingTier struct {
	FirstHourRate      decimal.Decimal `json:"first_hour_rate"`
	SubsequentHourRate decimal.Decimal `json:"subsequent_hour_rate"`
}

// ResourceSpan is one entry of a session's resource history. Units lists the physical
// tables reserved for the span: the table itself, or every table of a hall.
type ResourceSpan struct {
	ResourceID   string      `json:"resource_id"`
	ResourceName string      `json:"resource_name"`
	Units        []string    `json:"units"`
	Tier         PricingTier `json:"tier"`
	StartedAt    time.Time   `json:"started_at"`
	EndedAt      *time.Time  `json:"ended_at,omitempty"`
}

// Open reports whether the span is still running.
func (r ResourceSpan) Open() bool {
	return r.EndedAt == nil
}

func (r ResourceSpan) end(now time.Time) time.Time {
	if r.EndedAt != nil {
		return *r.EndedAt
	}
	return now
}

// TimeCost prices durationMinutes under tier. Anything up to an hour costs the full
// first-hour rate; every started hour after that costs the subsequent rate.
func TimeCost(durationMinutes int, tier PricingTier) decimal.Decimal {
	if durationMinutes <= 60 {
		return tier.FirstHourRate
	}
	extra := (durationMinutes - 60 + 59) / 60
	return tier.FirstHourRate.Add(tier.SubsequentHourRate.Mul(decimal.NewFromInt(int64(extra))))
}

// AggregateTimeCost is the per-head form: for each span the rate is multiplied by the
// hours each member was present on it, and every span total is rounded up on its own.
// Members leaving mid-span lower the multiplier only for the rest of that span.
func AggregateTimeCost(spans []ResourceSpan, members []*Member, now time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, span := range spans {
		cost, err := spanHeadCost(span, members, now)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(cost)
	}
	return total, nil
}

func spanHeadCost(span ResourceSpan, members []*Member, now time.Time) (decimal.Decimal, error) {
	spanEnd := span.end(now)
	if spanEnd.Before(span.StartedAt) {
		return decimal.Zero, ErrInvalidInterval
	}

	cuts := []time.Time{span.StartedAt, spanEnd}
	for _, m := range members {
		if m.JoinedAt.After(span.StartedAt) && m.JoinedAt.Before(spanEnd) {
			cuts = append(cuts, m.JoinedAt)
		}
		if m.LeftAt != nil && m.LeftAt.After(span.StartedAt) && m.LeftAt.Before(spanEnd) {
			cuts = append(cuts, *m.LeftAt)
		}
	}
	sort.Slice(cuts, func(i, j int) bool { return cuts[i].Before(cuts[j]) })

	// second-rate products are summed first so the division by 3600 happens once
	secondRate := decimal.Zero
	for i := 0; i+1 < len(cuts); i++ {
		from, to := cuts[i], cuts[i+1]
		if !to.After(from) {
			continue
		}
		heads := 0
		for _, m := range members {
			if m.presentDuring(from, to) {
				heads++
			}
		}
		if heads == 0 {
			continue
		}
		secondRate = secondRate.Add(span.Tier.FirstHourRate.Mul(decimal.NewFromInt(elapsedSeconds(from, to) * int64(heads))))
	}
	return secondRate.Div(secondsPerHour).Ceil(), nil
}

// elapsedSeconds returns the whole seconds in [from, to).
func elapsedSeconds(from, to time.Time) int64 {
	return int64(to.Sub(from) / time.Second)
}

// memberTimeCost prices one member's own join/leave span under the given model.
func memberTimeCost(model Model, spans []ResourceSpan, m *Member, now time.Time) (int, decimal.Decimal, error) {
	left := now
	if m.LeftAt != nil {
		left = *m.LeftAt
	}
	duration, err := ElapsedMinutes(m.JoinedAt, &left, now)
	if err != nil {
		return 0, decimal.Zero, err
	}

	total := decimal.Zero
	secondRate := decimal.Zero
	charged := false
	for _, span := range spans {
		from, to, ok := overlap(m.JoinedAt, left, span.StartedAt, span.end(now))
		if !ok {
			continue
		}
		charged = true
		switch model {
		case ModelPerHead:
			secondRate = secondRate.Add(span.Tier.FirstHourRate.Mul(decimal.NewFromInt(elapsedSeconds(from, to))))
		default:
			minutes, err := ElapsedMinutes(from, &to, now)
			if err != nil {
				return 0, decimal.Zero, err
			}
			total = total.Add(TimeCost(minutes, span.Tier))
		}
	}

	// a member who joined and left in the same instant still owes the first hour of
	// the resource that was running at that moment
	if !charged && model != ModelPerHead {
		if span, ok := spanAt(spans, m.JoinedAt, now); ok {
			total = TimeCost(0, span.Tier)
		}
	}

	if model == ModelPerHead {
		total = secondRate.Div(secondsPerHour).Ceil()
	}
	return duration, total, nil
}

func spanAt(spans []ResourceSpan, at, now time.Time) (ResourceSpan, bool) {
	for i := len(spans) - 1; i >= 0; i-- {
		span := spans[i]
		if !at.Before(span.StartedAt) && (span.Open() || at.Before(span.end(now))) {
			return span, true
		}
	}
	return ResourceSpan{}, false
}
