package enrichment

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

// Period is a half-open usage window [Start, End).
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CalendarMonth returns the calendar month containing now, in loc.
func CalendarMonth(now time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return Period{Start: start, End: start.AddDate(0, 1, 0)}
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// UsageStore counts and appends usage events.
type UsageStore interface {
	CountUsage(ctx context.Context, provider string, from, to time.Time) (int, error)
	RecordUsage(ctx context.Context, provider, targetID string, at time.Time) error
}

// Usage is a provider's consumption within a period.
type Usage struct {
	Provider string `json:"provider"`
	Used     int    `json:"used"`
	Limit    int    `json:"limit"`
	Period   Period `json:"period"`
}

// Remaining is how many calls are left, never negative.
func (u Usage) Remaining() int {
	return max(u.Limit-u.Used, 0)
}

// Exhausted reports whether no calls are left.
func (u Usage) Exhausted() bool {
	return u.Used >= u.Limit
}

// LimitReason is the skip reason for an exhausted quota.
func (u Usage) LimitReason() string {
	return fmt.Sprintf("limit reached (%d/%d)", u.Used, u.Limit)
}

// Quota gates a paid provider by a monthly call budget. Concurrent callers
// can both pass the check at limit-1, so a small over-run is possible; the
// counter only moves after a successful call.
type Quota struct {
	store    UsageStore
	provider string
	limit    int
	loc      *time.Location
	now      func() time.Time
}

// QuotaOption configures a Quota.
type QuotaOption func(*Quota)

// WithLocation sets the timezone that defines month boundaries.
func WithLocation(loc *time.Location) QuotaOption {
	return func(q *Quota) {
		if loc != nil {
			q.loc = loc
		}
	}
}

// WithQuotaClock overrides the time source.
func WithQuotaClock(now func() time.Time) QuotaOption {
	return func(q *Quota) {
		q.now = now
	}
}

// NewQuota builds a quota for provider with a per-month limit.
func NewQuota(st UsageStore, provider string, limit int, opts ...QuotaOption) *Quota {
	q := &Quota{
		store:    st,
		provider: provider,
		limit:    limit,
		loc:      time.UTC,
		now:      time.Now,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Provider is the gated provider's name.
func (q *Quota) Provider() string { return q.provider }

// CurrentPeriod is the period that contains now. Callers compute it once per
// invocation and pass it to Usage and Consume.
func (q *Quota) CurrentPeriod() Period {
	return CalendarMonth(q.now(), q.loc)
}

// Usage reads consumption within p.
func (q *Quota) Usage(ctx context.Context, p Period) (Usage, error) {
	n, err := q.store.CountUsage(ctx, q.provider, p.Start, p.End)
	if err != nil {
		return Usage{}, eris.Wrapf(err, "enrichment: read %s usage", q.provider)
	}
	return Usage{Provider: q.provider, Used: n, Limit: q.limit, Period: p}, nil
}

// Consume records one successful call against p. The event is stamped
// inside p even if the clock has since crossed into the next period.
func (q *Quota) Consume(ctx context.Context, p Period, targetID string) error {
	at := q.now()
	switch {
	case at.Before(p.Start):
		at = p.Start
	case !at.Before(p.End):
		at = p.End.Add(-time.Nanosecond)
	}
	err := q.store.RecordUsage(ctx, q.provider, targetID, at)
	return eris.Wrapf(err, "enrichment: record %s usage", q.provider)
}
