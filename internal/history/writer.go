// Package history records pipeline runs and keeps a target's denormalized
// fields current.
//
// History records are append-only. The only later change allowed is merging
// a sub-report into the newest record's full_report.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/internal/resilience"
	"github.com/sells-group/lead-intel/internal/store"
)

// Writer persists history and target updates through a store, retrying
// transient failures.
type Writer struct {
	store store.Store
	retry resilience.RetryPolicy
	now   func() time.Time
}

// Option configures a Writer.
type Option func(*Writer)

// WithRetryPolicy overrides the default write retry policy.
func WithRetryPolicy(p resilience.RetryPolicy) Option {
	return func(w *Writer) {
		w.retry = p
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		w.now = now
	}
}

// NewWriter builds a writer over st.
func NewWriter(st store.Store, opts ...Option) *Writer {
	w := &Writer{
		store: st,
		retry: resilience.DefaultRetryPolicy(),
		now:   time.Now,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// RecordRun appends rec to the target's history. ID and CreatedAt are
// assigned when empty so that retries insert the same row.
func (w *Writer) RecordRun(ctx context.Context, rec *model.HistoryRecord) error {
	if rec.TargetID == "" {
		return eris.New("history: record requires a target id")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = w.now().UTC()
	}
	return resilience.Retry(ctx, w.retry, "history.record_run", func(ctx context.Context) error {
		return w.store.InsertHistory(ctx, rec)
	})
}

// UpdateLatest writes the target's denormalized status. A status older than
// the stored one is dropped silently.
func (w *Writer) UpdateLatest(ctx context.Context, targetID string, status model.LatestStatus) error {
	if status.CheckedAt == nil {
		now := w.now().UTC()
		status.CheckedAt = &now
	}
	applied, err := resilience.RetryVal(ctx, w.retry, "history.update_latest", func(ctx context.Context) (bool, error) {
		return w.store.UpdateLatestStatus(ctx, targetID, status)
	})
	if err != nil {
		return err
	}
	if !applied {
		zap.L().Info("history: latest status not applied (stale or missing target)",
			zap.String("target_id", targetID),
			zap.Time("checked_at", *status.CheckedAt),
		)
	}
	return nil
}

// MergeEnrichment places payload under provider in the target's enrichment
// blob, leaving other providers' keys intact, and upserts the per-source
// enrichment record.
func (w *Writer) MergeEnrichment(ctx context.Context, targetID, provider string, payload map[string]any) error {
	if provider == "" {
		return eris.New("history: merge enrichment requires a provider")
	}
	err := resilience.Retry(ctx, w.retry, "history.merge_enrichment", func(ctx context.Context) error {
		_, err := w.store.MutateTarget(ctx, targetID, func(t *model.Target) error {
			t.Enrichment = MergeStructured(t.Enrichment, map[string]any{provider: payload})
			now := w.now().UTC()
			t.EnrichedAt = &now
			return nil
		})
		return err
	})
	if err != nil {
		return err
	}
	return resilience.Retry(ctx, w.retry, "history.upsert_enrichment_record", func(ctx context.Context) error {
		return w.store.UpsertEnrichmentRecord(ctx, targetID, provider, payload)
	})
}

// ApplyDiscovery merges learned identity attributes into the stored target
// and returns the updated target with the number of fields that changed.
func (w *Writer) ApplyDiscovery(ctx context.Context, targetID string, d model.Discovery) (*model.Target, int, error) {
	var changed int
	t, err := resilience.RetryVal(ctx, w.retry, "history.apply_discovery", func(ctx context.Context) (*model.Target, error) {
		return w.store.MutateTarget(ctx, targetID, func(t *model.Target) error {
			changed = t.Absorb(d)
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}
	return t, changed, nil
}

// AttachSubReport merges {key: report} into the full_report of the target's
// newest history record. With no history yet, it appends a sub_report
// record instead.
func (w *Writer) AttachSubReport(ctx context.Context, targetID, key string, report any) error {
	if key == "" {
		return eris.New("history: sub-report requires a key")
	}
	incoming := map[string]any{key: report}

	id, err := resilience.RetryVal(ctx, w.retry, "history.attach_sub_report", func(ctx context.Context) (string, error) {
		return w.store.MutateLatestReport(ctx, targetID, func(existing map[string]any) map[string]any {
			return MergeStructured(existing, incoming)
		})
	})
	if err != nil {
		return err
	}
	if id != "" {
		zap.L().Debug("history: sub-report attached",
			zap.String("target_id", targetID),
			zap.String("history_id", id),
			zap.String("key", key),
		)
		return nil
	}

	return w.RecordRun(ctx, &model.HistoryRecord{
		TargetID:   targetID,
		Kind:       model.HistorySubReport,
		FullReport: incoming,
	})
}

// UpsertContacts stores contacts for a target, deduplicated by email or
// normalized name. It returns how many were written.
func (w *Writer) UpsertContacts(ctx context.Context, targetID string, contacts []model.Contact) (int, error) {
	n := 0
	for i := range contacts {
		c := contacts[i]
		c.TargetID = targetID
		if c.Name == "" {
			continue
		}
		err := resilience.Retry(ctx, w.retry, "history.upsert_contact", func(ctx context.Context) error {
			return w.store.UpsertContact(ctx, &c)
		})
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
