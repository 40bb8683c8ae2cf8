package evidence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-intel/internal/model"
)

// HistoryWriter persists verification outcomes.
type HistoryWriter interface {
	RecordRun(ctx context.Context, rec *model.HistoryRecord) error
	UpdateLatest(ctx context.Context, targetID string, status model.LatestStatus) error
}

// Report is the outcome of one verification.
type Report struct {
	TargetID        string               `json:"target_id"`
	HistoryID       string               `json:"history_id,omitempty"`
	Status          model.Status         `json:"status"`
	Breakdown       model.ScoreBreakdown `json:"score_breakdown"`
	Evidence        []model.EvidenceItem `json:"evidence"`
	SourcesChecked  map[string]int       `json:"sources_checked"`
	QueriesExecuted []string             `json:"queries_executed"`
	DurationMS      int64                `json:"duration_ms"`
	CheckedAt       time.Time            `json:"checked_at"`
	Persisted       bool                 `json:"persisted"`
}

// Verifier collects evidence for a target, scores it and records the result.
type Verifier struct {
	collector *Collector
	scorer    *Scorer
	playbook  Playbook
	history   HistoryWriter
	now       func() time.Time
}

// NewVerifier wires a verifier. A nil history writer disables persistence.
func NewVerifier(c *Collector, pb Playbook, hw HistoryWriter) *Verifier {
	return &Verifier{
		collector: c,
		scorer:    NewScorer(pb),
		playbook:  pb,
		history:   hw,
		now:       time.Now,
	}
}

// Verify runs the full evidence pipeline for target. It fails only on an
// invalid identity; a failed write is logged and reported via Persisted.
func (v *Verifier) Verify(ctx context.Context, target *model.Target) (*Report, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	start := v.now()
	col := v.collector.Collect(ctx, target)
	breakdown := v.scorer.Score(col.Items)
	checkedAt := v.now().UTC()

	report := &Report{
		TargetID:        target.ID,
		Status:          StatusFor(breakdown, len(col.Items)),
		Breakdown:       breakdown,
		Evidence:        col.Items,
		SourcesChecked:  col.SourcesChecked,
		QueriesExecuted: col.QueriesExecuted,
		DurationMS:      checkedAt.Sub(start).Milliseconds(),
		CheckedAt:       checkedAt,
	}

	log := zap.L().With(
		zap.String("target_id", target.ID),
		zap.String("target", target.SearchName()),
		zap.Int("score", breakdown.TotalScore),
		zap.String("temperature", string(breakdown.Temperature)),
	)

	if v.history == nil || target.ID == "" {
		log.Info("evidence: verified (not persisted)")
		return report, nil
	}

	if err := v.persist(ctx, report); err != nil {
		log.Error("evidence: persist verification", zap.Bool("persist_failed", true), zap.Error(err))
		return report, nil
	}
	report.Persisted = true
	log.Info("evidence: verified", zap.String("history_id", report.HistoryID))
	return report, nil
}

func (v *Verifier) persist(ctx context.Context, r *Report) error {
	bd := r.Breakdown
	rec := &model.HistoryRecord{
		TargetID:         r.TargetID,
		Kind:             model.HistoryVerification,
		Status:           r.Status,
		Confidence:       bd.Confidence,
		Score:            bd.TotalScore,
		Temperature:      bd.Temperature,
		Evidence:         r.Evidence,
		ScoreBreakdown:   &bd,
		SourcesConsulted: r.SourcesChecked,
		QueriesExecuted:  r.QueriesExecuted,
		DurationMS:       r.DurationMS,
		FullReport: map[string]any{
			"product":        v.playbook.Product,
			"status":         string(r.Status),
			"evidence_count": len(r.Evidence),
			"thresholds": map[string]any{
				"hot":  v.playbook.Thresholds.Hot,
				"warm": v.playbook.Thresholds.Warm,
			},
		},
		CreatedAt: r.CheckedAt,
	}
	if err := v.history.RecordRun(ctx, rec); err != nil {
		return err
	}
	r.HistoryID = rec.ID

	checked := r.CheckedAt
	return v.history.UpdateLatest(ctx, r.TargetID, model.LatestStatus{
		Status:      r.Status,
		Score:       bd.TotalScore,
		Temperature: bd.Temperature,
		Confidence:  bd.Confidence,
		CheckedAt:   &checked,
	})
}
