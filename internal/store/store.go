// Package store persists targets, history, usage events and contacts.
package store

import (
	"context"
	"encoding/json"
	"reflect"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-intel/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// TargetFilter specifies criteria for listing targets.
type TargetFilter struct {
	Status      model.Status      `json:"status,omitempty"`
	Temperature model.Temperature `json:"temperature,omitempty"`
	Limit       int               `json:"limit,omitempty"`
	Offset      int               `json:"offset,omitempty"`
}

// TargetLookup identifies an existing target. Keys are tried in the order
// tax id, domain, normalized name; empty keys are skipped.
type TargetLookup struct {
	TaxID          string
	Domain         string
	NormalizedName string
}

// TargetMutator edits a target in place inside a transaction. Returning an
// error aborts the transaction.
type TargetMutator func(t *model.Target) error

// ReportMutator returns the new full_report for a history record.
type ReportMutator func(existing map[string]any) map[string]any

// Store defines the persistence interface for the pipelines.
type Store interface {
	// Targets
	CreateTarget(ctx context.Context, t *model.Target) error
	GetTarget(ctx context.Context, id string) (*model.Target, error)
	FindTarget(ctx context.Context, lookup TargetLookup) (*model.Target, error)
	ListTargets(ctx context.Context, filter TargetFilter) ([]model.Target, error)
	// MutateTarget applies fn to the current row under a row lock and writes
	// the identity, technologies, enrichment and enriched_at fields back.
	MutateTarget(ctx context.Context, id string, fn TargetMutator) (*model.Target, error)
	// UpdateLatestStatus writes the denormalized status only if no newer
	// status is stored. It reports whether the write was applied.
	UpdateLatestStatus(ctx context.Context, id string, status model.LatestStatus) (bool, error)
	UpsertEnrichmentRecord(ctx context.Context, targetID, source string, data map[string]any) error

	// History
	InsertHistory(ctx context.Context, rec *model.HistoryRecord) error
	LatestHistory(ctx context.Context, targetID string) (*model.HistoryRecord, error)
	ListHistory(ctx context.Context, targetID string, limit int) ([]model.HistoryRecord, error)
	// MutateLatestReport rewrites the full_report of the target's most recent
	// history record. It returns the record id, or "" if none exists.
	MutateLatestReport(ctx context.Context, targetID string, fn ReportMutator) (string, error)

	// Usage
	CountUsage(ctx context.Context, provider string, from, to time.Time) (int, error)
	RecordUsage(ctx context.Context, provider, targetID string, at time.Time) error

	// Contacts
	UpsertContact(ctx context.Context, c *model.Contact) error
	ListContacts(ctx context.Context, targetID string) ([]model.Contact, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

// lookupKeys expands a lookup into (column, value) pairs in priority order.
// Column names are fixed here and never come from callers.
func lookupKeys(l TargetLookup) [][2]string {
	var keys [][2]string
	if v := model.NormalizeTaxID(l.TaxID); v != "" {
		keys = append(keys, [2]string{"tax_id", v})
	}
	if v := model.NormalizeDomain(l.Domain); v != "" {
		keys = append(keys, [2]string{"domain", v})
	}
	if l.NormalizedName != "" {
		keys = append(keys, [2]string{"normalized_name", l.NormalizedName})
	}
	return keys
}

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

// jsonOrEmpty marshals v, substituting empty when v is nil or a nil
// map, slice or pointer.
func jsonOrEmpty(v any, empty string) ([]byte, error) {
	if v == nil {
		return []byte(empty), nil
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer:
		if rv.IsNil() {
			return []byte(empty), nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal json")
	}
	return b, nil
}

type targetBlobs struct {
	technologies []byte
	enrichment   []byte
}

func encodeTargetBlobs(t *model.Target) (targetBlobs, error) {
	tech, err := jsonOrEmpty(t.Technologies, "[]")
	if err != nil {
		return targetBlobs{}, err
	}
	enr, err := jsonOrEmpty(t.Enrichment, "{}")
	if err != nil {
		return targetBlobs{}, err
	}
	return targetBlobs{technologies: tech, enrichment: enr}, nil
}

func decodeTargetBlobs(t *model.Target, tech, enr []byte) error {
	if len(tech) > 0 {
		if err := json.Unmarshal(tech, &t.Technologies); err != nil {
			return eris.Wrap(err, "store: unmarshal technologies")
		}
	}
	if len(enr) > 0 {
		if err := json.Unmarshal(enr, &t.Enrichment); err != nil {
			return eris.Wrap(err, "store: unmarshal enrichment")
		}
	}
	return nil
}

type historyBlobs struct {
	evidence   []byte
	breakdown  []byte
	sources    []byte
	queries    []byte
	fullReport []byte
}

func encodeHistoryBlobs(rec *model.HistoryRecord) (historyBlobs, error) {
	var hb historyBlobs
	var err error
	if hb.evidence, err = jsonOrEmpty(rec.Evidence, "[]"); err != nil {
		return hb, err
	}
	if hb.breakdown, err = jsonOrEmpty(rec.ScoreBreakdown, "null"); err != nil {
		return hb, err
	}
	if hb.sources, err = jsonOrEmpty(rec.SourcesConsulted, "{}"); err != nil {
		return hb, err
	}
	if hb.queries, err = jsonOrEmpty(rec.QueriesExecuted, "[]"); err != nil {
		return hb, err
	}
	if hb.fullReport, err = jsonOrEmpty(rec.FullReport, "{}"); err != nil {
		return hb, err
	}
	return hb, nil
}

func decodeHistoryBlobs(rec *model.HistoryRecord, hb historyBlobs) error {
	rec.Evidence = []model.EvidenceItem{}
	for _, f := range []struct {
		raw  []byte
		dst  any
		name string
	}{
		{hb.evidence, &rec.Evidence, "evidence"},
		{hb.breakdown, &rec.ScoreBreakdown, "score breakdown"},
		{hb.sources, &rec.SourcesConsulted, "sources"},
		{hb.queries, &rec.QueriesExecuted, "queries"},
		{hb.fullReport, &rec.FullReport, "full report"},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return eris.Wrapf(err, "store: unmarshal %s", f.name)
		}
	}
	return nil
}

func decodeReport(raw []byte) (map[string]any, error) {
	report := map[string]any{}
	if len(raw) == 0 {
		return report, nil
	}
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal full report")
	}
	if report == nil {
		report = map[string]any{}
	}
	return report, nil
}
