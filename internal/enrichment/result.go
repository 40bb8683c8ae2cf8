// Package enrichment runs a target through ordered data-provider layers.
//
// No layer can abort the run: every layer produces exactly one Result,
// which is a Success, a Failure or a Skipped outcome.
package enrichment

import (
	"encoding/json"

	"github.com/sells-group/lead-intel/internal/model"
)

// Layer positions.
const (
	LayerRegistry = 1
	LayerPresence = 2
	LayerPremium  = 3
)

// Outcome is the closed set of layer outcomes: Success, Failure or Skipped.
type Outcome interface {
	outcome()
}

// Success means the provider answered and its data was kept.
type Success struct {
	FieldsEnriched int
	Data           map[string]any
}

// Failure means the provider was called and did not answer usefully.
type Failure struct {
	Error string
}

// Skipped means the provider was deliberately not called.
type Skipped struct {
	Reason string
}

func (Success) outcome() {}
func (Failure) outcome() {}
func (Skipped) outcome() {}

// Result is one layer's entry in an enrichment report.
type Result struct {
	Layer    int
	Provider string
	Outcome  Outcome
}

// Succeeded reports whether the outcome is a Success.
func (r Result) Succeeded() bool {
	_, ok := r.Outcome.(Success)
	return ok
}

// FieldsEnriched is the Success field count, or zero.
func (r Result) FieldsEnriched() int {
	if s, ok := r.Outcome.(Success); ok {
		return s.FieldsEnriched
	}
	return 0
}

type resultJSON struct {
	Layer          int            `json:"layer"`
	Provider       string         `json:"provider"`
	Success        bool           `json:"success"`
	FieldsEnriched *int           `json:"fields_enriched,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	Error          string         `json:"error,omitempty"`
	Skipped        bool           `json:"skipped,omitempty"`
}

// MarshalJSON flattens the outcome. Skipped renders as success=false with
// its reason in error, the same shape a caller sees for a failure.
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{Layer: r.Layer, Provider: r.Provider}
	switch o := r.Outcome.(type) {
	case Success:
		n := o.FieldsEnriched
		out.Success = true
		out.FieldsEnriched = &n
		out.Data = o.Data
	case Failure:
		out.Error = o.Error
	case Skipped:
		out.Error = o.Reason
		out.Skipped = true
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a Result written by MarshalJSON.
func (r *Result) UnmarshalJSON(b []byte) error {
	var in resultJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	r.Layer, r.Provider = in.Layer, in.Provider
	switch {
	case in.Success:
		s := Success{Data: in.Data}
		if in.FieldsEnriched != nil {
			s.FieldsEnriched = *in.FieldsEnriched
		}
		r.Outcome = s
	case in.Skipped:
		r.Outcome = Skipped{Reason: in.Error}
	default:
		r.Outcome = Failure{Error: in.Error}
	}
	return nil
}

// Report is the outcome of one enrichment run.
type Report struct {
	TargetID            string       `json:"target_id"`
	Results             []Result     `json:"results"`
	TotalFieldsEnriched int          `json:"total_fields_enriched"`
	Target              model.Target `json:"target"`
	HistoryID           string       `json:"history_id,omitempty"`
	DurationMS          int64        `json:"duration_ms"`
}

// Result returns the entry for a layer position.
func (r *Report) Result(layer int) (Result, bool) {
	for _, res := range r.Results {
		if res.Layer == layer {
			return res, true
		}
	}
	return Result{}, false
}
