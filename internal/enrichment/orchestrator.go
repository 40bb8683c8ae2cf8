package enrichment

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/internal/resilience"
)

// DefaultLayerTimeout bounds a single layer call.
const DefaultLayerTimeout = 30 * time.Second

// Skip reasons.
const (
	ReasonPremiumNotRequested = "premium not requested"
	ReasonNotConfigured       = "provider not configured"
	ReasonCanceled            = "canceled"
)

// Sub-report key under which decision makers are attached to history.
const DecisionMakersKey = "decision_makers"

// Output is what a layer learned about a target.
type Output struct {
	// Data is stored under the provider's key in the target's enrichment blob.
	Data map[string]any
	// Discovery is merged into the target before the next layer runs.
	Discovery model.Discovery
	// Contacts are upserted as decision makers.
	Contacts       []model.Contact
	FieldsEnriched int
}

// Layer is one enrichment provider.
type Layer interface {
	Provider() string
	Enrich(ctx context.Context, t model.Target) (*Output, error)
}

// Gated is implemented by layers that need particular target attributes.
// A non-empty reason skips the layer without calling the provider.
type Gated interface {
	SkipReason(t model.Target) string
}

// TargetSource loads targets.
type TargetSource interface {
	GetTarget(ctx context.Context, id string) (*model.Target, error)
}

// Writer persists what the layers learn.
type Writer interface {
	ApplyDiscovery(ctx context.Context, targetID string, d model.Discovery) (*model.Target, int, error)
	MergeEnrichment(ctx context.Context, targetID, provider string, payload map[string]any) error
	UpsertContacts(ctx context.Context, targetID string, contacts []model.Contact) (int, error)
	RecordRun(ctx context.Context, rec *model.HistoryRecord) error
}

// Layers are the three provider slots. A nil slot is reported as skipped.
type Layers struct {
	Registry Layer
	Presence Layer
	Premium  Layer
}

// Request selects a target and the optional premium layer.
type Request struct {
	TargetID string `json:"target_id"`
	// TaxID supplies a CNPJ for targets registered without one.
	TaxID          string `json:"tax_id,omitempty"`
	IncludePremium bool   `json:"include_premium"`
}

// Orchestrator runs the layers in order for one target at a time.
type Orchestrator struct {
	targets  TargetSource
	writer   Writer
	layers   Layers
	quota    *Quota
	breakers *resilience.Breakers
	timeout  time.Duration
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLayerTimeout overrides DefaultLayerTimeout.
func WithLayerTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithBreakers shares a breaker registry across orchestrators.
func WithBreakers(b *resilience.Breakers) Option {
	return func(o *Orchestrator) {
		o.breakers = b
	}
}

// WithClock overrides the time source used for durations.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator wires an orchestrator. quota gates Layers.Premium.
func NewOrchestrator(targets TargetSource, w Writer, layers Layers, quota *Quota, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		targets:  targets,
		writer:   w,
		layers:   layers,
		quota:    quota,
		breakers: resilience.NewBreakers(resilience.DefaultBreakerConfig()),
		timeout:  DefaultLayerTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Enrich runs every layer for the requested target. Only a missing or
// invalid target is an error; provider problems become Failure entries.
func (o *Orchestrator) Enrich(ctx context.Context, req Request) (*Report, error) {
	t, err := o.targets.GetTarget(ctx, req.TargetID)
	if err != nil {
		return nil, err
	}

	var pending model.Discovery
	if req.TaxID != "" && t.TaxID == "" {
		taxID := model.NormalizeTaxID(req.TaxID)
		if !model.ValidCNPJ(taxID) {
			return nil, eris.Wrapf(model.ErrInvalidTarget, "enrichment: invalid tax id %q", req.TaxID)
		}
		t.TaxID = taxID
		pending.TaxID = taxID
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	start := o.now()
	log := zap.L().With(zap.String("target_id", t.ID), zap.String("target", t.SearchName()))
	log.Info("enrichment: starting", zap.Bool("include_premium", req.IncludePremium))

	if !pending.Empty() {
		t = o.absorb(ctx, t, pending)
	}

	// One period per invocation keeps the check and the increment aligned.
	var period Period
	if o.quota != nil {
		period = o.quota.CurrentPeriod()
	}

	report := &Report{TargetID: t.ID}
	var contacts []model.Contact

	steps := []struct {
		layer int
		impl  Layer
	}{
		{LayerRegistry, o.layers.Registry},
		{LayerPresence, o.layers.Presence},
		{LayerPremium, o.layers.Premium},
	}
	for _, step := range steps {
		provider := providerName(step.layer, step.impl)

		if ctx.Err() != nil {
			report.Results = append(report.Results, Result{Layer: step.layer, Provider: provider, Outcome: Skipped{Reason: ReasonCanceled}})
			continue
		}
		if step.impl == nil {
			report.Results = append(report.Results, Result{Layer: step.layer, Provider: provider, Outcome: Skipped{Reason: ReasonNotConfigured}})
			continue
		}

		if step.layer == LayerPremium {
			if skip := o.premiumGate(ctx, req, period); skip != nil {
				report.Results = append(report.Results, Result{Layer: step.layer, Provider: provider, Outcome: skip})
				continue
			}
		}
		if g, ok := step.impl.(Gated); ok {
			if reason := g.SkipReason(*t); reason != "" {
				report.Results = append(report.Results, Result{Layer: step.layer, Provider: provider, Outcome: Skipped{Reason: reason}})
				continue
			}
		}

		res, out := o.runLayer(ctx, step.layer, step.impl, *t)
		if out != nil {
			t = o.persist(ctx, t, provider, out)
			contacts = append(contacts, out.Contacts...)
			if step.layer == LayerPremium && o.quota != nil {
				if err := o.quota.Consume(ctx, period, t.ID); err != nil {
					log.Error("enrichment: quota increment failed", zap.Error(err))
				}
			}
		}
		report.Results = append(report.Results, res)
	}

	for _, r := range report.Results {
		report.TotalFieldsEnriched += r.FieldsEnriched()
	}
	report.DurationMS = o.now().Sub(start).Milliseconds()

	o.record(ctx, t, req, period, report, contacts)
	if len(contacts) > 0 {
		o.saveContacts(ctx, t.ID, contacts)
	}

	report.Target = *t
	log.Info("enrichment: complete",
		zap.Int("fields_enriched", report.TotalFieldsEnriched),
		zap.Int64("duration_ms", report.DurationMS),
	)
	return report, nil
}

// premiumGate returns a non-nil outcome when the premium layer must not run.
func (o *Orchestrator) premiumGate(ctx context.Context, req Request, period Period) Outcome {
	if !req.IncludePremium {
		return Skipped{Reason: ReasonPremiumNotRequested}
	}
	if o.quota == nil {
		return nil
	}
	usage, err := o.quota.Usage(ctx, period)
	if err != nil {
		zap.L().Error("enrichment: quota check failed", zap.Error(err))
		return Failure{Error: "quota check failed: " + err.Error()}
	}
	if usage.Exhausted() {
		return Skipped{Reason: usage.LimitReason()}
	}
	return nil
}

// runLayer calls one provider behind its breaker with its own timeout. A
// panic inside the provider becomes a Failure.
func (o *Orchestrator) runLayer(ctx context.Context, layer int, impl Layer, t model.Target) (Result, *Output) {
	provider := impl.Provider()
	res := Result{Layer: layer, Provider: provider}
	log := zap.L().With(zap.String("target_id", t.ID), zap.Int("layer", layer), zap.String("provider", provider))

	lctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := o.now()
	out, err := resilience.CallVal(lctx, o.breakers.For(provider), func(ctx context.Context) (*Output, error) {
		return awaitEnrich(ctx, o.timeout, impl, t)
	})
	duration := o.now().Sub(start).Milliseconds()

	if err == nil && out == nil {
		err = eris.Errorf("enrichment: %s returned no output", provider)
	}
	if err != nil {
		log.Warn("enrichment: layer failed", zap.Int64("duration_ms", duration), zap.Error(err))
		res.Outcome = Failure{Error: err.Error()}
		return res, nil
	}

	log.Info("enrichment: layer complete",
		zap.Int64("duration_ms", duration),
		zap.Int("fields_enriched", out.FieldsEnriched),
	)
	res.Outcome = Success{FieldsEnriched: out.FieldsEnriched, Data: out.Data}
	return res, out
}

type enrichResult struct {
	out *Output
	err error
}

// awaitEnrich returns when the provider does or when timeout elapses,
// whichever is first. A provider that ignores ctx is left running and its
// late result is dropped.
func awaitEnrich(ctx context.Context, timeout time.Duration, impl Layer, t model.Target) (*Output, error) {
	done := make(chan enrichResult, 1)
	go func() {
		out, err := safeEnrich(ctx, impl, t)
		done <- enrichResult{out: out, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.out, r.err
	case <-timer.C:
		return nil, eris.Wrapf(context.DeadlineExceeded, "enrichment: %s abandoned after %s", impl.Provider(), timeout)
	}
}

func safeEnrich(ctx context.Context, impl Layer, t model.Target) (out *Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("enrichment: layer panicked",
				zap.String("provider", impl.Provider()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return impl.Enrich(ctx, t)
}

// persist stores a layer's output and returns the working target for the
// next layer. Write failures are logged; the layer still counts as a success.
func (o *Orchestrator) persist(ctx context.Context, t *model.Target, provider string, out *Output) *model.Target {
	if !out.Discovery.Empty() {
		t = o.absorb(ctx, t, out.Discovery)
	}
	if len(out.Data) > 0 {
		if err := o.writer.MergeEnrichment(ctx, t.ID, provider, out.Data); err != nil {
			zap.L().Error("enrichment: merge payload failed",
				zap.String("target_id", t.ID), zap.String("provider", provider), zap.Error(err))
		}
	}
	return t
}

func (o *Orchestrator) absorb(ctx context.Context, t *model.Target, d model.Discovery) *model.Target {
	updated, _, err := o.writer.ApplyDiscovery(ctx, t.ID, d)
	if err != nil {
		zap.L().Error("enrichment: apply discovery failed", zap.String("target_id", t.ID), zap.Error(err))
		local := *t
		local.Technologies = append([]string(nil), t.Technologies...)
		local.Absorb(d)
		return &local
	}
	return updated
}

// record writes the run's history entry. Decision makers ride on that entry
// so they are never merged into an older run.
func (o *Orchestrator) record(ctx context.Context, t *model.Target, req Request, period Period, report *Report, contacts []model.Contact) {
	fullReport := map[string]any{
		"results":               report.Results,
		"total_fields_enriched": report.TotalFieldsEnriched,
		"include_premium":       req.IncludePremium,
	}
	if o.quota != nil {
		fullReport["usage_period"] = period
	}
	if len(contacts) > 0 {
		fullReport[DecisionMakersKey] = contacts
	}
	rec := &model.HistoryRecord{
		TargetID:   t.ID,
		Kind:       model.HistoryEnrichment,
		DurationMS: report.DurationMS,
		FullReport: fullReport,
	}
	if err := o.writer.RecordRun(ctx, rec); err != nil {
		zap.L().Error("enrichment: record run failed",
			zap.String("target_id", t.ID), zap.Bool("persist_failed", true), zap.Error(err))
		return
	}
	report.HistoryID = rec.ID
}

func (o *Orchestrator) saveContacts(ctx context.Context, targetID string, contacts []model.Contact) {
	log := zap.L().With(zap.String("target_id", targetID))
	n, err := o.writer.UpsertContacts(ctx, targetID, contacts)
	if err != nil {
		log.Error("enrichment: upsert contacts failed", zap.Int("saved", n), zap.Error(err))
		return
	}
	log.Info("enrichment: decision makers saved", zap.Int("contacts", n))
}

func providerName(layer int, impl Layer) string {
	if impl != nil {
		return impl.Provider()
	}
	switch layer {
	case LayerRegistry:
		return "registry"
	case LayerPresence:
		return "presence"
	default:
		return "premium"
	}
}
