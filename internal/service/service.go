// Package service is the entry point shared by the CLI and the HTTP API. It
// resolves targets and runs the verification and enrichment pipelines.
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intel/internal/batch"
	"github.com/sells-group/lead-intel/internal/enrichment"
	"github.com/sells-group/lead-intel/internal/evidence"
	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/internal/presence"
	"github.com/sells-group/lead-intel/internal/store"
)

// ErrInvalidInput marks caller mistakes other than an invalid target.
var ErrInvalidInput = eris.New("service: invalid input")

// ErrUnknownProvider is returned for usage queries on an ungated provider.
var ErrUnknownProvider = eris.New("service: unknown provider")

const defaultDiscoverLimit = 10

// Deps are the collaborators a Service runs on. Presence and Batch are
// optional.
type Deps struct {
	Store        store.Store
	Verifier     *evidence.Verifier
	Orchestrator *enrichment.Orchestrator
	Discoverer   *evidence.Discoverer
	Quotas       []*enrichment.Quota
	Presence     *presence.Analyzer
	Batch        *batch.Driver
}

// Service glues the store and pipelines together.
type Service struct {
	store      store.Store
	verifier   *evidence.Verifier
	orch       *enrichment.Orchestrator
	discoverer *evidence.Discoverer
	quotas     map[string]*enrichment.Quota
	presence   *presence.Analyzer
	batch      *batch.Driver
}

// New builds a Service.
func New(d Deps) *Service {
	s := &Service{
		store:      d.Store,
		verifier:   d.Verifier,
		orch:       d.Orchestrator,
		discoverer: d.Discoverer,
		quotas:     make(map[string]*enrichment.Quota, len(d.Quotas)),
		presence:   d.Presence,
		batch:      d.Batch,
	}
	for _, q := range d.Quotas {
		s.quotas[q.Provider()] = q
	}
	if s.batch == nil {
		s.batch = batch.NewDriver(0, 1)
	}
	return s
}

// Register returns the existing target matching in's tax id, domain or
// name, or creates a new one. New attributes in in are merged into an
// existing target. The bool reports whether a target was created.
func (s *Service) Register(ctx context.Context, in model.TargetInput) (*model.Target, bool, error) {
	if err := in.Validate(); err != nil {
		return nil, false, err
	}
	candidate := in.ToTarget()

	existing, err := s.store.FindTarget(ctx, store.TargetLookup{
		TaxID:          candidate.TaxID,
		Domain:         candidate.Domain,
		NormalizedName: candidate.NormalizedName,
	})
	switch {
	case err == nil:
		updated, err := s.store.MutateTarget(ctx, existing.ID, func(t *model.Target) error {
			t.Absorb(model.Discovery{
				LegalName: candidate.Name,
				TaxID:     candidate.TaxID,
				Domain:    candidate.Domain,
				Industry:  candidate.Industry,
				City:      candidate.City,
				State:     candidate.State,
			})
			return nil
		})
		if err != nil {
			return nil, false, err
		}
		return updated, false, nil
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, false, err
	}

	if err := s.store.CreateTarget(ctx, &candidate); err != nil {
		return nil, false, err
	}
	zap.L().Info("service: target registered",
		zap.String("target_id", candidate.ID),
		zap.String("target", candidate.SearchName()),
	)
	return &candidate, true, nil
}

// Target loads one target.
func (s *Service) Target(ctx context.Context, id string) (*model.Target, error) {
	return s.store.GetTarget(ctx, id)
}

// Targets lists targets.
func (s *Service) Targets(ctx context.Context, f store.TargetFilter) ([]model.Target, error) {
	return s.store.ListTargets(ctx, f)
}

// Verify runs the evidence pipeline for a stored target. When the run was
// persisted and a presence analyzer is configured, the digital-presence
// sub-report is attached to the new history record.
func (s *Service) Verify(ctx context.Context, id string) (*evidence.Report, error) {
	t, err := s.store.GetTarget(ctx, id)
	if err != nil {
		return nil, err
	}
	report, err := s.verifier.Verify(ctx, t)
	if err != nil {
		return nil, err
	}
	if s.presence != nil && report.Persisted {
		s.presence.Attach(ctx, *t)
	}
	return report, nil
}

// Enrich runs the enrichment layers for a stored target.
func (s *Service) Enrich(ctx context.Context, req enrichment.Request) (*enrichment.Report, error) {
	return s.orch.Enrich(ctx, req)
}

// VerifyBatch verifies every id through the batch driver.
func (s *Service) VerifyBatch(ctx context.Context, ids []string) (batch.Summary, error) {
	return s.batch.Run(ctx, ids, func(ctx context.Context, id string) error {
		_, err := s.Verify(ctx, id)
		return err
	})
}

// EnrichBatch enriches every id through the batch driver.
func (s *Service) EnrichBatch(ctx context.Context, ids []string, includePremium bool) (batch.Summary, error) {
	return s.batch.Run(ctx, ids, func(ctx context.Context, id string) error {
		_, err := s.Enrich(ctx, enrichment.Request{TargetID: id, IncludePremium: includePremium})
		return err
	})
}

// History returns a target's newest history records.
func (s *Service) History(ctx context.Context, id string, limit int) ([]model.HistoryRecord, error) {
	if _, err := s.store.GetTarget(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListHistory(ctx, id, limit)
}

// Contacts returns a target's decision makers.
func (s *Service) Contacts(ctx context.Context, id string) ([]model.Contact, error) {
	if _, err := s.store.GetTarget(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListContacts(ctx, id)
}

// Usage reports a gated provider's consumption in the current period.
func (s *Service) Usage(ctx context.Context, provider string) (enrichment.Usage, error) {
	q, ok := s.quotas[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return enrichment.Usage{}, eris.Wrapf(ErrUnknownProvider, "service: %q", provider)
	}
	return q.Usage(ctx, q.CurrentPeriod())
}

// Discover searches query and returns company names found in the results.
func (s *Service) Discover(ctx context.Context, query string, limit int) ([]evidence.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, eris.Wrap(ErrInvalidInput, "service: query is required")
	}
	if limit <= 0 {
		limit = defaultDiscoverLimit
	}
	return s.discoverer.Discover(ctx, query, limit), nil
}
