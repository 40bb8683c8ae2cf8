package model

import (
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrInvalidTarget is returned when a target carries neither a name nor a tax id.
var ErrInvalidTarget = eris.New("model: target requires a name or tax id")

// Target is a prospect company. Attributes accumulate over its lifetime and are
// only ever merged, never replaced.
type Target struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	NormalizedName string         `json:"normalized_name"`
	TaxID          string         `json:"tax_id,omitempty"`
	Domain         string         `json:"domain,omitempty"`
	Industry       string         `json:"industry,omitempty"`
	City           string         `json:"city,omitempty"`
	State          string         `json:"state,omitempty"`
	Technologies   []string       `json:"technologies,omitempty"`
	Enrichment     map[string]any `json:"enrichment,omitempty"`
	Latest         LatestStatus   `json:"latest"`
	EnrichedAt     *time.Time     `json:"enriched_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// LatestStatus holds the denormalized outcome of the most recently completed
// verification for a target.
type LatestStatus struct {
	Status      Status      `json:"status,omitempty"`
	Score       int         `json:"score"`
	Temperature Temperature `json:"temperature,omitempty"`
	Confidence  Confidence  `json:"confidence,omitempty"`
	CheckedAt   *time.Time  `json:"checked_at,omitempty"`
}

// TargetInput is the caller-supplied identity of a target.
type TargetInput struct {
	Name     string `json:"name"`
	TaxID    string `json:"tax_id,omitempty"`
	Domain   string `json:"domain,omitempty"`
	Industry string `json:"industry,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
}

// Validate rejects identities that cannot be searched or looked up. A tax id,
// when present, must be a well-formed CNPJ.
func (in TargetInput) Validate() error {
	name := strings.TrimSpace(in.Name)
	taxID := NormalizeTaxID(in.TaxID)
	if name == "" && taxID == "" {
		return ErrInvalidTarget
	}
	if taxID != "" && !ValidCNPJ(taxID) {
		return eris.Wrapf(ErrInvalidTarget, "model: invalid tax id %q", in.TaxID)
	}
	return nil
}

// ToTarget builds a new target with normalized identity fields.
func (in TargetInput) ToTarget() Target {
	name := strings.TrimSpace(in.Name)
	return Target{
		Name:           name,
		NormalizedName: NormalizeName(name),
		TaxID:          NormalizeTaxID(in.TaxID),
		Domain:         NormalizeDomain(in.Domain),
		Industry:       strings.TrimSpace(in.Industry),
		City:           strings.TrimSpace(in.City),
		State:          strings.ToUpper(strings.TrimSpace(in.State)),
	}
}

// Validate reports whether the target has enough identity to be processed.
func (t *Target) Validate() error {
	return TargetInput{Name: t.Name, TaxID: t.TaxID}.Validate()
}

// Discovery carries identity attributes learned by an enrichment layer.
type Discovery struct {
	LegalName    string   `json:"legal_name,omitempty"`
	TaxID        string   `json:"tax_id,omitempty"`
	Domain       string   `json:"domain,omitempty"`
	Industry     string   `json:"industry,omitempty"`
	City         string   `json:"city,omitempty"`
	State        string   `json:"state,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
}

// Empty reports whether the discovery carries nothing.
func (d Discovery) Empty() bool {
	return d.LegalName == "" && d.TaxID == "" && d.Domain == "" && d.Industry == "" &&
		d.City == "" && d.State == "" && len(d.Technologies) == 0
}

// Absorb merges a discovery into the target additively: empty fields are
// filled, populated fields are kept, technologies are unioned. It returns the
// number of fields that changed.
func (t *Target) Absorb(d Discovery) int {
	changed := 0
	fill := func(dst *string, v string) {
		v = strings.TrimSpace(v)
		if *dst == "" && v != "" {
			*dst = v
			changed++
		}
	}

	if t.Name == "" && d.LegalName != "" {
		t.Name = strings.TrimSpace(d.LegalName)
		t.NormalizedName = NormalizeName(t.Name)
		changed++
	}
	if taxID := NormalizeTaxID(d.TaxID); t.TaxID == "" && ValidCNPJ(taxID) {
		t.TaxID = taxID
		changed++
	}
	fill(&t.Domain, NormalizeDomain(d.Domain))
	fill(&t.Industry, d.Industry)
	fill(&t.City, d.City)
	fill(&t.State, strings.ToUpper(d.State))

	for _, tech := range d.Technologies {
		tech = strings.TrimSpace(tech)
		if tech == "" {
			continue
		}
		if !slices.ContainsFunc(t.Technologies, func(s string) bool { return strings.EqualFold(s, tech) }) {
			t.Technologies = append(t.Technologies, tech)
			changed++
		}
	}
	return changed
}

// SearchName returns the best name to use in search queries.
func (t *Target) SearchName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.TaxID
}
