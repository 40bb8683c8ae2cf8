package layers

import (
	"context"
	"strings"

	"github.com/sells-group/lead-intel/internal/enrichment"
	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/pkg/apollo"
)

// Premium is layer 3: Apollo organization enrichment, keyed by domain. A
// no-match answer is returned as an error and so never consumes quota.
type Premium struct {
	client apollo.Client
}

// NewPremium builds the premium layer.
func NewPremium(c apollo.Client) *Premium {
	return &Premium{client: c}
}

func (p *Premium) Provider() string { return "apollo" }

// SkipReason skips targets whose domain is still unknown.
func (p *Premium) SkipReason(t model.Target) string {
	if t.Domain == "" {
		return "no domain"
	}
	return ""
}

func (p *Premium) Enrich(ctx context.Context, t model.Target) (*enrichment.Output, error) {
	org, err := p.client.EnrichOrganization(ctx, t.Domain)
	if err != nil {
		return nil, err
	}

	data := compact(map[string]any{
		"name":         strings.TrimSpace(org.Name),
		"industry":     strings.TrimSpace(org.Industry),
		"employees":    org.EstimatedNumEmployees,
		"revenue":      org.AnnualRevenue,
		"founded_year": org.FoundedYear,
		"phone":        strings.TrimSpace(org.Phone),
		"linkedin_url": strings.TrimSpace(org.LinkedInURL),
		"website":      strings.TrimSpace(org.WebsiteURL),
		"technologies": org.TechnologyNames,
		"keywords":     org.Keywords,
	})

	return &enrichment.Output{
		Data: data,
		Discovery: model.Discovery{
			Domain:       org.PrimaryDomain,
			Industry:     org.Industry,
			City:         org.City,
			State:        brazilianState(org.State),
			Technologies: org.TechnologyNames,
		},
		FieldsEnriched: len(data),
	}, nil
}

var stateCodes = map[string]string{
	"acre": "AC", "alagoas": "AL", "amapa": "AP", "amazonas": "AM", "bahia": "BA", "ceara": "CE",
	"distrito federal": "DF", "espirito santo": "ES", "goias": "GO", "maranhao": "MA",
	"mato grosso": "MT", "mato grosso do sul": "MS", "minas gerais": "MG", "para": "PA",
	"paraiba": "PB", "parana": "PR", "pernambuco": "PE", "piaui": "PI", "rio de janeiro": "RJ",
	"rio grande do norte": "RN", "rio grande do sul": "RS", "rondonia": "RO", "roraima": "RR",
	"santa catarina": "SC", "sao paulo": "SP", "sergipe": "SE", "tocantins": "TO",
}

// brazilianState maps Apollo's spelled-out state ("São Paulo") to its UF
// code. Two-letter input passes through; anything else is dropped.
func brazilianState(s string) string {
	s = strings.TrimSpace(s)
	if len(s) == 2 {
		return strings.ToUpper(s)
	}
	return stateCodes[model.NormalizeName(s)]
}
