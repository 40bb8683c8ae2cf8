// Package layers implements the enrichment providers run by the orchestrator.
package layers

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/lead-intel/internal/enrichment"
	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/pkg/brasilapi"
)

// Registry is layer 1: the federal CNPJ registry via BrasilAPI.
type Registry struct {
	client brasilapi.Client
}

// NewRegistry builds the registry layer.
func NewRegistry(c brasilapi.Client) *Registry {
	return &Registry{client: c}
}

func (r *Registry) Provider() string { return "brasilapi" }

// SkipReason skips targets that were registered without a CNPJ.
func (r *Registry) SkipReason(t model.Target) string {
	if t.TaxID == "" {
		return "no tax id"
	}
	return ""
}

func (r *Registry) Enrich(ctx context.Context, t model.Target) (*enrichment.Output, error) {
	co, err := r.client.LookupCNPJ(ctx, t.TaxID)
	if err != nil {
		return nil, err
	}
	if co == nil {
		return nil, eris.Errorf("registry: empty record for %s", t.TaxID)
	}

	data := compact(map[string]any{
		"legal_name":          strings.TrimSpace(co.RazaoSocial),
		"trade_name":          strings.TrimSpace(co.NomeFantasia),
		"cnae":                co.CNAEFiscal,
		"cnae_description":    strings.TrimSpace(co.CNAEFiscalDescricao),
		"city":                titleCase(co.Municipio),
		"state":               strings.ToUpper(strings.TrimSpace(co.UF)),
		"postal_code":         strings.TrimSpace(co.CEP),
		"size":                strings.TrimSpace(co.Porte),
		"founded":             strings.TrimSpace(co.DataInicioAtividade),
		"registration_status": strings.TrimSpace(co.SituacaoCadastral),
		"email":               strings.ToLower(strings.TrimSpace(co.Email)),
		"capital":             co.CapitalSocial,
	})

	return &enrichment.Output{
		Data: data,
		Discovery: model.Discovery{
			LegalName: co.RazaoSocial,
			TaxID:     co.CNPJ,
			Industry:  co.CNAEFiscalDescricao,
			City:      titleCase(co.Municipio),
			State:     co.UF,
			Domain:    corporateEmailDomain(co.Email),
		},
		FieldsEnriched: len(data),
	}, nil
}

// Free mail providers never identify the company.
var freeMailDomains = map[string]bool{
	"gmail.com":    true,
	"hotmail.com":  true,
	"outlook.com":  true,
	"yahoo.com":    true,
	"yahoo.com.br": true,
	"bol.com.br":   true,
	"uol.com.br":   true,
	"terra.com.br": true,
	"ig.com.br":    true,
	"live.com":     true,
	"icloud.com":   true,
	"globo.com":    true,
}

// corporateEmailDomain returns the registrable domain of a registry email,
// or "" for free mail providers.
func corporateEmailDomain(email string) string {
	_, host, ok := strings.Cut(strings.ToLower(strings.TrimSpace(email)), "@")
	if !ok {
		return ""
	}
	d := model.NormalizeDomain(host)
	if d == "" || freeMailDomains[d] {
		return ""
	}
	return d
}

// compact drops zero values so that only populated fields are stored and
// counted.
func compact(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch x := v.(type) {
		case string:
			if x == "" {
				continue
			}
		case int:
			if x == 0 {
				continue
			}
		case float64:
			if x == 0 {
				continue
			}
		case []string:
			if len(x) == 0 {
				continue
			}
		case nil:
			continue
		}
		out[k] = v
	}
	return out
}

// titleCase turns registry upper-case ("SAO JOSE DOS CAMPOS") into
// "Sao Jose dos Campos". Connectives stay lower-case.
func titleCase(s string) string {
	caser := cases.Title(language.BrazilianPortuguese)
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		switch w {
		case "de", "da", "do", "das", "dos", "e":
			if i > 0 {
				continue
			}
		}
		words[i] = caser.String(w)
	}
	return strings.Join(words, " ")
}
