// Package brasilapi provides a client for the BrasilAPI public CNPJ registry.
package brasilapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://brasilapi.com.br"

// ErrNotFound is returned when the registry has no record for a CNPJ.
var ErrNotFound = eris.New("brasilapi: cnpj not found")

// Client looks up companies in the federal CNPJ registry.
type Client interface {
	LookupCNPJ(ctx context.Context, cnpj string) (*Company, error)
}

// Company is the subset of the CNPJ record used for enrichment.
type Company struct {
	CNPJ                string  `json:"cnpj"`
	RazaoSocial         string  `json:"razao_social"`
	NomeFantasia        string  `json:"nome_fantasia"`
	CNAEFiscal          int     `json:"cnae_fiscal"`
	CNAEFiscalDescricao string  `json:"cnae_fiscal_descricao"`
	Municipio           string  `json:"municipio"`
	UF                  string  `json:"uf"`
	CEP                 string  `json:"cep"`
	Porte               string  `json:"porte"`
	DataInicioAtividade string  `json:"data_inicio_atividade"`
	SituacaoCadastral   string  `json:"descricao_situacao_cadastral"`
	Email               string  `json:"email"`
	CapitalSocial       float64 `json:"capital_social"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the API base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a BrasilAPI client. The API needs no credentials.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 20 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) LookupCNPJ(ctx context.Context, cnpj string) (*Company, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/cnpj/v1/"+cnpj, nil)
	if err != nil {
		return nil, eris.Wrap(err, "brasilapi: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "brasilapi: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "brasilapi: read response")
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, eris.Wrapf(ErrNotFound, "brasilapi: %s", cnpj)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("brasilapi: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result Company
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "brasilapi: unmarshal response")
	}
	return &result, nil
}
