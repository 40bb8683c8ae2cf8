// Package evidence collects, scores and records web evidence that a target
// company already runs a competitor's product.
package evidence

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lead-intel/internal/model"
)

// Playbook describes what to search for and how much each channel weighs.
type Playbook struct {
	Product    string     `yaml:"product"`
	Channels   []Channel  `yaml:"channels"`
	Thresholds Thresholds `yaml:"thresholds"`
}

// Channel is one evidence source. Every kept result from the channel scores
// Weight points.
type Channel struct {
	Type     model.EvidenceType `yaml:"type"`
	Platform string             `yaml:"platform"`
	Weight   int                `yaml:"weight"`
	// Queries may reference {name} and {product}.
	Queries  []string `yaml:"queries"`
	Keywords []string `yaml:"keywords"`
	// RequireKeyword drops results that contain none of Keywords.
	RequireKeyword bool `yaml:"require_keyword"`
}

// Thresholds are inclusive lower bounds for the hot and warm tiers.
type Thresholds struct {
	Hot  int `yaml:"hot"`
	Warm int `yaml:"warm"`
}

// DefaultPlaybook targets TOTVS and its ERP product lines.
func DefaultPlaybook() Playbook {
	keywords := []string{"totvs", "protheus", "datasul", "rm totvs", "fluig", "winthor", "logix"}
	return Playbook{
		Product: "TOTVS",
		Channels: []Channel{
			{
				Type:     model.EvidenceJobPosting,
				Platform: "jobs",
				Weight:   30,
				Queries: []string{
					`"{name}" vaga {product}`,
					`"{name}" vaga Protheus OR Datasul site:linkedin.com/jobs OR site:vagas.com.br OR site:gupy.io`,
				},
				Keywords: keywords,
			},
			{
				Type:     model.EvidenceNews,
				Platform: "news",
				Weight:   25,
				Queries: []string{
					`"{name}" {product} implantação OR migração OR case`,
				},
				Keywords: keywords,
			},
			{
				Type:     model.EvidenceLinkedInActivity,
				Platform: "linkedin",
				Weight:   15,
				Queries: []string{
					`"{name}" {product} site:linkedin.com`,
				},
				Keywords: keywords,
			},
			{
				Type:           model.EvidenceWeb,
				Platform:       "web",
				Weight:         20,
				Queries:        []string{`"{name}" cliente {product}`},
				Keywords:       keywords,
				RequireKeyword: true,
			},
		},
		Thresholds: Thresholds{Hot: 70, Warm: 40},
	}
}

// LoadPlaybook reads a playbook from YAML. An empty path returns the default.
func LoadPlaybook(path string) (Playbook, error) {
	if path == "" {
		return DefaultPlaybook(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Playbook{}, eris.Wrapf(err, "evidence: read playbook %s", path)
	}
	var pb Playbook
	if err := yaml.Unmarshal(data, &pb); err != nil {
		return Playbook{}, eris.Wrap(err, "evidence: parse playbook")
	}
	if err := pb.Validate(); err != nil {
		return Playbook{}, err
	}
	return pb, nil
}

// Validate checks that a playbook is internally consistent.
func (p Playbook) Validate() error {
	var errs []string
	if strings.TrimSpace(p.Product) == "" {
		errs = append(errs, "product is required")
	}
	if len(p.Channels) == 0 {
		errs = append(errs, "at least one channel is required")
	}
	seen := map[model.EvidenceType]bool{}
	for i, c := range p.Channels {
		switch c.Type {
		case model.EvidenceJobPosting, model.EvidenceNews, model.EvidenceLinkedInActivity, model.EvidenceWeb:
		default:
			errs = append(errs, fmt.Sprintf("channels[%d]: unknown type %q", i, c.Type))
		}
		if seen[c.Type] {
			errs = append(errs, fmt.Sprintf("channels[%d]: duplicate type %q", i, c.Type))
		}
		seen[c.Type] = true
		if c.Weight < 0 {
			errs = append(errs, fmt.Sprintf("channels[%d]: weight must be >= 0", i))
		}
		if len(c.Queries) == 0 {
			errs = append(errs, fmt.Sprintf("channels[%d]: no queries", i))
		}
		if c.RequireKeyword && len(c.Keywords) == 0 {
			errs = append(errs, fmt.Sprintf("channels[%d]: require_keyword without keywords", i))
		}
	}
	if p.Thresholds.Warm < 0 || p.Thresholds.Hot > 100 || p.Thresholds.Warm > p.Thresholds.Hot {
		errs = append(errs, "thresholds must satisfy 0 <= warm <= hot <= 100")
	}
	if len(errs) > 0 {
		return eris.Errorf("evidence: playbook validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Weights maps each channel type to its weight.
func (p Playbook) Weights() map[model.EvidenceType]int {
	w := make(map[model.EvidenceType]int, len(p.Channels))
	for _, c := range p.Channels {
		w[c.Type] = c.Weight
	}
	return w
}

// Render expands the channel's query templates for one target.
func (c Channel) Render(name, product string) []string {
	r := strings.NewReplacer("{name}", name, "{product}", product)
	out := make([]string, 0, len(c.Queries))
	for _, q := range c.Queries {
		out = append(out, r.Replace(q))
	}
	return out
}
