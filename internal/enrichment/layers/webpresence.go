package layers

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intel/internal/enrichment"
	"github.com/sells-group/lead-intel/internal/mention"
	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/internal/search"
	"github.com/sells-group/lead-intel/pkg/anthropic"
)

const (
	websiteQuery = `"%s" site oficial`
	peopleQuery  = `"%s" (diretor OR gerente OR CIO OR CEO OR "head de TI") site:linkedin.com/in`

	defaultPresenceResults = 10
	maxDecisionMakers      = 10
)

const decisionMakerPrompt = `The search results below mention people who may work at the Brazilian company "%s".
Return a valid JSON object: {"decision_makers": [{"name": string, "title": string, "linkedin_url": string}]}.
Include only people who currently work at this company in a leadership, IT or finance role.
Use an empty list when nobody qualifies. Do not invent people.

Search results:
%s`

// Hosts that describe a company without being its own website.
var directoryHosts = []string{
	"linkedin.com", "facebook.com", "instagram.com", "twitter.com", "x.com", "youtube.com",
	"wikipedia.org", "glassdoor.com", "glassdoor.com.br", "indeed.com", "reclameaqui.com.br",
	"econodata.com.br", "cnpj.biz", "casadosdados.com.br", "cnpj.info", "serasaexperian.com.br",
	"jusbrasil.com.br", "gupy.io", "vagas.com.br", "catho.com.br",
}

// WebPresence is layer 2: the company website, LinkedIn page and decision
// makers found through web search. A Claude client, when present, extracts
// decision makers from people results; otherwise result titles are parsed.
type WebPresence struct {
	searcher search.Searcher
	ai       anthropic.Client
	model    string
	limit    int
}

// WebPresenceOption configures a WebPresence layer.
type WebPresenceOption func(*WebPresence)

// WithExtractor enables LLM decision-maker extraction.
func WithExtractor(c anthropic.Client, model string) WebPresenceOption {
	return func(w *WebPresence) {
		w.ai = c
		w.model = model
	}
}

// WithResultLimit overrides the number of results fetched per query.
func WithResultLimit(n int) WebPresenceOption {
	return func(w *WebPresence) {
		if n > 0 {
			w.limit = n
		}
	}
}

// NewWebPresence builds the web presence layer.
func NewWebPresence(s search.Searcher, opts ...WebPresenceOption) *WebPresence {
	w := &WebPresence{searcher: s, limit: defaultPresenceResults}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *WebPresence) Provider() string { return "web_presence" }

func (w *WebPresence) Enrich(ctx context.Context, t model.Target) (*enrichment.Output, error) {
	name := t.SearchName()
	log := zap.L().With(zap.String("target_id", t.ID), zap.String("provider", w.Provider()))

	sites := w.searcher.Search(ctx, fmt.Sprintf(websiteQuery, name), w.limit)
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "web_presence: website search")
	}
	people := w.searcher.Search(ctx, fmt.Sprintf(peopleQuery, name), w.limit)
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "web_presence: people search")
	}

	data := map[string]any{}
	var disc model.Discovery

	website := t.Domain
	if website == "" {
		website = pickWebsite(sites, name)
		disc.Domain = website
	}
	if website != "" {
		data["website"] = website
	}
	if li := pickCompanyPage(slices.Concat(sites, people)); li != "" {
		data["linkedin_url"] = li
	}

	var contacts []model.Contact
	if w.ai != nil && len(people) > 0 {
		extracted, err := w.extractWithAI(ctx, name, people)
		if err != nil {
			log.Warn("web_presence: ai extraction failed, parsing titles", zap.Error(err))
		} else {
			contacts = extracted
		}
	}
	if contacts == nil {
		contacts = parsePeople(people, name)
	}
	if len(contacts) > maxDecisionMakers {
		contacts = contacts[:maxDecisionMakers]
	}
	for i := range contacts {
		contacts[i].Source = w.Provider()
	}
	if len(contacts) > 0 {
		data["decision_makers"] = len(contacts)
	}

	fields := len(data)
	data["results_seen"] = len(sites) + len(people)

	return &enrichment.Output{
		Data:           data,
		Discovery:      disc,
		Contacts:       contacts,
		FieldsEnriched: fields,
	}, nil
}

func (w *WebPresence) extractWithAI(ctx context.Context, name string, people []search.Result) ([]model.Contact, error) {
	var b strings.Builder
	for _, r := range people {
		fmt.Fprintf(&b, "- %s | %s | %s\n", r.Title, r.Snippet, r.URL)
	}

	resp, err := w.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     w.model,
		MaxTokens: 1024,
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(decisionMakerPrompt, name, b.String())},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "web_presence: claude extraction")
	}

	var parsed struct {
		DecisionMakers []struct {
			Name        string `json:"name"`
			Title       string `json:"title"`
			LinkedInURL string `json:"linkedin_url"`
		} `json:"decision_makers"`
	}
	if err := anthropic.DecodeJSON(resp, &parsed); err != nil {
		return nil, eris.Wrap(err, "web_presence: parse claude json")
	}

	out := make([]model.Contact, 0, len(parsed.DecisionMakers))
	for _, dm := range parsed.DecisionMakers {
		if strings.TrimSpace(dm.Name) == "" {
			continue
		}
		out = append(out, model.Contact{
			Name:        strings.TrimSpace(dm.Name),
			Title:       strings.TrimSpace(dm.Title),
			LinkedInURL: strings.TrimSpace(dm.LinkedInURL),
		})
	}
	return out, nil
}

// pickWebsite returns the domain of the first result that mentions the
// company and is not a directory or social network.
func pickWebsite(results []search.Result, name string) string {
	for _, r := range results {
		d := model.NormalizeDomain(r.URL)
		if d == "" || isDirectory(d) {
			continue
		}
		if mention.IsValidMention(r.Title+" "+r.Snippet, name) {
			return d
		}
	}
	return ""
}

func pickCompanyPage(results []search.Result) string {
	for _, r := range results {
		u, err := url.Parse(r.URL)
		if err != nil {
			continue
		}
		if strings.HasSuffix(u.Hostname(), "linkedin.com") && strings.HasPrefix(u.Path, "/company/") {
			return "https://www.linkedin.com" + strings.TrimSuffix(u.Path, "/")
		}
	}
	return ""
}

func isDirectory(domain string) bool {
	return slices.Contains(directoryHosts, domain)
}

// parsePeople reads LinkedIn profile titles of the form
// "Ana Souza - CIO - Acme | LinkedIn" and keeps those naming the company.
func parsePeople(results []search.Result, company string) []model.Contact {
	var out []model.Contact
	seen := make(map[string]bool)
	for _, r := range results {
		if !strings.Contains(r.URL, "linkedin.com/in/") {
			continue
		}
		if !mention.IsValidMention(r.Title+" "+r.Snippet, company) {
			continue
		}
		title, _, _ := strings.Cut(r.Title, "|")
		parts := strings.Split(title, " - ")
		if len(parts) < 2 {
			continue
		}
		c := model.Contact{
			Name:        strings.TrimSpace(parts[0]),
			Title:       strings.TrimSpace(parts[1]),
			LinkedInURL: r.URL,
		}
		if c.Name == "" || seen[c.DedupKey()] {
			continue
		}
		seen[c.DedupKey()] = true
		out = append(out, c)
	}
	return out
}
