// Package presence produces the digital-presence sub-report that is attached
// to a target's latest history record after verification.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/pkg/perplexity"
)

// SubReportKey is the full_report key the summary is stored under.
const SubReportKey = "digital_presence"

const system = "You are a B2B sales researcher. Be factual, cite only what the sources support, and say so when nothing is found."

const prompt = `Summarize the digital presence of the Brazilian company "%s"%s in at most five sentences.
Cover its website, LinkedIn and social media activity, recent news and any mention of the ERP systems it uses.
Answer in Portuguese.`

// Attacher merges a sub-report into the target's latest history record.
type Attacher interface {
	AttachSubReport(ctx context.Context, targetID, key string, report any) error
}

// Report is the stored digital-presence summary.
type Report struct {
	Summary     string    `json:"summary"`
	Citations   []string  `json:"citations"`
	Model       string    `json:"model"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Analyzer asks Perplexity for a web-grounded summary of a target.
type Analyzer struct {
	client   perplexity.Client
	attacher Attacher
	timeout  time.Duration
	now      func() time.Time
}

// NewAnalyzer builds an analyzer. The timeout bounds one Perplexity call.
func NewAnalyzer(c perplexity.Client, a Attacher, timeout time.Duration) *Analyzer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Analyzer{client: c, attacher: a, timeout: timeout, now: time.Now}
}

// Analyze builds the sub-report without storing it.
func (a *Analyzer) Analyze(ctx context.Context, t model.Target) (*Report, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var where string
	if t.Domain != "" {
		where = fmt.Sprintf(" (site %s)", t.Domain)
	}
	temp := 0.2
	resp, err := a.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: fmt.Sprintf(prompt, t.SearchName(), where)},
		},
		Temperature:         &temp,
		SearchRecencyFilter: perplexity.RecencyYear,
		WebSearchOptions: &perplexity.WebSearchOptions{
			SearchContextSize: "low",
			UserLocation:      &perplexity.UserLocation{Country: "BR"},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "presence: perplexity")
	}
	summary := resp.Text()
	if summary == "" {
		return nil, eris.New("presence: empty summary")
	}

	return &Report{
		Summary:     summary,
		Citations:   resp.Sources(),
		Model:       resp.Model,
		GeneratedAt: a.now().UTC(),
	}, nil
}

// Attach analyzes t and merges the result into its latest history record.
// Failures are logged and never reach the caller's pipeline result.
func (a *Analyzer) Attach(ctx context.Context, t model.Target) {
	log := zap.L().With(zap.String("target_id", t.ID))
	report, err := a.Analyze(ctx, t)
	if err != nil {
		log.Warn("presence: analysis failed", zap.Error(err))
		return
	}
	if err := a.attacher.AttachSubReport(ctx, t.ID, SubReportKey, report); err != nil {
		log.Error("presence: attach failed", zap.Error(err))
		return
	}
	log.Info("presence: sub-report attached", zap.Int("citations", len(report.Citations)))
}
