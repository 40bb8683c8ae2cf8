package model

import (
	"strings"
	"time"
)

// HistoryKind distinguishes the pipelines that write history records.
type HistoryKind string

const (
	HistoryVerification HistoryKind = "verification"
	HistoryEnrichment   HistoryKind = "enrichment"
	HistorySubReport    HistoryKind = "sub_report"
)

// HistoryRecord is an append-only record of one pipeline run. Only
// FullReport may change after insert, and only by merging in late sub-reports.
type HistoryRecord struct {
	ID               string          `json:"id"`
	TargetID         string          `json:"target_id"`
	Kind             HistoryKind     `json:"kind"`
	Status           Status          `json:"status,omitempty"`
	Confidence       Confidence      `json:"confidence,omitempty"`
	Score            int             `json:"score"`
	Temperature      Temperature     `json:"temperature,omitempty"`
	Evidence         []EvidenceItem  `json:"evidence"`
	ScoreBreakdown   *ScoreBreakdown `json:"score_breakdown,omitempty"`
	SourcesConsulted map[string]int  `json:"sources_consulted,omitempty"`
	QueriesExecuted  []string        `json:"queries_executed,omitempty"`
	DurationMS       int64           `json:"duration_ms"`
	FullReport       map[string]any  `json:"full_report,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Contact is a decision maker at a target company.
type Contact struct {
	ID          string    `json:"id"`
	TargetID    string    `json:"target_id"`
	Name        string    `json:"name"`
	Title       string    `json:"title,omitempty"`
	Email       string    `json:"email,omitempty"`
	LinkedInURL string    `json:"linkedin_url,omitempty"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DedupKey identifies a contact within its target: the lowercased email when
// known, otherwise the normalized name.
func (c Contact) DedupKey() string {
	if email := c.EmailKey(); email != "" {
		return "email:" + email
	}
	return "name:" + c.NameKey()
}

// EmailKey is the lowercased email, or "" when unknown.
func (c Contact) EmailKey() string {
	return strings.ToLower(strings.TrimSpace(c.Email))
}

// NameKey is the normalized name.
func (c Contact) NameKey() string {
	return NormalizeName(c.Name)
}
