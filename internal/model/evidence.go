package model

import "time"

// EvidenceType is the channel an evidence item was collected from.
type EvidenceType string

const (
	EvidenceJobPosting       EvidenceType = "job_posting"
	EvidenceNews             EvidenceType = "news"
	EvidenceLinkedInActivity EvidenceType = "linkedin_activity"
	EvidenceWeb              EvidenceType = "web"
)

// Confidence is a coarse certainty tier.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Temperature is a coarse urgency tier derived from a score.
type Temperature string

const (
	TemperatureCold Temperature = "cold"
	TemperatureWarm Temperature = "warm"
	TemperatureHot  Temperature = "hot"
)

// Status is the verification outcome stored on a target.
type Status string

const (
	StatusConfirmed  Status = "confirmed"
	StatusProbable   Status = "probable"
	StatusUnverified Status = "unverified"
	StatusNotFound   Status = "not_found"
)

// EvidenceItem is one search result that supports a classification. Items
// are immutable once collected.
type EvidenceItem struct {
	Type        EvidenceType `json:"type"`
	Score       int          `json:"score"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	URL         string       `json:"url"`
	Timestamp   time.Time    `json:"timestamp"`
	Confidence  Confidence   `json:"confidence"`
	Reason      string       `json:"reason"`
}

// ScoreBreakdown is the scored classification of a set of evidence items.
type ScoreBreakdown struct {
	TotalScore  int                  `json:"total_score"`
	RawScore    int                  `json:"raw_score"`
	Temperature Temperature          `json:"temperature"`
	Confidence  Confidence           `json:"confidence"`
	ByChannel   map[EvidenceType]int `json:"by_channel,omitempty"`
}
