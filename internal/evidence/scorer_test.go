package evidence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-intel/internal/model"
)

func items(types ...model.EvidenceType) []model.EvidenceItem {
	out := make([]model.EvidenceItem, 0, len(types))
	for _, t := range types {
		out = append(out, model.EvidenceItem{Type: t})
	}
	return out
}

func TestScorer_Score(t *testing.T) {
	s := NewScorer(DefaultPlaybook())

	tests := []struct {
		name  string
		items []model.EvidenceItem
		total int
		raw   int
		temp  model.Temperature
		conf  model.Confidence
	}{
		{"empty", nil, 0, 0, model.TemperatureCold, model.ConfidenceLow},
		{"single job posting", items(model.EvidenceJobPosting), 30, 30, model.TemperatureCold, model.ConfidenceLow},
		{"job and news", items(model.EvidenceJobPosting, model.EvidenceNews), 55, 55, model.TemperatureWarm, model.ConfidenceMedium},
		{"exactly warm", items(model.EvidenceNews, model.EvidenceLinkedInActivity), 40, 40, model.TemperatureWarm, model.ConfidenceMedium},
		{"exactly hot", items(model.EvidenceJobPosting, model.EvidenceNews, model.EvidenceLinkedInActivity), 70, 70, model.TemperatureHot, model.ConfidenceHigh},
		{
			"clamped",
			items(model.EvidenceJobPosting, model.EvidenceJobPosting, model.EvidenceJobPosting, model.EvidenceJobPosting),
			100, 120, model.TemperatureHot, model.ConfidenceHigh,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Score(tt.items)
			assert.Equal(t, tt.total, got.TotalScore)
			assert.Equal(t, tt.raw, got.RawScore)
			assert.Equal(t, tt.temp, got.Temperature)
			assert.Equal(t, tt.conf, got.Confidence)
		})
	}
}

func TestScorer_IgnoresItemScore(t *testing.T) {
	s := NewScorer(DefaultPlaybook())
	got := s.Score([]model.EvidenceItem{{Type: model.EvidenceNews, Score: 99}})
	assert.Equal(t, 25, got.TotalScore)
	assert.Equal(t, map[model.EvidenceType]int{model.EvidenceNews: 25}, got.ByChannel)
}

func TestScorer_UnknownTypeScoresZero(t *testing.T) {
	s := NewScorer(DefaultPlaybook())
	got := s.Score([]model.EvidenceItem{{Type: "podcast"}})
	assert.Equal(t, 0, got.TotalScore)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, model.StatusNotFound, StatusFor(model.ScoreBreakdown{Temperature: model.TemperatureCold}, 0))
	assert.Equal(t, model.StatusUnverified, StatusFor(model.ScoreBreakdown{Temperature: model.TemperatureCold}, 1))
	assert.Equal(t, model.StatusProbable, StatusFor(model.ScoreBreakdown{Temperature: model.TemperatureWarm}, 2))
	assert.Equal(t, model.StatusConfirmed, StatusFor(model.ScoreBreakdown{Temperature: model.TemperatureHot}, 3))
}

func TestDefaultPlaybook_Valid(t *testing.T) {
	pb := DefaultPlaybook()
	require.NoError(t, pb.Validate())
	assert.Equal(t, map[model.EvidenceType]int{
		model.EvidenceJobPosting:       30,
		model.EvidenceNews:             25,
		model.EvidenceLinkedInActivity: 15,
		model.EvidenceWeb:              20,
	}, pb.Weights())
}

func TestLoadPlaybook_EmptyPathIsDefault(t *testing.T) {
	pb, err := LoadPlaybook("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPlaybook(), pb)
}

func TestLoadPlaybook_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playbook.yaml")
	yaml := `product: SAP
channels:
  - type: job_posting
    platform: jobs
    weight: 50
    queries: ['"{name}" vaga {product}']
    keywords: [sap, s4hana]
thresholds:
  hot: 80
  warm: 50
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	pb, err := LoadPlaybook(path)
	require.NoError(t, err)
	assert.Equal(t, "SAP", pb.Product)
	require.Len(t, pb.Channels, 1)
	assert.Equal(t, 50, pb.Channels[0].Weight)
	assert.Equal(t, []string{`"Acme" vaga SAP`}, pb.Channels[0].Render("Acme", pb.Product))
	assert.Equal(t, Thresholds{Hot: 80, Warm: 50}, pb.Thresholds)
}

func TestLoadPlaybook_Errors(t *testing.T) {
	_, err := LoadPlaybook(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("product: [unterminated"), 0o600))
	_, err = LoadPlaybook(path)
	assert.Error(t, err)
}

func TestPlaybook_Validate(t *testing.T) {
	pb := DefaultPlaybook()
	pb.Channels[0].Weight = -1
	pb.Thresholds = Thresholds{Hot: 30, Warm: 60}
	pb.Channels[3].Keywords = nil

	err := pb.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weight must be >= 0")
	assert.Contains(t, err.Error(), "warm <= hot")
	assert.Contains(t, err.Error(), "require_keyword without keywords")

	empty := Playbook{}
	err = empty.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "product is required")
}
