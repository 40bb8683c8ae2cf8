package evidence

import (
	"github.com/sells-group/lead-intel/internal/model"
)

// MaxScore caps the total evidence score.
const MaxScore = 100

// Scorer turns evidence items into a bounded score and tier. Weights are
// channel constants; an item's own Score field is not consulted.
type Scorer struct {
	weights    map[model.EvidenceType]int
	thresholds Thresholds
}

// NewScorer builds a scorer from a playbook's weights and thresholds.
func NewScorer(pb Playbook) *Scorer {
	return &Scorer{weights: pb.Weights(), thresholds: pb.Thresholds}
}

// Score sums channel weights over items and clamps the total to [0, 100].
// Temperature and confidence are both derived from the clamped total.
func (s *Scorer) Score(items []model.EvidenceItem) model.ScoreBreakdown {
	raw := 0
	byChannel := make(map[model.EvidenceType]int)
	for _, it := range items {
		w := s.weights[it.Type]
		raw += w
		byChannel[it.Type] += w
	}

	total := min(max(raw, 0), MaxScore)
	temp, conf := s.Classify(total)
	return model.ScoreBreakdown{
		TotalScore:  total,
		RawScore:    raw,
		Temperature: temp,
		Confidence:  conf,
		ByChannel:   byChannel,
	}
}

// Classify maps a score onto the temperature and confidence tiers.
func (s *Scorer) Classify(score int) (model.Temperature, model.Confidence) {
	switch {
	case score >= s.thresholds.Hot:
		return model.TemperatureHot, model.ConfidenceHigh
	case score >= s.thresholds.Warm:
		return model.TemperatureWarm, model.ConfidenceMedium
	default:
		return model.TemperatureCold, model.ConfidenceLow
	}
}

// StatusFor derives the stored verification status from a breakdown.
func StatusFor(b model.ScoreBreakdown, itemCount int) model.Status {
	switch {
	case itemCount == 0:
		return model.StatusNotFound
	case b.Temperature == model.TemperatureHot:
		return model.StatusConfirmed
	case b.Temperature == model.TemperatureWarm:
		return model.StatusProbable
	default:
		return model.StatusUnverified
	}
}
