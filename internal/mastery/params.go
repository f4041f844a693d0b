package mastery

import (
	"math"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Params are the knowledge tracing and retention settings.
type Params struct {
	PriorMastery    float64 `yaml:"prior_mastery" json:"prior_mastery"`
	PLearn          float64 `yaml:"p_learn" json:"p_learn"`
	PSlip           float64 `yaml:"p_slip" json:"p_slip"`
	PGuess          float64 `yaml:"p_guess" json:"p_guess"`
	UnlockThreshold float64 `yaml:"unlock_threshold" json:"unlock_threshold"`

	// DecayAfter is the practice gap tolerated before effective mastery starts
	// to fall back toward the prior. Zero disables decay.
	DecayAfter    time.Duration `yaml:"decay_after" json:"decay_after"`
	DecayHalfLife time.Duration `yaml:"decay_half_life" json:"decay_half_life"`
}

// DefaultParams returns the standard BKT settings.
func DefaultParams() Params {
	return Params{
		PriorMastery:    0.1,
		PLearn:          0.18,
		PSlip:           0.08,
		PGuess:          0.2,
		UnlockThreshold: 0.7,
		DecayAfter:      14 * 24 * time.Hour,
		DecayHalfLife:   30 * 24 * time.Hour,
	}
}

// Validate validates the parameters.
func (p *Params) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.PriorMastery, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&p.PLearn, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&p.PSlip, validation.Min(0.0), validation.Max(0.5).Exclusive()),
		validation.Field(&p.PGuess, validation.Min(0.0), validation.Max(0.5).Exclusive()),
		validation.Field(&p.UnlockThreshold, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&p.DecayAfter, validation.Min(time.Duration(0))),
		validation.Field(&p.DecayHalfLife,
			validation.When(p.DecayAfter > 0, validation.Required, validation.Min(time.Duration(1)))),
	)
}

// Step applies one BKT observation to p: the Bayesian posterior given the
// response, followed by the learning transition. The transition only adds
// probability mass.
func (p Params) Step(prior float64, correct bool) float64 {
	post := Posterior(clamp01(prior), correct, p.PGuess, p.PSlip)
	return clamp01(post + (1-post)*p.PLearn)
}

// Posterior returns P(mastered | response).
func Posterior(pKnown float64, correct bool, pGuess, pSlip float64) float64 {
	if correct {
		num := pKnown * (1 - pSlip)
		den := num + (1-pKnown)*pGuess
		if den > 0 {
			return clamp01(num / den)
		}
		return pKnown
	}
	num := pKnown * pSlip
	den := num + (1-pKnown)*(1-pGuess)
	if den > 0 {
		return clamp01(num / den)
	}
	return pKnown
}

// Effective discounts latent for the time since lastPracticed. Within
// DecayAfter, or without any practice, latent is returned as is. Beyond it,
// the mastery above the prior halves every DecayHalfLife.
func (p Params) Effective(latent float64, lastPracticed *time.Time, now time.Time) float64 {
	if p.DecayAfter <= 0 || p.DecayHalfLife <= 0 || lastPracticed == nil {
		return latent
	}
	gap := now.Sub(*lastPracticed)
	if gap <= p.DecayAfter || latent <= p.PriorMastery {
		return latent
	}
	halves := float64(gap-p.DecayAfter) / float64(p.DecayHalfLife)
	return clamp01(p.PriorMastery + (latent-p.PriorMastery)*math.Pow(0.5, halves))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
