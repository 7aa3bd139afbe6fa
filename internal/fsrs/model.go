// Package fsrs implements the FSRS-6 memory model: pure functions that turn
// a prior card memory state, a review rating and a review time into updated
// stability, difficulty, phase and next due date. The model is fully
// deterministic; identical inputs always produce identical outputs.
package fsrs

import (
	"fmt"
	"math"
	"time"

	"github.com/kioku-app/kioku/internal/domain"
)

const (
	minStability  = 0.001
	minDifficulty = 1.0
	maxDifficulty = 10.0
)

// Config configures a Model. Zero-value fields are filled with defaults.
type Config struct {
	Weights          [21]float64     // zero → DefaultWeights
	DesiredRetention float64         // zero → 0.9
	LearningSteps    []time.Duration // nil → [1m, 10m]; empty → no steps
	RelearningSteps  []time.Duration // nil → [10m]; empty → no steps
	MaximumInterval  int             // days; zero → 36500
}

// Model evaluates the memory-state update for reviews. It holds the weights
// plus precomputed decay constants and is safe for concurrent use.
type Model struct {
	w                [21]float64
	decay            float64 // -w[20]
	factor           float64 // 0.9^(1/decay) - 1
	desiredRetention float64
	learningSteps    []time.Duration
	relearningSteps  []time.Duration
	maximumInterval  int
}

// New creates a Model from the given config. Zero-value fields default;
// out-of-bounds values return an error.
func New(cfg Config) (*Model, error) {
	w := cfg.Weights
	if w == ([21]float64{}) {
		w = DefaultWeights
	}
	if err := ValidateWeights(w); err != nil {
		return nil, err
	}

	dr := cfg.DesiredRetention
	if dr == 0 {
		dr = 0.9
	}
	if dr < 0 || dr > 1 {
		return nil, fmt.Errorf("fsrs: desired retention %f out of range (0, 1]", dr)
	}

	maxIvl := cfg.MaximumInterval
	if maxIvl == 0 {
		maxIvl = 36500
	}
	if maxIvl < 0 {
		return nil, fmt.Errorf("fsrs: maximum interval %d must be positive", maxIvl)
	}

	ls := cfg.LearningSteps
	if ls == nil {
		ls = []time.Duration{time.Minute, 10 * time.Minute}
	}
	rs := cfg.RelearningSteps
	if rs == nil {
		rs = []time.Duration{10 * time.Minute}
	}

	decay := -w[20]
	return &Model{
		w:                w,
		decay:            decay,
		factor:           math.Pow(0.9, 1.0/decay) - 1.0,
		desiredRetention: dr,
		learningSteps:    ls,
		relearningSteps:  rs,
		maximumInterval:  maxIvl,
	}, nil
}

// Default returns a Model with all defaults. It never fails.
func Default() *Model {
	m, err := New(Config{})
	if err != nil {
		panic(err) // unreachable with defaults
	}
	return m
}

// Outcome is the result of evaluating one review against the model.
type Outcome struct {
	Stability    float64
	Difficulty   float64
	Phase        domain.Phase
	LearningStep int
	Interval     time.Duration // granted interval; Due == review time + Interval
	Due          time.Time
}

// Next computes the post-review memory state for the given prior state,
// rating and review time. The prior state is not mutated.
//
// Returns domain.ErrInvalidRating for ratings outside Again..Easy and
// domain.ErrInvalidTimeOrder when now precedes the prior last review.
func (m *Model) Next(prior *domain.CardMemoryState, rating domain.Rating, now time.Time) (Outcome, error) {
	if !rating.IsValid() {
		return Outcome{}, fmt.Errorf("%w: %d", domain.ErrInvalidRating, int(rating))
	}
	if !prior.LastReview.IsZero() && now.Before(prior.LastReview) {
		return Outcome{}, fmt.Errorf("%w: review at %s, last review at %s",
			domain.ErrInvalidTimeOrder, now.Format(time.RFC3339), prior.LastReview.Format(time.RFC3339))
	}

	var out Outcome
	if prior.Phase == domain.New {
		out.Stability = m.initStability(rating)
		out.Difficulty = m.initDifficulty(rating, true)
		out.Phase = domain.Learning
		out.LearningStep = 0
	} else {
		// Clamp the prior to the model's valid ranges; a zero stability
		// would blow up the power terms.
		s := clampStability(prior.Stability)
		d := clampDifficulty(prior.Difficulty)
		elapsedDays := now.Sub(prior.LastReview).Hours() / 24.0
		if elapsedDays < 1 {
			// Same-day review: the retrievability curve is not
			// meaningful below one day, use the short-term update.
			out.Stability = m.shortTermStability(s, rating)
		} else {
			r := m.Retrievability(elapsedDays, s)
			out.Stability = m.nextStability(d, s, r, rating)
		}
		out.Difficulty = m.nextDifficulty(d, rating)
		out.Phase = prior.Phase
		out.LearningStep = prior.LearningStep
	}

	out.Interval = m.transition(&out, rating)
	out.Due = now.Add(out.Interval)
	return out, nil
}

// Retrievability computes R(t, S) = (1 + factor * t / S) ^ decay, the
// estimated recall probability after elapsedDays with the given stability.
func (m *Model) Retrievability(elapsedDays, stability float64) float64 {
	if stability < minStability {
		stability = minStability
	}
	return math.Pow(1+m.factor*elapsedDays/stability, m.decay)
}

// initStability returns S₀(G) = clamp_s(w[G-1]).
func (m *Model) initStability(r domain.Rating) float64 {
	return clampStability(m.w[r-1])
}

// initDifficulty returns D₀(G) = w[4] - e^(w[5]*(G-1)) + 1.
// The unclamped form is the mean-reversion target in nextDifficulty.
func (m *Model) initDifficulty(r domain.Rating, clamp bool) float64 {
	d := m.w[4] - math.Exp(m.w[5]*float64(r-1)) + 1
	if clamp {
		return clampDifficulty(d)
	}
	return d
}

// nextDifficulty applies linear damping and mean reversion:
// ΔD = -w[6]*(G-3); D' = D + (10-D)*ΔD/9; D'' = w[7]*D₀(Easy) + (1-w[7])*D'.
func (m *Model) nextDifficulty(difficulty float64, r domain.Rating) float64 {
	deltaD := -m.w[6] * (float64(r) - 3)
	dPrime := difficulty + (10-difficulty)*deltaD/9
	return clampDifficulty(m.w[7]*m.initDifficulty(domain.Easy, false) + (1-m.w[7])*dPrime)
}

func (m *Model) nextStability(d, s, r float64, rating domain.Rating) float64 {
	if rating == domain.Again {
		return m.forgetStability(d, s, r)
	}
	return m.recallStability(d, s, r, rating)
}

// recallStability computes stability after a successful recall:
// S' = S * (1 + e^w[8] * (11-D) * S^(-w[9]) * (e^((1-R)*w[10]) - 1) * penalty * bonus).
func (m *Model) recallStability(d, s, r float64, rating domain.Rating) float64 {
	hardPenalty := 1.0
	if rating == domain.Hard {
		hardPenalty = m.w[15]
	}
	easyBonus := 1.0
	if rating == domain.Easy {
		easyBonus = m.w[16]
	}
	return clampStability(s * (1 + math.Exp(m.w[8])*
		(11-d)*
		math.Pow(s, -m.w[9])*
		(math.Exp((1-r)*m.w[10])-1)*
		hardPenalty*easyBonus))
}

// forgetStability computes the post-lapse stability, the minimum of the
// long-term reset and the short-term floor S / e^(w[17]*w[18]).
func (m *Model) forgetStability(d, s, r float64) float64 {
	long := m.w[11] *
		math.Pow(d, -m.w[12]) *
		(math.Pow(s+1, m.w[13]) - 1) *
		math.Exp((1-r)*m.w[14])
	short := s / math.Exp(m.w[17]*m.w[18])
	return clampStability(math.Min(long, short))
}

// shortTermStability handles same-day reviews:
// SInc = e^(w[17]*(G-3+w[18])) * S^(-w[19]), floored at 1 for Good/Easy.
func (m *Model) shortTermStability(s float64, rating domain.Rating) float64 {
	sInc := math.Exp(m.w[17]*(float64(rating)-3+m.w[18])) * math.Pow(s, -m.w[19])
	if rating == domain.Good || rating == domain.Easy {
		sInc = math.Max(sInc, 1.0)
	}
	return clampStability(s * sInc)
}

// reviewIntervalDays maps stability to a calendar interval:
// I(r, S) = round((S / factor) * (r^(1/decay) - 1)), clamped to [1, max].
// The mapping is monotone non-decreasing in stability.
func (m *Model) reviewIntervalDays(stability float64) int {
	ivl := stability / m.factor * (math.Pow(m.desiredRetention, 1.0/m.decay) - 1)
	days := int(math.Round(ivl))
	if days < 1 {
		days = 1
	}
	if days > m.maximumInterval {
		days = m.maximumInterval
	}
	return days
}

// transition advances the phase state machine and returns the interval.
func (m *Model) transition(out *Outcome, rating domain.Rating) time.Duration {
	switch out.Phase {
	case domain.Learning:
		return m.stepTransition(out, rating, m.learningSteps)
	case domain.Relearning:
		return m.stepTransition(out, rating, m.relearningSteps)
	default:
		return m.reviewTransition(out, rating)
	}
}

// stepTransition handles Learning and Relearning phases.
func (m *Model) stepTransition(out *Outcome, rating domain.Rating, steps []time.Duration) time.Duration {
	step := out.LearningStep
	if len(steps) == 0 || (step >= len(steps) && rating != domain.Again) {
		return m.graduate(out)
	}

	switch rating {
	case domain.Again:
		out.LearningStep = 0
		return steps[0]
	case domain.Hard:
		// Hard repeats the current step; at step 0 it is scheduled
		// between the first and second steps.
		if step == 0 && len(steps) == 1 {
			return time.Duration(float64(steps[0]) * 1.5)
		}
		if step == 0 {
			return (steps[0] + steps[1]) / 2
		}
		return steps[step]
	case domain.Good:
		next := step + 1
		if next >= len(steps) {
			return m.graduate(out)
		}
		out.LearningStep = next
		return steps[next]
	default: // Easy skips the remaining steps.
		return m.graduate(out)
	}
}

// reviewTransition handles the Review phase.
func (m *Model) reviewTransition(out *Outcome, rating domain.Rating) time.Duration {
	if rating == domain.Again && len(m.relearningSteps) > 0 {
		out.Phase = domain.Relearning
		out.LearningStep = 0
		return m.relearningSteps[0]
	}
	out.LearningStep = 0
	return time.Duration(m.reviewIntervalDays(out.Stability)) * 24 * time.Hour
}

// graduate moves a card from Learning/Relearning into Review.
func (m *Model) graduate(out *Outcome) time.Duration {
	out.Phase = domain.Review
	out.LearningStep = 0
	return time.Duration(m.reviewIntervalDays(out.Stability)) * 24 * time.Hour
}

func clampStability(s float64) float64 {
	return math.Max(s, minStability)
}

func clampDifficulty(d float64) float64 {
	return math.Min(math.Max(d, minDifficulty), maxDifficulty)
}
