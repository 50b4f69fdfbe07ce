package meeting

import (
	"math"
	"time"
)

const (
	// DefaultMaxStaleness is the longest a counterpart position may age
	// before proximity to it stops meaning anything.
	DefaultMaxStaleness = 120 * time.Second

	// DefaultMaxDistance is the proximity cut-off in metres.
	DefaultMaxDistance = 2.0
)

// Thresholds bound what counts as a meeting. Both comparisons are strict.
// Zero fields fall back to the defaults.
type Thresholds struct {
	MaxStaleness time.Duration `json:"max_staleness"`
	MaxDistance  float64       `json:"max_distance_m"`
}

// DefaultThresholds returns 120 s and 2 m.
func DefaultThresholds() Thresholds {
	return Thresholds{MaxStaleness: DefaultMaxStaleness, MaxDistance: DefaultMaxDistance}
}

// WithDefaults replaces non-positive fields with the defaults.
func (th Thresholds) WithDefaults() Thresholds {
	if th.MaxStaleness <= 0 {
		th.MaxStaleness = DefaultMaxStaleness
	}
	if th.MaxDistance <= 0 {
		th.MaxDistance = DefaultMaxDistance
	}
	return th
}

// Candidate is a reconstructed sighting with the time since the counterpart
// was seen and the distance to the counterpart's last position.
type Candidate struct {
	Reconstructed
	Elapsed  time.Duration `json:"elapsed"`
	Distance float64       `json:"distance_m"`
}

// ElapsedSeconds returns Elapsed in fractional seconds.
func (c Candidate) ElapsedSeconds() float64 { return c.Elapsed.Seconds() }

func newCandidate(r Reconstructed) Candidate {
	return Candidate{
		Reconstructed: r,
		Elapsed:       r.Timestamp.Sub(r.Counterpart.SeenAt),
		Distance:      math.Hypot(r.X-r.Counterpart.X, r.Y-r.Counterpart.Y),
	}
}

// ClassifyStale keeps the records on the counterpart's floor whose
// counterpart position is younger than th.MaxStaleness. No distance cut is
// applied, so the result is what a distance-over-time chart should show.
//
// A record whose counterpart was seen after the record itself returns an
// *InvariantViolationError.
func ClassifyStale(records []Reconstructed, th Thresholds) ([]Candidate, error) {
	th = th.WithDefaults()

	var out []Candidate
	for _, r := range records {
		c := newCandidate(r)
		if c.Elapsed < 0 {
			return nil, &InvariantViolationError{Record: r, Elapsed: c.Elapsed}
		}
		if r.Floor != r.Counterpart.Floor {
			continue
		}
		if c.Elapsed >= th.MaxStaleness {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// WithinDistance keeps the candidates strictly closer than maxDistance.
// A non-positive maxDistance means DefaultMaxDistance.
func WithinDistance(cands []Candidate, maxDistance float64) []Candidate {
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}
	var out []Candidate
	for _, c := range cands {
		if c.Distance < maxDistance {
			out = append(out, c)
		}
	}
	return out
}

// Classify applies the floor, staleness and distance filters in that order.
func Classify(records []Reconstructed, th Thresholds) ([]Candidate, error) {
	th = th.WithDefaults()
	stale, err := ClassifyStale(records, th)
	if err != nil {
		return nil, err
	}
	return WithinDistance(stale, th.MaxDistance), nil
}
