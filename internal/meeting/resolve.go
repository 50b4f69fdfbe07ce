package meeting

import (
	"errors"
	"fmt"

	"github.com/banshee-data/copresence/internal/sighting"
)

// Outcome discriminates the result of a meeting query.
type Outcome int

const (
	OutcomeNoMeeting Outcome = iota
	OutcomeMeeting
	OutcomeUserNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMeeting:
		return "meeting"
	case OutcomeNoMeeting:
		return "no_meeting"
	case OutcomeUserNotFound:
		return "user_not_found"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// UnmarshalText decodes an outcome name written by MarshalText.
func (o *Outcome) UnmarshalText(b []byte) error {
	switch string(b) {
	case "meeting":
		*o = OutcomeMeeting
	case "no_meeting":
		*o = OutcomeNoMeeting
	case "user_not_found":
		*o = OutcomeUserNotFound
	default:
		return fmt.Errorf("unknown outcome %q", b)
	}
	return nil
}

// Result is the answer to one meeting query.
type Result struct {
	UserA   string  `json:"uid1"`
	UserB   string  `json:"uid2"`
	Outcome Outcome `json:"outcome"`

	// Meeting is the earliest qualifying candidate. Set only when Outcome
	// is OutcomeMeeting.
	Meeting *Candidate `json:"meeting,omitempty"`

	// Confidence is the number of candidates that passed every filter.
	Confidence int `json:"confidence"`

	// Missing is the user id that could not be resolved when Outcome is
	// OutcomeUserNotFound.
	Missing string `json:"missing,omitempty"`
}

// Found collapses the result to a boolean.
func (r Result) Found() bool { return r.Outcome == OutcomeMeeting }

// Resolve returns the earliest candidate as the meeting, or a NoMeeting
// result when cands is empty. cands must be in timestamp order, which
// Classify guarantees.
func Resolve(cands []Candidate) Result {
	if len(cands) == 0 {
		return Result{Outcome: OutcomeNoMeeting}
	}
	first := cands[0]
	return Result{Outcome: OutcomeMeeting, Meeting: &first, Confidence: len(cands)}
}

// Source supplies the sightings of a pair of users.
type Source interface {
	Pair(uid1, uid2 string) ([]sighting.Sighting, error)
}

// DistancePlotter receives the staleness-filtered candidates of a query
// before the distance cut-off is applied.
type DistancePlotter interface {
	PlotDistance(uid1, uid2 string, cands []Candidate) error
}

// Options configures FindMeetings.
type Options struct {
	Thresholds Thresholds

	// Plotter, when set, is handed the candidates that passed the floor
	// and staleness filters.
	Plotter DistancePlotter
}

// FindMeetings runs the full pipeline for uid1 and uid2 over src.
//
// A user without sightings is reported as OutcomeUserNotFound with a nil
// error. A non-nil error means the source failed or the reconstruction
// invariant was violated.
func FindMeetings(src Source, uid1, uid2 string, opts Options) (Result, error) {
	base := Result{UserA: uid1, UserB: uid2}

	if uid1 == "" || uid2 == "" {
		base.Outcome = OutcomeUserNotFound
		return base, nil
	}

	pair, err := src.Pair(uid1, uid2)
	if err != nil {
		return base, fmt.Errorf("load sightings for %s/%s: %w", uid1, uid2, err)
	}

	records, err := Reconstruct(pair, uid1, uid2)
	if err != nil {
		var nf *UserNotFoundError
		if errors.As(err, &nf) {
			base.Outcome = OutcomeUserNotFound
			base.Missing = nf.UserID
			return base, nil
		}
		return base, err
	}

	th := opts.Thresholds.WithDefaults()
	stale, err := ClassifyStale(records, th)
	if err != nil {
		return base, err
	}
	if opts.Plotter != nil {
		if err := opts.Plotter.PlotDistance(uid1, uid2, stale); err != nil {
			return base, fmt.Errorf("plot distance: %w", err)
		}
	}

	res := Resolve(WithinDistance(stale, th.MaxDistance))
	res.UserA, res.UserB = uid1, uid2
	return res, nil
}
