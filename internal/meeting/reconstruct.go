// Package meeting infers whether two users met from their interleaved
// sighting histories.
//
// The pipeline has three stages. Reconstruct walks the merged, time-sorted
// sightings of both users and attaches to each sighting the other user's
// last known position. Classify keeps the records where both users were on
// the same floor, the counterpart position is fresh and the two positions
// are close. Resolve picks the earliest surviving record as the meeting.
//
// Every stage is a pure function over its input; concurrent evaluations of
// different pairs share no state.
package meeting

import (
	"fmt"
	"sort"
	"time"

	"github.com/banshee-data/copresence/internal/sighting"
)

// Position is a user's last known location.
type Position struct {
	Floor  int       `json:"floor"`
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
	SeenAt time.Time `json:"seen_at"`
}

// Reconstructed is a sighting annotated with the counterpart's last known
// position at that moment.
type Reconstructed struct {
	sighting.Sighting
	Counterpart Position `json:"counterpart"`
}

// Reconstruct merges the sightings of uid1 and uid2 into timestamp order and
// annotates each sighting with the other user's most recent prior position.
//
// The input must hold sightings of exactly the two requested users. Either
// user being absent yields a *UserNotFoundError before any sorting is done.
// Sightings with equal timestamps keep their log order (Seq). Sightings that
// precede the counterpart's first appearance carry no counterpart state and
// are left out of the result.
func Reconstruct(sightings []sighting.Sighting, uid1, uid2 string) ([]Reconstructed, error) {
	if uid1 == "" {
		return nil, &UserNotFoundError{UserID: uid1}
	}
	if uid2 == "" {
		return nil, &UserNotFoundError{UserID: uid2}
	}
	if uid1 == uid2 {
		return nil, fmt.Errorf("%w: %q", ErrSameUser, uid1)
	}

	var n1, n2 int
	for _, s := range sightings {
		switch s.UserID {
		case uid1:
			n1++
		case uid2:
			n2++
		default:
			return nil, fmt.Errorf("%w: %q", ErrForeignUser, s.UserID)
		}
	}
	if n1 == 0 {
		return nil, &UserNotFoundError{UserID: uid1}
	}
	if n2 == 0 {
		return nil, &UserNotFoundError{UserID: uid2}
	}

	merged := make([]sighting.Sighting, len(sightings))
	copy(merged, sightings)
	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.Seq < b.Seq
	})

	// last[0] tracks uid1, last[1] tracks uid2.
	var last [2]Position
	var seen [2]bool

	out := make([]Reconstructed, 0, len(merged))
	for _, s := range merged {
		self := 0
		if s.UserID == uid2 {
			self = 1
		}
		other := 1 - self

		if seen[other] {
			out = append(out, Reconstructed{Sighting: s, Counterpart: last[other]})
		}

		last[self] = Position{Floor: s.Floor, X: s.X, Y: s.Y, SeenAt: s.Timestamp}
		seen[self] = true
	}
	return out, nil
}
