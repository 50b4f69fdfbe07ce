// Package sighting holds the position log consumed by meeting inference:
// the Sighting record, timestamp parsing and the in-memory Dataset.
package sighting

import (
	"fmt"
	"strings"
	"time"
)

// DefaultLayouts are the timestamp layouts accepted when none are configured.
// Fractional seconds are accepted by every layout at parse time.
var DefaultLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Sighting is one timestamped position observation of a single user.
type Sighting struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"uid"`
	Floor     int       `json:"floor"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`

	// Seq is the record's position in the source log. It breaks ties
	// between sightings with identical timestamps.
	Seq int `json:"seq"`
}

func (s Sighting) String() string {
	return fmt.Sprintf("%s uid=%s floor=%d x=%.3f y=%.3f",
		s.Timestamp.Format(time.RFC3339Nano), s.UserID, s.Floor, s.X, s.Y)
}

// ParseTimestamp parses s with the first matching layout. Zone-less inputs
// are interpreted as UTC. Nanosecond precision is retained.
func ParseTimestamp(s string, layouts []string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if len(layouts) == 0 {
		layouts = DefaultLayouts
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
