// Package testutil provides sighting fixtures shared by package tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/copresence/internal/sighting"
)

// Base is the timestamp fixtures are offset from.
var Base = time.Date(2014, 7, 19, 16, 0, 0, 0, time.UTC)

// At builds a sighting offset seconds after Base.
func At(offset float64, uid string, floor int, x, y float64) sighting.Sighting {
	return sighting.Sighting{
		Timestamp: Base.Add(time.Duration(offset * float64(time.Second))),
		UserID:    uid,
		Floor:     floor,
		X:         x,
		Y:         y,
	}
}

// CSV renders ss as a sightings file with the canonical header.
func CSV(ss ...sighting.Sighting) string {
	var b strings.Builder
	b.WriteString("timestamp,x,y,floor,uid\n")
	for _, s := range ss {
		fmt.Fprintf(&b, "%s,%g,%g,%d,%s\n",
			s.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"), s.X, s.Y, s.Floor, s.UserID)
	}
	return b.String()
}

// WriteCSV writes ss to a file in a fresh temp dir and returns its path.
func WriteCSV(t *testing.T, ss ...sighting.Sighting) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sightings.csv")
	if err := os.WriteFile(path, []byte(CSV(ss...)), 0o644); err != nil {
		t.Fatalf("write fixture csv: %v", err)
	}
	return path
}

// MeetingLog is a small log in which a and b meet on floor 1, c stays on
// floor 2, and d never comes near anyone.
func MeetingLog() []sighting.Sighting {
	return []sighting.Sighting{
		At(0, "a", 1, 10, 10),
		At(1, "c", 2, 10, 10),
		At(5, "b", 1, 11, 10),
		At(6, "d", 1, 90, 90),
		At(7, "a", 1, 10.5, 10),
	}
}
