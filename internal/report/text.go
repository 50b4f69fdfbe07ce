// Package report renders meeting results: a plain-text summary for the
// terminal and distance-over-time charts as PNG (gonum/plot) or HTML
// (go-echarts).
package report

import (
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/copresence/internal/meeting"
	"github.com/banshee-data/copresence/internal/units"
)

// TimestampFormat is used for every timestamp printed in reports.
const TimestampFormat = "2006-01-02 15:04:05.000"

// Round3 rounds v to three decimal places.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Display selects the units and timezone of printed values. The zero value
// prints metres and UTC.
type Display struct {
	Units    string
	Timezone string
}

// Text writes a human-readable summary of res to w in metres and UTC.
func Text(w io.Writer, res meeting.Result) error {
	return Display{}.Text(w, res)
}

// Text writes a human-readable summary of res to w.
func (d Display) Text(w io.Writer, res meeting.Result) error {
	unit := d.Units
	if !units.IsValid(unit) {
		unit = units.Metres
	}
	var err error
	switch res.Outcome {
	case meeting.OutcomeUserNotFound:
		missing := res.Missing
		if missing == "" {
			_, err = fmt.Fprintln(w, "User not found: both user ids are required.")
		} else {
			_, err = fmt.Fprintf(w, "User not found: %q has no sightings in the dataset.\n", missing)
		}
	case meeting.OutcomeNoMeeting:
		_, err = fmt.Fprintf(w, "No meeting found between %s and %s.\n", res.UserA, res.UserB)
	case meeting.OutcomeMeeting:
		m := res.Meeting
		at, terr := units.ConvertTime(m.Timestamp, d.Timezone)
		if terr != nil {
			return terr
		}
		_, err = fmt.Fprintf(w,
			"Meeting found between %s and %s\n"+
				"  time:       %s\n"+
				"  floor:      %d\n"+
				"  position:   x=%.3f y=%.3f\n"+
				"  distance:   %.3f %s\n"+
				"  elapsed:    %.3f s\n"+
				"  confidence: %d\n",
			res.UserA, res.UserB,
			at.Format(TimestampFormat),
			m.Floor,
			m.X, m.Y,
			Round3(units.ConvertDistance(m.Distance, unit)), unit,
			Round3(m.ElapsedSeconds()),
			res.Confidence,
		)
	default:
		err = fmt.Errorf("unknown outcome %v", res.Outcome)
	}
	return err
}

// Bool writes "true" or "false".
func Bool(w io.Writer, res meeting.Result) error {
	_, err := fmt.Fprintln(w, res.Found())
	return err
}
