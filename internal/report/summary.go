package report

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/copresence/internal/meeting"
)

// Summary aggregates the outcomes of many meeting queries.
type Summary struct {
	Pairs          int     `json:"pairs"`
	Meetings       int     `json:"meetings"`
	NoMeetings     int     `json:"no_meetings"`
	NotFound       int     `json:"not_found"`
	MeanConfidence float64 `json:"mean_confidence"`
	MeanDistance   float64 `json:"mean_distance_m"`
	MedianDistance float64 `json:"median_distance_m"`
	MeanElapsed    float64 `json:"mean_elapsed_s"`
}

// Summarize counts outcomes and averages the meeting distance, age and
// confidence over the results that found a meeting.
func Summarize(results []meeting.Result) Summary {
	s := Summary{Pairs: len(results)}

	var dist, elapsed, conf []float64
	for _, r := range results {
		switch r.Outcome {
		case meeting.OutcomeMeeting:
			s.Meetings++
			if r.Meeting != nil {
				dist = append(dist, r.Meeting.Distance)
				elapsed = append(elapsed, r.Meeting.ElapsedSeconds())
			}
			conf = append(conf, float64(r.Confidence))
		case meeting.OutcomeNoMeeting:
			s.NoMeetings++
		case meeting.OutcomeUserNotFound:
			s.NotFound++
		}
	}
	if len(dist) == 0 {
		return s
	}

	s.MeanConfidence = stat.Mean(conf, nil)
	s.MeanDistance = stat.Mean(dist, nil)
	s.MeanElapsed = stat.Mean(elapsed, nil)
	sort.Float64s(dist)
	s.MedianDistance = stat.Quantile(0.5, stat.Empirical, dist, nil)
	return s
}
