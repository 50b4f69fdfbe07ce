package report

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/copresence/internal/meeting"
)

// DistanceStats summarises the distances and ages of a candidate set.
type DistanceStats struct {
	Count          int     `json:"count"`
	MinDistance    float64 `json:"min_distance_m"`
	MeanDistance   float64 `json:"mean_distance_m"`
	MaxDistance    float64 `json:"max_distance_m"`
	StdDevDistance float64 `json:"stddev_distance_m"`
	MeanElapsed    float64 `json:"mean_elapsed_s"`
	WithinCutoff   int     `json:"within_cutoff"`
}

// Stats computes DistanceStats over cands. WithinCutoff counts candidates
// strictly closer than maxDistance.
func Stats(cands []meeting.Candidate, maxDistance float64) DistanceStats {
	s := DistanceStats{Count: len(cands)}
	if len(cands) == 0 {
		return s
	}

	dist := make([]float64, len(cands))
	elapsed := make([]float64, len(cands))
	for i, c := range cands {
		dist[i] = c.Distance
		elapsed[i] = c.ElapsedSeconds()
		if c.Distance < maxDistance {
			s.WithinCutoff++
		}
	}

	s.MinDistance = floats.Min(dist)
	s.MaxDistance = floats.Max(dist)
	s.MeanDistance, s.StdDevDistance = stat.MeanStdDev(dist, nil)
	if len(dist) < 2 {
		s.StdDevDistance = 0
	}
	s.MeanElapsed = stat.Mean(elapsed, nil)
	return s
}
