// Package sweep evaluates every unordered pair of users in a sighting batch.
package sweep

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/copresence/internal/meeting"
	"github.com/banshee-data/copresence/internal/monitoring"
	"github.com/banshee-data/copresence/internal/report"
	"github.com/banshee-data/copresence/internal/timeutil"
)

// DefaultWorkers is used when Config.Workers is not positive.
const DefaultWorkers = 4

// Config controls a sweep run.
type Config struct {
	Workers    int
	Thresholds meeting.Thresholds

	// Clock stamps and times the run. Defaults to timeutil.RealClock.
	Clock timeutil.Clock

	// Sink, when set, receives the finished summary.
	Sink Sink
}

// Sink persists a finished sweep.
type Sink interface {
	StoreSweep(s *Summary) error
}

// PairResult is the outcome of one pair. Err is set when the query failed;
// Result still carries the user ids.
type PairResult struct {
	meeting.Result
	Err error `json:"-"`
}

// Summary describes a completed sweep. Results are ordered by (UserA, UserB).
type Summary struct {
	RunID      string             `json:"run_id"`
	Started    time.Time          `json:"started"`
	Duration   time.Duration      `json:"duration_ns"`
	Thresholds meeting.Thresholds `json:"thresholds"`
	Failed     int                `json:"failed"`
	report.Summary
	Results []PairResult `json:"results"`
}

type pairJob struct {
	idx        int
	uid1, uid2 string
}

// Pairs returns every unordered pair of distinct ids in users, ordered by
// (first, second). users is deduplicated and sorted first.
func Pairs(users []string) [][2]string {
	uniq := make([]string, 0, len(users))
	seen := make(map[string]bool, len(users))
	for _, u := range users {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		uniq = append(uniq, u)
	}
	sort.Strings(uniq)

	var out [][2]string
	for i := 0; i < len(uniq); i++ {
		for j := i + 1; j < len(uniq); j++ {
			out = append(out, [2]string{uniq[i], uniq[j]})
		}
	}
	return out
}

// Run queries every pair of users against src with a bounded pool of
// workers. A failing pair is recorded in its PairResult and counted in
// Summary.Failed; it does not stop the sweep. Cancelling ctx stops handing
// out new pairs and returns ctx.Err().
func Run(ctx context.Context, src meeting.Source, users []string, cfg Config) (*Summary, error) {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	pairs := Pairs(users)
	if workers > len(pairs) && len(pairs) > 0 {
		workers = len(pairs)
	}

	s := &Summary{
		RunID:      uuid.New().String(),
		Started:    clock.Now(),
		Thresholds: cfg.Thresholds,
		Results:    make([]PairResult, len(pairs)),
	}
	monitoring.Logf("[sweep] run %s: %d users, %d pairs, %d workers", s.RunID, len(users), len(pairs), workers)

	jobs := make(chan pairJob)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				res, err := meeting.FindMeetings(src, job.uid1, job.uid2, meeting.Options{Thresholds: cfg.Thresholds})
				res.UserA, res.UserB = job.uid1, job.uid2
				// Each index is written by exactly one worker.
				s.Results[job.idx] = PairResult{Result: res, Err: err}
				if err != nil {
					monitoring.Logf("[sweep] pair %s/%s failed: %v", job.uid1, job.uid2, err)
				} else {
					monitoring.Debugf("[sweep] pair %s/%s: %s", job.uid1, job.uid2, res.Outcome)
				}
			}
		}()
	}

	var cancelled error
feed:
	for i, p := range pairs {
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
			break feed
		case jobs <- pairJob{idx: i, uid1: p[0], uid2: p[1]}:
		}
	}
	close(jobs)
	wg.Wait()

	if cancelled != nil {
		return nil, fmt.Errorf("sweep %s cancelled: %w", s.RunID, cancelled)
	}

	ok := make([]meeting.Result, 0, len(s.Results))
	for _, pr := range s.Results {
		if pr.Err != nil {
			s.Failed++
			continue
		}
		ok = append(ok, pr.Result)
	}
	s.Summary = report.Summarize(ok)
	s.Summary.Pairs = len(s.Results)
	s.Duration = clock.Since(s.Started)

	monitoring.Logf("[sweep] run %s done in %s: %d meetings, %d failed", s.RunID, s.Duration, s.Meetings, s.Failed)

	if cfg.Sink != nil {
		if err := cfg.Sink.StoreSweep(s); err != nil {
			return s, fmt.Errorf("store sweep %s: %w", s.RunID, err)
		}
	}
	return s, nil
}
