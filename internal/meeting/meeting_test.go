package meeting

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/copresence/internal/sighting"
)

var t0 = time.Date(2014, 7, 19, 16, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return t0.Add(time.Duration(sec * float64(time.Second)))
}

func sight(uid string, sec float64, floor int, x, y float64) sighting.Sighting {
	return sighting.Sighting{Timestamp: at(sec), UserID: uid, Floor: floor, X: x, Y: y}
}

func dataset(ss ...sighting.Sighting) *sighting.Dataset {
	return sighting.NewDataset(ss)
}

type countingSource struct {
	src   Source
	calls int
}

func (c *countingSource) Pair(uid1, uid2 string) ([]sighting.Sighting, error) {
	c.calls++
	return c.src.Pair(uid1, uid2)
}

type failingSource struct{ err error }

func (f failingSource) Pair(string, string) ([]sighting.Sighting, error) { return nil, f.err }

type recordingPlotter struct {
	uid1, uid2 string
	cands      []Candidate
	err        error
}

func (p *recordingPlotter) PlotDistance(uid1, uid2 string, cands []Candidate) error {
	p.uid1, p.uid2, p.cands = uid1, uid2, cands
	return p.err
}

func TestScenarioA_Meeting(t *testing.T) {
	t.Parallel()
	ds := dataset(
		sight("A", 0, 1, 0, 0),
		sight("B", 10, 1, 1, 0),
	)

	res, err := FindMeetings(ds, "A", "B", Options{})
	require.NoError(t, err)
	require.Equal(t, OutcomeMeeting, res.Outcome)
	require.True(t, res.Found())
	require.NotNil(t, res.Meeting)

	m := res.Meeting
	assert.True(t, at(10).Equal(m.Timestamp))
	assert.Equal(t, "B", m.UserID)
	assert.InDelta(t, 10.0, m.ElapsedSeconds(), 1e-9)
	assert.InDelta(t, 1.0, m.Distance, 1e-9)
	assert.Equal(t, 1, res.Confidence)
	assert.Equal(t, "A", res.UserA)
	assert.Equal(t, "B", res.UserB)
}

func TestScenarioB_DifferentFloors(t *testing.T) {
	t.Parallel()
	ds := dataset(
		sight("A", 0, 1, 0, 0),
		sight("B", 10, 2, 1, 0),
	)

	res, err := FindMeetings(ds, "A", "B", Options{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMeeting, res.Outcome)
	assert.False(t, res.Found())
	assert.Nil(t, res.Meeting)
}

func TestScenarioC_Stale(t *testing.T) {
	t.Parallel()
	ds := dataset(
		sight("A", 0, 1, 0, 0),
		sight("B", 200, 1, 0, 0),
	)

	res, err := FindMeetings(ds, "A", "B", Options{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMeeting, res.Outcome)
}

func TestScenarioD_UserNotFound(t *testing.T) {
	t.Parallel()
	ds := dataset(
		sight("A", 0, 1, 0, 0),
		sight("A", 5, 1, 0, 0),
	)
	plotter := &recordingPlotter{}

	res, err := FindMeetings(ds, "A", "ghost", Options{Plotter: plotter})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUserNotFound, res.Outcome)
	assert.Equal(t, "ghost", res.Missing)
	assert.False(t, res.Found())
	assert.Nil(t, res.Meeting)
	assert.Nil(t, plotter.cands, "no classification should run for a missing user")
}

func TestScenarioE_EarliestWins(t *testing.T) {
	t.Parallel()
	ds := dataset(
		sight("A", 0, 1, 0, 0),
		sight("B", 5, 1, 0.5, 0),
		sight("A", 6, 1, 0, 0),
		sight("B", 8, 1, 0.2, 0),
	)

	res, err := FindMeetings(ds, "A", "B", Options{})
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.True(t, at(5).Equal(res.Meeting.Timestamp))
	assert.Equal(t, 3, res.Confidence)
}

func TestFindMeetings_EmptyIDs(t *testing.T) {
	t.Parallel()
	src := &countingSource{src: dataset(sight("A", 0, 1, 0, 0))}

	for _, ids := range [][2]string{{"", "A"}, {"A", ""}, {"", ""}} {
		res, err := FindMeetings(src, ids[0], ids[1], Options{})
		require.NoError(t, err)
		assert.Equal(t, OutcomeUserNotFound, res.Outcome)
	}
	assert.Zero(t, src.calls, "empty ids must be rejected before the source is queried")
}

func TestFindMeetings_SourceError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")

	_, err := FindMeetings(failingSource{err: boom}, "A", "B", Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestFindMeetings_Idempotent(t *testing.T) {
	t.Parallel()
	ds := dataset(
		sight("A", 0, 1, 0, 0),
		sight("B", 1, 1, 1, 1),
		sight("A", 2, 1, 0.5, 0.5),
		sight("B", 300, 1, 0, 0),
	)

	first, err := FindMeetings(ds, "A", "B", Options{})
	require.NoError(t, err)
	second, err := FindMeetings(ds, "A", "B", Options{})
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("results differ (-first +second):\n%s", diff)
	}
}

func TestFindMeetings_PlotterSeesStaleFilteredSet(t *testing.T) {
	t.Parallel()
	ds := dataset(
		sight("A", 0, 1, 0, 0),
		sight("B", 10, 1, 5, 0),  // kept by staleness, cut by distance
		sight("B", 20, 1, 1, 0),  // kept by both
		sight("B", 200, 1, 0, 0), // cut by staleness
	)
	plotter := &recordingPlotter{}

	res, err := FindMeetings(ds, "A", "B", Options{Plotter: plotter})
	require.NoError(t, err)
	assert.Equal(t, "A", plotter.uid1)
	assert.Equal(t, "B", plotter.uid2)
	require.Len(t, plotter.cands, 2)
	assert.InDelta(t, 5.0, plotter.cands[0].Distance, 1e-9)
	assert.InDelta(t, 1.0, plotter.cands[1].Distance, 1e-9)

	require.True(t, res.Found())
	assert.True(t, at(20).Equal(res.Meeting.Timestamp))
	assert.Equal(t, 1, res.Confidence)
}

func TestFindMeetings_PlotterError(t *testing.T) {
	t.Parallel()
	ds := dataset(sight("A", 0, 1, 0, 0), sight("B", 1, 1, 0, 0))
	boom := errors.New("disk full")

	_, err := FindMeetings(ds, "A", "B", Options{Plotter: &recordingPlotter{err: boom}})
	assert.ErrorIs(t, err, boom)
}

func TestFindMeetings_CustomThresholds(t *testing.T) {
	t.Parallel()
	ds := dataset(sight("A", 0, 1, 0, 0), sight("B", 30, 1, 3, 0))

	res, err := FindMeetings(ds, "A", "B", Options{})
	require.NoError(t, err)
	assert.False(t, res.Found())

	res, err = FindMeetings(ds, "A", "B", Options{Thresholds: Thresholds{MaxDistance: 5}})
	require.NoError(t, err)
	assert.True(t, res.Found())

	res, err = FindMeetings(ds, "A", "B", Options{Thresholds: Thresholds{MaxStaleness: 20 * time.Second, MaxDistance: 5}})
	require.NoError(t, err)
	assert.False(t, res.Found())
}

func TestResolve(t *testing.T) {
	t.Parallel()

	res := Resolve(nil)
	assert.Equal(t, OutcomeNoMeeting, res.Outcome)
	assert.False(t, res.Found())
	assert.Zero(t, res.Confidence)

	cands := []Candidate{
		{Reconstructed: Reconstructed{Sighting: sight("A", 5, 1, 0, 0)}},
		{Reconstructed: Reconstructed{Sighting: sight("B", 8, 1, 0, 0)}},
	}
	res = Resolve(cands)
	require.True(t, res.Found())
	assert.True(t, at(5).Equal(res.Meeting.Timestamp))
	assert.Equal(t, 2, res.Confidence)

	// The meeting is a copy, not an alias into the input.
	cands[0].X = 99
	assert.Equal(t, 0.0, res.Meeting.X)
}

func TestOutcome_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "meeting", OutcomeMeeting.String())
	assert.Equal(t, "no_meeting", OutcomeNoMeeting.String())
	assert.Equal(t, "user_not_found", OutcomeUserNotFound.String())
	assert.Equal(t, "outcome(9)", Outcome(9).String())

	b, err := OutcomeMeeting.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "meeting", string(b))
}

func TestResult_JSONRoundTrip(t *testing.T) {
	t.Parallel()
	ds := dataset(
		sight("A", 0, 1, 0, 0),
		sight("B", 10, 1, 1, 0),
	)
	met, err := FindMeetings(ds, "A", "B", Options{})
	require.NoError(t, err)

	results := []Result{
		met,
		{UserA: "A", UserB: "B", Outcome: OutcomeNoMeeting},
		{UserA: "A", UserB: "ghost", Outcome: OutcomeUserNotFound, Missing: "ghost"},
	}
	for _, want := range results {
		b, err := json.Marshal(want)
		require.NoError(t, err)

		var got Result
		require.NoError(t, json.Unmarshal(b, &got), string(b))
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s round trip mismatch (-want +got):\n%s", want.Outcome, diff)
		}
	}

	var o Outcome
	assert.Error(t, o.UnmarshalText([]byte("maybe")))
}

// shuffled returns a permuted copy of ss with Seq preserved, as if the same
// log rows had been handed over in a different order.
func shuffled(ss []sighting.Sighting, seed int64) []sighting.Sighting {
	out := make([]sighting.Sighting, len(ss))
	copy(out, ss)
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func TestPipeline_OrderInvariance(t *testing.T) {
	t.Parallel()
	base := dataset(
		sight("A", 0, 1, 0, 0),
		sight("B", 3, 1, 1, 0),
		sight("A", 4, 1, 0.5, 0),
		sight("A", 4, 2, 0.5, 0),
		sight("B", 4, 1, 3, 0),
		sight("B", 9, 2, 0.6, 0.1),
		sight("A", 130, 1, 0, 0),
		sight("B", 131, 1, 0, 1.5),
	).Sightings()

	wantRec, err := Reconstruct(base, "A", "B")
	require.NoError(t, err)
	wantCand, err := Classify(wantRec, DefaultThresholds())
	require.NoError(t, err)
	require.NotEmpty(t, wantCand)

	for seed := int64(1); seed <= 20; seed++ {
		in := shuffled(base, seed)
		gotRec, err := Reconstruct(in, "A", "B")
		require.NoError(t, err)
		if diff := cmp.Diff(wantRec, gotRec); diff != "" {
			t.Fatalf("seed %d: reconstruction differs (-want +got):\n%s", seed, diff)
		}
		gotCand, err := Classify(gotRec, DefaultThresholds())
		require.NoError(t, err)
		if diff := cmp.Diff(wantCand, gotCand); diff != "" {
			t.Fatalf("seed %d: candidates differ (-want +got):\n%s", seed, diff)
		}
	}
}
