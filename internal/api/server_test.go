package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/copresence/internal/db"
	"github.com/banshee-data/copresence/internal/meeting"
	"github.com/banshee-data/copresence/internal/monitoring"
	"github.com/banshee-data/copresence/internal/sighting"
)

var t0 = time.Date(2014, 7, 19, 16, 0, 0, 0, time.UTC)

func init() {
	monitoring.SetLogger(nil)
}

func testDataset() *sighting.Dataset {
	return sighting.NewDataset([]sighting.Sighting{
		{Timestamp: t0, UserID: "a", Floor: 1, X: 0, Y: 0},
		{Timestamp: t0.Add(time.Second), UserID: "b", Floor: 1, X: 1, Y: 0},
		{Timestamp: t0.Add(2 * time.Second), UserID: "c", Floor: 2, X: 0, Y: 0},
		{Timestamp: t0.Add(3 * time.Second), UserID: "a", Floor: 1, X: 5, Y: 0},
	})
}

func testServer() *Server {
	ds := testDataset()
	return NewServer(ds, ds.Users(), meeting.DefaultThresholds())
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestListUsers(t *testing.T) {
	t.Parallel()
	w := get(t, testServer().ServeMux(), "/api/users")
	require.Equal(t, http.StatusOK, w.Code)

	var users []string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&users))
	assert.Equal(t, []string{"a", "b", "c"}, users)
}

func TestFindMeeting(t *testing.T) {
	t.Parallel()
	mux := testServer().ServeMux()

	w := get(t, mux, "/api/meeting?u1=a&u2=b")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Outcome    string `json:"outcome"`
		Confidence int    `json:"confidence"`
		Meeting    *struct {
			UserID   string  `json:"uid"`
			Distance float64 `json:"distance_m"`
		} `json:"meeting"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "meeting", body.Outcome)
	assert.Equal(t, 1, body.Confidence)
	require.NotNil(t, body.Meeting)
	assert.Equal(t, "b", body.Meeting.UserID)
	assert.InDelta(t, 1.0, body.Meeting.Distance, 1e-9)

	w = get(t, mux, "/api/meeting?u1=a&u2=c")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"outcome":"no_meeting"`)

	w = get(t, mux, "/api/meeting?u1=a&u2=ghost")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"missing":"ghost"`)
}

func TestFindMeeting_BadRequests(t *testing.T) {
	t.Parallel()
	mux := testServer().ServeMux()

	for _, target := range []string{"/api/meeting", "/api/meeting?u1=a", "/api/meeting?u1=a&u2=a"} {
		w := get(t, mux, target)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/meeting?u1=a&u2=b", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

type reversedSource struct{}

func (reversedSource) Pair(uid1, uid2 string) ([]sighting.Sighting, error) {
	// Log order is the reverse of timestamp order.
	return []sighting.Sighting{
		{Timestamp: t0.Add(time.Minute), UserID: "a", Floor: 1},
		{Timestamp: t0, UserID: "b", Floor: 1},
	}, nil
}

func TestFindMeeting_SourceOrderIsIrrelevant(t *testing.T) {
	t.Parallel()
	// The pipeline sorts by timestamp, so reversed log order is not a defect.
	srv := NewServer(reversedSource{}, nil, meeting.Thresholds{})
	w := get(t, srv.ServeMux(), "/api/meeting?u1=a&u2=b")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"outcome":"meeting"`)
}

func TestDistanceStats(t *testing.T) {
	t.Parallel()
	w := get(t, testServer().ServeMux(), "/api/distance_stats?u1=a&u2=b&include=candidates")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body distanceStatsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 2, body.Stats.Count)
	assert.Equal(t, 1, body.Stats.WithinCutoff)
	assert.Len(t, body.Candidates, 2)
	assert.Equal(t, meeting.DefaultMaxDistance, body.Thresholds.MaxDistance)

	w = get(t, testServer().ServeMux(), "/api/distance_stats?u1=a&u2=nobody")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDistanceChart(t *testing.T) {
	t.Parallel()
	w := get(t, testServer().ServeMux(), "/chart?u1=a&u2=b")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, w.Body.String(), "Distance a / b")
}

func TestSweepEndpoints(t *testing.T) {
	t.Parallel()
	store, err := db.NewDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	run := db.SweepRun{RunID: "r1", Started: t0, MaxStaleness: 2 * time.Minute, MaxDistance: 2, Pairs: 1}
	rows := []db.SweepResult{db.NewSweepResult("r1", meeting.Result{UserA: "a", UserB: "b", Outcome: meeting.OutcomeNoMeeting}, nil)}
	require.NoError(t, store.RecordSweep(run, rows))

	ds := testDataset()
	mux := NewServer(ds, ds.Users(), meeting.Thresholds{}).WithSweeps(store).ServeMux()

	w := get(t, mux, "/api/sweeps")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"run_id":"r1"`)

	w = get(t, mux, "/api/sweeps/r1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"outcome":"no_meeting"`)

	w = get(t, mux, "/api/sweeps/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLoggingMiddleware(t *testing.T) {
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, format)
	})
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := get(t, h, "/x")
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Len(t, lines, 1)
	assert.Contains(t, statusCodeColor(http.StatusTeapot), "418")
}
