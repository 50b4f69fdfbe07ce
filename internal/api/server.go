// Package api serves meeting queries and distance charts over HTTP.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/copresence/internal/db"
	"github.com/banshee-data/copresence/internal/httputil"
	"github.com/banshee-data/copresence/internal/meeting"
	"github.com/banshee-data/copresence/internal/monitoring"
	"github.com/banshee-data/copresence/internal/report"
)

// ANSI escape codes for request logging.
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// SweepStore lists persisted sweeps. *db.DB implements it.
type SweepStore interface {
	SweepRuns() ([]db.SweepRun, error)
	SweepResults(runID string) ([]db.SweepResult, error)
}

// Server answers meeting queries against a fixed sighting source.
type Server struct {
	src        meeting.Source
	users      []string
	thresholds meeting.Thresholds
	sweeps     SweepStore
}

// NewServer creates a Server over src. users is what /api/users reports.
func NewServer(src meeting.Source, users []string, th meeting.Thresholds) *Server {
	return &Server{src: src, users: users, thresholds: th}
}

// WithSweeps enables the /api/sweeps endpoints.
func (s *Server) WithSweeps(store SweepStore) *Server {
	s.sweeps = store
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// Register mounts the handlers on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/users", s.listUsers)
	mux.HandleFunc("/api/meeting", s.findMeeting)
	mux.HandleFunc("/api/distance_stats", s.distanceStats)
	mux.HandleFunc("/chart", s.distanceChart)
	if s.sweeps != nil {
		mux.HandleFunc("/api/sweeps", s.listSweeps)
		mux.HandleFunc("/api/sweeps/{run_id}", s.sweepResults)
	}
}

// ServeMux returns a new mux with the handlers registered.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	users := s.users
	if users == nil {
		users = []string{}
	}
	httputil.WriteJSONOK(w, users)
}

func pairParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	q := r.URL.Query()
	u1, u2 := q.Get("u1"), q.Get("u2")
	if u1 == "" || u2 == "" {
		httputil.BadRequest(w, "u1 and u2 are required")
		return "", "", false
	}
	if u1 == u2 {
		httputil.BadRequest(w, meeting.ErrSameUser.Error())
		return "", "", false
	}
	return u1, u2, true
}

// captured records the staleness-filtered candidates of a query.
type captured struct {
	cands []meeting.Candidate
}

func (c *captured) PlotDistance(_, _ string, cands []meeting.Candidate) error {
	c.cands = cands
	return nil
}

func (s *Server) query(uid1, uid2 string) (meeting.Result, []meeting.Candidate, error) {
	var rec captured
	res, err := meeting.FindMeetings(s.src, uid1, uid2, meeting.Options{Thresholds: s.thresholds, Plotter: &rec})
	return res, rec.cands, err
}

func writeQueryError(w http.ResponseWriter, err error) {
	if errors.Is(err, meeting.ErrReconstructionInvariant) {
		monitoring.Logf("[api] %v", err)
	}
	httputil.InternalServerError(w, err.Error())
}

func (s *Server) findMeeting(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	uid1, uid2, ok := pairParams(w, r)
	if !ok {
		return
	}
	res, _, err := s.query(uid1, uid2)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	status := http.StatusOK
	if res.Outcome == meeting.OutcomeUserNotFound {
		status = http.StatusNotFound
	}
	httputil.WriteJSON(w, status, res)
}

type distanceStatsResponse struct {
	UserA      string               `json:"uid1"`
	UserB      string               `json:"uid2"`
	Thresholds meeting.Thresholds   `json:"thresholds"`
	Stats      report.DistanceStats `json:"stats"`
	Candidates []meeting.Candidate  `json:"candidates,omitempty"`
}

func (s *Server) distanceStats(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	uid1, uid2, ok := pairParams(w, r)
	if !ok {
		return
	}
	res, cands, err := s.query(uid1, uid2)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	if res.Outcome == meeting.OutcomeUserNotFound {
		httputil.NotFound(w, fmt.Sprintf("user %q has no sightings", res.Missing))
		return
	}
	th := s.thresholds.WithDefaults()
	resp := distanceStatsResponse{
		UserA:      uid1,
		UserB:      uid2,
		Thresholds: th,
		Stats:      report.Stats(cands, th.MaxDistance),
	}
	if r.URL.Query().Get("include") == "candidates" {
		resp.Candidates = cands
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) distanceChart(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	uid1, uid2, ok := pairParams(w, r)
	if !ok {
		return
	}
	res, cands, err := s.query(uid1, uid2)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	if res.Outcome == meeting.OutcomeUserNotFound {
		httputil.NotFound(w, fmt.Sprintf("user %q has no sightings", res.Missing))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderDistanceChart(w, uid1, uid2, cands, s.thresholds.WithDefaults().MaxDistance); err != nil {
		monitoring.Logf("[api] chart %s/%s: %v", uid1, uid2, err)
	}
}

func (s *Server) listSweeps(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	runs, err := s.sweeps.SweepRuns()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if runs == nil {
		runs = []db.SweepRun{}
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) sweepResults(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	runID := r.PathValue("run_id")
	results, err := s.sweeps.SweepResults(runID)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if len(results) == 0 {
		httputil.NotFound(w, fmt.Sprintf("no results for run %q", runID))
		return
	}
	httputil.WriteJSONOK(w, results)
}
