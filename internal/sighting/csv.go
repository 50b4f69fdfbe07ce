package sighting

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Column names recognised in a sighting CSV header (case-insensitive).
const (
	ColTimestamp = "timestamp"
	ColX         = "x"
	ColY         = "y"
	ColFloor     = "floor"
	ColUID       = "uid"
)

var uidAliases = []string{ColUID, "user_id", "userid", "user"}

// LoadStats summarises a CSV load. Errors holds one message per rejected line.
type LoadStats struct {
	Total    int
	Loaded   int
	Skipped  int
	Failed   int
	Errors   []string
	MaxError int
}

// CSVLoader reads sightings from a CSV stream with a header row.
type CSVLoader struct {
	// Layouts are the accepted timestamp layouts. Empty means DefaultLayouts.
	Layouts []string

	// Users restricts loading to the given user ids. Rows for other users
	// are skipped before their numeric fields are parsed. Empty loads all.
	Users []string

	// Strict aborts the load on the first malformed row.
	Strict bool
}

// LoadCSV reads every sighting in r using the default layouts.
func LoadCSV(r io.Reader) (*Dataset, *LoadStats, error) {
	return (&CSVLoader{}).Load(r)
}

// Load parses r into a Dataset. Malformed rows are counted and reported in
// the returned LoadStats rather than failing the load, unless Strict is set.
func (l *CSVLoader) Load(r io.Reader) (*Dataset, *LoadStats, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	stats := &LoadStats{MaxError: 100}

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return NewDataset(nil), stats, nil
		}
		return nil, nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, nil, err
	}

	var keep map[string]bool
	if len(l.Users) > 0 {
		keep = make(map[string]bool, len(l.Users))
		for _, uid := range l.Users {
			keep[uid] = true
		}
	}

	var out []Sighting
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		stats.Total++
		if err != nil {
			if l.Strict {
				return nil, stats, fmt.Errorf("line %d: %w", line, err)
			}
			stats.fail(line, err)
			continue
		}

		uid, ok := field(record, cols.uid)
		if ok && keep != nil && !keep[uid] {
			stats.Skipped++
			continue
		}

		s, err := l.parseRecord(record, cols)
		if err != nil {
			if l.Strict {
				return nil, stats, fmt.Errorf("line %d: %w", line, err)
			}
			stats.fail(line, err)
			continue
		}
		out = append(out, s)
		stats.Loaded++
	}

	return NewDataset(out), stats, nil
}

func (st *LoadStats) fail(line int, err error) {
	st.Failed++
	if len(st.Errors) < st.MaxError {
		st.Errors = append(st.Errors, fmt.Sprintf("line %d: %v", line, err))
	}
}

type columns struct {
	timestamp, x, y, floor, uid int
}

func mapColumns(header []string) (columns, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}

	cols := columns{uid: -1}
	var missing []string
	lookup := func(name string) int {
		i, ok := idx[name]
		if !ok {
			missing = append(missing, name)
			return -1
		}
		return i
	}
	cols.timestamp = lookup(ColTimestamp)
	cols.x = lookup(ColX)
	cols.y = lookup(ColY)
	cols.floor = lookup(ColFloor)
	for _, alias := range uidAliases {
		if i, ok := idx[alias]; ok {
			cols.uid = i
			break
		}
	}
	if cols.uid < 0 {
		missing = append(missing, ColUID)
	}
	if len(missing) > 0 {
		return cols, fmt.Errorf("csv header missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func field(record []string, i int) (string, bool) {
	if i < 0 || i >= len(record) {
		return "", false
	}
	return strings.TrimSpace(record[i]), true
}

func (l *CSVLoader) parseRecord(record []string, cols columns) (Sighting, error) {
	var s Sighting

	uid, ok := field(record, cols.uid)
	if !ok || uid == "" {
		return s, fmt.Errorf("missing uid")
	}
	s.UserID = uid

	raw, ok := field(record, cols.timestamp)
	if !ok {
		return s, fmt.Errorf("missing timestamp")
	}
	ts, err := ParseTimestamp(raw, l.Layouts)
	if err != nil {
		return s, err
	}
	s.Timestamp = ts

	if s.X, err = parseFloat(record, cols.x, ColX); err != nil {
		return s, err
	}
	if s.Y, err = parseFloat(record, cols.y, ColY); err != nil {
		return s, err
	}
	floor, err := parseFloat(record, cols.floor, ColFloor)
	if err != nil {
		return s, err
	}
	if floor != math.Trunc(floor) {
		return s, fmt.Errorf("floor %v is not an integer", floor)
	}
	if floor < math.MinInt32 || floor > math.MaxInt32 {
		return s, fmt.Errorf("floor %v out of range", floor)
	}
	s.Floor = int(floor)

	return s, nil
}

func parseFloat(record []string, i int, name string) (float64, error) {
	raw, ok := field(record, i)
	if !ok || raw == "" {
		return 0, fmt.Errorf("missing %s", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}
