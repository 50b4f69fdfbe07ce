// Command copresence reports whether two users met, judging from indoor
// positioning sightings. Without user ids it sweeps every pair.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/copresence/internal/api"
	"github.com/banshee-data/copresence/internal/config"
	"github.com/banshee-data/copresence/internal/db"
	"github.com/banshee-data/copresence/internal/meeting"
	"github.com/banshee-data/copresence/internal/monitoring"
	"github.com/banshee-data/copresence/internal/report"
	"github.com/banshee-data/copresence/internal/sighting"
	"github.com/banshee-data/copresence/internal/sweep"
	"github.com/banshee-data/copresence/internal/version"
)

// Exit codes.
const (
	exitOK        = 0
	exitError     = 1
	exitUsage     = 2
	exitInvariant = 3
)

type options struct {
	dataPath   string
	dbPath     string
	configPath string
	staleness  time.Duration
	distance   float64
	plot       bool
	plotHTML   bool
	plotDir    string
	boolOut    bool
	jsonOut    bool
	workers    int
	units      string
	timezone   string
	listen     string
	verbose    bool
	version    bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (*options, []string, error) {
	fs := flag.NewFlagSet("copresence", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: copresence [flags] [uid1 uid2]\n       copresence -db <path> migrate <action>\n\nFlags:\n")
		fs.PrintDefaults()
	}

	o := &options{}
	fs.StringVar(&o.dataPath, "data", "", "Sightings CSV file (timestamp,x,y,floor,uid)")
	fs.StringVar(&o.dbPath, "db", "", "SQLite store; -data is imported into it when both are given")
	fs.StringVar(&o.configPath, "config", "", "JSON config file (see "+config.DefaultConfigPath+")")
	fs.DurationVar(&o.staleness, "max-staleness", 0, "Override max_staleness (e.g. 120s)")
	fs.Float64Var(&o.distance, "max-distance", 0, "Override max_distance_m")
	fs.BoolVar(&o.plot, "plot", false, "Write a PNG distance chart per queried pair")
	fs.BoolVar(&o.plotHTML, "plot-html", false, "Write an interactive HTML distance chart per queried pair")
	fs.StringVar(&o.plotDir, "plot-dir", "", "Chart output directory (overrides plot_dir)")
	fs.BoolVar(&o.boolOut, "bool", false, "Print only true or false")
	fs.BoolVar(&o.jsonOut, "json", false, "Print the result as JSON")
	fs.IntVar(&o.workers, "workers", 0, "Sweep workers (overrides sweep_workers)")
	fs.StringVar(&o.units, "units", "", "Distance units for text output: m, ft or yd (overrides display_units)")
	fs.StringVar(&o.timezone, "tz", "", "Timezone for text output (overrides display_timezone)")
	fs.StringVar(&o.listen, "listen", "", "Serve the HTTP API and debug pages on this address")
	fs.BoolVar(&o.verbose, "v", false, "Verbose logging")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return o, fs.Args(), nil
}

func run(args []string, stdout, stderr io.Writer) int {
	o, rest, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	monitoring.SetVerbose(o.verbose)

	if o.version {
		fmt.Fprintln(stdout, version.String())
		return exitOK
	}

	if len(rest) > 0 && rest[0] == "migrate" {
		if o.dbPath == "" {
			fmt.Fprintln(stderr, "migrate requires -db")
			return exitUsage
		}
		if err := db.RunMigrateCommand(rest[1:], o.dbPath, stdout); err != nil {
			fmt.Fprintf(stderr, "migrate: %v\n", err)
			return exitError
		}
		return exitOK
	}

	if len(rest) != 0 && len(rest) != 2 {
		fmt.Fprintln(stderr, "expected two user ids, or none to sweep every pair")
		return exitUsage
	}
	if o.dataPath == "" && o.dbPath == "" {
		fmt.Fprintln(stderr, "one of -data or -db is required")
		return exitUsage
	}

	cfg, err := loadConfig(o)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitError
	}

	st, err := openStore(o, cfg, rest)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitError
	}
	defer st.Close()

	switch {
	case o.listen != "":
		err = serve(o.listen, st, cfg)
	case len(rest) == 2:
		err = query(o, cfg, st, rest[0], rest[1], stdout)
	default:
		err = runSweep(o, cfg, st, stdout)
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		if errors.Is(err, meeting.ErrReconstructionInvariant) {
			return exitInvariant
		}
		return exitError
	}
	return exitOK
}

func loadConfig(o *options) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	}
	if o.staleness > 0 {
		s := o.staleness.String()
		cfg.MaxStaleness = &s
	}
	if o.distance > 0 {
		cfg.MaxDistance = &o.distance
	}
	if o.workers > 0 {
		cfg.SweepWorkers = &o.workers
	}
	if o.plotDir != "" {
		cfg.PlotDir = &o.plotDir
	}
	if o.units != "" {
		cfg.DisplayUnits = &o.units
	}
	if o.timezone != "" {
		cfg.DisplayTimezone = &o.timezone
	}
	return cfg, cfg.Validate()
}

// store is the sighting source a run queries: an in-memory CSV load, or
// the SQLite store.
type store struct {
	src   meeting.Source
	users func() ([]string, error)
	db    *db.DB
}

func (s *store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func openStore(o *options, cfg *config.Config, ids []string) (*store, error) {
	var ds *sighting.Dataset
	if o.dataPath != "" {
		loader := &sighting.CSVLoader{
			Layouts: cfg.GetTimestampLayouts(),
			Strict:  cfg.GetStrictCSV(),
		}
		// Without a store to fill, only the queried pair needs parsing.
		if o.dbPath == "" && o.listen == "" && len(ids) == 2 {
			loader.Users = ids
		}
		var err error
		if ds, err = loadCSVFile(o.dataPath, loader); err != nil {
			return nil, err
		}
	}

	if o.dbPath == "" {
		return &store{
			src:   ds,
			users: func() ([]string, error) { return ds.Users(), nil },
		}, nil
	}

	database, err := db.NewDB(o.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if ds != nil {
		if _, err := database.ImportDataset(ds); err != nil {
			database.Close()
			return nil, err
		}
	}
	return &store{src: database, users: database.Users, db: database}, nil
}

func loadCSVFile(path string, loader *sighting.CSVLoader) (*sighting.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sightings: %w", err)
	}
	defer f.Close()

	ds, stats, err := loader.Load(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	monitoring.Logf("loaded %d of %d rows from %s (%d skipped, %d malformed)",
		stats.Loaded, stats.Total, path, stats.Skipped, stats.Failed)
	for _, msg := range stats.Errors {
		monitoring.Debugf("  %s", msg)
	}
	return ds, nil
}

func plotters(o *options, cfg *config.Config) meeting.DistancePlotter {
	var ps report.Plotters
	if o.plot {
		ps = append(ps, report.NewPNGPlotter(cfg.GetPlotDir(), cfg.GetMaxDistance()))
	}
	if o.plotHTML {
		ps = append(ps, report.NewHTMLPlotter(cfg.GetPlotDir(), cfg.GetMaxDistance()))
	}
	if len(ps) == 0 {
		return nil
	}
	return ps
}

func query(o *options, cfg *config.Config, st *store, uid1, uid2 string, stdout io.Writer) error {
	res, err := meeting.FindMeetings(st.src, uid1, uid2, meeting.Options{
		Thresholds: cfg.GetThresholds(),
		Plotter:    plotters(o, cfg),
	})
	if err != nil {
		return err
	}

	switch {
	case o.boolOut:
		return report.Bool(stdout, res)
	case o.jsonOut:
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	default:
		d := report.Display{Units: cfg.GetDisplayUnits(), Timezone: cfg.GetDisplayTimezone()}
		return d.Text(stdout, res)
	}
}

// dbSink stores finished sweeps in the SQLite store.
type dbSink struct {
	db *db.DB
}

func (s dbSink) StoreSweep(sum *sweep.Summary) error {
	run := db.SweepRun{
		RunID:        sum.RunID,
		Started:      sum.Started,
		Duration:     sum.Duration,
		MaxStaleness: sum.Thresholds.MaxStaleness,
		MaxDistance:  sum.Thresholds.MaxDistance,
		Pairs:        sum.Pairs,
		Meetings:     sum.Meetings,
		Failed:       sum.Failed,
	}
	rows := make([]db.SweepResult, len(sum.Results))
	for i, pr := range sum.Results {
		rows[i] = db.NewSweepResult(sum.RunID, pr.Result, pr.Err)
	}
	return s.db.RecordSweep(run, rows)
}

func runSweep(o *options, cfg *config.Config, st *store, stdout io.Writer) error {
	users, err := st.users()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sc := sweep.Config{
		Workers:    cfg.GetSweepWorkers(),
		Thresholds: cfg.GetThresholds(),
	}
	if st.db != nil {
		sc.Sink = dbSink{st.db}
	}
	sum, err := sweep.Run(ctx, st.src, users, sc)
	if err != nil {
		return err
	}

	if o.jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}
	for _, pr := range sum.Results {
		if pr.Err != nil {
			fmt.Fprintf(stdout, "%s\t%s\terror: %v\n", pr.UserA, pr.UserB, pr.Err)
			continue
		}
		if !pr.Found() {
			continue
		}
		m := pr.Meeting
		fmt.Fprintf(stdout, "%s\t%s\t%s\tfloor %d\t%.3f m\t%d\n", pr.UserA, pr.UserB,
			m.Timestamp.Format(report.TimestampFormat), m.Floor, m.Distance, pr.Confidence)
	}
	fmt.Fprintf(stdout, "run %s: %d pairs, %d meetings, %d failed\n", sum.RunID, sum.Pairs, sum.Meetings, sum.Failed)

	var invariant error
	for _, pr := range sum.Results {
		if errors.Is(pr.Err, meeting.ErrReconstructionInvariant) {
			invariant = pr.Err
			break
		}
	}
	return invariant
}

func serve(addr string, st *store, cfg *config.Config) error {
	users, err := st.users()
	if err != nil {
		return err
	}

	srv := api.NewServer(st.src, users, cfg.GetThresholds())
	if st.db != nil {
		srv.WithSweeps(st.db)
	}
	mux := srv.ServeMux()
	if st.db != nil {
		if err := st.db.AttachAdminRoutes(mux); err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:    addr,
		Handler: api.LoggingMiddleware(mux),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		return server.Close()
	}
	return nil
}
