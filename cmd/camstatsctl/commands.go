package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/xtxerr/camstats/internal/errors"
	"github.com/xtxerr/camstats/internal/stats/archive"
	"github.com/xtxerr/camstats/internal/stats/codec"
	statsconfig "github.com/xtxerr/camstats/internal/stats/config"
	"github.com/xtxerr/camstats/internal/stats/query"
	"github.com/xtxerr/camstats/internal/stats/retention"
	"github.com/xtxerr/camstats/internal/stats/summary"
	"github.com/xtxerr/camstats/internal/stats/types"
	"github.com/xtxerr/camstats/internal/validation"
)

// app holds the state shared by commands.
type app struct {
	cfg   *statsconfig.Config
	out   io.Writer
	query *query.Service
}

func newApp(cfg *statsconfig.Config, out io.Writer) *app {
	return &app{cfg: cfg, out: out}
}

// close releases the query engine if one was opened.
func (a *app) close() {
	if a.query != nil {
		a.query.Close()
		a.query = nil
	}
}

type command struct {
	name    string
	usage   string
	summary string
	run     func(a *app, args []string) error
}

var commands = []command{
	{"dates", "dates", "list dates and their tables", (*app).cmdDates},
	{"show", "show <date> [camera]", "print the set minutes of a table", (*app).cmdShow},
	{"summary", "summary <date> [camera]", "summarize a table", (*app).cmdSummary},
	{"expire", "expire [-n days] [-dry-run] [-archives]", "delete tables of old dates", (*app).cmdExpire},
	{"export", "export <date>", "archive the tables of a date to Parquet", (*app).cmdExport},
	{"totals", "totals <camera|-> <from> <to>", "daily totals from the archives", (*app).cmdTotals},
	{"sql", "sql <query>", "run SQL over read_parquet('<archive>/*.parquet')", (*app).cmdSQL},
	{"usage", "usage", "disk usage of the stats directory", (*app).cmdUsage},
	{"requirements", "requirements", "estimate storage for the configuration", (*app).cmdRequirements},
}

func commandHelp() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	for _, c := range commands {
		fmt.Fprintf(w, "  %s\t%s\n", c.usage, c.summary)
	}
	w.Flush()
	return b.String()
}

// run dispatches one command line.
func (a *app) run(args []string) error {
	if len(args) == 0 {
		return nil
	}
	if args[0] == "help" {
		fmt.Fprint(a.out, commandHelp())
		return nil
	}

	for _, c := range commands {
		if c.name == args[0] {
			return c.run(a, args[1:])
		}
	}
	return fmt.Errorf("unknown command %q (try 'help')", args[0])
}

// dateTables lists the tables persisted for one date.
type dateTables struct {
	date string
	keys []types.Key
}

// dates lists the canonical table files of the stats directory by date.
func (a *app) dates() ([]dateTables, error) {
	entries, err := os.ReadDir(a.cfg.StatsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []dateTables
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		key, ok := types.ParseFileName(e.Name())
		if !ok {
			continue
		}
		if n := len(out); n == 0 || out[n-1].date != key.Date {
			out = append(out, dateTables{date: key.Date})
		}
		out[len(out)-1].keys = append(out[len(out)-1].keys, key)
	}
	return out, nil
}

// keyArgs parses <date> [camera] or <date>/<camera>. A camera of "-" names
// the server table.
func keyArgs(args []string) (types.Key, error) {
	if len(args) < 1 || len(args) > 2 {
		return types.Key{}, errors.New("expected <date> [camera]")
	}
	ref := args[0]
	if len(args) == 2 && args[1] != "-" {
		ref += "/" + args[1]
	}

	r, err := validation.ParseTableRef(ref)
	if err != nil {
		return types.Key{}, errors.Wrap(errors.ErrInvalidKey, err.Error())
	}
	return types.CameraKey(r.Date, r.Camera), nil
}

func (a *app) readTable(key types.Key) (*types.Table, error) {
	path := filepath.Join(a.cfg.StatsDir, key.FileName())

	t, err := codec.ReadFile(path, key.RowLen())
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(errors.ErrTableNotFound, "%s", key)
	}
	return t, err
}

func (a *app) cmdDates(args []string) error {
	dates, err := a.dates()
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		fmt.Fprintln(a.out, "no tables")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	for _, d := range dates {
		var cams []string
		server := false
		for _, k := range d.keys {
			if k.IsServer() {
				server = true
				continue
			}
			cams = append(cams, k.Camera)
		}
		s := "-"
		if server {
			s = "server"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.date, s, strings.Join(cams, " "))
	}
	return w.Flush()
}

func (a *app) cmdShow(args []string) error {
	key, err := keyArgs(args)
	if err != nil {
		return err
	}
	t, err := a.readTable(key)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "%s\t\n", strings.Join(types.Headers(key.RowLen()), "\t"))

	shown := 0
	for m := 0; m < types.MinutesPerDay; m++ {
		row := t.Row(m)

		fields := make([]string, 0, len(row)+1)
		fields = append(fields, types.MinuteLabel(key.Date, m))
		set := false
		for _, v := range row {
			if v.IsSet() && !v.Equal(types.Int(0)) {
				set = true
			}
			fields = append(fields, v.String())
		}
		if !set {
			continue
		}
		fmt.Fprintf(w, "%s\t\n", strings.Join(fields, "\t"))
		shown++
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%d of %d minutes with activity\n", shown, types.MinutesPerDay)
	return nil
}

func (a *app) cmdSummary(args []string) error {
	key, err := keyArgs(args)
	if err != nil {
		return err
	}
	t, err := a.readTable(key)
	if err != nil {
		return err
	}

	s, err := summary.Summarize(key, t)
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, summary.Format(s))
	return nil
}

func (a *app) archiver() *archive.Archiver {
	opts := archive.DefaultOptions()
	opts.Compression = archive.ParseCompressionType(a.cfg.Archive.Compression)
	return archive.NewArchiver(a.cfg.ArchiveDir(), opts)
}

func (a *app) cmdExpire(args []string) error {
	fs := flag.NewFlagSet("expire", flag.ContinueOnError)
	fs.SetOutput(a.out)
	days := fs.Int("n", a.cfg.Retention.Days, "number of dates to keep")
	dryRun := fs.Bool("dry-run", false, "only report what would be deleted")
	archives := fs.Bool("archives", false, "also expire archives older than archive.retain_days")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var opts []retention.Option
	if a.cfg.Retention.Archive {
		opts = append(opts, retention.WithArchiver(a.archiver()))
	}
	sweeper := retention.New(a.cfg.StatsDir, opts...)

	var results []retention.Result
	if *dryRun {
		results = append(results, sweeper.DryRun(*days))
	} else {
		results = append(results, sweeper.Expire(*days))
		if *archives {
			results = append(results, retention.ExpireArchives(a.cfg.ArchiveDir(), a.cfg.Archive.RetainDays))
		}
	}

	for _, r := range results {
		printResult(a.out, r)
	}
	return errors.Join(resultErrors(results)...)
}

func resultErrors(results []retention.Result) []error {
	var errs []error
	for _, r := range results {
		errs = append(errs, r.Errors...)
	}
	return errs
}

func printResult(w io.Writer, r retention.Result) {
	verb := "deleted"
	if r.DryRun {
		verb = "would delete"
	}
	if r.Cutoff == "" {
		fmt.Fprintf(w, "nothing to expire (%d files kept, retain %d dates)\n", r.FilesKept, r.RetainDays)
		return
	}
	fmt.Fprintf(w, "cutoff %s: %s %d files (%d bytes) of %d dates, kept %d files\n",
		r.Cutoff, verb, r.FilesDeleted, r.BytesFreed, len(r.DatesRemoved), r.FilesKept)
	if len(r.Archived) > 0 {
		fmt.Fprintf(w, "archived: %s\n", strings.Join(r.Archived, " "))
	}
	for _, err := range r.Errors {
		fmt.Fprintf(w, "error: %v\n", err)
	}
}

func (a *app) cmdExport(args []string) error {
	if len(args) != 1 {
		return errors.New("expected <date>")
	}
	date := args[0]

	dates, err := a.dates()
	if err != nil {
		return err
	}

	var files []string
	for _, d := range dates {
		if d.date != date {
			continue
		}
		for _, k := range d.keys {
			files = append(files, filepath.Join(a.cfg.StatsDir, k.FileName()))
		}
	}
	if len(files) == 0 {
		return errors.Wrapf(errors.ErrTableNotFound, "no tables for %s", date)
	}

	arch := a.archiver()
	if err := arch.ArchiveDate(date, files); err != nil {
		return err
	}

	info, err := archive.GetFileInfo(arch.PathFor(date))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: %d tables, %d rows, %d bytes\n", info.Path, len(files), info.NumRows, info.Size)
	return nil
}

func (a *app) queryService() (*query.Service, error) {
	if a.query != nil {
		return a.query, nil
	}
	q, err := query.New(a.cfg)
	if err != nil {
		return nil, err
	}
	a.query = q
	return q, nil
}

func (a *app) cmdTotals(args []string) error {
	if len(args) != 3 {
		return errors.New("expected <camera|-> <from> <to>")
	}
	camera := args[0]
	if camera == "-" {
		camera = ""
	}

	q, err := a.queryService()
	if err != nil {
		return err
	}

	totals, err := q.DailyTotals(context.Background(), camera, args[1], args[2])
	if err != nil {
		return err
	}
	if len(totals) == 0 {
		fmt.Fprintln(a.out, "no archived data")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "date\tcreated\tuploaded\tprocessed\tupload lat\tprocess lat\tpeak backlog\t")
	for _, t := range totals {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%s\t%d\t\n",
			t.Date, t.Created, t.Uploaded, t.Processed,
			formatNull(t.UploadLatency.Float64, t.UploadLatency.Valid),
			formatNull(t.ProcessingLatency.Float64, t.ProcessingLatency.Valid),
			t.PeakUnprocessed)
	}
	return w.Flush()
}

func formatNull(v float64, valid bool) string {
	if !valid {
		return "-"
	}
	return fmt.Sprintf("%.1f", v)
}

func (a *app) cmdSQL(args []string) error {
	if len(args) == 0 {
		return errors.New("expected <query>")
	}

	q, err := a.queryService()
	if err != nil {
		return err
	}

	rows, err := q.ExecuteSQL(context.Background(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(a.out, "(0 rows)")
		return nil
	}

	cols := make([]string, 0, len(rows[0]))
	for c := range rows[0] {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(cols, "\t"))
	for _, row := range rows {
		fields := make([]string, len(cols))
		for i, c := range cols {
			fields[i] = fmt.Sprint(row[c])
		}
		fmt.Fprintln(w, strings.Join(fields, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "(%d rows)\n", len(rows))
	return nil
}

func (a *app) cmdUsage(args []string) error {
	fmt.Fprint(a.out, retention.New(a.cfg.StatsDir).FormatDiskUsage())
	return nil
}

func (a *app) cmdRequirements(args []string) error {
	r := a.cfg.CalculateRequirements()
	fmt.Fprint(a.out, r.FormatRequirements())
	return nil
}
