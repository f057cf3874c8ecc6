package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scipunch/campusfeed/config"
	"github.com/scipunch/campusfeed/dataset"
	"github.com/scipunch/campusfeed/dedup"
	"github.com/scipunch/campusfeed/event"
	"github.com/scipunch/campusfeed/fetcher"
	"github.com/scipunch/campusfeed/fetcher/types"
	"github.com/scipunch/campusfeed/filter"
	"github.com/scipunch/campusfeed/metrics"
	"github.com/scipunch/campusfeed/parser"
	"github.com/scipunch/campusfeed/state"
)

type Outcome = string

var (
	NewEvents       = Outcome("new_events")
	NoNewEvents     = Outcome("no_new_events")
	FeedUnreachable = Outcome("feed_unreachable")
	FeedMalformed   = Outcome("feed_malformed")
	Failed          = Outcome("failed")
)

// Outcomes lists every outcome a run can end with
var Outcomes = []Outcome{NewEvents, NoNewEvents, FeedUnreachable, FeedMalformed, Failed}

// Report summarizes one run
type Report struct {
	RunID       string
	FeedURL     string
	Kind        event.Kind
	Outcome     Outcome
	Fetched     int
	Filtered    int
	Duplicates  int
	Appended    int
	DatasetRows int
	Malformed   bool
	ParseError  string
	NotModified bool
	Started     time.Time
	Finished    time.Time
}

// Pipeline wires the feed source, extractor, deduplicator and dataset
// writer for a single feed. State and Metrics are optional.
type Pipeline struct {
	FeedURL     string
	DatasetPath string
	Kind        event.Kind
	SubType     string // stamped on event rows only
	FilterNames []string

	Fetcher types.FeedFetcher
	Parser  parser.Extractor
	Dedup   *dedup.Deduplicator
	Filters *filter.FilterPipeline

	State       *state.Store
	Metrics     *metrics.Recorder
	MetricsPath string

	// Now stamps entry dates and run times
	Now func() time.Time
}

// New builds a pipeline from a validated config. st may be nil.
func New(conf config.Config, st *state.Store) (*Pipeline, error) {
	f, err := fetcher.GetFetcher(conf.FeedURL, fetcher.Options{Timeout: conf.FetchTimeout, UserAgent: conf.UserAgent})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize fetcher: %w", err)
	}
	kind, err := conf.Kind()
	if err != nil {
		return nil, err
	}
	p, err := parser.ForKind(kind, conf.Parser)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize parser: %w", err)
	}
	d, err := dedup.New(conf.DedupFields())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize deduplicator: %w", err)
	}
	filters, err := filter.NewFilterPipeline(conf.Filters)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize filters: %w", err)
	}

	pl := &Pipeline{
		FeedURL:     conf.FeedURL,
		DatasetPath: conf.DatasetPath,
		Kind:        kind,
		SubType:     strings.ToLower(strings.TrimSpace(conf.SubType)),
		FilterNames: conf.FilterNames,
		Fetcher:     f,
		Parser:      p,
		Dedup:       d,
		Filters:     filters,
		State:       st,
		MetricsPath: conf.MetricsPath,
		Now:         time.Now,
	}
	if conf.MetricsPath != "" {
		pl.Metrics = metrics.NewRecorder()
	}
	return pl, nil
}

// Run executes fetch, extract, filter, dedup and append once. The
// dataset file is written at most once, after every other step
// succeeded, so a failed or interrupted run leaves it untouched.
func (p *Pipeline) Run(ctx context.Context) (rep Report, err error) {
	rep = Report{
		RunID:   uuid.NewString(),
		FeedURL: p.FeedURL,
		Kind:    p.Kind,
		Started: p.now(),
	}
	log := slog.With("run_id", rep.RunID)

	defer func() {
		rep.Finished = p.now()
		if err != nil && rep.Outcome == "" {
			rep.Outcome = Failed
		}
		p.finish(log, rep, err)
	}()

	ds, err := dataset.Load(p.DatasetPath)
	if err != nil {
		return rep, err
	}
	rep.DatasetRows = ds.Len()

	// Validators only help when there is something to compare against
	var validators types.Validators
	if p.State != nil && ds.Len() > 0 {
		v, found, err := p.State.GetValidators(ctx, p.FeedURL)
		if err != nil {
			log.Warn("failed to read feed validators", "error", err)
		} else if found {
			validators = v
		}
	}

	feed, err := p.Fetcher.Fetch(ctx, p.FeedURL, validators)
	if err != nil {
		if errors.Is(err, fetcher.ErrUnreachable) {
			rep.Outcome = FeedUnreachable
		}
		return rep, fmt.Errorf("failed to fetch feed: %w", err)
	}
	rep.Fetched = len(feed.Items)
	rep.Malformed = feed.Malformed
	rep.ParseError = feed.ParseError
	rep.NotModified = feed.NotModified
	if feed.Malformed {
		log.Warn("feed is malformed, continuing with recovered items", "items", len(feed.Items), "error", feed.ParseError)
	}
	log.Info("feed fetched", "url", p.FeedURL, "items", rep.Fetched, "not_modified", feed.NotModified)

	events := make([]event.Event, 0, len(feed.Items))
	for _, item := range feed.Items {
		events = append(events, p.Parser.Parse(item))
	}

	if p.Filters != nil {
		events, rep.Filtered = p.Filters.Apply(events, p.FilterNames)
	}

	fresh, dups := p.Dedup.Fresh(ds, events)
	rep.Duplicates = len(dups)

	entryDate := p.now().UTC().Format(time.RFC3339)
	for i := range fresh {
		fresh[i].Type = p.Kind
		fresh[i].EntryDate = entryDate
		if p.Kind == event.KindEvent {
			fresh[i].SubType = p.SubType
		}
	}

	if len(fresh) > 0 || !ds.Persisted() {
		if err := ctx.Err(); err != nil {
			return rep, fmt.Errorf("run interrupted before saving: %w", err)
		}
		out := dataset.Append(ds, fresh)
		if err := dataset.Save(p.DatasetPath, out); err != nil {
			return rep, fmt.Errorf("failed to save dataset: %w", err)
		}
		rep.DatasetRows = out.Len()
	}
	rep.Appended = len(fresh)

	if p.State != nil && !feed.NotModified {
		if err := p.State.SetValidators(ctx, p.FeedURL, feed.Validators); err != nil {
			log.Warn("failed to store feed validators", "error", err)
		}
	}

	switch {
	case feed.Malformed:
		rep.Outcome = FeedMalformed
	case rep.Appended > 0:
		rep.Outcome = NewEvents
	default:
		rep.Outcome = NoNewEvents
	}
	return rep, nil
}

// finish records the run in state and metrics. Failures here are logged
// and never change the run result.
func (p *Pipeline) finish(log *slog.Logger, rep Report, runErr error) {
	attrs := []any{
		"kind", rep.Kind,
		"outcome", rep.Outcome,
		"fetched", rep.Fetched,
		"filtered", rep.Filtered,
		"duplicates", rep.Duplicates,
		"appended", rep.Appended,
		"dataset_rows", rep.DatasetRows,
		"took", rep.Finished.Sub(rep.Started),
	}
	if runErr != nil {
		log.Error("run failed", append(attrs, "error", runErr)...)
	} else {
		log.Info("run finished", attrs...)
	}

	if p.State != nil {
		r := state.Run{
			ID:         rep.RunID,
			FeedURL:    rep.FeedURL,
			StartedAt:  rep.Started,
			FinishedAt: rep.Finished,
			Outcome:    rep.Outcome,
			Fetched:    rep.Fetched,
			Filtered:   rep.Filtered,
			Duplicates: rep.Duplicates,
			Appended:   rep.Appended,
			Malformed:  rep.Malformed,
		}
		if runErr != nil {
			r.Error = runErr.Error()
		}
		// The run context may already be cancelled
		if err := p.State.RecordRun(context.Background(), r); err != nil {
			log.Warn("failed to record run", "error", err)
		}
	}

	if p.Metrics != nil && p.MetricsPath != "" {
		p.Metrics.Observe(metrics.Snapshot{
			Finished:    rep.Finished,
			Duration:    rep.Finished.Sub(rep.Started),
			Outcome:     rep.Outcome,
			Outcomes:    Outcomes,
			Fetched:     rep.Fetched,
			Filtered:    rep.Filtered,
			Duplicates:  rep.Duplicates,
			Appended:    rep.Appended,
			DatasetRows: rep.DatasetRows,
		})
		if err := p.Metrics.WriteTextfile(p.MetricsPath); err != nil {
			log.Warn("failed to write metrics", "error", err)
		}
	}
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
