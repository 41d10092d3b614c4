// Package relay runs one fetch → select → format → publish → record pass.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ppiankov/feed2mastodon/internal/feed"
	"github.com/ppiankov/feed2mastodon/internal/publish"
	"github.com/ppiankov/feed2mastodon/internal/state"
)

// Fetcher retrieves the feed entries.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]feed.Entry, error)
}

// Formatter renders an entry into a post request.
type Formatter interface {
	Format(e feed.Entry) (publish.PostRequest, error)
}

// Phase is a step of a run.
type Phase string

const (
	PhaseInit       Phase = "init"
	PhaseFetched    Phase = "fetched"
	PhaseSelected   Phase = "selected"
	PhaseFormatting Phase = "formatting"
	PhasePublishing Phase = "publishing"
	PhaseRecorded   Phase = "recorded"
	PhaseSaved      Phase = "saved"
	PhaseAborted    Phase = "aborted"
)

// Options wires a Runner.
type Options struct {
	Fetcher   Fetcher
	Store     state.Store
	Formatter Formatter
	Publisher publish.Publisher
	MaxPosts  int
	// DryRun leaves the state store untouched so a later real run still
	// posts the entries.
	DryRun bool
	Logger *slog.Logger
	Now    func() time.Time
}

// Runner executes runs against one feed.
type Runner struct {
	fetcher   Fetcher
	store     state.Store
	formatter Formatter
	publisher publish.Publisher
	maxPosts  int
	dryRun    bool
	logger    *slog.Logger
	now       func() time.Time
}

// Result summarizes a run.
type Result struct {
	Phase    Phase    // saved on success, aborted otherwise
	Fetched  int      // entries in the feed
	Selected int      // entries chosen for posting
	Posted   []string // entry identifiers published, in order
	PostIDs  []string // upstream status identifiers, parallel to Posted
}

// New validates opts and returns a Runner.
func New(opts Options) (*Runner, error) {
	switch {
	case opts.Fetcher == nil:
		return nil, errors.New("relay: fetcher is required")
	case opts.Store == nil:
		return nil, errors.New("relay: state store is required")
	case opts.Formatter == nil:
		return nil, errors.New("relay: formatter is required")
	case opts.Publisher == nil:
		return nil, errors.New("relay: publisher is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Runner{
		fetcher:   opts.Fetcher,
		store:     opts.Store,
		formatter: opts.Formatter,
		publisher: opts.Publisher,
		maxPosts:  opts.MaxPosts,
		dryRun:    opts.DryRun,
		logger:    opts.Logger,
		now:       opts.Now,
	}, nil
}

// Run performs one pass over feedURL. Entries are published oldest first and
// each one is recorded in the state store as soon as it is published, so a
// failure part way keeps everything posted before it. The first formatting or
// publishing failure stops the run; later entries are left for the next run.
func (r *Runner) Run(ctx context.Context, feedURL string) (Result, error) {
	res := Result{Phase: PhaseInit}
	abort := func(err error) (Result, error) {
		r.logger.Debug("run aborted", "phase", string(res.Phase), "error", err)
		res.Phase = PhaseAborted
		return res, err
	}

	posted, err := r.store.Load(ctx)
	if err != nil {
		return abort(err)
	}
	r.logger.Debug("state loaded", "posted", posted.Len(), "watermark", posted.Watermark())

	r.logger.Debug("fetching feed", "url", feedURL)
	entries, err := r.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		return abort(err)
	}
	res.Phase = PhaseFetched
	res.Fetched = len(entries)
	r.logger.Debug("feed fetched", "entries", len(entries))

	selected := Select(entries, posted, r.maxPosts, r.now())
	res.Phase = PhaseSelected
	res.Selected = len(selected)
	r.logger.Info("entries selected", "fetched", len(entries), "new", len(selected), "max_posts", r.maxPosts)

	for _, entry := range selected {
		res.Phase = PhaseFormatting
		req, err := r.formatter.Format(entry)
		if err != nil {
			return abort(fmt.Errorf("format entry %s: %w", entry.ID, err))
		}

		res.Phase = PhasePublishing
		r.logger.Debug("publishing entry", "id", entry.ID, "chars", len([]rune(req.Text)), "images", len(req.ImageURLs))
		postID, err := r.publisher.Publish(ctx, req)
		if err != nil {
			return abort(fmt.Errorf("publish entry %s: %w", entry.ID, err))
		}

		res.Posted = append(res.Posted, entry.ID)
		res.PostIDs = append(res.PostIDs, postID)
		r.logger.Info("entry published", "id", entry.ID, "post_id", postID, "title", entry.Title)

		if r.dryRun {
			continue
		}
		posted.Add(entry.ID)
		if err := r.store.Save(ctx, posted); err != nil {
			return abort(err)
		}
		res.Phase = PhaseRecorded
	}

	res.Phase = PhaseSaved
	if r.dryRun {
		r.logger.Info("dry-run: state not updated", "would_record", len(res.Posted))
	}
	return res, nil
}
