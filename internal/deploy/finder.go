package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/barke-deploy/barke/internal/clock"
	"github.com/barke-deploy/barke/internal/ignore"
	"github.com/barke-deploy/barke/internal/reconcile"
	"github.com/barke-deploy/barke/internal/remote"
	"github.com/barke-deploy/barke/internal/report"
	"github.com/barke-deploy/barke/internal/scan"
	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"
)

var ErrNoEnumerator = errors.New("deploy: remote listing required unless fresh")

type Options struct {
	// Fresh uploads every non-ignored local file without listing the remote side.
	Fresh          bool
	FollowSymlinks bool
	// HighFileCountDirs are folded into one line each in the summary.
	HighFileCountDirs []string
	// Summary receives the upload summary when set.
	Summary io.Writer
}

// Finder computes the files a deployment has to upload.
type Finder struct {
	local      billy.Filesystem
	matcher    *ignore.Matcher
	enumerator remote.Enumerator
	resolver   clock.RemoteResolver
	opts       Options

	now func() time.Time
}

// NewFinder wires the local tree, the ignore rules and the remote listing
// strategy. enumerator may be nil in fresh mode, resolver may be nil when the
// strategy does not need the remote clock.
func NewFinder(local billy.Filesystem, matcher *ignore.Matcher, enumerator remote.Enumerator, resolver clock.RemoteResolver, opts Options) *Finder {
	return &Finder{
		local:      local,
		matcher:    matcher,
		enumerator: enumerator,
		resolver:   resolver,
		opts:       opts,
		now:        time.Now,
	}
}

// FindNewFiles walks the local tree, lists the remote side and returns the
// upload set in walk order. reconcile.ErrNothingToDeploy signals an empty set.
func (f *Finder) FindNewFiles(ctx context.Context) ([]reconcile.Candidate, error) {
	start := f.now()
	run := clock.NewRun(start, f.resolver)
	log := slog.With("run", uuid.NewString())

	log.Info("scanning local files", "root", f.local.Root())
	local, err := scan.NewWalker(f.local, f.matcher, scan.Options{FollowSymlinks: f.opts.FollowSymlinks}).Walk()
	if err != nil {
		return nil, err
	}
	log.Info("local scan done", "files", len(local))

	var records []reconcile.Record
	if f.opts.Fresh {
		log.Info("fresh mode, skipping remote listing")
	} else {
		if f.enumerator == nil {
			return nil, ErrNoEnumerator
		}
		f.logOffsets(ctx, log, run)

		records, err = f.enumerator.Enumerate(ctx, run)
		if err != nil {
			return nil, err
		}
		log.Info("remote listing done", "kind", f.enumerator.Kind(), "files", len(records))
	}

	upload, err := reconcile.Diff(local, records, f.opts.Fresh)
	if err != nil {
		return nil, err
	}
	log.Info("files to upload", "files", len(upload), "bytes", reconcile.TotalSize(upload), "elapsed", f.now().Sub(start))

	if f.opts.Summary != nil {
		if err := report.Build(upload, f.opts.HighFileCountDirs).Render(f.opts.Summary); err != nil {
			return nil, fmt.Errorf("render summary: %w", err)
		}
	}
	return upload, nil
}

// logOffsets reports both UTC offsets in debug mode. The remote query is
// cached in run, so a strategy that needs the offset does not ask again.
func (f *Finder) logOffsets(ctx context.Context, log *slog.Logger, run *clock.Run) {
	if !log.Enabled(ctx, slog.LevelDebug) {
		return
	}
	log.Debug("local utc offset", "offset", run.Local.String())
	if !run.HasRemoteResolver() {
		return
	}
	off, err := run.RemoteOffset(ctx)
	if err != nil {
		log.Warn("remote utc offset unavailable", "error", err)
		return
	}
	log.Debug("server utc offset", "offset", off.String())
}
