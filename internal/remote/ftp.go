package remote

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/barke-deploy/barke/internal/clock"
	"github.com/barke-deploy/barke/internal/ignore"
	"github.com/barke-deploy/barke/internal/reconcile"
)

// regexRawListingDate matches the "Jan 21 19:07" fragment of a LIST line.
var regexRawListingDate = regexp.MustCompile(`(\w{3})\s+(\d{1,2})\s+(\d{2}):(\d{2})`)

// FTP walks the remote tree one LIST per directory.
type FTP struct {
	lister  DirectoryLister
	root    string
	matcher *ignore.Matcher
}

// NewFTP lists below root, a path as seen by the FTP session (see FTPRoot).
func NewFTP(lister DirectoryLister, root string, matcher *ignore.Matcher) *FTP {
	return &FTP{
		lister:  lister,
		root:    root,
		matcher: matcher,
	}
}

// FTPRoot maps the deploy base path to the FTP session's view of it by
// removing the directory the FTP account is chrooted to.
//
//	FTPRoot("/var/www/site", "/var/www") == "/site"
func FTPRoot(remoteBase, ftpBase string) string {
	remoteBase = path.Clean("/" + strings.ReplaceAll(remoteBase, `\`, "/"))
	ftpBase = path.Clean("/" + strings.ReplaceAll(ftpBase, `\`, "/"))
	if ftpBase == "/" {
		return remoteBase
	}
	if remoteBase == ftpBase {
		return "/"
	}
	if rest, ok := strings.CutPrefix(remoteBase, ftpBase+"/"); ok {
		return "/" + rest
	}
	return remoteBase
}

func (f *FTP) Kind() Kind { return KindFTP }

func (f *FTP) Enumerate(ctx context.Context, run *clock.Run) ([]reconcile.Record, error) {
	slog.Info("fetching file info from server", "kind", f.Kind(), "base", f.root)

	var records []reconcile.Record
	if err := f.walk(ctx, run, f.root, &records); err != nil {
		return nil, err
	}
	slog.Debug("remote listing done", "kind", f.Kind(), "files", len(records))
	return records, nil
}

func (f *FTP) walk(ctx context.Context, run *clock.Run, dir string, records *[]reconcile.Record) error {
	entries, err := f.lister.List(ctx, dir)
	if err != nil {
		return fmt.Errorf("remote listing LIST %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.Name == "." || e.Name == ".." || e.Name == "" {
			continue
		}
		abs := path.Join(dir, e.Name)
		rel := f.relative(abs)
		if f.matcher.Excludes(rel, e.IsDir) {
			continue
		}

		if e.IsDir {
			if err := f.walk(ctx, run, abs, records); err != nil {
				return err
			}
			continue
		}

		mtime, err := entryModTime(e, run)
		if err != nil {
			return &ParseError{Command: "LIST " + dir, Raw: e.RawModifiedAt, Err: fmt.Errorf("mtime of %q: %w", abs, err)}
		}
		*records = append(*records, reconcile.Record{
			RelativePath: rel,
			ModTime:      mtime,
			Size:         e.Size,
		})
	}
	return nil
}

func (f *FTP) relative(abs string) string {
	prefix := strings.TrimSuffix(f.root, "/") + "/"
	return strings.TrimPrefix(abs, prefix)
}

// entryModTime prefers the parsed listing time. Otherwise the raw fragment is
// read as wall clock in the current year and shifted by the local offset.
func entryModTime(e Entry, run *clock.Run) (int64, error) {
	if !e.ModifiedAt.IsZero() {
		return e.ModifiedAt.Unix(), nil
	}
	if run == nil {
		return 0, fmt.Errorf("no clock run for raw listing date %q", e.RawModifiedAt)
	}

	m := regexRawListingDate.FindStringSubmatch(e.RawModifiedAt)
	if m == nil {
		return 0, fmt.Errorf("unrecognized listing date %q", e.RawModifiedAt)
	}
	month, err := time.Parse("Jan", m[1])
	if err != nil {
		return 0, fmt.Errorf("unrecognized month in %q: %w", e.RawModifiedAt, err)
	}
	day, _ := strconv.Atoi(m[2])
	hour, _ := strconv.Atoi(m[3])
	minute, _ := strconv.Atoi(m[4])

	wall := time.Date(run.Now.Year(), month.Month(), day, hour, minute, 0, 0, run.Local.Location())
	return wall.Unix() + run.Local.Seconds(), nil
}
