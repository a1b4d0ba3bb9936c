package scan

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/barke-deploy/barke/internal/ignore"
	"github.com/barke-deploy/barke/internal/reconcile"
	"github.com/go-git/go-billy/v5"
)

// maxSymlinkDepth bounds nested followed directory links, guarding against cycles.
const maxSymlinkDepth = 32

var ErrSymlinkLoop = errors.New("scan: too many levels of symbolic links")

// Error is a fatal local scan failure. Partial results are never returned with it.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("scan: %q: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Options struct {
	FollowSymlinks bool
}

// Walker scans a local tree depth first, in lexical order within each directory.
type Walker struct {
	fs      billy.Filesystem
	matcher *ignore.Matcher
	opts    Options
}

func NewWalker(fs billy.Filesystem, matcher *ignore.Matcher, opts Options) *Walker {
	return &Walker{
		fs:      fs,
		matcher: matcher,
		opts:    opts,
	}
}

// Walk returns one candidate per regular, non-ignored file under the root.
func (w *Walker) Walk() ([]reconcile.Candidate, error) {
	var files []reconcile.Candidate
	if err := w.walkDir("", 0, &files); err != nil {
		return nil, err
	}
	slog.Debug("local scan done", "root", w.fs.Root(), "files", len(files))
	return files, nil
}

func (w *Walker) walkDir(dir string, linkDepth int, files *[]reconcile.Candidate) error {
	entries, err := w.fs.ReadDir(dirOrRoot(dir))
	if err != nil {
		return &Error{Path: w.absPath(dir), Err: err}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		rel := path.Join(dir, entry.Name())
		info := entry

		isLink := info.Mode()&os.ModeSymlink != 0
		if isLink {
			if !w.opts.FollowSymlinks {
				slog.Debug("skipping symlink", "path", rel)
				continue
			}
			target, err := w.fs.Stat(rel)
			if errors.Is(err, os.ErrNotExist) {
				slog.Warn("skipping dangling symlink", "path", rel)
				continue
			}
			if err != nil {
				return &Error{Path: w.absPath(rel), Err: err}
			}
			info = target
		}

		if w.matcher.Excludes(rel, info.IsDir()) {
			slog.Debug("ignored", "path", rel)
			continue
		}

		switch {
		case info.IsDir():
			depth := linkDepth
			if isLink {
				depth++
				if depth > maxSymlinkDepth {
					return &Error{Path: w.absPath(rel), Err: ErrSymlinkLoop}
				}
			}
			if err := w.walkDir(rel, depth, files); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			*files = append(*files, reconcile.Candidate{
				RelativePath: rel,
				AbsolutePath: w.absPath(rel),
				Size:         info.Size(),
				ModTime:      info.ModTime().Unix(),
			})
		}
	}
	return nil
}

func (w *Walker) absPath(rel string) string {
	return filepath.Join(w.fs.Root(), filepath.FromSlash(rel))
}

func dirOrRoot(dir string) string {
	if dir == "" {
		return "."
	}
	return dir
}
