package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/barke-deploy/barke/internal/clock"
	"github.com/barke-deploy/barke/internal/reconcile"
)

// DefaultForfilesDateLayout is the "@fdate @ftime" rendering of a German/European locale.
const DefaultForfilesDateLayout = "02.01.2006 15:04:05"

const forfilesCommand = `forfiles /s /m * /c "cmd /c echo {\"path\":@relpath, \"mtime\": \"@fdate @ftime\", \"size\": @fsize, \"isDir\": @isdir},"`

var regexForfilesBool = regexp.MustCompile(`":\s*(TRUE|FALSE)`)

// WindowsForfiles lists files with forfiles(1). Timestamps come back as remote
// wall clock and are shifted by the remote offset of the run.
type WindowsForfiles struct {
	runner     CommandRunner
	basePath   string
	dateLayout string
}

func NewWindowsForfiles(runner CommandRunner, basePath, dateLayout string) *WindowsForfiles {
	if dateLayout == "" {
		dateLayout = DefaultForfilesDateLayout
	}
	return &WindowsForfiles{
		runner:     runner,
		basePath:   basePath,
		dateLayout: dateLayout,
	}
}

func (w *WindowsForfiles) Kind() Kind { return KindWindowsForfiles }

func (w *WindowsForfiles) Command() string {
	return windowsCd(w.basePath) + forfilesCommand
}

func (w *WindowsForfiles) Enumerate(ctx context.Context, run *clock.Run) ([]reconcile.Record, error) {
	if run == nil {
		return nil, errors.New("remote: forfiles listing needs a clock run")
	}
	offset, err := run.RemoteOffset(ctx)
	if err != nil {
		return nil, fmt.Errorf("remote listing: %w", err)
	}
	loc := offset.Location()

	cmd := w.Command()
	slog.Info("fetching file info from server", "kind", w.Kind(), "base", w.basePath)
	slog.Debug("remote listing command", "command", cmd, "offset", offset.String())

	out, err := w.runner.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("remote listing %q: %w", cmd, err)
	}

	var lines []struct {
		Path  string `json:"path"`
		MTime string `json:"mtime"`
		Size  int64  `json:"size"`
		IsDir bool   `json:"isDir"`
	}
	if err := decodeListing(cmd, out, normalizeForfiles(out), &lines); err != nil {
		return nil, err
	}

	records := make([]reconcile.Record, 0, len(lines))
	for _, l := range lines {
		if l.IsDir {
			continue
		}
		mtime, err := time.ParseInLocation(w.dateLayout, strings.TrimSpace(l.MTime), loc)
		if err != nil {
			return nil, &ParseError{Command: cmd, Raw: out, Err: fmt.Errorf("mtime of %q: %w", l.Path, err)}
		}
		records = append(records, reconcile.Record{
			RelativePath: trimDotSlash(l.Path),
			ModTime:      mtime.Unix(),
			Size:         l.Size,
		})
	}
	slog.Debug("remote listing done", "kind", w.Kind(), "files", len(records))
	return records, nil
}

// normalizeForfiles turns {"path":".\a\b", "isDir": FALSE} into valid JSON.
func normalizeForfiles(raw string) string {
	raw = strings.ReplaceAll(raw, `\`, "/")
	return regexForfilesBool.ReplaceAllStringFunc(raw, strings.ToLower)
}

func windowsCd(base string) string {
	if base == "" {
		return ""
	}
	return fmt.Sprintf(`cd /d "%s" && `, strings.ReplaceAll(base, "/", `\`))
}
