package remote

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/barke-deploy/barke/internal/clock"
	"github.com/barke-deploy/barke/internal/ignore"
	"github.com/barke-deploy/barke/internal/reconcile"
	mapset "github.com/deckarep/golang-set/v2"
)

// unixPrintf emits one {"path", "ctime", "mtime", "size"} object per regular file,
// the trailing comma is part of the wire format.
const unixPrintf = `-type f -printf '{"path":"%p", "ctime": %C@, "mtime": %T@, "size": %s},\n'`

// UnixShell lists files with GNU find over a remote shell.
type UnixShell struct {
	runner   CommandRunner
	basePath string
	matcher  *ignore.Matcher
}

func NewUnixShell(runner CommandRunner, basePath string, matcher *ignore.Matcher) *UnixShell {
	return &UnixShell{
		runner:   runner,
		basePath: basePath,
		matcher:  matcher,
	}
}

func (u *UnixShell) Kind() Kind { return KindUnixShell }

// Command builds the single remote command used for the listing.
func (u *UnixShell) Command() string {
	var sb strings.Builder
	sb.WriteString(unixCd(u.basePath))
	sb.WriteString("find ")
	for _, prune := range PruneExpressions(u.matcher.Patterns()) {
		sb.WriteString(`-not \( -path `)
		sb.WriteString(shellescape.Quote(prune))
		sb.WriteString(` -prune \) `)
	}
	sb.WriteString(unixPrintf)
	return sb.String()
}

func (u *UnixShell) Enumerate(ctx context.Context, _ *clock.Run) ([]reconcile.Record, error) {
	cmd := u.Command()
	slog.Info("fetching file info from server", "kind", u.Kind(), "base", u.basePath)
	slog.Debug("remote listing command", "command", cmd)

	out, err := u.runner.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("remote listing %q: %w", cmd, err)
	}

	var lines []struct {
		Path  string `json:"path"`
		CTime int64  `json:"ctime"`
		MTime int64  `json:"mtime"`
		Size  int64  `json:"size"`
	}
	if err := decodeListing(cmd, out, stripFractionalSeconds(out), &lines); err != nil {
		return nil, err
	}

	records := make([]reconcile.Record, 0, len(lines))
	for _, l := range lines {
		records = append(records, reconcile.Record{
			RelativePath: trimDotSlash(l.Path),
			ModTime:      l.MTime,
			Size:         l.Size,
		})
	}
	slog.Debug("remote listing done", "kind", u.Kind(), "files", len(records))
	return records, nil
}

// PruneExpressions translates ignore patterns into find -path expressions.
// Only literal paths, optionally anchored with "/" and optionally ending in a
// single "*", are translated; every other form is left to the local-side
// filter, so remote pruning is a subset of the local ignore rules. A negated
// pattern can re-include files below a pruned directory, so any negation
// turns pruning off.
func PruneExpressions(patterns []string) []string {
	for _, p := range patterns {
		if ignore.IsNegation(p) {
			slog.Debug("negated ignore pattern, remote pruning disabled", "pattern", p)
			return nil
		}
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	var out []string
	for _, p := range patterns {
		expr, ok := pruneExpression(p)
		if !ok {
			slog.Debug("ignore pattern not pruned remotely", "pattern", p)
			continue
		}
		if seen.Add(expr) {
			out = append(out, expr)
		}
	}
	return out
}

func pruneExpression(p string) (string, bool) {
	p = ignore.NormalizePattern(p)
	anchored := strings.HasPrefix(p, "/")
	body := strings.TrimPrefix(p, "/")

	star := strings.HasSuffix(body, "*")
	literal := strings.TrimSuffix(body, "*")
	if strings.Trim(literal, ".") == "" || strings.HasSuffix(literal, "/") || ignore.HasWildcard(literal) {
		return "", false
	}

	// A slash pins the prune to the root. The local matcher applies such
	// patterns at any depth, so this only prunes less.
	rooted := anchored || strings.Contains(literal, "/")
	samples := []string{literal}
	if !rooted {
		samples = append(samples, "sub/"+literal)
	}
	if !ignore.Covers(p, samples...) {
		return "", false
	}

	if star {
		literal += "*"
	}
	if rooted {
		return "./" + literal, true
	}
	return "*/" + literal, true
}

func unixCd(base string) string {
	if base == "" {
		return ""
	}
	q := shellescape.Quote(base)
	return fmt.Sprintf(`cd %s || { echo %s >&2; exit 1; }; `, q, shellescape.Quote(fmt.Sprintf("'%s' doesn't exist", base)))
}
