package remote

import (
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/barke-deploy/barke/internal/clock"
	"github.com/barke-deploy/barke/internal/ignore"
	"github.com/barke-deploy/barke/internal/reconcile"
	mapset "github.com/deckarep/golang-set/v2"
)

// DefaultScriptDir is where the listing script is placed on the remote host.
const DefaultScriptDir = "C:/ProgramData/barke"

//go:embed scripts/list-files.ps1
var listFilesScript []byte

// ScriptName is content addressed, so a changed script is uploaded again
// while an unchanged one is reused across runs.
var ScriptName = func() string {
	sum := sha256.Sum256(listFilesScript)
	return "barke-list-files-" + hex.EncodeToString(sum[:])[:8] + ".ps1"
}()

// WindowsScript lists files with an uploaded PowerShell script that reports
// UTC epoch seconds, so no offset correction is needed.
type WindowsScript struct {
	runner    CommandRunner
	uploader  FileUploader
	basePath  string
	scriptDir string
	matcher   *ignore.Matcher
}

func NewWindowsScript(runner CommandRunner, uploader FileUploader, basePath, scriptDir string, matcher *ignore.Matcher) *WindowsScript {
	if scriptDir == "" {
		scriptDir = DefaultScriptDir
	}
	return &WindowsScript{
		runner:    runner,
		uploader:  uploader,
		basePath:  basePath,
		scriptDir: strings.TrimSuffix(strings.ReplaceAll(scriptDir, `\`, "/"), "/"),
		matcher:   matcher,
	}
}

func (w *WindowsScript) Kind() Kind { return KindWindowsScript }

// ScriptPath is the remote location of the listing script, with forward slashes.
func (w *WindowsScript) ScriptPath() string {
	return path.Join(w.scriptDir, ScriptName)
}

// Command builds the script invocation.
func (w *WindowsScript) Command() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `powershell -NoProfile -NonInteractive -ExecutionPolicy Bypass -File "%s" -SiteRoot "%s"`,
		toBackslash(w.ScriptPath()), toBackslash(w.basePath))
	if dirs := ScriptIgnoreList(w.matcher.Patterns()); len(dirs) > 0 {
		fmt.Fprintf(&sb, ` -Ignore "%s"`, strings.Join(dirs, ","))
	}
	return sb.String()
}

func (w *WindowsScript) Enumerate(ctx context.Context, _ *clock.Run) ([]reconcile.Record, error) {
	if err := w.ensureScript(ctx); err != nil {
		return nil, err
	}

	cmd := w.Command()
	slog.Info("fetching file info from server", "kind", w.Kind(), "base", w.basePath)
	slog.Debug("remote listing command", "command", cmd)

	out, err := w.runner.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("remote listing %q: %w", cmd, err)
	}

	var lines []struct {
		Path  string `json:"path"`
		MTime int64  `json:"mtime"`
		Size  int64  `json:"size"`
	}
	if err := decodeListing(cmd, out, out, &lines); err != nil {
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
	slog.Debug("remote listing done", "kind", w.Kind(), "files", len(records))
	return records, nil
}

// ensureScript uploads the listing script unless the remote host already has it.
func (w *WindowsScript) ensureScript(ctx context.Context) error {
	remotePath := w.ScriptPath()
	check := fmt.Sprintf(`if exist "%s" (echo present) else (echo missing)`, toBackslash(remotePath))

	out, err := w.runner.Run(ctx, check)
	if err != nil {
		return fmt.Errorf("remote script check %q: %w", check, err)
	}
	switch strings.TrimSpace(out) {
	case "present":
		slog.Debug("listing script already on server", "path", remotePath)
		return nil
	case "missing":
	default:
		return &ParseError{Command: check, Raw: out, Err: errors.New("expected present or missing")}
	}

	tmp, err := os.CreateTemp("", "barke-list-files-*.ps1")
	if err != nil {
		return fmt.Errorf("stage listing script: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(listFilesScript); err != nil {
		tmp.Close()
		return fmt.Errorf("stage listing script: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("stage listing script: %w", err)
	}

	slog.Info("uploading listing script", "path", remotePath)
	if err := w.uploader.UploadFile(ctx, tmp.Name(), remotePath); err != nil {
		return fmt.Errorf("upload listing script to %q: %w", remotePath, err)
	}
	return nil
}

// ScriptIgnoreList keeps the literal ignore patterns the script can apply:
// no wildcards, no negation, no commas. A leading "/" is kept as the anchor.
// Any negated pattern empties the list, the local filter then does all the work.
func ScriptIgnoreList(patterns []string) []string {
	for _, p := range patterns {
		if ignore.IsNegation(p) {
			return nil
		}
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	var out []string
	for _, p := range patterns {
		p = strings.TrimRight(ignore.NormalizePattern(p), "/")
		body := strings.TrimLeft(p, "/")
		if body == "" || ignore.HasWildcard(p) || strings.ContainsAny(p, `,"`) {
			continue
		}
		samples := []string{body}
		if !strings.HasPrefix(p, "/") && !strings.Contains(body, "/") {
			samples = append(samples, "sub/"+body)
		}
		if !ignore.Covers(p, samples...) {
			continue
		}
		if seen.Add(p) {
			out = append(out, p)
		}
	}
	return out
}

func toBackslash(p string) string {
	return strings.ReplaceAll(p, "/", `\`)
}
