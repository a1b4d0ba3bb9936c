package deploy

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/barke-deploy/barke/internal/clock"
	"github.com/barke-deploy/barke/internal/ignore"
	"github.com/barke-deploy/barke/internal/reconcile"
	"github.com/barke-deploy/barke/internal/remote"
	"github.com/barke-deploy/barke/internal/scan"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEnumerator struct {
	records []reconcile.Record
	err     error
	calls   int
	runs    []*clock.Run
}

func (s *stubEnumerator) Kind() remote.Kind { return remote.KindUnixShell }

func (s *stubEnumerator) Enumerate(_ context.Context, run *clock.Run) ([]reconcile.Record, error) {
	s.calls++
	s.runs = append(s.runs, run)
	return s.records, s.err
}

func writeFile(t *testing.T, root, rel string, size int, mtime int64) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, bytes.Repeat([]byte("x"), size), 0o644))
	ts := time.Unix(mtime, 0)
	require.NoError(t, os.Chtimes(abs, ts, ts))
}

func paths(files []reconcile.Candidate) []string {
	var out []string
	for _, f := range files {
		out = append(out, f.RelativePath)
	}
	return out
}

// a.txt ignored, b.js unchanged on the server, c.js new
func scenarioRoot(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, root, "a.txt", 10, 50)
	writeFile(t, root, "b.js", 500, 100)
	writeFile(t, root, "c.js", 300, 200)
	return root
}

func txtMatcher(t *testing.T) *ignore.Matcher {
	m, err := ignore.Compile([]string{"*.txt"}, nil)
	require.NoError(t, err)
	return m
}

func TestFindNewFiles_OnlyChanged(t *testing.T) {
	root := scenarioRoot(t)
	enum := &stubEnumerator{records: []reconcile.Record{{RelativePath: "b.js", ModTime: 100, Size: 500}}}

	var summary bytes.Buffer
	f := NewFinder(osfs.New(root), txtMatcher(t), enum, nil, Options{Summary: &summary})
	files, err := f.FindNewFiles(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"c.js"}, paths(files))
	assert.Equal(t, filepath.Join(root, "c.js"), files[0].AbsolutePath)
	assert.Equal(t, int64(300), files[0].Size)
	assert.Equal(t, 1, enum.calls)
	assert.Contains(t, summary.String(), "- c.js")
	assert.Contains(t, summary.String(), "TOTAL (1 files)")
}

func TestFindNewFiles_NothingToDeploy(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.js", 500, 100)
	enum := &stubEnumerator{records: []reconcile.Record{{RelativePath: "b.js", ModTime: 100, Size: 500}}}

	var summary bytes.Buffer
	_, err := NewFinder(osfs.New(root), nil, enum, nil, Options{Summary: &summary}).FindNewFiles(context.Background())
	assert.ErrorIs(t, err, reconcile.ErrNothingToDeploy)
	assert.Empty(t, summary.String())
}

func TestFindNewFiles_FreshSkipsRemote(t *testing.T) {
	root := scenarioRoot(t)
	enum := &stubEnumerator{err: errors.New("must not be called")}

	files, err := NewFinder(osfs.New(root), txtMatcher(t), enum, nil, Options{Fresh: true}).FindNewFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b.js", "c.js"}, paths(files))
	assert.Zero(t, enum.calls)
}

func TestFindNewFiles_FreshWithoutEnumerator(t *testing.T) {
	root := scenarioRoot(t)
	files, err := NewFinder(osfs.New(root), nil, nil, nil, Options{Fresh: true}).FindNewFiles(context.Background())
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestFindNewFiles_MissingEnumerator(t *testing.T) {
	root := scenarioRoot(t)
	_, err := NewFinder(osfs.New(root), nil, nil, nil, Options{}).FindNewFiles(context.Background())
	assert.ErrorIs(t, err, ErrNoEnumerator)
}

func TestFindNewFiles_EnumerationErrorIsFatal(t *testing.T) {
	root := scenarioRoot(t)
	perr := &remote.ParseError{Command: "find", Raw: "garbage", Err: errors.New("bad json")}
	enum := &stubEnumerator{err: perr}

	files, err := NewFinder(osfs.New(root), nil, enum, nil, Options{}).FindNewFiles(context.Background())
	assert.Nil(t, files)
	var got *remote.ParseError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, "garbage", got.Raw)
}

func TestFindNewFiles_LocalScanErrorStopsBeforeRemote(t *testing.T) {
	enum := &stubEnumerator{}
	missing := filepath.Join(t.TempDir(), "missing")

	_, err := NewFinder(osfs.New(missing), nil, enum, nil, Options{}).FindNewFiles(context.Background())
	var serr *scan.Error
	require.ErrorAs(t, err, &serr)
	assert.Zero(t, enum.calls)
}

func TestFindNewFiles_FreshRunPerCall(t *testing.T) {
	root := scenarioRoot(t)
	enum := &stubEnumerator{}
	f := NewFinder(osfs.New(root), nil, enum, nil, Options{})

	_, err := f.FindNewFiles(context.Background())
	require.NoError(t, err)
	_, err = f.FindNewFiles(context.Background())
	require.NoError(t, err)

	require.Len(t, enum.runs, 2)
	assert.NotSame(t, enum.runs[0], enum.runs[1])
}
