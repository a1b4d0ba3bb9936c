package remote

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/barke-deploy/barke/internal/ignore"
	"github.com/stretchr/testify/require"
)

// scriptedRunner answers each command with the reply of the first matching prefix.
type scriptedRunner struct {
	replies []reply
	calls   []string
}

type reply struct {
	prefix string
	out    string
	err    error
}

func (r *scriptedRunner) on(prefix, out string) *scriptedRunner {
	r.replies = append(r.replies, reply{prefix: prefix, out: out})
	return r
}

func (r *scriptedRunner) fail(prefix string, err error) *scriptedRunner {
	r.replies = append(r.replies, reply{prefix: prefix, err: err})
	return r
}

func (r *scriptedRunner) Run(_ context.Context, command string) (string, error) {
	r.calls = append(r.calls, command)
	for _, rp := range r.replies {
		if strings.HasPrefix(command, rp.prefix) {
			return rp.out, rp.err
		}
	}
	return "", fmt.Errorf("unexpected command %q", command)
}

type recordingUploader struct {
	remotePaths []string
	contents    []string
	err         error
}

func (u *recordingUploader) UploadFile(_ context.Context, localPath, remotePath string) error {
	if u.err != nil {
		return u.err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	u.remotePaths = append(u.remotePaths, remotePath)
	u.contents = append(u.contents, string(data))
	return nil
}

type fakeLister struct {
	dirs  map[string][]Entry
	calls []string
}

func (l *fakeLister) List(_ context.Context, path string) ([]Entry, error) {
	l.calls = append(l.calls, path)
	entries, ok := l.dirs[path]
	if !ok {
		return nil, fmt.Errorf("550 %s: no such directory", path)
	}
	return entries, nil
}

func mustMatcher(t *testing.T, patterns ...string) *ignore.Matcher {
	t.Helper()
	m, err := ignore.Compile(patterns, nil)
	require.NoError(t, err)
	return m
}
