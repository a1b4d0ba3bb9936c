package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/barke-deploy/barke/internal/clock"
	"github.com/barke-deploy/barke/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPruneExpressions(t *testing.T) {
	got := PruneExpressions([]string{
		"/node_modules",
		"vendor/",
		"logs/*",
		"cache*",
		"app/storage",
		"*.log",
		"/.*",
		"**/tmp",
		"/node_modules/",
	})
	assert.Equal(t, []string{
		"./node_modules",
		"*/vendor",
		"*/logs",
		"*/cache*",
		"./app/storage",
	}, got)
}

func TestPruneExpressions_StayWithinLocalRules(t *testing.T) {
	patterns := []string{"c++", "lib(old)", "/build$", "a?c", "tmp[0-9]"}
	got := PruneExpressions(patterns)
	assert.Equal(t, []string{"*/c++", "*/lib(old)", "./build$"}, got)

	m := mustMatcher(t, patterns...)
	for _, rel := range []string{"c++", "src/c++", "lib(old)", "web/lib(old)", "build$"} {
		assert.True(t, m.Excludes(rel, true), "%q is pruned remotely, so it must be ignored locally", rel)
	}
}

func TestPruneExpressions_NegationDisablesPruning(t *testing.T) {
	assert.Empty(t, PruneExpressions([]string{"/cache", "!cache/keep.txt"}))

	u := NewUnixShell(&scriptedRunner{}, "", mustMatcher(t, "/cache", "!cache/keep.txt"))
	assert.Equal(t, "find "+unixPrintf, u.Command())
}

func TestUnixShell_Command(t *testing.T) {
	u := NewUnixShell(&scriptedRunner{}, "/var/www/my site", mustMatcher(t, "/node_modules", "*.log"))
	cmd := u.Command()

	assert.Contains(t, cmd, `cd '/var/www/my site' || { echo `)
	assert.Contains(t, cmd, `>&2; exit 1; }; find -not \( -path ./node_modules -prune \) -type f -printf`)
	assert.Contains(t, cmd, `'{"path":"%p", "ctime": %C@, "mtime": %T@, "size": %s},\n'`)
	assert.NotContains(t, cmd, "*.log")
}

func TestUnixShell_CommandWithoutBase(t *testing.T) {
	u := NewUnixShell(&scriptedRunner{}, "", nil)
	assert.Equal(t, "find "+unixPrintf, u.Command())
}

func TestUnixShell_Enumerate(t *testing.T) {
	out := `{"path":"./index.html", "ctime": 1700000000.9999999990, "mtime": 1700000100.5000000000, "size": 512},
{"path":"./assets/app js.js", "ctime": 1700000000.1, "mtime": 1700000200.0, "size": 2048},
`
	runner := (&scriptedRunner{}).on("cd ", out)
	u := NewUnixShell(runner, "/srv/site", mustMatcher(t))

	records, err := u.Enumerate(context.Background(), clock.NewRun(time.Now(), nil))
	require.NoError(t, err)
	assert.Equal(t, []reconcile.Record{
		{RelativePath: "index.html", ModTime: 1700000100, Size: 512},
		{RelativePath: "assets/app js.js", ModTime: 1700000200, Size: 2048},
	}, records)
	assert.Len(t, runner.calls, 1)
}

func TestUnixShell_EnumerateEmpty(t *testing.T) {
	runner := (&scriptedRunner{}).on("find", "\n")
	u := NewUnixShell(runner, "", nil)

	records, err := u.Enumerate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestUnixShell_ParseErrorKeepsRawOutput(t *testing.T) {
	out := `{"path":"./ok.txt", "ctime": 1.0, "mtime": 2.0, "size": 1},
find: './private': Permission denied
`
	runner := (&scriptedRunner{}).on("find", out)
	u := NewUnixShell(runner, "", nil)

	_, err := u.Enumerate(context.Background(), nil)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, out, perr.Raw)
	assert.Equal(t, u.Command(), perr.Command)
	assert.Contains(t, err.Error(), "Permission denied")
}

func TestUnixShell_RunnerError(t *testing.T) {
	boom := errors.New("session closed")
	runner := (&scriptedRunner{}).fail("find", boom)
	u := NewUnixShell(runner, "", nil)

	_, err := u.Enumerate(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "find")
}

func TestStripFractionalSeconds(t *testing.T) {
	in := `{"path":"./a.5.txt", "ctime": 12.99, "mtime": 34.5, "size": 7},`
	assert.Equal(t, `{"path":"./a.5.txt", "ctime": 12, "mtime": 34, "size": 7},`, stripFractionalSeconds(in))
}
