package remote

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/barke-deploy/barke/internal/clock"
	"github.com/barke-deploy/barke/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const forfilesOutput = `
{"path":".\index.html", "mtime": "17.01.2025 00:12:46", "size": 6, "isDir": FALSE},
{"path":".\folder", "mtime": "16.01.2025 10:00:00", "size": 0, "isDir": TRUE},
{"path":".\folder\a.css", "mtime": "16.01.2025 10:00:00", "size": 10, "isDir": FALSE},
`

func TestWindowsForfiles_Enumerate(t *testing.T) {
	runner := (&scriptedRunner{}).
		on(clock.WindowsOffsetCommand, "\r\n\r\nCurrentTimeZone=60\r\n\r\n").
		on(`cd /d "D:\sites\shop" && forfiles`, forfilesOutput)
	run := clock.NewRun(time.Now(), &clock.WindowsResolver{Runner: runner})

	w := NewWindowsForfiles(runner, "D:/sites/shop", "")
	records, err := w.Enumerate(context.Background(), run)
	require.NoError(t, err)

	assert.Equal(t, []reconcile.Record{
		{RelativePath: "index.html", ModTime: 1737069166, Size: 6},
		{RelativePath: "folder/a.css", ModTime: 1737018000, Size: 10},
	}, records)

	// offset is resolved once for the run
	_, err = w.Enumerate(context.Background(), run)
	require.NoError(t, err)
	var offsetQueries int
	for _, c := range runner.calls {
		if c == clock.WindowsOffsetCommand {
			offsetQueries++
		}
	}
	assert.Equal(t, 1, offsetQueries)
}

func TestWindowsForfiles_OffsetFailureIsFatal(t *testing.T) {
	boom := errors.New("wmic not found")
	runner := (&scriptedRunner{}).fail(clock.WindowsOffsetCommand, boom)
	run := clock.NewRun(time.Now(), &clock.WindowsResolver{Runner: runner})

	_, err := NewWindowsForfiles(runner, "", "").Enumerate(context.Background(), run)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, runner.calls, 1)
}

func TestWindowsForfiles_BadDate(t *testing.T) {
	out := `{"path":".\index.html", "mtime": "01/17/2025 12:12:46 AM", "size": 6, "isDir": FALSE},`
	runner := (&scriptedRunner{}).
		on(clock.UnixOffsetCommand, "+0000").
		on("forfiles", out)
	run := clock.NewRun(time.Now(), &clock.UnixResolver{Runner: runner})

	_, err := NewWindowsForfiles(runner, "", "").Enumerate(context.Background(), run)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, out, perr.Raw)
	assert.Contains(t, perr.Error(), "index.html")
}

func TestWindowsForfiles_CustomLayout(t *testing.T) {
	out := `{"path":".\a.txt", "mtime": "01/17/2025 00:12:46", "size": 1, "isDir": FALSE},`
	runner := (&scriptedRunner{}).
		on(clock.UnixOffsetCommand, "+0100").
		on("forfiles", out)
	run := clock.NewRun(time.Now(), &clock.UnixResolver{Runner: runner})

	records, err := NewWindowsForfiles(runner, "", "01/02/2006 15:04:05").Enumerate(context.Background(), run)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(1737069166), records[0].ModTime)
}

func TestNormalizeForfiles(t *testing.T) {
	in := `{"path":".\a\b.txt", "isDir": FALSE}, {"path":".\TRUE", "isDir":TRUE},`
	assert.Equal(t, `{"path":"./a/b.txt", "isDir": false}, {"path":"./TRUE", "isDir":true},`, normalizeForfiles(in))
}

func TestScriptIgnoreList(t *testing.T) {
	got := ScriptIgnoreList([]string{"/node_modules/", "logs", "*.map", "a,b", "App_Data", "logs/", "/", "c++"})
	assert.Equal(t, []string{"/node_modules", "logs", "App_Data", "c++"}, got)
}

func TestScriptIgnoreList_NegationEmptiesList(t *testing.T) {
	assert.Empty(t, ScriptIgnoreList([]string{"/node_modules", "logs", "!logs/keep.txt"}))
}

func TestWindowsScript_Command(t *testing.T) {
	w := NewWindowsScript(&scriptedRunner{}, &recordingUploader{}, "D:/sites/shop", `C:\tools\`, mustMatcher(t, "/node_modules", "*.map", "logs"))
	assert.Equal(t, "C:/tools/"+ScriptName, w.ScriptPath())
	assert.Equal(t,
		`powershell -NoProfile -NonInteractive -ExecutionPolicy Bypass -File "C:\tools\`+ScriptName+`" -SiteRoot "D:\sites\shop" -Ignore "/node_modules,logs"`,
		w.Command())
}

func TestWindowsScript_UploadsMissingScriptOnce(t *testing.T) {
	out := `{"path":"./index.html", "mtime": 1737069166, "size": 6},
{"path":"./css/site.css", "mtime": 1737018000, "size": 10},
`
	runner := (&scriptedRunner{}).
		on("if exist", "missing\r\n").
		on("powershell", out)
	uploader := &recordingUploader{}
	w := NewWindowsScript(runner, uploader, "D:/sites/shop", "", nil)

	records, err := w.Enumerate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []reconcile.Record{
		{RelativePath: "index.html", ModTime: 1737069166, Size: 6},
		{RelativePath: "css/site.css", ModTime: 1737018000, Size: 10},
	}, records)

	require.Len(t, uploader.remotePaths, 1)
	assert.Equal(t, DefaultScriptDir+"/"+ScriptName, uploader.remotePaths[0])
	assert.Equal(t, string(listFilesScript), uploader.contents[0])
	assert.True(t, strings.HasPrefix(runner.calls[0], `if exist "C:\ProgramData\barke\barke-list-files-`))
}

func TestWindowsScript_SkipsUploadWhenPresent(t *testing.T) {
	runner := (&scriptedRunner{}).
		on("if exist", "present").
		on("powershell", "")
	uploader := &recordingUploader{}

	records, err := NewWindowsScript(runner, uploader, "D:/sites/shop", "", nil).Enumerate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, uploader.remotePaths)
}

func TestWindowsScript_UploadFailure(t *testing.T) {
	boom := errors.New("permission denied")
	runner := (&scriptedRunner{}).on("if exist", "missing")
	uploader := &recordingUploader{err: boom}

	_, err := NewWindowsScript(runner, uploader, "D:/sites/shop", "", nil).Enumerate(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, runner.calls, 1)
}

func TestWindowsScript_UnexpectedCheckOutput(t *testing.T) {
	runner := (&scriptedRunner{}).on("if exist", "The system cannot find the path specified.")

	_, err := NewWindowsScript(runner, &recordingUploader{}, "D:/sites/shop", "", nil).Enumerate(context.Background(), nil)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Raw, "cannot find the path")
}

func TestScriptName(t *testing.T) {
	assert.Regexp(t, `^barke-list-files-[0-9a-f]{8}\.ps1$`, ScriptName)
	assert.Contains(t, string(listFilesScript), "LastWriteTimeUtc")
}

func TestListFilesScript_CaseSensitiveIgnores(t *testing.T) {
	script := string(listFilesScript)
	assert.Contains(t, script, "-ceq")
	assert.Contains(t, script, "[StringComparison]::Ordinal)")
	assert.NotContains(t, script, "-ieq")
	assert.NotContains(t, script, "IgnoreCase")
	assert.NotRegexp(t, `\s-contains\s`, script)
}
