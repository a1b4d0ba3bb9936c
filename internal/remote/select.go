package remote

import (
	"errors"
	"fmt"

	"github.com/barke-deploy/barke/internal/ignore"
)

// Kind names a listing strategy.
type Kind string

const (
	KindUnixShell       Kind = "unix-shell"
	KindWindowsForfiles Kind = "windows-forfiles"
	KindWindowsScript   Kind = "windows-script"
	KindFTP             Kind = "ftp"
)

var (
	ErrUnknownKind       = errors.New("remote: unknown listing strategy")
	ErrMissingCapability = errors.New("remote: transport capability missing")
)

// Kinds returns every supported strategy.
func Kinds() []Kind {
	return []Kind{KindUnixShell, KindWindowsForfiles, KindWindowsScript, KindFTP}
}

// Deps are the capabilities and settings a strategy may need. Only the
// capability the selected strategy uses has to be set.
type Deps struct {
	Runner   CommandRunner
	Lister   DirectoryLister
	Uploader FileUploader
	Matcher  *ignore.Matcher

	BasePath   string
	FTPRoot    string
	ScriptDir  string
	DateLayout string
}

// Select builds the enumerator for kind. It is called once per run.
func Select(kind Kind, deps Deps) (Enumerator, error) {
	switch kind {
	case KindUnixShell:
		if deps.Runner == nil {
			return nil, fmt.Errorf("%w: %s needs a command runner", ErrMissingCapability, kind)
		}
		return NewUnixShell(deps.Runner, deps.BasePath, deps.Matcher), nil

	case KindWindowsForfiles:
		if deps.Runner == nil {
			return nil, fmt.Errorf("%w: %s needs a command runner", ErrMissingCapability, kind)
		}
		return NewWindowsForfiles(deps.Runner, deps.BasePath, deps.DateLayout), nil

	case KindWindowsScript:
		if deps.Runner == nil || deps.Uploader == nil {
			return nil, fmt.Errorf("%w: %s needs a command runner and a file uploader", ErrMissingCapability, kind)
		}
		return NewWindowsScript(deps.Runner, deps.Uploader, deps.BasePath, deps.ScriptDir, deps.Matcher), nil

	case KindFTP:
		if deps.Lister == nil {
			return nil, fmt.Errorf("%w: %s needs a directory lister", ErrMissingCapability, kind)
		}
		root := deps.FTPRoot
		if root == "" {
			root = FTPRoot(deps.BasePath, "")
		}
		return NewFTP(deps.Lister, root, deps.Matcher), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}
