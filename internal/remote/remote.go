package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/barke-deploy/barke/internal/clock"
	"github.com/barke-deploy/barke/internal/reconcile"
)

// CommandRunner executes one command over an interactive shell transport and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, command string) (string, error)
}

// DirectoryLister lists one remote directory over a file transfer protocol.
type DirectoryLister interface {
	List(ctx context.Context, path string) ([]Entry, error)
}

// FileUploader places a single local file on the remote host.
type FileUploader interface {
	UploadFile(ctx context.Context, localPath, remotePath string) error
}

// Entry is one item of a protocol directory listing. ModifiedAt is zero when
// the server's listing could not be parsed, RawModifiedAt then carries the text.
type Entry struct {
	Name          string
	IsDir         bool
	Size          int64
	ModifiedAt    time.Time
	RawModifiedAt string
}

// Enumerator lists every remote file under the deployment base path.
type Enumerator interface {
	Kind() Kind
	Enumerate(ctx context.Context, run *clock.Run) ([]reconcile.Record, error)
}

// ParseError reports remote output that does not match the expected wire format.
// It keeps the raw payload and the command that produced it.
type ParseError struct {
	Command string
	Raw     string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("remote: unparsable output of %q: %v\n--- raw output ---\n%s\n--- end raw output ---", e.Command, e.Err, e.Raw)
}

func (e *ParseError) Unwrap() error { return e.Err }
