package clock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

var ErrNoRemoteResolver = errors.New("clock: no remote offset resolver for this transport")

// CommandRunner executes a command on the remote host and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, command string) (string, error)
}

// RemoteResolver queries the UTC offset of the remote host.
type RemoteResolver interface {
	ResolveOffset(ctx context.Context) (Offset, error)
}

// Run holds the clock state of a single reconciliation run. The remote
// offset is queried at most once and lives only as long as the Run.
type Run struct {
	Now   time.Time
	Local Offset

	resolver RemoteResolver

	mu        sync.Mutex
	resolved  bool
	remote    Offset
	remoteErr error
}

// NewRun starts a run at now. resolver may be nil when the transport has no way to query the remote clock.
func NewRun(now time.Time, resolver RemoteResolver) *Run {
	return &Run{
		Now:      now,
		Local:    Local(now),
		resolver: resolver,
	}
}

// HasRemoteResolver reports whether RemoteOffset can be answered.
func (r *Run) HasRemoteResolver() bool {
	return r.resolver != nil
}

// RemoteOffset returns the remote UTC offset, querying the remote host on first use.
// A failed query is not retried within the run.
func (r *Run) RemoteOffset(ctx context.Context) (Offset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolved {
		return r.remote, r.remoteErr
	}
	if r.resolver == nil {
		return 0, ErrNoRemoteResolver
	}

	r.remote, r.remoteErr = r.resolver.ResolveOffset(ctx)
	r.resolved = true
	return r.remote, r.remoteErr
}

// WindowsResolver reads the current (DST aware) bias of the remote Windows host.
type WindowsResolver struct {
	Runner CommandRunner
}

const WindowsOffsetCommand = "wmic os get CurrentTimeZone /value"

func (w *WindowsResolver) ResolveOffset(ctx context.Context) (Offset, error) {
	out, err := w.Runner.Run(ctx, WindowsOffsetCommand)
	if err != nil {
		return 0, fmt.Errorf("remote offset %q: %w", WindowsOffsetCommand, err)
	}

	line := firstLine(out)
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return 0, fmt.Errorf("remote offset %q: %w: %q", WindowsOffsetCommand, ErrInvalidOffset, out)
	}
	if strings.EqualFold(strings.TrimSpace(key), "CurrentTimeZone") {
		minutes, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, fmt.Errorf("remote offset %q: %w: %q", WindowsOffsetCommand, ErrInvalidOffset, out)
		}
		return FromMinutes(minutes), nil
	}

	// "Description=(UTC+01:00) Amsterdam, Berlin, ..."
	off, err := ParseOffset(value)
	if err != nil {
		return 0, fmt.Errorf("remote offset %q: %w", WindowsOffsetCommand, err)
	}
	return off, nil
}

// UnixResolver reads the remote offset with date(1).
type UnixResolver struct {
	Runner CommandRunner
}

const UnixOffsetCommand = "date +%z"

func (u *UnixResolver) ResolveOffset(ctx context.Context) (Offset, error) {
	out, err := u.Runner.Run(ctx, UnixOffsetCommand)
	if err != nil {
		return 0, fmt.Errorf("remote offset %q: %w", UnixOffsetCommand, err)
	}
	off, err := ParseOffset(firstLine(out))
	if err != nil {
		return 0, fmt.Errorf("remote offset %q: %w", UnixOffsetCommand, err)
	}
	return off, nil
}

func firstLine(out string) string {
	for _, line := range strings.Split(strings.ReplaceAll(out, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
