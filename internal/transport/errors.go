package transport

import (
	"errors"
	"fmt"
)

var (
	ErrNoCredentials = errors.New("transport: no credentials configured")
	ErrCommandFailed = errors.New("transport: remote command failed")
)

// Error is a connect or authentication failure. It is raised before any
// reconciliation work starts.
type Error struct {
	Op   string // "dial", "auth", "login", "sftp"
	Host string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Host, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
