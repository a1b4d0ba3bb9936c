package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/barke-deploy/barke/internal/remote"
	"github.com/jlaffaye/ftp"
)

const defaultFTPPort = 21

var _ remote.DirectoryLister = (*FTP)(nil)

type FTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// Secure switches to explicit TLS (AUTH TLS).
	Secure  bool
	Timeout time.Duration
}

func (c FTPConfig) addr() string {
	port := c.Port
	if port == 0 {
		port = defaultFTPPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// FTP is a logged in FTP session. Calls are serialized by the protocol.
type FTP struct {
	host string
	conn *ftp.ServerConn
}

func DialFTP(ctx context.Context, cfg FTPConfig) (*FTP, error) {
	addr := cfg.addr()
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if cfg.Timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(cfg.Timeout))
	}
	if cfg.Secure {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: cfg.Host}))
	}

	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, &Error{Op: "dial", Host: addr, Err: err}
	}
	if err := conn.Login(cfg.Username, cfg.Password); err != nil {
		conn.Quit()
		return nil, &Error{Op: "login", Host: addr, Err: err}
	}

	slog.Info("ftp connected", "host", addr, "user", cfg.Username, "tls", cfg.Secure)
	return &FTP{host: addr, conn: conn}, nil
}

// List returns the entries of one directory. Symbolic links are left out.
func (f *FTP) List(ctx context.Context, dir string) ([]remote.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := f.conn.List(dir)
	if err != nil {
		return nil, fmt.Errorf("ftp list %q on %s: %w", dir, f.host, err)
	}
	return toEntries(entries), nil
}

func (f *FTP) Close() error {
	return f.conn.Quit()
}

func toEntries(entries []*ftp.Entry) []remote.Entry {
	out := make([]remote.Entry, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			continue
		}
		switch e.Type {
		case ftp.EntryTypeFile:
			out = append(out, remote.Entry{Name: e.Name, Size: int64(e.Size), ModifiedAt: e.Time})
		case ftp.EntryTypeFolder:
			out = append(out, remote.Entry{Name: e.Name, IsDir: true, ModifiedAt: e.Time})
		default:
			slog.Debug("ftp entry skipped", "name", e.Name)
		}
	}
	return out
}
