package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/barke-deploy/barke/internal/remote"
	"github.com/barke-deploy/barke/internal/version"
	"github.com/pkg/sftp"
	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const defaultSSHPort = 22

var (
	_ remote.CommandRunner = (*SSH)(nil)
	_ remote.FileUploader  = (*SSH)(nil)
)

type SSHConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	PrivateKeyPath string
	Passphrase     string
	// KnownHostsPath enables host key verification. Empty accepts any host key.
	KnownHostsPath string
	Timeout        time.Duration
}

func (c SSHConfig) addr() string {
	port := c.Port
	if port == 0 {
		port = defaultSSHPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// SSH is one shell session to the deploy host. It runs commands serially and
// uploads through an SFTP subsystem opened on first use.
type SSH struct {
	host   string
	client *gossh.Client
	sftp   *sftp.Client
}

// DialSSH connects and authenticates. Failures are returned as *Error.
func DialSSH(ctx context.Context, cfg SSHConfig) (*SSH, error) {
	auth, err := authMethods(cfg)
	if err != nil {
		return nil, &Error{Op: "auth", Host: cfg.Host, Err: err}
	}

	hostKeyCallback := gossh.InsecureIgnoreHostKey()
	if cfg.KnownHostsPath != "" {
		hostKeyCallback, err = knownhosts.New(cfg.KnownHostsPath)
		if err != nil {
			return nil, &Error{Op: "auth", Host: cfg.Host, Err: fmt.Errorf("known hosts: %w", err)}
		}
	} else {
		slog.Warn("ssh host key verification disabled", "host", cfg.Host)
	}

	clientCfg := &gossh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		ClientVersion:   version.SSHClientVersion(),
		Timeout:         cfg.Timeout,
	}

	addr := cfg.addr()
	dialer := net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &Error{Op: "dial", Host: addr, Err: err}
	}

	c, chans, reqs, err := gossh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close()
		return nil, &Error{Op: "auth", Host: addr, Err: err}
	}

	slog.Info("ssh connected", "host", addr, "user", cfg.Username)
	return &SSH{host: addr, client: gossh.NewClient(c, chans, reqs)}, nil
}

// Run executes command in a new session and returns its stdout. A non-zero
// exit status is an error carrying stderr.
func (s *SSH) Run(ctx context.Context, command string) (string, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("ssh session on %s: %w", s.host, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		session.Close()
		return "", ctx.Err()
	case err = <-done:
	}

	if err != nil {
		var exitErr *gossh.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), fmt.Errorf("%w: exit status %d: %s", ErrCommandFailed, exitErr.ExitStatus(), strings.TrimSpace(stderr.String()))
		}
		return stdout.String(), fmt.Errorf("ssh run on %s: %w", s.host, err)
	}
	if stderr.Len() > 0 {
		slog.Warn("remote command wrote to stderr", "host", s.host, "stderr", strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// UploadFile copies localPath to remotePath, creating parent directories.
func (s *SSH) UploadFile(ctx context.Context, localPath, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := s.sftpClient()
	if err != nil {
		return err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := client.MkdirAll(path.Dir(remotePath)); err != nil {
		return fmt.Errorf("sftp mkdir %q: %w", path.Dir(remotePath), err)
	}
	dst, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("sftp create %q: %w", remotePath, err)
	}
	defer dst.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		return fmt.Errorf("sftp write %q: %w", remotePath, err)
	}
	slog.Debug("uploaded", "local", localPath, "remote", remotePath, "bytes", n)
	return nil
}

func (s *SSH) sftpClient() (*sftp.Client, error) {
	if s.sftp != nil {
		return s.sftp, nil
	}
	client, err := sftp.NewClient(s.client)
	if err != nil {
		return nil, &Error{Op: "sftp", Host: s.host, Err: err}
	}
	s.sftp = client
	return client, nil
}

func (s *SSH) Close() error {
	var errs []error
	if s.sftp != nil {
		errs = append(errs, s.sftp.Close())
	}
	errs = append(errs, s.client.Close())
	return errors.Join(errs...)
}

func authMethods(cfg SSHConfig) ([]gossh.AuthMethod, error) {
	var methods []gossh.AuthMethod

	if cfg.PrivateKeyPath != "" {
		key, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := parseSigner(key, cfg.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("parse private key %q: %w", cfg.PrivateKeyPath, err)
		}
		methods = append(methods, gossh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		methods = append(methods, gossh.Password(cfg.Password))
	}

	if len(methods) == 0 {
		return nil, ErrNoCredentials
	}
	return methods, nil
}

func parseSigner(key []byte, passphrase string) (gossh.Signer, error) {
	if passphrase != "" {
		return gossh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	}
	return gossh.ParsePrivateKey(key)
}
