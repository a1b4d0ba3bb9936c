package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/barke-deploy/barke/internal/clock"
	"github.com/barke-deploy/barke/internal/config"
	"github.com/barke-deploy/barke/internal/deploy"
	"github.com/barke-deploy/barke/internal/ignore"
	"github.com/barke-deploy/barke/internal/reconcile"
	"github.com/barke-deploy/barke/internal/remote"
	"github.com/barke-deploy/barke/internal/transport"
	"github.com/barke-deploy/barke/internal/utils"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/goccy/go-json"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var errScanLocked = errors.New("another barke run is scanning this directory")

func newFindCmd() *cobra.Command {
	var fresh bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "find",
		Short: "List the files the next deployment has to upload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			summary := cmd.OutOrStdout()
			if asJSON {
				summary = nil
			}

			files, err := findNewFiles(cmd.Context(), cfg, fresh, summary)
			if errors.Is(err, reconcile.ErrNothingToDeploy) {
				slog.Info("There is no new file!")
				if asJSON {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), "[]")
					return err
				}
				return nil
			}
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), files)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fresh, "fresh", false, "treat every local file as new, skip the remote listing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the upload set as JSON instead of a summary")
	return cmd
}

// findNewFiles holds the scan lock, opens the transport the strategy needs
// and runs one reconciliation.
func findNewFiles(ctx context.Context, cfg *config.Config, fresh bool, summary io.Writer) ([]reconcile.Candidate, error) {
	localBase, err := utils.ResolvePathFrom(filepath.Dir(cfg.Path), cfg.LocalBasePath)
	if err != nil {
		return nil, fmt.Errorf("`local_basepath`: %w", err)
	}

	lock := flock.New(lockPath(localBase))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("scan lock %s: %w", lock.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", errScanLocked, localBase)
	}
	defer lock.Unlock()

	matcher, err := ignore.Compile(cfg.Ignores, nil)
	if err != nil {
		return nil, err
	}

	var enumerator remote.Enumerator
	var resolver clock.RemoteResolver
	if !fresh {
		conn, err := dial(ctx, cfg)
		if err != nil {
			return nil, err
		}
		defer conn.Close()

		enumerator, err = remote.Select(cfg.Kind(), conn.deps(cfg, matcher))
		if err != nil {
			return nil, err
		}
		resolver = conn.resolver(cfg)
	}

	finder := deploy.NewFinder(osfs.New(localBase), matcher, enumerator, resolver, deploy.Options{
		Fresh:             fresh,
		FollowSymlinks:    cfg.FollowSymlinks,
		HighFileCountDirs: cfg.DistDirs,
		Summary:           summary,
	})
	return finder.FindNewFiles(ctx)
}

// lockPath is stable per local base, so two runs on one tree exclude each other.
func lockPath(localBase string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(localBase)))
	return filepath.Join(os.TempDir(), "barke-"+id.String()+".lock")
}

// connection is the open transport session of one run.
type connection struct {
	ssh *transport.SSH
	ftp *transport.FTP
}

func dial(ctx context.Context, cfg *config.Config) (*connection, error) {
	switch cfg.Transport {
	case config.TransportFTP:
		c, err := transport.DialFTP(ctx, cfg.FTPTransport())
		if err != nil {
			return nil, err
		}
		return &connection{ftp: c}, nil
	default:
		sshCfg, err := cfg.SSHTransport()
		if err != nil {
			return nil, err
		}
		c, err := transport.DialSSH(ctx, sshCfg)
		if err != nil {
			return nil, err
		}
		return &connection{ssh: c}, nil
	}
}

func (c *connection) deps(cfg *config.Config, matcher *ignore.Matcher) remote.Deps {
	d := remote.Deps{
		Matcher:    matcher,
		BasePath:   cfg.RemoteBasePath,
		ScriptDir:  cfg.ScriptDir,
		DateLayout: cfg.ForfilesDateLayout,
	}
	if c.ssh != nil {
		d.Runner = c.ssh
		d.Uploader = c.ssh
	}
	if c.ftp != nil {
		d.Lister = c.ftp
		d.FTPRoot = remote.FTPRoot(cfg.RemoteBasePath, cfg.FTP.BasePath)
	}
	return d
}

// resolver returns the remote clock query for shell sessions. FTP has none.
func (c *connection) resolver(cfg *config.Config) clock.RemoteResolver {
	if c.ssh == nil {
		return nil
	}
	if cfg.TargetOS == config.OSWindows {
		return &clock.WindowsResolver{Runner: c.ssh}
	}
	return &clock.UnixResolver{Runner: c.ssh}
}

func (c *connection) Close() error {
	if c.ssh != nil {
		return c.ssh.Close()
	}
	if c.ftp != nil {
		return c.ftp.Close()
	}
	return nil
}

func writeJSON(w io.Writer, files []reconcile.Candidate) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(files)
}
