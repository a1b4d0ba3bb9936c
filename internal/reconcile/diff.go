package reconcile

import (
	"errors"
	"log/slog"
	"time"
)

// ErrNothingToDeploy is returned by Diff when no local file needs uploading.
// It is a normal stop, not a failure.
var ErrNothingToDeploy = errors.New("reconcile: nothing to deploy")

// Diff returns the local candidates that must be uploaded, in walk order.
// With fresh set the remote listing is not consulted at all.
func Diff(local []Candidate, remote []Record, fresh bool) ([]Candidate, error) {
	var upload []Candidate

	if fresh {
		upload = append(upload, local...)
	} else {
		index := make(map[string]Record, len(remote))
		for _, r := range remote {
			if _, dup := index[r.RelativePath]; !dup {
				index[r.RelativePath] = r
			}
		}

		for _, c := range local {
			r, found := index[c.RelativePath]
			if !found {
				slog.Debug("compare", "path", c.RelativePath, "remote", "missing", "upload", true)
				upload = append(upload, c)
				continue
			}

			modified := ShouldUpload(c, r)
			slog.Debug("compare",
				"path", c.RelativePath,
				"remote_mtime", formatEpoch(r.ModTime), "remote_size", r.Size,
				"local_mtime", formatEpoch(c.ModTime), "local_size", c.Size,
				"diff", time.Duration(c.ModTime-r.ModTime)*time.Second,
				"upload", modified,
			)
			if modified {
				upload = append(upload, c)
			}
		}
	}

	if len(upload) == 0 {
		return nil, ErrNothingToDeploy
	}
	return upload, nil
}

// ShouldUpload reports whether a local file differs from its remote copy:
// sizes differ, or the local copy is strictly newer.
func ShouldUpload(local Candidate, remote Record) bool {
	if local.Size != remote.Size {
		return true
	}
	return local.ModTime > remote.ModTime
}

func formatEpoch(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.DateTime)
}
