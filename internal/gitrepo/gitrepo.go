// Package gitrepo keeps local checkouts of the master-data mirrors and the
// optional asset repository current by shelling out to git.
package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// ErrNoGit is returned when the git executable cannot be found.
var ErrNoGit = errors.New("git executable not found in PATH")

// githubRemoteRe extracts owner and repo from GitHub remote URLs.
// Matches both HTTPS (github.com/) and SSH (github.com:) formats.
var githubRemoteRe = regexp.MustCompile(`github\.com[:/]([^/]+)/([^/.]+)`)

// Slug returns "owner/repo" for GitHub URLs and the URL unchanged otherwise.
func Slug(url string) string {
	if m := githubRemoteRe.FindStringSubmatch(url); len(m) == 3 {
		return m[1] + "/" + m[2]
	}
	return url
}

// Repo is a remote repository and its local checkout.
type Repo struct {
	URL string
	Dir string
	// Timeout bounds a single clone or pull. Zero means no limit beyond ctx.
	Timeout time.Duration
	Logger  *slog.Logger
}

func (r Repo) log() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Exists reports whether Dir holds a git checkout.
func (r Repo) Exists() bool {
	_, err := os.Stat(filepath.Join(r.Dir, ".git"))
	return err == nil
}

// Sync clones the repository when the checkout is missing and pulls
// otherwise. It returns the checked-out revision.
func (r Repo) Sync(ctx context.Context) (string, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return "", ErrNoGit
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	start := time.Now()
	if r.Exists() {
		r.log().Info("pulling repository", "repo", Slug(r.URL), "dir", r.Dir)
		if _, err := run(ctx, r.Dir, "pull", "--ff-only"); err != nil {
			return "", fmt.Errorf("pull %s: %w", Slug(r.URL), err)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(r.Dir), 0o755); err != nil {
			return "", fmt.Errorf("create checkout parent: %w", err)
		}
		r.log().Info("cloning repository", "repo", Slug(r.URL), "dir", r.Dir)
		if _, err := run(ctx, "", "clone", "--depth", "1", r.URL, r.Dir); err != nil {
			return "", fmt.Errorf("clone %s: %w", Slug(r.URL), err)
		}
	}

	rev, err := r.Head(ctx)
	if err != nil {
		return "", err
	}
	r.log().Info("repository current", "repo", Slug(r.URL), "revision", rev, "elapsed", time.Since(start).Round(time.Millisecond))
	return rev, nil
}

// Head returns the commit hash checked out in Dir.
func (r Repo) Head(ctx context.Context) (string, error) {
	out, err := run(ctx, r.Dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("read revision of %s: %w", r.Dir, err)
	}
	return out, nil
}

// run executes git with args in dir and returns trimmed stdout. The error
// carries git's stderr.
func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	// Never block on a credential prompt.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("git %s: %w: %s", args[0], err, msg)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
