package gitrepo

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

// ///////////////////////////////////////////////
// Slug Tests
// ///////////////////////////////////////////////

func TestSlug(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"HTTPS URL", "https://github.com/Sekai-World/sekai-master-db-diff", "Sekai-World/sekai-master-db-diff"},
		{"HTTPS URL with .git", "https://github.com/Sekai-World/sekai-master-db-en-diff.git", "Sekai-World/sekai-master-db-en-diff"},
		{"SSH URL", "git@github.com:user/repo.git", "user/repo"},
		{"SSH URL without .git", "git@github.com:user/repo", "user/repo"},
		{"GitLab passes through", "https://gitlab.com/user/repo", "https://gitlab.com/user/repo"},
		{"local path passes through", "/srv/mirrors/master", "/srv/mirrors/master"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slug(tt.input); got != tt.want {
				t.Errorf("Slug(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Sync Tests
// ///////////////////////////////////////////////

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

// git runs a git command in dir with a fixed identity, failing the test on
// error.
func git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	full := append([]string{"-c", "user.name=test", "-c", "user.email=test@example.com", "-c", "commit.gpgsign=false"}, args...)
	out, err := run(context.Background(), dir, full...)
	if err != nil {
		t.Fatalf("git %v: %v", args, err)
	}
	return out
}

func commitFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	git(t, dir, "add", name)
	git(t, dir, "commit", "-q", "-m", "update "+name)
	return git(t, dir, "rev-parse", "HEAD")
}

func TestSync_CloneThenPull(t *testing.T) {
	requireGit(t)

	upstream := t.TempDir()
	git(t, upstream, "init", "-q")
	first := commitFile(t, upstream, "honors.json", "[]")

	checkout := filepath.Join(t.TempDir(), "master", "jp")
	r := Repo{URL: upstream, Dir: checkout, Timeout: time.Minute}

	rev, err := r.Sync(context.Background())
	if err != nil {
		t.Fatalf("clone Sync: %v", err)
	}
	if rev != first {
		t.Errorf("revision after clone = %s, want %s", rev, first)
	}
	if !r.Exists() {
		t.Fatal("checkout missing after clone")
	}

	second := commitFile(t, upstream, "honorGroups.json", "[]")
	rev, err = r.Sync(context.Background())
	if err != nil {
		t.Fatalf("pull Sync: %v", err)
	}
	if rev != second {
		t.Errorf("revision after pull = %s, want %s", rev, second)
	}
	if _, err := os.Stat(filepath.Join(checkout, "honorGroups.json")); err != nil {
		t.Errorf("pulled file missing: %v", err)
	}
}

func TestSync_BadRemote(t *testing.T) {
	requireGit(t)

	r := Repo{URL: filepath.Join(t.TempDir(), "does-not-exist"), Dir: filepath.Join(t.TempDir(), "co")}
	if _, err := r.Sync(context.Background()); err == nil {
		t.Fatal("expected error cloning a missing remote")
	}
	if r.Exists() {
		t.Error("failed clone left a checkout behind")
	}
}

func TestSync_Cancelled(t *testing.T) {
	requireGit(t)

	upstream := t.TempDir()
	git(t, upstream, "init", "-q")
	commitFile(t, upstream, "honors.json", "[]")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Repo{URL: upstream, Dir: filepath.Join(t.TempDir(), "co")}
	if _, err := r.Sync(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
