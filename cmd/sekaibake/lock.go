package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrLocked is returned when another process holds the data directory lock.
var ErrLocked = errors.New("another sekaibake run holds the data directory lock")

// ///////////////////////////////////////////////
// Run Lock
// ///////////////////////////////////////////////

// runLock is an advisory lock on the data directory's lock file. The file
// holds "PID:TOKEN" so [runLock.release] only removes a file it wrote.
type runLock struct {
	path  string
	token string
	f     *os.File
}

// lockToken generates a random 16-character hex token.
func lockToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// errLockReplaced reports that the lock file was removed or replaced between
// opening and locking it, so the lock taken guards nothing.
var errLockReplaced = errors.New("lock file replaced while locking")

// acquireLock opens or creates the lock file at path and locks it without
// blocking. A held lock yields [ErrLocked] naming the holder's PID when it
// can be read. A leftover file from a dead process is simply re-locked.
func acquireLock(path string) (*runLock, error) {
	for range 3 {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open lock file: %w", err)
		}
		l, err := lockOpened(path, f)
		if errors.Is(err, errLockReplaced) {
			continue
		}
		return l, err
	}
	return nil, ErrLocked
}

// lockOpened locks f, which was opened from path, and records this
// process in it. The lock only counts if path still names f afterwards: a
// releasing holder may have unlinked it in between. f is closed on error.
func lockOpened(path string, f *os.File) (*runLock, error) {
	if err := lockFile(f); err != nil {
		f.Close()
		if pid := lockHolder(path); pid > 0 {
			return nil, fmt.Errorf("%w (pid %d)", ErrLocked, pid)
		}
		return nil, ErrLocked
	}
	held, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat lock file: %w", err)
	}
	if cur, err := os.Stat(path); err != nil || !os.SameFile(held, cur) {
		f.Close()
		return nil, errLockReplaced
	}

	l := &runLock{path: path, token: lockToken(), f: f}
	if err := f.Truncate(0); err != nil {
		l.release()
		return nil, fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := f.WriteAt([]byte(fmt.Sprintf("%d:%s", os.Getpid(), l.token)), 0); err != nil {
		l.release()
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	return l, nil
}

// lockHolder reads the PID recorded in the lock file, or 0.
func lockHolder(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, _ := strconv.Atoi(strings.SplitN(string(data), ":", 2)[0])
	return pid
}

// release removes the lock file if it still carries this lock's token, then
// unlocks and closes it. Removing first means a contender that locks the
// old file afterwards sees it unlinked and retries. Safe on a nil lock.
func (l *runLock) release() {
	if l == nil || l.f == nil {
		return
	}
	if l.ownsPath() {
		os.Remove(l.path)
	}

	_ = unlockFile(l.f)
	l.f.Close()
	l.f = nil
}

// ownsPath reports whether path still names the locked file and that file
// still carries this lock's token. The token is read through the held
// handle, since a Windows byte-range lock blocks reads through any other.
func (l *runLock) ownsPath() bool {
	held, err := l.f.Stat()
	if err != nil {
		return false
	}
	if cur, err := os.Stat(l.path); err != nil || !os.SameFile(held, cur) {
		return false
	}
	data, err := io.ReadAll(io.NewSectionReader(l.f, 0, held.Size()))
	if err != nil {
		return false
	}
	parts := strings.SplitN(string(data), ":", 2)
	return len(parts) == 2 && parts[1] == l.token
}
