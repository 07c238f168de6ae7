// Package lock implements the session lock protocol: a JSON lock file that
// marks a session directory as owned by a live writer, with PID- and
// timestamp-based staleness detection and a recovery sweep.
package lock

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const fileName = "session.lock"

// Metadata is the on-disk lock document: JSON {"pid": <int>, "ts": <RFC-3339 UTC>}.
type Metadata struct {
	PID int64  `json:"pid"`
	TS  string `json:"ts"`
}

// PathFor returns the lock file path for a session directory.
func PathFor(sessionDir string) string {
	return filepath.Join(sessionDir, fileName)
}

// Create writes a lock file for the current process into sessionDir,
// atomically (temp file then rename), matching the original's best-effort
// fallback to an in-place write if the rename fails.
func Create(sessionDir string) error {
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	meta := Metadata{
		PID: int64(os.Getpid()),
		TS:  time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal lock metadata: %w", err)
	}

	lp := PathFor(sessionDir)
	tmp := lp + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err == nil {
		if err := os.Rename(tmp, lp); err == nil {
			return nil
		}
	}
	os.Remove(tmp)
	if err := os.WriteFile(lp, data, 0o644); err != nil {
		return fmt.Errorf("write lock %s: %w", lp, err)
	}
	return nil
}

// Remove deletes the lock file for a session directory, if present.
func Remove(sessionDir string) error {
	lp := PathFor(sessionDir)
	if err := os.Remove(lp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock %s: %w", lp, err)
	}
	return nil
}

// Read loads the lock metadata for a session directory. A missing or
// unparsable file returns (nil, nil) — callers treat that as stale.
func Read(sessionDir string) (*Metadata, error) {
	data, err := os.ReadFile(PathFor(sessionDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, nil //nolint: unreadable lock is stale, not a hard error
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, nil
	}
	return &meta, nil
}

// Exists reports whether a lock file is present, regardless of staleness —
// the predicate the Video Assembler's backlog path uses to refuse a session.
func Exists(sessionDir string) bool {
	_, err := os.Stat(PathFor(sessionDir))
	return err == nil
}

// IsStale reports whether the lock for sessionDir is stale: absent or
// unreadable, owned by a dead PID, or older than staleAfter.
func IsStale(sessionDir string, staleAfter time.Duration) bool {
	meta, err := Read(sessionDir)
	if err != nil || meta == nil {
		return true
	}
	if meta.PID != 0 && !pidAlive(meta.PID) {
		return true
	}
	ts, err := time.Parse(time.RFC3339, meta.TS)
	if err != nil {
		return true
	}
	return time.Since(ts) > staleAfter
}

func pidAlive(pid int64) bool {
	alive, err := process.PidExists(int32(pid))
	if err != nil {
		return false
	}
	return alive
}

// CleanupStale walks rootImagesDir/<day>/<session> and removes any stale
// lock file found, logging each removal. Run at Capture startup and at the
// end of every Backup pass.
func CleanupStale(rootImagesDir string, staleAfter time.Duration) {
	days, err := os.ReadDir(rootImagesDir)
	if err != nil {
		return
	}
	for _, day := range days {
		if !day.IsDir() {
			continue
		}
		dayPath := filepath.Join(rootImagesDir, day.Name())
		sessions, err := os.ReadDir(dayPath)
		if err != nil {
			continue
		}
		for _, sess := range sessions {
			if !sess.IsDir() {
				continue
			}
			sessionPath := filepath.Join(dayPath, sess.Name())
			if !Exists(sessionPath) {
				continue
			}
			if IsStale(sessionPath, staleAfter) {
				log.Printf("[lock] removing stale lock: %s", PathFor(sessionPath))
				if err := Remove(sessionPath); err != nil {
					log.Printf("[lock] failed to remove stale lock %s: %v", sessionPath, err)
				}
			}
		}
	}
}

// ParsePID parses a decimal process ID string into the int64 form that
// Metadata.PID uses.
func ParsePID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
