package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"recall/pkg/config"
	"recall/pkg/lock"
)

func testWorkerConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{}
	cfg.ImagesDir = filepath.Join(root, "images")
	cfg.DetailedDir = filepath.Join(root, "Detailed")
	cfg.SummaryDir = filepath.Join(root, "Summary")
	cfg.BackupImagesDir = filepath.Join(root, "backup-images")
	cfg.BackupDetailedDir = filepath.Join(root, "backup-detailed")
	cfg.BackupSummaryDir = filepath.Join(root, "backup-summary")
	cfg.Session.LockStaleMinutes = 60
	cfg.LocalRetention.Days = 7
	return cfg
}

func TestWorker_MirrorImagesSkipsLiveLockedSession(t *testing.T) {
	cfg := testWorkerConfig(t)
	w := &Worker{cfg: cfg}

	liveSession := filepath.Join(cfg.ImagesDir, "2026-07-30", "1200-1230")
	assert.NoError(t, os.MkdirAll(liveSession, 0o755))
	assert.NoError(t, os.WriteFile(filepath.Join(liveSession, "shot.webp"), []byte("x"), 0o644))
	assert.NoError(t, lock.Create(liveSession))

	closedSession := filepath.Join(cfg.ImagesDir, "2026-07-30", "0900-0930")
	assert.NoError(t, os.MkdirAll(closedSession, 0o755))
	assert.NoError(t, os.WriteFile(filepath.Join(closedSession, "shot.webp"), []byte("x"), 0o644))

	w.mirrorImages()

	_, err := os.Stat(filepath.Join(cfg.BackupImagesDir, "2026-07-30", "1200-1230", "shot.webp"))
	assert.True(t, os.IsNotExist(err), "a session with a live lock must not be mirrored yet")

	_, err = os.Stat(filepath.Join(cfg.BackupImagesDir, "2026-07-30", "0900-0930", "shot.webp"))
	assert.NoError(t, err, "a closed session should be mirrored")
}

func TestWorker_MirrorDetailedSkipsToday(t *testing.T) {
	cfg := testWorkerConfig(t)
	w := &Worker{cfg: cfg}

	today := "2026-07-30"
	yesterday := "2026-07-29"

	assert.NoError(t, os.MkdirAll(filepath.Join(cfg.DetailedDir, today), 0o755))
	assert.NoError(t, os.WriteFile(filepath.Join(cfg.DetailedDir, today, "a.mp4"), []byte("x"), 0o644))
	assert.NoError(t, os.MkdirAll(filepath.Join(cfg.DetailedDir, yesterday), 0o755))
	assert.NoError(t, os.WriteFile(filepath.Join(cfg.DetailedDir, yesterday, "b.mp4"), []byte("x"), 0o644))

	w.mirrorDetailed(today)

	_, err := os.Stat(filepath.Join(cfg.BackupDetailedDir, today, "a.mp4"))
	assert.True(t, os.IsNotExist(err), "today's detailed folder is still being written and must not be mirrored")

	_, err = os.Stat(filepath.Join(cfg.BackupDetailedDir, yesterday, "b.mp4"))
	assert.NoError(t, err)
}

func TestWorker_EvictExpiredOnlyWhenBackupConfirmed(t *testing.T) {
	cfg := testWorkerConfig(t)
	w := &Worker{cfg: cfg}

	oldDay := "2026-01-01"
	noManifestDay := "2026-01-02"
	newDay := "2026-07-29"

	// Old day with a confirmed backup copy (manifest present): should be
	// evicted locally.
	assert.NoError(t, os.MkdirAll(filepath.Join(cfg.ImagesDir, oldDay), 0o755))
	assert.NoError(t, os.MkdirAll(filepath.Join(cfg.BackupImagesDir, oldDay), 0o755))
	assert.NoError(t, os.WriteFile(filepath.Join(cfg.BackupImagesDir, oldDay, "shot.webp"), []byte("x"), 0o644))
	assert.NoError(t, saveManifest(filepath.Join(cfg.BackupImagesDir, oldDay), map[string]manifestEntry{
		"shot.webp": {Size: 1, ModTime: 0, Hash: "x"},
	}))

	// Old day whose mirror folder has files but no manifest — a mirror
	// pass that copied data but crashed before saveManifest ran. Must
	// survive: a non-empty folder alone isn't proof the pass completed.
	assert.NoError(t, os.MkdirAll(filepath.Join(cfg.ImagesDir, noManifestDay), 0o755))
	assert.NoError(t, os.MkdirAll(filepath.Join(cfg.BackupImagesDir, noManifestDay), 0o755))
	assert.NoError(t, os.WriteFile(filepath.Join(cfg.BackupImagesDir, noManifestDay, "shot.webp"), []byte("x"), 0o644))

	// Recent day: must survive regardless of backup state.
	assert.NoError(t, os.MkdirAll(filepath.Join(cfg.ImagesDir, newDay), 0o755))

	cutoff := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	w.evictExpired(cutoff)

	_, err := os.Stat(filepath.Join(cfg.ImagesDir, oldDay))
	assert.True(t, os.IsNotExist(err), "old day with a confirmed manifest should be evicted")

	_, err = os.Stat(filepath.Join(cfg.ImagesDir, noManifestDay))
	assert.NoError(t, err, "old day whose mirror folder lacks a manifest must not be evicted")

	_, err = os.Stat(filepath.Join(cfg.ImagesDir, newDay))
	assert.NoError(t, err, "recent day must never be evicted")
}

func TestWorker_RunOnceDoesNotPanicOnEmptyTree(t *testing.T) {
	cfg := testWorkerConfig(t)
	w := New(cfg, nil, nil, "")

	assert.NotPanics(t, func() {
		w.mirrorImages()
		w.mirrorDetailed("2026-07-30")
		w.mirrorSummary("2026-07-30", "2026-07")
	})
}
