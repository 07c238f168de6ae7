package capture

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	_ "github.com/mattn/go-sqlite3"

	"recall/pkg/catalog"
	"recall/pkg/config"
	"recall/pkg/indexwriter"
	"recall/pkg/models"
)

func openTestCatalog(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	db, err := catalog.OpenPrimary(path)
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEngine_TickPersistsNovelFrame(t *testing.T) {
	db := openTestCatalog(t)
	writer := indexwriter.New(db, 10, 20*time.Millisecond)
	writer.Start()

	root := t.TempDir()
	cfg := &config.Config{}
	cfg.Capture.WebPQuality = 80
	cfg.ImagesDir = filepath.Join(root, "images")
	cfg.BackupImagesDir = filepath.Join(root, "backup-images")

	jobs := make(chan models.AssemblyJob, 4)
	backend := NewStubBackend(64, 64)
	engine := New(cfg, writer, jobs, backend, backend, backend)

	sessionDir := filepath.Join(cfg.ImagesDir, "2026-07-30", "1200-1230")
	assert.NoError(t, os.MkdirAll(sessionDir, 0o755))

	var state State
	tuning := Tuning{HashSize: 8, HammingThreshold: 6, PersistenceFrames: 4, AreaSmallPixels: 32, AreaFracThreshold: 0.02}

	err := engine.tick(&state, sessionDir, "2026-07-30", "1200-1230", tuning)
	assert.NoError(t, err)
	assert.True(t, state.Started)

	writer.Stop()

	var count int
	assert.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM images`).Scan(&count))
	assert.Equal(t, 1, count)

	entries, err := os.ReadDir(sessionDir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEngine_ProcessBacklogNoOpWithoutCallback(t *testing.T) {
	db := openTestCatalog(t)
	writer := indexwriter.New(db, 10, 20*time.Millisecond)
	writer.Start()
	defer writer.Stop()

	cfg := &config.Config{}
	jobs := make(chan models.AssemblyJob, 1)
	backend := NewStubBackend(32, 32)
	engine := New(cfg, writer, jobs, backend, backend, backend)

	// Should not panic even though no backlog function was wired.
	engine.processBacklog("2026-07-30", "1200-1230")
}

func TestEngine_ProcessBacklogInvokesCallback(t *testing.T) {
	db := openTestCatalog(t)
	writer := indexwriter.New(db, 10, 20*time.Millisecond)
	writer.Start()
	defer writer.Stop()

	cfg := &config.Config{}
	jobs := make(chan models.AssemblyJob, 1)
	backend := NewStubBackend(32, 32)
	engine := New(cfg, writer, jobs, backend, backend, backend)

	called := false
	engine.SetBacklogFunc(func(day, session string) {
		called = true
		assert.Equal(t, "2026-07-30", day)
		assert.Equal(t, "1200-1230", session)
	})
	engine.processBacklog("2026-07-30", "1200-1230")
	assert.True(t, called)
}
