package videoassembler

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	_ "github.com/mattn/go-sqlite3"

	"recall/pkg/config"
	"recall/pkg/indexwriter"
	"recall/pkg/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "assembler.db"))
	assert.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE videos (id INTEGER PRIMARY KEY, day TEXT, session TEXT, local_path TEXT, backup_path TEXT, created_ts INTEGER)`)
	assert.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE summaries (id INTEGER PRIMARY KEY, day TEXT, local_path TEXT, backup_path TEXT, created_ts INTEGER)`)
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Video.FFmpegPath = "/nonexistent/ffmpeg"
	cfg.Video.FFprobePath = "/nonexistent/ffprobe"
	cfg.Video.FPS = 8
	cfg.Video.SummaryVideoFPS = 30
	return cfg
}

func TestParseFrac(t *testing.T) {
	assert.Equal(t, 30.0, parseFrac("30/1"))
	assert.InDelta(t, 29.97, parseFrac("2997/100"), 0.0001)
	assert.Equal(t, 0.0, parseFrac("30/0"))
	assert.Equal(t, 0.0, parseFrac("not-a-number"))
	assert.Equal(t, 24.0, parseFrac("24"))
}

func TestFFmpegExists_FalseWhenMissing(t *testing.T) {
	a := New(testConfig(), nil, nil)
	assert.False(t, a.ffmpegExists())
}

func TestMakeDetailedVideo_MissingFFmpegErrors(t *testing.T) {
	a := New(testConfig(), nil, nil)
	folder := t.TempDir()
	err := a.makeDetailedVideo(folder, filepath.Join(t.TempDir(), "out.mp4"))
	assert.Error(t, err)
}

func TestMakeSummaryVideo_MissingFFmpegErrors(t *testing.T) {
	a := New(testConfig(), nil, nil)
	err := a.makeSummaryVideo("2026-07-30", filepath.Join(t.TempDir(), "out.mp4"))
	assert.Error(t, err)
}

func TestProbeFrameRate_MissingFFprobeReturnsZero(t *testing.T) {
	a := New(testConfig(), nil, nil)
	assert.Equal(t, 0.0, a.probeFrameRate("/does/not/exist.mp4"))
}

func TestAssembler_FailedJobDoesNotWriteCatalogRow(t *testing.T) {
	db := openTestDB(t)
	writer := indexwriter.New(db, 10, 20*time.Millisecond)
	writer.Start()

	jobs := make(chan models.AssemblyJob, 2)
	a := New(testConfig(), writer, jobs)

	ctx, cancel := context.WithCancel(context.Background())
	a.Start(ctx)

	jobs <- models.AssemblyJob{
		Kind: models.DetailedJobKind,
		Detailed: models.DetailedJob{
			Day: "2026-07-30", Session: "1200-1230",
			FolderPath: t.TempDir(), OutPath: filepath.Join(t.TempDir(), "out.mp4"),
		},
	}

	cancel()
	a.Wait()
	writer.Stop()

	var count int
	assert.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM videos`).Scan(&count))
	assert.Equal(t, 0, count, "a failed ffmpeg invocation must not produce a catalog row")
}
