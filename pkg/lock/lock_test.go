package lock

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCreateReadRemove(t *testing.T) {
	dir := t.TempDir()

	assert.False(t, Exists(dir))

	assert.NoError(t, Create(dir))
	assert.True(t, Exists(dir))

	meta, err := Read(dir)
	assert.NoError(t, err)
	assert.NotNil(t, meta)
	assert.Equal(t, int64(os.Getpid()), meta.PID)

	assert.NoError(t, Remove(dir))
	assert.False(t, Exists(dir))
}

func TestRemove_MissingIsNotError(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, Remove(dir))
}

func TestRead_MissingReturnsNilNil(t *testing.T) {
	dir := t.TempDir()
	meta, err := Read(dir)
	assert.NoError(t, err)
	assert.Nil(t, meta)
}

func TestRead_UnparsableReturnsNilNil(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(PathFor(dir), []byte("not json"), 0o644))

	meta, err := Read(dir)
	assert.NoError(t, err)
	assert.Nil(t, meta)
}

func TestIsStale_MissingLockIsStale(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, IsStale(dir, time.Hour))
}

func TestIsStale_FreshLockWithLivePIDIsNotStale(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, Create(dir))
	assert.False(t, IsStale(dir, time.Hour))
}

func TestIsStale_DeadPIDIsStale(t *testing.T) {
	dir := t.TempDir()
	meta := Metadata{PID: 999999, TS: time.Now().UTC().Format(time.RFC3339)}
	data, err := json.Marshal(meta)
	assert.NoError(t, err)
	assert.NoError(t, os.WriteFile(PathFor(dir), data, 0o644))

	assert.True(t, IsStale(dir, time.Hour))
}

func TestIsStale_OldTimestampIsStale(t *testing.T) {
	dir := t.TempDir()
	meta := Metadata{PID: int64(os.Getpid()), TS: time.Now().Add(-2 * time.Hour).UTC().Format(time.RFC3339)}
	data, err := json.Marshal(meta)
	assert.NoError(t, err)
	assert.NoError(t, os.WriteFile(PathFor(dir), data, 0o644))

	assert.True(t, IsStale(dir, time.Hour))
}

func TestCleanupStale_RemovesOnlyStaleLocks(t *testing.T) {
	root := t.TempDir()

	freshSession := filepath.Join(root, "2026-07-30", "1200-1230")
	assert.NoError(t, os.MkdirAll(freshSession, 0o755))
	assert.NoError(t, Create(freshSession))

	staleSession := filepath.Join(root, "2026-07-30", "0900-0930")
	assert.NoError(t, os.MkdirAll(staleSession, 0o755))
	staleMeta := Metadata{PID: int64(os.Getpid()), TS: time.Now().Add(-2 * time.Hour).UTC().Format(time.RFC3339)}
	data, err := json.Marshal(staleMeta)
	assert.NoError(t, err)
	assert.NoError(t, os.WriteFile(PathFor(staleSession), data, 0o644))

	CleanupStale(root, time.Hour)

	assert.True(t, Exists(freshSession))
	assert.False(t, Exists(staleSession))
}

func TestParsePID(t *testing.T) {
	pid, err := ParsePID("1234")
	assert.NoError(t, err)
	assert.Equal(t, int64(1234), pid)

	_, err = ParsePID("not-a-pid")
	assert.Error(t, err)
}
