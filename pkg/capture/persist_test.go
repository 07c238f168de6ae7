package capture

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStamp_PreservesDimensions(t *testing.T) {
	img := solidImage(200, 100, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	stamped := Stamp(img, "app.exe", "Some Window", time.Now())

	assert.Equal(t, img.Bounds(), stamped.Bounds())
}

func TestSaveImage_WritesFileWithExpectedName(t *testing.T) {
	dir := t.TempDir()
	img := solidImage(32, 32, color.RGBA{R: 5, G: 5, B: 5, A: 255})
	at := time.Date(2026, 7, 30, 14, 5, 9, 0, time.UTC)

	path, err := SaveImage(img, dir, at, 80)
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "SCREENSHOT_30_07_2026_14_05_09.jpg"), path)

	info, err := os.Stat(path)
	assert.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSaveImage_CreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "session")
	img := solidImage(16, 16, color.RGBA{A: 255})

	_, err := SaveImage(img, dir, time.Now(), 80)
	assert.NoError(t, err)

	entries, err := os.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSaveImage_HigherQualityProducesLargerFile(t *testing.T) {
	dir := t.TempDir()
	img := solidImage(128, 128, color.RGBA{R: 5, G: 5, B: 5, A: 255})

	lowPath, err := SaveImage(img, filepath.Join(dir, "low"), time.Now(), 5)
	assert.NoError(t, err)
	highPath, err := SaveImage(img, filepath.Join(dir, "high"), time.Now(), 95)
	assert.NoError(t, err)

	lowInfo, err := os.Stat(lowPath)
	assert.NoError(t, err)
	highInfo, err := os.Stat(highPath)
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, highInfo.Size(), lowInfo.Size(), "capture.webp_quality must actually influence encoded size")
}
