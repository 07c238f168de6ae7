package capture

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

func fixedPoint(x, y int) fixed.Point26_6 {
	return fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)}
}

// Stamp composites a semi-transparent strip carrying "app | title |
// timestamp" along the bottom of img, matching the original's overlay
// behavior. golang.org/x/image/font/basicfont substitutes for the
// original's truetype lookup, which has no fixed-width analogue in the
// pack — a bitmap face keeps the stamp legible without an embedded font
// file.
func Stamp(img image.Image, appName, title string, at time.Time) image.Image {
	text := fmt.Sprintf("%s | %s | %s", appName, title, at.Format("2006-01-02 15:04:05"))

	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)

	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, text).Round()
	textHeight := 13

	margin := 8
	padding := 10
	x := b.Min.X + (b.Dx()-textWidth)/2
	y := b.Max.Y - textHeight - margin

	rect := image.Rect(x-padding, y-padding, x+textWidth+padding, y+textHeight+padding)
	draw.Draw(out, rect, image.NewUniform(color.RGBA{0, 0, 0, 220}), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  out,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixedPoint(x, y+textHeight-3),
	}
	d.DrawString(text)

	return out
}

// SaveImage encodes img as lossy JPEG at quality (0-100, per
// capture.webp_quality) into dir, creating parent directories as needed.
// Filename convention: SCREENSHOT_dd_mm_YYYY_HH_MM_SS.jpg.
//
// The original saved via PIL's quality-tunable WEBP encoder
// (composited.save(path, "WEBP", quality=WEBP_QUALITY)). The only WEBP
// library in reach here, github.com/HugoSmits86/nativewebp, is lossless-only
// (VP8L) and has no quality knob — encoding through it would silently ignore
// capture.webp_quality. image/jpeg's quality-tunable lossy encoder preserves
// the actual behavior the config knob controls; see DESIGN.md.
func SaveImage(img image.Image, dir string, at time.Time, quality int) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}
	fname := at.Format("SCREENSHOT_02_01_2006_15_04_05") + ".jpg"
	path := filepath.Join(dir, fname)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("encode image: %w", err)
	}
	return path, nil
}
