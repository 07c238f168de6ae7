package capture

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// DHashBits computes a difference-hash: grayscale-resize to
// (hashSize+1)×hashSize, compare each pixel against its left neighbour,
// producing hashSize² bits (true where the pixel is brighter than the one
// to its left).
func DHashBits(img image.Image, hashSize int) []bool {
	gray := imaging.Grayscale(img)
	small := imaging.Resize(gray, hashSize+1, hashSize, imaging.Box)

	bits := make([]bool, 0, hashSize*hashSize)
	bounds := small.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X; x++ {
			left := luminance(small.At(x-1, y))
			cur := luminance(small.At(x, y))
			bits = append(bits, cur > left)
		}
	}
	return bits
}

// HammingDistance counts differing bits between two equal-length vectors.
// A nil/length-mismatched input is treated as maximally different, matching
// the original's "return a very large distance" behavior when no previous
// hash exists.
func HammingDistance(a, b []bool) int {
	if a == nil || b == nil || len(a) != len(b) {
		return 1 << 30
	}
	dist := 0
	for i := range a {
		if a[i] != b[i] {
			dist++
		}
	}
	return dist
}

// ChangedAreaFraction downsizes both frames to small×small grayscale,
// takes the absolute luminance difference, thresholds at delta 15, and
// reports the fraction of pixels above threshold.
func ChangedAreaFraction(prev, cur image.Image, small int) float64 {
	if prev == nil || cur == nil {
		return 1.0
	}
	a := imaging.Resize(imaging.Grayscale(prev), small, small, imaging.Box)
	b := imaging.Resize(imaging.Grayscale(cur), small, small, imaging.Box)

	total := small * small
	above := 0
	for y := 0; y < small; y++ {
		for x := 0; x < small; x++ {
			la := luminance(a.At(x, y))
			lb := luminance(b.At(x, y))
			d := la - lb
			if d < 0 {
				d = -d
			}
			if d > 15 {
				above++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(above) / float64(total)
}

func luminance(c color.Color) int {
	g := color.GrayModel.Convert(c).(color.Gray)
	return int(g.Y)
}
