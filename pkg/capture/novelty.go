package capture

import "image"

// Tuning parameters for the novelty predicate, sourced from config.Config's
// capture section.
type Tuning struct {
	HashSize          int
	HammingThreshold  int
	PersistenceFrames int
	AreaSmallPixels   int
	AreaFracThreshold float64
}

// Frame bundles a captured image with the window identity sampled
// alongside it.
type Frame struct {
	Image       image.Image
	WindowTitle string
	AppName     string
}

// State is the novelty predicate's mutable memory: last_hash, last_frame,
// consecutive_diff_count, last_window (spec.md §9's CaptureState), kept
// here as a plain value threaded by the caller rather than package scope.
type State struct {
	Started         bool
	LastHash        []bool
	HasLastFrame    bool
	ConsecutiveDiff int
	LastWindowTitle string
	LastAppName     string
	lastRawFrame    image.Image
}

// Evaluate applies the novelty predicate to the current frame against the
// carried State, returning whether the frame should be saved and the
// updated State. State is always refreshed (hash/frame/window) regardless
// of the save decision, matching the original's "update internal state
// either way" behavior.
func Evaluate(prev State, cur Frame, t Tuning) (shouldSave bool, next State) {
	next = prev
	curHash := DHashBits(cur.Image, t.HashSize)

	windowChanged := cur.WindowTitle != prev.LastWindowTitle || cur.AppName != prev.LastAppName

	switch {
	case !prev.Started || !prev.HasLastFrame || windowChanged:
		shouldSave = true
	default:
		dist := HammingDistance(curHash, prev.LastHash)
		switch {
		case dist >= t.HammingThreshold:
			areaFrac := ChangedAreaFraction(prev.lastRawFrame, cur.Image, t.AreaSmallPixels)
			if areaFrac >= t.AreaFracThreshold {
				shouldSave = true
			} else {
				next.ConsecutiveDiff++
			}
		case dist > t.HammingThreshold/2:
			areaFrac := ChangedAreaFraction(prev.lastRawFrame, cur.Image, t.AreaSmallPixels)
			if areaFrac >= t.AreaFracThreshold {
				next.ConsecutiveDiff++
			} else {
				next.ConsecutiveDiff = 0
			}
		default:
			next.ConsecutiveDiff = 0
		}

		if next.ConsecutiveDiff >= t.PersistenceFrames {
			shouldSave = true
		}
	}

	if shouldSave {
		next.ConsecutiveDiff = 0
	}

	next.Started = true
	next.HasLastFrame = true
	next.LastHash = curHash
	next.lastRawFrame = cur.Image
	next.LastWindowTitle = cur.WindowTitle
	next.LastAppName = cur.AppName

	return shouldSave, next
}
