// Package paths derives the filesystem layout shared by local and backup
// roots: images/<day>/<session>, Timelapse/Detailed/<day>, and
// Timelapse/Summary/<YYYY-MM>.
package paths

import (
	"path/filepath"
	"strings"
	"time"
)

// DetailedDayDir returns the detailed-timelapse directory for a day.
func DetailedDayDir(detailedRoot, day string) string {
	return filepath.Join(detailedRoot, day)
}

// SummaryMonthDir returns the summary-timelapse directory for a day's month.
func SummaryMonthDir(summaryRoot, day string) string {
	month := day
	if len(day) >= 7 {
		month = day[:7]
	}
	return filepath.Join(summaryRoot, month)
}

// SessionDir returns the image directory for a given day/session pair.
func SessionDir(imagesRoot, day, session string) string {
	return filepath.Join(imagesRoot, day, session)
}

// ToBackupEquivalent rewrites a local path onto the backup root by relative
// position under localRoot. If localPath isn't under localRoot, it falls
// back to joining the backup root with the file's basename.
func ToBackupEquivalent(localPath, localRoot, backupRoot string) string {
	localRoot = filepath.Clean(localRoot)
	localPath = filepath.Clean(localPath)

	rel, err := filepath.Rel(localRoot, localPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Join(backupRoot, filepath.Base(localPath))
	}
	return filepath.Join(backupRoot, rel)
}

// NewSessionLabel computes the "HHMM-HHMM" window label starting at now and
// running for the configured session length.
func NewSessionLabel(now time.Time, sessionMinutes int) string {
	start := now.Format("1504")
	end := now.Add(time.Duration(sessionMinutes) * time.Minute).Format("1504")
	return start + "-" + end
}

// DayOf returns the ISO day partition key for a time.
func DayOf(t time.Time) string {
	return t.Format("2006-01-02")
}

// MonthOf returns the YYYY-MM partition key for a day string.
func MonthOf(day string) string {
	if len(day) >= 7 {
		return day[:7]
	}
	return day
}
