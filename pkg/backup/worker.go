// Package backup is the periodic mirror-and-prune worker: it copies
// completed images, detailed videos, and summary videos from the local
// working tree to the backup root, syncs the catalog to its archive
// counterpart, and evicts local artifacts once retention has elapsed and a
// backup copy is confirmed present. Grounded on
// _examples/original_source/app/workers/backup/worker.py.
package backup

import (
	"context"
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"time"

	"recall/pkg/catalog"
	"recall/pkg/config"
	"recall/pkg/lock"
)

// Worker runs the mirror/sync/prune cycle on a fixed interval.
type Worker struct {
	cfg           *config.Config
	primaryDB     *sql.DB
	archiveDB     *sql.DB
	archiveDBPath string
}

// New constructs a backup Worker. archiveDB/archiveDBPath are both needed:
// the former for reading/advancing archive_meta, the latter because
// catalog's sync/prune helpers ATTACH/DETACH the archive file per pass.
func New(cfg *config.Config, primaryDB, archiveDB *sql.DB, archiveDBPath string) *Worker {
	return &Worker{cfg: cfg, primaryDB: primaryDB, archiveDB: archiveDB, archiveDBPath: archiveDBPath}
}

// Run blocks, executing one pass immediately and then one pass per
// BackupFrequency, until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	log.Println("[backup] started")
	w.runPass()
	ticker := time.NewTicker(w.cfg.BackupFrequency())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("[backup] stopped")
			return
		case <-ticker.C:
			w.runPass()
		}
	}
}

// RunOnce executes a single mirror/sync/prune pass immediately, independent
// of the ticker in Run. Used by the admin-triggered out-of-cycle backup
// endpoint.
func (w *Worker) RunOnce() {
	w.runPass()
}

func (w *Worker) runPass() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[backup] pass panicked: %v", r)
		}
	}()

	now := time.Now()
	today := now.Format("2006-01-02")
	currentMonth := today[:7]

	w.mirrorImages()
	w.mirrorDetailed(today)
	w.mirrorSummary(today, currentMonth)

	if err := catalog.SyncToArchive(w.primaryDB, w.archiveDB, w.archiveDBPath, now.UnixMilli()); err != nil {
		log.Printf("[backup] db sync to archive failed: %v", err)
	}

	time.Sleep(250 * time.Millisecond)
	cutoff := w.cfg.RetentionCutoff(now)
	if err := catalog.ArchiveAndPrune(w.primaryDB, w.archiveDBPath, cutoff); err != nil {
		log.Printf("[backup] archive-and-prune failed: %v", err)
	}

	w.evictExpired(cutoff)
	lock.CleanupStale(w.cfg.ImagesDir, w.cfg.LockStaleDuration())
}

// mirrorImages copies each day's unlocked session folders into the backup
// tree. A session with a live lock file is still being written and is
// skipped for this pass.
func (w *Worker) mirrorImages() {
	days, err := os.ReadDir(w.cfg.ImagesDir)
	if err != nil {
		return
	}
	for _, day := range days {
		if !day.IsDir() {
			continue
		}
		srcDay := filepath.Join(w.cfg.ImagesDir, day.Name())
		dstDay := filepath.Join(w.cfg.BackupImagesDir, day.Name())
		os.MkdirAll(dstDay, 0o755)

		sessions, err := os.ReadDir(srcDay)
		if err != nil {
			continue
		}
		for _, session := range sessions {
			if !session.IsDir() {
				continue
			}
			srcSession := filepath.Join(srcDay, session.Name())
			if lock.Exists(srcSession) && !lock.IsStale(srcSession, w.cfg.LockStaleDuration()) {
				continue
			}
			dstSession := filepath.Join(dstDay, session.Name())
			mirrorDir(srcSession, dstSession)
		}
	}
}

// mirrorDetailed copies whole day directories for days strictly before
// today; today's folder is still being written by the video assembler.
func (w *Worker) mirrorDetailed(today string) {
	days, err := os.ReadDir(w.cfg.DetailedDir)
	if err != nil {
		return
	}
	for _, day := range days {
		if !day.IsDir() || day.Name() >= today {
			continue
		}
		src := filepath.Join(w.cfg.DetailedDir, day.Name())
		dst := filepath.Join(w.cfg.BackupDetailedDir, day.Name())
		mirrorDir(src, dst)
	}
}

// mirrorSummary copies past months wholesale and, for the current month,
// only the summary files whose day prefix is strictly before today.
func (w *Worker) mirrorSummary(today, currentMonth string) {
	months, err := os.ReadDir(w.cfg.SummaryDir)
	if err != nil {
		return
	}
	for _, month := range months {
		if !month.IsDir() {
			continue
		}
		src := filepath.Join(w.cfg.SummaryDir, month.Name())
		dst := filepath.Join(w.cfg.BackupSummaryDir, month.Name())

		if month.Name() < currentMonth {
			mirrorDir(src, dst)
			continue
		}
		if month.Name() != currentMonth {
			continue
		}

		os.MkdirAll(dst, 0o755)
		manifest := loadManifest(dst)
		changed := false
		files, err := os.ReadDir(src)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			name := f.Name()
			const suffix = "_summary.mp4"
			if len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
				continue
			}
			dayPrefix := name[:len(name)-len(suffix)]
			if dayPrefix >= today {
				continue
			}
			ok, err := safeCopyWithRetry(filepath.Join(src, name), filepath.Join(dst, name), manifest)
			if err != nil {
				log.Printf("[backup] copy summary file failed: %s: %v", name, err)
				continue
			}
			if ok {
				changed = true
			}
		}
		if changed {
			saveManifest(dst, manifest)
		}
	}
}

// evictExpired removes local artifacts older than cutoff, but only where the
// matching backup day/month folder carries a backup manifest
// (remoteHasContent).
func (w *Worker) evictExpired(cutoff time.Time) {
	cutoffDay := cutoff.Format("2006-01-02")
	cutoffMonth := cutoffDay[:7]

	if days, err := os.ReadDir(w.cfg.ImagesDir); err == nil {
		for _, day := range days {
			if !day.IsDir() || day.Name() >= cutoffDay {
				continue
			}
			remote := filepath.Join(w.cfg.BackupImagesDir, day.Name())
			if remoteHasContent(remote) {
				os.RemoveAll(filepath.Join(w.cfg.ImagesDir, day.Name()))
			}
		}
	}

	if days, err := os.ReadDir(w.cfg.DetailedDir); err == nil {
		for _, day := range days {
			if !day.IsDir() || day.Name() >= cutoffDay {
				continue
			}
			remote := filepath.Join(w.cfg.BackupDetailedDir, day.Name())
			if remoteHasContent(remote) {
				os.RemoveAll(filepath.Join(w.cfg.DetailedDir, day.Name()))
			}
		}
	}

	if months, err := os.ReadDir(w.cfg.SummaryDir); err == nil {
		for _, month := range months {
			if !month.IsDir() || month.Name() >= cutoffMonth {
				continue
			}
			remote := filepath.Join(w.cfg.BackupSummaryDir, month.Name())
			if remoteHasContent(remote) {
				os.RemoveAll(filepath.Join(w.cfg.SummaryDir, month.Name()))
			}
		}
	}
}
