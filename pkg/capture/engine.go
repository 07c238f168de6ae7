package capture

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"recall/pkg/config"
	"recall/pkg/indexwriter"
	"recall/pkg/lock"
	"recall/pkg/models"
	"recall/pkg/paths"
	"recall/pkg/util"
)

// Engine is the capture control loop: one goroutine per spec.md §5,
// threading a single State value rather than placing it at package scope
// (spec.md §9).
type Engine struct {
	cfg     *config.Config
	writer  *indexwriter.Writer
	jobs    chan<- models.AssemblyJob
	grabber ScreenGrabber
	fg      ForegroundTracker
	idle    IdleProbe

	// backlogFn re-enqueues stuck sessions/days; wired by cmd/recall,
	// which owns the catalog handle this query needs. Optional: a nil
	// func disables the sweep.
	backlogFn func(currentDay, currentSession string)

	wg sync.WaitGroup
}

// New constructs a capture Engine. jobs is the Video Assembler's inbound
// queue; writer is the Index Writer this engine enqueues rows onto.
func New(cfg *config.Config, writer *indexwriter.Writer, jobs chan<- models.AssemblyJob, grabber ScreenGrabber, fg ForegroundTracker, idle IdleProbe) *Engine {
	return &Engine{cfg: cfg, writer: writer, jobs: jobs, grabber: grabber, fg: fg, idle: idle}
}

// SetBacklogFunc wires the backlog-sweep callback (pending detailed
// sessions and pending summary days, re-enqueued onto the same job
// channel), invoked at startup and on the idle-gated 5-minute sweep.
func (e *Engine) SetBacklogFunc(fn func(currentDay, currentSession string)) {
	e.backlogFn = fn
}

// Start launches the capture loop in its own goroutine.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go e.run(ctx)
}

// Wait blocks until the capture loop has exited.
func (e *Engine) Wait() { e.wg.Wait() }

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	lock.CleanupStale(e.cfg.ImagesDir, e.cfg.LockStaleDuration())

	now := time.Now()
	currentDay := paths.DayOf(now)
	dayImagesDir := filepath.Join(e.cfg.ImagesDir, currentDay)
	os.MkdirAll(dayImagesDir, 0o755)

	sessionLabel := paths.NewSessionLabel(now, e.cfg.Session.Minutes)
	sessionDir := paths.SessionDir(e.cfg.ImagesDir, currentDay, sessionLabel)
	os.MkdirAll(sessionDir, 0o755)
	if err := lock.Create(sessionDir); err != nil {
		log.Printf("[capture] failed to create session lock: %v", err)
	}

	e.processBacklog(currentDay, sessionLabel)

	var state State
	sessionStart := time.Now()
	lastBacklogSweep := time.Now()

	tuning := Tuning{
		HashSize:          e.cfg.Capture.HashSize,
		HammingThreshold:  e.cfg.Capture.HammingThreshold,
		PersistenceFrames: e.cfg.Capture.PersistenceFrames,
		AreaSmallPixels:   e.cfg.Capture.AreaSmallPixels,
		AreaFracThreshold: e.cfg.Capture.AreaFracThreshold,
	}

	log.Println("[capture] started")
	ticker := time.NewTicker(time.Duration(e.cfg.Capture.IntervalSeconds * float64(time.Second)))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[capture] stopped")
			return
		case <-ticker.C:
		}

		today := paths.DayOf(time.Now())
		if today != currentDay {
			e.enqueueDayRollover(currentDay)
			currentDay = today
			dayImagesDir = filepath.Join(e.cfg.ImagesDir, currentDay)
			os.MkdirAll(dayImagesDir, 0o755)
		}

		if err := e.tick(&state, sessionDir, currentDay, sessionLabel, tuning); err != nil {
			log.Printf("[capture] tick failed: %v", err)
		}

		if time.Since(sessionStart) >= e.cfg.SessionDuration() {
			e.closeSession(currentDay, sessionLabel, sessionDir)

			sessionStart = time.Now()
			sessionLabel = paths.NewSessionLabel(sessionStart, e.cfg.Session.Minutes)
			sessionDir = paths.SessionDir(e.cfg.ImagesDir, currentDay, sessionLabel)
			os.MkdirAll(sessionDir, 0o755)
			if err := lock.Create(sessionDir); err != nil {
				log.Printf("[capture] failed to create session lock: %v", err)
			}
		}

		if time.Since(lastBacklogSweep) >= 5*time.Minute {
			if e.idle.IdleSeconds() >= float64(e.cfg.Session.IdleThreshold) {
				e.processBacklog(currentDay, sessionLabel)
			}
			lastBacklogSweep = time.Now()
		}
	}
}

// tick performs one capture sample: grab, evaluate novelty, persist+enqueue
// on save. A grab/encode failure is logged and leaves state untouched so
// the next tick retries cleanly (spec.md §4.1 failure semantics).
func (e *Engine) tick(state *State, sessionDir, day, session string, tuning Tuning) error {
	img, err := e.grabber.Grab()
	if err != nil {
		return err
	}
	title, app := e.fg.ForegroundWindow()
	frame := Frame{Image: img, WindowTitle: title, AppName: app}

	save, next := Evaluate(*state, frame, tuning)
	if !save {
		*state = next
		return nil
	}

	now := time.Now()
	stamped := Stamp(img, app, title, now)
	localPath, err := SaveImage(stamped, sessionDir, now, e.cfg.Capture.WebPQuality)
	if err != nil {
		// A failed image write does not produce an index row.
		return err
	}
	*state = next

	backupPath := paths.ToBackupEquivalent(localPath, e.cfg.ImagesDir, e.cfg.BackupImagesDir)
	e.writer.Enqueue(
		`INSERT INTO images (day, session, local_path, backup_path, window_title, app_name, created_ts, processed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		day, session, localPath, backupPath, title, app, now.UnixMilli(),
	)
	return nil
}

func (e *Engine) closeSession(day, session, sessionDir string) {
	dayDir := paths.DetailedDayDir(e.cfg.DetailedDir, day)
	os.MkdirAll(dayDir, 0o755)
	outFile := filepath.Join(dayDir, day+"_"+session+".mp4")
	if util.FileExists(outFile) {
		// already produced by an earlier pass; skip re-enqueue
	} else {
		backupOut := paths.ToBackupEquivalent(outFile, e.cfg.DetailedDir, e.cfg.BackupDetailedDir)
		e.enqueueDetailed(day, session, sessionDir, outFile, backupOut)
	}
	if err := lock.Remove(sessionDir); err != nil {
		log.Printf("[capture] failed to release session lock: %v", err)
	}
}

func (e *Engine) enqueueDayRollover(day string) {
	summaryDir := paths.SummaryMonthDir(e.cfg.SummaryDir, day)
	os.MkdirAll(summaryDir, 0o755)
	summaryFile := filepath.Join(summaryDir, day+"_summary.mp4")
	if util.FileExists(summaryFile) {
		return
	}
	backupSummary := paths.ToBackupEquivalent(summaryFile, e.cfg.SummaryDir, e.cfg.BackupSummaryDir)
	e.enqueueSummary(day, summaryFile, backupSummary)
}

func (e *Engine) enqueueDetailed(day, session, folder, out, backupOut string) {
	e.jobs <- models.AssemblyJob{
		Kind: models.DetailedJobKind,
		Detailed: models.DetailedJob{
			Day: day, Session: session, FolderPath: folder, OutPath: out, BackupPath: backupOut,
		},
	}
}

func (e *Engine) enqueueSummary(day, out, backupOut string) {
	e.jobs <- models.AssemblyJob{
		Kind: models.SummaryJobKind,
		Summary: models.SummaryJob{
			Day: day, OutPath: out, BackupPath: backupOut,
		},
	}
}

// processBacklog delegates to the wired callback, if any. spec.md §9 notes
// the original calls this twice at startup, probably unintentionally —
// this implementation calls it once, at startup, and again on each
// idle-gated sweep.
func (e *Engine) processBacklog(currentDay, currentSession string) {
	if e.backlogFn == nil {
		return
	}
	e.backlogFn(currentDay, currentSession)
}
