// Command recall runs the full capture/assembly/backup pipeline and the
// narrow status/admin HTTP surface as one process. Adapted from the
// teacher's cmd/server/main.go wiring shape (config → database → admin
// bootstrap → background workers → server), generalized from the
// teacher's snapshot/video-generation schedulers to the capture engine,
// index writer, video assembler, and backup worker this spec builds.
package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"recall/pkg/backup"
	"recall/pkg/cachedstats"
	"recall/pkg/capture"
	"recall/pkg/catalog"
	"recall/pkg/config"
	"recall/pkg/database"
	"recall/pkg/handlers"
	"recall/pkg/indexwriter"
	"recall/pkg/lock"
	"recall/pkg/models"
	"recall/pkg/paths"
	"recall/pkg/server"
	"recall/pkg/stats"
	"recall/pkg/videoassembler"
)

func main() {
	configPath := os.Getenv("RECALL_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	config.LoadConfig(configPath)
	cfg := &config.AppConfig

	if err := os.MkdirAll(cfg.ImagesDir, 0o755); err != nil {
		log.Fatalf("failed to create images directory: %v", err)
	}
	if err := os.MkdirAll(cfg.DetailedDir, 0o755); err != nil {
		log.Fatalf("failed to create detailed timelapse directory: %v", err)
	}
	if err := os.MkdirAll(cfg.SummaryDir, 0o755); err != nil {
		log.Fatalf("failed to create summary timelapse directory: %v", err)
	}

	primaryDB, err := catalog.OpenPrimary(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("failed to open primary catalog: %v", err)
	}
	defer primaryDB.Close()

	archiveDB, err := catalog.EnsureArchiveSchema(cfg.BackupDatabasePath)
	if err != nil {
		log.Fatalf("failed to open archive catalog: %v", err)
	}
	defer archiveDB.Close()

	database.InitDB()

	adminExists, err := database.UserExists("admin")
	if err != nil {
		log.Fatalf("failed to check for admin user: %v", err)
	}
	if !adminExists {
		if cfg.AdminPassword == "" {
			log.Fatal("FATAL: ADMIN_PASSWORD environment variable must be set to create the initial admin user.")
		}
		if err := database.CreateUser("admin", cfg.AdminPassword, true); err != nil {
			log.Fatalf("failed to create initial admin user: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	writer := indexwriter.New(primaryDB, 200, 2*time.Second)
	writer.Start()

	jobs := make(chan models.AssemblyJob, 256)

	assembler := videoassembler.New(cfg, writer, jobs)
	assembler.Start(ctx)

	backend := capture.NewStubBackend(1920, 1080)
	engine := capture.New(cfg, writer, jobs, backend, backend, backend)
	engine.SetBacklogFunc(func(currentDay, currentSession string) {
		sweepBacklog(primaryDB, cfg, jobs, currentDay, currentSession)
	})
	engine.Start(ctx)

	backupWorker := backup.New(cfg, primaryDB, archiveDB, cfg.BackupDatabasePath)
	handlers.SetBackupTrigger(backupWorker)
	go backupWorker.Run(ctx)

	cachedstats.Cache.SetDB(primaryDB)
	cachedstats.Cache.RunUpdater()
	stats.StartStatsCollector()

	go func() {
		server.StartServer()
	}()

	<-ctx.Done()
	log.Println("shutting down: draining capture and assembly queues")
	engine.Wait()
	assembler.Wait()
	writer.Stop()
	log.Println("shutdown complete")
}

// sweepBacklog re-enqueues work the pipeline didn't finish across a
// restart: detailed videos for sessions whose images exist but have no
// video row yet (excluding the session currently being captured and any
// session whose folder still holds a lock file) and summary videos for days
// that have detailed videos but no summary row.
// Both checks use the catalog rather than a directory walk, matching the
// Index Writer's role as the single source of truth for what's been
// produced.
func sweepBacklog(db *sql.DB, cfg *config.Config, jobs chan<- models.AssemblyJob, currentDay, currentSession string) {
	sessions, err := catalog.PendingDetailedSessions(db, currentDay, currentSession)
	if err != nil {
		log.Printf("[backlog] pending detailed sessions query failed: %v", err)
	}
	for _, s := range sessions {
		folder := paths.SessionDir(cfg.ImagesDir, s.Day, s.Session)
		if lock.Exists(folder) {
			continue
		}
		dayDir := paths.DetailedDayDir(cfg.DetailedDir, s.Day)
		os.MkdirAll(dayDir, 0o755)
		out := filepath.Join(dayDir, s.Day+"_"+s.Session+".mp4")
		backupOut := paths.ToBackupEquivalent(out, cfg.DetailedDir, cfg.BackupDetailedDir)
		jobs <- models.AssemblyJob{
			Kind: models.DetailedJobKind,
			Detailed: models.DetailedJob{
				Day: s.Day, Session: s.Session, FolderPath: folder, OutPath: out, BackupPath: backupOut,
			},
		}
	}

	days, err := catalog.PendingSummaryDays(db, currentDay)
	if err != nil {
		log.Printf("[backlog] pending summary days query failed: %v", err)
	}
	for _, day := range days {
		summaryDir := paths.SummaryMonthDir(cfg.SummaryDir, day)
		os.MkdirAll(summaryDir, 0o755)
		out := filepath.Join(summaryDir, day+"_summary.mp4")
		backupOut := paths.ToBackupEquivalent(out, cfg.SummaryDir, cfg.BackupSummaryDir)
		jobs <- models.AssemblyJob{
			Kind: models.SummaryJobKind,
			Summary: models.SummaryJob{
				Day: day, OutPath: out, BackupPath: backupOut,
			},
		}
	}
}
