// Package cachedstats periodically refreshes a snapshot of system and
// pipeline stats so the status endpoint never blocks on a live query.
// Adapted from the teacher's pkg/cachedstats: same RWMutex-guarded cache
// and ticker shape, sourced from pkg/stats' catalog counts instead of the
// gallery/camera-status fields it originally carried.
package cachedstats

import (
	"database/sql"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"recall/pkg/config"
	"recall/pkg/stats"
)

// CachedStats holds the cached statistics data.
type CachedStats struct {
	sync.RWMutex
	Data          gin.H
	isInitialized bool
	db            *sql.DB
}

// Cache is the global instance of the statistics cache.
var Cache = &CachedStats{
	Data: make(gin.H),
}

// SetDB wires the primary catalog handle used for pipeline counts. Must be
// called before RunUpdater.
func (cs *CachedStats) SetDB(db *sql.DB) {
	cs.Lock()
	defer cs.Unlock()
	cs.db = db
}

func getLoadingData() gin.H {
	return gin.H{
		"system_info": stats.GetSystemInfo(),
		"is_loading":  true,
	}
}

// RunUpdater starts the background process that refreshes the cache every
// 30 seconds; the first refresh runs asynchronously so it never blocks
// server startup.
func (cs *CachedStats) RunUpdater() {
	go func() {
		cs.Update()
		ticker := time.NewTicker(30 * time.Second)
		for range ticker.C {
			cs.Update()
		}
	}()
}

// Update refreshes the cached snapshot.
func (cs *CachedStats) Update() {
	today := time.Now().Format("2006-01-02")

	newData := gin.H{
		"system_info": stats.GetSystemInfo(),
		"disk_usage":  stats.GetDiskUsage(config.AppConfig.Paths.BaseDir),
		"is_loading":  false,
	}

	cs.RLock()
	db := cs.db
	cs.RUnlock()

	if db != nil {
		counts := stats.GetPipelineCounts(db, today)
		newData["total_images"] = counts.TotalImages
		newData["total_videos"] = counts.TotalVideos
		newData["total_summaries"] = counts.TotalSummaries
		newData["pending_summary_days"] = counts.PendingSummary
	}

	cs.Lock()
	defer cs.Unlock()
	cs.Data = newData
	cs.isInitialized = true
}

// GetData returns the cached snapshot, or loading placeholders if the
// first refresh hasn't completed yet.
func (cs *CachedStats) GetData() gin.H {
	cs.RLock()
	defer cs.RUnlock()

	if !cs.isInitialized {
		return getLoadingData()
	}
	return cs.Data
}
