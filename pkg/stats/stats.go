// Package stats collects host system metrics (CPU/memory/OS) via gopsutil
// and catalog-derived pipeline counts, both surfaced through the status
// endpoint's cached snapshot. Adapted from the teacher's pkg/stats: the
// gopsutil collector is kept near-verbatim, the gallery/snapshot-file
// scanning is replaced with catalog row counts.
package stats

import (
	"bufio"
	"database/sql"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

var (
	osPrettyName  string
	osReleaseOnce sync.Once
)

// SystemStats holds the periodically refreshed CPU and memory usage data.
type SystemStats struct {
	mu       sync.RWMutex
	CPUUsage float64
	Memory   *mem.VirtualMemoryStat
	OS       string
	IsReady  bool
}

var currentStats = &SystemStats{
	OS:      getOSPrettyName(),
	IsReady: false,
}

// StartStatsCollector starts a goroutine to periodically fetch system stats.
func StartStatsCollector() {
	go func() {
		for {
			cpuPercent, err := cpu.Percent(time.Second, false)
			if err != nil {
				log.Printf("Error getting CPU usage: %v", err)
			}

			memInfo, err := mem.VirtualMemory()
			if err != nil {
				log.Printf("Error getting memory usage: %v", err)
			}

			currentStats.mu.Lock()
			if len(cpuPercent) > 0 {
				currentStats.CPUUsage = cpuPercent[0]
			}
			if memInfo != nil {
				currentStats.Memory = memInfo
			}
			currentStats.IsReady = true
			currentStats.mu.Unlock()

			time.Sleep(5 * time.Second)
		}
	}()
}

// GetSystemInfo returns the latest CPU/memory/OS snapshot.
var GetSystemInfo = func() gin.H {
	currentStats.mu.RLock()
	defer currentStats.mu.RUnlock()

	info := gin.H{
		"os_type":      currentStats.OS,
		"cpu_usage":    "Loading...",
		"memory_usage": "Loading...",
	}

	if currentStats.IsReady {
		info["cpu_usage"] = fmt.Sprintf("%.2f%%", currentStats.CPUUsage)
		if currentStats.Memory != nil {
			info["memory_usage"] = fmt.Sprintf("%.2f GB / %.2f GB (%.2f%%)",
				float64(currentStats.Memory.Used)/1024/1024/1024,
				float64(currentStats.Memory.Total)/1024/1024/1024,
				currentStats.Memory.UsedPercent,
			)
			info["cpu_usage_raw"] = currentStats.CPUUsage
			info["memory_usage_raw"] = currentStats.Memory.UsedPercent
		}
	}

	return info
}

// GetDiskUsage reports disk usage for the given path, used by the status
// endpoint to report remaining headroom under the base directory.
func GetDiskUsage(path string) gin.H {
	diskStat, err := disk.Usage(path)
	if err != nil {
		log.Printf("Error getting disk usage stat for %s: %v", path, err)
		return gin.H{"error": "N/A"}
	}
	return gin.H{
		"disk_total_gb":     fmt.Sprintf("%.2f GB", float64(diskStat.Total)/1024/1024/1024),
		"disk_used_gb":      fmt.Sprintf("%.2f GB", float64(diskStat.Used)/1024/1024/1024),
		"disk_used_percent": fmt.Sprintf("%.2f%%", diskStat.UsedPercent),
	}
}

// PipelineCounts summarizes the catalog's row counts, used by the status
// endpoint to report capture/assembly progress.
type PipelineCounts struct {
	TotalImages    int
	TotalVideos    int
	TotalSummaries int
	PendingSummary int
}

// GetPipelineCounts queries the primary catalog for row counts across the
// three tables plus the pending-summary-days backlog.
func GetPipelineCounts(db *sql.DB, today string) PipelineCounts {
	var c PipelineCounts
	db.QueryRow(`SELECT COUNT(*) FROM images`).Scan(&c.TotalImages)
	db.QueryRow(`SELECT COUNT(*) FROM videos`).Scan(&c.TotalVideos)
	db.QueryRow(`SELECT COUNT(*) FROM summaries`).Scan(&c.TotalSummaries)
	db.QueryRow(`SELECT COUNT(DISTINCT day) FROM videos WHERE day != ? AND day NOT IN (SELECT day FROM summaries)`, today).Scan(&c.PendingSummary)
	return c
}

// getOSPrettyName reads /etc/os-release and returns PRETTY_NAME if
// available, caching after the first call.
func getOSPrettyName() string {
	osReleaseOnce.Do(func() {
		if runtime.GOOS != "linux" {
			osPrettyName = runtime.GOOS
			return
		}
		file, err := os.Open("/etc/os-release")
		if err != nil {
			osPrettyName = "linux"
			return
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "PRETTY_NAME=") {
				osPrettyName = strings.Trim(strings.SplitN(line, "=", 2)[1], `"`)
				return
			}
		}
		osPrettyName = "linux"
	})
	return osPrettyName
}
