package config

import (
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration, loaded from a YAML file.
// Fields mirror the documented external config contract; derived filesystem
// paths are computed once at load time.
type Config struct {
	App struct {
		Name   string `yaml:"name"`
		AppKey string `yaml:"app_key"`
	} `yaml:"app"`

	Paths struct {
		BaseDir       string `yaml:"base_dir"`
		BackupBaseDir string `yaml:"backup_base_dir"`
	} `yaml:"paths"`

	Capture struct {
		IntervalSeconds    float64 `yaml:"interval"`
		WebPQuality        int     `yaml:"webp_quality"`
		HashSize           int     `yaml:"hash_size"`
		HammingThreshold   int     `yaml:"hamming_threshold"`
		PersistenceFrames  int     `yaml:"persistence_frames"`
		AreaSmallPixels    int     `yaml:"area_small_pxl"`
		AreaFracThreshold  float64 `yaml:"area_frac_threshold"`
	} `yaml:"capture"`

	Video struct {
		FFmpegPath      string  `yaml:"ffmpeg"`
		FFprobePath     string  `yaml:"ffprobe"`
		FPS             float64 `yaml:"fps"`
		SummaryVideoFPS float64 `yaml:"summary_video_fps"`
	} `yaml:"video"`

	Session struct {
		Minutes          int `yaml:"minutes"`
		IdleThreshold    int `yaml:"idle_threshold"`
		LockStaleMinutes int `yaml:"lock_stale_minutes"`
	} `yaml:"session"`

	LocalRetention struct {
		Days            int `yaml:"days"`
		BackupFreqHours int `yaml:"backup_freq_hrs"`
	} `yaml:"local_retention"`

	Client struct {
		Port          int `yaml:"port"`
		TimelineLimit int `yaml:"timeline_limit"`
	} `yaml:"client"`

	// Derived at load time, not read from YAML.
	ImagesDir           string `yaml:"-"`
	DetailedDir         string `yaml:"-"`
	SummaryDir          string `yaml:"-"`
	DatabasePath        string `yaml:"-"`
	BackupImagesDir     string `yaml:"-"`
	BackupDetailedDir   string `yaml:"-"`
	BackupSummaryDir    string `yaml:"-"`
	BackupDatabasePath  string `yaml:"-"`

	AdminPassword string `yaml:"-"`
}

// AppConfig is the global application configuration, populated by LoadConfig.
var AppConfig Config

// LoadConfig reads and validates the YAML configuration file at path,
// populating AppConfig. Any failure is fatal at startup, matching the
// teacher's APP_KEY validation pattern.
func LoadConfig(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("FATAL: could not read config file %s: %v", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("FATAL: could not parse config file %s: %v", path, err)
	}

	if cfg.App.AppKey == "" {
		log.Fatal("FATAL: app.app_key must be set in config")
	}
	if _, err := base64.StdEncoding.DecodeString(cfg.App.AppKey); err != nil {
		log.Fatalf("FATAL: app.app_key is not a valid base64 encoded string: %v", err)
	}
	if cfg.Paths.BaseDir == "" {
		log.Fatal("FATAL: paths.base_dir must be set in config")
	}
	if cfg.Paths.BackupBaseDir == "" {
		log.Fatal("FATAL: paths.backup_base_dir must be set in config")
	}

	applyDefaults(&cfg)

	cfg.ImagesDir = filepath.Join(cfg.Paths.BaseDir, "Assets", "Images")
	cfg.DetailedDir = filepath.Join(cfg.Paths.BaseDir, "Assets", "Timelapse", "Detailed")
	cfg.SummaryDir = filepath.Join(cfg.Paths.BaseDir, "Assets", "Timelapse", "Summary")
	cfg.DatabasePath = filepath.Join(cfg.Paths.BaseDir, "Database", cfg.App.Name+".db")

	cfg.BackupImagesDir = filepath.Join(cfg.Paths.BackupBaseDir, "Assets", "Images")
	cfg.BackupDetailedDir = filepath.Join(cfg.Paths.BackupBaseDir, "Assets", "Timelapse", "Detailed")
	cfg.BackupSummaryDir = filepath.Join(cfg.Paths.BackupBaseDir, "Assets", "Timelapse", "Summary")
	cfg.BackupDatabasePath = filepath.Join(cfg.Paths.BackupBaseDir, "Database", cfg.App.Name+".db")

	cfg.AdminPassword = getEnv("ADMIN_PASSWORD", "")

	AppConfig = cfg

	log.Printf("config loaded: app=%s base_dir=%s backup_base_dir=%s", cfg.App.Name, cfg.Paths.BaseDir, cfg.Paths.BackupBaseDir)
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "recall"
	}
	if cfg.Capture.IntervalSeconds == 0 {
		cfg.Capture.IntervalSeconds = 5
	}
	if cfg.Capture.WebPQuality == 0 {
		cfg.Capture.WebPQuality = 80
	}
	if cfg.Capture.HashSize == 0 {
		cfg.Capture.HashSize = 8
	}
	if cfg.Capture.HammingThreshold == 0 {
		cfg.Capture.HammingThreshold = 6
	}
	if cfg.Capture.PersistenceFrames == 0 {
		cfg.Capture.PersistenceFrames = 4
	}
	if cfg.Capture.AreaSmallPixels == 0 {
		cfg.Capture.AreaSmallPixels = 32
	}
	if cfg.Capture.AreaFracThreshold == 0 {
		cfg.Capture.AreaFracThreshold = 0.02
	}
	if cfg.Video.FFmpegPath == "" {
		cfg.Video.FFmpegPath = "ffmpeg"
	}
	if cfg.Video.FFprobePath == "" {
		cfg.Video.FFprobePath = "ffprobe"
	}
	if cfg.Video.FPS == 0 {
		cfg.Video.FPS = 8
	}
	if cfg.Video.SummaryVideoFPS == 0 {
		cfg.Video.SummaryVideoFPS = 30
	}
	if cfg.Session.Minutes == 0 {
		cfg.Session.Minutes = 30
	}
	if cfg.Session.IdleThreshold == 0 {
		cfg.Session.IdleThreshold = 300
	}
	if cfg.Session.LockStaleMinutes == 0 {
		cfg.Session.LockStaleMinutes = 10
	}
	if cfg.LocalRetention.Days == 0 {
		cfg.LocalRetention.Days = 7
	}
	if cfg.LocalRetention.BackupFreqHours == 0 {
		cfg.LocalRetention.BackupFreqHours = 6
	}
	if cfg.Client.Port == 0 {
		cfg.Client.Port = 8080
	}
}

// SessionDuration returns the configured session window length.
func (c *Config) SessionDuration() time.Duration {
	return time.Duration(c.Session.Minutes) * time.Minute
}

// LockStaleDuration returns the configured lock staleness horizon.
func (c *Config) LockStaleDuration() time.Duration {
	return time.Duration(c.Session.LockStaleMinutes) * time.Minute
}

// BackupFrequency returns the configured interval between backup passes.
func (c *Config) BackupFrequency() time.Duration {
	return time.Duration(c.LocalRetention.BackupFreqHours) * time.Hour
}

// RetentionCutoff returns the wall-clock instant before which artifacts are
// eligible for eviction, given the current time.
func (c *Config) RetentionCutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -c.LocalRetention.Days)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetFFmpegLogPath returns the path to the ffmpeg log file for the current day.
func GetFFmpegLogPath() string {
	today := time.Now().Format("2006-01-02")
	logFileName := fmt.Sprintf("ffmpeg_log_%s.txt", today)
	return filepath.Join(AppConfig.Paths.BaseDir, logFileName)
}
