// Package videoassembler is the single consumer of the capture engine's
// job queue: it builds a per-session detailed timelapse or a per-day
// summary timelapse by shelling out to ffmpeg/ffprobe. Grounded on the
// teacher's pkg/services/video.go for the shelling/log-capture idiom,
// generalized from its VP9/AV1 cron-driven regeneration to the FIFO
// job-queue model and fixed H.264 codec spec.md requires. ffmpeg writes
// straight to the job's output path; there is no temporary file or rename.
package videoassembler

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"recall/pkg/config"
	"recall/pkg/indexwriter"
	"recall/pkg/models"
)

var imageExts = map[string]bool{".webp": true, ".png": true, ".jpg": true, ".jpeg": true}

// Assembler is the single FIFO worker over AssemblyJob.
type Assembler struct {
	cfg    *config.Config
	writer *indexwriter.Writer
	jobs   chan models.AssemblyJob
	wg     sync.WaitGroup
}

// New constructs an Assembler reading from jobs.
func New(cfg *config.Config, writer *indexwriter.Writer, jobs chan models.AssemblyJob) *Assembler {
	return &Assembler{cfg: cfg, writer: writer, jobs: jobs}
}

// Start launches the consumer goroutine.
func (a *Assembler) Start(ctx context.Context) {
	a.wg.Add(1)
	go a.run(ctx)
}

// Wait blocks until the worker has drained its queue and exited.
func (a *Assembler) Wait() { a.wg.Wait() }

func (a *Assembler) run(ctx context.Context) {
	defer a.wg.Done()
	log.Println("[assembler] started")
	for {
		select {
		case <-ctx.Done():
			// drain remaining queued jobs synchronously, then exit.
			for {
				select {
				case job := <-a.jobs:
					a.process(job)
				default:
					log.Println("[assembler] stopped")
					return
				}
			}
		case job := <-a.jobs:
			a.process(job)
		}
	}
}

func (a *Assembler) process(job models.AssemblyJob) {
	switch job.Kind {
	case models.DetailedJobKind:
		a.processDetailed(job.Detailed)
	case models.SummaryJobKind:
		a.processSummary(job.Summary)
	default:
		log.Printf("[assembler] unknown job kind: %v", job.Kind)
	}
}

func (a *Assembler) processDetailed(j models.DetailedJob) {
	log.Printf("[assembler] detailed video: %s -> %s", j.FolderPath, j.OutPath)
	if err := a.makeDetailedVideo(j.FolderPath, j.OutPath); err != nil {
		// failed job: logged, not retried; the backlog sweep re-picks it
		// because no row is written on failure.
		log.Printf("[assembler] detailed video failed for %s: %v", j.FolderPath, err)
		return
	}
	a.writer.Enqueue(
		`INSERT INTO videos (day, session, local_path, backup_path, created_ts) VALUES (?, ?, ?, ?, ?)`,
		j.Day, j.Session, j.OutPath, j.BackupPath, time.Now().UnixMilli(),
	)
}

func (a *Assembler) processSummary(j models.SummaryJob) {
	log.Printf("[assembler] summary video: day=%s -> %s", j.Day, j.OutPath)
	if err := a.makeSummaryVideo(j.Day, j.OutPath); err != nil {
		log.Printf("[assembler] summary video failed for day %s: %v", j.Day, err)
		return
	}
	a.writer.Enqueue(
		`INSERT INTO summaries (day, local_path, backup_path, created_ts) VALUES (?, ?, ?, ?)`,
		j.Day, j.OutPath, j.BackupPath, time.Now().UnixMilli(),
	)
}

func (a *Assembler) ffmpegExists() bool {
	cmd := exec.Command(a.cfg.Video.FFmpegPath, "-version")
	return cmd.Run() == nil
}

// makeDetailedVideo sorts the session's images lexicographically (their
// filenames carry a fixed-width timestamp, so lexicographic = chronological)
// and encodes them at SESSION_VIDEO_FPS, H.264/yuv420p. A single image is
// looped for one frame's duration so the output still has non-zero
// duration (spec.md §8 boundary behavior).
func (a *Assembler) makeDetailedVideo(folder, outFile string) error {
	if !a.ffmpegExists() {
		return fmt.Errorf("ffmpeg not found at %s", a.cfg.Video.FFmpegPath)
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		return fmt.Errorf("read session folder: %w", err)
	}
	var images []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			images = append(images, e.Name())
		}
	}
	if len(images) == 0 {
		return fmt.Errorf("no images in folder: %s", folder)
	}
	sort.Strings(images)

	if err := os.MkdirAll(filepath.Dir(outFile), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	fps := a.cfg.Video.FPS
	perImage := 1.0 / fps

	var cmd *exec.Cmd
	if len(images) == 1 {
		imgPath, _ := filepath.Abs(filepath.Join(folder, images[0]))
		cmd = exec.Command(a.cfg.Video.FFmpegPath,
			"-y", "-loop", "1", "-i", imgPath,
			"-t", fmt.Sprintf("%.6f", perImage),
			"-c:v", "libx264", "-pix_fmt", "yuv420p", outFile,
		)
	} else {
		pattern := filepath.Join(folder, "*.jpg")
		cmd = exec.Command(a.cfg.Video.FFmpegPath,
			"-y", "-framerate", fmt.Sprintf("%v", fps),
			"-pattern_type", "glob", "-i", pattern,
			"-c:v", "libx264", "-preset", "veryfast", "-pix_fmt", "yuv420p", outFile,
		)
	}
	return a.runLogged(cmd)
}

// makeSummaryVideo timelapses every detailed mp4 for a day into one
// summary, scaling presentation timestamps by the probed speed factor. The
// videos are joined in lexicographic order through a temporary ffmpeg
// concat list, which is removed on return.
func (a *Assembler) makeSummaryVideo(day, outFile string) error {
	if !a.ffmpegExists() {
		return fmt.Errorf("ffmpeg not found at %s", a.cfg.Video.FFmpegPath)
	}

	dayDir := filepath.Join(a.cfg.DetailedDir, day)
	entries, err := os.ReadDir(dayDir)
	if err != nil {
		return fmt.Errorf("read detailed day dir: %w", err)
	}
	var mp4s []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".mp4") {
			mp4s = append(mp4s, e.Name())
		}
	}
	if len(mp4s) == 0 {
		return fmt.Errorf("no detailed videos found for day: %s", day)
	}
	sort.Strings(mp4s)

	detailedFPS := a.probeFrameRate(filepath.Join(dayDir, mp4s[0]))
	if detailedFPS <= 0 {
		detailedFPS = a.cfg.Video.FPS
	}

	summaryFPS := a.cfg.Video.SummaryVideoFPS
	speedFactor := summaryFPS / detailedFPS
	if speedFactor < 1.0 {
		speedFactor = 1.0
	}

	if err := os.MkdirAll(filepath.Dir(outFile), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	listFile, err := os.CreateTemp("", "recall-concat-*.txt")
	if err != nil {
		return fmt.Errorf("create concat list: %w", err)
	}
	defer os.Remove(listFile.Name())
	for _, name := range mp4s {
		abs, _ := filepath.Abs(filepath.Join(dayDir, name))
		fmt.Fprintf(listFile, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := listFile.Close(); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}

	cmd := exec.Command(a.cfg.Video.FFmpegPath,
		"-y", "-f", "concat", "-safe", "0", "-i", listFile.Name(),
		"-filter:v", fmt.Sprintf("setpts=PTS/%f", speedFactor),
		"-r", fmt.Sprintf("%d", int(summaryFPS)),
		"-an", outFile,
	)
	return a.runLogged(cmd)
}

// probeFrameRate shells out to ffprobe for avg_frame_rate, parsed as
// either "num/den" or a bare float. Falls back to 0 on any failure; the
// caller substitutes SESSION_VIDEO_FPS.
func (a *Assembler) probeFrameRate(path string) float64 {
	cmd := exec.Command(a.cfg.Video.FFprobePath,
		"-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=avg_frame_rate",
		"-of", "default=noprint_wrappers=1:nokey=1", path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0
	}
	return parseFrac(strings.TrimSpace(string(out)))
}

func parseFrac(s string) float64 {
	if strings.Contains(s, "/") {
		parts := strings.SplitN(s, "/", 2)
		n, errN := strconv.ParseFloat(parts[0], 64)
		d, errD := strconv.ParseFloat(parts[1], 64)
		if errN != nil || errD != nil || d == 0 {
			return 0
		}
		return n / d
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func (a *Assembler) runLogged(cmd *exec.Cmd) error {
	var stderr bytes.Buffer
	cmd.Stdout = nil
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", cmd.Path, err, stderr.String())
	}
	return nil
}
