// Package catalog owns the primary and archive SQLite stores: schema
// bootstrap, pragmas, and the archive-sync/archive-prune protocol that
// makes local retention eviction safe.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// tableCols mirrors the original's SQL_TABLE_COLS: per-table insert/select
// column lists and the uniqueness key used by the safe-delete predicate.
type tableCols struct {
	table       string
	colsInsert  string // "(day, session, local_path, backup_path, window_title, app_name, created_ts, processed)"
	colsSelect  string // same columns, unqualified, for the SELECT side
	uniqueOn    []string
}

var images = tableCols{
	table:      "images",
	colsInsert: "(day, session, local_path, backup_path, window_title, app_name, created_ts, processed)",
	colsSelect: "day, session, local_path, backup_path, window_title, app_name, created_ts, processed",
	uniqueOn:   []string{"day", "session", "local_path"},
}

var videos = tableCols{
	table:      "videos",
	colsInsert: "(day, session, local_path, backup_path, created_ts)",
	colsSelect: "day, session, local_path, backup_path, created_ts",
	uniqueOn:   []string{"day", "session", "local_path"},
}

var summaries = tableCols{
	table:      "summaries",
	colsInsert: "(day, local_path, backup_path, created_ts)",
	colsSelect: "day, local_path, backup_path, created_ts",
	uniqueOn:   []string{"day", "local_path"},
}

var allTables = []tableCols{images, videos, summaries}

const pragmas = `
PRAGMA journal_mode=WAL;
PRAGMA synchronous=NORMAL;
PRAGMA temp_store=MEMORY;
`

// OpenPrimary opens (creating if absent) the primary catalog at dbPath,
// applies pragmas, and bootstraps the Image/Video/Summary schema plus
// indices on created_ts and day.
func OpenPrimary(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create catalog dir: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open primary catalog: %w", err)
	}
	if _, err := db.Exec(pragmas); err != nil {
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS images (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			day TEXT NOT NULL,
			session TEXT NOT NULL,
			local_path TEXT NOT NULL,
			backup_path TEXT,
			window_title TEXT,
			app_name TEXT,
			created_ts INTEGER NOT NULL,
			processed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS videos (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			day TEXT NOT NULL,
			session TEXT NOT NULL,
			local_path TEXT NOT NULL,
			backup_path TEXT,
			created_ts INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			day TEXT NOT NULL,
			local_path TEXT NOT NULL,
			backup_path TEXT,
			created_ts INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_images_created_ts ON images(created_ts)`,
		`CREATE INDEX IF NOT EXISTS idx_images_day ON images(day)`,
		`CREATE INDEX IF NOT EXISTS idx_videos_created_ts ON videos(created_ts)`,
		`CREATE INDEX IF NOT EXISTS idx_videos_day ON videos(day)`,
		`CREATE INDEX IF NOT EXISTS idx_summaries_created_ts ON summaries(created_ts)`,
		`CREATE INDEX IF NOT EXISTS idx_summaries_day ON summaries(day)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return nil, fmt.Errorf("bootstrap primary schema: %w", err)
		}
	}
	return db, nil
}

// EnsureArchiveSchema opens (creating if absent) the archive catalog at
// dbPath and ensures the same tables exist, plus the uniqueness indices
// that make archive-sync idempotent, plus archive_meta.
func EnsureArchiveSchema(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create archive catalog dir: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open archive catalog: %w", err)
	}
	if _, err := db.Exec(pragmas); err != nil {
		return nil, fmt.Errorf("apply archive pragmas: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS images (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			day TEXT NOT NULL,
			session TEXT NOT NULL,
			local_path TEXT NOT NULL,
			backup_path TEXT,
			window_title TEXT,
			app_name TEXT,
			created_ts INTEGER NOT NULL,
			processed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS videos (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			day TEXT NOT NULL,
			session TEXT NOT NULL,
			local_path TEXT NOT NULL,
			backup_path TEXT,
			created_ts INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			day TEXT NOT NULL,
			local_path TEXT NOT NULL,
			backup_path TEXT,
			created_ts INTEGER NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_images_identity ON images(day, session, local_path)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_videos_identity ON videos(day, session, local_path)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_summaries_identity ON summaries(day, local_path)`,
		`CREATE TABLE IF NOT EXISTS archive_meta (key TEXT PRIMARY KEY, value TEXT)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return nil, fmt.Errorf("bootstrap archive schema: %w", err)
		}
	}
	return db, nil
}

// GetLastArchivedTS reads archive_meta.last_archived_ts, defaulting to 0.
func GetLastArchivedTS(archiveDB *sql.DB) int64 {
	var value string
	err := archiveDB.QueryRow(`SELECT value FROM archive_meta WHERE key = 'last_archived_ts'`).Scan(&value)
	if err != nil {
		return 0
	}
	var ts int64
	fmt.Sscanf(value, "%d", &ts)
	return ts
}

// SetLastArchivedTS upserts archive_meta.last_archived_ts.
func SetLastArchivedTS(archiveDB *sql.DB, tsMS int64) error {
	_, err := archiveDB.Exec(
		`INSERT INTO archive_meta (key, value) VALUES ('last_archived_ts', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		fmt.Sprintf("%d", tsMS),
	)
	return err
}

// SyncToArchive incrementally copies primary rows with created_ts in the
// half-open window (last_archived_ts, upToMS] into the archive catalog via
// ATTACH DATABASE + INSERT OR IGNORE, then advances last_archived_ts.
// Idempotent: calling twice with the same upToMS inserts zero rows the
// second time because last_ts has already advanced past it.
func SyncToArchive(primaryDB *sql.DB, archiveDB *sql.DB, archiveDBPath string, upToMS int64) error {
	lastTS := GetLastArchivedTS(archiveDB)
	if lastTS >= upToMS {
		return nil
	}

	conn, err := primaryDB.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(context.Background(), fmt.Sprintf(`ATTACH DATABASE '%s' AS archive`, archiveDBPath)); err != nil {
		return fmt.Errorf("attach archive db: %w", err)
	}
	defer conn.ExecContext(context.Background(), `DETACH DATABASE archive`)

	for _, t := range allTables {
		tx, err := conn.BeginTx(context.Background(), nil)
		if err != nil {
			log.Printf("[catalog] begin sync tx for %s: %v", t.table, err)
			continue
		}
		q := fmt.Sprintf(
			`INSERT OR IGNORE INTO archive.%s %s
			 SELECT %s FROM %s WHERE created_ts > ? AND created_ts <= ?`,
			t.table, t.colsInsert, t.colsSelect, t.table,
		)
		if _, err := tx.Exec(q, lastTS, upToMS); err != nil {
			tx.Rollback()
			log.Printf("[catalog] sync table %s failed: %v", t.table, err)
			continue
		}
		if err := tx.Commit(); err != nil {
			log.Printf("[catalog] commit sync table %s failed: %v", t.table, err)
		}
	}

	return SetLastArchivedTS(archiveDB, upToMS)
}

// ArchiveAndPrune moves rows older than cutoff from the primary catalog
// into the archive catalog (INSERT OR IGNORE) then deletes them from the
// primary only where a matching archive row now exists (the EXISTS
// interlock). Finishes with a VACUUM of the primary store.
func ArchiveAndPrune(primaryDB *sql.DB, archiveDBPath string, cutoff time.Time) error {
	cutoffMS := cutoff.UnixMilli()

	conn, err := primaryDB.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.ExecContext(context.Background(), fmt.Sprintf(`ATTACH DATABASE '%s' AS archive`, archiveDBPath)); err != nil {
		conn.Close()
		return fmt.Errorf("attach archive db: %w", err)
	}

	for _, t := range allTables {
		tx, err := conn.BeginTx(context.Background(), nil)
		if err != nil {
			log.Printf("[catalog] begin prune tx for %s: %v", t.table, err)
			continue
		}
		insertSQL := fmt.Sprintf(
			`INSERT OR IGNORE INTO archive.%s %s
			 SELECT %s FROM %s WHERE created_ts < ?`,
			t.table, t.colsInsert, t.colsSelect, t.table,
		)
		if _, err := tx.Exec(insertSQL, cutoffMS); err != nil {
			tx.Rollback()
			log.Printf("[catalog] archive-insert table %s failed: %v", t.table, err)
			continue
		}

		deleteSQL := fmt.Sprintf(
			`DELETE FROM %s WHERE created_ts < ? AND EXISTS (
				SELECT 1 FROM archive.%s a WHERE %s
			 )`,
			t.table, t.table, existsPredicate(t),
		)
		if _, err := tx.Exec(deleteSQL, cutoffMS); err != nil {
			tx.Rollback()
			log.Printf("[catalog] prune-delete table %s failed: %v", t.table, err)
			continue
		}
		if err := tx.Commit(); err != nil {
			log.Printf("[catalog] commit prune table %s failed: %v", t.table, err)
		}
	}

	conn.ExecContext(context.Background(), `DETACH DATABASE archive`)
	conn.Close()

	if _, err := primaryDB.Exec(`VACUUM`); err != nil {
		log.Printf("[catalog] vacuum failed: %v", err)
	}
	return nil
}

func existsPredicate(t tableCols) string {
	pred := ""
	for i, col := range t.uniqueOn {
		if i > 0 {
			pred += " AND "
		}
		pred += fmt.Sprintf("a.%s = %s.%s", col, t.table, col)
	}
	return pred
}

// InsertImage appends an Image row, returning its assigned ID.
func InsertImage(db *sql.DB, day, session, localPath, backupPath, windowTitle, appName string, createdTS int64) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO images (day, session, local_path, backup_path, window_title, app_name, created_ts, processed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		day, session, localPath, backupPath, windowTitle, appName, createdTS,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertVideo appends a Video row.
func InsertVideo(db *sql.DB, day, session, localPath, backupPath string, createdTS int64) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO videos (day, session, local_path, backup_path, created_ts) VALUES (?, ?, ?, ?, ?)`,
		day, session, localPath, backupPath, createdTS,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertSummary appends a Summary row using the canonical four-column form
// (day, local_path, backup_path, created_ts) — spec.md §9 notes the
// original repository carries an ambiguous five-column variant; this form
// is the one treated as canonical.
func InsertSummary(db *sql.DB, day, localPath, backupPath string, createdTS int64) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO summaries (day, local_path, backup_path, created_ts) VALUES (?, ?, ?, ?)`,
		day, localPath, backupPath, createdTS,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// PendingSummaryDays returns distinct days present in videos but absent
// from summaries, excluding today (summaries are only built on rollover).
func PendingSummaryDays(db *sql.DB, today string) ([]string, error) {
	rows, err := db.Query(
		`SELECT DISTINCT day FROM videos
		 WHERE day != ? AND day NOT IN (SELECT day FROM summaries)
		 ORDER BY day`,
		today,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// DetailedSession identifies one session's worth of images awaiting
// assembly into a detailed video.
type DetailedSession struct {
	Day     string
	Session string
}

// PendingDetailedSessions returns distinct (day, session) pairs present in
// images but absent from videos, excluding the session currently being
// captured (it isn't closed yet, so it has no complete image set).
func PendingDetailedSessions(db *sql.DB, currentDay, currentSession string) ([]DetailedSession, error) {
	rows, err := db.Query(
		`SELECT DISTINCT i.day, i.session FROM images i
		 WHERE NOT (i.day = ? AND i.session = ?)
		 AND NOT EXISTS (
		   SELECT 1 FROM videos v WHERE v.day = i.day AND v.session = i.session
		 )
		 ORDER BY i.day, i.session`,
		currentDay, currentSession,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []DetailedSession
	for rows.Next() {
		var s DetailedSession
		if err := rows.Scan(&s.Day, &s.Session); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
