// Package indexwriter is the single writer against the primary catalog: a
// non-blocking enqueue feeding a batched, transactional consumer goroutine.
// Adapted from the teacher's pkg/jobs+pkg/worker poll-loop shape, but
// generalized from a persisted SQLite job table to an in-process channel —
// the durability contract spec.md asks for (lose at most one in-flight
// batch, never retry) doesn't need a table, only a queue.
package indexwriter

import (
	"database/sql"
	"log"
	"sync"
	"time"
)

// Statement is one queued catalog mutation.
type Statement struct {
	SQL    string
	Params []any
}

// Writer drains Statements in batches of BatchSize or every FlushInterval,
// whichever comes first, committing each batch in a single transaction.
type Writer struct {
	db            *sql.DB
	batchSize     int
	flushInterval time.Duration

	queue chan Statement
	done  chan struct{}
	wg    sync.WaitGroup
}

// New constructs a Writer against db. Call Start to begin consuming.
func New(db *sql.DB, batchSize int, flushInterval time.Duration) *Writer {
	if batchSize <= 0 {
		batchSize = 200
	}
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}
	return &Writer{
		db:            db,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		queue:         make(chan Statement, 4096),
		done:          make(chan struct{}),
	}
}

// Enqueue queues a statement for the next batch. Never blocks on the
// catalog or the encoder — only on the in-memory channel, which is sized
// generously against bursty producers.
func (w *Writer) Enqueue(sqlText string, params ...any) {
	w.queue <- Statement{SQL: sqlText, Params: params}
}

// Start launches the consumer goroutine.
func (w *Writer) Start() {
	w.wg.Add(1)
	go w.run()
}

// Stop signals the consumer to drain the queue synchronously in one final
// transaction and return.
func (w *Writer) Stop() {
	close(w.done)
	w.wg.Wait()
}

func (w *Writer) run() {
	defer w.wg.Done()
	log.Println("[indexwriter] started")

	timer := time.NewTimer(w.flushInterval)
	defer timer.Stop()

	var batch []Statement

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.commitBatch(batch); err != nil {
			log.Printf("[indexwriter] batch commit failed, dropping %d statements: %v", len(batch), err)
		}
		batch = nil
	}

	for {
		select {
		case <-w.done:
			// final synchronous drain
			for {
				select {
				case stmt := <-w.queue:
					batch = append(batch, stmt)
				default:
					flush()
					log.Println("[indexwriter] stopped")
					return
				}
			}
		case stmt := <-w.queue:
			batch = append(batch, stmt)
			if len(batch) >= w.batchSize {
				flush()
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(w.flushInterval)
			}
		case <-timer.C:
			flush()
			timer.Reset(w.flushInterval)
		}
	}
}

func (w *Writer) commitBatch(batch []Statement) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	for _, stmt := range batch {
		if _, err := tx.Exec(stmt.SQL, stmt.Params...); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
