package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

// writeQueueDepth is how many write transactions may wait for the writer.
const writeQueueDepth = 256

var ErrWorkerClosed = errors.New("db worker closed")

// TxFn is one write transaction. Returning an error rolls it back.
type TxFn func(ctx context.Context, tx *sql.Tx) error

type writeReq struct {
	ctx    context.Context
	fn     TxFn
	result chan error
}

// Worker is the single SQLite writer. Every Do call runs on its goroutine,
// one transaction at a time, in submission order.
type Worker struct {
	db      *sql.DB
	queue   chan writeReq
	stopped chan struct{}

	mu     sync.RWMutex
	closed bool

	statsMu sync.Mutex
	stats   WorkerStats
}

// WorkerStats counts what the writer did with the requests it dequeued.
type WorkerStats struct {
	Committed  int
	RolledBack int
	// Skipped requests were abandoned by their caller before they started.
	Skipped int
}

func NewWorker(db *sql.DB) *Worker {
	w := &Worker{
		db:      db,
		queue:   make(chan writeReq, writeQueueDepth),
		stopped: make(chan struct{}),
	}
	go w.run()
	return w
}

// Do queues fn and waits for its outcome. A caller whose ctx ends gets
// ctx.Err(); a transaction that already started still finishes.
func (w *Worker) Do(ctx context.Context, fn TxFn) error {
	req := writeReq{ctx: ctx, fn: fn, result: make(chan error, 1)}
	if err := w.enqueue(req); err != nil {
		return err
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) enqueue(req writeReq) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return ErrWorkerClosed
	}
	select {
	case w.queue <- req:
		return nil
	case <-req.ctx.Done():
		return req.ctx.Err()
	}
}

// Close lets queued transactions finish, then stops the writer. Later Do
// calls fail with ErrWorkerClosed. Close may be called more than once.
func (w *Worker) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.stopped
}

func (w *Worker) Stats() WorkerStats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

func (w *Worker) run() {
	defer close(w.stopped)
	for req := range w.queue {
		req.result <- w.exec(req)
	}
}

func (w *Worker) exec(req writeReq) error {
	if err := req.ctx.Err(); err != nil {
		w.count(func(s *WorkerStats) { s.Skipped++ })
		return err
	}

	tx, err := w.db.BeginTx(req.ctx, nil)
	if err != nil {
		return err
	}
	if err := req.fn(req.ctx, tx); err != nil {
		_ = tx.Rollback()
		w.count(func(s *WorkerStats) { s.RolledBack++ })
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	w.count(func(s *WorkerStats) { s.Committed++ })
	return nil
}

func (w *Worker) count(f func(*WorkerStats)) {
	w.statsMu.Lock()
	f(&w.stats)
	w.statsMu.Unlock()
}
