package persist

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// WriteBehind coalesces player saves. The engine marks a record dirty on
// every mutation; the flush loop writes each player at most once per
// interval, always with the latest snapshot. A failed save keeps the record
// dirty so the next cycle retries it.
type WriteBehind struct {
	repo     PlayerRepository
	interval time.Duration

	mu    sync.Mutex
	dirty map[int64]*PlayerRecord
}

// NewWriteBehind builds the writer around repo.
func NewWriteBehind(repo PlayerRepository, interval time.Duration) *WriteBehind {
	return &WriteBehind{
		repo:     repo,
		interval: interval,
		dirty:    make(map[int64]*PlayerRecord),
	}
}

// MarkDirty records the latest snapshot for a player. Later marks for the
// same id replace earlier ones.
func (w *WriteBehind) MarkDirty(rec *PlayerRecord) {
	if rec.ID == 0 {
		return // unsaved guest, nothing to flush
	}
	w.mu.Lock()
	w.dirty[rec.ID] = rec
	w.mu.Unlock()
}

// DirtyCount reports how many players await a flush.
func (w *WriteBehind) DirtyCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.dirty)
}

// Run flushes on the configured interval until ctx is done, then performs a
// final flush so a clean shutdown loses nothing.
func (w *WriteBehind) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			w.FlushNow(flushCtx)
			cancel()
			return nil
		case <-ticker.C:
			w.FlushNow(ctx)
		}
	}
}

// FlushNow drains the dirty set and saves every snapshot. Failures are
// logged and the snapshot is re-marked unless a newer one arrived meanwhile.
func (w *WriteBehind) FlushNow(ctx context.Context) {
	w.mu.Lock()
	batch := w.dirty
	w.dirty = make(map[int64]*PlayerRecord)
	w.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	start := time.Now()
	failed := 0
	for id, rec := range batch {
		if err := w.repo.Save(ctx, rec); err != nil {
			failed++
			slog.Error("player save failed", "player", id, "name", rec.Name, "error", err)
			w.mu.Lock()
			if _, newer := w.dirty[id]; !newer {
				w.dirty[id] = rec
			}
			w.mu.Unlock()
		}
	}
	slog.Debug("flush complete",
		"players", len(batch), "failed", failed, "took", time.Since(start))
}
