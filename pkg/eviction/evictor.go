// Package eviction keeps the storage tree under its size budget by
// tombstoning the oldest active items and deleting their files.
package eviction

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"sharetok/pkg/logger"
	"sharetok/pkg/metrics"
	"sharetok/pkg/storage"
	"sharetok/pkg/store"
)

// ItemStore is the part of the metadata store the evictor writes to
type ItemStore interface {
	OldestActive(ctx context.Context) (*store.Item, error)
	Tombstone(ctx context.Context, id uint) error
}

// Report summarises one sweep
type Report struct {
	Evicted    []string
	FreedBytes int64
	// FinalBytes is the storage size when the sweep stopped
	FinalBytes int64
	// Exhausted is set when the sweep ran out of active items while still over budget
	Exhausted bool
	// Skipped is set when another sweep was already running
	Skipped bool
	// Unremoved lists evicted items whose files could not all be deleted
	Unremoved []string
}

// Evictor enforces a soft cap on the storage root
type Evictor struct {
	items    ItemStore
	storage  *storage.Manager
	maxBytes int64
	metrics  *metrics.Metrics
	logger   logger.Logger

	mu sync.Mutex
}

func New(items ItemStore, fs *storage.Manager, maxBytes int64, m *metrics.Metrics, log logger.Logger) *Evictor {
	if m == nil {
		m = metrics.Nop()
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Evictor{items: items, storage: fs, maxBytes: maxBytes, metrics: m, logger: log}
}

// Sweep evicts items in creation order until the tree fits the budget.
// Concurrent calls do not queue: a caller arriving during a sweep returns
// immediately with Skipped set.
func (e *Evictor) Sweep(ctx context.Context) (Report, error) {
	if !e.mu.TryLock() {
		return Report{Skipped: true}, nil
	}
	defer e.mu.Unlock()

	var report Report
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		size, err := e.storage.DirSize()
		if err != nil {
			return report, fmt.Errorf("failed to measure storage: %w", err)
		}
		report.FinalBytes = size
		e.metrics.SetStorageBytes(size)

		if size <= e.maxBytes {
			return report, nil
		}

		item, err := e.items.OldestActive(ctx)
		if errors.Is(err, store.ErrNotFound) {
			e.logger.WarnWithFields("Storage over budget with no active item left to evict", map[string]interface{}{
				"size_bytes": size,
				"max_bytes":  e.maxBytes,
			})
			report.Exhausted = true
			return report, nil
		}
		if err != nil {
			return report, fmt.Errorf("failed to select eviction candidate: %w", err)
		}

		// an item whose files resist deletion is still tombstoned
		freed, err := e.removeFiles(item)
		report.FreedBytes += freed
		if err != nil {
			e.logger.WithError(err).WithField("content_id", item.ContentID).Warn("Failed to remove item files, evicting anyway")
			report.Unremoved = append(report.Unremoved, item.ContentID)
		}
		if err := e.items.Tombstone(ctx, item.ID); err != nil {
			return report, fmt.Errorf("failed to tombstone %s: %w", item.ContentID, err)
		}

		report.Evicted = append(report.Evicted, item.ContentID)
		e.metrics.RecordEviction(freed)
		logger.LogEviction(e.logger, item.ContentID, string(item.Kind), freed)
	}
}

func (e *Evictor) removeFiles(item *store.Item) (int64, error) {
	switch item.Kind {
	case store.KindVideo:
		return e.storage.RemoveVideo(item.ContentID)
	case store.KindCarousel:
		return e.storage.RemoveCarousel(item.ContentID)
	default:
		return 0, fmt.Errorf("unknown item kind %q", item.Kind)
	}
}
