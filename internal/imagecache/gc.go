package imagecache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidAge is returned for a non-positive GC age.
var ErrInvalidAge = errors.New("imagecache: olderThan must be positive")

// GCResult summarizes one garbage collection pass.
type GCResult struct {
	Scanned    int   `json:"scanned"`
	Deleted    int   `json:"deleted"`
	Failed     int   `json:"failed"`
	FreedBytes int64 `json:"freed_bytes"`
}

// GarbageCollect deletes every indexed image created more than olderThan
// ago, object first and index entry second. Nothing expires on its own;
// this only runs when an operator asks for it.
func (c *Cache) GarbageCollect(ctx context.Context, olderThan time.Duration) (*GCResult, error) {
	if olderThan <= 0 {
		return nil, ErrInvalidAge
	}
	if c.index == nil {
		return &GCResult{}, nil
	}

	cutoff := c.now().Add(-olderThan)
	victims, err := c.index.CreatedBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("scan index: %w", err)
	}

	result := &GCResult{Scanned: len(victims)}
	for _, img := range victims {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := c.store.Delete(ctx, img.StorageKey); err != nil {
			result.Failed++
			c.logger.Warn("gc: failed to delete object", "key", img.StorageKey, "error", err)
			continue
		}
		if err := c.index.Delete(ctx, img.StorageKey); err != nil {
			result.Failed++
			c.logger.Warn("gc: failed to delete index entry", "key", img.StorageKey, "error", err)
			continue
		}
		result.Deleted++
		result.FreedBytes += img.Size
	}

	c.logger.Info("image gc finished",
		"cutoff", cutoff,
		"scanned", result.Scanned,
		"deleted", result.Deleted,
		"failed", result.Failed,
		"freed_bytes", result.FreedBytes,
	)
	return result, nil
}
