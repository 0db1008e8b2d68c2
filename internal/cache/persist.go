package cache

import (
	"context"
	"time"

	eventbus "github.com/hanpama/normcache/internal/eventbus"
	events "github.com/hanpama/normcache/internal/events"
)

// scheduleSnapshot writes the store to the sink in the background. Writes
// are serialized; a write whose generation is already covered by a newer
// write is skipped, so an older state never replaces a newer one. Nothing
// is scheduled once Close has started.
func (c *Cache) scheduleSnapshot() {
	if c.opt.Sink == nil {
		return
	}
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	gen := c.gen.Add(1)
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		c.writeSnapshot(gen)
	}()
}

func (c *Cache) writeSnapshot(gen uint64) {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()

	driver := string(c.opt.Sink.Driver())
	if gen <= c.written {
		snapshotWrites.WithLabelValues(driver, "skipped").Inc()
		return
	}
	// Every pass up to latest committed before its generation was taken,
	// so the snapshot below covers all of them.
	latest := c.gen.Load()
	snap := c.store.Snapshot()

	ctx := context.Background()
	if c.opt.SnapshotTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opt.SnapshotTimeout)
		defer cancel()
	}
	start := time.Now()
	err := c.opt.Sink.Save(ctx, snap)
	elapsed := time.Since(start)
	eventbus.Publish(ctx, events.SnapshotFinish{Driver: driver, Generation: latest, Err: err, Duration: elapsed})
	if err != nil {
		snapshotWrites.WithLabelValues(driver, "error").Inc()
		c.log.Error("snapshot write failed", "driver", driver, "generation", latest, "error", err)
		return
	}
	c.written = latest
	snapshotWrites.WithLabelValues(driver, "ok").Inc()
	c.log.Debug("snapshot written", "driver", driver, "generation", latest, "duration", elapsed)
}
