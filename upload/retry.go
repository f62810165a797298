package upload

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bitrise-io/go-chunkupload/upload/chunk"
	"github.com/bitrise-io/go-chunkupload/upload/network"
	"github.com/docker/go-units"
)

// uploadChunk runs one claimed chunk through the retry loop and records the
// outcome. A cancelled chunk is simply abandoned: Cancel already cleared the
// persisted progress and settled the session state.
func (s *Session) uploadChunk(c chunk.Chunk) {
	err := s.uploadWithRetry(c)
	if err == nil {
		s.recordCompleted(c)
		return
	}
	if errors.Is(err, context.Canceled) {
		s.logger.Debugf("Chunk %d/%d abandoned: %v", c.Index+1, s.totalChunks, err)
		return
	}
	s.recordFailed(c, err)
}

// uploadWithRetry attempts a chunk up to RetryTimes+1 times, retrying
// immediately on failure. Fatal rejections consume the retry budget like
// transient failures do; only cancellation aborts the loop early. The
// returned error carries the attempt count.
func (s *Session) uploadWithRetry(c chunk.Chunk) error {
	attempts := s.cfg.RetryTimes + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := s.ctx.Err(); err != nil {
			return fmt.Errorf("chunk %d upload cancelled: %w", c.Index+1, err)
		}

		s.logger.Debugf("Uploading chunk %d/%d (attempt %d/%d) [finished=%d] [avg=%v]",
			c.Index+1, s.totalChunks, attempt, attempts,
			s.stats.FinishedCount(), s.stats.Average().Round(time.Millisecond))

		body, err := s.source.Reader(c)
		if err != nil {
			return fmt.Errorf("read chunk %d: %w", c.Index+1, err)
		}

		start := time.Now()
		err = s.transmitter.Transmit(s.ctx, c, body, s.metadata())
		if err == nil {
			s.stats.Update(time.Since(start))
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("chunk %d upload cancelled: %w", c.Index+1, context.Canceled)
		}

		lastErr = err
		s.logger.Warnf("Chunk %d attempt %d/%d failed: %v", c.Index+1, attempt, attempts, err)
	}

	if network.IsFatal(lastErr) {
		return fmt.Errorf("chunk %d rejected after %d attempts: %w", c.Index+1, attempts, lastErr)
	}
	return fmt.Errorf("chunk %d failed after %d attempts: %w", c.Index+1, attempts, lastErr)
}

// recordCompleted marks the chunk done, persists the grown completed set and
// reports progress. Persistence runs under the session mutex so concurrent
// completions cannot lose each other's entries.
func (s *Session) recordCompleted(c chunk.Chunk) {
	s.mu.Lock()
	if s.state == StateCancelled {
		// Cancel already cleared the store; don't resurrect partial progress.
		s.mu.Unlock()
		return
	}

	s.completed[c.Index] = true
	indices := make([]int, 0, len(s.completed))
	for index := range s.completed {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	if err := s.store.Save(s.key, indices); err != nil {
		s.logger.Warnf("Persist progress of chunk %d: %v", c.Index+1, err)
	}

	done := len(s.completed)
	percent := float64(done) / float64(s.totalChunks) * 100
	onProgress := s.cfg.OnProgress
	s.mu.Unlock()

	s.logger.Debugf("Chunk %d/%d done (%s), %.1f%%",
		c.Index+1, s.totalChunks, units.BytesSize(float64(c.Size)), percent)
	if onProgress != nil {
		onProgress(percent)
	}
}

// recordFailed counts a chunk whose retry budget is exhausted and surfaces
// the error through OnFail. Sibling workers keep claiming and uploading;
// callers wanting hard-stop semantics cancel the session from the callback.
func (s *Session) recordFailed(c chunk.Chunk, err error) {
	s.mu.Lock()
	s.failures++
	onFail := s.cfg.OnFail
	s.mu.Unlock()

	s.logger.Errorf("Chunk %d/%d failed: %v", c.Index+1, s.totalChunks, err)
	if onFail != nil {
		onFail(err)
	}
}
