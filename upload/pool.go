package upload

import (
	"github.com/bitrise-io/go-chunkupload/upload/chunk"
)

// launchPoolLocked tops the worker pool up to the configured concurrency and
// returns the number of workers the caller must spawn. It must be called with
// the session mutex held, in the same critical section as the transition to
// StateRunning, so a draining pool can never observe a running session with
// too few workers accounted for.
func (s *Session) launchPoolLocked() int {
	workers := s.cfg.Concurrency - s.active
	if workers < 0 {
		workers = 0
	}
	s.active += workers
	return workers
}

func (s *Session) spawn(workers int) {
	for i := 0; i < workers; i++ {
		go s.runWorker()
	}
}

// runWorker claims chunks from the shared cursor until the plan is exhausted
// or scheduling is suspended, then leaves the pool.
func (s *Session) runWorker() {
	for {
		c, ok := s.claim()
		if !ok {
			break
		}
		s.uploadChunk(c)
	}
	s.workerDone()
}

// claim atomically takes the next unclaimed chunk. Chunks are claimed in
// strictly ascending index order; no chunk is handed out twice.
func (s *Session) claim() (chunk.Chunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning || s.cursor >= len(s.plan) {
		return chunk.Chunk{}, false
	}
	c := s.plan[s.cursor]
	s.cursor++
	return c, true
}

// workerDone retires one worker. The last worker out settles the session:
// a drained running pool becomes Succeeded or Failed, a paused pool stays
// Paused, and a cancelled pool was already settled by Cancel.
func (s *Session) workerDone() {
	s.mu.Lock()
	s.active--
	if s.active > 0 {
		s.mu.Unlock()
		return
	}

	switch s.state {
	case StatePaused:
		done := len(s.completed)
		s.mu.Unlock()
		s.logger.Debugf("Worker pool drained while paused, %d/%d chunks done", done, s.totalChunks)
		return
	case StateCancelled:
		s.mu.Unlock()
		return
	}

	if s.failures > 0 {
		s.state = StateFailed
		failures := s.failures
		s.mu.Unlock()
		s.logger.Errorf("Upload failed: %d chunks exhausted their retry budget", failures)
		return
	}

	s.state = StateSucceeded
	onSucceed := s.cfg.OnSucceed
	s.mu.Unlock()

	s.logger.Donef("Upload finished: %d/%d chunks, %v spent transmitting",
		s.totalChunks, s.totalChunks, s.stats.TotalDuration())
	if onSucceed != nil {
		onSucceed()
	}
}
