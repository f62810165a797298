// Package upload implements a resumable chunked upload engine. A file-like
// byte source is split into fixed-size chunks; a bounded pool of workers
// transmits them concurrently, each chunk with its own retry budget, and
// completed chunk indices are persisted so an interrupted upload resumes
// where it left off instead of starting over.
package upload

import (
	"context"
	"fmt"
	"sync"

	"github.com/bitrise-io/go-chunkupload/upload/chunk"
	"github.com/bitrise-io/go-chunkupload/upload/network"
	"github.com/bitrise-io/go-chunkupload/upload/store"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// State is the lifecycle phase of a Session.
type State int

const (
	// StateIdle is the phase before Start.
	StateIdle State = iota
	// StateRunning means workers are claiming and transmitting chunks.
	StateRunning
	// StatePaused means scheduling is suspended; Continue resumes it.
	StatePaused
	// StateSucceeded means every chunk was uploaded. Terminal.
	StateSucceeded
	// StateFailed means at least one chunk exhausted its retry budget. Terminal.
	StateFailed
	// StateCancelled means the session was aborted and its progress cleared. Terminal.
	StateCancelled
)

// String ...
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown (%d)", int(s))
	}
}

// Session drives one resumable upload of a single source. A session instance
// runs at most one upload: once it reaches a terminal state, a new upload of
// the same source needs a new session.
type Session struct {
	cfg         Config
	source      chunk.Source
	key         string
	totalChunks int
	transmitter network.Transmitter
	store       store.Store
	logger      log.Logger
	stats       *Stats

	mu        sync.Mutex
	state     State
	plan      []chunk.Chunk
	cursor    int          // next unclaimed position in plan
	completed map[int]bool // persisted + this run's completions
	active    int          // workers currently running
	failures  int          // chunks that exhausted their retry budget

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession validates cfg and prepares an idle session for source.
// Validation failures are reported here, before any transmission happens.
func NewSession(source chunk.Source, cfg Config) (*Session, error) {
	if source == nil {
		return nil, fmt.Errorf("source must not be nil")
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = chunk.DefaultSizeBytes
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Store == nil {
		cfg.Store = store.NewInMemory()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewLogger()
	}

	return &Session{
		cfg:         cfg,
		source:      source,
		key:         chunk.SessionKey(source.Name(), source.Size()),
		totalChunks: chunk.Count(source.Size(), cfg.ChunkSize),
		transmitter: cfg.Transmitter,
		store:       cfg.Store,
		logger:      cfg.Logger,
		stats:       NewStats(),
		state:       StateIdle,
	}, nil
}

// Key returns the session key under which progress is persisted.
func (s *Session) Key() string {
	return s.key
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress returns the completed percentage (0-100).
func (s *Session) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.totalChunks == 0 {
		if s.state == StateSucceeded {
			return 100
		}
		return 0
	}
	return float64(len(s.completed)) / float64(s.totalChunks) * 100
}

// Stats returns the session's transfer metrics.
func (s *Session) Stats() *Stats {
	return s.stats
}

// Start begins the upload. It loads persisted progress, plans the remaining
// chunks and launches the worker pool, then returns; completion is reported
// through the configured callbacks. Start is only valid on an idle session.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("start: session is %s, want %s", state, StateIdle)
	}

	indices, err := s.store.Load(s.key)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("load persisted progress: %w", err)
	}
	s.completed = make(map[int]bool, len(indices))
	for _, index := range indices {
		if index >= 0 && index < s.totalChunks {
			s.completed[index] = true
		}
	}

	s.plan = chunk.Plan(s.source.Size(), s.cfg.ChunkSize, s.completed)
	s.cursor = 0
	s.failures = 0
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.state = StateRunning
	restored := len(s.completed)
	workers := s.launchPoolLocked()
	s.mu.Unlock()

	s.logger.Debugf("Uploading %s (%s) in %d chunks of %s, %d already done",
		s.source.Name(),
		units.BytesSize(float64(s.source.Size())),
		s.totalChunks,
		units.BytesSize(float64(s.cfg.ChunkSize)),
		restored)
	s.spawn(workers)
	return nil
}

// Stop pauses scheduling. Chunks already in flight run to completion and are
// still persisted; no new chunk is claimed until Continue. Stop does not
// abort in-flight transmissions.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return fmt.Errorf("stop: session is %s, want %s", s.state, StateRunning)
	}
	s.state = StatePaused
	s.logger.Debugf("Upload paused, %d/%d chunks done", len(s.completed), s.totalChunks)
	return nil
}

// Continue resumes a paused session from the current cursor. Chunks completed
// earlier are never reattempted.
func (s *Session) Continue() error {
	s.mu.Lock()
	if s.state != StatePaused {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("continue: session is %s, want %s", state, StatePaused)
	}
	s.state = StateRunning
	workers := s.launchPoolLocked()
	s.mu.Unlock()

	s.logger.Debugf("Upload resumed, %d/%d chunks done", s.doneCount(), s.totalChunks)
	s.spawn(workers)
	return nil
}

// Cancel aborts the session from any non-terminal state. In-flight
// transmissions are cancelled through the session context and the persisted
// progress is cleared, so a later upload of the same file starts from scratch.
func (s *Session) Cancel() error {
	s.mu.Lock()
	switch s.state {
	case StateSucceeded, StateFailed, StateCancelled:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cancel: session already %s", state)
	}
	s.state = StateCancelled
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil { // nil when cancelling an idle session
		cancel()
	}
	if err := s.store.Clear(s.key); err != nil {
		return fmt.Errorf("clear persisted progress: %w", err)
	}
	s.logger.Debugf("Upload cancelled, persisted progress for %s cleared", s.source.Name())
	return nil
}

func (s *Session) doneCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed)
}

func (s *Session) metadata() network.Metadata {
	return network.Metadata{
		UploadKey:   s.key,
		FileName:    s.source.Name(),
		TotalChunks: s.totalChunks,
	}
}
