package upload

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bitrise-io/go-chunkupload/upload/chunk"
	"github.com/bitrise-io/go-chunkupload/upload/network"
)

// fakeTransmitter is a scriptable in-memory Transmitter.
type fakeTransmitter struct {
	// failFirst makes the first N attempts of a chunk index fail with a
	// transient error.
	failFirst map[int]int
	// err makes every attempt fail with this error.
	err error
	// delay is slept on every attempt, to keep chunks in flight long enough
	// for concurrency assertions.
	delay time.Duration
	// blockUntilCancel makes attempts hang until the context is cancelled.
	blockUntilCancel bool
	// started receives the chunk index at the beginning of every attempt.
	started chan int
	// release gates every attempt; each attempt consumes one token.
	release chan struct{}

	mu          sync.Mutex
	attempts    map[int]int
	transmitted []int
	inFlight    int
	maxInFlight int
}

func (f *fakeTransmitter) Transmit(ctx context.Context, c chunk.Chunk, body io.Reader, meta network.Metadata) error {
	f.mu.Lock()
	if f.attempts == nil {
		f.attempts = map[int]int{}
	}
	f.attempts[c.Index]++
	attempt := f.attempts[c.Index]
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.started != nil {
		f.started <- c.Index
	}

	if f.blockUntilCancel {
		<-ctx.Done()
		return fmt.Errorf("transmit chunk %d: %w", c.Index+1, ctx.Err())
	}

	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return fmt.Errorf("transmit chunk %d: %w", c.Index+1, ctx.Err())
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return fmt.Errorf("transmit chunk %d: %w", c.Index+1, ctx.Err())
		}
	}

	if f.err != nil {
		return f.err
	}
	if f.failFirst[c.Index] >= attempt {
		return &network.TransmitError{StatusCode: 500, Message: "flaky"}
	}

	if _, err := io.Copy(io.Discard, body); err != nil {
		return fmt.Errorf("read chunk %d body: %w", c.Index+1, err)
	}

	f.mu.Lock()
	f.transmitted = append(f.transmitted, c.Index)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransmitter) attemptCount(index int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[index]
}

func (f *fakeTransmitter) transmittedIndices() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	indices := make([]int, len(f.transmitted))
	copy(indices, f.transmitted)
	return indices
}

func (f *fakeTransmitter) peakInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// callbackRecorder collects session callback invocations for assertions.
type callbackRecorder struct {
	succeeded chan struct{}
	failed    chan error

	mu       sync.Mutex
	percents []float64
}

func newCallbackRecorder() *callbackRecorder {
	return &callbackRecorder{
		succeeded: make(chan struct{}, 1),
		failed:    make(chan error, 16),
	}
}

func (r *callbackRecorder) apply(cfg *Config) {
	cfg.OnProgress = func(percent float64) {
		r.mu.Lock()
		r.percents = append(r.percents, percent)
		r.mu.Unlock()
	}
	cfg.OnSucceed = func() {
		r.succeeded <- struct{}{}
	}
	cfg.OnFail = func(err error) {
		r.failed <- err
	}
}

func (r *callbackRecorder) lastPercent() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.percents) == 0 {
		return 0
	}
	return r.percents[len(r.percents)-1]
}

func (r *callbackRecorder) progressReports() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.percents)
}
