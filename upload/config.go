package upload

import (
	"fmt"
	"runtime"

	"github.com/bitrise-io/go-chunkupload/upload/chunk"
	"github.com/bitrise-io/go-chunkupload/upload/network"
	"github.com/bitrise-io/go-chunkupload/upload/store"
	"github.com/bitrise-io/go-utils/v2/log"
)

// Config holds configuration for an upload session.
type Config struct {
	// ChunkSize is the size of each transmission unit in bytes. The final
	// chunk may be shorter. Default: 5 MiB.
	ChunkSize int64

	// Concurrency is the number of upload workers. Must be at least 1.
	Concurrency int

	// RetryTimes is the number of extra attempts per chunk after a failed
	// one, so a chunk is attempted RetryTimes+1 times in total. Default: 0.
	RetryTimes int

	// Transmitter delivers chunks to the remote endpoint. Required.
	Transmitter network.Transmitter

	// Store persists completed chunk indices so an interrupted upload can
	// resume. If nil, an in-memory store is used and progress does not
	// survive a restart.
	Store store.Store

	// Logger is used for progress and retry traces. If nil, a default
	// logger is created.
	Logger log.Logger

	// OnProgress is invoked after every completed chunk with the overall
	// percentage (0-100). Optional.
	OnProgress func(percent float64)

	// OnFail is invoked once per chunk whose retry budget is exhausted.
	// Sibling uploads keep running; call Cancel from the callback for
	// hard-stop-on-first-failure semantics. Optional.
	OnFail func(err error)

	// OnSucceed is invoked once when every chunk has been uploaded. Optional.
	OnSucceed func()
}

// DefaultConfig returns a configuration with the default chunk size and
// concurrency. Transmitter must still be set by the caller.
func DefaultConfig() Config {
	return Config{
		ChunkSize:   chunk.DefaultSizeBytes,
		Concurrency: DefaultConcurrency(),
		RetryTimes:  0,
	}
}

// DefaultConcurrency calculates the default worker count based on CPU count.
func DefaultConcurrency() int {
	c := runtime.NumCPU() * 3

	if c > 20 {
		c = 20
	}

	if c < 2 {
		c = 2
	}

	return c
}

func (c Config) validate() error {
	if c.Transmitter == nil {
		return fmt.Errorf("transmitter must not be nil")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.RetryTimes < 0 {
		return fmt.Errorf("retry times must not be negative, got %d", c.RetryTimes)
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunk size must not be negative, got %d", c.ChunkSize)
	}
	return nil
}
