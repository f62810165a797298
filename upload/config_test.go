package upload

import (
	"testing"

	"github.com/bitrise-io/go-chunkupload/upload/chunk"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ChunkSize != chunk.DefaultSizeBytes {
		t.Errorf("Default chunk size is %d, want %d", cfg.ChunkSize, chunk.DefaultSizeBytes)
	}
	if cfg.Concurrency < 1 {
		t.Errorf("Default concurrency %d is not positive", cfg.Concurrency)
	}
	if cfg.RetryTimes != 0 {
		t.Errorf("Default retry times is %d, want 0", cfg.RetryTimes)
	}
}

func TestDefaultConcurrency(t *testing.T) {
	c := DefaultConcurrency()
	if c < 2 {
		t.Errorf("Concurrency %d is below minimum 2", c)
	}
	if c > 20 {
		t.Errorf("Concurrency %d exceeds maximum 20", c)
	}
	t.Logf("Default concurrency: %d", c)
}
