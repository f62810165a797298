// Package network contains the chunk transmitter contract and its HTTP and
// S3 implementations. A transmitter performs exactly one delivery attempt per
// call; the upload engine owns the per-chunk retry policy.
package network

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bitrise-io/go-chunkupload/upload/chunk"
)

// Metadata accompanies every chunk so the remote endpoint can associate it
// with its upload and reassemble the file.
type Metadata struct {
	// UploadKey is the session key derived from the file identity.
	UploadKey string
	// FileName is the original file name.
	FileName string
	// TotalChunks is the chunk count of the whole upload.
	TotalChunks int
}

// Transmitter sends a single chunk to the remote endpoint. Cancelling ctx
// must abort an in-flight call, in which case the returned error wraps
// ctx.Err().
type Transmitter interface {
	Transmit(ctx context.Context, c chunk.Chunk, body io.Reader, meta Metadata) error
}

// TransmitError is the non-success outcome of one transmission attempt.
// Fatal marks an explicit rejection by the endpoint; a non-fatal error is a
// transient network or server hiccup that may clear up on retry.
type TransmitError struct {
	StatusCode int
	Message    string
	Fatal      bool
}

// Error ...
func (e *TransmitError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transmit failed with status %d: %s", e.StatusCode, e.Message)
	}
	return e.Message
}

// IsFatal reports whether err is an explicit rejection by the endpoint rather
// than a transient failure.
func IsFatal(err error) bool {
	var transmitErr *TransmitError
	return errors.As(err, &transmitErr) && transmitErr.Fatal
}
