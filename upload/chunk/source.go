package chunk

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Source provides the bytes of a single upload. Implementations must be safe
// for concurrent Reader calls because chunks upload in parallel, and Reader
// may be called multiple times for the same chunk when an attempt is retried.
type Source interface {
	// Name identifies the source; together with Size it forms the session key.
	Name() string

	// Size returns the total size in bytes. It must not change during an upload.
	Size() int64

	// Reader returns a reader over the chunk's byte range.
	Reader(c Chunk) (io.Reader, error)
}

// FileSource reads chunks from a file on disk.
type FileSource struct {
	name string
	size int64
	file *os.File
	mu   sync.Mutex
}

// OpenFile creates a Source backed by the file at path.
func OpenFile(path string) (*FileSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, fmt.Errorf("stat file: %w", err)
	}

	return &FileSource{
		name: filepath.Base(path),
		size: info.Size(),
		file: file,
	}, nil
}

// Name returns the base name of the underlying file.
func (s *FileSource) Name() string {
	return s.name
}

// Size returns the file size in bytes.
func (s *FileSource) Size() int64 {
	return s.size
}

// Reader returns a reader over the chunk's byte range. The data is read into
// memory so the returned reader stays valid across retries.
func (s *FileSource) Reader(c Chunk) (io.Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.file.Seek(c.Offset, io.SeekStart)
	if err != nil {
		return nil, fmt.Errorf("seek to position %d for chunk %d: %w", c.Offset, c.Index+1, err)
	}

	buf := make([]byte, c.Size)
	n, err := io.ReadFull(s.file, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("read chunk %d: %w", c.Index+1, err)
	}

	if int64(n) != c.Size {
		return nil, fmt.Errorf("short read for chunk %d: got %d bytes, want %d", c.Index+1, n, c.Size)
	}

	return bytes.NewReader(buf), nil
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// BytesSource serves chunks from an in-memory buffer.
type BytesSource struct {
	name string
	data []byte
}

// NewBytesSource creates a Source over data identified by name.
func NewBytesSource(name string, data []byte) *BytesSource {
	return &BytesSource{name: name, data: data}
}

// Name ...
func (s *BytesSource) Name() string {
	return s.name
}

// Size ...
func (s *BytesSource) Size() int64 {
	return int64(len(s.data))
}

// Reader returns a reader over the chunk's byte range.
func (s *BytesSource) Reader(c Chunk) (io.Reader, error) {
	if c.Offset < 0 || c.Offset+c.Size > int64(len(s.data)) {
		return nil, fmt.Errorf("chunk %d range [%d, %d) out of bounds for %d bytes",
			c.Index+1, c.Offset, c.Offset+c.Size, len(s.data))
	}
	return bytes.NewReader(s.data[c.Offset : c.Offset+c.Size]), nil
}
