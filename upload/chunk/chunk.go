// Package chunk provides chunk planning and byte sources for resumable
// uploads. A source is split into fixed-size chunks that fully and disjointly
// cover it; the planner skips chunks recorded as completed by an earlier run.
package chunk

import (
	"encoding/base64"
	"fmt"
)

// DefaultSizeBytes is the chunk size used when the caller does not override it.
const DefaultSizeBytes int64 = 5 * 1024 * 1024

// Chunk is a contiguous byte range [Offset, Offset+Size) of the source.
// It is the unit of transmission.
type Chunk struct {
	Index  int
	Offset int64
	Size   int64
}

// Count returns the total number of chunks for a source of totalSize bytes:
// ceil(totalSize / chunkSize).
func Count(totalSize, chunkSize int64) int {
	if totalSize <= 0 {
		return 0
	}
	return int((totalSize + chunkSize - 1) / chunkSize)
}

// Plan computes the ascending sequence of chunks that still need uploading.
// Indices present in completed are excluded from the plan but still count
// toward the chunk total. The plan together with the completed chunks
// partitions [0, totalSize) exactly.
func Plan(totalSize, chunkSize int64, completed map[int]bool) []Chunk {
	count := Count(totalSize, chunkSize)
	chunks := make([]Chunk, 0, count)
	for i := 0; i < count; i++ {
		if completed[i] {
			continue
		}
		offset := int64(i) * chunkSize
		size := chunkSize
		if offset+size > totalSize {
			size = totalSize - offset
		}
		chunks = append(chunks, Chunk{Index: i, Offset: offset, Size: size})
	}
	return chunks
}

// SessionKey derives the progress store key from the file identity. The same
// name and size always produce the same key, so an interrupted upload of the
// same logical file finds its persisted progress. The encoding is URL- and
// filename-safe, stores can use the key directly as a path segment.
func SessionKey(name string, size int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf("%s-%d", name, size)))
}
