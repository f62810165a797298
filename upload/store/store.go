// Package store persists which chunks of an upload already reached the remote
// endpoint, so an interrupted upload can resume instead of starting over.
package store

// Store is the durable record of completed chunk indices, keyed by session
// key. Save is an idempotent full overwrite of the set for a key. The upload
// engine serializes Save calls for a given key, implementations only need to
// keep distinct keys independent.
type Store interface {
	// Load returns the completed chunk indices recorded under key, or an
	// empty slice if nothing was recorded yet.
	Load(key string) ([]int, error)

	// Save overwrites the completed chunk indices recorded under key.
	Save(key string, indices []int) error

	// Clear removes the record for key. Clearing an absent key is not an error.
	Clear(key string) error
}
