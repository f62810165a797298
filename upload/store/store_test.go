package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	return map[string]Store{
		"in-memory": NewInMemory(),
		"file":      fileStore,
	}
}

func TestStore_LoadMissingKey(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			indices, err := s.Load("no-such-key")
			require.NoError(t, err)
			assert.Empty(t, indices)
		})
	}
}

func TestStore_SaveLoadClear(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Save("key-a", []int{0, 2, 5}))
			require.NoError(t, s.Save("key-b", []int{1}))

			indices, err := s.Load("key-a")
			require.NoError(t, err)
			assert.Equal(t, []int{0, 2, 5}, indices)

			// Save is a full overwrite
			require.NoError(t, s.Save("key-a", []int{0, 1, 2, 5}))
			indices, err = s.Load("key-a")
			require.NoError(t, err)
			assert.Equal(t, []int{0, 1, 2, 5}, indices)

			require.NoError(t, s.Clear("key-a"))
			indices, err = s.Load("key-a")
			require.NoError(t, err)
			assert.Empty(t, indices)

			// Other keys are untouched
			indices, err = s.Load("key-b")
			require.NoError(t, err)
			assert.Equal(t, []int{1}, indices)

			// Clearing an absent key is fine
			assert.NoError(t, s.Clear("key-a"))
		})
	}
}

func TestStore_ConcurrentKeys(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					key := "key-" + string(rune('a'+i))
					for j := 0; j < 20; j++ {
						if err := s.Save(key, []int{i, j}); err != nil {
							t.Errorf("Save(%s): %v", key, err)
							return
						}
					}
				}(i)
			}
			wg.Wait()

			for i := 0; i < 8; i++ {
				key := "key-" + string(rune('a'+i))
				indices, err := s.Load(key)
				require.NoError(t, err)
				assert.Equal(t, []int{i, 19}, indices)
			}
		})
	}
}

func TestInMemory_LoadReturnsCopy(t *testing.T) {
	s := NewInMemory()
	require.NoError(t, s.Save("key", []int{0, 1}))

	indices, err := s.Load("key")
	require.NoError(t, err)
	indices[0] = 42

	reloaded, err := s.Load("key")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, reloaded)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	first, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.Save("key", []int{3, 4}))

	second, err := NewFileStore(dir)
	require.NoError(t, err)
	indices, err := second.Load("key")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, indices)
}

func TestFileStore_CorruptRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "key.json"), []byte("not json"), 0644))

	_, err = s.Load("key")
	assert.Error(t, err)
}
