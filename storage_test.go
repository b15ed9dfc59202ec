package main

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	store := &FileStore{Root: t.TempDir(), PublicURL: "http://localhost:8344"}

	t.Run("write returns public address and read round-trips", func(t *testing.T) {
		addr, err := store.Write("abc.jpg", []byte("blob-bytes"), "image/jpeg")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8344/files/abc.jpg", addr)

		data, err := store.Read(addr)
		require.NoError(t, err)
		assert.Equal(t, []byte("blob-bytes"), data)
	})

	t.Run("read of unknown address fails", func(t *testing.T) {
		_, err := store.Read("http://localhost:8344/files/missing.jpg")
		assert.Error(t, err)
	})
}

func TestStorageKey(t *testing.T) {
	keyRe := regexp.MustCompile(`^[0-9a-f-]{36}\.jpg$`)

	t.Run("key combines unique id with original extension", func(t *testing.T) {
		key := storageKey("picture.jpg")
		assert.Regexp(t, keyRe, key)
	})

	t.Run("keys are unique", func(t *testing.T) {
		assert.NotEqual(t, storageKey("a.png"), storageKey("a.png"))
	})

	t.Run("extension-less name yields bare id", func(t *testing.T) {
		key := storageKey("picture")
		assert.NotContains(t, key, ".")
	})
}
