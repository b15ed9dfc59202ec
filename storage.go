package main

// storage module provides durable blob storage with public-URL
// retrieval for uploaded images
//

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ObjectStore provides durable write/read of opaque byte streams
// under a generated key, Write returns a public retrievable address
type ObjectStore interface {
	Write(key string, data []byte, contentType string) (string, error)
	Read(address string) ([]byte, error)
}

// FileStore implements ObjectStore on top of a local directory,
// stored blobs are served back over the /files static route
type FileStore struct {
	Root      string // storage directory
	PublicURL string // public base URL of the server
}

// Write stores given data under key and returns its public address
func (s *FileStore) Write(key string, data []byte, contentType string) (string, error) {
	if err := os.MkdirAll(s.Root, 0755); err != nil {
		return "", err
	}
	fname := filepath.Join(s.Root, filepath.Base(key))
	if err := os.WriteFile(fname, data, 0644); err != nil {
		return "", err
	}
	addr := fmt.Sprintf("%s/files/%s", strings.TrimSuffix(s.PublicURL, "/"), key)
	return addr, nil
}

// Read fetches blob content for given public address
func (s *FileStore) Read(address string) ([]byte, error) {
	key := path.Base(address)
	return os.ReadFile(filepath.Join(s.Root, key))
}

// storageKey derives a unique storage key from the original file name,
// key format is {uniqueId}.{originalExtension}
func storageKey(filename string) string {
	uid := uuid.New().String()
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	if ext == "" {
		return uid
	}
	return fmt.Sprintf("%s.%s", uid, ext)
}
