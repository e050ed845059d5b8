// Package store delivers finished archives to a key-value blob store.
// Values are streams, so an archive is never held in memory as a whole.
//
// Keys are slash separated ("markdown/all_courses_as_md.tar.gz"). Creating
// an existing key replaces its value once the writer is closed; readers
// never see a half written value.
//
// FileSystem and S3 are the production stores. Memory is for tests.
package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	// ErrNotFound is returned by Open for keys the store does not have.
	ErrNotFound = errors.New("key not found")

	// ErrInvalidKey is returned for empty keys and keys that would escape
	// the store, such as "../x".
	ErrInvalidKey = errors.New("invalid key")
)

// Store is a stream based key-value store.
type Store interface {
	// Create returns a writer for key. The value becomes visible when the
	// writer is closed without error.
	Create(key string) (io.WriteCloser, error)
	Open(key string) (io.ReadCloser, error)
	ListPrefix(prefix string) ([]string, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}

// UploadFile copies the file at path into s under key.
func UploadFile(s Store, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := s.Create(key)
	if err != nil {
		return fmt.Errorf("creating %s: %w", key, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		abort(w, err)
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// abortCloser is implemented by writers that can discard a partial value.
type abortCloser interface {
	CloseWithError(err error) error
}

// abort discards whatever was written to w.
func abort(w io.WriteCloser, err error) {
	if a, ok := w.(abortCloser); ok {
		_ = a.CloseWithError(err)
		return
	}
	_ = w.Close()
}

func checkKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\x00") {
		return fmt.Errorf("%q: %w", key, ErrInvalidKey)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%q: %w", key, ErrInvalidKey)
		}
	}
	return nil
}
