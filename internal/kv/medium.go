// Package kv implements the local key-value media behind the record store.
//
// A Medium stores opaque values under string keys. Values are written whole;
// there are no partial updates and no cross-key transactions.
package kv

import (
	"errors"
	"fmt"
	"strings"
)

// Medium is a synchronous key-value store with one logical namespace per key.
type Medium interface {
	// Get returns the value stored under key. ok is false when the key is
	// absent; err reports a medium failure.
	Get(key string) (value []byte, ok bool, err error)
	Set(key string, value []byte) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
	Keys() ([]string, error)
	Close() error
}

// ErrInvalidKey is returned for keys that cannot be stored.
var ErrInvalidKey = errors.New("invalid key")

// validateKey rejects empty keys and keys that would escape a directory.
func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
