// Package kv defines the string-valued key/value persistence backends the
// blog store and pagination controller write through.
//
// Every backend offers atomic whole-value writes: a Set either fully
// succeeds or leaves the previous value in place. None of them coordinate
// concurrent writers beyond File's process lock; a single active writer is
// assumed.
package kv

import "errors"

var (
	// ErrQuotaExceeded is returned when a write would exceed the backend's capacity.
	ErrQuotaExceeded = errors.New("kv: quota exceeded")
	// ErrLocked is returned when another process holds the backend's write lock.
	ErrLocked = errors.New("kv: locked by another process")
	// ErrClosed is returned by operations on a closed backend.
	ErrClosed = errors.New("kv: backend closed")
)

// Backend is a synchronous string-valued key/value store.
type Backend interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(key string) (value string, ok bool, err error)
	// Set replaces the value stored under key.
	Set(key, value string) error
}
