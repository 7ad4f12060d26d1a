package storage

import "errors"

// ErrNotFound is returned when a key is absent
var ErrNotFound = errors.New("key not found")

// PutResult tells whether a put created a key or replaced its value
type PutResult int

const (
	Created PutResult = iota
	Updated
)

// Engine is the node-local key-value store
type Engine interface {
	// Put stores value under key
	Put(key, value string) (PutResult, error)
	// Get returns the value of key or ErrNotFound
	Get(key string) (string, error)
	// Delete removes key, returning ErrNotFound when it is absent
	Delete(key string) error
	// Scan calls fn for every entry until fn returns false.
	// fn may modify the engine.
	Scan(fn func(key, value string) bool) error
	// Clear removes every entry
	Clear() error
	Close() error
}
