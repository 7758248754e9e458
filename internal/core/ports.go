package core

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by a KeyValueStore when a key has no live value
var ErrKeyNotFound = errors.New("key not found")

// Classifier defines the interface for a remote message classifier
type Classifier interface {
	// Classify judges a message and returns a structured verdict
	Classify(ctx context.Context, req *ClassifierRequest) (*ClassifierResult, error)
}

// KeyValueStore defines the interface for the persistence backend
type KeyValueStore interface {
	// Get retrieves the value for a key, or ErrKeyNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value with an optional TTL (zero means no expiry)
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Increment atomically adds delta to an integer key and returns the new value
	Increment(ctx context.Context, key string, delta int64) (int64, error)

	// Expire sets or refreshes the TTL on an existing key
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Delete removes a key
	Delete(ctx context.Context, key string) error
}

// ChatTransport defines the boundary to the chat session collaborator
type ChatTransport interface {
	// ProcessMessage scores one message in its group context
	ProcessMessage(ctx context.Context, msg *Message, group *GroupContext) (*ScoreResult, error)

	// Start starts consuming messages from the transport
	Start() error

	// Stop stops the transport
	Stop() error
}
