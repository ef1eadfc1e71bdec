// Package preview stores immutable rendered-draft snapshots behind random
// short identifiers, used to hand out shareable read-only links.
package preview

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pressdeck/api/internal/kv"
	"pressdeck/api/internal/util"
)

const (
	keyPrefix = "nl:preview:"
	idLength  = 10

	// TTL after which a snapshot silently disappears from the backend.
	TTL = 7 * 24 * time.Hour
)

var (
	// ErrNotFound covers both an id that never existed and one whose TTL
	// elapsed; the backend cannot distinguish the two after expiry.
	ErrNotFound = errors.New("preview not found or expired")

	// ErrEmptyHTML rejects snapshot creation without content.
	ErrEmptyHTML = errors.New("html is required")
)

// Store creates and fetches preview snapshots. Snapshots are write-once;
// there is no update or delete path, expiry is the only removal.
type Store struct {
	kv kv.Client
}

// NewStore wraps the given backend client, which may be nil when the
// backend is unconfigured; every operation then reports ErrNotConfigured.
func NewStore(client kv.Client) *Store {
	return &Store{kv: client}
}

// Create stores html under a fresh 10-character [a-z0-9] identifier with a
// 7-day expiry and returns the identifier. Ids are not checked against
// existing snapshots; the keyspace is large enough and the TTL short enough
// that collisions are accepted risk.
func (s *Store) Create(ctx context.Context, html string) (string, error) {
	if s.kv == nil {
		return "", kv.ErrNotConfigured
	}
	if html == "" {
		return "", ErrEmptyHTML
	}
	id := util.RandomSlug(idLength)
	if err := s.kv.Set(ctx, keyPrefix+id, html, TTL); err != nil {
		return "", fmt.Errorf("preview create %s: %w", id, err)
	}
	return id, nil
}

// Fetch returns the snapshot stored under id, or ErrNotFound when the id is
// unknown or its TTL elapsed.
func (s *Store) Fetch(ctx context.Context, id string) (string, error) {
	if s.kv == nil {
		return "", kv.ErrNotConfigured
	}
	html, err := s.kv.Get(ctx, keyPrefix+id)
	if errors.Is(err, kv.ErrNil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("preview fetch %s: %w", id, err)
	}
	return html, nil
}
