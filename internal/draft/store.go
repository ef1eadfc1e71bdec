// Package draft holds the single shared newsletter draft: its content, a
// strictly increasing version counter and metadata about the last writer.
package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pressdeck/api/internal/kv"
)

const (
	stateKey   = "nl:draft:state"
	versionKey = "nl:draft:version"
	editorKey  = "nl:draft:editor"
)

var (
	// ErrNotFound is reported before the first write has happened.
	ErrNotFound = errors.New("no draft")

	// ErrInvalidState rejects writes whose state is missing or not a
	// structured JSON document.
	ErrInvalidState = errors.New("state must be a JSON object or array")
)

// Editor identifies who performed the most recent write and when. It is
// informational only, not a lock.
type Editor struct {
	UserID    string    `json:"userId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Record is the full draft: content, version and last-writer metadata.
type Record struct {
	State   json.RawMessage
	Version int64
	Editor  Editor
}

// Meta is the lightweight poll result: version and editor, never the state.
type Meta struct {
	Version int64
	Editor  Editor
}

// WriteResult reports the outcome of a successful write.
type WriteResult struct {
	Version   int64
	UpdatedAt time.Time
}

// Store reads and writes the singleton draft record. Writes are
// last-writer-wins: concurrent writers may interleave the state and editor
// assignments, and only the version increment is atomic.
type Store struct {
	kv  kv.Client
	now func() time.Time
}

// NewStore wraps the given backend client, which may be nil when the
// backend is unconfigured; every operation then reports ErrNotConfigured.
func NewStore(client kv.Client) *Store {
	return &Store{kv: client, now: time.Now}
}

// GetFull returns the current draft. ErrNotFound is reported when either
// the state or the version key is absent; a stale state value without a
// version counter still counts as "no draft has ever been written".
func (s *Store) GetFull(ctx context.Context) (Record, error) {
	if s.kv == nil {
		return Record{}, kv.ErrNotConfigured
	}
	values, err := s.kv.MGet(ctx, stateKey, versionKey, editorKey)
	if err != nil {
		return Record{}, fmt.Errorf("draft read: %w", err)
	}
	if values[0] == nil || values[1] == nil {
		return Record{}, ErrNotFound
	}
	version, err := strconv.ParseInt(*values[1], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("draft read: corrupt version %q", *values[1])
	}
	return Record{
		State:   json.RawMessage(*values[0]),
		Version: version,
		Editor:  parseEditor(values[2]),
	}, nil
}

// GetMeta returns only the version counter and editor metadata, for
// high-frequency "has someone else changed this?" polling without
// transferring the document body. ErrNotFound when the version is absent.
func (s *Store) GetMeta(ctx context.Context) (Meta, error) {
	if s.kv == nil {
		return Meta{}, kv.ErrNotConfigured
	}
	values, err := s.kv.MGet(ctx, versionKey, editorKey)
	if err != nil {
		return Meta{}, fmt.Errorf("draft meta read: %w", err)
	}
	if values[0] == nil {
		return Meta{}, ErrNotFound
	}
	version, err := strconv.ParseInt(*values[0], 10, 64)
	if err != nil {
		return Meta{}, fmt.Errorf("draft meta read: corrupt version %q", *values[0])
	}
	return Meta{Version: version, Editor: parseEditor(values[1])}, nil
}

// Write stores a new draft state on behalf of userID. The version counter
// increment is the only atomic step and is the source of truth for how many
// writes have occurred; the state and editor assignments that follow may
// interleave with concurrent writers, which is the accepted
// last-writer-wins policy. Returns the post-increment version.
func (s *Store) Write(ctx context.Context, state json.RawMessage, userID string) (WriteResult, error) {
	if s.kv == nil {
		return WriteResult{}, kv.ErrNotConfigured
	}
	if !isStructured(state) {
		return WriteResult{}, ErrInvalidState
	}

	version, err := s.kv.Incr(ctx, versionKey)
	if err != nil {
		return WriteResult{}, fmt.Errorf("draft version incr: %w", err)
	}

	updatedAt := s.now().UTC()
	editorJSON, err := json.Marshal(Editor{UserID: userID, UpdatedAt: updatedAt})
	if err != nil {
		return WriteResult{}, fmt.Errorf("draft editor marshal: %w", err)
	}

	if err := s.kv.Set(ctx, stateKey, string(state), 0); err != nil {
		return WriteResult{}, fmt.Errorf("draft state write: %w", err)
	}
	if err := s.kv.Set(ctx, editorKey, string(editorJSON), 0); err != nil {
		return WriteResult{}, fmt.Errorf("draft editor write: %w", err)
	}

	return WriteResult{Version: version, UpdatedAt: updatedAt}, nil
}

// parseEditor tolerates a missing or corrupt editor record; the field is
// informational and must not fail a read.
func parseEditor(raw *string) Editor {
	if raw == nil {
		return Editor{}
	}
	var editor Editor
	if err := json.Unmarshal([]byte(*raw), &editor); err != nil {
		return Editor{}
	}
	return editor
}

func isStructured(state json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(state))
	if trimmed == "" {
		return false
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return false
	}
	return json.Valid(state)
}
