package draft

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"pressdeck/api/internal/kv"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s := miniredis.RunT(t)
	client, err := kv.New("redis://"+s.Addr(), "")
	if err != nil {
		t.Fatalf("failed to create kv client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewStore(client)
}

func TestGetFullBeforeAnyWrite(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetFull(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound before first write, got %v", err)
	}
	_, err = store.GetMeta(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound from GetMeta before first write, got %v", err)
	}
}

func TestStaleStateWithoutVersionIsNotFound(t *testing.T) {
	s := miniredis.RunT(t)
	client, err := kv.New("redis://"+s.Addr(), "")
	if err != nil {
		t.Fatalf("failed to create kv client: %v", err)
	}
	defer client.Close()
	store := NewStore(client)

	// A state value without a version counter means no draft was ever
	// written through the store.
	s.Set("nl:draft:state", `{"subject":"orphan"}`)

	_, err = store.GetFull(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for stale state, got %v", err)
	}
}

func TestFirstWriteAndReadBack(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	result, err := store.Write(ctx, json.RawMessage(`{"subject":"Weekly"}`), "alice")
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if result.Version != 1 {
		t.Errorf("expected version 1 after first write, got %d", result.Version)
	}
	if result.UpdatedAt.IsZero() {
		t.Error("expected a non-zero updatedAt")
	}

	record, err := store.GetFull(ctx)
	if err != nil {
		t.Fatalf("GetFull failed: %v", err)
	}
	if record.Version != 1 {
		t.Errorf("expected version 1, got %d", record.Version)
	}
	if string(record.State) != `{"subject":"Weekly"}` {
		t.Errorf("unexpected state: %s", record.State)
	}
	if record.Editor.UserID != "alice" {
		t.Errorf("expected editor alice, got %s", record.Editor.UserID)
	}
	if !record.Editor.UpdatedAt.Equal(result.UpdatedAt) {
		t.Errorf("editor updatedAt %s does not match write result %s", record.Editor.UpdatedAt, result.UpdatedAt)
	}
}

func TestLastWriterWins(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first, err := store.Write(ctx, json.RawMessage(`{"subject":"Weekly"}`), "alice")
	if err != nil {
		t.Fatalf("first write failed: %v", err)
	}

	meta, err := store.GetMeta(ctx)
	if err != nil {
		t.Fatalf("GetMeta failed: %v", err)
	}
	if meta.Version != 1 || meta.Editor.UserID != "alice" {
		t.Errorf("unexpected meta after first write: %+v", meta)
	}
	if !meta.Editor.UpdatedAt.Equal(first.UpdatedAt) {
		t.Errorf("meta updatedAt %s does not match write result %s", meta.Editor.UpdatedAt, first.UpdatedAt)
	}

	second, err := store.Write(ctx, json.RawMessage(`{"subject":"Weekly, revised"}`), "bob")
	if err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	if second.Version != 2 {
		t.Errorf("expected version 2, got %d", second.Version)
	}

	record, err := store.GetFull(ctx)
	if err != nil {
		t.Fatalf("GetFull failed: %v", err)
	}
	if record.Version != 2 {
		t.Errorf("expected version 2, got %d", record.Version)
	}
	if record.Editor.UserID != "bob" {
		t.Errorf("expected last writer bob, got %s", record.Editor.UserID)
	}
	if string(record.State) != `{"subject":"Weekly, revised"}` {
		t.Errorf("unexpected state: %s", record.State)
	}
}

func TestVersionStrictlyIncreasingAcrossConcurrentWriters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	const writers = 8
	const writesEach = 5

	var mu sync.Mutex
	var versions []int64
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < writesEach; j++ {
				result, err := store.Write(ctx, json.RawMessage(`{"n":1}`), "writer")
				if err != nil {
					t.Errorf("concurrent write failed: %v", err)
					return
				}
				mu.Lock()
				versions = append(versions, result.Version)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	if len(versions) != writers*writesEach {
		t.Fatalf("expected %d versions, got %d", writers*writesEach, len(versions))
	}
	for i, v := range versions {
		if v != int64(i+1) {
			t.Fatalf("versions not dense at index %d: got %d", i, v)
		}
	}
}

func TestWriteRejectsInvalidState(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	cases := []json.RawMessage{
		nil,
		json.RawMessage(``),
		json.RawMessage(`   `),
		json.RawMessage(`"just a string"`),
		json.RawMessage(`42`),
		json.RawMessage(`{"unterminated":`),
	}
	for _, state := range cases {
		if _, err := store.Write(ctx, state, "alice"); !errors.Is(err, ErrInvalidState) {
			t.Errorf("state %q: expected ErrInvalidState, got %v", state, err)
		}
	}

	// Invalid writes must not advance the counter.
	if _, err := store.GetMeta(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected no draft after rejected writes, got %v", err)
	}
}

func TestWriteAcceptsArrayState(t *testing.T) {
	store := setupTestStore(t)

	result, err := store.Write(context.Background(), json.RawMessage(`[{"block":"intro"}]`), "alice")
	if err != nil {
		t.Fatalf("array state rejected: %v", err)
	}
	if result.Version != 1 {
		t.Errorf("expected version 1, got %d", result.Version)
	}
}

func TestUnconfiguredStore(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	if _, err := store.GetFull(ctx); !errors.Is(err, kv.ErrNotConfigured) {
		t.Errorf("GetFull: expected ErrNotConfigured, got %v", err)
	}
	if _, err := store.GetMeta(ctx); !errors.Is(err, kv.ErrNotConfigured) {
		t.Errorf("GetMeta: expected ErrNotConfigured, got %v", err)
	}
	if _, err := store.Write(ctx, json.RawMessage(`{}`), "alice"); !errors.Is(err, kv.ErrNotConfigured) {
		t.Errorf("Write: expected ErrNotConfigured, got %v", err)
	}
}

func TestCorruptEditorRecordIsTolerated(t *testing.T) {
	s := miniredis.RunT(t)
	client, err := kv.New("redis://"+s.Addr(), "")
	if err != nil {
		t.Fatalf("failed to create kv client: %v", err)
	}
	defer client.Close()
	store := NewStore(client)
	ctx := context.Background()

	if _, err := store.Write(ctx, json.RawMessage(`{"subject":"Weekly"}`), "alice"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	s.Set("nl:draft:editor", "not json")

	record, err := store.GetFull(ctx)
	if err != nil {
		t.Fatalf("GetFull failed: %v", err)
	}
	if record.Editor.UserID != "" || !record.Editor.UpdatedAt.IsZero() {
		t.Errorf("expected zero editor for corrupt record, got %+v", record.Editor)
	}
}

func TestInjectedClock(t *testing.T) {
	store := setupTestStore(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	result, err := store.Write(context.Background(), json.RawMessage(`{}`), "alice")
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !result.UpdatedAt.Equal(fixed) {
		t.Errorf("expected updatedAt %s, got %s", fixed, result.UpdatedAt)
	}
}
