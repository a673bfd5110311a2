package docstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_MissingDocumentDoesNotError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	snap, err := s.Get(ctx, "users", "nobody")
	require.NoError(t, err)
	assert.False(t, snap.Exists())
}

func TestSetGet_RoundTripAndFieldPath(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "users", "u1", map[string]any{
		"stats": map[string]any{"gold": float64(100), "level": float64(3)},
	}))

	snap, err := s.Get(ctx, "users", "u1")
	require.NoError(t, err)
	require.True(t, snap.Exists())

	gold, ok := snap.Get("stats.gold")
	require.True(t, ok)
	assert.Equal(t, float64(100), gold)

	_, ok = snap.Get("stats.mana")
	assert.False(t, ok)
}

func TestUpdate_PartialFieldPathsLeaveSiblingsAlone(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "users", "u1", map[string]any{
		"stats": map[string]any{"gold": float64(100), "level": float64(3)},
	}))
	require.NoError(t, s.Update(ctx, "users", "u1", map[string]any{
		"stats.gold": float64(40),
	}))

	snap, err := s.Get(ctx, "users", "u1")
	require.NoError(t, err)
	gold, _ := snap.Get("stats.gold")
	level, _ := snap.Get("stats.level")
	assert.Equal(t, float64(40), gold)
	assert.Equal(t, float64(3), level)
}

func TestCommit_NormalizesNumbersToJSONShape(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// Writers pass Go ints; every backend must hand back the JSON number
	// shape so readers see one dynamic type regardless of backend.
	require.NoError(t, s.Set(ctx, "users", "u1", map[string]any{
		"stats": map[string]any{"gold": 100},
	}))
	require.NoError(t, s.Update(ctx, "users", "u1", map[string]any{
		"stats.barrieraCurrent": 0,
	}))

	snap, err := s.Get(ctx, "users", "u1")
	require.NoError(t, err)
	gold, _ := snap.Get("stats.gold")
	cur, _ := snap.Get("stats.barrieraCurrent")
	assert.Equal(t, float64(100), gold)
	assert.Equal(t, float64(0), cur)
}

func TestUpdate_MissingDocumentFails(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.Update(ctx, "users", "ghost", map[string]any{"stats.gold": 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunTransaction_RetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "counters", "c", map[string]any{"n": float64(0)}))

	// 20 concurrent increments must all land: every stale commit retries.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.RunTransaction(ctx, func(tx *Tx) error {
				snap, err := tx.Get("counters", "c")
				if err != nil {
					return err
				}
				n, _ := snap.Get("n")
				tx.Update("counters", "c", map[string]any{"n": n.(float64) + 1})
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := s.Get(ctx, "counters", "c")
	require.NoError(t, err)
	n, _ := snap.Get("n")
	assert.Equal(t, float64(20), n)
}

func TestOnWrite_FiresWithBeforeAfterAndParams(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var events []Event
	s.OnWrite("users/{userId}", func(_ context.Context, ev Event) {
		events = append(events, ev)
	})

	require.NoError(t, s.Set(ctx, "users", "u1", map[string]any{"name": "Lyra"}))
	require.NoError(t, s.Update(ctx, "users", "u1", map[string]any{"name": "Lyra II"}))
	require.NoError(t, s.Set(ctx, "items", "sword", map[string]any{})) // other collection

	require.Len(t, events, 2)
	assert.Equal(t, EventCreate, events[0].Kind)
	assert.False(t, events[0].Before.Exists())
	assert.True(t, events[0].After.Exists())
	assert.Equal(t, map[string]string{"userId": "u1"}, events[0].Params)

	assert.Equal(t, EventUpdate, events[1].Kind)
	name, _ := events[1].Before.Get("name")
	assert.Equal(t, "Lyra", name)
	name, _ = events[1].After.Get("name")
	assert.Equal(t, "Lyra II", name)
}

func TestOnUpdate_SkipsCreates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	calls := 0
	s.OnUpdate("users/{userId}", func(_ context.Context, ev Event) {
		calls++
	})

	require.NoError(t, s.Set(ctx, "users", "u1", map[string]any{"a": float64(1)}))
	assert.Equal(t, 0, calls)
	require.NoError(t, s.Update(ctx, "users", "u1", map[string]any{"a": float64(2)}))
	assert.Equal(t, 1, calls)
}

func TestTriggerWritingBackTerminates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// A recompute-style trigger: writes only when the derived field is stale.
	s.OnWrite("users/{userId}", func(ctx context.Context, ev Event) {
		if !ev.After.Exists() {
			return
		}
		a, _ := ev.After.Get("a")
		twice, _ := ev.After.Get("twice")
		want := a.(float64) * 2
		if twice == want {
			return
		}
		_ = s.Update(ctx, "users", ev.ID, map[string]any{"twice": want})
	})

	require.NoError(t, s.Set(ctx, "users", "u1", map[string]any{"a": float64(3)}))

	snap, err := s.Get(ctx, "users", "u1")
	require.NoError(t, err)
	twice, _ := snap.Get("twice")
	assert.Equal(t, float64(6), twice)
}

func TestWatch_StreamsDocumentChanges(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ch, cancel := s.Watch("users", "u1")
	defer cancel()

	require.NoError(t, s.Set(ctx, "users", "u1", map[string]any{"hp": float64(10)}))
	require.NoError(t, s.Set(ctx, "users", "u2", map[string]any{"hp": float64(99)}))

	ev := <-ch
	assert.Equal(t, "u1", ev.ID)
	hp, _ := ev.After.Get("hp")
	assert.Equal(t, float64(10), hp)

	// The u2 write must not reach a u1 watcher.
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event for %s", extra.ID)
	default:
	}
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "users", "u1", map[string]any{
		"stats": map[string]any{"gold": float64(77)},
	}))
	require.NoError(t, s.Close())

	s2, err := OpenFileStore(dir)
	require.NoError(t, err)
	snap, err := s2.Get(ctx, "users", "u1")
	require.NoError(t, err)
	gold, _ := snap.Get("stats.gold")
	assert.Equal(t, float64(77), gold)
}

func TestSQLiteStore_RoundTripAndConflictVersioning(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(ctx, "users", "u1", map[string]any{
		"stats": map[string]any{"gold": float64(10)},
	}))
	require.NoError(t, s.Update(ctx, "users", "u1", map[string]any{
		"stats.gold": float64(4),
	}))

	snap, err := s.Get(ctx, "users", "u1")
	require.NoError(t, err)
	gold, _ := snap.Get("stats.gold")
	assert.Equal(t, float64(4), gold)
	assert.Equal(t, int64(2), snap.Version)

	docs, err := s.List(ctx, "users")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "u1", docs[0].ID)
}
