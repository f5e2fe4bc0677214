package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/genstudio/internal/database"
	"github.com/digkill/genstudio/internal/models"
)

func newKV(t *testing.T) *KVRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Connect(ctx, database.DriverSQLite, filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(ctx, db, database.DriverSQLite))
	return NewKVRepository(db, database.DriverSQLite)
}

func TestKVRepository(t *testing.T) {
	ctx := context.Background()
	kv := newKV(t)

	_, ok, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Put(ctx, "k", "one"))
	require.NoError(t, kv.Put(ctx, "k", "two"))
	value, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two", value)

	require.NoError(t, kv.Delete(ctx, "k"))
	_, ok, err = kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func sampleState() State {
	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	rec := models.GeneratedMediaRecord{
		ID: "rec-1", URL: "https://cdn.example/1.png", Prompt: "red sports car",
		Style: models.StyleLuxury, Size: models.SizeSquare, CreatedAt: created, Status: models.StatusReady,
	}
	return State{
		History:  []models.GeneratedMediaRecord{rec},
		Ledger:   models.CreditState{Remaining: 4, Total: 5, LastUpdated: created},
		Settings: models.Settings{Style: models.StyleLuxury, Size: models.SizeSquare, Prompt: "red sports car", UpdatedAt: created},
		Library:  []models.LibraryRecord{{GeneratedMediaRecord: rec, LibraryID: "lib-1", Title: "Red Sports Car", Tags: []string{"luxury"}, SavedAt: created}},
	}
}

func TestStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewStateRepository(newKV(t), nil)
	want := sampleState()

	require.NoError(t, repo.Save(ctx, Snapshot{History: &want.History, Ledger: &want.Ledger, Settings: &want.Settings, Library: &want.Library}))

	got := repo.Load(ctx, State{})
	assert.Equal(t, want, got)
}

func TestStateSavePartial(t *testing.T) {
	ctx := context.Background()
	kv := newKV(t)
	repo := NewStateRepository(kv, nil)

	ledger := models.CreditState{Remaining: 1, Total: 1}
	require.NoError(t, repo.Save(ctx, Snapshot{Ledger: &ledger}))

	for _, key := range []string{KeyHistory, KeySettings, KeyLibrary} {
		_, ok, err := kv.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
}

func TestStateCorruptKeyIsIsolated(t *testing.T) {
	ctx := context.Background()
	kv := newKV(t)
	repo := NewStateRepository(kv, nil)
	want := sampleState()
	require.NoError(t, repo.Save(ctx, Snapshot{History: &want.History, Ledger: &want.Ledger, Settings: &want.Settings, Library: &want.Library}))

	require.NoError(t, kv.Put(ctx, KeyLedger, "{not json"))
	require.NoError(t, kv.Put(ctx, KeyHistory, `[{"id":"x","status":"exploded"}]`))

	defaults := State{Ledger: models.CreditState{Remaining: 50, Total: 50}}
	got := repo.Load(ctx, defaults)

	assert.Equal(t, defaults.Ledger, got.Ledger)
	assert.Nil(t, got.History)
	assert.Equal(t, want.Settings, got.Settings)
	assert.Equal(t, want.Library, got.Library)
}

type failingKV struct {
	KV
	failKey string
}

func (f failingKV) Get(ctx context.Context, key string) (string, bool, error) {
	if key == f.failKey {
		return "", false, errors.New("disk error")
	}
	return f.KV.Get(ctx, key)
}

func TestStateReadFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	kv := newKV(t)
	want := sampleState()
	require.NoError(t, NewStateRepository(kv, nil).Save(ctx, Snapshot{History: &want.History, Library: &want.Library}))

	repo := NewStateRepository(failingKV{KV: kv, failKey: KeyHistory}, nil)
	got := repo.Load(ctx, State{})
	assert.Nil(t, got.History)
	assert.Equal(t, want.Library, got.Library)
}
