package persist

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(name string) *PlayerRecord {
	return &PlayerRecord{
		Name:         name,
		NameLower:    name, // callers pass lowercase in these tests
		RoomID:       "midgard:temple",
		HP:           20,
		MaxHP:        20,
		Mana:         10,
		MaxMana:      10,
		Level:        1,
		Constitution: 10,
		Dexterity:    10,
		Inventory:    []string{"midgard:sword"},
		Equipment:    map[string]string{"weapon": "midgard:sword"},
	}
}

func TestFileStore_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	rec := testRecord("alira")
	require.NoError(t, store.Create(ctx, rec))
	assert.NotZero(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	byID, err := store.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "alira", byID.Name)
	assert.Equal(t, []string{"midgard:sword"}, byID.Inventory)
	assert.Equal(t, map[string]string{"weapon": "midgard:sword"}, byID.Equipment)

	byName, err := store.FindByNameLower(ctx, "alira")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byName.ID)
}

func TestFileStore_RecordFileNamedBySlug(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	rec := testRecord("alira")
	rec.Name = "Alira"
	require.NoError(t, store.Create(ctx, rec))

	_, err = os.Stat(filepath.Join(dir, "players", "alira.yaml"))
	require.NoError(t, err)

	// Saves land on the same file; no second copy appears.
	rec.HP = 3
	require.NoError(t, store.Save(ctx, rec))
	entries, err := os.ReadDir(filepath.Join(dir, "players"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "alira.yaml", entries[0].Name())
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Alira":       "alira",
		"Sir Borin":   "sir-borin",
		"x__y  z":     "x-y-z",
		"!!Trouble!!": "trouble",
	}
	for in, want := range cases {
		assert.Equal(t, want, slugify(in), "slugify(%q)", in)
	}
}

func TestFileStore_CreateRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Create(ctx, testRecord("alira")))
	err = store.Create(ctx, testRecord("alira"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestFileStore_SavePersistsChanges(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	rec := testRecord("alira")
	require.NoError(t, store.Create(ctx, rec))

	rec.HP = 5
	rec.RoomID = "midgard:square"
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.HP)
	assert.Equal(t, "midgard:square", got.RoomID)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt) || got.UpdatedAt.Equal(got.CreatedAt))
}

func TestFileStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.FindByID(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.FindByNameLower(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, 42), ErrNotFound)
}

func TestFileStore_ScanRebuildsIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileStore(dir)
	require.NoError(t, err)
	rec := testRecord("alira")
	require.NoError(t, store.Create(ctx, rec))

	// A fresh store over the same directory sees the player and keeps id
	// allocation monotonic.
	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := reopened.FindByNameLower(ctx, "alira")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	second := testRecord("borin")
	require.NoError(t, reopened.Create(ctx, second))
	assert.Greater(t, second.ID, rec.ID)
}

func TestFileStore_Accounts(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	acct := &AccountRecord{PlayerID: 7, NameLower: "alira", PasswordHash: "x"}
	require.NoError(t, store.CreateAccount(ctx, acct))

	got, err := store.FindAccount(ctx, "alira")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.PlayerID)

	err = store.CreateAccount(ctx, acct)
	require.Error(t, err)

	require.NoError(t, store.DeleteAccount(ctx, "alira"))
	_, err = store.FindAccount(ctx, "alira")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_DeleteRemovesNameIndex(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	rec := testRecord("alira")
	require.NoError(t, store.Create(ctx, rec))
	require.NoError(t, store.Delete(ctx, rec.ID))

	_, err = store.FindByNameLower(ctx, "alira")
	assert.ErrorIs(t, err, ErrNotFound)

	// Name is free again.
	require.NoError(t, store.Create(ctx, testRecord("alira")))
}
