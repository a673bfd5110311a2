package bazaar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scheda/internal/docstore"
)

func TestLevelTable_At(t *testing.T) {
	table := LevelTable{"1": "2", "3": "5", "7": "9"}

	assert.Equal(t, "2", table.At(1))
	assert.Equal(t, "5", table.At(3))
	assert.Equal(t, "5", table.At(4), "falls back to the highest level below")
	assert.Equal(t, "9", table.At(10))
	assert.Equal(t, "", LevelTable{"5": "x"}.At(3), "no level at or below")
}

func TestItem_VisibleTo(t *testing.T) {
	assert.True(t, Item{}.VisibleTo("u1"), "unset visibility defaults to all")
	assert.True(t, Item{Visibility: VisibilityAll}.VisibleTo("u1"))

	custom := Item{Visibility: VisibilityCustom, AllowedUsers: []string{"u1", "u2"}}
	assert.True(t, custom.VisibleTo("u2"))
	assert.False(t, custom.VisibleTo("u3"))

	assert.False(t, Item{Visibility: VisibilityPrivate}.VisibleTo("u1"))
}

func TestCoercePrice(t *testing.T) {
	cases := []struct {
		in   any
		want int
		ok   bool
	}{
		{nil, 0, true},
		{float64(42), 42, true},
		{float64(-1), 0, false},
		{17, 17, true},
		{"25", 25, true},
		{" 25 ", 25, true},
		{"-3", 0, false},
		{"caro", 0, false},
		{true, 0, false},
	}
	for _, c := range cases {
		got, ok := coercePrice(c.in)
		assert.Equal(t, c.ok, ok, "input %v", c.in)
		assert.Equal(t, c.want, got, "input %v", c.in)
	}
}

func TestListVisible_FiltersAndSorts(t *testing.T) {
	store, svc := newTestService(t)
	ctx := context.Background()

	seedItem := func(id string, it Item) {
		data, err := docstore.DataFrom(it)
		require.NoError(t, err)
		require.NoError(t, store.Set(ctx, Collection, id, data))
	}
	seedItem("b", Item{General: General{Nome: "Bastone"}})
	seedItem("a", Item{General: General{Nome: "Arco"}})
	seedItem("p", Item{General: General{Nome: "Pugnale"}, Visibility: VisibilityPrivate})
	seedItem("c", Item{
		General:      General{Nome: "Cappa"},
		Visibility:   VisibilityCustom,
		AllowedUsers: []string{"u2"},
	})

	got, err := svc.ListVisible(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Arco", got[0].General.Nome)
	assert.Equal(t, "Bastone", got[1].General.Nome)

	got, err = svc.ListVisible(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Arco", got[0].General.Nome)
	assert.Equal(t, "Bastone", got[1].General.Nome)
	assert.Equal(t, "Cappa", got[2].General.Nome)
}

func TestSaveItem_AssignsIDAndKeepsItOutOfBody(t *testing.T) {
	store, svc := newTestService(t)
	ctx := context.Background()

	id, err := svc.SaveItem(ctx, Item{General: General{Nome: "Scudo"}})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	snap, err := store.Get(ctx, Collection, id)
	require.NoError(t, err)
	require.True(t, snap.Exists())
	_, hasID := snap.Get("id")
	assert.False(t, hasID, "the id is the document key, not a body field")

	got, err := svc.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "Scudo", got.General.Nome)
}

func TestGetItem_Missing(t *testing.T) {
	_, svc := newTestService(t)
	_, err := svc.GetItem(context.Background(), "niente")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}
