package prompts

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satindergrewal/bioradio/internal/lyria"
)

func openMem(t *testing.T) (*Collection, *LevelStore) {
	t.Helper()
	store, err := NewMemStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	c, err := Open(store, nil)
	require.NoError(t, err)
	return c, store
}

func TestOpenSeedsDefaults(t *testing.T) {
	c, store := openMem(t)
	list := c.List()
	require.Len(t, list, len(Defaults()))
	for _, p := range list {
		assert.False(t, p.Editable)
		assert.Zero(t, p.Weight)
		assert.NotEmpty(t, p.ID)
	}

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, list, saved)
	assert.Empty(t, c.Active())
}

func TestAddUpdateRemovePersist(t *testing.T) {
	c, store := openMem(t)

	p, err := c.Add("  rainy lofi  ", 1.2, "")
	require.NoError(t, err)
	assert.Equal(t, "rainy lofi", p.Text)
	assert.True(t, p.Editable)
	assert.NotEmpty(t, p.Color)

	text := "stormy lofi"
	weight := 0.4
	p, err = c.Update(p.ID, Patch{Text: &text, Weight: &weight})
	require.NoError(t, err)
	assert.Equal(t, "stormy lofi", p.Text)

	reopened, err := Open(store, nil)
	require.NoError(t, err)
	got, err := reopened.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	require.NoError(t, c.Remove(p.ID))
	_, err = c.Get(p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	saved, err := store.Load()
	require.NoError(t, err)
	for _, s := range saved {
		assert.NotEqual(t, p.ID, s.ID)
	}
}

func TestNonEditableText(t *testing.T) {
	c, _ := openMem(t)
	preset := c.List()[0]

	text := "something else"
	_, err := c.Update(preset.ID, Patch{Text: &text})
	assert.ErrorIs(t, err, ErrNotEditable)

	// Same text and weight changes are fine.
	weight := 1.0
	p, err := c.Update(preset.ID, Patch{Text: &preset.Text, Weight: &weight})
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.Weight)

	require.NoError(t, c.Remove(preset.ID))
}

func TestValidation(t *testing.T) {
	c, _ := openMem(t)

	_, err := c.Add("   ", 1, "")
	assert.ErrorIs(t, err, ErrEmptyText)
	_, err = c.Add("ok", -0.1, "")
	assert.ErrorIs(t, err, ErrInvalidWeight)
	_, err = c.Add("ok", 2.5, "")
	assert.ErrorIs(t, err, ErrInvalidWeight)

	p, err := c.Add("ok", 1, "#fff")
	require.NoError(t, err)
	empty := ""
	_, err = c.Update(p.ID, Patch{Text: &empty})
	assert.ErrorIs(t, err, ErrEmptyText)
	_, err = c.Update("missing", Patch{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, c.Remove("missing"), ErrNotFound)
}

func TestActiveKeepsOrderAndSkipsZeroWeight(t *testing.T) {
	c, _ := openMem(t)
	_, err := c.Add("first", 1, "")
	require.NoError(t, err)
	_, err = c.Add("muted", 0, "")
	require.NoError(t, err)
	_, err = c.Add("second", 0.5, "")
	require.NoError(t, err)

	assert.Equal(t, []lyria.WeightedPrompt{
		{Text: "first", Weight: 1},
		{Text: "second", Weight: 0.5},
	}, c.Active())
}

type failingStore struct{ loadErr, saveErr error }

func (f failingStore) Load() ([]Prompt, error) { return []Prompt{{ID: "x", Text: "x"}}, f.loadErr }
func (f failingStore) Save([]Prompt) error     { return f.saveErr }

func TestStoreErrors(t *testing.T) {
	_, err := Open(failingStore{loadErr: errors.New("disk")}, nil)
	assert.Error(t, err)

	c, err := Open(failingStore{saveErr: errors.New("full")}, nil)
	require.NoError(t, err)
	before := c.List()

	_, err = c.Add("ghost", 1, "")
	assert.ErrorContains(t, err, "save prompts")
	weight := 1.0
	_, err = c.Update("x", Patch{Weight: &weight})
	assert.ErrorContains(t, err, "save prompts")
	err = c.Remove("x")
	assert.ErrorContains(t, err, "save prompts")

	assert.Equal(t, before, c.List())
	assert.Empty(t, c.Active())
}
