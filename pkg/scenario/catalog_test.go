package scenario

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const harborJSON = `{
  "name": "Harbor Town",
  "description": "Smugglers and storms.",
  "attributes": {"Strength": "power", "Agility": "speed"},
  "skills": {"stealth": {"attribute": "Agility"}},
  "starting_location": "The Docks",
  "opening_prompt": "Gulls cry over the harbor.",
  "customizations": {
    "background": {"options": {"sailor": {"bonuses": {"Strength": 2}}}}
  }
}`

const cryptJSON = `{
  "id": "crypt",
  "name": "A Quiet Crypt",
  "rating": "R",
  "attributes": {"Nerve": "courage"},
  "starting_location": "The Gate",
  "opening_prompt": "Cold air seeps from below."
}`

func TestLoadCatalogFS(t *testing.T) {
	fsys := fstest.MapFS{
		"harbor_town.json":     {Data: []byte(harborJSON)},
		"nested/crypt.json":    {Data: []byte(cryptJSON)},
		"broken.json":          {Data: []byte(`{"name": `)},
		"invalid_refs.json":    {Data: []byte(`{"name": "Bad", "attributes": {"A": "a"}, "skills": {"x": {"attribute": "B"}}}`)},
		"README.md":            {Data: []byte("not a scenario")},
		"duplicate/crypt.json": {Data: []byte(cryptJSON)},
	}

	catalog, err := LoadCatalogFS(fsys, noopLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.Len())

	harbor, ok := catalog.Get("harbor_town")
	require.True(t, ok, "ID should default to file name")
	assert.Equal(t, "Harbor Town", harbor.Name)
	assert.Equal(t, 2, harbor.Customizations["background"].Options["sailor"].Bonuses["Strength"])

	crypt, ok := catalog.Get("crypt")
	require.True(t, ok)
	assert.Equal(t, RatingR, crypt.GetRating())

	_, ok = catalog.Get("broken")
	assert.False(t, ok)
	_, ok = catalog.Get("invalid_refs")
	assert.False(t, ok)
}

func TestCatalog_List(t *testing.T) {
	catalog := NewCatalog(
		&Scenario{ID: "b", Name: "Beta"},
		&Scenario{ID: "a", Name: "Alpha", Rating: "G"},
		&Scenario{Name: "No ID"},
		nil,
	)

	list := catalog.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, RatingG, list[0].Rating)
	assert.Equal(t, "b", list[1].ID)
	assert.Equal(t, RatingPG13, list[1].Rating)
}

func TestLoadCatalog_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "harbor.json"), []byte(harborJSON), 0o644))

	catalog, err := LoadCatalog(dir, noopLogger())
	require.NoError(t, err)
	_, ok := catalog.Get("harbor")
	assert.True(t, ok)

	_, err = LoadCatalog(filepath.Join(dir, "missing"), noopLogger())
	assert.Error(t, err)
}

func TestShippedScenarios(t *testing.T) {
	dir := filepath.Join("..", "..", "data", "scenarios")
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	c, err := LoadCatalog(dir, noopLogger())
	require.NoError(t, err)
	assert.Equal(t, len(files), c.Len(), "every shipped scenario should load")

	for _, sum := range c.List() {
		s, ok := c.Get(sum.ID)
		require.True(t, ok)
		assert.NotEmpty(t, s.StartingLocation, sum.ID)
		assert.NotEmpty(t, s.OpeningPrompt, sum.ID)
		assert.NotEmpty(t, s.Customizations, sum.ID)
	}
}
