package manifest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTwoFiles(t *testing.T) {
	b := NewBuilder()
	b.AddItem("a.txt", "X")
	b.AddItem("b.txt", "Y")

	m, err := b.Build("")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", m.Index.Path)

	data, err := m.JSON()
	require.NoError(t, err)
	assert.Equal(t,
		`{"manifest":"arweave/paths","version":"0.1.0","index":{"path":"a.txt"},"paths":{"a.txt":{"id":"X"},"b.txt":{"id":"Y"}}}`,
		string(data))
}

func TestBuildPrefersIndexHTML(t *testing.T) {
	b := NewBuilder()
	b.AddItem("about.html", "A")
	b.AddItem("index.html", "I")

	m, err := b.Build("")
	require.NoError(t, err)
	assert.Equal(t, "index.html", m.Index.Path)
}

func TestBuildExplicitIndex(t *testing.T) {
	b := NewBuilder()
	b.AddItem("index.html", "I")
	b.AddItem("home.html", "H")

	m, err := b.Build("home.html")
	require.NoError(t, err)
	assert.Equal(t, "home.html", m.Index.Path)

	// An explicit index that is not present falls back.
	m, err = b.Build("missing.html")
	require.NoError(t, err)
	assert.Equal(t, "index.html", m.Index.Path)
}

func TestBuildEmpty(t *testing.T) {
	_, err := NewBuilder().Build("")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestDuplicatesAndFreshKeepInsertionOrder(t *testing.T) {
	b := NewBuilder()
	b.AddDuplicate("z.txt", "Z")
	b.AddItem("a.txt", "A")

	m, err := b.Build("")
	require.NoError(t, err)
	assert.Equal(t, []string{"z.txt", "a.txt"}, m.Paths.Keys())
	assert.Equal(t, "z.txt", m.Index.Path)

	dups, fresh := b.Counts()
	assert.Equal(t, 1, dups)
	assert.Equal(t, 1, fresh)
}

func TestNestedIndexRegistersDirectory(t *testing.T) {
	b := NewBuilder()
	b.AddItem("docs/index.html", "D")
	b.AddItem("docs/guide.html", "G")

	m, err := b.Build("")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/index.html", "docs", "docs/guide.html"}, m.Paths.Keys())
	id, ok := m.Paths.Get("docs")
	assert.True(t, ok)
	assert.Equal(t, "D", id)
}

func TestSamePathAddedTwiceAppearsOnce(t *testing.T) {
	b := NewBuilder()
	b.AddItem("a.txt", "old")
	b.AddItem("a.txt", "new")

	m, err := b.Build("")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Paths.Len())
	id, _ := m.Paths.Get("a.txt")
	assert.Equal(t, "new", id)
}

func TestParseRoundTrip(t *testing.T) {
	b := NewBuilder()
	b.AddItem("b.txt", "B")
	b.AddItem("a.txt", "A")
	m, err := b.Build("a.txt")
	require.NoError(t, err)
	data, err := m.JSON()
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt", "a.txt"}, parsed.Paths.Keys())
	assert.Equal(t, "a.txt", parsed.Index.Path)

	_, err = Parse([]byte(`{"manifest":"other","index":{"path":"x"},"paths":{}}`))
	assert.Error(t, err)
	_, err = Parse([]byte(`{"manifest":"arweave/paths","index":{"path":"x"},"paths":{}}`))
	assert.Error(t, err)
}

func TestRelPath(t *testing.T) {
	root := filepath.Join("site")

	rel, err := RelPath(root, filepath.Join("site", "css", "main.css"))
	require.NoError(t, err)
	assert.Equal(t, "css/main.css", rel)

	_, err = RelPath(root, filepath.Join("other", "x"))
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a/b.txt", Normalize("./a/b.txt"))
	assert.Equal(t, "a/b.txt", Normalize(filepath.Join("a", "b.txt")))
}
