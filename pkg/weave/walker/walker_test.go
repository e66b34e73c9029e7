package walker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, body := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return root
}

func relPaths(res *Result) []string {
	out := make([]string, 0, len(res.Files))
	for _, f := range res.Files {
		out = append(out, f.RelPath)
	}
	return out
}

func TestWalkDirectory(t *testing.T) {
	root := writeTree(t, map[string]string{
		"b.txt":           "bye",
		"a.txt":           "hi",
		"docs/index.html": "<html/>",
		"empty.txt":       "",
		".env":            "SECRET=1",
		".git/config":     "[core]",
	})

	res, err := Walk(context.Background(), Options{Root: root})
	require.NoError(t, err)

	assert.True(t, res.IsDir)
	assert.Equal(t, []string{"a.txt", "b.txt", "docs/index.html"}, relPaths(res))
	assert.Equal(t, []string{"empty.txt"}, res.Empty)
	assert.Equal(t, int64(2+3+7), res.TotalSize)

	abs, err := filepath.Abs(root)
	require.NoError(t, err)
	assert.Equal(t, abs, res.Root)
	assert.Equal(t, filepath.Join(abs, "a.txt"), res.Files[0].Path)
}

func TestWalkIncludeHidden(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt":                "hi",
		".well-known/security": "contact",
	})

	res, err := Walk(context.Background(), Options{Root: root, IncludeHidden: true})
	require.NoError(t, err)
	assert.Equal(t, []string{".well-known/security", "a.txt"}, relPaths(res))
}

func TestWalkExclusions(t *testing.T) {
	root := writeTree(t, map[string]string{
		"index.html":        "x",
		"main.js.map":       "x",
		"node_modules/a.js": "x",
		"assets/img/a.png":  "x",
		"assets/css/a.css":  "x",
	})

	res, err := Walk(context.Background(), Options{
		Root:    root,
		Exclude: []string{"*.map", "node_modules", "assets/img/"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"assets/css/a.css", "index.html"}, relPaths(res))
}

func TestWalkSingleFile(t *testing.T) {
	root := writeTree(t, map[string]string{"site/page.html": "hello"})
	path := filepath.Join(root, "site", "page.html")

	res, err := Walk(context.Background(), Options{Root: path})
	require.NoError(t, err)
	assert.False(t, res.IsDir)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "page.html", res.Files[0].RelPath)
	assert.Equal(t, int64(5), res.TotalSize)
	assert.Equal(t, filepath.Join(root, "site"), res.Root)
}

func TestWalkSingleEmptyFile(t *testing.T) {
	root := writeTree(t, map[string]string{"empty": ""})

	res, err := Walk(context.Background(), Options{Root: filepath.Join(root, "empty")})
	require.NoError(t, err)
	assert.Empty(t, res.Files)
	assert.Equal(t, []string{"empty"}, res.Empty)
}

func TestWalkMissingRoot(t *testing.T) {
	_, err := Walk(context.Background(), Options{Root: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Walk(context.Background(), Options{})
	assert.Error(t, err)
}

func TestWalkCanceled(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "hi"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Walk(ctx, Options{Root: root})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		rel     string
		want    bool
	}{
		{"*.map", "js/app.js.map", true},
		{"dist", "dist/a.js", true},
		{"dist", "distribution/a.js", false},
		{"js/*.js", "js/app.js", true},
		{"js/*.js", "lib/js/app.js", false},
		{"", "a", false},
		{"[", "a", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.pattern, tt.rel))
		})
	}
}
