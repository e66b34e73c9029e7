package hashindex

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSum(t *testing.T) {
	// Known SHA-256 vectors.
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Sum(nil))
	assert.Equal(t, "8f434346648f6b96df89dda901c5176b10a6d83961dd3c1ac88b59b2dc327aa4", Sum([]byte("hi")))
}

func TestSumIsDeterministic(t *testing.T) {
	data := []byte("the same bytes")
	assert.Equal(t, Sum(data), Sum(data))
	assert.NotEqual(t, Sum(data), Sum([]byte("other bytes")))
}

func TestSumReaderMatchesSum(t *testing.T) {
	data := strings.Repeat("weave", 10000)
	got, err := SumReader(strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Sum([]byte(data)), got)
}

func TestSumFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	got, err := SumFile(path)
	require.NoError(t, err)
	assert.Equal(t, Sum([]byte("hi")), got)

	_, err = SumFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
