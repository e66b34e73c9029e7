package bundle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/weave/pkg/weave/arweave"
)

func TestEncodeTagsGolden(t *testing.T) {
	tests := []struct {
		name string
		tags []arweave.Tag
		want []byte
	}{
		{
			name: "no tags",
			tags: nil,
			want: nil,
		},
		{
			name: "single tag",
			tags: []arweave.Tag{{Name: "a", Value: "b"}},
			want: []byte{0x02, 0x02, 'a', 0x02, 'b', 0x00},
		},
		{
			name: "empty value",
			tags: []arweave.Tag{
				{Name: "Content-Type", Value: "text/plain"},
				{Name: "a", Value: ""},
			},
			want: append(append(append(
				[]byte{0x04, 0x18}, "Content-Type"...),
				append([]byte{0x14}, "text/plain"...)...),
				0x02, 'a', 0x00, 0x00),
		},
		{
			name: "multi-byte length",
			tags: []arweave.Tag{{Name: "k", Value: strings.Repeat("v", 100)}},
			want: append(append([]byte{0x02, 0x02, 'k', 0xc8, 0x01}, strings.Repeat("v", 100)...), 0x00),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeTags(tt.tags)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeTagsSingleBlock(t *testing.T) {
	tags := make([]arweave.Tag, MaxTags)
	for i := range tags {
		tags[i] = arweave.Tag{Name: "n", Value: "v"}
	}

	got, err := encodeTags(tags)
	require.NoError(t, err)

	// 128 items in one block with a positive count: zigzag(128) = 0x80 0x02.
	require.GreaterOrEqual(t, len(got), 3)
	assert.Equal(t, []byte{0x80, 0x02, 0x02}, got[:3])
	assert.Equal(t, byte(0x00), got[len(got)-1])
	assert.Len(t, got, 2+MaxTags*4+1)

	decoded, err := decodeTags(got, MaxTags)
	require.NoError(t, err)
	assert.Equal(t, tags, decoded)
}

func TestDecodeTagsAcceptsSizedBlocks(t *testing.T) {
	// Count -2 followed by the block size in bytes.
	data := []byte{0x03, 0x10, 0x02, 'a', 0x02, 'b', 0x02, 'c', 0x02, 'd', 0x00}

	tags, err := decodeTags(data, 2)
	require.NoError(t, err)
	assert.Equal(t, []arweave.Tag{{Name: "a", Value: "b"}, {Name: "c", Value: "d"}}, tags)
}

func TestDecodeTagsRejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want int
	}{
		{name: "missing tags", data: nil, want: 1},
		{name: "truncated", data: []byte{0x04, 0x18, 'C'}, want: 2},
		{name: "count mismatch", data: []byte{0x02, 0x02, 'a', 0x02, 'b', 0x00}, want: 2},
		{name: "trailing bytes", data: []byte{0x02, 0x02, 'a', 0x02, 'b', 0x00, 0x07}, want: 1},
		{name: "missing terminator", data: []byte{0x02, 0x02, 'a', 0x02, 'b'}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeTags(tt.data, tt.want)
			assert.ErrorIs(t, err, ErrInvalidTags)
		})
	}
}
