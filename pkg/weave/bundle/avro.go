package bundle

import (
	"errors"
	"fmt"

	"github.com/hamba/avro/v2"

	"github.com/jamesainslie/weave/pkg/weave/arweave"
)

// Tag limits from ANS-104.
const (
	MaxTags        = 128
	MaxTagNameLen  = 1024
	MaxTagValueLen = 3072
)

// ErrInvalidTags is returned when tags break the ANS-104 limits or cannot
// be decoded.
var ErrInvalidTags = errors.New("invalid data item tags")

func validateTags(tags []arweave.Tag) error {
	if len(tags) > MaxTags {
		return fmt.Errorf("%w: %d tags, max %d", ErrInvalidTags, len(tags), MaxTags)
	}
	for _, t := range tags {
		switch {
		case t.Name == "":
			return fmt.Errorf("%w: empty tag name", ErrInvalidTags)
		case len(t.Name) > MaxTagNameLen:
			return fmt.Errorf("%w: tag name %.20q... too long", ErrInvalidTags, t.Name)
		case len(t.Value) > MaxTagValueLen:
			return fmt.Errorf("%w: value of %q too long", ErrInvalidTags, t.Name)
		}
	}
	return nil
}

// tagSchema is the ANS-104 tag list: an array of {name, value} byte
// records.
var tagSchema = avro.MustParse(`{
	"type": "array",
	"items": {
		"type": "record",
		"name": "Tag",
		"fields": [
			{"name": "name", "type": "bytes"},
			{"name": "value", "type": "bytes"}
		]
	}
}`)

// tagCodec writes every tag in a single block with a plain item count, the
// framing other ANS-104 implementations sign over.
var tagCodec = avro.Config{
	BlockLength:            MaxTags,
	DisableBlockSizeHeader: true,
}.Freeze()

type avroTag struct {
	Name  []byte `avro:"name"`
	Value []byte `avro:"value"`
}

// encodeTags serialises tags with tagSchema. An empty tag list encodes to
// no bytes at all.
func encodeTags(tags []arweave.Tag) ([]byte, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	records := make([]avroTag, len(tags))
	for i, t := range tags {
		records[i] = avroTag{Name: []byte(t.Name), Value: []byte(t.Value)}
	}
	data, err := tagCodec.Marshal(tagSchema, records)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTags, err)
	}
	return data, nil
}

func decodeTags(data []byte, want int) ([]arweave.Tag, error) {
	if len(data) == 0 {
		if want != 0 {
			return nil, fmt.Errorf("%w: expected %d tags, got none", ErrInvalidTags, want)
		}
		return nil, nil
	}

	// A Reader over the slice reports truncation as an error, where
	// Unmarshal treats EOF as success.
	var records []avroTag
	r := avro.NewReader(nil, 0, avro.WithReaderConfig(tagCodec)).Reset(data)
	r.ReadVal(tagSchema, &records)
	if r.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTags, r.Error)
	}
	if r.Peek(); r.Error == nil {
		return nil, fmt.Errorf("%w: trailing bytes after tag list", ErrInvalidTags)
	}
	if len(records) != want {
		return nil, fmt.Errorf("%w: header says %d tags, decoded %d", ErrInvalidTags, want, len(records))
	}
	tags := make([]arweave.Tag, len(records))
	for i, r := range records {
		tags[i] = arweave.Tag{Name: string(r.Name), Value: string(r.Value)}
	}
	return tags, nil
}
