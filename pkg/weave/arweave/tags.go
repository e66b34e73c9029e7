package arweave

import (
	"encoding/json"
	"fmt"
)

// Tag is a name/value pair attached to a transaction or data item.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Tags is an ordered tag list in which each name appears at most once.
// Setting an existing name replaces its value in place.
type Tags struct {
	list []Tag
}

// NewTags returns a tag list seeded with the given tags, applied in order.
func NewTags(tags ...Tag) *Tags {
	t := &Tags{}
	t.AddAll(tags)
	return t
}

// Set adds a tag or replaces the value of an existing tag with the same name.
func (t *Tags) Set(name, value string) {
	for i := range t.list {
		if t.list[i].Name == name {
			t.list[i].Value = value
			return
		}
	}
	t.list = append(t.list, Tag{Name: name, Value: value})
}

// AddAll applies Set for each tag in order.
func (t *Tags) AddAll(tags []Tag) {
	for _, tag := range tags {
		t.Set(tag.Name, tag.Value)
	}
}

// Get returns the value for name and whether it is present.
func (t *Tags) Get(name string) (string, bool) {
	for _, tag := range t.list {
		if tag.Name == name {
			return tag.Value, true
		}
	}
	return "", false
}

// List returns a copy of the tags in insertion order.
func (t *Tags) List() []Tag {
	out := make([]Tag, len(t.list))
	copy(out, t.list)
	return out
}

// Len returns the number of tags.
func (t *Tags) Len() int {
	return len(t.list)
}

// Clone returns an independent copy.
func (t *Tags) Clone() *Tags {
	return NewTags(t.list...)
}

// wireTag is the JSON shape of a tag on a transaction: both fields base64url.
type wireTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func encodeWireTags(tags []Tag) []wireTag {
	out := make([]wireTag, len(tags))
	for i, tag := range tags {
		out[i] = wireTag{Name: EncodeB64([]byte(tag.Name)), Value: EncodeB64([]byte(tag.Value))}
	}
	return out
}

func decodeWireTags(wire []wireTag) ([]Tag, error) {
	out := make([]Tag, len(wire))
	for i, w := range wire {
		name, err := DecodeB64(w.Name)
		if err != nil {
			return nil, fmt.Errorf("tag %d name: %w", i, err)
		}
		value, err := DecodeB64(w.Value)
		if err != nil {
			return nil, fmt.Errorf("tag %d value: %w", i, err)
		}
		out[i] = Tag{Name: string(name), Value: string(value)}
	}
	return out, nil
}

// MarshalJSON encodes the tags as a plain JSON list.
func (t *Tags) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.List())
}
