// Package manifest builds arweave/paths manifests: a table from relative
// path to record id that gateways use to serve a deployed directory.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

const (
	// Type is the manifest format identifier.
	Type = "arweave/paths"
	// Version is the manifest format version written.
	Version = "0.1.0"
	// ContentType is served for manifest records.
	ContentType = "application/x.arweave-manifest+json"
	// IndexFile is the default index document.
	IndexFile = "index.html"
)

// ErrEmpty is returned when building a manifest with no paths.
var ErrEmpty = errors.New("manifest has no paths")

// Index names the document served at the manifest root.
type Index struct {
	Path string `json:"path"`
}

// Target is the record a path resolves to.
type Target struct {
	ID string `json:"id"`
}

// Paths is a path table that keeps insertion order when encoded.
type Paths struct {
	keys []string
	ids  map[string]string
}

func newPaths() Paths {
	return Paths{ids: make(map[string]string)}
}

// Get returns the id for p.
func (p Paths) Get(key string) (string, bool) {
	id, ok := p.ids[key]
	return id, ok
}

// Keys returns the paths in insertion order.
func (p Paths) Keys() []string {
	return append([]string(nil), p.keys...)
}

// Len returns the number of paths.
func (p Paths) Len() int {
	return len(p.keys)
}

func (p *Paths) set(key, id string) {
	if _, ok := p.ids[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.ids[key] = id
}

func (p Paths) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(Target{ID: p.ids[k]})
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *Paths) UnmarshalJSON(data []byte) error {
	*p = newPaths()
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return fmt.Errorf("manifest paths must be an object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("manifest path key %v is not a string", tok)
		}
		var target Target
		if err := dec.Decode(&target); err != nil {
			return fmt.Errorf("manifest path %q: %w", key, err)
		}
		p.set(key, target.ID)
	}
	_, err := dec.Token()
	return err
}

// Manifest is the document published for a directory deploy.
type Manifest struct {
	Manifest string `json:"manifest"`
	Version  string `json:"version"`
	Index    Index  `json:"index"`
	Paths    Paths  `json:"paths"`
}

// JSON returns the encoded manifest.
func (m *Manifest) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// Parse decodes a manifest and checks its index.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if m.Manifest != Type {
		return nil, fmt.Errorf("unsupported manifest type %q", m.Manifest)
	}
	if _, ok := m.Paths.Get(m.Index.Path); !ok {
		return nil, fmt.Errorf("manifest index %q is not a path", m.Index.Path)
	}
	return &m, nil
}

// Builder accumulates path entries for one deploy.
type Builder struct {
	paths      Paths
	duplicates int
	fresh      int
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{paths: newPaths()}
}

// AddDuplicate records a path whose content was already published.
func (b *Builder) AddDuplicate(relPath, id string) {
	b.duplicates++
	b.add(relPath, id)
}

// AddItem records a path published by this deploy.
func (b *Builder) AddItem(relPath, id string) {
	b.fresh++
	b.add(relPath, id)
}

// Counts returns how many paths were added as duplicates and as fresh
// items.
func (b *Builder) Counts() (duplicates, fresh int) {
	return b.duplicates, b.fresh
}

// add registers relPath, and for a nested index.html its directory too,
// so gateways resolve "docs" as well as "docs/index.html".
func (b *Builder) add(relPath, id string) {
	key := Normalize(relPath)
	b.paths.set(key, id)

	if dir, file := path.Split(key); file == IndexFile && dir != "" {
		b.paths.set(strings.TrimSuffix(dir, "/"), id)
	}
}

// Build selects the index and returns the manifest. The index is
// explicitIndex when it names a known path, else index.html when
// present, else the first path added.
func (b *Builder) Build(explicitIndex string) (*Manifest, error) {
	if b.paths.Len() == 0 {
		return nil, ErrEmpty
	}

	index := b.paths.keys[0]
	if _, ok := b.paths.Get(IndexFile); ok {
		index = IndexFile
	}
	if explicitIndex != "" {
		if _, ok := b.paths.Get(Normalize(explicitIndex)); ok {
			index = Normalize(explicitIndex)
		}
	}

	return &Manifest{
		Manifest: Type,
		Version:  Version,
		Index:    Index{Path: index},
		Paths:    b.paths,
	}, nil
}

// Normalize converts a relative path to the forward-slash form used as a
// manifest key.
func Normalize(p string) string {
	p = filepath.ToSlash(filepath.Clean(p))
	return strings.TrimPrefix(p, "./")
}

// RelPath returns file relative to root as a manifest key.
func RelPath(root, file string) (string, error) {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return "", fmt.Errorf("relative path of %s: %w", file, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", file, root)
	}
	return Normalize(rel), nil
}
