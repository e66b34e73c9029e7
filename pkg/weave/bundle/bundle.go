package bundle

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/jamesainslie/weave/pkg/weave/arweave"
)

// ErrMalformedBundle is returned when bundle bytes cannot be parsed.
var ErrMalformedBundle = errors.New("malformed bundle")

// Tags carried by the transaction that holds a bundle.
var Tags = []arweave.Tag{
	{Name: "Bundle-Format", Value: "binary"},
	{Name: "Bundle-Version", Value: "2.0.0"},
}

// Bundle is an ordered set of signed items in the ANS-104 binary framing.
type Bundle struct {
	Items []*DataItem
	raw   []byte
}

// BundleAndSign signs any unsigned items with signer and packs them.
func BundleAndSign(signer arweave.Signer, items []*DataItem) (*Bundle, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no items", ErrMalformedBundle)
	}
	for i, item := range items {
		if item.Signed() {
			continue
		}
		if err := item.Sign(signer); err != nil {
			return nil, fmt.Errorf("signing item %d: %w", i, err)
		}
	}

	var headers, body bytes.Buffer
	for _, item := range items {
		raw := item.Bytes()
		headers.Write(le256(uint64(len(raw))))
		headers.Write(item.RawID())
		body.Write(raw)
	}

	var out bytes.Buffer
	out.Write(le256(uint64(len(items))))
	out.Write(headers.Bytes())
	out.Write(body.Bytes())
	return &Bundle{Items: items, raw: out.Bytes()}, nil
}

// Bytes returns the binary encoding.
func (b *Bundle) Bytes() []byte {
	return b.raw
}

// IDs returns the item ids in order.
func (b *Bundle) IDs() []string {
	ids := make([]string, len(b.Items))
	for i, item := range b.Items {
		ids[i] = item.ID()
	}
	return ids
}

// ToTransaction wraps the bundle as the payload of an unsigned
// transaction carrying the bundle tags.
func (b *Bundle) ToTransaction() (*arweave.Transaction, error) {
	tx := arweave.NewTransaction(append([]arweave.Tag(nil), Tags...))
	if err := tx.SetData(b.raw); err != nil {
		return nil, fmt.Errorf("chunking bundle: %w", err)
	}
	return tx, nil
}

// ParseBundle decodes and checks the framing. Each item's id must match
// its header.
func ParseBundle(raw []byte) (*Bundle, error) {
	if len(raw) < 32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedBundle, len(raw))
	}
	count, err := fromLE256(raw[:32])
	if err != nil {
		return nil, err
	}
	if count == 0 || count > uint64(len(raw))/64 {
		return nil, fmt.Errorf("%w: %d items do not fit in %d bytes", ErrMalformedBundle, count, len(raw))
	}
	headerEnd := 32 + count*64
	if uint64(len(raw)) < headerEnd {
		return nil, fmt.Errorf("%w: %d items do not fit in %d bytes", ErrMalformedBundle, count, len(raw))
	}

	items := make([]*DataItem, 0, count)
	offset := headerEnd
	for i := uint64(0); i < count; i++ {
		h := raw[32+i*64 : 32+(i+1)*64]
		size, err := fromLE256(h[:32])
		if err != nil {
			return nil, err
		}
		if size > uint64(len(raw))-offset {
			return nil, fmt.Errorf("%w: item %d overruns bundle", ErrMalformedBundle, i)
		}
		item, err := ParseDataItem(raw[offset : offset+size])
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if !bytes.Equal(item.RawID(), h[32:]) {
			return nil, fmt.Errorf("%w: item %d id does not match header", ErrMalformedBundle, i)
		}
		items = append(items, item)
		offset += size
	}
	return &Bundle{Items: items, raw: raw}, nil
}

func le256(n uint64) []byte {
	b := make([]byte, 32)
	binary.LittleEndian.PutUint64(b, n)
	return b
}

func fromLE256(b []byte) (uint64, error) {
	for _, x := range b[8:] {
		if x != 0 {
			return 0, fmt.Errorf("%w: length exceeds 64 bits", ErrMalformedBundle)
		}
	}
	return binary.LittleEndian.Uint64(b[:8]), nil
}

// Poster sends raw bytes to a URL.
type Poster interface {
	Post(ctx context.Context, endpoint, contentType string, body []byte) error
}

// Client posts individual data items to a remote bundler.
type Client struct {
	poster Poster
}

// NewClient returns a bundler client that sends through poster.
func NewClient(poster Poster) *Client {
	return &Client{poster: poster}
}

// Post submits one signed item to <endpoint>/tx.
func (c *Client) Post(ctx context.Context, item *DataItem, endpoint string) error {
	if !item.Signed() {
		return errors.New("data item is not signed")
	}
	url := strings.TrimRight(endpoint, "/") + "/tx"
	if err := c.poster.Post(ctx, url, "application/octet-stream", item.Bytes()); err != nil {
		return fmt.Errorf("posting item %s to bundler: %w", item.ID(), err)
	}
	return nil
}
