// Package bundle implements ANS-104 data items and bundles: many signed
// items packed into the payload of a single network transaction, or posted
// one by one to a remote bundler.
package bundle

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/jamesainslie/weave/pkg/weave/arweave"
)

const (
	// SignatureTypeArweave is RSA-PSS with a 4096-bit key.
	SignatureTypeArweave = 1
	signatureLen         = 512
	ownerLen             = 512
	targetLen            = 32
	anchorLen            = 32
)

// ErrMalformedItem is returned when data item bytes cannot be parsed.
var ErrMalformedItem = errors.New("malformed data item")

// DataItem is one signed ANS-104 record.
type DataItem struct {
	SignatureType uint16
	Signature     []byte
	Owner         []byte
	Target        []byte
	Anchor        []byte
	Tags          []arweave.Tag
	Data          []byte
}

// CreateItem builds and signs a data item.
func CreateItem(signer arweave.Signer, data []byte, tags []arweave.Tag) (*DataItem, error) {
	item := &DataItem{
		SignatureType: SignatureTypeArweave,
		Tags:          tags,
		Data:          data,
	}
	if err := item.Sign(signer); err != nil {
		return nil, err
	}
	return item, nil
}

// Sign sets the owner and signature.
func (d *DataItem) Sign(signer arweave.Signer) error {
	if err := validateTags(d.Tags); err != nil {
		return err
	}
	owner := signer.Owner()
	if len(owner) != ownerLen {
		return fmt.Errorf("data item owner must be %d bytes, got %d", ownerLen, len(owner))
	}
	d.SignatureType = SignatureTypeArweave
	d.Owner = owner

	msg, err := d.signatureData()
	if err != nil {
		return err
	}
	sig, err := signer.Sign(msg)
	if err != nil {
		return err
	}
	d.Signature = sig
	return nil
}

// Signed reports whether the item carries a signature.
func (d *DataItem) Signed() bool {
	return len(d.Signature) > 0
}

// RawID is the SHA-256 of the signature.
func (d *DataItem) RawID() []byte {
	if !d.Signed() {
		return nil
	}
	sum := sha256.Sum256(d.Signature)
	return sum[:]
}

// ID is the item id in wire encoding.
func (d *DataItem) ID() string {
	if !d.Signed() {
		return ""
	}
	return arweave.EncodeB64(d.RawID())
}

// TagValue returns the value of the first tag named name.
func (d *DataItem) TagValue(name string) (string, bool) {
	for _, t := range d.Tags {
		if t.Name == name {
			return t.Value, true
		}
	}
	return "", false
}

func (d *DataItem) signatureData() ([]byte, error) {
	tagBytes, err := encodeTags(d.Tags)
	if err != nil {
		return nil, err
	}
	return arweave.DeepHash([]any{
		[]byte("dataitem"),
		[]byte("1"),
		[]byte(fmt.Sprint(d.SignatureType)),
		d.Owner,
		d.Target,
		d.Anchor,
		tagBytes,
		d.Data,
	}), nil
}

// tagBytes is the Avro encoding of the tags. Marshal only fails on a
// schema mismatch, which avroTag rules out.
func (d *DataItem) tagBytes() []byte {
	b, _ := encodeTags(d.Tags)
	return b
}

// Verify checks the signature over the item's contents.
func (d *DataItem) Verify() bool {
	if d.SignatureType != SignatureTypeArweave || len(d.Signature) != signatureLen || len(d.Owner) != ownerLen {
		return false
	}
	msg, err := d.signatureData()
	if err != nil {
		return false
	}
	return arweave.VerifySignature(d.Owner, msg, d.Signature)
}

// Bytes returns the binary encoding of a signed item.
func (d *DataItem) Bytes() []byte {
	tagBytes := d.tagBytes()

	var buf bytes.Buffer
	buf.Grow(2 + signatureLen + ownerLen + 2 + len(d.Target) + len(d.Anchor) + 16 + len(tagBytes) + len(d.Data))

	_ = binary.Write(&buf, binary.LittleEndian, d.SignatureType)
	buf.Write(padTo(d.Signature, signatureLen))
	buf.Write(padTo(d.Owner, ownerLen))
	writeOptional(&buf, d.Target)
	writeOptional(&buf, d.Anchor)
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(d.Tags)))
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(tagBytes)))
	buf.Write(tagBytes)
	buf.Write(d.Data)
	return buf.Bytes()
}

// Size is the length of Bytes().
func (d *DataItem) Size() int {
	return 2 + signatureLen + ownerLen + 2 + len(d.Target) + len(d.Anchor) + 16 + len(d.tagBytes()) + len(d.Data)
}

func padTo(b []byte, n int) []byte {
	if len(b) >= n {
		return b[:n]
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func writeOptional(buf *bytes.Buffer, b []byte) {
	if len(b) == 0 {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	buf.Write(b)
}

// ParseDataItem decodes the binary encoding of an item.
func ParseDataItem(raw []byte) (*DataItem, error) {
	r := &cursor{buf: raw}

	sigType, err := r.uint16()
	if err != nil {
		return nil, err
	}
	if sigType != SignatureTypeArweave {
		return nil, fmt.Errorf("%w: unsupported signature type %d", ErrMalformedItem, sigType)
	}
	item := &DataItem{SignatureType: sigType}

	if item.Signature, err = r.take(signatureLen); err != nil {
		return nil, err
	}
	if item.Owner, err = r.take(ownerLen); err != nil {
		return nil, err
	}
	if item.Target, err = r.optional(targetLen); err != nil {
		return nil, err
	}
	if item.Anchor, err = r.optional(anchorLen); err != nil {
		return nil, err
	}

	tagCount, err := r.uint64()
	if err != nil {
		return nil, err
	}
	tagLen, err := r.uint64()
	if err != nil {
		return nil, err
	}
	if tagLen > uint64(len(raw)) {
		return nil, fmt.Errorf("%w: tag length %d exceeds item", ErrMalformedItem, tagLen)
	}
	tagBytes, err := r.take(int(tagLen))
	if err != nil {
		return nil, err
	}
	if item.Tags, err = decodeTags(tagBytes, int(tagCount)); err != nil {
		return nil, err
	}

	item.Data = raw[r.pos:]
	return item, nil
}

// VerifyDataItem parses raw and checks its signature.
func VerifyDataItem(raw []byte) bool {
	item, err := ParseDataItem(raw)
	if err != nil {
		return false
	}
	return item.Verify()
}

type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) take(n int) ([]byte, error) {
	if n < 0 || len(c.buf)-c.pos < n {
		return nil, fmt.Errorf("%w: truncated at byte %d", ErrMalformedItem, c.pos)
	}
	out := c.buf[c.pos : c.pos+n]
	c.pos += n
	return out, nil
}

func (c *cursor) uint16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *cursor) uint64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (c *cursor) optional(n int) ([]byte, error) {
	flag, err := c.take(1)
	if err != nil {
		return nil, err
	}
	switch flag[0] {
	case 0:
		return nil, nil
	case 1:
		return c.take(n)
	default:
		return nil, fmt.Errorf("%w: bad presence byte %d", ErrMalformedItem, flag[0])
	}
}
