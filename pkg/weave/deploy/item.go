// Package deploy turns a file or directory into signed records and
// publishes them. Prepare walks the tree, skips content the dedup cache
// knows is already on the network, signs the rest and appends a path
// manifest; Deploy pays the optional platform fee and hands the records
// to the upload scheduler.
package deploy

import (
	"strconv"

	"github.com/jamesainslie/weave/pkg/weave/arweave"
	"github.com/jamesainslie/weave/pkg/weave/bundle"
)

// RecordKind distinguishes the two record shapes a content item can take.
type RecordKind int

const (
	// RecordTransaction is a standalone network transaction that carries
	// its own reward.
	RecordTransaction RecordKind = iota
	// RecordDataItem is an ANS-104 data item whose fee is paid by the
	// bundle that carries it.
	RecordDataItem
)

func (k RecordKind) String() string {
	switch k {
	case RecordTransaction:
		return "transaction"
	case RecordDataItem:
		return "data item"
	default:
		return "unknown"
	}
}

// Record is a signed transaction or data item.
type Record struct {
	Kind RecordKind
	Tx   *arweave.Transaction
	Item *bundle.DataItem
}

// TransactionRecord wraps a signed transaction.
func TransactionRecord(tx *arweave.Transaction) Record {
	return Record{Kind: RecordTransaction, Tx: tx}
}

// DataItemRecord wraps a signed data item.
func DataItemRecord(item *bundle.DataItem) Record {
	return Record{Kind: RecordDataItem, Item: item}
}

// ID returns the record id.
func (r Record) ID() string {
	switch r.Kind {
	case RecordTransaction:
		return r.Tx.ID
	case RecordDataItem:
		return r.Item.ID()
	default:
		return ""
	}
}

// Signature returns the base64url signature.
func (r Record) Signature() string {
	switch r.Kind {
	case RecordTransaction:
		return r.Tx.Signature
	case RecordDataItem:
		return arweave.EncodeB64(r.Item.Signature)
	default:
		return ""
	}
}

// Reward returns the network fee in winston. Data items carry none.
func (r Record) Reward() string {
	switch r.Kind {
	case RecordTransaction:
		return r.Tx.Reward
	case RecordDataItem:
		return "0"
	default:
		return "0"
	}
}

// DataSize returns the payload size in bytes.
func (r Record) DataSize() int64 {
	switch r.Kind {
	case RecordTransaction:
		if r.Tx.Chunks != nil {
			return r.Tx.Chunks.DataSize
		}
		n, _ := strconv.ParseInt(r.Tx.DataSize, 10, 64)
		return n
	case RecordDataItem:
		return int64(len(r.Item.Data))
	default:
		return 0
	}
}

// Tags returns the record tags in order.
func (r Record) Tags() []arweave.Tag {
	switch r.Kind {
	case RecordTransaction:
		return r.Tx.Tags
	case RecordDataItem:
		return r.Item.Tags
	default:
		return nil
	}
}

// Tag returns the value of the named tag.
func (r Record) Tag(name string) string {
	for _, t := range r.Tags() {
		if t.Name == name {
			return t.Value
		}
	}
	return ""
}

// ContentItem is one signed, uploadable unit: a file or the manifest.
// The manifest item has an empty FilePath and ContentHash.
type ContentItem struct {
	FilePath    string
	RelPath     string
	ContentHash string
	Record      Record
	MimeType    string
	FileSize    int64
}

// IsManifest reports whether the item is the path manifest.
func (c *ContentItem) IsManifest() bool {
	return c.FilePath == "" && c.ContentHash == ""
}

// ID returns the record id.
func (c *ContentItem) ID() string {
	return c.Record.ID()
}
