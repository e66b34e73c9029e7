package arweave

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jamesainslie/weave/pkg/weave/merkle"
)

// ErrUnsigned is returned when an operation needs a signed transaction.
var ErrUnsigned = errors.New("transaction is not signed")

// Transaction is a format 2 Arweave transaction. Data is carried
// separately from the header: it is embedded in the JSON body only for
// whole-payload submission and otherwise uploaded as chunks.
type Transaction struct {
	Format    int
	ID        string
	LastTx    string
	Owner     string
	Tags      []Tag
	Target    string
	Quantity  string
	DataSize  string
	DataRoot  string
	Reward    string
	Signature string

	// Data is the payload, when held in memory.
	Data []byte
	// Chunks is the chunk set the data root was computed from.
	Chunks *merkle.ChunkSet

	embedData bool
}

// NewTransaction returns an unsigned format 2 transaction with zero
// quantity and the given tags.
func NewTransaction(tags []Tag) *Transaction {
	return &Transaction{Format: 2, Quantity: "0", Reward: "0", Tags: tags}
}

// SetData attaches an in-memory payload and computes its chunk set.
func (tx *Transaction) SetData(data []byte) error {
	chunks, err := merkle.GenerateChunksBytes(data)
	if err != nil {
		return err
	}
	tx.Data = data
	tx.SetChunks(chunks)
	return nil
}

// SetChunks commits the transaction to a precomputed chunk set, for
// payloads that stay on disk.
func (tx *Transaction) SetChunks(chunks *merkle.ChunkSet) {
	tx.Chunks = chunks
	tx.DataSize = strconv.FormatInt(chunks.DataSize, 10)
	if chunks.DataSize > 0 {
		tx.DataRoot = EncodeB64(chunks.DataRoot)
	} else {
		tx.DataRoot = ""
	}
}

// AddTag appends a tag.
func (tx *Transaction) AddTag(name, value string) {
	tx.Tags = append(tx.Tags, Tag{Name: name, Value: value})
}

// SignatureData returns the deep hash message covered by the signature.
func (tx *Transaction) SignatureData() []byte {
	tags := make([]any, len(tx.Tags))
	for i, tag := range tx.Tags {
		tags[i] = []any{[]byte(tag.Name), []byte(tag.Value)}
	}

	return DeepHash([]any{
		[]byte(strconv.Itoa(tx.Format)),
		mustDecodeB64(tx.Owner),
		mustDecodeB64(tx.Target),
		[]byte(tx.Quantity),
		[]byte(tx.Reward),
		mustDecodeB64(tx.LastTx),
		tags,
		[]byte(tx.DataSize),
		mustDecodeB64(tx.DataRoot),
	})
}

// Sign sets the owner, signs the transaction and derives its id.
func (tx *Transaction) Sign(w *Wallet) error {
	tx.Owner = w.OwnerB64()
	sig, err := w.Sign(tx.SignatureData())
	if err != nil {
		return err
	}
	tx.Signature = EncodeB64(sig)
	id := sha256.Sum256(sig)
	tx.ID = EncodeB64(id[:])
	return nil
}

// Verify checks the signature and that the id matches it.
func (tx *Transaction) Verify() bool {
	sig, err := DecodeB64(tx.Signature)
	if err != nil || len(sig) == 0 {
		return false
	}
	id := sha256.Sum256(sig)
	if EncodeB64(id[:]) != tx.ID {
		return false
	}
	owner, err := DecodeB64(tx.Owner)
	if err != nil {
		return false
	}
	return VerifySignature(owner, tx.SignatureData(), sig)
}

// WithData returns a shallow copy whose JSON body embeds the payload.
func (tx *Transaction) WithData() *Transaction {
	cp := *tx
	cp.embedData = true
	return &cp
}

type wireTransaction struct {
	Format    int       `json:"format"`
	ID        string    `json:"id"`
	LastTx    string    `json:"last_tx"`
	Owner     string    `json:"owner"`
	Tags      []wireTag `json:"tags"`
	Target    string    `json:"target"`
	Quantity  string    `json:"quantity"`
	Data      string    `json:"data"`
	DataSize  string    `json:"data_size"`
	DataRoot  string    `json:"data_root"`
	Reward    string    `json:"reward"`
	Signature string    `json:"signature"`
}

// MarshalJSON encodes the transaction in the gateway's wire format.
func (tx *Transaction) MarshalJSON() ([]byte, error) {
	w := wireTransaction{
		Format:    tx.Format,
		ID:        tx.ID,
		LastTx:    tx.LastTx,
		Owner:     tx.Owner,
		Tags:      encodeWireTags(tx.Tags),
		Target:    tx.Target,
		Quantity:  tx.Quantity,
		DataSize:  tx.DataSize,
		DataRoot:  tx.DataRoot,
		Reward:    tx.Reward,
		Signature: tx.Signature,
	}
	if tx.embedData {
		w.Data = EncodeB64(tx.Data)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the gateway's wire format.
func (tx *Transaction) UnmarshalJSON(data []byte) error {
	var w wireTransaction
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	tags, err := decodeWireTags(w.Tags)
	if err != nil {
		return fmt.Errorf("decoding tags: %w", err)
	}
	payload, err := DecodeB64(w.Data)
	if err != nil {
		return fmt.Errorf("decoding data: %w", err)
	}

	*tx = Transaction{
		Format:    w.Format,
		ID:        w.ID,
		LastTx:    w.LastTx,
		Owner:     w.Owner,
		Tags:      tags,
		Target:    w.Target,
		Quantity:  w.Quantity,
		DataSize:  w.DataSize,
		DataRoot:  w.DataRoot,
		Reward:    w.Reward,
		Signature: w.Signature,
		Data:      payload,
		embedData: len(payload) > 0,
	}
	return nil
}

// TagValue returns the value of the first tag with the given name.
func (tx *Transaction) TagValue(name string) (string, bool) {
	for _, tag := range tx.Tags {
		if tag.Name == name {
			return tag.Value, true
		}
	}
	return "", false
}
