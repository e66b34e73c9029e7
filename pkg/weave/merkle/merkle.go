// Package merkle splits payloads into Arweave chunks and builds the
// Merkle tree whose root commits to the payload and whose per-chunk proofs
// let the gateway verify each chunk independently.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"
)

const (
	// MaxChunkSize is the largest chunk the network accepts.
	MaxChunkSize = 256 * 1024
	// MinChunkSize is the smallest size the final chunk is rebalanced to.
	MinChunkSize = 32 * 1024
	// NoteSize is the width of an encoded byte offset.
	NoteSize = 32
	// HashSize is the width of every node hash.
	HashSize = 32
)

var (
	// ErrChunkTooLarge is returned when a chunk exceeds MaxChunkSize.
	ErrChunkTooLarge = errors.New("merkle: chunk exceeds maximum size")
	// ErrInvalidProof is returned when a chunk fails local verification.
	ErrInvalidProof = errors.New("merkle: invalid chunk proof")
)

// Chunk is a contiguous byte range of the payload.
type Chunk struct {
	DataHash     []byte
	MinByteRange int64
	MaxByteRange int64
}

// Size returns the number of payload bytes covered by the chunk.
func (c Chunk) Size() int64 {
	return c.MaxByteRange - c.MinByteRange
}

// Proof is the inclusion path for one chunk.
type Proof struct {
	Offset int64
	Path   []byte
}

// ChunkSet is the chunking and proof result for one payload. Chunks[i] is
// proven by Proofs[i].
type ChunkSet struct {
	DataRoot []byte
	DataSize int64
	Chunks   []Chunk
	Proofs   []Proof
}

type node struct {
	id           []byte
	dataHash     []byte
	minByteRange int64
	maxByteRange int64
	byteRange    int64
	left         *node
	right        *node
}

func (n *node) leaf() bool {
	return n.dataHash != nil
}

// GenerateChunks reads r to completion and returns its chunk set. Chunks
// are MaxChunkSize bytes except the last two, which are rebalanced so the
// final chunk is not smaller than MinChunkSize when the payload allows it.
// At most MaxChunkSize+MinChunkSize bytes are buffered at once.
func GenerateChunks(r io.Reader) (*ChunkSet, error) {
	var (
		chunks []Chunk
		cursor int64
		eof    bool
	)
	buf := make([]byte, 0, 2*MaxChunkSize+MinChunkSize)
	piece := make([]byte, MaxChunkSize)

	for {
		for !eof && len(buf) < MaxChunkSize+MinChunkSize {
			n, err := io.ReadFull(r, piece)
			buf = append(buf, piece[:n]...)
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				eof = true
			case err != nil:
				return nil, fmt.Errorf("reading payload: %w", err)
			}
		}
		if eof {
			break
		}
		// Enough bytes follow that this chunk cannot need rebalancing.
		chunks = append(chunks, Chunk{
			DataHash:     hash(buf[:MaxChunkSize]),
			MinByteRange: cursor,
			MaxByteRange: cursor + MaxChunkSize,
		})
		cursor += MaxChunkSize
		buf = append(buf[:0], buf[MaxChunkSize:]...)
	}

	chunks = append(chunks, chunkData(buf, cursor)...)
	return build(chunks, cursor+int64(len(buf)))
}

// GenerateChunksBytes is GenerateChunks over an in-memory payload.
func GenerateChunksBytes(data []byte) (*ChunkSet, error) {
	return build(chunkData(data, 0), int64(len(data)))
}

func build(chunks []Chunk, size int64) (*ChunkSet, error) {
	leaves, err := buildLeaves(chunks)
	if err != nil {
		return nil, err
	}
	root := buildLayers(leaves)

	proofs := make([]Proof, 0, len(chunks))
	collectProofs(root, nil, &proofs)

	return &ChunkSet{
		DataRoot: root.id,
		DataSize: size,
		Chunks:   chunks,
		Proofs:   proofs,
	}, nil
}

// ChunkData returns the bytes of chunk i of data.
func (s *ChunkSet) ChunkData(data []byte, i int) []byte {
	c := s.Chunks[i]
	return data[c.MinByteRange:c.MaxByteRange]
}

// chunkData splits data, which starts at offset in the payload. An empty
// data yields one empty chunk.
func chunkData(data []byte, offset int64) []Chunk {
	var chunks []Chunk
	rest := data
	cursor := offset

	for len(rest) >= MaxChunkSize {
		size := MaxChunkSize
		// Split the tail so the last chunk is not undersized.
		nextSize := len(rest) - MaxChunkSize
		if nextSize > 0 && nextSize < MinChunkSize {
			size = (len(rest) + 1) / 2
		}

		piece := rest[:size]
		chunks = append(chunks, Chunk{
			DataHash:     hash(piece),
			MinByteRange: cursor,
			MaxByteRange: cursor + int64(size),
		})
		cursor += int64(size)
		rest = rest[size:]
	}

	if len(rest) > 0 || len(chunks) == 0 {
		chunks = append(chunks, Chunk{
			DataHash:     hash(rest),
			MinByteRange: cursor,
			MaxByteRange: cursor + int64(len(rest)),
		})
	}
	return chunks
}

func buildLeaves(chunks []Chunk) ([]*node, error) {
	leaves := make([]*node, len(chunks))
	for i, c := range chunks {
		if c.Size() > MaxChunkSize {
			return nil, fmt.Errorf("%w: chunk %d is %d bytes", ErrChunkTooLarge, i, c.Size())
		}
		leaves[i] = &node{
			id:           hash(hash(c.DataHash), hash(intToBuffer(c.MaxByteRange))),
			dataHash:     c.DataHash,
			minByteRange: c.MinByteRange,
			maxByteRange: c.MaxByteRange,
		}
	}
	return leaves, nil
}

func buildLayers(nodes []*node) *node {
	for len(nodes) > 1 {
		next := make([]*node, 0, (len(nodes)+1)/2)
		for i := 0; i < len(nodes); i += 2 {
			if i+1 == len(nodes) {
				next = append(next, nodes[i])
				continue
			}
			next = append(next, branch(nodes[i], nodes[i+1]))
		}
		nodes = next
	}
	return nodes[0]
}

func branch(left, right *node) *node {
	return &node{
		id:           hash(hash(left.id), hash(right.id), hash(intToBuffer(left.maxByteRange))),
		byteRange:    left.maxByteRange,
		maxByteRange: right.maxByteRange,
		left:         left,
		right:        right,
	}
}

func collectProofs(n *node, prefix []byte, out *[]Proof) {
	if n.leaf() {
		path := make([]byte, 0, len(prefix)+HashSize+NoteSize)
		path = append(path, prefix...)
		path = append(path, n.dataHash...)
		path = append(path, intToBuffer(n.maxByteRange)...)
		*out = append(*out, Proof{Offset: n.maxByteRange - 1, Path: path})
		return
	}

	partial := make([]byte, 0, len(prefix)+2*HashSize+NoteSize)
	partial = append(partial, prefix...)
	partial = append(partial, n.left.id...)
	partial = append(partial, n.right.id...)
	partial = append(partial, intToBuffer(n.byteRange)...)

	collectProofs(n.left, partial, out)
	collectProofs(n.right, partial, out)
}

// ValidatePath checks that path proves the byte at dest lies in a chunk
// committed to by id within [leftBound, rightBound).
func ValidatePath(id []byte, dest, leftBound, rightBound int64, path []byte) bool {
	_, ok := validatePath(id, dest, leftBound, rightBound, path)
	return ok
}

// leafProof is the terminal element of a validated path.
type leafProof struct {
	dataHash []byte
	left     int64
	right    int64
}

func validatePath(id []byte, dest, leftBound, rightBound int64, path []byte) (leafProof, bool) {
	if rightBound <= 0 {
		return leafProof{}, false
	}
	if dest >= rightBound {
		return validatePath(id, rightBound-1, leftBound, rightBound, path)
	}
	if dest < 0 {
		return validatePath(id, 0, leftBound, rightBound, path)
	}

	if len(path) == HashSize+NoteSize {
		dataHash := path[:HashSize]
		endOffset := path[HashSize:]
		if !bytes.Equal(id, hash(hash(dataHash), hash(endOffset))) {
			return leafProof{}, false
		}
		return leafProof{dataHash: dataHash, left: leftBound, right: rightBound}, true
	}

	if len(path) < 2*HashSize+NoteSize {
		return leafProof{}, false
	}
	left := path[:HashSize]
	right := path[HashSize : 2*HashSize]
	offsetBuf := path[2*HashSize : 2*HashSize+NoteSize]
	offset := bufferToInt(offsetBuf)
	remainder := path[2*HashSize+NoteSize:]

	if !bytes.Equal(id, hash(hash(left), hash(right), hash(offsetBuf))) {
		return leafProof{}, false
	}
	if dest < offset {
		return validatePath(left, dest, leftBound, min(rightBound, offset), remainder)
	}
	return validatePath(right, dest, max(leftBound, offset), rightBound, remainder)
}

// VerifyChunk checks a chunk against the data root: the proof must be
// valid for the chunk's offset, the chunk must hash to the proven leaf and
// its length must equal the proven range.
func VerifyChunk(dataRoot []byte, dataSize int64, proof Proof, chunk []byte) bool {
	if dataSize == 0 {
		return verifyEmpty(dataRoot, proof, chunk)
	}
	leaf, ok := validatePath(dataRoot, proof.Offset, 0, dataSize, proof.Path)
	if !ok {
		return false
	}
	if !bytes.Equal(leaf.dataHash, hash(chunk)) {
		return false
	}
	return int64(len(chunk)) == leaf.right-leaf.left
}

// verifyEmpty checks the single empty chunk of a zero-length payload. Its
// proof is a bare leaf whose range ends at 0.
func verifyEmpty(dataRoot []byte, proof Proof, chunk []byte) bool {
	if len(chunk) != 0 || len(proof.Path) != HashSize+NoteSize {
		return false
	}
	dataHash := proof.Path[:HashSize]
	endOffset := proof.Path[HashSize:]
	if bufferToInt(endOffset) != 0 {
		return false
	}
	if !bytes.Equal(dataHash, hash(chunk)) {
		return false
	}
	return bytes.Equal(dataRoot, hash(hash(dataHash), hash(endOffset)))
}

func hash(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// intToBuffer encodes n as a NoteSize-byte big-endian integer.
func intToBuffer(n int64) []byte {
	buf := make([]byte, NoteSize)
	big.NewInt(n).FillBytes(buf)
	return buf
}

func bufferToInt(buf []byte) int64 {
	return new(big.Int).SetBytes(buf).Int64()
}
