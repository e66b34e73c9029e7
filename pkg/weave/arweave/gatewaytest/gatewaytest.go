// Package gatewaytest provides an in-process fake Arweave gateway for
// tests. It verifies transaction signatures and chunk proofs the way a
// real node does, reassembles chunked payloads, and can inject failures.
package gatewaytest

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/jamesainslie/weave/pkg/weave/arweave"
	"github.com/jamesainslie/weave/pkg/weave/merkle"
)

var (
	walletOnce sync.Once
	wallet     *arweave.Wallet
	walletErr  error
)

// Wallet returns a 4096-bit wallet shared by every test in the process.
func Wallet(t testing.TB) *arweave.Wallet {
	t.Helper()
	walletOnce.Do(func() {
		wallet, walletErr = arweave.GenerateWallet(rand.Reader, 4096)
	})
	if walletErr != nil {
		t.Fatalf("generating wallet: %v", walletErr)
	}
	return wallet
}

// Anchor is the value served by /tx_anchor.
var Anchor = arweave.EncodeB64(bytes.Repeat([]byte{0x42}, 48))

// Price returns the fake reward for size bytes.
func Price(size int64) int64 {
	return 1000 + size*10
}

// StoredTx is a transaction accepted by the fake.
type StoredTx struct {
	Tx            *arweave.Transaction
	Data          []byte
	chunks        map[int64][]byte
	Confirmations int64
	Confirmed     bool
}

// Complete reports whether the full payload has been received.
func (s *StoredTx) Complete() bool {
	size, _ := strconv.ParseInt(s.Tx.DataSize, 10, 64)
	return int64(len(s.Data)) == size
}

// Post is one raw bundler submission.
type Post struct {
	Path        string
	ContentType string
	Body        []byte
}

type fault struct {
	remaining int
	status    int
	body      string
}

// Gateway is the fake gateway. Its zero value is not usable; call New.
type Gateway struct {
	*httptest.Server

	mu            sync.Mutex
	txs           map[string]*StoredTx
	byRoot        map[string]*StoredTx
	balances      map[string]string
	data          map[string][]byte
	posts         []Post
	txAttempts    int
	chunkAttempts int
	acceptedChunk int
	statusCalls   int
	txFault       fault
	chunkFault    fault
	statusFault   fault
}

// New starts a fake gateway that is closed when the test ends.
func New(t testing.TB) *Gateway {
	t.Helper()
	g := &Gateway{
		txs:      make(map[string]*StoredTx),
		byRoot:   make(map[string]*StoredTx),
		balances: make(map[string]string),
		data:     make(map[string][]byte),
	}
	g.Server = httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(g.Close)
	return g
}

// Client returns a gateway client pointed at the fake.
func (g *Gateway) Client(t testing.TB) *arweave.Client {
	t.Helper()
	c, err := arweave.NewClient(g.URL, 0)
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}
	return c
}

// SetBalance sets the winston balance served for address.
func (g *Gateway) SetBalance(address, winston string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balances[address] = winston
}

// PutData serves body at /{id}.
func (g *Gateway) PutData(id string, body []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.data[id] = body
}

// Confirm marks id as mined with n confirmations. It may be called for
// ids the fake never received, to simulate content published elsewhere.
func (g *Gateway) Confirm(id string, n int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	stored, ok := g.txs[id]
	if !ok {
		stored = &StoredTx{Tx: &arweave.Transaction{ID: id}}
		g.txs[id] = stored
	}
	stored.Confirmed = true
	stored.Confirmations = n
}

// FailTx makes the next n transaction posts return status.
func (g *Gateway) FailTx(n, status int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.txFault = fault{remaining: n, status: status}
}

// FailChunks makes the next n chunk posts return status. A negative n
// fails every chunk post.
func (g *Gateway) FailChunks(n, status int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chunkFault = fault{remaining: n, status: status}
}

// RejectChunks makes every chunk post fail with the given protocol error.
func (g *Gateway) RejectChunks(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chunkFault = fault{remaining: -1, status: http.StatusBadRequest, body: `{"error":"` + code + `"}`}
}

// FailStatus makes the next n status lookups return status.
func (g *Gateway) FailStatus(n, status int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusFault = fault{remaining: n, status: status}
}

// Tx returns the stored transaction with id.
func (g *Gateway) Tx(id string) (*StoredTx, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.txs[id]
	return s, ok
}

// Transactions returns the ids of every transaction posted, sorted.
func (g *Gateway) Transactions() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var ids []string
	for id, s := range g.txs {
		if s.Tx.Signature != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Posts returns the raw bundler submissions received.
func (g *Gateway) Posts() []Post {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Post, len(g.posts))
	copy(out, g.posts)
	return out
}

// TxAttempts counts transaction posts, including failed ones.
func (g *Gateway) TxAttempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.txAttempts
}

// ChunkAttempts counts chunk posts, including failed ones.
func (g *Gateway) ChunkAttempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.chunkAttempts
}

// AcceptedChunks counts chunk posts that were stored.
func (g *Gateway) AcceptedChunks() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.acceptedChunk
}

// StatusCalls counts status lookups, including failed ones.
func (g *Gateway) StatusCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusCalls
}

func (f *fault) trip() (int, string, bool) {
	if f.remaining == 0 {
		return 0, "", false
	}
	if f.remaining > 0 {
		f.remaining--
	}
	return f.status, f.body, true
}

func (g *Gateway) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(r.URL.Path, "/")
	parts := strings.Split(path, "/")

	switch {
	case r.Method == http.MethodPost && path == "tx":
		g.postTx(w, r)
	case r.Method == http.MethodPost && path == "chunk":
		g.postChunk(w, r)
	case r.Method == http.MethodGet && path == "tx_anchor":
		fmt.Fprint(w, Anchor)
	case r.Method == http.MethodGet && path == "info":
		g.info(w)
	case r.Method == http.MethodGet && parts[0] == "price" && len(parts) >= 2:
		size, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			http.Error(w, "bad size", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, Price(size))
	case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "tx" && parts[2] == "status":
		g.status(w, parts[1])
	case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "wallet" && parts[2] == "balance":
		g.mu.Lock()
		balance, ok := g.balances[parts[1]]
		g.mu.Unlock()
		if !ok {
			balance = "0"
		}
		fmt.Fprint(w, balance)
	case r.Method == http.MethodGet && len(parts) == 1:
		g.getData(w, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (g *Gateway) postTx(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.txAttempts++

	if status, msg, ok := g.txFault.trip(); ok {
		http.Error(w, msg, status)
		return
	}

	if ct := r.Header.Get("Content-Type"); ct == "application/octet-stream" {
		g.posts = append(g.posts, Post{Path: r.URL.Path, ContentType: ct, Body: body})
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{}`)
		return
	}

	var tx arweave.Transaction
	if err := json.Unmarshal(body, &tx); err != nil {
		http.Error(w, "invalid_json", http.StatusBadRequest)
		return
	}
	if !tx.Verify() {
		http.Error(w, "invalid_signature", http.StatusBadRequest)
		return
	}

	stored, ok := g.txs[tx.ID]
	if !ok || stored.Tx.Signature == "" {
		stored = &StoredTx{Tx: &tx, chunks: make(map[int64][]byte)}
		if prev, had := g.txs[tx.ID]; had {
			stored.Confirmed, stored.Confirmations = prev.Confirmed, prev.Confirmations
		}
		g.txs[tx.ID] = stored
	}
	if len(tx.Data) > 0 {
		if !g.dataMatches(&tx) {
			http.Error(w, "invalid_data_root", http.StatusBadRequest)
			return
		}
		stored.Data = tx.Data
	}
	if tx.DataRoot != "" {
		g.byRoot[tx.DataRoot] = stored
	}
	w.WriteHeader(http.StatusOK)
}

func (g *Gateway) dataMatches(tx *arweave.Transaction) bool {
	set, err := merkle.GenerateChunksBytes(tx.Data)
	if err != nil {
		return false
	}
	return arweave.EncodeB64(set.DataRoot) == tx.DataRoot && strconv.FormatInt(set.DataSize, 10) == tx.DataSize
}

func (g *Gateway) postChunk(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.chunkAttempts++

	if status, msg, ok := g.chunkFault.trip(); ok {
		http.Error(w, msg, status)
		return
	}

	var up arweave.ChunkUpload
	if err := json.Unmarshal(body, &up); err != nil {
		http.Error(w, `{"error":"invalid_json"}`, http.StatusBadRequest)
		return
	}
	root, err1 := arweave.DecodeB64(up.DataRoot)
	path, err2 := arweave.DecodeB64(up.DataPath)
	chunk, err3 := arweave.DecodeB64(up.Chunk)
	size, err4 := strconv.ParseInt(up.DataSize, 10, 64)
	offset, err5 := strconv.ParseInt(up.Offset, 10, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		http.Error(w, `{"error":"invalid_json"}`, http.StatusBadRequest)
		return
	}
	if len(chunk) > merkle.MaxChunkSize {
		http.Error(w, `{"error":"chunk_too_big"}`, http.StatusBadRequest)
		return
	}
	if !merkle.VerifyChunk(root, size, merkle.Proof{Offset: offset, Path: path}, chunk) {
		http.Error(w, `{"error":"invalid_proof"}`, http.StatusBadRequest)
		return
	}

	stored, ok := g.byRoot[up.DataRoot]
	if !ok {
		http.Error(w, `{"error":"data_root_not_found"}`, http.StatusBadRequest)
		return
	}
	g.acceptedChunk++
	start := offset + 1 - int64(len(chunk))
	stored.chunks[start] = chunk
	g.assemble(stored, size)
	w.WriteHeader(http.StatusOK)
}

func (g *Gateway) assemble(s *StoredTx, size int64) {
	var buf bytes.Buffer
	for int64(buf.Len()) < size {
		next, ok := s.chunks[int64(buf.Len())]
		if !ok {
			return
		}
		buf.Write(next)
	}
	s.Data = buf.Bytes()
}

func (g *Gateway) status(w http.ResponseWriter, id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls++

	if status, msg, ok := g.statusFault.trip(); ok {
		http.Error(w, msg, status)
		return
	}

	stored, ok := g.txs[id]
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if !stored.Confirmed {
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, "Pending")
		return
	}
	_ = json.NewEncoder(w).Encode(arweave.TxStatus{
		BlockHeight:           1000,
		BlockIndepHash:        arweave.EncodeB64(bytes.Repeat([]byte{0x07}, 48)),
		NumberOfConfirmations: stored.Confirmations,
	})
}

func (g *Gateway) info(w http.ResponseWriter) {
	g.mu.Lock()
	blocks := int64(len(g.txs))
	g.mu.Unlock()
	_ = json.NewEncoder(w).Encode(arweave.NetworkInfo{
		Network: "arweave.localtest",
		Version: 5,
		Release: 69,
		Height:  1000 + blocks,
		Current: Anchor,
		Blocks:  1001,
		Peers:   3,
	})
}

func (g *Gateway) getData(w http.ResponseWriter, id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if body, ok := g.data[id]; ok {
		_, _ = w.Write(body)
		return
	}
	if stored, ok := g.txs[id]; ok && stored.Complete() {
		_, _ = w.Write(stored.Data)
		return
	}
	http.NotFound(w, nil)
}
