package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gomime "github.com/cubewise-code/go-mime"

	"github.com/jamesainslie/weave/pkg/weave/arweave"
	"github.com/jamesainslie/weave/pkg/weave/bundle"
	"github.com/jamesainslie/weave/pkg/weave/cache"
	"github.com/jamesainslie/weave/pkg/weave/hashindex"
	"github.com/jamesainslie/weave/pkg/weave/manifest"
	"github.com/jamesainslie/weave/pkg/weave/merkle"
)

// AgentName identifies this tool in record tags.
const AgentName = "weave"

// DefaultContentType is used when the extension is unknown.
const DefaultContentType = "application/octet-stream"

// Pricer quotes fees and anchors for standalone transactions.
type Pricer interface {
	Price(ctx context.Context, size int64, target string) (string, error)
	Anchor(ctx context.Context) (string, error)
}

// Options control how records are tagged and signed.
type Options struct {
	// Tags are user tags. Canonical tags with the same name replace them.
	Tags []arweave.Tag

	License string

	// ContentType overrides the type detected from the file extension.
	ContentType string

	// FeeMultiplier scales the reward of standalone transactions when
	// greater than 1.
	FeeMultiplier float64

	// Bundler is the endpoint of a remote bundler. Files become data
	// items posted there.
	Bundler string

	// LocalBundle packs every item into one bundle transaction.
	LocalBundle bool

	// Version is written to User-Agent-Version.
	Version string
}

// Bundling reports whether records are data items.
func (o Options) Bundling() bool {
	return o.Bundler != "" || o.LocalBundle
}

// FileInput is one file to publish.
type FileInput struct {
	Path    string
	RelPath string
	Size    int64
	// Hash is the content fingerprint. It is computed when empty.
	Hash string
}

// Factory builds signed content items. It is the only holder of the
// wallet during preparation.
type Factory struct {
	Client Pricer
	Wallet *arweave.Wallet
	Cache  *cache.Cache
}

// BuildFile signs a record for one file and registers it as unconfirmed
// in the cache.
func (f *Factory) BuildFile(ctx context.Context, in FileInput, opts Options) (*ContentItem, error) {
	hash := in.Hash
	if hash == "" {
		var err error
		if hash, err = hashindex.SumFile(in.Path); err != nil {
			return nil, err
		}
	}

	contentType := ContentType(in.Path, opts.ContentType)
	tags := fileTags(opts, contentType, hash)

	var rec Record
	if opts.Bundling() {
		data, err := os.ReadFile(in.Path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", in.Path, err)
		}
		item, err := bundle.CreateItem(f.Wallet, data, tags.List())
		if err != nil {
			return nil, fmt.Errorf("signing %s: %w", in.RelPath, err)
		}
		rec = DataItemRecord(item)
	} else {
		chunks, err := chunkFile(in.Path)
		if err != nil {
			return nil, err
		}
		tx := arweave.NewTransaction(tags.List())
		tx.SetChunks(chunks)
		if err := f.Finalize(ctx, tx, opts.FeeMultiplier); err != nil {
			return nil, fmt.Errorf("signing %s: %w", in.RelPath, err)
		}
		rec = TransactionRecord(tx)
	}

	if f.Cache != nil {
		f.Cache.Set(hash, cache.Entry{ID: rec.ID()})
	}

	return &ContentItem{
		FilePath:    in.Path,
		RelPath:     in.RelPath,
		ContentHash: hash,
		Record:      rec,
		MimeType:    contentType,
		FileSize:    in.Size,
	}, nil
}

// BuildManifest signs the manifest record. Its payload stays in memory.
func (f *Factory) BuildManifest(ctx context.Context, m *manifest.Manifest, opts Options) (*ContentItem, error) {
	data, err := m.JSON()
	if err != nil {
		return nil, err
	}

	tags := baseTags(opts)
	tags.Set("Type", "manifest")
	tags.Set("Content-Type", manifest.ContentType)

	var rec Record
	if opts.Bundling() {
		item, err := bundle.CreateItem(f.Wallet, data, tags.List())
		if err != nil {
			return nil, fmt.Errorf("signing manifest: %w", err)
		}
		rec = DataItemRecord(item)
	} else {
		tx := arweave.NewTransaction(tags.List())
		if err := tx.SetData(data); err != nil {
			return nil, err
		}
		if err := f.Finalize(ctx, tx, opts.FeeMultiplier); err != nil {
			return nil, fmt.Errorf("signing manifest: %w", err)
		}
		rec = TransactionRecord(tx)
	}

	return &ContentItem{
		Record:   rec,
		MimeType: manifest.ContentType,
		FileSize: int64(len(data)),
	}, nil
}

// Finalize sets the anchor and reward of tx and signs it. The reward is
// part of the signed message, so scaling happens first.
func (f *Factory) Finalize(ctx context.Context, tx *arweave.Transaction, multiplier float64) error {
	anchor, err := f.Client.Anchor(ctx)
	if err != nil {
		return err
	}
	size := int64(0)
	if tx.Chunks != nil {
		size = tx.Chunks.DataSize
	}
	reward, err := f.Client.Price(ctx, size, tx.Target)
	if err != nil {
		return err
	}
	if reward, err = arweave.ScaleReward(reward, multiplier); err != nil {
		return err
	}

	tx.LastTx = anchor
	tx.Reward = reward
	return tx.Sign(f.Wallet)
}

// ContentType returns override when set, else the bare media type
// registered for the extension of path, else DefaultContentType. The
// lookup uses an embedded table so the signed tag does not depend on the
// host's mime.types.
func ContentType(path, override string) string {
	if override != "" {
		return override
	}
	ext := filepath.Ext(path)
	if ext == "" {
		return DefaultContentType
	}
	t, _, _ := strings.Cut(gomime.TypeByExtension(ext), ";")
	if t = strings.TrimSpace(t); t != "" {
		return t
	}
	return DefaultContentType
}

// baseTags returns user tags followed by the license and bundler markers.
func baseTags(opts Options) *arweave.Tags {
	tags := arweave.NewTags(opts.Tags...)
	if opts.License != "" {
		tags.Set("License", opts.License)
	}
	if opts.Bundler != "" {
		tags.Set("Bundler", opts.Bundler)
		tags.Set("Bundle", "ans104")
	}
	return tags
}

func fileTags(opts Options, contentType, hash string) *arweave.Tags {
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	tags := baseTags(opts)
	tags.Set("User-Agent", AgentName)
	tags.Set("User-Agent-Version", version)
	tags.Set("Type", "file")
	tags.Set("Content-Type", contentType)
	tags.Set("File-Hash", hash)
	return tags
}

func chunkFile(path string) (*merkle.ChunkSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	chunks, err := merkle.GenerateChunks(f)
	if err != nil {
		return nil, fmt.Errorf("chunking %s: %w", path, err)
	}
	return chunks, nil
}
