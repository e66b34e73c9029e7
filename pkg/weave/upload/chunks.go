package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/weave/pkg/weave/arweave"
	"github.com/jamesainslie/weave/pkg/weave/merkle"
	"github.com/jamesainslie/weave/pkg/weave/retry"
)

var errNoChunks = errors.New("transaction has no chunk set")

// streamChunks posts the transaction header, then reads the payload chunk
// by chunk, checks each proof locally and posts it. Chunk posts run
// concurrently up to ChunkConcurrency; the first terminal failure stops
// the rest.
func (s *Scheduler) streamChunks(ctx context.Context, job Job) error {
	tx := job.Tx
	if tx.Chunks == nil {
		return errNoChunks
	}

	_, err := retry.Do(ctx, s.policy(), func(ctx context.Context, _ int) error {
		return s.Gateway.PostTransaction(ctx, tx)
	})
	if err != nil {
		return fmt.Errorf("posting header: %w", err)
	}
	if tx.Chunks.DataSize == 0 {
		return nil
	}

	src, err := s.openPayload(job)
	if err != nil {
		return err
	}
	defer src.Close()

	limit := s.ChunkConcurrency
	if limit <= 0 {
		limit = DefaultChunkConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	total := len(tx.Chunks.Chunks)
	var done atomic.Int64
	var sent atomic.Int64

	for i, chunk := range tx.Chunks.Chunks {
		buf := make([]byte, chunk.Size())
		if _, err := io.ReadFull(src, buf); err != nil {
			_ = g.Wait()
			return fmt.Errorf("reading chunk %d: %w", i, err)
		}
		proof := tx.Chunks.Proofs[i]
		if !merkle.VerifyChunk(tx.Chunks.DataRoot, tx.Chunks.DataSize, proof, buf) {
			_ = g.Wait()
			return fmt.Errorf("chunk %d: %w", i, merkle.ErrInvalidProof)
		}
		if gctx.Err() != nil {
			break
		}

		upload := &arweave.ChunkUpload{
			DataRoot: tx.DataRoot,
			DataSize: tx.DataSize,
			DataPath: arweave.EncodeB64(proof.Path),
			Offset:   strconv.FormatInt(proof.Offset, 10),
			Chunk:    arweave.EncodeB64(buf),
		}
		g.Go(func() error {
			_, err := retry.Do(gctx, s.policy(), func(ctx context.Context, _ int) error {
				return s.Gateway.PostChunk(ctx, upload)
			})
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			n := done.Add(1)
			b := sent.Add(int64(len(buf)))
			s.emit(Event{Label: job.Label, ID: tx.ID, State: StateUploading, ChunksDone: int(n), ChunksTotal: total, Bytes: b})
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) openPayload(job Job) (io.ReadCloser, error) {
	if job.Open != nil {
		rc, err := job.Open()
		if err != nil {
			return nil, fmt.Errorf("reopening payload: %w", err)
		}
		return rc, nil
	}
	if job.Tx.Data == nil {
		return nil, errors.New("transaction payload is not available")
	}
	return io.NopCloser(bytes.NewReader(job.Tx.Data)), nil
}
