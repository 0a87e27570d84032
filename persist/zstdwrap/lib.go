// Package zstdwrap wraps any hstore.Persist with transparent zstd
// compression of block bytes at rest. Callers observe exactly the
// bytes they stored; only the wrapped layer sees compressed data.
// Canonical JSON blocks compress well, typically 2-4x for state with
// repeated keys.
package zstdwrap

import (
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/jrhy/hstore"
)

// Persist compresses block bytes on the way into the wrapped Persist
// and decompresses on the way out.
type Persist struct {
	inner hstore.Persist
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// New wraps the given Persist. The encoder and decoder are shared and
// safe for concurrent EncodeAll/DecodeAll use.
func New(inner hstore.Persist) (*Persist, error) {
	if inner == nil {
		return nil, fmt.Errorf("%w: zstdwrap requires a Persist to wrap", hstore.ErrConfig)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Persist{inner: inner, enc: enc, dec: dec}, nil
}

// Store compresses the given bytes and persists them under the given
// key.
func (p *Persist) Store(ctx context.Context, key string, value []byte) error {
	compressed := p.enc.EncodeAll(value, nil)
	return p.inner.Store(ctx, key, compressed)
}

// Load retrieves and decompresses the bytes under the given key.
func (p *Persist) Load(ctx context.Context, key string) ([]byte, error) {
	compressed, err := p.inner.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	value, err := p.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", key, err)
	}
	return value, nil
}
