package hstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Cascade composes ordered Persist layers, fastest first, into one
// Persist. Writes go through to every layer; reads are satisfied by
// the fastest layer that has the block, and the block is hydrated up
// into the faster layers so later reads stop sooner. Blocks are
// defensively copied at every crossing, so a caller that keeps mutating
// a buffer it stored cannot corrupt any layer.
type Cascade struct {
	layers []Persist
}

// NewCascade composes the given layers. At least one layer is
// required.
func NewCascade(layers ...Persist) (*Cascade, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: cascade requires at least one layer", ErrConfig)
	}
	owned := make([]Persist, len(layers))
	copy(owned, layers)
	return &Cascade{layers: owned}, nil
}

// Store fans the block out to all layers concurrently and returns when
// every layer has acknowledged. The first layer error is returned.
func (c *Cascade) Store(ctx context.Context, key string, value []byte) error {
	value = copyBytes(value)
	return c.fanOut(ctx, c.layers, key, value)
}

// Load probes layers in order. On a hit at layer k, the block is
// written concurrently to layers 0..k-1 before returning; hydration
// cannot change the observed bytes, which always come from the first
// layer that had the block.
func (c *Cascade) Load(ctx context.Context, key string) ([]byte, error) {
	for i, layer := range c.layers {
		value, err := layer.Load(ctx, key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("cascade layer %d: %w", i, err)
		}
		value = copyBytes(value)
		if i > 0 {
			if err := c.fanOut(ctx, c.layers[:i], key, value); err != nil {
				return nil, fmt.Errorf("hydrate %s: %w", key, err)
			}
		}
		return value, nil
	}
	return nil, fmt.Errorf("cascade entry %s: %w", key, ErrNotFound)
}

// fanOut stores the value in each layer concurrently, giving each
// layer its own copy of the bytes, and reports the first error.
func (c *Cascade) fanOut(ctx context.Context, layers []Persist, key string, value []byte) error {
	if len(layers) == 1 {
		return layers[0].Store(ctx, key, copyBytes(value))
	}
	var (
		wg       sync.WaitGroup
		errLock  sync.Mutex
		firstErr error
	)
	for i, layer := range layers {
		wg.Add(1)
		go func(i int, layer Persist) {
			defer wg.Done()
			if err := layer.Store(ctx, key, copyBytes(value)); err != nil {
				errLock.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("cascade layer %d: %w", i, err)
				}
				errLock.Unlock()
			}
		}(i, layer)
	}
	wg.Wait()
	return firstErr
}
