package hstore

import (
	"context"
	"fmt"
	"sync"
)

var ctx = context.Background()

// countingStore wraps a Persist and counts operations, for asserting
// dedup behavior.
type countingStore struct {
	inner  Persist
	l      sync.Mutex
	stores int
	loads  int
}

func newCountingStore(inner Persist) *countingStore {
	return &countingStore{inner: inner}
}

func (c *countingStore) Store(ctx context.Context, key string, value []byte) error {
	c.l.Lock()
	c.stores++
	c.l.Unlock()
	return c.inner.Store(ctx, key, value)
}

func (c *countingStore) Load(ctx context.Context, key string) ([]byte, error) {
	c.l.Lock()
	c.loads++
	c.l.Unlock()
	return c.inner.Load(ctx, key)
}

func (c *countingStore) storeCount() int {
	c.l.Lock()
	defer c.l.Unlock()
	return c.stores
}

func (c *countingStore) storesSince(prev int) int {
	return c.storeCount() - prev
}

// failingStore fails every operation, for simulating a dead layer.
type failingStore struct{}

func (failingStore) Store(ctx context.Context, key string, value []byte) error {
	return fmt.Errorf("store %s: layer is down", key)
}

func (failingStore) Load(ctx context.Context, key string) ([]byte, error) {
	return nil, fmt.Errorf("load %s: layer is down", key)
}

func mustValue(v interface{}) Value {
	val, err := FromGo(v)
	if err != nil {
		panic(err)
	}
	return val
}

// testClock returns a Clock that advances 1ms per call.
func testClock() func() int64 {
	var t int64
	return func() int64 {
		t++
		return t
	}
}
