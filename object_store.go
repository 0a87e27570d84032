package hstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"
)

const (
	// DefaultCacheSize is the number of materialized values kept in
	// a NodeCache created implicitly.
	DefaultCacheSize = 16 * 1024

	hintCacheSize = 16 * 1024

	// maxReadDepth bounds container nesting during materialization.
	// A well-formed DAG can't cycle, but a corrupt or hostile store
	// could hand back a block graph that references itself.
	maxReadDepth = 1000

	// storeConcurrency bounds the number of in-flight adapter writes
	// during one Write call.
	storeConcurrency = 40
)

// ObjectStore projects JSON values onto a DAG of content-addressed
// blocks persisted through a Persist, and materializes values back
// from a root hash. Within one Write, sibling subtrees are persisted
// in parallel and shared subtrees are hashed at most once; across
// calls, hint caches skip the hashing (and I/O) for values the store
// has seen before.
//
// An ObjectStore is safe for use from a single goroutine at a time per
// operation ordering; its caches are internally synchronized.
type ObjectStore struct {
	persist Persist
	hashFn  HashFn

	// values maps hash to materialized Value, and doubles as the
	// existence proof that lets Write skip re-storing a block.
	values NodeCache

	// hintLock guards the two hint LRUs; simplelru is not
	// goroutine-safe.
	hintLock sync.Mutex
	// primHints maps a primitive Value to its hash by content.
	primHints *simplelru.LRU
	// identHints maps a composite Value's backing pointer to its
	// hash, so re-writing the exact same array or object reference
	// costs nothing. An LRU over identity keys substitutes for a
	// weak map: entries for dropped values age out instead of being
	// collected.
	identHints *simplelru.LRU
}

// NewObjectStore creates an ObjectStore over the given Persist. A nil
// hashFn selects blake2b-256; a nil cache allocates a private
// NodeCache of DefaultCacheSize.
func NewObjectStore(persist Persist, hashFn HashFn, cache NodeCache) (*ObjectStore, error) {
	if persist == nil {
		return nil, fmt.Errorf("%w: object store requires a Persist", ErrConfig)
	}
	if hashFn == nil {
		hashFn = defaultHashFn
	}
	if cache == nil {
		cache = NewNodeCache(DefaultCacheSize)
	}
	primHints, err := simplelru.NewLRU(hintCacheSize, nil)
	if err != nil {
		return nil, err
	}
	identHints, err := simplelru.NewLRU(hintCacheSize, nil)
	if err != nil {
		return nil, err
	}
	return &ObjectStore{
		persist:    persist,
		hashFn:     hashFn,
		values:     cache,
		primHints:  primHints,
		identHints: identHints,
	}, nil
}

// hintFor consults the per-instance hint caches: primitives by value
// equality, composites by identity.
func (o *ObjectStore) hintFor(v Value) (string, bool) {
	key, composite := v.identityKey()
	o.hintLock.Lock()
	defer o.hintLock.Unlock()
	if composite {
		if h, ok := o.identHints.Get(key); ok {
			return h.(string), true
		}
		return "", false
	}
	if h, ok := o.primHints.Get(key); ok {
		return h.(string), true
	}
	return "", false
}

func (o *ObjectStore) recordHint(v Value, hash string) {
	key, composite := v.identityKey()
	o.hintLock.Lock()
	if composite {
		o.identHints.Add(key, hash)
	} else {
		o.primHints.Add(key, hash)
	}
	o.hintLock.Unlock()
}

// writeCall is the per-call dedup state of one Write: shared subtrees
// are computed at most once, and adapter writes are throttled through
// the gate.
type writeCall struct {
	o    *ObjectStore
	gate chan struct{}

	lock    sync.Mutex
	pending map[interface{}]*pendingHash
}

type pendingHash struct {
	done chan struct{}
	hash string
	err  error
}

// Write persists the DAG for v and returns the hash of its root node.
// Blocks whose hash the store has already seen are not re-stored.
// Equal values always produce equal hashes, whether or not they share
// structure in memory.
func (o *ObjectStore) Write(ctx context.Context, v Value) (string, error) {
	call := &writeCall{
		o:       o,
		gate:    make(chan struct{}, storeConcurrency),
		pending: make(map[interface{}]*pendingHash),
	}
	return call.write(ctx, v)
}

func (c *writeCall) write(ctx context.Context, v Value) (string, error) {
	if h, ok := c.o.hintFor(v); ok {
		return h, nil
	}

	key, _ := v.identityKey()
	c.lock.Lock()
	if p, ok := c.pending[key]; ok {
		c.lock.Unlock()
		select {
		case <-p.done:
			return p.hash, p.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	p := &pendingHash{done: make(chan struct{})}
	c.pending[key] = p
	c.lock.Unlock()

	p.hash, p.err = c.writeUncached(ctx, v)
	close(p.done)
	return p.hash, p.err
}

func (c *writeCall) writeUncached(ctx context.Context, v Value) (string, error) {
	var n node
	switch v.kind {
	case KindArray:
		links, err := c.writeChildren(ctx, v.arr.elems)
		if err != nil {
			return "", err
		}
		n = node{tag: tagArray, links: links}
	case KindObject:
		children := make([]Value, len(v.obj.fields))
		for i, f := range v.obj.fields {
			children[i] = f.val
		}
		hashes, err := c.writeChildren(ctx, children)
		if err != nil {
			return "", err
		}
		entries := make([]nodeEntry, len(v.obj.fields))
		for i, f := range v.obj.fields {
			entries[i] = nodeEntry{key: f.key, hash: hashes[i]}
		}
		n = node{tag: tagObject, entries: entries}
	default:
		n = node{tag: tagPrimitive, prim: v}
	}

	encoded, err := serializeNode(n)
	if err != nil {
		return "", fmt.Errorf("serialize: %w", err)
	}
	hash := c.o.hashFn(encoded)

	if !c.o.values.Contains(hash) {
		select {
		case c.gate <- struct{}{}:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		err = c.o.persist.Store(ctx, hash, encoded)
		<-c.gate
		if err != nil {
			return "", fmt.Errorf("persist store: %w", err)
		}
	}
	c.o.values.Add(hash, v)
	c.o.recordHint(v, hash)
	return hash, nil
}

// writeChildren persists sibling subtrees in parallel and collects
// their hashes in order. The parent node is composed only after every
// child hash is known.
func (c *writeCall) writeChildren(ctx context.Context, children []Value) ([]string, error) {
	hashes := make([]string, len(children))
	if len(children) == 0 {
		return hashes, nil
	}
	if len(children) == 1 {
		h, err := c.write(ctx, children[0])
		if err != nil {
			return nil, err
		}
		hashes[0] = h
		return hashes, nil
	}
	var (
		wg       sync.WaitGroup
		errLock  sync.Mutex
		firstErr error
	)
	for i, child := range children {
		wg.Add(1)
		go func(i int, child Value) {
			defer wg.Done()
			h, err := c.write(ctx, child)
			if err != nil {
				errLock.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errLock.Unlock()
				return
			}
			hashes[i] = h
		}(i, child)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return hashes, nil
}

// Read materializes the value rooted at the given hash. It returns
// ok=false, with no error, when the root block or any transitively
// referenced block is absent (a dangling reference). Corrupt blocks
// fail with an error wrapping ErrCorruptBlock.
func (o *ObjectStore) Read(ctx context.Context, hash string) (Value, bool, error) {
	return o.read(ctx, hash, 0)
}

func (o *ObjectStore) read(ctx context.Context, hash string, depth int) (Value, bool, error) {
	if cached, ok := o.values.Get(hash); ok {
		return cached.(Value), true, nil
	}
	if depth > maxReadDepth {
		return Value{}, false, fmt.Errorf("%w: nesting deeper than %d at %s", ErrCorruptBlock, maxReadDepth, hash)
	}
	encoded, err := o.persist.Load(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Value{}, false, nil
		}
		return Value{}, false, fmt.Errorf("persist load %s: %w", hash, err)
	}
	n, err := deserializeNode(encoded)
	if err != nil {
		return Value{}, false, fmt.Errorf("block %s: %w", hash, err)
	}

	var v Value
	switch n.tag {
	case tagPrimitive:
		v = n.prim
	case tagArray:
		elems := make([]Value, len(n.links))
		for i, link := range n.links {
			child, ok, err := o.read(ctx, link, depth+1)
			if err != nil {
				return Value{}, false, err
			}
			if !ok {
				return Value{}, false, nil
			}
			elems[i] = child
		}
		v = Value{kind: KindArray, arr: &arrayRep{elems: elems}}
	case tagObject:
		fields := make([]objectField, len(n.entries))
		for i, e := range n.entries {
			child, ok, err := o.read(ctx, e.hash, depth+1)
			if err != nil {
				return Value{}, false, err
			}
			if !ok {
				return Value{}, false, nil
			}
			fields[i] = objectField{key: e.key, val: child}
		}
		v = Value{kind: KindObject, obj: &objectRep{fields: fields}}
	}

	o.values.Add(hash, v)
	o.recordHint(v, hash)
	return v, true, nil
}

// HashValue returns the content address Write would assign v without
// persisting anything.
func (o *ObjectStore) HashValue(v Value) (string, error) {
	return HashValue(o.hashFn, v)
}
