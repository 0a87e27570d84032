package hstore

import (
	"encoding/base64"
	"fmt"

	"github.com/minio/blake2b-simd"
)

// HashFn produces the content address for a block's bytes. It must be
// pure and collision-free in practice; the store is otherwise agnostic
// to the hash function. The default is blake2b-256, base64 raw-URL
// encoded.
type HashFn func([]byte) string

func defaultHashFn(b []byte) string {
	sum := blake2b.Sum256(b)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// HashValue returns the content address that ObjectStore.Write would
// assign v, without persisting anything. Structurally equal values
// hash identically; arrays with the same elements in different orders
// do not. A nil fn uses the default hash.
func HashValue(fn HashFn, v Value) (string, error) {
	if fn == nil {
		fn = defaultHashFn
	}
	switch v.kind {
	case KindArray:
		links := make([]string, v.Len())
		for i, e := range v.arr.elems {
			h, err := HashValue(fn, e)
			if err != nil {
				return "", fmt.Errorf("element %d: %w", i, err)
			}
			links[i] = h
		}
		b, err := serializeNode(node{tag: tagArray, links: links})
		if err != nil {
			return "", err
		}
		return fn(b), nil
	case KindObject:
		entries := make([]nodeEntry, v.Len())
		for i, f := range v.obj.fields {
			h, err := HashValue(fn, f.val)
			if err != nil {
				return "", fmt.Errorf("key %q: %w", f.key, err)
			}
			entries[i] = nodeEntry{key: f.key, hash: h}
		}
		b, err := serializeNode(node{tag: tagObject, entries: entries})
		if err != nil {
			return "", err
		}
		return fn(b), nil
	default:
		b, err := serializeNode(node{tag: tagPrimitive, prim: v})
		if err != nil {
			return "", err
		}
		return fn(b), nil
	}
}
