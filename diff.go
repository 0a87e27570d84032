package hstore

import (
	"context"
	"fmt"
	"strconv"
)

// DiffFunc receives one difference between two stored values. path is
// the sequence of object keys and array indexes from the root to the
// differing element. added and removed follow the usual convention:
// added alone for an element only in the new value, removed alone for
// an element only in the old value, both for an element whose content
// changed. Returning keepGoing==false stops the walk. path is reused
// between invocations; copy it to retain it.
type DiffFunc func(path []string, added, removed bool, oldValue, newValue Value) (keepGoing bool, err error)

// Diff walks the DAGs rooted at oldHash and newHash and invokes f for
// every difference. Containers of the same kind are descended into; an
// element present on one side only, or whose kind differs between the
// sides, is reported once with its whole value. Subtrees with equal hashes are skipped
// without being loaded, so diffing two versions that share most of
// their state touches only the changed spine. Either hash may be ""
// to diff against an absent value.
func (o *ObjectStore) Diff(ctx context.Context, oldHash, newHash string, f DiffFunc) error {
	_, err := o.diff(ctx, nil, oldHash, newHash, f)
	return err
}

func (o *ObjectStore) diff(ctx context.Context, path []string, oldHash, newHash string, f DiffFunc) (bool, error) {
	if oldHash == newHash {
		return true, nil
	}
	if oldHash == "" {
		return o.emit(ctx, path, f, "", newHash)
	}
	if newHash == "" {
		return o.emit(ctx, path, f, oldHash, "")
	}

	oldNode, err := o.loadNode(ctx, oldHash)
	if err != nil {
		return false, err
	}
	newNode, err := o.loadNode(ctx, newHash)
	if err != nil {
		return false, err
	}
	if oldNode.tag != newNode.tag {
		return o.emit(ctx, path, f, oldHash, newHash)
	}

	switch oldNode.tag {
	case tagPrimitive:
		return o.emit(ctx, path, f, oldHash, newHash)
	case tagArray:
		shared := len(oldNode.links)
		if len(newNode.links) < shared {
			shared = len(newNode.links)
		}
		for i := 0; i < shared; i++ {
			keepGoing, err := o.diff(ctx, append(path, strconv.Itoa(i)), oldNode.links[i], newNode.links[i], f)
			if err != nil || !keepGoing {
				return keepGoing, err
			}
		}
		for i := shared; i < len(oldNode.links); i++ {
			keepGoing, err := o.emit(ctx, append(path, strconv.Itoa(i)), f, oldNode.links[i], "")
			if err != nil || !keepGoing {
				return keepGoing, err
			}
		}
		for i := shared; i < len(newNode.links); i++ {
			keepGoing, err := o.emit(ctx, append(path, strconv.Itoa(i)), f, "", newNode.links[i])
			if err != nil || !keepGoing {
				return keepGoing, err
			}
		}
		return true, nil
	case tagObject:
		// Both entry lists are key-sorted, so a merge walk visits
		// every key of either side exactly once.
		i, j := 0, 0
		for i < len(oldNode.entries) || j < len(newNode.entries) {
			var keepGoing bool
			var err error
			switch {
			case j == len(newNode.entries) || (i < len(oldNode.entries) && oldNode.entries[i].key < newNode.entries[j].key):
				e := oldNode.entries[i]
				keepGoing, err = o.emit(ctx, append(path, e.key), f, e.hash, "")
				i++
			case i == len(oldNode.entries) || oldNode.entries[i].key > newNode.entries[j].key:
				e := newNode.entries[j]
				keepGoing, err = o.emit(ctx, append(path, e.key), f, "", e.hash)
				j++
			default:
				keepGoing, err = o.diff(ctx, append(path, oldNode.entries[i].key), oldNode.entries[i].hash, newNode.entries[j].hash, f)
				i++
				j++
			}
			if err != nil || !keepGoing {
				return keepGoing, err
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("%w: unknown tag %d", ErrCorruptBlock, oldNode.tag)
	}
}

// emit materializes the differing side(s) and invokes the callback.
func (o *ObjectStore) emit(ctx context.Context, path []string, f DiffFunc, oldHash, newHash string) (bool, error) {
	var oldValue, newValue Value
	if oldHash != "" {
		v, ok, err := o.Read(ctx, oldHash)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, fmt.Errorf("diff old value %s: %w", oldHash, ErrNotFound)
		}
		oldValue = v
	}
	if newHash != "" {
		v, ok, err := o.Read(ctx, newHash)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, fmt.Errorf("diff new value %s: %w", newHash, ErrNotFound)
		}
		newValue = v
	}
	return f(path, newHash != "", oldHash != "", oldValue, newValue)
}

// loadNode fetches and decodes a single node block without
// materializing its subtree.
func (o *ObjectStore) loadNode(ctx context.Context, hash string) (node, error) {
	encoded, err := o.persist.Load(ctx, hash)
	if err != nil {
		return node{}, fmt.Errorf("persist load %s: %w", hash, err)
	}
	n, err := deserializeNode(encoded)
	if err != nil {
		return node{}, fmt.Errorf("block %s: %w", hash, err)
	}
	return n, nil
}
