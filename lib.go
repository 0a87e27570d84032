package hstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
)

const versionCacheSize = 4096

// Config controls how a Store persists, hashes, and validates state.
type Config struct {
	// Persist stores and loads blocks. Required. A Persist must be
	// exclusive to one Store; sharing it between concurrent stores
	// is undefined.
	Persist Persist

	// HashFn produces content addresses, defaults to blake2b-256
	// base64 raw-URL encoded.
	HashFn HashFn

	// Schema validates each committed value. A nil Schema accepts
	// every JSON value.
	Schema Schema

	// NodeCache caches materialized values and may be shared across
	// object stores over the same Persist. Defaults to a private
	// cache of DefaultCacheSize.
	NodeCache NodeCache

	// Clock returns the commit timestamp in milliseconds since the
	// epoch, defaults to the wall clock. Overridable for tests.
	Clock func() int64

	// Debug enables tracing of commits and head movement.
	Debug bool
}

// Version is a caller-visible snapshot of the state chain: an
// immutable value plus its linkage. Versions with the same content,
// predecessor, and timestamp collapse to the same hash.
type Version struct {
	// Hash is the content address of the version block.
	Hash string
	// Value is the deeply immutable committed state.
	Value Value
	// Previous is the hash of the predecessor version, or nil for
	// the first commit.
	Previous *string
	// Timestamp is the commit time in milliseconds since the epoch.
	Timestamp int64
}

// Store maintains a schema-validated, append-only chain of JSON state
// versions over content-addressed block storage. One Store instance
// assumes it is the only writer against its Persist. Operations are
// serialized internally; concurrent calls against one Store are safe
// but execute one at a time.
type Store struct {
	objects  *ObjectStore
	persist  Persist
	hashFn   HashFn
	schema   Schema
	clock    func() int64
	debug    bool

	lock     sync.Mutex
	headMemo *string

	versionLock sync.Mutex
	// versions remembers hashes of version blocks already written,
	// so re-committing an identical version block skips the store.
	versions *simplelru.LRU
}

// Open constructs a Store over the given configuration and probes the
// head record. An absent head record is initialized to null; a present
// but malformed one is repaired to null. Construction fails with
// ErrConfig when no Persist is given.
func Open(ctx context.Context, config Config) (*Store, error) {
	if config.Persist == nil {
		return nil, fmt.Errorf("%w: store requires a Persist", ErrConfig)
	}
	if config.HashFn == nil {
		config.HashFn = defaultHashFn
	}
	if config.Clock == nil {
		config.Clock = func() int64 { return time.Now().UnixMilli() }
	}
	objects, err := NewObjectStore(config.Persist, config.HashFn, config.NodeCache)
	if err != nil {
		return nil, err
	}
	versions, err := simplelru.NewLRU(versionCacheSize, nil)
	if err != nil {
		return nil, err
	}
	s := &Store{
		objects:  objects,
		persist:  config.Persist,
		hashFn:   config.HashFn,
		schema:   config.Schema,
		clock:    config.Clock,
		debug:    config.Debug,
		versions: versions,
	}
	if err := s.adoptHead(ctx); err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return s, nil
}

// adoptHead reads the head record, initializing or repairing it as
// needed.
func (s *Store) adoptHead(ctx context.Context) error {
	b, err := s.persist.Load(ctx, HeadKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("load head: %w", err)
		}
		return s.writeHead(ctx, nil)
	}
	head, err := decodeHead(b)
	if err != nil {
		if s.debug {
			fmt.Printf("repairing corrupted head record: %v\n", err)
		}
		return s.writeHead(ctx, nil)
	}
	s.headMemo = head
	return nil
}

func (s *Store) writeHead(ctx context.Context, head *string) error {
	b, err := encodeHead(head)
	if err != nil {
		return err
	}
	if err := s.persist.Store(ctx, HeadKey, b); err != nil {
		return fmt.Errorf("store head: %w", err)
	}
	s.headMemo = head
	return nil
}

// Commit validates the given value, persists its DAG, and advances the
// head to a new version linking to the previous one. The value may be
// a Value or any Go JSON representation accepted by FromGo. On
// validation failure the store is unchanged; on failure after
// validation, storage holds at most orphaned blocks and the head still
// names the previous version.
func (s *Store) Commit(ctx context.Context, value interface{}) (*Version, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	v, err := FromGo(value)
	if err != nil {
		return nil, &ValidationError{Err: err}
	}
	if s.schema != nil {
		v, err = s.schema.Validate(ctx, v)
		if err != nil {
			return nil, &ValidationError{Err: err}
		}
	}

	valueHash, err := s.objects.Write(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("write value: %w", err)
	}
	// Prefer the cached materialization so that repeated commits and
	// reads of the same state share one Value identity.
	frozen := v
	if cached, ok := s.objects.values.Get(valueHash); ok {
		frozen = cached.(Value)
	}

	previous := s.headMemo
	vb := versionBlock{
		Value:     valueHash,
		Previous:  previous,
		Timestamp: s.clock(),
	}
	encoded, err := encodeVersion(vb)
	if err != nil {
		return nil, err
	}
	versionHash := s.hashFn(encoded)

	s.versionLock.Lock()
	seen := s.versions.Contains(versionHash)
	s.versionLock.Unlock()
	if !seen {
		if err := s.persist.Store(ctx, versionHash, encoded); err != nil {
			return nil, fmt.Errorf("store version: %w", err)
		}
		s.versionLock.Lock()
		s.versions.Add(versionHash, nil)
		s.versionLock.Unlock()
	}

	if err := s.writeHead(ctx, &versionHash); err != nil {
		return nil, err
	}
	if s.debug {
		fmt.Printf("committed %s (value %s)\n", versionHash, valueHash)
	}
	return &Version{
		Hash:      versionHash,
		Value:     frozen,
		Previous:  previous,
		Timestamp: vb.Timestamp,
	}, nil
}

// Head returns the latest version, or nil if nothing has been
// committed.
func (s *Store) Head(ctx context.Context) (*Version, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.headMemo == nil {
		return nil, nil
	}
	v, err := s.getVersion(ctx, *s.headMemo)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("head version %s: %w", *s.headMemo, ErrNotFound)
	}
	return v, nil
}

// Get returns the version with the given hash, or nil if the block is
// absent, is not a well-formed version block, or references a value
// that cannot be fully materialized.
func (s *Store) Get(ctx context.Context, hash string) (*Version, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.getVersion(ctx, hash)
}

func (s *Store) getVersion(ctx context.Context, hash string) (*Version, error) {
	b, err := s.persist.Load(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load version %s: %w", hash, err)
	}
	vb, err := decodeVersion(b)
	if err != nil {
		if s.debug {
			fmt.Printf("not a version block %s: %v\n", hash, err)
		}
		return nil, nil
	}
	value, ok, err := s.objects.Read(ctx, vb.Value)
	if err != nil {
		if errors.Is(err, ErrCorruptBlock) {
			if s.debug {
				fmt.Printf("version %s has a corrupt value: %v\n", hash, err)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("read value %s: %w", vb.Value, err)
	}
	if !ok {
		return nil, nil
	}
	return &Version{
		Hash:      hash,
		Value:     value,
		Previous:  vb.Previous,
		Timestamp: vb.Timestamp,
	}, nil
}

// History walks the chain of previous links from the head, newest
// first, returning up to limit versions; limit <= 0 means the whole
// chain. The walk stops early at the first version that cannot be
// materialized.
func (s *Store) History(ctx context.Context, limit int) ([]*Version, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	var out []*Version
	next := s.headMemo
	for next != nil {
		if limit > 0 && len(out) == limit {
			break
		}
		v, err := s.getVersion(ctx, *next)
		if err != nil {
			return nil, err
		}
		if v == nil {
			break
		}
		out = append(out, v)
		next = v.Previous
	}
	return out, nil
}

// Objects exposes the underlying object store, for callers that want
// to hash or materialize values outside the version chain.
func (s *Store) Objects() *ObjectStore {
	return s.objects
}
