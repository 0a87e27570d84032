package hstore

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Node variant tags. These are part of the block format; changing them
// breaks compatibility with previously stored DAGs.
const (
	tagPrimitive = 0
	tagArray     = 1
	tagObject    = 2
)

// nodeEntry is one key of an object node.
type nodeEntry struct {
	key  string
	hash string
}

// node is the unit of content addressing: exactly one block holds the
// canonical encoding of exactly one node.
type node struct {
	tag     int
	prim    Value       // tagPrimitive: null, bool, number or string
	links   []string    // tagArray: child hashes in element order
	entries []nodeEntry // tagObject: child hashes sorted by key
}

// appendScalarJSON produces minified JSON for a scalar or string, the
// only shapes the canonical encoding embeds directly.
func appendScalarJSON(buf []byte, v Value) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return append(buf, "null"...), nil
	case KindBool:
		if v.b {
			return append(buf, "true"...), nil
		}
		return append(buf, "false"...), nil
	case KindNumber:
		b, err := json.Marshal(v.num)
		if err != nil {
			return nil, fmt.Errorf("encode number: %w", err)
		}
		return append(buf, b...), nil
	case KindString:
		b, err := json.Marshal(v.str)
		if err != nil {
			return nil, fmt.Errorf("encode string: %w", err)
		}
		return append(buf, b...), nil
	default:
		return nil, fmt.Errorf("%v is not a primitive", v.kind)
	}
}

// appendValueJSON renders a whole Value as canonical JSON: minified,
// object keys in code-point order. Used for display and for hashing
// helpers that never touch storage.
func appendValueJSON(buf []byte, v Value) ([]byte, error) {
	switch v.kind {
	case KindArray:
		buf = append(buf, '[')
		for i, e := range v.arr.elems {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			buf, err = appendValueJSON(buf, e)
			if err != nil {
				return nil, err
			}
		}
		return append(buf, ']'), nil
	case KindObject:
		buf = append(buf, '{')
		for i, f := range v.obj.fields {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			buf, err = appendScalarJSON(buf, String(f.key))
			if err != nil {
				return nil, err
			}
			buf = append(buf, ':')
			buf, err = appendValueJSON(buf, f.val)
			if err != nil {
				return nil, err
			}
		}
		return append(buf, '}'), nil
	default:
		return appendScalarJSON(buf, v)
	}
}

// serializeNode produces the canonical encoding of a node:
//
//	[0,<primitive>]          scalar
//	[1,["h1","h2",...]]      array of child hashes, order preserved
//	[2,[["k1","h1"],...]]    object entries, keys sorted by code point
//
// The output is minified UTF-8 JSON and is deterministic: equal nodes
// serialize to equal bytes.
func serializeNode(n node) ([]byte, error) {
	var buf []byte
	switch n.tag {
	case tagPrimitive:
		buf = append(buf, "[0,"...)
		var err error
		buf, err = appendScalarJSON(buf, n.prim)
		if err != nil {
			return nil, err
		}
	case tagArray:
		buf = append(buf, "[1,["...)
		for i, h := range n.links {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			buf, err = appendScalarJSON(buf, String(h))
			if err != nil {
				return nil, err
			}
		}
		buf = append(buf, ']')
	case tagObject:
		buf = append(buf, "[2,["...)
		for i, e := range n.entries {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = append(buf, '[')
			var err error
			buf, err = appendScalarJSON(buf, String(e.key))
			if err != nil {
				return nil, err
			}
			buf = append(buf, ',')
			buf, err = appendScalarJSON(buf, String(e.hash))
			if err != nil {
				return nil, err
			}
			buf = append(buf, ']')
		}
		buf = append(buf, ']')
	default:
		return nil, fmt.Errorf("unknown node tag %d", n.tag)
	}
	return append(buf, ']'), nil
}

// deserializeNode parses a canonical node encoding. Anything that is
// not a well-formed encoding, including an unknown tag, a payload of
// the wrong shape, or unsorted object keys, fails with ErrCorruptBlock.
func deserializeNode(b []byte) (node, error) {
	var outer []json.RawMessage
	if err := json.Unmarshal(b, &outer); err != nil {
		return node{}, fmt.Errorf("%w: %v", ErrCorruptBlock, err)
	}
	if len(outer) != 2 {
		return node{}, fmt.Errorf("%w: expected [tag, payload], got %d elements", ErrCorruptBlock, len(outer))
	}
	var tag int
	if err := strictUnmarshalInt(outer[0], &tag); err != nil {
		return node{}, fmt.Errorf("%w: tag: %v", ErrCorruptBlock, err)
	}
	switch tag {
	case tagPrimitive:
		var p interface{}
		if err := json.Unmarshal(outer[1], &p); err != nil {
			return node{}, fmt.Errorf("%w: primitive payload: %v", ErrCorruptBlock, err)
		}
		switch x := p.(type) {
		case nil:
			return node{tag: tagPrimitive, prim: Null()}, nil
		case bool:
			return node{tag: tagPrimitive, prim: Boolean(x)}, nil
		case float64:
			v, err := Number(x)
			if err != nil {
				return node{}, fmt.Errorf("%w: %v", ErrCorruptBlock, err)
			}
			return node{tag: tagPrimitive, prim: v}, nil
		case string:
			return node{tag: tagPrimitive, prim: String(x)}, nil
		default:
			return node{}, fmt.Errorf("%w: primitive payload has kind %T", ErrCorruptBlock, p)
		}
	case tagArray:
		var links []string
		if err := json.Unmarshal(outer[1], &links); err != nil {
			return node{}, fmt.Errorf("%w: array payload: %v", ErrCorruptBlock, err)
		}
		return node{tag: tagArray, links: links}, nil
	case tagObject:
		var rawEntries [][]string
		if err := json.Unmarshal(outer[1], &rawEntries); err != nil {
			return node{}, fmt.Errorf("%w: object payload: %v", ErrCorruptBlock, err)
		}
		entries := make([]nodeEntry, len(rawEntries))
		for i, e := range rawEntries {
			if len(e) != 2 {
				return node{}, fmt.Errorf("%w: object entry %d has %d elements", ErrCorruptBlock, i, len(e))
			}
			if i > 0 && rawEntries[i-1][0] >= e[0] {
				return node{}, fmt.Errorf("%w: object keys not sorted at %q", ErrCorruptBlock, e[0])
			}
			entries[i] = nodeEntry{key: e[0], hash: e[1]}
		}
		return node{tag: tagObject, entries: entries}, nil
	default:
		return node{}, fmt.Errorf("%w: unknown tag %d", ErrCorruptBlock, tag)
	}
}

// strictInt64 decodes a JSON number that must be an integer.
func strictInt64(raw json.RawMessage) (int64, error) {
	// encoding/json would accept a quoted number into json.Number.
	if t := bytes.TrimSpace(raw); len(t) > 0 && t[0] == '"' {
		return 0, fmt.Errorf("%s is a string, not a number", t)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return 0, err
	}
	return n.Int64()
}

func strictUnmarshalInt(raw json.RawMessage, out *int) error {
	i, err := strictInt64(raw)
	if err != nil {
		return err
	}
	*out = int(i)
	return nil
}

// versionBlock is one link of the commit chain, stored as its own
// content-addressed block:
//
//	{"value":<hash>,"previous":<hash|null>,"timestamp":<ms>}
type versionBlock struct {
	Value     string  `json:"value"`
	Previous  *string `json:"previous"`
	Timestamp int64   `json:"timestamp"`
}

func encodeVersion(vb versionBlock) ([]byte, error) {
	b, err := json.Marshal(vb)
	if err != nil {
		return nil, fmt.Errorf("encode version: %w", err)
	}
	return b, nil
}

// decodeVersion validates shape strictly: all three fields must be
// present with the right types, or the block is not a version block.
func decodeVersion(b []byte) (versionBlock, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return versionBlock{}, fmt.Errorf("%w: %v", ErrCorruptBlock, err)
	}
	valueRaw, ok := raw["value"]
	if !ok {
		return versionBlock{}, fmt.Errorf("%w: version block missing value", ErrCorruptBlock)
	}
	prevRaw, ok := raw["previous"]
	if !ok {
		return versionBlock{}, fmt.Errorf("%w: version block missing previous", ErrCorruptBlock)
	}
	tsRaw, ok := raw["timestamp"]
	if !ok {
		return versionBlock{}, fmt.Errorf("%w: version block missing timestamp", ErrCorruptBlock)
	}
	var vb versionBlock
	if err := json.Unmarshal(valueRaw, &vb.Value); err != nil {
		return versionBlock{}, fmt.Errorf("%w: version value: %v", ErrCorruptBlock, err)
	}
	if err := json.Unmarshal(prevRaw, &vb.Previous); err != nil {
		return versionBlock{}, fmt.Errorf("%w: version previous: %v", ErrCorruptBlock, err)
	}
	ts, err := strictInt64(tsRaw)
	if err != nil {
		return versionBlock{}, fmt.Errorf("%w: version timestamp: %v", ErrCorruptBlock, err)
	}
	vb.Timestamp = ts
	return vb, nil
}

// headRecord is the singleton mutable block, {"head":<hash|null>},
// stored under HeadKey.
type headRecord struct {
	Head *string `json:"head"`
}

func encodeHead(head *string) ([]byte, error) {
	b, err := json.Marshal(headRecord{Head: head})
	if err != nil {
		return nil, fmt.Errorf("encode head: %w", err)
	}
	return b, nil
}

// decodeHead requires the head field to be present and be a string or
// null. Anything else reports a corrupted head, which Open repairs.
func decodeHead(b []byte) (*string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBlock, err)
	}
	headRaw, ok := raw["head"]
	if !ok {
		return nil, fmt.Errorf("%w: head record missing head field", ErrCorruptBlock)
	}
	var head *string
	if err := json.Unmarshal(headRaw, &head); err != nil {
		return nil, fmt.Errorf("%w: head field: %v", ErrCorruptBlock, err)
	}
	return head, nil
}
