// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bencode implements a minimal bencode codec capable of decoding
// into a generic Element tree while tracking the byte offsets of nested
// values -- needed to recover the exact encoded bytes of a torrent's info
// dict for info-hash computation, without re-encoding it.
package bencode

import "fmt"

// Kind identifies the concrete type held by an Element.
type Kind int

// The four bencode value kinds.
const (
	KindInt Kind = iota
	KindBytes
	KindList
	KindDict
)

// Element is a decoded bencode value. Exactly one of its accessors applies,
// selected by Kind.
type Element struct {
	kind  Kind
	i     int64
	s     []byte
	list  []Element
	dict  *Dict
}

// Kind returns the concrete type of e.
func (e Element) Kind() Kind { return e.kind }

// Int returns e's integer value. ok is false if e is not an integer.
func (e Element) Int() (int64, bool) {
	if e.kind != KindInt {
		return 0, false
	}
	return e.i, true
}

// Bytes returns e's byte string value. ok is false if e is not a byte string.
func (e Element) Bytes() ([]byte, bool) {
	if e.kind != KindBytes {
		return nil, false
	}
	return e.s, true
}

// Str is a convenience wrapper around Bytes for byte strings known to be
// valid UTF-8 text (e.g. dict keys).
func (e Element) Str() (string, bool) {
	b, ok := e.Bytes()
	if !ok {
		return "", false
	}
	return string(b), true
}

// List returns e's list value. ok is false if e is not a list.
func (e Element) List() ([]Element, bool) {
	if e.kind != KindList {
		return nil, false
	}
	return e.list, true
}

// Dict returns e's dict value. ok is false if e is not a dict.
func (e Element) Dict() (*Dict, bool) {
	if e.kind != KindDict {
		return nil, false
	}
	return e.dict, true
}

func newInt(i int64) Element          { return Element{kind: KindInt, i: i} }
func newBytes(s []byte) Element       { return Element{kind: KindBytes, s: s} }
func newList(l []Element) Element     { return Element{kind: KindList, list: l} }
func newDict(d *Dict) Element         { return Element{kind: KindDict, dict: d} }

// Dict is an ordered bencode dictionary: insertion order is preserved for
// round-tripping tests, but Encoder always sorts keys before writing.
type Dict struct {
	keys   []string
	values map[string]Element
}

// NewDict returns an empty Dict.
func NewDict() *Dict {
	return &Dict{values: make(map[string]Element)}
}

// Set inserts or overwrites the value at key.
func (d *Dict) Set(key string, v Element) {
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
}

// Get returns the value at key. ok is false if key is absent.
func (d *Dict) Get(key string) (Element, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Keys returns the dict's keys in insertion order.
func (d *Dict) Keys() []string {
	return d.keys
}

// Len returns the number of entries in d.
func (d *Dict) Len() int {
	return len(d.keys)
}

// GetInt is a convenience accessor combining Get and Element.Int.
func (d *Dict) GetInt(key string) (int64, error) {
	v, ok := d.Get(key)
	if !ok {
		return 0, fmt.Errorf("missing key %q", key)
	}
	i, ok := v.Int()
	if !ok {
		return 0, fmt.Errorf("key %q is not an integer", key)
	}
	return i, nil
}

// GetBytes is a convenience accessor combining Get and Element.Bytes.
func (d *Dict) GetBytes(key string) ([]byte, error) {
	v, ok := d.Get(key)
	if !ok {
		return nil, fmt.Errorf("missing key %q", key)
	}
	b, ok := v.Bytes()
	if !ok {
		return nil, fmt.Errorf("key %q is not a byte string", key)
	}
	return b, nil
}

// GetList is a convenience accessor combining Get and Element.List.
func (d *Dict) GetList(key string) ([]Element, error) {
	v, ok := d.Get(key)
	if !ok {
		return nil, fmt.Errorf("missing key %q", key)
	}
	l, ok := v.List()
	if !ok {
		return nil, fmt.Errorf("key %q is not a list", key)
	}
	return l, nil
}

// GetDict is a convenience accessor combining Get and Element.Dict.
func (d *Dict) GetDict(key string) (*Dict, error) {
	v, ok := d.Get(key)
	if !ok {
		return nil, fmt.Errorf("missing key %q", key)
	}
	sub, ok := v.Dict()
	if !ok {
		return nil, fmt.Errorf("key %q is not a dict", key)
	}
	return sub, nil
}
