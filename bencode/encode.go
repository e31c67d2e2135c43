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
package bencode

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// Encoder writes Elements in canonical bencode form: dict keys are always
// written in sorted order, regardless of the Dict's insertion order.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes e to the underlying writer.
func (enc *Encoder) Encode(e Element) error {
	switch e.Kind() {
	case KindInt:
		i, _ := e.Int()
		_, err := fmt.Fprintf(enc.w, "i%de", i)
		return err
	case KindBytes:
		b, _ := e.Bytes()
		if _, err := io.WriteString(enc.w, strconv.Itoa(len(b))+":"); err != nil {
			return err
		}
		_, err := enc.w.Write(b)
		return err
	case KindList:
		l, _ := e.List()
		if _, err := io.WriteString(enc.w, "l"); err != nil {
			return err
		}
		for _, item := range l {
			if err := enc.Encode(item); err != nil {
				return err
			}
		}
		_, err := io.WriteString(enc.w, "e")
		return err
	case KindDict:
		dict, _ := e.Dict()
		if _, err := io.WriteString(enc.w, "d"); err != nil {
			return err
		}
		keys := append([]string(nil), dict.Keys()...)
		sort.Strings(keys)
		for _, k := range keys {
			v, _ := dict.Get(k)
			if err := enc.Encode(newBytes([]byte(k))); err != nil {
				return err
			}
			if err := enc.Encode(v); err != nil {
				return err
			}
		}
		_, err := io.WriteString(enc.w, "e")
		return err
	default:
		return fmt.Errorf("bencode: unknown element kind %d", e.Kind())
	}
}

// Marshal returns the canonical bencode encoding of e.
func Marshal(e Element) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NewInt is a convenience constructor for an integer Element.
func NewInt(i int64) Element { return newInt(i) }

// NewBytes is a convenience constructor for a byte-string Element.
func NewBytes(b []byte) Element { return newBytes(b) }

// NewString is a convenience constructor for a byte-string Element from a
// Go string.
func NewString(s string) Element { return newBytes([]byte(s)) }

// NewList is a convenience constructor for a list Element.
func NewList(items []Element) Element { return newList(items) }

// NewDictElement is a convenience constructor for a dict Element.
func NewDictElement(d *Dict) Element { return newDict(d) }
