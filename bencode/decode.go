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
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// SyntaxError reports malformed bencode input along with the byte offset at
// which the decoder gave up. This is the InvalidEncoding error of the
// torrent parsing pipeline.
type SyntaxError struct {
	Offset int64
	What   error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("bencode: syntax error at offset %d: %s", e.Offset, e.What)
}

func (e *SyntaxError) Unwrap() error { return e.What }

var errUnexpectedEOF = errors.New("unexpected EOF")

// Decoder decodes a single bencode value from an underlying reader, tracking
// the byte offset of each value as it goes. If the top-level value is a dict
// containing a key named "info", the byte range of that value's raw encoded
// bytes (not including its own length/markers beyond its bencode form) is
// recorded and retrievable via InfoRange.
type Decoder struct {
	r         *bufio.Reader
	offset    int64
	infoStart int64
	infoEnd   int64
	haveInfo  bool
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode reads exactly one bencode value from the underlying reader.
func (d *Decoder) Decode() (e Element, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			serr, ok := rec.(*SyntaxError)
			if !ok {
				panic(rec)
			}
			err = serr
		}
	}()
	return d.parseValue(true), nil
}

// InfoRange returns the [start, end) byte offsets of the raw encoded "info"
// value, counted from the first byte this Decoder read. ok is false if no
// top-level "info" key has been encountered.
func (d *Decoder) InfoRange() (start, end int64, ok bool) {
	return d.infoStart, d.infoEnd, d.haveInfo
}

func (d *Decoder) fail(what error) {
	panic(&SyntaxError{Offset: d.offset, What: what})
}

func (d *Decoder) readByte() byte {
	b, err := d.r.ReadByte()
	if err != nil {
		d.fail(errUnexpectedEOF)
	}
	d.offset++
	return b
}

func (d *Decoder) peekByte() byte {
	b, err := d.r.Peek(1)
	if err != nil {
		d.fail(errUnexpectedEOF)
	}
	return b[0]
}

func (d *Decoder) unreadByte() {
	if err := d.r.UnreadByte(); err != nil {
		panic(err)
	}
	d.offset--
}

func (d *Decoder) readUntil(sep byte) []byte {
	buf, err := d.r.ReadBytes(sep)
	if err != nil {
		d.fail(errUnexpectedEOF)
	}
	d.offset += int64(len(buf))
	return buf[:len(buf)-1]
}

func (d *Decoder) readN(n int64) []byte {
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		d.fail(errUnexpectedEOF)
	}
	d.offset += n
	return buf
}

// parseValue parses one bencode value starting at the current offset.
// topLevel is true only for the outermost call, where "info" key tracking
// is engaged.
func (d *Decoder) parseValue(topLevel bool) Element {
	b := d.peekByte()
	switch {
	case b == 'i':
		return d.parseInt()
	case b == 'l':
		return d.parseList()
	case b == 'd':
		return d.parseDict(topLevel)
	case b >= '0' && b <= '9':
		return d.parseString()
	default:
		d.fail(fmt.Errorf("invalid leading byte %q", b))
		panic("unreachable")
	}
}

func (d *Decoder) parseInt() Element {
	d.readByte() // 'i'
	raw := d.readUntil('e')
	if len(raw) == 0 {
		d.fail(errors.New("empty integer"))
	}
	if raw[0] == '0' && len(raw) > 1 {
		d.fail(errors.New("integer has leading zero"))
	}
	if len(raw) > 1 && raw[0] == '-' && raw[1] == '0' {
		d.fail(errors.New("negative zero is not valid"))
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		d.fail(fmt.Errorf("invalid integer %q: %s", raw, err))
	}
	return newInt(n)
}

func (d *Decoder) parseString() Element {
	lenRaw := d.readUntil(':')
	n, err := strconv.ParseInt(string(lenRaw), 10, 64)
	if err != nil || n < 0 {
		d.fail(fmt.Errorf("invalid byte string length %q", lenRaw))
	}
	return newBytes(d.readN(n))
}

func (d *Decoder) parseList() Element {
	d.readByte() // 'l'
	var list []Element
	for {
		b := d.peekByte()
		if b == 'e' {
			d.readByte()
			break
		}
		list = append(list, d.parseValue(false))
	}
	return newList(list)
}

func (d *Decoder) parseDict(topLevel bool) Element {
	d.readByte() // 'd'
	dict := NewDict()
	var prevKey string
	first := true
	for {
		b := d.peekByte()
		if b == 'e' {
			d.readByte()
			break
		}
		keyElem := d.parseString()
		key, _ := keyElem.Str()
		if !first && key < prevKey {
			d.fail(fmt.Errorf("dict keys out of order: %q after %q", key, prevKey))
		}
		prevKey = key
		first = false

		valueStart := d.offset
		val := d.parseValue(false)
		valueEnd := d.offset

		if topLevel && key == "info" {
			d.infoStart = valueStart
			d.infoEnd = valueEnd
			d.haveInfo = true
		}

		dict.Set(key, val)
	}
	return newDict(dict)
}

// Unmarshal decodes the single bencode value encoded in data.
func Unmarshal(data []byte) (Element, error) {
	dec := NewDecoder(bytes.NewReader(data))
	return dec.Decode()
}
