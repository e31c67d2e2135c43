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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeScalarValues(t *testing.T) {
	require := require.New(t)

	e, err := Unmarshal([]byte("i42e"))
	require.NoError(err)
	i, ok := e.Int()
	require.True(ok)
	require.Equal(int64(42), i)

	e, err = Unmarshal([]byte("i-7e"))
	require.NoError(err)
	i, ok = e.Int()
	require.True(ok)
	require.Equal(int64(-7), i)

	e, err = Unmarshal([]byte("4:spam"))
	require.NoError(err)
	s, ok := e.Str()
	require.True(ok)
	require.Equal("spam", s)
}

func TestDecodeListAndDict(t *testing.T) {
	require := require.New(t)

	e, err := Unmarshal([]byte("l4:spami42ee"))
	require.NoError(err)
	list, ok := e.List()
	require.True(ok)
	require.Len(list, 2)

	e, err = Unmarshal([]byte("d3:bar4:spam3:fooi42ee"))
	require.NoError(err)
	dict, ok := e.Dict()
	require.True(ok)
	bar, err := dict.GetBytes("bar")
	require.NoError(err)
	require.Equal("spam", string(bar))
	foo, err := dict.GetInt("foo")
	require.NoError(err)
	require.Equal(int64(42), foo)
}

func TestDecodeInvalidInputs(t *testing.T) {
	tests := []string{
		"",
		"i e",
		"i01e",
		"i-0e",
		"5:ab",
		"d3:foo3:bar3:bazi1ee", // keys out of sorted order
		"x",
	}
	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := Unmarshal([]byte(input))
			require.Error(t, err)
			var synErr *SyntaxError
			require.ErrorAs(t, err, &synErr)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	require := require.New(t)

	d := NewDict()
	d.Set("zeta", NewInt(1))
	d.Set("alpha", NewString("hello"))
	d.Set("list", NewList([]Element{NewInt(1), NewInt(2), NewInt(3)}))

	encoded, err := Marshal(NewDictElement(d))
	require.NoError(err)

	// Keys must be sorted regardless of insertion order.
	require.True(bytes.HasPrefix(encoded, []byte("d5:alpha")))

	decoded, err := Unmarshal(encoded)
	require.NoError(err)
	dict, ok := decoded.Dict()
	require.True(ok)

	zeta, err := dict.GetInt("zeta")
	require.NoError(err)
	require.Equal(int64(1), zeta)

	reencoded, err := Marshal(decoded)
	require.NoError(err)
	require.Equal(encoded, reencoded)
}

func TestInfoRangeTracking(t *testing.T) {
	require := require.New(t)

	raw := []byte("d8:announce3:foo4:infod6:lengthi10eee")
	dec := NewDecoder(bytes.NewReader(raw))
	_, err := dec.Decode()
	require.NoError(err)

	start, end, ok := dec.InfoRange()
	require.True(ok)
	require.Equal(string(raw[start:end]), "d6:lengthi10ee")
}
