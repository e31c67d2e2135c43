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
package wire

import (
	"bytes"
	"testing"

	"github.com/leechkit/leech/core"
	"github.com/stretchr/testify/require"
)

func TestHandshakeRoundTrip(t *testing.T) {
	require := require.New(t)

	infoHash := core.NewInfoHashFromBytes([]byte("some torrent bytes"))
	peerID, err := core.RandomPeerID()
	require.NoError(err)

	var buf bytes.Buffer
	require.NoError(WriteHandshake(&buf, Handshake{InfoHash: infoHash, PeerID: peerID}))
	require.Equal(HandshakeLen, buf.Len())

	raw := buf.Bytes()
	require.Equal(byte(19), raw[0])
	require.Equal("BitTorrent protocol", string(raw[1:20]))
	require.Equal([8]byte{}, [8]byte(raw[20:28]))

	got, err := ReadHandshake(&buf)
	require.NoError(err)
	require.Equal(infoHash, got.InfoHash)
	require.Equal(peerID, got.PeerID)
}

func TestReadHandshakeRejectsBadProtocol(t *testing.T) {
	raw := make([]byte, HandshakeLen)
	raw[0] = 19
	copy(raw[1:20], "Not BitTorrent prot")
	_, err := ReadHandshake(bytes.NewReader(raw))
	require.Equal(t, ErrBadProtocol, err)
}

func TestMessageRoundTrip(t *testing.T) {
	require := require.New(t)

	msgs := []Message{
		{ID: MsgChoke},
		{ID: MsgInterested},
		FormatHave(7),
		FormatRequest(1, 16384, 16384),
		FormatPiece(2, 0, []byte("block data")),
		KeepAlive(),
	}

	for _, m := range msgs {
		var buf bytes.Buffer
		require.NoError(WriteMessage(&buf, m))
		got, err := ReadMessage(&buf)
		require.NoError(err)
		require.Equal(m.ID, got.ID)
		require.Equal(m.Payload, got.Payload)
		require.Equal(m.IsKeepAlive(), got.IsKeepAlive())
	}
}

func TestReadMessageRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, Message{}))
	// Overwrite the length prefix with something absurd.
	raw := buf.Bytes()
	raw[0], raw[1], raw[2], raw[3] = 0xFF, 0xFF, 0xFF, 0xFF
	_, err := ReadMessage(bytes.NewReader(raw))
	require.Error(t, err)
	var badErr *BadMessageError
	require.ErrorAs(t, err, &badErr)
}

func TestParseRequestRejectsWrongLength(t *testing.T) {
	_, _, _, err := ParseRequest(Message{ID: MsgRequest, Payload: []byte{1, 2, 3}})
	require.Error(t, err)
}
