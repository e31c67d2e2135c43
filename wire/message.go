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
	"encoding/binary"
	"fmt"
	"io"
)

// MessageID identifies the type of a wire message.
type MessageID uint8

// The standard BitTorrent peer message ids.
const (
	MsgChoke         MessageID = 0
	MsgUnchoke       MessageID = 1
	MsgInterested    MessageID = 2
	MsgNotInterested MessageID = 3
	MsgHave          MessageID = 4
	MsgBitfield      MessageID = 5
	MsgRequest       MessageID = 6
	MsgPiece         MessageID = 7
	MsgCancel        MessageID = 8
	MsgPort          MessageID = 9
)

// maxMessageSize bounds the length prefix accepted from a peer, rejecting
// pathological values before an allocation is attempted.
const maxMessageSize = 1 << 20 // 1 MiB: comfortably above a 16 KiB block piece message.

// BadMessageError wraps a malformed or oversized message read from a peer.
type BadMessageError struct {
	Reason string
}

func (e *BadMessageError) Error() string {
	return fmt.Sprintf("wire: bad message: %s", e.Reason)
}

// Message is a single length-prefixed peer wire message. A zero-length
// message on the wire is a keep-alive, represented by the value KeepAlive
// returns; the zero Message value is a choke, not a keep-alive. Messages
// without a payload have a nil Payload.
type Message struct {
	ID      MessageID
	Payload []byte
	keepAlive bool
}

// KeepAlive returns a keep-alive message (empty length prefix, no id).
func KeepAlive() Message {
	return Message{keepAlive: true}
}

// IsKeepAlive reports whether m is a keep-alive.
func (m Message) IsKeepAlive() bool {
	return m.keepAlive
}

// WriteMessage serializes and writes m to w.
func WriteMessage(w io.Writer, m Message) error {
	if m.keepAlive {
		return binary.Write(w, binary.BigEndian, uint32(0))
	}
	length := uint32(1 + len(m.Payload))
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = byte(m.ID)
	copy(buf[5:], m.Payload)
	_, err := w.Write(buf)
	return err
}

// ReadMessage reads and parses the next message from r.
func ReadMessage(r io.Reader) (Message, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return Message{}, err
	}
	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length == 0 {
		return KeepAlive(), nil
	}
	if length > maxMessageSize {
		return Message{}, &BadMessageError{Reason: fmt.Sprintf("length prefix %d exceeds maximum", length)}
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Message{}, err
	}
	msg := Message{ID: MessageID(buf[0])}
	if length > 1 {
		msg.Payload = buf[1:]
	}
	return msg, nil
}

// FormatRequest builds the payload for a "request" message.
func FormatRequest(index, begin, length int) Message {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], uint32(index))
	binary.BigEndian.PutUint32(payload[4:8], uint32(begin))
	binary.BigEndian.PutUint32(payload[8:12], uint32(length))
	return Message{ID: MsgRequest, Payload: payload}
}

// ParseRequest parses the payload of a "request" or "cancel" message.
func ParseRequest(m Message) (index, begin, length int, err error) {
	if len(m.Payload) != 12 {
		return 0, 0, 0, &BadMessageError{Reason: "request payload must be 12 bytes"}
	}
	index = int(binary.BigEndian.Uint32(m.Payload[0:4]))
	begin = int(binary.BigEndian.Uint32(m.Payload[4:8]))
	length = int(binary.BigEndian.Uint32(m.Payload[8:12]))
	return index, begin, length, nil
}

// FormatCancel builds the payload for a "cancel" message.
func FormatCancel(index, begin, length int) Message {
	m := FormatRequest(index, begin, length)
	m.ID = MsgCancel
	return m
}

// FormatHave builds the payload for a "have" message.
func FormatHave(index int) Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(index))
	return Message{ID: MsgHave, Payload: payload}
}

// ParseHave parses the payload of a "have" message.
func ParseHave(m Message) (index int, err error) {
	if len(m.Payload) != 4 {
		return 0, &BadMessageError{Reason: "have payload must be 4 bytes"}
	}
	return int(binary.BigEndian.Uint32(m.Payload)), nil
}

// FormatBitfield builds a "bitfield" message from an already wire-packed
// payload.
func FormatBitfield(packed []byte) Message {
	return Message{ID: MsgBitfield, Payload: packed}
}

// FormatPiece builds the payload for a "piece" message.
func FormatPiece(index, begin int, block []byte) Message {
	payload := make([]byte, 8+len(block))
	binary.BigEndian.PutUint32(payload[0:4], uint32(index))
	binary.BigEndian.PutUint32(payload[4:8], uint32(begin))
	copy(payload[8:], block)
	return Message{ID: MsgPiece, Payload: payload}
}

// ParsePiece parses the payload of a "piece" message.
func ParsePiece(m Message) (index, begin int, block []byte, err error) {
	if len(m.Payload) < 8 {
		return 0, 0, nil, &BadMessageError{Reason: "piece payload must be at least 8 bytes"}
	}
	index = int(binary.BigEndian.Uint32(m.Payload[0:4]))
	begin = int(binary.BigEndian.Uint32(m.Payload[4:8]))
	block = m.Payload[8:]
	return index, begin, block, nil
}
