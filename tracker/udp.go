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
package tracker

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff"
)

const (
	udpProtocolMagic = 0x41727101980
	udpActionConnect = 0
	udpActionAnnounce = 1
	udpActionError    = 3
)

// UDPClient announces to a single BEP-15 UDP tracker.
type UDPClient struct {
	addr    string
	timeout time.Duration
}

// NewUDPClient returns a UDPClient for the given "host:port" address.
func NewUDPClient(addr string) *UDPClient {
	return &UDPClient{addr: addr, timeout: 15 * time.Second}
}

// Announce performs a connect+announce round trip against the tracker,
// retrying each of the connect and announce steps with the exponential
// backoff schedule of backOff. Each attempt waits at most c.timeout for a
// reply.
func (c *UDPClient) Announce(req Request) (Response, error) {
	conn, err := net.DialTimeout("udp", c.addr, c.timeout)
	if err != nil {
		return Response{}, &TrackerUnreachableError{URL: c.addr, Err: err}
	}
	defer conn.Close()

	var connectionID uint64
	err = backoff.Retry(func() error {
		connectionID, err = c.connect(conn)
		return err
	}, c.backOff())
	if err != nil {
		return Response{}, &TrackerUnreachableError{URL: c.addr, Err: err}
	}

	var resp Response
	err = backoff.Retry(func() error {
		resp, err = c.announce(conn, connectionID, req)
		return err
	}, c.backOff())
	if err != nil {
		return Response{}, &TrackerUnreachableError{URL: c.addr, Err: err}
	}
	return resp, nil
}

// backOff returns a fresh retry schedule: waits start at 15 seconds and
// double (with the library's default randomization) up to 480 seconds, and
// retrying stops once 2 minutes have elapsed, so only the first few steps of
// BEP-15's 15 * 2^n sequence are ever reached. A new instance is used per
// round trip since ExponentialBackOff is stateful and tracks elapsed time
// from its own creation.
func (c *UDPClient) backOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 15 * time.Second
	bo.Multiplier = 2
	bo.MaxElapsedTime = 2 * time.Minute
	bo.MaxInterval = 60 * 8 * time.Second
	return bo
}

func randomTransactionID() uint32 {
	var b [4]byte
	rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

func (c *UDPClient) connect(conn net.Conn) (uint64, error) {
	txID := randomTransactionID()

	req := make([]byte, 16)
	binary.BigEndian.PutUint64(req[0:8], udpProtocolMagic)
	binary.BigEndian.PutUint32(req[8:12], udpActionConnect)
	binary.BigEndian.PutUint32(req[12:16], txID)

	conn.SetDeadline(time.Now().Add(c.timeout))
	if _, err := conn.Write(req); err != nil {
		return 0, err
	}

	resp := make([]byte, 16)
	n, err := conn.Read(resp)
	if err != nil {
		return 0, err
	}
	if n < 16 {
		return 0, fmt.Errorf("udp tracker: short connect response (%d bytes)", n)
	}
	action := binary.BigEndian.Uint32(resp[0:4])
	gotTxID := binary.BigEndian.Uint32(resp[4:8])
	if gotTxID != txID {
		return 0, fmt.Errorf("udp tracker: transaction id mismatch")
	}
	if action == udpActionError {
		return 0, fmt.Errorf("udp tracker: %s", string(resp[8:n]))
	}
	if action != udpActionConnect {
		return 0, fmt.Errorf("udp tracker: unexpected action %d", action)
	}
	return binary.BigEndian.Uint64(resp[8:16]), nil
}

func (c *UDPClient) announce(conn net.Conn, connectionID uint64, ar Request) (Response, error) {
	txID := randomTransactionID()

	req := make([]byte, 98)
	binary.BigEndian.PutUint64(req[0:8], connectionID)
	binary.BigEndian.PutUint32(req[8:12], udpActionAnnounce)
	binary.BigEndian.PutUint32(req[12:16], txID)
	copy(req[16:36], ar.InfoHash.Bytes())
	copy(req[36:56], ar.PeerID.Bytes())
	binary.BigEndian.PutUint64(req[56:64], uint64(ar.Downloaded))
	binary.BigEndian.PutUint64(req[64:72], uint64(ar.Left))
	binary.BigEndian.PutUint64(req[72:80], uint64(ar.Uploaded))
	binary.BigEndian.PutUint32(req[80:84], uint32(udpEventValue(ar.Event)))
	binary.BigEndian.PutUint32(req[84:88], 0) // IP: 0 means "use sender's address"
	binary.BigEndian.PutUint32(req[88:92], txID) // key: reuse txID as a stable-enough nonce
	numWant := int32(ar.NumWant)
	if numWant == 0 {
		numWant = -1
	}
	binary.BigEndian.PutUint32(req[92:96], uint32(numWant))
	binary.BigEndian.PutUint16(req[96:98], ar.Port)

	conn.SetDeadline(time.Now().Add(c.timeout))
	if _, err := conn.Write(req); err != nil {
		return Response{}, err
	}

	buf := make([]byte, 20+6*1000)
	n, err := conn.Read(buf)
	if err != nil {
		return Response{}, err
	}
	if n < 20 {
		return Response{}, fmt.Errorf("udp tracker: short announce response (%d bytes)", n)
	}
	action := binary.BigEndian.Uint32(buf[0:4])
	gotTxID := binary.BigEndian.Uint32(buf[4:8])
	if gotTxID != txID {
		return Response{}, fmt.Errorf("udp tracker: transaction id mismatch")
	}
	if action == udpActionError {
		return Response{}, fmt.Errorf("udp tracker: %s", string(buf[8:n]))
	}
	if action != udpActionAnnounce {
		return Response{}, fmt.Errorf("udp tracker: unexpected action %d", action)
	}

	resp := Response{
		Interval: int(binary.BigEndian.Uint32(buf[8:12])),
		Leechers: int(binary.BigEndian.Uint32(buf[12:16])),
		Seeders:  int(binary.BigEndian.Uint32(buf[16:20])),
	}
	for off := 20; off+6 <= n; off += 6 {
		ip := net.IPv4(buf[off], buf[off+1], buf[off+2], buf[off+3])
		port := binary.BigEndian.Uint16(buf[off+4 : off+6])
		resp.Peers = append(resp.Peers, PeerEndpoint{IP: ip, Port: port})
	}
	return resp, nil
}

func udpEventValue(e Event) int {
	switch e {
	case EventCompleted:
		return 1
	case EventStarted:
		return 2
	case EventStopped:
		return 3
	default:
		return 0
	}
}
