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
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/leechkit/leech/bencode"
)

// HTTPClient announces to a single BEP-3 HTTP(S) tracker.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient returns an HTTPClient for the given announce URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Announce performs a single GET request against the tracker's announce
// endpoint and parses the bencoded response.
func (c *HTTPClient) Announce(ar Request) (Response, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return Response{}, &TrackerUnreachableError{URL: c.baseURL, Err: err}
	}

	q := u.Query()
	q.Set("info_hash", string(ar.InfoHash.Bytes()))
	q.Set("peer_id", string(ar.PeerID.Bytes()))
	q.Set("port", strconv.Itoa(int(ar.Port)))
	q.Set("uploaded", strconv.FormatInt(ar.Uploaded, 10))
	q.Set("downloaded", strconv.FormatInt(ar.Downloaded, 10))
	q.Set("left", strconv.FormatInt(ar.Left, 10))
	q.Set("compact", "1")
	if ev := ar.Event.String(); ev != "" {
		q.Set("event", ev)
	}
	if ar.NumWant > 0 {
		q.Set("numwant", strconv.Itoa(ar.NumWant))
	}
	u.RawQuery = q.Encode()

	resp, err := c.client.Get(u.String())
	if err != nil {
		return Response{}, &TrackerUnreachableError{URL: c.baseURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &TrackerUnreachableError{URL: c.baseURL, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, &TrackerUnreachableError{
			URL: c.baseURL,
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	return parseHTTPResponse(body)
}

func parseHTTPResponse(body []byte) (Response, error) {
	elem, err := bencode.Unmarshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("tracker response: %s", err)
	}
	dict, ok := elem.Dict()
	if !ok {
		return Response{}, fmt.Errorf("tracker response: not a dict")
	}

	if failure, err := dict.GetBytes("failure reason"); err == nil {
		return Response{}, fmt.Errorf("tracker failure: %s", string(failure))
	}

	var resp Response
	if interval, err := dict.GetInt("interval"); err == nil {
		resp.Interval = int(interval)
	}
	if complete, err := dict.GetInt("complete"); err == nil {
		resp.Seeders = int(complete)
	}
	if incomplete, err := dict.GetInt("incomplete"); err == nil {
		resp.Leechers = int(incomplete)
	}

	peersElem, ok := dict.Get("peers")
	if !ok {
		return resp, nil
	}

	if raw, ok := peersElem.Bytes(); ok {
		resp.Peers, err = parseCompactPeers(raw)
		if err != nil {
			return Response{}, err
		}
		return resp, nil
	}
	if list, ok := peersElem.List(); ok {
		resp.Peers, err = parseDictionaryPeers(list)
		if err != nil {
			return Response{}, err
		}
		return resp, nil
	}
	return resp, fmt.Errorf("tracker response: unrecognized \"peers\" encoding")
}

func parseCompactPeers(raw []byte) ([]PeerEndpoint, error) {
	if len(raw)%6 != 0 {
		return nil, fmt.Errorf("compact peers field length %d is not a multiple of 6", len(raw))
	}
	var peers []PeerEndpoint
	for off := 0; off+6 <= len(raw); off += 6 {
		ip := net.IPv4(raw[off], raw[off+1], raw[off+2], raw[off+3])
		port := uint16(raw[off+4])<<8 | uint16(raw[off+5])
		peers = append(peers, PeerEndpoint{IP: ip, Port: port})
	}
	return peers, nil
}

func parseDictionaryPeers(list []bencode.Element) ([]PeerEndpoint, error) {
	var peers []PeerEndpoint
	for _, e := range list {
		d, ok := e.Dict()
		if !ok {
			continue
		}
		ipRaw, err := d.GetBytes("ip")
		if err != nil {
			continue
		}
		portVal, err := d.GetInt("port")
		if err != nil {
			continue
		}
		ip := net.ParseIP(string(ipRaw))
		if ip == nil {
			continue
		}
		peers = append(peers, PeerEndpoint{IP: ip, Port: uint16(portVal)})
	}
	return peers, nil
}
