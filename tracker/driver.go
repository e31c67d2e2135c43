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
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/leechkit/leech/core"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Dial selects a UDP or HTTP Announcer based on the tracker URL's scheme.
func Dial(trackerURL string) (Announcer, error) {
	u, err := url.Parse(trackerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid tracker url %q: %s", trackerURL, err)
	}
	switch u.Scheme {
	case "udp":
		return NewUDPClient(u.Host), nil
	case "http", "https":
		return NewHTTPClient(trackerURL), nil
	default:
		return nil, fmt.Errorf("unsupported tracker scheme %q", u.Scheme)
	}
}

// defaultInterval is used when a tier has never been reached and no
// interval is yet known.
const defaultInterval = 30 * time.Second

// backpressureRecheckInterval is how often Run rechecks needsPeers while
// withholding an announce round, rather than waiting out a full interval.
const backpressureRecheckInterval = 2 * time.Second

// Driver walks a torrent's announce tiers in order (BEP-12 failover),
// feeding discovered peers into a shared PeerQueue, and paces all tracker
// contacts with a single rate limiter.
type Driver struct {
	tiers    [][]string
	queue    *PeerQueue
	infoHash core.InfoHash
	peerID   core.PeerID
	port     uint16
	numWant  int

	clk     clock.Clock
	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

// NewDriver returns a Driver for the given announce tiers. announceRate
// bounds the interval between successive tracker contacts, across all URLs
// and tiers, and numWant is the peer count requested per announce.
func NewDriver(
	tiers [][]string,
	queue *PeerQueue,
	infoHash core.InfoHash,
	peerID core.PeerID,
	port uint16,
	clk clock.Clock,
	announceRate time.Duration,
	numWant int,
	log *zap.SugaredLogger,
) *Driver {
	if announceRate <= 0 {
		announceRate = 5 * time.Second
	}
	if numWant <= 0 {
		numWant = 50
	}
	return &Driver{
		tiers:    tiers,
		queue:    queue,
		infoHash: infoHash,
		peerID:   peerID,
		port:     port,
		numWant:  numWant,
		clk:      clk,
		limiter:  rate.NewLimiter(rate.Every(announceRate), 1),
		log:      log,
	}
}

// Run drives periodic announces until ctx is canceled. left and downloaded
// are read at announce time via the provided callbacks so the driver always
// reports current progress. needsPeers reports whether the caller can make
// use of more peers right now; when it returns false (the connection set is
// at capacity, or the peer queue already holds undialed candidates), Run
// withholds the announce round entirely and rechecks shortly after, rather
// than discovering peers nobody is ready to dial. A nil needsPeers always
// announces on the tracker-reported interval.
func (d *Driver) Run(ctx context.Context, left, downloaded func() int64, needsPeers func() bool) error {
	event := EventStarted
	for {
		if needsPeers != nil && !needsPeers() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-d.clk.After(backpressureRecheckInterval):
			}
			continue
		}

		interval, err := d.announceOnce(ctx, event, left(), downloaded())
		event = EventNone
		if err != nil {
			d.log.Errorf("Announce round failed: %s", err)
			interval = defaultInterval
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.clk.After(interval):
		}
	}
}

// announceOnce tries each tier in order, and within a tier each URL in
// order, stopping at the first tracker that answers successfully (BEP-12
// failover semantics). The responding peer list is pushed into the queue.
func (d *Driver) announceOnce(ctx context.Context, event Event, left, downloaded int64) (time.Duration, error) {
	req := Request{
		InfoHash:   d.infoHash,
		PeerID:     d.peerID,
		Port:       d.port,
		Downloaded: downloaded,
		Left:       left,
		Event:      event,
		NumWant:    d.numWant,
	}

	var lastErr error
	for _, tier := range d.tiers {
		for _, trackerURL := range tier {
			if err := d.limiter.Wait(ctx); err != nil {
				return defaultInterval, err
			}
			a, err := Dial(trackerURL)
			if err != nil {
				lastErr = err
				continue
			}
			resp, err := a.Announce(req)
			if err != nil {
				lastErr = err
				d.log.Warnf("Tracker %q announce failed: %s", trackerURL, err)
				continue
			}
			d.queue.Add(resp.Peers)
			interval := time.Duration(resp.Interval) * time.Second
			if interval <= 0 {
				interval = defaultInterval
			}
			return interval, nil
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no announce tiers configured")
	}
	return defaultInterval, lastErr
}
