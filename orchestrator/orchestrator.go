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

// Package orchestrator runs the top-level download loop: it admits new
// peer connections under a concurrency cap, spawns a session per admitted
// peer, and waits for the torrent to complete.
package orchestrator

import (
	"context"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/leechkit/leech/core"
	"github.com/leechkit/leech/metainfo"
	"github.com/leechkit/leech/scheduler"
	"github.com/leechkit/leech/session"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Config controls orchestrator admission policy.
type Config struct {
	// ConnLimit bounds the number of concurrently dialed peer sessions.
	ConnLimit int `yaml:"conn_limit"`

	// PollInterval is how often the dial loop checks for newly announced
	// peers when the queue is empty.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ApplyDefaults fills any zero-valued field with its default, returning the
// effective config. Callers that need ConnLimit before Run starts (e.g. to
// size a tracker backpressure check or a progress display) should call this
// themselves rather than guess at Run's internal defaults.
func (c Config) ApplyDefaults() Config {
	if c.ConnLimit == 0 {
		c.ConnLimit = 50
	}
	if c.PollInterval == 0 {
		c.PollInterval = time.Second
	}
	return c
}

// Run dials peers from the scheduler's queue, admitting up to
// cfg.ConnLimit concurrent sessions, until every piece is verified or ctx
// is canceled.
func Run(ctx context.Context, cfg Config, tor *metainfo.Torrent, sched *scheduler.Scheduler, selfID core.PeerID, clk clock.Clock, log *zap.SugaredLogger) error {
	cfg = cfg.ApplyDefaults()
	sem := semaphore.NewWeighted(int64(cfg.ConnLimit))

	pollTick := clk.Tick(cfg.PollInterval)

	for !sched.Done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		peer, ok := sched.NextPeer()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-pollTick:
			}
			continue
		}

		addr := peer.String()
		if !sched.AdmitConnection(addr, cfg.ConnLimit) {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			sched.ReleaseConnection(addr)
			return err
		}

		go func() {
			defer sem.Release(1)
			defer sched.ReleaseConnection(addr)
			runSession(addr, tor, sched, selfID, clk, log)
		}()
	}
	return nil
}

func runSession(addr string, tor *metainfo.Torrent, sched *scheduler.Scheduler, selfID core.PeerID, clk clock.Clock, log *zap.SugaredLogger) {
	s, err := session.Dial(addr, tor, sched, selfID, clk, log)
	if err != nil {
		log.Debugf("Session with %s failed: %s", addr, err)
		return
	}
	defer s.Close()
	if err := s.Run(); err != nil {
		log.Debugf("Session with %s ended: %s", addr, err)
	}
}
