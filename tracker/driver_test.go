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
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/leechkit/leech/core"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewDriverAppliesDefaults(t *testing.T) {
	require := require.New(t)

	d := NewDriver(nil, NewPeerQueue(), core.InfoHash{}, core.PeerID{}, 6881, clock.New(), 0, 0, zap.NewNop().Sugar())
	require.Equal(50, d.numWant)
}

func TestAnnounceOnceFallsThroughTiersOnFailure(t *testing.T) {
	require := require.New(t)

	// Both tiers' URLs use an unsupported scheme, forcing Dial to fail for
	// the first tier and announceOnce to fall through to the second tier.
	// Since no real tracker is reachable in a unit test, assert only that
	// announceOnce reports an error once every tier has failed.
	queue := NewPeerQueue()
	d := NewDriver(
		[][]string{{"ftp://bad.example.com"}, {"ftp://also-bad.example.com"}},
		queue, core.InfoHash{}, core.PeerID{}, 6881, clock.New(), time.Millisecond, 50,
		zap.NewNop().Sugar(),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := d.announceOnce(ctx, EventStarted, 0, 0)
	require.Error(err)
}

func TestAnnounceOnceReturnsNoTiersError(t *testing.T) {
	require := require.New(t)

	d := NewDriver(nil, NewPeerQueue(), core.InfoHash{}, core.PeerID{}, 6881, clock.New(), time.Millisecond, 50, zap.NewNop().Sugar())
	_, err := d.announceOnce(context.Background(), EventStarted, 0, 0)
	require.Error(err)
}
