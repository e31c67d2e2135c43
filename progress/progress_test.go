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
package progress

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/require"
)

type fakeCounters struct {
	downloaded int64
	total      int64
	conns      int
}

func (f *fakeCounters) Downloaded() int64     { return f.downloaded }
func (f *fakeCounters) Left() int64           { return f.total - f.downloaded }
func (f *fakeCounters) Done() bool            { return f.downloaded >= f.total }
func (f *fakeCounters) ActiveConnections() int { return f.conns }

func TestRunStopsAfterDone(t *testing.T) {
	require := require.New(t)

	sched := &fakeCounters{downloaded: 10 * mebibyte, total: 10 * mebibyte, conns: 3}
	var buf bytes.Buffer

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	Run(ctx, &buf, sched, clock.New(), 50)

	require.True(strings.Contains(buf.String(), "Downloaded: 10.00 MB"))
	require.True(strings.Contains(buf.String(), "Connections: 3/50"))
}

func TestRunReportsPartialProgress(t *testing.T) {
	require := require.New(t)

	sched := &fakeCounters{downloaded: 5 * mebibyte, total: 20 * mebibyte, conns: 2}
	var buf bytes.Buffer

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // stop after the first line regardless of Done()

	Run(ctx, &buf, sched, clock.New(), 50)

	require.Contains(buf.String(), "Downloaded: 5.00 MB / Speed: 0.00 MB/s / Connections: 2/50")
}
