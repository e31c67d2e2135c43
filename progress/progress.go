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

// Package progress prints a plain-text download progress line at a fixed
// interval, reading counters directly off the scheduler.
package progress

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/andres-erbsen/clock"
)

// Counters is the subset of scheduler.Scheduler that progress reporting
// depends on, kept narrow so tests can supply a fake.
type Counters interface {
	Downloaded() int64
	Left() int64
	Done() bool
	ActiveConnections() int
}

// interval is how often a progress line is printed.
const interval = time.Second

const mebibyte = 1 << 20

// Run writes one progress line per interval to w until ctx is canceled or
// sched reports the download complete, at which point a final line is
// written before returning. Speed is computed as the bytes downloaded since
// the previous line divided by the elapsed wall-clock time, so the first
// line of a run always reports zero speed. connLimit is the effective
// concurrent-connection cap, printed alongside the current count.
func Run(ctx context.Context, w io.Writer, sched Counters, clk clock.Clock, connLimit int) {
	prevDownloaded := sched.Downloaded()
	prevTime := clk.Now()

	writeLine(w, sched, connLimit, 0)
	if sched.Done() {
		return
	}

	tick := clk.Tick(interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
		}

		now := clk.Now()
		downloaded := sched.Downloaded()

		var speed float64
		if elapsed := now.Sub(prevTime).Seconds(); elapsed > 0 {
			speed = float64(downloaded-prevDownloaded) / elapsed
		}
		prevDownloaded = downloaded
		prevTime = now

		writeLine(w, sched, connLimit, speed)
		if sched.Done() {
			return
		}
	}
}

func writeLine(w io.Writer, sched Counters, connLimit int, speedBytesPerSec float64) {
	downloadedMB := float64(sched.Downloaded()) / mebibyte
	speedMBs := speedBytesPerSec / mebibyte
	fmt.Fprintf(w, "Downloaded: %.2f MB / Speed: %.2f MB/s / Connections: %d/%d\n",
		downloadedMB, speedMBs, sched.ActiveConnections(), connLimit)
}
