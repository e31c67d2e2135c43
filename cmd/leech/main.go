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

// Command leech downloads a single torrent's content to a destination
// directory and exits once every piece is verified.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"

	"github.com/andres-erbsen/clock"
	"github.com/leechkit/leech/config"
	"github.com/leechkit/leech/core"
	"github.com/leechkit/leech/metainfo"
	"github.com/leechkit/leech/orchestrator"
	"github.com/leechkit/leech/progress"
	"github.com/leechkit/leech/scheduler"
	"github.com/leechkit/leech/storage"
	"github.com/leechkit/leech/tracker"
	"go.uber.org/zap"
)

// Flags defines leech's CLI flags.
type Flags struct {
	ConfigFile string
}

// ParseFlags parses leech's CLI flags and returns the flags alongside the
// remaining positional arguments (torrent file, destination directory).
func ParseFlags() (*Flags, []string) {
	var flags Flags
	flag.StringVar(&flags.ConfigFile, "config", "", "configuration file path")
	flag.Parse()
	return &flags, flag.Args()
}

func main() {
	flags, args := ParseFlags()
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: leech [-config file] <source.torrent> <destination_dir>")
		os.Exit(1)
	}
	torrentPath, destDir := args[0], args[1]

	logger, _ := zap.NewProduction()
	defer logger.Sync()
	log := logger.Sugar()

	if err := run(torrentPath, destDir, flags.ConfigFile, log); err != nil {
		log.Fatalf("leech failed: %s", err)
	}
}

func run(torrentPath, destDir, configFile string, log *zap.SugaredLogger) error {
	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	raw, err := ioutil.ReadFile(torrentPath)
	if err != nil {
		return fmt.Errorf("read torrent file: %w", err)
	}
	tor, err := metainfo.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse torrent: %w", err)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}
	files, err := storage.Open(tor, destDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer files.Close()

	queue := tracker.NewPeerQueue()
	sched := scheduler.New(tor, files, queue, log)

	log.Infof("Resuming %s: scanning %d pieces for existing data", tor.Name, tor.NumPieces())
	if err := sched.Resume(); err != nil {
		return fmt.Errorf("resume from disk: %w", err)
	}

	selfID, err := core.RandomPeerID()
	if err != nil {
		return fmt.Errorf("generate peer id: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)
	go func() {
		<-sigc
		log.Info("Interrupted, shutting down")
		cancel()
	}()

	clk := clock.New()

	driver := tracker.NewDriver(tor.AnnounceTiers, queue, tor.InfoHash, selfID, 0, clk,
		cfg.Tracker.AnnounceRate, cfg.Tracker.NumWant, log)
	needsPeers := func() bool {
		return sched.ActiveConnections() < cfg.Orchestrator.ConnLimit && queue.Len() == 0
	}
	go func() {
		if err := driver.Run(ctx, sched.Left, sched.Downloaded, needsPeers); err != nil && ctx.Err() == nil {
			log.Errorf("Tracker driver stopped: %s", err)
		}
	}()

	go progress.Run(ctx, os.Stdout, sched, clk, cfg.Orchestrator.ConnLimit)

	if err := orchestrator.Run(ctx, cfg.Orchestrator, tor, sched, selfID, clk, log); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}

	if sched.Done() {
		log.Infof("%s complete: %d bytes written to %s", tor.Name, sched.Downloaded(), destDir)
	}
	return nil
}
