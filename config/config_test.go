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
package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultAppliesTrackerDefaults(t *testing.T) {
	require := require.New(t)

	c := Default()
	require.Equal(5*time.Second, c.Tracker.AnnounceRate)
	require.Equal(50, c.Tracker.NumWant)
	require.Equal(50, c.Orchestrator.ConnLimit)
	require.Equal(time.Second, c.Orchestrator.PollInterval)
}

func TestLoadParsesYAMLAndAppliesDefaults(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "leech.yaml")
	contents := []byte("orchestrator:\n  conn_limit: 10\ntracker:\n  num_want: 25\n")
	require.NoError(ioutil.WriteFile(path, contents, 0644))

	c, err := Load(path)
	require.NoError(err)
	require.Equal(10, c.Orchestrator.ConnLimit)
	require.Equal(25, c.Tracker.NumWant)
	// AnnounceRate wasn't set in the file, so it still gets its default.
	require.Equal(5*time.Second, c.Tracker.AnnounceRate)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	require := require.New(t)

	_, err := Load("/nonexistent/leech.yaml")
	require.Error(err)
}
