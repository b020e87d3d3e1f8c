// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package coreconfig holds the small set of tunable parameters the
// accumulator and join substrate read at construction time: spill
// compression algorithm, join-table overflow slack, and initial UDAF
// row capacity. None of it is read from the environment directly;
// callers load it once (typically from a definition.yaml sitting
// beside the rest of a tenant's catalog config, the way sneller's db
// package locates a definition.yaml) and pass the relevant fields down
// into jointable.Build (via WithOverflowSlack) and coreio.SpillBlock.
package coreconfig

import (
	"sigs.k8s.io/yaml"

	"github.com/xm0830/blaze"
)

// DefaultJoinOverflowSlack is the join-table overflow slack Default
// uses, exported as a constant so packages that need it at
// compile-time (jointable's zero-Option fast path) don't have to
// construct a Config just to read one field.
const DefaultJoinOverflowSlack = 1024

// Config holds the tunables for one instance of the accumulator/join
// core. The zero value is not valid; use Default or Load.
type Config struct {
	// SpillCompression names the coreio compression algorithm to pass
	// to coreio.SpillBlock/UnspillBlock when spilled AccColumn bytes
	// are written to disk: "zstd", "zstd-better", "s2", or "" for
	// uncompressed.
	SpillCompression string `json:"spillCompression"`

	// JoinOverflowSlack is the extra bucket capacity a JoinHashIndex
	// reserves past map_mod before it has to grow its slot array
	// during build (spec.md §3's "plus overflow slack").
	JoinOverflowSlack int `json:"joinOverflowSlack"`

	// UDAFInitialCapacity is a group-slot count for an external UDAF
	// accumulator to reserve before any groups are known. No package
	// in this module reads it: UDAF.CreateAccColumn always calls
	// HostRuntime.Initialize with zero slots.
	UDAFInitialCapacity int `json:"udafInitialCapacity"`
}

// Default returns the configuration this module uses when a caller
// has none of its own: zstd spill compression, 1024 rows of join
// overflow slack (the same constant the original implementation
// reserves), and no UDAF pre-sizing.
func Default() Config {
	return Config{
		SpillCompression:    "zstd",
		JoinOverflowSlack:   DefaultJoinOverflowSlack,
		UDAFInitialCapacity: 0,
	}
}

// Load parses YAML-encoded configuration, starting from Default and
// overriding only the fields data sets. An empty or all-comment
// document therefore yields Default unchanged.
func Load(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, blaze.NewInvalidArgument("coreconfig: parse config", err)
	}
	if cfg.JoinOverflowSlack < 0 {
		return Config{}, blaze.NewInvalidArgument("coreconfig: joinOverflowSlack must be >= 0", nil)
	}
	if cfg.UDAFInitialCapacity < 0 {
		return Config{}, blaze.NewInvalidArgument("coreconfig: udafInitialCapacity must be >= 0", nil)
	}
	return cfg, nil
}
