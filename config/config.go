// Copyright (C) 2024  Katzenpost Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package config loads the minimal runtime configuration cmd/helper
// needs: which role this process plays, the DZKP chunk size λ, the C3
// SendBuffer batch size, the outbound backlog warning threshold, and
// the heartbeat interval.
// This is intentionally not a general protocol configuration/CLI
// stack — that remains out of scope per spec.md §1 — just enough
// knobs to run the demo circuit. Decoding uses BurntSushi/toml, the
// format the teacher's mailproxy package names its own config file
// after (mailproxy.toml) without shipping a from-scratch TOML parser.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk shape of a helper's runtime configuration.
type Config struct {
	Role string `toml:"role"` // "H1", "H2", or "H3"

	Lambda int `toml:"lambda"` // DZKP chunk size

	ItemsInBatch int `toml:"items_in_batch"` // C3 SendBuffer batch size

	// BatchCount is the outbound readiness backlog above which the C4
	// heartbeat logs a warning. It does not bound how many batches a
	// channel may have outstanding; nothing does.
	BatchCount int `toml:"batch_count"`

	HeartbeatSeconds int `toml:"heartbeat_seconds"` // C4 stall-diagnostic interval
}

// Heartbeat returns the configured heartbeat interval, defaulting to
// 10s (spec.md §5) if unset.
func (c Config) Heartbeat() time.Duration {
	if c.HeartbeatSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// Default returns a Config with the demo circuit's standard knobs.
func Default(role string) Config {
	return Config{
		Role:             role,
		Lambda:           4,
		ItemsInBatch:     4,
		BatchCount:       2,
		HeartbeatSeconds: 10,
	}
}

// LoadFile decodes a Config from a TOML file at path.
func LoadFile(path string) (Config, error) {
	var c Config
	_, err := toml.DecodeFile(path, &c)
	return c, err
}
