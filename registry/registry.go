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

// Package registry implements C2, the Channel Registry: a concurrent
// index from channel.ID to the lazily-created OrderingSender that
// backs it (spec.md §4.2). Lookups are sharded to keep the common-case
// hit path lock-cheap, per spec.md §5 "The Channel Registry uses
// sharded locking" — the same technique the teacher applies to its
// connection tables in client2/connection.go.
package registry

import (
	"hash/fnv"
	"sync"

	"github.com/katzenpost/ipa-mesh/channel"
	"github.com/katzenpost/ipa-mesh/ordering"
	"github.com/katzenpost/ipa-mesh/record"
)

const shardCount = 32

// entry is the shared handle the registry hands out: the sender plus
// the record.Total it was created with, so a later disagreeing
// get_or_create call can be detected (spec.md §9 Open Question).
type entry struct {
	sender *ordering.Sender
	total  record.Total
}

type shard struct {
	mu sync.Mutex
	m  map[channel.ID]*entry
}

// Registry is the per-helper table of outbound channels. A Registry is
// created once per Gateway and torn down with it; per spec.md §9
// "Cyclic ownership", dropping the Registry is what ultimately allows
// the OrderingSender rings it holds to be collected once their
// transport-side readers are also gone.
type Registry struct {
	shards [shardCount]*shard
}

// New constructs an empty Registry.
func New() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{m: make(map[channel.ID]*entry)}
	}
	return r
}

func (r *Registry) shardFor(id channel.ID) *shard {
	h := fnv.New32a()
	_, _ = h.Write(id.Gate.WireBytes())
	_, _ = h.Write([]byte{byte(id.Peer)})
	return r.shards[h.Sum32()%shardCount]
}

// GetOrCreate implements spec.md §4.2's get_or_create: on a hit it
// returns the existing sender and created=false (no stream to forward);
// on a miss it constructs a fresh OrderingSender sized per size/total,
// stores it, and returns created=true — the caller MUST forward the
// returned sender to the transport exactly once, since creation (and
// therefore the stream handoff) is atomic per key.
//
// A second call for the same id with a different total is a
// programmer error and panics, per the Open Question resolved in
// SPEC_FULL.md §"Open Questions resolved".
func (r *Registry) GetOrCreate(id channel.ID, size int, total record.Total) (sender *ordering.Sender, created bool) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if e, ok := sh.m[id]; ok {
		if !e.total.Equal(total) {
			panic("registry: disagreeing total_records for channel " + id.String())
		}
		return e.sender, false
	}

	var s *ordering.Sender
	switch total.Kind() {
	case record.Indeterminate:
		s = ordering.NewIndeterminate(size)
	case record.Specified:
		s = ordering.NewSpecified(size, int(total.Count()))
	default:
		panic("registry: send before total_records was specified")
	}
	sh.m[id] = &entry{sender: s, total: total}
	return s, true
}

// Lookup returns the sender for id without creating one, for callers
// (e.g. the receive path) that must not trigger creation themselves.
func (r *Registry) Lookup(id channel.ID) (*ordering.Sender, bool) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.m[id]
	if !ok {
		return nil, false
	}
	return e.sender, true
}

// Len reports the number of channels currently registered, for tests
// and diagnostics.
func (r *Registry) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.Lock()
		n += len(sh.m)
		sh.mu.Unlock()
	}
	return n
}
