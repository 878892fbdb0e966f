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

package buffers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/katzenpost/ipa-mesh/channel"
	"github.com/katzenpost/ipa-mesh/mpcerr"
	"github.com/katzenpost/ipa-mesh/record"
)

type recvKey struct {
	channel channel.ID
	record  record.ID
}

type recvResult struct {
	payload []byte
	err     error
}

// recvItem is the ReceiveBuffer's per-(channel,record) slot: it is
// either a one-shot fulfiller waiting on a payload that hasn't arrived
// yet, or a payload waiting on a request that hasn't been made yet.
type recvItem struct {
	fulfill     chan recvResult // non-nil: a receive was requested first
	payload     []byte          // non-nil (possibly zero-length, tracked by delivered): the message arrived first
	delivered   bool
	requestedAt time.Time // set when fulfill != nil, for heartbeat stall diagnostics
}

// StalledReceive names one channel/record pair whose receive request
// has been outstanding longer than a heartbeat interval, for spec.md
// §5/§8 S6's diagnostic logging.
type StalledReceive struct {
	Channel channel.ID
	Record  record.ID
	Since   time.Time
}

// Stalled reports every pending receive request older than threshold,
// for the Gateway's heartbeat tick to log.
func (b *ReceiveBuffer) Stalled(threshold time.Duration) []StalledReceive {
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []StalledReceive
	for key, it := range b.items {
		if it.fulfill != nil && now.Sub(it.requestedAt) >= threshold {
			out = append(out, StalledReceive{Channel: key.channel, Record: key.record, Since: it.requestedAt})
		}
	}
	return out
}

// ReceiveBuffer reconciles inbound payloads with local protocol code's
// receive requests, whichever arrives first (spec.md §4.3). Each
// record may be requested at most once and delivered at most once;
// violating either is a protocol-author bug and panics rather than
// returning an error, matching the source system's debug assertions.
type ReceiveBuffer struct {
	mu    sync.Mutex
	items map[recvKey]*recvItem
}

// NewReceiveBuffer constructs an empty ReceiveBuffer.
func NewReceiveBuffer() *ReceiveBuffer {
	return &ReceiveBuffer{items: make(map[recvKey]*recvItem)}
}

// Request registers interest in (id, rec) and blocks until Deliver
// supplies the payload, ctx is cancelled, or the Gateway fails the
// outstanding receive (mpcerr.ReceiveError).
func (b *ReceiveBuffer) Request(ctx context.Context, id channel.ID, rec record.ID) ([]byte, error) {
	key := recvKey{channel: id, record: rec}

	b.mu.Lock()
	it, ok := b.items[key]
	if ok {
		if it.delivered {
			delete(b.items, key)
			b.mu.Unlock()
			return it.payload, nil
		}
		b.mu.Unlock()
		panic(fmt.Sprintf("More than one request to receive a message for %s", rec))
	}
	it = &recvItem{fulfill: make(chan recvResult, 1), requestedAt: time.Now()}
	b.items[key] = it
	b.mu.Unlock()

	select {
	case res := <-it.fulfill:
		return res.payload, res.err
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.items, key)
		b.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Deliver supplies the payload for (id, rec), fulfilling a pending
// Request if one exists, or staging the payload for a future Request
// otherwise.
func (b *ReceiveBuffer) Deliver(id channel.ID, rec record.ID, payload []byte) {
	key := recvKey{channel: id, record: rec}

	b.mu.Lock()
	it, ok := b.items[key]
	if ok {
		if it.fulfill == nil {
			b.mu.Unlock()
			panic(fmt.Sprintf("buffers: Record %s has been received twice", rec))
		}
		delete(b.items, key)
		b.mu.Unlock()
		it.fulfill <- recvResult{payload: payload}
		return
	}
	b.items[key] = &recvItem{payload: payload, delivered: true}
	b.mu.Unlock()
}

// Fail aborts every pending Request for id with a ReceiveError, used
// when the Gateway's event loop stops, whether on teardown or on a
// transport stream failure (spec.md §5 "Cancellation").
func (b *ReceiveBuffer) Fail(id channel.ID, cause error) {
	b.mu.Lock()
	var waiters []*recvItem
	for key, it := range b.items {
		if key.channel == id && it.fulfill != nil {
			waiters = append(waiters, it)
			delete(b.items, key)
		}
	}
	b.mu.Unlock()

	for _, it := range waiters {
		it.fulfill <- recvResult{err: &mpcerr.ReceiveError{Role: id.String(), Cause: cause}}
	}
}
