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

package ordering

import (
	"context"
	"sync"
)

// waker implements a single condition-style waker that supports
// cancellation via context, which sync.Cond cannot do. Waiting goroutines
// capture the current channel, release the lock, and select on it versus
// ctx.Done(); wake() closes the channel (broadcasting to every waiter)
// and installs a fresh one. Callers must hold the associated mutex when
// calling wake() or wait().
//
// spec.md §5 calls for "a single mutex plus a pair of condition wakers
// (writer-waker, reader-waker)" — OrderingSender holds one waker of this
// type for each role.
type waker struct {
	ch chan struct{}
}

func newWaker() *waker {
	return &waker{ch: make(chan struct{})}
}

// wake releases every goroutine currently blocked in wait. Must be
// called with the owning mutex held.
func (w *waker) wake() {
	close(w.ch)
	w.ch = make(chan struct{})
}

// wait releases mu, blocks until the next wake() or ctx cancellation,
// then reacquires mu before returning. Must be called with mu held.
func (w *waker) wait(ctx context.Context, mu *sync.Mutex) error {
	ch := w.ch
	mu.Unlock()
	defer mu.Lock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
