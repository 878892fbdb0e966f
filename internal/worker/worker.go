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

// Package worker provides the halt-channel based goroutine lifecycle
// embedded throughout the teacher codebase (e.g. client2/connection.go's
// `worker.Worker` embedding, used as `c.Go(c.connectWorker)` / `c.HaltCh()`).
// The Gateway event loop and any background flush goroutine are started
// through this type so teardown is uniform.
package worker

import "sync"

// Worker is embedded by any type that runs one or more long-lived
// goroutines that must be stopped together on shutdown. It is not safe
// to copy after first use.
type Worker struct {
	haltOnce sync.Once
	haltCh   chan struct{}
	wg       sync.WaitGroup
	initOnce sync.Once
}

func (w *Worker) init() {
	w.initOnce.Do(func() {
		w.haltCh = make(chan struct{})
	})
}

// HaltCh returns the channel that is closed when Halt is called. Select
// on it anywhere a goroutine needs to notice shutdown.
func (w *Worker) HaltCh() <-chan struct{} {
	w.init()
	return w.haltCh
}

// Go starts fn in a new goroutine tracked by this Worker's WaitGroup, so
// Wait returns only once every such goroutine has returned.
func (w *Worker) Go(fn func()) {
	w.init()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		fn()
	}()
}

// Halt closes the halt channel exactly once. Safe to call multiple times
// and from multiple goroutines.
func (w *Worker) Halt() {
	w.init()
	w.haltOnce.Do(func() {
		close(w.haltCh)
	})
}

// Wait blocks until every goroutine started via Go has returned. Callers
// normally call Halt() before Wait().
func (w *Worker) Wait() {
	w.wg.Wait()
}
