/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seatunnel/workerhost/internal/eventbus"
	"github.com/seatunnel/workerhost/internal/worker"
)

var resourceSeq atomic.Uint64

// fakeResource is a controllable worker resource. Kill delivers an exit
// notification unless holdOnKill is set.
type fakeResource struct {
	id    string
	notes chan worker.Notification

	mu         sync.Mutex
	closed     bool
	kills      int
	posted     []worker.Envelope
	postErr    error
	paused     bool
	holdOnKill bool
}

func newFakeResource() *fakeResource {
	return &fakeResource{
		id:    fmt.Sprintf("fake-%d", resourceSeq.Add(1)),
		notes: make(chan worker.Notification, 64),
	}
}

func (r *fakeResource) ID() string { return r.id }

func (r *fakeResource) Notifications() <-chan worker.Notification { return r.notes }

func (r *fakeResource) Kill() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.kills++
	if r.holdOnKill {
		return nil
	}
	r.exitLocked(worker.Notification{Kind: worker.NotifyExit, ExitCode: -1})
	return nil
}

func (r *fakeResource) PostMessage(env worker.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return worker.ErrResourceClosed
	}
	if r.postErr != nil {
		return r.postErr
	}
	r.posted = append(r.posted, env)
	return nil
}

func (r *fakeResource) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = true
	return nil
}

func (r *fakeResource) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = false
	return nil
}

// emit delivers a non-exit notification.
func (r *fakeResource) emit(n worker.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.notes <- n
	}
}

// crash delivers an unexpected exit. It is a no-op once the resource exited.
func (r *fakeResource) crash(code int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.exitLocked(worker.Notification{
		Kind:     worker.NotifyExit,
		ExitCode: code,
		Err:      fmt.Errorf("exit status %d", code),
	})
	return true
}

// finish delivers a clean exit for a resource that was killed with holdOnKill.
func (r *fakeResource) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.exitLocked(worker.Notification{Kind: worker.NotifyExit})
	}
}

func (r *fakeResource) exitLocked(n worker.Notification) {
	r.closed = true
	r.notes <- n
	close(r.notes)
}

func (r *fakeResource) killCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.kills
}

func (r *fakeResource) postedMessages() []worker.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]worker.Envelope(nil), r.posted...)
}

// fakeSpawner hands out fake resources and can be told to fail.
type fakeSpawner struct {
	mu         sync.Mutex
	spawned    []*fakeResource
	fail       error
	holdOnKill bool
	delay      time.Duration
}

func (s *fakeSpawner) Spawn(ctx context.Context, spec worker.SpawnSpec) (worker.Resource, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	r := newFakeResource()
	r.holdOnKill = s.holdOnKill
	s.spawned = append(s.spawned, r)
	return r, nil
}

func (s *fakeSpawner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spawned)
}

func (s *fakeSpawner) setFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

var errSpawn = errors.New("no such file")

// recorder collects every event published on a bus.
type recorder struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func record(bus *eventbus.Bus) *recorder {
	r := &recorder{}
	bus.Subscribe(func(e eventbus.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, e)
	})
	return r
}

func (r *recorder) all() []eventbus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]eventbus.Event(nil), r.events...)
}

func (r *recorder) kinds(workerID string) []eventbus.Kind {
	var out []eventbus.Kind
	for _, e := range r.all() {
		if e.WorkerID() == workerID {
			out = append(out, e.Kind())
		}
	}
	return out
}

func (r *recorder) count(workerID string, kind eventbus.Kind) int {
	n := 0
	for _, k := range r.kinds(workerID) {
		if k == kind {
			n++
		}
	}
	return n
}

func (r *recorder) last(workerID string, kind eventbus.Kind) (eventbus.Event, bool) {
	events := r.all()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].WorkerID() == workerID && events[i].Kind() == kind {
			return events[i], true
		}
	}
	return eventbus.Event{}, false
}

func newTestSupervisor(t *testing.T, spawner *fakeSpawner, mutate func(*Options)) (*Supervisor, *recorder) {
	t.Helper()
	opts := DefaultOptions()
	opts.DrainInterval = time.Millisecond
	opts.CleanupDelay = time.Hour
	opts.Logger = zap.NewNop()
	if mutate != nil {
		mutate(&opts)
	}
	s := New(spawner, opts)
	rec := record(s.Bus())
	t.Cleanup(s.Dispose)
	return s, rec
}

func testConfig(id string) worker.Config {
	return worker.Config{ID: id, Kind: worker.KindDataProcessing, EntryPoint: "/usr/bin/worker"}
}

func currentResource(t *testing.T, s *Supervisor, id string) *fakeResource {
	t.Helper()
	h, ok := s.Get(id)
	require.True(t, ok, "worker %s not tracked", id)
	r, ok := h.Resource.(*fakeResource)
	require.True(t, ok)
	return r
}

func waitState(t *testing.T, s *Supervisor, id string, state worker.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		h, ok := s.Get(id)
		return ok && h.State == state
	}, 2*time.Second, 2*time.Millisecond, "worker %s never reached %s", id, state)
}
