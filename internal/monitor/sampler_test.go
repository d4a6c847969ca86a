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

package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatunnel/workerhost/internal/worker"
)

type plainResource struct{ id string }

func (r *plainResource) ID() string                              { return r.id }
func (r *plainResource) Kill() error                             { return nil }
func (r *plainResource) PostMessage(worker.Envelope) error       { return nil }
func (r *plainResource) Notifications() <-chan worker.Notification { return nil }

type reportingResource struct {
	plainResource
	usage worker.Usage
	err   error
}

func (r *reportingResource) Usage(context.Context) (worker.Usage, error) {
	return r.usage, r.err
}

type staticSource []*worker.Handle

func (s staticSource) All() []*worker.Handle { return s }

type memRecorder struct {
	mu      sync.Mutex
	samples map[string]worker.Usage
	errors  int
}

func (m *memRecorder) ObserveUsage(id string, _ worker.Kind, u worker.Usage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.samples == nil {
		m.samples = make(map[string]worker.Usage)
	}
	m.samples[id] = u
}

func (m *memRecorder) UsageError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

func (m *memRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples)
}

func handle(id string, state worker.State, res worker.Resource) *worker.Handle {
	return &worker.Handle{ID: id, Kind: worker.KindDataProcessing, State: state, Resource: res}
}

func TestSampleOnce(t *testing.T) {
	src := staticSource{
		handle("proc", worker.StateRunning, &reportingResource{plainResource: plainResource{"r1"}, usage: worker.Usage{PID: 42, CPUPercent: 3.5}}),
		handle("paused", worker.StatePaused, &reportingResource{plainResource: plainResource{"r2"}, usage: worker.Usage{PID: 43}}),
		handle("actor", worker.StateRunning, &plainResource{"r3"}),
		handle("stopped", worker.StateStopped, &reportingResource{plainResource: plainResource{"r4"}}),
		handle("broken", worker.StateRunning, &reportingResource{plainResource: plainResource{"r5"}, err: errors.New("gone")}),
	}
	rec := &memRecorder{}
	s := NewSampler(src, rec, time.Second, nil)

	assert.Equal(t, 2, s.SampleOnce(context.Background()))
	assert.Equal(t, 1, rec.errors)
	assert.Equal(t, 3.5, rec.samples["proc"].CPUPercent)

	smp, ok := s.Last("proc")
	require.True(t, ok)
	assert.Equal(t, int32(42), smp.Usage.PID)
	assert.Equal(t, worker.KindDataProcessing, smp.Kind)

	_, ok = s.Last("actor")
	assert.False(t, ok)
	assert.Len(t, s.Snapshot(), 2)
}

func TestSampleOnce_ForgetsGoneWorkers(t *testing.T) {
	res := &reportingResource{plainResource: plainResource{"r1"}, usage: worker.Usage{PID: 1}}
	src := staticSource{handle("proc", worker.StateRunning, res)}
	s := NewSampler(src, nil, time.Second, nil)
	require.Equal(t, 1, s.SampleOnce(context.Background()))

	s.src = staticSource{}
	assert.Equal(t, 0, s.SampleOnce(context.Background()))
	_, ok := s.Last("proc")
	assert.False(t, ok)
}

func TestServe_SamplesPeriodically(t *testing.T) {
	res := &reportingResource{plainResource: plainResource{"r1"}, usage: worker.Usage{PID: 7}}
	rec := &memRecorder{}
	s := NewSampler(staticSource{handle("proc", worker.StateRunning, res)}, rec, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
