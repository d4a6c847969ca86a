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

package eventsink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seatunnel/workerhost/internal/config"
	"github.com/seatunnel/workerhost/internal/eventbus"
	"github.com/seatunnel/workerhost/internal/worker"
)

type fakePublisher struct {
	mu       sync.Mutex
	fail     bool
	channels []string
	payloads [][]byte
}

func (f *fakePublisher) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("connection refused")
	}
	f.channels = append(f.channels, channel)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func runSink(t *testing.T, s *Sink) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		s.Close()
	})
}

func emit(bus *eventbus.Bus, id string, p eventbus.Payload) {
	bus.Publish(eventbus.NewEvent(worker.Handle{ID: id, Kind: worker.KindNetwork, State: worker.StateRunning}, p))
}

func TestSink_ForwardsWireEvents(t *testing.T) {
	bus := eventbus.New(zap.NewNop())
	pub := &fakePublisher{}
	s := New(bus, pub, DefaultOptions("events"), zap.NewNop())
	runSink(t, s)

	emit(bus, "w1", eventbus.Created{})
	emit(bus, "w1", eventbus.Output{Stream: worker.NotifyStdout, Line: "hello"})

	require.Eventually(t, func() bool { return pub.count() == 2 }, 2*time.Second, 5*time.Millisecond)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, []string{"events", "events"}, pub.channels)

	var w eventbus.Wire
	require.NoError(t, json.Unmarshal(pub.payloads[1], &w))
	assert.Equal(t, eventbus.KindOutput, w.Kind)
	assert.Equal(t, "w1", w.WorkerID)
	assert.Equal(t, "hello", w.Detail["line"])
	assert.Equal(t, uint64(2), s.Stats().Published)
}

func TestSink_BreakerOpensAfterFailures(t *testing.T) {
	bus := eventbus.New(zap.NewNop())
	pub := &fakePublisher{fail: true}
	opts := DefaultOptions("events")
	opts.FailureThreshold = 2
	opts.BreakerTimeout = time.Hour
	s := New(bus, pub, opts, zap.NewNop())
	runSink(t, s)

	for i := 0; i < 5; i++ {
		emit(bus, "w1", eventbus.Started{})
	}

	require.Eventually(t, func() bool {
		st := s.Stats()
		return st.Failed+st.Rejected == 5
	}, 2*time.Second, 5*time.Millisecond)

	st := s.Stats()
	assert.Equal(t, uint64(2), st.Failed)
	assert.Equal(t, uint64(3), st.Rejected)
	assert.Equal(t, "open", st.BreakerState)
	assert.Zero(t, st.Published)
}

func TestSink_DropsWhenQueueFull(t *testing.T) {
	bus := eventbus.New(zap.NewNop())
	opts := DefaultOptions("events")
	opts.QueueSize = 1
	s := New(bus, &fakePublisher{}, opts, zap.NewNop())
	defer s.Close()

	emit(bus, "w1", eventbus.Created{})
	emit(bus, "w1", eventbus.Started{})
	emit(bus, "w1", eventbus.Paused{})

	st := s.Stats()
	assert.Equal(t, 1, st.Queued)
	assert.Equal(t, uint64(2), st.Dropped)
}

func TestSink_KindsFilterAndClose(t *testing.T) {
	bus := eventbus.New(zap.NewNop())
	opts := DefaultOptions("events")
	opts.Kinds = []eventbus.Kind{eventbus.KindStopped}
	s := New(bus, &fakePublisher{}, opts, zap.NewNop())

	emit(bus, "w1", eventbus.Created{})
	emit(bus, "w1", eventbus.Stopped{Reason: worker.StopReasonRequested})
	assert.Equal(t, 1, s.Stats().Queued)

	s.Close()
	emit(bus, "w1", eventbus.Stopped{Reason: worker.StopReasonRequested})
	assert.Equal(t, 1, s.Stats().Queued)
}

func TestRedisOptions(t *testing.T) {
	opts := RedisOptions(config.RedisConfig{
		Host:        "cache.internal",
		Password:    "secret",
		DB:          2,
		PoolSize:    7,
		DialTimeout: 4,
	})
	assert.Equal(t, "cache.internal:6379", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, 4*time.Second, opts.DialTimeout)
	assert.Zero(t, opts.ReadTimeout)
}

func TestNewRedisClient_DoesNotDial(t *testing.T) {
	client, err := NewRedisClient(config.RedisConfig{Host: "127.0.0.1", Port: 1})
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, "127.0.0.1:1", client.Options().Addr)
}
