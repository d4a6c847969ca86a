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

package supervisor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seatunnel/workerhost/internal/actor"
	"github.com/seatunnel/workerhost/internal/eventbus"
	"github.com/seatunnel/workerhost/internal/process"
	"github.com/seatunnel/workerhost/internal/supervisor"
	"github.com/seatunnel/workerhost/internal/worker"
)

func newActorSupervisor(t *testing.T) *supervisor.Supervisor {
	t.Helper()
	reg := actor.NewRegistry(zap.NewNop())
	require.NoError(t, actor.RegisterBuiltins(reg))
	router := process.NewRouter(nil)
	router.Handle(actor.Scheme, reg)

	opts := supervisor.DefaultOptions()
	opts.DrainInterval = time.Millisecond
	opts.Logger = zap.NewNop()
	s := supervisor.New(router, opts)
	t.Cleanup(s.Dispose)
	return s
}

func TestIntegration_EchoActor(t *testing.T) {
	s := newActorSupervisor(t)

	var mu sync.Mutex
	var replies []worker.Envelope
	s.Bus().Subscribe(func(e eventbus.Event) {
		mu.Lock()
		defer mu.Unlock()
		replies = append(replies, e.Payload.(eventbus.Message).Envelope)
	}, eventbus.KindMessage)

	_, err := s.Create(context.Background(), worker.Config{
		ID:         "echo-1",
		Kind:       worker.KindCustom,
		EntryPoint: "actor://echo",
	})
	require.NoError(t, err)
	require.True(t, s.SendMessage("echo-1", worker.NewEnvelope("job", "payload")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(replies) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, actor.MessageEcho, replies[0].Type)
	assert.Equal(t, "payload", replies[0].Data)
}

func TestIntegration_CrashingActorExhaustsRestarts(t *testing.T) {
	s := newActorSupervisor(t)

	var mu sync.Mutex
	var stopped []eventbus.Stopped
	restarted := 0
	s.Bus().Subscribe(func(e eventbus.Event) {
		mu.Lock()
		defer mu.Unlock()
		switch p := e.Payload.(type) {
		case eventbus.Stopped:
			stopped = append(stopped, p)
		case eventbus.Restarted:
			restarted++
		}
	}, eventbus.KindStopped, eventbus.KindRestarted)

	_, err := s.Create(context.Background(), worker.Config{
		ID:          "crashy",
		Kind:        worker.KindCustom,
		EntryPoint:  "actor://crash",
		AutoRestart: true,
		MaxRestarts: 3,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(stopped) == 1
	}, 5*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, restarted)
	assert.Equal(t, worker.StopReasonRestartsExhausted, stopped[0].Reason)

	h, ok := s.Get("crashy")
	require.True(t, ok)
	assert.Equal(t, worker.StateStopped, h.State)
	assert.Equal(t, 3, h.RestartCount)
}

func TestIntegration_UnknownActorFailsSpawn(t *testing.T) {
	s := newActorSupervisor(t)
	_, err := s.Create(context.Background(), worker.Config{Kind: worker.KindCustom, EntryPoint: "actor://nope"})
	assert.ErrorIs(t, err, supervisor.ErrSpawnFailed)
	assert.Equal(t, 0, s.Len())
}
