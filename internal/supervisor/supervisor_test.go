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
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/seatunnel/workerhost/internal/eventbus"
	"github.com/seatunnel/workerhost/internal/worker"
)

func TestCreate_ReturnsRunningHandleAndAnnounces(t *testing.T) {
	s, rec := newTestSupervisor(t, &fakeSpawner{}, nil)

	h, err := s.Create(context.Background(), testConfig("w-1"))
	require.NoError(t, err)

	assert.Equal(t, "w-1", h.ID)
	assert.Equal(t, worker.StateRunning, h.State)
	assert.NotNil(t, h.StartedAt)
	assert.NotEmpty(t, h.ResourceID)
	assert.Zero(t, h.RestartCount)
	assert.Equal(t, []eventbus.Kind{eventbus.KindCreated, eventbus.KindStarted}, rec.kinds("w-1"))
	assert.Equal(t, 1, s.Len())
}

func TestCreate_GeneratesID(t *testing.T) {
	s, _ := newTestSupervisor(t, &fakeSpawner{}, nil)
	cfg := testConfig("")
	cfg.Kind = worker.KindNetwork

	a, err := s.Create(context.Background(), cfg)
	require.NoError(t, err)
	b, err := s.Create(context.Background(), cfg)
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^network-\d+-\d+$`)
	assert.Regexp(t, pattern, a.ID)
	assert.Regexp(t, pattern, b.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.ID, a.Config.ID, "generated id is kept in the config for restarts")
}

func TestCreate_CapacityExceeded(t *testing.T) {
	s, _ := newTestSupervisor(t, &fakeSpawner{}, func(o *Options) { o.MaxConcurrentWorkers = 2 })

	_, err := s.Create(context.Background(), testConfig(""))
	require.NoError(t, err)
	_, err = s.Create(context.Background(), testConfig(""))
	require.NoError(t, err)

	_, err = s.Create(context.Background(), testConfig(""))
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, 2, s.Len())
}

func TestCreate_DuplicateID(t *testing.T) {
	s, _ := newTestSupervisor(t, &fakeSpawner{}, nil)

	_, err := s.Create(context.Background(), testConfig("dup"))
	require.NoError(t, err)
	_, err = s.Create(context.Background(), testConfig("dup"))
	assert.ErrorIs(t, err, ErrDuplicateID)

	assert.Len(t, s.Find(Query{ID: "dup"}), 1)
	assert.Equal(t, 1, s.Len())
}

func TestCreate_SpawnFailureLeavesTableUnchanged(t *testing.T) {
	spawner := &fakeSpawner{fail: errSpawn}
	s, rec := newTestSupervisor(t, spawner, nil)

	h, err := s.Create(context.Background(), testConfig("bad"))
	assert.Nil(t, h)
	assert.ErrorIs(t, err, ErrSpawnFailed)
	assert.Equal(t, 0, s.Len())

	e, ok := rec.last("bad", eventbus.KindError)
	require.True(t, ok)
	assert.Equal(t, worker.StateError, e.Worker.State)
	assert.ErrorIs(t, e.Payload.(eventbus.Error).Err, errSpawn)
}

func TestCreate_InvalidConfig(t *testing.T) {
	s, _ := newTestSupervisor(t, &fakeSpawner{}, nil)
	_, err := s.Create(context.Background(), worker.Config{Kind: "gpu", EntryPoint: "x"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStop_TwiceReturnsFalse(t *testing.T) {
	spawner := &fakeSpawner{holdOnKill: true}
	s, _ := newTestSupervisor(t, spawner, nil)
	_, err := s.Create(context.Background(), testConfig("w"))
	require.NoError(t, err)
	res := currentResource(t, s, "w")

	assert.True(t, s.Stop("w"))
	assert.False(t, s.Stop("w"))

	h, _ := s.Get("w")
	assert.Equal(t, worker.StateStopping, h.State)
	assert.Equal(t, 1, res.killCount())
	assert.False(t, s.Stop("missing"))
}

func TestStop_ExitCompletesStop(t *testing.T) {
	spawner := &fakeSpawner{holdOnKill: true}
	s, rec := newTestSupervisor(t, spawner, nil)
	_, err := s.Create(context.Background(), testConfig("w"))
	require.NoError(t, err)
	res := currentResource(t, s, "w")

	require.True(t, s.Stop("w"))
	res.finish()
	waitState(t, s, "w", worker.StateStopped)

	e, ok := rec.last("w", eventbus.KindStopped)
	require.True(t, ok)
	assert.Equal(t, worker.StopReasonRequested, e.Payload.(eventbus.Stopped).Reason)
	h, _ := s.Get("w")
	assert.NotNil(t, h.StoppedAt)
	assert.False(t, s.Stop("w"))
}

func TestStopAll(t *testing.T) {
	s, _ := newTestSupervisor(t, &fakeSpawner{}, nil)
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Create(context.Background(), testConfig(id))
		require.NoError(t, err)
	}

	s.StopAll()
	for _, id := range []string{"a", "b", "c"} {
		waitState(t, s, id, worker.StateStopped)
	}
}

func TestRestart_ReplacesResourceAndCounts(t *testing.T) {
	s, rec := newTestSupervisor(t, &fakeSpawner{}, nil)
	before, err := s.Create(context.Background(), testConfig("w"))
	require.NoError(t, err)

	after, err := s.Restart(context.Background(), "w")
	require.NoError(t, err)
	require.NotNil(t, after)

	assert.Equal(t, "w", after.ID)
	assert.Equal(t, before.RestartCount+1, after.RestartCount)
	assert.NotSame(t, before.Resource, after.Resource)
	assert.NotEqual(t, before.ResourceID, after.ResourceID)
	assert.Equal(t, worker.StateRunning, after.State)

	e, ok := rec.last("w", eventbus.KindRestarted)
	require.True(t, ok)
	restarted := e.Payload.(eventbus.Restarted)
	assert.Equal(t, before.ResourceID, restarted.PreviousResourceID)
	assert.Equal(t, 1, restarted.RestartCount)

	hist, ok := s.RestartHistory("w")
	require.True(t, ok)
	assert.Equal(t, 1, hist.Total)
	assert.False(t, hist.Records[0].Automatic)
}

func TestRestart_UnknownIsAbsent(t *testing.T) {
	s, _ := newTestSupervisor(t, &fakeSpawner{}, nil)
	h, err := s.Restart(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, h)
}

func TestRestart_ConcurrentCallsCoalesce(t *testing.T) {
	spawner := &fakeSpawner{}
	s, _ := newTestSupervisor(t, spawner, func(o *Options) { o.DrainInterval = 50 * time.Millisecond })
	_, err := s.Create(context.Background(), testConfig("w"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*worker.Handle, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := s.Restart(context.Background(), "w")
			assert.NoError(t, err)
			results[i] = h
		}(i)
	}
	wg.Wait()

	h, ok := s.Get("w")
	require.True(t, ok)
	distinct := map[string]bool{}
	for _, r := range results {
		require.NotNil(t, r)
		distinct[r.ResourceID] = true
	}
	assert.Equal(t, h.RestartCount, len(distinct), "callers sharing a restart see the same resource")
	assert.LessOrEqual(t, h.RestartCount, 4)
	assert.Equal(t, h.RestartCount+1, spawner.count(), "each restart spawns exactly one resource")
	assert.Equal(t, 1, s.Len())
}

func TestRestart_ContextCancelledDuringDrain(t *testing.T) {
	s, rec := newTestSupervisor(t, &fakeSpawner{}, func(o *Options) { o.DrainInterval = 200 * time.Millisecond })
	_, err := s.Create(context.Background(), testConfig("w"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	h, err := s.Restart(ctx, "w")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, 1, h.RestartCount)

	got, ok := s.Get("w")
	require.True(t, ok)
	assert.Equal(t, worker.StateRunning, got.State)
	assert.Equal(t, 1, got.RestartCount)
	assert.Equal(t, 1, rec.count("w", eventbus.KindRestarted))
}

func TestRestart_CancelledBeforeStopLeavesWorkerRunning(t *testing.T) {
	s, rec := newTestSupervisor(t, &fakeSpawner{}, nil)
	_, err := s.Create(context.Background(), testConfig("w"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Restart(ctx, "w")
	assert.ErrorIs(t, err, context.Canceled)

	got, ok := s.Get("w")
	require.True(t, ok)
	assert.Equal(t, worker.StateRunning, got.State)
	assert.Equal(t, 0, got.RestartCount)
	assert.Equal(t, 0, rec.count("w", eventbus.KindStopped))
}

func TestAutoRestart_LogsNextAttempt(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s, rec := newTestSupervisor(t, &fakeSpawner{}, func(o *Options) { o.Logger = zap.New(core) })
	cfg := testConfig("crashy")
	cfg.AutoRestart = true
	cfg.MaxRestarts = 1
	_, err := s.Create(context.Background(), cfg)
	require.NoError(t, err)

	require.True(t, currentResource(t, s, "crashy").crash(2))
	require.Eventually(t, func() bool {
		return rec.count("crashy", eventbus.KindRestarted) == 1
	}, 2*time.Second, 2*time.Millisecond)

	exits := logs.FilterMessage("worker exited unexpectedly").All()
	require.Len(t, exits, 1)
	fields := exits[0].ContextMap()
	assert.Equal(t, int64(1), fields["next_attempt"])
	assert.Equal(t, "allowed", fields["restart_decision"])
}

func TestAutoRestart_BoundedByMaxRestarts(t *testing.T) {
	spawner := &fakeSpawner{}
	s, rec := newTestSupervisor(t, spawner, nil)
	cfg := testConfig("crashy")
	cfg.AutoRestart = true
	cfg.MaxRestarts = 2
	_, err := s.Create(context.Background(), cfg)
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		require.True(t, currentResource(t, s, "crashy").crash(1))
		want := i
		require.Eventually(t, func() bool {
			return rec.count("crashy", eventbus.KindRestarted) == want
		}, 2*time.Second, 2*time.Millisecond)
		waitState(t, s, "crashy", worker.StateRunning)
	}

	require.True(t, currentResource(t, s, "crashy").crash(1))
	waitState(t, s, "crashy", worker.StateStopped)

	// The terminal resource has exited, a further forced exit has nothing to act on.
	assert.False(t, currentResource(t, s, "crashy").crash(1))
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 2, rec.count("crashy", eventbus.KindRestarted))
	assert.Equal(t, 1, rec.count("crashy", eventbus.KindStopped))
	assert.Equal(t, 3, rec.count("crashy", eventbus.KindError))
	assert.Equal(t, 3, spawner.count())

	kinds := rec.kinds("crashy")
	assert.Equal(t, eventbus.KindStopped, kinds[len(kinds)-1])
	e, _ := rec.last("crashy", eventbus.KindStopped)
	assert.Equal(t, worker.StopReasonRestartsExhausted, e.Payload.(eventbus.Stopped).Reason)
	h, _ := s.Get("crashy")
	assert.Equal(t, 2, h.RestartCount)
}

func TestUnexpectedExit_WithoutAutoRestart(t *testing.T) {
	s, rec := newTestSupervisor(t, &fakeSpawner{}, nil)
	_, err := s.Create(context.Background(), testConfig("w"))
	require.NoError(t, err)

	currentResource(t, s, "w").crash(3)
	waitState(t, s, "w", worker.StateStopped)

	errEvent, ok := rec.last("w", eventbus.KindError)
	require.True(t, ok)
	assert.Equal(t, worker.StateError, errEvent.Worker.State)
	require.NotNil(t, errEvent.Payload.(eventbus.Error).ExitCode)
	assert.Equal(t, 3, *errEvent.Payload.(eventbus.Error).ExitCode)

	stopped, _ := rec.last("w", eventbus.KindStopped)
	assert.Equal(t, worker.StopReasonExited, stopped.Payload.(eventbus.Stopped).Reason)
	h, _ := s.Get("w")
	assert.Equal(t, "exit status 3", h.LastError)
}

func TestAutoCleanup_RemovesStoppedWorker(t *testing.T) {
	s, rec := newTestSupervisor(t, &fakeSpawner{}, func(o *Options) {
		o.AutoCleanup = true
		o.CleanupDelay = 30 * time.Millisecond
	})
	_, err := s.Create(context.Background(), testConfig("w"))
	require.NoError(t, err)

	require.True(t, s.Stop("w"))
	require.Eventually(t, func() bool { return rec.count("w", eventbus.KindStopped) == 1 }, time.Second, 2*time.Millisecond)
	h, ok := s.Get("w")
	require.True(t, ok)
	assert.Equal(t, worker.StateStopped, h.State)

	require.Eventually(t, func() bool { return len(s.All()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestAutoCleanup_PerWorkerOverride(t *testing.T) {
	s, rec := newTestSupervisor(t, &fakeSpawner{}, func(o *Options) {
		o.AutoCleanup = true
		o.CleanupDelay = 10 * time.Millisecond
	})
	keep := false
	cfg := testConfig("w")
	cfg.AutoCleanup = &keep
	_, err := s.Create(context.Background(), cfg)
	require.NoError(t, err)

	s.Stop("w")
	require.Eventually(t, func() bool { return rec.count("w", eventbus.KindStopped) == 1 }, time.Second, 2*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	_, ok := s.Get("w")
	assert.True(t, ok)
}

func TestAutoCleanup_CancelledByRestart(t *testing.T) {
	s, rec := newTestSupervisor(t, &fakeSpawner{}, func(o *Options) {
		o.AutoCleanup = true
		o.CleanupDelay = 40 * time.Millisecond
	})
	_, err := s.Create(context.Background(), testConfig("w"))
	require.NoError(t, err)

	s.Stop("w")
	require.Eventually(t, func() bool { return rec.count("w", eventbus.KindStopped) == 1 }, time.Second, 2*time.Millisecond)

	h, err := s.Restart(context.Background(), "w")
	require.NoError(t, err)
	require.NotNil(t, h)

	time.Sleep(100 * time.Millisecond)
	got, ok := s.Get("w")
	require.True(t, ok)
	assert.Equal(t, worker.StateRunning, got.State)
}

func TestSendMessage(t *testing.T) {
	s, _ := newTestSupervisor(t, &fakeSpawner{}, nil)
	_, err := s.Create(context.Background(), testConfig("w"))
	require.NoError(t, err)
	res := currentResource(t, s, "w")

	assert.True(t, s.SendMessage("w", worker.Envelope{Type: "job", Data: 1}))
	posted := res.postedMessages()
	require.Len(t, posted, 1)
	assert.NotZero(t, posted[0].Timestamp, "timestamp is filled in")

	res.mu.Lock()
	res.postErr = errors.New("pipe closed")
	res.mu.Unlock()
	assert.False(t, s.SendMessage("w", worker.Envelope{Type: "job"}))

	assert.False(t, s.SendMessage("missing", worker.Envelope{Type: "job"}))
}

func TestSendMessage_StoppedWorker(t *testing.T) {
	s, _ := newTestSupervisor(t, &fakeSpawner{}, nil)
	_, err := s.Create(context.Background(), testConfig("w"))
	require.NoError(t, err)
	s.Stop("w")
	waitState(t, s, "w", worker.StateStopped)

	assert.NotPanics(t, func() {
		assert.False(t, s.SendMessage("w", worker.Envelope{Type: "job"}))
	})
}

func TestNotifications_ReEmittedInOrder(t *testing.T) {
	s, rec := newTestSupervisor(t, &fakeSpawner{}, nil)
	_, err := s.Create(context.Background(), testConfig("w"))
	require.NoError(t, err)
	res := currentResource(t, s, "w")

	res.emit(worker.Notification{Kind: worker.NotifyMessage, Envelope: worker.Envelope{Type: "progress", Data: 10}})
	res.emit(worker.Notification{Kind: worker.NotifyStdout, Line: "hello"})
	res.emit(worker.Notification{Kind: worker.NotifyStderr, Line: "warn"})
	res.emit(worker.Notification{Kind: worker.NotifyMessage, Envelope: worker.Envelope{Type: "progress", Data: 20}})
	res.crash(1)
	waitState(t, s, "w", worker.StateStopped)

	assert.Equal(t, []eventbus.Kind{
		eventbus.KindCreated,
		eventbus.KindStarted,
		eventbus.KindMessage,
		eventbus.KindOutput,
		eventbus.KindOutput,
		eventbus.KindMessage,
		eventbus.KindError,
		eventbus.KindStopped,
	}, rec.kinds("w"))

	var data []any
	for _, e := range rec.all() {
		if m, ok := e.Payload.(eventbus.Message); ok {
			data = append(data, m.Envelope.Data)
		}
	}
	assert.Equal(t, []any{10, 20}, data)
}

func TestStaleResourceIsIgnored(t *testing.T) {
	spawner := &fakeSpawner{holdOnKill: true}
	s, rec := newTestSupervisor(t, spawner, nil)
	_, err := s.Create(context.Background(), testConfig("w"))
	require.NoError(t, err)
	old := currentResource(t, s, "w")

	_, err = s.Restart(context.Background(), "w")
	require.NoError(t, err)

	old.emit(worker.Notification{Kind: worker.NotifyStdout, Line: "late"})
	old.crash(9)
	time.Sleep(20 * time.Millisecond)

	h, _ := s.Get("w")
	assert.Equal(t, worker.StateRunning, h.State)
	assert.Equal(t, 0, rec.count("w", eventbus.KindOutput))
	assert.Equal(t, 0, rec.count("w", eventbus.KindError))
}

func TestPauseResume(t *testing.T) {
	s, rec := newTestSupervisor(t, &fakeSpawner{}, nil)
	_, err := s.Create(context.Background(), testConfig("w"))
	require.NoError(t, err)
	res := currentResource(t, s, "w")

	assert.True(t, s.Pause("w"))
	assert.False(t, s.Pause("w"), "already paused")
	h, _ := s.Get("w")
	assert.Equal(t, worker.StatePaused, h.State)
	assert.True(t, res.paused)
	assert.False(t, s.SendMessage("w", worker.Envelope{Type: "x"}), "paused workers do not take messages")

	assert.True(t, s.Resume("w"))
	assert.False(t, s.Resume("w"))
	h, _ = s.Get("w")
	assert.Equal(t, worker.StateRunning, h.State)

	assert.Equal(t, 1, rec.count("w", eventbus.KindPaused))
	assert.Equal(t, 1, rec.count("w", eventbus.KindResumed))
}

func TestTimeoutStopsWorker(t *testing.T) {
	s, rec := newTestSupervisor(t, &fakeSpawner{}, nil)
	cfg := testConfig("slow")
	cfg.TimeoutMs = 20
	_, err := s.Create(context.Background(), cfg)
	require.NoError(t, err)

	waitState(t, s, "slow", worker.StateStopped)

	e, ok := rec.last("slow", eventbus.KindError)
	require.True(t, ok)
	assert.ErrorIs(t, e.Payload.(eventbus.Error).Err, ErrWorkerTimeout)
	stopped, _ := rec.last("slow", eventbus.KindStopped)
	assert.Equal(t, worker.StopReasonTimeout, stopped.Payload.(eventbus.Stopped).Reason)
}

func TestFindAndStats(t *testing.T) {
	s, _ := newTestSupervisor(t, &fakeSpawner{}, nil)
	ctx := context.Background()

	mk := func(id string, kind worker.Kind, prio worker.Priority) {
		cfg := testConfig(id)
		cfg.Kind = kind
		cfg.Priority = prio
		_, err := s.Create(ctx, cfg)
		require.NoError(t, err)
	}
	mk("n1", worker.KindNetwork, worker.PriorityHigh)
	mk("n2", worker.KindNetwork, worker.PriorityLow)
	mk("s1", worker.KindSSH, worker.PriorityHigh)
	s.Stop("n2")
	waitState(t, s, "n2", worker.StateStopped)

	assert.Len(t, s.FindByKind(worker.KindNetwork), 2)
	assert.Len(t, s.Find(Query{Priority: worker.PriorityHigh}), 2)
	assert.Len(t, s.Find(Query{Kind: worker.KindNetwork, State: worker.StateRunning}), 1)
	assert.Len(t, s.Find(Query{Match: func(h worker.Handle) bool { return h.ID == "s1" }}), 1)
	assert.Len(t, s.All(), 3)

	st := s.Stats()
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, DefaultMaxConcurrentWorkers, st.Capacity)
	assert.Equal(t, 2, st.ByState[worker.StateRunning])
	assert.Equal(t, 1, st.ByState[worker.StateStopped])
	assert.Equal(t, 2, st.ByKind[worker.KindNetwork])
	assert.Equal(t, 1, st.ByKind[worker.KindSSH])
	assert.Equal(t, 0, st.ByKind[worker.KindCustom])
}

func TestFind_UnsetPriorityMatchesNormal(t *testing.T) {
	s, _ := newTestSupervisor(t, &fakeSpawner{}, nil)
	for id, prio := range map[string]worker.Priority{"unset": "", "normal": worker.PriorityNormal, "high": worker.PriorityHigh} {
		cfg := testConfig(id)
		cfg.Priority = prio
		_, err := s.Create(context.Background(), cfg)
		require.NoError(t, err)
	}

	ids := func(hs []*worker.Handle) []string {
		out := make([]string, 0, len(hs))
		for _, h := range hs {
			out = append(out, h.ID)
		}
		return out
	}
	assert.ElementsMatch(t, []string{"unset", "normal"}, ids(s.Find(Query{Priority: worker.PriorityNormal})))
	assert.ElementsMatch(t, []string{"high"}, ids(s.Find(Query{Priority: worker.PriorityHigh})))
	assert.Empty(t, s.Find(Query{Priority: worker.PriorityLow}))
}

func TestGetReturnsCopy(t *testing.T) {
	s, _ := newTestSupervisor(t, &fakeSpawner{}, nil)
	cfg := testConfig("w")
	cfg.Args = []string{"--a"}
	_, err := s.Create(context.Background(), cfg)
	require.NoError(t, err)

	h, _ := s.Get("w")
	h.State = worker.StateError
	h.Config.Args[0] = "--b"

	again, _ := s.Get("w")
	assert.Equal(t, worker.StateRunning, again.State)
	assert.Equal(t, "--a", again.Config.Args[0])
}

func TestHandlersMayCallBack(t *testing.T) {
	s, _ := newTestSupervisor(t, &fakeSpawner{}, nil)
	var seen worker.State
	s.Bus().Subscribe(func(e eventbus.Event) {
		if h, ok := s.Get(e.WorkerID()); ok {
			seen = h.State
		}
		_ = s.Stats()
	}, eventbus.KindStarted)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := s.Create(context.Background(), testConfig("w"))
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("create deadlocked")
	}
	assert.Equal(t, worker.StateRunning, seen)
}

func TestDispose(t *testing.T) {
	spawner := &fakeSpawner{}
	s, _ := newTestSupervisor(t, spawner, nil)
	for _, id := range []string{"a", "b"} {
		_, err := s.Create(context.Background(), testConfig(id))
		require.NoError(t, err)
	}
	resources := []*fakeResource{currentResource(t, s, "a"), currentResource(t, s, "b")}

	var mu sync.Mutex
	var stopped []eventbus.Event
	s.Bus().Subscribe(func(e eventbus.Event) {
		mu.Lock()
		defer mu.Unlock()
		stopped = append(stopped, e)
	}, eventbus.KindStopped)

	s.Dispose()
	s.Dispose()

	mu.Lock()
	require.Len(t, stopped, 2)
	for i, id := range []string{"a", "b"} {
		assert.Equal(t, id, stopped[i].WorkerID())
		assert.Equal(t, worker.StateStopped, stopped[i].Worker.State)
		assert.NotNil(t, stopped[i].Worker.StoppedAt)
		assert.Equal(t, worker.StopReasonDisposed, stopped[i].Payload.(eventbus.Stopped).Reason)
	}
	mu.Unlock()

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.Bus().Len())
	assert.True(t, s.Disposed())
	for _, r := range resources {
		assert.Equal(t, 1, r.killCount())
	}

	_, err := s.Create(context.Background(), testConfig("c"))
	assert.ErrorIs(t, err, ErrDisposed)
	h, err := s.Restart(context.Background(), "a")
	assert.Nil(t, h)
	assert.ErrorIs(t, err, ErrDisposed)
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")
	assert.Equal(t, 1, k.len())
	unlock()
	assert.Equal(t, 0, k.len())
}
