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

// Package supervisor spawns, tracks, restarts and tears down a bounded set
// of background workers.
// supervisor 包负责启动、跟踪、重启和销毁一组有界的后台工作进程。
//
// This package provides:
// 此包提供：
// - Capacity and id uniqueness enforcement / 容量与 ID 唯一性约束
// - Lifecycle state machine driven by resource exits / 由资源退出驱动的生命周期状态机
// - Bounded automatic restart / 有界自动重启
// - Deferred cleanup of stopped workers / 已停止工作进程的延迟清理
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/seatunnel/workerhost/internal/cleanup"
	"github.com/seatunnel/workerhost/internal/eventbus"
	"github.com/seatunnel/workerhost/internal/restart"
	"github.com/seatunnel/workerhost/internal/worker"
)

// entry is the mutable record behind a handle. All fields are guarded by
// Supervisor.mu.
type entry struct {
	handle     worker.Handle
	resource   worker.Resource
	stopReason worker.StopReason
	timeout    *time.Timer

	// announced guards the one-time publication of the created, started
	// and extra events for this entry.
	announced sync.Once
	extra     []eventbus.Payload
	announce  worker.Handle
}

func (e *entry) snapshot() worker.Handle {
	return e.handle.Clone()
}

func (e *entry) disarm() {
	if e.timeout != nil {
		e.timeout.Stop()
		e.timeout = nil
	}
}

// Supervisor owns the worker handle table.
// Supervisor 持有工作进程句柄表。
//
// No event is published while a supervisor lock is held, so handlers may
// call back into the supervisor.
// 持有监督器锁时不会发布事件，因此事件处理器可以回调监督器。
type Supervisor struct {
	spawner worker.Spawner
	opts    Options
	bus     *eventbus.Bus
	cleanup *cleanup.Scheduler
	history *restart.History
	logger  *zap.Logger

	mu       sync.RWMutex
	entries  map[string]*entry
	disposed bool

	counter atomic.Uint64
	locks   *keyedMutex
	flight  singleflight.Group
	now     func() time.Time
}

// New creates a supervisor that acquires resources through spawner.
// New 创建一个通过 spawner 获取资源的监督器。
func New(spawner worker.Spawner, opts Options) *Supervisor {
	opts = opts.withDefaults()
	return &Supervisor{
		spawner: spawner,
		opts:    opts,
		bus:     opts.Bus,
		cleanup: cleanup.New(),
		history: restart.NewHistory(opts.HistoryLimit),
		logger:  opts.Logger.Named("supervisor"),
		entries: make(map[string]*entry),
		locks:   newKeyedMutex(),
		now:     time.Now,
	}
}

// Bus returns the bus lifecycle events are published on.
// Bus 返回发布生命周期事件的总线。
func (s *Supervisor) Bus() *eventbus.Bus {
	return s.bus
}

// Disposed reports whether Dispose has been called.
func (s *Supervisor) Disposed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disposed
}

// Create spawns a worker and returns its handle in the running state. The
// created and started events have been published when Create returns.
// Create 启动工作进程并返回处于运行状态的句柄，返回时 created 与 started 事件已发布。
func (s *Supervisor) Create(ctx context.Context, cfg worker.Config) (*worker.Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg = cfg.Clone()

	e, err := func() (*entry, error) {
		if cfg.ID != "" {
			unlock := s.locks.Lock(cfg.ID)
			defer unlock()
		}
		return s.create(ctx, cfg, 0)
	}()
	if err != nil {
		return nil, err
	}
	snap := s.announce(e)
	return &snap, nil
}

// create reserves a slot, spawns the resource and installs it. Nothing is
// published except the error event on spawn failure.
func (s *Supervisor) create(ctx context.Context, cfg worker.Config, restartCount int) (*entry, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, ErrDisposed
	}
	if len(s.entries) >= s.opts.MaxConcurrentWorkers {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: limit %d", ErrCapacityExceeded, s.opts.MaxConcurrentWorkers)
	}
	if cfg.ID == "" {
		cfg.ID = s.nextID(cfg.Kind)
	} else if _, ok := s.entries[cfg.ID]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, cfg.ID)
	}

	id := cfg.ID
	e := &entry{handle: worker.Handle{
		ID:           id,
		Kind:         cfg.Kind,
		State:        worker.StateInitializing,
		CreatedAt:    s.now(),
		RestartCount: restartCount,
		Config:       cfg,
	}}
	s.entries[id] = e
	s.mu.Unlock()

	s.cleanup.Cancel(id)

	res, err := s.spawner.Spawn(ctx, worker.SpawnSpec{
		WorkerID:   id,
		Kind:       cfg.Kind,
		EntryPoint: cfg.EntryPoint,
		Args:       cfg.Args,
		Env:        cfg.Env,
		Data:       cfg.Data,
	})

	s.mu.Lock()
	if err != nil {
		if s.entries[id] == e {
			delete(s.entries, id)
		}
		e.handle.State = worker.StateError
		e.handle.LastError = err.Error()
		snap := e.snapshot()
		s.mu.Unlock()

		s.logger.Warn("worker spawn failed",
			zap.String("worker_id", id),
			zap.String("entry_point", cfg.EntryPoint),
			zap.Error(err))
		s.publish(snap, eventbus.Error{Err: err})
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawnFailed, id, err)
	}
	if s.disposed || s.entries[id] != e {
		s.mu.Unlock()
		_ = res.Kill()
		return nil, ErrDisposed
	}

	e.resource = res
	e.handle.Resource = res
	e.handle.ResourceID = res.ID()
	// A concurrent Stop may have marked the entry while it was initializing.
	killNow := e.handle.State == worker.StateStopping
	if !killNow {
		started := s.now()
		e.handle.State = worker.StateRunning
		e.handle.StartedAt = &started
	}
	s.mu.Unlock()

	if killNow {
		if err := res.Kill(); err != nil {
			s.logger.Warn("kill after spawn failed", zap.String("worker_id", id), zap.Error(err))
		}
	}
	return e, nil
}

func (s *Supervisor) nextID(kind worker.Kind) string {
	return fmt.Sprintf("%s-%d-%d", kind, s.counter.Add(1), s.now().UnixMilli())
}

// announce publishes created and started (plus the entry's extra payloads)
// once, arms the timeout and only then starts draining the resource
// notifications so per-worker ordering holds. Callers racing on the same
// entry block until the first one has published.
func (s *Supervisor) announce(e *entry) worker.Handle {
	e.announced.Do(func() {
		s.mu.Lock()
		snap := e.snapshot()
		extra := e.extra
		s.mu.Unlock()

		s.publish(snap, eventbus.Created{})
		s.publish(snap, eventbus.Started{})
		for _, p := range extra {
			s.publish(snap, p)
		}

		s.armTimeout(e)
		go s.pump(e)
		e.announce = snap
	})
	return e.announce.Clone()
}

func (s *Supervisor) publish(h worker.Handle, p eventbus.Payload) {
	s.bus.Publish(eventbus.NewEvent(h, p))
}

// publishFor publishes on behalf of a resource, dropping events from a
// resource whose handle has been replaced or removed.
func (s *Supervisor) publishFor(e *entry, p eventbus.Payload) {
	s.mu.RLock()
	live := s.entries[e.handle.ID] == e
	snap := e.snapshot()
	s.mu.RUnlock()
	if live {
		s.publish(snap, p)
	}
}

func (s *Supervisor) pump(e *entry) {
	for n := range e.resource.Notifications() {
		switch n.Kind {
		case worker.NotifyMessage:
			s.publishFor(e, eventbus.Message{Envelope: n.Envelope})
		case worker.NotifyStdout, worker.NotifyStderr:
			s.publishFor(e, eventbus.Output{Stream: n.Kind, Line: n.Line})
		case worker.NotifyError:
			s.mu.Lock()
			if n.Err != nil {
				e.handle.LastError = n.Err.Error()
			}
			s.mu.Unlock()
			s.publishFor(e, eventbus.Error{Err: n.Err})
		case worker.NotifyExit:
			s.handleExit(e, n)
		}
	}
}

// handleExit drives the state machine when a resource terminates.
// handleExit 在资源终止时驱动状态机。
func (s *Supervisor) handleExit(e *entry, n worker.Notification) {
	s.mu.Lock()
	id := e.handle.ID
	if s.entries[id] != e || e.handle.State == worker.StateStopped {
		s.mu.Unlock()
		s.logger.Debug("ignoring exit of detached worker", zap.String("worker_id", id))
		return
	}

	e.disarm()
	stoppedAt := s.now()
	e.handle.StoppedAt = &stoppedAt

	// Supervisor initiated stop.
	if e.handle.State == worker.StateStopping {
		e.handle.State = worker.StateStopped
		reason := e.stopReason
		if reason == "" {
			reason = worker.StopReasonRequested
		}
		snap := e.snapshot()
		s.mu.Unlock()

		s.logger.Info("worker stopped", zap.String("worker_id", id), zap.String("reason", string(reason)))
		s.publish(snap, eventbus.Stopped{Reason: reason})
		s.scheduleCleanup(e)
		return
	}

	// Unexpected exit.
	exitErr := n.Err
	if exitErr == nil {
		exitErr = fmt.Errorf("worker exited with code %d", n.ExitCode)
	}
	code := n.ExitCode
	e.handle.State = worker.StateError
	e.handle.LastError = exitErr.Error()
	decision := restart.Evaluate(e.handle.Config, e.handle.RestartCount)
	errSnap := e.snapshot()

	var stoppedSnap worker.Handle
	if !decision.Restart {
		e.handle.State = worker.StateStopped
		stoppedSnap = e.snapshot()
	}
	s.mu.Unlock()

	fields := []zap.Field{
		zap.String("worker_id", id),
		zap.Int("exit_code", code),
		zap.Int("restart_count", errSnap.RestartCount),
		zap.String("restart_decision", string(decision.Reason)),
		zap.Error(exitErr),
	}
	if decision.Restart {
		fields = append(fields, zap.Int("next_attempt", decision.Attempt))
	}
	s.logger.Warn("worker exited unexpectedly", fields...)
	s.publish(errSnap, eventbus.Error{Err: exitErr, ExitCode: &code})

	if decision.Restart {
		go s.autoRestart(id)
		return
	}

	s.publish(stoppedSnap, eventbus.Stopped{Reason: decision.StopReason()})
	s.scheduleCleanup(e)
}

func (s *Supervisor) autoRestart(id string) {
	if _, err := s.restart(context.Background(), id, true); err != nil && !errors.Is(err, ErrDisposed) {
		s.logger.Error("automatic restart failed", zap.String("worker_id", id), zap.Error(err))
	}
}

func (s *Supervisor) cleanupEnabled(cfg worker.Config) bool {
	if cfg.AutoCleanup != nil {
		return *cfg.AutoCleanup
	}
	return s.opts.AutoCleanup
}

// scheduleCleanup removes e after the cleanup delay, provided it is still
// the tracked entry for its id and still stopped.
func (s *Supervisor) scheduleCleanup(e *entry) {
	s.mu.RLock()
	id := e.handle.ID
	enabled := s.cleanupEnabled(e.handle.Config) && s.entries[id] == e
	s.mu.RUnlock()
	if !enabled {
		return
	}

	s.cleanup.Schedule(id, s.opts.CleanupDelay, func() {
		s.mu.Lock()
		removed := false
		if s.entries[id] == e && e.handle.State == worker.StateStopped {
			delete(s.entries, id)
			removed = true
		}
		s.mu.Unlock()
		if removed {
			s.history.Forget(id)
			s.logger.Debug("stopped worker cleaned up", zap.String("worker_id", id))
		}
	})
}

func (s *Supervisor) armTimeout(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := e.handle.Config.Timeout()
	if d <= 0 || s.entries[e.handle.ID] != e {
		return
	}
	e.timeout = time.AfterFunc(d, func() { s.expire(e) })
}

func (s *Supervisor) expire(e *entry) {
	s.mu.Lock()
	if s.entries[e.handle.ID] != e ||
		(e.handle.State != worker.StateRunning && e.handle.State != worker.StatePaused) {
		s.mu.Unlock()
		return
	}
	e.handle.LastError = ErrWorkerTimeout.Error()
	snap := e.snapshot()
	s.mu.Unlock()

	s.logger.Warn("worker timed out", zap.String("worker_id", snap.ID), zap.Duration("timeout", snap.Config.Timeout()))
	s.publish(snap, eventbus.Error{Err: ErrWorkerTimeout})
	s.stopEntry(e, worker.StopReasonTimeout)
}

// Stop requests termination of a worker. It returns false when the worker
// is unknown, stopping or stopped. Completion is observed through the
// stopped event.
// Stop 请求终止工作进程。工作进程未知、正在停止或已停止时返回 false，
// 完成情况通过 stopped 事件观察。
func (s *Supervisor) Stop(id string) bool {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return s.stopEntry(e, worker.StopReasonRequested)
}

func (s *Supervisor) stopEntry(e *entry, reason worker.StopReason) bool {
	s.mu.Lock()
	if s.entries[e.handle.ID] != e ||
		e.handle.State == worker.StateStopped ||
		e.handle.State == worker.StateStopping {
		s.mu.Unlock()
		return false
	}
	e.handle.State = worker.StateStopping
	e.stopReason = reason
	e.disarm()
	res := e.resource
	id := e.handle.ID
	s.mu.Unlock()

	// Still initializing, create kills the resource once it is installed.
	if res == nil {
		return true
	}
	if err := res.Kill(); err != nil {
		s.logger.Warn("kill worker failed", zap.String("worker_id", id), zap.Error(err))
	}
	return true
}

// StopAll applies Stop to every tracked worker.
// StopAll 对所有被跟踪的工作进程执行 Stop。
func (s *Supervisor) StopAll() {
	for _, id := range s.ids() {
		s.Stop(id)
	}
}

func (s *Supervisor) ids() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}

// Restart replaces a worker with a fresh resource under the same id. It
// returns nil, nil when the id is unknown. Concurrent calls for the same id
// share one restart.
// Restart 以相同 ID 用新资源替换工作进程。ID 未知时返回 nil, nil。
// 对同一 ID 的并发调用共享同一次重启。
func (s *Supervisor) Restart(ctx context.Context, id string) (*worker.Handle, error) {
	return s.restart(ctx, id, false)
}

func (s *Supervisor) restart(ctx context.Context, id string, automatic bool) (*worker.Handle, error) {
	v, err, _ := s.flight.Do(id, func() (any, error) {
		return s.doRestart(ctx, id, automatic)
	})
	if err != nil {
		return nil, err
	}
	e, _ := v.(*entry)
	if e == nil {
		return nil, nil
	}
	snap := s.announce(e)
	return &snap, nil
}

func (s *Supervisor) doRestart(ctx context.Context, id string, automatic bool) (*entry, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	s.mu.RLock()
	old, ok := s.entries[id]
	disposed := s.disposed
	s.mu.RUnlock()
	if disposed {
		return nil, ErrDisposed
	}
	if !ok {
		return nil, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Once the old worker is stopped the restart must finish, a cancelled
	// caller would otherwise leave it stopped for good.
	// 旧工作进程停止后重启必须完成，否则调用方取消会使其永久停止。
	ctx = context.WithoutCancel(ctx)
	s.stopEntry(old, worker.StopReasonRestarting)

	if s.opts.DrainInterval > 0 {
		time.Sleep(s.opts.DrainInterval)
	}

	s.mu.Lock()
	if cur, ok := s.entries[id]; ok && cur != old {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRestartConflict, id)
	}
	if s.disposed {
		s.mu.Unlock()
		return nil, ErrDisposed
	}
	delete(s.entries, id)
	old.disarm()
	prevCount := old.handle.RestartCount
	prevResourceID := old.handle.ResourceID
	cfg := old.handle.Config.Clone()
	s.mu.Unlock()

	rec := restart.Record{
		At:                 s.now(),
		Attempt:            prevCount + 1,
		Automatic:          automatic,
		PreviousResourceID: prevResourceID,
	}

	e, err := s.create(ctx, cfg, prevCount+1)
	if err != nil {
		rec.Error = err.Error()
		s.history.Add(id, rec)
		return nil, err
	}
	rec.Success = true
	s.history.Add(id, rec)

	s.logger.Info("worker restarted",
		zap.String("worker_id", id),
		zap.Int("restart_count", prevCount+1),
		zap.Bool("automatic", automatic))

	s.mu.Lock()
	e.extra = []eventbus.Payload{eventbus.Restarted{
		PreviousResourceID: prevResourceID,
		RestartCount:       prevCount + 1,
	}}
	s.mu.Unlock()
	return e, nil
}

// RestartHistory returns the recorded restarts of a worker.
// RestartHistory 返回工作进程的重启记录。
func (s *Supervisor) RestartHistory(id string) (restart.Entry, bool) {
	return s.history.Get(id)
}

// Pause suspends a running worker whose resource supports it.
// Pause 挂起支持该操作的运行中工作进程。
func (s *Supervisor) Pause(id string) bool {
	return s.transition(id, worker.StateRunning, worker.StatePaused, func(p worker.Pausable) error {
		return p.Pause()
	}, eventbus.Paused{})
}

// Resume continues a paused worker.
// Resume 恢复已挂起的工作进程。
func (s *Supervisor) Resume(id string) bool {
	return s.transition(id, worker.StatePaused, worker.StateRunning, func(p worker.Pausable) error {
		return p.Resume()
	}, eventbus.Resumed{})
}

func (s *Supervisor) transition(id string, from, to worker.State, op func(worker.Pausable) error, p eventbus.Payload) bool {
	s.mu.RLock()
	e, ok := s.entries[id]
	if !ok || e.handle.State != from {
		s.mu.RUnlock()
		return false
	}
	pausable, ok := e.resource.(worker.Pausable)
	s.mu.RUnlock()
	if !ok {
		s.logger.Debug("resource is not pausable", zap.String("worker_id", id))
		return false
	}

	if err := op(pausable); err != nil {
		s.logger.Warn("worker state change failed",
			zap.String("worker_id", id),
			zap.String("target", string(to)),
			zap.Error(err))
		return false
	}

	s.mu.Lock()
	if s.entries[id] != e || e.handle.State != from {
		s.mu.Unlock()
		return false
	}
	e.handle.State = to
	snap := e.snapshot()
	s.mu.Unlock()

	s.publish(snap, p)
	return true
}

// SendMessage forwards env to a running worker. Delivery failures are
// logged and reported as false.
// SendMessage 将 env 转发给运行中的工作进程，投递失败会被记录并返回 false。
func (s *Supervisor) SendMessage(id string, env worker.Envelope) bool {
	s.mu.RLock()
	e, ok := s.entries[id]
	if !ok || e.handle.State != worker.StateRunning || e.resource == nil {
		s.mu.RUnlock()
		return false
	}
	res := e.resource
	s.mu.RUnlock()

	if env.Timestamp == 0 {
		env.Timestamp = s.now().UnixMilli()
	}
	if err := res.PostMessage(env); err != nil {
		s.logger.Warn("deliver message failed",
			zap.String("worker_id", id),
			zap.String("type", env.Type),
			zap.Error(err))
		return false
	}
	return true
}

// Dispose stops every worker, clears the table and detaches all bus
// subscribers. The supervisor cannot be used afterwards.
// Dispose 停止所有工作进程、清空句柄表并移除所有总线订阅者，之后监督器不可再用。
func (s *Supervisor) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	entries := s.entries
	s.entries = make(map[string]*entry)
	resources := make(map[string]worker.Resource, len(entries))
	stopped := make([]worker.Handle, 0, len(entries))
	now := s.now()
	for id, e := range entries {
		e.disarm()
		if e.resource != nil {
			resources[id] = e.resource
		}
		// Unannounced entries never published Created, so they get no Stopped either.
		// 未发布 Created 的条目同样不发布 Stopped。
		if e.handle.State == worker.StateStopped || e.handle.State == worker.StateInitializing {
			continue
		}
		stoppedAt := now
		e.handle.State = worker.StateStopped
		e.handle.StoppedAt = &stoppedAt
		e.stopReason = worker.StopReasonDisposed
		stopped = append(stopped, e.snapshot())
	}
	s.mu.Unlock()

	for id, res := range resources {
		if err := res.Kill(); err != nil {
			s.logger.Warn("kill worker on dispose failed", zap.String("worker_id", id), zap.Error(err))
		}
	}
	s.cleanup.Stop()

	sort.Slice(stopped, func(i, j int) bool { return stopped[i].ID < stopped[j].ID })
	for _, h := range stopped {
		s.publish(h, eventbus.Stopped{Reason: worker.StopReasonDisposed})
	}
	s.bus.Clear()
	s.logger.Info("supervisor disposed", zap.Int("workers", len(entries)))
}
