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

// Package cleanup provides keyed, cancellable deferred tasks.
// cleanup 包提供按键索引、可取消的延迟任务。
package cleanup

import (
	"sync"
	"time"
)

type task struct {
	gen   uint64
	timer *time.Timer
}

// Scheduler runs at most one pending task per key. Scheduling a key again
// replaces its pending task. A cancelled or replaced task never runs, even
// when its timer has already fired.
// Scheduler 每个键最多保留一个待执行任务，再次调度同一个键会替换原任务。
// 被取消或替换的任务永远不会执行，即使其定时器已经触发。
type Scheduler struct {
	mu      sync.Mutex
	gen     uint64
	tasks   map[string]*task
	stopped bool
}

// New creates an empty scheduler.
// New 创建一个空的调度器。
func New() *Scheduler {
	return &Scheduler{tasks: make(map[string]*task)}
}

// Schedule runs fn after delay unless the key is cancelled or rescheduled first.
// It returns false once the scheduler is stopped.
// Schedule 在 delay 后执行 fn，除非该键先被取消或重新调度。调度器停止后返回 false。
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	if old, ok := s.tasks[key]; ok {
		old.timer.Stop()
	}

	s.gen++
	gen := s.gen
	t := &task{gen: gen}
	t.timer = time.AfterFunc(delay, func() { s.fire(key, gen, fn) })
	s.tasks[key] = t
	return true
}

func (s *Scheduler) fire(key string, gen uint64, fn func()) {
	s.mu.Lock()
	t, ok := s.tasks[key]
	if !ok || t.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.tasks, key)
	s.mu.Unlock()

	fn()
}

// Cancel drops the pending task for key and reports whether one existed.
// Cancel 取消键对应的待执行任务，并返回该任务是否存在。
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[key]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(s.tasks, key)
	return true
}

// Pending reports whether key has a task waiting to run.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[key]
	return ok
}

// Len returns the number of pending tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop cancels every pending task and rejects further scheduling.
// Stop 取消所有待执行任务并拒绝后续调度。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for key, t := range s.tasks {
		t.timer.Stop()
		delete(s.tasks, key)
	}
}
