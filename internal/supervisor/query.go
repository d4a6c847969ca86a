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
	"sort"

	"github.com/seatunnel/workerhost/internal/worker"
)

// Query selects handles. Zero fields match anything; Match, when set, must
// also return true.
// Query 用于筛选句柄，零值字段匹配任意值；设置 Match 时其也必须返回 true。
type Query struct {
	ID       string
	Kind     worker.Kind
	State    worker.State
	Priority worker.Priority
	Match    func(worker.Handle) bool
}

func (q Query) matches(h worker.Handle) bool {
	if q.ID != "" && h.ID != q.ID {
		return false
	}
	if q.Kind != "" && h.Kind != q.Kind {
		return false
	}
	if q.State != "" && h.State != q.State {
		return false
	}
	if q.Priority != "" && h.Config.Priority.OrDefault() != q.Priority.OrDefault() {
		return false
	}
	if q.Match != nil && !q.Match(h) {
		return false
	}
	return true
}

// Stats aggregates the live table.
// Stats 汇总当前句柄表。
type Stats struct {
	Total    int                  `json:"total"`
	Capacity int                  `json:"capacity"`
	ByState  map[worker.State]int `json:"byState"`
	ByKind   map[worker.Kind]int  `json:"byKind"`
}

// Get returns a copy of the handle for id.
// Get 返回 id 对应句柄的副本。
func (s *Supervisor) Get(id string) (*worker.Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	h := e.snapshot()
	return &h, true
}

// Find returns copies of the handles matching q, ordered by creation time.
// Find 返回匹配 q 的句柄副本，按创建时间排序。
func (s *Supervisor) Find(q Query) []*worker.Handle {
	s.mu.RLock()
	snaps := make([]worker.Handle, 0, len(s.entries))
	for _, e := range s.entries {
		snaps = append(snaps, e.snapshot())
	}
	s.mu.RUnlock()

	// Match runs without the lock so it may call back into the supervisor.
	out := make([]*worker.Handle, 0, len(snaps))
	for i := range snaps {
		if q.matches(snaps[i]) {
			out = append(out, &snaps[i])
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// FindByKind returns the handles of the given kind.
// FindByKind 返回指定类型的句柄。
func (s *Supervisor) FindByKind(kind worker.Kind) []*worker.Handle {
	return s.Find(Query{Kind: kind})
}

// All returns every tracked handle.
// All 返回所有被跟踪的句柄。
func (s *Supervisor) All() []*worker.Handle {
	return s.Find(Query{})
}

// Len returns the number of tracked handles.
func (s *Supervisor) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stats counts the tracked handles by state and by kind.
// Stats 按状态和类型统计被跟踪的句柄。
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Total:    len(s.entries),
		Capacity: s.opts.MaxConcurrentWorkers,
		ByState:  make(map[worker.State]int, len(worker.States)),
		ByKind:   make(map[worker.Kind]int, len(worker.Kinds)),
	}
	for _, state := range worker.States {
		st.ByState[state] = 0
	}
	for _, kind := range worker.Kinds {
		st.ByKind[kind] = 0
	}
	for _, e := range s.entries {
		st.ByState[e.handle.State]++
		st.ByKind[e.handle.Kind]++
	}
	return st
}
