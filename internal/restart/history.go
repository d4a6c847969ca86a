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

package restart

import (
	"sync"
	"time"
)

// Record is one restart of a worker.
// Record 是工作进程的一次重启记录。
type Record struct {
	At                 time.Time `json:"at"`
	Attempt            int       `json:"attempt"`
	Automatic          bool      `json:"automatic"`
	PreviousResourceID string    `json:"previousResourceId,omitempty"`
	Success            bool      `json:"success"`
	Error              string    `json:"error,omitempty"`
}

// Entry is the restart history of one worker.
// Entry 是单个工作进程的重启历史。
type Entry struct {
	WorkerID    string    `json:"workerId"`
	Total       int       `json:"total"`
	LastRestart time.Time `json:"lastRestart"`
	Records     []Record  `json:"records"`
}

// History keeps a bounded list of restart records per worker id.
// History 为每个工作进程 ID 保存有限数量的重启记录。
type History struct {
	mu      sync.RWMutex
	limit   int
	entries map[string]*Entry
}

// NewHistory creates a history keeping at most limit records per worker.
// NewHistory 创建每个工作进程最多保留 limit 条记录的历史。
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit, entries: make(map[string]*Entry)}
}

// Add appends a record for workerID, dropping the oldest beyond the limit.
// Add 为 workerID 追加记录，超过上限时丢弃最旧的记录。
func (h *History) Add(workerID string, rec Record) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.entries[workerID]
	if !ok {
		e = &Entry{WorkerID: workerID}
		h.entries[workerID] = e
	}
	e.Total++
	e.LastRestart = rec.At
	e.Records = append(e.Records, rec)
	if over := len(e.Records) - h.limit; over > 0 {
		e.Records = append([]Record(nil), e.Records[over:]...)
	}
}

// Get returns a copy of the history for workerID.
// Get 返回 workerID 的历史副本。
func (h *History) Get(workerID string) (Entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	e, ok := h.entries[workerID]
	if !ok {
		return Entry{}, false
	}
	out := *e
	out.Records = append([]Record(nil), e.Records...)
	return out, true
}

// Forget drops the history of workerID.
func (h *History) Forget(workerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, workerID)
}

// Len returns the number of workers with a recorded history.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
