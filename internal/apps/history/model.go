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

// Package history persists supervisor lifecycle events and serves them back
// over HTTP.
// history 包持久化监督器的生命周期事件并通过 HTTP 提供查询。
package history

import (
	"database/sql/driver"
	"errors"
	"time"

	json "github.com/goccy/go-json"

	"github.com/seatunnel/workerhost/internal/eventbus"
)

// Detail is the JSON column holding the per-kind event payload.
// Detail 是保存各类事件负载的 JSON 列。
type Detail map[string]any

// Value implements the driver.Valuer interface for database storage.
// Value 实现 driver.Valuer 接口用于数据库存储。
func (d Detail) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database retrieval.
// Scan 实现 sql.Scanner 接口用于数据库读取。
func (d *Detail) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*d = nil
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return errors.New("history: failed to scan Detail - expected []byte or string")
	}
}

// EventRecord is one persisted lifecycle event.
// EventRecord 是一条持久化的生命周期事件。
type EventRecord struct {
	ID           uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	EventID      string    `json:"event_id" gorm:"size:36;uniqueIndex;not null"`
	Kind         string    `json:"kind" gorm:"size:20;not null;index"`
	WorkerID     string    `json:"worker_id" gorm:"size:128;not null;index:idx_worker_time"`
	WorkerKind   string    `json:"worker_kind" gorm:"size:32;index"`
	State        string    `json:"state" gorm:"size:20"`
	RestartCount int       `json:"restart_count"`
	ResourceID   string    `json:"resource_id" gorm:"size:128"`
	Detail       Detail    `json:"detail" gorm:"type:json"`
	OccurredAt   time.Time `json:"occurred_at" gorm:"not null;index:idx_worker_time"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for the EventRecord model.
// TableName 指定 EventRecord 模型的表名。
func (EventRecord) TableName() string {
	return "worker_events"
}

// FromEvent flattens a bus event into a record.
// FromEvent 将总线事件扁平化为记录。
func FromEvent(e eventbus.Event) *EventRecord {
	w := e.Wire()
	return &EventRecord{
		EventID:      w.ID,
		Kind:         string(w.Kind),
		WorkerID:     w.WorkerID,
		WorkerKind:   string(w.WorkerKind),
		State:        string(w.State),
		RestartCount: w.RestartCount,
		ResourceID:   w.ResourceID,
		Detail:       Detail(w.Detail),
		OccurredAt:   e.Time,
	}
}

// EventFilter represents filter criteria for querying events.
// EventFilter 表示查询事件的过滤条件。
type EventFilter struct {
	WorkerID   string     `json:"worker_id"`
	Kind       string     `json:"kind"`
	WorkerKind string     `json:"worker_kind"`
	StartTime  *time.Time `json:"start_time"`
	EndTime    *time.Time `json:"end_time"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
}
