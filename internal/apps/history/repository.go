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

package history

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultInsertBatchSize caps rows per INSERT statement
// DefaultInsertBatchSize 限制每条 INSERT 语句的行数
const DefaultInsertBatchSize = 100

// Repository provides data access operations for EventRecord entities.
// Repository 提供 EventRecord 实体的数据访问操作。
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new Repository instance.
// NewRepository 创建一个新的 Repository 实例。
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func validateRecord(rec *EventRecord) error {
	if rec.EventID == "" {
		return ErrEventIDEmpty
	}
	if rec.WorkerID == "" {
		return ErrWorkerIDEmpty
	}
	if rec.Kind == "" {
		return ErrKindEmpty
	}
	return nil
}

// CreateBatch inserts records, skipping any whose event ID is already stored.
// CreateBatch 批量插入记录，已存在的事件 ID 会被跳过。
func (r *Repository) CreateBatch(ctx context.Context, records []*EventRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, rec := range records {
		if err := validateRecord(rec); err != nil {
			return err
		}
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		CreateInBatches(records, DefaultInsertBatchSize).Error
}

// GetByEventID retrieves an event by its event ID.
// GetByEventID 通过事件 ID 获取事件。
// Returns ErrEventNotFound if the event does not exist.
// 如果事件不存在，则返回 ErrEventNotFound。
func (r *Repository) GetByEventID(ctx context.Context, eventID string) (*EventRecord, error) {
	var rec EventRecord
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// List retrieves events based on filter criteria with pagination, newest first.
// List 根据过滤条件和分页获取事件列表，按时间倒序。
func (r *Repository) List(ctx context.Context, filter *EventFilter) ([]*EventRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&EventRecord{})

	// Apply filters - 应用过滤条件
	if filter != nil {
		if filter.WorkerID != "" {
			query = query.Where("worker_id = ?", filter.WorkerID)
		}
		if filter.Kind != "" {
			query = query.Where("kind = ?", filter.Kind)
		}
		if filter.WorkerKind != "" {
			query = query.Where("worker_kind = ?", filter.WorkerKind)
		}
		if filter.StartTime != nil {
			query = query.Where("occurred_at >= ?", *filter.StartTime)
		}
		if filter.EndTime != nil {
			query = query.Where("occurred_at <= ?", *filter.EndTime)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Apply pagination - 应用分页
	if filter != nil && filter.PageSize > 0 {
		offset := 0
		if filter.Page > 0 {
			offset = (filter.Page - 1) * filter.PageSize
		}
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	var records []*EventRecord
	if err := query.Order("occurred_at DESC").Order("id DESC").Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// CountByKind returns how many events of each kind were stored for a worker,
// or for every worker when workerID is empty.
// CountByKind 返回某个工作进程（workerID 为空时为全部）各类事件的数量。
func (r *Repository) CountByKind(ctx context.Context, workerID string) (map[string]int64, error) {
	var rows []struct {
		Kind  string
		Count int64
	}
	query := r.db.WithContext(ctx).Model(&EventRecord{}).Select("kind, COUNT(*) AS count")
	if workerID != "" {
		query = query.Where("worker_id = ?", workerID)
	}
	if err := query.Group("kind").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Kind] = row.Count
	}
	return out, nil
}

// PurgeBefore deletes events that occurred before t and returns how many were removed.
// PurgeBefore 删除早于 t 的事件并返回删除数量。
func (r *Repository) PurgeBefore(ctx context.Context, t time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("occurred_at < ?", t).Delete(&EventRecord{})
	return result.RowsAffected, result.Error
}
