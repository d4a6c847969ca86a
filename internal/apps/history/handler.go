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
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Reader is the read side of the repository used by the handler.
// Reader 是处理器使用的仓库读取接口。
type Reader interface {
	List(ctx context.Context, filter *EventFilter) ([]*EventRecord, int64, error)
	GetByEventID(ctx context.Context, eventID string) (*EventRecord, error)
	CountByKind(ctx context.Context, workerID string) (map[string]int64, error)
}

// Handler provides HTTP handlers for event history queries.
// Handler 提供事件历史查询的 HTTP 处理器。
type Handler struct {
	repo Reader
}

// NewHandler creates a new Handler instance.
// NewHandler 创建一个新的 Handler 实例。
func NewHandler(repo Reader) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes mounts the history routes on rg.
// RegisterRoutes 在 rg 上注册历史路由。
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	events := rg.Group("/events")
	{
		events.GET("", h.ListEvents)
		events.GET("/summary", h.Summary)
		events.GET("/:event_id", h.GetEvent)
	}
}

// ==================== Request/Response Types 请求/响应类型 ====================

// ListEventsRequest represents the request for listing events.
// ListEventsRequest 表示获取事件列表的请求。
type ListEventsRequest struct {
	Current    int    `json:"current" form:"current" binding:"min=1"`
	Size       int    `json:"size" form:"size" binding:"min=1,max=100"`
	WorkerID   string `json:"worker_id" form:"worker_id"`
	Kind       string `json:"kind" form:"kind"`
	WorkerKind string `json:"worker_kind" form:"worker_kind"`
	StartTime  string `json:"start_time" form:"start_time"`
	EndTime    string `json:"end_time" form:"end_time"`
}

// ListEventsData is the payload of a list response.
// ListEventsData 是列表响应的数据部分。
type ListEventsData struct {
	Total  int64          `json:"total"`
	Events []*EventRecord `json:"events"`
}

// ListEventsResponse represents the response for listing events.
// ListEventsResponse 表示获取事件列表的响应。
type ListEventsResponse struct {
	ErrorMsg string          `json:"error_msg"`
	Data     *ListEventsData `json:"data"`
}

// GetEventResponse represents the response for getting an event.
// GetEventResponse 表示获取事件详情的响应。
type GetEventResponse struct {
	ErrorMsg string       `json:"error_msg"`
	Data     *EventRecord `json:"data"`
}

// SummaryResponse carries per-kind event counts.
// SummaryResponse 携带按类型统计的事件数量。
type SummaryResponse struct {
	ErrorMsg string           `json:"error_msg"`
	Data     map[string]int64 `json:"data"`
}

// ListEvents handles GET /api/v1/events - lists persisted events with filtering and pagination.
// ListEvents 处理 GET /api/v1/events - 获取持久化事件列表（支持过滤和分页）。
func (h *Handler) ListEvents(c *gin.Context) {
	req := &ListEventsRequest{Current: 1, Size: 20}
	if err := c.ShouldBindQuery(req); err != nil {
		c.JSON(http.StatusBadRequest, ListEventsResponse{ErrorMsg: err.Error()})
		return
	}

	startTime, err := parseTime(req.StartTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, ListEventsResponse{
			ErrorMsg: "无效的开始时间格式，请使用 RFC3339 格式 / Invalid start_time format, use RFC3339",
		})
		return
	}
	endTime, err := parseTime(req.EndTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, ListEventsResponse{
			ErrorMsg: "无效的结束时间格式，请使用 RFC3339 格式 / Invalid end_time format, use RFC3339",
		})
		return
	}

	records, total, err := h.repo.List(c.Request.Context(), &EventFilter{
		WorkerID:   req.WorkerID,
		Kind:       req.Kind,
		WorkerKind: req.WorkerKind,
		StartTime:  startTime,
		EndTime:    endTime,
		Page:       req.Current,
		PageSize:   req.Size,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, ListEventsResponse{ErrorMsg: err.Error()})
		return
	}
	if records == nil {
		records = []*EventRecord{}
	}
	c.JSON(http.StatusOK, ListEventsResponse{Data: &ListEventsData{Total: total, Events: records}})
}

// GetEvent handles GET /api/v1/events/:event_id.
// GetEvent 处理 GET /api/v1/events/:event_id。
func (h *Handler) GetEvent(c *gin.Context) {
	rec, err := h.repo.GetByEventID(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrEventNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, GetEventResponse{ErrorMsg: err.Error()})
		return
	}
	c.JSON(http.StatusOK, GetEventResponse{Data: rec})
}

// Summary handles GET /api/v1/events/summary?worker_id=...
// Summary 处理 GET /api/v1/events/summary?worker_id=...
func (h *Handler) Summary(c *gin.Context) {
	counts, err := h.repo.CountByKind(c.Request.Context(), c.Query("worker_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, SummaryResponse{ErrorMsg: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SummaryResponse{Data: counts})
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
