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

// Package worker exposes the supervisor over HTTP.
// worker 包通过 HTTP 暴露监督器的操作。
package worker

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/seatunnel/workerhost/internal/logger"
	"github.com/seatunnel/workerhost/internal/otel_trace"
	"github.com/seatunnel/workerhost/internal/restart"
	"github.com/seatunnel/workerhost/internal/supervisor"
	wk "github.com/seatunnel/workerhost/internal/worker"
)

// Supervisor is the part of the supervisor the handler drives.
// Supervisor 是处理器所使用的监督器接口。
type Supervisor interface {
	Create(ctx context.Context, cfg wk.Config) (*wk.Handle, error)
	Get(id string) (*wk.Handle, bool)
	Find(q supervisor.Query) []*wk.Handle
	Stats() supervisor.Stats
	Stop(id string) bool
	StopAll()
	Restart(ctx context.Context, id string) (*wk.Handle, error)
	RestartHistory(id string) (restart.Entry, bool)
	Pause(id string) bool
	Resume(id string) bool
	SendMessage(id string, env wk.Envelope) bool
	Disposed() bool
}

// Handler provides HTTP handlers for worker operations.
// Handler 提供工作进程操作的 HTTP 处理器。
type Handler struct {
	sup          Supervisor
	usageTimeout time.Duration
}

// NewHandler creates a new Handler instance.
// NewHandler 创建一个新的 Handler 实例。
func NewHandler(sup Supervisor) *Handler {
	return &Handler{sup: sup, usageTimeout: 2 * time.Second}
}

// RegisterRoutes mounts the worker routes on rg.
// RegisterRoutes 在 rg 上注册工作进程路由。
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	workers := rg.Group("/workers")
	{
		workers.POST("", h.Create)
		workers.GET("", h.List)
		workers.GET("/stats", h.Stats)
		workers.POST("/stop-all", h.StopAll)
		workers.GET("/:id", h.Get)
		workers.GET("/:id/usage", h.Usage)
		workers.POST("/:id/stop", h.Stop)
		workers.POST("/:id/restart", h.Restart)
		workers.POST("/:id/pause", h.Pause)
		workers.POST("/:id/resume", h.Resume)
		workers.POST("/:id/messages", h.SendMessage)
	}
}

// ==================== Request/Response Types 请求/响应类型 ====================

// Response is the envelope of every reply.
// Response 是所有响应的外层结构。
type Response struct {
	ErrorMsg string `json:"error_msg"`
	Data     any    `json:"data"`
}

// ListWorkersRequest filters the worker list.
// ListWorkersRequest 过滤工作进程列表。
type ListWorkersRequest struct {
	Kind     wk.Kind     `form:"kind"`
	State    wk.State    `form:"state"`
	Priority wk.Priority `form:"priority"`
}

// WorkerDetail is returned by GET /workers/:id.
// WorkerDetail 由 GET /workers/:id 返回。
type WorkerDetail struct {
	Worker   *wk.Handle     `json:"worker"`
	UptimeMs int64          `json:"uptimeMs"`
	Restarts *restart.Entry `json:"restarts,omitempty"`
}

// SendMessageRequest is the body of POST /workers/:id/messages.
// SendMessageRequest 是 POST /workers/:id/messages 的请求体。
type SendMessageRequest struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), Response{ErrorMsg: err.Error()})
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Data: data})
}

// ==================== Handlers 处理器 ====================

// Create handles POST /api/v1/workers.
// Create 处理 POST /api/v1/workers - 创建工作进程。
func (h *Handler) Create(c *gin.Context) {
	ctx, span := otel_trace.Start(c.Request.Context(), "worker.Create")
	defer span.End()

	var cfg wk.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, Response{ErrorMsg: err.Error()})
		return
	}
	span.SetAttributes(attribute.String("worker.kind", string(cfg.Kind)))

	handle, err := h.sup.Create(ctx, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnF(ctx, "[Worker] 创建失败 / create failed: %v", err)
		fail(c, err)
		return
	}
	span.SetAttributes(attribute.String("worker.id", handle.ID))
	logger.InfoF(ctx, "[Worker] 创建成功 / created: %s (%s)", handle.ID, handle.Config.EntryPoint)
	ok(c, http.StatusCreated, handle)
}

// List handles GET /api/v1/workers?kind=&state=&priority=.
// List 处理 GET /api/v1/workers - 获取工作进程列表。
func (h *Handler) List(c *gin.Context) {
	var req ListWorkersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{ErrorMsg: err.Error()})
		return
	}
	handles := h.sup.Find(supervisor.Query{Kind: req.Kind, State: req.State, Priority: req.Priority})
	if handles == nil {
		handles = []*wk.Handle{}
	}
	ok(c, http.StatusOK, handles)
}

// Stats handles GET /api/v1/workers/stats.
func (h *Handler) Stats(c *gin.Context) {
	ok(c, http.StatusOK, h.sup.Stats())
}

// Get handles GET /api/v1/workers/:id.
// Get 处理 GET /api/v1/workers/:id - 获取工作进程详情及重启历史。
func (h *Handler) Get(c *gin.Context) {
	handle, found := h.sup.Get(c.Param("id"))
	if !found {
		fail(c, ErrWorkerNotFound)
		return
	}
	detail := WorkerDetail{Worker: handle, UptimeMs: handle.Uptime(time.Now()).Milliseconds()}
	if entry, found := h.sup.RestartHistory(handle.ID); found {
		detail.Restarts = &entry
	}
	ok(c, http.StatusOK, detail)
}

// Usage handles GET /api/v1/workers/:id/usage.
// Usage 处理 GET /api/v1/workers/:id/usage - 采样进程的 CPU 与内存。
func (h *Handler) Usage(c *gin.Context) {
	handle, found := h.sup.Get(c.Param("id"))
	if !found {
		fail(c, ErrWorkerNotFound)
		return
	}
	reporter, supported := handle.Resource.(wk.UsageReporter)
	if !supported || handle.State == wk.StateStopped {
		fail(c, ErrUsageUnsupported)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.usageTimeout)
	defer cancel()
	usage, err := reporter.Usage(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, usage)
}

// Stop handles POST /api/v1/workers/:id/stop.
// Stop 处理 POST /api/v1/workers/:id/stop - 停止工作进程。
func (h *Handler) Stop(c *gin.Context) {
	id := c.Param("id")
	if !h.sup.Stop(id) {
		h.failUnchanged(c, id)
		return
	}
	logger.InfoF(c.Request.Context(), "[Worker] 停止请求已发送 / stop requested: %s", id)
	h.reply(c, id, http.StatusAccepted)
}

// StopAll handles POST /api/v1/workers/stop-all.
// StopAll 处理 POST /api/v1/workers/stop-all - 停止所有工作进程。
func (h *Handler) StopAll(c *gin.Context) {
	if h.sup.Disposed() {
		fail(c, supervisor.ErrDisposed)
		return
	}
	h.sup.StopAll()
	logger.InfoF(c.Request.Context(), "[Worker] 已请求停止所有工作进程 / stop all requested")
	ok(c, http.StatusAccepted, nil)
}

// Restart handles POST /api/v1/workers/:id/restart.
// Restart 处理 POST /api/v1/workers/:id/restart - 重启工作进程。
func (h *Handler) Restart(c *gin.Context) {
	ctx, span := otel_trace.Start(c.Request.Context(), "worker.Restart")
	defer span.End()

	id := c.Param("id")
	span.SetAttributes(attribute.String("worker.id", id))
	handle, err := h.sup.Restart(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnF(ctx, "[Worker] 重启失败 / restart failed: %s: %v", id, err)
		fail(c, err)
		return
	}
	if handle == nil {
		fail(c, ErrWorkerNotFound)
		return
	}
	logger.InfoF(ctx, "[Worker] 重启成功 / restarted: %s (count=%d)", id, handle.RestartCount)
	ok(c, http.StatusOK, handle)
}

// Pause handles POST /api/v1/workers/:id/pause.
func (h *Handler) Pause(c *gin.Context) {
	id := c.Param("id")
	if !h.sup.Pause(id) {
		h.failUnchanged(c, id)
		return
	}
	h.reply(c, id, http.StatusOK)
}

// Resume handles POST /api/v1/workers/:id/resume.
func (h *Handler) Resume(c *gin.Context) {
	id := c.Param("id")
	if !h.sup.Resume(id) {
		h.failUnchanged(c, id)
		return
	}
	h.reply(c, id, http.StatusOK)
}

// SendMessage handles POST /api/v1/workers/:id/messages.
// SendMessage 处理 POST /api/v1/workers/:id/messages - 向工作进程发送消息。
func (h *Handler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{ErrorMsg: err.Error()})
		return
	}
	if req.Type == "" {
		fail(c, ErrMessageTypeEmpty)
		return
	}
	id := c.Param("id")
	if !h.sup.SendMessage(id, wk.NewEnvelope(req.Type, req.Data)) {
		h.failUnchanged(c, id)
		return
	}
	ok(c, http.StatusAccepted, nil)
}

// failUnchanged reports a rejected state change: 404 for an unknown id,
// 409 otherwise.
func (h *Handler) failUnchanged(c *gin.Context, id string) {
	if h.sup.Disposed() {
		fail(c, supervisor.ErrDisposed)
		return
	}
	if _, found := h.sup.Get(id); !found {
		fail(c, ErrWorkerNotFound)
		return
	}
	fail(c, ErrInvalidState)
}

func (h *Handler) reply(c *gin.Context, id string, status int) {
	handle, found := h.sup.Get(id)
	if !found {
		ok(c, status, nil)
		return
	}
	ok(c, status, handle)
}
