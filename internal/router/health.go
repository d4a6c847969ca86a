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

package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/seatunnel/workerhost/internal/supervisor"
)

// HealthSource is the part of the supervisor the health check reads.
type HealthSource interface {
	Stats() supervisor.Stats
	Disposed() bool
}

// HostUsage is a best-effort snapshot of the machine the host runs on.
// HostUsage 是宿主机资源使用情况的尽力快照。
type HostUsage struct {
	MemoryUsedPercent float64 `json:"memoryUsedPercent"`
	Load1             float64 `json:"load1"`
}

// HealthData is returned by GET /api/v1/health.
// HealthData 是 GET /api/v1/health 的返回数据。
type HealthData struct {
	Status  string           `json:"status"`
	Uptime  string           `json:"uptime"`
	Workers supervisor.Stats `json:"workers"`
	Host    *HostUsage       `json:"host,omitempty"`
}

type healthHandler struct {
	src     HealthSource
	started time.Time
}

func newHealthHandler(src HealthSource) *healthHandler {
	return &healthHandler{src: src, started: time.Now()}
}

// Health reports 200 while the supervisor accepts work and 503 once it is disposed.
// Health 在监督器可用时返回 200，销毁后返回 503。
func (h *healthHandler) Health(c *gin.Context) {
	data := HealthData{
		Status:  "ok",
		Uptime:  time.Since(h.started).Truncate(time.Second).String(),
		Workers: h.src.Stats(),
		Host:    hostUsage(c.Request.Context()),
	}
	status := http.StatusOK
	if h.src.Disposed() {
		data.Status = "disposed"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error_msg": "", "data": data})
}

func hostUsage(ctx context.Context) *HostUsage {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil
	}
	u := &HostUsage{MemoryUsedPercent: vm.UsedPercent}
	// Load average is not available on every platform.
	if avg, err := load.AvgWithContext(ctx); err == nil {
		u.Load1 = avg.Load1
	}
	return u
}
