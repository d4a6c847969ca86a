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

package stream

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/seatunnel/workerhost/internal/eventbus"
)

// Handler upgrades HTTP requests to event streams.
// Handler 将 HTTP 请求升级为事件流。
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler creates a new Handler instance.
// NewHandler 创建一个新的 Handler 实例。
func NewHandler(hub *Hub) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// RegisterRoutes mounts GET /events/stream on rg.
// RegisterRoutes 在 rg 上注册 GET /events/stream。
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/events/stream", h.Stream)
}

// Stream handles GET /api/v1/events/stream?worker_id=&kinds=created,stopped.
// Stream 处理 GET /api/v1/events/stream - 订阅实时事件。
func (h *Handler) Stream(c *gin.Context) {
	filter, err := parseFilter(c.Query("worker_id"), c.Query("kinds"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_msg": err.Error(), "data": nil})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(uuid.NewString(), h.hub, conn, filter)
	if !h.hub.join(client) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

func parseFilter(workerID, kinds string) (Filter, error) {
	f := Filter{WorkerID: workerID}
	if kinds == "" {
		return f, nil
	}
	f.Kinds = make(map[eventbus.Kind]struct{})
	for _, raw := range strings.Split(kinds, ",") {
		k := eventbus.Kind(strings.TrimSpace(raw))
		if !knownKind(k) {
			return Filter{}, &unknownKindError{kind: string(k)}
		}
		f.Kinds[k] = struct{}{}
	}
	return f, nil
}

func knownKind(k eventbus.Kind) bool {
	for _, known := range eventbus.Kinds {
		if k == known {
			return true
		}
	}
	return false
}

type unknownKindError struct{ kind string }

func (e *unknownKindError) Error() string {
	return "stream: unknown event kind " + e.kind
}
