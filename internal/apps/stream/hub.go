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

// Package stream pushes live supervisor events to WebSocket clients.
// stream 包将监督器的实时事件推送给 WebSocket 客户端。
package stream

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/seatunnel/workerhost/internal/eventbus"
)

const broadcastBuffer = 1024

// Hub fans bus events out to connected clients. Clients that cannot keep up
// are disconnected.
// Hub 将总线事件分发给已连接的客户端，跟不上的客户端会被断开。
type Hub struct {
	bus    *eventbus.Bus
	sub    eventbus.Subscription
	logger *zap.Logger

	broadcast  chan eventbus.Wire
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	mu      sync.RWMutex
	clients map[*Client]struct{}

	dropped atomic.Uint64
}

// NewHub creates a hub subscribed to every event on bus.
// NewHub 创建订阅 bus 上所有事件的 Hub。
func NewHub(bus *eventbus.Bus, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		bus:        bus,
		logger:     logger.Named("stream"),
		broadcast:  make(chan eventbus.Wire, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
	}
	h.sub = bus.Subscribe(h.onEvent)
	return h
}

// onEvent runs on the publishing goroutine, so it never blocks.
func (h *Hub) onEvent(e eventbus.Event) {
	if h.ClientCount() == 0 {
		return
	}
	select {
	case h.broadcast <- e.Wire():
	default:
		h.dropped.Add(1)
	}
}

// Serve runs the hub loop until ctx is done, then closes every client.
// Serve 运行 Hub 主循环直到 ctx 结束，随后关闭所有客户端。
func (h *Hub) Serve(ctx context.Context) error {
	defer h.stopOnce.Do(func() { close(h.done) })
	for {
		select {
		case <-ctx.Done():
			n := h.closeAll()
			h.logger.Info("websocket hub stopped", zap.Int("clients_closed", n))
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("websocket client connected", zap.String("client_id", c.id), zap.Int("total_clients", total))

		case c := <-h.unregister:
			h.remove(c)

		case msg := <-h.broadcast:
			h.broadcastToClients(msg)
		}
	}
}

// join hands c to the hub loop. It reports false once the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Info("websocket client disconnected", zap.String("client_id", c.id), zap.Int("total_clients", total))
	}
}

func (h *Hub) broadcastToClients(msg eventbus.Wire) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].seq < clients[j].seq })

	for _, c := range clients {
		if !c.filter.matches(msg) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			delete(h.clients, c)
			close(c.send)
			h.logger.Warn("websocket client too slow, disconnecting", zap.String("client_id", c.id))
		}
	}
}

func (h *Hub) closeAll() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.clients)
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	return n
}

// ClientCount returns the number of connected clients.
// ClientCount 返回已连接的客户端数量。
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were discarded because the hub was busy.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close detaches the hub from the bus.
// Close 将 Hub 从总线上分离。
func (h *Hub) Close() {
	h.bus.Unsubscribe(h.sub)
}
