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
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/seatunnel/workerhost/internal/eventbus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 256
)

var clientSeq atomic.Uint64

// Filter narrows the events a client receives. Zero fields match anything.
// Filter 限定客户端接收的事件，零值字段匹配任意值。
type Filter struct {
	WorkerID string
	Kinds    map[eventbus.Kind]struct{}
}

func (f Filter) matches(w eventbus.Wire) bool {
	if f.WorkerID != "" && w.WorkerID != f.WorkerID {
		return false
	}
	if len(f.Kinds) > 0 {
		if _, ok := f.Kinds[w.Kind]; !ok {
			return false
		}
	}
	return true
}

// Client is one WebSocket subscriber.
// Client 是一个 WebSocket 订阅者。
type Client struct {
	id     string
	seq    uint64
	hub    *Hub
	conn   *websocket.Conn
	send   chan eventbus.Wire
	filter Filter
}

func newClient(id string, hub *Hub, conn *websocket.Conn, filter Filter) *Client {
	return &Client{
		id:     id,
		seq:    clientSeq.Add(1),
		hub:    hub,
		conn:   conn,
		send:   make(chan eventbus.Wire, sendBuffer),
		filter: filter,
	}
}

// readPump discards client input and keeps the read deadline fresh. It
// unregisters the client when the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("unexpected websocket close", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.hub.logger.Debug("websocket write failed", zap.String("client_id", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
