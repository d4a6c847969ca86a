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

// Package eventbus provides the typed, synchronous publish/subscribe channel
// the supervisor uses to announce worker lifecycle transitions.
// eventbus 包提供监督器用于发布工作进程生命周期变化的类型化同步发布/订阅通道。
package eventbus

import (
	"sync"

	"go.uber.org/zap"
)

// Handler receives published events. Handlers run on the publishing
// goroutine and must not block for long.
// Handler 接收发布的事件，在发布者的 goroutine 上运行，不应长时间阻塞。
type Handler func(Event)

// Subscription is the token returned by Subscribe and accepted by Unsubscribe.
// Subscription 是 Subscribe 返回、Unsubscribe 接受的令牌。
type Subscription struct {
	id uint64
}

// Valid reports whether the token was issued by a bus.
func (s Subscription) Valid() bool {
	return s.id != 0
}

type subscriber struct {
	id      uint64
	kinds   map[Kind]struct{} // empty means every kind
	handler Handler
}

func (s *subscriber) wants(k Kind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[k]
	return ok
}

// Bus delivers each event to the matching subscribers in subscription order.
// Bus 按订阅顺序将事件投递给匹配的订阅者。
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []*subscriber
	logger *zap.Logger
}

// New creates an empty bus.
// New 创建一个空的事件总线。
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger.Named("eventbus")}
}

// Subscribe registers handler for the given kinds, or for every kind when
// none are given.
// Subscribe 为指定类型注册处理器，未指定类型时订阅所有事件。
func (b *Bus) Subscribe(handler Handler, kinds ...Kind) Subscription {
	if handler == nil {
		return Subscription{}
	}
	set := make(map[Kind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs = append(b.subs, &subscriber{id: b.nextID, kinds: set, handler: handler})
	return Subscription{id: b.nextID}
}

// Unsubscribe removes a subscription. It returns false if the token is
// unknown or was already removed.
// Unsubscribe 移除订阅，令牌未知或已移除时返回 false。
func (b *Bus) Unsubscribe(sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == sub.id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Publish delivers e synchronously. A panicking handler is logged and
// does not prevent delivery to later subscribers.
// Publish 同步投递 e。处理器 panic 会被记录，不影响后续订阅者。
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if s.wants(e.Kind()) {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, e)
	}
}

func (b *Bus) deliver(s *subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.Uint64("subscription", s.id),
				zap.String("kind", string(e.Kind())),
				zap.String("worker_id", e.WorkerID()),
				zap.Any("panic", r))
		}
	}()
	s.handler(e)
}

// Clear detaches every subscriber.
// Clear 移除所有订阅者。
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
