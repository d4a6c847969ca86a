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

package eventsink

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/seatunnel/workerhost/internal/eventbus"
)

// Options tunes a Sink.
// Options 用于调整 Sink。
type Options struct {
	Channel   string
	QueueSize int

	// PublishTimeout bounds a single publish call
	// PublishTimeout 限制单次发布的耗时
	PublishTimeout time.Duration

	// FailureThreshold consecutive failures open the breaker for BreakerTimeout
	// 连续 FailureThreshold 次失败后熔断器打开 BreakerTimeout 时长
	FailureThreshold uint32
	BreakerTimeout   time.Duration

	// Kinds limits forwarding to these kinds, empty means all
	Kinds []eventbus.Kind
}

// DefaultOptions returns the defaults used by the host.
func DefaultOptions(channel string) Options {
	return Options{
		Channel:          channel,
		QueueSize:        4096,
		PublishTimeout:   2 * time.Second,
		FailureThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

// Stats is a snapshot of sink counters.
// Stats 是 Sink 计数器的快照。
type Stats struct {
	Published    uint64 `json:"published"`
	Failed       uint64 `json:"failed"`
	Rejected     uint64 `json:"rejected"`
	Dropped      uint64 `json:"dropped"`
	Queued       int    `json:"queued"`
	BreakerState string `json:"breakerState"`
}

// Sink forwards bus events to a Publisher through a circuit breaker. The bus
// handler only enqueues; Serve performs the I/O.
// Sink 通过熔断器将总线事件转发给 Publisher，总线回调只负责入队，I/O 在 Serve 中完成。
type Sink struct {
	bus     *eventbus.Bus
	sub     eventbus.Subscription
	pub     Publisher
	opts    Options
	breaker *gobreaker.CircuitBreaker[struct{}]
	queue   chan []byte
	logger  *zap.Logger

	published atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
	dropped   atomic.Uint64
}

// New subscribes a sink to bus.
// New 创建 Sink 并订阅 bus。
func New(bus *eventbus.Bus, pub Publisher, opts Options, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 4096
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 2 * time.Second
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	s := &Sink{
		bus:    bus,
		pub:    pub,
		opts:   opts,
		queue:  make(chan []byte, opts.QueueSize),
		logger: logger.Named("eventsink"),
	}
	s.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "eventsink:" + opts.Channel,
		Timeout: opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("event sink breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	s.sub = bus.Subscribe(s.enqueue, opts.Kinds...)
	return s
}

func (s *Sink) enqueue(e eventbus.Event) {
	payload, err := json.Marshal(e.Wire())
	if err != nil {
		s.logger.Error("failed to encode event", zap.String("event_id", e.ID), zap.Error(err))
		return
	}
	select {
	case s.queue <- payload:
	default:
		s.dropped.Add(1)
	}
}

// Serve drains the queue until ctx is done.
// Serve 持续消费队列直到 ctx 结束。
func (s *Sink) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-s.queue:
			s.send(ctx, payload)
		}
	}
}

func (s *Sink) send(ctx context.Context, payload []byte) {
	_, err := s.breaker.Execute(func() (struct{}, error) {
		pctx, cancel := context.WithTimeout(ctx, s.opts.PublishTimeout)
		defer cancel()
		return struct{}{}, s.pub.Publish(pctx, s.opts.Channel, payload)
	})
	switch {
	case err == nil:
		s.published.Add(1)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		s.rejected.Add(1)
	default:
		s.failed.Add(1)
		s.logger.Debug("event publish failed", zap.String("channel", s.opts.Channel), zap.Error(err))
	}
}

// Stats returns current counters.
func (s *Sink) Stats() Stats {
	return Stats{
		Published:    s.published.Load(),
		Failed:       s.failed.Load(),
		Rejected:     s.rejected.Load(),
		Dropped:      s.dropped.Load(),
		Queued:       len(s.queue),
		BreakerState: s.breaker.State().String(),
	}
}

// Close unsubscribes the sink. Queued events are discarded.
// Close 取消订阅，队列中的事件将被丢弃。
func (s *Sink) Close() {
	s.bus.Unsubscribe(s.sub)
}

// String names the service in supervision logs.
func (s *Sink) String() string {
	return "event-sink"
}
