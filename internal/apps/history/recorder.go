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
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seatunnel/workerhost/internal/eventbus"
)

// Recorder defaults
// Recorder 默认值
const (
	DefaultCacheSize     = 10000
	DefaultBatchSize     = 100
	DefaultFlushInterval = time.Second
)

// BatchWriter persists a batch of records.
// BatchWriter 持久化一批记录。
type BatchWriter interface {
	CreateBatch(ctx context.Context, records []*EventRecord) error
}

// RecorderOptions tunes the recorder
// RecorderOptions 调整记录器参数
type RecorderOptions struct {
	CacheSize     int
	BatchSize     int
	FlushInterval time.Duration

	// Kinds limits which events are recorded, empty means all
	// Kinds 限定记录的事件类型，为空表示全部
	Kinds []eventbus.Kind
}

// Recorder caches bus events and writes them to the store in batches. A
// failed write keeps the events cached for the next flush, the oldest are
// dropped once the cache is full.
// Recorder 缓存总线事件并批量写入存储。写入失败时事件保留在缓存中等待下次刷新，缓存满时丢弃最旧的事件。
type Recorder struct {
	writer BatchWriter
	bus    *eventbus.Bus
	sub    eventbus.Subscription
	logger *zap.Logger

	cacheSize     int
	batchSize     int
	flushInterval time.Duration

	mu      sync.Mutex
	cache   []*EventRecord
	dropped uint64

	flushMu sync.Mutex
	flushCh chan struct{}
}

// NewRecorder subscribes a recorder to bus. Events published before Serve
// runs are cached.
// NewRecorder 创建记录器并订阅 bus，Serve 运行前发布的事件会被缓存。
func NewRecorder(bus *eventbus.Bus, writer BatchWriter, opts RecorderOptions, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	r := &Recorder{
		writer:        writer,
		bus:           bus,
		logger:        logger.Named("history"),
		cacheSize:     opts.CacheSize,
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		cache:         make([]*EventRecord, 0, opts.BatchSize),
		flushCh:       make(chan struct{}, 1),
	}
	r.sub = bus.Subscribe(r.record, opts.Kinds...)
	return r
}

func (r *Recorder) record(e eventbus.Event) {
	rec := FromEvent(e)

	r.mu.Lock()
	if len(r.cache) >= r.cacheSize {
		r.cache = r.cache[1:]
		r.dropped++
	}
	r.cache = append(r.cache, rec)
	full := len(r.cache) >= r.batchSize
	r.mu.Unlock()

	if full {
		select {
		case r.flushCh <- struct{}{}:
		default:
		}
	}
}

// Serve flushes on every tick and whenever a batch fills up, until ctx is
// done. It performs a last flush before returning.
// Serve 在每个周期以及批次填满时刷新，直到 ctx 结束，返回前执行最后一次刷新。
func (r *Recorder) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = r.Flush(flushCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			_ = r.Flush(ctx)
		case <-r.flushCh:
			_ = r.Flush(ctx)
		}
	}
}

// Flush writes every cached event. On error the unwritten events go back to
// the front of the cache.
// Flush 写入所有缓存的事件，出错时未写入的事件放回缓存头部。
func (r *Recorder) Flush(ctx context.Context) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	pending := r.cache
	r.cache = make([]*EventRecord, 0, r.batchSize)
	r.mu.Unlock()

	for len(pending) > 0 {
		end := r.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		if err := r.writer.CreateBatch(ctx, pending[:end]); err != nil {
			r.logger.Warn("failed to persist events, keeping them cached",
				zap.Int("pending", len(pending)), zap.Error(err))
			r.requeue(pending)
			return err
		}
		pending = pending[end:]
	}
	return nil
}

func (r *Recorder) requeue(pending []*EventRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	merged := make([]*EventRecord, 0, len(pending)+len(r.cache))
	merged = append(merged, pending...)
	merged = append(merged, r.cache...)
	if over := len(merged) - r.cacheSize; over > 0 {
		merged = merged[over:]
		r.dropped += uint64(over)
	}
	r.cache = merged
}

// Pending returns the number of cached events.
// Pending 返回缓存的事件数量。
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}

// Dropped returns how many events were discarded because the cache was full.
// Dropped 返回因缓存已满而丢弃的事件数量。
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close detaches the recorder from the bus. Call Flush afterwards to persist
// what is still cached.
// Close 将记录器从总线上分离，之后可调用 Flush 持久化剩余缓存。
func (r *Recorder) Close() {
	r.bus.Unsubscribe(r.sub)
}
