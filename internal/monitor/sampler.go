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

// Package monitor periodically samples resource usage of running workers.
// monitor 包定期采样运行中工作进程的资源用量。
package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seatunnel/workerhost/internal/worker"
)

// DefaultInterval is the default sampling interval
// DefaultInterval 是默认采样间隔
const DefaultInterval = 15 * time.Second

// maxParallelSamples bounds concurrent gopsutil calls
const maxParallelSamples = 8

// Source lists the handles to inspect.
// Source 列出需要检查的句柄。
type Source interface {
	All() []*worker.Handle
}

// Recorder receives samples.
// Recorder 接收采样结果。
type Recorder interface {
	ObserveUsage(id string, kind worker.Kind, u worker.Usage)
	UsageError()
}

// Sample is the last usage observed for one worker.
// Sample 是某个工作进程最近一次的用量。
type Sample struct {
	WorkerID  string       `json:"workerId"`
	Kind      worker.Kind  `json:"kind"`
	Usage     worker.Usage `json:"usage"`
	SampledAt time.Time    `json:"sampledAt"`
}

// Sampler polls every running worker whose resource reports usage.
// Sampler 轮询所有可上报用量的运行中工作进程。
type Sampler struct {
	src      Source
	rec      Recorder
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu   sync.RWMutex
	last map[string]Sample
}

// NewSampler creates a sampler. A nil recorder keeps samples in memory only.
// NewSampler 创建采样器，recorder 为 nil 时仅在内存中保存样本。
func NewSampler(src Source, rec Recorder, interval time.Duration, logger *zap.Logger) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := interval / 2
	if timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	return &Sampler{
		src:      src,
		rec:      rec,
		interval: interval,
		timeout:  timeout,
		logger:   logger.Named("monitor"),
		last:     make(map[string]Sample),
	}
}

// Serve samples on every tick until ctx is done.
// Serve 在每个周期执行采样直到 ctx 结束。
func (s *Sampler) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("usage sampler started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.SampleOnce(ctx)
		}
	}
}

// SampleOnce samples all eligible workers and returns how many succeeded.
// SampleOnce 采样所有符合条件的工作进程，返回成功数量。
func (s *Sampler) SampleOnce(ctx context.Context) int {
	type target struct {
		id       string
		kind     worker.Kind
		reporter worker.UsageReporter
	}

	var targets []target
	for _, h := range s.src.All() {
		if h.State != worker.StateRunning && h.State != worker.StatePaused {
			continue
		}
		reporter, ok := h.Resource.(worker.UsageReporter)
		if !ok {
			continue
		}
		targets = append(targets, target{id: h.ID, kind: h.Kind, reporter: reporter})
	}

	samples := make([]*Sample, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSamples)
	for i, t := range targets {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, s.timeout)
			defer cancel()
			u, err := t.reporter.Usage(sctx)
			if err != nil {
				s.logger.Debug("usage sample failed", zap.String("worker_id", t.id), zap.Error(err))
				if s.rec != nil {
					s.rec.UsageError()
				}
				return nil
			}
			samples[i] = &Sample{WorkerID: t.id, Kind: t.kind, Usage: u, SampledAt: time.Now()}
			return nil
		})
	}
	_ = g.Wait()

	next := make(map[string]Sample, len(samples))
	for _, smp := range samples {
		if smp == nil {
			continue
		}
		next[smp.WorkerID] = *smp
		if s.rec != nil {
			s.rec.ObserveUsage(smp.WorkerID, smp.Kind, smp.Usage)
		}
	}

	s.mu.Lock()
	s.last = next
	s.mu.Unlock()
	return len(next)
}

// Last returns the most recent sample of a worker.
// Last 返回某个工作进程最近一次的样本。
func (s *Sampler) Last(id string) (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	smp, ok := s.last[id]
	return smp, ok
}

// Snapshot returns every sample from the last round.
func (s *Sampler) Snapshot() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Sample, 0, len(s.last))
	for _, smp := range s.last {
		out = append(out, smp)
	}
	return out
}

func (s *Sampler) String() string {
	return "usage-sampler"
}
