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

package process

import (
	"context"
	"fmt"

	gops "github.com/shirou/gopsutil/v3/process"

	"github.com/seatunnel/workerhost/internal/worker"
)

// Usage samples CPU and memory usage of the process.
// Usage 采样进程的 CPU 与内存使用情况。
func (p *Process) Usage(ctx context.Context) (worker.Usage, error) {
	if p.exited.Load() {
		return worker.Usage{}, worker.ErrResourceClosed
	}
	return sampleUsage(ctx, int32(p.pid))
}

func sampleUsage(ctx context.Context, pid int32) (worker.Usage, error) {
	proc, err := gops.NewProcessWithContext(ctx, pid)
	if err != nil {
		return worker.Usage{}, fmt.Errorf("inspect pid %d: %w", pid, err)
	}

	u := worker.Usage{PID: pid}
	if u.CPUPercent, err = proc.CPUPercentWithContext(ctx); err != nil {
		return worker.Usage{}, fmt.Errorf("cpu of pid %d: %w", pid, err)
	}
	mem, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return worker.Usage{}, fmt.Errorf("memory of pid %d: %w", pid, err)
	}
	u.RSSBytes = mem.RSS
	// Thread count is best effort, some platforms do not report it.
	if n, err := proc.NumThreadsWithContext(ctx); err == nil {
		u.NumThreads = n
	}
	return u, nil
}
