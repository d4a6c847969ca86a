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

package supervisor

import (
	"time"

	"go.uber.org/zap"

	"github.com/seatunnel/workerhost/internal/eventbus"
	"github.com/seatunnel/workerhost/internal/restart"
)

// Default configuration values
// 默认配置值
const (
	// DefaultMaxConcurrentWorkers is the default capacity of the handle table
	// DefaultMaxConcurrentWorkers 是句柄表的默认容量
	DefaultMaxConcurrentWorkers = 10

	// DefaultCleanupDelay is how long a stopped worker stays visible
	// DefaultCleanupDelay 是已停止工作进程保留可见的时长
	DefaultCleanupDelay = 5 * time.Second
)

// Options configures a Supervisor.
// Options 配置监督器。
type Options struct {
	// MaxConcurrentWorkers bounds the handle table
	// MaxConcurrentWorkers 限制句柄表大小
	MaxConcurrentWorkers int

	// AutoCleanup removes stopped workers after CleanupDelay
	// AutoCleanup 在 CleanupDelay 之后移除已停止的工作进程
	AutoCleanup  bool
	CleanupDelay time.Duration

	// DrainInterval is the wait between stopping and replacing a worker on restart
	// DrainInterval 是重启时停止与替换工作进程之间的等待时间
	DrainInterval time.Duration

	// HistoryLimit bounds the restart records kept per worker
	// HistoryLimit 限制每个工作进程保留的重启记录数
	HistoryLimit int

	// Bus receives lifecycle events, a private bus is created when nil
	// Bus 接收生命周期事件，为空时创建私有总线
	Bus *eventbus.Bus

	Logger *zap.Logger
}

// DefaultOptions returns the options used when none are given.
// DefaultOptions 返回默认选项。
func DefaultOptions() Options {
	return Options{
		MaxConcurrentWorkers: DefaultMaxConcurrentWorkers,
		AutoCleanup:          true,
		CleanupDelay:         DefaultCleanupDelay,
		DrainInterval:        restart.DefaultDrainInterval,
		HistoryLimit:         restart.DefaultHistoryLimit,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxConcurrentWorkers <= 0 {
		o.MaxConcurrentWorkers = d.MaxConcurrentWorkers
	}
	if o.CleanupDelay <= 0 {
		o.CleanupDelay = d.CleanupDelay
	}
	if o.DrainInterval < 0 {
		o.DrainInterval = 0
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = d.HistoryLimit
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Bus == nil {
		o.Bus = eventbus.New(o.Logger)
	}
	return o
}
