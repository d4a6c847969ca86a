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

package worker

import (
	"context"
	"errors"
)

// Errors returned by resource implementations.
// 资源实现返回的错误。
var (
	// ErrResourceClosed indicates the resource has already exited
	// ErrResourceClosed 表示资源已经退出
	ErrResourceClosed = errors.New("worker: resource closed")

	// ErrNotPausable indicates the resource cannot be suspended
	// ErrNotPausable 表示资源不支持挂起
	ErrNotPausable = errors.New("worker: resource does not support pause")

	// ErrUnknownEntryPoint indicates no spawner can run the entry point
	// ErrUnknownEntryPoint 表示没有启动器能运行该入口
	ErrUnknownEntryPoint = errors.New("worker: unknown entry point")
)

// NotificationKind tags a notification delivered by a resource.
// NotificationKind 标记资源投递的通知类型。
type NotificationKind string

const (
	NotifyMessage NotificationKind = "message"
	NotifyStdout  NotificationKind = "stdout"
	NotifyStderr  NotificationKind = "stderr"
	NotifyError   NotificationKind = "error"
	NotifyExit    NotificationKind = "exit"
)

// Notification is one item on a resource's ordered notification stream.
// Notification 是资源有序通知流中的一项。
type Notification struct {
	Kind NotificationKind

	// Envelope is set for NotifyMessage
	Envelope Envelope

	// Line is set for NotifyStdout and NotifyStderr
	Line string

	// Err is set for NotifyError, and for NotifyExit when the exit was not clean
	Err error

	// ExitCode is set for NotifyExit, -1 when the worker was killed by a signal
	ExitCode int
}

// SpawnSpec is what a Spawner needs to start a resource.
// SpawnSpec 是启动器启动资源所需的信息。
type SpawnSpec struct {
	WorkerID   string
	Kind       Kind
	EntryPoint string
	Args       []string
	Env        map[string]string
	Data       any
}

// Spawner acquires worker resources. The context only bounds acquisition,
// never the lifetime of the spawned resource.
// Spawner 获取工作资源。context 仅约束获取过程，不约束资源的生命周期。
type Spawner interface {
	Spawn(ctx context.Context, spec SpawnSpec) (Resource, error)
}

// Resource is one spawned unit of execution.
// Resource 是一个已启动的执行单元。
//
// Notifications are delivered in the order the resource produced them. The
// exit notification is always the last one and the channel is closed right
// after it. Kill only requests termination; completion is observed through
// the exit notification. Kill on an exited resource is a no-op.
// 通知按资源产生的顺序投递，退出通知始终是最后一条，之后通道关闭。
// Kill 仅请求终止，完成情况通过退出通知观察。对已退出的资源调用 Kill 无效果。
type Resource interface {
	ID() string
	Kill() error
	PostMessage(env Envelope) error
	Notifications() <-chan Notification
}

// Pausable is implemented by resources that can be suspended in place.
// Pausable 由可以原地挂起的资源实现。
type Pausable interface {
	Pause() error
	Resume() error
}

// Usage is a resource consumption sample.
// Usage 是一次资源消耗采样。
type Usage struct {
	PID        int32   `json:"pid"`
	CPUPercent float64 `json:"cpuPercent"`
	RSSBytes   uint64  `json:"rssBytes"`
	NumThreads int32   `json:"numThreads"`
}

// UsageReporter is implemented by resources backed by an OS process.
// UsageReporter 由基于操作系统进程的资源实现。
type UsageReporter interface {
	Usage(ctx context.Context) (Usage, error)
}
