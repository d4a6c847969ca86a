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

// Package worker defines the vocabulary shared by the supervisor and the
// worker resource implementations: kinds, states, configuration, message
// envelopes and the resource capability contract.
// worker 包定义监督器与工作资源实现之间共享的词汇：类型、状态、配置、
// 消息信封以及资源能力契约。
package worker

import (
	"time"
)

// Kind classifies a worker. It is descriptive only and used for querying.
// Kind 对工作进程进行分类，仅用于描述和查询。
type Kind string

const (
	// KindDataProcessing is a data processing worker
	// KindDataProcessing 数据处理工作进程
	KindDataProcessing Kind = "data-processing"

	// KindFileProcessing is a file processing worker
	// KindFileProcessing 文件处理工作进程
	KindFileProcessing Kind = "file-processing"

	// KindNetwork is a network worker
	// KindNetwork 网络工作进程
	KindNetwork Kind = "network"

	// KindSSH is an SSH session worker
	// KindSSH SSH 会话工作进程
	KindSSH Kind = "ssh"

	// KindAccountMonitor is an account monitoring worker
	// KindAccountMonitor 账号监控工作进程
	KindAccountMonitor Kind = "account-monitor"

	// KindCustom is a user defined worker
	// KindCustom 自定义工作进程
	KindCustom Kind = "custom"
)

// Kinds lists every known worker kind in declaration order.
// Kinds 按声明顺序列出所有已知的工作进程类型。
var Kinds = []Kind{
	KindDataProcessing,
	KindFileProcessing,
	KindNetwork,
	KindSSH,
	KindAccountMonitor,
	KindCustom,
}

// Valid reports whether k is one of the known kinds.
// Valid 判断 k 是否为已知类型。
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// State is the lifecycle state of a supervised worker.
// State 是被监督工作进程的生命周期状态。
type State string

const (
	// StateInitializing indicates the resource is being acquired
	// StateInitializing 表示正在获取资源
	StateInitializing State = "initializing"

	// StateRunning indicates the worker is running
	// StateRunning 表示工作进程正在运行
	StateRunning State = "running"

	// StatePaused indicates the worker has been suspended
	// StatePaused 表示工作进程已被挂起
	StatePaused State = "paused"

	// StateStopping indicates termination was requested and is in progress
	// StateStopping 表示已请求终止且正在进行中
	StateStopping State = "stopping"

	// StateStopped indicates the worker is terminated
	// StateStopped 表示工作进程已终止
	StateStopped State = "stopped"

	// StateError indicates the worker exited unexpectedly
	// StateError 表示工作进程意外退出
	StateError State = "error"
)

// States lists every state in lifecycle order.
// States 按生命周期顺序列出所有状态。
var States = []State{
	StateInitializing,
	StateRunning,
	StatePaused,
	StateStopping,
	StateStopped,
	StateError,
}

// Valid reports whether s is one of the known states.
// Valid 判断 s 是否为已知状态。
func (s State) Valid() bool {
	for _, known := range States {
		if s == known {
			return true
		}
	}
	return false
}

// Priority is a scheduling hint carried in the worker config. The supervisor
// does not enforce it.
// Priority 是工作进程配置中的调度提示，监督器不强制执行。
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// OrDefault returns p, or PriorityNormal when p is unset.
// OrDefault 返回 p，未设置时返回 PriorityNormal。
func (p Priority) OrDefault() Priority {
	if p == "" {
		return PriorityNormal
	}
	return p
}

// StopReason tells consumers why a worker reached the stopped state.
// StopReason 告诉消费者工作进程为何进入停止状态。
type StopReason string

const (
	// StopReasonRequested means a host issued stop
	// StopReasonRequested 表示宿主发起了停止
	StopReasonRequested StopReason = "requested"

	// StopReasonRestarting means the worker was stopped to be replaced
	// StopReasonRestarting 表示工作进程因重启而被停止
	StopReasonRestarting StopReason = "restarting"

	// StopReasonTimeout means the worker outlived its configured timeout
	// StopReasonTimeout 表示工作进程超过了配置的超时时间
	StopReasonTimeout StopReason = "timeout"

	// StopReasonExited means the worker crashed and auto restart is disabled
	// StopReasonExited 表示工作进程崩溃且未启用自动重启
	StopReasonExited StopReason = "exited"

	// StopReasonRestartsExhausted means the worker crashed after using all restarts
	// StopReasonRestartsExhausted 表示工作进程已用尽重启次数
	StopReasonRestartsExhausted StopReason = "restarts_exhausted"

	// StopReasonDisposed means the supervisor shut down
	// StopReasonDisposed 表示监督器已关闭
	StopReasonDisposed StopReason = "disposed"
)

// Config describes how a worker is spawned and supervised.
// Config 描述工作进程的启动和监督方式。
type Config struct {
	// Kind is required
	// Kind 为必填项
	Kind Kind `json:"kind" yaml:"kind" mapstructure:"kind" validate:"required,worker_kind"`

	// ID is generated by the supervisor when empty
	// ID 为空时由监督器生成
	ID string `json:"id,omitempty" yaml:"id,omitempty" mapstructure:"id" validate:"omitempty,max=128,excludesall=/"`

	// EntryPoint is what the resource runs: an executable path, or actor://name
	// EntryPoint 是资源运行的内容：可执行文件路径或 actor://name
	EntryPoint string `json:"entryPoint" yaml:"entry_point" mapstructure:"entry_point" validate:"required"`

	Args []string          `json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"`
	Env  map[string]string `json:"env,omitempty" yaml:"env,omitempty" mapstructure:"env"`

	Priority Priority `json:"priority,omitempty" yaml:"priority,omitempty" mapstructure:"priority" validate:"omitempty,oneof=low normal high"`

	AutoRestart bool `json:"autoRestart" yaml:"auto_restart" mapstructure:"auto_restart"`
	MaxRestarts int  `json:"maxRestarts" yaml:"max_restarts" mapstructure:"max_restarts" validate:"min=0"`

	// AutoCleanup overrides the supervisor default when set
	// AutoCleanup 设置后覆盖监督器的默认值
	AutoCleanup *bool `json:"autoCleanup,omitempty" yaml:"auto_cleanup,omitempty" mapstructure:"auto_cleanup"`

	// TimeoutMs stops a worker that runs longer than this, zero disables it
	// TimeoutMs 超时后停止工作进程，为零表示禁用
	TimeoutMs int64 `json:"timeoutMs,omitempty" yaml:"timeout_ms,omitempty" mapstructure:"timeout_ms" validate:"min=0"`

	// Data is passed to the resource unmodified
	// Data 原样传递给资源
	Data any `json:"data,omitempty" yaml:"data,omitempty" mapstructure:"data"`
}

// Timeout returns TimeoutMs as a duration.
// Timeout 将 TimeoutMs 转换为时长。
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Clone returns a copy that shares no mutable state with c. Data is copied
// by reference since it is opaque.
// Clone 返回一个与 c 不共享可变状态的副本。Data 是不透明的，按引用复制。
func (c Config) Clone() Config {
	out := c
	if c.Args != nil {
		out.Args = append([]string(nil), c.Args...)
	}
	if c.Env != nil {
		out.Env = make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			out.Env[k] = v
		}
	}
	if c.AutoCleanup != nil {
		v := *c.AutoCleanup
		out.AutoCleanup = &v
	}
	return out
}

// Envelope is the unit exchanged between the host and a worker.
// Envelope 是宿主与工作进程之间交换的消息单元。
type Envelope struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// NewEnvelope builds an envelope stamped with the current time in milliseconds.
// NewEnvelope 构建一个带有当前毫秒时间戳的信封。
func NewEnvelope(typ string, data any) Envelope {
	return Envelope{Type: typ, Data: data, Timestamp: time.Now().UnixMilli()}
}

// Handle is a point-in-time copy of a supervised worker. Mutating it has no
// effect on the supervisor.
// Handle 是被监督工作进程的某一时刻副本，修改它不会影响监督器。
type Handle struct {
	ID           string     `json:"id"`
	Kind         Kind       `json:"kind"`
	State        State      `json:"state"`
	Resource     Resource   `json:"-"`
	ResourceID   string     `json:"resourceId,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	StoppedAt    *time.Time `json:"stoppedAt,omitempty"`
	RestartCount int        `json:"restartCount"`
	Config       Config     `json:"config"`
	LastError    string     `json:"lastError,omitempty"`
}

// Clone deep copies h except for the resource reference.
// Clone 深拷贝 h（资源引用除外）。
func (h Handle) Clone() Handle {
	out := h
	out.Config = h.Config.Clone()
	if h.StartedAt != nil {
		t := *h.StartedAt
		out.StartedAt = &t
	}
	if h.StoppedAt != nil {
		t := *h.StoppedAt
		out.StoppedAt = &t
	}
	return out
}

// Uptime returns how long the worker has been running, or zero if it never started.
// Uptime 返回工作进程的运行时长，若从未启动则返回零。
func (h Handle) Uptime(now time.Time) time.Duration {
	if h.StartedAt == nil {
		return 0
	}
	if h.StoppedAt != nil {
		return h.StoppedAt.Sub(*h.StartedAt)
	}
	return now.Sub(*h.StartedAt)
}
