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

// Package restart decides whether a crashed worker is restarted and keeps
// the restart history of each worker.
// restart 包决定崩溃的工作进程是否重启，并记录每个工作进程的重启历史。
//
// This package provides:
// 此包提供：
// - Restart count limiting / 重启次数限制
// - Restart history tracking / 重启历史跟踪
package restart

import (
	"time"

	"github.com/seatunnel/workerhost/internal/worker"
)

// Default configuration values
// 默认配置值
const (
	DefaultDrainInterval = time.Second // 重启前的排空等待 / Drain wait before replacing a worker
	DefaultHistoryLimit  = 32          // 每个工作进程保留的重启记录数 / Restart records kept per worker
)

// Reason explains a Decision.
// Reason 解释决策原因。
type Reason string

const (
	// ReasonDisabled means auto restart is off for the worker
	// ReasonDisabled 表示该工作进程未启用自动重启
	ReasonDisabled Reason = "disabled"

	// ReasonAllowed means a restart should be attempted
	// ReasonAllowed 表示应尝试重启
	ReasonAllowed Reason = "allowed"

	// ReasonExhausted means the restart ceiling was reached
	// ReasonExhausted 表示已达到重启上限
	ReasonExhausted Reason = "exhausted"
)

// Decision is the outcome of evaluating the restart policy for one crash.
// Decision 是针对一次崩溃评估重启策略的结果。
type Decision struct {
	Restart bool
	Reason  Reason
	// Attempt is the restart count the replacement would carry
	// Attempt 是替换后的工作进程将携带的重启次数
	Attempt int
}

// Evaluate applies the autoRestart / maxRestarts rule to a worker that
// exited unexpectedly with the given restart count.
// Evaluate 对以给定重启次数意外退出的工作进程应用 autoRestart / maxRestarts 规则。
func Evaluate(cfg worker.Config, restartCount int) Decision {
	if !cfg.AutoRestart {
		return Decision{Reason: ReasonDisabled}
	}
	if restartCount >= cfg.MaxRestarts {
		return Decision{Reason: ReasonExhausted}
	}
	return Decision{Restart: true, Reason: ReasonAllowed, Attempt: restartCount + 1}
}

// StopReason maps a negative decision to the reason carried by the
// terminal stopped event.
// StopReason 将否定决策映射为终止事件携带的原因。
func (d Decision) StopReason() worker.StopReason {
	if d.Reason == ReasonExhausted {
		return worker.StopReasonRestartsExhausted
	}
	return worker.StopReasonExited
}
