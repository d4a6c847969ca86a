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
	"errors"
	"net/http"

	"github.com/seatunnel/workerhost/internal/supervisor"
)

// Error definitions for the worker control API.
// 工作进程控制 API 的错误定义。
var (
	// ErrWorkerNotFound indicates no worker uses the requested id.
	// ErrWorkerNotFound 表示没有使用该 ID 的工作进程。
	ErrWorkerNotFound = errors.New("worker: not found")
	// ErrInvalidState indicates the worker is not in a state that allows the operation.
	// ErrInvalidState 表示工作进程当前状态不允许该操作。
	ErrInvalidState = errors.New("worker: operation not allowed in current state")
	// ErrUsageUnsupported indicates the worker is not backed by an OS process.
	// ErrUsageUnsupported 表示工作进程不是由操作系统进程承载。
	ErrUsageUnsupported = errors.New("worker: usage is only available for process workers")
	// ErrMessageTypeEmpty indicates a message without a type.
	// ErrMessageTypeEmpty 表示消息缺少类型。
	ErrMessageTypeEmpty = errors.New("worker: message type cannot be empty")
)

// statusFor maps supervisor and API errors to HTTP status codes.
// statusFor 将监督器与 API 错误映射为 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case errors.Is(err, supervisor.ErrCapacityExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, supervisor.ErrDuplicateID), errors.Is(err, supervisor.ErrRestartConflict),
		errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, supervisor.ErrInvalidConfig), errors.Is(err, ErrMessageTypeEmpty):
		return http.StatusBadRequest
	case errors.Is(err, supervisor.ErrSpawnFailed):
		return http.StatusBadGateway
	case errors.Is(err, supervisor.ErrDisposed):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrWorkerNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUsageUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
