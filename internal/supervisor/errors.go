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

import "errors"

// Common errors for worker supervision
// 工作进程监督的常见错误
var (
	// ErrCapacityExceeded indicates the handle table is full
	// ErrCapacityExceeded 表示句柄表已满
	ErrCapacityExceeded = errors.New("supervisor: capacity exceeded")

	// ErrDuplicateID indicates a live worker already uses the id
	// ErrDuplicateID 表示已有存活的工作进程使用该 ID
	ErrDuplicateID = errors.New("supervisor: duplicate worker id")

	// ErrInvalidConfig indicates the worker config failed validation
	// ErrInvalidConfig 表示工作进程配置校验失败
	ErrInvalidConfig = errors.New("supervisor: invalid worker config")

	// ErrSpawnFailed indicates the worker resource could not be acquired
	// ErrSpawnFailed 表示无法获取工作资源
	ErrSpawnFailed = errors.New("supervisor: spawn failed")

	// ErrDisposed indicates the supervisor has been disposed
	// ErrDisposed 表示监督器已被销毁
	ErrDisposed = errors.New("supervisor: disposed")

	// ErrWorkerTimeout is reported when a worker outlives its timeout
	// ErrWorkerTimeout 表示工作进程运行超过了超时时间
	ErrWorkerTimeout = errors.New("supervisor: worker timed out")

	// ErrRestartConflict indicates the worker was replaced during a restart
	// ErrRestartConflict 表示工作进程在重启期间被替换
	ErrRestartConflict = errors.New("supervisor: worker replaced during restart")
)
