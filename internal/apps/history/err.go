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

import "errors"

// Error definitions for event history operations.
// 事件历史操作的错误定义。
var (
	// ErrEventNotFound indicates the requested event does not exist.
	// ErrEventNotFound 表示请求的事件不存在。
	ErrEventNotFound = errors.New("history: event not found")
	// ErrEventIDEmpty indicates the event ID is empty.
	// ErrEventIDEmpty 表示事件 ID 为空。
	ErrEventIDEmpty = errors.New("history: event ID cannot be empty")
	// ErrWorkerIDEmpty indicates the worker ID is empty.
	// ErrWorkerIDEmpty 表示工作进程 ID 为空。
	ErrWorkerIDEmpty = errors.New("history: worker ID cannot be empty")
	// ErrKindEmpty indicates the event kind is empty.
	// ErrKindEmpty 表示事件类型为空。
	ErrKindEmpty = errors.New("history: event kind cannot be empty")
)
