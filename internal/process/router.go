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
	"strings"
	"sync"

	"github.com/seatunnel/workerhost/internal/worker"
)

const schemeSeparator = "://"

// Router picks a spawner by the scheme of the entry point, e.g. actor://echo.
// Entry points without a registered scheme go to the fallback.
// Router 根据入口的 scheme（如 actor://echo）选择启动器，未注册 scheme 的入口交给兜底启动器。
type Router struct {
	mu       sync.RWMutex
	schemes  map[string]worker.Spawner
	fallback worker.Spawner
}

// NewRouter creates a router. fallback may be nil, in which case unknown
// schemes fail with worker.ErrUnknownEntryPoint.
// NewRouter 创建路由器。fallback 可为空，此时未知 scheme 返回 worker.ErrUnknownEntryPoint。
func NewRouter(fallback worker.Spawner) *Router {
	return &Router{schemes: make(map[string]worker.Spawner), fallback: fallback}
}

// Handle registers s for entry points starting with scheme://.
func (r *Router) Handle(scheme string, s worker.Spawner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemes[strings.ToLower(scheme)] = s
}

// Spawn dispatches to the matching spawner.
func (r *Router) Spawn(ctx context.Context, spec worker.SpawnSpec) (worker.Resource, error) {
	s := r.route(spec.EntryPoint)
	if s == nil {
		return nil, fmt.Errorf("%w: %s", worker.ErrUnknownEntryPoint, spec.EntryPoint)
	}
	return s.Spawn(ctx, spec)
}

func (r *Router) route(entryPoint string) worker.Spawner {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if scheme, _, ok := SplitScheme(entryPoint); ok {
		if s, found := r.schemes[scheme]; found {
			return s
		}
	}
	return r.fallback
}

// SplitScheme splits "scheme://rest". ok is false when there is no scheme.
// SplitScheme 拆分 "scheme://rest"，没有 scheme 时 ok 为 false。
func SplitScheme(entryPoint string) (scheme, rest string, ok bool) {
	i := strings.Index(entryPoint, schemeSeparator)
	if i <= 0 {
		return "", entryPoint, false
	}
	return strings.ToLower(entryPoint[:i]), entryPoint[i+len(schemeSeparator):], true
}
