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

// Package actor runs workers as goroutines inside the host process.
// actor 包在宿主进程内以 goroutine 形式运行工作者。
//
// An actor is a Func registered under a name and addressed with the entry
// point actor://name. It receives envelopes from its mailbox and posts
// envelopes and output lines back, with the same ordering guarantees as a
// subprocess worker.
// actor 是以名称注册的 Func，通过入口 actor://name 访问。它从邮箱接收消息，
// 并回送消息与输出行，顺序保证与子进程工作者相同。
package actor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/seatunnel/workerhost/internal/worker"
)

// Scheme is the entry point scheme served by a Registry.
const Scheme = "actor"

// Errors returned by the actor runtime.
// actor 运行时返回的错误。
var (
	// ErrDuplicateActor indicates a name is already registered
	// ErrDuplicateActor 表示名称已被注册
	ErrDuplicateActor = errors.New("actor: name already registered")

	// ErrMailboxFull indicates the actor is not draining its inbox
	// ErrMailboxFull 表示 actor 未及时消费收件箱
	ErrMailboxFull = errors.New("actor: mailbox full")
)

// Func is the body of an actor. It must return once ctx is done; a nil
// return is a clean exit.
// Func 是 actor 的主体，ctx 结束后必须返回，返回 nil 表示正常退出。
type Func func(ctx context.Context, mb *Mailbox) error

// Registry resolves actor names and spawns them.
// Registry 解析 actor 名称并启动它们。
type Registry struct {
	mu        sync.RWMutex
	funcs     map[string]Func
	inboxSize int
	logger    *zap.Logger
}

// DefaultInboxSize is the capacity of an actor's inbox.
const DefaultInboxSize = 64

// NewRegistry creates an empty registry.
// NewRegistry 创建空的注册表。
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		funcs:     make(map[string]Func),
		inboxSize: DefaultInboxSize,
		logger:    logger.Named("actor"),
	}
}

// Register adds fn under name.
// Register 以 name 注册 fn。
func (r *Registry) Register(name string, fn Func) error {
	if name == "" || fn == nil {
		return errors.New("actor: name and func are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.funcs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateActor, name)
	}
	r.funcs[name] = fn
	return nil
}

// Names returns the registered names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(entryPoint string) (string, Func, bool) {
	name := strings.TrimPrefix(entryPoint, Scheme+"://")
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return name, fn, ok
}

// Spawn starts the actor named by spec.EntryPoint.
// Spawn 启动 spec.EntryPoint 指定的 actor。
func (r *Registry) Spawn(ctx context.Context, spec worker.SpawnSpec) (worker.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, fn, ok := r.lookup(spec.EntryPoint)
	if !ok {
		return nil, fmt.Errorf("%w: %s", worker.ErrUnknownEntryPoint, spec.EntryPoint)
	}

	a := newActor(name, spec, r.inboxSize, r.logger)
	if spec.Data != nil {
		init, err := worker.Detach(worker.NewEnvelope(worker.InitMessageType, spec.Data))
		if err != nil {
			return nil, err
		}
		a.inbox <- init
	}
	go a.run(fn)
	r.logger.Debug("actor started", zap.String("worker_id", spec.WorkerID), zap.String("actor", name))
	return a, nil
}
