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

package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/seatunnel/workerhost/internal/worker"
)

var actorSeq atomic.Uint64

// Mailbox is an actor's view of its host: an inbox of envelopes and
// outbound channels for messages and output lines.
// Mailbox 是 actor 对宿主的视图：消息收件箱以及发往宿主的消息和输出通道。
type Mailbox struct {
	a *actorResource
}

// WorkerID returns the id of the worker this actor runs as.
func (m *Mailbox) WorkerID() string { return m.a.spec.WorkerID }

// Kind returns the worker kind.
func (m *Mailbox) Kind() worker.Kind { return m.a.spec.Kind }

// Args returns the configured arguments.
func (m *Mailbox) Args() []string { return append([]string(nil), m.a.spec.Args...) }

// Inbox delivers envelopes posted by the host.
// Inbox 投递宿主发送的消息。
func (m *Mailbox) Inbox() <-chan worker.Envelope { return m.a.inbox }

// Post sends env to the host. It is stamped when Timestamp is zero.
// Post 将 env 发送给宿主，Timestamp 为零时自动填充。
func (m *Mailbox) Post(env worker.Envelope) error {
	if env.Timestamp == 0 {
		env.Timestamp = worker.NewEnvelope(env.Type, nil).Timestamp
	}
	env, err := worker.Detach(env)
	if err != nil {
		return err
	}
	return m.a.notify(worker.Notification{Kind: worker.NotifyMessage, Envelope: env})
}

// Println writes one stdout line.
func (m *Mailbox) Println(args ...any) error {
	return m.a.notify(worker.Notification{Kind: worker.NotifyStdout, Line: fmt.Sprint(args...)})
}

// Errorln writes one stderr line.
func (m *Mailbox) Errorln(args ...any) error {
	return m.a.notify(worker.Notification{Kind: worker.NotifyStderr, Line: fmt.Sprint(args...)})
}

// actorResource adapts a running Func to worker.Resource.
type actorResource struct {
	id     string
	name   string
	spec   worker.SpawnSpec
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan worker.Envelope

	killed atomic.Bool

	mu     sync.Mutex
	closed bool
	notes  chan worker.Notification
}

func newActor(name string, spec worker.SpawnSpec, inboxSize int, logger *zap.Logger) *actorResource {
	ctx, cancel := context.WithCancel(context.Background())
	return &actorResource{
		id:     fmt.Sprintf("actor-%s-%d", name, actorSeq.Add(1)),
		name:   name,
		spec:   spec,
		logger: logger.With(zap.String("worker_id", spec.WorkerID), zap.String("actor", name)),
		ctx:    ctx,
		cancel: cancel,
		inbox:  make(chan worker.Envelope, inboxSize),
		notes:  make(chan worker.Notification, 256),
	}
}

func (a *actorResource) ID() string { return a.id }

func (a *actorResource) Notifications() <-chan worker.Notification { return a.notes }

// notify enqueues n unless the actor already exited. The send happens under
// mu so it cannot race with the close in run.
func (a *actorResource) notify(n worker.Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return worker.ErrResourceClosed
	}
	select {
	case a.notes <- n:
		return nil
	case <-a.ctx.Done():
		return worker.ErrResourceClosed
	}
}

func (a *actorResource) run(fn Func) {
	err := a.invoke(fn)
	a.cancel()

	a.mu.Lock()
	defer a.mu.Unlock()
	n := worker.Notification{Kind: worker.NotifyExit}
	switch {
	case a.killed.Load() && (err == nil || errors.Is(err, context.Canceled)):
		n.ExitCode = -1
	case err != nil:
		n.Err = err
		n.ExitCode = 1
	}
	a.closed = true
	a.logger.Debug("actor exited", zap.Int("exit_code", n.ExitCode), zap.Error(err))
	// Exit is always delivered, the channel has room or a pump drains it.
	a.notes <- n
	close(a.notes)
}

func (a *actorResource) invoke(fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("actor %s panicked: %v", a.name, r)
		}
	}()
	return fn(a.ctx, &Mailbox{a: a})
}

// Kill cancels the actor's context.
func (a *actorResource) Kill() error {
	a.killed.Store(true)
	a.cancel()
	return nil
}

// PostMessage queues env on the inbox without blocking.
func (a *actorResource) PostMessage(env worker.Envelope) error {
	if a.ctx.Err() != nil {
		return worker.ErrResourceClosed
	}
	env, err := worker.Detach(env)
	if err != nil {
		return err
	}
	select {
	case a.inbox <- env:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrMailboxFull, a.spec.WorkerID)
	}
}
