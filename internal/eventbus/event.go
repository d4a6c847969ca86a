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

package eventbus

import (
	"time"

	"github.com/google/uuid"

	"github.com/seatunnel/workerhost/internal/worker"
)

// Kind tags an event variant.
// Kind 标记事件变体。
type Kind string

const (
	KindCreated   Kind = "created"
	KindStarted   Kind = "started"
	KindMessage   Kind = "message"
	KindOutput    Kind = "output"
	KindError     Kind = "error"
	KindStopped   Kind = "stopped"
	KindRestarted Kind = "restarted"
	KindPaused    Kind = "paused"
	KindResumed   Kind = "resumed"
)

// Kinds lists every event kind.
var Kinds = []Kind{
	KindCreated, KindStarted, KindMessage, KindOutput, KindError,
	KindStopped, KindRestarted, KindPaused, KindResumed,
}

// Payload is implemented by the per-variant payload types below. Each
// payload type maps to exactly one Kind.
// Payload 由下面各变体的负载类型实现，每种负载类型对应唯一的 Kind。
type Payload interface {
	Kind() Kind
}

// Created is emitted once a worker has been added to the table.
type Created struct{}

// Started is emitted once a worker's resource is running.
type Started struct{}

// Message carries an envelope sent by the worker.
type Message struct {
	Envelope worker.Envelope
}

// Output carries one line the worker wrote to stdout or stderr.
type Output struct {
	Stream worker.NotificationKind
	Line   string
}

// Error reports a worker failure. ExitCode is nil when the failure is not an exit.
type Error struct {
	Err      error
	ExitCode *int
}

// Stopped is the terminal signal for one resource.
type Stopped struct {
	Reason worker.StopReason
}

// Restarted is emitted after a worker was replaced by a fresh resource.
type Restarted struct {
	PreviousResourceID string
	RestartCount       int
}

// Paused is emitted after a worker was suspended.
type Paused struct{}

// Resumed is emitted after a suspended worker continued.
type Resumed struct{}

func (Created) Kind() Kind   { return KindCreated }
func (Started) Kind() Kind   { return KindStarted }
func (Message) Kind() Kind   { return KindMessage }
func (Output) Kind() Kind    { return KindOutput }
func (Error) Kind() Kind     { return KindError }
func (Stopped) Kind() Kind   { return KindStopped }
func (Restarted) Kind() Kind { return KindRestarted }
func (Paused) Kind() Kind    { return KindPaused }
func (Resumed) Kind() Kind   { return KindResumed }

// Event is a lifecycle notification about one worker.
// Event 是关于某个工作进程的生命周期通知。
type Event struct {
	ID      string
	Time    time.Time
	Worker  worker.Handle
	Payload Payload
}

// NewEvent builds an event for the given handle snapshot.
// NewEvent 为给定的句柄快照构建事件。
func NewEvent(h worker.Handle, p Payload) Event {
	return Event{
		ID:      uuid.NewString(),
		Time:    time.Now(),
		Worker:  h,
		Payload: p,
	}
}

// Kind returns the variant tag of the event.
func (e Event) Kind() Kind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

// WorkerID returns the id of the worker the event is about.
func (e Event) WorkerID() string {
	return e.Worker.ID
}

// Wire is the flattened, serializable shape of an event used by the HTTP
// stream, the Redis sink and the history store.
// Wire 是事件扁平化、可序列化的形式，供 HTTP 流、Redis 发布和历史存储使用。
type Wire struct {
	ID           string         `json:"id"`
	Kind         Kind           `json:"kind"`
	WorkerID     string         `json:"workerId"`
	WorkerKind   worker.Kind    `json:"workerKind"`
	State        worker.State   `json:"state"`
	RestartCount int            `json:"restartCount"`
	ResourceID   string         `json:"resourceId,omitempty"`
	Timestamp    int64          `json:"timestamp"`
	Detail       map[string]any `json:"detail,omitempty"`
}

// Wire flattens e.
// Wire 将 e 扁平化。
func (e Event) Wire() Wire {
	w := Wire{
		ID:           e.ID,
		Kind:         e.Kind(),
		WorkerID:     e.Worker.ID,
		WorkerKind:   e.Worker.Kind,
		State:        e.Worker.State,
		RestartCount: e.Worker.RestartCount,
		ResourceID:   e.Worker.ResourceID,
		Timestamp:    e.Time.UnixMilli(),
	}

	switch p := e.Payload.(type) {
	case Message:
		w.Detail = map[string]any{
			"type":      p.Envelope.Type,
			"data":      p.Envelope.Data,
			"timestamp": p.Envelope.Timestamp,
		}
	case Output:
		w.Detail = map[string]any{"stream": string(p.Stream), "line": p.Line}
	case Error:
		w.Detail = map[string]any{}
		if p.Err != nil {
			w.Detail["error"] = p.Err.Error()
		}
		if p.ExitCode != nil {
			w.Detail["exitCode"] = *p.ExitCode
		}
	case Stopped:
		w.Detail = map[string]any{"reason": string(p.Reason)}
	case Restarted:
		w.Detail = map[string]any{
			"previousResourceId": p.PreviousResourceID,
			"restartCount":       p.RestartCount,
		}
	}
	return w
}
