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
	"time"

	"github.com/seatunnel/workerhost/internal/worker"
)

// Message types understood by the builtin actors.
const (
	MessageStop      = "stop"
	MessageEcho      = "echo"
	MessageHeartbeat = "heartbeat"
)

// ErrCrash is returned by the crash actor.
var ErrCrash = errors.New("actor: crash requested")

// Echo replies to every envelope with an echo envelope carrying the same
// data. A stop envelope ends it cleanly.
// Echo 对每条消息回复携带相同数据的 echo 消息，收到 stop 消息时正常退出。
func Echo(ctx context.Context, mb *Mailbox) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-mb.Inbox():
			if env.Type == MessageStop {
				return nil
			}
			if err := mb.Post(worker.Envelope{Type: MessageEcho, Data: env.Data}); err != nil {
				return err
			}
		}
	}
}

// Heartbeat posts a heartbeat envelope every interval. The interval is the
// first argument as a Go duration, one second by default.
// Heartbeat 每隔一段时间发送心跳消息，间隔取第一个参数（Go 时长格式），默认一秒。
func Heartbeat(ctx context.Context, mb *Mailbox) error {
	interval := time.Second
	if args := mb.Args(); len(args) > 0 {
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return err
		}
		interval = d
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var beats int
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-mb.Inbox():
			if env.Type == MessageStop {
				return nil
			}
		case <-ticker.C:
			beats++
			if err := mb.Post(worker.Envelope{Type: MessageHeartbeat, Data: beats}); err != nil {
				return err
			}
		}
	}
}

// Crash fails right away. It exists to exercise restart handling.
func Crash(ctx context.Context, mb *Mailbox) error {
	_ = mb.Errorln("crashing on request")
	return ErrCrash
}

// RegisterBuiltins adds echo, heartbeat and crash to r.
// RegisterBuiltins 向 r 注册 echo、heartbeat 与 crash。
func RegisterBuiltins(r *Registry) error {
	for name, fn := range map[string]Func{
		"echo":      Echo,
		"heartbeat": Heartbeat,
		"crash":     Crash,
	} {
		if err := r.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}
