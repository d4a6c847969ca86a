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
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/goccy/go-json"
)

// InitMessageType is the type of the first envelope a worker receives when
// its config carries data.
// InitMessageType 是配置携带数据时工作者收到的第一条消息的类型。
const InitMessageType = "init"

// MaxLineBytes bounds one newline-delimited envelope or output line.
// MaxLineBytes 限制单条换行分隔消息或输出行的大小。
const MaxLineBytes = 1 << 20

// ErrMalformedEnvelope indicates a line that is not a valid envelope
// ErrMalformedEnvelope 表示该行不是合法的消息信封
var ErrMalformedEnvelope = errors.New("worker: malformed envelope")

// EncodeEnvelope renders env as one JSON line terminated by '\n'.
// EncodeEnvelope 将 env 编码为以 '\n' 结尾的一行 JSON。
func EncodeEnvelope(env Envelope) ([]byte, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope %q: %w", env.Type, err)
	}
	return append(b, '\n'), nil
}

// DecodeEnvelope parses one line produced by EncodeEnvelope.
// DecodeEnvelope 解析一行由 EncodeEnvelope 生成的数据。
func DecodeEnvelope(line []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}
	return env, nil
}

// Detach round-trips env through the wire codec so the copy shares no
// memory with the caller, the same shape a subprocess would observe.
// Detach 通过编解码往返复制 env，使副本与调用方不共享内存，形态与子进程观察到的一致。
func Detach(env Envelope) (Envelope, error) {
	b, err := EncodeEnvelope(env)
	if err != nil {
		return Envelope{}, err
	}
	return DecodeEnvelope(b)
}

// EnvelopeWriter writes newline-delimited envelopes. It is safe for
// concurrent use.
// EnvelopeWriter 写入换行分隔的消息信封，可并发使用。
type EnvelopeWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEnvelopeWriter wraps w.
func NewEnvelopeWriter(w io.Writer) *EnvelopeWriter {
	return &EnvelopeWriter{w: w}
}

// Write encodes env and writes it as a single line.
func (ew *EnvelopeWriter) Write(env Envelope) error {
	b, err := EncodeEnvelope(env)
	if err != nil {
		return err
	}
	ew.mu.Lock()
	defer ew.mu.Unlock()
	_, err = ew.w.Write(b)
	return err
}

// NewLineScanner returns a scanner splitting r into lines of at most
// MaxLineBytes.
// NewLineScanner 返回按行切分 r 的扫描器，单行最长 MaxLineBytes。
func NewLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
	return sc
}
