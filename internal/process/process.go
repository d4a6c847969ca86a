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

// Package process runs workers as operating system subprocesses.
// process 包将工作进程作为操作系统子进程运行。
//
// This package provides:
// 此包提供：
// - Spawning in a dedicated process group / 在独立进程组中启动
// - Newline-delimited JSON messaging over stdin and an extra pipe / 基于标准输入和额外管道的换行分隔 JSON 消息
// - Graceful termination with SIGKILL escalation / 带 SIGKILL 升级的优雅终止
// - CPU and memory sampling / CPU 与内存采样
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/seatunnel/workerhost/internal/worker"
)

// Environment variables set on every child.
// 为每个子进程设置的环境变量。
const (
	EnvIPCFD      = "WORKERHOST_IPC_FD"
	EnvWorkerID   = "WORKERHOST_WORKER_ID"
	EnvWorkerKind = "WORKERHOST_WORKER_KIND"

	// ipcFD is the descriptor number of the first entry in ExtraFiles
	ipcFD = 3
)

// Default configuration values
// 默认配置值
const (
	// DefaultGracefulTimeout is how long Kill waits after SIGTERM before SIGKILL
	// DefaultGracefulTimeout 是 Kill 发送 SIGTERM 后等待发送 SIGKILL 的时长
	DefaultGracefulTimeout = 5 * time.Second

	// notificationBuffer is the capacity of a resource's notification channel
	notificationBuffer = 256
)

// Common errors for process management
// 进程管理的常见错误
var (
	// ErrStartFailed indicates the process failed to start
	// ErrStartFailed 表示进程启动失败
	ErrStartFailed = errors.New("process failed to start")

	// ErrEmptyEntryPoint indicates there is nothing to execute
	// ErrEmptyEntryPoint 表示没有可执行的入口
	ErrEmptyEntryPoint = errors.New("process: empty entry point")
)

// Spawner starts subprocess workers.
// Spawner 启动子进程工作者。
type Spawner struct {
	gracefulTimeout time.Duration
	baseEnv         []string
	logger          *zap.Logger
}

// Option configures a Spawner.
type Option func(*Spawner)

// WithGracefulTimeout sets the SIGTERM to SIGKILL delay.
// WithGracefulTimeout 设置 SIGTERM 到 SIGKILL 的延迟。
func WithGracefulTimeout(d time.Duration) Option {
	return func(s *Spawner) {
		if d > 0 {
			s.gracefulTimeout = d
		}
	}
}

// WithBaseEnv replaces the inherited host environment.
// WithBaseEnv 替换继承自宿主的环境变量。
func WithBaseEnv(env []string) Option {
	return func(s *Spawner) {
		s.baseEnv = append([]string(nil), env...)
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Spawner) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSpawner creates a subprocess spawner.
// NewSpawner 创建子进程启动器。
func NewSpawner(opts ...Option) *Spawner {
	s := &Spawner{
		gracefulTimeout: DefaultGracefulTimeout,
		baseEnv:         os.Environ(),
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("process")
	return s
}

// Spawn starts spec.EntryPoint. When spec.Data is set the child receives it
// as the first stdin envelope, of type worker.InitMessageType.
// Spawn 启动 spec.EntryPoint。设置 spec.Data 时，子进程会在标准输入上首先收到类型为 worker.InitMessageType 的消息。
func (s *Spawner) Spawn(ctx context.Context, spec worker.SpawnSpec) (worker.Resource, error) {
	if spec.EntryPoint == "" {
		return nil, ErrEmptyEntryPoint
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The child outlives ctx, so no CommandContext here.
	cmd := exec.Command(spec.EntryPoint, spec.Args...)
	cmd.Env = s.buildEnv(spec)
	setProcGroupAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin: %v", ErrStartFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout: %v", ErrStartFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr: %v", ErrStartFailed, err)
	}

	var ipcRead, ipcWrite *os.File
	if ipcSupported {
		ipcRead, ipcWrite, err = os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("%w: ipc pipe: %v", ErrStartFailed, err)
		}
		cmd.ExtraFiles = []*os.File{ipcWrite}
	}

	if err := cmd.Start(); err != nil {
		closeAll(ipcRead, ipcWrite)
		return nil, fmt.Errorf("%w: %v", ErrStartFailed, err)
	}
	// The child holds its own copy of the write end.
	closeAll(ipcWrite)

	p := &Process{
		workerID:        spec.WorkerID,
		cmd:             cmd,
		pid:             cmd.Process.Pid,
		stdin:           stdin,
		writer:          worker.NewEnvelopeWriter(stdin),
		notes:           make(chan worker.Notification, notificationBuffer),
		done:            make(chan struct{}),
		gracefulTimeout: s.gracefulTimeout,
		logger:          s.logger.With(zap.String("worker_id", spec.WorkerID), zap.Int("pid", cmd.Process.Pid)),
		started:         time.Now(),
	}
	p.run(stdout, stderr, ipcRead)

	if spec.Data != nil {
		if err := p.PostMessage(worker.NewEnvelope(worker.InitMessageType, spec.Data)); err != nil {
			p.logger.Warn("deliver init message failed", zap.Error(err))
		}
	}

	p.logger.Info("worker process started", zap.String("entry_point", spec.EntryPoint))
	return p, nil
}

func (s *Spawner) buildEnv(spec worker.SpawnSpec) []string {
	env := append([]string(nil), s.baseEnv...)
	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+spec.Env[k])
	}
	env = append(env,
		EnvWorkerID+"="+spec.WorkerID,
		EnvWorkerKind+"="+string(spec.Kind),
	)
	if ipcSupported {
		env = append(env, fmt.Sprintf("%s=%d", EnvIPCFD, ipcFD))
	}
	return env
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}

// Process is a running subprocess worker.
// Process 是一个运行中的子进程工作者。
type Process struct {
	workerID string
	cmd      *exec.Cmd
	pid      int
	started  time.Time

	stdin  io.WriteCloser
	writer *worker.EnvelopeWriter

	notes chan worker.Notification
	done  chan struct{}

	exited   atomic.Bool
	killOnce sync.Once

	gracefulTimeout time.Duration
	logger          *zap.Logger
}

// ID returns the resource id, derived from the pid.
func (p *Process) ID() string {
	return fmt.Sprintf("pid-%d-%d", p.pid, p.started.UnixNano())
}

// PID returns the operating system process id.
func (p *Process) PID() int {
	return p.pid
}

// Notifications returns the ordered notification stream.
func (p *Process) Notifications() <-chan worker.Notification {
	return p.notes
}

// Done is closed once the process has been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// run starts the readers and the reaper. Readers finish when the child
// closes its ends of the pipes; the exit notification follows them.
func (p *Process) run(stdout, stderr io.Reader, ipc *os.File) {
	var readers sync.WaitGroup
	readers.Add(2)
	go p.readLines(&readers, stdout, worker.NotifyStdout)
	go p.readLines(&readers, stderr, worker.NotifyStderr)
	if ipc != nil {
		readers.Add(1)
		go p.readMessages(&readers, ipc)
	}

	go func() {
		readers.Wait()
		err := p.cmd.Wait()
		p.exited.Store(true)
		closeAll(ipc)
		_ = p.stdin.Close()

		n := worker.Notification{Kind: worker.NotifyExit}
		if err != nil {
			n.Err = err
			n.ExitCode = -1
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				n.ExitCode = exitErr.ExitCode()
			}
		}
		p.logger.Info("worker process exited", zap.Int("exit_code", n.ExitCode), zap.Error(err))

		p.notes <- n
		close(p.notes)
		close(p.done)
	}()
}

func (p *Process) readLines(wg *sync.WaitGroup, r io.Reader, kind worker.NotificationKind) {
	defer wg.Done()
	sc := worker.NewLineScanner(r)
	for sc.Scan() {
		p.notes <- worker.Notification{Kind: kind, Line: sc.Text()}
	}
	if err := sc.Err(); err != nil {
		p.notes <- worker.Notification{Kind: worker.NotifyError, Err: fmt.Errorf("read %s: %w", kind, err)}
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}
}

func (p *Process) readMessages(wg *sync.WaitGroup, r io.Reader) {
	defer wg.Done()
	sc := worker.NewLineScanner(r)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		env, err := worker.DecodeEnvelope(line)
		if err != nil {
			p.notes <- worker.Notification{Kind: worker.NotifyError, Err: err}
			continue
		}
		p.notes <- worker.Notification{Kind: worker.NotifyMessage, Envelope: env}
	}
	if err := sc.Err(); err != nil {
		p.notes <- worker.Notification{Kind: worker.NotifyError, Err: fmt.Errorf("read messages: %w", err)}
		_, _ = io.Copy(io.Discard, r)
	}
}

// PostMessage writes env as one line on the child's stdin.
// PostMessage 将 env 作为一行写入子进程的标准输入。
func (p *Process) PostMessage(env worker.Envelope) error {
	if p.exited.Load() {
		return worker.ErrResourceClosed
	}
	if err := p.writer.Write(env); err != nil {
		if p.exited.Load() || errors.Is(err, os.ErrClosed) {
			return worker.ErrResourceClosed
		}
		return fmt.Errorf("write to worker %s: %w", p.workerID, err)
	}
	return nil
}

// Kill sends SIGTERM to the process group and SIGKILL if it is still alive
// after the graceful timeout. It returns without waiting.
// Kill 向进程组发送 SIGTERM，若优雅超时后仍存活则发送 SIGKILL，不等待退出。
func (p *Process) Kill() error {
	if p.exited.Load() {
		return nil
	}
	var err error
	p.killOnce.Do(func() {
		_ = p.stdin.Close()
		if err = terminate(p.pid); err != nil {
			if errors.Is(err, os.ErrProcessDone) {
				err = nil
				return
			}
			p.logger.Warn("send SIGTERM failed, killing", zap.Error(err))
			err = forceKill(p.pid)
			return
		}
		go func() {
			timer := time.NewTimer(p.gracefulTimeout)
			defer timer.Stop()
			select {
			case <-p.done:
			case <-timer.C:
				p.logger.Warn("worker ignored SIGTERM, sending SIGKILL",
					zap.Duration("graceful_timeout", p.gracefulTimeout))
				if err := forceKill(p.pid); err != nil && !errors.Is(err, os.ErrProcessDone) {
					p.logger.Error("send SIGKILL failed", zap.Error(err))
				}
			}
		}()
	})
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Pause stops the process group with SIGSTOP.
// Pause 使用 SIGSTOP 暂停进程组。
func (p *Process) Pause() error {
	if p.exited.Load() {
		return worker.ErrResourceClosed
	}
	return suspend(p.pid)
}

// Resume continues the process group with SIGCONT.
// Resume 使用 SIGCONT 恢复进程组。
func (p *Process) Resume() error {
	if p.exited.Load() {
		return worker.ErrResourceClosed
	}
	return resume(p.pid)
}
