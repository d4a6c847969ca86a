//go:build !windows
// +build !windows

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
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// ipcSupported reports whether the child gets an extra pipe for messages.
const ipcSupported = true

// setProcGroupAttr puts the child in its own process group so signals reach
// everything it forks, and host signals do not reach it.
// setProcGroupAttr 将子进程放入独立的进程组，使信号能到达其派生的所有进程，且宿主收到的信号不会传递给它。
func setProcGroupAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true, // Create new process group / 创建新进程组
	}
}

// signalGroup delivers sig to the whole process group led by pid.
// signalGroup 向以 pid 为首的整个进程组发送信号。
func signalGroup(pid int, sig syscall.Signal) error {
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}

func terminate(pid int) error {
	if err := signalGroup(pid, syscall.SIGTERM); err != nil {
		return err
	}
	// A stopped group never handles SIGTERM.
	return signalGroup(pid, syscall.SIGCONT)
}

func forceKill(pid int) error {
	return signalGroup(pid, syscall.SIGKILL)
}

func suspend(pid int) error {
	return signalGroup(pid, syscall.SIGSTOP)
}

func resume(pid int) error {
	return signalGroup(pid, syscall.SIGCONT)
}
