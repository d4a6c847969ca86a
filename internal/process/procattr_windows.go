//go:build windows
// +build windows

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
	"os"
	"os/exec"

	"github.com/seatunnel/workerhost/internal/worker"
)

// Extra files are not inherited on Windows, children only read stdin.
// Windows 上不支持继承额外文件，子进程只能读取标准输入。
const ipcSupported = false

func setProcGroupAttr(cmd *exec.Cmd) {}

// On Windows, we can only kill the process
// 在 Windows 上，我们只能终止进程
func terminate(pid int) error {
	return forceKill(pid)
}

func forceKill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func suspend(pid int) error {
	return worker.ErrNotPausable
}

func resume(pid int) error {
	return worker.ErrNotPausable
}
