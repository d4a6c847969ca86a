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

// Package main is the entry point for the worker host service.
// main 包是工作进程宿主服务的入口点。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seatunnel/workerhost/internal/app"
	"github.com/seatunnel/workerhost/internal/config"
	"github.com/seatunnel/workerhost/internal/logger"
	"github.com/seatunnel/workerhost/internal/otel_trace"
)

// Version information, set at build time
// 版本信息，在构建时设置
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// flags holds command line values
// flags 保存命令行参数
type flags struct {
	configFile string
	logLevel   string
	httpAddr   string
	maxWorkers int
}

// cmdArgs maps explicitly set flags to config keys, so they win over env and file.
// cmdArgs 将显式设置的参数映射到配置键，使其优先于环境变量和配置文件。
func (f *flags) cmdArgs(cmd *cobra.Command) map[string]any {
	args := make(map[string]any)
	if cmd.Flags().Changed("log-level") {
		args["log.level"] = f.logLevel
	}
	if cmd.Flags().Changed("http-addr") {
		args["http.addr"] = f.httpAddr
	}
	if cmd.Flags().Changed("max-workers") {
		args["supervisor.max_concurrent_workers"] = f.maxWorkers
	}
	return args
}

func (f *flags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadWithPriority(f.configFile, f.cmdArgs(cmd))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	rootCmd := &cobra.Command{
		Use:   "workerhost",
		Short: "Worker host - supervises subprocess and in-process workers",
		Long: `Worker host supervises a bounded set of workers.
工作进程宿主监管一组有上限的工作进程。

- Creates, stops, pauses and restarts workers / 创建、停止、暂停和重启工作进程
- Restarts crashed workers within a budget / 在预算内自动重启崩溃的工作进程
- Publishes lifecycle events over HTTP, WebSocket and Redis / 通过 HTTP、WebSocket 和 Redis 发布生命周期事件`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, f)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&f.configFile, "config", "c", "",
		fmt.Sprintf("config file path (default: $%s or %s)", config.EnvConfigPath, config.DefaultConfigPath))
	rootCmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&f.httpAddr, "http-addr", "", "HTTP listen address override")
	rootCmd.PersistentFlags().IntVar(&f.maxWorkers, "max-workers", 0, "maximum concurrent workers override")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the worker host / 运行工作进程宿主",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, f)
		},
	}

	rootCmd.AddCommand(serveCmd, newVersionCmd(), newConfigCmd(f))
	return rootCmd
}

// versionCmd shows version information
// versionCmd 显示版本信息
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information / 打印版本信息",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "workerhost\n")
			fmt.Fprintf(out, "  Version:    %s\n", Version)
			fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
			fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Go Version: %s\n", runtime.Version())
			fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newConfigCmd(f *flags) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and generate configuration / 查看与生成配置",
	}

	printCmd := &cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration as YAML / 以 YAML 打印生效配置",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			data, err := cfg.ToYAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration / 校验配置",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := f.load(cmd); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a default configuration file / 写入默认配置文件",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}
			if err := config.Default().WriteFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	configCmd.AddCommand(printCmd, validateCmd, initCmd)
	return configCmd
}

// runServe is the main entry point for the host service
// runServe 是宿主服务的主入口点
func runServe(cmd *cobra.Command, f *flags) error {
	cfg, err := f.load(cmd)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	restore := logger.SetGlobal(log)
	defer restore()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := otel_trace.Init(ctx, cfg.Telemetry, log); err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel_trace.Shutdown(shutdownCtx); err != nil {
			log.Warn("failed to shut down tracing", zap.Error(err))
		}
	}()

	log.Info("starting worker host",
		zap.String("version", Version),
		zap.String("commit", GitCommit),
		zap.String("config", cfg.String()))

	host, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := host.Run(ctx); err != nil {
		return err
	}
	log.Info("worker host stopped")
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
