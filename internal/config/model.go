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

package config

import (
	"time"

	"github.com/seatunnel/workerhost/internal/worker"
)

// Config represents the host configuration
// Config 表示宿主服务配置
type Config struct {
	// Supervisor configuration / 监督器配置
	Supervisor SupervisorConfig `mapstructure:"supervisor" yaml:"supervisor"`

	// HTTP control plane configuration / HTTP 控制面配置
	HTTP HTTPConfig `mapstructure:"http" yaml:"http"`

	// gRPC health service configuration / gRPC 健康检查服务配置
	GRPC GRPCConfig `mapstructure:"grpc" yaml:"grpc"`

	// Log configuration / 日志配置
	Log LogConfig `mapstructure:"log" yaml:"log"`

	// Database configuration for event history / 事件历史数据库配置
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`

	// Redis configuration for event fan-out / 事件扇出的 Redis 配置
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`

	// Telemetry configuration / 遥测配置
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Workers started at boot / 启动时创建的工作进程
	Workers []worker.Config `mapstructure:"workers" yaml:"workers" validate:"dive"`
}

// SupervisorConfig contains supervisor settings
// SupervisorConfig 包含监督器设置
type SupervisorConfig struct {
	MaxConcurrentWorkers int           `mapstructure:"max_concurrent_workers" yaml:"max_concurrent_workers" validate:"min=1"`
	AutoCleanup          bool          `mapstructure:"auto_cleanup" yaml:"auto_cleanup"`
	CleanupDelay         time.Duration `mapstructure:"cleanup_delay" yaml:"cleanup_delay" validate:"min=0"`
	DrainInterval        time.Duration `mapstructure:"drain_interval" yaml:"drain_interval" validate:"min=0"`
	HistoryLimit         int           `mapstructure:"history_limit" yaml:"history_limit" validate:"min=1"`

	// GracefulTimeout is the SIGTERM to SIGKILL delay for subprocess workers
	// GracefulTimeout 是子进程工作者从 SIGTERM 到 SIGKILL 的延迟
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout" yaml:"graceful_timeout" validate:"min=0"`
}

// HTTPConfig contains HTTP server settings
// HTTPConfig 包含 HTTP 服务设置
type HTTPConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr      string `mapstructure:"addr" yaml:"addr" validate:"required_if=Enabled true"`
	APIPrefix string `mapstructure:"api_prefix" yaml:"api_prefix" validate:"omitempty,startswith=/"`
	Mode      string `mapstructure:"mode" yaml:"mode" validate:"oneof=debug release test"`

	// RateLimit is the sustained requests per second allowed per client IP, 0 disables it
	// RateLimit 是每个客户端 IP 允许的持续每秒请求数，0 表示禁用
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit" validate:"min=0"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst" validate:"min=0"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// GRPCConfig contains gRPC server settings
// GRPCConfig 包含 gRPC 服务设置
type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr" validate:"required_if=Enabled true"`

	// TLS is enabled when both CertFile and KeyFile are set, CAFile turns on mutual TLS
	// 同时设置 CertFile 与 KeyFile 时启用 TLS，设置 CAFile 时启用双向 TLS
	CertFile string `mapstructure:"cert_file" yaml:"cert_file" validate:"required_with=KeyFile"`
	KeyFile  string `mapstructure:"key_file" yaml:"key_file" validate:"required_with=CertFile"`
	CAFile   string `mapstructure:"ca_file" yaml:"ca_file"`
}

// LogConfig contains logging settings
// LogConfig 包含日志设置
type LogConfig struct {
	// Level is the log level (debug, info, warn, error)
	// Level 是日志级别（debug, info, warn, error）
	Level string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`

	// Format is console or json / Format 为 console 或 json
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=console json"`

	// Output is stdout, file or both / Output 为 stdout、file 或 both
	Output string `mapstructure:"output" yaml:"output" validate:"oneof=stdout file both"`

	FilePath   string `mapstructure:"file_path" yaml:"file_path"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// DatabaseConfig contains event history storage settings
// DatabaseConfig 包含事件历史存储设置
type DatabaseConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	Type            string `mapstructure:"type" yaml:"type" validate:"oneof=sqlite mysql postgres"` // sqlite, mysql, postgres
	SQLitePath      string `mapstructure:"sqlite_path" yaml:"sqlite_path"`                        // SQLite 文件路径
	Host            string `mapstructure:"host" yaml:"host"`
	Port            int    `mapstructure:"port" yaml:"port"`
	Username        string `mapstructure:"username" yaml:"username"`
	Password        string `mapstructure:"password" yaml:"password"`
	Database        string `mapstructure:"database" yaml:"database"`
	MaxIdleConn     int    `mapstructure:"max_idle_conn" yaml:"max_idle_conn"`
	MaxOpenConn     int    `mapstructure:"max_open_conn" yaml:"max_open_conn"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level" yaml:"log_level"`

	// HistoryBatchSize and HistoryFlushInterval tune the event recorder
	// HistoryBatchSize 与 HistoryFlushInterval 调整事件记录器的批量行为
	HistoryBatchSize     int           `mapstructure:"history_batch_size" yaml:"history_batch_size" validate:"min=1"`
	HistoryFlushInterval time.Duration `mapstructure:"history_flush_interval" yaml:"history_flush_interval"`
}

// RedisConfig contains event fan-out settings
// RedisConfig 包含事件扇出设置
type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
	Host         string `mapstructure:"host" yaml:"host" validate:"required_if=Enabled true"`
	Port         int    `mapstructure:"port" yaml:"port"`
	Username     string `mapstructure:"username" yaml:"username"`
	Password     string `mapstructure:"password" yaml:"password"`
	DB           int    `mapstructure:"db" yaml:"db"`
	PoolSize     int    `mapstructure:"pool_size" yaml:"pool_size"`
	MinIdleConn  int    `mapstructure:"min_idle_conn" yaml:"min_idle_conn"`
	DialTimeout  int    `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  int    `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout" yaml:"write_timeout"`

	// Channel is the pub/sub channel events are published on
	// Channel 是发布事件的 pub/sub 频道
	Channel string `mapstructure:"channel" yaml:"channel"`
}

// TelemetryConfig contains tracing and metrics settings
// TelemetryConfig 包含追踪与指标设置
type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled" yaml:"enabled"`
	ServiceName  string  `mapstructure:"service_name" yaml:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint" validate:"required_if=Enabled true"`
	Insecure     bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio" yaml:"sample_ratio" validate:"min=0,max=1"`

	// UsageInterval is how often subprocess CPU and memory are sampled, 0 disables it
	// UsageInterval 是子进程 CPU 与内存的采样间隔，0 表示禁用
	UsageInterval time.Duration `mapstructure:"usage_interval" yaml:"usage_interval" validate:"min=0"`
}
