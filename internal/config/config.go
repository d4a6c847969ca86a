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

// Package config provides configuration management for the worker host.
// config 包提供工作进程宿主服务的配置管理功能。
//
// Configuration loading priority (highest to lowest):
// 配置加载优先级（从高到低）：
// 1. Command line arguments / 命令行参数
// 2. Environment variables (WORKERHOST_*) / 环境变量（WORKERHOST_*）
// 3. Configuration file / 配置文件
// 4. Default values / 默认值
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/seatunnel/workerhost/internal/worker"
)

// Default configuration values
// 默认配置值
const (
	DefaultConfigPath    = "/etc/workerhost/config.yaml"
	EnvConfigPath        = "WORKERHOST_CONFIG_PATH"
	EnvPrefix            = "WORKERHOST"
	DefaultHTTPAddr      = ":8080"
	DefaultGRPCAddr      = ":9090"
	DefaultAPIPrefix     = "/api"
	DefaultLogLevel      = "info"
	DefaultLogFile       = "/var/log/workerhost/workerhost.log"
	DefaultLogMaxSize    = 100 // MB
	DefaultLogMaxBackups = 3
	DefaultLogMaxAge     = 7 // days
	DefaultSQLitePath    = "./data/workerhost.db"
	DefaultRedisChannel  = "workerhost:events"
	DefaultServiceName   = "workerhost"
)

// ErrInvalidConfig wraps every validation failure
// ErrInvalidConfig 包装所有校验失败
var ErrInvalidConfig = errors.New("invalid config")

// Load loads configuration from file and environment variables. A missing
// file is not an error, defaults apply.
// Load 从文件和环境变量加载配置，文件不存在时使用默认值。
func Load(configPath string) (*Config, error) {
	return LoadWithPriority(configPath, nil)
}

// LoadWithPriority loads configuration with explicit priority handling
// LoadWithPriority 使用显式优先级处理加载配置
// Priority: cmdArgs > envVars > configFile > defaults
// 优先级：命令行参数 > 环境变量 > 配置文件 > 默认值
func LoadWithPriority(configPath string, cmdArgs map[string]any) (*Config, error) {
	v := newViper()

	v.SetConfigFile(ResolvePath(configPath))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// Only a file that exists but cannot be read is fatal
			// 仅当文件存在但无法读取时才报错
			if _, statErr := os.Stat(v.ConfigFileUsed()); statErr == nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Apply command line arguments (highest priority)
	// 应用命令行参数（最高优先级）
	for key, value := range cmdArgs {
		v.Set(key, value)
	}
	return decode(v)
}

// LoadFromYAML loads configuration from YAML bytes
// LoadFromYAML 从 YAML 字节加载配置
func LoadFromYAML(data []byte) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return decode(v)
}

// ResolvePath picks the config file: explicit path, then
// WORKERHOST_CONFIG_PATH, then DefaultConfigPath.
// ResolvePath 选择配置文件：显式路径、WORKERHOST_CONFIG_PATH、DefaultConfigPath 依次生效。
func ResolvePath(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath
	}
	return DefaultConfigPath
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values
// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// Supervisor defaults / 监督器默认值
	v.SetDefault("supervisor.max_concurrent_workers", 10)
	v.SetDefault("supervisor.auto_cleanup", true)
	v.SetDefault("supervisor.cleanup_delay", 5*time.Second)
	v.SetDefault("supervisor.drain_interval", time.Second)
	v.SetDefault("supervisor.history_limit", 32)
	v.SetDefault("supervisor.graceful_timeout", 5*time.Second)

	// HTTP defaults / HTTP 默认值
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", DefaultHTTPAddr)
	v.SetDefault("http.api_prefix", DefaultAPIPrefix)
	v.SetDefault("http.mode", "release")
	v.SetDefault("http.rate_limit", 50.0)
	v.SetDefault("http.rate_burst", 100)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	// gRPC defaults / gRPC 默认值
	v.SetDefault("grpc.enabled", false)
	v.SetDefault("grpc.addr", DefaultGRPCAddr)

	// Log defaults / 日志默认值
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file_path", DefaultLogFile)
	v.SetDefault("log.max_size", DefaultLogMaxSize)
	v.SetDefault("log.max_backups", DefaultLogMaxBackups)
	v.SetDefault("log.max_age", DefaultLogMaxAge)
	v.SetDefault("log.compress", false)

	// Database defaults / 数据库默认值
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.sqlite_path", DefaultSQLitePath)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.history_batch_size", 100)
	v.SetDefault("database.history_flush_interval", time.Second)

	// Redis defaults / Redis 默认值
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)
	v.SetDefault("redis.channel", DefaultRedisChannel)

	// Telemetry defaults / 遥测默认值
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", DefaultServiceName)
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.usage_interval", 15*time.Second)
}

// Default returns the configuration produced by defaults alone.
// Default 返回仅由默认值构成的配置。
func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		// Defaults are static, a decode failure is a programming error.
		panic(err)
	}
	return cfg
}

// Validate validates the configuration
// Validate 验证配置
func (c *Config) Validate() error {
	if err := worker.Validator().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Log.Output != "stdout" && c.Log.FilePath == "" {
		return fmt.Errorf("%w: log.file_path is required when log.output is %s", ErrInvalidConfig, c.Log.Output)
	}
	if c.Database.Enabled && c.Database.Type != "sqlite" && c.Database.Host == "" {
		return fmt.Errorf("%w: database.host is required for %s", ErrInvalidConfig, c.Database.Type)
	}

	seen := make(map[string]bool, len(c.Workers))
	for i, w := range c.Workers {
		if w.ID == "" {
			continue
		}
		if seen[w.ID] {
			return fmt.Errorf("%w: workers[%d]: duplicate id %q", ErrInvalidConfig, i, w.ID)
		}
		seen[w.ID] = true
	}
	if len(c.Workers) > c.Supervisor.MaxConcurrentWorkers {
		return fmt.Errorf("%w: %d boot workers exceed supervisor.max_concurrent_workers %d",
			ErrInvalidConfig, len(c.Workers), c.Supervisor.MaxConcurrentWorkers)
	}
	return nil
}

// ToYAML serializes the configuration to YAML format
// ToYAML 将配置序列化为 YAML 格式
func (c *Config) ToYAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile atomically writes the configuration as YAML to path.
// WriteFile 以原子方式将配置写入 path。
func (c *Config) WriteFile(path string) error {
	data, err := c.ToYAML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// String returns a string representation of the config (for debugging)
// String 返回配置的字符串表示（用于调试）
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Supervisor.MaxConcurrentWorkers: %d, HTTP.Addr: %s, GRPC.Enabled: %t, Log.Level: %s, Database.Enabled: %t, Redis.Enabled: %t, Workers: %d}",
		c.Supervisor.MaxConcurrentWorkers,
		c.HTTP.Addr,
		c.GRPC.Enabled,
		c.Log.Level,
		c.Database.Enabled,
		c.Redis.Enabled,
		len(c.Workers),
	)
}
