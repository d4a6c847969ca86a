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

// Package logger builds the host's zap logger and exposes span-aware
// helpers for request handlers.
// logger 包构建宿主的 zap 日志器，并为请求处理器提供带追踪上下文的辅助函数。
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/seatunnel/workerhost/internal/config"
)

var global atomic.Pointer[otelzap.Logger]

func init() {
	global.Store(otelzap.New(zap.NewNop()))
}

// New builds a zap logger from the log section. File output rotates through
// lumberjack.
// New 根据日志配置构建 zap 日志器，文件输出通过 lumberjack 轮转。
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	var writers []io.Writer
	switch cfg.Output {
	case "file":
		writers = append(writers, rotating(cfg))
	case "both":
		writers = append(writers, os.Stdout, rotating(cfg))
	default:
		writers = append(writers, os.Stdout)
	}
	sinks := make([]zapcore.WriteSyncer, 0, len(writers))
	for _, w := range writers {
		sinks = append(sinks, zapcore.AddSync(w))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func rotating(cfg config.LogConfig) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}
}

// SetGlobal installs l as the logger behind the package helpers and zap's
// own globals. It returns a func that restores the previous loggers.
// SetGlobal 将 l 设置为包级辅助函数与 zap 全局日志器，返回恢复之前状态的函数。
func SetGlobal(l *zap.Logger) func() {
	prev := global.Swap(otelzap.New(l, otelzap.WithMinLevel(zapcore.DebugLevel)))
	undoZap := zap.ReplaceGlobals(l)
	return func() {
		undoZap()
		global.Store(prev)
	}
}

// Ctx returns a logger that attaches the span in ctx to every entry.
// Ctx 返回一个将 ctx 中的 span 附加到每条日志的日志器。
func Ctx(ctx context.Context) otelzap.LoggerWithCtx {
	return global.Load().Ctx(ctx)
}

// DebugF logs a formatted debug message
// DebugF 记录格式化的调试日志
func DebugF(ctx context.Context, format string, args ...any) {
	global.Load().Sugar().Ctx(ctx).Debugf(format, args...)
}

// InfoF logs a formatted info message
// InfoF 记录格式化的信息日志
func InfoF(ctx context.Context, format string, args ...any) {
	global.Load().Sugar().Ctx(ctx).Infof(format, args...)
}

// WarnF logs a formatted warning
// WarnF 记录格式化的警告日志
func WarnF(ctx context.Context, format string, args ...any) {
	global.Load().Sugar().Ctx(ctx).Warnf(format, args...)
}

// ErrorF logs a formatted error
// ErrorF 记录格式化的错误日志
func ErrorF(ctx context.Context, format string, args ...any) {
	global.Load().Sugar().Ctx(ctx).Errorf(format, args...)
}
