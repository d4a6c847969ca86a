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

// Package db opens the gorm connection used for the event history.
// db 包负责打开事件历史所用的 gorm 连接。
package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/seatunnel/workerhost/internal/config"
)

// DatabaseType 数据库类型常量
const (
	DatabaseTypeSQLite   = "sqlite"
	DatabaseTypeMySQL    = "mysql"
	DatabaseTypePostgres = "postgres"
)

// ErrUnsupportedType is returned for an unknown database.type
// ErrUnsupportedType 表示不支持的数据库类型
var ErrUnsupportedType = errors.New("unsupported database type")

// Open 根据配置打开数据库连接，支持 SQLite、MySQL、PostgreSQL，默认使用 SQLite。
// 数据库禁用时返回 nil, nil。
// Open connects to the configured database. It returns nil, nil when the
// database is disabled.
func Open(dbConfig config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if !dbConfig.Enabled {
		log.Info("[Database] 数据库已禁用，跳过初始化")
		return nil, nil
	}

	dbType := dbConfig.Type
	if dbType == "" {
		dbType = DatabaseTypeSQLite
	}

	var (
		dialector gorm.Dialector
		err       error
	)
	switch dbType {
	case DatabaseTypeSQLite:
		dialector, err = sqliteDialector(dbConfig.SQLitePath)
	case DatabaseTypeMySQL:
		dialector = mysqlDialector(dbConfig)
	case DatabaseTypePostgres:
		dialector = postgresDialector(dbConfig)
	default:
		return nil, fmt.Errorf("[Database] %w: %s，支持的类型: sqlite, mysql, postgres", ErrUnsupportedType, dbType)
	}
	if err != nil {
		return nil, fmt.Errorf("[Database] 初始化 %s 驱动失败: %w", dbType, err)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger(dbConfig.LogLevel, log),
	})
	if err != nil {
		return nil, fmt.Errorf("[Database] 连接 %s 数据库失败: %w", dbType, err)
	}

	// 注入 OpenTelemetry 追踪
	if err := gdb.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		log.Warn("[Database] 初始化追踪插件失败", zap.Error(err))
	}

	// 连接池仅对 MySQL 和 PostgreSQL 有效
	if dbType != DatabaseTypeSQLite {
		if err := configureConnectionPool(gdb, dbConfig); err != nil {
			return nil, fmt.Errorf("[Database] 配置连接池失败: %w", err)
		}
	}

	log.Info("[Database] 成功连接数据库", zap.String("type", dbType))
	return gdb, nil
}

func sqliteDialector(sqlitePath string) (gorm.Dialector, error) {
	if sqlitePath == "" {
		sqlitePath = config.DefaultSQLitePath
	}
	if sqlitePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(sqlitePath), 0o755); err != nil {
			return nil, fmt.Errorf("创建 SQLite 目录失败: %w", err)
		}
	}
	return sqlite.Open(sqlitePath), nil
}

func mysqlDialector(dbConfig config.DatabaseConfig) gorm.Dialector {
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		dbConfig.Username,
		dbConfig.Password,
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.Database,
	)
	return mysql.Open(dsn)
}

func postgresDialector(dbConfig config.DatabaseConfig) gorm.Dialector {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.Username,
		dbConfig.Password,
		dbConfig.Database,
	)
	return postgres.Open(dsn)
}

func configureConnectionPool(gdb *gorm.DB, dbConfig config.DatabaseConfig) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("获取底层数据库连接失败: %w", err)
	}
	if dbConfig.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConn)
	}
	if dbConfig.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(dbConfig.MaxOpenConn)
	}
	if dbConfig.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Second)
	}
	return nil
}

// gormLogger routes gorm's log output through zap
// gormLogger 将 gorm 日志输出接入 zap
func gormLogger(level string, log *zap.Logger) logger.Interface {
	var logLevel logger.LogLevel
	switch level {
	case "silent":
		logLevel = logger.Silent
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	default:
		logLevel = logger.Info
	}
	return logger.New(zap.NewStdLog(log.Named("gorm")), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logLevel,
		IgnoreRecordNotFoundError: true,
	})
}

// Ping checks the connection is alive
// Ping 检查连接是否可用
func Ping(ctx context.Context, gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func Close(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("获取底层数据库连接失败: %w", err)
	}
	return sqlDB.Close()
}
