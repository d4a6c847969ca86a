/*
 * MIT License
 *
 * Copyright (c) 2025 linux.do
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package migrator creates and upgrades the host's tables.
// migrator 包负责创建和升级宿主所需的数据表。
package migrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/seatunnel/workerhost/internal/apps/history"
)

// ErrNoDatabase is returned when Migrate is called without a connection
var ErrNoDatabase = errors.New("migrator: database not initialized")

// Models lists every table the host owns
// Models 列出宿主拥有的所有数据表
func Models() []any {
	return []any{
		&history.EventRecord{}, // 工作进程事件表 / Worker event table
	}
}

// Migrate runs the auto migration for every model.
// Migrate 对所有模型执行自动迁移。
func Migrate(ctx context.Context, gdb *gorm.DB, log *zap.Logger) error {
	if gdb == nil {
		return ErrNoDatabase
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := gdb.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("[Database] auto migrate failed: %w", err)
	}
	log.Info("[Database] auto migrate success", zap.Int("tables", len(Models())))
	return nil
}
