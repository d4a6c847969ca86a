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

package migrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatunnel/workerhost/internal/apps/history"
	"github.com/seatunnel/workerhost/internal/config"
	"github.com/seatunnel/workerhost/internal/db"
)

func TestMigrate(t *testing.T) {
	gdb, err := db.Open(config.DatabaseConfig{
		Enabled:    true,
		Type:       db.DatabaseTypeSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "migrate.db"),
		LogLevel:   "silent",
	}, nil)
	require.NoError(t, err)
	defer db.Close(gdb)

	require.NoError(t, Migrate(context.Background(), gdb, nil))
	assert.True(t, gdb.Migrator().HasTable(&history.EventRecord{}))

	// Running twice is harmless
	require.NoError(t, Migrate(context.Background(), gdb, nil))
}

func TestMigrate_NoDatabase(t *testing.T) {
	assert.ErrorIs(t, Migrate(context.Background(), nil, nil), ErrNoDatabase)
}
