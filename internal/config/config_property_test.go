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
	"fmt"
	"reflect"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/seatunnel/workerhost/internal/worker"
)

// Property: For any valid configuration, serializing to YAML and loading it
// back SHALL produce an equivalent configuration.
// 属性：对于任何有效配置，序列化为 YAML 再加载回来应得到等效配置。
func TestProperty_ConfigYAMLRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := generateValidConfig(t)
		if err := cfg.Validate(); err != nil {
			t.Fatalf("generator produced an invalid config: %v", err)
		}

		data, err := cfg.ToYAML()
		if err != nil {
			t.Fatalf("Failed to serialize config to YAML: %v", err)
		}
		parsed, err := LoadFromYAML(data)
		if err != nil {
			t.Fatalf("Failed to parse config from YAML: %v\nYAML content:\n%s", err, string(data))
		}

		if !reflect.DeepEqual(cfg.Supervisor, parsed.Supervisor) ||
			!reflect.DeepEqual(cfg.HTTP, parsed.HTTP) ||
			!reflect.DeepEqual(cfg.Log, parsed.Log) {
			t.Fatalf("Round-trip failed\nOriginal: %+v\nParsed: %+v\nYAML:\n%s", cfg, parsed, string(data))
		}
		if len(cfg.Workers) != len(parsed.Workers) {
			t.Fatalf("worker count %d != %d", len(cfg.Workers), len(parsed.Workers))
		}
		for i := range cfg.Workers {
			want, got := cfg.Workers[i], parsed.Workers[i]
			if want.ID != got.ID || want.Kind != got.Kind || want.EntryPoint != got.EntryPoint ||
				want.AutoRestart != got.AutoRestart || want.MaxRestarts != got.MaxRestarts ||
				want.TimeoutMs != got.TimeoutMs || want.Priority != got.Priority {
				t.Fatalf("worker %d differs\nOriginal: %+v\nParsed: %+v", i, want, got)
			}
		}
	})
}

// generateValidConfig generates a valid Config for property testing
// generateValidConfig 为属性测试生成有效的 Config
func generateValidConfig(t *rapid.T) *Config {
	cfg := Default()

	cfg.Supervisor.MaxConcurrentWorkers = rapid.IntRange(1, 64).Draw(t, "maxWorkers")
	cfg.Supervisor.AutoCleanup = rapid.Bool().Draw(t, "autoCleanup")
	cfg.Supervisor.CleanupDelay = time.Duration(rapid.IntRange(0, 60_000).Draw(t, "cleanupMs")) * time.Millisecond
	cfg.Supervisor.DrainInterval = time.Duration(rapid.IntRange(0, 5_000).Draw(t, "drainMs")) * time.Millisecond
	cfg.Supervisor.HistoryLimit = rapid.IntRange(1, 256).Draw(t, "historyLimit")

	cfg.HTTP.Addr = fmt.Sprintf(":%d", rapid.IntRange(1024, 65535).Draw(t, "port"))
	cfg.HTTP.Mode = rapid.SampledFrom([]string{"debug", "release", "test"}).Draw(t, "mode")
	cfg.HTTP.RateBurst = rapid.IntRange(0, 1000).Draw(t, "burst")

	cfg.Log.Level = rapid.SampledFrom([]string{"debug", "info", "warn", "error"}).Draw(t, "level")
	cfg.Log.Format = rapid.SampledFrom([]string{"console", "json"}).Draw(t, "format")
	cfg.Log.MaxSize = rapid.IntRange(1, 1000).Draw(t, "maxSize")

	n := rapid.IntRange(0, cfg.Supervisor.MaxConcurrentWorkers).Draw(t, "workers")
	if n > 4 {
		n = 4
	}
	cfg.Workers = nil
	for i := 0; i < n; i++ {
		cfg.Workers = append(cfg.Workers, worker.Config{
			ID:          fmt.Sprintf("w%d-%s", i, rapid.StringMatching(`[a-z][a-z0-9]{0,8}`).Draw(t, "id")),
			Kind:        rapid.SampledFrom([]worker.Kind{worker.KindNetwork, worker.KindDataProcessing, worker.KindCustom}).Draw(t, "kind"),
			EntryPoint:  "actor://" + rapid.SampledFrom([]string{"echo", "heartbeat"}).Draw(t, "actor"),
			Priority:    rapid.SampledFrom([]worker.Priority{"", worker.PriorityLow, worker.PriorityHigh}).Draw(t, "priority"),
			AutoRestart: rapid.Bool().Draw(t, "autoRestart"),
			MaxRestarts: rapid.IntRange(0, 10).Draw(t, "maxRestarts"),
			TimeoutMs:   int64(rapid.IntRange(0, 100_000).Draw(t, "timeoutMs")),
		})
	}
	return cfg
}
