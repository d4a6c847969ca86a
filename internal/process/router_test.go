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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatunnel/workerhost/internal/worker"
)

type namedSpawner struct {
	name string
	got  []string
}

func (s *namedSpawner) Spawn(_ context.Context, spec worker.SpawnSpec) (worker.Resource, error) {
	s.got = append(s.got, spec.EntryPoint)
	return nil, nil
}

func TestSplitScheme(t *testing.T) {
	tests := []struct {
		in     string
		scheme string
		rest   string
		ok     bool
	}{
		{"actor://echo", "actor", "echo", true},
		{"ACTOR://Echo", "actor", "Echo", true},
		{"/usr/bin/worker", "", "/usr/bin/worker", false},
		{"://x", "", "://x", false},
		{"worker", "", "worker", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			scheme, rest, ok := SplitScheme(tt.in)
			assert.Equal(t, tt.scheme, scheme)
			assert.Equal(t, tt.rest, rest)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestRouter_Dispatch(t *testing.T) {
	fallback := &namedSpawner{name: "os"}
	actors := &namedSpawner{name: "actor"}
	r := NewRouter(fallback)
	r.Handle("actor", actors)

	for _, ep := range []string{"actor://echo", "/bin/true", "http://x"} {
		_, err := r.Spawn(context.Background(), worker.SpawnSpec{EntryPoint: ep})
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"actor://echo"}, actors.got)
	assert.Equal(t, []string{"/bin/true", "http://x"}, fallback.got)
}

func TestRouter_NoFallback(t *testing.T) {
	r := NewRouter(nil)
	_, err := r.Spawn(context.Background(), worker.SpawnSpec{EntryPoint: "/bin/true"})
	assert.ErrorIs(t, err, worker.ErrUnknownEntryPoint)
}
