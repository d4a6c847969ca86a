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

package history

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (*gin.Engine, *Repository) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, cleanup := setupTestDB(t)
	t.Cleanup(cleanup)

	repo := NewRepository(db)
	r := gin.New()
	NewHandler(repo).RegisterRoutes(r.Group("/api/v1"))
	return r, repo
}

func doGet(r *gin.Engine, url string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_ListEvents(t *testing.T) {
	r, repo := setupRouter(t)
	require.NoError(t, repo.CreateBatch(context.Background(), []*EventRecord{
		newRecord(1, "a", "created"),
		newRecord(2, "a", "started"),
		newRecord(3, "b", "created"),
	}))

	w := doGet(r, "/api/v1/events?worker_id=a&size=1")
	require.Equal(t, http.StatusOK, w.Code)

	var resp ListEventsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.ErrorMsg)
	require.NotNil(t, resp.Data)
	assert.Equal(t, int64(2), resp.Data.Total)
	require.Len(t, resp.Data.Events, 1)
	assert.Equal(t, "started", resp.Data.Events[0].Kind)
}

func TestHandler_ListEventsBadInput(t *testing.T) {
	r, _ := setupRouter(t)

	assert.Equal(t, http.StatusBadRequest, doGet(r, "/api/v1/events?size=1000").Code)
	assert.Equal(t, http.StatusBadRequest, doGet(r, "/api/v1/events?start_time=yesterday").Code)
}

func TestHandler_GetEventAndSummary(t *testing.T) {
	r, repo := setupRouter(t)
	require.NoError(t, repo.CreateBatch(context.Background(), []*EventRecord{
		newRecord(1, "a", "created"),
		newRecord(2, "a", "created"),
	}))

	w := doGet(r, "/api/v1/events/evt-a-1")
	require.Equal(t, http.StatusOK, w.Code)
	var got GetEventResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "a", got.Data.WorkerID)

	assert.Equal(t, http.StatusNotFound, doGet(r, "/api/v1/events/nope").Code)

	w = doGet(r, "/api/v1/events/summary?worker_id=a")
	require.Equal(t, http.StatusOK, w.Code)
	var summary SummaryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, int64(2), summary.Data["created"])
}
