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

// Package router 提供 HTTP 路由配置
// Package router provides HTTP routing configuration
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/seatunnel/workerhost/internal/apps/history"
	"github.com/seatunnel/workerhost/internal/apps/stream"
	workerapp "github.com/seatunnel/workerhost/internal/apps/worker"
	"github.com/seatunnel/workerhost/internal/config"
	"github.com/seatunnel/workerhost/internal/metrics"
)

// Deps collects what the HTTP surface needs. History, Hub and Metrics are
// optional; their routes are not mounted when nil.
// Deps 汇集 HTTP 层所需的依赖，History、Hub 与 Metrics 可为 nil，此时不注册对应路由。
type Deps struct {
	Config      config.HTTPConfig
	ServiceName string
	Workers     workerapp.Supervisor
	History     history.Reader
	Hub         *stream.Hub
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// New builds the gin engine.
// New 构建 gin 引擎。
func New(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Config.Mode != "" {
		gin.SetMode(d.Config.Mode)
	}

	r := gin.New()
	r.Use(recoveryMiddleware(d.Logger))

	// 补充中间件
	// Add middleware
	r.Use(otelgin.Middleware(d.ServiceName), loggerMiddleware(d.Logger))
	if d.Metrics != nil {
		r.Use(metricsMiddleware(d.Metrics))
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}
	if d.Config.RateLimit > 0 {
		r.Use(rateLimitMiddleware(newLimiterStore(d.Config.RateLimit, d.Config.RateBurst)))
	}

	apiGroup := r.Group(d.Config.APIPrefix)
	{
		// API V1
		apiV1Router := apiGroup.Group("/v1")
		{
			// Health
			apiV1Router.GET("/health", newHealthHandler(d.Workers).Health)

			// Workers
			workerapp.NewHandler(d.Workers).RegisterRoutes(apiV1Router)

			// Event history
			if d.History != nil {
				history.NewHandler(d.History).RegisterRoutes(apiV1Router)
			}

			// Live event stream
			if d.Hub != nil {
				stream.NewHandler(d.Hub).RegisterRoutes(apiV1Router)
			}
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error_msg": "route not found", "data": nil})
	})
	return r
}
