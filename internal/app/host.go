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

// Package app wires the worker host together and runs it under a suture tree.
// app 包组装工作进程宿主的各个组件，并在 suture 监管树下运行。
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/seatunnel/workerhost/internal/actor"
	"github.com/seatunnel/workerhost/internal/apps/history"
	"github.com/seatunnel/workerhost/internal/apps/stream"
	"github.com/seatunnel/workerhost/internal/config"
	"github.com/seatunnel/workerhost/internal/db"
	"github.com/seatunnel/workerhost/internal/db/migrator"
	"github.com/seatunnel/workerhost/internal/eventbus"
	"github.com/seatunnel/workerhost/internal/eventsink"
	hostgrpc "github.com/seatunnel/workerhost/internal/grpc"
	"github.com/seatunnel/workerhost/internal/metrics"
	"github.com/seatunnel/workerhost/internal/monitor"
	"github.com/seatunnel/workerhost/internal/process"
	"github.com/seatunnel/workerhost/internal/router"
	"github.com/seatunnel/workerhost/internal/supervisor"
)

// Host owns every long-lived component of the worker host.
// Host 持有工作进程宿主的所有长生命周期组件。
type Host struct {
	cfg    *config.Config
	logger *zap.Logger

	bus      *eventbus.Bus
	actors   *actor.Registry
	sup      *supervisor.Supervisor
	metrics  *metrics.Metrics
	hub      *stream.Hub
	gdb      *gorm.DB
	history  *history.Repository
	recorder *history.Recorder
	redis    *redis.Client
	sink     *eventsink.Sink
	sampler  *monitor.Sampler
	engine   *gin.Engine

	tree *suture.Supervisor
}

// New builds a host from cfg. Storage is opened and migrated here, network
// listeners are only opened by Run.
// New 根据 cfg 构建宿主。存储在此打开并迁移，网络监听仅在 Run 中打开。
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Host, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Host{
		cfg:     cfg,
		logger:  logger,
		bus:     eventbus.New(logger),
		actors:  actor.NewRegistry(logger),
		metrics: metrics.New(),
	}
	if err := actor.RegisterBuiltins(h.actors); err != nil {
		return nil, err
	}

	spawner := process.NewRouter(process.NewSpawner(
		process.WithGracefulTimeout(cfg.Supervisor.GracefulTimeout),
		process.WithLogger(logger),
	))
	spawner.Handle(actor.Scheme, h.actors)

	h.sup = supervisor.New(spawner, supervisor.Options{
		MaxConcurrentWorkers: cfg.Supervisor.MaxConcurrentWorkers,
		AutoCleanup:          cfg.Supervisor.AutoCleanup,
		CleanupDelay:         cfg.Supervisor.CleanupDelay,
		DrainInterval:        cfg.Supervisor.DrainInterval,
		HistoryLimit:         cfg.Supervisor.HistoryLimit,
		Bus:                  h.bus,
		Logger:               logger,
	})

	h.tree = suture.New("workerhost", suture.Spec{
		EventHook: sutureHook(logger),
		Timeout:   cfg.HTTP.ShutdownTimeout,
	})

	if err := h.wire(ctx); err != nil {
		h.close()
		return nil, err
	}
	return h, nil
}

func (h *Host) wire(ctx context.Context) error {
	cfg := h.cfg

	h.metrics.ObserveBus(h.bus)
	if err := h.metrics.RegisterSupervisor(h.sup); err != nil {
		return fmt.Errorf("register supervisor metrics: %w", err)
	}

	h.hub = stream.NewHub(h.bus, h.logger)
	h.tree.Add(h.hub)
	if err := h.metrics.RegisterGaugeFunc("stream_clients", "Connected event stream clients",
		func() float64 { return float64(h.hub.ClientCount()) }); err != nil {
		return err
	}

	if cfg.Database.Enabled {
		if err := h.wireHistory(ctx); err != nil {
			return err
		}
	}
	if cfg.Redis.Enabled {
		if err := h.wireSink(); err != nil {
			return err
		}
	}
	if cfg.Telemetry.UsageInterval > 0 {
		h.sampler = monitor.NewSampler(h.sup, h.metrics, cfg.Telemetry.UsageInterval, h.logger)
		h.tree.Add(h.sampler)
	}

	if cfg.HTTP.Enabled {
		deps := router.Deps{
			Config:      cfg.HTTP,
			ServiceName: cfg.Telemetry.ServiceName,
			Workers:     h.sup,
			Hub:         h.hub,
			Metrics:     h.metrics,
			Logger:      h.logger,
		}
		if h.history != nil {
			deps.History = h.history
		}
		h.engine = router.New(deps)
		h.tree.Add(router.NewServer(cfg.HTTP.Addr, h.engine, cfg.HTTP.ShutdownTimeout, h.logger))
	}
	if cfg.GRPC.Enabled {
		h.tree.Add(hostgrpc.NewServer(cfg.GRPC, h.sup, h.logger))
	}
	return nil
}

func (h *Host) wireHistory(ctx context.Context) error {
	gdb, err := db.Open(h.cfg.Database, h.logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	h.gdb = gdb
	if err := migrator.Migrate(ctx, gdb, h.logger); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	h.history = history.NewRepository(gdb)
	h.recorder = history.NewRecorder(h.bus, h.history, history.RecorderOptions{
		BatchSize:     h.cfg.Database.HistoryBatchSize,
		FlushInterval: h.cfg.Database.HistoryFlushInterval,
	}, h.logger)
	h.tree.Add(h.recorder)

	return h.metrics.RegisterGaugeFunc("history_pending_events", "Events waiting to be written to the history store",
		func() float64 { return float64(h.recorder.Pending()) })
}

func (h *Host) wireSink() error {
	client, err := eventsink.NewRedisClient(h.cfg.Redis)
	if err != nil {
		return err
	}
	h.redis = client
	h.sink = eventsink.New(h.bus, eventsink.NewRedisPublisher(client), eventsink.DefaultOptions(h.cfg.Redis.Channel), h.logger)
	h.tree.Add(h.sink)

	return h.metrics.RegisterGaugeFunc("eventsink_queued", "Events waiting to be published to Redis",
		func() float64 { return float64(h.sink.Stats().Queued) })
}

// Run serves until ctx is done. Boot workers are created once the services
// are up. On return every worker has been stopped and pending history flushed.
// Run 持续运行直到 ctx 结束。服务启动后创建启动工作进程，返回时所有工作进程已停止且历史已刷写。
func (h *Host) Run(ctx context.Context) error {
	treeCtx, cancelTree := context.WithCancel(context.Background())
	defer cancelTree()
	errCh := h.tree.ServeBackground(treeCtx)

	h.bootWorkers(ctx)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = fmt.Errorf("supervision tree stopped: %w", err)
	}

	h.logger.Info("shutting down worker host", zap.Int("workers", h.sup.Len()))
	// Workers stop first so their disposed events reach the recorder and the sink.
	h.sup.Dispose()
	cancelTree()
	if runErr == nil {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			runErr = err
		}
	}
	h.close()
	return runErr
}

func (h *Host) bootWorkers(ctx context.Context) {
	for i, wc := range h.cfg.Workers {
		handle, err := h.sup.Create(ctx, wc)
		if err != nil {
			h.logger.Error("failed to create boot worker",
				zap.Int("index", i),
				zap.String("worker_id", wc.ID),
				zap.String("entry_point", wc.EntryPoint),
				zap.Error(err))
			continue
		}
		h.logger.Info("boot worker created", zap.String("worker_id", handle.ID), zap.String("kind", string(handle.Kind)))
	}
}

func (h *Host) close() {
	if h.recorder != nil {
		h.recorder.Close()
	}
	if h.sink != nil {
		h.sink.Close()
	}
	if h.hub != nil {
		h.hub.Close()
	}
	if h.redis != nil {
		if err := h.redis.Close(); err != nil {
			h.logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	if h.gdb != nil {
		if err := db.Close(h.gdb); err != nil {
			h.logger.Warn("failed to close database", zap.Error(err))
		}
	}
}

// Supervisor returns the host's supervisor.
func (h *Host) Supervisor() *supervisor.Supervisor { return h.sup }

// Actors returns the actor registry so callers can register more actors before Run.
// Actors 返回 actor 注册表，调用方可在 Run 之前注册更多 actor。
func (h *Host) Actors() *actor.Registry { return h.actors }

// Handler returns the HTTP handler, nil when HTTP is disabled.
func (h *Host) Handler() *gin.Engine { return h.engine }

// History returns the event repository, nil when the database is disabled.
func (h *Host) History() *history.Repository { return h.history }

func sutureHook(logger *zap.Logger) suture.EventHook {
	log := logger.Named("suture")
	return func(e suture.Event) {
		fields := make([]zap.Field, 0, 4)
		for k, v := range e.Map() {
			fields = append(fields, zap.Any(k, v))
		}
		switch e.Type() {
		case suture.EventTypeServicePanic, suture.EventTypeServiceTerminate:
			log.Error(e.String(), fields...)
		default:
			log.Warn(e.String(), fields...)
		}
	}
}
