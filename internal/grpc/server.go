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

// Package grpc serves the standard gRPC health protocol for the worker host.
// grpc 包为工作进程宿主提供标准 gRPC 健康检查协议。
package grpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/seatunnel/workerhost/internal/config"
)

// ServiceName is the health service name reported for the supervisor
// ServiceName 是监督器对应的健康检查服务名
const ServiceName = "workerhost.Supervisor"

// DefaultPollInterval is how often the serving status is refreshed
// DefaultPollInterval 是刷新服务状态的间隔
const DefaultPollInterval = time.Second

// ErrInvalidTLSConfig indicates invalid TLS configuration.
// ErrInvalidTLSConfig 表示无效的 TLS 配置。
var ErrInvalidTLSConfig = errors.New("grpc: invalid TLS configuration")

// HealthSource reports whether the supervisor still accepts work.
// HealthSource 报告监督器是否仍可接受工作。
type HealthSource interface {
	Disposed() bool
}

// Server exposes grpc.health.v1 and mirrors the supervisor state into it.
// Server 暴露 grpc.health.v1 并同步监督器状态。
type Server struct {
	cfg          config.GRPCConfig
	src          HealthSource
	health       *health.Server
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewServer creates a new gRPC server instance.
// NewServer 创建一个新的 gRPC 服务器实例。
func NewServer(cfg config.GRPCConfig, src HealthSource, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:          cfg,
		src:          src,
		health:       health.NewServer(),
		pollInterval: DefaultPollInterval,
		logger:       logger.Named("grpc"),
	}
}

// Serve listens on cfg.Addr until ctx is done.
// Serve 在 cfg.Addr 上监听直到 ctx 结束。
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.serveListener(ctx, ln)
}

func (s *Server) serveListener(ctx context.Context, ln net.Listener) error {
	opts, err := s.buildServerOptions()
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to build server options: %w", err)
	}

	gs := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(gs, s.health)
	s.refresh()

	s.logger.Info("gRPC server starting",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls_enabled", s.cfg.CertFile != ""),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- gs.Serve(ln)
	}()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-errCh:
			return fmt.Errorf("gRPC server error: %w", err)
		case <-ticker.C:
			s.refresh()
		case <-ctx.Done():
			s.logger.Info("Stopping gRPC server")
			s.health.Shutdown()
			gs.GracefulStop()
			<-errCh
			return ctx.Err()
		}
	}
}

func (s *Server) refresh() {
	st := healthpb.HealthCheckResponse_SERVING
	if s.src != nil && s.src.Disposed() {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

func (s *Server) String() string {
	return "grpc-server"
}

// buildServerOptions builds gRPC server options.
// buildServerOptions 构建 gRPC 服务器选项。
func (s *Server) buildServerOptions() ([]grpc.ServerOption, error) {
	opts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 15 * time.Minute,
			Time:              5 * time.Minute,
			Timeout:           20 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(s.loggingUnaryInterceptor, s.recoveryUnaryInterceptor),
		grpc.ChainStreamInterceptor(s.recoveryStreamInterceptor),
	}

	if s.cfg.CertFile != "" && s.cfg.KeyFile != "" {
		creds, err := s.loadTLSCredentials()
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.Creds(creds))
	}
	return opts, nil
}

// loadTLSCredentials loads TLS credentials from files.
// loadTLSCredentials 从文件加载 TLS 凭证。
func (s *Server) loadTLSCredentials() (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(s.cfg.CertFile, s.cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if s.cfg.CAFile != "" {
		caCert, err := os.ReadFile(s.cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, ErrInvalidTLSConfig
		}
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return credentials.NewTLS(tlsConfig), nil
}

func (s *Server) loggingUnaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()

	peerAddr := "unknown"
	if p, ok := peer.FromContext(ctx); ok {
		peerAddr = p.Addr.String()
	}

	resp, err := handler(ctx, req)
	fields := []zap.Field{
		zap.String("method", info.FullMethod),
		zap.String("peer", peerAddr),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		s.logger.Warn("gRPC unary call failed", append(fields, zap.Error(err))...)
	} else {
		s.logger.Debug("gRPC unary call completed", fields...)
	}
	return resp, err
}

func (s *Server) recoveryUnaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("gRPC unary handler panic", zap.String("method", info.FullMethod), zap.Any("panic", r))
			err = status.Errorf(codes.Internal, "internal server error")
		}
	}()
	return handler(ctx, req)
}

func (s *Server) recoveryStreamInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("gRPC stream handler panic", zap.String("method", info.FullMethod), zap.Any("panic", r))
			err = status.Errorf(codes.Internal, "internal server error")
		}
	}()
	return handler(srv, ss)
}
