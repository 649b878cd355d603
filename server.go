package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clarity-mcp/common"
	"clarity-mcp/internal/auth"
	"clarity-mcp/internal/cache"
	"clarity-mcp/internal/genai/aurasr"
	"clarity-mcp/internal/oss"
	"clarity-mcp/internal/task"
	"clarity-mcp/internal/tools"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 加载配置
	config, err := common.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 打印配置信息（隐藏敏感信息）
	common.Infof("Server starting...")
	common.Infof("AuraSR Base URL: %s", config.AuraSRBaseURL)
	if config.AuraSRTokenFile != "" {
		common.Infof("AuraSR Token File: %s", config.AuraSRTokenFile)
	} else {
		common.Infof("AuraSR Token: %s", auth.MaskToken(config.AuraSRToken))
	}
	common.Infof("Transport: %s", config.Transport)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, config, buildServer)
	stop()
	if err != nil {
		common.Fatalf("Server error: %v", err)
	}
}

// serverBuilder 构造 MCP 服务器及其健康检查与资源释放函数
type serverBuilder func(config *common.Config) (*server.MCPServer, healthCheck, func(), error)

// run 构建并运行服务器，返回前释放 Redis 等资源；退出进程由 main 负责
func run(ctx context.Context, config *common.Config, build serverBuilder) error {
	s, health, cleanup, err := build(config)
	if err != nil {
		return fmt.Errorf("failed to build MCP server: %w", err)
	}
	defer cleanup()

	switch config.Transport {
	case "http":
		return runHTTP(ctx, config.GetServerAddr(), newHTTPHandler(s, health))
	default:
		// 启动 stdio 服务器
		return server.ServeStdio(s)
	}
}

// buildServer 创建 AuraSR 客户端、可选的 OSS 转存与 Redis 缓存，并注册 tools
func buildServer(config *common.Config) (*server.MCPServer, healthCheck, func(), error) {
	cleanup := func() {}
	health := func(context.Context) error { return nil }

	client, err := aurasr.NewAuraSRClientFromConfig(config)
	if err != nil {
		return nil, nil, cleanup, fmt.Errorf("failed to create AuraSR client: %w", err)
	}

	var pollerOpts []task.PollerOption

	if config.ResultUploadOSS {
		ossClient, err := oss.NewOSSClientFromConfig(config)
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("failed to create OSS client: %w", err)
		}
		pollerOpts = append(pollerOpts, task.WithMirror(task.NewOSSMirror(ossClient, config.OSSBucket)))
		common.Infof("Result mirroring enabled (bucket=%s)", config.OSSBucket)
	}

	if config.RedisURL != "" {
		store, err := cache.NewRedisCache(config.RedisURL)
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("failed to create Redis cache: %w", err)
		}

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = store.Ping(pingCtx)
		cancel()
		if err != nil {
			store.Close()
			return nil, nil, cleanup, fmt.Errorf("failed to connect to Redis: %w", err)
		}

		ttl := time.Duration(config.ResultCacheTTLSeconds) * time.Second
		pollerOpts = append(pollerOpts, task.WithResultStore(store, ttl))
		health = store.Ping
		cleanup = func() {
			if err := store.Close(); err != nil {
				common.Warnf("Failed to close Redis cache: %v", err)
			}
		}
		common.Infof("Result cache enabled (ttl=%s)", ttl)
	}

	// 创建 MCP 服务器
	s := server.NewMCPServer(
		"AuraSR Clarity MCP Server",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	// 注册 AuraSR tools
	err = tools.RegisterAuraSRTools(s,
		task.NewSubmitter(client),
		task.NewPoller(client, pollerOpts...),
		tools.QueryDefaults{
			MaxAttempts:     config.PollMaxAttempts,
			IntervalSeconds: config.PollIntervalSeconds,
		},
	)
	if err != nil {
		cleanup()
		return nil, nil, func() {}, fmt.Errorf("failed to register AuraSR tools: %w", err)
	}

	return s, health, cleanup, nil
}

// healthCheck 检查外部依赖是否可用
type healthCheck func(ctx context.Context) error

// newHTTPHandler 构造 HTTP 传输的路由：/healthz 与 streamable HTTP 的 /mcp
func newHTTPHandler(s *server.MCPServer, health healthCheck) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := health(ctx); err != nil {
			common.WithError(err).Warn("Health check failed")
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Handle("/mcp", server.NewStreamableHTTPServer(s, server.WithEndpointPath("/mcp")))
	return r
}

// runHTTP 启动 HTTP 服务，ctx 结束时优雅关闭
func runHTTP(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		common.Infof("MCP HTTP server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		common.Infof("Shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	common.Infof("Server stopped gracefully")
	return nil
}
