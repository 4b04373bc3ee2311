package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/taaylor/web3-api/internal/api"
	"github.com/taaylor/web3-api/internal/api/config"
	"github.com/taaylor/web3-api/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	// 初始化配置文件
	cfg := config.InitConfig()

	// 初始化 trace provider
	logger.InitTrace("web3-api", "api")
	ctx, span := logger.StartSpan(context.Background(), "main", "main")
	defer span.End()

	// 创建 root logger 并注入 trace 上下文
	rootLogger := logger.NewLogger("api")
	logger.SetLogLevel(cfg.Log.Level)
	tl := logger.NewLoggerWithTrace(ctx, rootLogger)

	// 启动配置热加载监听
	go config.WatchConfig(&cfg)

	core := api.New(cfg, tl)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// 启动服务，连接失败视为启动失败
	go func() {
		tl.Info("Starting web3-api...")
		if err := core.Start(ctx); err != nil {
			tl.Error("Service start failed", zap.Error(err))
			quit <- syscall.SIGTERM
		}
	}()

	<-quit
	tl.Info("Received shutdown signal, starting graceful shutdown...")

	cancel()
	core.Stop(context.Background())

	tl.Info("Shutdown complete.")
}
