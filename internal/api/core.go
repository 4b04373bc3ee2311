package api

import (
	"context"
	"strconv"
	"time"

	"github.com/taaylor/web3-api/internal/api/chain"
	"github.com/taaylor/web3-api/internal/api/config"
	"github.com/taaylor/web3-api/internal/api/handler"
	"github.com/taaylor/web3-api/internal/api/monitor"
	"github.com/taaylor/web3-api/internal/api/service"
	"github.com/taaylor/web3-api/internal/api/supplier"
	"github.com/taaylor/web3-api/internal/api/token"
	"github.com/taaylor/web3-api/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Core struct {
	cfg     config.Config
	tl      *zap.Logger
	manager *chain.Manager
	app     *fiber.App
	metrics *monitor.MetricsServer
}

func New(cfg config.Config, tl *zap.Logger) *Core {
	// 链连接管理器：进程级单例，启动时连接一次
	manager := chain.NewManager(cfg.Token, tl)

	// 元数据缓存与浏览器分页客户端
	meta := token.NewMetadataCache(manager, tl)
	pages := supplier.New(cfg.Explorer, cfg.Token.Address, tl)

	// 余额聚合器
	svc := service.NewAggregator(cfg.TopHolders, manager, meta, pages, tl)

	app := fiber.New(fiber.Config{
		AppName:      "web3-api",
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
		ErrorHandler: fiberErrorHandler,
	})
	app.Use(requestMetrics)

	handler.New(cfg, svc, tl).Register(app)

	return &Core{
		cfg:     cfg,
		tl:      tl,
		manager: manager,
		app:     app,
		metrics: monitor.NewMetricsServer(cfg.Monitor),
	}
}

// Start 建立链上连接后开始对外服务，阻塞到 ctx 取消。
// 连接重试耗尽直接返回错误，由调用方决定进程是否退出。
func (c *Core) Start(ctx context.Context) error {
	if err := c.manager.Connect(ctx); err != nil {
		return err
	}

	if c.metrics != nil {
		c.metrics.Run()
	}

	go func() {
		c.tl.Info("HTTP server listening", zap.String("addr", c.cfg.Server.Addr))
		if err := c.app.Listen(c.cfg.Server.Addr); err != nil {
			c.tl.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	c.tl.Info("Shutting down api due to context cancellation...")
	return nil
}

// Stop 优雅关闭 Core 的所有资源
func (c *Core) Stop(ctx context.Context) {
	c.tl.Info("Stopping api core...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := c.app.ShutdownWithContext(shutdownCtx); err != nil {
		c.tl.Warn("HTTP server shutdown error", zap.Error(err))
	}

	if c.metrics != nil {
		_ = c.metrics.Stop(ctx)
	}

	c.manager.Close()

	c.tl.Info("Api core stopped.")
}

// requestMetrics 记录每个请求的计数与耗时，并开启 trace span
func requestMetrics(c *fiber.Ctx) error {
	ctx, span := logger.StartSpan(c.UserContext(), "api", c.Path())
	c.SetUserContext(ctx)
	defer span.End()

	start := time.Now()
	err := c.Next()

	path := c.Route().Path
	monitor.HTTPRequestsTotal.WithLabelValues(path, strconv.Itoa(c.Response().StatusCode())).Inc()
	monitor.HTTPRequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	return err
}

func fiberErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(map[string]string{"detail": err.Error()})
}
