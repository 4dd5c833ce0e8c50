package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/config"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/api/handler"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/api/router"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/repository"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/service"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/database"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/jwt"
	applogger "github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/logger"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/redis"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/storage"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load(os.Getenv("PLANNING_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.String("timezone", cfg.Schedule.Timezone),
	)

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：连接失败时降级运行，不中断启动）
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，导入锁与限流将不可用", zap.Error(err))
		rdb = nil
	}
	// 避免把 nil *redis.Client 包装成非 nil 接口
	var locker service.ImportLocker
	if rdb != nil {
		locker = rdb
	}

	// 5. 模板归档
	archive, err := storage.NewFileArchive(cfg.Storage.ArchiveDir, logger)
	if err != nil {
		logger.Fatal("初始化模板归档目录失败", zap.Error(err))
	}

	// 6. 依赖注入: Repository → Service → Handler
	repo := repository.NewRepository(db)
	svc, err := service.NewService(cfg, repo, locker, archive, logger)
	if err != nil {
		logger.Fatal("初始化日程引擎失败", zap.Error(err))
	}
	h := handler.NewHandler(svc, archive, logger)

	// 7. 初始化路由
	verifier := jwt.NewVerifier(&cfg.Auth)
	engine := router.Setup(cfg, h, verifier, rdb, repo.Directory, logger)

	// 8. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second, // 导入大模板需要更长时间
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 9. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	// 关闭数据库连接
	if closeDB, _ := db.DB(); closeDB != nil {
		closeDB.Close()
	}

	// 关闭 Redis 连接
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}
