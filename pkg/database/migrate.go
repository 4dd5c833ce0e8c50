package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// 多实例同时启动时等待迁移锁的上限
const migrationLockTimeout = 30 * time.Second

// migrateLogger 把 golang-migrate 的输出接到 zap
type migrateLogger struct {
	logger *zap.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool {
	return l.logger.Core().Enabled(zap.DebugLevel)
}

// RunMigrations 应用全部未执行的 schema 迁移（学期、目录、日程、审计表）
// 迁移处于 dirty 状态时拒绝启动，需要人工修复
func RunMigrations(db *sql.DB, logger *zap.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("加载迁移文件失败: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("创建迁移驱动失败: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("初始化迁移实例失败: %w", err)
	}
	m.Log = migrateLogger{logger: logger}
	m.LockTimeout = migrationLockTimeout

	before, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return fmt.Errorf("读取迁移版本失败: %w", err)
	case dirty:
		return fmt.Errorf("数据库迁移处于 dirty 状态 (version=%d)，请先手动修复", before)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("执行迁移失败: %w", err)
	}

	after, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("读取迁移版本失败: %w", err)
	}
	if after == before {
		logger.Info("数据库 schema 已是最新", zap.Uint("version", after))
	} else {
		logger.Info("数据库迁移完成", zap.Uint("from", before), zap.Uint("to", after))
	}

	return nil
}
