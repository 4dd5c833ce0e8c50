package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ErrNotArchived 该学期尚未归档任何模板
var ErrNotArchived = errors.New("模板未归档")

// FileArchive 按学期归档最近一次成功导入的模板原文件
// 目录布局：<root>/<semesterID>/<原文件名>，每个学期只保留最新的一份
type FileArchive struct {
	root   string
	logger *zap.Logger
}

// NewFileArchive 创建归档目录
func NewFileArchive(root string, logger *zap.Logger) (*FileArchive, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("创建归档目录失败: %w", err)
	}
	return &FileArchive{root: root, logger: logger}, nil
}

// Save 覆盖写入学期模板
// 先写临时文件再 rename，读取方不会看到写了一半的文件
func (a *FileArchive) Save(ctx context.Context, semesterID, fileName string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := a.semesterDir(semesterID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("创建学期归档目录失败: %w", err)
	}

	name := sanitizeFileName(fileName)
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("写入归档文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("写入归档文件失败: %w", err)
	}

	// 清理旧版本
	entries, err := os.ReadDir(dir)
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("读取归档目录失败: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || e.Name() == filepath.Base(tmpName) || e.Name() == name {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			a.logger.Warn("清理旧归档文件失败", zap.String("file", e.Name()), zap.Error(err))
		}
	}

	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("保存归档文件失败: %w", err)
	}

	a.logger.Info("模板已归档",
		zap.String("semester_id", semesterID),
		zap.String("file", name),
		zap.Int("size", len(data)),
	)
	return nil
}

// Load 读取学期最新归档的模板，返回原文件名与内容
func (a *FileArchive) Load(ctx context.Context, semesterID string) (string, []byte, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	dir, err := a.semesterDir(semesterID)
	if err != nil {
		return "", nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, ErrNotArchived
		}
		return "", nil, fmt.Errorf("读取归档目录失败: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return "", nil, fmt.Errorf("读取归档文件失败: %w", err)
		}
		return e.Name(), data, nil
	}
	return "", nil, ErrNotArchived
}

func (a *FileArchive) semesterDir(semesterID string) (string, error) {
	if semesterID == "" || semesterID != filepath.Base(semesterID) || strings.HasPrefix(semesterID, ".") {
		return "", fmt.Errorf("非法的学期 ID: %q", semesterID)
	}
	return filepath.Join(a.root, semesterID), nil
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "/" {
		return "template.xlsx"
	}
	return name
}
