package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/model"
)

// ScheduleImportRepository 导入记录数据访问接口
// 写入只发生在 ScheduleEntryRepository.ReplaceBySemester 的事务内
type ScheduleImportRepository interface {
	GetLatest(ctx context.Context, semesterID string) (*model.ScheduleImport, error)
	ListBySemester(ctx context.Context, semesterID string, offset, limit int) ([]model.ScheduleImport, int64, error)
}

// ScheduleEntryChangeLogRepository 条目变更日志数据访问接口
type ScheduleEntryChangeLogRepository interface {
	Create(ctx context.Context, log *model.ScheduleEntryChangeLog) error
	ListBySemester(ctx context.Context, semesterID string, offset, limit int) ([]model.ScheduleEntryChangeLog, int64, error)
}

// ── ScheduleImport Repository 实现 ──

type scheduleImportRepo struct {
	db *gorm.DB
}

func NewScheduleImportRepo(db *gorm.DB) ScheduleImportRepository {
	return &scheduleImportRepo{db: db}
}

func (r *scheduleImportRepo) GetLatest(ctx context.Context, semesterID string) (*model.ScheduleImport, error) {
	var record model.ScheduleImport
	err := r.db.WithContext(ctx).
		Where("semester_id = ?", semesterID).
		Order("imported_at DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *scheduleImportRepo) ListBySemester(ctx context.Context, semesterID string, offset, limit int) ([]model.ScheduleImport, int64, error) {
	var (
		records []model.ScheduleImport
		total   int64
	)
	db := r.db.WithContext(ctx).Model(&model.ScheduleImport{}).Where("semester_id = ?", semesterID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := db.Order("imported_at DESC").Offset(offset).Limit(limit).Find(&records).Error
	return records, total, err
}

// ── ScheduleEntryChangeLog Repository 实现 ──

type scheduleEntryChangeLogRepo struct {
	db *gorm.DB
}

func NewScheduleEntryChangeLogRepo(db *gorm.DB) ScheduleEntryChangeLogRepository {
	return &scheduleEntryChangeLogRepo{db: db}
}

func (r *scheduleEntryChangeLogRepo) Create(ctx context.Context, log *model.ScheduleEntryChangeLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *scheduleEntryChangeLogRepo) ListBySemester(ctx context.Context, semesterID string, offset, limit int) ([]model.ScheduleEntryChangeLog, int64, error) {
	var (
		logs  []model.ScheduleEntryChangeLog
		total int64
	)
	db := r.db.WithContext(ctx).Model(&model.ScheduleEntryChangeLog{}).Where("semester_id = ?", semesterID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&logs).Error
	return logs, total, err
}
