package repository

import (
	"context"
	"database/sql"

	"gorm.io/gorm"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/model"
)

// DirectoryRepository 员工/儿童目录只读访问接口
type DirectoryRepository interface {
	// Snapshot 在同一个只读事务中读取在职员工与在册儿童，保证一次校验看到的目录一致
	Snapshot(ctx context.Context) ([]model.Staff, []model.Child, error)
	GetStaff(ctx context.Context, id string) (*model.Staff, error)
	GetChild(ctx context.Context, id string) (*model.Child, error)
	IsGuardian(ctx context.Context, childID, guardianID string) (bool, error)
}

type directoryRepo struct {
	db *gorm.DB
}

// NewDirectoryRepo 创建 DirectoryRepository 实例
func NewDirectoryRepo(db *gorm.DB) DirectoryRepository {
	return &directoryRepo{db: db}
}

func (r *directoryRepo) Snapshot(ctx context.Context) ([]model.Staff, []model.Child, error) {
	var (
		staff    []model.Staff
		children []model.Child
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("is_active = ?", true).Order("full_name ASC").Find(&staff).Error; err != nil {
			return err
		}
		return tx.Where("is_active = ?", true).Order("full_name ASC").Find(&children).Error
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, nil, err
	}
	return staff, children, nil
}

func (r *directoryRepo) GetStaff(ctx context.Context, id string) (*model.Staff, error) {
	var staff model.Staff
	err := r.db.WithContext(ctx).
		Where("staff_id = ?", id).
		First(&staff).Error
	if err != nil {
		return nil, err
	}
	return &staff, nil
}

func (r *directoryRepo) GetChild(ctx context.Context, id string) (*model.Child, error) {
	var child model.Child
	err := r.db.WithContext(ctx).
		Where("child_id = ?", id).
		First(&child).Error
	if err != nil {
		return nil, err
	}
	return &child, nil
}

func (r *directoryRepo) IsGuardian(ctx context.Context, childID, guardianID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ChildGuardian{}).
		Where("child_id = ? AND guardian_id = ?", childID, guardianID).
		Count(&count).Error
	return count > 0, err
}
