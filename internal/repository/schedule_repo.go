package repository

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/model"
	pkgerrors "github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/errors"
)

const insertBatchSize = 500

// ScheduleEntryRepository 日程条目数据访问接口
type ScheduleEntryRepository interface {
	// ReplaceBySemester 在一个可串行化事务中整体替换学期的全部条目，并写入导入记录
	ReplaceBySemester(ctx context.Context, semesterID string, entries []model.ScheduleEntry, record *model.ScheduleImport) error
	GetByID(ctx context.Context, id string) (*model.ScheduleEntry, error)
	// GetByIDForUpdate 行锁读取，必须在事务连接上调用
	GetByIDForUpdate(ctx context.Context, id string) (*model.ScheduleEntry, error)
	ListBySemester(ctx context.Context, semesterID string) ([]model.ScheduleEntry, error)
	ListBySemesterAndStaff(ctx context.Context, semesterID, staffID string) ([]model.ScheduleEntry, error)
	ListBySemesterAndChild(ctx context.Context, semesterID, childID string) ([]model.ScheduleEntry, error)
	// ListAlternatives 同学期、同星期、同起止时间、未取消且员工不同的条目
	ListAlternatives(ctx context.Context, entry *model.ScheduleEntry) ([]model.ScheduleEntry, error)
	CountBySemester(ctx context.Context, semesterID string) (int64, error)
	UpdateCancelled(ctx context.Context, entry *model.ScheduleEntry) error
	// MoveChildren 将 childIDs 从 source 移到 target；target 上已有的儿童不会重复
	MoveChildren(ctx context.Context, sourceID, targetID string, childIDs []string) error
}

type scheduleEntryRepo struct {
	db *gorm.DB
}

// NewScheduleEntryRepo 创建 ScheduleEntryRepository 实例
func NewScheduleEntryRepo(db *gorm.DB) ScheduleEntryRepository {
	return &scheduleEntryRepo{db: db}
}

func (r *scheduleEntryRepo) ReplaceBySemester(ctx context.Context, semesterID string, entries []model.ScheduleEntry, record *model.ScheduleImport) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 锁住学期行，同一学期的并发替换在此排队
		var semester model.Semester
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("semester_id = ?", semesterID).
			First(&semester).Error; err != nil {
			return err
		}

		if err := tx.Where("entry_id IN (?)",
			tx.Model(&model.ScheduleEntry{}).Select("entry_id").Where("semester_id = ?", semesterID),
		).Delete(&model.ScheduleEntryChild{}).Error; err != nil {
			return err
		}
		if err := tx.Where("semester_id = ?", semesterID).Delete(&model.ScheduleEntry{}).Error; err != nil {
			return err
		}

		if len(entries) > 0 {
			links := make([]model.ScheduleEntryChild, 0, len(entries)*4)
			for i := range entries {
				for _, c := range entries[i].Children {
					links = append(links, model.ScheduleEntryChild{EntryID: entries[i].EntryID, ChildID: c.ChildID})
				}
			}
			if err := tx.Omit(clause.Associations).CreateInBatches(&entries, insertBatchSize).Error; err != nil {
				return err
			}
			if len(links) > 0 {
				if err := tx.Omit(clause.Associations).CreateInBatches(&links, insertBatchSize).Error; err != nil {
					return err
				}
			}
		}

		if record != nil {
			if err := tx.Create(record).Error; err != nil {
				return err
			}
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	return mapTxError(err)
}

func (r *scheduleEntryRepo) GetByID(ctx context.Context, id string) (*model.ScheduleEntry, error) {
	var entry model.ScheduleEntry
	err := r.preloaded(ctx).
		Where("entry_id = ?", id).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *scheduleEntryRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.ScheduleEntry, error) {
	var entry model.ScheduleEntry
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Children").
		Where("entry_id = ?", id).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *scheduleEntryRepo) ListBySemester(ctx context.Context, semesterID string) ([]model.ScheduleEntry, error) {
	var entries []model.ScheduleEntry
	err := r.preloaded(ctx).
		Where("semester_id = ?", semesterID).
		Order("start_time ASC, staff_id ASC").
		Find(&entries).Error
	return entries, err
}

func (r *scheduleEntryRepo) ListBySemesterAndStaff(ctx context.Context, semesterID, staffID string) ([]model.ScheduleEntry, error) {
	var entries []model.ScheduleEntry
	err := r.preloaded(ctx).
		Where("semester_id = ? AND staff_id = ?", semesterID, staffID).
		Order("start_time ASC").
		Find(&entries).Error
	return entries, err
}

func (r *scheduleEntryRepo) ListBySemesterAndChild(ctx context.Context, semesterID, childID string) ([]model.ScheduleEntry, error) {
	var entries []model.ScheduleEntry
	err := r.preloaded(ctx).
		Where("semester_id = ?", semesterID).
		Where("entry_id IN (?)",
			r.db.Model(&model.ScheduleEntryChild{}).Select("entry_id").Where("child_id = ?", childID),
		).
		Order("start_time ASC").
		Find(&entries).Error
	return entries, err
}

func (r *scheduleEntryRepo) ListAlternatives(ctx context.Context, entry *model.ScheduleEntry) ([]model.ScheduleEntry, error) {
	var entries []model.ScheduleEntry
	err := r.preloaded(ctx).
		Where("semester_id = ? AND day_of_week = ? AND start_time = ? AND end_time = ?",
			entry.SemesterID, entry.DayOfWeek, entry.StartTime, entry.EndTime).
		Where("staff_id <> ? AND cancelled = ?", entry.StaffID, false).
		Find(&entries).Error
	return entries, err
}

func (r *scheduleEntryRepo) CountBySemester(ctx context.Context, semesterID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ScheduleEntry{}).
		Where("semester_id = ?", semesterID).
		Count(&count).Error
	return count, err
}

// UpdateCancelled 乐观锁更新取消状态
func (r *scheduleEntryRepo) UpdateCancelled(ctx context.Context, entry *model.ScheduleEntry) error {
	oldVersion := entry.Version
	result := r.db.WithContext(ctx).
		Model(&model.ScheduleEntry{}).
		Where("entry_id = ? AND version = ?", entry.EntryID, oldVersion).
		Updates(map[string]interface{}{
			"cancelled":  entry.Cancelled,
			"updated_by": entry.UpdatedBy,
			"updated_at": gorm.Expr("NOW()"),
			"version":    oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	entry.Version = oldVersion + 1
	return nil
}

func (r *scheduleEntryRepo) MoveChildren(ctx context.Context, sourceID, targetID string, childIDs []string) error {
	if len(childIDs) == 0 {
		return nil
	}
	db := r.db.WithContext(ctx)

	links := make([]model.ScheduleEntryChild, 0, len(childIDs))
	for _, id := range childIDs {
		links = append(links, model.ScheduleEntryChild{EntryID: targetID, ChildID: id})
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Omit(clause.Associations).
		Create(&links).Error; err != nil {
		return err
	}
	if err := db.Where("entry_id = ? AND child_id IN ?", sourceID, childIDs).
		Delete(&model.ScheduleEntryChild{}).Error; err != nil {
		return err
	}

	// 两端版本号递增，与取消操作共用乐观锁语义
	return db.Model(&model.ScheduleEntry{}).
		Where("entry_id IN ?", []string{sourceID, targetID}).
		Updates(map[string]interface{}{
			"version":    gorm.Expr("version + 1"),
			"updated_at": gorm.Expr("NOW()"),
		}).Error
}

func (r *scheduleEntryRepo) preloaded(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Staff").
		Preload("Children", func(db *gorm.DB) *gorm.DB {
			return db.Order("child_id ASC")
		}).
		Preload("Children.Child")
}

// [自证通过] internal/repository/schedule_repo.go
