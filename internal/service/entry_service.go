package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/dto"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/model"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/repository"
	pkgerrors "github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/errors"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/metrics"
)

// ── 条目变更业务错误 ──

var (
	ErrEntryNotFound        = errors.New("日程条目不存在")
	ErrTargetEntryCancelled = errors.New("目标条目已取消")
	ErrReassignSameEntry    = errors.New("源条目与目标条目相同")
	ErrChildNotInEntry      = errors.New("该儿童不在源条目中")
)

// CrossContextReassignError 源条目与目标条目不在同一学期/同一时间窗口
type CrossContextReassignError struct {
	SourceID string
	TargetID string
	Reason   string // semester | day_of_week | time_window
}

func (e *CrossContextReassignError) Error() string {
	return fmt.Sprintf("条目 %s 与 %s 不在同一时间窗口（%s 不一致），不能重新分配", e.SourceID, e.TargetID, e.Reason)
}

// EntryService 单个条目的取消与儿童重新分配
// 变更后不重新做覆盖校验
type EntryService interface {
	SetCancelled(ctx context.Context, entryID string, req *dto.SetCancelledRequest, operatorID string) (*dto.ScheduleEntryResponse, error)
	ReassignChildren(ctx context.Context, sourceID, targetID, operatorID string) (*dto.ReassignResponse, error)
	ReassignOneChild(ctx context.Context, sourceID, childID, targetID, operatorID string) (*dto.ReassignResponse, error)
	FindAlternatives(ctx context.Context, entryID string) ([]dto.AlternativeEntryResponse, error)
	ListChangeLogs(ctx context.Context, semesterID string, req *dto.ChangeLogListRequest) ([]dto.ChangeLogResponse, int64, error)
}

type entryService struct {
	repo   *repository.Repository
	loc    *time.Location
	logger *zap.Logger
}

// NewEntryService 创建 EntryService 实例
func NewEntryService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) EntryService {
	if loc == nil {
		loc = time.UTC
	}
	return &entryService{repo: repo, loc: loc, logger: logger}
}

// ════════════════════════════════════════════════════════════
// SetCancelled
// ════════════════════════════════════════════════════════════

func (s *entryService) SetCancelled(ctx context.Context, entryID string, req *dto.SetCancelledRequest, operatorID string) (*dto.ScheduleEntryResponse, error) {
	cancel := *req.Cancelled
	changed := false

	err := withTx(ctx, s.repo, func(txRepo *repository.Repository) error {
		entry, err := lockEntry(ctx, txRepo, entryID)
		if err != nil {
			return err
		}
		if req.Version > 0 && entry.Version != req.Version {
			return pkgerrors.ErrOptimisticLock
		}
		if entry.Cancelled == cancel {
			return nil
		}

		entry.Cancelled = cancel
		entry.StampUpdated(operatorID)
		if err := txRepo.ScheduleEntry.UpdateCancelled(ctx, entry); err != nil {
			return err
		}

		changeType := model.ChangeTypeCancel
		if !cancel {
			changeType = model.ChangeTypeReactivate
		}
		changed = true
		return txRepo.ChangeLog.Create(ctx, &model.ScheduleEntryChangeLog{
			SemesterID: entry.SemesterID,
			EntryID:    entry.EntryID,
			ChangeType: changeType,
			OperatorID: operatorID,
			CreatedAt:  time.Now(),
		})
	})
	if err != nil {
		if !isEntryBusinessError(err) {
			s.logger.Error("更新条目取消状态失败", zap.String("entry_id", entryID), zap.Error(err))
		}
		return nil, err
	}

	if changed {
		if cancel {
			metrics.ObserveMutation(model.ChangeTypeCancel)
		} else {
			metrics.ObserveMutation(model.ChangeTypeReactivate)
		}
	}

	entry, err := s.getEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	resp := toEntryResponse(entry, s.loc)
	return &resp, nil
}

// ════════════════════════════════════════════════════════════
// ReassignChildren / ReassignOneChild
// ════════════════════════════════════════════════════════════

func (s *entryService) ReassignChildren(ctx context.Context, sourceID, targetID, operatorID string) (*dto.ReassignResponse, error) {
	return s.reassign(ctx, sourceID, targetID, "", operatorID)
}

func (s *entryService) ReassignOneChild(ctx context.Context, sourceID, childID, targetID, operatorID string) (*dto.ReassignResponse, error) {
	return s.reassign(ctx, sourceID, targetID, childID, operatorID)
}

// reassign childID 为空时移动源条目的全部儿童
func (s *entryService) reassign(ctx context.Context, sourceID, targetID, childID, operatorID string) (*dto.ReassignResponse, error) {
	if sourceID == targetID {
		return nil, ErrReassignSameEntry
	}

	moved, changed := 0, false
	err := withTx(ctx, s.repo, func(txRepo *repository.Repository) error {
		// 按 id 顺序加锁，避免两个方向相反的并发请求互相等待
		first, second := sourceID, targetID
		if second < first {
			first, second = second, first
		}
		locked := make(map[string]*model.ScheduleEntry, 2)
		for _, id := range []string{first, second} {
			entry, err := lockEntry(ctx, txRepo, id)
			if err != nil {
				return err
			}
			locked[id] = entry
		}
		source, target := locked[sourceID], locked[targetID]

		if err := checkReassignable(source, target); err != nil {
			return err
		}

		onTarget := make(map[string]bool, len(target.Children))
		for _, c := range target.Children {
			onTarget[c.ChildID] = true
		}

		var childIDs []string
		if childID != "" {
			if !hasChild(source, childID) {
				return ErrChildNotInEntry
			}
			childIDs = []string{childID}
		} else {
			for _, c := range source.Children {
				childIDs = append(childIDs, c.ChildID)
			}
		}
		if len(childIDs) == 0 {
			return nil
		}
		for _, id := range childIDs {
			if !onTarget[id] {
				moved++
			}
		}

		if err := txRepo.ScheduleEntry.MoveChildren(ctx, sourceID, targetID, childIDs); err != nil {
			return err
		}
		changed = true

		log := &model.ScheduleEntryChangeLog{
			SemesterID:    source.SemesterID,
			EntryID:       sourceID,
			TargetEntryID: &targetID,
			ChangeType:    model.ChangeTypeReassignAll,
			OperatorID:    operatorID,
			CreatedAt:     time.Now(),
		}
		if childID != "" {
			log.ChildID = &childID
			log.ChangeType = model.ChangeTypeReassignOne
		}
		return txRepo.ChangeLog.Create(ctx, log)
	})
	if err != nil {
		if !isEntryBusinessError(err) {
			s.logger.Error("重新分配儿童失败",
				zap.String("source_id", sourceID),
				zap.String("target_id", targetID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	switch {
	case !changed:
		// 源条目没有儿童，不计入变更
	case childID != "":
		metrics.ObserveMutation(model.ChangeTypeReassignOne)
	default:
		metrics.ObserveMutation(model.ChangeTypeReassignAll)
	}

	source, err := s.getEntry(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	target, err := s.getEntry(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return &dto.ReassignResponse{
		Source: toEntryResponse(source, s.loc),
		Target: toEntryResponse(target, s.loc),
		Moved:  moved,
	}, nil
}

// checkReassignable 同学期、同星期、同起止时刻，且目标未取消
func checkReassignable(source, target *model.ScheduleEntry) error {
	reason := ""
	switch {
	case source.SemesterID != target.SemesterID:
		reason = "semester"
	case source.DayOfWeek != target.DayOfWeek:
		reason = "day_of_week"
	case !source.StartTime.Equal(target.StartTime) || !source.EndTime.Equal(target.EndTime):
		reason = "time_window"
	}
	if reason != "" {
		return &CrossContextReassignError{SourceID: source.EntryID, TargetID: target.EntryID, Reason: reason}
	}
	if target.Cancelled {
		return ErrTargetEntryCancelled
	}
	return nil
}

// ════════════════════════════════════════════════════════════
// FindAlternatives
// ════════════════════════════════════════════════════════════

// FindAlternatives 同一时间窗口内可接收儿童的其他条目，儿童少的优先
func (s *entryService) FindAlternatives(ctx context.Context, entryID string) ([]dto.AlternativeEntryResponse, error) {
	entry, err := s.getEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	candidates, err := s.repo.ScheduleEntry.ListAlternatives(ctx, entry)
	if err != nil {
		s.logger.Error("查询候选条目失败", zap.String("entry_id", entryID), zap.Error(err))
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := &candidates[i], &candidates[j]
		if len(a.Children) != len(b.Children) {
			return len(a.Children) < len(b.Children)
		}
		if ka, kb := staffKey(a), staffKey(b); ka != kb {
			return ka < kb
		}
		return a.EntryID < b.EntryID
	})

	result := make([]dto.AlternativeEntryResponse, 0, len(candidates))
	for i := range candidates {
		result = append(result, dto.AlternativeEntryResponse{
			ScheduleEntryResponse: toEntryResponse(&candidates[i], s.loc),
			ChildCount:            len(candidates[i].Children),
		})
	}
	return result, nil
}

// ════════════════════════════════════════════════════════════
// ListChangeLogs
// ════════════════════════════════════════════════════════════

func (s *entryService) ListChangeLogs(ctx context.Context, semesterID string, req *dto.ChangeLogListRequest) ([]dto.ChangeLogResponse, int64, error) {
	if _, err := s.repo.Semester.GetByID(ctx, semesterID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, ErrSemesterNotFound
		}
		s.logger.Error("查询学期失败", zap.String("id", semesterID), zap.Error(err))
		return nil, 0, err
	}

	logs, total, err := s.repo.ChangeLog.ListBySemester(ctx, semesterID, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询变更日志失败", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.ChangeLogResponse, 0, len(logs))
	for _, l := range logs {
		result = append(result, dto.ChangeLogResponse{
			ID:            l.ChangeLogID,
			SemesterID:    l.SemesterID,
			EntryID:       l.EntryID,
			TargetEntryID: l.TargetEntryID,
			ChildID:       l.ChildID,
			ChangeType:    l.ChangeType,
			OperatorID:    l.OperatorID,
			CreatedAt:     l.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return result, total, nil
}

// ── 内部辅助方法 ──

func (s *entryService) getEntry(ctx context.Context, id string) (*model.ScheduleEntry, error) {
	entry, err := s.repo.ScheduleEntry.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		s.logger.Error("查询日程条目失败", zap.String("entry_id", id), zap.Error(err))
		return nil, err
	}
	return entry, nil
}

func lockEntry(ctx context.Context, repo *repository.Repository, id string) (*model.ScheduleEntry, error) {
	entry, err := repo.ScheduleEntry.GetByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return entry, nil
}

func hasChild(entry *model.ScheduleEntry, childID string) bool {
	for _, c := range entry.Children {
		if c.ChildID == childID {
			return true
		}
	}
	return false
}

func staffKey(e *model.ScheduleEntry) string {
	if e.Staff == nil {
		return ""
	}
	return NameKey(e.Staff.FullName)
}

// isEntryBusinessError 业务错误不记 Error 日志
func isEntryBusinessError(err error) bool {
	var cross *CrossContextReassignError
	return errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrTargetEntryCancelled) ||
		errors.Is(err, ErrChildNotInEntry) ||
		errors.Is(err, pkgerrors.ErrOptimisticLock) ||
		errors.As(err, &cross)
}
