package service

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/dto"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/model"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/repository"
)

// ── 学期模块业务错误 ──

var (
	ErrSemesterNotFound       = errors.New("学期不存在")
	ErrSemesterDateInvalid    = errors.New("学期结束日期不能早于开始日期")
	ErrSemesterHasSchedule    = errors.New("学期已导入日程，不能删除")
	ErrVacationNotFound       = errors.New("假期不存在")
	ErrVacationDateInvalid    = errors.New("假期结束日期不能早于开始日期")
	ErrVacationOutOfRange     = errors.New("假期不在学期范围内")
	ErrHolidayCalendarInvalid = errors.New("节假日日历无法解析")
)

const dateLayout = "2006-01-02"

// SemesterService 学期与假期日历业务接口
type SemesterService interface {
	Create(ctx context.Context, req *dto.CreateSemesterRequest, callerID string) (*dto.SemesterResponse, error)
	GetByID(ctx context.Context, id string) (*dto.SemesterResponse, error)
	GetCurrent(ctx context.Context) (*dto.SemesterResponse, error)
	List(ctx context.Context) ([]dto.SemesterResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateSemesterRequest, callerID string) (*dto.SemesterResponse, error)
	Activate(ctx context.Context, id string, callerID string) error
	Delete(ctx context.Context, id string, callerID string) error

	AddVacation(ctx context.Context, semesterID string, req *dto.CreateVacationRequest, callerID string) (*dto.VacationResponse, error)
	ListVacations(ctx context.Context, semesterID string) ([]dto.VacationResponse, error)
	DeleteVacation(ctx context.Context, semesterID, vacationID string) error
	ImportHolidays(ctx context.Context, semesterID string, calendar io.Reader, callerID string) (*dto.HolidayImportResponse, error)
}

type semesterService struct {
	repo   *repository.Repository
	loc    *time.Location
	logger *zap.Logger
}

// NewSemesterService 创建 SemesterService 实例
// loc 为模板时区，节假日日历中的时间按此时区换算成日历日
func NewSemesterService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) SemesterService {
	if loc == nil {
		loc = time.UTC
	}
	return &semesterService{repo: repo, loc: loc, logger: logger}
}

// ────────────────────── Create ──────────────────────

func (s *semesterService) Create(ctx context.Context, req *dto.CreateSemesterRequest, callerID string) (*dto.SemesterResponse, error) {
	startDate, endDate, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, ErrSemesterDateInvalid
	}

	semester := &model.Semester{
		Name:      req.Name,
		StartDate: startDate,
		EndDate:   endDate,
		IsActive:  false,
	}
	semester.StampCreated(callerID)

	if err := s.repo.Semester.Create(ctx, semester); err != nil {
		s.logger.Error("创建学期失败", zap.Error(err))
		return nil, err
	}

	return toSemesterResponse(semester, nil), nil
}

// ────────────────────── GetByID ──────────────────────

func (s *semesterService) GetByID(ctx context.Context, id string) (*dto.SemesterResponse, error) {
	semester, err := s.getSemester(ctx, id)
	if err != nil {
		return nil, err
	}

	vacations, err := s.repo.Vacation.ListBySemester(ctx, id)
	if err != nil {
		s.logger.Error("查询学期假期失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	return toSemesterResponse(semester, vacations), nil
}

// ────────────────────── GetCurrent ──────────────────────

func (s *semesterService) GetCurrent(ctx context.Context) (*dto.SemesterResponse, error) {
	semester, err := s.repo.Semester.GetCurrent(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSemesterNotFound
		}
		s.logger.Error("查询当前学期失败", zap.Error(err))
		return nil, err
	}

	return toSemesterResponse(semester, nil), nil
}

// ────────────────────── List ──────────────────────

func (s *semesterService) List(ctx context.Context) ([]dto.SemesterResponse, error) {
	semesters, err := s.repo.Semester.List(ctx)
	if err != nil {
		s.logger.Error("列出学期失败", zap.Error(err))
		return nil, err
	}

	result := make([]dto.SemesterResponse, 0, len(semesters))
	for i := range semesters {
		result = append(result, *toSemesterResponse(&semesters[i], nil))
	}

	return result, nil
}

// ────────────────────── Update ──────────────────────
// 日期变更不会重新展开已导入的日程，需要重新导入模板

func (s *semesterService) Update(ctx context.Context, id string, req *dto.UpdateSemesterRequest, callerID string) (*dto.SemesterResponse, error) {
	semester, err := s.getSemester(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		semester.Name = *req.Name
	}
	if req.StartDate != nil {
		startDate, err := time.Parse(dateLayout, *req.StartDate)
		if err != nil {
			return nil, ErrSemesterDateInvalid
		}
		semester.StartDate = startDate
	}
	if req.EndDate != nil {
		endDate, err := time.Parse(dateLayout, *req.EndDate)
		if err != nil {
			return nil, ErrSemesterDateInvalid
		}
		semester.EndDate = endDate
	}
	if semester.EndDate.Before(semester.StartDate) {
		return nil, ErrSemesterDateInvalid
	}

	semester.StampUpdated(callerID)

	if err := s.repo.Semester.Update(ctx, semester); err != nil {
		s.logger.Error("更新学期失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	return toSemesterResponse(semester, nil), nil
}

// ────────────────────── Activate ──────────────────────

func (s *semesterService) Activate(ctx context.Context, id string, callerID string) error {
	semester, err := s.getSemester(ctx, id)
	if err != nil {
		return err
	}

	// ClearActive + Update 在同一事务中完成
	err = withTx(ctx, s.repo, func(txRepo *repository.Repository) error {
		if err := txRepo.Semester.ClearActive(ctx); err != nil {
			return err
		}
		semester.IsActive = true
		semester.StampUpdated(callerID)
		return txRepo.Semester.Update(ctx, semester)
	})
	if err != nil {
		s.logger.Error("激活学期失败", zap.String("id", id), zap.Error(err))
		return err
	}

	return nil
}

// ────────────────────── Delete ──────────────────────

func (s *semesterService) Delete(ctx context.Context, id string, callerID string) error {
	if _, err := s.getSemester(ctx, id); err != nil {
		return err
	}

	count, err := s.repo.ScheduleEntry.CountBySemester(ctx, id)
	if err != nil {
		s.logger.Error("统计学期条目失败", zap.String("id", id), zap.Error(err))
		return err
	}
	if count > 0 {
		return ErrSemesterHasSchedule
	}

	if err := s.repo.Semester.Delete(ctx, id, callerID); err != nil {
		s.logger.Error("删除学期失败", zap.String("id", id), zap.Error(err))
		return err
	}

	return nil
}

// ════════════════════════════════════════════════════════════
// 假期
// ════════════════════════════════════════════════════════════

func (s *semesterService) AddVacation(ctx context.Context, semesterID string, req *dto.CreateVacationRequest, callerID string) (*dto.VacationResponse, error) {
	semester, err := s.getSemester(ctx, semesterID)
	if err != nil {
		return nil, err
	}

	startDate, endDate, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, ErrVacationDateInvalid
	}
	if endDate.Before(semester.StartDate) || startDate.After(semester.EndDate) {
		return nil, ErrVacationOutOfRange
	}

	kind := req.Kind
	if kind == "" {
		kind = model.VacationKindVacation
	}

	vacation := &model.VacationPeriod{
		SemesterID: semesterID,
		Name:       req.Name,
		StartDate:  startDate,
		EndDate:    endDate,
		Kind:       kind,
	}
	vacation.StampCreated(callerID)

	if err := s.repo.Vacation.Create(ctx, vacation); err != nil {
		s.logger.Error("创建假期失败", zap.String("semester_id", semesterID), zap.Error(err))
		return nil, err
	}

	resp := toVacationResponse(vacation)
	return &resp, nil
}

func (s *semesterService) ListVacations(ctx context.Context, semesterID string) ([]dto.VacationResponse, error) {
	if _, err := s.getSemester(ctx, semesterID); err != nil {
		return nil, err
	}

	vacations, err := s.repo.Vacation.ListBySemester(ctx, semesterID)
	if err != nil {
		s.logger.Error("列出假期失败", zap.String("semester_id", semesterID), zap.Error(err))
		return nil, err
	}

	result := make([]dto.VacationResponse, 0, len(vacations))
	for i := range vacations {
		result = append(result, toVacationResponse(&vacations[i]))
	}
	return result, nil
}

func (s *semesterService) DeleteVacation(ctx context.Context, semesterID, vacationID string) error {
	vacation, err := s.repo.Vacation.GetByID(ctx, vacationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrVacationNotFound
		}
		s.logger.Error("查询假期失败", zap.String("id", vacationID), zap.Error(err))
		return err
	}
	if vacation.SemesterID != semesterID {
		return ErrVacationNotFound
	}

	if err := s.repo.Vacation.Delete(ctx, vacationID); err != nil {
		s.logger.Error("删除假期失败", zap.String("id", vacationID), zap.Error(err))
		return err
	}
	return nil
}

// ImportHolidays 导入节假日日历（ICS）
// 已存在的同名同起止区间跳过，重复导入同一份日历不会产生重复记录
func (s *semesterService) ImportHolidays(ctx context.Context, semesterID string, calendar io.Reader, callerID string) (*dto.HolidayImportResponse, error) {
	semester, err := s.getSemester(ctx, semesterID)
	if err != nil {
		return nil, err
	}

	periods, skipped, err := ParseHolidayCalendar(calendar, semester, s.loc)
	if err != nil {
		s.logger.Warn("节假日日历解析失败", zap.String("semester_id", semesterID), zap.Error(err))
		return nil, ErrHolidayCalendarInvalid
	}

	existing, err := s.repo.Vacation.ListBySemester(ctx, semesterID)
	if err != nil {
		s.logger.Error("列出假期失败", zap.String("semester_id", semesterID), zap.Error(err))
		return nil, err
	}
	seen := make(map[string]bool, len(existing))
	for i := range existing {
		seen[vacationKey(&existing[i])] = true
	}

	fresh := make([]model.VacationPeriod, 0, len(periods))
	for i := range periods {
		key := vacationKey(&periods[i])
		if seen[key] {
			skipped++
			continue
		}
		seen[key] = true
		periods[i].StampCreated(callerID)
		fresh = append(fresh, periods[i])
	}

	if err := s.repo.Vacation.BatchCreate(ctx, fresh); err != nil {
		s.logger.Error("批量创建假期失败", zap.String("semester_id", semesterID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("节假日日历导入完成",
		zap.String("semester_id", semesterID),
		zap.Int("imported", len(fresh)),
		zap.Int("skipped", skipped),
	)

	resp := &dto.HolidayImportResponse{
		Imported: make([]dto.VacationResponse, 0, len(fresh)),
		Skipped:  skipped,
	}
	for i := range fresh {
		resp.Imported = append(resp.Imported, toVacationResponse(&fresh[i]))
	}
	return resp, nil
}

// ── 内部辅助方法 ──

func (s *semesterService) getSemester(ctx context.Context, id string) (*model.Semester, error) {
	semester, err := s.repo.Semester.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSemesterNotFound
		}
		s.logger.Error("查询学期失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return semester, nil
}

// parseDateRange 解析闭区间 [start, end]，允许 start == end
func parseDateRange(start, end string) (time.Time, time.Time, error) {
	startDate, err := time.Parse(dateLayout, start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	endDate, err := time.Parse(dateLayout, end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if endDate.Before(startDate) {
		return time.Time{}, time.Time{}, ErrSemesterDateInvalid
	}
	return startDate, endDate, nil
}

func vacationKey(v *model.VacationPeriod) string {
	return NameKey(v.Name) + "|" + v.StartDate.Format(dateLayout) + "|" + v.EndDate.Format(dateLayout)
}

func toSemesterResponse(semester *model.Semester, vacations []model.VacationPeriod) *dto.SemesterResponse {
	resp := &dto.SemesterResponse{
		ID:        semester.SemesterID,
		Name:      semester.Name,
		StartDate: semester.StartDate.Format(dateLayout),
		EndDate:   semester.EndDate.Format(dateLayout),
		IsActive:  semester.IsActive,
		Version:   semester.Version,
		CreatedAt: semester.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt: semester.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
	for i := range vacations {
		resp.Vacations = append(resp.Vacations, toVacationResponse(&vacations[i]))
	}
	return resp
}

func toVacationResponse(v *model.VacationPeriod) dto.VacationResponse {
	return dto.VacationResponse{
		ID:         v.VacationID,
		SemesterID: v.SemesterID,
		Name:       v.Name,
		StartDate:  v.StartDate.Format(dateLayout),
		EndDate:    v.EndDate.Format(dateLayout),
		Kind:       v.Kind,
	}
}
