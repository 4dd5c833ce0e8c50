package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/config"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/dto"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/model"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/repository"
	pkgerrors "github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/errors"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/metrics"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/storage"
)

// ── 日程模块业务错误 ──

var (
	ErrImportInProgress    = fmt.Errorf("该学期正在导入日程: %w", pkgerrors.ErrLockNotAcquired)
	ErrTemplateNotArchived = errors.New("该学期没有已归档的模板")
	ErrStaffNotFound       = errors.New("员工不存在")
	ErrChildNotFound       = errors.New("儿童不存在")
	ErrQueryDateInvalid    = errors.New("查询日期格式应为 YYYY-MM-DD")
)

// ImportLocker 按学期互斥的分布式锁（pkg/redis.Client 实现）
type ImportLocker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// TemplateSource 只读的模板归档（pkg/storage.FileArchive 实现）
type TemplateSource interface {
	Load(ctx context.Context, semesterID string) (string, []byte, error)
}

// ════════════════════════════════════════════════════════════
// ScheduleEngine — 解析 → 校验 → 展开
// ════════════════════════════════════════════════════════════

// ScheduleEngine 组合导入流水线的纯计算部分，不访问数据库
type ScheduleEngine struct {
	Layout    SlotLayout
	Parser    *TemplateParser
	Validator *CoverageValidator
	Expander  *SemesterExpander
	Location  *time.Location
}

// NewScheduleEngine 根据配置构建引擎
func NewScheduleEngine(cfg *config.ScheduleConfig) (*ScheduleEngine, error) {
	layout, err := NewSlotLayout(cfg)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &ScheduleEngine{
		Layout:    layout,
		Parser:    NewTemplateParser(layout, cfg.PauseKeyword, cfg.AllKeyword),
		Validator: NewCoverageValidator(layout),
		Expander:  NewSemesterExpander(layout, loc),
		Location:  loc,
	}, nil
}

// ParseTemplate 打开表格并解析
func (e *ScheduleEngine) ParseTemplate(data []byte, fileName string) ([]TemplateSlot, error) {
	reader, err := OpenSpreadsheet(data, fileName)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return e.Parser.Parse(reader)
}

// ── 服务 ──

// ScheduleService 日程导入与查询业务接口
type ScheduleService interface {
	// 预览：与正式导入执行完全相同的流水线，但不写库
	PreviewSchedule(ctx context.Context, semesterID, fileName string, data []byte) (*dto.SchedulePreviewResponse, error)
	// 导入：整学期替换
	ImportSchedule(ctx context.Context, semesterID, fileName string, data []byte, operatorID string) (*dto.ScheduleImportResponse, error)
	// 用当前目录重新校验已归档的模板
	RevalidateSchedule(ctx context.Context, semesterID string) (*dto.ValidationReportResponse, error)
	ListImports(ctx context.Context, semesterID string, req *dto.ScheduleImportListRequest) ([]dto.ScheduleImportRecordResponse, int64, error)

	GetOverview(ctx context.Context, semesterID string, q *dto.ScheduleQuery) ([]dto.ScheduleEntryResponse, error)
	GetStaffSchedule(ctx context.Context, semesterID, staffID string, q *dto.ScheduleQuery) ([]dto.ScheduleEntryResponse, error)
	GetChildSchedule(ctx context.Context, semesterID, childID, requesterID string, q *dto.ScheduleQuery) ([]dto.ScheduleEntryResponse, error)
}

type scheduleService struct {
	repo      *repository.Repository
	engine    *ScheduleEngine
	locker    ImportLocker
	templates TemplateSource
	lockTTL   time.Duration
	logger    *zap.Logger
}

// NewScheduleService 创建 ScheduleService 实例
func NewScheduleService(
	repo *repository.Repository,
	engine *ScheduleEngine,
	locker ImportLocker,
	templates TemplateSource,
	lockTTL time.Duration,
	logger *zap.Logger,
) ScheduleService {
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &scheduleService{
		repo:      repo,
		engine:    engine,
		locker:    locker,
		templates: templates,
		lockTTL:   lockTTL,
		logger:    logger,
	}
}

// expansion 一次流水线的产物
type expansion struct {
	semester *model.Semester
	slots    []TemplateSlot
	weeks    int
	entries  []model.ScheduleEntry
}

// build 解析 → 目录快照 → 校验 → 展开
// 校验未通过时返回 *ValidationReport 作为 error
func (s *scheduleService) build(ctx context.Context, semesterID, fileName string, data []byte) (*expansion, error) {
	semester, err := s.getSemester(ctx, semesterID)
	if err != nil {
		return nil, err
	}
	vacations, err := s.repo.Vacation.ListBySemester(ctx, semesterID)
	if err != nil {
		s.logger.Error("查询学期假期失败", zap.String("semester_id", semesterID), zap.Error(err))
		return nil, err
	}

	slots, err := s.engine.ParseTemplate(data, fileName)
	if err != nil {
		return nil, err
	}

	staff, children, err := s.repo.Directory.Snapshot(ctx)
	if err != nil {
		s.logger.Error("读取目录快照失败", zap.Error(err))
		return nil, err
	}

	resolved, report := s.engine.Validator.Validate(slots, DirectorySnapshot{Staff: staff, Children: children})
	if report != nil {
		return nil, report
	}

	weeks, err := s.engine.Expander.EligibleWeeks(semester, vacations)
	if err != nil {
		return nil, err
	}
	entries, err := s.engine.Expander.Expand(resolved, semester, vacations, children)
	if err != nil {
		return nil, err
	}

	return &expansion{semester: semester, slots: slots, weeks: len(weeks), entries: entries}, nil
}

// ════════════════════════════════════════════════════════════
// PreviewSchedule
// ════════════════════════════════════════════════════════════

func (s *scheduleService) PreviewSchedule(ctx context.Context, semesterID, fileName string, data []byte) (*dto.SchedulePreviewResponse, error) {
	start := time.Now()
	exp, err := s.build(ctx, semesterID, fileName, data)
	if err != nil {
		metrics.ObserveImport("preview", importOutcome(err), time.Since(start), 0)
		return nil, err
	}
	metrics.ObserveImport("preview", metrics.OutcomeSuccess, time.Since(start), len(exp.entries))

	resp := &dto.SchedulePreviewResponse{
		SemesterID:    semesterID,
		TemplateSlots: len(exp.slots),
		WeekCount:     exp.weeks,
		EntryCount:    len(exp.entries),
		Entries:       make([]dto.ScheduleEntryResponse, 0, len(exp.entries)),
	}
	for i := range exp.entries {
		resp.Entries = append(resp.Entries, toEntryResponse(&exp.entries[i], s.engine.Location))
	}
	return resp, nil
}

// ════════════════════════════════════════════════════════════
// ImportSchedule
// ════════════════════════════════════════════════════════════

func (s *scheduleService) ImportSchedule(ctx context.Context, semesterID, fileName string, data []byte, operatorID string) (*dto.ScheduleImportResponse, error) {
	start := time.Now()
	resp, entries, err := s.importSchedule(ctx, semesterID, fileName, data, operatorID)
	if err != nil {
		metrics.ObserveImport("import", importOutcome(err), time.Since(start), 0)
		return nil, err
	}
	metrics.ObserveImport("import", metrics.OutcomeSuccess, time.Since(start), entries)

	s.logger.Info("日程导入完成",
		zap.String("semester_id", semesterID),
		zap.String("file_name", fileName),
		zap.Int("template_slots", resp.TemplateSlots),
		zap.Int("entries", resp.EntryCount),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}

func (s *scheduleService) importSchedule(ctx context.Context, semesterID, fileName string, data []byte, operatorID string) (*dto.ScheduleImportResponse, int, error) {
	release, err := s.acquireImportLock(ctx, semesterID)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	exp, err := s.build(ctx, semesterID, fileName, data)
	if err != nil {
		return nil, 0, err
	}

	for i := range exp.entries {
		exp.entries[i].StampCreated(operatorID)
	}

	sum := sha256.Sum256(data)
	record := &model.ScheduleImport{
		SemesterID:    semesterID,
		FileName:      fileName,
		FileSHA256:    hex.EncodeToString(sum[:]),
		TemplateSlots: len(exp.slots),
		EntryCount:    len(exp.entries),
		ImportedBy:    operatorID,
		ImportedAt:    time.Now(),
	}

	if err := s.repo.ScheduleEntry.ReplaceBySemester(ctx, semesterID, exp.entries, record); err != nil {
		switch {
		case errors.Is(err, repository.ErrSerializationConflict):
			return nil, 0, ErrImportInProgress
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, 0, ErrSemesterNotFound
		}
		s.logger.Error("替换学期日程失败", zap.String("semester_id", semesterID), zap.Error(err))
		return nil, 0, err
	}

	return &dto.ScheduleImportResponse{
		ImportID:      record.ImportID,
		SemesterID:    semesterID,
		FileName:      fileName,
		TemplateSlots: record.TemplateSlots,
		WeekCount:     exp.weeks,
		EntryCount:    record.EntryCount,
		ImportedAt:    record.ImportedAt.UTC().Format(time.RFC3339),
	}, len(exp.entries), nil
}

// acquireImportLock 获取学期导入锁
// Redis 不可用时降级为无锁，由数据库可串行化事务兜底
func (s *scheduleService) acquireImportLock(ctx context.Context, semesterID string) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}

	key := "schedule:import:" + semesterID
	token, ok, err := s.locker.AcquireLock(ctx, key, s.lockTTL)
	if err != nil {
		s.logger.Warn("获取导入锁失败，降级为无锁导入", zap.String("key", key), zap.Error(err))
		return noop, nil
	}
	if !ok {
		return nil, ErrImportInProgress
	}

	return func() {
		if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
			s.logger.Warn("释放导入锁失败", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// ════════════════════════════════════════════════════════════
// RevalidateSchedule
// ════════════════════════════════════════════════════════════

func (s *scheduleService) RevalidateSchedule(ctx context.Context, semesterID string) (*dto.ValidationReportResponse, error) {
	if _, err := s.getSemester(ctx, semesterID); err != nil {
		return nil, err
	}
	if s.templates == nil {
		return nil, ErrTemplateNotArchived
	}

	fileName, data, err := s.templates.Load(ctx, semesterID)
	if err != nil {
		if errors.Is(err, storage.ErrNotArchived) {
			return nil, ErrTemplateNotArchived
		}
		s.logger.Error("读取归档模板失败", zap.String("semester_id", semesterID), zap.Error(err))
		return nil, err
	}

	slots, err := s.engine.ParseTemplate(data, fileName)
	if err != nil {
		return nil, err
	}

	staff, children, err := s.repo.Directory.Snapshot(ctx)
	if err != nil {
		s.logger.Error("读取目录快照失败", zap.Error(err))
		return nil, err
	}

	_, report := s.engine.Validator.Validate(slots, DirectorySnapshot{Staff: staff, Children: children})
	return ToValidationReportResponse(report), nil
}

// ════════════════════════════════════════════════════════════
// ListImports
// ════════════════════════════════════════════════════════════

func (s *scheduleService) ListImports(ctx context.Context, semesterID string, req *dto.ScheduleImportListRequest) ([]dto.ScheduleImportRecordResponse, int64, error) {
	if _, err := s.getSemester(ctx, semesterID); err != nil {
		return nil, 0, err
	}

	records, total, err := s.repo.ScheduleImport.ListBySemester(ctx, semesterID, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询导入记录失败", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.ScheduleImportRecordResponse, 0, len(records))
	for _, r := range records {
		result = append(result, dto.ScheduleImportRecordResponse{
			ImportID:      r.ImportID,
			FileName:      r.FileName,
			FileSHA256:    r.FileSHA256,
			TemplateSlots: r.TemplateSlots,
			EntryCount:    r.EntryCount,
			ImportedBy:    r.ImportedBy,
			ImportedAt:    r.ImportedAt.UTC().Format(time.RFC3339),
		})
	}
	return result, total, nil
}

// ════════════════════════════════════════════════════════════
// 查询
// ════════════════════════════════════════════════════════════

func (s *scheduleService) GetOverview(ctx context.Context, semesterID string, q *dto.ScheduleQuery) ([]dto.ScheduleEntryResponse, error) {
	filter, err := s.newEntryFilter(q)
	if err != nil {
		return nil, err
	}
	if _, err := s.getSemester(ctx, semesterID); err != nil {
		return nil, err
	}

	entries, err := s.repo.ScheduleEntry.ListBySemester(ctx, semesterID)
	if err != nil {
		s.logger.Error("查询学期日程失败", zap.String("semester_id", semesterID), zap.Error(err))
		return nil, err
	}
	return filter.apply(entries), nil
}

func (s *scheduleService) GetStaffSchedule(ctx context.Context, semesterID, staffID string, q *dto.ScheduleQuery) ([]dto.ScheduleEntryResponse, error) {
	filter, err := s.newEntryFilter(q)
	if err != nil {
		return nil, err
	}
	if _, err := s.getSemester(ctx, semesterID); err != nil {
		return nil, err
	}
	if _, err := s.repo.Directory.GetStaff(ctx, staffID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStaffNotFound
		}
		s.logger.Error("查询员工失败", zap.String("staff_id", staffID), zap.Error(err))
		return nil, err
	}

	entries, err := s.repo.ScheduleEntry.ListBySemesterAndStaff(ctx, semesterID, staffID)
	if err != nil {
		s.logger.Error("查询员工日程失败", zap.String("staff_id", staffID), zap.Error(err))
		return nil, err
	}
	return filter.apply(entries), nil
}

// GetChildSchedule 儿童日程；访问权限已由 ChildAccess 中间件校验
func (s *scheduleService) GetChildSchedule(ctx context.Context, semesterID, childID, requesterID string, q *dto.ScheduleQuery) ([]dto.ScheduleEntryResponse, error) {
	filter, err := s.newEntryFilter(q)
	if err != nil {
		return nil, err
	}
	if _, err := s.getSemester(ctx, semesterID); err != nil {
		return nil, err
	}
	if _, err := s.repo.Directory.GetChild(ctx, childID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChildNotFound
		}
		s.logger.Error("查询儿童失败", zap.String("child_id", childID), zap.Error(err))
		return nil, err
	}

	entries, err := s.repo.ScheduleEntry.ListBySemesterAndChild(ctx, semesterID, childID)
	if err != nil {
		s.logger.Error("查询儿童日程失败",
			zap.String("child_id", childID),
			zap.String("requester_id", requesterID),
			zap.Error(err),
		)
		return nil, err
	}
	return filter.apply(entries), nil
}

// ── 内部辅助方法 ──

func (s *scheduleService) getSemester(ctx context.Context, id string) (*model.Semester, error) {
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

// entryFilter 日期区间（闭区间，模板时区）+ 是否包含已取消条目
type entryFilter struct {
	from, to         time.Time
	includeCancelled bool
	loc              *time.Location
}

func (s *scheduleService) newEntryFilter(q *dto.ScheduleQuery) (*entryFilter, error) {
	f := &entryFilter{loc: s.engine.Location}
	if q == nil {
		return f, nil
	}
	f.includeCancelled = q.IncludeCancelled
	if q.From != "" {
		t, err := time.ParseInLocation(dateLayout, q.From, f.loc)
		if err != nil {
			return nil, ErrQueryDateInvalid
		}
		f.from = t
	}
	if q.To != "" {
		t, err := time.ParseInLocation(dateLayout, q.To, f.loc)
		if err != nil {
			return nil, ErrQueryDateInvalid
		}
		f.to = t
	}
	return f, nil
}

func (f *entryFilter) apply(entries []model.ScheduleEntry) []dto.ScheduleEntryResponse {
	result := make([]dto.ScheduleEntryResponse, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		if e.Cancelled && !f.includeCancelled {
			continue
		}
		day := civilDate(e.StartTime.In(f.loc), f.loc)
		if !f.from.IsZero() && day.Before(f.from) {
			continue
		}
		if !f.to.IsZero() && day.After(f.to) {
			continue
		}
		result = append(result, toEntryResponse(e, f.loc))
	}
	return result
}

// importOutcome 把流水线错误归类为指标标签
func importOutcome(err error) string {
	var (
		report    *ValidationReport
		malformed *MalformedCellError
		empty     *EmptyCellError
		dup       *DuplicateSheetError
	)
	switch {
	case errors.Is(err, ErrImportInProgress):
		return metrics.OutcomeLocked
	case errors.As(err, &report), errors.As(err, &malformed), errors.As(err, &empty), errors.As(err, &dup),
		errors.Is(err, ErrNoWeekdaySheet), errors.Is(err, ErrSpreadsheetUnreadable), errors.Is(err, ErrSemesterNotFound):
		return metrics.OutcomeRejected
	}
	return metrics.OutcomeFailed
}

// ToValidationReportResponse 校验报告 → 响应；report 为 nil 表示通过
func ToValidationReportResponse(report *ValidationReport) *dto.ValidationReportResponse {
	resp := &dto.ValidationReportResponse{Valid: report == nil, Violations: []dto.ViolationResponse{}}
	if report == nil {
		return resp
	}
	resp.Counts = report.CountByKind()
	for _, v := range report.Violations {
		item := dto.ViolationResponse{Kind: v.Kind(), Message: v.Error()}
		switch e := v.(type) {
		case *UnknownStaffError:
			item.Name, item.Day, item.Row = e.Name, e.Day, e.Row
		case *UnknownChildError:
			item.Name, item.StaffName, item.Day, item.SlotIndex = e.Name, e.StaffName, e.Day, e.SlotIndex
		case *AmbiguousNameError:
			item.Name = e.Name
		case *MissingStaffCoverageError:
			item.StaffName = e.StaffName
		case *MissingChildCoverageError:
			item.Name, item.Day, item.Period = e.ChildName, e.Day, string(e.Period)
		}
		resp.Violations = append(resp.Violations, item)
	}
	return resp
}

// TemplateErrorDetail 模板结构错误的定位信息
func TemplateErrorDetail(err error) (*dto.TemplateErrorResponse, bool) {
	var (
		malformed *MalformedCellError
		empty     *EmptyCellError
		dup       *DuplicateSheetError
	)
	switch {
	case errors.As(err, &malformed):
		return &dto.TemplateErrorResponse{
			Sheet: malformed.Sheet, Row: malformed.Row, Col: malformed.Col,
			Cell: cellRef(malformed.Col, malformed.Row), Value: malformed.Value,
		}, true
	case errors.As(err, &empty):
		return &dto.TemplateErrorResponse{
			Sheet: empty.Sheet, Row: empty.Row, Col: empty.Col,
			Cell: cellRef(empty.Col, empty.Row),
		}, true
	case errors.As(err, &dup):
		return &dto.TemplateErrorResponse{Sheet: dup.Sheet}, true
	}
	return nil, false
}

func toEntryResponse(e *model.ScheduleEntry, loc *time.Location) dto.ScheduleEntryResponse {
	resp := dto.ScheduleEntryResponse{
		ID:         e.EntryID,
		SemesterID: e.SemesterID,
		Staff:      dto.StaffBrief{ID: e.StaffID},
		DayOfWeek:  e.DayOfWeek,
		Date:       e.StartTime.In(loc).Format(dateLayout),
		StartTime:  e.StartTime.In(loc).Format(time.RFC3339),
		EndTime:    e.EndTime.In(loc).Format(time.RFC3339),
		Activity:   e.Activity,
		Cancelled:  e.Cancelled,
		Version:    e.Version,
		Children:   make([]dto.ChildBrief, 0, len(e.Children)),
	}
	if e.Staff != nil {
		resp.Staff.FullName = e.Staff.FullName
	}
	for _, c := range e.Children {
		brief := dto.ChildBrief{ID: c.ChildID}
		if c.Child != nil {
			brief.FullName = c.Child.FullName
		}
		resp.Children = append(resp.Children, brief)
	}
	return resp
}
