package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/model"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoSchedule   = errors.New("该学期暂无日程")
	ErrExportGenerateFail = errors.New("生成导出文件失败")
)

// ExportService 导出业务接口
//
// 设计说明：
//   - 总览导出为 .xlsx，格式与导入模板一致（每个工作日一个 Sheet），可直接再次导入
//   - 每个 (星期, 员工, 时段) 取最早一周的条目作为代表
//   - 行为全部在职员工，没有条目的单元格写作 Pause
//   - 员工日程导出为 iCalendar，已取消的条目不输出
//   - 导出以字节返回，由 Handler 层设置 HTTP 响应头后写入 Response
type ExportService interface {
	ExportOverview(ctx context.Context, semesterID string) (*bytes.Buffer, string, error)
	ExportStaffCalendar(ctx context.Context, semesterID, staffID string) ([]byte, string, error)
}

type exportService struct {
	repo   *repository.Repository
	engine *ScheduleEngine
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, engine *ScheduleEngine, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, engine: engine, logger: logger}
}

// ═══════════════════════════════════════════════════════════
// ExportOverview — 导出为周模板
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - Sheet Lundi … Vendredi
//   - 第 1 行：表头（员工 + 各时段时间）
//   - 之后每行一名员工；单元格 "活动 – 姓名, 姓名"，全体儿童写作 "tous"，无条目写作 "Pause"
//
// 返回值：buf（Excel 内容）, filename（建议文件名）, error

func (s *exportService) ExportOverview(ctx context.Context, semesterID string) (*bytes.Buffer, string, error) {
	// 1. 学期与条目
	semester, err := s.getSemester(ctx, semesterID)
	if err != nil {
		return nil, "", err
	}
	entries, err := s.repo.ScheduleEntry.ListBySemester(ctx, semesterID)
	if err != nil {
		s.logger.Error("查询学期日程失败", zap.Error(err))
		return nil, "", err
	}
	if len(entries) == 0 {
		return nil, "", ErrExportNoSchedule
	}

	// 行取自在职员工名单；全 Pause 的员工没有条目，但重新导入时仍需出现
	activeStaff, roster, err := s.repo.Directory.Snapshot(ctx)
	if err != nil {
		s.logger.Error("读取员工/儿童目录失败", zap.Error(err))
		return nil, "", err
	}
	staffIDs := make(map[string]bool, len(activeStaff))
	for _, st := range activeStaff {
		staffIDs[st.StaffID] = true
	}

	// 2. 代表周："day:staff:slot" → 最早的条目
	type cellKey struct {
		day     int
		staffID string
		slot    int
	}
	slotByStart := make(map[string]int, len(s.engine.Layout.Slots))
	for _, def := range s.engine.Layout.Slots {
		slotByStart[def.Start] = def.Index
	}

	loc := s.engine.Location
	picked := make(map[cellKey]*model.ScheduleEntry)
	skipped := 0
	for i := range entries {
		e := &entries[i]
		if !staffIDs[e.StaffID] {
			skipped++
			continue
		}
		idx, ok := slotByStart[e.StartTime.In(loc).Format("15:04")]
		if !ok {
			s.logger.Warn("条目时间不在当前时段布局中，导出时忽略",
				zap.String("entry_id", e.EntryID),
				zap.Time("start_time", e.StartTime),
			)
			continue
		}
		key := cellKey{day: e.DayOfWeek, staffID: e.StaffID, slot: idx}
		if prev, ok := picked[key]; !ok || e.StartTime.Before(prev.StartTime) {
			picked[key] = e
		}
	}
	if skipped > 0 {
		// 已离职员工的条目无法再导入
		s.logger.Warn("导出时跳过非在职员工的条目",
			zap.String("semester_id", semesterID),
			zap.Int("skipped", skipped),
		)
	}

	staff := make([]*model.Staff, 0, len(activeStaff))
	for i := range activeStaff {
		staff = append(staff, &activeStaff[i])
	}
	sort.Slice(staff, func(i, j int) bool {
		return NameKey(staff[i].FullName) < NameKey(staff[j].FullName)
	})

	// 3. 生成 Excel
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	for day := 1; day <= 5; day++ {
		sheetName := WeekdaySheetName(day)
		if day == 1 {
			f.SetSheetName("Sheet1", sheetName)
		} else if _, err := f.NewSheet(sheetName); err != nil {
			s.logger.Error("创建工作表失败", zap.String("sheet", sheetName), zap.Error(err))
			return nil, "", ErrExportGenerateFail
		}

		slots := s.engine.Layout.SlotsFor(day)
		f.SetColWidth(sheetName, "A", "A", 22)
		f.SetColWidth(sheetName, "B", colName(len(slots)), 36)

		// 表头
		f.SetCellValue(sheetName, cell("A", 1), "Personnel")
		for i, def := range slots {
			f.SetCellValue(sheetName, cell(colName(i+1), 1), fmt.Sprintf("%s-%s", def.Start, def.End))
		}
		f.SetCellStyle(sheetName, "A1", cell(colName(len(slots)), 1), headerStyle)

		// 数据行
		row := 2
		for _, st := range staff {
			f.SetCellValue(sheetName, cell("A", row), st.FullName)
			for i, def := range slots {
				text := s.engine.Parser.PauseKeyword
				if e, ok := picked[cellKey{day: day, staffID: st.StaffID, slot: def.Index}]; ok {
					text = s.cellText(e, roster)
				}
				f.SetCellValue(sheetName, cell(colName(i+1), row), text)
			}
			row++
		}
	}
	f.SetActiveSheet(0)

	// 写入 buffer
	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("planning_%s.xlsx", semester.Name)
	return buf, filename, nil
}

// ═══════════════════════════════════════════════════════════
// ExportStaffCalendar — 员工日程 ICS
// ═══════════════════════════════════════════════════════════

func (s *exportService) ExportStaffCalendar(ctx context.Context, semesterID, staffID string) ([]byte, string, error) {
	semester, err := s.getSemester(ctx, semesterID)
	if err != nil {
		return nil, "", err
	}
	staff, err := s.repo.Directory.GetStaff(ctx, staffID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrStaffNotFound
		}
		s.logger.Error("查询员工失败", zap.String("staff_id", staffID), zap.Error(err))
		return nil, "", err
	}

	entries, err := s.repo.ScheduleEntry.ListBySemesterAndStaff(ctx, semesterID, staffID)
	if err != nil {
		s.logger.Error("查询员工日程失败", zap.String("staff_id", staffID), zap.Error(err))
		return nil, "", err
	}

	body := BuildStaffCalendar(staff.FullName, semester.Name, entries, time.Now())
	filename := fmt.Sprintf("planning_%s_%s.ics", semester.Name, staff.FullName)
	return []byte(body), filename, nil
}

// ── 辅助函数 ──

func (s *exportService) getSemester(ctx context.Context, id string) (*model.Semester, error) {
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

// cellText 还原模板单元格；儿童集合等于当前全体名单时写作 "tous"
// 没有儿童的条目写作 "活动 – "，Pause 只留给没有条目的单元格
func (s *exportService) cellText(e *model.ScheduleEntry, roster []model.Child) string {
	if len(e.Children) == 0 {
		return e.Activity + " – "
	}
	if len(roster) > 0 && len(e.Children) == len(roster) {
		ids := make(map[string]bool, len(e.Children))
		for _, c := range e.Children {
			ids[c.ChildID] = true
		}
		all := true
		for _, c := range roster {
			if !ids[c.ChildID] {
				all = false
				break
			}
		}
		if all {
			return e.Activity + " – " + s.engine.Parser.AllKeyword
		}
	}
	return e.Activity + " – " + strings.Join(childNames(e), ", ")
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
