package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ── 周模板解析器 ──────────────────────────────────────────────
//
// 职责：把上传的周模板表格解析为 TemplateSlot 列表，只做结构校验。
//
// 模板约定：
//   - 每个工作日一个工作表：Lundi | Mardi | Mercredi | Jeudi | Vendredi，其他工作表忽略
//   - 第 1 行为表头；之后每行一名员工，第 1 列为员工全名
//   - 第 2 列起依次为当天的固定时段，短日只有上午时段
//   - 单元格语法 "<活动> – <姓名>, <姓名>"；"Pause" 表示无儿童参加；
//     姓名列表为 "tous" 表示全体儿童（展开时再解析）
//   - 第一个结构错误即终止整个解析，不返回部分结果
// ─────────────────────────────────────────────────────────────

// ErrNoWeekdaySheet 模板中没有任何可识别的工作日工作表
var ErrNoWeekdaySheet = errors.New("模板中没有工作日工作表（Lundi…Vendredi）")

var weekdaySheets = map[string]int{
	"lundi":    1,
	"mardi":    2,
	"mercredi": 3,
	"jeudi":    4,
	"vendredi": 5,
}

// WeekdaySheetName 星期编号对应的工作表名
func WeekdaySheetName(day int) string {
	switch day {
	case 1:
		return "Lundi"
	case 2:
		return "Mardi"
	case 3:
		return "Mercredi"
	case 4:
		return "Jeudi"
	case 5:
		return "Vendredi"
	}
	return ""
}

// 活动与姓名列表之间的分隔符：短破折号，兼容长破折号
var cellSeparators = []string{"–", "—"}

// TemplateSlot 模板中一个单元格的解析结果
type TemplateSlot struct {
	StaffName   string
	DayOfWeek   int
	SlotIndex   int
	Activity    string
	ChildNames  []string
	AllChildren bool // 姓名列表含 "tous"
	Pause       bool

	// 来源位置（1 起），用于错误定位
	Sheet string
	Row   int
	Col   int
}

// MalformedCellError 非空单元格不符合 "<活动> – <姓名>" 语法
type MalformedCellError struct {
	Sheet string
	Row   int
	Col   int
	Value string
}

func (e *MalformedCellError) Error() string {
	return fmt.Sprintf("工作表 %s 单元格 %s 格式无效: %q（应为 \"活动 – 姓名, 姓名\" 或 \"Pause\"）",
		e.Sheet, cellRef(e.Col, e.Row), e.Value)
}

// EmptyCellError 当天布局要求的单元格为空
type EmptyCellError struct {
	Sheet string
	Row   int
	Col   int
}

func (e *EmptyCellError) Error() string {
	return fmt.Sprintf("工作表 %s 单元格 %s 不能为空", e.Sheet, cellRef(e.Col, e.Row))
}

// DuplicateSheetError 同一工作日出现多个工作表
type DuplicateSheetError struct {
	Sheet string
	Day   int
}

func (e *DuplicateSheetError) Error() string {
	return fmt.Sprintf("工作表 %q 与已有的 %s 工作表重复", e.Sheet, WeekdaySheetName(e.Day))
}

// TemplateParser 周模板解析器
type TemplateParser struct {
	Layout       SlotLayout
	PauseKeyword string
	AllKeyword   string
}

// NewTemplateParser 创建解析器
func NewTemplateParser(layout SlotLayout, pauseKeyword, allKeyword string) *TemplateParser {
	return &TemplateParser{Layout: layout, PauseKeyword: pauseKeyword, AllKeyword: allKeyword}
}

// Parse 解析整个工作簿，按周一到周五、自上而下的顺序返回
func (p *TemplateParser) Parse(reader SpreadsheetReader) ([]TemplateSlot, error) {
	sheets := make(map[int]string)
	for _, name := range reader.SheetNames() {
		day, ok := weekdaySheets[NameKey(name)]
		if !ok {
			continue
		}
		if _, dup := sheets[day]; dup {
			return nil, &DuplicateSheetError{Sheet: name, Day: day}
		}
		sheets[day] = name
	}
	if len(sheets) == 0 {
		return nil, ErrNoWeekdaySheet
	}

	var result []TemplateSlot
	for day := 1; day <= 5; day++ {
		name, ok := sheets[day]
		if !ok {
			continue
		}
		rows, err := reader.Rows(name)
		if err != nil {
			return nil, err
		}
		slots, err := p.parseSheet(name, day, rows)
		if err != nil {
			return nil, err
		}
		result = append(result, slots...)
	}
	return result, nil
}

func (p *TemplateParser) parseSheet(sheet string, day int, rows [][]string) ([]TemplateSlot, error) {
	defs := p.Layout.SlotsFor(day)
	var result []TemplateSlot

	// rows[0] 为表头
	for ri := 1; ri < len(rows); ri++ {
		row := rows[ri]
		rowNum := ri + 1

		staffName := cleanName(cellAt(row, 0))
		hasContent := false
		for ci := range defs {
			if strings.TrimSpace(cellAt(row, ci+1)) != "" {
				hasContent = true
				break
			}
		}
		if staffName == "" {
			if !hasContent {
				continue
			}
			return nil, &EmptyCellError{Sheet: sheet, Row: rowNum, Col: 1}
		}

		for ci, def := range defs {
			col := ci + 2
			raw := strings.TrimSpace(cellAt(row, ci+1))
			if raw == "" {
				return nil, &EmptyCellError{Sheet: sheet, Row: rowNum, Col: col}
			}
			slot, err := p.parseCell(raw)
			if err != nil {
				return nil, &MalformedCellError{Sheet: sheet, Row: rowNum, Col: col, Value: raw}
			}
			slot.StaffName = staffName
			slot.DayOfWeek = day
			slot.SlotIndex = def.Index
			slot.Sheet = sheet
			slot.Row = rowNum
			slot.Col = col
			result = append(result, slot)
		}
	}
	return result, nil
}

var errCellGrammar = errors.New("cell grammar")

func (p *TemplateParser) parseCell(raw string) (TemplateSlot, error) {
	if NameKey(raw) == NameKey(p.PauseKeyword) {
		return TemplateSlot{Activity: p.PauseKeyword, Pause: true}, nil
	}

	activity, names, ok := splitCell(raw)
	if !ok {
		return TemplateSlot{}, errCellGrammar
	}
	activity = cleanName(activity)
	if activity == "" {
		return TemplateSlot{}, errCellGrammar
	}
	if NameKey(activity) == NameKey(p.PauseKeyword) {
		return TemplateSlot{Activity: p.PauseKeyword, Pause: true}, nil
	}

	slot := TemplateSlot{Activity: activity}
	seen := make(map[string]bool)
	for _, token := range strings.Split(names, ",") {
		name := cleanName(token)
		if name == "" {
			continue
		}
		key := NameKey(name)
		if key == NameKey(p.AllKeyword) {
			slot.AllChildren = true
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		slot.ChildNames = append(slot.ChildNames, name)
	}
	return slot, nil
}

// splitCell 按第一个破折号切分
func splitCell(raw string) (activity, names string, ok bool) {
	idx, sepLen := -1, 0
	for _, sep := range cellSeparators {
		if i := strings.Index(raw, sep); i >= 0 && (idx < 0 || i < idx) {
			idx, sepLen = i, len(sep)
		}
	}
	if idx < 0 {
		return "", "", false
	}
	return raw[:idx], raw[idx+sepLen:], true
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func cellRef(col, row int) string {
	ref, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Sprintf("R%dC%d", row, col)
	}
	return ref
}
