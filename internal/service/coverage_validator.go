package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/model"
)

// 校验问题类型，同时决定报告中的排序
const (
	ViolationUnknownStaff         = "unknown_staff"
	ViolationUnknownChild         = "unknown_child"
	ViolationAmbiguousName        = "ambiguous_name"
	ViolationMissingStaffCoverage = "missing_staff_coverage"
	ViolationMissingChildCoverage = "missing_child_coverage"
)

var violationOrder = map[string]int{
	ViolationUnknownStaff:         0,
	ViolationUnknownChild:         1,
	ViolationAmbiguousName:        2,
	ViolationMissingStaffCoverage: 3,
	ViolationMissingChildCoverage: 4,
}

// Violation 校验报告中的一项问题
type Violation interface {
	error
	Kind() string
}

// UnknownStaffError 模板中的员工在目录中不存在
type UnknownStaffError struct {
	Name string
	Day  int
	Row  int
}

func (e *UnknownStaffError) Kind() string { return ViolationUnknownStaff }
func (e *UnknownStaffError) Error() string {
	return fmt.Sprintf("未知员工 %q（%s 第 %d 行）", e.Name, WeekdaySheetName(e.Day), e.Row)
}

// UnknownChildError 模板中的儿童在目录中不存在
type UnknownChildError struct {
	Name      string
	StaffName string
	Day       int
	SlotIndex int
}

func (e *UnknownChildError) Kind() string { return ViolationUnknownChild }
func (e *UnknownChildError) Error() string {
	return fmt.Sprintf("未知儿童 %q（%s，%s 时段 %d）", e.Name, WeekdaySheetName(e.Day), e.StaffName, e.SlotIndex)
}

// AmbiguousNameError 姓名在目录中对应多条记录
type AmbiguousNameError struct {
	Name    string
	Role    string // staff | child
	Matches int
}

func (e *AmbiguousNameError) Kind() string { return ViolationAmbiguousName }
func (e *AmbiguousNameError) Error() string {
	return fmt.Sprintf("姓名 %q 在%s目录中有 %d 条同名记录", e.Name, roleLabel(e.Role), e.Matches)
}

// MissingStaffCoverageError 员工在模板中一次都没有出现
type MissingStaffCoverageError struct {
	StaffName string
}

func (e *MissingStaffCoverageError) Kind() string { return ViolationMissingStaffCoverage }
func (e *MissingStaffCoverageError) Error() string {
	return fmt.Sprintf("员工 %s 未出现在模板中", e.StaffName)
}

// MissingChildCoverageError 儿童在某天的上午或下午没有安排
type MissingChildCoverageError struct {
	ChildName string
	Day       int
	Period    Period
}

func (e *MissingChildCoverageError) Kind() string { return ViolationMissingChildCoverage }
func (e *MissingChildCoverageError) Error() string {
	half := "上午"
	if e.Period == PeriodAfternoon {
		half = "下午"
	}
	return fmt.Sprintf("儿童 %s 在 %s %s没有安排", e.ChildName, WeekdaySheetName(e.Day), half)
}

// ValidationReport 完整的校验结果，包含全部问题而非第一个
type ValidationReport struct {
	Violations []Violation
}

func (r *ValidationReport) Error() string {
	const maxListed = 5
	parts := make([]string, 0, maxListed)
	for i, v := range r.Violations {
		if i == maxListed {
			break
		}
		parts = append(parts, v.Error())
	}
	msg := fmt.Sprintf("模板校验未通过，共 %d 项问题: %s", len(r.Violations), strings.Join(parts, "; "))
	if len(r.Violations) > maxListed {
		msg += " …"
	}
	return msg
}

// CountByKind 按类型统计
func (r *ValidationReport) CountByKind() map[string]int {
	out := make(map[string]int)
	for _, v := range r.Violations {
		out[v.Kind()]++
	}
	return out
}

func (r *ValidationReport) add(v Violation) {
	r.Violations = append(r.Violations, v)
}

// DirectorySnapshot 一次请求内使用的目录快照
type DirectorySnapshot struct {
	Staff    []model.Staff
	Children []model.Child
}

// ResolvedSlot 姓名已解析为目录记录的模板时段
type ResolvedSlot struct {
	TemplateSlot
	Staff    *model.Staff
	Children []*model.Child
}

// CoverageValidator 模板覆盖校验器
type CoverageValidator struct {
	Layout SlotLayout
}

// NewCoverageValidator 创建校验器
func NewCoverageValidator(layout SlotLayout) *CoverageValidator {
	return &CoverageValidator{Layout: layout}
}

type nameIndex[T any] map[string][]*T

func indexStaff(staff []model.Staff) nameIndex[model.Staff] {
	idx := make(nameIndex[model.Staff])
	for i := range staff {
		k := NameKey(staff[i].FullName)
		idx[k] = append(idx[k], &staff[i])
	}
	return idx
}

func indexChildren(children []model.Child) nameIndex[model.Child] {
	idx := make(nameIndex[model.Child])
	for i := range children {
		k := NameKey(children[i].FullName)
		idx[k] = append(idx[k], &children[i])
	}
	return idx
}

// Validate 完整走一遍所有检查并汇总问题
// 报告为 nil 表示模板通过；非 nil 时返回的 ResolvedSlot 不可用于展开
func (v *CoverageValidator) Validate(slots []TemplateSlot, dir DirectorySnapshot) ([]ResolvedSlot, *ValidationReport) {
	report := &ValidationReport{}
	staffIdx := indexStaff(dir.Staff)
	childIdx := indexChildren(dir.Children)

	type rowKey struct{ day, row int }
	reportedRows := make(map[rowKey]bool)
	reportedAmbiguous := make(map[string]bool)

	seenStaff := make(map[string]bool)
	// 覆盖矩阵：childID -> day -> period
	covered := make(map[string]map[int]map[Period]bool)
	mark := func(childID string, day int, period Period) {
		if covered[childID] == nil {
			covered[childID] = make(map[int]map[Period]bool)
		}
		if covered[childID][day] == nil {
			covered[childID][day] = make(map[Period]bool)
		}
		covered[childID][day][period] = true
	}

	resolved := make([]ResolvedSlot, 0, len(slots))
	for _, slot := range slots {
		rs := ResolvedSlot{TemplateSlot: slot}

		matches := staffIdx[NameKey(slot.StaffName)]
		switch {
		case len(matches) == 0:
			k := rowKey{slot.DayOfWeek, slot.Row}
			if !reportedRows[k] {
				reportedRows[k] = true
				report.add(&UnknownStaffError{Name: slot.StaffName, Day: slot.DayOfWeek, Row: slot.Row})
			}
		case len(matches) > 1:
			k := "staff:" + NameKey(slot.StaffName)
			if !reportedAmbiguous[k] {
				reportedAmbiguous[k] = true
				report.add(&AmbiguousNameError{Name: slot.StaffName, Role: "staff", Matches: len(matches)})
			}
		default:
			rs.Staff = matches[0]
			seenStaff[rs.Staff.StaffID] = true
		}

		if slot.Pause {
			resolved = append(resolved, rs)
			continue
		}

		def, _ := v.Layout.Slot(slot.SlotIndex)
		for _, name := range slot.ChildNames {
			cm := childIdx[NameKey(name)]
			switch {
			case len(cm) == 0:
				report.add(&UnknownChildError{Name: name, StaffName: slot.StaffName, Day: slot.DayOfWeek, SlotIndex: slot.SlotIndex})
			case len(cm) > 1:
				k := "child:" + NameKey(name)
				if !reportedAmbiguous[k] {
					reportedAmbiguous[k] = true
					report.add(&AmbiguousNameError{Name: name, Role: "child", Matches: len(cm)})
				}
			default:
				rs.Children = append(rs.Children, cm[0])
				mark(cm[0].ChildID, slot.DayOfWeek, def.Period)
			}
		}
		if slot.AllChildren {
			for i := range dir.Children {
				mark(dir.Children[i].ChildID, slot.DayOfWeek, def.Period)
			}
		}
		resolved = append(resolved, rs)
	}

	// 员工完整性
	for i := range dir.Staff {
		if !seenStaff[dir.Staff[i].StaffID] {
			report.add(&MissingStaffCoverageError{StaffName: dir.Staff[i].FullName})
		}
	}

	// 儿童完整性：每个工作日上午必须有，非短日下午也必须有
	for i := range dir.Children {
		c := &dir.Children[i]
		for day := 1; day <= 5; day++ {
			if !covered[c.ChildID][day][PeriodMorning] {
				report.add(&MissingChildCoverageError{ChildName: c.FullName, Day: day, Period: PeriodMorning})
			}
			if v.Layout.RequiresAfternoon(day) && !covered[c.ChildID][day][PeriodAfternoon] {
				report.add(&MissingChildCoverageError{ChildName: c.FullName, Day: day, Period: PeriodAfternoon})
			}
		}
	}

	if len(report.Violations) == 0 {
		return resolved, nil
	}
	sortViolations(report.Violations)
	return resolved, report
}

// sortViolations 类型 → 星期 → 姓名 → 其余位置信息，保证同一输入得到同一报告
func sortViolations(vs []Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := vs[i], vs[j]
		if violationOrder[a.Kind()] != violationOrder[b.Kind()] {
			return violationOrder[a.Kind()] < violationOrder[b.Kind()]
		}
		ka, kb := violationSortKey(a), violationSortKey(b)
		if ka.day != kb.day {
			return ka.day < kb.day
		}
		if ka.name != kb.name {
			return ka.name < kb.name
		}
		return ka.pos < kb.pos
	})
}

type violationKey struct {
	day  int
	name string
	pos  int
}

func violationSortKey(v Violation) violationKey {
	switch e := v.(type) {
	case *UnknownStaffError:
		return violationKey{e.Day, NameKey(e.Name), e.Row}
	case *UnknownChildError:
		return violationKey{e.Day, NameKey(e.Name) + "\x00" + NameKey(e.StaffName), e.SlotIndex}
	case *AmbiguousNameError:
		return violationKey{0, e.Role + "\x00" + NameKey(e.Name), 0}
	case *MissingStaffCoverageError:
		return violationKey{0, NameKey(e.StaffName), 0}
	case *MissingChildCoverageError:
		pos := 0
		if e.Period == PeriodAfternoon {
			pos = 1
		}
		return violationKey{e.Day, NameKey(e.ChildName), pos}
	}
	return violationKey{}
}

func roleLabel(role string) string {
	if role == "staff" {
		return "员工"
	}
	return "儿童"
}
