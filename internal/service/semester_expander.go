package service

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/model"
)

// SemesterExpander 把一周模板展开成整个学期的具体条目
type SemesterExpander struct {
	Layout   SlotLayout
	Location *time.Location
}

// NewSemesterExpander 创建展开器
func NewSemesterExpander(layout SlotLayout, loc *time.Location) *SemesterExpander {
	return &SemesterExpander{Layout: layout, Location: loc}
}

// Week 一个参与展开的教学周
type Week struct {
	Offset int       // 距学期第一个周一的周数
	Monday time.Time // 当周周一 00:00（模板时区）
}

// EligibleWeeks 学期内所有未被假期排除的周
//
// 周一序列由 FREQ=WEEKLY;BYDAY=MO 规则生成，起点为 StartDate 之后的第一个周一，
// 终点为 EndDate。周一落在任一假期/节假日区间（闭区间）内的周整周跳过。
func (e *SemesterExpander) EligibleWeeks(semester *model.Semester, vacations []model.VacationPeriod) ([]Week, error) {
	first := FirstMonday(civilDate(semester.StartDate, e.Location))
	end := civilDate(semester.EndDate, e.Location)
	if first.After(end) {
		return nil, nil
	}

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: []rrule.Weekday{rrule.MO},
		Dtstart:   first,
		Until:     end.AddDate(0, 0, 1).Add(-time.Second),
	})
	if err != nil {
		return nil, err
	}

	var set rrule.Set
	set.RRule(rule)
	for _, v := range vacations {
		for d := civilDate(v.StartDate, e.Location); !d.After(civilDate(v.EndDate, e.Location)); d = d.AddDate(0, 0, 1) {
			if d.Weekday() == time.Monday {
				set.ExDate(d)
			}
		}
	}

	mondays := set.All()
	weeks := make([]Week, 0, len(mondays))
	for _, m := range mondays {
		m = civilDate(m, e.Location)
		weeks = append(weeks, Week{Offset: weeksBetween(first, m), Monday: m})
	}
	return weeks, nil
}

// Expand 为每个可用周的每个非 Pause 时段生成一条 ScheduleEntry
//
// "tous" 使用调用时传入的 roster 解析，而不是解析模板时的名单。
// EndDate 之后的日期（学期最后一周不完整时）不生成条目。
func (e *SemesterExpander) Expand(slots []ResolvedSlot, semester *model.Semester, vacations []model.VacationPeriod, roster []model.Child) ([]model.ScheduleEntry, error) {
	if semester == nil {
		return nil, ErrSemesterNotFound
	}

	weeks, err := e.EligibleWeeks(semester, vacations)
	if err != nil {
		return nil, err
	}

	ordered := make([]ResolvedSlot, 0, len(slots))
	for _, s := range slots {
		if s.Pause {
			continue
		}
		ordered = append(ordered, s)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.DayOfWeek != b.DayOfWeek {
			return a.DayOfWeek < b.DayOfWeek
		}
		if ka, kb := NameKey(a.StaffName), NameKey(b.StaffName); ka != kb {
			return ka < kb
		}
		return a.SlotIndex < b.SlotIndex
	})

	end := civilDate(semester.EndDate, e.Location)
	entries := make([]model.ScheduleEntry, 0, len(weeks)*len(ordered))
	for _, w := range weeks {
		for _, s := range ordered {
			def, ok := e.Layout.Slot(s.SlotIndex)
			if !ok {
				continue
			}
			start, err := AnchorTime(semester, s.DayOfWeek, def.Start, w.Offset, e.Location)
			if err != nil {
				return nil, err
			}
			if civilDate(start, e.Location).After(end) {
				continue
			}
			finish, err := AnchorTime(semester, s.DayOfWeek, def.End, w.Offset, e.Location)
			if err != nil {
				return nil, err
			}

			entry := model.ScheduleEntry{
				EntryID:    uuid.New().String(),
				SemesterID: semester.SemesterID,
				DayOfWeek:  s.DayOfWeek,
				StartTime:  start,
				EndTime:    finish,
				Activity:   s.Activity,
				Version:    1,
			}
			if s.Staff != nil {
				entry.StaffID = s.Staff.StaffID
				entry.Staff = s.Staff
			}
			entry.Children = entryChildren(entry.EntryID, s, roster)
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// entryChildren 合并显式姓名与 "tous" 名单，按 child_id 去重排序
func entryChildren(entryID string, s ResolvedSlot, roster []model.Child) []model.ScheduleEntryChild {
	byID := make(map[string]*model.Child)
	for _, c := range s.Children {
		byID[c.ChildID] = c
	}
	if s.AllChildren {
		for i := range roster {
			byID[roster[i].ChildID] = &roster[i]
		}
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]model.ScheduleEntryChild, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.ScheduleEntryChild{EntryID: entryID, ChildID: id, Child: byID[id]})
	}
	return out
}

// weeksBetween 两个周一之间相隔的周数；按小时四舍五入以抵消夏令时的 ±1h
func weeksBetween(first, monday time.Time) int {
	const week = 7 * 24 * time.Hour
	return int((monday.Sub(first) + week/2) / week)
}
