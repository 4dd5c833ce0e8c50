package service

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/model"
)

// ── iCalendar 读写 ──────────────────────────────────────────
//
// 读：节假日日历（全天 VEVENT）→ 学期假期区间
//   - DTEND 为全天事件的次日（RFC 5545 不含终点），换算为闭区间
//   - 区间裁剪到学期范围内，完全不重叠的事件跳过
//   - 单日事件记为 holiday，多日记为 vacation
//
// 写：员工个人日程订阅（未取消条目）
// ─────────────────────────────────────────────────────────────

const icsMaxFileSize = 2 * 1024 * 1024 // 2MB

// ParseHolidayCalendar 解析节假日日历
// 返回裁剪后的假期区间，以及因不在学期范围内被跳过的事件数
func ParseHolidayCalendar(reader io.Reader, semester *model.Semester, loc *time.Location) ([]model.VacationPeriod, int, error) {
	cal, err := ics.ParseCalendar(io.LimitReader(reader, icsMaxFileSize))
	if err != nil {
		return nil, 0, fmt.Errorf("ICS 格式解析失败: %w", err)
	}

	semStart := civilDate(semester.StartDate, loc)
	semEnd := civilDate(semester.EndDate, loc)

	var (
		result  []model.VacationPeriod
		skipped int
	)
	for _, evt := range cal.Events() {
		name := "Jour férié"
		if summary := evt.GetProperty(ics.ComponentPropertySummary); summary != nil && strings.TrimSpace(summary.Value) != "" {
			name = strings.TrimSpace(summary.Value)
		}

		start, allDay, err := parseICSDateTime(evt, ics.ComponentPropertyDtStart, loc)
		if err != nil {
			skipped++
			continue
		}
		start = civilDate(start, loc)
		end := start
		if dtEnd, endAllDay, err := parseICSDateTime(evt, ics.ComponentPropertyDtEnd, loc); err == nil {
			end = civilDate(dtEnd, loc)
			if (allDay || endAllDay) && end.After(start) {
				end = end.AddDate(0, 0, -1)
			}
		}
		if end.Before(start) {
			end = start
		}

		// 裁剪到学期范围
		if end.Before(semStart) || start.After(semEnd) {
			skipped++
			continue
		}
		if start.Before(semStart) {
			start = semStart
		}
		if end.After(semEnd) {
			end = semEnd
		}

		kind := model.VacationKindVacation
		if start.Equal(end) {
			kind = model.VacationKindHoliday
		}
		result = append(result, model.VacationPeriod{
			SemesterID: semester.SemesterID,
			Name:       truncateRunes(name, 100),
			StartDate:  dateOnly(start),
			EndDate:    dateOnly(end),
			Kind:       kind,
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartDate.Before(result[j].StartDate)
	})
	return result, skipped, nil
}

// BuildStaffCalendar 生成员工个人日程的 iCalendar 文本，已取消的条目不输出
func BuildStaffCalendar(staffName, semesterName string, entries []model.ScheduleEntry, now time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//planning//schedule//FR")
	cal.SetXWRCalName(fmt.Sprintf("%s - %s", staffName, semesterName))

	for i := range entries {
		e := &entries[i]
		if e.Cancelled {
			continue
		}
		evt := cal.AddEvent(e.EntryID + "@planning")
		evt.SetDtStampTime(now)
		evt.SetStartAt(e.StartTime)
		evt.SetEndAt(e.EndTime)
		evt.SetSummary(e.Activity)
		if names := childNames(e); len(names) > 0 {
			evt.SetDescription(strings.Join(names, ", "))
		}
	}
	return cal.Serialize()
}

// parseICSDateTime 解析 DTSTART/DTEND；allDay 表示值为纯日期
func parseICSDateTime(evt *ics.VEvent, propName ics.ComponentProperty, loc *time.Location) (time.Time, bool, error) {
	prop := evt.GetProperty(propName)
	if prop == nil {
		return time.Time{}, false, fmt.Errorf("missing property %s", propName)
	}
	val := strings.TrimSpace(prop.Value)

	// 检查 TZID 参数
	tzid := ""
	for k, v := range prop.ICalParameters {
		if strings.ToUpper(k) == "TZID" && len(v) > 0 {
			tzid = v[0]
		}
	}

	if t, err := time.Parse("20060102", val); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), true, nil
	}
	if t, err := time.Parse("20060102T150405Z", val); err == nil {
		return t.In(loc), false, nil
	}
	if t, err := time.Parse("20060102T150405", val); err == nil {
		if tzid != "" {
			if tzLoc, err := time.LoadLocation(tzid); err == nil {
				return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, tzLoc).In(loc), false, nil
			}
		}
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), false, nil
	}

	return time.Time{}, false, fmt.Errorf("无法解析日期: %s", val)
}

func childNames(e *model.ScheduleEntry) []string {
	names := make([]string, 0, len(e.Children))
	for _, c := range e.Children {
		if c.Child != nil {
			names = append(names, c.Child.FullName)
		}
	}
	sort.Strings(names)
	return names
}

// dateOnly 日历日 → UTC 零点，写入 date 列时不受会话时区影响
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
