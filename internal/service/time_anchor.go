package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/model"
)

// MalformedTimeError 时刻字符串不是合法的 HH:MM
type MalformedTimeError struct {
	Value string
}

func (e *MalformedTimeError) Error() string {
	return fmt.Sprintf("时间格式无效: %q（应为 HH:MM）", e.Value)
}

// FirstMonday 返回 date 当天或之后的第一个周一（00:00，保留 date 所在时区）
func FirstMonday(date time.Time) time.Time {
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	offset := (int(time.Monday) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset)
}

// ParseClock 解析 "HH:MM"
func ParseClock(clock string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(clock), ":")
	if len(parts) != 2 || len(parts[1]) != 2 || len(parts[0]) == 0 || len(parts[0]) > 2 {
		return 0, 0, &MalformedTimeError{Value: clock}
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, &MalformedTimeError{Value: clock}
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, &MalformedTimeError{Value: clock}
	}
	return hour, minute, nil
}

// AnchorTime 计算学期第 weekOffset 周、星期 dayOfWeek（1=周一）在 clock 时刻的绝对时间
//
// 锚点为 StartDate 当天或之后的第一个周一。日期按日历日在 loc 中计算，
// 因此跨夏令时切换的周次仍落在同一墙上时刻。
func AnchorTime(semester *model.Semester, dayOfWeek int, clock string, weekOffset int, loc *time.Location) (time.Time, error) {
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	monday := FirstMonday(civilDate(semester.StartDate, loc))
	return time.Date(monday.Year(), monday.Month(), monday.Day()+weekOffset*7+dayOfWeek-1, hour, minute, 0, 0, loc), nil
}

// civilDate 取 t 的日历日（年月日），放到 loc 的零点
// 数据库 date 列读回时带 UTC 时区，直接 In(loc) 会把日期挪到前一天
func civilDate(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
