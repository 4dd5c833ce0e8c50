package service

import (
	"fmt"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/config"
)

// Period 时段所属的半天
type Period string

const (
	PeriodMorning   Period = "morning"
	PeriodAfternoon Period = "afternoon"
)

// SlotDef 模板中一个固定列对应的时段
type SlotDef struct {
	Index  int // 从 1 开始，对应模板第 Index+1 列
	Start  string
	End    string
	Period Period
}

// SlotLayout 周模板的列布局
// 短日（默认周三）只有上午时段
type SlotLayout struct {
	Slots    []SlotDef
	ShortDay int
}

// NewSlotLayout 从配置构建布局
func NewSlotLayout(cfg *config.ScheduleConfig) (SlotLayout, error) {
	if err := cfg.Validate(); err != nil {
		return SlotLayout{}, err
	}
	layout := SlotLayout{ShortDay: cfg.ShortDay}
	for i, s := range cfg.Slots {
		if _, _, err := ParseClock(s.Start); err != nil {
			return SlotLayout{}, fmt.Errorf("时段 %d: %w", i+1, err)
		}
		if _, _, err := ParseClock(s.End); err != nil {
			return SlotLayout{}, fmt.Errorf("时段 %d: %w", i+1, err)
		}
		layout.Slots = append(layout.Slots, SlotDef{
			Index:  i + 1,
			Start:  s.Start,
			End:    s.End,
			Period: Period(s.Period),
		})
	}
	return layout, nil
}

// DefaultSlotLayout 默认布局（5 个时段，周三为短日）
func DefaultSlotLayout() SlotLayout {
	cfg := config.ScheduleConfig{
		Timezone:     "UTC",
		ShortDay:     3,
		Slots:        config.DefaultSlots(),
		PauseKeyword: "Pause",
		AllKeyword:   "tous",
	}
	layout, err := NewSlotLayout(&cfg)
	if err != nil {
		panic(err)
	}
	return layout
}

// SlotsFor 返回某个星期的时段列表，按列顺序
func (l SlotLayout) SlotsFor(day int) []SlotDef {
	if day != l.ShortDay {
		return l.Slots
	}
	out := make([]SlotDef, 0, len(l.Slots))
	for _, s := range l.Slots {
		if s.Period == PeriodMorning {
			out = append(out, s)
		}
	}
	return out
}

// Slot 按编号查找时段
func (l SlotLayout) Slot(index int) (SlotDef, bool) {
	for _, s := range l.Slots {
		if s.Index == index {
			return s, true
		}
	}
	return SlotDef{}, false
}

// RequiresAfternoon 该星期是否要求下午覆盖
func (l SlotLayout) RequiresAfternoon(day int) bool {
	if day == l.ShortDay {
		return false
	}
	for _, s := range l.Slots {
		if s.Period == PeriodAfternoon {
			return true
		}
	}
	return false
}
