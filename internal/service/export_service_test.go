package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/model"
)

// ── 测试辅助 ──

func setupTestExportService(t *testing.T) (ExportService, *scheduleFixture) {
	t.Helper()
	f := setupTestScheduleService(t)
	svc := NewExportService(f.repos.repo, newTestEngine(t), testLogger)
	return svc, f
}

func slotSignature(s TemplateSlot) string {
	names := append([]string(nil), s.ChildNames...)
	sort.Strings(names)
	return fmt.Sprintf("%d|%d|%s|%s|%v|%v|%s", s.DayOfWeek, s.SlotIndex, s.StaffName, s.Activity, s.Pause, s.AllChildren, strings.Join(names, ","))
}

// ── ExportOverview 测试 ──

func TestExportService_ExportOverview_NoSchedule(t *testing.T) {
	svc, _ := setupTestExportService(t)

	_, _, err := svc.ExportOverview(context.Background(), "sem-2025")
	if !errors.Is(err, ErrExportNoSchedule) {
		t.Errorf("期望 ErrExportNoSchedule，实际: %v", err)
	}
}

func TestExportService_ExportOverview_SemesterNotFound(t *testing.T) {
	svc, _ := setupTestExportService(t)

	_, _, err := svc.ExportOverview(context.Background(), "nonexistent-sem")
	if !errors.Is(err, ErrSemesterNotFound) {
		t.Errorf("期望 ErrSemesterNotFound，实际: %v", err)
	}
}

// 导出的总览可以作为模板重新导入，解析结果与原模板一致
func TestExportService_ExportOverview_RoundTrip(t *testing.T) {
	svc, f := setupTestExportService(t)
	importValid(t, f)

	buf, filename, err := svc.ExportOverview(context.Background(), "sem-2025")
	if err != nil {
		t.Fatalf("ExportOverview 应成功: %v", err)
	}
	if filename != "planning_Printemps 2025.xlsx" {
		t.Errorf("文件名不符: %s", filename)
	}

	reparsed, err := newTestEngine(t).ParseTemplate(buf.Bytes(), filename)
	if err != nil {
		t.Fatalf("导出文件应能重新解析: %v", err)
	}

	want := make(map[string]bool)
	for _, s := range parseValid(t) {
		want[slotSignature(s)] = true
	}
	if len(reparsed) != len(want) {
		t.Fatalf("期望 %d 个单元格，实际 %d", len(want), len(reparsed))
	}
	for _, s := range reparsed {
		if !want[slotSignature(s)] {
			t.Errorf("多出的单元格: %s", slotSignature(s))
		}
	}
}

func TestExportService_ExportOverview_EmptiedEntryKeepsActivity(t *testing.T) {
	svc, f := setupTestExportService(t)
	importValid(t, f)

	// 清空所有 Marie 周二首个时段条目的儿童
	for _, e := range f.repos.entries.entries {
		if e.StaffID == "staff-marie" && e.DayOfWeek == 2 && e.StartTime.In(newTestEngine(t).Location).Format("15:04") == "08:30" {
			e.Children = nil
		}
	}

	buf, _, err := svc.ExportOverview(context.Background(), "sem-2025")
	if err != nil {
		t.Fatalf("ExportOverview 应成功: %v", err)
	}
	slots, err := newTestEngine(t).ParseTemplate(buf.Bytes(), "export.xlsx")
	if err != nil {
		t.Fatalf("导出文件应能重新解析: %v", err)
	}
	found := false
	for _, s := range slots {
		if s.StaffName == "Marie Curie" && s.DayOfWeek == 2 && s.SlotIndex == 0 {
			found = true
			if s.Pause || s.Activity != "Sport" || len(s.ChildNames) != 0 || s.AllChildren {
				t.Errorf("无儿童的条目应导出为仅含活动的单元格，实际: %+v", s)
			}
		}
	}
	if !found {
		t.Error("Marie 周二首个时段应出现在导出中")
	}
}

// 只有员工参加的活动（"Réunion –"）导入后再导出，活动不会变成 Pause
func TestExportService_ExportOverview_StaffOnlyActivityRoundTrip(t *testing.T) {
	svc, f := setupTestExportService(t)
	sheets := validTemplate()
	sheets[1].Rows[1][1] = "Réunion –"
	if _, err := f.svc.ImportSchedule(context.Background(), "sem-2025", "planning.xlsx", buildWorkbook(t, sheets), "admin-001"); err != nil {
		t.Fatalf("ImportSchedule 应成功: %v", err)
	}

	buf, _, err := svc.ExportOverview(context.Background(), "sem-2025")
	if err != nil {
		t.Fatalf("ExportOverview 应成功: %v", err)
	}
	slots, err := newTestEngine(t).ParseTemplate(buf.Bytes(), "export.xlsx")
	if err != nil {
		t.Fatalf("导出文件应能重新解析: %v", err)
	}
	for _, s := range slots {
		if s.StaffName == "Jean Dupont" && s.DayOfWeek == 2 && s.SlotIndex == 0 {
			if s.Pause || s.Activity != "Réunion" || len(s.ChildNames) != 0 || s.AllChildren {
				t.Errorf("期望 activity=Réunion 且无儿童，实际: %+v", s)
			}
			return
		}
	}
	t.Error("Jean 周二首个时段未出现在导出中")
}

// 全部为 Pause 的员工没有条目，但导出仍需保留其行，否则重新导入会缺少员工覆盖
func TestExportService_ExportOverview_PauseOnlyStaffRoundTrip(t *testing.T) {
	svc, f := setupTestExportService(t)
	f.repos.directory.staff = append(f.repos.directory.staff,
		model.Staff{StaffID: "staff-luc", FullName: "Luc Repos", IsActive: true})

	sheets := validTemplate()
	for day := 1; day <= 5; day++ {
		sheets[day-1].Rows = append(sheets[day-1].Rows, uniformRow(day, "Luc Repos", "Pause"))
	}
	if _, err := f.svc.ImportSchedule(context.Background(), "sem-2025", "planning.xlsx", buildWorkbook(t, sheets), "admin-001"); err != nil {
		t.Fatalf("ImportSchedule 应成功: %v", err)
	}

	buf, filename, err := svc.ExportOverview(context.Background(), "sem-2025")
	if err != nil {
		t.Fatalf("ExportOverview 应成功: %v", err)
	}

	preview, err := f.svc.PreviewSchedule(context.Background(), "sem-2025", filename, buf.Bytes())
	if err != nil {
		t.Fatalf("导出文件应能通过导入校验: %v", err)
	}
	if preview == nil {
		t.Fatal("预览结果不应为 nil")
	}

	slots, err := newTestEngine(t).ParseTemplate(buf.Bytes(), filename)
	if err != nil {
		t.Fatalf("导出文件应能重新解析: %v", err)
	}
	pauses := 0
	for _, s := range slots {
		if s.StaffName == "Luc Repos" {
			if !s.Pause {
				t.Errorf("Luc Repos 的单元格应为 Pause，实际: %+v", s)
			}
			pauses++
		}
	}
	if pauses != 23 {
		t.Errorf("Luc Repos 应有 23 个 Pause 单元格，实际 %d", pauses)
	}
}

// ── ExportStaffCalendar 测试 ──

func TestExportService_ExportStaffCalendar(t *testing.T) {
	svc, f := setupTestExportService(t)
	importValid(t, f)

	var cancelled int
	for _, e := range f.repos.entries.entries {
		if e.StaffID == "staff-marie" && cancelled < 3 {
			e.Cancelled = true
			cancelled++
		}
	}

	body, filename, err := svc.ExportStaffCalendar(context.Background(), "sem-2025", "staff-marie")
	if err != nil {
		t.Fatalf("ExportStaffCalendar 应成功: %v", err)
	}
	if filename != "planning_Printemps 2025_Marie Curie.ics" {
		t.Errorf("文件名不符: %s", filename)
	}
	if n := strings.Count(string(body), "BEGIN:VEVENT"); n != 25*23-3 {
		t.Errorf("期望 %d 个事件（已取消的不输出），实际 %d", 25*23-3, n)
	}
}

func TestExportService_ExportStaffCalendar_StaffNotFound(t *testing.T) {
	svc, _ := setupTestExportService(t)

	_, _, err := svc.ExportStaffCalendar(context.Background(), "sem-2025", "staff-ghost")
	if !errors.Is(err, ErrStaffNotFound) {
		t.Errorf("期望 ErrStaffNotFound，实际: %v", err)
	}
}
