package service

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/internal/model"
)

// ── 测试夹具：内存中的模板与目录 ──

type sheetSpec struct {
	Name string
	Rows [][]string
}

// fakeReader 不经过 xlsx 编解码的 SpreadsheetReader
type fakeReader struct {
	sheets []sheetSpec
}

func (r *fakeReader) SheetNames() []string {
	names := make([]string, 0, len(r.sheets))
	for _, s := range r.sheets {
		names = append(names, s.Name)
	}
	return names
}

func (r *fakeReader) Rows(sheet string) ([][]string, error) {
	for _, s := range r.sheets {
		if s.Name == sheet {
			return s.Rows, nil
		}
	}
	return nil, fmt.Errorf("sheet %s not found", sheet)
}

func (r *fakeReader) Close() error { return nil }

// buildWorkbook 用 excelize 生成真实的 .xlsx 字节
func buildWorkbook(t *testing.T, sheets []sheetSpec) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", s.Name))
		} else {
			_, err := f.NewSheet(s.Name)
			require.NoError(t, err)
		}
		for r, row := range s.Rows {
			cellName, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			values := row
			require.NoError(t, f.SetSheetRow(s.Name, cellName, &values))
		}
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

var testLayout = DefaultSlotLayout()

func testParser() *TemplateParser {
	return NewTemplateParser(testLayout, "Pause", "tous")
}

func paris(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	return loc
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// testDirectory 两名员工、三名儿童
func testDirectory() DirectorySnapshot {
	return DirectorySnapshot{
		Staff: []model.Staff{
			{StaffID: "staff-jean", FullName: "Jean Dupont", IsActive: true},
			{StaffID: "staff-marie", FullName: "Marie Curie", IsActive: true},
		},
		Children: []model.Child{
			{ChildID: "child-alice", FullName: "Alice Martin", IsActive: true},
			{ChildID: "child-bob", FullName: "Bob Smith", IsActive: true},
			{ChildID: "child-chloe", FullName: "Chloé Durand", IsActive: true},
		},
	}
}

func headerRow(day int) []string {
	row := []string{"Personnel"}
	for _, def := range testLayout.SlotsFor(day) {
		row = append(row, def.Start+"-"+def.End)
	}
	return row
}

// uniformRow 当天每个时段都填同一个单元格
func uniformRow(day int, staff, cellText string) []string {
	row := []string{staff}
	for range testLayout.SlotsFor(day) {
		row = append(row, cellText)
	}
	return row
}

// validTemplate 五个工作日、两名员工；周一 Jean Dupont 的行使用示例中的内容
func validTemplate() []sheetSpec {
	var sheets []sheetSpec
	for day := 1; day <= 5; day++ {
		rows := [][]string{headerRow(day)}
		if day == 1 {
			rows = append(rows, []string{
				"Jean Dupont",
				"Lecture – Alice Martin, Bob Smith",
				"Jeu – tous",
				"Repas – tous",
				"Pause",
				"Sieste – tous",
			})
		} else {
			rows = append(rows, uniformRow(day, "Jean Dupont", "Atelier – tous"))
		}
		rows = append(rows, uniformRow(day, "Marie Curie", "Sport – Chloé Durand"))
		sheets = append(sheets, sheetSpec{Name: WeekdaySheetName(day), Rows: rows})
	}
	return sheets
}

// slotsPerWeek validTemplate 每周生成的条目数：Jean 23-1（Pause），Marie 23
const slotsPerWeek = 22 + 23

func parseValid(t *testing.T) []TemplateSlot {
	t.Helper()
	slots, err := testParser().Parse(&fakeReader{sheets: validTemplate()})
	require.NoError(t, err)
	return slots
}
