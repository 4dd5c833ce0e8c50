package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateParser_Parse_ExampleRow(t *testing.T) {
	slots := parseValid(t)

	var monday []TemplateSlot
	for _, s := range slots {
		if s.DayOfWeek == 1 && s.StaffName == "Jean Dupont" {
			monday = append(monday, s)
		}
	}
	require.Len(t, monday, 5)

	first := monday[0]
	assert.Equal(t, 1, first.SlotIndex)
	assert.Equal(t, "Lecture", first.Activity)
	assert.Equal(t, []string{"Alice Martin", "Bob Smith"}, first.ChildNames)
	assert.False(t, first.AllChildren)
	assert.Equal(t, "Lundi", first.Sheet)
	assert.Equal(t, 2, first.Row)
	assert.Equal(t, 2, first.Col)

	assert.True(t, monday[1].AllChildren)
	assert.Empty(t, monday[1].ChildNames)

	assert.True(t, monday[3].Pause)
	assert.Equal(t, 4, monday[3].SlotIndex)
}

func TestTemplateParser_Parse_Order(t *testing.T) {
	slots := parseValid(t)
	// 周一 → 周五，表内自上而下
	for i := 1; i < len(slots); i++ {
		prev, cur := slots[i-1], slots[i]
		if prev.DayOfWeek == cur.DayOfWeek {
			assert.LessOrEqual(t, prev.Row, cur.Row)
		} else {
			assert.Less(t, prev.DayOfWeek, cur.DayOfWeek)
		}
	}
}

func TestTemplateParser_ShortDayReadsMorningOnly(t *testing.T) {
	reader := &fakeReader{sheets: []sheetSpec{{
		Name: "Mercredi",
		Rows: [][]string{
			headerRow(3),
			// 第 5、6 列超出短日布局，应被忽略
			{"Jean Dupont", "Jeu – tous", "Jeu – tous", "Repas – tous", "n'importe quoi", ""},
		},
	}}}

	slots, err := testParser().Parse(reader)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	for _, s := range slots {
		assert.Equal(t, 3, s.DayOfWeek)
	}
}

func TestTemplateParser_SheetNamesAreCaseInsensitive(t *testing.T) {
	reader := &fakeReader{sheets: []sheetSpec{
		{Name: "Notes", Rows: [][]string{{"ignored"}}},
		{Name: " lundi ", Rows: [][]string{headerRow(1), uniformRow(1, "Jean Dupont", "Jeu – tous")}},
	}}

	slots, err := testParser().Parse(reader)
	require.NoError(t, err)
	assert.Len(t, slots, 5)
}

func TestTemplateParser_HyphenatedNamesAreNotSeparators(t *testing.T) {
	reader := &fakeReader{sheets: []sheetSpec{{
		Name: "Lundi",
		Rows: [][]string{headerRow(1), uniformRow(1, "Jean-Pierre Roux", "Arts-plastiques – Anne-Sophie Leroy")},
	}}}

	slots, err := testParser().Parse(reader)
	require.NoError(t, err)
	assert.Equal(t, "Jean-Pierre Roux", slots[0].StaffName)
	assert.Equal(t, "Arts-plastiques", slots[0].Activity)
	assert.Equal(t, []string{"Anne-Sophie Leroy"}, slots[0].ChildNames)
}

func TestTemplateParser_EmDashAndDuplicates(t *testing.T) {
	reader := &fakeReader{sheets: []sheetSpec{{
		Name: "Lundi",
		Rows: [][]string{headerRow(1), uniformRow(1, "Jean Dupont", "Jeu — Alice Martin, alice  MARTIN, , Bob Smith")},
	}}}

	slots, err := testParser().Parse(reader)
	require.NoError(t, err)
	assert.Equal(t, "Jeu", slots[0].Activity)
	assert.Equal(t, []string{"Alice Martin", "Bob Smith"}, slots[0].ChildNames)
}

func TestTemplateParser_PauseVariants(t *testing.T) {
	reader := &fakeReader{sheets: []sheetSpec{{
		Name: "Lundi",
		Rows: [][]string{headerRow(1), {"Jean Dupont", "pause", " PAUSE ", "Pause – Alice Martin", "Jeu – tous", "Jeu – tous"}},
	}}}

	slots, err := testParser().Parse(reader)
	require.NoError(t, err)
	for _, s := range slots[:3] {
		assert.True(t, s.Pause)
		assert.Empty(t, s.ChildNames)
	}
	assert.False(t, slots[3].Pause)
}

func TestTemplateParser_BlankRowsSkipped(t *testing.T) {
	reader := &fakeReader{sheets: []sheetSpec{{
		Name: "Lundi",
		Rows: [][]string{
			headerRow(1),
			{},
			{"", "", "  "},
			uniformRow(1, "Jean Dupont", "Jeu – tous"),
		},
	}}}

	slots, err := testParser().Parse(reader)
	require.NoError(t, err)
	require.Len(t, slots, 5)
	assert.Equal(t, 4, slots[0].Row)
}

func TestTemplateParser_MalformedCell(t *testing.T) {
	for _, value := range []string{"Lecture Alice Martin", " – Alice Martin", "Lecture - Alice Martin"} {
		reader := &fakeReader{sheets: []sheetSpec{{
			Name: "Lundi",
			Rows: [][]string{headerRow(1), {"Jean Dupont", "Jeu – tous", value, "Jeu – tous", "Jeu – tous", "Jeu – tous"}},
		}}}

		slots, err := testParser().Parse(reader)
		assert.Nil(t, slots)
		var target *MalformedCellError
		require.ErrorAsf(t, err, &target, "value %q", value)
		assert.Equal(t, "Lundi", target.Sheet)
		assert.Equal(t, 2, target.Row)
		assert.Equal(t, 3, target.Col)
		assert.Contains(t, err.Error(), "C2")
	}
}

func TestTemplateParser_EmptyCell(t *testing.T) {
	reader := &fakeReader{sheets: []sheetSpec{{
		Name: "Mardi",
		Rows: [][]string{headerRow(2), {"Jean Dupont", "Jeu – tous", "Jeu – tous", "Jeu – tous", ""}},
	}}}

	_, err := testParser().Parse(reader)
	var target *EmptyCellError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, EmptyCellError{Sheet: "Mardi", Row: 2, Col: 5}, *target)
}

func TestTemplateParser_MissingStaffName(t *testing.T) {
	reader := &fakeReader{sheets: []sheetSpec{{
		Name: "Lundi",
		Rows: [][]string{headerRow(1), uniformRow(1, " ", "Jeu – tous")},
	}}}

	_, err := testParser().Parse(reader)
	var target *EmptyCellError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, 1, target.Col)
}

func TestTemplateParser_FirstErrorAbortsWholeBatch(t *testing.T) {
	sheets := validTemplate()
	// 周五表中的错误也会让前面已解析的工作表作废
	sheets[4].Rows[1][2] = "cassé"

	slots, err := testParser().Parse(&fakeReader{sheets: sheets})
	assert.Nil(t, slots)
	var target *MalformedCellError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "Vendredi", target.Sheet)
}

func TestTemplateParser_NoWeekdaySheet(t *testing.T) {
	_, err := testParser().Parse(&fakeReader{sheets: []sheetSpec{{Name: "Feuil1"}}})
	assert.True(t, errors.Is(err, ErrNoWeekdaySheet))
}

func TestTemplateParser_DuplicateSheet(t *testing.T) {
	reader := &fakeReader{sheets: []sheetSpec{
		{Name: "Lundi", Rows: [][]string{headerRow(1)}},
		{Name: "LUNDI ", Rows: [][]string{headerRow(1)}},
	}}

	_, err := testParser().Parse(reader)
	var target *DuplicateSheetError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, 1, target.Day)
}

func TestOpenSpreadsheet_XLSXRoundTrip(t *testing.T) {
	data := buildWorkbook(t, validTemplate())

	reader, err := OpenSpreadsheet(data, "planning.xlsx")
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, []string{"Lundi", "Mardi", "Mercredi", "Jeudi", "Vendredi"}, reader.SheetNames())

	slots, err := testParser().Parse(reader)
	require.NoError(t, err)
	assert.Len(t, slots, 23*2)
}

func TestOpenSpreadsheet_Unreadable(t *testing.T) {
	_, err := OpenSpreadsheet([]byte("not a workbook"), "planning.xlsx")
	assert.ErrorIs(t, err, ErrSpreadsheetUnreadable)

	_, err = OpenSpreadsheet([]byte("not a workbook"), "planning.xls")
	assert.ErrorIs(t, err, ErrSpreadsheetUnreadable)

	_, err = OpenSpreadsheet(nil, "planning.xlsx")
	assert.ErrorIs(t, err, ErrSpreadsheetUnreadable)
}
