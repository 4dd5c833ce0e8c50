package service

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// ErrSpreadsheetUnreadable 文件不是可读取的 xlsx/xls 工作簿
var ErrSpreadsheetUnreadable = errors.New("无法读取表格文件")

// SpreadsheetReader 表格读取抽象：工作表名 + 每个工作表的二维单元格
// 解析器只依赖该接口，不接触具体表格库的类型
type SpreadsheetReader interface {
	SheetNames() []string
	Rows(sheet string) ([][]string, error)
	Close() error
}

// OpenSpreadsheet 根据扩展名选择适配器：.xls 走 BIFF 读取，其余按 xlsx 处理
func OpenSpreadsheet(data []byte, fileName string) (SpreadsheetReader, error) {
	if len(data) == 0 {
		return nil, ErrSpreadsheetUnreadable
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xls":
		return openXLS(data)
	default:
		return openXLSX(data)
	}
}

// ── xlsx（excelize）──

type xlsxReader struct {
	file *excelize.File
}

func openXLSX(data []byte) (SpreadsheetReader, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpreadsheetUnreadable, err)
	}
	return &xlsxReader{file: file}, nil
}

func (r *xlsxReader) SheetNames() []string {
	return r.file.GetSheetList()
}

func (r *xlsxReader) Rows(sheet string) ([][]string, error) {
	rows, err := r.file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("读取工作表 %q 失败: %w", sheet, err)
	}
	return rows, nil
}

func (r *xlsxReader) Close() error {
	return r.file.Close()
}

// ── xls（extrame/xls）──

// xls 库没有显式关闭，读取时一次性展开到内存
type xlsReader struct {
	names []string
	rows  map[string][][]string
}

const xlsMaxRows = 10000

func openXLS(data []byte) (reader SpreadsheetReader, err error) {
	// 损坏的 BIFF 流可能让底层库 panic
	defer func() {
		if r := recover(); r != nil {
			reader, err = nil, fmt.Errorf("%w: %v", ErrSpreadsheetUnreadable, r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpreadsheetUnreadable, err)
	}

	out := &xlsReader{rows: make(map[string][][]string)}
	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		var grid [][]string
		maxRow := int(sheet.MaxRow)
		if maxRow > xlsMaxRows {
			maxRow = xlsMaxRows
		}
		for ri := 0; ri <= maxRow; ri++ {
			row := sheet.Row(ri)
			if row == nil {
				grid = append(grid, nil)
				continue
			}
			cells := make([]string, 0, row.LastCol())
			for ci := 0; ci < row.LastCol(); ci++ {
				cells = append(cells, row.Col(ci))
			}
			grid = append(grid, cells)
		}
		out.names = append(out.names, sheet.Name)
		out.rows[sheet.Name] = grid
	}
	return out, nil
}

func (r *xlsReader) SheetNames() []string {
	return r.names
}

func (r *xlsReader) Rows(sheet string) ([][]string, error) {
	rows, ok := r.rows[sheet]
	if !ok {
		return nil, fmt.Errorf("工作表 %q 不存在", sheet)
	}
	return rows, nil
}

func (r *xlsReader) Close() error {
	return nil
}
