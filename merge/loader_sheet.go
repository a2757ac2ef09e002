package merge

import (
	"errors"
	"fmt"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// loadXLSX reads the first sheet of a workbook; its first row is the header.
func loadXLSX(path string) (*RawTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return tableFromRows(rows)
}

// loadXLS reads the first sheet of a legacy BIFF workbook. The xls parser
// panics on some malformed files, which is reported as an error.
func loadXLS(path string) (table *RawTable, err error) {
	defer func() {
		if r := recover(); r != nil {
			table, err = nil, fmt.Errorf("parse xls: %v", r)
		}
	}()
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, err
	}
	if wb.NumSheets() == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("first sheet is unreadable")
	}
	rows := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for c := row.FirstCol(); c < row.LastCol(); c++ {
			cells[c] = row.Col(c)
		}
		rows = append(rows, cells)
	}
	return tableFromRows(rows)
}
