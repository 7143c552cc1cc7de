package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Sheet — лист документа: заголовки и строки произвольных значений.
type Sheet struct {
	Title   string
	Headers []string
	Rows    [][]any
}

// XLSX собирает книгу из листов и возвращает её содержимое.
func XLSX(sheets ...Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx: no sheets")
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for i, s := range sheets {
		name := s.Title
		if name == "" {
			name = fmt.Sprintf("Лист%d", i+1)
		}
		if i == 0 {
			// переименовываем стандартный Sheet1
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("new sheet: %w", err)
		}

		header := make([]any, len(s.Headers))
		for c, h := range s.Headers {
			header[c] = h
		}
		if err := f.SetSheetRow(name, "A1", &header); err != nil {
			return nil, fmt.Errorf("header row: %w", err)
		}
		for r, row := range s.Rows {
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return nil, err
			}
			vals := row
			if err := f.SetSheetRow(name, cell, &vals); err != nil {
				return nil, fmt.Errorf("row %d: %w", r+2, err)
			}
		}
		if err := styleSheet(f, name, s); err != nil {
			return nil, fmt.Errorf("format sheet %q: %w", name, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
