package export

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const (
	minColWidth = 10
	maxColWidth = 60
)

// styleSheet: жирная шапка с заливкой, закреплённая первая строка, автофильтр
// и ширина колонок по самому длинному значению.
func styleSheet(f *excelize.File, name string, s Sheet) error {
	cols := len(s.Headers)
	for _, r := range s.Rows {
		cols = max(cols, len(r))
	}
	if cols == 0 {
		return nil
	}
	last, err := excelize.ColumnNumberToName(cols)
	if err != nil {
		return err
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9E1F2"}},
		Alignment: &excelize.Alignment{Vertical: "center", WrapText: true},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetCellStyle(name, "A1", last+"1", header); err != nil {
		return err
	}
	if err := f.SetPanes(name, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return err
	}
	if len(s.Rows) > 0 {
		if err := f.AutoFilter(name, "A1:"+last+"1", nil); err != nil {
			return err
		}
	}

	for c := 0; c < cols; c++ {
		w := float64(minColWidth)
		if c < len(s.Headers) {
			w = max(w, cellWidth(s.Headers[c])+1.5)
		}
		for _, r := range s.Rows {
			if c < len(r) {
				w = max(w, cellWidth(fmt.Sprint(r[c])))
			}
		}
		col, _ := excelize.ColumnNumberToName(c + 1)
		if err := f.SetColWidth(name, col, col, min(w, maxColWidth)); err != nil {
			return err
		}
	}
	return nil
}

// cellWidth — примерная ширина текста; кириллица шире латиницы.
func cellWidth(v string) float64 {
	return float64(utf8.RuneCountInString(strings.ReplaceAll(v, "\t", "    "))) * 1.1
}

// Filename — имя файла выгрузки вида students_export_20250331_120000.xlsx.
func Filename(prefix, ext string, now time.Time) string {
	return sanitizeFileName(fmt.Sprintf("%s_%s.%s", cleanName(prefix), now.Format("20060102_150405"), ext))
}

// ContentType — MIME-тип по расширению выгрузки.
func ContentType(ext string) string {
	switch ext {
	case "xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "csv":
		return "text/csv; charset=utf-8"
	case "pdf":
		return "application/pdf"
	}
	return "application/octet-stream"
}

var invalidFileRe = regexp.MustCompile(`[\\/:*?"<>|]+`)

func sanitizeFileName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return invalidFileRe.ReplaceAllString(s, "_")
}

func cleanName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "export"
	}
	return s
}
