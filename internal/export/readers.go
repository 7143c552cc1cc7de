package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var ErrUnsupportedFile = errors.New("unsupported file type")

// Row — строка загруженного файла: номер строки в файле и значения по заголовкам.
type Row struct {
	Line   int
	Values map[string]string
}

func (r Row) Get(names ...string) string {
	for _, n := range names {
		if v, ok := r.Values[n]; ok && v != "" {
			return v
		}
	}
	return ""
}

// ReadRows читает xlsx (первый лист) или csv (разделитель ; или ,).
// Первая строка — заголовки; пустые строки пропускаются.
func ReadRows(filename string, data []byte) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return readXLSX(data)
	case ".csv", ".txt":
		return readCSV(data)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filename)
}

func readXLSX(data []byte) ([]Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	raw, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}
	return toRows(raw), nil
}

func readCSV(data []byte) ([]Row, error) {
	data = bytes.TrimPrefix(data, []byte(utf8BOM))
	firstLine := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		firstLine = data[:i]
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = ','
	if bytes.Count(firstLine, []byte(";")) > bytes.Count(firstLine, []byte(",")) {
		r.Comma = ';'
	}
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var raw [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		raw = append(raw, rec)
	}
	return toRows(raw), nil
}

func toRows(raw [][]string) []Row {
	if len(raw) == 0 {
		return nil
	}
	headers := make([]string, len(raw[0]))
	for i, h := range raw[0] {
		headers[i] = strings.TrimSpace(h)
	}
	var out []Row
	for i, rec := range raw[1:] {
		vals := make(map[string]string, len(headers))
		empty := true
		for c, h := range headers {
			if h == "" || c >= len(rec) {
				continue
			}
			v := strings.TrimSpace(rec[c])
			if v != "" {
				empty = false
			}
			vals[h] = v
		}
		if empty {
			continue
		}
		out = append(out, Row{Line: i + 2, Values: vals})
	}
	return out
}
