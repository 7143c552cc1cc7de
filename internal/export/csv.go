package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

const utf8BOM = "\ufeff"

// CSV пишет лист в UTF-8 с BOM (чтобы Excel открыл кириллицу) и разделителем sep.
func CSV(s Sheet, sep rune) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(utf8BOM)
	w := csv.NewWriter(&buf)
	w.Comma = sep
	if err := w.Write(s.Headers); err != nil {
		return nil, err
	}
	rec := make([]string, 0, len(s.Headers))
	for _, row := range s.Rows {
		rec = rec[:0]
		for _, v := range row {
			rec = append(rec, cellString(v))
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case *string:
		if x == nil {
			return ""
		}
		return *x
	default:
		return fmt.Sprint(x)
	}
}
