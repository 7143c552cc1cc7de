package export

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-pdf/fpdf"
)

// PDFOptions — шапка документа и шрифт. FontPath — TTF с кириллицей;
// без него используется встроенный Helvetica и кириллица транслитерируется.
type PDFOptions struct {
	Title    string
	Meta     []string
	FontPath string
}

const (
	pdfMargin    = 12.0
	pdfRowHeight = 6.0
	pdfFont      = "Body"
)

// PDF рисует таблицу на страницах A4 с повтором шапки на каждой странице.
func PDF(s Sheet, opts PDFOptions) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, pdfMargin)

	family, text := "Helvetica", transliterate
	if opts.FontPath != "" {
		pdf.AddUTF8Font(pdfFont, "", opts.FontPath)
		if pdf.Err() {
			return nil, fmt.Errorf("load pdf font %s: %w", opts.FontPath, pdf.Error())
		}
		family, text = pdfFont, func(s string) string { return s }
	}
	bold := "B"
	if family == pdfFont {
		bold = ""
	}

	pageW, pageH := pdf.GetPageSize()
	usable := pageW - 2*pdfMargin
	widths := columnWidths(len(s.Headers), usable)

	header := func() {
		pdf.SetFont(family, bold, 9)
		pdf.SetFillColor(0, 51, 102)
		pdf.SetTextColor(255, 255, 255)
		for i, h := range s.Headers {
			pdf.CellFormat(widths[i], pdfRowHeight+1, text(h), "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont(family, "", 8)
		pdf.SetTextColor(0, 0, 0)
	}

	pdf.AddPage()
	pdf.SetFont(family, bold, 16)
	pdf.CellFormat(usable, 10, text(opts.Title), "", 1, "L", false, 0, "")
	pdf.SetFont(family, "", 10)
	for _, line := range opts.Meta {
		pdf.CellFormat(usable, 6, text(line), "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)
	header()

	for _, row := range s.Rows {
		if pdf.GetY()+pdfRowHeight > pageH-pdfMargin {
			pdf.AddPage()
			header()
		}
		for i := range s.Headers {
			var v string
			if i < len(row) {
				v = cellString(row[i])
			}
			pdf.CellFormat(widths[i], pdfRowHeight, fit(pdf, text(v), widths[i]), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// первая колонка (ФИО) шире, вторая (группа) уже
func columnWidths(n int, usable float64) []float64 {
	if n == 0 {
		return nil
	}
	w := make([]float64, n)
	if n == 1 {
		w[0] = usable
		return w
	}
	weights := make([]float64, n)
	total := 0.0
	for i := range weights {
		switch i {
		case 0:
			weights[i] = 2.5
		case 1:
			weights[i] = 1
		default:
			weights[i] = 1.6
		}
		total += weights[i]
	}
	for i := range w {
		w[i] = usable * weights[i] / total
	}
	return w
}

// fit обрезает строку, чтобы она уместилась в ячейку.
func fit(pdf *fpdf.Fpdf, s string, width float64) string {
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)) > width-2 {
		r = r[:len(r)-1]
	}
	return string(r)
}

var translit = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "e", 'ж': "zh",
	'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m", 'н': "n", 'о': "o",
	'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u", 'ф': "f", 'х': "kh", 'ц': "ts",
	'ч': "ch", 'ш': "sh", 'щ': "shch", 'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu",
	'я': "ya",
}

func transliterate(s string) string {
	var b strings.Builder
	for _, r := range s {
		lower := unicode.ToLower(r)
		t, ok := translit[lower]
		switch {
		case !ok && r < 128:
			b.WriteRune(r)
		case !ok:
			b.WriteByte('?')
		case lower != r && t != "":
			b.WriteString(strings.ToUpper(t[:1]) + t[1:])
		default:
			b.WriteString(t)
		}
	}
	return b.String()
}
