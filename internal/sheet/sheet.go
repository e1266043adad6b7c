// Package sheet reads uploaded spreadsheets into header-keyed rows.
package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/and161185/kyc-verifier/internal/errs"
)

// MaxFileSize is the upload cap in bytes.
const MaxFileSize = 10 << 20

// Format is a supported container format.
type Format int

const (
	FormatUnknown Format = iota
	FormatXLSX
	FormatCSV
)

// DetectFormat picks the format from the file extension.
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".csv":
		return FormatCSV
	default:
		return FormatUnknown
	}
}

// Table is the first sheet of an upload. Rows are keyed by trimmed header text;
// fully blank rows are dropped.
type Table struct {
	Headers []string
	Rows    []map[string]string
}

// Read parses r according to filename's extension. Every failure is an *errs.FileError.
func Read(filename string, r io.Reader) (Table, error) {
	format := DetectFormat(filename)
	if format == FormatUnknown {
		return Table{}, &errs.FileError{Reason: fmt.Sprintf("unsupported file type %q, expected .xlsx or .csv", filepath.Ext(filename))}
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return Table{}, &errs.FileError{Reason: fmt.Sprintf("read upload: %v", err)}
	}
	if len(data) > MaxFileSize {
		return Table{}, &errs.FileError{Reason: "file exceeds 10 MiB limit"}
	}

	var grid [][]string
	switch format {
	case FormatXLSX:
		grid, err = readXLSX(data)
	case FormatCSV:
		grid, err = readCSV(data)
	}
	if err != nil {
		return Table{}, &errs.FileError{Reason: fmt.Sprintf("parse file: %v", err)}
	}
	return fromGrid(grid)
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := f.GetSheetName(0)
	if name == "" {
		return nil, errors.New("workbook has no sheets")
	}
	// raw values keep long numbers unformatted; dates are converted below
	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}
	dateStyles := make(map[int]bool)
	for r := 1; r < len(rows); r++ {
		for c, v := range rows[r] {
			serial, err := strconv.ParseFloat(v, 64)
			if err != nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				continue
			}
			styleID, err := f.GetCellStyle(name, cell)
			if err != nil {
				continue
			}
			isDate, seen := dateStyles[styleID]
			if !seen {
				isDate = dateStyle(f, styleID)
				dateStyles[styleID] = isDate
			}
			if !isDate {
				continue
			}
			if t, err := excelize.ExcelDateToTime(serial, date1904); err == nil {
				rows[r][c] = t.Format(isoDate)
			}
		}
	}
	return rows, nil
}

const isoDate = "2006-01-02"

// dateStyle reports whether the cell style renders numbers as dates.
func dateStyle(f *excelize.File, styleID int) bool {
	st, err := f.GetStyle(styleID)
	if err != nil || st == nil {
		return false
	}
	if st.CustomNumFmt != nil {
		return dateFormatCode(*st.CustomNumFmt)
	}
	return builtinDateFmt(st.NumFmt)
}

// builtinDateFmt covers the built-in number formats that include a calendar date.
func builtinDateFmt(id int) bool {
	switch {
	case id >= 14 && id <= 17, id == 22:
		return true
	case id >= 27 && id <= 36, id >= 50 && id <= 58:
		return true
	}
	return false
}

// dateFormatCode reports whether a custom format code has a day or year token
// outside quoted literals, escapes and bracketed sections.
func dateFormatCode(code string) bool {
	var quoted, bracket bool
	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch {
		case quoted:
			quoted = ch != '"'
		case bracket:
			bracket = ch != ']'
		case ch == '"':
			quoted = true
		case ch == '[':
			bracket = true
		case ch == '\\' || ch == '_' || ch == '*':
			i++
		case ch == 'd' || ch == 'D' || ch == 'y' || ch == 'Y':
			return true
		}
	}
	return false
}

func readCSV(data []byte) ([][]string, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	cr := csv.NewReader(transform.NewReader(bytes.NewReader(data), dec))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr.ReadAll()
}

func fromGrid(grid [][]string) (Table, error) {
	if len(grid) == 0 || blank(grid[0]) {
		return Table{}, &errs.FileError{Reason: "file has no header row"}
	}

	headers := make([]string, len(grid[0]))
	for i, h := range grid[0] {
		headers[i] = norm.NFC.String(strings.TrimSpace(h))
	}

	t := Table{Headers: headers}
	for _, cells := range grid[1:] {
		if blank(cells) {
			continue
		}
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if _, dup := row[h]; dup {
				continue
			}
			if i < len(cells) {
				row[h] = strings.TrimSpace(cells[i])
			} else {
				row[h] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}

	if len(t.Rows) == 0 {
		return Table{}, &errs.FileError{Reason: "file has no data rows", Detected: t.DetectedHeaders()}
	}
	return t, nil
}

// DetectedHeaders returns the non-empty headers in sheet order.
func (t Table) DetectedHeaders() []string {
	out := make([]string, 0, len(t.Headers))
	for _, h := range t.Headers {
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
