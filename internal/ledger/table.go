package ledger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Format identifies how a source file is read.
type Format string

const (
	FormatDelimited   Format = "delimited"
	FormatSpreadsheet Format = "spreadsheet"
)

var (
	errEmptyFile = errors.New("file is empty")
	errNoHeader  = errors.New("file has no header row")
	errNoSheets  = errors.New("workbook has no sheets")
	errEncoding  = errors.New("file is not valid UTF-8")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Row is one table row. Values holds every cell as text; Amounts holds the
// normalized value of each designated amount column that was present.
type Row struct {
	Values  map[string]string
	Amounts map[string]decimal.NullDecimal
}

// Get returns the trimmed cell value, or "" when the column is absent.
func (r Row) Get(column string) string {
	return strings.TrimSpace(r.Values[column])
}

// Amount returns the normalized amount for a designated column.
func (r Row) Amount(column string) (decimal.Decimal, bool) {
	v, ok := r.Amounts[column]
	if !ok || !v.Valid {
		return decimal.Zero, false
	}
	return v.Decimal, true
}

// Table is a row-oriented view of one source file.
type Table struct {
	Name    string
	Path    string
	Columns []string
	Rows    []Row
}

// HasColumn reports whether the header contains column.
func (t *Table) HasColumn(column string) bool {
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// DetectFormat maps a file extension to a Format.
func DetectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".csv":
		return FormatDelimited, nil
	case ".xlsx", ".xls":
		return FormatSpreadsheet, nil
	default:
		return "", &UnsupportedFormatError{Path: path, Extension: ext}
	}
}

// LoadFile detects the format of path and loads it with LoadTable.
func LoadFile(path string, amountColumns ...string) (*Table, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	return LoadTable(path, format, amountColumns)
}

// LoadTable reads path as the given format. Cells of amountColumns are
// passed through NormalizeAmount; all other cells are kept as text.
func LoadTable(path string, format Format, amountColumns []string) (*Table, error) {
	var (
		header  []string
		records []map[string]string
		err     error
	)

	switch format {
	case FormatDelimited:
		header, records, err = readDelimited(path)
	case FormatSpreadsheet:
		header, records, err = readSpreadsheet(path)
	default:
		return nil, &UnsupportedFormatError{Path: path, Extension: strings.ToLower(filepath.Ext(path))}
	}
	if err != nil {
		return nil, &SourceReadError{Path: path, Err: err}
	}

	table := &Table{
		Name:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path:    path,
		Columns: header,
		Rows:    make([]Row, 0, len(records)),
	}

	for _, rec := range records {
		row := Row{
			Values:  rec,
			Amounts: make(map[string]decimal.NullDecimal, len(amountColumns)),
		}
		for _, col := range amountColumns {
			raw, ok := rec[col]
			if !ok {
				continue
			}
			d, valid := NormalizeAmount(raw)
			row.Amounts[col] = decimal.NullDecimal{Decimal: d, Valid: valid}
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

func readDelimited(path string) ([]string, []map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, errEmptyFile
	}
	if !utf8.Valid(data) {
		return nil, nil, errEncoding
	}

	all, err := gocsv.DefaultCSVReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, errNoHeader
	}

	header := trimHeader(all[0])
	records := make([]map[string]string, 0, len(all)-1)
	for _, fields := range all[1:] {
		rec := make(map[string]string, len(header))
		for i, name := range header {
			rec[name] = fields[i]
		}
		records = append(records, rec)
	}

	return header, records, nil
}

func readSpreadsheet(path string) ([]string, []map[string]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errNoSheets
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, errNoHeader
	}

	header := trimHeader(rows[0])
	records := make([]map[string]string, 0, len(rows)-1)
	for _, cells := range rows[1:] {
		if isBlank(cells) {
			continue
		}
		rec := make(map[string]string, len(header))
		for i, col := range header {
			if col == "" {
				continue
			}
			if i < len(cells) {
				rec[col] = cells[i]
			} else {
				rec[col] = ""
			}
		}
		records = append(records, rec)
	}

	return header, records, nil
}

func trimHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return out
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
