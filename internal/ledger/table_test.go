package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func writeWorkbook(t *testing.T, name string, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"gl.csv", FormatDelimited, false},
		{"GL.CSV", FormatDelimited, false},
		{"map.xlsx", FormatSpreadsheet, false},
		{"map.xls", FormatSpreadsheet, false},
		{"statement.pdf", "", true},
		{"noext", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := DetectFormat(tt.path)
			if tt.wantErr {
				var unsupported *UnsupportedFormatError
				require.ErrorAs(t, err, &unsupported)
				assert.Equal(t, tt.path, unsupported.Path)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadFile_CSV(t *testing.T) {
	content := "\xEF\xBB\xBFTransaction_ID, cost_item ,Amount_Reporting_Curr,counterparty\n" +
		"T1,C1,\"1'234,56\",ACME Ltd\n" +
		"T2,C2,N/A,John Smith\n" +
		"T3,C3,\"-12,5\",\n"
	path := writeFile(t, "gl.csv", []byte(content))

	table, err := LoadFile(path, AmountColumns...)
	require.NoError(t, err)

	assert.Equal(t, "gl", table.Name)
	assert.Equal(t, []string{"Transaction_ID", "cost_item", "Amount_Reporting_Curr", "counterparty"}, table.Columns)
	require.Len(t, table.Rows, 3)

	first := table.Rows[0]
	assert.Equal(t, "C1", first.Get(ColumnCostItem))
	assert.Equal(t, "ACME Ltd", first.Get(ColumnCounterparty))
	amount, ok := first.Amount(ColumnAmount)
	require.True(t, ok)
	assertDecimal(t, "1234.56", amount)

	_, ok = table.Rows[1].Amount(ColumnAmount)
	assert.False(t, ok, "non-numeric cell is missing, not an error")

	amount, ok = table.Rows[2].Amount(ColumnAmount)
	require.True(t, ok)
	assertDecimal(t, "-12.5", amount)

	_, ok = first.Amount("Debit")
	assert.False(t, ok, "absent amount column")
}

func TestLoadFile_CSVQuotedCells(t *testing.T) {
	content := "\"Transaction_ID\",\" counterparty\"\n" +
		"T1,\"ACME\nLtd\"\n" +
		"\n" +
		"T2,\"Smith, John\"\n"
	table, err := LoadFile(writeFile(t, "gl.csv", []byte(content)))
	require.NoError(t, err)

	assert.Equal(t, []string{"Transaction_ID", "counterparty"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "ACME\nLtd", table.Rows[0].Get(ColumnCounterparty))
	assert.Equal(t, "T2", table.Rows[1].Get("Transaction_ID"))
	assert.Equal(t, "Smith, John", table.Rows[1].Get(ColumnCounterparty))
}

func TestLoadFile_CSVHeaderOnly(t *testing.T) {
	table, err := LoadFile(writeFile(t, "regions.csv", []byte("structural_unit,region\n")))
	require.NoError(t, err)
	assert.Equal(t, []string{"structural_unit", "region"}, table.Columns)
	assert.Empty(t, table.Rows)
}

func TestLoadFile_Spreadsheet(t *testing.T) {
	path := writeWorkbook(t, "gl.xlsx", [][]interface{}{
		{"cost_item", "structural_unit", "Amount_Reporting_Curr"},
		{"C1", "U1", 100},
		{},
		{"C2", "U2", "-30,5"},
		{"C3"},
	})

	table, err := LoadFile(path, AmountColumns...)
	require.NoError(t, err)
	require.Len(t, table.Rows, 3, "blank rows are skipped")

	amount, ok := table.Rows[0].Amount(ColumnAmount)
	require.True(t, ok)
	assertDecimal(t, "100", amount)

	amount, ok = table.Rows[1].Amount(ColumnAmount)
	require.True(t, ok)
	assertDecimal(t, "-30.5", amount)

	assert.Equal(t, "C3", table.Rows[2].Get(ColumnCostItem))
	_, ok = table.Rows[2].Amount(ColumnAmount)
	assert.False(t, ok, "short rows are padded with empty cells")
}

func TestLoadFile_Errors(t *testing.T) {
	t.Run("unsupported extension", func(t *testing.T) {
		_, err := LoadFile(writeFile(t, "gl.pdf", []byte("%PDF")))
		var unsupported *UnsupportedFormatError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, ".pdf", unsupported.Extension)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "absent.csv"))
		var readErr *SourceReadError
		require.ErrorAs(t, err, &readErr)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("invalid encoding", func(t *testing.T) {
		_, err := LoadFile(writeFile(t, "gl.csv", []byte("a,b\n\xff\xfe,1\n")))
		var readErr *SourceReadError
		require.ErrorAs(t, err, &readErr)
		assert.ErrorIs(t, err, errEncoding)
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := LoadFile(writeFile(t, "gl.csv", []byte("\xEF\xBB\xBF  \n")))
		assert.ErrorIs(t, err, errEmptyFile)
	})

	t.Run("ragged csv", func(t *testing.T) {
		_, err := LoadFile(writeFile(t, "gl.csv", []byte("a,b\n1,2,3\n")))
		var readErr *SourceReadError
		require.ErrorAs(t, err, &readErr)
	})

	t.Run("corrupt spreadsheet", func(t *testing.T) {
		_, err := LoadFile(writeFile(t, "gl.xlsx", []byte("not a zip archive")))
		var readErr *SourceReadError
		require.ErrorAs(t, err, &readErr)
	})
}
