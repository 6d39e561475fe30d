package ledger

import "fmt"

// UnsupportedFormatError is returned for files that are neither delimited
// text nor spreadsheets.
type UnsupportedFormatError struct {
	Path      string
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Extension == "" {
		return fmt.Sprintf("unsupported file type for %q: missing extension", e.Path)
	}
	return fmt.Sprintf("unsupported file type %q for %q", e.Extension, e.Path)
}

// SourceReadError wraps an I/O or parse failure while reading a table.
type SourceReadError struct {
	Path string
	Err  error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("reading %q: %v", e.Path, e.Err)
}

func (e *SourceReadError) Unwrap() error {
	return e.Err
}

// MissingColumnError reports a table that lacks a column the pipeline needs.
type MissingColumnError struct {
	Table  string
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("table %q has no %q column", e.Table, e.Column)
}
