package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// File locates one source on disk.
type File struct {
	Path  string
	Sheet string // xlsx only; empty selects the first sheet
}

// FileLoader reads .xlsx and .csv sources from disk.
type FileLoader struct {
	Files    map[Kind]File
	Encoding string // csv only: utf-8 (default), windows-1252, iso-8859-1 or any IANA name
	Aliases  map[Kind]map[string]string
}

// Load decodes the file configured for kind and applies its column aliases.
func (l *FileLoader) Load(ctx context.Context, kind Kind) (*Table, error) {
	f, ok := l.Files[kind]
	if !ok || f.Path == "" {
		return nil, fmt.Errorf("no %s source configured", kind)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		t   *Table
		err error
	)
	switch strings.ToLower(filepath.Ext(f.Path)) {
	case ".xlsx", ".xlsm":
		t, err = ReadXLSX(f.Path, f.Sheet)
	case ".csv", ".txt":
		t, err = ReadCSV(f.Path, l.Encoding)
	default:
		return nil, fmt.Errorf("unsupported source format %q", filepath.Ext(f.Path))
	}
	if err != nil {
		return nil, fmt.Errorf("read %s source %s: %w", kind, f.Path, err)
	}

	t.Name = string(kind)
	if aliases, ok := l.Aliases[kind]; ok {
		t.Rename(aliases)
	}
	return t, nil
}

// ReadXLSX reads one worksheet. Cells are read raw so date cells arrive as
// serial day numbers instead of locale-formatted text.
func ReadXLSX(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("sheet %q: %w", sheet, err)
	}
	return fromRecords(filepath.Base(path), rows)
}

// ReadCSV reads a delimited file, decoding it from the named encoding.
func ReadCSV(path, encodingName string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r, err := decodingReader(file, encodingName)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid csv: %w", err)
	}
	return fromRecords(filepath.Base(path), records)
}

// decodingReader strips a UTF-8 byte order mark, or transcodes legacy encodings
// to UTF-8. UTF-8 input is passed through byte for byte so invalid sequences
// reach the normalizer untouched.
func decodingReader(r io.Reader, name string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		br := bufio.NewReader(r)
		if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
			_, _ = br.Discard(len(utf8BOM))
		}
		return br, nil
	case "windows-1252", "cp1252":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder()), nil
	case "iso-8859-1", "latin1", "latin-1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// fromRecords treats the first non-empty record as the header.
func fromRecords(name string, records [][]string) (*Table, error) {
	for i, rec := range records {
		if isEmptyRow(rec) {
			continue
		}
		return NewTable(name, rec, records[i+1:], i+1), nil
	}
	return nil, fmt.Errorf("empty file")
}
