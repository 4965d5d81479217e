// Package stage reads flat source files into core.Table values before import.
//
// Staged tables carry no row label column: their columns are exactly the
// source header.
package stage

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/leapstack-labs/dante/pkg/core"
)

// Read stages a source file according to its extension. sourceTable selects
// the table of a SQLite source and is ignored otherwise.
func Read(ctx context.Context, path, sourceTable string) (*core.Table, error) {
	switch f := core.DetectFormat(path); f {
	case core.FormatTab:
		return ReadFile(path, '\t')
	case core.FormatComma:
		return ReadFile(path, ',')
	case core.FormatSQLite:
		return ReadSQLite(ctx, path, sourceTable)
	default:
		return nil, fmt.Errorf("%s: unsupported source format", path)
	}
}

// ReadFile reads a delimited file whose first line is the header. A line
// with a different number of fields than the header fails the whole read
// with a ColumnCountMismatchError; no partial table is returned.
func ReadFile(path string, delim rune) (*core.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	defer func() { _ = f.Close() }()

	return read(path, f, delim)
}

func read(path string, src io.Reader, delim rune) (*core.Table, error) {
	// Strip a UTF-8 BOM and transcode UTF-16 input marked with one.
	dec := transform.NewReader(src, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	if delim == '\t' {
		return readTab(path, dec)
	}

	r := csv.NewReader(dec)
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: file is empty", path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read header: %w", path, err)
	}

	t := &core.Table{Columns: header}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if len(record) != len(header) {
			line, _ := r.FieldPos(0)
			return nil, &core.ColumnCountMismatchError{Path: path, Line: line, Want: len(header), Got: len(record)}
		}
		t.Rows = append(t.Rows, record)
	}
	return t, nil
}

// maxLine caps a single tab-delimited line.
const maxLine = 64 << 20

// readTab splits each line on tabs. Tab files carry no quoting: a double
// quote is an ordinary character.
func readTab(path string, src io.Reader) (*core.Table, error) {
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)

	var t *core.Table
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSuffix(sc.Text(), "\r")
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if t == nil {
			t = &core.Table{Columns: fields}
			continue
		}
		if len(fields) != len(t.Columns) {
			return nil, &core.ColumnCountMismatchError{Path: path, Line: line, Want: len(t.Columns), Got: len(fields)}
		}
		t.Rows = append(t.Rows, fields)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if t == nil {
		return nil, fmt.Errorf("%s: file is empty", path)
	}
	return t, nil
}
