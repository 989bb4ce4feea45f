package frame

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/YuminosukeSato/scigo-studio/pkg/errors"
)

const csvSource = "csv"

// ReadCSV parses comma separated text with a header row.
//
// The payload must be UTF-8; a leading byte order mark is dropped. Header
// names are deduplicated ("a", "a.1", ...), empty names become
// "Unnamed: <i>", blank and whitespace-only lines are skipped, stray quotes
// inside unquoted fields are kept as text and short rows are padded with
// missing cells. Every failure is a *errors.ParseError.
//
//	f, err := frame.ReadCSV(strings.NewReader("a,b\n1,x\n2,y\n"))
//	f.Column("a") // KindInt
func ReadCSV(r io.Reader) (*Frame, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewParseError(csvSource, 0, err)
	}
	if err := validateUTF8(raw); err != nil {
		return nil, err
	}

	decoded := transform.NewReader(bytes.NewReader(raw), unicode.UTF8BOM.NewDecoder())
	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := readNonBlank(cr)
	if err == io.EOF {
		return nil, errors.NewParseError(csvSource, 0, errors.New("No columns to parse from file"))
	}
	if err != nil {
		return nil, csvError(err)
	}
	names := mangleHeader(header)

	cells := make([][]string, len(names))
	for {
		record, err := readNonBlank(cr)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, csvError(err)
		}
		if len(record) > len(names) {
			line, _ := cr.FieldPos(0)
			return nil, errors.NewParseError(csvSource, line,
				fmt.Errorf("Expected %d fields in line %d, saw %d", len(names), line, len(record)))
		}
		for j := range names {
			if j < len(record) {
				cells[j] = append(cells[j], record[j])
			} else {
				cells[j] = append(cells[j], "")
			}
		}
	}

	columns := make([]*Column, len(names))
	for j, name := range names {
		columns[j] = NewColumn(name, cells[j])
	}
	f, err := New(columns...)
	if err != nil {
		return nil, errors.NewParseError(csvSource, 0, err)
	}
	return f, nil
}

// readNonBlank returns the next record, skipping lines that hold nothing
// but whitespace.
func readNonBlank(cr *csv.Reader) ([]string, error) {
	for {
		record, err := cr.Read()
		if err != nil {
			return nil, err
		}
		if len(record) != 1 || strings.TrimSpace(record[0]) != "" {
			return record, nil
		}
	}
}

func csvError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return errors.NewParseError(csvSource, pe.Line, pe.Err)
	}
	return errors.NewParseError(csvSource, 0, err)
}

// validateUTF8 reports the first invalid byte with its line number.
func validateUTF8(raw []byte) error {
	if utf8.Valid(raw) {
		return nil
	}
	line := 1
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRune(raw[i:])
		if r == utf8.RuneError && size <= 1 {
			return errors.NewParseError(csvSource, line,
				fmt.Errorf("'utf-8' codec can't decode byte 0x%02x in position %d", raw[i], i))
		}
		if r == '\n' {
			line++
		}
		i += size
	}
	return nil
}

// mangleHeader applies the pandas rules for empty and duplicate names.
func mangleHeader(header []string) []string {
	names := make([]string, len(header))
	seen := make(map[string]int, len(header))
	used := make(map[string]bool, len(header))
	for i, h := range header {
		name := h
		if strings.TrimSpace(name) == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if used[name] {
			base := name
			for used[name] {
				seen[base]++
				name = fmt.Sprintf("%s.%d", base, seen[base])
			}
		}
		used[name] = true
		names[i] = name
	}
	return names
}
