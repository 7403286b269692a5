// Package localization normalizes game localization tables. A table is a
// comma-delimited, double-quote escaped file with a fixed 20-column header;
// every data line becomes one row record keyed by its translation key.
package localization

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/modlet-tools/combiner/core/errors"
)

// TableFile is the table's file name, matched case-insensitively.
const TableFile = "Localization.txt"

// MinColumns is the number of leading fields a row must resolve to be
// accepted. Extra fields beyond this count are ignored.
const MinColumns = 20

// ExpectedHeader is the fixed column ordering of a localization table.
var ExpectedHeader = []string{
	"Key", "File", "Type", "UsedInMainMenu", "NoTranslate", "english",
	"Context / Alternate Text", "german", "latam", "french", "italian",
	"japanese", "koreana", "polish", "brazilian", "russian", "turkish",
	"schinese", "tchinese", "spanish",
}

// TargetLanguages are the translated-language columns, everything after the
// free-text alternate-text column.
var TargetLanguages = ExpectedHeader[7:]

// QuotedColumns are the columns whose values are quoted in combined output
// when non-empty: the english text, the alternate text and every target
// language.
var QuotedColumns = ExpectedHeader[5:]

// Row is one normalized localization entry. Identity for replacement
// purposes is (owning modlet, source path, Key); rows sharing a key across
// distinct modlets are both retained.
type Row struct {
	ModletName string
	ModletID   string
	FullPath   string
	ShortPath  string

	// fields follows ExpectedHeader order: fields[0] is the translation
	// key, fields[5] the english text and so on.
	fields [MinColumns]string
}

// NewRow builds a row from resolved fields in ExpectedHeader order. Callers
// must pass at least MinColumns fields; extras are ignored.
func NewRow(modletName, modletID, fullPath, shortPath string, fields []string) (Row, error) {
	if len(fields) < MinColumns {
		return Row{}, errors.NewParse("localization", fullPath,
			fmt.Sprintf("row has %d fields, need %d", len(fields), MinColumns))
	}
	r := Row{
		ModletName: modletName,
		ModletID:   modletID,
		FullPath:   fullPath,
		ShortPath:  shortPath,
	}
	copy(r.fields[:], fields[:MinColumns])
	return r, nil
}

// Key returns the row's translation key.
func (r Row) Key() string { return r.fields[0] }

// Value returns the row's value for a header column, matched
// case-insensitively against ExpectedHeader names. Unknown columns return
// the empty string.
func (r Row) Value(column string) string {
	for i, name := range ExpectedHeader {
		if strings.EqualFold(name, column) {
			return r.fields[i]
		}
	}
	return ""
}

// Fields returns the row's fields in ExpectedHeader order.
func (r Row) Fields() []string {
	out := make([]string, MinColumns)
	copy(out, r.fields[:])
	return out
}

// Parse normalizes one localization table. The first line is skipped
// unconditionally as the header; blank lines and lines whose first field
// starts with '#' are skipped; rows with fewer than MinColumns fields are
// rejected. Rejections are returned as problems alongside the accepted rows
// so the caller can log them without aborting the run.
func Parse(content, modletName, modletID, fullPath, shortPath string) ([]Row, []error) {
	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows []Row
	var problems []error

	// Header row.
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, []error{&errors.ParseError{Format: "localization", Path: fullPath, Message: err.Error(), Err: err}}
	}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			problems = append(problems, errors.NewParse("localization", fullPath,
				fmt.Sprintf("line %d: %v", line, err)))
			continue
		}
		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			continue
		}
		if strings.HasPrefix(record[0], "#") {
			continue
		}
		if len(record) < MinColumns {
			problems = append(problems, errors.NewParse("localization", fullPath,
				fmt.Sprintf("line %d has %d fields, need %d", line, len(record), MinColumns)))
			continue
		}

		row, err := NewRow(modletName, modletID, fullPath, shortPath, record)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		rows = append(rows, row)
	}

	return rows, problems
}

// Header returns the static header line for combined output.
func Header() string {
	return strings.Join(ExpectedHeader, ",")
}
