// Package input reads address batches from CSV and XLSX files.
package input

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geobatch/pkg/geocode"
)

// Options selects which columns form the address.
type Options struct {
	// Columns names the header columns that make up the address, in query
	// order. Empty selects every column.
	Columns   []string
	Delimiter rune   // CSV only, default ','
	SheetName string // XLSX only, default first sheet
}

// Batch is a parsed input file.
type Batch struct {
	Header  []string // the selected column names
	Records []geocode.AddressRecord
}

// ReadFile reads path as CSV or XLSX depending on its extension.
func ReadFile(path string, opts Options) (*Batch, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(path, opts)
	case ".csv", ".txt", "":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "input: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(f, opts)
	default:
		return nil, eris.Errorf("input: unsupported file type %q", filepath.Ext(path))
	}
}

// newBatch projects rows onto the selected columns. rows[0] is the header.
func newBatch(rows [][]string, opts Options) (*Batch, error) {
	if len(rows) == 0 {
		return nil, eris.New("input: file has no header row")
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}

	idx, err := columnIndexes(header, opts.Columns)
	if err != nil {
		return nil, err
	}

	b := &Batch{Header: make([]string, len(idx))}
	for i, c := range idx {
		b.Header[i] = header[c]
	}
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec := make(geocode.AddressRecord, len(idx))
		for i, c := range idx {
			if c < len(row) {
				rec[i] = strings.TrimSpace(row[c])
			}
		}
		b.Records = append(b.Records, rec)
	}
	return b, nil
}

func columnIndexes(header, columns []string) ([]int, error) {
	if len(columns) == 0 {
		idx := make([]int, len(header))
		for i := range header {
			idx[i] = i
		}
		return idx, nil
	}

	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.ToLower(h)] = i
	}
	idx := make([]int, 0, len(columns))
	for _, c := range columns {
		i, ok := pos[strings.ToLower(strings.TrimSpace(c))]
		if !ok {
			return nil, eris.Errorf("input: column %q not found in header", c)
		}
		idx = append(idx, i)
	}
	return idx, nil
}

func blank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
