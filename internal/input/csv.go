package input

import (
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"
)

// ReadCSV reads a CSV batch whose first row is the header.
func ReadCSV(r io.Reader, opts Options) (*Batch, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1 // allow ragged rows
	reader.LazyQuotes = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		rows = append(rows, record)
	}
	return newBatch(rows, opts)
}
