package pgstage

import (
	"encoding/csv"
	"fmt"
	"io"
)

// RecordReader streams flat key/value records out of one input byte stream.
// Read returns io.EOF after the last record.
type RecordReader interface {
	Read() (Record, error)
}

// csvRecordReader parses delimited input with a header row; each data row
// becomes a Record keyed by the header fields.
type csvRecordReader struct {
	r      *csv.Reader
	header []string
}

// NewCSVReader returns the default RecordReader: RFC 4180 CSV with the first
// row as the header.
func NewCSVReader(r io.Reader) RecordReader {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	return &csvRecordReader{r: cr}
}

func (c *csvRecordReader) Read() (Record, error) {
	if c.header == nil {
		row, err := c.r.Read()
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read header: %w", err)
		}
		c.header = make([]string, len(row))
		copy(c.header, row)
	}

	row, err := c.r.Read()
	if err != nil {
		return nil, err
	}
	rec := make(Record, len(row))
	for i, v := range row {
		rec[c.header[i]] = v
	}
	return rec, nil
}
