package providers

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/i474232898/air-quality-timeline/internal/airquality"
)

// UploadProvider parses a user-supplied CSV payload held in memory.
type UploadProvider struct {
	filename string
	data     []byte
}

func NewUploadProvider(filename string, data []byte) *UploadProvider {
	return &UploadProvider{filename: filename, data: data}
}

func (p *UploadProvider) Name() string {
	return "CSV: " + p.filename
}

func (p *UploadProvider) Priority() airquality.Priority {
	return airquality.PriorityUpload
}

// Fetch reads the whole payload. A malformed payload is an error; a payload
// with only a header row is ErrNoData.
func (p *UploadProvider) Fetch(ctx context.Context, _ airquality.Query) (airquality.Batch, error) {
	if len(bytes.TrimSpace(p.data)) == 0 {
		return airquality.Batch{}, airquality.ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return airquality.Batch{}, err
	}

	table, err := ReadTable(bytes.NewReader(p.data))
	if err != nil {
		return airquality.Batch{}, fmt.Errorf("csv load %s: %w", p.filename, err)
	}
	batch := airquality.BatchFromTable(table, p.Name(), airquality.PriorityUpload)
	if len(batch.Records) == 0 {
		return batch, fmt.Errorf("csv load %s: %w", p.filename, airquality.ErrNoData)
	}
	return batch, nil
}

// ReadTable parses CSV text with a header row. Rows may have ragged lengths;
// short rows read as empty cells.
func ReadTable(r io.Reader) (airquality.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return airquality.Table{}, errors.New("empty file")
	}
	if err != nil {
		return airquality.Table{}, err
	}
	if len(header) > 0 {
		header[0] = string(bytes.TrimPrefix([]byte(header[0]), []byte("\xef\xbb\xbf")))
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return airquality.Table{}, err
	}
	return airquality.Table{Columns: header, Rows: rows}, nil
}
