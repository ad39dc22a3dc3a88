package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// csvRow is a single ingest row: an optional id, the vector, and an
// optional raw metadata string in the `k=v;k2=v2` form. The core never
// parses CSV itself; this is strictly a CLI-side collaborator.
type csvRow struct {
	HasID       bool
	ID          string
	Vec         []float32
	HasMetadata bool
	MetadataRaw string
}

// readCSVRows reads an ingest file shaped as `id,v0,v1,...,vN[,metadata]`.
// If the first column does not parse as a float, it is treated as an id
// column; if the line has one more field than the detected vector width,
// the trailing field is treated as a raw metadata string.
func readCSVRows(r io.Reader, dim int) ([]csvRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var rows []csvRow
	lineNo := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: %w", lineNo, err)
		}
		lineNo++
		if len(record) == 0 {
			continue
		}

		row, err := parseCSVRow(record, dim)
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: %w", lineNo, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseCSVRow(record []string, dim int) (csvRow, error) {
	fields := record
	var row csvRow

	if _, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 32); err != nil {
		row.HasID = true
		row.ID = fields[0]
		fields = fields[1:]
	}

	if len(fields) == dim+1 {
		row.HasMetadata = true
		row.MetadataRaw = fields[dim]
		fields = fields[:dim]
	}

	if len(fields) != dim {
		return csvRow{}, fmt.Errorf("expected %d vector fields, got %d", dim, len(fields))
	}

	vec := make([]float32, dim)
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
		if err != nil {
			return csvRow{}, fmt.Errorf("field %d: %w", i, err)
		}
		vec[i] = float32(v)
	}
	row.Vec = vec
	return row, nil
}
