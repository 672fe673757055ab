package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var recordColumns = []string{"university", "program", "tuition", "location", "visa_service"}

// ParseRecordsCSV reads university records from CSV with a header row. The
// header must name every record column; order is free and extra columns are
// ignored.
func ParseRecordsCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}

	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	var missing []string
	for _, c := range recordColumns {
		if _, ok := pos[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("csv must contain columns: %s (missing %s)",
			strings.Join(recordColumns, ", "), strings.Join(missing, ", "))
	}

	var records []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv line %d: %w", line, err)
		}

		field := func(name string) string {
			i := pos[name]
			if i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		tuition, err := parseTuition(field("tuition"))
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		rec := Record{
			University:  field("university"),
			Program:     field("program"),
			Tuition:     tuition,
			Location:    field("location"),
			VisaService: field("visa_service"),
		}
		if err := rec.validate(); err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// parseTuition accepts plain integers as well as "$57,340" and "57340.0".
func parseTuition(s string) (int64, error) {
	clean := strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if clean == "" {
		return 0, fmt.Errorf("tuition is empty")
	}
	if n, err := strconv.ParseInt(clean, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("tuition %q is not a number", s)
	}
	return int64(math.Round(f)), nil
}
