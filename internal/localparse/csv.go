package localparse

import (
	"encoding/csv"
	"strings"
)

// MaxCSVDataRows bounds memory use.
const MaxCSVDataRows = 999

// ParseCSV requires both a comma and a line break in the input. The first
// non-empty line is the header; up to MaxCSVDataRows data rows are decoded,
// aligning columns by min(header_len, row_len), with sanitized keys.
func ParseCSV(input string) (ok bool, value []any) {
	if !strings.Contains(input, ",") || !strings.ContainsAny(input, "\n\r") {
		return false, nil
	}

	reader := csv.NewReader(strings.NewReader(input))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return false, nil
	}

	var header []string
	rows := records
	for i, rec := range records {
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		header = make([]string, len(rec))
		for j, h := range rec {
			header[j] = SanitizeKey(strings.TrimSpace(h))
		}
		rows = records[i+1:]
		break
	}
	if header == nil {
		return false, nil
	}

	out := make([]any, 0, len(rows))
	for _, row := range rows {
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		n := len(header)
		if len(row) < n {
			n = len(row)
		}
		record := make(map[string]any, n)
		for i := 0; i < n; i++ {
			record[header[i]] = row[i]
		}
		out = append(out, record)
		if len(out) >= MaxCSVDataRows {
			break
		}
	}

	return true, out
}
