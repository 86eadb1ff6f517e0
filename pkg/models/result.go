package models

import (
	"sort"
	"strconv"
	"time"
)

// Column describes one field-code column of a ResultTable, carrying the
// resolved directory label when one exists.
type Column struct {
	Code  string `json:"code"`
	Label string `json:"label,omitempty"`
}

// JoinedRecord pairs a filing record with the directory labels resolved
// for its field codes. Codes without a matching directory entry are
// simply absent from Labels; the field itself is retained.
type JoinedRecord struct {
	Record FilingRecord      `json:"record"`
	Labels map[string]string `json:"labels,omitempty"`
}

// ResultTable is the tabular output of one reconciliation run,
// consumable by any rendering layer. One row per input record.
type ResultTable struct {
	Columns []Column       `json:"columns"`
	Rows    []JoinedRecord `json:"rows"`
}

// BuildColumns derives the column set from the rows: the union of all
// field codes, sorted, each labeled from the first row that resolved it.
func (t *ResultTable) BuildColumns() {
	labels := make(map[string]string)
	codes := make(map[string]bool)
	for _, row := range t.Rows {
		for code := range row.Record.Fields {
			codes[code] = true
			if _, seen := labels[code]; !seen {
				if l, ok := row.Labels[code]; ok {
					labels[code] = l
				}
			}
		}
	}
	sorted := make([]string, 0, len(codes))
	for c := range codes {
		sorted = append(sorted, c)
	}
	sort.Strings(sorted)

	t.Columns = t.Columns[:0]
	for _, c := range sorted {
		t.Columns = append(t.Columns, Column{Code: c, Label: labels[c]})
	}
}

// CSV returns a CSV-serializable projection of the table: a header row
// followed by one row per record. Missing values serialize as empty
// cells, not "0".
func (t *ResultTable) CSV() [][]string {
	header := []string{"entity_id", "entity_name", "report_date", "total_assets", "size_bucket"}
	for _, col := range t.Columns {
		name := col.Code
		if col.Label != "" {
			name = col.Code + " (" + col.Label + ")"
		}
		header = append(header, name)
	}

	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, header)
	for _, row := range t.Rows {
		rec := row.Record
		line := []string{
			rec.EntityID,
			rec.EntityName(),
			rec.ReportDate.Format("2006-01-02"),
			formatFloat(rec.TotalAssets()),
			string(rec.SizeBucket()),
		}
		for _, col := range t.Columns {
			line = append(line, formatFloat(rec.Float(col.Code)))
		}
		out = append(out, line)
	}
	return out
}

// Periods returns the distinct report dates present, newest first.
func (t *ResultTable) Periods() []time.Time {
	seen := make(map[time.Time]bool)
	var periods []time.Time
	for _, row := range t.Rows {
		if !seen[row.Record.ReportDate] {
			seen[row.Record.ReportDate] = true
			periods = append(periods, row.Record.ReportDate)
		}
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].After(periods[j]) })
	return periods
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
