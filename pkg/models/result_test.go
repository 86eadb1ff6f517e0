package models

import (
	"testing"
	"time"
)

func testTable() *ResultTable {
	d1 := time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC)
	t1 := &ResultTable{Rows: []JoinedRecord{
		{
			Record: FilingRecord{
				EntityID:   "123",
				ReportDate: d1,
				Fields:     map[string]any{"bhck2170": 500_000_000.0, "rssd9001": "Alpha Bancorp"},
			},
			Labels: map[string]string{"bhck2170": "Total assets"},
		},
		{
			Record: FilingRecord{
				EntityID:   "456",
				ReportDate: d2,
				Fields:     map[string]any{"bhck2948": "250"},
			},
		},
	}}
	t1.BuildColumns()
	return t1
}

func TestBuildColumns(t *testing.T) {
	table := testTable()
	if len(table.Columns) != 3 {
		t.Fatalf("got %d columns, want 3", len(table.Columns))
	}
	// Sorted by code; label carried from the row that resolved it.
	if table.Columns[0].Code != "bhck2170" || table.Columns[0].Label != "Total assets" {
		t.Errorf("unexpected first column: %+v", table.Columns[0])
	}
	if table.Columns[1].Code != "bhck2948" || table.Columns[1].Label != "" {
		t.Errorf("unresolved code should have empty label: %+v", table.Columns[1])
	}
}

func TestCSVProjection(t *testing.T) {
	rows := testTable().CSV()
	if len(rows) != 3 {
		t.Fatalf("got %d csv rows, want header + 2", len(rows))
	}
	header := rows[0]
	if header[0] != "entity_id" || header[4] != "size_bucket" {
		t.Errorf("unexpected header: %v", header)
	}
	if header[5] != "bhck2170 (Total assets)" {
		t.Errorf("labeled column header: got %q", header[5])
	}

	first := rows[1]
	if first[0] != "123" || first[1] != "Alpha Bancorp" || first[2] != "2023-03-31" {
		t.Errorf("unexpected first row: %v", first)
	}
	if first[4] != string(Bucket500to750) {
		t.Errorf("bucket cell: got %q", first[4])
	}

	// Missing values serialize as empty cells, never "0".
	second := rows[2]
	if second[3] != "" || second[4] != "" {
		t.Errorf("missing assets must serialize empty, got %q / %q", second[3], second[4])
	}
}

func TestPeriodsNewestFirst(t *testing.T) {
	periods := testTable().Periods()
	if len(periods) != 2 {
		t.Fatalf("got %d periods", len(periods))
	}
	if !periods[0].After(periods[1]) {
		t.Errorf("periods not newest first: %v", periods)
	}
}
