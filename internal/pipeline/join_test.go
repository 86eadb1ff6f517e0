package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/openy9c/y9cdash/internal/infra"
	"github.com/openy9c/y9cdash/internal/mdrm"
	"github.com/openy9c/y9cdash/internal/postgrest"
	"github.com/openy9c/y9cdash/pkg/models"
)

// staticSource serves canned rows per table name.
type staticSource struct {
	rows map[string][]postgrest.Row
	err  error
}

func (s *staticSource) FetchAll(ctx context.Context, q postgrest.Query) ([]postgrest.Row, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := s.rows[q.Table]
	if q.Filters != nil {
		if want, ok := q.Filters["report_period"]; ok {
			var filtered []postgrest.Row
			for _, r := range out {
				if "eq."+r["report_period"].(string) == want {
					filtered = append(filtered, r)
				}
			}
			out = filtered
		}
	}
	return out, nil
}

func dirRow(mnemonic, item, name, form, start, end string) postgrest.Row {
	row := postgrest.Row{
		"mnemonic":       mnemonic,
		"item_code":      item,
		"item_name":      name,
		"reporting_form": form,
		"start_date":     start,
	}
	if end != "" {
		row["end_date"] = end
	}
	return row
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func loadTestDir(t *testing.T, rows []postgrest.Row) *mdrm.Directory {
	t.Helper()
	src := &staticSource{rows: map[string][]postgrest.Row{mdrm.DefaultTable: rows}}
	d, err := mdrm.Load(context.Background(), src, mdrm.Options{}, infra.NewRecorder())
	if err != nil {
		t.Fatalf("load directory: %v", err)
	}
	return d
}

func record(id, reportDate string, fields map[string]any) models.FilingRecord {
	return models.FilingRecord{
		EntityID:   id,
		ReportDate: date(reportDate),
		Fields:     fields,
	}
}

// ── Temporal correctness ──

func TestJoinUsesRecordReportDate(t *testing.T) {
	dir := loadTestDir(t, []postgrest.Row{
		dirRow("BHCK", "2170", "old label", "FR Y-9C", "2015-01-01", "2020-12-31"),
		dirRow("BHCK", "2170", "new label", "FR Y-9C", "2021-01-01", ""),
	})

	records := []models.FilingRecord{
		record("1", "2019-06-30", map[string]any{"bhck2170": 1.0}),
		record("2", "2022-01-01", map[string]any{"bhck2170": 1.0}),
	}

	joined := Join(records, dir, infra.NewRecorder())
	if len(joined) != 2 {
		t.Fatalf("got %d rows", len(joined))
	}
	if got := joined[0].Labels["bhck2170"]; got != "old label" {
		t.Errorf("2019 record resolved %q, want the window active at its report date", got)
	}
	if got := joined[1].Labels["bhck2170"]; got != "new label" {
		t.Errorf("2022 record resolved %q", got)
	}
}

func TestJoinUnmatchedCodesRetained(t *testing.T) {
	dir := loadTestDir(t, []postgrest.Row{
		dirRow("BHCK", "2170", "Total assets", "FR Y-9C", "2015-01-01", ""),
	})

	records := []models.FilingRecord{
		record("1", "2023-03-31", map[string]any{"bhck2170": 1.0, "xxxx0000": 2.0}),
	}
	joined := Join(records, dir, infra.NewRecorder())

	// The unlabeled field survives on the record; only its label is absent.
	if _, ok := joined[0].Record.Fields["xxxx0000"]; !ok {
		t.Error("unmatched field dropped from record")
	}
	if _, ok := joined[0].Labels["xxxx0000"]; ok {
		t.Error("unmatched code should have no label")
	}
	if joined[0].Labels["bhck2170"] != "Total assets" {
		t.Errorf("matched code unresolved: %v", joined[0].Labels)
	}
}

// ── Cardinality ──

func TestJoinPreservesCardinality(t *testing.T) {
	// Overlapping windows would fan out a naive join; ours must not.
	dir := loadTestDir(t, []postgrest.Row{
		dirRow("BHCK", "2170", "older", "FR Y-9C", "2015-01-01", ""),
		dirRow("BHCK", "2170", "newer", "FR Y-9C", "2018-01-01", ""),
	})

	var records []models.FilingRecord
	for i := 0; i < 7; i++ {
		records = append(records, record("e", "2023-03-31", map[string]any{"bhck2170": 1.0}))
	}

	joined := Join(records, dir, infra.NewRecorder())
	if len(joined) != len(records) {
		t.Fatalf("join changed cardinality: %d -> %d", len(records), len(joined))
	}
}

func TestJoinAmbiguityDiagnosed(t *testing.T) {
	dir := loadTestDir(t, []postgrest.Row{
		dirRow("BHCK", "2170", "older", "FR Y-9C", "2015-01-01", ""),
		dirRow("BHCK", "2170", "newer", "FR Y-9C", "2018-01-01", ""),
	})

	diags := infra.NewRecorder()
	joined := Join([]models.FilingRecord{
		record("1", "2023-03-31", map[string]any{"bhck2170": 1.0}),
	}, dir, diags)

	if joined[0].Labels["bhck2170"] != "newer" {
		t.Errorf("tie-break should pick latest ValidFrom, got %q", joined[0].Labels["bhck2170"])
	}
	if diags.Count() != 1 {
		t.Fatalf("expected 1 ambiguity diagnostic, got %d", diags.Count())
	}
	if diags.All()[0].Kind != infra.DiagAmbiguity {
		t.Errorf("wrong diagnostic kind: %v", diags.All()[0])
	}
}

func TestJoinEmptyInputs(t *testing.T) {
	dir := loadTestDir(t, nil)
	joined := Join(nil, dir, infra.NewRecorder())
	if len(joined) != 0 {
		t.Errorf("got %d rows from empty input", len(joined))
	}
}
