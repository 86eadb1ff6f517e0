// Package mdrm loads the versioned MDRM mnemonic dictionary from the
// remote mapping table and resolves codes against record report dates.
//
// A code's definition is valid only inside its [start_date, end_date]
// window for a given reporting form. Lookups take the date of interest
// per call: resolving a 2019 filing uses the 2019 window even when the
// definition has since been retired.
package mdrm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openy9c/y9cdash/internal/infra"
	"github.com/openy9c/y9cdash/internal/postgrest"
	"github.com/openy9c/y9cdash/pkg/models"
	"github.com/openy9c/y9cdash/pkg/utils"
)

// DefaultTable is the remote mapping table name.
const DefaultTable = "mdrm_mapping"

// DefaultForms are the reporting forms relevant to the dashboard.
var DefaultForms = []string{"FR Y-9C", "FR Y-15", "FFIEC 031", "FFIEC 041"}

// RowSource fetches raw rows from a remote table.
type RowSource interface {
	FetchAll(ctx context.Context, q postgrest.Query) ([]postgrest.Row, error)
}

// Options configures directory loading.
type Options struct {
	Table          string   // default DefaultTable
	ReportingForms []string // default DefaultForms; empty slice means no filter
	PageSize       int
	MaxRows        int
}

// Directory is the loaded dictionary: read-only after Load.
type Directory struct {
	// entries per code, sorted by ValidFrom descending so the first
	// window matching a date is also the latest-started one.
	entries map[string][]models.MnemonicEntry
}

// Load fetches, filters, and deduplicates the dictionary.
func Load(ctx context.Context, src RowSource, opts Options, diags *infra.Recorder) (*Directory, error) {
	table := opts.Table
	if table == "" {
		table = DefaultTable
	}
	forms := opts.ReportingForms
	if forms == nil {
		forms = DefaultForms
	}

	rows, err := src.FetchAll(ctx, postgrest.Query{
		Table:    table,
		Columns:  []string{"mnemonic", "item_code", "item_name", "reporting_form", "start_date", "end_date"},
		PageSize: opts.PageSize,
		MaxRows:  opts.MaxRows,
	})
	if err != nil {
		return nil, fmt.Errorf("load mnemonic directory: %w", err)
	}

	wantForm := make(map[string]bool, len(forms))
	for _, f := range forms {
		wantForm[strings.TrimSpace(f)] = true
	}

	d := &Directory{entries: make(map[string][]models.MnemonicEntry)}
	// Exact duplicates collapse on (code, form, valid_from); later rows win.
	seen := make(map[string]int) // dedup key -> index into d.entries[code]

	for _, row := range rows {
		entry, ok := parseRow(row, diags)
		if !ok {
			continue
		}
		if len(wantForm) > 0 && !wantForm[entry.ReportingForm] {
			continue
		}

		key := entry.Code + "|" + entry.ReportingForm + "|" + utils.FormatDate(entry.ValidFrom)
		if idx, dup := seen[key]; dup {
			d.entries[entry.Code][idx] = entry
			continue
		}
		d.entries[entry.Code] = append(d.entries[entry.Code], entry)
		seen[key] = len(d.entries[entry.Code]) - 1
	}

	for code := range d.entries {
		es := d.entries[code]
		sort.Slice(es, func(i, j int) bool { return es[i].ValidFrom.After(es[j].ValidFrom) })
	}
	return d, nil
}

// Lookup resolves a code as of a date. It returns the winning entry and
// the number of candidate windows that covered the date: 0 means
// unknown code (or no window covering the date), >1 means the source
// data has overlapping windows, resolved deterministically in favor of
// the latest ValidFrom.
func (d *Directory) Lookup(code string, asOf time.Time) (*models.MnemonicEntry, int) {
	candidates := d.entries[strings.ToUpper(code)]
	matches := 0
	var winner *models.MnemonicEntry
	for i := range candidates {
		if candidates[i].ActiveOn(asOf) {
			matches++
			if winner == nil {
				// Entries are sorted by ValidFrom descending, so the
				// first hit is the latest-started window.
				winner = &candidates[i]
			}
		}
	}
	return winner, matches
}

// Label returns the human-readable label for a code as of a date, or ""
// when unresolved.
func (d *Directory) Label(code string, asOf time.Time) string {
	entry, _ := d.Lookup(code, asOf)
	if entry == nil {
		return ""
	}
	return entry.Label
}

// Len returns the number of distinct codes loaded.
func (d *Directory) Len() int { return len(d.entries) }

// parseRow converts one raw mapping row into an entry. Rows missing the
// compound key or carrying unparseable dates are skipped with a
// diagnostic; the load continues.
func parseRow(row postgrest.Row, diags *infra.Recorder) (models.MnemonicEntry, bool) {
	mnemonic := strings.TrimSpace(rowString(row, "mnemonic"))
	itemCode := strings.TrimSpace(rowString(row, "item_code"))
	if mnemonic == "" || itemCode == "" {
		diags.Record(infra.DiagBadRow, DefaultTable, "row missing mnemonic/item_code: %v", row)
		return models.MnemonicEntry{}, false
	}
	code := strings.ToUpper(mnemonic + itemCode)

	validFrom, err := utils.ParseDate(rowString(row, "start_date"))
	if err != nil {
		diags.Record(infra.DiagBadRow, code, "bad start_date: %v", err)
		return models.MnemonicEntry{}, false
	}
	validUntil, err := utils.ParseEndDate(rowString(row, "end_date"))
	if err != nil {
		diags.Record(infra.DiagBadRow, code, "bad end_date: %v", err)
		return models.MnemonicEntry{}, false
	}

	return models.MnemonicEntry{
		Code:          code,
		Label:         strings.TrimSpace(rowString(row, "item_name")),
		ReportingForm: strings.TrimSpace(rowString(row, "reporting_form")),
		ValidFrom:     validFrom,
		ValidUntil:    validUntil,
	}, true
}

func rowString(row postgrest.Row, key string) string {
	if v, ok := row[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}
