package pipeline

import (
	"github.com/openy9c/y9cdash/internal/infra"
	"github.com/openy9c/y9cdash/internal/mdrm"
	"github.com/openy9c/y9cdash/pkg/models"
)

// Join resolves every field code of every record against the directory
// using the record's own report date as the validity cutoff.
//
// This is a left join with enforced cardinality: the output has exactly
// one row per input record. Codes with no matching window stay
// unlabeled; codes covered by overlapping windows resolve to the entry
// with the latest ValidFrom and raise an ambiguity diagnostic.
func Join(records []models.FilingRecord, dir *mdrm.Directory, diags *infra.Recorder) []models.JoinedRecord {
	out := make([]models.JoinedRecord, 0, len(records))
	for _, rec := range records {
		joined := models.JoinedRecord{Record: rec}
		for code := range rec.Fields {
			entry, matches := dir.Lookup(code, rec.ReportDate)
			if entry == nil {
				continue
			}
			if matches > 1 {
				diags.Record(infra.DiagAmbiguity, entry.Code,
					"%d validity windows cover %s; using definition starting %s",
					matches, rec.ReportDate.Format("2006-01-02"), entry.ValidFrom.Format("2006-01-02"))
			}
			if joined.Labels == nil {
				joined.Labels = make(map[string]string)
			}
			joined.Labels[code] = entry.Label
		}
		out = append(out, joined)
	}
	return out
}
