// Package pipeline implements the reconciliation core: normalizing raw
// filing rows, joining them against the mnemonic directory with
// per-record temporal validity, and bucketing the results for
// presentation.
package pipeline

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/openy9c/y9cdash/internal/infra"
	"github.com/openy9c/y9cdash/internal/postgrest"
	"github.com/openy9c/y9cdash/pkg/models"
	"github.com/openy9c/y9cdash/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Normalizer converts raw filing rows into FilingRecords.
type Normalizer struct {
	// Source column names. Zero value uses the upstream defaults.
	IDColumn      string
	DateColumn    string
	PayloadColumn string

	diags *infra.Recorder
}

// NewNormalizer creates a normalizer with the upstream filings table's
// column names.
func NewNormalizer(diags *infra.Recorder) *Normalizer {
	return &Normalizer{
		IDColumn:      "rssd_id",
		DateColumn:    "report_period",
		PayloadColumn: "data",
		diags:         diags,
	}
}

// Normalize converts one raw row. It returns false when the row lacks
// an entity ID or a parseable report date; such rows are skipped with a
// diagnostic. A malformed payload is not a skip: the record survives
// with empty fields.
func (n *Normalizer) Normalize(raw postgrest.Row) (models.FilingRecord, bool) {
	id := rawString(raw[n.IDColumn])
	if id == "" {
		n.diags.Record(infra.DiagBadRow, n.IDColumn, "row missing entity id: %v", raw)
		return models.FilingRecord{}, false
	}

	date, err := utils.ParseDate(rawString(raw[n.DateColumn]))
	if err != nil {
		n.diags.Record(infra.DiagBadRow, id, "unparseable report date: %v", err)
		return models.FilingRecord{}, false
	}

	payload := raw[n.PayloadColumn]
	fields, decodeErr := decodePayload(payload)
	if decodeErr != nil {
		n.diags.Record(infra.DiagDecode, id, "payload decode failed: %v", decodeErr)
		fields = map[string]any{}
	}

	rec := models.FilingRecord{
		EntityID:   id,
		ReportDate: date,
		Fields:     fields,
	}
	switch v := payload.(type) {
	case string:
		rec.RawPayload = v
	case map[string]any:
		// Already-decoded payloads have no source text; re-serialize so
		// RawPayload is populated for every record with a payload.
		if b, err := json.Marshal(v); err == nil {
			rec.RawPayload = string(b)
		}
	}
	return rec, true
}

// decodePayload resolves the three payload shapes the upstream emits:
// an object, a JSON-encoded string, or a JSON string literal containing
// another JSON document (double-encoded). It decodes the minimum number
// of times needed to reach a mapping and no further.
func decodePayload(payload any) (map[string]any, error) {
	switch v := payload.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return lowerKeys(v), nil
	case string:
		return decodeString(v)
	default:
		return nil, fmt.Errorf("payload has unsupported type %T", payload)
	}
}

func decodeString(s string) (map[string]any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]any{}, nil
	}

	var first any
	if err := json.Unmarshal([]byte(s), &first); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	switch v := first.(type) {
	case map[string]any:
		return lowerKeys(v), nil
	case string:
		// Double-encoded: the first decode produced the inner document
		// as text. Decode exactly once more; a third layer is upstream
		// corruption, not something to chase.
		var second map[string]any
		if err := json.Unmarshal([]byte(v), &second); err != nil {
			return nil, fmt.Errorf("decode inner payload: %w", err)
		}
		return lowerKeys(second), nil
	default:
		return nil, fmt.Errorf("payload decoded to %T, not an object", first)
	}
}

// lowerKeys normalizes field codes to lowercase. Values pass through
// untouched; numeric coercion happens lazily via FilingRecord.Float.
func lowerKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

func rawString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case float64:
		// Some exports type the RSSD ID numerically.
		return strings.TrimSuffix(strings.TrimSuffix(fmt.Sprintf("%.0f", s), ".0"), ".")
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
