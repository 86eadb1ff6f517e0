// Package models defines the data types shared across the application:
// filing records, mnemonic directory entries, size buckets, and the
// tabular result consumed by rendering layers.
package models

import "time"

// TotalAssetsCodes is the prioritized fallback chain for deriving total
// assets from a filing payload. The first code that yields a non-nil,
// non-zero value wins.
var TotalAssetsCodes = []string{"bhck2170", "bhck0337", "bhck0020"}

// EntityNameCode is the payload field carrying the reporting entity's name.
const EntityNameCode = "rssd9001"

// FilingRecord represents one reporting entity's FR Y-9C submission for
// one reporting period. Records are immutable after construction and live
// only for the duration of a single query.
type FilingRecord struct {
	EntityID   string    `json:"entity_id"`
	ReportDate time.Time `json:"report_date"`

	// RawPayload is the serialized field mapping exactly as received.
	RawPayload string `json:"-"`

	// Fields maps lowercase field codes to decoded payload values.
	// Absent codes are missing, never zero.
	Fields map[string]any `json:"fields"`
}

// Float reads a field code as a float64. Missing or non-numeric values
// return nil so downstream aggregates can distinguish missing from zero.
func (r *FilingRecord) Float(code string) *float64 {
	v, ok := r.Fields[code]
	if !ok || v == nil {
		return nil
	}
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	return &f
}

// String reads a field code as a string, or def when absent.
func (r *FilingRecord) String(code, def string) string {
	v, ok := r.Fields[code]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

// EntityName returns the reporting entity's name, or "Unknown" when the
// payload carries none.
func (r *FilingRecord) EntityName() string {
	return r.String(EntityNameCode, "Unknown")
}

// TotalAssets derives total assets via the fallback chain. A code whose
// value is zero counts as absent for chain purposes; if every candidate
// is nil or zero the result is nil.
func (r *FilingRecord) TotalAssets() *float64 {
	for _, code := range TotalAssetsCodes {
		if f := r.Float(code); f != nil && *f != 0 {
			return f
		}
	}
	return nil
}

// SizeBucket returns the record's asset size bucket, or BucketNone when
// total assets are missing or zero.
func (r *FilingRecord) SizeBucket() SizeBucket {
	return BucketFor(r.TotalAssets())
}

// toFloat converts the JSON decoder's value types to float64.
// Strings are parsed; anything else is non-numeric.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		return parseFloat(x)
	default:
		return 0, false
	}
}
