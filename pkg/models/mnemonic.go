package models

import "time"

// MnemonicEntry is one versioned definition of a reportable field code
// from the MDRM dictionary. Entries are loaded once per session and
// treated as read-only reference data.
type MnemonicEntry struct {
	// Code is the compound key: series mnemonic + item code,
	// normalized to uppercase (e.g. "BHCK2170").
	Code          string `json:"code"`
	Label         string `json:"label"`
	ReportingForm string `json:"reporting_form"`

	ValidFrom time.Time `json:"valid_from"`
	// ValidUntil is nil for definitions still in force.
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// ActiveOn reports whether the entry's validity window covers the given
// date. The window is [ValidFrom, ValidUntil] with an open upper bound
// when ValidUntil is nil.
func (e *MnemonicEntry) ActiveOn(d time.Time) bool {
	if d.Before(e.ValidFrom) {
		return false
	}
	return e.ValidUntil == nil || !d.After(*e.ValidUntil)
}
