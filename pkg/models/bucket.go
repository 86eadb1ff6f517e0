package models

import (
	"strconv"
	"strings"
)

// SizeBucket is an ordinal classification of a reporting entity by its
// total assets. BucketNone means the record carried no usable total.
type SizeBucket string

const (
	BucketNone     SizeBucket = ""
	BucketUnder    SizeBucket = "<100B"
	Bucket100to250 SizeBucket = "100-250B"
	Bucket250to500 SizeBucket = "250-500B"
	Bucket500to750 SizeBucket = "500-750B"
	BucketOver750  SizeBucket = ">=750B"
)

// Bucket thresholds. The upstream feed stores dollar amounts in thousands,
// so 750e6 thousands is $750 billion. Boundaries are inclusive lower
// bounds: a value exactly at a threshold lands in the higher bucket.
const (
	threshold750B = 750_000_000
	threshold500B = 500_000_000
	threshold250B = 250_000_000
	threshold100B = 100_000_000
)

// BucketFor classifies a total-assets value. nil and zero yield
// BucketNone, never BucketUnder: an entity with no reported total is
// excluded from bucket aggregates rather than counted as small.
func BucketFor(totalAssets *float64) SizeBucket {
	if totalAssets == nil || *totalAssets == 0 {
		return BucketNone
	}
	v := *totalAssets
	switch {
	case v >= threshold750B:
		return BucketOver750
	case v >= threshold500B:
		return Bucket500to750
	case v >= threshold250B:
		return Bucket250to500
	case v >= threshold100B:
		return Bucket100to250
	default:
		return BucketUnder
	}
}

// Buckets returns all real buckets in descending size order.
func Buckets() []SizeBucket {
	return []SizeBucket{BucketOver750, Bucket500to750, Bucket250to500, Bucket100to250, BucketUnder}
}

// parseFloat parses a numeric string, tolerating surrounding whitespace
// and thousands separators.
func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
