package pipeline

import (
	"sort"
	"time"

	"github.com/openy9c/y9cdash/pkg/models"
	"github.com/openy9c/y9cdash/pkg/utils"
)

// BucketSummary aggregates one size bucket: count of entities, summed
// and mean total assets. Records with no usable total are excluded from
// every bucket rather than counted as small.
type BucketSummary struct {
	Bucket      models.SizeBucket `json:"bucket"`
	Count       int               `json:"count"`
	TotalAssets float64           `json:"total_assets"`
	MeanAssets  *float64          `json:"mean_assets,omitempty"`
}

// SummarizeByBucket groups joined records into size buckets, descending
// size order. Buckets with no members are still present with zero
// counts so presentation layers get a stable shape.
func SummarizeByBucket(rows []models.JoinedRecord) []BucketSummary {
	byBucket := make(map[models.SizeBucket]*BucketSummary)
	for _, b := range models.Buckets() {
		byBucket[b] = &BucketSummary{Bucket: b}
	}

	for _, row := range rows {
		assets := row.Record.TotalAssets()
		bucket := models.BucketFor(assets)
		if bucket == models.BucketNone {
			continue
		}
		s := byBucket[bucket]
		s.Count++
		s.TotalAssets += *assets
	}

	out := make([]BucketSummary, 0, len(byBucket))
	for _, b := range models.Buckets() {
		s := byBucket[b]
		if s.Count > 0 {
			mean := s.TotalAssets / float64(s.Count)
			s.MeanAssets = &mean
		}
		out = append(out, *s)
	}
	return out
}

// PeriodPivot is one period's bucket distribution.
type PeriodPivot struct {
	Period  string                    `json:"period"`
	Buckets map[models.SizeBucket]int `json:"buckets"`
	Total   int                       `json:"total"` // bucketed records only
}

// PivotByPeriod produces a period × bucket count table, newest period
// first.
func PivotByPeriod(rows []models.JoinedRecord) []PeriodPivot {
	byPeriod := make(map[time.Time]*PeriodPivot)
	var order []time.Time

	for _, row := range rows {
		d := row.Record.ReportDate
		p, ok := byPeriod[d]
		if !ok {
			p = &PeriodPivot{
				Period:  utils.FormatDate(d),
				Buckets: make(map[models.SizeBucket]int),
			}
			byPeriod[d] = p
			order = append(order, d)
		}
		bucket := row.Record.SizeBucket()
		if bucket == models.BucketNone {
			continue
		}
		p.Buckets[bucket]++
		p.Total++
	}

	sort.Slice(order, func(i, j int) bool { return order[i].After(order[j]) })
	out := make([]PeriodPivot, 0, len(order))
	for _, d := range order {
		out = append(out, *byPeriod[d])
	}
	return out
}

// Mean averages the non-nil values. It returns nil when nothing is
// present: missing observations reduce the denominator, they do not
// become zeros.
func Mean(vals []*float64) *float64 {
	var sum float64
	var n int
	for _, v := range vals {
		if v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	m := sum / float64(n)
	return &m
}
