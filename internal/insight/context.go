package insight

import (
	"github.com/openy9c/y9cdash/pkg/models"
	"github.com/openy9c/y9cdash/pkg/utils"
)

// EssentialCodes are the default metric codes offered to the analyst:
// total assets, total liabilities, and total equity capital.
var EssentialCodes = []string{"bhck2170", "bhck2948", "bhck3210"}

// BuildContext summarizes joined records into the analyst's context.
// Metric statistics exclude missing observations entirely: a metric
// that is absent for an entity shrinks the denominator, it never
// counts as zero.
func BuildContext(rows []models.JoinedRecord, codes []string) Context {
	if len(codes) == 0 {
		codes = EssentialCodes
	}
	if len(rows) == 0 {
		return Context{}
	}

	table := models.ResultTable{Rows: rows}
	periods := table.Periods()
	latest := periods[0]

	ictx := Context{Period: utils.FormatDate(latest)}
	for _, code := range codes {
		m := MetricContext{Code: code}
		var vals []*float64
		for _, row := range rows {
			v := row.Record.Float(code)
			vals = append(vals, v)
			if m.Label == "" {
				m.Label = row.Labels[code]
			}
			if v == nil {
				continue
			}
			if m.Current == nil && row.Record.ReportDate.Equal(latest) {
				m.Current = v
			}
			if m.Min == nil || *v < *m.Min {
				m.Min = v
			}
			if m.Max == nil || *v > *m.Max {
				m.Max = v
			}
		}
		m.Mean = mean(vals)
		ictx.Metrics = append(ictx.Metrics, m)
	}
	return ictx
}

func mean(vals []*float64) *float64 {
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
