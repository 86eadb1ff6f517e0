package pipeline

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/openy9c/y9cdash/internal/infra"
	"github.com/openy9c/y9cdash/internal/mdrm"
	"github.com/openy9c/y9cdash/internal/postgrest"
	"github.com/openy9c/y9cdash/pkg/models"
	"github.com/openy9c/y9cdash/pkg/utils"
)

// DefaultFilingsTable is the remote table of FR Y-9C submissions.
const DefaultFilingsTable = "y9c_full"

// Options configures a reconciliation run.
type Options struct {
	FilingsTable   string   // default DefaultFilingsTable
	DirectoryTable string   // default mdrm.DefaultTable
	ReportingForms []string // default mdrm.DefaultForms
	PageSize       int      // offset/limit window per request
	MaxRows        int      // row cap per table; 0 = unbounded
}

// Result is the output of one run: the tabular result plus its
// aggregates and any recovered diagnostics.
type Result struct {
	Table       models.ResultTable `json:"table"`
	Summaries   []BucketSummary    `json:"summaries"`
	Pivot       []PeriodPivot      `json:"pivot"`
	Diagnostics []infra.Diagnostic `json:"diagnostics,omitempty"`
}

// Pipeline wires the fetcher, normalizer, directory, and join engine
// into one render-scoped invocation. All state it produces is owned by
// the invocation; only the injected cache outlives a run.
type Pipeline struct {
	src   mdrm.RowSource
	cache *infra.Cache
	opts  Options
}

// New creates a pipeline over the given row source. cache may be nil to
// disable memoization; correctness does not depend on it.
func New(src mdrm.RowSource, opts Options, cache *infra.Cache) *Pipeline {
	if opts.FilingsTable == "" {
		opts.FilingsTable = DefaultFilingsTable
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 1000
	}
	return &Pipeline{src: src, opts: opts, cache: cache}
}

// CheckPeriod validates a period filter before it reaches the remote
// query. Empty means "all periods"; anything else must parse and fall
// on a calendar quarter end, since FR Y-9C reporting dates always do.
func CheckPeriod(period string) error {
	if period == "" {
		return nil
	}
	d, err := utils.ParseDate(period)
	if err != nil {
		return fmt.Errorf("invalid period %q: %w", period, err)
	}
	if !utils.IsQuarterEnd(d) {
		return fmt.Errorf("period %s is not a quarter-end date", utils.FormatDate(d))
	}
	return nil
}

// Run executes one reconciliation: fetch, normalize, join, aggregate.
// period narrows the filings to one reporting date (YYYY-MM-DD); empty
// fetches all periods. Connectivity and shape failures are fatal for
// the run; per-record problems surface only as diagnostics.
func (p *Pipeline) Run(ctx context.Context, period string) (*Result, error) {
	cacheKey := infra.Key("pipeline", map[string]string{
		"table":  p.opts.FilingsTable,
		"period": period,
	})
	if p.cache != nil {
		if cached, ok := p.cache.Get(cacheKey); ok {
			return cached.(*Result), nil
		}
	}

	diags := infra.NewRecorder()

	// The two source tables are independent; fetch them concurrently.
	// Each table's own page loop stays sequential.
	var rawRows []postgrest.Row
	var dir *mdrm.Directory

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q := postgrest.Query{
			Table:    p.opts.FilingsTable,
			Columns:  []string{"rssd_id", "report_period", "data"},
			PageSize: p.opts.PageSize,
			MaxRows:  p.opts.MaxRows,
		}
		if period != "" {
			q.Filters = map[string]string{"report_period": "eq." + period}
		}
		rows, err := p.src.FetchAll(gctx, q)
		if err != nil {
			return err
		}
		rawRows = rows
		return nil
	})
	g.Go(func() error {
		d, err := mdrm.Load(gctx, p.src, mdrm.Options{
			Table:          p.opts.DirectoryTable,
			ReportingForms: p.opts.ReportingForms,
			PageSize:       p.opts.PageSize,
		}, diags)
		if err != nil {
			return err
		}
		dir = d
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	norm := NewNormalizer(diags)
	records := make([]models.FilingRecord, 0, len(rawRows))
	for _, raw := range rawRows {
		if rec, ok := norm.Normalize(raw); ok {
			records = append(records, rec)
		}
	}

	joined := Join(records, dir, diags)

	result := &Result{
		Table:       models.ResultTable{Rows: joined},
		Summaries:   SummarizeByBucket(joined),
		Pivot:       PivotByPeriod(joined),
		Diagnostics: diags.All(),
	}
	result.Table.BuildColumns()

	if p.cache != nil {
		p.cache.Set(cacheKey, result)
	}
	return result, nil
}

// Periods lists the distinct reporting periods available upstream,
// newest first.
func (p *Pipeline) Periods(ctx context.Context) ([]string, error) {
	cacheKey := infra.Key("periods", map[string]string{"table": p.opts.FilingsTable})
	if p.cache != nil {
		if cached, ok := p.cache.Get(cacheKey); ok {
			return cached.([]string), nil
		}
	}

	rows, err := p.src.FetchAll(ctx, postgrest.Query{
		Table:    p.opts.FilingsTable,
		Columns:  []string{"report_period"},
		PageSize: p.opts.PageSize,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var periods []string
	for _, row := range rows {
		if v, ok := row["report_period"].(string); ok && v != "" && !seen[v] {
			seen[v] = true
			periods = append(periods, v)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(periods)))

	if p.cache != nil {
		p.cache.Set(cacheKey, periods)
	}
	return periods, nil
}

// Reload drops the memoized results so the next run hits the source.
func (p *Pipeline) Reload() {
	if p.cache != nil {
		p.cache.Flush()
	}
}
