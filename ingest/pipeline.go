package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/viktsys/tt2ingest/logger"
	"github.com/viktsys/tt2ingest/metrics"
	"github.com/viktsys/tt2ingest/models"
	"github.com/viktsys/tt2ingest/normalize"
	"github.com/viktsys/tt2ingest/source"
)

// Kind names one entity fetch the pipeline can run.
type Kind string

const (
	KindSP500         Kind = "sp500"
	KindIPOs          Kind = "ipos"
	KindSPACs         Kind = "spacs"
	KindListings      Kind = "listings"
	KindMovers        Kind = "movers"
	KindDailyMetrics  Kind = "daily_metrics"
	KindAnalystScores Kind = "analyst_scores"
	KindInsiderTrades Kind = "insider_trades"
	KindEarnings      Kind = "earnings"
)

// AllKinds is the order of a full run. Asset kinds come first so the
// dependent tables find their symbols.
var AllKinds = []Kind{
	KindSP500, KindIPOs, KindSPACs, KindListings, KindMovers,
	KindDailyMetrics, KindAnalystScores, KindInsiderTrades, KindEarnings,
}

const DefaultEarningsDays = 91

const (
	assetClassEquity = "equity"
	assetClassSPAC   = "spac"
)

var ErrUnknownKind = errors.New("unknown fetch kind")

// ParseKinds reads kind names; "all" expands to AllKinds. Duplicates are
// dropped keeping the first position.
func ParseKinds(names []string) ([]Kind, error) {
	known := make(map[Kind]bool, len(AllKinds))
	for _, k := range AllKinds {
		known[k] = true
	}

	var kinds []Kind
	seen := map[Kind]bool{}
	add := func(k Kind) {
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "all" {
			for _, k := range AllKinds {
				add(k)
			}
			continue
		}
		if !known[Kind(name)] {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKind, name)
		}
		add(Kind(name))
	}
	return kinds, nil
}

// Store is the write side the pipeline loads into.
type Store interface {
	UpsertAssets(ctx context.Context, assets []models.Asset, assetClass, sourceLabel string) (int, error)
	UpsertDailyMetrics(ctx context.Context, rows []models.DailyMetric) (int, error)
	UpsertAnalystScores(ctx context.Context, scores []models.AnalystScore) (int, error)
	UpsertInsiderTransactions(ctx context.Context, txs []models.InsiderTransaction) (int, error)
	UpsertEarnings(ctx context.Context, events []models.EarningsEvent) (int, error)
}

// Resolver lists the subjects of a scope.
type Resolver interface {
	Resolve(ctx context.Context, scope source.Scope) ([]string, error)
}

// Sources wires one adapter per kind. A nil adapter makes its kind fail.
type Sources struct {
	Assets   map[Kind]source.AssetSource
	History  source.HistorySource
	Analyst  source.AnalystSource
	Insiders source.InsiderSource
	Earnings source.EarningsSource
}

type Options struct {
	EarningsDays int
	Logger       *zap.Logger
}

// Pipeline runs resolve, fetch, normalize, derive and load for each kind.
// It keeps no state between runs.
type Pipeline struct {
	store        Store
	resolver     Resolver
	sources      Sources
	exec         *Executor
	logger       *zap.Logger
	earningsDays int
	now          func() time.Time
}

func NewPipeline(store Store, resolver Resolver, sources Sources, exec *Executor, opts Options) *Pipeline {
	if opts.EarningsDays < 1 {
		opts.EarningsDays = DefaultEarningsDays
	}
	if exec == nil {
		exec = NewExecutor(DefaultWorkerCount, RetryPolicy{}, opts.Logger)
	}
	return &Pipeline{
		store:        store,
		resolver:     resolver,
		sources:      sources,
		exec:         exec,
		logger:       logger.OrNop(opts.Logger),
		earningsDays: opts.EarningsDays,
		now:          time.Now,
	}
}

// Result is the outcome of one kind.
type Result struct {
	Kind    Kind
	Fetched int
	Stored  int
	Report  Report
	Err     error
}

// Summary holds one Result per kind run, in run order.
type Summary struct {
	Results []Result
}

func (s Summary) Failed() bool {
	for _, r := range s.Results {
		if r.Err != nil {
			return true
		}
	}
	return false
}

func (s Summary) String() string {
	var b strings.Builder
	for _, r := range s.Results {
		fmt.Fprintf(&b, "%-15s fetched=%-6d stored=%-6d", r.Kind, r.Fetched, r.Stored)
		if r.Report.Total > 0 {
			fmt.Fprintf(&b, " subjects=%d found=%d absent=%d failed=%d",
				r.Report.Total, r.Report.Found, r.Report.Absent, r.Report.Failed)
		}
		if r.Err != nil {
			fmt.Fprintf(&b, " error=%v", r.Err)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Run executes kinds in order. A failing kind is reported and the run moves
// on; a cancelled ctx stops before the next kind.
func (p *Pipeline) Run(ctx context.Context, kinds []Kind, scope source.Scope) Summary {
	var summary Summary
	for _, kind := range kinds {
		if ctx.Err() != nil {
			p.logger.Warn("run cancelled", zap.String("next_kind", string(kind)))
			break
		}

		start := time.Now()
		res := p.RunKind(ctx, kind, scope)
		fields := []zap.Field{
			zap.String("kind", string(kind)),
			zap.Int("fetched", res.Fetched),
			zap.Int("stored", res.Stored),
			zap.Duration("took", time.Since(start)),
		}
		if res.Err != nil {
			p.logger.Error("fetch kind failed", append(fields, zap.Error(res.Err))...)
		} else {
			p.logger.Info("fetch kind completed", fields...)
		}
		summary.Results = append(summary.Results, res)
	}
	return summary
}

// RunKind runs a single kind.
func (p *Pipeline) RunKind(ctx context.Context, kind Kind, scope source.Scope) Result {
	res := Result{Kind: kind}
	switch kind {
	case KindSP500, KindIPOs, KindSPACs:
		p.loadAssets(ctx, &res, func(records []source.AssetRecord) []assetGroup {
			return []assetGroup{{class: assetClassEquity, label: string(kind), records: records}}
		})
	case KindListings:
		p.loadAssets(ctx, &res, groupListings)
	case KindMovers:
		p.loadAssets(ctx, &res, groupMovers)
	case KindDailyMetrics:
		p.loadDailyMetrics(ctx, &res, scope)
	case KindAnalystScores:
		p.loadAnalystScores(ctx, &res, scope)
	case KindInsiderTrades:
		p.loadInsiderTrades(ctx, &res, scope)
	case KindEarnings:
		p.loadEarnings(ctx, &res)
	default:
		res.Err = fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return res
}

type assetGroup struct {
	class   string
	label   string
	records []source.AssetRecord
}

func (p *Pipeline) loadAssets(ctx context.Context, res *Result, group func([]source.AssetRecord) []assetGroup) {
	src := p.sources.Assets[res.Kind]
	if src == nil {
		res.Err = fmt.Errorf("no source configured for %s", res.Kind)
		return
	}

	fetched, report := Collect(ctx, p.exec, []string{string(res.Kind)}, func(ctx context.Context, _ string) ([]source.AssetRecord, bool, error) {
		records, err := src.FetchAssets(ctx)
		return records, len(records) > 0, err
	})
	res.Report = report
	if len(fetched) == 0 {
		p.logger.Warn("no assets fetched", zap.String("kind", string(res.Kind)))
		return
	}

	records := fetched[0]
	res.Fetched = len(records)
	for _, g := range group(records) {
		n, err := p.store.UpsertAssets(ctx, normalize.Assets(g.records), g.class, g.label)
		res.Stored += n
		if err != nil {
			res.Err = err
			return
		}
	}
}

// groupListings splits listing events by method: SPAC listings get their
// own asset class.
func groupListings(records []source.AssetRecord) []assetGroup {
	spacs := assetGroup{class: assetClassSPAC, label: string(KindListings)}
	others := assetGroup{class: assetClassEquity, label: string(KindListings)}
	for _, r := range records {
		if strings.EqualFold(strings.TrimSpace(r.Category), "spac") {
			spacs.records = append(spacs.records, r)
		} else {
			others.records = append(others.records, r)
		}
	}
	return nonEmpty(others, spacs)
}

// groupMovers labels each mover with its screener category.
func groupMovers(records []source.AssetRecord) []assetGroup {
	byCategory := map[string][]source.AssetRecord{}
	for _, r := range records {
		category := strings.ToLower(strings.TrimSpace(r.Category))
		if category == "" {
			category = "other"
		}
		byCategory[category] = append(byCategory[category], r)
	}

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	groups := make([]assetGroup, 0, len(categories))
	for _, c := range categories {
		groups = append(groups, assetGroup{
			class:   assetClassEquity,
			label:   string(KindMovers) + "_" + c,
			records: byCategory[c],
		})
	}
	return groups
}

func nonEmpty(groups ...assetGroup) []assetGroup {
	out := groups[:0]
	for _, g := range groups {
		if len(g.records) > 0 {
			out = append(out, g)
		}
	}
	return out
}

func (p *Pipeline) subjects(ctx context.Context, res *Result, scope source.Scope) ([]string, bool) {
	symbols, err := p.resolver.Resolve(ctx, scope)
	if err != nil {
		res.Err = err
		return nil, false
	}
	if len(symbols) == 0 {
		p.logger.Warn("no subjects in scope", zap.String("kind", string(res.Kind)), zap.Stringer("scope", scope))
		return nil, false
	}
	p.logger.Info("resolved subjects",
		zap.String("kind", string(res.Kind)),
		zap.Stringer("scope", scope),
		zap.Int("subjects", len(symbols)),
		zap.Int("workers", p.exec.Workers()))
	return symbols, true
}

func (p *Pipeline) loadDailyMetrics(ctx context.Context, res *Result, scope source.Scope) {
	if p.sources.History == nil {
		res.Err = fmt.Errorf("no source configured for %s", res.Kind)
		return
	}
	symbols, ok := p.subjects(ctx, res, scope)
	if !ok {
		return
	}

	series, report := Collect(ctx, p.exec, symbols, func(ctx context.Context, symbol string) ([]models.DailyMetric, bool, error) {
		bars, err := p.sources.History.FetchHistory(ctx, symbol)
		if err != nil {
			return nil, false, err
		}
		rows := metrics.Derive(normalize.DailyBars(symbol, bars))
		return rows, len(rows) > 0, nil
	})
	res.Report = report

	var rows []models.DailyMetric
	for _, s := range series {
		rows = append(rows, s...)
	}
	res.Fetched = len(rows)
	if len(rows) == 0 {
		return
	}
	res.Stored, res.Err = p.store.UpsertDailyMetrics(ctx, rows)
}

func (p *Pipeline) loadAnalystScores(ctx context.Context, res *Result, scope source.Scope) {
	if p.sources.Analyst == nil {
		res.Err = fmt.Errorf("no source configured for %s", res.Kind)
		return
	}
	symbols, ok := p.subjects(ctx, res, scope)
	if !ok {
		return
	}

	records, report := Collect(ctx, p.exec, symbols, func(ctx context.Context, symbol string) (source.AnalystRecord, bool, error) {
		rec, err := p.sources.Analyst.FetchAnalyst(ctx, symbol)
		if err != nil {
			return rec, false, err
		}
		if rec.Symbol == "" {
			rec.Symbol = symbol
		}
		return rec, true, nil
	})
	res.Report = report
	res.Fetched = len(records)

	scores := normalize.AnalystScores(records, p.now())
	if len(scores) == 0 {
		return
	}
	res.Stored, res.Err = p.store.UpsertAnalystScores(ctx, scores)
}

func (p *Pipeline) loadInsiderTrades(ctx context.Context, res *Result, scope source.Scope) {
	if p.sources.Insiders == nil {
		res.Err = fmt.Errorf("no source configured for %s", res.Kind)
		return
	}
	symbols, ok := p.subjects(ctx, res, scope)
	if !ok {
		return
	}

	batches, report := Collect(ctx, p.exec, symbols, func(ctx context.Context, symbol string) ([]source.InsiderRecord, bool, error) {
		records, err := p.sources.Insiders.FetchInsiders(ctx, symbol)
		if err != nil {
			return nil, false, err
		}
		for i := range records {
			if records[i].Symbol == "" {
				records[i].Symbol = symbol
			}
		}
		return records, len(records) > 0, nil
	})
	res.Report = report

	var records []source.InsiderRecord
	for _, b := range batches {
		records = append(records, b...)
	}
	res.Fetched = len(records)

	txs := normalize.InsiderTransactions(records, p.now())
	if len(txs) == 0 {
		return
	}
	res.Stored, res.Err = p.store.UpsertInsiderTransactions(ctx, txs)
}

// loadEarnings fetches the calendar day by day, starting today. Days are the
// executor's subjects.
func (p *Pipeline) loadEarnings(ctx context.Context, res *Result) {
	if p.sources.Earnings == nil {
		res.Err = fmt.Errorf("no source configured for %s", res.Kind)
		return
	}

	today := normalize.Day(p.now())
	days := make([]string, p.earningsDays)
	for i := range days {
		days[i] = normalize.FormatDate(today.AddDate(0, 0, i))
	}

	batches, report := Collect(ctx, p.exec, days, func(ctx context.Context, day string) ([]source.EarningsRecord, bool, error) {
		d, err := time.Parse(normalize.DateLayout, day)
		if err != nil {
			return nil, false, err
		}
		records, err := p.sources.Earnings.FetchEarnings(ctx, d)
		if err != nil {
			return nil, false, err
		}
		return records, len(records) > 0, nil
	})
	res.Report = report

	var records []source.EarningsRecord
	for _, b := range batches {
		records = append(records, b...)
	}
	res.Fetched = len(records)

	events := normalize.Earnings(records)
	if len(events) == 0 {
		return
	}
	res.Stored, res.Err = p.store.UpsertEarnings(ctx, events)
}
