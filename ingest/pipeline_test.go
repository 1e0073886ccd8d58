package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/viktsys/tt2ingest/config"
	"github.com/viktsys/tt2ingest/database"
	"github.com/viktsys/tt2ingest/models"
	"github.com/viktsys/tt2ingest/normalize"
	"github.com/viktsys/tt2ingest/source"
	"github.com/viktsys/tt2ingest/source/static"
	"github.com/viktsys/tt2ingest/universe"
)

type fakeHistory map[string]int

func (f fakeHistory) FetchHistory(ctx context.Context, symbol string) ([]source.PriceBar, error) {
	n, ok := f[symbol]
	if !ok {
		return nil, errors.New("connection reset")
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]source.PriceBar, n)
	for i := range bars {
		c := fmt.Sprintf("%d.5", 100+i)
		bars[i] = source.PriceBar{
			Date:   normalize.FormatDate(start.AddDate(0, 0, i)),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: "1,000",
		}
	}
	return bars, nil
}

type fakeAnalyst map[string]source.AnalystRecord

func (f fakeAnalyst) FetchAnalyst(ctx context.Context, symbol string) (source.AnalystRecord, error) {
	rec, ok := f[symbol]
	if !ok {
		return source.AnalystRecord{}, source.ErrNotFound
	}
	return rec, nil
}

type fakeInsiders map[string][]source.InsiderRecord

func (f fakeInsiders) FetchInsiders(ctx context.Context, symbol string) ([]source.InsiderRecord, error) {
	return f[symbol], nil
}

type fakeEarnings map[string][]source.EarningsRecord

func (f fakeEarnings) FetchEarnings(ctx context.Context, day time.Time) ([]source.EarningsRecord, error) {
	return f[normalize.FormatDate(day)], nil
}

type failingStore struct {
	Store
	calls int
}

func (f *failingStore) UpsertAssets(ctx context.Context, assets []models.Asset, assetClass, sourceLabel string) (int, error) {
	f.calls++
	return 0, errors.New("database is locked")
}

func newTestStore(t *testing.T) *database.Store {
	t.Helper()
	store, err := database.Open(config.DBConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "pipeline.db"),
		MaxOpenConns: 1,
	}, 100, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return store
}

func newTestPipeline(t *testing.T, store *database.Store, sources Sources) *Pipeline {
	t.Helper()
	exec := NewExecutor(4, RetryPolicy{MaxAttempts: 1}, nil)
	return NewPipeline(store, universe.NewResolver(store), sources, exec, Options{EarningsDays: 3})
}

func testAssets() map[Kind]source.AssetSource {
	return map[Kind]source.AssetSource{
		KindSP500: static.List{{Symbol: "AAA", Name: "Alpha"}, {Symbol: "BBB", Name: "Beta"}},
		KindIPOs:  static.IPOs,
		KindSPACs: static.SPACs,
		KindListings: static.List{
			{Symbol: "NEWC", Name: "New Co", Category: "IPO"},
			{Symbol: "SPCX", Name: "Space Acq", Category: "SPAC"},
		},
		KindMovers: static.List{
			{Symbol: "AAA", Name: "Alpha", Category: "gainer"},
			{Symbol: "ZZZ", Name: "Zeta", Category: "loser"},
			{Symbol: "HHH", Name: "High Co", Category: "52_week_high"},
		},
	}
}

func find(summary Summary, kind Kind) Result {
	for _, r := range summary.Results {
		if r.Kind == kind {
			return r
		}
	}
	return Result{}
}

func TestParseKinds(t *testing.T) {
	kinds, err := ParseKinds([]string{"Daily_Metrics", "sp500", "daily_metrics"})
	if err != nil {
		t.Fatalf("ParseKinds: %v", err)
	}
	if fmt.Sprint(kinds) != "[daily_metrics sp500]" {
		t.Errorf("Unexpected kinds %v", kinds)
	}

	all, err := ParseKinds([]string{"all"})
	if err != nil {
		t.Fatalf("ParseKinds: %v", err)
	}
	if len(all) != len(AllKinds) || all[0] != KindSP500 || all[len(all)-1] != KindEarnings {
		t.Errorf("Unexpected expansion %v", all)
	}

	if _, err := ParseKinds([]string{"crypto"}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Expected ErrUnknownKind, got %v", err)
	}
}

func TestAnalystScoresAbsentSubject(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newTestPipeline(t, store, Sources{
		Assets:  testAssets(),
		Analyst: fakeAnalyst{"AAA": {RecommendationMean: "2.0", RecommendationKey: "buy", AnalystCount: "10"}},
	})

	summary := p.Run(ctx, []Kind{KindSP500, KindAnalystScores}, source.Scope{Source: "sp500"})
	res := find(summary, KindAnalystScores)
	if res.Err != nil {
		t.Fatalf("Unexpected error %v", res.Err)
	}
	if res.Stored != 1 {
		t.Errorf("Expected exactly one stored score, got %d", res.Stored)
	}
	if res.Report.Absent != 1 || res.Report.Failed != 0 {
		t.Errorf("Expected BBB absent, got %+v", res.Report)
	}

	score, err := store.AnalystScore(ctx, "AAA")
	if err != nil || score == nil {
		t.Fatalf("Expected a score for AAA, got %v %v", score, err)
	}
	if score.AnalystCount.Int64 != 10 {
		t.Errorf("Expected 10 analysts, got %v", score.AnalystCount)
	}
}

func TestDailyMetricsStoresWarmRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newTestPipeline(t, store, Sources{
		Assets:  testAssets(),
		History: fakeHistory{"AAA": 60},
	})

	summary := p.Run(ctx, []Kind{KindSP500, KindDailyMetrics}, source.Scope{Source: "sp500"})
	res := find(summary, KindDailyMetrics)
	if res.Err != nil {
		t.Fatalf("Unexpected error %v", res.Err)
	}
	if res.Stored != 11 {
		t.Errorf("Expected 11 warm rows, got %d", res.Stored)
	}
	if res.Report.Failed != 1 {
		t.Errorf("Expected BBB to fail in isolation, got %+v", res.Report)
	}

	rows, err := store.DailyMetrics(ctx, "AAA", time.Time{})
	if err != nil {
		t.Fatalf("DailyMetrics: %v", err)
	}
	for _, r := range rows {
		if !r.Warm() {
			t.Errorf("Stored a cold row for %s", normalize.FormatDate(r.Date))
		}
	}

	// re-running converges to the same rows
	p.Run(ctx, []Kind{KindDailyMetrics}, source.Scope{Symbols: []string{"AAA"}})
	n, err := store.Count(ctx, &models.DailyMetric{})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 11 {
		t.Errorf("Expected 11 rows after a second run, got %d", n)
	}
}

func TestAssetKindsLabelsAndClasses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newTestPipeline(t, store, Sources{Assets: testAssets()})

	summary := p.Run(ctx, []Kind{KindSP500, KindIPOs, KindSPACs, KindListings, KindMovers}, source.Scope{})
	if summary.Failed() {
		t.Fatalf("Unexpected failure:\n%s", summary)
	}

	spacs, err := store.ListAssets(ctx, "listings", true)
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	classes := map[string]string{}
	for _, a := range spacs {
		classes[a.Symbol] = a.AssetClass
	}
	if classes["SPCX"] != "spac" || classes["NEWC"] != "equity" {
		t.Errorf("Unexpected listing classes %v", classes)
	}

	// AAA was re-observed by the gainer screener, which now owns it
	gainers, _ := store.ListAssets(ctx, "movers_gainer", true)
	if len(gainers) != 1 || gainers[0].Symbol != "AAA" {
		t.Errorf("Expected AAA under movers_gainer, got %v", gainers)
	}
	losers, _ := store.ListAssets(ctx, "movers_loser", true)
	if len(losers) != 1 || losers[0].Symbol != "ZZZ" {
		t.Errorf("Expected ZZZ under movers_loser, got %v", losers)
	}

	highs, _ := store.ListAssets(ctx, "movers_52_week_high", true)
	if len(highs) != 1 || highs[0].Symbol != "HHH" {
		t.Errorf("Expected HHH under movers_52_week_high, got %v", highs)
	}

	n, _ := store.Count(ctx, &models.Asset{})
	if n != 11 {
		t.Errorf("Expected 11 distinct assets, got %d", n)
	}
}

func TestInsiderTradesAndEarnings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := newTestPipeline(t, store, Sources{
		Assets: testAssets(),
		Insiders: fakeInsiders{"AAA": {
			{Insider: "Jane Doe", Position: "CFO", StartDate: "1704153600", Transaction: "Sale", Shares: "1,000", Value: "$150K"},
		}},
		Earnings: fakeEarnings{
			"2024-05-02": {
				{Symbol: "AAA", Name: "Alpha", EPSEstimate: "$1.10", ReportTime: "time-after-hours", EarningsDate: "2024-05-02"},
				{Symbol: "UNKNOWN", Name: "Nobody", EarningsDate: "2024-05-02"},
			},
			"2024-05-04": {{Symbol: "BBB", Name: "Beta", EPSEstimate: "(0.12)", EarningsDate: "2024-05-04"}},
			"2024-05-09": {{Symbol: "AAA", Name: "Outside window", EarningsDate: "2024-05-09"}},
		},
	})
	p.now = func() time.Time { return time.Date(2024, 5, 2, 13, 0, 0, 0, time.UTC) }

	summary := p.Run(ctx, []Kind{KindSP500, KindInsiderTrades, KindEarnings}, source.Scope{Source: "sp500"})

	insiders := find(summary, KindInsiderTrades)
	if insiders.Stored != 1 || insiders.Report.Absent != 1 {
		t.Errorf("Expected one insider trade and BBB absent, got %+v", insiders)
	}
	txs, _ := store.InsiderTransactions(ctx, "AAA")
	if len(txs) != 1 || txs[0].Value.Float64 != 150000 || txs[0].Shares.Int64 != 1000 {
		t.Errorf("Unexpected insider rows %+v", txs)
	}

	earnings := find(summary, KindEarnings)
	if earnings.Report.Total != 3 {
		t.Errorf("Expected 3 calendar days, got %d", earnings.Report.Total)
	}
	if earnings.Fetched != 3 || earnings.Stored != 2 {
		t.Errorf("Expected UNKNOWN to be filtered out, got %+v", earnings)
	}
	events, _ := store.EarningsBetween(ctx, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC))
	if len(events) != 2 || events[1].EPSEstimate.Float64 != -0.12 {
		t.Errorf("Unexpected earnings rows %+v", events)
	}
}

func TestStoreFailureIsFatalForKindOnly(t *testing.T) {
	store := &failingStore{}
	exec := NewExecutor(2, RetryPolicy{MaxAttempts: 1}, nil)
	p := NewPipeline(store, nil, Sources{Assets: testAssets()}, exec, Options{})

	summary := p.Run(context.Background(), []Kind{KindIPOs, KindSPACs}, source.Scope{})
	if len(summary.Results) != 2 {
		t.Fatalf("Expected both kinds to run, got %d results", len(summary.Results))
	}
	for _, r := range summary.Results {
		if r.Err == nil {
			t.Errorf("Expected %s to report the store error", r.Kind)
		}
	}
	if store.calls != 2 {
		t.Errorf("Expected one write attempt per kind, got %d", store.calls)
	}
	if !strings.Contains(summary.String(), "database is locked") {
		t.Errorf("Expected the error in the summary, got:\n%s", summary)
	}
}

func TestRunStopsWhenCancelled(t *testing.T) {
	store := newTestStore(t)
	p := newTestPipeline(t, store, Sources{Assets: testAssets()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := p.Run(ctx, AllKinds, source.Scope{})
	if len(summary.Results) != 0 {
		t.Errorf("Expected no kind to run, got %v", summary.Results)
	}
}

func TestMissingSourceIsReported(t *testing.T) {
	store := newTestStore(t)
	p := newTestPipeline(t, store, Sources{})

	res := p.RunKind(context.Background(), KindEarnings, source.Scope{})
	if res.Err == nil {
		t.Error("Expected an error without an earnings source")
	}
}
