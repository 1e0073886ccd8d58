package normalize

import (
	"math"
	"testing"
	"time"

	"github.com/viktsys/tt2ingest/source"
)

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in    string
		want  float64
		valid bool
	}{
		{"25.50", 25.5, true},
		{"$1,234.56", 1234.56, true},
		{"(0.12)", -0.12, true},
		{"+3.5%", 3.5, true},
		{"1.5M", 1_500_000, true},
		{"2B", 2_000_000_000, true},
		{" 42 ", 42, true},
		{"N/A", 0, false},
		{"-", 0, false},
		{"", 0, false},
		{"invalid-price", 0, false},
	}
	for _, c := range cases {
		got := ParseNumber(c.in)
		if got.Valid != c.valid {
			t.Errorf("ParseNumber(%q) valid=%v, want %v", c.in, got.Valid, c.valid)
			continue
		}
		if c.valid && got.Float64 != c.want {
			t.Errorf("ParseNumber(%q)=%v, want %v", c.in, got.Float64, c.want)
		}
	}
}

func TestParseInt(t *testing.T) {
	if got := ParseInt("12,345"); !got.Valid || got.Int64 != 12345 {
		t.Errorf("Expected 12345, got %+v", got)
	}
	if got := ParseInt("abc"); got.Valid {
		t.Errorf("Expected null, got %+v", got)
	}
	if got := ParseInt("-7.9"); !got.Valid || got.Int64 != -7 {
		t.Errorf("Expected -7, got %+v", got)
	}
	if got := ParseInt("9223372036854775807"); !got.Valid || got.Int64 != math.MaxInt64 {
		t.Errorf("Expected max int64, got %+v", got)
	}
	for _, in := range []string{"99999999999999999999", "-99999999999999999999", "12000000T"} {
		if got := ParseInt(in); got.Valid {
			t.Errorf("Expected null for out of range %q, got %+v", in, got)
		}
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"2024-01-15",
		"2024-01-15T14:30:00Z",
		"2024-01-15 09:30:00",
		"01/15/2024",
		"Jan 15, 2024",
		"1705329000", // 2024-01-15 14:30 UTC
	} {
		got, ok := ParseDate(in)
		if !ok {
			t.Errorf("ParseDate(%q) failed", in)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseDate(%q)=%v, want %v", in, got, want)
		}
	}

	if _, ok := ParseDate("invalid-date"); ok {
		t.Error("Expected invalid date to fail")
	}
}

func TestAssetsDropsMissingSymbolAndDedups(t *testing.T) {
	assets := Assets([]source.AssetRecord{
		{Symbol: "aaa", Name: "Old"},
		{Symbol: "", Name: "Nameless"},
		{Symbol: "BBB", Name: ""},
		{Symbol: "AAA", Name: "New"},
	})

	if len(assets) != 2 {
		t.Fatalf("Expected 2 assets, got %d", len(assets))
	}
	if assets[0].Symbol != "AAA" || assets[0].Name != "New" {
		t.Errorf("Expected AAA/New, got %s/%s", assets[0].Symbol, assets[0].Name)
	}
	if assets[1].Name != "BBB" {
		t.Errorf("Expected name to fall back to symbol, got %q", assets[1].Name)
	}
}

func TestDailyBarsSortsDropsAndDedups(t *testing.T) {
	rows := DailyBars("aapl", []source.PriceBar{
		{Date: "2024-01-03", Open: "3", High: "3", Low: "3", Close: "3", Volume: "100"},
		{Date: "2024-01-02", Open: "2", High: "2", Low: "2", Close: "2", Volume: "100"},
		{Date: "2024-01-04", Open: "4", High: "4", Low: "4", Close: "", Volume: "100"},
		{Date: "bad", Open: "1", High: "1", Low: "1", Close: "1", Volume: "1"},
		{Date: "2024-01-03", Open: "9", High: "9", Low: "9", Close: "9", Volume: "900"},
	})

	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if FormatDate(rows[0].Date) != "2024-01-02" || FormatDate(rows[1].Date) != "2024-01-03" {
		t.Errorf("Expected ascending dates, got %v, %v", rows[0].Date, rows[1].Date)
	}
	if rows[1].Close != 9 {
		t.Errorf("Expected the last duplicate to win, got close %v", rows[1].Close)
	}
	if rows[0].Symbol != "AAPL" {
		t.Errorf("Expected symbol AAPL, got %s", rows[0].Symbol)
	}
}

func TestAnalystScores(t *testing.T) {
	now := time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)
	scores := AnalystScores([]source.AnalystRecord{
		{Symbol: "AAA", RecommendationMean: "1.8", RecommendationKey: "buy", AnalystCount: "31", TargetMeanPrice: "$210.5"},
		{Symbol: "", RecommendationMean: "2"},
	}, now)

	if len(scores) != 1 {
		t.Fatalf("Expected 1 score, got %d", len(scores))
	}
	s := scores[0]
	if s.RecommendationMean.Float64 != 1.8 || s.AnalystCount.Int64 != 31 || s.TargetMeanPrice.Float64 != 210.5 {
		t.Errorf("Unexpected score values: %+v", s)
	}
	if s.AverageRating.Valid {
		t.Errorf("Expected null average rating, got %v", s.AverageRating)
	}
	if !s.FetchDate.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected fetch date 2024-05-01, got %v", s.FetchDate)
	}
}

func TestInsiderTransactionsKeepsDuplicates(t *testing.T) {
	rec := source.InsiderRecord{Symbol: "AAA", Insider: "Jane Doe", StartDate: "2024-02-01", Shares: "1,000", Value: "N/A"}
	txs := InsiderTransactions([]source.InsiderRecord{rec, rec}, time.Now())

	if len(txs) != 2 {
		t.Fatalf("Expected both events to be kept, got %d", len(txs))
	}
	if txs[0].Shares.Int64 != 1000 || txs[0].Value.Valid {
		t.Errorf("Unexpected coercion: shares=%v value=%v", txs[0].Shares, txs[0].Value)
	}
	if !txs[0].TransactionDate.Valid {
		t.Error("Expected a transaction date")
	}
}

func TestEarningsDropsAndDedups(t *testing.T) {
	events := Earnings([]source.EarningsRecord{
		{Symbol: "AAA", EarningsDate: "2024-04-25", EPSEstimate: "$1.10", ReportTime: "time-after-hours"},
		{Symbol: "AAA", EarningsDate: "2024-04-25", EPSEstimate: "$1.20"},
		{Symbol: "BBB", EarningsDate: ""},
		{Symbol: "", EarningsDate: "2024-04-25"},
		{Symbol: "CCC", EarningsDate: "2024-04-26", EPSEstimate: "--"},
	})

	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].EPSEstimate.Float64 != 1.2 {
		t.Errorf("Expected last estimate 1.2, got %v", events[0].EPSEstimate)
	}
	if events[0].ReportTime.Valid {
		t.Errorf("Expected the last duplicate to replace report time, got %v", events[0].ReportTime)
	}
	if events[1].EPSEstimate.Valid {
		t.Errorf("Expected null EPS for CCC, got %v", events[1].EPSEstimate)
	}
}
