// Package yahoo reads daily history, analyst consensus, insider transactions
// and market movers from the Yahoo Finance JSON endpoints.
package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/viktsys/tt2ingest/source"
)

const DefaultRange = "1y"

// Screeners maps a mover category to its predefined screener id.
var Screeners = []struct {
	Category string
	ID       string
}{
	{"gainer", "day_gainers"},
	{"loser", "day_losers"},
	{"active", "most_actives"},
	{"52_week_high", "recent_52_week_highs"},
	{"52_week_low", "recent_52_week_lows"},
}

type Client struct {
	http    *source.Client
	baseURL string
	rng     string
}

func New(client *source.Client, baseURL, historyRange string) *Client {
	if historyRange == "" {
		historyRange = DefaultRange
	}
	return &Client{http: client, baseURL: strings.TrimRight(baseURL, "/"), rng: historyRange}
}

// FetchHistory returns one bar per trading day over the configured range.
// Bars carry the unix timestamp as their date.
func (c *Client) FetchHistory(ctx context.Context, symbol string) ([]source.PriceBar, error) {
	addr := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=1d&events=history",
		c.baseURL, url.PathEscape(symbol), url.QueryEscape(c.rng))
	doc, err := c.http.GetJSON(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("chart %s: %w", symbol, err)
	}

	stamps := source.LookupList(doc, "$.chart.result[0].timestamp")
	if len(stamps) == 0 {
		return nil, nil
	}
	quote := "$.chart.result[0].indicators.quote[0]."
	opens := source.LookupList(doc, quote+"open")
	highs := source.LookupList(doc, quote+"high")
	lows := source.LookupList(doc, quote+"low")
	closes := source.LookupList(doc, quote+"close")
	volumes := source.LookupList(doc, quote+"volume")

	bars := make([]source.PriceBar, len(stamps))
	for i, ts := range stamps {
		bars[i] = source.PriceBar{
			Date:   source.Text(ts),
			Open:   at(opens, i),
			High:   at(highs, i),
			Low:    at(lows, i),
			Close:  at(closes, i),
			Volume: at(volumes, i),
		}
	}
	return bars, nil
}

// FetchAnalyst returns the consensus of one symbol. A symbol nobody covers
// is source.ErrNotFound.
func (c *Client) FetchAnalyst(ctx context.Context, symbol string) (source.AnalystRecord, error) {
	doc, err := c.quoteSummary(ctx, symbol, "financialData,price")
	if err != nil {
		return source.AnalystRecord{}, err
	}

	fin := "$.quoteSummary.result[0].financialData."
	rec := source.AnalystRecord{
		Symbol:             symbol,
		Name:               source.LookupString(doc, "$.quoteSummary.result[0].price.shortName"),
		RecommendationMean: source.LookupString(doc, fin+"recommendationMean.raw"),
		RecommendationKey:  source.LookupString(doc, fin+"recommendationKey"),
		AnalystCount:       source.LookupString(doc, fin+"numberOfAnalystOpinions.raw"),
		TargetMeanPrice:    source.LookupString(doc, fin+"targetMeanPrice.raw"),
	}
	if rec.RecommendationMean == "" && rec.AnalystCount == "" {
		return source.AnalystRecord{}, source.ErrNotFound
	}

	// A missing rating only leaves the field empty.
	addr := fmt.Sprintf("%s/v7/finance/quote?symbols=%s&fields=averageAnalystRating", c.baseURL, url.QueryEscape(symbol))
	if q, err := c.http.GetJSON(ctx, addr); err == nil {
		rec.AverageRating = source.LookupString(q, "$.quoteResponse.result[0].averageAnalystRating")
	}
	return rec, nil
}

// FetchInsiders returns the insider transactions Yahoo lists for symbol.
func (c *Client) FetchInsiders(ctx context.Context, symbol string) ([]source.InsiderRecord, error) {
	doc, err := c.quoteSummary(ctx, symbol, "insiderTransactions")
	if err != nil {
		return nil, err
	}

	rows := source.LookupList(doc, "$.quoteSummary.result[0].insiderTransactions.transactions")
	records := make([]source.InsiderRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, source.InsiderRecord{
			Symbol:      symbol,
			Insider:     source.LookupString(row, "$.filerName"),
			Position:    source.LookupString(row, "$.filerRelation"),
			StartDate:   source.LookupString(row, "$.startDate.raw"),
			Transaction: source.LookupString(row, "$.transactionText"),
			Shares:      source.LookupString(row, "$.shares.raw"),
			Value:       source.LookupString(row, "$.value.raw"),
		})
	}
	return records, nil
}

// FetchAssets returns the day's movers of every screener, tagged with their
// category. A failing screener is skipped.
func (c *Client) FetchAssets(ctx context.Context) ([]source.AssetRecord, error) {
	var records []source.AssetRecord
	var lastErr error
	for _, s := range Screeners {
		movers, err := c.FetchMovers(ctx, s.Category, s.ID)
		if err != nil {
			lastErr = err
			continue
		}
		records = append(records, movers...)
	}
	if len(records) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return records, nil
}

func (c *Client) FetchMovers(ctx context.Context, category, screenerID string) ([]source.AssetRecord, error) {
	addr := fmt.Sprintf("%s/v1/finance/screener/predefined/saved?scrIds=%s&count=100", c.baseURL, url.QueryEscape(screenerID))
	doc, err := c.http.GetJSON(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("screener %s: %w", screenerID, err)
	}

	quotes := source.LookupList(doc, "$.finance.result[0].quotes")
	records := make([]source.AssetRecord, 0, len(quotes))
	for _, q := range quotes {
		name := source.LookupString(q, "$.shortName")
		if name == "" {
			name = source.LookupString(q, "$.longName")
		}
		records = append(records, source.AssetRecord{
			Symbol:   source.LookupString(q, "$.symbol"),
			Name:     name,
			Category: category,
		})
	}
	return records, nil
}

func (c *Client) quoteSummary(ctx context.Context, symbol, modules string) (any, error) {
	addr := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=%s", c.baseURL, url.PathEscape(symbol), url.QueryEscape(modules))
	doc, err := c.http.GetJSON(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("quoteSummary %s: %w", symbol, err)
	}
	return doc, nil
}

func at(list []any, i int) string {
	if i >= len(list) {
		return ""
	}
	return source.Text(list[i])
}
