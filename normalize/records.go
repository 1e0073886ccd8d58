// Package normalize maps raw adapter records onto the persisted models.
// Records missing a key component are dropped, never failing the batch, and
// keyed kinds are deduplicated within the batch keeping the last value seen.
package normalize

import (
	"sort"
	"time"

	"github.com/viktsys/tt2ingest/models"
	"github.com/viktsys/tt2ingest/source"
)

// Assets maps asset records, dropping rows without a symbol.
func Assets(records []source.AssetRecord) []models.Asset {
	assets := make([]models.Asset, 0, len(records))
	for _, r := range records {
		symbol := Symbol(r.Symbol)
		if symbol == "" {
			continue
		}
		name := Text(r.Name).ValueOrZero()
		if name == "" {
			name = symbol
		}
		assets = append(assets, models.Asset{Symbol: symbol, Name: name})
	}
	return DedupLast(assets, func(a models.Asset) string { return a.Symbol })
}

// DailyBars maps the price history of one subject into metric rows ordered by
// date. Bars without a date or with any OHLCV field missing are dropped.
func DailyBars(symbol string, bars []source.PriceBar) []models.DailyMetric {
	symbol = Symbol(symbol)
	if symbol == "" {
		return nil
	}

	rows := make([]models.DailyMetric, 0, len(bars))
	for _, b := range bars {
		date, ok := ParseDate(b.Date)
		if !ok {
			continue
		}
		o, h, l, c, v := ParseNumber(b.Open), ParseNumber(b.High), ParseNumber(b.Low), ParseNumber(b.Close), ParseNumber(b.Volume)
		if !o.Valid || !h.Valid || !l.Valid || !c.Valid || !v.Valid {
			continue
		}
		rows = append(rows, models.DailyMetric{
			Symbol: symbol,
			Date:   date,
			Open:   o.Float64,
			High:   h.Float64,
			Low:    l.Float64,
			Close:  c.Float64,
			Volume: v.Float64,
		})
	}

	rows = DedupLast(rows, func(m models.DailyMetric) string { return FormatDate(m.Date) })
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows
}

// AnalystScores maps analyst records observed on fetchedAt.
func AnalystScores(records []source.AnalystRecord, fetchedAt time.Time) []models.AnalystScore {
	scores := make([]models.AnalystScore, 0, len(records))
	for _, r := range records {
		symbol := Symbol(r.Symbol)
		if symbol == "" {
			continue
		}
		scores = append(scores, models.AnalystScore{
			Symbol:             symbol,
			FetchDate:          Day(fetchedAt),
			RecommendationMean: ParseNumber(r.RecommendationMean),
			RecommendationKey:  Text(r.RecommendationKey),
			AnalystCount:       ParseInt(r.AnalystCount),
			TargetMeanPrice:    ParseNumber(r.TargetMeanPrice),
			AverageRating:      Text(r.AverageRating),
			UpdatedAt:          fetchedAt,
		})
	}
	return DedupLast(scores, func(s models.AnalystScore) string { return s.Symbol })
}

// InsiderTransactions maps insider records. The log has no natural key, so
// nothing is deduplicated.
func InsiderTransactions(records []source.InsiderRecord, fetchedAt time.Time) []models.InsiderTransaction {
	txs := make([]models.InsiderTransaction, 0, len(records))
	for _, r := range records {
		symbol := Symbol(r.Symbol)
		if symbol == "" {
			continue
		}
		tx := models.InsiderTransaction{
			Symbol:          symbol,
			InsiderName:     Text(r.Insider),
			InsiderPosition: Text(r.Position),
			TransactionType: Text(r.Transaction),
			Shares:          ParseInt(r.Shares),
			Value:           ParseNumber(r.Value),
			FetchedAt:       fetchedAt,
		}
		if d, ok := ParseDate(r.StartDate); ok {
			tx.TransactionDate.SetValid(d)
		}
		txs = append(txs, tx)
	}
	return txs
}

// Earnings maps earnings records, dropping rows without a symbol or a
// parsable date.
func Earnings(records []source.EarningsRecord) []models.EarningsEvent {
	events := make([]models.EarningsEvent, 0, len(records))
	for _, r := range records {
		symbol := Symbol(r.Symbol)
		date, ok := ParseDate(r.EarningsDate)
		if symbol == "" || !ok {
			continue
		}
		events = append(events, models.EarningsEvent{
			Symbol:       symbol,
			EarningsDate: date,
			EPSEstimate:  ParseNumber(r.EPSEstimate),
			ReportTime:   Text(r.ReportTime),
		})
	}
	return DedupLast(events, func(e models.EarningsEvent) string {
		return e.Symbol + "|" + FormatDate(e.EarningsDate)
	})
}

// DedupLast collapses items sharing a key. The surviving item holds the last
// value seen and keeps the position of the first occurrence.
func DedupLast[T any, K comparable](items []T, key func(T) K) []T {
	index := make(map[K]int, len(items))
	out := items[:0:0]
	for _, item := range items {
		k := key(item)
		if i, ok := index[k]; ok {
			out[i] = item
			continue
		}
		index[k] = len(out)
		out = append(out, item)
	}
	return out
}
