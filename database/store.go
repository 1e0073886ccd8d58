package database

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"github.com/viktsys/tt2ingest/models"
	"github.com/viktsys/tt2ingest/normalize"
)

// symbolChunk bounds the IN list of the referential check.
const symbolChunk = 500

// UpsertAssets inserts new assets and refreshes name, class, source,
// last_seen and the active flag of known ones. first_seen is only written on
// insert.
func (s *Store) UpsertAssets(ctx context.Context, assets []models.Asset, assetClass, sourceLabel string) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrNilStore
	}
	assets = normalize.DedupLast(assets, func(a models.Asset) string { return a.Symbol })
	if len(assets) == 0 {
		s.logger.Warn("no assets to upsert", zap.String("source", sourceLabel))
		return 0, nil
	}

	now := s.now().UTC()
	rows := make([]models.Asset, len(assets))
	for i, a := range assets {
		a.AssetClass = assetClass
		a.Source = sourceLabel
		a.FirstSeen = now
		a.LastSeen = now
		a.Active = true
		rows[i] = a
	}

	err := s.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "asset_class", "source", "last_seen", "active"}),
	}).CreateInBatches(&rows, s.batchSize).Error
	if err != nil {
		return 0, fmt.Errorf("upsert assets from %s: %w", sourceLabel, err)
	}

	s.logger.Info("upserted assets", zap.String("source", sourceLabel), zap.Int("rows", len(rows)))
	return len(rows), nil
}

// UpsertDailyMetrics replaces every value column of an existing
// (symbol, date) row.
func (s *Store) UpsertDailyMetrics(ctx context.Context, rows []models.DailyMetric) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrNilStore
	}
	rows = normalize.DedupLast(rows, func(m models.DailyMetric) string {
		return m.Symbol + "|" + normalize.FormatDate(m.Date)
	})
	rows, err := keepKnown(ctx, s, rows, func(m models.DailyMetric) string { return m.Symbol })
	if err != nil || len(rows) == 0 {
		return 0, err
	}

	err = s.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "asset_symbol"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"open", "high", "low", "close", "volume",
			"volatility_30d", "ma_20d", "ma_50d", "rsi_14d",
		}),
	}).CreateInBatches(&rows, s.batchSize).Error
	if err != nil {
		return 0, fmt.Errorf("upsert daily metrics: %w", err)
	}

	s.logger.Info("upserted daily metrics", zap.Int("rows", len(rows)))
	return len(rows), nil
}

// UpsertAnalystScores replaces the snapshot of each symbol in place.
func (s *Store) UpsertAnalystScores(ctx context.Context, scores []models.AnalystScore) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrNilStore
	}
	scores = normalize.DedupLast(scores, func(a models.AnalystScore) string { return a.Symbol })
	scores, err := keepKnown(ctx, s, scores, func(a models.AnalystScore) string { return a.Symbol })
	if err != nil || len(scores) == 0 {
		return 0, err
	}

	now := s.now().UTC()
	for i := range scores {
		scores[i].UpdatedAt = now
		if scores[i].FetchDate.IsZero() {
			scores[i].FetchDate = normalize.Day(now)
		}
	}

	err = s.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "asset_symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"fetch_date", "recommendation_mean", "recommendation_key",
			"analyst_count", "target_mean_price", "average_rating", "updated_at",
		}),
	}).CreateInBatches(&scores, s.batchSize).Error
	if err != nil {
		return 0, fmt.Errorf("upsert analyst scores: %w", err)
	}

	s.logger.Info("upserted analyst scores", zap.Int("rows", len(scores)))
	return len(scores), nil
}

// UpsertInsiderTransactions appends the events. The log has no natural key:
// re-fetching the same events stores them again.
func (s *Store) UpsertInsiderTransactions(ctx context.Context, txs []models.InsiderTransaction) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrNilStore
	}
	txs, err := keepKnown(ctx, s, txs, func(t models.InsiderTransaction) string { return t.Symbol })
	if err != nil || len(txs) == 0 {
		return 0, err
	}

	now := s.now().UTC()
	for i := range txs {
		txs[i].ID = 0
		if txs[i].FetchedAt.IsZero() {
			txs[i].FetchedAt = now
		}
	}

	if err := s.db.WithContext(ctx).Omit(clause.Associations).CreateInBatches(&txs, s.batchSize).Error; err != nil {
		return 0, fmt.Errorf("insert insider transactions: %w", err)
	}

	s.logger.Info("inserted insider transactions", zap.Int("rows", len(txs)))
	return len(txs), nil
}

// UpsertEarnings updates only the estimate and report time of an existing
// (symbol, earnings date) row.
func (s *Store) UpsertEarnings(ctx context.Context, events []models.EarningsEvent) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrNilStore
	}
	events = normalize.DedupLast(events, func(e models.EarningsEvent) string {
		return e.Symbol + "|" + normalize.FormatDate(e.EarningsDate)
	})
	events, err := keepKnown(ctx, s, events, func(e models.EarningsEvent) string { return e.Symbol })
	if err != nil || len(events) == 0 {
		return 0, err
	}

	err = s.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "asset_symbol"}, {Name: "earnings_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"eps_estimate", "report_time"}),
	}).CreateInBatches(&events, s.batchSize).Error
	if err != nil {
		return 0, fmt.Errorf("upsert earnings: %w", err)
	}

	s.logger.Info("upserted earnings events", zap.Int("rows", len(events)))
	return len(events), nil
}

// DeactivateMissing flags the assets of sourceLabel that are not in seen as
// inactive. No fetcher calls it yet: whether missing from one run should
// deactivate an asset is undecided.
func (s *Store) DeactivateMissing(ctx context.Context, sourceLabel string, seen []string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrNilStore
	}
	q := s.db.WithContext(ctx).Model(&models.Asset{}).Where("source = ? AND active = ?", sourceLabel, true)
	if len(seen) > 0 {
		q = q.Where("symbol NOT IN ?", seen)
	}
	res := q.Update("active", false)
	return res.RowsAffected, res.Error
}

// ActiveSymbols returns the symbols of active assets from sourceLabel, at
// most limit of them when limit > 0.
func (s *Store) ActiveSymbols(ctx context.Context, sourceLabel string, limit int) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, ErrNilStore
	}
	q := s.db.WithContext(ctx).Model(&models.Asset{}).Where("active = ? AND source = ?", true, sourceLabel)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var symbols []string
	if err := q.Pluck("symbol", &symbols).Error; err != nil {
		return nil, fmt.Errorf("list active symbols for %s: %w", sourceLabel, err)
	}
	return symbols, nil
}

// keepKnown drops rows whose symbol has no asset row.
func keepKnown[T any](ctx context.Context, s *Store, rows []T, symbol func(T) string) ([]T, error) {
	if len(rows) == 0 {
		return rows, nil
	}
	symbols := make([]string, 0, len(rows))
	for _, r := range rows {
		symbols = append(symbols, symbol(r))
	}
	known, err := s.knownSymbols(ctx, symbols)
	if err != nil {
		return nil, err
	}

	kept := rows[:0:0]
	for _, r := range rows {
		if known[symbol(r)] {
			kept = append(kept, r)
		}
	}
	if dropped := len(rows) - len(kept); dropped > 0 {
		s.logger.Info("dropped rows without asset", zap.Int("dropped", dropped), zap.Int("kept", len(kept)))
	}
	return kept, nil
}

func (s *Store) knownSymbols(ctx context.Context, symbols []string) (map[string]bool, error) {
	unique := normalize.DedupLast(symbols, func(sym string) string { return sym })
	known := make(map[string]bool, len(unique))
	for _, part := range chunk(unique, symbolChunk) {
		var found []string
		if err := s.db.WithContext(ctx).Model(&models.Asset{}).Where("symbol IN ?", part).Pluck("symbol", &found).Error; err != nil {
			return nil, fmt.Errorf("check asset symbols: %w", err)
		}
		for _, sym := range found {
			known[sym] = true
		}
	}
	return known, nil
}

func chunk(symbols []string, size int) [][]string {
	var out [][]string
	for len(symbols) > size {
		out = append(out, symbols[:size])
		symbols = symbols[size:]
	}
	if len(symbols) > 0 {
		out = append(out, symbols)
	}
	return out
}

// Count returns the number of rows of model's table.
func (s *Store) Count(ctx context.Context, model any) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrNilStore
	}
	var n int64
	err := s.db.WithContext(ctx).Model(model).Count(&n).Error
	return n, err
}
