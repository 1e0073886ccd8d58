package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/viktsys/tt2ingest/models"
)

// ListAssets returns assets ordered by symbol, optionally filtered by
// provenance label and active flag.
func (s *Store) ListAssets(ctx context.Context, sourceLabel string, activeOnly bool) ([]models.Asset, error) {
	if s == nil || s.db == nil {
		return nil, ErrNilStore
	}
	q := s.db.WithContext(ctx).Model(&models.Asset{})
	if sourceLabel != "" {
		q = q.Where("source = ?", sourceLabel)
	}
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var assets []models.Asset
	if err := q.Order("symbol").Find(&assets).Error; err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return assets, nil
}

// DailyMetrics returns the stored series of symbol from the given day on,
// oldest first. A zero from returns the whole series.
func (s *Store) DailyMetrics(ctx context.Context, symbol string, from time.Time) ([]models.DailyMetric, error) {
	if s == nil || s.db == nil {
		return nil, ErrNilStore
	}
	q := s.db.WithContext(ctx).Where("asset_symbol = ?", symbol)
	if !from.IsZero() {
		q = q.Where("date >= ?", from)
	}
	var rows []models.DailyMetric
	if err := q.Order("date").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load daily metrics of %s: %w", symbol, err)
	}
	return rows, nil
}

// MetricStats summarises the series of symbol from the given day on. Days is
// zero when nothing is stored.
func (s *Store) MetricStats(ctx context.Context, symbol string, from time.Time) (*models.MetricStats, error) {
	if s == nil || s.db == nil {
		return nil, ErrNilStore
	}

	// Estrutura para capturar o agregado do período
	type statsResult struct {
		Days     int
		MaxClose float64
	}

	var agg statsResult
	err := s.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(*) as days,
			COALESCE(MAX(close), 0) as max_close
		FROM daily_metrics
		WHERE asset_symbol = ? AND date >= ?
	`, symbol, from).Scan(&agg).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate daily metrics of %s: %w", symbol, err)
	}

	stats := &models.MetricStats{Symbol: symbol, Days: agg.Days, MaxClose: agg.MaxClose}
	if agg.Days == 0 {
		return stats, nil
	}

	var last models.DailyMetric
	err = s.db.WithContext(ctx).
		Where("asset_symbol = ? AND date >= ?", symbol, from).
		Order("date DESC").
		Take(&last).Error
	if err != nil {
		return nil, fmt.Errorf("load last daily metric of %s: %w", symbol, err)
	}
	stats.LastClose = last.Close
	stats.LastRSI = last.RSI14d
	stats.LastVol30d = last.Volatility30d
	return stats, nil
}

// AnalystScore returns the current snapshot of symbol, or nil when none is
// stored.
func (s *Store) AnalystScore(ctx context.Context, symbol string) (*models.AnalystScore, error) {
	if s == nil || s.db == nil {
		return nil, ErrNilStore
	}
	var score models.AnalystScore
	err := s.db.WithContext(ctx).Where("asset_symbol = ?", symbol).Take(&score).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load analyst score of %s: %w", symbol, err)
	}
	return &score, nil
}

// EarningsBetween returns the calendar entries in [from, to], by date.
func (s *Store) EarningsBetween(ctx context.Context, from, to time.Time) ([]models.EarningsEvent, error) {
	if s == nil || s.db == nil {
		return nil, ErrNilStore
	}
	var events []models.EarningsEvent
	err := s.db.WithContext(ctx).
		Where("earnings_date >= ? AND earnings_date <= ?", from, to).
		Order("earnings_date, asset_symbol").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("load earnings calendar: %w", err)
	}
	return events, nil
}

// InsiderTransactions returns the stored events of symbol, newest first.
func (s *Store) InsiderTransactions(ctx context.Context, symbol string) ([]models.InsiderTransaction, error) {
	if s == nil || s.db == nil {
		return nil, ErrNilStore
	}
	var txs []models.InsiderTransaction
	err := s.db.WithContext(ctx).
		Where("asset_symbol = ?", symbol).
		Order("transaction_date DESC, id").
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("load insider transactions of %s: %w", symbol, err)
	}
	return txs, nil
}
