package database

import (
	"fmt"

	"gorm.io/gorm"
)

// OptimizeIndexes cria índices auxiliares para as consultas de leitura
func OptimizeIndexes(db *gorm.DB) error {
	// Série diária por ativo, mais recente primeiro (API e estatísticas)
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_daily_metrics_symbol_date
		ON daily_metrics (asset_symbol, date DESC)
	`).Error; err != nil {
		return fmt.Errorf("failed to create daily metrics index: %w", err)
	}

	// Calendário consultado por data
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_earnings_date
		ON earnings_calendar (earnings_date)
	`).Error; err != nil {
		return fmt.Errorf("failed to create earnings date index: %w", err)
	}

	// Transações de insiders por ativo e data
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_insider_symbol_date
		ON insider_transactions (asset_symbol, transaction_date DESC)
	`).Error; err != nil {
		return fmt.Errorf("failed to create insider date index: %w", err)
	}

	return nil
}
