package models

import (
	"time"

	"github.com/guregu/null/v6"
)

// Asset representa um ativo negociável identificado pelo símbolo
type Asset struct {
	Symbol     string    `gorm:"primaryKey;size:20" json:"symbol"`
	Name       string    `gorm:"type:text" json:"name"`
	AssetClass string    `gorm:"size:32;not null" json:"asset_class"`
	Source     string    `gorm:"size:64;index:idx_assets_source_active" json:"source"`
	FirstSeen  time.Time `gorm:"not null" json:"first_seen"`
	LastSeen   time.Time `gorm:"not null" json:"last_seen"`
	Active     bool      `gorm:"not null;default:true;index:idx_assets_source_active" json:"active"`

	// Tabelas dependentes referenciam o símbolo e são apagadas junto com o ativo
	DailyMetrics        []DailyMetric        `gorm:"foreignKey:Symbol;references:Symbol;constraint:OnDelete:CASCADE" json:"-"`
	AnalystScores       []AnalystScore       `gorm:"foreignKey:Symbol;references:Symbol;constraint:OnDelete:CASCADE" json:"-"`
	InsiderTransactions []InsiderTransaction `gorm:"foreignKey:Symbol;references:Symbol;constraint:OnDelete:CASCADE" json:"-"`
	EarningsEvents      []EarningsEvent      `gorm:"foreignKey:Symbol;references:Symbol;constraint:OnDelete:CASCADE" json:"-"`
}

func (Asset) TableName() string { return "assets" }

// DailyMetric armazena OHLCV e indicadores derivados por ativo e dia
type DailyMetric struct {
	Symbol        string     `gorm:"primaryKey;column:asset_symbol;size:20" json:"symbol"`
	Date          time.Time  `gorm:"primaryKey;type:date" json:"date"`
	Open          float64    `gorm:"not null" json:"open"`
	High          float64    `gorm:"not null" json:"high"`
	Low           float64    `gorm:"not null" json:"low"`
	Close         float64    `gorm:"not null" json:"close"`
	Volume        float64    `gorm:"not null" json:"volume"`
	Volatility30d null.Float `gorm:"column:volatility_30d;type:double precision" json:"volatility_30d"`
	MA20d         null.Float `gorm:"column:ma_20d;type:double precision" json:"ma_20d"`
	MA50d         null.Float `gorm:"column:ma_50d;type:double precision" json:"ma_50d"`
	RSI14d        null.Float `gorm:"column:rsi_14d;type:double precision" json:"rsi_14d"`
}

func (DailyMetric) TableName() string { return "daily_metrics" }

// Warm reports whether every derived indicator is present.
func (m DailyMetric) Warm() bool {
	return m.Volatility30d.Valid && m.MA20d.Valid && m.MA50d.Valid && m.RSI14d.Valid
}

// AnalystScore guarda o snapshot atual do consenso de analistas
type AnalystScore struct {
	Symbol             string      `gorm:"primaryKey;column:asset_symbol;size:20" json:"symbol"`
	FetchDate          time.Time   `gorm:"type:date;not null" json:"fetch_date"`
	RecommendationMean null.Float  `gorm:"type:double precision" json:"recommendation_mean"`
	RecommendationKey  null.String `gorm:"type:text" json:"recommendation_key"`
	AnalystCount       null.Int    `gorm:"type:bigint" json:"analyst_count"`
	TargetMeanPrice    null.Float  `gorm:"type:double precision" json:"target_mean_price"`
	AverageRating      null.String `gorm:"type:text" json:"average_rating"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

func (AnalystScore) TableName() string { return "analyst_scores" }

// InsiderTransaction é um log append-only de negociações de insiders
type InsiderTransaction struct {
	ID              uint        `gorm:"primaryKey" json:"id"`
	Symbol          string      `gorm:"column:asset_symbol;size:20;not null;index:idx_insider_asset_symbol" json:"symbol"`
	InsiderName     null.String `gorm:"type:text" json:"insider_name"`
	InsiderPosition null.String `gorm:"type:text" json:"insider_position"`
	TransactionDate null.Time   `gorm:"type:date" json:"transaction_date"`
	TransactionType null.String `gorm:"type:text" json:"transaction_type"`
	Shares          null.Int    `gorm:"type:bigint" json:"shares"`
	Value           null.Float  `gorm:"type:double precision" json:"value"`
	FetchedAt       time.Time   `gorm:"column:fetch_date;not null" json:"fetch_date"`
}

func (InsiderTransaction) TableName() string { return "insider_transactions" }

// EarningsEvent representa uma data de divulgação de resultados
type EarningsEvent struct {
	Symbol       string      `gorm:"primaryKey;column:asset_symbol;size:20" json:"symbol"`
	EarningsDate time.Time   `gorm:"primaryKey;type:date" json:"earnings_date"`
	EPSEstimate  null.Float  `gorm:"column:eps_estimate;type:double precision" json:"eps_estimate"`
	ReportTime   null.String `gorm:"type:text" json:"report_time"`
}

func (EarningsEvent) TableName() string { return "earnings_calendar" }

// MetricStats representa as estatísticas retornadas pela API
type MetricStats struct {
	Symbol     string     `json:"symbol"`
	Days       int        `json:"days"`
	MaxClose   float64    `json:"max_close"`
	LastClose  float64    `json:"last_close"`
	LastRSI    null.Float `json:"last_rsi_14d"`
	LastVol30d null.Float `json:"last_volatility_30d"`
}

// All lists every persisted model in migration order.
func All() []any {
	return []any{
		&Asset{},
		&DailyMetric{},
		&AnalystScore{},
		&InsiderTransaction{},
		&EarningsEvent{},
	}
}
