// Package source defines the adapters that pull raw records from external
// providers. Adapters return tabular, string-valued records; typing and
// validation happen in the normalize package.
package source

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound marks a subject the provider has no data for. Callers treat it
// as absence, not failure.
var ErrNotFound = errors.New("no data for subject")

// Scope selects the subjects an adapter acts on: a provenance label with an
// optional cap, an explicit symbol list, or the zero value for the adapter's
// whole universe.
type Scope struct {
	Source  string
	Limit   int
	Symbols []string
}

func (s Scope) Explicit() bool { return len(s.Symbols) > 0 }

func (s Scope) IsZero() bool { return s.Source == "" && s.Limit == 0 && len(s.Symbols) == 0 }

func (s Scope) String() string {
	switch {
	case s.Explicit():
		return strings.Join(s.Symbols, ",")
	case s.Source == "":
		return "default"
	case s.Limit > 0:
		return "top_" + strconv.Itoa(s.Limit) + "_" + s.Source
	default:
		return s.Source
	}
}

type AssetRecord struct {
	Symbol   string
	Name     string
	Category string // listing method or mover category, when the provider has one
}

type PriceBar struct {
	Date   string
	Open   string
	High   string
	Low    string
	Close  string
	Volume string
}

type AnalystRecord struct {
	Symbol             string
	Name               string
	RecommendationMean string
	RecommendationKey  string
	AnalystCount       string
	TargetMeanPrice    string
	AverageRating      string
}

type InsiderRecord struct {
	Symbol      string
	Insider     string
	Position    string
	StartDate   string
	Transaction string
	Shares      string
	Value       string
}

type EarningsRecord struct {
	Symbol       string
	Name         string
	EarningsDate string
	EPSEstimate  string
	ReportTime   string
}

// AssetSource lists a fixed universe of assets.
type AssetSource interface {
	FetchAssets(ctx context.Context) ([]AssetRecord, error)
}

// HistorySource returns the daily price history of one subject.
type HistorySource interface {
	FetchHistory(ctx context.Context, symbol string) ([]PriceBar, error)
}

// AnalystSource returns the current analyst consensus of one subject, or
// ErrNotFound when nobody covers it.
type AnalystSource interface {
	FetchAnalyst(ctx context.Context, symbol string) (AnalystRecord, error)
}

// InsiderSource returns recent insider transactions of one subject.
type InsiderSource interface {
	FetchInsiders(ctx context.Context, symbol string) ([]InsiderRecord, error)
}

// EarningsSource returns the earnings calendar of one day.
type EarningsSource interface {
	FetchEarnings(ctx context.Context, day time.Time) ([]EarningsRecord, error)
}
