// Package metrics derives rolling technical indicators from a chronological
// OHLCV history. Every value at row t uses only rows 0..t.
package metrics

import (
	"math"

	"github.com/guregu/null/v6"

	"github.com/viktsys/tt2ingest/models"
)

const (
	VolatilityWindow = 30
	ShortMAWindow    = 20
	LongMAWindow     = 50
	RSIWindow        = 14

	// TradingDays annualises daily volatility.
	TradingDays = 252
)

// Derive fills the four indicators of an ascending history and returns only
// the rows where all of them are defined. The input is not modified.
func Derive(history []models.DailyMetric) []models.DailyMetric {
	if len(history) == 0 {
		return nil
	}

	closes := make([]float64, len(history))
	for i, row := range history {
		closes[i] = row.Close
	}

	vol := Volatility(closes, VolatilityWindow)
	ma20 := SMA(closes, ShortMAWindow)
	ma50 := SMA(closes, LongMAWindow)
	rsi := RSI(closes, RSIWindow)

	out := make([]models.DailyMetric, 0, len(history))
	for i, row := range history {
		row.Volatility30d = vol[i]
		row.MA20d = ma20[i]
		row.MA50d = ma50[i]
		row.RSI14d = rsi[i]
		if row.Warm() {
			out = append(out, row)
		}
	}
	return out
}

// LogReturns returns ln(close[t]/close[t-1]); the first entry is null, as is
// any step with a non-positive price.
func LogReturns(closes []float64) []null.Float {
	out := make([]null.Float, len(closes))
	for i := 1; i < len(closes); i++ {
		out[i] = finite(math.Log(closes[i] / closes[i-1]))
	}
	return out
}

// Volatility is the sample standard deviation (n-1 denominator) of the
// trailing window log returns, annualised by sqrt(252). The first window
// rows are null since they lack window returns.
func Volatility(closes []float64, window int) []null.Float {
	out := make([]null.Float, len(closes))
	if window < 2 {
		return out
	}
	returns := LogReturns(closes)
	for i := window; i < len(closes); i++ {
		span := returns[i-window+1 : i+1]
		sum := 0.0
		ok := true
		for _, r := range span {
			if !r.Valid {
				ok = false
				break
			}
			sum += r.Float64
		}
		if !ok {
			continue
		}
		mean := sum / float64(window)
		ss := 0.0
		for _, r := range span {
			d := r.Float64 - mean
			ss += d * d
		}
		out[i] = finite(math.Sqrt(ss/float64(window-1)) * math.Sqrt(TradingDays))
	}
	return out
}

// SMA is the arithmetic mean of the trailing window closes.
func SMA(closes []float64, window int) []null.Float {
	out := make([]null.Float, len(closes))
	if window < 1 {
		return out
	}
	sum := 0.0
	for i, c := range closes {
		sum += c
		if i >= window {
			sum -= closes[i-window]
		}
		if i >= window-1 {
			out[i] = finite(sum / float64(window))
		}
	}
	return out
}

// RSI uses Wilder's smoothing: the first value averages the first period
// close-to-close gains and losses, later values smooth with weight
// 1/period. A window with neither gains nor losses reads 50.
func RSI(closes []float64, period int) []null.Float {
	out := make([]null.Float, len(closes))
	if period < 1 || len(closes) <= period {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := split(closes[i] - closes[i-1])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		gain, loss := split(closes[i] - closes[i-1])
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func split(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

func rsiValue(avgGain, avgLoss float64) null.Float {
	switch {
	case avgLoss == 0 && avgGain == 0:
		return null.FloatFrom(50)
	case avgLoss == 0:
		return null.FloatFrom(100)
	}
	rs := avgGain / avgLoss
	return finite(100 - 100/(1+rs))
}

// finite maps NaN and ±Inf to null.
func finite(f float64) null.Float {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return null.Float{}
	}
	return null.FloatFrom(f)
}
