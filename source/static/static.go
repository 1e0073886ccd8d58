// Package static serves fixed asset lists for sources that have no feed yet.
package static

import (
	"context"

	"github.com/viktsys/tt2ingest/source"
)

// List is an AssetSource over a fixed set of records.
type List []source.AssetRecord

func (l List) FetchAssets(ctx context.Context) ([]source.AssetRecord, error) {
	out := make([]source.AssetRecord, len(l))
	copy(out, l)
	return out, nil
}

// TODO: replace with an IPO calendar feed.
var IPOs = List{
	{Symbol: "INAI", Name: "Innovate AI Corp"},
	{Symbol: "QLS", Name: "QuantumLeap Solutions"},
	{Symbol: "BGF", Name: "BioGen Futures Inc."},
}

var SPACs = List{
	{Symbol: "PACB", Name: "Pioneer Acquisition Corp II"},
	{Symbol: "GHV", Name: "Global Horizon Ventures"},
}
