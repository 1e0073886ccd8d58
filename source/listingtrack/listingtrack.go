// Package listingtrack reads company listing events from the ListingTrack
// OData API.
package listingtrack

import (
	"context"
	"fmt"

	"github.com/viktsys/tt2ingest/source"
)

// maxPages stops a server that keeps returning a next link.
const maxPages = 1000

type Client struct {
	http *source.Client
	url  string
}

func New(client *source.Client, url string) *Client {
	return &Client{http: client, url: url}
}

// FetchAssets follows @odata.nextLink until the last page. Records carry the
// listing method as their category; rows missing symbol, name or method are
// dropped. A failing page ends the walk with what was read so far.
func (c *Client) FetchAssets(ctx context.Context) ([]source.AssetRecord, error) {
	var records []source.AssetRecord
	next := c.url
	for n := 1; next != "" && n <= maxPages; n++ {
		doc, err := c.http.GetJSON(ctx, next)
		if err != nil {
			if len(records) == 0 {
				return nil, fmt.Errorf("listing page %d: %w", n, err)
			}
			break
		}

		page, _ := doc.(map[string]any)
		batch, ok := page["value"].([]any)
		if !ok {
			if len(records) == 0 {
				return nil, fmt.Errorf("listing page %d: unexpected document", n)
			}
			break
		}

		for _, row := range batch {
			rec := source.AssetRecord{
				Symbol:   source.LookupString(row, "$.symbol"),
				Name:     source.LookupString(row, "$.name"),
				Category: source.LookupString(row, "$.ipo.listingMethod"),
			}
			if rec.Symbol == "" || rec.Name == "" || rec.Category == "" {
				continue
			}
			records = append(records, rec)
		}
		next, _ = page["@odata.nextLink"].(string)
	}
	return records, nil
}
