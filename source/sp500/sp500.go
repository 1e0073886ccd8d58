// Package sp500 reads the S&P 500 constituents list.
package sp500

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/viktsys/tt2ingest/source"
)

type Client struct {
	http *source.Client
	url  string
}

func New(client *source.Client, url string) *Client {
	return &Client{http: client, url: url}
}

// FetchAssets downloads the constituents CSV. Class share dots become dashes
// (BRK.B -> BRK-B), the form price providers expect.
func (c *Client) FetchAssets(ctx context.Context) ([]source.AssetRecord, error) {
	body, err := c.http.Get(ctx, c.url)
	if err != nil {
		return nil, fmt.Errorf("constituents: %w", err)
	}
	return Parse(body)
}

// Parse reads a constituents CSV with Symbol and Security (or Name) columns.
func Parse(body []byte) ([]source.AssetRecord, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse constituents: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	symbolCol, nameCol := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "symbol":
			symbolCol = i
		case "security", "name":
			nameCol = i
		}
	}
	if symbolCol < 0 {
		return nil, fmt.Errorf("parse constituents: no Symbol column in %v", rows[0])
	}

	records := make([]source.AssetRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if symbolCol >= len(row) {
			continue
		}
		rec := source.AssetRecord{Symbol: strings.ReplaceAll(row[symbolCol], ".", "-")}
		if nameCol >= 0 && nameCol < len(row) {
			rec.Name = row[nameCol]
		}
		records = append(records, rec)
	}
	return records, nil
}
