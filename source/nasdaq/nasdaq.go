// Package nasdaq reads the daily earnings calendar.
package nasdaq

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/viktsys/tt2ingest/normalize"
	"github.com/viktsys/tt2ingest/source"
)

type Client struct {
	http    *source.Client
	baseURL string
}

func New(client *source.Client, baseURL string) *Client {
	return &Client{http: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// FetchEarnings returns the companies reporting on day. The calendar rows
// carry no date of their own, so every record gets day.
func (c *Client) FetchEarnings(ctx context.Context, day time.Time) ([]source.EarningsRecord, error) {
	date := normalize.FormatDate(day)
	doc, err := c.http.GetJSON(ctx, fmt.Sprintf("%s/api/calendar/earnings?date=%s", c.baseURL, date))
	if err != nil {
		return nil, fmt.Errorf("earnings calendar %s: %w", date, err)
	}

	rows := source.LookupList(doc, "$.data.rows")
	records := make([]source.EarningsRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, source.EarningsRecord{
			Symbol:       source.LookupString(row, "$.symbol"),
			Name:         source.LookupString(row, "$.name"),
			EarningsDate: date,
			EPSEstimate:  source.LookupString(row, "$.epsForecast"),
			ReportTime:   source.LookupString(row, "$.time"),
		})
	}
	return records, nil
}
