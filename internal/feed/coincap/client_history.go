package coincap

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"pricesync/internal/feed"
)

// FetchHistorySeries retrieves one-minute samples covering the configured
// window, ordered oldest to newest. Entries with an unusable price or time
// are skipped.
func (c *Client) FetchHistorySeries(ctx context.Context) ([]feed.PricePoint, error) {
	end := c.now().UnixMilli()
	start := end - int64(c.historyPoints)*time.Minute.Milliseconds()

	query := url.Values{}
	query.Set("interval", "m1")
	query.Set("start", strconv.FormatInt(start, 10))
	query.Set("end", strconv.FormatInt(end, 10))

	body, err := c.get(ctx, "/assets/"+url.PathEscape(c.asset)+"/history", query)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return []feed.PricePoint{}, nil
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decoding history response: %w", ErrMalformed)
	}

	// {
	//   "data": [
	//     {"priceUsd": "49950.12", "time": 1700000000000, "date": "2023-11-14T22:13:00.000Z"},
	//     ...
	//   ]
	// }
	entries := gjson.GetBytes(body, "data").Array()
	points := make([]feed.PricePoint, 0, len(entries))
	for _, entry := range entries {
		ts := entry.Get("time")
		if ts.Type != gjson.Number {
			continue
		}
		price, ok := parseDecimal(entry.Get("priceUsd"))
		if !ok {
			continue
		}
		points = append(points, feed.PricePoint{Time: ts.Int(), Price: price})
	}

	slices.SortStableFunc(points, func(a, b feed.PricePoint) int {
		return cmp.Compare(a.Time, b.Time)
	})
	return points, nil
}
