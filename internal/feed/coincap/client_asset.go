package coincap

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"

	"pricesync/internal/feed"
)

var _ feed.Feed = (*Client)(nil)

// FetchCurrentPrice retrieves the spot price and 24h change of the asset.
//
// An empty body, a missing "data" object or non-numeric fields yield
// (nil, nil). A body that is not JSON at all is reported as ErrMalformed.
func (c *Client) FetchCurrentPrice(ctx context.Context) (*feed.Snapshot, error) {
	body, err := c.get(ctx, "/assets/"+url.PathEscape(c.asset), nil)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decoding asset response: %w", ErrMalformed)
	}

	// {
	//   "data": {
	//     "id": "bitcoin",
	//     "priceUsd": "50000.1234",
	//     "changePercent24Hr": "2.5012"
	//   },
	//   "timestamp": 1700000000000
	// }
	data := gjson.GetBytes(body, "data")
	if !data.IsObject() {
		return nil, nil
	}
	price, ok := parseDecimal(data.Get("priceUsd"))
	if !ok {
		return nil, nil
	}
	change, ok := parseDecimal(data.Get("changePercent24Hr"))
	if !ok {
		return nil, nil
	}

	return &feed.Snapshot{Price: price, Change24h: change}, nil
}
