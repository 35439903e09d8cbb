package aggregate

import (
    "github.com/shopspring/decimal"

    "pricesync/internal/feed"
)

// Window summarizes a run of price samples for chart axes and the
// "change over window" readout.
type Window struct {
    Samples   int             `json:"samples"`
    From      int64           `json:"from"`
    To        int64           `json:"to"`
    Open      decimal.Decimal `json:"open"`
    Last      decimal.Decimal `json:"last"`
    Low       decimal.Decimal `json:"low"`
    High      decimal.Decimal `json:"high"`
    Change    decimal.Decimal `json:"change"`
    ChangePct decimal.Decimal `json:"changePct"`
}

// pctPlaces is the rounding applied to ChangePct.
const pctPlaces = 4

// Summarize collapses points (oldest first) into a Window. It returns false
// for an empty input. ChangePct is zero when the window opens at zero.
func Summarize(points []feed.PricePoint) (Window, bool) {
    if len(points) == 0 { return Window{}, false }

    first, last := points[0], points[len(points)-1]
    w := Window{
        Samples: len(points),
        From:    first.Time,
        To:      last.Time,
        Open:    first.Price,
        Last:    last.Price,
        Low:     first.Price,
        High:    first.Price,
    }
    for _, p := range points[1:] {
        if p.Price.LessThan(w.Low) { w.Low = p.Price }
        if p.Price.GreaterThan(w.High) { w.High = p.Price }
    }

    w.Change = w.Last.Sub(w.Open)
    if !w.Open.IsZero() {
        w.ChangePct = w.Change.Div(w.Open).Mul(decimal.NewFromInt(100)).Round(pctPlaces)
    }
    return w, true
}

// Downsample keeps at most n points, always including the first and last,
// picking the rest at even index steps. Order is preserved. n <= 0 or an
// input already within n returns points unchanged.
func Downsample(points []feed.PricePoint, n int) []feed.PricePoint {
    if n <= 0 || len(points) <= n { return points }
    if n == 1 { return []feed.PricePoint{points[len(points)-1]} }

    out := make([]feed.PricePoint, 0, n)
    step := float64(len(points)-1) / float64(n-1)
    for i := 0; i < n; i++ {
        idx := int(float64(i)*step + 0.5)
        if idx > len(points)-1 { idx = len(points) - 1 }
        out = append(out, points[idx])
    }
    return out
}
