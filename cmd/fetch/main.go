package main

import (
    "context"
    "encoding/json"
    "flag"
    "fmt"
    "os"
    "time"

    "github.com/sirupsen/logrus"

    "pricesync/internal/aggregate"
    "pricesync/internal/config"
    "pricesync/internal/feed"
    "pricesync/internal/feed/coincap"
    "pricesync/internal/httpx"
    "pricesync/internal/logging"
)

type output struct {
    Feed     string            `json:"feed"`
    Snapshot *feed.Snapshot    `json:"snapshot"`
    Summary  *aggregate.Window `json:"summary,omitempty"`
    History  []feed.PricePoint `json:"history,omitempty"`
    Errors   []string          `json:"errors,omitempty"`
}

func main() {
    var configPath string
    var asset string
    var withHistory bool
    var points int
    var timeout int

    flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json (optional)")
    flag.StringVar(&asset, "asset", "", "CoinCap asset id (defaults to config)")
    flag.BoolVar(&withHistory, "history", false, "also fetch the history series")
    flag.IntVar(&points, "points", 20, "downsample printed history to at most this many points (0 = all)")
    flag.IntVar(&timeout, "timeout", 0, "request timeout seconds (defaults to config)")
    flag.Parse()

    cfg, err := config.Load(configPath)
    if err != nil { logrus.Fatalf("config: %v", err) }
    if asset != "" { cfg.CoinCap.Asset = asset }
    if timeout > 0 { cfg.Server.RequestTimeoutSec = timeout }

    log, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
    if err != nil { logrus.Fatalf("logging: %v", err) }

    client := coincap.NewClient(cfg.CoinCap.APIKey,
        coincap.WithBaseURL(cfg.CoinCap.BaseURL),
        coincap.WithAsset(cfg.CoinCap.Asset),
        coincap.WithHistoryPoints(cfg.CoinCap.HistoryPoints),
        coincap.WithHTTPClient(httpx.New(cfg.Server.RequestTimeout())),
    )

    ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.RequestTimeout()+5*time.Second)
    defer cancel()

    out := fetch(ctx, client, withHistory, points)
    for _, e := range out.Errors { log.Error(e) }

    b, _ := json.MarshalIndent(out, "", "  ")
    fmt.Println(string(b))
    if len(out.Errors) > 0 { os.Exit(1) }
}

// fetch runs the snapshot and optional history requests concurrently and
// collects partial results.
func fetch(ctx context.Context, f feed.Feed, withHistory bool, points int) output {
    out := output{Feed: f.Name()}

    type histResult struct { points []feed.PricePoint; err error }
    histCh := make(chan histResult, 1)
    if withHistory {
        go func() {
            pts, err := f.FetchHistorySeries(ctx)
            histCh <- histResult{pts, err}
        }()
    }

    snap, err := f.FetchCurrentPrice(ctx)
    switch {
    case err != nil:
        out.Errors = append(out.Errors, fmt.Sprintf("current price: %v", err))
    case snap == nil:
        out.Errors = append(out.Errors, "current price: no usable data")
    default:
        out.Snapshot = snap
    }

    if withHistory {
        r := <-histCh
        if r.err != nil {
            out.Errors = append(out.Errors, fmt.Sprintf("history: %v", r.err))
        } else {
            if w, ok := aggregate.Summarize(r.points); ok { out.Summary = &w }
            out.History = aggregate.Downsample(r.points, points)
        }
    }
    return out
}
