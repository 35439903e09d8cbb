// Package api exposes a price sync session over HTTP: JSON snapshots, a
// refresh trigger and a WebSocket stream of state changes.
package api

import (
    "encoding/json"
    "net/http"
    "strconv"
    "time"

    "github.com/gorilla/websocket"
    "github.com/sirupsen/logrus"

    "pricesync/internal/aggregate"
    "pricesync/internal/metrics"
    "pricesync/internal/pricesync"
)

// Session is the part of the controller the API reads from and drives.
type Session interface {
    State() pricesync.State
    Refresh() bool
    Subscribe() (<-chan pricesync.State, func())
}

var _ Session = (*pricesync.Controller)(nil)

// maxChartPoints bounds the points query parameter.
const maxChartPoints = 1000

const (
    writeWait  = 10 * time.Second
    pongWait   = 60 * time.Second
    pingPeriod = pongWait * 9 / 10
)

type Server struct {
    session  Session
    log      logrus.FieldLogger
    upgrader websocket.Upgrader
}

type Option func(*Server)

func WithLogger(log logrus.FieldLogger) Option {
    return func(s *Server) {
        if log != nil { s.log = log }
    }
}

func New(session Session, opts ...Option) *Server {
    s := &Server{
        session: session,
        log:     logrus.StandardLogger().WithField("component", "api"),
        upgrader: websocket.Upgrader{
            ReadBufferSize:  1024,
            WriteBufferSize: 4096,
            // Same policy as the CORS headers on the JSON routes.
            CheckOrigin: func(*http.Request) bool { return true },
        },
    }
    for _, opt := range opts { opt(s) }
    return s
}

// Handler wires every route. The stream and metrics endpoints bypass the
// JSON and gzip middleware; the upgrade needs the raw connection.
func (s *Server) Handler() http.Handler {
    api := http.NewServeMux()
    api.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
        w.Header().Set("Content-Type", "text/plain; charset=utf-8")
        w.WriteHeader(http.StatusOK)
        _, _ = w.Write([]byte("ok"))
    })
    api.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
        if r.Method != http.MethodGet {
            http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
            return
        }
        s.handleState(w, r)
    })
    api.HandleFunc("/api/refresh", func(w http.ResponseWriter, r *http.Request) {
        if r.Method != http.MethodPost {
            http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
            return
        }
        s.handleRefresh(w, r)
    })

    root := http.NewServeMux()
    root.Handle("/metrics", metrics.Handler())
    root.Handle("/api/stream", recoverPanic(s.log, http.HandlerFunc(s.handleStream)))
    root.Handle("/", withJSONHeaders(withGzip(recoverPanic(s.log, limitBody(api)))))
    return logRequests(s.log, root)
}

// stateResponse is State plus the derived fields a dashboard renders from.
type stateResponse struct {
    pricesync.State
    InitialLoad  bool              `json:"initialLoad"`
    HistoryReady bool              `json:"historyReady"`
    Summary      *aggregate.Window `json:"summary"`
}

func newStateResponse(st pricesync.State, points int) stateResponse {
    resp := stateResponse{
        State:        st,
        InitialLoad:  st.InitialLoad(),
        HistoryReady: st.HistoryReady(),
    }
    if w, ok := aggregate.Summarize(st.History); ok { resp.Summary = &w }
    if points > 0 { resp.History = aggregate.Downsample(st.History, points) }
    return resp
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
    points, ok := parsePoints(w, r)
    if !ok { return }
    writeJSON(w, http.StatusOK, newStateResponse(s.session.State(), points))
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
    if !s.session.Refresh() {
        http.Error(w, "price sync is not running", http.StatusServiceUnavailable)
        return
    }
    writeJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
}

// handleStream sends the current state on connect and every change after
// that until the client goes away or the session stops.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
    points, ok := parsePoints(w, r)
    if !ok { return }

    conn, err := s.upgrader.Upgrade(w, r, nil)
    if err != nil {
        // Upgrade has already replied to the client.
        s.log.WithError(err).Debug("websocket upgrade failed")
        return
    }
    defer conn.Close()

    states, cancel := s.session.Subscribe()
    defer cancel()

    // The read side only handles control frames and notices a closed client.
    conn.SetReadLimit(512)
    _ = conn.SetReadDeadline(time.Now().Add(pongWait))
    conn.SetPongHandler(func(string) error {
        return conn.SetReadDeadline(time.Now().Add(pongWait))
    })
    go func() {
        defer cancel()
        for {
            if _, _, err := conn.ReadMessage(); err != nil { return }
        }
    }()

    ping := time.NewTicker(pingPeriod)
    defer ping.Stop()

    for {
        select {
        case st, open := <-states:
            _ = conn.SetWriteDeadline(time.Now().Add(writeWait))
            if !open {
                _ = conn.WriteMessage(websocket.CloseMessage,
                    websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
                return
            }
            if err := conn.WriteJSON(newStateResponse(st, points)); err != nil {
                s.log.WithError(err).Debug("websocket write failed")
                return
            }
        case <-ping.C:
            _ = conn.SetWriteDeadline(time.Now().Add(writeWait))
            if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil { return }
        }
    }
}

// parsePoints reads the optional points query used to downsample history.
func parsePoints(w http.ResponseWriter, r *http.Request) (int, bool) {
    raw := r.URL.Query().Get("points")
    if raw == "" { return 0, true }
    n, err := strconv.Atoi(raw)
    if err != nil || n < 2 || n > maxChartPoints {
        http.Error(w, "points must be an integer between 2 and 1000", http.StatusBadRequest)
        return 0, false
    }
    return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.WriteHeader(status)
    enc := json.NewEncoder(w)
    enc.SetEscapeHTML(false)
    _ = enc.Encode(v)
}
