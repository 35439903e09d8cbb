package api

import (
    "bufio"
    "compress/gzip"
    "errors"
    "io"
    "net"
    "net/http"
    "strings"
    "sync"
    "time"

    "github.com/sirupsen/logrus"
)

func withJSONHeaders(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.Header().Set("Content-Type", "application/json; charset=utf-8")
        // Basic CORS for the browser dashboard.
        w.Header().Set("Access-Control-Allow-Origin", "*")
        w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
        w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
        if r.Method == http.MethodOptions {
            w.WriteHeader(http.StatusNoContent)
            return
        }
        next.ServeHTTP(w, r)
    })
}

// withGzip compresses 200 responses when the client supports gzip. State
// snapshots carry the whole history and compress well; refresh acks,
// preflights and errors are a few bytes and go out as is.
func withGzip(next http.Handler) http.Handler {
    var gzPool = sync.Pool{New: func() any {
        w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
        return w
    }}
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
            next.ServeHTTP(w, r)
            return
        }
        gz := gzPool.Get().(*gzip.Writer)
        gw := &gzipResponseWriter{ResponseWriter: w, gz: gz}
        defer func() {
            if gw.compress { _ = gz.Close() }
            gz.Reset(io.Discard)
            gzPool.Put(gz)
        }()
        next.ServeHTTP(gw, r)
    })
}

// gzipResponseWriter decides on compression when the status is known.
type gzipResponseWriter struct {
    http.ResponseWriter
    gz          *gzip.Writer
    compress    bool
    wroteHeader bool
}

func (g *gzipResponseWriter) WriteHeader(code int) {
    if g.wroteHeader { return }
    g.wroteHeader = true
    h := g.ResponseWriter.Header()
    h.Add("Vary", "Accept-Encoding")
    if code == http.StatusOK && h.Get("Content-Encoding") == "" {
        g.compress = true
        g.gz.Reset(g.ResponseWriter)
        h.Set("Content-Encoding", "gzip")
        h.Del("Content-Length")
    }
    g.ResponseWriter.WriteHeader(code)
}

func (g *gzipResponseWriter) Write(b []byte) (int, error) {
    if !g.wroteHeader { g.WriteHeader(http.StatusOK) }
    if g.compress { return g.gz.Write(b) }
    return g.ResponseWriter.Write(b)
}

// limitBody caps request body size.
func limitBody(next http.Handler) http.Handler {
    const maxBody = 1 << 20 // 1MB
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.Method == http.MethodPost && r.Body != nil {
            r.Body = http.MaxBytesReader(w, r.Body, maxBody)
        }
        next.ServeHTTP(w, r)
    })
}

// recoverPanic protects handlers from panics.
func recoverPanic(log logrus.FieldLogger, next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        defer func() {
            if rec := recover(); rec != nil {
                log.WithFields(logrus.Fields{"panic": rec, "path": r.URL.Path}).Error("handler panic")
                http.Error(w, "internal server error", http.StatusInternalServerError)
            }
        }()
        next.ServeHTTP(w, r)
    })
}

// statusRecorder keeps the response code for the access log. It forwards
// Hijack so the WebSocket upgrade still works behind it.
type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (s *statusRecorder) WriteHeader(code int) {
    s.status = code
    s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    h, ok := s.ResponseWriter.(http.Hijacker)
    if !ok { return nil, nil, errors.New("response writer does not support hijacking") }
    s.status = http.StatusSwitchingProtocols
    return h.Hijack()
}

func logRequests(log logrus.FieldLogger, next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        next.ServeHTTP(rec, r)
        log.WithFields(logrus.Fields{
            "method":   r.Method,
            "path":     r.URL.Path,
            "status":   rec.status,
            "duration": time.Since(start).String(),
        }).Debug("http request")
    })
}
