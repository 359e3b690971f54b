package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vadiminshakov/watchtower/internal/domain"
	"github.com/vadiminshakov/watchtower/internal/events"
	"github.com/vadiminshakov/watchtower/internal/scheduler"
	"go.uber.org/zap"
)

const heartbeatInterval = 30 * time.Second

type statusProvider interface {
	Statuses() []scheduler.Status
}

type eventSource interface {
	Subscribe() chan events.Event
	Unsubscribe(ch chan events.Event)
}

// PositionReader lists the open positions of one ledger.
type PositionReader interface {
	Positions(ctx context.Context) ([]domain.Position, error)
}

// Server exposes health, metrics, positions and an SSE stream of engine events.
type Server struct {
	Addr      string
	l         *zap.Logger
	status    statusProvider
	events    eventSource
	gatherer  prometheus.Gatherer
	positions map[string]PositionReader
	heartbeat time.Duration
}

// NewServer creates a new web server instance.
func NewServer(
	l *zap.Logger,
	addr string,
	status statusProvider,
	stream eventSource,
	gatherer prometheus.Gatherer,
	positions map[string]PositionReader,
) *Server {
	return &Server{
		Addr:      addr,
		l:         l.With(zap.String("component", "web")),
		status:    status,
		events:    stream,
		gatherer:  gatherer,
		positions: positions,
		heartbeat: heartbeatInterval,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/positions", s.handlePositions)
	mux.HandleFunc("/events", s.handleEvents)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.l.Info("listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

type healthResponse struct {
	Status string             `json:"status"`
	Tasks  []scheduler.Status `json:"tasks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.status != nil {
		resp.Tasks = s.status.Statuses()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	scopes := make([]string, 0, len(s.positions))
	for scope := range s.positions {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)

	out := make(map[string][]domain.Position, len(scopes))
	for _, scope := range scopes {
		positions, err := s.positions[scope].Positions(r.Context())
		if err != nil {
			s.l.Error("failed to load positions", zap.String("scope", scope), zap.Error(err))
			http.Error(w, "failed to load positions", http.StatusInternalServerError)
			return
		}
		if positions == nil {
			positions = []domain.Position{}
		}
		out[scope] = positions
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "event stream not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.events.Subscribe()
	defer s.events.Unsubscribe(ch)

	// send a comment heartbeat so proxies keep connection
	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				s.l.Warn("event stream marshal failed", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\n", ev.Type)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Watchtower</title>
  <style>
    body { margin:2rem; font-family:'Space Mono','JetBrains Mono',monospace; color:#111; }
    a { color:#111; }
    #log { border:2px solid #111; padding:1rem; height:60vh; overflow-y:auto; background:#f6f6f6; }
    .ev { margin:0 0 .5rem; white-space:pre-wrap; }
    .ts { color:#9c9c9c; }
  </style>
</head>
<body>
  <h1>watchtower</h1>
  <p><a href="/healthz">healthz</a> · <a href="/positions">positions</a> · <a href="/metrics">metrics</a></p>
  <div id="log"></div>
  <script>
    const log = document.getElementById('log');
    const es = new EventSource('/events');
    const show = (e) => {
      const ev = JSON.parse(e.data);
      const p = document.createElement('p');
      p.className = 'ev';
      p.innerHTML = '<span class="ts">' + new Date(ev.ts).toLocaleString() + '</span> ';
      p.appendChild(document.createTextNode('[' + ev.type + '] ' + ev.text));
      log.prepend(p);
    };
    ['position', 'movement', 'alert', 'report', 'diagnostic'].forEach((t) => es.addEventListener(t, show));
  </script>
</body>
</html>`
