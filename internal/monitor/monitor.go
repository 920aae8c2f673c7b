// Package monitor implements the server's admin/status dashboard: a
// small gorilla/mux-routed HTTP API reporting connection/task/uptime
// counters, plus a gorilla/websocket feed that pushes the same
// snapshot on an interval for a live view.
package monitor

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/entropycollective/quiverdb/internal/logging"
	"github.com/entropycollective/quiverdb/internal/server"
)

// StatsProvider is the subset of server.Server the dashboard needs.
type StatsProvider interface {
	Stats() server.Stats
}

// snapshot is the JSON shape served from /stats and pushed over /ws.
type snapshot struct {
	ConnectionCount int     `json:"connection_count"`
	TaskCount       int     `json:"task_count"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

func snapshotFrom(s server.Stats) snapshot {
	return snapshot{
		ConnectionCount: s.ConnectionCount,
		TaskCount:       s.TaskCount,
		UptimeSeconds:   s.Uptime.Seconds(),
	}
}

// pushInterval is how often a connected /ws client receives a refreshed
// snapshot.
const pushInterval = 2 * time.Second

// Monitor serves the dashboard HTTP API.
type Monitor struct {
	stats    StatsProvider
	log      *logging.Logger
	upgrader websocket.Upgrader
	router   *mux.Router
}

// New builds a Monitor reporting stats's counters.
func New(stats StatsProvider, log *logging.Logger) *Monitor {
	if log == nil {
		log = logging.Global()
	}
	m := &Monitor{
		stats: stats,
		log:   log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	r := mux.NewRouter()
	r.HandleFunc("/healthz", m.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/stats", m.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/ws", m.handleWebSocket)
	m.router = r
	return m
}

// ListenAndServe blocks serving the dashboard on addr.
func (m *Monitor) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, m.router)
}

// ServeHTTP lets a Monitor be mounted directly as an http.Handler, e.g.
// under httptest.NewServer in tests.
func (m *Monitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.router.ServeHTTP(w, r)
}

func (m *Monitor) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (m *Monitor) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "application/json")
	json.NewEncoder(w).Encode(snapshotFrom(m.stats.Stats()))
}

func (m *Monitor) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Error(err, "websocket upgrade failed")
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(pushInterval)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(snapshotFrom(m.stats.Stats())); err != nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(snapshotFrom(m.stats.Stats())); err != nil {
				return
			}
		}
	}
}
