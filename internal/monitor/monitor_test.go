package monitor_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/entropycollective/quiverdb/internal/monitor"
	"github.com/entropycollective/quiverdb/internal/server"
)

type fakeStats struct {
	s server.Stats
}

func (f fakeStats) Stats() server.Stats { return f.s }

func TestHandleStatsReportsSnapshot(t *testing.T) {
	m := monitor.New(fakeStats{s: server.Stats{ConnectionCount: 3, TaskCount: 1, Uptime: 5 * time.Second}}, nil)
	srv := httptest.NewServer(m)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		ConnectionCount int     `json:"connection_count"`
		TaskCount       int     `json:"task_count"`
		UptimeSeconds   float64 `json:"uptime_seconds"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, 3, out.ConnectionCount)
	require.Equal(t, 1, out.TaskCount)
	require.Equal(t, 5.0, out.UptimeSeconds)
}

func TestHandleHealthz(t *testing.T) {
	m := monitor.New(fakeStats{}, nil)
	srv := httptest.NewServer(m)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketPushesSnapshot(t *testing.T) {
	m := monitor.New(fakeStats{s: server.Stats{ConnectionCount: 7}}, nil)
	srv := httptest.NewServer(m)
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):] + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var out struct {
		ConnectionCount int `json:"connection_count"`
	}
	require.NoError(t, conn.ReadJSON(&out))
	require.Equal(t, 7, out.ConnectionCount)
}
