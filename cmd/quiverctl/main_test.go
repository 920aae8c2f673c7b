package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/entropycollective/quiverdb/internal/binaryproto"
	"github.com/entropycollective/quiverdb/internal/gateway"
	"github.com/entropycollective/quiverdb/internal/kvdb/btreestore"
	"github.com/entropycollective/quiverdb/internal/remoteclient"
	"github.com/entropycollective/quiverdb/internal/rpc"
	"github.com/entropycollective/quiverdb/internal/rpcservice"
	"github.com/entropycollective/quiverdb/internal/server"
)

func startTestServer(t *testing.T) (addr string, stop func()) {
	t.Helper()
	backend := btreestore.New()
	reg := rpc.NewRegistry()
	rpcservice.Register(reg, backend, nil, nil)
	bh := binaryproto.NewHandler(backend, nil, reg, nil)
	h := &gateway.Handler{Registry: reg, Binary: bh}

	srv := server.New(server.Config{ListenAddr: "127.0.0.1:0", Handler: h, WorkerCount: 4})
	started := make(chan struct{})
	go func() {
		go func() {
			for srv.Addr() == nil {
				time.Sleep(time.Millisecond)
			}
			close(started)
		}()
		srv.ListenAndServe()
	}()
	<-started
	return srv.Addr().String(), func() {
		srv.Stop()
		srv.Finish()
	}
}

func TestRunSetAndRunGet(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()
	c := remoteclient.New("http://"+addr, 5*time.Second)
	ctx := context.Background()

	require.NoError(t, runSet(ctx, c, []string{"alpha", "one"}))
	require.NoError(t, runGet(ctx, c, []string{"alpha"}))
	require.Error(t, runGet(ctx, c, []string{"missing"}))
}

func TestRunCheck(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()
	c := remoteclient.New("http://"+addr, 5*time.Second)
	ctx := context.Background()

	require.NoError(t, runSet(ctx, c, []string{"alpha", "hello"}))
	require.NoError(t, runCheck(ctx, c, []string{"alpha"}))
	require.Error(t, runCheck(ctx, c, []string{"missing"}))
}

func TestRunGetUsageError(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()
	c := remoteclient.New("http://"+addr, 5*time.Second)
	require.Error(t, runGet(context.Background(), c, nil))
	require.Error(t, runSet(context.Background(), c, []string{"onlyone"}))
}

func TestRequireOne(t *testing.T) {
	var got string
	err := requireOne([]string{"k"}, func(key string) error {
		got = key
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "k", got)

	require.Error(t, requireOne(nil, func(string) error { return nil }))
	require.Error(t, requireOne([]string{"a", "b"}, func(string) error { return nil }))
}

func TestRunMatchRespectsResults(t *testing.T) {
	fn := func(_ context.Context, pattern string, max int) ([]string, error) {
		require.Equal(t, "a*", pattern)
		require.Equal(t, 5, max)
		return []string{"a1", "a2"}, nil
	}
	require.NoError(t, runMatch(context.Background(), fn, []string{"a*"}, 5))
	require.Error(t, runMatch(context.Background(), fn, nil, 5))
}

func TestRunCounters(t *testing.T) {
	fn := func(context.Context) (map[string]string, error) {
		return map[string]string{"uptime": "12", "connections": "3"}, nil
	}
	require.NoError(t, runCounters(context.Background(), fn, false))
	require.NoError(t, runCounters(context.Background(), fn, true))
}
