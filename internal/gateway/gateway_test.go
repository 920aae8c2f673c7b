package gateway_test

import (
	"bufio"
	"context"
	"fmt"
	"net"
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

func startServer(t *testing.T) (addr string, stop func()) {
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

func TestClientSetGetRoundTrip(t *testing.T) {
	addr, stop := startServer(t)
	defer stop()

	c := remoteclient.New("http://"+addr, 5*time.Second)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "alpha", "one"))
	value, ok, err := c.Get(ctx, "alpha")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "one", value)

	_, ok, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClientCursorWalk(t *testing.T) {
	addr, stop := startServer(t)
	defer stop()

	c := remoteclient.New("http://"+addr, 5*time.Second)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "a", "1"))
	require.NoError(t, c.Set(ctx, "b", "2"))

	cur := c.NewCursor()
	require.NoError(t, cur.JumpFirst(ctx))
	key, value, err := cur.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", key)
	require.Equal(t, "1", value)

	require.NoError(t, cur.Step(ctx))
	key, value, err = cur.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", key)
	require.Equal(t, "2", value)

	require.NoError(t, cur.Delete(ctx))
}

func TestClientReportCounters(t *testing.T) {
	addr, stop := startServer(t)
	defer stop()

	c := remoteclient.New("http://"+addr, 5*time.Second)
	out, err := c.Report(context.Background())
	require.NoError(t, err)
	require.Contains(t, out, "count")
}

func TestOversizeRequestReturns413(t *testing.T) {
	addr, stop := startServer(t)
	defer stop()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	fmt.Fprintf(conn, "POST /rpc/set HTTP/1.1\r\nContent-Length: 999999999999\r\n\r\n")

	status, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, status, "413")
	require.Contains(t, status, "Payload Too Large")
}
