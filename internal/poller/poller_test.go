package poller_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/entropycollective/quiverdb/internal/poller"
	"github.com/entropycollective/quiverdb/internal/session"
)

func TestListenerReportsAcceptOnce(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	p := poller.New(8)
	defer p.Close()
	p.DepositListener(1, ln)

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	batch := p.Wait(2 * time.Second)
	require.Len(t, batch, 1)
	require.Equal(t, poller.EventAccept, batch[0].Kind)
	require.NotNil(t, batch[0].Conn)
	batch[0].Conn.Close()

	// Silent until re-armed.
	empty := p.Wait(300 * time.Millisecond)
	require.Empty(t, empty)
}

func TestConnReportsReadableThenNeedsUndo(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()
	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()
	serverConn := <-accepted
	defer serverConn.Close()

	sess := session.New(serverConn, 5*time.Second)
	p := poller.New(8)
	defer p.Close()
	p.DepositConn(42, sess, time.Second)

	_, err = client.Write([]byte("x"))
	require.NoError(t, err)

	batch := p.Wait(2 * time.Second)
	require.Len(t, batch, 1)
	require.Equal(t, poller.EventReadable, batch[0].Kind)
	require.Equal(t, 42, batch[0].ID)

	b, err := sess.ReceiveByte()
	require.NoError(t, err)
	require.Equal(t, int('x'), b)

	empty := p.Wait(300 * time.Millisecond)
	require.Empty(t, empty)

	p.Undo(42)
	_, err = client.Write([]byte("y"))
	require.NoError(t, err)
	batch2 := p.Wait(2 * time.Second)
	require.Len(t, batch2, 1)
	require.Equal(t, poller.EventReadable, batch2[0].Kind)
}

func TestWithdrawStopsReporting(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	p := poller.New(8)
	defer p.Close()
	p.DepositListener(7, ln)
	p.Withdraw(7)

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	empty := p.Wait(300 * time.Millisecond)
	require.Empty(t, empty)
}

func TestAbortUnblocksWait(t *testing.T) {
	p := poller.New(1)
	done := make(chan struct{})
	go func() {
		p.Wait(5 * time.Second)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	p.Abort()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("abort did not unblock wait")
	}
}
