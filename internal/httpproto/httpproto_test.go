package httpproto_test

import (
	"bufio"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropycollective/quiverdb/internal/httpproto"
	"github.com/entropycollective/quiverdb/internal/kverrors"
	"github.com/entropycollective/quiverdb/internal/session"
)

func pipe(t *testing.T) (client net.Conn, serverSess *session.Session) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()
	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	serverConn := <-accepted
	serverSess = session.New(serverConn, 5*time.Second)
	return client, serverSess
}

func TestParseGetRequestLine(t *testing.T) {
	client, sess := pipe(t)
	defer client.Close()
	fmt.Fprintf(client, "GET /rpc/status?x=1 HTTP/1.1\r\nHost: h\r\n\r\n")

	req, err := httpproto.ParseRequest(sess)
	require.NoError(t, err)
	assert.Equal(t, httpproto.MethodGet, req.Method)
	assert.Equal(t, "/rpc/status", req.Path)
	assert.Equal(t, "x=1", req.Query)
	assert.True(t, req.KeepAlive)
}

func TestParsePostWithContentLength(t *testing.T) {
	client, sess := pipe(t)
	defer client.Close()
	body := "a=1&b=2"
	fmt.Fprintf(client, "POST /rpc/echo HTTP/1.1\r\nContent-Length: %d\r\n\r\n%s", len(body), body)

	req, err := httpproto.ParseRequest(sess)
	require.NoError(t, err)
	assert.Equal(t, httpproto.MethodPost, req.Method)
	assert.Equal(t, body, string(req.Body))
}

func TestParseChunkedBody(t *testing.T) {
	client, sess := pipe(t)
	defer client.Close()
	fmt.Fprintf(client, "POST /x HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n")

	req, err := httpproto.ParseRequest(sess)
	require.NoError(t, err)
	assert.Equal(t, "Wikipedia", string(req.Body))
}

func TestConnectionCloseOverridesKeepAliveDefault(t *testing.T) {
	client, sess := pipe(t)
	defer client.Close()
	fmt.Fprintf(client, "GET / HTTP/1.1\r\nConnection: close\r\n\r\n")

	req, err := httpproto.ParseRequest(sess)
	require.NoError(t, err)
	assert.False(t, req.KeepAlive)
}

func TestHTTP10DefaultsToNotKeepAlive(t *testing.T) {
	client, sess := pipe(t)
	defer client.Close()
	fmt.Fprintf(client, "GET / HTTP/1.0\r\n\r\n")

	req, err := httpproto.ParseRequest(sess)
	require.NoError(t, err)
	assert.False(t, req.KeepAlive)
}

func TestResponseWriteIncludesStatusAndContentLength(t *testing.T) {
	client, sess := pipe(t)
	defer client.Close()

	resp := httpproto.NewResponse(200, []byte("hi"))
	require.NoError(t, resp.Write(sess, false))

	r := bufio.NewReader(client)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "200 OK")

	var sawContentLength bool
	for {
		h, err := r.ReadString('\n')
		require.NoError(t, err)
		if h == "\r\n" {
			break
		}
		if h == "content-length: 2\r\n" {
			sawContentLength = true
		}
	}
	assert.True(t, sawContentLength)
}

func TestOversizeContentLengthReportsCapacityError(t *testing.T) {
	client, sess := pipe(t)
	defer client.Close()
	fmt.Fprintf(client, "POST /rpc/set HTTP/1.1\r\nContent-Length: 999999999999\r\n\r\n")

	_, err := httpproto.ParseRequest(sess)
	require.Error(t, err)
	e, ok := kverrors.As(err)
	require.True(t, ok)
	assert.Equal(t, kverrors.CodeCapacityTooLarge, e.Code)
	assert.Equal(t, 413, kverrors.ErrorToHTTPStatus(err))
}

func TestOversizeChunkedBodyReportsCapacityError(t *testing.T) {
	client, sess := pipe(t)
	defer client.Close()
	fmt.Fprintf(client, "POST /rpc/set HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n%x\r\n", uint64(300<<20))

	_, err := httpproto.ParseRequest(sess)
	require.Error(t, err)
	e, ok := kverrors.As(err)
	require.True(t, ok)
	assert.Equal(t, kverrors.CodeCapacityTooLarge, e.Code)
}

func TestResponse450ForLogicalInconsistency(t *testing.T) {
	assert.Equal(t, "Logical Inconsistency", httpproto.StatusName(450))
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "text/html", httpproto.DetectContentType("index.html"))
	assert.Equal(t, "application/octet-stream", httpproto.DetectContentType("blob.bin"))
}
