package binaryproto_test

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropycollective/quiverdb/internal/binaryproto"
	"github.com/entropycollective/quiverdb/internal/kvdb/btreestore"
	"github.com/entropycollective/quiverdb/internal/rpc"
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

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func u16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func i64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func TestNOPRoundTrip(t *testing.T) {
	client, sess := pipe(t)
	defer client.Close()

	h := binaryproto.NewHandler(btreestore.New(), nil, nil, nil)
	go h.Dispatch(context.Background(), sess)

	client.Write([]byte{byte(binaryproto.MagicNOP)})
	client.Write(u32(0))

	reply := make([]byte, 5)
	_, err := readFull(client, reply)
	require.NoError(t, err)
	assert.Equal(t, byte(binaryproto.MagicNOP), reply[0])
}

func TestSetBulkThenGetBulk(t *testing.T) {
	client, sess := pipe(t)
	defer client.Close()
	backend := btreestore.New()
	h := binaryproto.NewHandler(backend, nil, nil, nil)

	go func() {
		h.Dispatch(context.Background(), sess)
	}()

	var req []byte
	req = append(req, byte(binaryproto.MagicSetBulk))
	req = append(req, u32(0)...) // flags
	req = append(req, u32(1)...) // record count
	req = append(req, u16(0)...) // db-index
	req = append(req, u32(3)...) // key size
	req = append(req, u32(5)...) // value size
	req = append(req, i64(0)...) // expiration
	req = append(req, []byte("foo")...)
	req = append(req, []byte("hello")...)
	client.Write(req)

	reply := make([]byte, 9)
	_, err := readFull(client, reply)
	require.NoError(t, err)
	assert.Equal(t, byte(binaryproto.MagicSetBulk), reply[0])
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(reply[5:9]))

	value, ok, err := backend.Get(context.Background(), []byte("foo"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", string(value))

	client2, sess2 := pipe(t)
	defer client2.Close()
	h2 := binaryproto.NewHandler(backend, nil, nil, nil)
	go h2.Dispatch(context.Background(), sess2)

	var getReq []byte
	getReq = append(getReq, byte(binaryproto.MagicGetBulk))
	getReq = append(getReq, u32(0)...)
	getReq = append(getReq, u32(1)...)
	getReq = append(getReq, u16(0)...)
	getReq = append(getReq, u32(3)...)
	getReq = append(getReq, []byte("foo")...)
	client2.Write(getReq)

	getReplyHead := make([]byte, 9)
	_, err = readFull(client2, getReplyHead)
	require.NoError(t, err)
	assert.Equal(t, byte(binaryproto.MagicGetBulk), getReplyHead[0])
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(getReplyHead[5:9]))

	rest := make([]byte, 2+4+4+8+3+5)
	_, err = readFull(client2, rest)
	require.NoError(t, err)
	keySize := binary.BigEndian.Uint32(rest[2:6])
	valSize := binary.BigEndian.Uint32(rest[6:10])
	assert.Equal(t, uint32(3), keySize)
	assert.Equal(t, uint32(5), valSize)
	assert.Equal(t, "hello", string(rest[21:26]))
}

func TestRemoveBulk(t *testing.T) {
	client, sess := pipe(t)
	defer client.Close()
	backend := btreestore.New()
	backend.Set(context.Background(), []byte("k"), []byte("v"))
	h := binaryproto.NewHandler(backend, nil, nil, nil)
	go h.Dispatch(context.Background(), sess)

	var req []byte
	req = append(req, byte(binaryproto.MagicRemoveBulk))
	req = append(req, u32(0)...)
	req = append(req, u32(1)...)
	req = append(req, u16(0)...)
	req = append(req, u32(1)...)
	req = append(req, []byte("k")...)
	client.Write(req)

	reply := make([]byte, 9)
	_, err := readFull(client, reply)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(reply[5:9]))

	_, ok, err := backend.Get(context.Background(), []byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetBulkNoReplySendsNoBytes(t *testing.T) {
	client, sess := pipe(t)
	defer client.Close()
	backend := btreestore.New()
	h := binaryproto.NewHandler(backend, nil, nil, nil)
	done := make(chan error, 1)
	go func() { done <- h.Dispatch(context.Background(), sess) }()

	var req []byte
	req = append(req, byte(binaryproto.MagicSetBulk))
	req = append(req, u32(binaryproto.FlagNoReply)...)
	req = append(req, u32(1)...)
	req = append(req, u16(0)...)
	req = append(req, u32(1)...)
	req = append(req, u32(1)...)
	req = append(req, i64(0)...)
	req = append(req, []byte("a")...)
	req = append(req, []byte("b")...)
	client.Write(req)

	require.NoError(t, <-done)
	value, ok, _ := backend.Get(context.Background(), []byte("a"))
	require.True(t, ok)
	assert.Equal(t, "b", string(value))

	client.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 1)
	_, err := client.Read(buf)
	assert.Error(t, err, "expected no reply bytes for NOREPLY set-bulk")
}

func TestPlayScriptDispatchesThroughScripter(t *testing.T) {
	client, sess := pipe(t)
	defer client.Close()

	reg := rpc.NewRegistry()
	reg.Register("double", func(ctx context.Context, inputs map[string]string) (map[string]string, rpc.ReturnValue) {
		return map[string]string{"out": inputs["in"] + inputs["in"]}, rpc.RVSuccess
	})
	h := binaryproto.NewHandler(btreestore.New(), nil, reg, nil)
	go h.Dispatch(context.Background(), sess)

	name := "double"
	var req []byte
	req = append(req, byte(binaryproto.MagicPlayScript))
	req = append(req, u32(0)...)
	req = append(req, u32(uint32(len(name)))...)
	req = append(req, []byte(name)...)
	req = append(req, u32(1)...)
	req = append(req, u32(2)...)
	req = append(req, u32(2)...)
	req = append(req, []byte("in")...)
	req = append(req, []byte("ab")...)
	client.Write(req)

	head := make([]byte, 10)
	_, err := readFull(client, head)
	require.NoError(t, err)
	assert.Equal(t, byte(binaryproto.MagicPlayScript), head[0])
	assert.Equal(t, byte(0), head[5])
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
