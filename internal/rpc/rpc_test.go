package rpc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropycollective/quiverdb/internal/httpproto"
	"github.com/entropycollective/quiverdb/internal/rpc"
)

func TestRegisterAndDispatchSuccess(t *testing.T) {
	reg := rpc.NewRegistry()
	reg.Register("echo", func(ctx context.Context, inputs map[string]string) (map[string]string, rpc.ReturnValue) {
		return map[string]string{"value": inputs["key"]}, rpc.RVSuccess
	})

	req := &httpproto.Request{Path: "/rpc/echo", Query: "key=hello", Headers: map[string]string{}}
	resp := reg.Handle(context.Background(), req)
	assert.Equal(t, 200, resp.Status)

	parsed, err := rpc.ParseTSV(resp.Body, rpc.ColEncNone)
	require.NoError(t, err)
	assert.Equal(t, "hello", parsed["value"])
}

func TestUnknownProcedureReturns501(t *testing.T) {
	reg := rpc.NewRegistry()
	req := &httpproto.Request{Path: "/rpc/nope", Headers: map[string]string{}}
	resp := reg.Handle(context.Background(), req)
	assert.Equal(t, 501, resp.Status)
}

func TestLogicErrorReturns450(t *testing.T) {
	reg := rpc.NewRegistry()
	reg.Register("fail", func(ctx context.Context, inputs map[string]string) (map[string]string, rpc.ReturnValue) {
		return nil, rpc.RVLogic
	})
	req := &httpproto.Request{Path: "/rpc/fail", Headers: map[string]string{}}
	resp := reg.Handle(context.Background(), req)
	assert.Equal(t, 450, resp.Status)
}

func TestTSVBodyWithColEncBase64(t *testing.T) {
	reg := rpc.NewRegistry()
	var seen string
	reg.Register("store", func(ctx context.Context, inputs map[string]string) (map[string]string, rpc.ReturnValue) {
		seen = inputs["key"]
		return nil, rpc.RVSuccess
	})
	body := rpc.EncodeTSV(map[string]string{"key": "binary\x00value"}, rpc.ColEncB64)
	req := &httpproto.Request{
		Path:    "/rpc/store",
		Headers: map[string]string{"content-type": "text/tab-separated-values; colenc=B"},
		Body:    body,
	}
	reg.Handle(context.Background(), req)
	assert.Equal(t, "binary\x00value", seen)
}

func TestSignalWaitThenAnotherCallSignals(t *testing.T) {
	reg := rpc.NewRegistry()
	reg.Register("noop", func(ctx context.Context, inputs map[string]string) (map[string]string, rpc.ReturnValue) {
		return nil, rpc.RVSuccess
	})

	done := make(chan int, 1)
	go func() {
		req := &httpproto.Request{Path: "/rpc/noop", Query: "WAIT=q&WAITTIME=2", Headers: map[string]string{}}
		resp := reg.Handle(context.Background(), req)
		done <- resp.Status
	}()

	time.Sleep(100 * time.Millisecond)
	signalReq := &httpproto.Request{Path: "/rpc/noop", Query: "SIGNAL=q", Headers: map[string]string{}}
	reg.Handle(context.Background(), signalReq)

	select {
	case status := <-done:
		assert.Equal(t, 200, status)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not signaled before WAITTIME elapsed")
	}
}

func TestDetectContentTypeEncodingAutoSelectsBase64ForControlBytes(t *testing.T) {
	reg := rpc.NewRegistry()
	reg.Register("binary", func(ctx context.Context, inputs map[string]string) (map[string]string, rpc.ReturnValue) {
		return map[string]string{"v": "\x01\x02"}, rpc.RVSuccess
	})
	req := &httpproto.Request{Path: "/rpc/binary", Headers: map[string]string{}}
	resp := reg.Handle(context.Background(), req)
	assert.Contains(t, resp.Headers["content-type"], "colenc=B")
}
