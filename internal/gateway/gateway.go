// Package gateway implements the server.Handler that sits in front of
// the HTTP/RPC layer and the binary dispatch layer: it peeks one byte to
// tell a binary-protocol request (magic bytes 0xB0-0xBF) from an HTTP
// request line, then routes HTTP requests further between /rpc/ and
// static-file serving.
package gateway

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/entropycollective/quiverdb/internal/binaryproto"
	"github.com/entropycollective/quiverdb/internal/httpproto"
	"github.com/entropycollective/quiverdb/internal/kverrors"
	"github.com/entropycollective/quiverdb/internal/rpc"
	"github.com/entropycollective/quiverdb/internal/session"
)

// Handler implements server.Handler, dispatching each request to the
// binary, RPC, or static-file path.
type Handler struct {
	Registry *rpc.Registry
	Binary   *binaryproto.Handler
	DocRoot  string // empty disables static-file serving (404 for everything outside /rpc/)
}

func (h *Handler) Handle(ctx context.Context, sess *session.Session) (bool, error) {
	b, err := sess.ReceiveByte()
	if err != nil {
		return false, err
	}
	magic := byte(b)
	if magic >= 0xB0 && magic <= 0xBF {
		sess.UndoReceiveByte(magic)
		if err := h.Binary.Dispatch(ctx, sess); err != nil {
			return false, err
		}
		return true, nil
	}
	sess.UndoReceiveByte(magic)

	req, err := httpproto.ParseRequest(sess)
	if err != nil {
		resp := httpproto.NewResponse(kverrors.ErrorToHTTPStatus(err), nil)
		resp.KeepAlive = false
		resp.Write(sess, false)
		return false, err
	}

	var resp *httpproto.Response
	if strings.HasPrefix(req.Path, rpc.Prefix) {
		resp = h.Registry.Handle(ctx, req)
	} else {
		resp = h.serveStatic(req)
	}
	resp.KeepAlive = resp.KeepAlive && req.KeepAlive
	if err := resp.Write(sess, req.Method == httpproto.MethodHead); err != nil {
		return false, err
	}
	return resp.KeepAlive, nil
}

func (h *Handler) serveStatic(req *httpproto.Request) *httpproto.Response {
	if h.DocRoot == "" {
		r := httpproto.NewResponse(404, nil)
		r.KeepAlive = req.KeepAlive
		return r
	}
	if req.Method != httpproto.MethodGet && req.Method != httpproto.MethodHead {
		r := httpproto.NewResponse(405, nil)
		r.KeepAlive = req.KeepAlive
		return r
	}
	clean := filepath.Clean("/" + req.Path)
	full := filepath.Join(h.DocRoot, clean)
	data, err := os.ReadFile(full)
	if err != nil {
		r := httpproto.NewResponse(404, nil)
		r.KeepAlive = req.KeepAlive
		return r
	}
	r := httpproto.NewResponse(200, data)
	r.KeepAlive = req.KeepAlive
	r.SetHeader("content-type", httpproto.DetectContentType(full))
	return r
}
