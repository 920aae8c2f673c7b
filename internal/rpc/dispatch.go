package rpc

import (
	"context"
	"net/url"
	"strings"

	"github.com/entropycollective/quiverdb/internal/condmap"
	"github.com/entropycollective/quiverdb/internal/httpproto"
	"github.com/entropycollective/quiverdb/internal/kverrors"
)

// ReturnValue is the RPC outcome kind; see kverrors.ReturnValue for the
// HTTP status mapping table.
type ReturnValue = kverrors.ReturnValue

const (
	RVSuccess  = kverrors.RVSuccess
	RVInvalid  = kverrors.RVInvalid
	RVLogic    = kverrors.RVLogic
	RVNoImpl   = kverrors.RVNoImpl
	RVTimeout  = kverrors.RVTimeout
	RVInternal = kverrors.RVInternal
	RVNetwork  = kverrors.RVNetwork
)

// Prefix is the reserved URL prefix that routes a request to the RPC
// layer instead of static-file serving.
const Prefix = "/rpc/"

// Procedure is one registered RPC method.
type Procedure func(ctx context.Context, inputs map[string]string) (outputs map[string]string, rv ReturnValue)

// Registry holds the named procedures a server exposes over /rpc/.
type Registry struct {
	procs map[string]Procedure
	conds *condmap.Map
}

// NewRegistry creates an empty registry backed by its own condition map
// for WAIT/SIGNAL handling.
func NewRegistry() *Registry {
	return &Registry{procs: make(map[string]Procedure), conds: condmap.New()}
}

// Register adds or replaces a named procedure.
func (r *Registry) Register(name string, p Procedure) {
	r.procs[name] = p
}

// Handle dispatches req (whose Path has the /rpc/ prefix already
// stripped by the caller, or not — Handle strips it itself if
// present) and returns an assembled httpproto.Response.
func (r *Registry) Handle(ctx context.Context, req *httpproto.Request) *httpproto.Response {
	name := req.Path
	if strings.HasPrefix(name, Prefix) {
		name = name[len(Prefix):]
	}
	decoded, err := url.QueryUnescape(name)
	if err == nil {
		name = decoded
	}

	inputs, err := r.assembleInputs(req)
	if err != nil {
		return errorResponse(RVInvalid, req.KeepAlive)
	}

	outputs, rv := r.InvokeProcedure(ctx, name, inputs)
	return r.respond(outputs, rv, req.KeepAlive)
}

// InvokeProcedure looks up name and runs it against inputs, applying the
// same WAIT/SIGNAL handling as Handle. The binary-protocol play-script
// command shares this path with /rpc/ so the two framings never drift
// in behavior.
func (r *Registry) InvokeProcedure(ctx context.Context, name string, inputs map[string]string) (map[string]string, ReturnValue) {
	proc, ok := r.procs[name]
	if !ok {
		return nil, RVNoImpl
	}
	return applySignalParams(ctx, r.conds, inputs, func() (map[string]string, ReturnValue) {
		return proc(ctx, inputs)
	})
}

func (r *Registry) assembleInputs(req *httpproto.Request) (map[string]string, error) {
	inputs := make(map[string]string)
	for k, v := range ParseQueryString(req.Query) {
		inputs[k] = v
	}
	ct := strings.ToLower(req.Header("content-type"))
	base, attrs, _ := strings.Cut(ct, ";")
	base = strings.TrimSpace(base)

	switch base {
	case "application/x-www-form-urlencoded":
		for k, v := range ParseFormBody(req.Body) {
			inputs[k] = v
		}
	case "text/tab-separated-values":
		enc := ColEncNone
		for _, attr := range strings.Split(attrs, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(attr), "=")
			if ok && strings.EqualFold(strings.TrimSpace(k), "colenc") {
				enc = ParseColEnc(strings.TrimSpace(v))
			}
		}
		parsed, err := ParseTSV(req.Body, enc)
		if err != nil {
			return nil, err
		}
		for k, v := range parsed {
			inputs[k] = v
		}
	}
	return inputs, nil
}

func (r *Registry) respond(outputs map[string]string, rv ReturnValue, keepAlive bool) *httpproto.Response {
	enc := chooseOutputEncoding(outputs)
	body := EncodeTSV(outputs, enc)
	status := kverrors.ToHTTPStatus(rv)
	resp := httpproto.NewResponse(status, body)
	resp.KeepAlive = keepAlive
	ct := "text/tab-separated-values"
	if enc != ColEncNone {
		ct += "; colenc=" + string(byte(enc))
	}
	resp.SetHeader("content-type", ct)
	return resp
}

func errorResponse(rv ReturnValue, keepAlive bool) *httpproto.Response {
	resp := httpproto.NewResponse(kverrors.ToHTTPStatus(rv), nil)
	resp.KeepAlive = keepAlive
	return resp
}
