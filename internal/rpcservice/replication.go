package rpcservice

import (
	"context"
	"encoding/base64"
	"strconv"
	"sync"

	"github.com/entropycollective/quiverdb/internal/kverrors"
	"github.com/entropycollective/quiverdb/internal/replication"
	"github.com/entropycollective/quiverdb/internal/rpc"
)

func (s *Service) registerReplication(reg *rpc.Registry) {
	reg.Register("tune_replication", s.tuneReplication)
	reg.Register("ulog_list", s.ulogList)
	reg.Register("ulog_remove", s.ulogRemove)
}

var tuningMu sync.Mutex

// lastTuning records the most recent tune_replication request; applying
// it to an actual update-log shipper is outside this core's scope (the
// log is an opaque byte-message boundary it never interprets), so this
// only records the intent for an operator or external shipper to read.
var lastTuning replication.Tuning

func (s *Service) tuneReplication(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	var ts uint64
	if v, ok := in["ts"]; ok {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, rpc.RVInvalid
		}
		ts = parsed
	}
	tuningMu.Lock()
	lastTuning = replication.Tuning{SourceAddr: in["host"], StartTS: ts}
	tuningMu.Unlock()
	return nil, rpc.RVSuccess
}

func (s *Service) ulogList(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	if s.Log == nil {
		return nil, rpc.RVNoImpl
	}
	var from uint64
	if v, ok := in["ts"]; ok {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, rpc.RVInvalid
		}
		from = parsed
	}
	limit := 0
	if v, ok := in["max"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			limit = n
		}
	}
	entries, err := s.Log.List(from, limit)
	if err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	out := make(map[string]string, len(entries)*2+1)
	for i, e := range entries {
		idx := strconv.Itoa(i)
		out[idx+".ts"] = strconv.FormatUint(e.TS, 10)
		out[idx+".msg"] = base64.StdEncoding.EncodeToString(e.Msg)
	}
	out["num"] = strconv.Itoa(len(entries))
	return out, rpc.RVSuccess
}

func (s *Service) ulogRemove(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	if s.Log == nil {
		return nil, rpc.RVNoImpl
	}
	var before uint64
	if v, ok := in["ts"]; ok {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, rpc.RVInvalid
		}
		before = parsed
	}
	removed, err := s.Log.Remove(before)
	if err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	return map[string]string{"num": strconv.Itoa(removed)}, rpc.RVSuccess
}
