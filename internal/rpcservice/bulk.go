package rpcservice

import (
	"context"
	"strconv"
	"strings"

	"github.com/entropycollective/quiverdb/internal/kverrors"
	"github.com/entropycollective/quiverdb/internal/rpc"
)

// Bulk operations follow the RPC-layer convention: any input whose name
// starts with "_" names one record, the key being the name with the
// leading underscore stripped and the value being the param's value
// (ignored for remove_bulk and get_bulk, which only care about the
// stripped key). Non-underscore params (e.g. "atomic") are control
// parameters, currently unused here.

func (s *Service) registerBulk(reg *rpc.Registry) {
	reg.Register("set_bulk", s.setBulk)
	reg.Register("remove_bulk", s.removeBulk)
	reg.Register("get_bulk", s.getBulk)
}

func bulkKeys(in map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range in {
		if strings.HasPrefix(k, "_") {
			out[k[1:]] = v
		}
	}
	return out
}

func (s *Service) setBulk(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	applied := 0
	for key, value := range bulkKeys(in) {
		if err := s.Backend.Set(ctx, []byte(key), []byte(value)); err != nil {
			return nil, kverrors.ToReturnValue(err)
		}
		applied++
	}
	return map[string]string{"num": strconv.Itoa(applied)}, rpc.RVSuccess
}

func (s *Service) removeBulk(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	removed := 0
	for key := range bulkKeys(in) {
		existed, err := s.Backend.Remove(ctx, []byte(key))
		if err != nil {
			return nil, kverrors.ToReturnValue(err)
		}
		if existed {
			removed++
		}
	}
	return map[string]string{"num": strconv.Itoa(removed)}, rpc.RVSuccess
}

func (s *Service) getBulk(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	out := make(map[string]string)
	found := 0
	for key := range bulkKeys(in) {
		value, ok, err := s.Backend.Get(ctx, []byte(key))
		if err != nil {
			return nil, kverrors.ToReturnValue(err)
		}
		if !ok {
			continue
		}
		out["_"+key] = string(value)
		found++
	}
	out["num"] = strconv.Itoa(found)
	return out, rpc.RVSuccess
}
