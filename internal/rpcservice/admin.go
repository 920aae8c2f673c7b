package rpcservice

import (
	"context"
	"strconv"

	"github.com/entropycollective/quiverdb/internal/kverrors"
	"github.com/entropycollective/quiverdb/internal/kvdb"
	"github.com/entropycollective/quiverdb/internal/rpc"
)

func (s *Service) registerAdmin(reg *rpc.Registry) {
	reg.Register("report", s.report)
	reg.Register("status", s.status)
	reg.Register("vacuum", s.vacuum)
}

// report exposes process-level counters: connection count, task count,
// uptime, and the backend's record count.
func (s *Service) report(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	return s.counters(ctx)
}

// status is a lighter-weight health probe under its own name; there is
// no cheaper source for these numbers so it shares report's implementation.
func (s *Service) status(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	return s.counters(ctx)
}

func (s *Service) counters(ctx context.Context) (map[string]string, rpc.ReturnValue) {
	out := make(map[string]string)
	if s.Server != nil {
		stats := s.Server.Stats()
		out["conn"] = strconv.Itoa(stats.ConnectionCount)
		out["task"] = strconv.Itoa(stats.TaskCount)
		out["uptime"] = strconv.FormatFloat(stats.Uptime.Seconds(), 'f', 6, 64)
	}
	if s.Backend != nil {
		count, err := s.Backend.Count(ctx)
		if err != nil {
			return nil, kverrors.ToReturnValue(err)
		}
		out["count"] = strconv.FormatInt(count, 10)
	}
	return out, rpc.RVSuccess
}

func (s *Service) vacuum(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	v, ok := s.Backend.(kvdb.Vacuuper)
	if !ok {
		return nil, rpc.RVNoImpl
	}
	if err := v.Vacuum(ctx); err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	return nil, rpc.RVSuccess
}
