package rpcservice

import (
	"context"

	"github.com/entropycollective/quiverdb/internal/rpc"
)

// playScript implements the play_script RPC procedure: it forwards to
// whatever procedure "name" names on the same registry, so a scripted
// call behaves identically whether it arrives over /rpc/play_script or
// the binary protocol's play-script opcode (internal/binaryproto shares
// rpc.Registry.InvokeProcedure for exactly this reason).
func (s *Service) playScript(reg *rpc.Registry) rpc.Procedure {
	return func(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
		name, ok := in["name"]
		if !ok {
			return nil, rpc.RVInvalid
		}
		forwarded := make(map[string]string, len(in))
		for k, v := range in {
			if k == "name" {
				continue
			}
			forwarded[k] = v
		}
		return reg.InvokeProcedure(ctx, name, forwarded)
	}
}
