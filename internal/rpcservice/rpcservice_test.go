package rpcservice_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/entropycollective/quiverdb/internal/kvdb/btreestore"
	"github.com/entropycollective/quiverdb/internal/rpc"
	"github.com/entropycollective/quiverdb/internal/rpcservice"
)

func newRegistry(t *testing.T) *rpc.Registry {
	t.Helper()
	reg := rpc.NewRegistry()
	rpcservice.Register(reg, btreestore.New(), nil, nil)
	return reg
}

func TestSetGetRemove(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	_, rv := reg.InvokeProcedure(ctx, "set", map[string]string{"key": "a", "value": "1"})
	require.Equal(t, rpc.RVSuccess, rv)

	out, rv := reg.InvokeProcedure(ctx, "get", map[string]string{"key": "a"})
	require.Equal(t, rpc.RVSuccess, rv)
	require.Equal(t, "1", out["value"])

	_, rv = reg.InvokeProcedure(ctx, "remove", map[string]string{"key": "a"})
	require.Equal(t, rpc.RVSuccess, rv)

	_, rv = reg.InvokeProcedure(ctx, "get", map[string]string{"key": "a"})
	require.Equal(t, rpc.RVLogic, rv)
}

func TestIncrementCreatesThenAccumulates(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	out, rv := reg.InvokeProcedure(ctx, "increment", map[string]string{"key": "ctr", "num": "5"})
	require.Equal(t, rpc.RVSuccess, rv)
	require.Equal(t, "5", out["num"])

	out, rv = reg.InvokeProcedure(ctx, "increment", map[string]string{"key": "ctr", "num": "3"})
	require.Equal(t, rpc.RVSuccess, rv)
	require.Equal(t, "8", out["num"])
}

func TestSetBulkAndGetBulk(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	out, rv := reg.InvokeProcedure(ctx, "set_bulk", map[string]string{"_a": "1", "_b": "2"})
	require.Equal(t, rpc.RVSuccess, rv)
	require.Equal(t, "2", out["num"])

	out, rv = reg.InvokeProcedure(ctx, "get_bulk", map[string]string{"_a": "", "_b": "", "_c": ""})
	require.Equal(t, rpc.RVSuccess, rv)
	require.Equal(t, "2", out["num"])
	require.Equal(t, "1", out["_a"])
	require.Equal(t, "2", out["_b"])
	require.NotContains(t, out, "_c")
}

func TestMatchPrefixRespectsMax(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	for _, k := range []string{"a1", "a2", "a3", "b1"} {
		_, rv := reg.InvokeProcedure(ctx, "set", map[string]string{"key": k, "value": "x"})
		require.Equal(t, rpc.RVSuccess, rv)
	}

	out, rv := reg.InvokeProcedure(ctx, "match_prefix", map[string]string{"prefix": "a", "max": "2"})
	require.Equal(t, rpc.RVSuccess, rv)
	require.Equal(t, "2", out["num"])
}

func TestCursorStepWithVisitRemove(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		_, rv := reg.InvokeProcedure(ctx, "set", map[string]string{"key": k, "value": k})
		require.Equal(t, rpc.RVSuccess, rv)
	}

	_, rv := reg.InvokeProcedure(ctx, "cur_jump", map[string]string{"cur": "1"})
	require.Equal(t, rpc.RVSuccess, rv)

	out, rv := reg.InvokeProcedure(ctx, "cur_get_key", map[string]string{"cur": "1"})
	require.Equal(t, rpc.RVSuccess, rv)
	require.Equal(t, "a", out["key"])

	_, rv = reg.InvokeProcedure(ctx, "cur_step", map[string]string{"cur": "1", "visit": "remove"})
	require.Equal(t, rpc.RVSuccess, rv)

	_, rv = reg.InvokeProcedure(ctx, "get", map[string]string{"key": "a"})
	require.Equal(t, rpc.RVLogic, rv)
}
