package remoteclient

import (
	"context"
	"strconv"

	"github.com/entropycollective/quiverdb/internal/rpc"
)

func (c *Client) SetBulk(ctx context.Context, records map[string]string) (int, error) {
	in := make(map[string]string, len(records))
	for k, v := range records {
		in["_"+k] = v
	}
	out, rv, err := c.Call(ctx, "set_bulk", in)
	if err != nil {
		return 0, err
	}
	if rv != rpc.RVSuccess {
		return 0, rvError("set_bulk", rv)
	}
	return atoiOr0(out["num"]), nil
}

func (c *Client) RemoveBulk(ctx context.Context, keys []string) (int, error) {
	in := make(map[string]string, len(keys))
	for _, k := range keys {
		in["_"+k] = ""
	}
	out, rv, err := c.Call(ctx, "remove_bulk", in)
	if err != nil {
		return 0, err
	}
	if rv != rpc.RVSuccess {
		return 0, rvError("remove_bulk", rv)
	}
	return atoiOr0(out["num"]), nil
}

func (c *Client) GetBulk(ctx context.Context, keys []string) (map[string]string, error) {
	in := make(map[string]string, len(keys))
	for _, k := range keys {
		in["_"+k] = ""
	}
	out, rv, err := c.Call(ctx, "get_bulk", in)
	if err != nil {
		return nil, err
	}
	if rv != rpc.RVSuccess {
		return nil, rvError("get_bulk", rv)
	}
	result := make(map[string]string, len(out))
	for k, v := range out {
		if k == "num" {
			continue
		}
		if len(k) > 0 && k[0] == '_' {
			result[k[1:]] = v
		}
	}
	return result, nil
}

func atoiOr0(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
