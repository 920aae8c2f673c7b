package remoteclient

import (
	"context"
	"encoding/base64"
	"strconv"

	"github.com/entropycollective/quiverdb/internal/rpc"
)

func (c *Client) TuneReplication(ctx context.Context, host string, startTS uint64) error {
	_, rv, err := c.Call(ctx, "tune_replication", map[string]string{
		"host": host,
		"ts":   strconv.FormatUint(startTS, 10),
	})
	if err != nil {
		return err
	}
	return rvError("tune_replication", rv)
}

// UlogEntry is one decoded update-log list entry.
type UlogEntry struct {
	TS  uint64
	Msg string
}

func (c *Client) UlogList(ctx context.Context, fromTS uint64, max int) ([]UlogEntry, error) {
	in := map[string]string{"ts": strconv.FormatUint(fromTS, 10)}
	if max >= 0 {
		in["max"] = strconv.Itoa(max)
	}
	out, rv, err := c.Call(ctx, "ulog_list", in)
	if err != nil {
		return nil, err
	}
	if rv != rpc.RVSuccess {
		return nil, rvError("ulog_list", rv)
	}
	n := atoiOr0(out["num"])
	entries := make([]UlogEntry, 0, n)
	for i := 0; i < n; i++ {
		idx := strconv.Itoa(i)
		ts, _ := strconv.ParseUint(out[idx+".ts"], 10, 64)
		msg, _ := base64.StdEncoding.DecodeString(out[idx+".msg"])
		entries = append(entries, UlogEntry{TS: ts, Msg: string(msg)})
	}
	return entries, nil
}

func (c *Client) UlogRemove(ctx context.Context, beforeTS uint64) (int, error) {
	out, rv, err := c.Call(ctx, "ulog_remove", map[string]string{"ts": strconv.FormatUint(beforeTS, 10)})
	if err != nil {
		return 0, err
	}
	if rv != rpc.RVSuccess {
		return 0, rvError("ulog_remove", rv)
	}
	return atoiOr0(out["num"]), nil
}

// PlayScript invokes a server-registered script procedure by name.
func (c *Client) PlayScript(ctx context.Context, name string, inputs map[string]string) (map[string]string, error) {
	in := make(map[string]string, len(inputs)+1)
	in["name"] = name
	for k, v := range inputs {
		in[k] = v
	}
	out, rv, err := c.Call(ctx, "play_script", in)
	if err != nil {
		return nil, err
	}
	return out, rvError("play_script", rv)
}
