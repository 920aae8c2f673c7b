package remoteclient

import (
	"context"
	"sort"
	"strconv"

	"github.com/entropycollective/quiverdb/internal/rpc"
)

// orderedKeys reconstructs result order from the server's numbered
// output fields ("0", "1", ...), the integer order field the wire
// format associates with each returned key.
func orderedKeys(out map[string]string) []string {
	type indexed struct {
		idx int
		key string
	}
	var entries []indexed
	for k, v := range out {
		if k == "num" {
			continue
		}
		idx, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		entries = append(entries, indexed{idx, v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].idx < entries[j].idx })
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}
	return keys
}

func (c *Client) MatchPrefix(ctx context.Context, prefix string, max int) ([]string, error) {
	in := map[string]string{"prefix": prefix}
	if max >= 0 {
		in["max"] = strconv.Itoa(max)
	}
	out, rv, err := c.Call(ctx, "match_prefix", in)
	if err != nil {
		return nil, err
	}
	if rv != rpc.RVSuccess {
		return nil, rvError("match_prefix", rv)
	}
	return orderedKeys(out), nil
}

func (c *Client) MatchRegex(ctx context.Context, pattern string, max int) ([]string, error) {
	in := map[string]string{"regex": pattern}
	if max >= 0 {
		in["max"] = strconv.Itoa(max)
	}
	out, rv, err := c.Call(ctx, "match_regex", in)
	if err != nil {
		return nil, err
	}
	if rv != rpc.RVSuccess {
		return nil, rvError("match_regex", rv)
	}
	return orderedKeys(out), nil
}

func (c *Client) MatchSimilar(ctx context.Context, origin string, editDistance, max int) ([]string, error) {
	in := map[string]string{"origin": origin, "range": strconv.Itoa(editDistance)}
	if max >= 0 {
		in["max"] = strconv.Itoa(max)
	}
	out, rv, err := c.Call(ctx, "match_similar", in)
	if err != nil {
		return nil, err
	}
	if rv != rpc.RVSuccess {
		return nil, rvError("match_similar", rv)
	}
	return orderedKeys(out), nil
}
