package remoteclient

import (
	"context"
	"strconv"

	"github.com/entropycollective/quiverdb/internal/kverrors"
	"github.com/entropycollective/quiverdb/internal/rpc"
)

func rvError(name string, rv rpc.ReturnValue) error {
	if rv == rpc.RVSuccess {
		return nil
	}
	switch rv {
	case rpc.RVLogic:
		return kverrors.Wrap(kverrors.CodeLogicNoRecord, "remoteclient: "+name, kverrors.ErrNoRecord)
	case rpc.RVInvalid:
		return kverrors.Wrap(kverrors.CodeInvalid, "remoteclient: "+name, kverrors.ErrInvalid)
	case rpc.RVNoImpl:
		return kverrors.Wrap(kverrors.CodeNotImplemented, "remoteclient: "+name, kverrors.ErrNotImplemented)
	case rpc.RVTimeout:
		return kverrors.Wrap(kverrors.CodeTimeout, "remoteclient: "+name, kverrors.ErrTimeout)
	case rpc.RVNetwork:
		return kverrors.Wrap(kverrors.CodeNetwork, "remoteclient: "+name, kverrors.ErrNetwork)
	default:
		return kverrors.New(kverrors.CodeInternal, "remoteclient: "+name+": internal error")
	}
}

func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	out, rv, err := c.Call(ctx, "get", map[string]string{"key": key})
	if err != nil {
		return "", false, err
	}
	if rv == rpc.RVLogic {
		return "", false, nil
	}
	if rv != rpc.RVSuccess {
		return "", false, rvError("get", rv)
	}
	return out["value"], true, nil
}

func (c *Client) Set(ctx context.Context, key, value string) error {
	_, rv, err := c.Call(ctx, "set", map[string]string{"key": key, "value": value})
	if err != nil {
		return err
	}
	return rvError("set", rv)
}

func (c *Client) Add(ctx context.Context, key, value string) error {
	_, rv, err := c.Call(ctx, "add", map[string]string{"key": key, "value": value})
	if err != nil {
		return err
	}
	return rvError("add", rv)
}

func (c *Client) Replace(ctx context.Context, key, value string) error {
	_, rv, err := c.Call(ctx, "replace", map[string]string{"key": key, "value": value})
	if err != nil {
		return err
	}
	return rvError("replace", rv)
}

func (c *Client) Append(ctx context.Context, key, value string) error {
	_, rv, err := c.Call(ctx, "append", map[string]string{"key": key, "value": value})
	if err != nil {
		return err
	}
	return rvError("append", rv)
}

func (c *Client) Cas(ctx context.Context, key, oldValue, newValue string) error {
	_, rv, err := c.Call(ctx, "cas", map[string]string{"key": key, "oval": oldValue, "nval": newValue})
	if err != nil {
		return err
	}
	return rvError("cas", rv)
}

func (c *Client) Remove(ctx context.Context, key string) error {
	_, rv, err := c.Call(ctx, "remove", map[string]string{"key": key})
	if err != nil {
		return err
	}
	return rvError("remove", rv)
}

func (c *Client) Check(ctx context.Context, key string) (size int, ok bool, err error) {
	out, rv, err := c.Call(ctx, "check", map[string]string{"key": key})
	if err != nil {
		return 0, false, err
	}
	if rv == rpc.RVLogic {
		return 0, false, nil
	}
	if rv != rpc.RVSuccess {
		return 0, false, rvError("check", rv)
	}
	n, _ := strconv.Atoi(out["vsiz"])
	return n, true, nil
}

// Seize atomically gets and removes key.
func (c *Client) Seize(ctx context.Context, key string) (string, bool, error) {
	out, rv, err := c.Call(ctx, "seize", map[string]string{"key": key})
	if err != nil {
		return "", false, err
	}
	if rv == rpc.RVLogic {
		return "", false, nil
	}
	if rv != rpc.RVSuccess {
		return "", false, rvError("seize", rv)
	}
	return out["value"], true, nil
}

func (c *Client) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	out, rv, err := c.Call(ctx, "increment", map[string]string{"key": key, "num": strInt(delta)})
	if err != nil {
		return 0, err
	}
	if rv != rpc.RVSuccess {
		return 0, rvError("increment", rv)
	}
	n, _ := strconv.ParseInt(out["num"], 10, 64)
	return n, nil
}

func (c *Client) IncrementDouble(ctx context.Context, key string, delta float64) (float64, error) {
	out, rv, err := c.Call(ctx, "increment_double", map[string]string{"key": key, "num": strconv.FormatFloat(delta, 'f', -1, 64)})
	if err != nil {
		return 0, err
	}
	if rv != rpc.RVSuccess {
		return 0, rvError("increment_double", rv)
	}
	n, _ := strconv.ParseFloat(out["num"], 64)
	return n, nil
}

func (c *Client) Clear(ctx context.Context) error {
	_, rv, err := c.Call(ctx, "clear", nil)
	if err != nil {
		return err
	}
	return rvError("clear", rv)
}

func (c *Client) Synchronize(ctx context.Context) error {
	_, rv, err := c.Call(ctx, "synchronize", nil)
	if err != nil {
		return err
	}
	return rvError("synchronize", rv)
}

func (c *Client) Vacuum(ctx context.Context) error {
	_, rv, err := c.Call(ctx, "vacuum", nil)
	if err != nil {
		return err
	}
	return rvError("vacuum", rv)
}

// Report and Status both return the server's process-level counters.
func (c *Client) Report(ctx context.Context) (map[string]string, error) {
	out, rv, err := c.Call(ctx, "report", nil)
	if err != nil {
		return nil, err
	}
	return out, rvError("report", rv)
}

func (c *Client) Status(ctx context.Context) (map[string]string, error) {
	out, rv, err := c.Call(ctx, "status", nil)
	if err != nil {
		return nil, err
	}
	return out, rvError("status", rv)
}
