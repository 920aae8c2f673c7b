package remoteclient

import (
	"context"
	"strconv"

	"github.com/entropycollective/quiverdb/internal/kverrors"
	"github.com/entropycollective/quiverdb/internal/rpc"
)

// Cursor proxies one server-side cursor, identified by a 63-bit ID this
// client minted. On destruction the caller must call Delete to release
// the server-side state; if the owning Client is simply dropped instead,
// the cursor is left detached server-side rather than remotely deleted,
// matching the documented lifecycle rule.
type Cursor struct {
	client *Client
	id     int64
}

// NewCursor mints a fresh cursor handle. No request is sent until the
// first Jump/JumpBack call.
func (c *Client) NewCursor() *Cursor {
	return &Cursor{client: c, id: c.nextCursorID()}
}

func (cur *Cursor) call(ctx context.Context, proc string, extra map[string]string) (map[string]string, error) {
	in := map[string]string{"cur": strconv.FormatInt(cur.id, 10)}
	for k, v := range extra {
		in[k] = v
	}
	out, rv, err := cur.client.Call(ctx, proc, in)
	if err != nil {
		return nil, err
	}
	if rv == rpc.RVLogic {
		return nil, kverrors.ErrCursorPastEnd
	}
	if rv != rpc.RVSuccess {
		return nil, rvError(proc, rv)
	}
	return out, nil
}

// Jump moves the cursor to the first key >= key.
func (cur *Cursor) Jump(ctx context.Context, key string) error {
	_, err := cur.call(ctx, "cur_jump", map[string]string{"key": key})
	return err
}

// JumpFirst moves the cursor to the first record in comparator order.
func (cur *Cursor) JumpFirst(ctx context.Context) error {
	_, err := cur.call(ctx, "cur_jump", nil)
	return err
}

// JumpBack moves the cursor to the last key <= key.
func (cur *Cursor) JumpBack(ctx context.Context, key string) error {
	_, err := cur.call(ctx, "cur_jump_back", map[string]string{"key": key})
	return err
}

// JumpBackLast moves the cursor to the last record in comparator order.
func (cur *Cursor) JumpBackLast(ctx context.Context) error {
	_, err := cur.call(ctx, "cur_jump_back", nil)
	return err
}

func (cur *Cursor) Step(ctx context.Context) error {
	_, err := cur.call(ctx, "cur_step", nil)
	return err
}

func (cur *Cursor) StepBack(ctx context.Context) error {
	_, err := cur.call(ctx, "cur_step_back", nil)
	return err
}

func (cur *Cursor) SetValue(ctx context.Context, value string) error {
	_, err := cur.call(ctx, "cur_set_value", map[string]string{"value": value})
	return err
}

func (cur *Cursor) Remove(ctx context.Context) error {
	_, err := cur.call(ctx, "cur_remove", nil)
	return err
}

func (cur *Cursor) GetKey(ctx context.Context) (string, error) {
	out, err := cur.call(ctx, "cur_get_key", nil)
	if err != nil {
		return "", err
	}
	return out["key"], nil
}

func (cur *Cursor) GetValue(ctx context.Context) (string, error) {
	out, err := cur.call(ctx, "cur_get_value", nil)
	if err != nil {
		return "", err
	}
	return out["value"], nil
}

func (cur *Cursor) Get(ctx context.Context) (key, value string, err error) {
	out, err := cur.call(ctx, "cur_get", nil)
	if err != nil {
		return "", "", err
	}
	return out["key"], out["value"], nil
}

// Seize atomically reads and removes the cursor's current record.
func (cur *Cursor) Seize(ctx context.Context) (key, value string, err error) {
	out, err := cur.call(ctx, "cur_seize", nil)
	if err != nil {
		return "", "", err
	}
	return out["key"], out["value"], nil
}

// Delete releases the server-side cursor state.
func (cur *Cursor) Delete(ctx context.Context) error {
	_, err := cur.call(ctx, "cur_delete", nil)
	return err
}

// VisitInstruction tells StepWithVisitor what to do to the cursor's
// current record before advancing: leave it alone, replace its value,
// or remove it.
type VisitInstruction struct {
	Remove  bool
	Replace *string
}

// StepWithVisitor lets the caller replace or remove the record the
// cursor currently sits on in the same round trip as the step, instead
// of a separate cur_set_value/cur_remove call followed by cur_step.
func (cur *Cursor) StepWithVisitor(ctx context.Context, instr VisitInstruction) error {
	extra := map[string]string{}
	switch {
	case instr.Remove:
		extra["visit"] = "remove"
	case instr.Replace != nil:
		extra["visit"] = "replace"
		extra["value"] = *instr.Replace
	}
	_, err := cur.call(ctx, "cur_step", extra)
	return err
}
