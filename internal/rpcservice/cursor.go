package rpcservice

import (
	"context"
	"strconv"
	"sync"

	"github.com/entropycollective/quiverdb/internal/kverrors"
	"github.com/entropycollective/quiverdb/internal/kvdb"
	"github.com/entropycollective/quiverdb/internal/rpc"
)

// cursorRegistry holds the server-side cursor state referenced by the
// client's 63-bit CUR handles: the client mints the ID, the server
// lazily opens a Cursor for the first request that uses it
// and keeps it pinned until cur_delete.
type cursorRegistry struct {
	mu      sync.Mutex
	cursors map[int64]kvdb.Cursor
}

func newCursorRegistry() *cursorRegistry {
	return &cursorRegistry{cursors: make(map[int64]kvdb.Cursor)}
}

func (r *cursorRegistry) get(id int64, backend kvdb.Backend) kvdb.Cursor {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cursors[id]
	if !ok {
		c = backend.Cursor()
		r.cursors[id] = c
	}
	return c
}

func (r *cursorRegistry) delete(id int64) (kvdb.Cursor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cursors[id]
	if ok {
		delete(r.cursors, id)
	}
	return c, ok
}

func cursorID(in map[string]string) (int64, bool) {
	v, ok := in["cur"]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (s *Service) registerCursor(reg *rpc.Registry) {
	reg.Register("cur_jump", s.curJump)
	reg.Register("cur_jump_back", s.curJumpBack)
	reg.Register("cur_step", s.curStep)
	reg.Register("cur_step_back", s.curStepBack)
	reg.Register("cur_set_value", s.curSetValue)
	reg.Register("cur_remove", s.curRemove)
	reg.Register("cur_get_key", s.curGetKey)
	reg.Register("cur_get_value", s.curGetValue)
	reg.Register("cur_get", s.curGet)
	reg.Register("cur_seize", s.curSeize)
	reg.Register("cur_delete", s.curDelete)
}

func (s *Service) curJump(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	id, ok := cursorID(in)
	if !ok {
		return nil, rpc.RVInvalid
	}
	cur := s.cursors.get(id, s.Backend)
	var key []byte
	if v, ok := in["key"]; ok {
		key = []byte(v)
	}
	if err := cur.Jump(ctx, key); err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	return nil, rpc.RVSuccess
}

func (s *Service) curJumpBack(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	id, ok := cursorID(in)
	if !ok {
		return nil, rpc.RVInvalid
	}
	cur := s.cursors.get(id, s.Backend)
	var key []byte
	if v, ok := in["key"]; ok {
		key = []byte(v)
	}
	if err := cur.JumpBack(ctx, key); err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	return nil, rpc.RVSuccess
}

// curStep advances the cursor. If "visit" names "replace" or "remove",
// it first applies that instruction to the record the cursor currently
// sits on, so a client can edit-then-advance in one round trip (the
// remote client's Cursor.StepWithVisitor).
func (s *Service) curStep(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	id, ok := cursorID(in)
	if !ok {
		return nil, rpc.RVInvalid
	}
	cur := s.cursors.get(id, s.Backend)
	switch in["visit"] {
	case "replace":
		if err := cur.SetValue(ctx, []byte(in["value"])); err != nil {
			return nil, kverrors.ToReturnValue(err)
		}
	case "remove":
		key, _, _, err := cur.Get(ctx)
		if err != nil {
			return nil, kverrors.ToReturnValue(err)
		}
		if err := cur.Remove(ctx); err != nil {
			return nil, kverrors.ToReturnValue(err)
		}
		// The removed key is gone, so jumping to it lands on the next one.
		if err := cur.Jump(ctx, key); err != nil {
			return nil, kverrors.ToReturnValue(err)
		}
		return nil, rpc.RVSuccess
	}
	if err := cur.Step(ctx); err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	return nil, rpc.RVSuccess
}

func (s *Service) curStepBack(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	id, ok := cursorID(in)
	if !ok {
		return nil, rpc.RVInvalid
	}
	cur := s.cursors.get(id, s.Backend)
	if err := cur.StepBack(ctx); err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	return nil, rpc.RVSuccess
}

func (s *Service) curSetValue(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	id, ok := cursorID(in)
	if !ok {
		return nil, rpc.RVInvalid
	}
	cur := s.cursors.get(id, s.Backend)
	if err := cur.SetValue(ctx, []byte(in["value"])); err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	return nil, rpc.RVSuccess
}

func (s *Service) curRemove(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	id, ok := cursorID(in)
	if !ok {
		return nil, rpc.RVInvalid
	}
	cur := s.cursors.get(id, s.Backend)
	if err := cur.Remove(ctx); err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	return nil, rpc.RVSuccess
}

func (s *Service) curGetKey(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	id, ok := cursorID(in)
	if !ok {
		return nil, rpc.RVInvalid
	}
	cur := s.cursors.get(id, s.Backend)
	key, _, found, err := cur.Get(ctx)
	if err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	if !found {
		return nil, rpc.RVLogic
	}
	return map[string]string{"key": string(key)}, rpc.RVSuccess
}

func (s *Service) curGetValue(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	id, ok := cursorID(in)
	if !ok {
		return nil, rpc.RVInvalid
	}
	cur := s.cursors.get(id, s.Backend)
	_, value, found, err := cur.Get(ctx)
	if err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	if !found {
		return nil, rpc.RVLogic
	}
	return map[string]string{"value": string(value)}, rpc.RVSuccess
}

func (s *Service) curGet(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	id, ok := cursorID(in)
	if !ok {
		return nil, rpc.RVInvalid
	}
	cur := s.cursors.get(id, s.Backend)
	key, value, found, err := cur.Get(ctx)
	if err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	if !found {
		return nil, rpc.RVLogic
	}
	return map[string]string{"key": string(key), "value": string(value)}, rpc.RVSuccess
}

// curSeize reads the cursor's current record, removes it, and steps
// forward so a following cur_seize/cur_get continues from the next key.
func (s *Service) curSeize(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	id, ok := cursorID(in)
	if !ok {
		return nil, rpc.RVInvalid
	}
	cur := s.cursors.get(id, s.Backend)
	key, value, found, err := cur.Get(ctx)
	if err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	if !found {
		return nil, rpc.RVLogic
	}
	if err := cur.Remove(ctx); err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	if err := cur.Jump(ctx, key); err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	return map[string]string{"key": string(key), "value": string(value)}, rpc.RVSuccess
}

// curDelete releases the server-side cursor state; it is a success even
// when the ID is unknown, matching the client's "detach on owner
// destruction, no remote delete" lifecycle rule (nothing to release).
func (s *Service) curDelete(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	id, ok := cursorID(in)
	if !ok {
		return nil, rpc.RVInvalid
	}
	if cur, ok := s.cursors.delete(id); ok {
		cur.Close()
	}
	return nil, rpc.RVSuccess
}

