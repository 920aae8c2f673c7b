package rpcservice

import (
	"context"
	"encoding/binary"
	"strconv"

	"github.com/entropycollective/quiverdb/internal/kverrors"
	"github.com/entropycollective/quiverdb/internal/kvdb"
	"github.com/entropycollective/quiverdb/internal/rpc"
)

func (s *Service) registerKV(reg *rpc.Registry) {
	reg.Register("set", s.set)
	reg.Register("add", s.add)
	reg.Register("replace", s.replace)
	reg.Register("append", s.append)
	reg.Register("cas", s.cas)
	reg.Register("remove", s.remove)
	reg.Register("get", s.get)
	reg.Register("check", s.check)
	reg.Register("seize", s.seize)
	reg.Register("increment", s.increment)
	reg.Register("increment_double", s.incrementDouble)
	reg.Register("clear", s.clear)
	reg.Register("synchronize", s.synchronize)
}

func (s *Service) set(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	key, ok := in["key"]
	if !ok {
		return nil, rpc.RVInvalid
	}
	err := s.Backend.Set(ctx, []byte(key), []byte(in["value"]))
	return nil, kverrors.ToReturnValue(err)
}

func (s *Service) add(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	key, ok := in["key"]
	if !ok {
		return nil, rpc.RVInvalid
	}
	err := s.Backend.Add(ctx, []byte(key), []byte(in["value"]))
	return nil, kverrors.ToReturnValue(err)
}

// replace sets key only if it already exists, using Accept to check and
// write atomically.
func (s *Service) replace(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	key, ok := in["key"]
	if !ok {
		return nil, rpc.RVInvalid
	}
	value := []byte(in["value"])
	found := false
	err := s.Backend.Accept(ctx, []byte(key), func(existingKey, existingValue []byte) (kvdb.VisitResult, error) {
		if existingValue == nil {
			return kvdb.ResultNOP, nil
		}
		found = true
		return kvdb.ResultReplace(value), nil
	})
	if err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	if !found {
		return nil, rpc.RVLogic
	}
	return nil, rpc.RVSuccess
}

func (s *Service) append(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	key, ok := in["key"]
	if !ok {
		return nil, rpc.RVInvalid
	}
	add := []byte(in["value"])
	err := s.Backend.Accept(ctx, []byte(key), func(existingKey, existingValue []byte) (kvdb.VisitResult, error) {
		merged := append(append([]byte{}, existingValue...), add...)
		return kvdb.ResultReplace(merged), nil
	})
	return nil, kverrors.ToReturnValue(err)
}

func (s *Service) cas(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	key, ok := in["key"]
	if !ok {
		return nil, rpc.RVInvalid
	}
	var oval, nval []byte
	if v, ok := in["oval"]; ok {
		oval = []byte(v)
	}
	if v, ok := in["nval"]; ok {
		nval = []byte(v)
	}
	applied, err := s.Backend.CompareAndSwap(ctx, []byte(key), oval, nval)
	if err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	if !applied {
		return nil, rpc.RVLogic
	}
	return nil, rpc.RVSuccess
}

func (s *Service) remove(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	key, ok := in["key"]
	if !ok {
		return nil, rpc.RVInvalid
	}
	existed, err := s.Backend.Remove(ctx, []byte(key))
	if err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	if !existed {
		return nil, rpc.RVLogic
	}
	return nil, rpc.RVSuccess
}

func (s *Service) get(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	key, ok := in["key"]
	if !ok {
		return nil, rpc.RVInvalid
	}
	value, found, err := s.Backend.Get(ctx, []byte(key))
	if err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	if !found {
		return nil, rpc.RVLogic
	}
	return map[string]string{"value": string(value)}, rpc.RVSuccess
}

func (s *Service) check(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	key, ok := in["key"]
	if !ok {
		return nil, rpc.RVInvalid
	}
	value, found, err := s.Backend.Get(ctx, []byte(key))
	if err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	if !found {
		return nil, rpc.RVLogic
	}
	return map[string]string{"vsiz": strconv.Itoa(len(value))}, rpc.RVSuccess
}

// seize is an atomic get-then-remove, realized with a single Accept call
// so no other writer can interleave between the read and the delete.
func (s *Service) seize(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	key, ok := in["key"]
	if !ok {
		return nil, rpc.RVInvalid
	}
	var seized []byte
	found := false
	err := s.Backend.Accept(ctx, []byte(key), func(existingKey, existingValue []byte) (kvdb.VisitResult, error) {
		if existingValue == nil {
			return kvdb.ResultNOP, nil
		}
		found = true
		seized = append([]byte{}, existingValue...)
		return kvdb.ResultRemove(), nil
	})
	if err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	if !found {
		return nil, rpc.RVLogic
	}
	return map[string]string{"value": string(seized)}, rpc.RVSuccess
}

// increment adds num (default 1) to the 8-byte big-endian integer stored
// at key, creating it from orig (default 0) if absent, and returns the
// new value.
func (s *Service) increment(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	key, ok := in["key"]
	if !ok {
		return nil, rpc.RVInvalid
	}
	delta := int64(1)
	if v, ok := in["num"]; ok {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, rpc.RVInvalid
		}
		delta = parsed
	}
	var orig int64
	if v, ok := in["orig"]; ok {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, rpc.RVInvalid
		}
		orig = parsed
	}
	var result int64
	err := s.Backend.Accept(ctx, []byte(key), func(existingKey, existingValue []byte) (kvdb.VisitResult, error) {
		current := orig
		if existingValue != nil {
			if len(existingValue) != 8 {
				return kvdb.ResultNOP, kverrors.New(kverrors.CodeInvalid, "increment: stored value is not 8 bytes")
			}
			current = int64(binary.BigEndian.Uint64(existingValue))
		}
		result = current + delta
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(result))
		return kvdb.ResultReplace(buf), nil
	})
	if err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	return map[string]string{"num": strconv.FormatInt(result, 10)}, rpc.RVSuccess
}

// incrementDouble adds num (a decimal, default 1) to the 16-byte
// fixed-point value at key: 8 bytes big-endian integer part, 8 bytes
// big-endian fractional part scaled by 1e9.
func (s *Service) incrementDouble(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	key, ok := in["key"]
	if !ok {
		return nil, rpc.RVInvalid
	}
	delta := 1.0
	if v, ok := in["num"]; ok {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, rpc.RVInvalid
		}
		delta = parsed
	}
	orig := 0.0
	if v, ok := in["orig"]; ok {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, rpc.RVInvalid
		}
		orig = parsed
	}
	var result float64
	err := s.Backend.Accept(ctx, []byte(key), func(existingKey, existingValue []byte) (kvdb.VisitResult, error) {
		current := orig
		if existingValue != nil {
			if len(existingValue) != 16 {
				return kvdb.ResultNOP, kverrors.New(kverrors.CodeInvalid, "increment_double: stored value is not 16 bytes")
			}
			current = decodeFixedPoint(existingValue)
		}
		result = current + delta
		return kvdb.ResultReplace(encodeFixedPoint(result)), nil
	})
	if err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	return map[string]string{"num": strconv.FormatFloat(result, 'f', -1, 64)}, rpc.RVSuccess
}

const fixedPointScale = 1e9

func encodeFixedPoint(v float64) []byte {
	intPart := int64(v)
	frac := int64((v - float64(intPart)) * fixedPointScale)
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], uint64(intPart))
	binary.BigEndian.PutUint64(buf[8:], uint64(frac))
	return buf
}

func decodeFixedPoint(buf []byte) float64 {
	intPart := int64(binary.BigEndian.Uint64(buf[:8]))
	frac := int64(binary.BigEndian.Uint64(buf[8:]))
	return float64(intPart) + float64(frac)/fixedPointScale
}

// clear removes every record. It snapshots keys first so Remove never
// runs concurrently with the Iterate walk that found them.
func (s *Service) clear(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	var keys [][]byte
	err := s.Backend.Iterate(ctx, func(key, value []byte) (kvdb.VisitResult, error) {
		keys = append(keys, append([]byte{}, key...))
		return kvdb.ResultNOP, nil
	})
	if err != nil {
		return nil, kverrors.ToReturnValue(err)
	}
	for _, k := range keys {
		if _, err := s.Backend.Remove(ctx, k); err != nil {
			return nil, kverrors.ToReturnValue(err)
		}
	}
	return nil, rpc.RVSuccess
}

// synchronize runs the backend's Vacuum when it implements
// kvdb.Vacuuper. Backends without that hook (e.g. btreestore, whose
// writes are already durable-in-memory by definition) treat it as a
// no-op success rather than ENOIMPL, since "synchronized" is trivially
// true for them.
func (s *Service) synchronize(ctx context.Context, in map[string]string) (map[string]string, rpc.ReturnValue) {
	if v, ok := s.Backend.(kvdb.Vacuuper); ok {
		if err := v.Vacuum(ctx); err != nil {
			return nil, kverrors.ToReturnValue(err)
		}
	}
	return nil, rpc.RVSuccess
}
