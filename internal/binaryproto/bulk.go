package binaryproto

import (
	"context"

	"github.com/entropycollective/quiverdb/internal/session"
)

// BulkRecord is one wire record for set-bulk/remove-bulk/get-bulk.
// Expiration rides on the wire for protocol compatibility but is not
// enforced by any current kvdb.Backend (none implements TTL).
type BulkRecord struct {
	DBIndex    uint16
	Key        []byte
	Value      []byte // absent (nil) for remove-bulk requests and get-bulk requests
	Expiration int64
}

func readSetRecord(sess *session.Session) (BulkRecord, error) {
	var rec BulkRecord
	dbIndex, err := readU16(sess)
	if err != nil {
		return rec, err
	}
	keySize, err := readU32(sess)
	if err != nil {
		return rec, err
	}
	valSize, err := readU32(sess)
	if err != nil {
		return rec, err
	}
	expiration, err := readI64(sess)
	if err != nil {
		return rec, err
	}
	key, err := sess.Receive(int(keySize))
	if err != nil {
		return rec, err
	}
	value, err := sess.Receive(int(valSize))
	if err != nil {
		return rec, err
	}
	rec.DBIndex, rec.Key, rec.Value, rec.Expiration = dbIndex, key, value, expiration
	return rec, nil
}

func readKeyOnlyRecord(sess *session.Session) (BulkRecord, error) {
	var rec BulkRecord
	dbIndex, err := readU16(sess)
	if err != nil {
		return rec, err
	}
	keySize, err := readU32(sess)
	if err != nil {
		return rec, err
	}
	key, err := sess.Receive(int(keySize))
	if err != nil {
		return rec, err
	}
	rec.DBIndex, rec.Key = dbIndex, key
	return rec, nil
}

func writeGetResultRecord(buf []byte, rec BulkRecord) []byte {
	buf = appendU16(buf, rec.DBIndex)
	buf = appendU32(buf, uint32(len(rec.Key)))
	buf = appendU32(buf, uint32(len(rec.Value)))
	buf = appendI64(buf, rec.Expiration)
	buf = append(buf, rec.Key...)
	buf = append(buf, rec.Value...)
	return buf
}

func (h *Handler) handleSetBulk(ctx context.Context, sess *session.Session, noReply bool) error {
	count, err := readU32(sess)
	if err != nil {
		return err
	}
	var applied uint32
	for i := uint32(0); i < count; i++ {
		rec, err := readSetRecord(sess)
		if err != nil {
			return err
		}
		if rec.DBIndex != h.DBIndex {
			continue
		}
		if err := h.Backend.Set(ctx, rec.Key, rec.Value); err != nil {
			h.Logger.Error(err, "set-bulk: set failed")
			continue
		}
		applied++
	}
	if noReply {
		return nil
	}
	buf := frameHeader(MagicSetBulk, 0)
	buf = appendU32(buf, applied)
	return sess.Send(buf)
}

func (h *Handler) handleRemoveBulk(ctx context.Context, sess *session.Session, noReply bool) error {
	count, err := readU32(sess)
	if err != nil {
		return err
	}
	var removed uint32
	for i := uint32(0); i < count; i++ {
		rec, err := readKeyOnlyRecord(sess)
		if err != nil {
			return err
		}
		if rec.DBIndex != h.DBIndex {
			continue
		}
		existed, err := h.Backend.Remove(ctx, rec.Key)
		if err != nil {
			h.Logger.Error(err, "remove-bulk: remove failed")
			continue
		}
		if existed {
			removed++
		}
	}
	if noReply {
		return nil
	}
	buf := frameHeader(MagicRemoveBulk, 0)
	buf = appendU32(buf, removed)
	return sess.Send(buf)
}

func (h *Handler) handleGetBulk(ctx context.Context, sess *session.Session, noReply bool) error {
	count, err := readU32(sess)
	if err != nil {
		return err
	}
	results := make([]BulkRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		rec, err := readKeyOnlyRecord(sess)
		if err != nil {
			return err
		}
		if rec.DBIndex != h.DBIndex {
			continue
		}
		value, ok, err := h.Backend.Get(ctx, rec.Key)
		if err != nil {
			h.Logger.Error(err, "get-bulk: get failed")
			continue
		}
		if !ok {
			continue
		}
		results = append(results, BulkRecord{DBIndex: rec.DBIndex, Key: rec.Key, Value: value})
	}
	if noReply {
		return nil
	}
	buf := frameHeader(MagicGetBulk, 0)
	buf = appendU32(buf, uint32(len(results)))
	for _, rec := range results {
		buf = writeGetResultRecord(buf, rec)
	}
	return sess.Send(buf)
}
