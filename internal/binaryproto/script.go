package binaryproto

import (
	"context"

	"github.com/entropycollective/quiverdb/internal/rpc"
	"github.com/entropycollective/quiverdb/internal/session"
)

// handlePlayScript runs a named procedure the same way /rpc/ does, but
// framed as: name-size (u32), name bytes, input-count (u32), then
// input-count (key-size u32, value-size u32, key bytes, value bytes)
// pairs. The reply mirrors the request shape with the procedure's
// outputs, preceded by a single status byte (0 success, 1 otherwise).
func (h *Handler) handlePlayScript(ctx context.Context, sess *session.Session, noReply bool) error {
	nameSize, err := readU32(sess)
	if err != nil {
		return err
	}
	nameBytes, err := sess.Receive(int(nameSize))
	if err != nil {
		return err
	}
	name := string(nameBytes)

	pairCount, err := readU32(sess)
	if err != nil {
		return err
	}
	inputs := make(map[string]string, pairCount)
	for i := uint32(0); i < pairCount; i++ {
		keySize, err := readU32(sess)
		if err != nil {
			return err
		}
		valSize, err := readU32(sess)
		if err != nil {
			return err
		}
		key, err := sess.Receive(int(keySize))
		if err != nil {
			return err
		}
		val, err := sess.Receive(int(valSize))
		if err != nil {
			return err
		}
		inputs[string(key)] = string(val)
	}

	if h.Scripter == nil {
		return h.writeError(sess, noReply, "play-script: no procedure registry configured")
	}
	outputs, rv := h.Scripter.InvokeProcedure(ctx, name, inputs)
	if noReply {
		return nil
	}

	status := byte(0)
	if rv != rpc.RVSuccess {
		status = 1
	}
	buf := frameHeader(MagicPlayScript, 0)
	buf = append(buf, status)
	buf = appendU32(buf, uint32(len(outputs)))
	for k, v := range outputs {
		buf = appendU32(buf, uint32(len(k)))
		buf = appendU32(buf, uint32(len(v)))
		buf = append(buf, k...)
		buf = append(buf, v...)
	}
	return sess.Send(buf)
}
