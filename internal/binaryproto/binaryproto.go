// Package binaryproto implements the magic-byte binary dispatch layer: a
// worker inspects the first byte of a request to route it to one of NOP,
// replication stream, play-script, set-bulk, remove-bulk, get-bulk, or
// error handling, without the HTTP/RPC framing overhead.
package binaryproto

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/entropycollective/quiverdb/internal/kvdb"
	"github.com/entropycollective/quiverdb/internal/logging"
	"github.com/entropycollective/quiverdb/internal/rpc"
	"github.com/entropycollective/quiverdb/internal/session"
)

// Magic identifies the kind of binary request/response framed on the wire.
type Magic byte

const (
	MagicNOP        Magic = 0xB0
	MagicReplStream Magic = 0xB1
	MagicPlayScript Magic = 0xB4
	MagicSetBulk    Magic = 0xB8
	MagicRemoveBulk Magic = 0xB9
	MagicGetBulk    Magic = 0xBA
	MagicError      Magic = 0xBF
)

func (m Magic) String() string {
	switch m {
	case MagicNOP:
		return "NOP"
	case MagicReplStream:
		return "REPLSTREAM"
	case MagicPlayScript:
		return "PLAYSCRIPT"
	case MagicSetBulk:
		return "SETBULK"
	case MagicRemoveBulk:
		return "REMOVEBULK"
	case MagicGetBulk:
		return "GETBULK"
	case MagicError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FlagNoReply is bit 0 of the flag word following the magic byte: the
// server must not write any response bytes for this request.
const FlagNoReply uint32 = 1 << 0

// Streamer serves the replication-stream protocol on an already-accepted
// session: it acks the client's handshake, then pushes entry and
// heartbeat frames until ctx is canceled or a send fails.
// internal/replication supplies the concrete implementation; binaryproto
// only depends on this narrow capability.
type Streamer interface {
	Serve(ctx context.Context, sess *session.Session, fromTS uint64) error
}

// Scripter runs a named procedure the way the RPC layer does, letting
// play-script requests share dispatch logic with /rpc/. *rpc.Registry
// satisfies this directly via InvokeProcedure.
type Scripter interface {
	InvokeProcedure(ctx context.Context, name string, inputs map[string]string) (outputs map[string]string, rv rpc.ReturnValue)
}

// Handler dispatches binary-framed requests against a backend, an
// optional streamer, and an optional scripter.
type Handler struct {
	Backend  kvdb.Backend
	DBIndex  uint16
	Streamer Streamer
	Scripter Scripter
	Logger   *logging.Logger
}

// NewHandler builds a Handler with a logger derived from the package
// component name if log is nil.
func NewHandler(backend kvdb.Backend, streamer Streamer, scripter Scripter, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.Global().WithComponent("binaryproto")
	}
	return &Handler{Backend: backend, Streamer: streamer, Scripter: scripter, Logger: log}
}

// Dispatch consumes exactly one binary request from sess (magic byte
// already readable) and, unless NOREPLY is set, writes exactly one
// response. It returns an error only for a framing problem serious
// enough that the session should be closed.
func (h *Handler) Dispatch(ctx context.Context, sess *session.Session) error {
	magicByte, err := sess.ReceiveByte()
	if err != nil {
		return err
	}
	magic := Magic(magicByte)

	flagBuf, err := sess.Receive(4)
	if err != nil {
		return err
	}
	flags := binary.BigEndian.Uint32(flagBuf)
	noReply := flags&FlagNoReply != 0

	switch magic {
	case MagicNOP:
		return h.handleNOP(sess, noReply)
	case MagicSetBulk:
		return h.handleSetBulk(ctx, sess, noReply)
	case MagicRemoveBulk:
		return h.handleRemoveBulk(ctx, sess, noReply)
	case MagicGetBulk:
		return h.handleGetBulk(ctx, sess, noReply)
	case MagicPlayScript:
		return h.handlePlayScript(ctx, sess, noReply)
	case MagicReplStream:
		return h.handleReplStream(ctx, sess, noReply)
	default:
		return h.writeError(sess, noReply, fmt.Sprintf("unrecognized magic byte 0x%02x", magicByte))
	}
}

func (h *Handler) handleNOP(sess *session.Session, noReply bool) error {
	if noReply {
		return nil
	}
	return sess.Send(frameHeader(MagicNOP, 0))
}

func (h *Handler) writeError(sess *session.Session, noReply bool, reason string) error {
	h.Logger.Warn("binary protocol error: " + reason)
	if noReply {
		return nil
	}
	msg := []byte(reason)
	buf := frameHeader(MagicError, 0)
	buf = appendU32(buf, uint32(len(msg)))
	buf = append(buf, msg...)
	return sess.Send(buf)
}

func frameHeader(magic Magic, flags uint32) []byte {
	buf := make([]byte, 5)
	buf[0] = byte(magic)
	binary.BigEndian.PutUint32(buf[1:], flags)
	return buf
}

func appendU16(buf []byte, v uint16) []byte {
	tmp := make([]byte, 2)
	binary.BigEndian.PutUint16(tmp, v)
	return append(buf, tmp...)
}

func appendU32(buf []byte, v uint32) []byte {
	tmp := make([]byte, 4)
	binary.BigEndian.PutUint32(tmp, v)
	return append(buf, tmp...)
}

func appendI64(buf []byte, v int64) []byte {
	tmp := make([]byte, 8)
	binary.BigEndian.PutUint64(tmp, uint64(v))
	return append(buf, tmp...)
}

func readU16(sess *session.Session) (uint16, error) {
	b, err := sess.Receive(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func readU32(sess *session.Session) (uint32, error) {
	b, err := sess.Receive(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func readI64(sess *session.Session) (int64, error) {
	b, err := sess.Receive(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func readU64(sess *session.Session) (uint64, error) {
	b, err := sess.Receive(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}
