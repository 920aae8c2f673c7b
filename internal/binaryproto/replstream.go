package binaryproto

import (
	"context"

	"github.com/entropycollective/quiverdb/internal/session"
)

// handleReplStream reads the replication-stream handshake — a cursor
// timestamp and a session identifier the client chose for its own
// bookkeeping — and, for as long as the connection stays open, hands
// this worker over to the Streamer to push entry and heartbeat frames.
// sid is otherwise unused here: the log this core streams from has no
// concept of competing subscriber identity, only a TS cursor.
//
// Unlike every other magic, replstream occupies its worker for the
// life of the stream rather than returning promptly: the session is
// deliberately not handed back to the poller until the client
// disconnects or the server shuts down, since nothing else may write
// to the session concurrently with the Streamer's pushes.
func (h *Handler) handleReplStream(ctx context.Context, sess *session.Session, noReply bool) error {
	fromTS, err := readU64(sess)
	if err != nil {
		return err
	}
	if _, err := readU16(sess); err != nil { // sid, unused by this core's LogSource
		return err
	}

	if h.Streamer == nil {
		return h.writeError(sess, noReply, "replication stream: no streamer configured")
	}
	return h.Streamer.Serve(ctx, sess, fromTS)
}
