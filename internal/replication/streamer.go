package replication

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/entropycollective/quiverdb/internal/kverrors"
	"github.com/entropycollective/quiverdb/internal/session"
)

// magic bytes shared with binaryproto's binary dispatch, duplicated
// here (rather than imported) to keep the streamer independent of the
// dispatch package's request-side framing.
const (
	magicReplStream byte = 0xB1
	magicNOP        byte = 0xB0
)

const heartbeatInterval = 5 * time.Second

// Streamer pushes log entries newer than a client-supplied cursor over
// an already-accepted replication-stream session: the server answers
// the initial 0xB1 with its own 0xB1, then pushes 0xB1 frames for new
// entries or 0xB0 heartbeats when idle. The client is expected to echo
// 0xB1 after each heartbeat; Serve only writes to the session and never
// reads those echoes.
type Streamer struct {
	Log LogSource
}

// Serve streams entries with TS >= fromTS until ctx is canceled or a
// send fails, blocking the calling goroutine for that whole time (when
// reached through binaryproto, the dispatch worker that read the
// handshake).
func (s *Streamer) Serve(ctx context.Context, sess *session.Session, fromTS uint64) error {
	if err := sess.Send(frameAck()); err != nil {
		return kverrors.Wrap(kverrors.CodeNetwork, "replication: handshake ack failed", err)
	}

	cursor := fromTS
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			entries, err := s.Log.List(cursor, 64)
			if err != nil {
				return kverrors.Wrap(kverrors.CodeSystem, "replication: list failed", err)
			}
			if len(entries) == 0 {
				if err := sess.Send(frameHeartbeat()); err != nil {
					return kverrors.Wrap(kverrors.CodeNetwork, "replication: heartbeat send failed", err)
				}
				continue
			}
			for _, e := range entries {
				if err := sess.Send(frameEntry(e)); err != nil {
					return kverrors.Wrap(kverrors.CodeNetwork, "replication: entry send failed", err)
				}
				cursor = e.TS + 1
			}
		}
	}
}

func frameAck() []byte {
	return []byte{magicReplStream}
}

func frameHeartbeat() []byte {
	buf := make([]byte, 9)
	buf[0] = magicNOP
	binary.BigEndian.PutUint64(buf[1:], uint64(time.Now().UnixNano()))
	return buf
}

func frameEntry(e LogEntry) []byte {
	buf := make([]byte, 0, 1+8+4+len(e.Msg))
	buf = append(buf, magicReplStream)
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, e.TS)
	buf = append(buf, ts...)
	size := make([]byte, 4)
	binary.BigEndian.PutUint32(size, uint32(len(e.Msg)))
	buf = append(buf, size...)
	buf = append(buf, e.Msg...)
	return buf
}
