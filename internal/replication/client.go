package replication

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"

	"github.com/entropycollective/quiverdb/internal/kverrors"
)

// StreamClient is the follower side of the replication-stream protocol:
// it opens the handshake on an already-dialed connection, then reads
// pushed entry and heartbeat frames until the connection closes or ctx
// is canceled, applying each entry to Log.
type StreamClient struct {
	Conn net.Conn
	Log  LogSource
	SID  uint16
}

// Run sends the handshake for entries with TS >= fromTS and then blocks
// reading pushed frames. It returns nil when ctx is canceled or when the
// server closes the stream (EOF between frames), and an error for any
// other disconnect or malformed frame.
func (c *StreamClient) Run(ctx context.Context, fromTS uint64) error {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.Conn.Close()
		case <-stop:
		}
	}()
	defer close(stop)

	handshake := make([]byte, 0, 15)
	handshake = append(handshake, magicReplStream)
	handshake = append(handshake, 0, 0, 0, 0) // flags
	tsBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(tsBuf, fromTS)
	handshake = append(handshake, tsBuf...)
	sidBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(sidBuf, c.SID)
	handshake = append(handshake, sidBuf...)
	if _, err := c.Conn.Write(handshake); err != nil {
		return kverrors.Wrap(kverrors.CodeNetwork, "replication client: handshake send failed", err)
	}

	r := bufio.NewReader(c.Conn)
	ack, err := r.ReadByte()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return kverrors.Wrap(kverrors.CodeNetwork, "replication client: handshake ack read failed", err)
	}
	if ack != magicReplStream {
		return kverrors.New(kverrors.CodeNetwork, "replication client: unexpected handshake ack byte")
	}

	for {
		magic, err := r.ReadByte()
		if err != nil {
			if ctx.Err() != nil || err == io.EOF {
				return nil
			}
			return kverrors.Wrap(kverrors.CodeNetwork, "replication client: frame read failed", err)
		}
		switch magic {
		case magicNOP:
			if _, err := io.ReadFull(r, make([]byte, 8)); err != nil { // ts, unused
				return kverrors.Wrap(kverrors.CodeNetwork, "replication client: heartbeat read failed", err)
			}
			if _, err := c.Conn.Write([]byte{magicReplStream}); err != nil {
				return kverrors.Wrap(kverrors.CodeNetwork, "replication client: heartbeat echo failed", err)
			}
		case magicReplStream:
			tsBuf := make([]byte, 8)
			if _, err := io.ReadFull(r, tsBuf); err != nil {
				return kverrors.Wrap(kverrors.CodeNetwork, "replication client: entry ts read failed", err)
			}
			sizeBuf := make([]byte, 4)
			if _, err := io.ReadFull(r, sizeBuf); err != nil {
				return kverrors.Wrap(kverrors.CodeNetwork, "replication client: entry size read failed", err)
			}
			msg := make([]byte, binary.BigEndian.Uint32(sizeBuf))
			if _, err := io.ReadFull(r, msg); err != nil {
				return kverrors.Wrap(kverrors.CodeNetwork, "replication client: entry body read failed", err)
			}
			if c.Log != nil {
				if err := c.Log.Append(binary.BigEndian.Uint64(tsBuf), msg); err != nil {
					return kverrors.Wrap(kverrors.CodeSystem, "replication client: local append failed", err)
				}
			}
		default:
			return kverrors.New(kverrors.CodeNetwork, "replication client: unrecognized pushed frame")
		}
	}
}
