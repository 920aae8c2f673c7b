// Package session models a connected client: the scratch buffer for
// pushed-back bytes, the per-session timeout, and a slot for opaque
// per-connection user data with deterministic release semantics.
package session

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/entropycollective/quiverdb/internal/kverrors"
)

// idCounter hands out monotonically increasing session IDs for the life
// of the process.
var idCounter uint64

// NextID returns a fresh, monotonically increasing session ID.
func NextID() uint64 {
	return atomic.AddUint64(&idCounter, 1)
}

// Releaser is released deterministically when a Session holding it is
// closed, before the Session itself is discarded.
type Releaser interface {
	Release()
}

// Session is a single connected client's state: the wire, the
// read-ahead buffer that backs ReceiveLine/ReceiveByte/UndoReceiveByte,
// and a timeout that every blocking operation on the connection honors.
type Session struct {
	ID      uint64
	Worker  int // index of the worker currently processing this session, -1 if none
	Timeout time.Duration

	conn net.Conn
	r    *bufio.Reader

	mu       sync.Mutex
	userData Releaser

	pushedBack []byte
	closed     bool
}

// New wraps conn as a Session with a fresh ID and the given timeout.
func New(conn net.Conn, timeout time.Duration) *Session {
	return &Session{
		ID:      NextID(),
		Worker:  -1,
		Timeout: timeout,
		conn:    conn,
		r:       bufio.NewReader(conn),
	}
}

// RemoteAddr reports the underlying connection's peer address.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// SetUserData installs opaque per-session data, releasing any previous
// occupant first.
func (s *Session) SetUserData(r Releaser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userData != nil {
		s.userData.Release()
	}
	s.userData = r
}

// UserData returns the opaque per-session data slot, or nil.
func (s *Session) UserData() Releaser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userData
}

// LeftSize reports how many pushed-back bytes remain unread. The server
// loop keeps invoking a session's handler while this is > 0 so a pipelined
// request already sitting in the scratch buffer is serviced without
// waiting on another poller readiness event.
func (s *Session) LeftSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pushedBack) + s.r.Buffered()
}

func (s *Session) deadline() time.Time {
	if s.Timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(s.Timeout)
}

// ReceiveLine reads up to limit bytes terminated by '\n', stripping a
// trailing CR/LF pair, honoring the session timeout.
func (s *Session) ReceiveLine(limit int) ([]byte, error) {
	if err := s.conn.SetReadDeadline(s.deadline()); err != nil {
		return nil, kverrors.Wrap(kverrors.CodeNetwork, "set read deadline", err)
	}
	var line []byte
	for {
		b, err := s.readByte()
		if err != nil {
			return nil, err
		}
		if b == '\n' {
			break
		}
		line = append(line, b)
		if len(line) > limit {
			return nil, kverrors.New(kverrors.CodeInvalid, "line too long")
		}
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, nil
}

// ReceiveByte returns a single byte, or -1 at EOF.
func (s *Session) ReceiveByte() (int, error) {
	if err := s.conn.SetReadDeadline(s.deadline()); err != nil {
		return -1, kverrors.Wrap(kverrors.CodeNetwork, "set read deadline", err)
	}
	b, err := s.readByte()
	if err != nil {
		return -1, err
	}
	return int(b), nil
}

// UndoReceiveByte pushes one previously-read byte back, so a later
// ReceiveByte or ReceiveLine observes it again. Used to peek a binary
// dispatch magic byte without consuming it.
func (s *Session) UndoReceiveByte(b byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushedBack = append(s.pushedBack, b)
}

func (s *Session) readByte() (byte, error) {
	s.mu.Lock()
	if n := len(s.pushedBack); n > 0 {
		b := s.pushedBack[n-1]
		s.pushedBack = s.pushedBack[:n-1]
		s.mu.Unlock()
		return b, nil
	}
	s.mu.Unlock()
	b, err := s.r.ReadByte()
	if err != nil {
		return 0, kverrors.Wrap(kverrors.CodeNetwork, "receive byte", err)
	}
	return b, nil
}

// Receive reads exactly n bytes, honoring the session timeout.
func (s *Session) Receive(n int) ([]byte, error) {
	if err := s.conn.SetReadDeadline(s.deadline()); err != nil {
		return nil, kverrors.Wrap(kverrors.CodeNetwork, "set read deadline", err)
	}
	buf := make([]byte, n)
	i := 0
	s.mu.Lock()
	for i < n && len(s.pushedBack) > 0 {
		last := len(s.pushedBack) - 1
		buf[i] = s.pushedBack[last]
		s.pushedBack = s.pushedBack[:last]
		i++
	}
	s.mu.Unlock()
	for i < n {
		m, err := s.r.Read(buf[i:])
		if err != nil {
			return nil, kverrors.Wrap(kverrors.CodeNetwork, "receive", err)
		}
		i += m
	}
	return buf, nil
}

// Send writes buf in full or fails; there is no partial-write success.
func (s *Session) Send(buf []byte) error {
	if err := s.conn.SetWriteDeadline(s.deadline()); err != nil {
		return kverrors.Wrap(kverrors.CodeNetwork, "set write deadline", err)
	}
	written := 0
	for written < len(buf) {
		n, err := s.conn.Write(buf[written:])
		if err != nil {
			return kverrors.Wrap(kverrors.CodeNetwork, "send", err)
		}
		written += n
	}
	return nil
}

// Close releases user data deterministically, then closes the connection.
// Calling Close twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	data := s.userData
	s.userData = nil
	s.mu.Unlock()

	if data != nil {
		data.Release()
	}
	return s.conn.Close()
}

// PeekReady blocks until deadline waiting for at least one byte to
// become available, without consuming it: on success the byte is pushed
// back via UndoReceiveByte so the next receive call observes it again.
// A zero deadline blocks indefinitely. A read timeout is reported as
// (false, nil) rather than an error, so a poller watcher can loop.
func (s *Session) PeekReady(deadline time.Time) (bool, error) {
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return false, kverrors.Wrap(kverrors.CodeNetwork, "set read deadline", err)
	}
	b, err := s.readByte()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return false, nil
		}
		return false, err
	}
	s.UndoReceiveByte(b)
	return true, nil
}

// Context derives a context bound to the session's timeout, for callers
// that hand a Session through APIs expecting context.Context cancellation.
func (s *Session) Context(parent context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, s.Timeout)
}
