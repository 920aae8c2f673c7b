// Package server implements the threaded accept loop that ties the
// poller, the worker pool, and per-connection sessions together: one
// accept goroutine multiplexes readiness, N workers run request
// handlers, and the poller's deposit/undo/withdraw contract keeps a
// session pinned to at most one worker at a time.
package server

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/netutil"

	"github.com/entropycollective/quiverdb/internal/logging"
	"github.com/entropycollective/quiverdb/internal/poller"
	"github.com/entropycollective/quiverdb/internal/session"
	"github.com/entropycollective/quiverdb/internal/taskqueue"
)

// Handler processes one request already framed off sess. Returning
// keep=true leaves the connection open for the next pipelined or
// subsequent request; keep=false closes it.
type Handler interface {
	Handle(ctx context.Context, sess *session.Session) (keep bool, err error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, sess *session.Session) (bool, error)

func (f HandlerFunc) Handle(ctx context.Context, sess *session.Session) (bool, error) {
	return f(ctx, sess)
}

// pollQuantum is how long each Wait call blocks before the accept loop
// re-checks the run flag, matching the 100ms cancellation quantum.
const pollQuantum = 100 * time.Millisecond

// idleCyclesBeforeTimer is how many empty poll cycles elapse, with no
// idle task posted, before a timer task is posted instead.
const idleCyclesBeforeTimer = 256

// Config configures a Server.
type Config struct {
	ListenAddr     string
	Handler        Handler
	WorkerCount    int
	SessionTimeout time.Duration
	MaxConnections int // 0 = unlimited

	// IdleFunc and TimerFunc, if set, are invoked on a worker goroutine
	// when the server has gone a cycle with an empty task queue (idle)
	// or ~idleCyclesBeforeTimer cycles with no idle task posted (timer).
	IdleFunc  func(ctx context.Context)
	TimerFunc func(ctx context.Context)

	Logger *logging.Logger
}

// Server is a threaded TCP server: one accept loop, N worker threads.
type Server struct {
	cfg Config
	log *logging.Logger

	ln net.Listener
	p  *poller.Poller
	q  *taskqueue.Queue

	mu       sync.Mutex
	sessions map[int]*session.Session

	running   int32
	idleBusy  int32
	cycles    int
	doneCh    chan struct{}
	startTime time.Time
}

// Stats is a snapshot of process-level counters, backing the report
// and status RPC procedures.
type Stats struct {
	ConnectionCount int
	TaskCount       int
	Uptime          time.Duration
}

// Stats reports the server's current connection/task counts and
// uptime since New.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	conns := len(s.sessions)
	s.mu.Unlock()
	tasks := 0
	if s.q != nil {
		tasks = s.q.Count()
	}
	return Stats{ConnectionCount: conns, TaskCount: tasks, Uptime: time.Since(s.startTime)}
}

// New constructs a Server bound to cfg. Listen must be called to start it.
func New(cfg Config) *Server {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 4
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Global()
	}
	return &Server{
		cfg:       cfg,
		log:       log.WithComponent("server"),
		sessions:  make(map[int]*session.Session),
		doneCh:    make(chan struct{}),
		startTime: time.Now(),
	}
}

// ListenAndServe opens the server socket, arms the poller, starts the
// worker pool, and runs the accept loop until Stop is called.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	s.ln = ln
	s.p = poller.New(256)
	s.q = taskqueue.New(s.cfg.WorkerCount, nil, nil)
	s.q.Start()

	atomic.StoreInt32(&s.running, 1)
	s.p.DepositListener(0, s.ln)
	s.log.WithField("addr", ln.Addr().String()).Info("listening")

	s.loop()
	return nil
}

// Addr reports the bound listen address; only valid after
// ListenAndServe has started listening.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) loop() {
	defer close(s.doneCh)
	for atomic.LoadInt32(&s.running) == 1 {
		batch := s.p.Wait(pollQuantum)
		if len(batch) == 0 {
			s.onEmptyCycle()
			continue
		}
		for _, r := range batch {
			s.handleReady(r)
		}
	}
}

func (s *Server) handleReady(r poller.Ready) {
	if r.ID == 0 {
		switch r.Kind {
		case poller.EventAccept:
			s.acceptSession(r.Conn)
			s.p.Undo(0)
		case poller.EventError:
			if atomic.LoadInt32(&s.running) == 1 {
				s.log.Error(r.Err, "accept failed")
				s.p.Undo(0)
			}
		}
		return
	}

	s.mu.Lock()
	sess := s.sessions[r.ID]
	s.mu.Unlock()
	if sess == nil {
		return
	}
	switch r.Kind {
	case poller.EventReadable:
		s.q.AddTask(sessionTask{server: s, id: r.ID, sess: sess})
	case poller.EventError:
		s.closeSession(r.ID)
	}
}

func (s *Server) acceptSession(conn net.Conn) {
	sess := session.New(conn, s.cfg.SessionTimeout)
	id := int(sess.ID)
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	s.p.DepositConn(id, sess, s.cfg.SessionTimeout)
}

func (s *Server) closeSession(id int) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.p.Withdraw(id)
	sess.Close()
}

// sessionTask dispatches one session's ready read to a worker. The
// worker invokes the handler in a loop while it returns keep=true and
// the session still has pushed-back bytes: the session is never re-armed
// on the poller until the worker finishes, so a second worker can never
// race on the same connection.
type sessionTask struct {
	server *Server
	id     int
	sess   *session.Session
}

func (t sessionTask) Run(ctx context.Context, worker int, aborted bool) {
	s := t.server
	if aborted {
		s.closeSession(t.id)
		return
	}
	t.sess.Worker = worker
	for {
		keep, err := s.cfg.Handler.Handle(ctx, t.sess)
		if err != nil {
			s.log.WithField("session", t.id).Error(err, "handler error")
			keep = false
		}
		if !keep {
			s.closeSession(t.id)
			return
		}
		if t.sess.LeftSize() <= 0 {
			break
		}
	}
	s.p.Undo(t.id)
}

type idleOrTimerTask struct {
	server *Server
	timer  bool
}

func (t idleOrTimerTask) Run(ctx context.Context, worker int, aborted bool) {
	defer atomic.StoreInt32(&t.server.idleBusy, 0)
	if aborted {
		return
	}
	if t.timer {
		if t.server.cfg.TimerFunc != nil {
			t.server.cfg.TimerFunc(ctx)
		}
		return
	}
	if t.server.cfg.IdleFunc != nil {
		t.server.cfg.IdleFunc(ctx)
	}
}

// onEmptyCycle posts at most one outstanding idle or timer task, using
// a single-slot compare-and-set semaphore so workers never see more
// than one in flight at a time.
func (s *Server) onEmptyCycle() {
	s.cycles++
	postIdle := s.q.Count() == 0
	if !atomic.CompareAndSwapInt32(&s.idleBusy, 0, 1) {
		return
	}
	if postIdle {
		s.cycles = 0
		s.q.AddTask(idleOrTimerTask{server: s, timer: false})
		return
	}
	if s.cycles >= idleCyclesBeforeTimer {
		s.cycles = 0
		s.q.AddTask(idleOrTimerTask{server: s, timer: true})
		return
	}
	atomic.StoreInt32(&s.idleBusy, 0)
}

// Stop clears the run flag and aborts the poller, unblocking the accept
// loop promptly. The listening socket stays open until Finish.
func (s *Server) Stop() {
	atomic.StoreInt32(&s.running, 0)
	s.p.Abort()
}

// Finish drains the task queue, closes every remaining session, closes
// the poller, and closes the listening socket. Call Stop first.
func (s *Server) Finish() {
	<-s.doneCh
	s.q.Finish()

	s.mu.Lock()
	ids := make([]int, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.closeSession(id)
	}
	s.p.Close()
	if s.ln != nil {
		s.ln.Close()
	}
}
