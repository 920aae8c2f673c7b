// Package rpcservice registers the standard set/get/cursor/replication
// procedures onto an rpc.Registry, backed by a kvdb.Backend, a
// server.Server (for report/status counters), and a replication.LogSource
// (for the update-log procedures). It is the glue between the generic
// dispatch layers in internal/rpc and internal/binaryproto and the
// concrete database this server exposes.
package rpcservice

import (
	"github.com/entropycollective/quiverdb/internal/kvdb"
	"github.com/entropycollective/quiverdb/internal/replication"
	"github.com/entropycollective/quiverdb/internal/rpc"
	"github.com/entropycollective/quiverdb/internal/server"
)

// Stats is the subset of server.Server that report/status need, kept
// narrow so tests can supply a fake without spinning up a real listener.
type Stats interface {
	Stats() server.Stats
}

// Service owns the database and wires its operations onto a Registry.
type Service struct {
	Backend kvdb.Backend
	Server  Stats
	Log     replication.LogSource

	cursors *cursorRegistry
}

// Register builds a Service around backend/srv/log and registers every
// standard procedure name onto reg.
func Register(reg *rpc.Registry, backend kvdb.Backend, srv Stats, log replication.LogSource) *Service {
	s := &Service{Backend: backend, Server: srv, Log: log, cursors: newCursorRegistry()}
	s.registerKV(reg)
	s.registerBulk(reg)
	s.registerMatch(reg)
	s.registerCursor(reg)
	s.registerAdmin(reg)
	s.registerReplication(reg)
	reg.Register("play_script", s.playScript(reg))
	return s
}
