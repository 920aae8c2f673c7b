// Command quiverd runs the quiverdb server: a threaded TCP listener
// speaking HTTP/RPC and a magic-byte binary protocol over an ordered
// key-value backend, with optional update-log replication and a
// watched config file: an edit is reloaded and logged, but takes
// effect only after a restart.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/entropycollective/quiverdb/internal/binaryproto"
	"github.com/entropycollective/quiverdb/internal/config"
	"github.com/entropycollective/quiverdb/internal/gateway"
	"github.com/entropycollective/quiverdb/internal/kvdb"
	"github.com/entropycollective/quiverdb/internal/kvdb/boltstore"
	"github.com/entropycollective/quiverdb/internal/kvdb/btreestore"
	"github.com/entropycollective/quiverdb/internal/kvdb/pebblestore"
	"github.com/entropycollective/quiverdb/internal/logging"
	"github.com/entropycollective/quiverdb/internal/monitor"
	"github.com/entropycollective/quiverdb/internal/replication"
	"github.com/entropycollective/quiverdb/internal/rpc"
	"github.com/entropycollective/quiverdb/internal/rpcservice"
	"github.com/entropycollective/quiverdb/internal/server"
)

// statsRef defers Server.Stats() lookups until srv exists: rpcservice
// needs a Stats implementation to register report/status before the
// server holding the real counters has been constructed, since the
// server's own Config.Handler in turn needs the registry rpcservice
// populates.
type statsRef struct {
	srv *server.Server
}

func (r *statsRef) Stats() server.Stats {
	if r.srv == nil {
		return server.Stats{}
	}
	return r.srv.Stats()
}

func main() {
	configPath := flag.String("config", "", "path to a JSON configuration file (default settings if absent)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quiverd: %v\n", err)
		os.Exit(1)
	}

	level, _ := logging.ParseLevel(cfg.Logging.Level)
	logCfg := logging.Config{Level: level, JSON: cfg.Logging.JSON}
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "quiverd: open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logCfg.Output = f
	}
	log := logging.New(logCfg)
	logging.SetGlobal(log)

	backend, err := openBackend(cfg.Storage)
	if err != nil {
		log.Error(err, "open storage backend failed")
		os.Exit(1)
	}
	defer backend.Close()

	var logSource replication.LogSource
	if cfg.Replication.Enabled {
		logSource = replication.NewMemoryLogSource(0)
	}

	reg := rpc.NewRegistry()
	stats := &statsRef{}
	rpcservice.Register(reg, backend, stats, logSource)

	var streamer binaryproto.Streamer
	if logSource != nil {
		streamer = &replication.Streamer{Log: logSource}
	}
	binHandler := binaryproto.NewHandler(backend, streamer, reg, log.WithComponent("binaryproto"))
	handler := &gateway.Handler{Registry: reg, Binary: binHandler}

	srv := server.New(server.Config{
		ListenAddr:     cfg.Server.ListenAddr,
		Handler:        handler,
		WorkerCount:    cfg.Server.WorkerCount,
		MaxConnections: cfg.Server.MaxConnections,
		SessionTimeout: time.Duration(cfg.Server.SessionTimeoutS) * time.Second,
		Logger:         log.WithComponent("server"),
	})
	stats.srv = srv

	if cfg.Monitor.Enabled {
		mon := monitor.New(stats, log.WithComponent("monitor"))
		go func() {
			if err := mon.ListenAndServe(cfg.Monitor.ListenAddr); err != nil {
				log.Error(err, "monitor dashboard stopped")
			}
		}()
	}

	if *configPath != "" {
		watcher, err := config.WatchFile(*configPath, func(*config.Config) {
			log.Info("configuration file changed; restart to apply listener/storage settings")
		}, log)
		if err != nil {
			log.Error(err, "config watcher disabled")
		} else {
			defer watcher.Close()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		srv.Stop()
	}()

	log.WithField("addr", cfg.Server.ListenAddr).Info("quiverd listening")
	if err := srv.ListenAndServe(); err != nil {
		log.Error(err, "listener exited")
	}
	srv.Finish()
	log.Info("quiverd stopped")
}

// openBackend opens the configured storage backend.
func openBackend(cfg config.StorageConfig) (kvdb.Backend, error) {
	switch cfg.Backend {
	case "bolt":
		return boltstore.Open(cfg.Path)
	case "pebble":
		return pebblestore.Open(cfg.Path)
	case "btree":
		return btreestore.New(), nil
	default:
		return nil, fmt.Errorf("storage.backend %q not recognized", cfg.Backend)
	}
}
