// Package server wires the keyspace, command dispatcher, and replication
// manager together behind a TCP accept loop.
package server

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"redisreplica/internal/command"
	"redisreplica/internal/metrics"
	"redisreplica/internal/rdb"
	"redisreplica/internal/replication"
	"redisreplica/internal/store"
)

// Server owns the listener, the keyspace, and the active replication
// role. It can flip between master and follower at runtime via
// REPLICAOF/SLAVEOF (SPEC_FULL.md §12).
type Server struct {
	cfg     Config
	store   *store.Store
	metrics *metrics.Registry
	limiter *rate.Limiter

	role atomic.Value // *roleHandle

	connIDs atomic.Int64

	mu       sync.Mutex
	listener net.Listener
}

func New(cfg Config, reg *metrics.Registry) *Server {
	s := &Server{
		cfg:     cfg,
		store:   store.New(),
		metrics: reg,
		limiter: rate.NewLimiter(rate.Limit(cfg.AcceptRatePerSec), cfg.AcceptBurst),
	}

	if cfg.ReplicaOfHost != "" {
		s.becomeFollower(cfg.ReplicaOfHost, cfg.ReplicaOfPort)
	} else {
		s.becomeMaster()
	}

	return s
}

func (s *Server) becomeMaster() {
	s.role.Store(&roleHandle{manager: replication.NewManager()})
}

// becomeFollower starts (or restarts) a FollowerClient against the given
// leader and runs its handshake+apply loop in the background, retrying
// with a short backoff on disconnect — this is REPLICAOF's runtime
// role-switch surface (SPEC_FULL.md §12): best-effort, tears down any
// prior role and re-handshakes.
func (s *Server) becomeFollower(host string, port int) {
	fc := replication.NewFollowerClient(host, port, s.cfg.Port, &leaderApplier{srv: s})
	s.role.Store(&roleHandle{follower: fc})

	go func() {
		for {
			current := s.role.Load().(*roleHandle)
			if current.follower != fc {
				return // superseded by a later role switch
			}
			if err := fc.Run(); err != nil {
				logrus.WithError(err).Warn("replication: follower connection ended")
			}
			time.Sleep(time.Second)
		}
	}()
}

// ReplicaOf implements command.Context.StartReplicaOf: it is handed to
// every Context built by this server so the REPLICAOF/SLAVEOF descriptor
// can trigger a role switch.
func (s *Server) ReplicaOf(host, portStr string) error {
	port, err := parsePort(portStr)
	if err != nil {
		return err
	}
	s.becomeFollower(host, port)
	return nil
}

func parsePort(s string) (int, error) {
	var port int
	if _, err := fmt.Sscanf(s, "%d", &port); err != nil {
		return 0, fmt.Errorf("bad port %q: %w", s, err)
	}
	return port, nil
}

// Run starts the listener and blocks, accepting connections until ctx is
// canceled.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	logrus.WithField("addr", addr).Info("server: listening")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var activeConns atomic.Int64

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			logrus.WithError(err).Warn("server: accept failed")
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			conn.Close()
			continue
		}

		if int(activeConns.Load()) >= s.cfg.MaxConnections {
			logrus.Warn("server: max connections reached, rejecting")
			conn.Close()
			continue
		}

		connID := s.connIDs.Add(1)
		activeConns.Add(1)
		go func() {
			defer activeConns.Add(-1)
			s.handleConnection(ctx, connID, conn)
		}()
	}
}

// baseContext builds the command.Context shared fields for either a
// client-facing or a replica-apply invocation.
func (s *Server) baseContext() *command.Context {
	role := s.role.Load().(*roleHandle)
	return &command.Context{
		Store:          s.store,
		Config:         command.ConfigView{Dir: s.cfg.Dir, DBFilename: s.cfg.DBFilename},
		Repl:           role,
		Wait:           waitAdapter{role},
		Snap:           snapshotAdapter{s.store},
		Propagate:      s.propagate(role),
		StartReplicaOf: s.ReplicaOf,
	}
}

// propagate wraps role.Propagate so every fanned-out write also updates the
// master_repl_offset gauge from the same offset WAIT itself reasons about,
// instead of leaving that gauge registered but never set.
func (s *Server) propagate(role *roleHandle) func(frame []byte) {
	return func(frame []byte) {
		role.Propagate(frame)
		if s.metrics != nil && role.manager != nil {
			s.metrics.MasterReplOffset.Set(float64(role.manager.Offset()))
		}
	}
}

type waitAdapter struct{ role *roleHandle }

func (w waitAdapter) WaitForReplicas(numReplicas int, timeout time.Duration) int {
	if w.role.manager == nil {
		return 0
	}
	return w.role.manager.WaitForReplicas(numReplicas, timeout)
}

type snapshotAdapter struct{ s *store.Store }

// Snapshot encodes the leader's live keyspace into the RDB payload served
// with FULLRESYNC. A newly-attached follower still catches up to writes
// made *after* this point via the live command stream (see
// internal/rdb's package doc) rather than by parsing this body back, but
// the body itself genuinely reflects the keyspace at handshake time.
func (a snapshotAdapter) Snapshot() []byte {
	return rdb.Encode(a.s.Snapshot())
}

// leaderApplier adapts Server into replication.Applier for the follower
// apply loop.
type leaderApplier struct{ srv *Server }

func (a *leaderApplier) ApplyFromLeader(args []string, offsetBefore func() int64) []byte {
	ctx := a.srv.baseContext()
	ctx.Apply = true
	ctx.FollowerOffset = offsetBefore

	action := command.Dispatch(ctx, args, nil)
	if action.Kind != command.ActionResponse {
		return nil
	}
	if len(args) >= 2 && strings.EqualFold(args[0], "REPLCONF") && strings.EqualFold(args[1], "GETACK") {
		return action.Response
	}
	return nil
}
