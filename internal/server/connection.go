package server

import (
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"redisreplica/internal/command"
	"redisreplica/internal/resp"
)

// handleConnection reads decoded command frames off conn, dispatches each
// through the command package, and writes back whatever Action results —
// including, for PSYNC, escalating the rest of this connection's lifetime
// into replication bookkeeping.
func (s *Server) handleConnection(ctx context.Context, connID int64, conn net.Conn) {
	log := logrus.WithField("conn_id", connID)
	if s.metrics != nil {
		s.metrics.Conns.Add(conn, "client")
		defer s.metrics.Conns.Remove(conn)
	}
	defer conn.Close()

	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)

	for {
		if s.cfg.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}

		v, consumed, err := resp.Decode(buf)
		if err == resp.ErrIncomplete {
			n, rerr := conn.Read(tmp)
			if rerr != nil {
				if rerr != io.EOF {
					log.WithError(rerr).Debug("server: connection read error")
				}
				return
			}
			buf = append(buf, tmp[:n]...)
			continue
		}
		if err != nil {
			conn.Write(resp.EncodeErrorf("ERR Protocol error: %s", err))
			return
		}

		raw := append([]byte(nil), buf[:consumed]...)
		buf = buf[consumed:]

		args, err := v.AsCommand()
		if err != nil {
			conn.Write(resp.EncodeErrorf("ERR %s", err))
			continue
		}
		if len(args) == 0 {
			continue
		}

		if s.metrics != nil {
			s.metrics.CommandsTotal.WithLabelValues(strings.ToUpper(args[0])).Inc()
		}

		action := command.Dispatch(s.baseContext(), args, raw)

		switch action.Kind {
		case command.ActionResponse:
			if _, err := conn.Write(action.Response); err != nil {
				return
			}

		case command.ActionPsyncHandshake:
			s.servePsync(log, conn, action)
			return // socket lifetime now owned by the follower ACK loop in servePsync

		case command.ActionReplicaHealthCheck:
			role := s.role.Load().(*roleHandle)
			n := 0
			if role.manager != nil {
				n = role.manager.WaitForReplicas(action.NumReplicas, time.Duration(action.TimeoutMs)*time.Millisecond)
			}
			if _, err := conn.Write(resp.Encode(resp.NewInteger(int64(n)))); err != nil {
				return
			}
		}
	}
}

// servePsync writes the FULLRESYNC line and the RDB snapshot (framed
// without a trailing CRLF — the replication-specific deviation from a
// normal bulk string), then hands the connection's write-half to the
// replication manager and parses REPLCONF ACK frames off it until it
// closes.
func (s *Server) servePsync(log *logrus.Entry, conn net.Conn, action command.Action) bool {
	role := s.role.Load().(*roleHandle)
	if role.manager == nil {
		conn.Write(resp.EncodeErrorf("ERR PSYNC requires master role"))
		return false
	}

	if _, err := conn.Write(action.Response); err != nil {
		return false
	}
	header := []byte("$" + strconv.Itoa(len(action.RDBSnapshot)) + "\r\n")
	if _, err := conn.Write(header); err != nil {
		return false
	}
	if _, err := conn.Write(action.RDBSnapshot); err != nil {
		return false
	}

	id, reportACK := role.manager.Register(conn)
	log = log.WithField("follower_id", id)
	log.Info("server: follower entered sync")
	if s.metrics != nil {
		s.metrics.Conns.Add(conn, "follower")
		s.metrics.ConnectedFollowers.Set(float64(role.manager.ConnectedFollowers()))
		s.metrics.MasterReplOffset.Set(float64(role.manager.Offset()))
	}
	defer func() {
		role.manager.Unregister(id)
		if s.metrics != nil {
			s.metrics.ConnectedFollowers.Set(float64(role.manager.ConnectedFollowers()))
		}
		log.Info("server: follower disconnected")
	}()

	// A follower only speaks when asked for an ACK, so the client read
	// deadline set by handleConnection no longer applies.
	conn.SetReadDeadline(time.Time{})

	buf := make([]byte, 0, 1024)
	tmp := make([]byte, 1024)
	for {
		frame, consumed, err := resp.Decode(buf)
		if err == resp.ErrIncomplete {
			n, rerr := conn.Read(tmp)
			if rerr != nil {
				return true
			}
			buf = append(buf, tmp[:n]...)
			continue
		}
		if err != nil {
			return true
		}
		buf = buf[consumed:]

		args, err := frame.AsCommand()
		if err != nil {
			continue
		}
		if len(args) == 3 && strings.EqualFold(args[0], "REPLCONF") && strings.EqualFold(args[1], "ACK") {
			if offset, err := strconv.ParseInt(args[2], 10, 64); err == nil {
				reportACK(offset)
			}
		}
	}
}
