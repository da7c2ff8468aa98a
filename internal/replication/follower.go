package replication

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"redisreplica/internal/rdb"
	"redisreplica/internal/resp"
)

// Applier is the command-side hook the follower client replays leader
// bytes through: the same dispatcher used for normal client commands, but
// invoked with Apply semantics (suppressed responses, no propagation, no
// read-only check).
type Applier interface {
	// ApplyFromLeader executes args (the decoded command frame) as a
	// replica-apply, returning a response only when one must be written
	// back to the leader's socket (REPLCONF GETACK), and nil otherwise.
	ApplyFromLeader(args []string, offsetBefore func() int64) []byte
}

// FollowerClient owns the outbound connection to a leader: the handshake,
// then a long-lived apply loop tracking this process's own replication
// offset with the byte-exact accounting GETACK depends on.
type FollowerClient struct {
	leaderAddr   string
	listenPort   int
	applier      Applier
	applyOffset  int64 // atomic; bytes of non-GETACK commands applied so far
	masterReplID string
	log          *logrus.Entry
}

func NewFollowerClient(leaderHost string, leaderPort int, listenPort int, applier Applier) *FollowerClient {
	return &FollowerClient{
		leaderAddr: net.JoinHostPort(leaderHost, strconv.Itoa(leaderPort)),
		listenPort: listenPort,
		applier:    applier,
		log:        logrus.WithField("leader", net.JoinHostPort(leaderHost, strconv.Itoa(leaderPort))),
	}
}

func (f *FollowerClient) Role() string   { return "slave" }
func (f *FollowerClient) ReplID() string { return f.masterReplID }
func (f *FollowerClient) Offset() int64  { return atomic.LoadInt64(&f.applyOffset) }

// ConnectedFollowers is always zero: a follower has no followers of its
// own in this system's replication topology (no cascading replicas).
func (f *FollowerClient) ConnectedFollowers() int { return 0 }

// Run performs the handshake (PING, REPLCONF listening-port, REPLCONF capa
// psync2, PSYNC) and then the apply loop, blocking until the connection
// fails. Callers that want to keep replicating after a disconnect should
// call Run again.
func (f *FollowerClient) Run() error {
	conn, err := net.DialTimeout("tcp", f.leaderAddr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("replication: dial leader: %w", err)
	}
	defer conn.Close()

	r := bufio.NewReader(conn)

	if err := f.handshake(conn, r); err != nil {
		return err
	}

	return f.applyLoop(conn, r)
}

func (f *FollowerClient) handshake(conn net.Conn, r *bufio.Reader) error {
	send := func(args ...string) error {
		_, err := conn.Write(resp.Encode(resp.CommandFrame(args...)))
		return err
	}
	expectSimple := func(want string) error {
		s, err := readSimpleLine(r)
		if err != nil {
			return err
		}
		if !strings.Contains(s, want) {
			return fmt.Errorf("replication: handshake expected %q, got %q", want, s)
		}
		return nil
	}

	if err := send("PING"); err != nil {
		return fmt.Errorf("replication: send PING: %w", err)
	}
	if err := expectSimple("PONG"); err != nil {
		return err
	}

	if err := send("REPLCONF", "listening-port", strconv.Itoa(f.listenPort)); err != nil {
		return fmt.Errorf("replication: send REPLCONF listening-port: %w", err)
	}
	if err := expectSimple("OK"); err != nil {
		return err
	}

	if err := send("REPLCONF", "capa", "psync2"); err != nil {
		return fmt.Errorf("replication: send REPLCONF capa: %w", err)
	}
	if err := expectSimple("OK"); err != nil {
		return err
	}

	if err := send("PSYNC", "?", "-1"); err != nil {
		return fmt.Errorf("replication: send PSYNC: %w", err)
	}
	line, err := readSimpleLine(r)
	if err != nil {
		return fmt.Errorf("replication: read FULLRESYNC: %w", err)
	}
	parts := strings.Fields(line)
	if len(parts) != 3 || parts[0] != "FULLRESYNC" {
		return fmt.Errorf("replication: unexpected PSYNC reply %q", line)
	}
	f.masterReplID = parts[1]

	// RDB snapshot: "$<len>\r\n<len bytes>" with NO trailing CRLF — the
	// load-bearing framing deviation from a normal bulk string.
	header, err := r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("replication: read RDB header: %w", err)
	}
	header = strings.TrimRight(header, "\r\n")
	if len(header) == 0 || header[0] != '$' {
		return fmt.Errorf("replication: bad RDB header %q", header)
	}
	n, err := strconv.Atoi(header[1:])
	if err != nil || n < 0 {
		return fmt.Errorf("replication: bad RDB length %q", header)
	}
	snapshot := make([]byte, n)
	if _, err := readFull(r, snapshot); err != nil {
		return fmt.Errorf("replication: read RDB body: %w", err)
	}
	if _, err := rdb.Version(snapshot); err != nil {
		f.log.WithError(err).Warn("replication: RDB snapshot header invalid")
	} else if ok, err := rdb.VerifyChecksum(snapshot); err != nil {
		f.log.WithError(err).Warn("replication: RDB snapshot checksum unreadable")
	} else if !ok {
		f.log.Warn("replication: RDB snapshot checksum mismatch")
	}

	f.log.WithField("master_replid", f.masterReplID).Info("replication: full resync complete")
	return nil
}

// applyLoop replays each decoded command frame from the leader, advancing
// applyOffset by the encoded frame's byte length — except for GETACK,
// whose own bytes never count, so the offset it reports always reflects
// only commands applied strictly before it.
func (f *FollowerClient) applyLoop(conn net.Conn, r *bufio.Reader) error {
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)

	for {
		v, consumed, err := resp.Decode(buf)
		if err == resp.ErrIncomplete {
			n, rerr := r.Read(tmp)
			if rerr != nil {
				return fmt.Errorf("replication: read from leader: %w", rerr)
			}
			buf = append(buf, tmp[:n]...)
			continue
		}
		if err != nil {
			return fmt.Errorf("replication: decode from leader: %w", err)
		}

		args, err := v.AsCommand()
		if err != nil {
			return fmt.Errorf("replication: leader sent non-command frame: %w", err)
		}

		isGetack := len(args) > 0 && strings.EqualFold(args[0], "REPLCONF") &&
			len(args) > 1 && strings.EqualFold(args[1], "GETACK")

		offsetBefore := func() int64 { return atomic.LoadInt64(&f.applyOffset) }
		reply := f.applier.ApplyFromLeader(args, offsetBefore)

		if !isGetack {
			atomic.AddInt64(&f.applyOffset, int64(consumed))
		}
		if reply != nil {
			if _, err := conn.Write(reply); err != nil {
				return fmt.Errorf("replication: write reply to leader: %w", err)
			}
		}

		buf = buf[consumed:]
	}
}

// readSimpleLine reads one "+...\r\n" line directly off r. Unlike decoding
// through resp.Decode against a standalone byte buffer, this never pulls
// bytes out of r that belong to a later frame (the RDB snapshot header, or
// the first propagated command) — bufio.Reader keeps its own internal
// buffer, so anything read past the line stays available to the next
// ReadString/Read call against the same r.
func readSimpleLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("replication: read line: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if len(line) == 0 || line[0] != '+' {
		return "", fmt.Errorf("replication: expected simple string line, got %q", line)
	}
	return line[1:], nil
}

func readFull(r *bufio.Reader, dst []byte) (int, error) {
	total := 0
	for total < len(dst) {
		n, err := r.Read(dst[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
