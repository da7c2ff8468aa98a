package command

import (
	"fmt"
	"strconv"
	"strings"

	"redisreplica/internal/resp"
)

func init() {
	register(Descriptor{Name: "REPLCONF", Execute: execReplconf})
	register(Descriptor{Name: "PSYNC", Execute: execPsync})
	register(Descriptor{Name: "WAIT", Execute: execWait})
	register(Descriptor{Name: "REPLICAOF", Execute: execReplicaOf})
	register(Descriptor{Name: "SLAVEOF", Execute: execReplicaOf})
}

// execReplconf handles both directions of REPLCONF: the handshake
// subcommands (listening-port, capa) just ack OK, while GETACK — only ever
// seen in apply mode, replayed from the leader's stream — reports this
// follower's own offset as of just before GETACK's bytes were counted.
// Inbound REPLCONF ACK frames (follower → leader) are not routed through
// here; the leader's follower-listening loop parses those directly.
func execReplconf(ctx *Context, args []string) Action {
	if len(args) < 2 {
		return errorf("ERR wrong number of arguments for 'replconf' command")
	}

	if strings.ToUpper(args[1]) == "GETACK" {
		var offset int64
		if ctx.FollowerOffset != nil {
			offset = ctx.FollowerOffset()
		}
		return responseAction(resp.Encode(resp.CommandFrame("REPLCONF", "ACK", strconv.FormatInt(offset, 10))))
	}

	return responseAction(resp.Encode(resp.NewSimpleString("OK")))
}

// execPsync produces the FULLRESYNC handshake line plus a snapshot of the
// current keyspace; the connection loop is responsible for the replication
// framing deviation (no trailing CRLF after the snapshot bytes) and for
// the socket-splitting escalation that follows.
func execPsync(ctx *Context, args []string) Action {
	if len(args) != 3 {
		return errorf("ERR wrong number of arguments for 'psync' command")
	}
	if ctx.Repl == nil || ctx.Repl.Role() != "master" {
		return errorf("ERR PSYNC can only be served by a master")
	}

	line := fmt.Sprintf("FULLRESYNC %s %d", ctx.Repl.ReplID(), ctx.Repl.Offset())

	var snapshot []byte
	if ctx.Snap != nil {
		snapshot = ctx.Snap.Snapshot()
	}

	return Action{
		Kind:        ActionPsyncHandshake,
		Response:    resp.Encode(resp.NewSimpleString(line)),
		RDBSnapshot: snapshot,
	}
}

func execWait(ctx *Context, args []string) Action {
	if len(args) != 3 {
		return errorf("ERR wrong number of arguments for 'wait' command")
	}
	n, err1 := strconv.Atoi(args[1])
	timeoutMs, err2 := strconv.Atoi(args[2])
	if err1 != nil || err2 != nil || n < 0 || timeoutMs < 0 {
		return errorf("ERR value is not an integer or out of range")
	}

	return Action{
		Kind:        ActionReplicaHealthCheck,
		NumReplicas: n,
		TimeoutMs:   timeoutMs,
	}
}

func execReplicaOf(ctx *Context, args []string) Action {
	if len(args) != 3 {
		return errorf("ERR wrong number of arguments for 'replicaof' command")
	}
	if strings.ToUpper(args[1]) == "NO" && strings.ToUpper(args[2]) == "ONE" {
		return errorf("ERR REPLICAOF NO ONE is not supported")
	}
	if ctx.StartReplicaOf == nil {
		return errorf("ERR replication role switch is not available")
	}
	if err := ctx.StartReplicaOf(args[1], args[2]); err != nil {
		return errorf("ERR %s", err)
	}
	return responseAction(resp.Encode(resp.NewSimpleString("OK")))
}
