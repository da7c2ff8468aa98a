// Package command implements the descriptor-per-command dispatcher: parse
// the decoded argument array, execute against a shared Context, and produce
// a uniform CommandAction the connection loop can act on. The same
// descriptors serve both normal client execution and replica "apply from
// leader" mode — see Context.Apply.
package command

import (
	"strings"
	"time"

	"redisreplica/internal/resp"
	"redisreplica/internal/store"
)

// ActionKind discriminates the three shapes a command execution can
// produce, per spec §4.3.
type ActionKind int

const (
	ActionResponse ActionKind = iota
	ActionPsyncHandshake
	ActionReplicaHealthCheck
)

// Action is the uniform result of executing a command. Exactly the fields
// relevant to Kind are populated.
type Action struct {
	Kind ActionKind

	// ActionResponse, and the FULLRESYNC line for ActionPsyncHandshake.
	Response []byte

	// ActionPsyncHandshake only.
	RDBSnapshot []byte

	// ActionReplicaHealthCheck only (WAIT).
	NumReplicas int
	TimeoutMs   int
}

func responseAction(b []byte) Action { return Action{Kind: ActionResponse, Response: b} }

func errorf(format string, args ...interface{}) Action {
	return responseAction(resp.EncodeErrorf(format, args...))
}

// isErrorResponse reports whether an ActionResponse carries a Simple Error,
// the signal the dispatcher uses to decide whether a write command's
// side effect actually happened and should be propagated.
func isErrorResponse(a Action) bool {
	return a.Kind == ActionResponse && len(a.Response) > 0 && a.Response[0] == '-'
}

// ReplicationInfo answers the INFO replication section and the role check
// used to reject writes on a follower.
type ReplicationInfo interface {
	Role() string // "master" or "slave"
	ReplID() string
	Offset() int64
	ConnectedFollowers() int
}

// WaitCoordinator backs the WAIT command.
type WaitCoordinator interface {
	WaitForReplicas(numReplicas int, timeout time.Duration) int
}

// SnapshotProvider builds the RDB bytes served as a PSYNC payload.
type SnapshotProvider interface {
	Snapshot() []byte
}

// ConfigView exposes the subset of server configuration CONFIG GET can
// read — just dir and dbfilename, per the original source's Config (only
// two fields exist, so CONFIG GET of anything else is genuinely unknown).
type ConfigView struct {
	Dir        string
	DBFilename string
}

// Context is the application handle every command descriptor executes
// against.
type Context struct {
	Store  *store.Store
	Config ConfigView
	Repl   ReplicationInfo
	Wait   WaitCoordinator
	Snap   SnapshotProvider

	// Propagate sends the verbatim command frame bytes to every attached
	// follower. Nil when there is no replication manager (follower role,
	// or replication disabled).
	Propagate func(raw []byte)

	// Apply is true when this Execute call is replaying a command
	// received from the leader's stream rather than serving a client:
	// responses are suppressed (except REPLCONF GETACK's reply),
	// propagation never happens, and the read-only-follower check is
	// bypassed.
	Apply bool

	// FollowerOffset reports this connection's own replication apply
	// offset as of just before the command frame currently being
	// applied. Only consulted by REPLCONF GETACK while Apply is true.
	FollowerOffset func() int64

	// StartReplicaOf, when non-nil, lets REPLICAOF/SLAVEOF hand off to
	// the server's runtime role-switch logic.
	StartReplicaOf func(host, port string) error
}

// Descriptor is one supported command: its name, whether it mutates the
// keyspace (and therefore propagates), and its execute function.
type Descriptor struct {
	Name    string
	IsWrite bool
	Execute func(ctx *Context, args []string) Action
}

var registry = map[string]Descriptor{}

func register(d Descriptor) {
	registry[d.Name] = d
}

// Dispatch parses the command name from args[0], enforces the
// read-only-follower rule, executes the matching descriptor, and
// propagates the raw frame to followers on a successful write. raw is the
// exact bytes of the decoded command frame, needed verbatim for
// propagation (spec §4.3).
func Dispatch(ctx *Context, args []string, raw []byte) Action {
	if len(args) == 0 {
		return errorf("ERR empty command")
	}

	name := strings.ToUpper(args[0])
	desc, ok := registry[name]
	if !ok {
		return errorf("ERR unknown command '%s'", args[0])
	}

	if desc.IsWrite && !ctx.Apply && ctx.Repl != nil && ctx.Repl.Role() == "slave" {
		return errorf("READONLY You can't write against a read only replica")
	}

	action := desc.Execute(ctx, args)

	if desc.IsWrite && !ctx.Apply && ctx.Propagate != nil && !isErrorResponse(action) {
		ctx.Propagate(raw)
	}

	return action
}
