package server

import "redisreplica/internal/replication"

// roleHandle is whichever replication role is currently active. Exactly
// one of manager/follower is non-nil. A *roleHandle is swapped in as a
// unit via Server.role (atomic.Value) so REPLICAOF can change a running
// server's role without every in-flight Context needing a lock.
type roleHandle struct {
	manager  *replication.Manager
	follower *replication.FollowerClient
}

func (r *roleHandle) Role() string {
	if r.manager != nil {
		return r.manager.Role()
	}
	return r.follower.Role()
}

func (r *roleHandle) ReplID() string {
	if r.manager != nil {
		return r.manager.ReplID()
	}
	return r.follower.ReplID()
}

func (r *roleHandle) Offset() int64 {
	if r.manager != nil {
		return r.manager.Offset()
	}
	return r.follower.Offset()
}

func (r *roleHandle) ConnectedFollowers() int {
	if r.manager != nil {
		return r.manager.ConnectedFollowers()
	}
	return r.follower.ConnectedFollowers()
}

// Propagate forwards to the attached manager's fan-out, a no-op when this
// role is currently a follower.
func (r *roleHandle) Propagate(frame []byte) {
	if r.manager != nil {
		r.manager.Propagate(frame)
	}
}
