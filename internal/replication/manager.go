// Package replication implements the leader-side follower registry and
// command fan-out, and the follower-side handshake and apply loop.
package replication

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// generateReplID produces a 40-char hex replication id, the way the
// teacher does: crypto/rand with a timestamp-based fallback if the CSPRNG
// ever fails.
func generateReplID() string {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		logrus.WithError(err).Warn("replication: crypto/rand failed, using fallback replid")
		return fmt.Sprintf("%040d", time.Now().UnixNano())
	}
	return fmt.Sprintf("%x", b)
}

// follower is one attached replica as seen by the leader: an exclusive
// write-half guarded by its own mutex, a byte counter of everything
// propagated to it, and an unbounded channel of ACK offsets reported back
// by the connection's dedicated ACK-reader goroutine.
type follower struct {
	id  string
	w   io.Writer
	mu  sync.Mutex // guards w; Propagate/GETACK writes never interleave
	log *logrus.Entry

	bytesWritten int64 // atomic

	ackCh chan int64 // unbounded via buffered-and-drained pattern below
}

// newFollower wraps w with a large buffered ACK channel. In Go a truly
// unbounded channel doesn't exist; a generous buffer plus a
// non-blocking-send-with-drain keeps the reader goroutine from ever
// stalling on a slow or absent WAIT caller.
func newFollower(id string, w io.Writer) *follower {
	return &follower{
		id:    id,
		w:     w,
		log:   logrus.WithField("follower_id", id),
		ackCh: make(chan int64, 4096),
	}
}

// reportACK is called by the connection's ACK-reader goroutine for every
// REPLCONF ACK frame received from this follower.
func (f *follower) reportACK(offset int64) {
	select {
	case f.ackCh <- offset:
	default:
		// Buffer full: drain the stalest entry and retry once. A WAIT
		// only ever cares about the most recent offset.
		select {
		case <-f.ackCh:
		default:
		}
		select {
		case f.ackCh <- offset:
		default:
		}
	}
}

// Manager is the leader-side replication state: the attached-follower
// registry and the atomic master offset every propagated command advances.
type Manager struct {
	replID string

	mu        sync.RWMutex
	followers map[string]*follower

	masterOffset int64 // atomic
}

func NewManager() *Manager {
	return &Manager{
		replID:    generateReplID(),
		followers: make(map[string]*follower),
	}
}

func (m *Manager) Role() string   { return "master" }
func (m *Manager) ReplID() string { return m.replID }
func (m *Manager) Offset() int64  { return atomic.LoadInt64(&m.masterOffset) }

func (m *Manager) ConnectedFollowers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.followers)
}

// Register attaches a new follower's write-half, generating a stable id
// via xid (sortable, time-ordered, no coordination needed across
// connections). Returns the id and a function the caller's ACK-reader
// goroutine should invoke for every REPLCONF ACK it parses from this
// follower's socket.
func (m *Manager) Register(w io.Writer) (id string, reportACK func(offset int64)) {
	id = xid.New().String()
	f := newFollower(id, w)

	m.mu.Lock()
	m.followers[id] = f
	m.mu.Unlock()

	f.log.Info("replication: follower attached")
	return id, f.reportACK
}

// Unregister removes a follower, e.g. on socket error or close.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	delete(m.followers, id)
	m.mu.Unlock()
}

// Propagate fans a verbatim command frame out to every attached follower.
// Per the source's explicit policy, a follower whose write lock is
// currently held (e.g. a WAIT-triggered GETACK is in flight to it) is
// skipped silently for this call rather than blocked on — ACK-based
// reconciliation still converges eventually.
func (m *Manager) Propagate(frame []byte) {
	m.mu.RLock()
	targets := make([]*follower, 0, len(m.followers))
	for _, f := range m.followers {
		targets = append(targets, f)
	}
	m.mu.RUnlock()

	n := int64(len(frame))
	for _, f := range targets {
		if !f.mu.TryLock() {
			continue
		}
		_, err := f.w.Write(frame)
		f.mu.Unlock()
		if err != nil {
			f.log.WithError(err).Warn("replication: propagate write failed")
			continue
		}
		atomic.AddInt64(&f.bytesWritten, n)
	}
	atomic.AddInt64(&m.masterOffset, n)
}

// WaitForReplicas implements WAIT: two short-circuits (no followers at
// all, or nothing ever propagated) return immediately; otherwise every
// follower whose write lock is free at that moment is sent REPLCONF
// GETACK * and the call blocks up to timeout for
// each follower's most recent ACK offset to reach its expected
// bytesWritten, returning the count that met the bar regardless of
// whether numReplicas itself was satisfied.
func (m *Manager) WaitForReplicas(numReplicas int, timeout time.Duration) int {
	m.mu.RLock()
	targets := make([]*follower, 0, len(m.followers))
	for _, f := range m.followers {
		targets = append(targets, f)
	}
	m.mu.RUnlock()

	if len(targets) == 0 {
		return 0
	}
	if atomic.LoadInt64(&m.masterOffset) == 0 {
		return len(targets)
	}

	getack := []byte("*3\r\n$8\r\nREPLCONF\r\n$6\r\nGETACK\r\n$1\r\n*\r\n")
	for _, f := range targets {
		if f.mu.TryLock() {
			_, _ = f.w.Write(getack)
			f.mu.Unlock()
		}
	}

	// Closing deadline releases every waiter at once; a timer's channel
	// would deliver its single tick to only one of them.
	deadline := make(chan struct{})
	timer := time.AfterFunc(timeout, func() { close(deadline) })
	defer timer.Stop()

	results := make(chan bool, len(targets))
	for _, f := range targets {
		expected := atomic.LoadInt64(&f.bytesWritten)
		go func(f *follower, expected int64) {
			results <- waitForOffset(f.ackCh, expected, deadline)
		}(f, expected)
	}

	met := 0
	for i := 0; i < len(targets); i++ {
		if <-results {
			met++
		}
	}
	return met
}

// waitForOffset blocks until an ACK offset at least `expected` arrives on
// ch, or deadline is closed. Intervening smaller offsets (an earlier ACK the
// follower sent before catching up) are consumed and ignored.
func waitForOffset(ch <-chan int64, expected int64, deadline <-chan struct{}) bool {
	for {
		select {
		case offset := <-ch:
			if offset >= expected {
				return true
			}
		case <-deadline:
			return false
		}
	}
}
