package replication

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lockedBuffer is a concurrency-safe io.Writer standing in for a
// follower's socket write-half in these unit tests.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func TestRegisterAndPropagate(t *testing.T) {
	m := NewManager()
	w := &lockedBuffer{}
	id, _ := m.Register(w)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, m.ConnectedFollowers())

	frame := []byte("*1\r\n$4\r\nPING\r\n")
	m.Propagate(frame)

	assert.Equal(t, frame, w.Bytes())
	assert.Equal(t, int64(len(frame)), m.Offset())
}

func TestPropagateSkipsLockedFollower(t *testing.T) {
	m := NewManager()
	w := &lockedBuffer{}
	id, _ := m.Register(w)

	m.mu.RLock()
	f := m.followers[id]
	m.mu.RUnlock()

	f.mu.Lock()
	m.Propagate([]byte("*1\r\n$4\r\nPING\r\n"))
	f.mu.Unlock()

	assert.Empty(t, w.Bytes(), "a follower whose write lock is held must be skipped, not blocked on")
	assert.Equal(t, int64(14), m.Offset(), "master_offset still advances even if every follower was skipped")
}

func TestWaitForReplicasZeroFollowers(t *testing.T) {
	m := NewManager()
	n := m.WaitForReplicas(3, 50*time.Millisecond)
	assert.Equal(t, 0, n)
}

func TestWaitForReplicasNoWritesYet(t *testing.T) {
	m := NewManager()
	m.Register(&lockedBuffer{})
	m.Register(&lockedBuffer{})

	n := m.WaitForReplicas(5, 50*time.Millisecond)
	assert.Equal(t, 2, n, "pre-handshake followers count as up to date when nothing was ever propagated")
}

func TestWaitForReplicasGathersACKs(t *testing.T) {
	m := NewManager()
	w1, w2 := &lockedBuffer{}, &lockedBuffer{}
	id1, ack1 := m.Register(w1)
	_, ack2 := m.Register(w2)

	frame := []byte("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n")
	m.Propagate(frame)

	m.mu.RLock()
	f1 := m.followers[id1]
	m.mu.RUnlock()
	expected := f1.bytesWritten

	go func() {
		time.Sleep(5 * time.Millisecond)
		ack1(expected)
		// ack2 never arrives — its follower should not count.
	}()
	_ = ack2

	n := m.WaitForReplicas(2, 100*time.Millisecond)
	assert.Equal(t, 1, n)
}

func TestGenerateReplIDIs40HexChars(t *testing.T) {
	id := generateReplID()
	require.Len(t, id, 40)
	for _, c := range id {
		assert.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f'))
	}
}
