package command

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redisreplica/internal/resp"
	"redisreplica/internal/store"
)

type fakeRepl struct {
	role     string
	replID   string
	offset   int64
	nFollows int
}

func (f *fakeRepl) Role() string            { return f.role }
func (f *fakeRepl) ReplID() string          { return f.replID }
func (f *fakeRepl) Offset() int64           { return f.offset }
func (f *fakeRepl) ConnectedFollowers() int { return f.nFollows }

func newTestContext() *Context {
	return &Context{
		Store: store.New(),
		Repl:  &fakeRepl{role: "master", replID: "abc", offset: 0},
	}
}

func dispatchOK(t *testing.T, ctx *Context, args ...string) Action {
	t.Helper()
	return Dispatch(ctx, args, resp.Encode(resp.CommandFrame(args...)))
}

func TestPingEcho(t *testing.T) {
	ctx := newTestContext()

	a := dispatchOK(t, ctx, "PING")
	assert.Equal(t, resp.Encode(resp.NewSimpleString("PONG")), a.Response)

	a = dispatchOK(t, ctx, "ECHO", "hi")
	assert.Equal(t, resp.Encode(resp.NewBulkStringFromString("hi")), a.Response)
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := newTestContext()

	a := dispatchOK(t, ctx, "SET", "k", "v")
	assert.Equal(t, resp.Encode(resp.NewSimpleString("OK")), a.Response)

	a = dispatchOK(t, ctx, "GET", "k")
	assert.Equal(t, resp.Encode(resp.NewBulkStringFromString("v")), a.Response)

	a = dispatchOK(t, ctx, "GET", "missing")
	assert.Equal(t, resp.Encode(resp.NullBulk()), a.Response)
}

func TestSetWithBadTTLDoesNotMutate(t *testing.T) {
	ctx := newTestContext()

	a := dispatchOK(t, ctx, "SET", "k", "v", "EX", "notanumber")
	require.True(t, isErrorResponse(a))

	a = dispatchOK(t, ctx, "GET", "k")
	assert.Equal(t, resp.Encode(resp.NullBulk()), a.Response, "failed SET must not have written anything")
}

func TestSetWithPXExpires(t *testing.T) {
	ctx := newTestContext()

	dispatchOK(t, ctx, "SET", "k", "v", "PX", "10")
	time.Sleep(20 * time.Millisecond)
	a := dispatchOK(t, ctx, "GET", "k")
	assert.Equal(t, resp.Encode(resp.NullBulk()), a.Response)
}

func TestRPushRPopLLenLRange(t *testing.T) {
	ctx := newTestContext()

	a := dispatchOK(t, ctx, "RPUSH", "l", "a", "b")
	assert.Equal(t, resp.Encode(resp.NewInteger(2)), a.Response)

	a = dispatchOK(t, ctx, "LLEN", "l")
	assert.Equal(t, resp.Encode(resp.NewInteger(2)), a.Response)

	a = dispatchOK(t, ctx, "LRANGE", "l", "0", "-1")
	want := resp.Encode(resp.NewArray([]resp.Value{
		resp.NewBulkStringFromString("a"),
		resp.NewBulkStringFromString("b"),
	}))
	assert.Equal(t, want, a.Response)

	a = dispatchOK(t, ctx, "RPOP", "l")
	assert.Equal(t, resp.Encode(resp.NewBulkStringFromString("b")), a.Response)
}

func TestDelExists(t *testing.T) {
	ctx := newTestContext()
	dispatchOK(t, ctx, "SET", "a", "1")
	dispatchOK(t, ctx, "SET", "b", "1")

	a := dispatchOK(t, ctx, "EXISTS", "a", "b", "c")
	assert.Equal(t, resp.Encode(resp.NewInteger(2)), a.Response)

	a = dispatchOK(t, ctx, "DEL", "a", "c")
	assert.Equal(t, resp.Encode(resp.NewInteger(1)), a.Response)

	a = dispatchOK(t, ctx, "EXISTS", "a")
	assert.Equal(t, resp.Encode(resp.NewInteger(0)), a.Response)
}

func TestWriteRejectedOnFollower(t *testing.T) {
	ctx := newTestContext()
	ctx.Repl = &fakeRepl{role: "slave"}

	a := dispatchOK(t, ctx, "SET", "k", "v")
	require.True(t, isErrorResponse(a))

	a = dispatchOK(t, ctx, "GET", "k")
	assert.False(t, isErrorResponse(a), "reads must still work on a follower")
}

func TestApplyModeBypassesReadOnlyAndPropagation(t *testing.T) {
	ctx := newTestContext()
	ctx.Repl = &fakeRepl{role: "slave"}
	ctx.Apply = true

	propagated := false
	ctx.Propagate = func([]byte) { propagated = true }

	a := Dispatch(ctx, []string{"SET", "k", "v"}, []byte("raw"))
	assert.False(t, isErrorResponse(a))
	assert.False(t, propagated, "apply mode must never re-propagate")

	v, ok := ctx.Store.GetString("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestPropagateOnlyOnSuccessfulWrite(t *testing.T) {
	ctx := newTestContext()
	var got []byte
	ctx.Propagate = func(raw []byte) { got = raw }

	Dispatch(ctx, []string{"SET", "k", "v", "EX", "bad"}, []byte("raw-bad"))
	assert.Nil(t, got, "a failed write must not propagate")

	Dispatch(ctx, []string{"SET", "k", "v"}, []byte("raw-good"))
	assert.Equal(t, []byte("raw-good"), got)
}

func TestConfigGet(t *testing.T) {
	ctx := newTestContext()
	ctx.Config = ConfigView{Dir: "/data", DBFilename: "dump.rdb"}

	a := dispatchOK(t, ctx, "CONFIG", "GET", "dir")
	want := resp.Encode(resp.NewArray([]resp.Value{
		resp.NewBulkStringFromString("dir"),
		resp.NewBulkStringFromString("/data"),
	}))
	assert.Equal(t, want, a.Response)

	a = dispatchOK(t, ctx, "CONFIG", "GET", "unknownkey")
	want = resp.Encode(resp.NewArray([]resp.Value{
		resp.NewBulkStringFromString("unknownkey"),
		resp.NewBulkStringFromString(""),
	}))
	assert.Equal(t, want, a.Response)
}

func TestInfoReplication(t *testing.T) {
	ctx := newTestContext()
	ctx.Repl = &fakeRepl{role: "master", replID: "deadbeef", offset: 42}

	a := dispatchOK(t, ctx, "INFO", "replication")
	v, _, err := resp.Decode(a.Response)
	require.NoError(t, err)
	assert.Contains(t, string(v.Bulk), "role:master")
	assert.Contains(t, string(v.Bulk), "master_replid:deadbeef")
	assert.Contains(t, string(v.Bulk), "master_repl_offset:42")

	ctx.Repl = &fakeRepl{role: "slave"}
	a = dispatchOK(t, ctx, "INFO")
	v, _, err = resp.Decode(a.Response)
	require.NoError(t, err)
	assert.Equal(t, "role:slave\n", string(v.Bulk))
}

func TestReplconfGetackReportsOffsetBeforeCall(t *testing.T) {
	ctx := newTestContext()
	ctx.Apply = true
	ctx.FollowerOffset = func() int64 { return 77 }

	a := Dispatch(ctx, []string{"REPLCONF", "GETACK", "*"}, nil)
	args, err := mustDecodeArray(a.Response)
	require.NoError(t, err)
	assert.Equal(t, []string{"REPLCONF", "ACK", "77"}, args)
}

func TestPsyncRequiresMaster(t *testing.T) {
	ctx := newTestContext()
	ctx.Repl = &fakeRepl{role: "slave"}

	a := Dispatch(ctx, []string{"PSYNC", "?", "-1"}, nil)
	assert.True(t, isErrorResponse(a))
}

func TestPsyncProducesHandshake(t *testing.T) {
	ctx := newTestContext()
	ctx.Snap = fakeSnapshot{data: []byte("snapshot-bytes")}

	a := Dispatch(ctx, []string{"PSYNC", "?", "-1"}, nil)
	require.Equal(t, ActionPsyncHandshake, a.Kind)
	assert.Equal(t, []byte("snapshot-bytes"), a.RDBSnapshot)
}

func TestWaitProducesHealthCheck(t *testing.T) {
	ctx := newTestContext()
	a := Dispatch(ctx, []string{"WAIT", "2", "100"}, nil)
	require.Equal(t, ActionReplicaHealthCheck, a.Kind)
	assert.Equal(t, 2, a.NumReplicas)
	assert.Equal(t, 100, a.TimeoutMs)
}

type fakeSnapshot struct{ data []byte }

func (f fakeSnapshot) Snapshot() []byte { return f.data }

func mustDecodeArray(b []byte) ([]string, error) {
	v, _, err := resp.Decode(b)
	if err != nil {
		return nil, err
	}
	return v.AsCommand()
}
