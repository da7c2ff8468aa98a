package command

import (
	"strconv"
	"strings"
	"time"

	"redisreplica/internal/resp"
)

func init() {
	register(Descriptor{Name: "PING", Execute: execPing})
	register(Descriptor{Name: "ECHO", Execute: execEcho})
	register(Descriptor{Name: "GET", Execute: execGet})
	register(Descriptor{Name: "SET", IsWrite: true, Execute: execSet})
	register(Descriptor{Name: "DEL", IsWrite: true, Execute: execDel})
	register(Descriptor{Name: "EXISTS", Execute: execExists})
	register(Descriptor{Name: "KEYS", Execute: execKeys})
}

func execPing(ctx *Context, args []string) Action {
	if len(args) > 2 {
		return errorf("ERR wrong number of arguments for 'ping' command")
	}
	if len(args) == 2 {
		return responseAction(resp.Encode(resp.NewBulkStringFromString(args[1])))
	}
	return responseAction(resp.Encode(resp.NewSimpleString("PONG")))
}

func execEcho(ctx *Context, args []string) Action {
	if len(args) != 2 {
		return errorf("ERR wrong number of arguments for 'echo' command")
	}
	return responseAction(resp.Encode(resp.NewBulkStringFromString(args[1])))
}

func execGet(ctx *Context, args []string) Action {
	if len(args) != 2 {
		return errorf("ERR wrong number of arguments for 'get' command")
	}
	val, ok := ctx.Store.GetString(args[1])
	if !ok {
		return responseAction(resp.Encode(resp.NullBulk()))
	}
	return responseAction(resp.Encode(resp.NewBulkString(val)))
}

// execSet validates the optional EX/PX suboption before touching the
// keyspace, per spec: a bad TTL option must fail with no side effect.
func execSet(ctx *Context, args []string) Action {
	if len(args) != 3 && len(args) != 5 {
		return errorf("ERR wrong number of arguments for 'set' command")
	}

	key, val := args[1], args[2]

	if len(args) == 3 {
		ctx.Store.SetString(key, []byte(val))
		return responseAction(resp.Encode(resp.NewSimpleString("OK")))
	}

	opt := strings.ToUpper(args[3])
	n, err := strconv.ParseInt(args[4], 10, 64)
	if err != nil || n <= 0 {
		return errorf("ERR invalid expire time in 'set' command")
	}

	var deadline time.Time
	switch opt {
	case "EX":
		deadline = time.Now().Add(time.Duration(n) * time.Second)
	case "PX":
		deadline = time.Now().Add(time.Duration(n) * time.Millisecond)
	default:
		return errorf("ERR syntax error")
	}

	ctx.Store.SetStringTTL(key, []byte(val), deadline)
	return responseAction(resp.Encode(resp.NewSimpleString("OK")))
}

func execDel(ctx *Context, args []string) Action {
	if len(args) < 2 {
		return errorf("ERR wrong number of arguments for 'del' command")
	}
	var n int64
	for _, k := range args[1:] {
		if ctx.Store.Delete(k) {
			n++
		}
	}
	return responseAction(resp.Encode(resp.NewInteger(n)))
}

func execExists(ctx *Context, args []string) Action {
	if len(args) < 2 {
		return errorf("ERR wrong number of arguments for 'exists' command")
	}
	var n int64
	for _, k := range args[1:] {
		if ctx.Store.Exists(k) {
			n++
		}
	}
	return responseAction(resp.Encode(resp.NewInteger(n)))
}

func execKeys(ctx *Context, args []string) Action {
	if len(args) != 2 {
		return errorf("ERR wrong number of arguments for 'keys' command")
	}
	keys := ctx.Store.Keys(args[1])
	items := make([]resp.Value, len(keys))
	for i, k := range keys {
		items[i] = resp.NewBulkStringFromString(k)
	}
	return responseAction(resp.Encode(resp.NewArray(items)))
}
