package command

import (
	"strconv"

	"redisreplica/internal/resp"
)

func init() {
	register(Descriptor{Name: "RPUSH", IsWrite: true, Execute: execRPush})
	register(Descriptor{Name: "RPOP", IsWrite: true, Execute: execRPop})
	register(Descriptor{Name: "LLEN", Execute: execLLen})
	register(Descriptor{Name: "LRANGE", Execute: execLRange})
}

func execRPush(ctx *Context, args []string) Action {
	if len(args) < 3 {
		return errorf("ERR wrong number of arguments for 'rpush' command")
	}
	key := args[1]
	var n int
	for _, v := range args[2:] {
		n = ctx.Store.RPush(key, []byte(v))
	}
	return responseAction(resp.Encode(resp.NewInteger(int64(n))))
}

func execRPop(ctx *Context, args []string) Action {
	if len(args) != 2 {
		return errorf("ERR wrong number of arguments for 'rpop' command")
	}
	v, ok := ctx.Store.RPop(args[1])
	if !ok {
		return responseAction(resp.Encode(resp.NullBulk()))
	}
	return responseAction(resp.Encode(resp.NewBulkString(v)))
}

func execLLen(ctx *Context, args []string) Action {
	if len(args) != 2 {
		return errorf("ERR wrong number of arguments for 'llen' command")
	}
	n := ctx.Store.LLen(args[1])
	return responseAction(resp.Encode(resp.NewInteger(int64(n))))
}

func execLRange(ctx *Context, args []string) Action {
	if len(args) != 4 {
		return errorf("ERR wrong number of arguments for 'lrange' command")
	}
	start, err1 := strconv.Atoi(args[2])
	stop, err2 := strconv.Atoi(args[3])
	if err1 != nil || err2 != nil {
		return errorf("ERR value is not an integer or out of range")
	}
	items := ctx.Store.LRange(args[1], start, stop)
	out := make([]resp.Value, len(items))
	for i, v := range items {
		out[i] = resp.NewBulkString(v)
	}
	return responseAction(resp.Encode(resp.NewArray(out)))
}
