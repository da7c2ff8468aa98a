package command

import (
	"fmt"
	"strings"

	"redisreplica/internal/resp"
)

func init() {
	register(Descriptor{Name: "CONFIG", Execute: execConfig})
	register(Descriptor{Name: "INFO", Execute: execInfo})
}

// execConfig only implements CONFIG GET: the server's Config carries
// exactly Dir and DBFilename, so every other key is genuinely unknown and
// answers with an empty bulk rather than an error.
func execConfig(ctx *Context, args []string) Action {
	if len(args) != 3 || strings.ToUpper(args[1]) != "GET" {
		return errorf("ERR unsupported CONFIG subcommand")
	}

	key := strings.ToLower(args[2])
	var val string
	switch key {
	case "dir":
		val = ctx.Config.Dir
	case "dbfilename":
		val = ctx.Config.DBFilename
	default:
		return responseAction(resp.Encode(resp.NewArray([]resp.Value{
			resp.NewBulkStringFromString(args[2]),
			resp.NewBulkStringFromString(""),
		})))
	}

	return responseAction(resp.Encode(resp.NewArray([]resp.Value{
		resp.NewBulkStringFromString(args[2]),
		resp.NewBulkStringFromString(val),
	})))
}

func execInfo(ctx *Context, args []string) Action {
	var b strings.Builder
	if ctx.Repl == nil || ctx.Repl.Role() == "master" {
		b.WriteString("role:master\n")
		if ctx.Repl != nil {
			fmt.Fprintf(&b, "master_replid:%s\n", ctx.Repl.ReplID())
			fmt.Fprintf(&b, "master_repl_offset:%d\n", ctx.Repl.Offset())
		}
	} else {
		b.WriteString("role:slave\n")
	}
	return responseAction(resp.Encode(resp.NewBulkStringFromString(b.String())))
}
