package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/artisdom/caterpillar/host"
	"github.com/artisdom/caterpillar/lang/parser"
	"github.com/artisdom/caterpillar/lang/resolve"
)

func (c *Cmd) Resolve(_ context.Context, stdio mainer.Stdio, files []string) error {
	var failed bool
	for _, path := range files {
		src, err := os.ReadFile(path)
		if err != nil {
			failed = true
			printErr(stdio, err)
			continue
		}

		res := parser.Parse(src)
		if len(res.Errors) > 0 {
			failed = true
			printErr(stdio, res.Errors)
			continue
		}

		hostFns := resolve.HostFunctions(host.HostFunctionMap(host.NewRefHost(nil, nil)))
		if err := resolve.Resolve(res.Functions, hostFns); err != nil {
			failed = true
			printErr(stdio, err)
			continue
		}
		fmt.Fprintf(stdio.Stdout, "%s: %d function(s) resolved cleanly\n", path, len(res.Functions))
	}
	if failed {
		return fmt.Errorf("resolve: one or more files failed")
	}
	return nil
}
