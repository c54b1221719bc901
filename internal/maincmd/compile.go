package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/artisdom/caterpillar/lang/compiler"
)

func (c *Cmd) Compile(_ context.Context, stdio mainer.Stdio, files []string) error {
	var failed bool
	for _, path := range files {
		src, err := os.ReadFile(path)
		if err != nil {
			failed = true
			printErr(stdio, err)
			continue
		}

		b, err := buildFile(src)
		if err != nil {
			failed = true
			printErr(stdio, err)
			continue
		}

		fmt.Fprintf(stdio.Stdout, "%s:\n", path)
		fmt.Fprint(stdio.Stdout, compiler.Dasm(b.Compiled.Instructions))
	}
	if failed {
		return fmt.Errorf("compile: one or more files failed")
	}
	return nil
}
