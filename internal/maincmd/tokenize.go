package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/artisdom/caterpillar/lang/scanner"
)

func (c *Cmd) Tokenize(_ context.Context, stdio mainer.Stdio, files []string) error {
	var failed bool
	for _, path := range files {
		src, err := os.ReadFile(path)
		if err != nil {
			failed = true
			printErr(stdio, err)
			continue
		}
		for _, tok := range scanner.Tokenize(src) {
			fmt.Fprintln(stdio.Stdout, tok.String())
		}
	}
	if failed {
		return fmt.Errorf("tokenize: one or more files failed")
	}
	return nil
}
