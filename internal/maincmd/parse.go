package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/artisdom/caterpillar/lang/fragment"
	"github.com/artisdom/caterpillar/lang/parser"
)

func (c *Cmd) Parse(_ context.Context, stdio mainer.Stdio, files []string) error {
	var failed bool
	for _, path := range files {
		src, err := os.ReadFile(path)
		if err != nil {
			failed = true
			printErr(stdio, err)
			continue
		}

		res := parser.Parse(src)
		for _, nf := range res.Functions {
			fmt.Fprintf(stdio.Stdout, "%s:\n", nf.Name)
			for bi, br := range nf.Inner.Branches {
				fmt.Fprintf(stdio.Stdout, "  branch %d (%d patterns):\n", bi, len(br.Patterns))
				for _, f := range br.Body {
					fmt.Fprintf(stdio.Stdout, "    %s\n", describeFragment(f))
				}
			}
		}
		if len(res.Errors) > 0 {
			failed = true
			printErr(stdio, res.Errors)
		}
	}
	if failed {
		return fmt.Errorf("parse: one or more files failed")
	}
	return nil
}

func describeFragment(f *fragment.Fragment) string {
	switch f.Kind {
	case fragment.LiteralValue:
		return fmt.Sprintf("LiteralValue(%d)", f.Value)
	case fragment.Binding:
		return fmt.Sprintf("Binding(%s)", f.Name)
	case fragment.UnresolvedIdentifier:
		return fmt.Sprintf("UnresolvedIdentifier(%s)", f.Name)
	case fragment.Comment:
		return fmt.Sprintf("Comment(%q)", f.Text)
	case fragment.LiteralFunction:
		return "LiteralFunction(...)"
	default:
		return f.Kind.String()
	}
}
