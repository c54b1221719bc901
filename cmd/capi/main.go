// Command capi is the installed front end for the capi stack-language
// toolchain: urfave/cli/v3 supplies flag parsing, usage text and
// subcommand dispatch around internal/maincmd.Cmd's testable core, and a
// readline-backed repl subcommand stands in for the desktop/terminal
// debugger UI the language spec places out of scope (SPEC_FULL.md's
// wiring table, following wudi-hey's cmd/hey for the urfave/cli/v3
// shape).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"
	"github.com/urfave/cli/v3"

	"github.com/artisdom/caterpillar/internal/maincmd"
)

// placeholder values, replaced on build
var (
	version   = "{v}"
	buildDate = "{d}"
)

func main() {
	c := &maincmd.Cmd{BuildVersion: version, BuildDate: buildDate}

	app := &cli.Command{
		Name:  "capi",
		Usage: "compiler, evaluator and stepping debugger driver for the capi stack language",
		Commands: []*cli.Command{
			pipelineCommand("tokenize", "print the token stream for each file", c.Tokenize),
			pipelineCommand("parse", "print the parsed fragment tree for each file", c.Parse),
			pipelineCommand("resolve", "parse and resolve each file, reporting unresolved identifiers", c.Resolve),
			pipelineCommand("compile", "run the full pipeline and print a disassembly", c.Compile),
			pipelineCommand("run", "compile and run each file to completion against the reference host", c.Run),
			pipelineCommand("repl", "compile a file and open an interactive stepping session against it", c.Repl),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "capi: %s\n", err)
		os.Exit(1)
	}
}

// pipelineCommand adapts one of internal/maincmd.Cmd's file-taking methods
// into a urfave/cli/v3 Command, so capi's flag parsing and usage text stay
// layered on top of the mainer contract rather than duplicated.
func pipelineCommand(name, usage string, fn func(context.Context, mainer.Stdio, []string) error) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			files := cmd.Args().Slice()
			if len(files) == 0 {
				return fmt.Errorf("%s: at least one file must be provided", name)
			}
			return fn(ctx, mainer.CurrentStdio(), files)
		},
	}
}
