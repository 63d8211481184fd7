// Command shard-reconciler is the process entry point: it wires
// configuration, the UPSF gateway client, and the control loop together
// behind a mitchellh/cli command table, the way consul's own main
// registers each subcommand against a *cli.CLI.
package main

import (
	"os"

	"github.com/mitchellh/cli"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	ui := &cli.BasicUi{
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
		Reader:      os.Stdin,
	}

	c := cli.NewCLI("shard-reconciler", "0.1.0")
	c.Args = os.Args[1:]
	c.Commands = map[string]cli.CommandFactory{
		"run": func() (cli.Command, error) {
			return &RunCommand{UI: ui}, nil
		},
	}

	exitCode, err := c.Run()
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	return exitCode
}
