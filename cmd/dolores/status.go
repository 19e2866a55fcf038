package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/hauleth/dolores/internal/registry"
	"github.com/hauleth/dolores/internal/wire"
)

func runStatus(args []string) int {
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)

	var socketPath string
	fs.StringVar(&socketPath, "socket", socketPathDefault(), "Registry control socket path")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage:", consts.ProgramName, "status [NAME]")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}

	var name string
	if fs.NArg() > 0 {
		name = fs.Arg(0)
	}

	client, err := registry.Open(socketPath)
	if err != nil {
		return fatal(err)
	}
	defer client.Close()

	reply, err := client.Call(context.Background(), wire.NewStatus(name), consts.CallTimeout)
	if err != nil {
		return fatal(err)
	}

	fmt.Fprint(stdout, reply)
	return 0
}
