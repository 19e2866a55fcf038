package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/hauleth/dolores/internal/supervisor"
	"github.com/hauleth/dolores/internal/wire"
)

func runRun(args []string) int {
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)

	var name, proxyKindStr, socketPath string

	fs.StringVar(&name, "name", "", "Subdomain identifier to register (default: program's base name)")
	fs.StringVar(&proxyKindStr, "proxy", "terminating", "Proxy kind: passthrough or terminating")
	fs.StringVar(&socketPath, "socket", socketPathDefault(), "Registry control socket path")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage:", consts.ProgramName, "run [--name NAME] [--proxy {passthrough,terminating}] PROG [ARGS...]")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 1
	}

	kind, err := wire.ParseProxyKind(proxyKindStr)
	if err != nil {
		return fatal(err)
	}

	exitCode, err := supervisor.Run(context.Background(), supervisor.Options{
		Name:       name,
		ProxyKind:  kind,
		Program:    fs.Arg(0),
		Args:       fs.Args()[1:],
		SocketPath: socketPath,
		TLD:        consts.DefaultTLD,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	})
	if err != nil {
		return fatal(err)
	}

	return exitCode
}

func socketPathDefault() string {
	if p := os.Getenv(consts.SocketPathEnv); p != "" {
		return p
	}
	return consts.DefaultSocketPath
}
