// dolores is a developer-workstation reverse proxy: a front-end server terminates or passes
// through TLS for `*.localhost`-style subdomains, and a small runner supervises locally-started
// applications, allocating each one a loopback socket and registering its subdomain with the
// server.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/hauleth/dolores/internal/constants"
)

var (
	consts = constants.Get()

	stdout io.Writer
	stderr io.Writer
)

func mainInit(out, err io.Writer) {
	stdout = out
	stderr = err
}

func main() {
	mainInit(os.Stdout, os.Stderr)
	os.Exit(mainExecute(os.Args))
}

func fatal(args ...interface{}) int {
	fmt.Fprint(stderr, "Fatal: ", consts.ProgramName, ": ")
	fmt.Fprintln(stderr, args...)
	return 1
}

func mainExecute(args []string) int {
	if len(args) < 2 {
		usage(stderr)
		return 1
	}

	sub := args[1]
	rest := args[1:] // rest[0] is the subcommand name, used as flag.FlagSet's program name

	switch sub {
	case "run":
		return runRun(rest)
	case "serve":
		return runServe(rest)
	case "status":
		return runStatus(rest)
	case "gen":
		return runGen(rest)
	case "-h", "--help", "help":
		usage(stdout)
		return 0
	case "-v", "--version", "version":
		fmt.Fprintln(stdout, consts.ProgramName, consts.Version)
		return 0
	default:
		fmt.Fprintln(stderr, "Unknown command:", sub)
		usage(stderr)
		return 1
	}
}
