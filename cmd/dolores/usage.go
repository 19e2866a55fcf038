package main

import "io"

func usage(w io.Writer) {
	io.WriteString(w, consts.ProgramName+` - subdomain TLS reverse proxy for local development

Usage:

  `+consts.ProgramName+` run [--name NAME] [--proxy {passthrough,terminating}] PROG [ARGS...]
  `+consts.ProgramName+` serve [--domain TLD] [--listen ADDR]... [--ca-cert FILE --ca-key FILE]
  `+consts.ProgramName+` status [NAME]
  `+consts.ProgramName+` gen {cert,ca,completion,man} ...

Shared flags (each accepted only by the subcommands named in brackets; gen takes neither):

  --debug          [serve] Log protocol errors to stderr, routing and dial errors to stdout
  --socket PATH    [run, serve, status] Control socket path (env `+consts.SocketPathEnv+`, default `+consts.DefaultSocketPath+`)

See '`+consts.ProgramName+` <command> -h' for subcommand-specific flags.
`)
}
