package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hauleth/dolores/internal/certgen"
)

func runGen(args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(stderr, "Usage:", consts.ProgramName, "gen {cert,ca,completion,man} ...")
		return 1
	}

	switch args[1] {
	case "cert":
		return runGenCert(args[1:])
	case "ca":
		return runGenCA(args[1:])
	case "completion":
		return runGenCompletion(args[1:])
	case "man":
		return runGenMan(args[1:])
	default:
		fmt.Fprintln(stderr, "Unknown gen subcommand:", args[1])
		return 1
	}
}

func runGenCert(args []string) int {
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)

	var domain, outCert, outKey, caCertFile, caKeyFile string
	fs.StringVar(&domain, "domain", "", "Domain the certificate covers (and *.domain)")
	fs.StringVar(&outCert, "out-cert", "dolores.crt", "Output certificate path")
	fs.StringVar(&outKey, "out-key", "dolores.key", "Output private key path")
	fs.StringVar(&caCertFile, "ca-cert", "", "Sign with this CA certificate instead of self-signing")
	fs.StringVar(&caKeyFile, "ca-key", "", "Private key matching --ca-cert")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage:", consts.ProgramName, "gen cert --domain D [--out-cert F] [--out-key F] [--ca-cert F --ca-key F]")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	if domain == "" {
		return fatal("--domain is required")
	}
	if (caCertFile == "") != (caKeyFile == "") {
		return fatal("--ca-cert and --ca-key must both be given, or neither")
	}

	var bundle certgen.Bundle
	var err error
	if caCertFile != "" {
		certPEM, rerr := os.ReadFile(caCertFile)
		if rerr != nil {
			return fatal(rerr)
		}
		keyPEM, rerr := os.ReadFile(caKeyFile)
		if rerr != nil {
			return fatal(rerr)
		}
		ca, cerr := certgen.LoadCA(certPEM, keyPEM)
		if cerr != nil {
			return fatal(cerr)
		}
		bundle, err = certgen.FromCA(domain, ca)
	} else {
		bundle, err = certgen.SelfSigned(domain)
	}
	if err != nil {
		return fatal(err)
	}

	if err := bundle.WriteFiles(outCert, outKey); err != nil {
		return fatal(err)
	}

	fmt.Fprintln(stdout, "Wrote", outCert, "and", outKey, "for", domain)
	return 0
}

func runGenCA(args []string) int {
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)

	var domain, outCert, outKey string
	fs.StringVar(&domain, "domain", "", "Domain the CA is restricted to signing for (and *.domain)")
	fs.StringVar(&outCert, "out-cert", "dolores-ca.crt", "Output CA certificate path")
	fs.StringVar(&outKey, "out-key", "dolores-ca.key", "Output CA private key path")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage:", consts.ProgramName, "gen ca --domain D [--out-cert F] [--out-key F]")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	if domain == "" {
		return fatal("--domain is required")
	}

	bundle, err := certgen.GenerateCA(domain)
	if err != nil {
		return fatal(err)
	}

	if err := bundle.WriteFiles(outCert, outKey); err != nil {
		return fatal(err)
	}

	fmt.Fprintln(stdout, "Wrote", outCert, "and", outKey, "- pass them as --ca-cert/--ca-key to", consts.ProgramName, "serve or gen cert")
	return 0
}

func runGenCompletion(args []string) int {
	fmt.Fprintf(stdout, `_%[1]s_completions() {
  local cur prev
  cur="${COMP_WORDS[COMP_CWORD]}"
  prev="${COMP_WORDS[COMP_CWORD-1]}"

  if [ "$COMP_CWORD" -eq 1 ]; then
    COMPREPLY=($(compgen -W "run serve status gen help version" -- "$cur"))
    return
  fi

  case "$prev" in
    gen) COMPREPLY=($(compgen -W "cert ca completion man" -- "$cur")) ;;
    --proxy) COMPREPLY=($(compgen -W "passthrough terminating" -- "$cur")) ;;
  esac
}
complete -F _%[1]s_completions %[1]s
`, consts.ProgramName)
	return 0
}

func runGenMan(args []string) int {
	fmt.Fprintf(stdout, `.TH %[1]s 1
.SH NAME
%[1]s \- subdomain TLS reverse proxy for local development
.SH SYNOPSIS
.B %[1]s
run [--name NAME] [--proxy {passthrough,terminating}] PROG [ARGS...]
.br
.B %[1]s
serve [--domain TLD] [--listen ADDR]...
.br
.B %[1]s
status [NAME]
.br
.B %[1]s
gen {cert,ca,completion,man}
.SH DESCRIPTION
%[1]s gives locally-run applications stable, TLS-terminated subdomain endpoints under a
configurable top-level suffix (default localhost), without per-app port juggling.
`, consts.ProgramName)
	return 0
}
