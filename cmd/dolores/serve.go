package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/gops/agent"

	"github.com/hauleth/dolores/internal/certgen"
	"github.com/hauleth/dolores/internal/dashboard"
	"github.com/hauleth/dolores/internal/flagutil"
	"github.com/hauleth/dolores/internal/frontend"
	"github.com/hauleth/dolores/internal/osutil"
	"github.com/hauleth/dolores/internal/registry"
	"github.com/hauleth/dolores/internal/reporter"
)

type serveConfig struct {
	domain         string
	listenAddrs    flagutil.StringValue
	socketPath     string
	caCertFile     string
	caKeyFile      string
	debug          bool
	gops           bool
	noDashboard    bool
	maxConns       int
	statusInterval time.Duration
	setuidName     string
	setgidName     string
	chrootDir      string
}

func runServe(args []string) int {
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := serveConfig{}
	fs.StringVar(&cfg.domain, "domain", consts.DefaultTLD, "Top-level suffix services are registered under")
	fs.Var(&cfg.listenAddrs, "listen", "Front-end TLS listen address (repeatable, default "+consts.DefaultListenAddr+")")
	fs.StringVar(&cfg.socketPath, "socket", socketPathDefault(), "Registry control socket path")
	fs.StringVar(&cfg.caCertFile, "ca-cert", "", "Sign service leaf certificates with this CA instead of self-signing")
	fs.StringVar(&cfg.caKeyFile, "ca-key", "", "Private key matching --ca-cert")
	fs.BoolVar(&cfg.debug, "debug", false, "Log protocol errors to stderr, routing and dial errors to stdout")
	fs.BoolVar(&cfg.gops, "gops", false, "Start github.com/google/gops agent")
	fs.BoolVar(&cfg.noDashboard, "no-dashboard", false, "Disable the management dashboard for SNI-less connections")
	fs.IntVar(&cfg.maxConns, "max-conns", 256, "Maximum concurrent front-end connections per listener, routed or not (0 disables the limit)")
	fs.DurationVar(&cfg.statusInterval, "status-interval", 5*time.Minute, "Interval between periodic status reports")
	fs.StringVar(&cfg.setuidName, "user", "", "setuid `username` to constrain process after start-up (disabled for Linux)")
	fs.StringVar(&cfg.setgidName, "group", "", "setgid `groupname` to constrain process after start-up (disabled for Linux)")
	fs.StringVar(&cfg.chrootDir, "chroot", "", "chroot `directory` to constrain process after start-up")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage:", consts.ProgramName, "serve [--domain TLD] [--listen ADDR]... [--ca-cert F --ca-key F]")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	if cfg.listenAddrs.NArg() == 0 {
		cfg.listenAddrs.Set(consts.DefaultListenAddr)
	}

	if cfg.gops {
		if err := agent.Listen(agent.Options{}); err != nil {
			return fatal("gops agent:", err)
		}
	}

	var certs registry.CertSource
	if cfg.caCertFile != "" || cfg.caKeyFile != "" {
		if cfg.caCertFile == "" || cfg.caKeyFile == "" {
			return fatal("--ca-cert and --ca-key must both be given, or neither")
		}
		certPEM, err := os.ReadFile(cfg.caCertFile)
		if err != nil {
			return fatal(err)
		}
		keyPEM, err := os.ReadFile(cfg.caKeyFile)
		if err != nil {
			return fatal(err)
		}
		ca, err := certgen.LoadCA(certPEM, keyPEM)
		if err != nil {
			return fatal(err)
		}
		certs = registry.NewCASource(ca)
	}

	store := registry.NewStore()

	ctrl, err := registry.Bind(cfg.socketPath, store, cfg.domain, certs)
	if err != nil {
		return fatal(err)
	}
	ctrl.Debug = cfg.debug
	ctrl.Stderr = os.Stderr
	defer ctrl.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reporters []reporter.Reporter
	reporters = append(reporters, store)

	var dash *dashboard.Dashboard
	if !cfg.noDashboard {
		dashCert, derr := dashboardCertificate(cfg.domain, certs)
		if derr != nil {
			return fatal(derr)
		}
		dash = dashboard.New(store, dashCert)
	}

	errorChannel := make(chan error, cfg.listenAddrs.NArg()+1)
	wg := &sync.WaitGroup{}

	var dispatchers []*frontend.Dispatcher
	for _, addr := range cfg.listenAddrs.Args() {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fatal(fmt.Errorf("serve: listen on %s: %w", addr, err))
		}
		d := frontend.NewDispatcher(ln, store, cfg.domain, cfg.maxConns)
		d.Debug = cfg.debug
		d.Stdout = os.Stdout
		if dash != nil {
			d.Dashboard = dash
		}
		dispatchers = append(dispatchers, d)
		reporters = append(reporters, d)

		fmt.Fprintln(stdout, "Listening:", addr)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Serve(ctx); err != nil {
				errorChannel <- err
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ctrl.Serve(ctx); err != nil {
			errorChannel <- err
		}
	}()

	// There is no signal from net.Listen that tells us the sockets above are fully open for
	// business, so constrain the process from a delayed goroutine rather than stall the select
	// loop below waiting on something that has no completion event of its own.
	if cfg.setuidName != "" || cfg.setgidName != "" || cfg.chrootDir != "" {
		go func() {
			time.Sleep(3 * time.Second)
			if err := osutil.Constrain(cfg.setuidName, cfg.setgidName, cfg.chrootDir); err != nil {
				errorChannel <- err
				return
			}
			if cfg.debug {
				fmt.Fprintln(stdout, "Constraints:", osutil.ConstraintReport())
			}
		}()
	}

	sig := make(chan os.Signal, 4)
	osutil.SignalNotify(sig)

	startTime := time.Now()
	nextStatusIn := cfg.statusInterval

Running:
	for {
		select {
		case s := <-sig:
			if osutil.IsSignalUSR1(s) {
				statusReport(reporters, startTime, false)
				continue
			}
			break Running

		case err := <-errorChannel:
			cancel()
			wg.Wait()
			return fatal(err)

		case <-time.After(nextStatusIn):
			statusReport(reporters, startTime, true)
			nextStatusIn = cfg.statusInterval
		}
	}

	cancel()
	wg.Wait()
	statusReport(reporters, startTime, true)
	fmt.Fprintln(stdout, consts.ProgramName, "exiting after", time.Since(startTime).Truncate(time.Second))

	return 0
}

// dashboardCertificate mints (or signs, if certs is a CA source) a catch-all certificate for the
// dashboard's own domain, which is never registered as a routable Service.
func dashboardCertificate(tld string, certs registry.CertSource) (tls.Certificate, error) {
	domain := "dashboard." + tld
	var bundle certgen.Bundle
	var err error
	if certs != nil {
		bundle, err = certs.Certificate(domain)
	} else {
		bundle, err = certgen.SelfSigned(domain)
	}
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("serve: build dashboard certificate: %w", err)
	}
	return bundle.TLSCertificate()
}

func statusReport(reporters []reporter.Reporter, startTime time.Time, resetCounters bool) {
	fmt.Fprintln(stdout, "Status Up:", consts.ProgramName, consts.Version, time.Since(startTime).Truncate(time.Second))
	for _, r := range reporters {
		for _, line := range strings.Split(r.Report(resetCounters), "\n") {
			if len(line) > 0 {
				fmt.Fprintf(stdout, "%s: %s\n", r.Name(), line)
			}
		}
	}
}
