// Package supervisor implements the runner half of the system: it allocates a loopback listening
// socket, starts the user's program with that socket inherited at the systemd socket-activation
// file descriptor (3), registers the resulting mapping with the registry control server, and
// keeps the registration alive for as long as the child runs.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/hauleth/dolores/internal/constants"
	"github.com/hauleth/dolores/internal/osutil"
	"github.com/hauleth/dolores/internal/registry"
	"github.com/hauleth/dolores/internal/wire"
)

// Options configures one supervised child.
type Options struct {
	// Name is the subdomain identifier the child is registered under. If empty, the base name
	// of Program is used.
	Name string

	ProxyKind wire.ProxyKind

	// Program and Args describe the child command.
	Program string
	Args    []string

	// SocketPath is the registry control server's UNIX datagram socket.
	SocketPath string

	// TLD is not read by Run - the registry server, not the runner, owns the authoritative
	// name.<tld> composition.
	TLD string

	Stdout io.Writer
	Stderr io.Writer
}

// Run allocates the child's listening socket, starts the child with it inherited at fd 3, sends
// Register to the registry, and blocks until the child exits or ctx is cancelled (in which case
// the child is sent an interrupt and Run waits for it to exit). Deregister is always sent before
// Run returns. Run returns the child's exit code, or an error if the child could not be started at
// all.
func Run(ctx context.Context, opts Options) (int, error) {
	consts := constants.Get()

	name := opts.Name
	if name == "" {
		name = filepath.Base(opts.Program)
	}

	ln, err := net.ListenTCP("tcp6", &net.TCPAddr{IP: net.ParseIP("::1"), Port: 0})
	if err != nil {
		return 0, fmt.Errorf("supervisor: allocate loopback socket: %w", err)
	}

	addrPort, ok := netip.AddrFromSlice(ln.Addr().(*net.TCPAddr).IP)
	if !ok {
		ln.Close()
		return 0, fmt.Errorf("supervisor: could not parse bound address %v", ln.Addr())
	}
	boundAddr := netip.AddrPortFrom(addrPort, uint16(ln.Addr().(*net.TCPAddr).Port))

	// File() returns a dup of the listener's underlying fd; the listener itself is closed
	// immediately after since ownership of the socket passes to the child. The dup survives
	// independently of the now-closed net.TCPListener.
	sockFile, err := ln.File()
	if err != nil {
		ln.Close()
		return 0, fmt.Errorf("supervisor: dup listening socket: %w", err)
	}
	ln.Close()
	defer sockFile.Close()

	// The systemd socket-activation fd-3 handoff is expressed here via exec.Cmd's ExtraFiles:
	// Go forbids a raw fork() of a multi-threaded runtime outside of the narrow pre-exec window
	// the runtime package itself uses, so os/exec's own fork+exec is the correct tool. ExtraFiles
	// appends after stdin/stdout/stderr, landing sockFile at fd 3 in the child exactly as the
	// fixed-FD-3 contract requires.
	cmd := exec.CommandContext(ctx, opts.Program, opts.Args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	cmd.ExtraFiles = []*os.File{sockFile}
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=1", consts.ListenFDsEnv),
		fmt.Sprintf("%s=%d", consts.ListenPIDEnv, os.Getpid()),
		fmt.Sprintf("%s=%s", consts.ListenFDNamesEnv, consts.ListenFDNames),
	)
	// Cancel forwards ctx's cancellation as SIGINT rather than exec's default SIGKILL, so the
	// child gets a chance at an orderly shutdown.
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("supervisor: start %s: %w", opts.Program, err)
	}

	client, clientErr := registry.Open(opts.SocketPath)
	if clientErr != nil {
		killChild(cmd)
		return 0, fmt.Errorf("supervisor: open registry client: %w", clientErr)
	}
	defer client.Close()

	registerCmd := wire.NewRegister(name, boundAddr, opts.ProxyKind)
	if err := client.Send(registerCmd); err != nil {
		killChild(cmd)
		return 0, fmt.Errorf("supervisor: register %s: %w", name, err)
	}

	sig := make(chan os.Signal, 4)
	osutil.SignalNotify(sig)

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	var runErr error
Waiting:
	for {
		select {
		case s := <-sig:
			if osutil.IsSignalUSR1(s) {
				continue
			}
			// Forward the interrupt to the child and keep waiting for it to exit; do not
			// return here, otherwise Deregister races the child's own shutdown.
			cmd.Process.Signal(os.Interrupt)
		case err := <-waitErr:
			if err != nil {
				if _, ok := err.(*exec.ExitError); !ok {
					runErr = err
				}
			}
			break Waiting
		}
	}

	deregisterCmd := wire.NewDeregister(name)
	client.Send(deregisterCmd)

	if runErr != nil {
		return 0, runErr
	}
	return cmd.ProcessState.ExitCode(), nil
}

func killChild(cmd *exec.Cmd) {
	if cmd.Process != nil {
		cmd.Process.Kill()
		cmd.Wait()
	}
}
