package supervisor

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hauleth/dolores/internal/registry"
	"github.com/hauleth/dolores/internal/wire"
)

func startRegistry(t *testing.T) (*registry.Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "dolores.sock")

	store := registry.NewStore()
	srv, err := registry.Bind(path, store, "localhost", nil)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	go srv.Serve(context.Background())
	t.Cleanup(func() { srv.Close() })

	return store, path
}

func TestRunRegistersChildAndPropagatesEnv(t *testing.T) {
	store, sockPath := startRegistry(t)

	var stdout bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	var exitCode int
	var runErr error
	go func() {
		exitCode, runErr = Run(ctx, Options{
			Name:       "web",
			ProxyKind:  wire.ProxyTerminating,
			Program:    "/bin/sh",
			Args:       []string{"-c", "echo $LISTEN_FDS $LISTEN_PID $LISTEN_FDNAMES; sleep 5"},
			SocketPath: sockPath,
			TLD:        "localhost",
			Stdout:     &stdout,
		})
		close(done)
	}()

	waitFor(t, func() bool {
		_, ok := store.Lookup("web.localhost")
		return ok
	})

	svc, _ := store.Lookup("web.localhost")
	if svc.ProxyKind != wire.ProxyTerminating {
		t.Errorf("ProxyKind = %v, want ProxyTerminating", svc.ProxyKind)
	}

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	_ = runErr
	_ = exitCode

	if _, ok := store.Lookup("web.localhost"); ok {
		t.Error("service was not deregistered after Run returned")
	}

	out := stdout.String()
	if !strings.Contains(out, "1 ") {
		t.Errorf("child stdout = %q, want LISTEN_FDS=1 echoed", out)
	}
	if !strings.Contains(out, "http") {
		t.Errorf("child stdout = %q, want LISTEN_FDNAMES=http echoed", out)
	}
}

func TestRunSurfacesStartFailure(t *testing.T) {
	_, sockPath := startRegistry(t)

	_, err := Run(context.Background(), Options{
		Name:       "broken",
		ProxyKind:  wire.ProxyPassthrough,
		Program:    "/no/such/binary/dolores-test",
		SocketPath: sockPath,
	})
	if err == nil {
		t.Error("expected an error for a nonexistent program")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
