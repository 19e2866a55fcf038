package main

import (
	"strings"
	"testing"
)

func TestStatusFailsWithoutServer(t *testing.T) {
	dir := t.TempDir()
	_, errOut, ec := run("status", "--socket", dir+"/nonexistent.sock")
	if ec != 1 {
		t.Errorf("exit code = %d, want 1", ec)
	}
	if errOut == "" {
		t.Error("expected an error message when no registry is listening")
	}
}

func TestStatusUsage(t *testing.T) {
	_, errOut, ec := run("status", "-h")
	if ec != 1 {
		t.Errorf("exit code = %d, want 1", ec)
	}
	if !strings.Contains(errOut, "Usage") {
		t.Errorf("expected usage text, got %q", errOut)
	}
}
