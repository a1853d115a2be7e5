// Package main provides tests for the leapdump CLI.
package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapdump/internal/cli"
	"github.com/leapstack-labs/leapdump/internal/cli/testutil"
)

func TestVersionCommand(t *testing.T) {
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Errorf("version command error = %v", err)
	}

	if !strings.Contains(buf.String(), "leapdump") {
		t.Errorf("version output should contain 'leapdump', got: %s", buf.String())
	}
}

func TestExportToStdout(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	cmd := cli.NewRootCmd()
	out := new(bytes.Buffer)
	errOut := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{"--config", filepath.Join(dir, "leapdump.yaml"), "export", "-o", "-"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("export error = %v, stderr: %s", err, errOut.String())
	}

	dump := out.String()
	if !strings.HasPrefix(dump, "-- leapdump export (sqlite)") {
		t.Errorf("stdout should start with the dump header, got: %.80s", dump)
	}
	if strings.Contains(dump, "Export completed") {
		t.Error("the summary must not be mixed into the dump")
	}
	if !strings.Contains(errOut.String(), "Export completed") {
		t.Errorf("summary should go to stderr, got: %s", errOut.String())
	}
	if strings.Contains(dump, "alice@gmail.com") {
		t.Error("filtered rows leaked into the dump")
	}
}

func TestUnknownCommand(t *testing.T) {
	cmd := cli.NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"frobnicate"})

	if err := cmd.Execute(); err == nil {
		t.Error("expected an error for an unknown command")
	}
}
