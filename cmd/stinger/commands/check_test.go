package commands

import (
	"bytes"
	"testing"
)

func newTestRoot() (*bytes.Buffer, func(args ...string) error) {
	out := &bytes.Buffer{}
	root := NewRootCommand()
	root.SetOut(out)
	root.SetErr(out)
	return out, func(args ...string) error {
		root.SetArgs(args)
		return root.Execute()
	}
}

func TestCheckPromptAllowsCleanText(t *testing.T) {
	out, run := newTestRoot()
	if err := run("check-prompt", "what time is it"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := out.String(); !bytes.Contains([]byte(got), []byte("ALLOWED")) {
		t.Fatalf("output = %q, want ALLOWED", got)
	}
}

func TestCheckPromptBlocksAndExitsUserError(t *testing.T) {
	out, run := newTestRoot()
	err := run("check-prompt", "My SSN is 123-45-6789")
	if err == nil {
		t.Fatal("expected an error for a blocked prompt")
	}
	exitErr, ok := err.(ExitCoder)
	if !ok {
		t.Fatalf("error %v does not implement ExitCoder", err)
	}
	if exitErr.ExitCode() != 1 {
		t.Fatalf("exit code = %d, want 1", exitErr.ExitCode())
	}
	if got := out.String(); !bytes.Contains([]byte(got), []byte("BLOCKED")) {
		t.Fatalf("output = %q, want BLOCKED", got)
	}
}

func TestHealthCommandPrintsStatus(t *testing.T) {
	out, run := newTestRoot()
	if err := run("health"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := out.String(); !bytes.Contains([]byte(got), []byte("status:")) {
		t.Fatalf("output = %q, want status line", got)
	}
}

func TestDemoRunsAllPrompts(t *testing.T) {
	out, run := newTestRoot()
	if err := run("demo"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := out.String(); !bytes.Contains([]byte(got), []byte("prompt 3")) {
		t.Fatalf("output = %q, want 3 demo prompts", got)
	}
}
