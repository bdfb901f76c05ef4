package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Priya8975/taskflow-webhooks/internal/signature"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	want := map[string]bool{"sign": false, "verify": false, "prune": false}
	for _, c := range newRootCmd().Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %s", name)
		}
	}
}

func TestSign_FromStdin(t *testing.T) {
	payload := `{"event":"task.created","timestamp":"2026-01-01T00:00:00.000Z","data":{}}`

	out, err := run(t, payload, "sign", "--secret", "k")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := strings.TrimSpace(out), signature.Sign([]byte(payload), "k"); got != want {
		t.Errorf("sign = %q, want %q", got, want)
	}
}

func TestVerify_FromFile(t *testing.T) {
	payload := []byte(`{"event":"comment.created"}`)
	path := filepath.Join(t.TempDir(), "payload.json")
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		t.Fatal(err)
	}
	sig := signature.Sign(payload, "k")

	out, err := run(t, "", "verify", "--secret", "k", "--signature", sig, "--file", path)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !strings.Contains(out, "signature valid") {
		t.Errorf("output = %q", out)
	}

	_, err = run(t, "", "verify", "--secret", "other", "--signature", sig, "--file", path)
	if !errors.Is(err, errSignatureMismatch) {
		t.Errorf("expected mismatch, got %v", err)
	}
}

func TestSign_RequiresSecret(t *testing.T) {
	if _, err := run(t, "{}", "sign"); err == nil {
		t.Error("expected an error without --secret")
	}
}

func TestPrune_RequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := run(t, "", "prune"); err == nil {
		t.Error("expected an error without a database URL")
	}
}
