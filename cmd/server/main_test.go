package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nutshimit/mashin-registry/internal/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if want := "mashin-registry v" + version; !strings.Contains(out, want) {
		t.Errorf("output = %q, want it to contain %q", out, want)
	}
}

func TestKeysGenerate(t *testing.T) {
	out, err := execute(t, "keys", "generate")
	if err != nil {
		t.Fatalf("keys generate: %v", err)
	}

	var key, hash string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		switch {
		case strings.HasPrefix(line, "key:"):
			key = strings.TrimSpace(strings.TrimPrefix(line, "key:"))
		case strings.HasPrefix(line, "hash:"):
			hash = strings.TrimSpace(strings.TrimPrefix(line, "hash:"))
		}
	}
	if key == "" || hash == "" {
		t.Fatalf("output = %q, want key and hash lines", out)
	}
	if !auth.ValidateAPIKey(key, hash) {
		t.Error("generated hash does not validate the generated key")
	}
}

func TestKeysHash(t *testing.T) {
	out, err := execute(t, "keys", "hash", "secret-admin-key")
	if err != nil {
		t.Fatalf("keys hash: %v", err)
	}
	if !auth.ValidateAPIKey("secret-admin-key", strings.TrimSpace(out)) {
		t.Errorf("hash %q does not validate the key", out)
	}
}

func TestMigrateRejectsBadArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no direction", []string{"migrate"}},
		{"bad direction", []string{"migrate", "sideways"}},
		{"force without version", []string{"migrate", "force"}},
		{"force non-numeric", []string{"migrate", "force", "abc"}},
		{"force zero", []string{"migrate", "force", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Errorf("%v: expected error", tt.args)
			}
		})
	}
}
