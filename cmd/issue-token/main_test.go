package main

import (
	"path/filepath"
	"testing"
)

func TestRun_RejectsUnknownRole(t *testing.T) {
	if err := run(filepath.Join(t.TempDir(), ".env"), "ops-1", "super_admin"); err == nil {
		t.Fatalf("expected unknown role error")
	}
}

func TestRun_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if err := run(filepath.Join(t.TempDir(), ".env"), "ops-1", "operator"); err == nil {
		t.Fatalf("expected missing secret error")
	}
}

func TestRun_RequiresSubject(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	if err := run(filepath.Join(t.TempDir(), ".env"), "", "operator"); err == nil {
		t.Fatalf("expected missing subject error")
	}
}

func TestRun_Issues(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	if err := run(filepath.Join(t.TempDir(), ".env"), "ops-1", "auditor"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}
