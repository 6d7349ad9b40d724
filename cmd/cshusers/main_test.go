package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cubeflix/csh/internal/userstore"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestNewCommandCreatesEmptyFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "users.json")

	if _, err := runCmd(t, "new", file); err != nil {
		t.Fatal(err)
	}
	store, err := userstore.Open(file)
	if err != nil {
		t.Fatal(err)
	}
	if store.Count() != 0 {
		t.Fatalf("expected empty store, got %d users", store.Count())
	}
}

func TestAddGetEditRemoveCommands(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "users.json")

	if _, err := runCmd(t, "add", file, "-u", "alice", "-p", "hunter2", "-r", "a"); err != nil {
		t.Fatal(err)
	}

	out, err := runCmd(t, "get", file, "-u", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "PERMISSIONS [A]") {
		t.Fatalf("expected admin permissions in output, got %q", out)
	}

	if _, err := runCmd(t, "edit", file, "-u", "alice", "-r", "r"); err != nil {
		t.Fatal(err)
	}
	out, err = runCmd(t, "get", file, "-u", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "PERMISSIONS [R]") {
		t.Fatalf("expected read permissions after edit, got %q", out)
	}

	if _, err := runCmd(t, "remove", file, "-u", "alice"); err != nil {
		t.Fatal(err)
	}
	store, err := userstore.Open(file)
	if err != nil {
		t.Fatal(err)
	}
	if store.Exists("alice") {
		t.Fatal("expected alice to be removed")
	}
}

func TestAddCommandRejectsInvalidPermission(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "users.json")

	if _, err := runCmd(t, "add", file, "-u", "bob", "-p", "pw", "-r", "x"); err == nil {
		t.Fatal("expected error for invalid permission")
	}
}

func TestGetCommandReportsMissingUser(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "users.json")
	if _, err := runCmd(t, "new", file); err != nil {
		t.Fatal(err)
	}
	if _, err := runCmd(t, "get", file, "-u", "nobody"); err == nil {
		t.Fatal("expected error for missing user")
	}
}

func TestParsePermissionRejectsInvalid(t *testing.T) {
	if _, err := parsePermission("x"); err == nil {
		t.Fatal("expected error for invalid permission")
	}
	for _, p := range []string{"r", "w", "a"} {
		if _, err := parsePermission(p); err != nil {
			t.Fatalf("unexpected error for permission %q: %v", p, err)
		}
	}
}
