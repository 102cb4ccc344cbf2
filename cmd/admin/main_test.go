package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"yatube/internal/db"
	"yatube/internal/models"
)

func TestGroupCommands(t *testing.T) {
	database, err := db.Open("sqlite", filepath.Join(t.TempDir(), "admin.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close(database)

	var out bytes.Buffer
	if err := run(database, []string{"group", "create", "-title", "Cats", "-slug", "cats"}, &out); err != nil {
		t.Fatalf("create: %v", err)
	}
	err = run(database, []string{"group", "create", "-title", "Again", "-slug", "cats"}, &out)
	if !errors.Is(err, models.ErrDuplicateSlug) {
		t.Fatalf("duplicate slug: %v", err)
	}

	out.Reset()
	if err := run(database, []string{"group", "list"}, &out); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), "cats") || !strings.Contains(out.String(), "Cats") {
		t.Fatalf("list output %q", out.String())
	}

	if err := run(database, []string{"group", "delete", "-slug", "cats"}, &out); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := run(database, []string{"group", "delete", "-slug", "cats"}, &out); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestUsage(t *testing.T) {
	var out bytes.Buffer
	for _, args := range [][]string{nil, {"post"}, {"group", "rename"}, {"group", "create", "-slug", "x"}} {
		if err := run(nil, args, &out); !errors.Is(err, errUsage) {
			t.Fatalf("%v: expected usage error, got %v", args, err)
		}
	}
}
