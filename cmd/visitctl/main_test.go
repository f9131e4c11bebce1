package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"field-visit-bot/internal/identity"
	"field-visit-bot/internal/policy"
	"field-visit-bot/internal/repo"
)

func sqliteEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"DATABASE_URL", "VISIT_SINK", "GOOGLE_SHEET_ID", "GOOGLE_SHEET_NAME", "GOOGLE_CREDENTIALS_JSON", "GOOGLE_CREDENTIALS_FILE", "TIMEZONE"} {
		t.Setenv(k, "")
	}
	t.Setenv("IDENTITY_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "visits.db"))
}

func TestRunHelp(t *testing.T) {
	var out bytes.Buffer
	if err := run(nil, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "visitctl resolve --chat-id N") {
		t.Errorf("unexpected usage %q", out.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if err := run([]string{"purge"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestResolveRequiresChatID(t *testing.T) {
	sqliteEnv(t)
	err := run([]string{"resolve"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "--chat-id") {
		t.Fatalf("expected --chat-id error, got %v", err)
	}
}

func TestMigrateThenResolveUnmapped(t *testing.T) {
	sqliteEnv(t)

	var out bytes.Buffer
	if err := run([]string{"migrate"}, &out); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out.String(), "migrations applied") {
		t.Errorf("unexpected migrate output %q", out.String())
	}

	out.Reset()
	if err := run([]string{"resolve", "--chat-id", "999"}, &out); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for _, want := range []string{"chat_user_id: 999", "mapping:      none", "allowed:      false", "reason:       unmapped"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("resolve output missing %q:\n%s", want, out.String())
		}
	}
}

func TestPrintDecisionFoundAccount(t *testing.T) {
	res := identity.Resolution{
		ChatUserID: 111,
		Found:      true,
		Mapping:    repo.ChatMapping{ID: 3, ChatUserID: 111, AccountID: 10, Active: true},
		Account:    repo.Account{ID: 10, DisplayName: "Ayşe", Role: repo.RoleSalesRep},
	}

	var out bytes.Buffer
	printDecision(&out, res, policy.Evaluate(res))

	for _, want := range []string{"mapping_id:   3", "role:         sales_rep", "active:       unset", "allowed:      true", "reason:       allowed"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}
