package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/satyaki-up/issueboard/internal/config"
	"github.com/satyaki-up/issueboard/internal/issues"
)

type board struct {
	t      *testing.T
	config string
}

func newBoard(t *testing.T) *board {
	t.Helper()
	for _, k := range []string{"BOARD_DB", "BOARD_DB_PATH", "BOARD_PROJECT", "BOARD_ACTOR", "BOARD_ADDR", "BOARD_WATCH_DEBOUNCE", "BOARD_LOG_LEVEL", "BOARD_OTEL_ENABLED"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	code, out, errOut := runBoard(t, "init", "--dir", dir, "--project", "tst", "--actor", "ana")
	if code != 0 {
		t.Fatalf("init exit %d: %s", code, errOut)
	}
	want := filepath.Join(dir, config.FileName)
	if !strings.Contains(out, want) {
		t.Fatalf("expected init to report %s, got %q", want, out)
	}
	return &board{t: t, config: want}
}

func runBoard(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (b *board) run(args ...string) (int, string, string) {
	b.t.Helper()
	return runBoard(b.t, append([]string{"--config", b.config}, args...)...)
}

func (b *board) create(title string, extra ...string) issues.Issue {
	b.t.Helper()
	code, out, errOut := b.run(append([]string{"--json", "create", title}, extra...)...)
	if code != 0 {
		b.t.Fatalf("create %q exit %d: %s", title, code, errOut)
	}
	var is issues.Issue
	if err := json.Unmarshal([]byte(out), &is); err != nil {
		b.t.Fatalf("decode create output %q: %v", out, err)
	}
	return is
}

func TestCreateAndList(t *testing.T) {
	b := newBoard(t)
	first := b.create("Login page crashes", "--priority", "high")
	second := b.create("Dark mode", "--assignee", "bo")

	if !strings.HasPrefix(first.ID, "tst-") {
		t.Fatalf("expected project prefix, got %q", first.ID)
	}
	if first.CreatedBy != "ana" || first.AssignedTo != "ana" || first.Priority != issues.PriorityHigh {
		t.Fatalf("unexpected defaults %+v", first)
	}
	if second.AssignedTo != "bo" || second.Priority != issues.PriorityMedium {
		t.Fatalf("unexpected fields %+v", second)
	}

	code, out, errOut := b.run("--json", "list")
	if code != 0 {
		t.Fatalf("list exit %d: %s", code, errOut)
	}
	var snap issues.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(snap.Issues) != 2 || snap.Issues[0].ID != second.ID {
		t.Fatalf("expected newest first, got %+v", snap.Issues)
	}
	if snap.Version == 0 {
		t.Fatalf("expected a non-zero revision")
	}

	code, out, _ = b.run("list")
	if code != 0 || !strings.Contains(out, "Open (2)") || !strings.Contains(out, "Done (0)") {
		t.Fatalf("unexpected board output (exit %d):\n%s", code, out)
	}

	code, out, _ = b.run("list", "--assignee", "bo", "--status", "open")
	if code != 0 || !strings.Contains(out, "Dark mode") || strings.Contains(out, "Login page") {
		t.Fatalf("unexpected filtered output (exit %d):\n%s", code, out)
	}
}

func TestMoveEnforcesWorkflow(t *testing.T) {
	b := newBoard(t)
	is := b.create("Signup page")

	code, _, errOut := b.run("move", is.ID, "done")
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(errOut, issues.WorkflowViolationMessage) {
		t.Fatalf("expected violation message, got %q", errOut)
	}

	if code, _, errOut := b.run("move", is.ID, "in-progress"); code != 0 {
		t.Fatalf("move to in progress exit %d: %s", code, errOut)
	}
	if code, _, errOut := b.run("move", is.ID, "done"); code != 0 {
		t.Fatalf("move to done exit %d: %s", code, errOut)
	}
	code, out, _ := b.run("show", is.ID)
	if code != 0 || !strings.Contains(out, "status: Done") {
		t.Fatalf("unexpected show output (exit %d):\n%s", code, out)
	}

	if code, _, _ := b.run("move", is.ID, "sideways"); code != 2 {
		t.Fatalf("expected exit 2 for unknown status, got %d", code)
	}
	if code, _, _ := b.run("move", "tst-missing", "open"); code != 3 {
		t.Fatalf("expected exit 3 for missing issue, got %d", code)
	}
}

func TestDuplicateNeedsForce(t *testing.T) {
	b := newBoard(t)
	b.create("Login page crashes")

	code, out, _ := b.run("create", "login page")
	if code != 4 {
		t.Fatalf("expected exit 4, got %d", code)
	}
	if !strings.Contains(out, "Login page crashes (Open)") || !strings.Contains(out, "--force") {
		t.Fatalf("expected similar issue listing, got:\n%s", out)
	}

	_, out, _ = b.run("--json", "list")
	var snap issues.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(snap.Issues) != 1 {
		t.Fatalf("unconfirmed create wrote an issue: %+v", snap.Issues)
	}

	b.create("login page", "--force")
	if code, _, _ := b.run("create", "--title", "   "); code != 2 {
		t.Fatalf("expected exit 2 for blank title, got %d", code)
	}
}

func TestDeleteRequiresYes(t *testing.T) {
	b := newBoard(t)
	is := b.create("Remove me")

	if code, _, _ := b.run("delete", is.ID); code != 4 {
		t.Fatalf("expected exit 4 without --yes, got %d", code)
	}
	if code, _, _ := b.run("show", is.ID); code != 0 {
		t.Fatalf("issue deleted without confirmation")
	}
	if code, _, errOut := b.run("delete", is.ID, "--yes"); code != 0 {
		t.Fatalf("delete exit %d: %s", code, errOut)
	}
	if code, _, _ := b.run("show", is.ID); code != 3 {
		t.Fatalf("expected exit 3 after delete, got %d", code)
	}
	if code, _, _ := b.run("delete", is.ID, "--yes"); code != 3 {
		t.Fatalf("expected exit 3 deleting twice, got %d", code)
	}
}

func TestInitRefusesToOverwrite(t *testing.T) {
	b := newBoard(t)
	code, _, errOut := runBoard(t, "init", "--dir", filepath.Dir(b.config))
	if code != 1 || !strings.Contains(errOut, "exists") {
		t.Fatalf("expected exit 1 with exists error, got %d %q", code, errOut)
	}
}

func TestMemoryDatabase(t *testing.T) {
	b := newBoard(t)
	code, out, errOut := b.run("--db", ":memory:", "--json", "create", "Scratch issue")
	if code != 0 {
		t.Fatalf("create exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "Scratch issue") {
		t.Fatalf("unexpected output %q", out)
	}
	code, out, _ = b.run("--json", "list")
	if code != 0 || strings.Contains(out, "Scratch issue") {
		t.Fatalf("in-memory issue leaked into the file board:\n%s", out)
	}
}

func TestCreateHelpDescribesAssigneeDefault(t *testing.T) {
	b := newBoard(t)
	is := b.create("Export to CSV")
	if is.AssignedTo != is.CreatedBy {
		t.Fatalf("expected assignee to default to the creator, got %+v", is)
	}
	code, out, _ := runBoard(t, "create", "--help")
	if code != 0 || !strings.Contains(out, "assignee (default: the creator)") {
		t.Fatalf("unexpected help (exit %d):\n%s", code, out)
	}
}
