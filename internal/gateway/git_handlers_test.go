package gateway

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/coderoom/server/internal/gitservice"
)

func initGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return dir
}

func TestGitServiceForRequiresProjectIDOrPath(t *testing.T) {
	s := &Server{}
	if _, err := s.gitServiceFor(context.Background(), "", ""); err == nil {
		t.Fatal("expected validation error when neither project_id nor project_path is set")
	}
}

func TestGitServiceForUsesExplicitPath(t *testing.T) {
	s := &Server{}
	svc, err := s.gitServiceFor(context.Background(), "", "/some/path")
	if err != nil {
		t.Fatalf("gitServiceFor: %v", err)
	}
	if svc == nil {
		t.Fatal("expected a non-nil service for an explicit project_path")
	}
}

func TestHandleGitStatusViaProjectPath(t *testing.T) {
	dir := initGitRepo(t)
	s := &Server{}
	payload, _ := json.Marshal(gitStatusParams{ProjectPath: dir})

	result, err := s.handleGitStatus(context.Background(), nil, payload)
	if err != nil {
		t.Fatalf("handleGitStatus: %v", err)
	}
	statuses, ok := result.([]gitservice.FileStatus)
	if !ok {
		t.Fatalf("result type = %T, want []gitservice.FileStatus", result)
	}
	if len(statuses) != 1 {
		t.Fatalf("expected one untracked file, got %d", len(statuses))
	}
}

func TestHandleGitCommitRequiresMessageUnlessAmending(t *testing.T) {
	s := &Server{}
	payload, _ := json.Marshal(gitCommitParams{ProjectPath: "/tmp"})
	if _, err := s.handleGitCommit(context.Background(), nil, payload); err == nil {
		t.Fatal("expected validation error for missing commit message")
	}
}

func TestHandleGitCommitStagesAndCommits(t *testing.T) {
	dir := initGitRepo(t)
	s := &Server{}
	payload, _ := json.Marshal(gitCommitParams{ProjectPath: dir, Message: "initial", Stage: true})

	if _, err := s.handleGitCommit(context.Background(), nil, payload); err != nil {
		t.Fatalf("handleGitCommit: %v", err)
	}

	statusPayload, _ := json.Marshal(gitStatusParams{ProjectPath: dir})
	result, err := s.handleGitStatus(context.Background(), nil, statusPayload)
	if err != nil {
		t.Fatalf("handleGitStatus: %v", err)
	}
	statuses, ok := result.([]gitservice.FileStatus)
	if !ok {
		t.Fatalf("result type = %T, want []gitservice.FileStatus", result)
	}
	if len(statuses) != 0 {
		t.Fatalf("expected clean tree after commit, got %v", statuses)
	}
}

func TestHandleGitBranchUnknownAction(t *testing.T) {
	dir := initGitRepo(t)
	s := &Server{}
	payload, _ := json.Marshal(gitBranchParams{ProjectPath: dir, Action: "nonsense"})
	if _, err := s.handleGitBranch(context.Background(), nil, payload); err == nil {
		t.Fatal("expected validation error for unknown branch action")
	}
}

func TestHandleGitBranchCreateRequiresName(t *testing.T) {
	dir := initGitRepo(t)
	s := &Server{}
	payload, _ := json.Marshal(gitBranchParams{ProjectPath: dir, Action: "create"})
	if _, err := s.handleGitBranch(context.Background(), nil, payload); err == nil {
		t.Fatal("expected validation error for branch create without a name")
	}
}

func TestHandleGitStashUnknownAction(t *testing.T) {
	dir := initGitRepo(t)
	s := &Server{}
	payload, _ := json.Marshal(gitStashParams{ProjectPath: dir, Action: "nonsense"})
	if _, err := s.handleGitStash(context.Background(), nil, payload); err == nil {
		t.Fatal("expected validation error for unknown stash action")
	}
}

func TestHandleGitDiffInvalidPayload(t *testing.T) {
	s := &Server{}
	if _, err := s.handleGitDiff(context.Background(), nil, json.RawMessage(`not json`)); err == nil {
		t.Fatal("expected validation error for malformed payload")
	}
}

func TestHandleGitLogOnFreshRepo(t *testing.T) {
	dir := initGitRepo(t)
	s := &Server{}
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("add", ".")
	run("commit", "-m", "first")

	payload, _ := json.Marshal(gitLogParams{ProjectPath: dir, Limit: 5})
	result, err := s.handleGitLog(context.Background(), nil, payload)
	if err != nil {
		t.Fatalf("handleGitLog: %v", err)
	}
	commits, ok := result.([]gitservice.LogEntry)
	if !ok {
		t.Fatalf("result type = %T, want []gitservice.LogEntry", result)
	}
	if len(commits) != 1 {
		t.Fatalf("expected one log entry, got %d", len(commits))
	}
}
