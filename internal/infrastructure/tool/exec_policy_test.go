package tool

import "testing"

func TestExecPolicy_IsAllowed(t *testing.T) {
	p := NewExecPolicy([][]string{{"git", "status"}})

	if !p.IsAllowed([]string{"git", "status"}) {
		t.Error("expected exact prefix match to be allowed")
	}
	if !p.IsAllowed([]string{"git", "status", "--short"}) {
		t.Error("expected argv extending an approved prefix to be allowed")
	}
	if p.IsAllowed([]string{"git", "push"}) {
		t.Error("expected unrelated subcommand to be denied")
	}
	if p.IsAllowed([]string{"git"}) {
		t.Error("expected argv shorter than prefix to be denied")
	}
}

func TestExecPolicy_Amend(t *testing.T) {
	p := NewExecPolicy(nil)
	if p.IsAllowed([]string{"ls", "-la"}) {
		t.Fatal("expected empty policy to deny everything")
	}
	p.Amend([]string{"ls"})
	if !p.IsAllowed([]string{"ls", "-la"}) {
		t.Error("expected amended prefix to be allowed")
	}
}

func TestArgvForCommand(t *testing.T) {
	if got := argvForCommand("git status --short"); len(got) != 3 || got[0] != "git" {
		t.Errorf("unexpected argv: %+v", got)
	}
}

func TestExecPolicyProposal(t *testing.T) {
	if got := execPolicyProposal([]string{"git", "status", "--short"}); len(got) != 2 || got[1] != "status" {
		t.Errorf("expected [git status], got %+v", got)
	}
	if got := execPolicyProposal([]string{"ls"}); len(got) != 1 || got[0] != "ls" {
		t.Errorf("expected [ls], got %+v", got)
	}
	if got := execPolicyProposal(nil); got != nil {
		t.Errorf("expected nil for empty argv, got %+v", got)
	}
}
