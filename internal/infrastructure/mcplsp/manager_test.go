package mcplsp

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	l, _ := zap.NewDevelopment()
	return l
}

func TestGetClient_ServerNotInstalled(t *testing.T) {
	tmpl := ServerTemplate{ID: "nope", Command: "definitely-not-a-real-binary-xyz", Enabled: true}
	m := NewManager([]ServerTemplate{tmpl}, 2, testLogger())

	key := ServerKey{ServerID: "nope", WorkspaceRoot: t.TempDir()}
	_, err := m.GetClient(context.Background(), key, tmpl)
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	var niErr *ErrServerNotInstalled
	if !errors.As(err, &niErr) {
		t.Fatalf("expected ErrServerNotInstalled, got %T: %v", err, err)
	}

	lc := m.getOrCreateLifecycle(key)
	health, restarts, _ := lc.snapshot()
	if health != HealthFailed {
		t.Errorf("expected permanently Failed, got %s", health)
	}
	if restarts != 0 {
		t.Errorf("ServerNotInstalled must not count against restart budget, got restarts=%d", restarts)
	}
}

func TestRestartBudget_S6(t *testing.T) {
	// S6: max_restarts=2. Three consecutive crashes -> third get_client call
	// returns ServerFailed{restarts:2} and does not spawn again.
	lc := newLifecycle(2)
	if ok := lc.recordCrash(); !ok {
		t.Fatal("1st crash should still allow a restart")
	}
	if ok := lc.recordCrash(); !ok {
		t.Fatal("2nd crash should still allow a restart")
	}
	if ok := lc.recordCrash(); ok {
		t.Fatal("3rd crash should exhaust the restart budget")
	}
	health, restarts, _ := lc.snapshot()
	if health != HealthFailed {
		t.Errorf("expected Failed after budget exhausted, got %s", health)
	}
	if restarts != 3 {
		t.Errorf("expected restarts=3, got %d", restarts)
	}
}

func TestShutdownForRoot_RemovesKey(t *testing.T) {
	m := NewManager(nil, 2, testLogger())
	root := "/tmp/project-a"
	key := ServerKey{ServerID: "gopls", WorkspaceRoot: root}

	// Synthesize presence across all three maps without a real spawn.
	m.lifecyclesMu.Lock()
	m.lifecycles[key] = newLifecycle(2)
	m.lifecyclesMu.Unlock()
	m.checksMu.Lock()
	m.lastChecks[key] = time.Now()
	m.checksMu.Unlock()

	if !m.HasKey(key) {
		t.Fatal("expected key present before shutdown")
	}

	m.ShutdownForRoot(root)

	if m.HasKey(key) {
		t.Error("expected key absent from all three maps after ShutdownForRoot")
	}
}

func TestProjectRootMarkers(t *testing.T) {
	if len(projectRootMarkers) != 6 {
		t.Fatalf("expected 6 project root markers, got %d", len(projectRootMarkers))
	}
}
