package oauthstore

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	l, _ := zap.NewDevelopment()
	return l
}

type fakeManager struct {
	tokens       *StoredOAuthTokens
	refreshCalls int
	refreshFunc  func() *StoredOAuthTokens
}

func (f *fakeManager) CurrentTokens() *StoredOAuthTokens { return f.tokens }
func (f *fakeManager) SetRuntimeTokens(t *StoredOAuthTokens) { f.tokens = t }
func (f *fakeManager) SetClientID(clientID string) {
	if f.tokens != nil {
		f.tokens.ClientID = clientID
	}
}
func (f *fakeManager) ClearRuntime() { f.tokens = nil }
func (f *fakeManager) Refresh(ctx context.Context) error {
	f.refreshCalls++
	if f.refreshFunc != nil {
		f.tokens = f.refreshFunc()
	}
	return nil
}

func TestPersistIfNeeded_SavesOnDivergence(t *testing.T) {
	mgr := &fakeManager{tokens: &StoredOAuthTokens{
		ServerName: "acme", ServerURL: "https://acme.example/mcp",
		AccessToken: "tok-1", TokenType: "Bearer", ExpiresAtMillis: time.Now().Add(time.Hour).UnixMilli(),
	}}
	home := t.TempDir()
	p := NewPersistor("acme", "https://acme.example/mcp", ModeFile, home, nil, mgr, testLogger())

	if err := p.PersistIfNeeded(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := p.fileStore.Load(p.storageKey())
	if err != nil || loaded == nil {
		t.Fatalf("expected tokens persisted, err=%v loaded=%v", err, loaded)
	}
	if loaded.AccessToken != "tok-1" {
		t.Errorf("expected tok-1, got %s", loaded.AccessToken)
	}

	// Calling again with no change should be a no-op (snapshot already equal).
	if err := p.PersistIfNeeded(); err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
}

func TestPersistIfNeeded_DeletesWhenRuntimeCleared(t *testing.T) {
	mgr := &fakeManager{tokens: &StoredOAuthTokens{ServerName: "acme", AccessToken: "tok-1"}}
	home := t.TempDir()
	p := NewPersistor("acme", "https://acme.example/mcp", ModeFile, home, nil, mgr, testLogger())

	if err := p.PersistIfNeeded(); err != nil {
		t.Fatal(err)
	}
	mgr.tokens = nil
	if err := p.PersistIfNeeded(); err != nil {
		t.Fatal(err)
	}
	loaded, err := p.fileStore.Load(p.storageKey())
	if err != nil {
		t.Fatal(err)
	}
	if loaded != nil {
		t.Error("expected tokens deleted from storage after runtime cleared")
	}
}

func TestRefreshIfNeeded_NotNearExpiry_NoOp(t *testing.T) {
	mgr := &fakeManager{tokens: &StoredOAuthTokens{
		AccessToken: "tok-1", ExpiresAtMillis: time.Now().Add(time.Hour).UnixMilli(),
	}}
	home := t.TempDir()
	p := NewPersistor("acme", "https://acme.example/mcp", ModeFile, home, nil, mgr, testLogger())
	p.snapshot = mgr.tokens

	if err := p.RefreshIfNeeded(context.Background()); err != nil {
		t.Fatal(err)
	}
	if mgr.refreshCalls != 0 {
		t.Errorf("expected no refresh when token is not near expiry, got %d calls", mgr.refreshCalls)
	}
}

// TestRefreshIfNeeded_UnchangedOwnsRefresh simulates property 6: when this
// process's snapshot matches shared storage and the token is near expiry,
// this process is the one that performs the refresh.
func TestRefreshIfNeeded_UnchangedOwnsRefresh(t *testing.T) {
	expiring := &StoredOAuthTokens{
		ServerName: "acme", ServerURL: "https://acme.example/mcp",
		AccessToken: "tok-old", RefreshToken: "refresh-old",
		ExpiresAtMillis: time.Now().Add(10 * time.Second).UnixMilli(),
	}
	mgr := &fakeManager{tokens: expiring, refreshFunc: func() *StoredOAuthTokens {
		return &StoredOAuthTokens{
			ServerName: "acme", ServerURL: "https://acme.example/mcp",
			AccessToken: "tok-new", RefreshToken: "refresh-new",
			ExpiresAtMillis: time.Now().Add(time.Hour).UnixMilli(),
		}
	}}
	home := t.TempDir()
	p := NewPersistor("acme", "https://acme.example/mcp", ModeFile, home, nil, mgr, testLogger())
	p.snapshot = expiring
	if err := p.fileStore.Save(p.storageKey(), expiring); err != nil {
		t.Fatal(err)
	}

	if err := p.RefreshIfNeeded(context.Background()); err != nil {
		t.Fatal(err)
	}
	if mgr.refreshCalls != 1 {
		t.Fatalf("expected exactly 1 refresh call, got %d", mgr.refreshCalls)
	}
	loaded, err := p.fileStore.Load(p.storageKey())
	if err != nil || loaded == nil {
		t.Fatalf("expected refreshed tokens persisted, err=%v", err)
	}
	if loaded.AccessToken != "tok-new" {
		t.Errorf("expected tok-new persisted after refresh, got %s", loaded.AccessToken)
	}
}

// TestRefreshIfNeeded_ChangedAdoptsWithoutRefreshing simulates a second
// process having already refreshed: shared storage now differs from this
// process's snapshot, so this process must adopt rather than refresh again.
func TestRefreshIfNeeded_ChangedAdoptsWithoutRefreshing(t *testing.T) {
	stale := &StoredOAuthTokens{
		ServerName: "acme", ServerURL: "https://acme.example/mcp",
		AccessToken: "tok-stale", ExpiresAtMillis: time.Now().Add(10 * time.Second).UnixMilli(),
	}
	mgr := &fakeManager{tokens: stale}
	home := t.TempDir()
	p := NewPersistor("acme", "https://acme.example/mcp", ModeFile, home, nil, mgr, testLogger())
	p.snapshot = stale

	fresh := &StoredOAuthTokens{
		ServerName: "acme", ServerURL: "https://acme.example/mcp",
		AccessToken: "tok-fresh-from-other-process", ExpiresAtMillis: time.Now().Add(time.Hour).UnixMilli(),
	}
	if err := p.fileStore.Save(p.storageKey(), fresh); err != nil {
		t.Fatal(err)
	}

	if err := p.RefreshIfNeeded(context.Background()); err != nil {
		t.Fatal(err)
	}
	if mgr.refreshCalls != 0 {
		t.Errorf("expected no refresh call when another process already refreshed, got %d", mgr.refreshCalls)
	}
	if mgr.tokens == nil || mgr.tokens.AccessToken != "tok-fresh-from-other-process" {
		t.Errorf("expected runtime adopted from shared storage, got %+v", mgr.tokens)
	}
}

func TestRefreshIfNeeded_MissingClearsRuntime(t *testing.T) {
	stale := &StoredOAuthTokens{
		ServerName: "acme", ServerURL: "https://acme.example/mcp",
		AccessToken: "tok-stale", ExpiresAtMillis: time.Now().Add(10 * time.Second).UnixMilli(),
	}
	mgr := &fakeManager{tokens: stale}
	home := t.TempDir()
	p := NewPersistor("acme", "https://acme.example/mcp", ModeFile, home, nil, mgr, testLogger())
	p.snapshot = stale
	// Shared storage has nothing for this key (e.g. server removed / logged out elsewhere).

	if err := p.RefreshIfNeeded(context.Background()); err != nil {
		t.Fatal(err)
	}
	if mgr.tokens != nil {
		t.Errorf("expected runtime cleared when storage has no entry, got %+v", mgr.tokens)
	}
}

func TestStorageKey_Deterministic(t *testing.T) {
	k1 := StorageKey("acme", "https://acme.example/mcp")
	k2 := StorageKey("acme", "https://acme.example/mcp")
	if k1 != k2 {
		t.Errorf("expected deterministic key, got %s vs %s", k1, k2)
	}
	if k1 == StorageKey("other", "https://acme.example/mcp") {
		t.Error("expected different server name to change the key")
	}
}

func TestKeyringUnavailable_AutoFallsBackToFile(t *testing.T) {
	mgr := &fakeManager{tokens: &StoredOAuthTokens{
		ServerName: "acme", ServerURL: "https://acme.example/mcp", AccessToken: "tok-1",
	}}
	home := t.TempDir()
	p := NewPersistor("acme", "https://acme.example/mcp", ModeAuto, home, unavailableKeyring{}, mgr, testLogger())

	if err := p.PersistIfNeeded(); err != nil {
		t.Fatal(err)
	}
	loaded, err := p.fileStore.Load(p.storageKey())
	if err != nil || loaded == nil {
		t.Fatalf("expected fallback to file store, err=%v", err)
	}
}
