package oauthstore

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const refreshSkew = 30 * time.Second

// AuthorizationManager owns the live OAuth state for one MCP server: the
// in-process client's current tokens and the ability to refresh them
// against the authorization server.
type AuthorizationManager interface {
	CurrentTokens() *StoredOAuthTokens
	SetRuntimeTokens(tokens *StoredOAuthTokens)
	SetClientID(clientID string)
	Refresh(ctx context.Context) error
	ClearRuntime()
}

// storageBackend is the minimal shape both FileStore and the keyring
// backend satisfy, so Persistor can be storage-mode-agnostic.
type storageBackend interface {
	Save(key string, tokens *StoredOAuthTokens) error
	Load(key string) (*StoredOAuthTokens, error)
	Delete(key string) error
}

type keyringBackendAdapter struct {
	backend KeyringBackend
}

func (k keyringBackendAdapter) Save(key string, tokens *StoredOAuthTokens) error {
	data, err := marshalTokens(tokens)
	if err != nil {
		return err
	}
	return k.backend.Save(keyringService, key, string(data))
}

func (k keyringBackendAdapter) Load(key string) (*StoredOAuthTokens, error) {
	raw, err := k.backend.Load(keyringService, key)
	if err != nil {
		if err == ErrKeyringUnavailable {
			return nil, err
		}
		return nil, nil
	}
	return unmarshalTokens([]byte(raw))
}

func (k keyringBackendAdapter) Delete(key string) error {
	return k.backend.Delete(keyringService, key)
}

// Persistor wraps an AuthorizationManager plus an in-memory credential
// snapshot and serializes every write through mu, which guards the snapshot
// and is taken before managerMu (spec 5 "Credential store lock").
type Persistor struct {
	serverName string
	serverURL  string
	mode       StoreMode
	fileStore  *FileStore
	keyring    storageBackend
	manager    AuthorizationManager
	logger     *zap.Logger

	mu        sync.Mutex // outermost: guards snapshot + serializes reload/compare/refresh
	managerMu sync.Mutex // guards calls into the AuthorizationManager
	snapshot  *StoredOAuthTokens
}

// NewPersistor builds a Persistor for one MCP server.
func NewPersistor(serverName, serverURL string, mode StoreMode, codexHome string, keyring KeyringBackend, manager AuthorizationManager, logger *zap.Logger) *Persistor {
	if keyring == nil {
		keyring = unavailableKeyring{}
	}
	return &Persistor{
		serverName: serverName,
		serverURL:  serverURL,
		mode:       mode,
		fileStore:  NewFileStore(codexHome),
		keyring:    keyringBackendAdapter{backend: keyring},
		manager:    manager,
		logger:     logger,
	}
}

func (p *Persistor) storageKey() string {
	return StorageKey(p.serverName, p.serverURL)
}

// load reads from storage per the configured mode: Auto prefers keyring,
// falling back to file on error or absence; File always uses the file
// store; Keyring propagates keyring errors (spec 4.E "Storage mode").
func (p *Persistor) load() (*StoredOAuthTokens, error) {
	key := p.storageKey()
	switch p.mode {
	case ModeKeyring:
		return p.keyring.Load(key)
	case ModeFile:
		return p.fileStore.Load(key)
	default: // Auto
		tok, err := p.keyring.Load(key)
		if err == nil && tok != nil {
			return tok, nil
		}
		p.logger.Debug("oauthstore: keyring load failed, falling back to file", zap.Error(err))
		return p.fileStore.Load(key)
	}
}

func (p *Persistor) save(tok *StoredOAuthTokens) error {
	key := p.storageKey()
	switch p.mode {
	case ModeKeyring:
		return p.keyring.Save(key, tok)
	case ModeFile:
		return p.fileStore.Save(key, tok)
	default:
		if err := p.keyring.Save(key, tok); err == nil {
			return nil
		}
		return p.fileStore.Save(key, tok)
	}
}

func (p *Persistor) delete() error {
	key := p.storageKey()
	switch p.mode {
	case ModeKeyring:
		return p.keyring.Delete(key)
	case ModeFile:
		return p.fileStore.Delete(key)
	default:
		_ = p.keyring.Delete(key)
		return p.fileStore.Delete(key)
	}
}

// PersistIfNeeded saves the live manager's token to storage if it diverges
// from the in-memory snapshot, updating expires_at only when the token
// itself changed (spec 4.E "persist_if_needed").
func (p *Persistor) PersistIfNeeded() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.managerMu.Lock()
	live := p.manager.CurrentTokens()
	p.managerMu.Unlock()

	if live == nil {
		if p.snapshot != nil {
			if err := p.delete(); err != nil {
				return err
			}
			p.snapshot = nil
		}
		return nil
	}

	if p.snapshot.Equal(live) {
		return nil
	}

	toSave := *live
	if p.snapshot != nil && sameExceptExpiry(p.snapshot, live) {
		toSave.ExpiresAtMillis = p.snapshot.ExpiresAtMillis
	}
	if err := p.save(&toSave); err != nil {
		return err
	}
	snapshotCopy := toSave
	p.snapshot = &snapshotCopy
	return nil
}

func sameExceptExpiry(a, b *StoredOAuthTokens) bool {
	return a.Equal(b)
}

// RefreshIfNeeded guards against multi-process refresh-token reuse
// (spec 4.E "refresh_if_needed", testable property 6).
func (p *Persistor) RefreshIfNeeded(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Step 1: empty local snapshot -> reload from shared storage.
	if p.snapshot == nil {
		stored, err := p.load()
		if err != nil {
			p.logger.Warn("oauthstore: reload failed for empty snapshot", zap.Error(err))
			return nil
		}
		if stored != nil {
			p.adoptLocked(stored)
		}
		return nil
	}

	// Step 2: not near expiry -> nothing to do.
	if !nearExpiry(p.snapshot, time.Now()) {
		return nil
	}

	// Step 3: reload shared storage and compare.
	stored, err := p.load()
	if err != nil {
		// Reload failed: log and return without action; retry next call.
		p.logger.Warn("oauthstore: reload failed during refresh guard", zap.Error(err))
		return nil
	}

	switch {
	case stored == nil:
		// Missing: storage cleared by another actor -> clear runtime.
		p.managerMu.Lock()
		p.manager.ClearRuntime()
		p.managerMu.Unlock()
		p.snapshot = nil
		return nil
	case !stored.Equal(p.snapshot):
		// Changed: adopt the new credentials; do not refresh.
		p.adoptLocked(stored)
		return nil
	default:
		// Unchanged: this process still owns the refresh.
		p.managerMu.Lock()
		err := p.manager.Refresh(ctx)
		p.managerMu.Unlock()
		if err != nil {
			return err
		}
		return p.persistIfNeededLocked()
	}
}

// persistIfNeededLocked is PersistIfNeeded's body without re-acquiring mu,
// for use from within RefreshIfNeeded which already holds it.
func (p *Persistor) persistIfNeededLocked() error {
	p.managerMu.Lock()
	live := p.manager.CurrentTokens()
	p.managerMu.Unlock()

	if live == nil {
		if p.snapshot != nil {
			if err := p.delete(); err != nil {
				return err
			}
			p.snapshot = nil
		}
		return nil
	}
	if p.snapshot.Equal(live) {
		return nil
	}
	toSave := *live
	if err := p.save(&toSave); err != nil {
		return err
	}
	snapshotCopy := toSave
	p.snapshot = &snapshotCopy
	return nil
}

func (p *Persistor) adoptLocked(stored *StoredOAuthTokens) {
	p.managerMu.Lock()
	p.manager.SetRuntimeTokens(stored)
	p.manager.SetClientID(stored.ClientID)
	p.managerMu.Unlock()
	snapshotCopy := *stored
	p.snapshot = &snapshotCopy
}

func nearExpiry(tok *StoredOAuthTokens, now time.Time) bool {
	if tok.ExpiresAtMillis == 0 {
		return false
	}
	return now.Add(refreshSkew).UnixMilli() >= tok.ExpiresAtMillis
}
