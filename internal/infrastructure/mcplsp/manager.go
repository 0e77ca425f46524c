package mcplsp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const healthCheckInterval = 30 * time.Second

// Manager is the per-(server_id, workspace_root) cache of spawned child
// processes (spec 4.D). Three independent maps are guarded by three
// independent mutexes so the documented four-step lock sequence can release
// each lock before taking the next (spec 5 "Lock discipline for MCP manager").
type Manager struct {
	templates []ServerTemplate
	logger    *zap.Logger

	clientsMu sync.RWMutex
	clients   map[ServerKey]*Client

	checksMu sync.Mutex
	lastChecks map[ServerKey]time.Time

	lifecyclesMu sync.RWMutex
	lifecycles   map[ServerKey]*Lifecycle

	maxRestarts int
	approvals   ApprovalSink // nil = spawned clients reject elicitation prompts outright
}

// SetApprovals wires every client this manager spawns through the approval
// overlay (component I) so server-initiated elicitation prompts surface as
// ApprovalMcpElicitation requests instead of failing.
func (m *Manager) SetApprovals(approvals ApprovalSink) {
	m.approvals = approvals
}

// NewManager builds a manager from user-configured templates; built-in
// defaults fill in any missing command/args/extensions/install-hint fields
// (spec 4.D "built-in templates supply defaults for missing fields").
func NewManager(templates []ServerTemplate, maxRestarts int, logger *zap.Logger) *Manager {
	if maxRestarts <= 0 {
		maxRestarts = 3
	}
	merged := make([]ServerTemplate, 0, len(templates))
	for _, t := range templates {
		merged = append(merged, applyBuiltinDefaults(t))
	}
	return &Manager{
		templates:  merged,
		logger:     logger,
		clients:    make(map[ServerKey]*Client),
		lastChecks: make(map[ServerKey]time.Time),
		lifecycles: make(map[ServerKey]*Lifecycle),
		maxRestarts: maxRestarts,
	}
}

var builtinTemplates = map[string]ServerTemplate{
	"gopls":        {Command: "gopls", Args: []string{}, Extensions: []string{".go"}, Languages: []string{"go"}, InstallHint: "go install golang.org/x/tools/gopls@latest"},
	"rust-analyzer": {Command: "rust-analyzer", Args: []string{}, Extensions: []string{".rs"}, Languages: []string{"rust"}, InstallHint: "rustup component add rust-analyzer"},
	"pyright":      {Command: "pyright-langserver", Args: []string{"--stdio"}, Extensions: []string{".py"}, Languages: []string{"python"}, InstallHint: "npm install -g pyright"},
	"typescript-language-server": {Command: "typescript-language-server", Args: []string{"--stdio"}, Extensions: []string{".ts", ".tsx", ".js", ".jsx"}, Languages: []string{"typescript", "javascript"}, InstallHint: "npm install -g typescript-language-server typescript"},
}

func applyBuiltinDefaults(t ServerTemplate) ServerTemplate {
	if def, ok := builtinTemplates[t.ID]; ok {
		if t.Command == "" {
			t.Command = def.Command
		}
		if len(t.Args) == 0 {
			t.Args = def.Args
		}
		if len(t.Extensions) == 0 {
			t.Extensions = def.Extensions
		}
		if len(t.Languages) == 0 {
			t.Languages = def.Languages
		}
		if t.InstallHint == "" {
			t.InstallHint = def.InstallHint
		}
	}
	return t
}

// ResolveForFile picks the first enabled, opt-in server claiming the file's
// extension (spec 4.D "Per-file dispatch"). Only servers declared in user
// config count toward matching.
func (m *Manager) ResolveForFile(path string) (ServerTemplate, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path // fall back to the raw path on canonicalization error
	}
	ext := strings.ToLower(filepath.Ext(abs))
	for _, t := range m.templates {
		if !t.Enabled {
			continue
		}
		for _, e := range t.Extensions {
			if strings.EqualFold(e, ext) {
				return t, true
			}
		}
	}
	return ServerTemplate{}, false
}

// Template looks up a configured server by ID directly, for callers that
// dispatch by explicit server name rather than by file extension (spec 4.D
// MCP tool-call dispatch, as opposed to LSP's per-file resolution above).
func (m *Manager) Template(id string) (ServerTemplate, bool) {
	for _, t := range m.templates {
		if t.ID == id && t.Enabled {
			return t, true
		}
	}
	return ServerTemplate{}, false
}

// projectRootMarkers is the ordered set of files/dirs that identify a
// project root (spec 4.D "Project-root discovery").
var projectRootMarkers = []string{"Cargo.toml", "go.mod", "pyproject.toml", "setup.py", "package.json", ".git"}

// DiscoverProjectRoot walks upward from the file's parent directory looking
// for the first directory containing any marker; falls back to the file's
// own directory.
func DiscoverProjectRoot(filePath string) string {
	dir := filepath.Dir(filePath)
	cur := dir
	for {
		for _, marker := range projectRootMarkers {
			if _, err := os.Stat(filepath.Join(cur, marker)); err == nil {
				return cur
			}
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}
	return dir
}

// GetClient implements the four-step lock sequence from spec 4.D/5: each
// lock is read and released before the next is taken; none is held across
// a blocking spawn or health-check call.
func (m *Manager) GetClient(ctx context.Context, key ServerKey, tmpl ServerTemplate) (*Client, error) {
	// Step 1: read the client cache.
	m.clientsMu.RLock()
	cached, ok := m.clients[key]
	m.clientsMu.RUnlock()

	// Step 2: read last-health-check time; decide whether to re-check.
	m.checksMu.Lock()
	last, seen := m.lastChecks[key]
	needsCheck := !seen || time.Since(last) >= healthCheckInterval
	m.checksMu.Unlock()

	if ok && !needsCheck {
		return cached, nil
	}

	if needsCheck {
		// Step 3: read the lifecycle and sample health/restart state.
		m.lifecyclesMu.RLock()
		lc, exists := m.lifecycles[key]
		m.lifecyclesMu.RUnlock()

		if exists {
			health, restarts, restarting := lc.snapshot()
			switch health {
			case HealthHealthy:
				if ok {
					// Step 4: update the last-health-check timestamp.
					m.checksMu.Lock()
					m.lastChecks[key] = time.Now()
					m.checksMu.Unlock()
					return cached, nil
				}
			case HealthFailed:
				m.checksMu.Lock()
				m.lastChecks[key] = time.Now()
				m.checksMu.Unlock()
				return nil, &ErrServerFailed{Server: key.ServerID, Restarts: restarts}
			}
			if restarting {
				return nil, &ErrServerRestarting{Server: key.ServerID}
			}
		}

		// Step 4: update the last-health-check timestamp before falling
		// through to (re)spawn, so concurrent callers don't pile on.
		m.checksMu.Lock()
		m.lastChecks[key] = time.Now()
		m.checksMu.Unlock()
	}

	return m.spawn(ctx, key, tmpl)
}

func (m *Manager) getOrCreateLifecycle(key ServerKey) *Lifecycle {
	m.lifecyclesMu.Lock()
	defer m.lifecyclesMu.Unlock()
	lc, ok := m.lifecycles[key]
	if !ok {
		lc = newLifecycle(m.maxRestarts)
		m.lifecycles[key] = lc
	}
	return lc
}

func (m *Manager) spawn(ctx context.Context, key ServerKey, tmpl ServerTemplate) (*Client, error) {
	lc := m.getOrCreateLifecycle(key)

	if _, err := exec.LookPath(tmpl.Command); err != nil {
		lc.markPermanentFailure()
		return nil, &ErrServerNotInstalled{Server: tmpl.ID, InstallHint: tmpl.InstallHint}
	}

	lc.setRestarting(true)
	defer lc.setRestarting(false)

	// Clear any cached client before spawning a replacement so stale lookups
	// cannot leak (spec 4.D "clear any cached symbol tables").
	m.clientsMu.Lock()
	delete(m.clients, key)
	m.clientsMu.Unlock()

	cmd := exec.CommandContext(ctx, tmpl.Command, tmpl.Args...)
	cmd.Dir = key.WorkspaceRoot

	stdin, err := cmd.StdinPipe()
	if err != nil {
		if !lc.recordCrash() {
			return nil, &ErrServerFailed{Server: key.ServerID, Restarts: m.maxRestarts}
		}
		return nil, fmt.Errorf("mcplsp: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		if !lc.recordCrash() {
			return nil, &ErrServerFailed{Server: key.ServerID, Restarts: m.maxRestarts}
		}
		return nil, fmt.Errorf("mcplsp: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		if !lc.recordCrash() {
			return nil, &ErrServerFailed{Server: key.ServerID, Restarts: m.maxRestarts}
		}
		return nil, fmt.Errorf("mcplsp: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if !lc.recordCrash() {
			return nil, &ErrServerFailed{Server: key.ServerID, Restarts: m.maxRestarts}
		}
		return nil, fmt.Errorf("mcplsp: spawn %s: %w", tmpl.Command, err)
	}

	client := &Client{
		key:       key,
		cmd:       cmd,
		stdin:     stdin,
		reader:    bufio.NewReader(stdout),
		logger:    m.logger,
		stopBg:    make(chan struct{}),
		approvals: m.approvals,
	}

	// A background goroutine drains stderr into structured logs (spec 4.D).
	// Nothing waits on the process here; Shutdown kills it.
	go m.drainStderr(key, stderr, client.stopBg)

	if _, err := client.Call(ctx, "initialize", map[string]interface{}{
		"processId": os.Getpid(),
		"rootUri":   "file://" + key.WorkspaceRoot,
	}); err != nil {
		m.logger.Warn("mcplsp: initialize failed", zap.String("key", key.String()), zap.Error(err))
		if !lc.recordCrash() {
			return nil, &ErrServerFailed{Server: key.ServerID, Restarts: m.maxRestarts}
		}
		return nil, err
	}

	m.clientsMu.Lock()
	m.clients[key] = client
	m.clientsMu.Unlock()
	lc.markHealthy()

	m.logger.Info("mcplsp: server spawned", zap.String("key", key.String()), zap.Int("restart_count", lc.restartCount))
	return client, nil
}

func (m *Manager) drainStderr(key ServerKey, r io.Reader, stop chan struct{}) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case <-stop:
			return
		default:
		}
		m.logger.Debug("mcplsp: stderr", zap.String("key", key.String()), zap.String("line", scanner.Text()))
	}
}

// Prewarm attempts to eagerly spawn servers for the given extensions under
// root, returning the IDs actually warmed. Missing servers are logged at
// debug, not reported as failures (spec 4.D "Pre-warm").
func (m *Manager) Prewarm(ctx context.Context, root string, extensions []string) []string {
	warmed := make([]string, 0, len(extensions))
	seen := make(map[string]bool)
	for _, ext := range extensions {
		for _, t := range m.templates {
			if !t.Enabled || seen[t.ID] {
				continue
			}
			for _, e := range t.Extensions {
				if strings.EqualFold(e, ext) {
					key := ServerKey{ServerID: t.ID, WorkspaceRoot: root}
					if _, err := m.GetClient(ctx, key, t); err != nil {
						m.logger.Debug("mcplsp: prewarm skipped", zap.String("server", t.ID), zap.Error(err))
						continue
					}
					warmed = append(warmed, t.ID)
					seen[t.ID] = true
				}
			}
		}
	}
	return warmed
}

// ShutdownAll signals every lifecycle and drains every client's shutdown,
// removing all three maps' entries. Partial failures are logged but do not
// abort the sweep (spec 4.D "Teardown").
func (m *Manager) ShutdownAll() {
	m.clientsMu.Lock()
	clients := make(map[ServerKey]*Client, len(m.clients))
	for k, v := range m.clients {
		clients[k] = v
	}
	m.clients = make(map[ServerKey]*Client)
	m.clientsMu.Unlock()

	for key, c := range clients {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Warn("mcplsp: panic during shutdown", zap.String("key", key.String()), zap.Any("recover", r))
				}
			}()
			c.Shutdown()
		}()
	}

	m.checksMu.Lock()
	m.lastChecks = make(map[ServerKey]time.Time)
	m.checksMu.Unlock()

	m.lifecyclesMu.Lock()
	m.lifecycles = make(map[ServerKey]*Lifecycle)
	m.lifecyclesMu.Unlock()
}

// ShutdownForRoot tears down only the keys whose WorkspaceRoot matches root,
// removing them from clients, lifecycles, and last-health-checks so that
// afterward none of the three maps contain the key (testable property 5).
func (m *Manager) ShutdownForRoot(root string) {
	m.clientsMu.Lock()
	toClose := make(map[ServerKey]*Client)
	for k, c := range m.clients {
		if k.WorkspaceRoot == root {
			toClose[k] = c
			delete(m.clients, k)
		}
	}
	m.clientsMu.Unlock()

	for key, c := range toClose {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Warn("mcplsp: panic during root shutdown", zap.String("key", key.String()), zap.Any("recover", r))
				}
			}()
			c.Shutdown()
		}()
	}

	m.checksMu.Lock()
	for k := range m.lastChecks {
		if k.WorkspaceRoot == root {
			delete(m.lastChecks, k)
		}
	}
	m.checksMu.Unlock()

	m.lifecyclesMu.Lock()
	for k := range m.lifecycles {
		if k.WorkspaceRoot == root {
			delete(m.lifecycles, k)
		}
	}
	m.lifecyclesMu.Unlock()
}

// HasKey reports whether key is present in any of the three tracked maps —
// used by tests to verify the teardown-removes-key invariant.
func (m *Manager) HasKey(key ServerKey) bool {
	m.clientsMu.RLock()
	_, inClients := m.clients[key]
	m.clientsMu.RUnlock()

	m.checksMu.Lock()
	_, inChecks := m.lastChecks[key]
	m.checksMu.Unlock()

	m.lifecyclesMu.RLock()
	_, inLifecycles := m.lifecycles[key]
	m.lifecyclesMu.RUnlock()

	return inClients || inChecks || inLifecycles
}
