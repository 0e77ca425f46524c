package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codex-go/codex/internal/application"
	"github.com/codex-go/codex/internal/domain/entity"
	"github.com/codex-go/codex/internal/domain/service"
	"github.com/codex-go/codex/internal/infrastructure/config"
	"github.com/codex-go/codex/internal/infrastructure/logger"
	"github.com/codex-go/codex/internal/infrastructure/oauthstore"
	"github.com/codex-go/codex/internal/infrastructure/rollout"
	"github.com/codex-go/codex/internal/interfaces/cli"
)

const (
	cliVersion = "0.3.0"
	cliName    = "codex"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   cliName + " [message]",
		Short: "Codex — AI coding agent",
		Long:  "Codex CLI — an interactive AI coding agent: code generation, editing, debugging, and search",
		Args:  cobra.ArbitraryArgs,
		RunE:  runRun,
	}

	rootCmd.Flags().StringP("model", "m", "", "override the configured model")
	rootCmd.Flags().BoolP("no-approve", "y", false, "skip tool approval prompts (full-auto mode)")
	rootCmd.Flags().StringP("workspace", "w", "", "workspace directory")

	// --- Subcommands (spec 6 "CLI surface") ---

	runCmd := &cobra.Command{
		Use:   "run [message]",
		Short: "start a new interactive session",
		Args:  cobra.ArbitraryArgs,
		RunE:  runRun,
	}
	runCmd.Flags().AddFlagSet(rootCmd.Flags())
	rootCmd.AddCommand(runCmd)

	resumeCmd := &cobra.Command{
		Use:   "resume [SESSION_ID]",
		Short: "resume a previous session",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runResume,
	}
	resumeCmd.Flags().Bool("last", false, "resume the most recently created session")
	rootCmd.AddCommand(resumeCmd)

	compactCmd := &cobra.Command{
		Use:   "compact [SESSION_ID]",
		Short: "compact a session's history, then resume it in the REPL",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCompact,
	}
	compactCmd.Flags().Bool("last", false, "compact the most recently created session")
	rootCmd.AddCommand(compactCmd)

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "authenticate with a model provider",
		RunE:  runLogin,
	}
	loginCmd.Flags().Bool("with-api-key", false, "authenticate by pasting an API key")
	loginCmd.Flags().Bool("device-auth", false, "authenticate via device-code OAuth flow")
	rootCmd.AddCommand(loginCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "logout",
		Short: "remove stored provider credentials",
		RunE:  runLogout,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "mcp",
		Short: "list and manage configured MCP servers",
		RunE:  runMCP,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "mcp-server",
		Short: "run this binary as an MCP server over stdio",
		RunE:  runMCPServer,
	})

	featuresCmd := &cobra.Command{
		Use:   "features",
		Short: "inspect feature flags",
	}
	featuresCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "list known feature flags and their state",
		RunE:  runFeaturesList,
	})
	rootCmd.AddCommand(featuresCmd)

	// --- Ambient subcommands carried over from the teacher, outside spec scope ---

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "start the gateway gRPC service",
		RunE:  runServe,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "show the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", cliName, cliVersion)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "run environment diagnostics",
		RunE:  runDoctor,
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// quietLogger builds the low-noise logger interactive CLI subcommands share.
func quietLogger() (*zap.Logger, error) {
	return logger.NewLogger(logger.Config{
		Level:      "error",
		Format:     "console",
		OutputPath: "/dev/null",
	})
}

// ─── run (default) ───

func runRun(cmd *cobra.Command, args []string) error {
	log, err := quietLogger()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if m, _ := cmd.Flags().GetString("model"); m != "" {
		cfg.Agent.DefaultModel = m
	}
	// Workspace: always use CWD (where the user launched codex) unless overridden.
	workspace, _ := os.Getwd()
	if w, _ := cmd.Flags().GetString("workspace"); w != "" {
		workspace = w
	}
	noApprove, _ := cmd.Flags().GetBool("no-approve")

	fmt.Print("\033[90m初始化中...\033[0m")
	app, err := application.NewAppCLI(cfg, log)
	if err != nil {
		return fmt.Errorf("\ninit failed: %w", err)
	}
	fmt.Print("\r\033[2K") // clear the "initializing" line

	if err := startRolloutSession(app, workspace, "cli"); err != nil {
		log.Warn("rollout: failed to start session journal", zap.Error(err))
	}

	toolCount := 0
	if reg := app.ToolRegistry(); reg != nil {
		toolCount = len(reg.List())
	}

	initPrompt := ""
	if len(args) > 0 {
		initPrompt = strings.Join(args, " ")
	}

	replCfg := cli.REPLConfig{
		Model:      cfg.Agent.DefaultModel,
		Workspace:  workspace,
		ToolCount:  toolCount,
		NoApprove:  noApprove,
		InitPrompt: initPrompt,
	}

	return cli.RunREPL(app.AgentLoop(), app.PromptEngine(), replCfg)
}

// startRolloutSession opens a fresh rollout journal for this run and attaches
// it to the engine, recording the session in the index so `resume`/`list` can
// find it later (spec 4.G / 6 "Rollout JSONL").
func startRolloutSession(app *application.App, workspace, originatorEvent string) error {
	idx, err := rollout.NewIndex(&app.AppConfig().Database)
	if err != nil {
		return fmt.Errorf("open session index: %w", err)
	}
	defer idx.Close()

	sessionID := uuid.NewString()
	createdAt := time.Now().UTC()

	w, err := rollout.NewWriter(config.HomeDir(), rollout.LayoutNestedByDate, sessionID, createdAt)
	if err != nil {
		return fmt.Errorf("open rollout writer: %w", err)
	}

	line, err := rollout.NewSessionConfiguredLine(createdAt, rollout.SessionConfigured{
		SessionID:       sessionID,
		OriginatorEvent: originatorEvent,
		Cwd:             workspace,
	})
	if err != nil {
		return fmt.Errorf("encode session_configured: %w", err)
	}
	if err := w.Append(line); err != nil {
		return fmt.Errorf("append session_configured: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush session_configured: %w", err)
	}

	if err := idx.Record(rollout.IndexEntry{
		UUID: sessionID, Path: w.Path(), CreatedAt: createdAt, Source: originatorEvent,
	}); err != nil {
		return fmt.Errorf("record session in index: %w", err)
	}

	app.Engine().SetRollout(w)
	return nil
}

// ─── resume ───

// resolveSession looks up the rollout session `resume`/`compact` should act
// on: the positional SESSION_ID if given, otherwise the most recent session
// when --last is set.
func resolveSession(idx *rollout.Index, cmd *cobra.Command, args []string) (*rollout.IndexEntry, error) {
	last, _ := cmd.Flags().GetBool("last")
	switch {
	case last:
		entry, err := idx.Last()
		if err != nil {
			return nil, fmt.Errorf("look up last session: %w", err)
		}
		if entry == nil {
			return nil, fmt.Errorf("no sessions recorded yet")
		}
		return entry, nil
	case len(args) == 1:
		entries, err := idx.List(rollout.ListOptions{IncludeArchived: true})
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		for i := range entries {
			if entries[i].UUID == args[0] {
				return &entries[i], nil
			}
		}
		return nil, fmt.Errorf("no session with id %q", args[0])
	default:
		return nil, fmt.Errorf("requires --last or a SESSION_ID")
	}
}

// loadSessionHistory replays a rollout file's response_item lines back into
// the flat user/assistant transcript the REPL's AgentLoop.Run expects (spec
// 4.G "resume" replaying a conversation). Reasoning blocks, tool calls, and
// their outputs are not carried back in — the model re-derives tool state
// from the user-visible text same as it would mid-session after a
// function-call/output pair scrolls out of view — only message text and
// compaction summaries survive the round trip.
func loadSessionHistory(path string) ([]service.LLMMessage, error) {
	lines, err := rollout.ReadLines(path)
	if err != nil {
		return nil, err
	}
	items, err := rollout.ResponseItems(lines)
	if err != nil {
		return nil, fmt.Errorf("decode rollout response items: %w", err)
	}

	var history []service.LLMMessage
	for _, item := range items {
		switch it := item.(type) {
		case *entity.MessageItem:
			text := it.Text()
			if text == "" {
				continue
			}
			history = append(history, service.LLMMessage{Role: string(it.Role()), Content: text})
		case *entity.CompactedItem:
			history = append(history, service.LLMMessage{Role: "user", Content: it.Message})
		}
	}
	return history, nil
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	idx, err := rollout.NewIndex(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open session index: %w", err)
	}
	entry, err := resolveSession(idx, cmd, args)
	idx.Close()
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}

	history, err := loadSessionHistory(entry.Path)
	if err != nil {
		return fmt.Errorf("resume: replay %s: %w", entry.Path, err)
	}

	log, err := quietLogger()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	workspace, _ := os.Getwd()

	fmt.Printf("resuming session %s (%d messages replayed)\n", entry.UUID, len(history))
	app, err := application.NewAppCLI(cfg, log)
	if err != nil {
		return fmt.Errorf("init failed: %w", err)
	}

	if err := startRolloutSession(app, workspace, "cli-resume"); err != nil {
		log.Warn("rollout: failed to start session journal", zap.Error(err))
	}

	toolCount := 0
	if reg := app.ToolRegistry(); reg != nil {
		toolCount = len(reg.List())
	}

	replCfg := cli.REPLConfig{
		Model:          cfg.Agent.DefaultModel,
		Workspace:      workspace,
		ToolCount:      toolCount,
		InitialHistory: history,
	}
	return cli.RunREPL(app.AgentLoop(), app.PromptEngine(), replCfg)
}

// ─── compact ───

func runCompact(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	idx, err := rollout.NewIndex(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open session index: %w", err)
	}
	entry, err := resolveSession(idx, cmd, args)
	idx.Close()
	if err != nil {
		return fmt.Errorf("compact: %w", err)
	}

	history, err := loadSessionHistory(entry.Path)
	if err != nil {
		return fmt.Errorf("compact: replay %s: %w", entry.Path, err)
	}

	log, err := quietLogger()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	workspace, _ := os.Getwd()
	app, err := application.NewAppCLI(cfg, log)
	if err != nil {
		return fmt.Errorf("init failed: %w", err)
	}

	before := len(history)
	compacted := app.AgentLoop().CompactHistory(history)
	fmt.Printf("compacted session %s: %d messages -> %d\n", entry.UUID, before, len(compacted))

	if err := startRolloutSession(app, workspace, "cli-compact"); err != nil {
		log.Warn("rollout: failed to start session journal", zap.Error(err))
	}

	toolCount := 0
	if reg := app.ToolRegistry(); reg != nil {
		toolCount = len(reg.List())
	}

	replCfg := cli.REPLConfig{
		Model:          cfg.Agent.DefaultModel,
		Workspace:      workspace,
		ToolCount:      toolCount,
		InitialHistory: compacted,
	}
	return cli.RunREPL(app.AgentLoop(), app.PromptEngine(), replCfg)
}

// loginStoreKey is the FileStore key under which the model provider's own
// credentials live, alongside per-MCP-server keys derived by
// oauthstore.StorageKey (spec 6 "$CODEX_HOME/.credentials.json" is a single
// shared store keyed per-entry, not one file per server).
const loginStoreKey = "model-provider"

// ─── login / logout ───

func runLogin(cmd *cobra.Command, args []string) error {
	withAPIKey, _ := cmd.Flags().GetBool("with-api-key")
	deviceAuth, _ := cmd.Flags().GetBool("device-auth")

	store := oauthstore.NewFileStore(config.HomeDir())

	switch {
	case withAPIKey:
		fmt.Print("API key: ")
		var key string
		if _, err := fmt.Scanln(&key); err != nil {
			return fmt.Errorf("read api key: %w", err)
		}
		if err := store.Save(loginStoreKey, &oauthstore.StoredOAuthTokens{
			AccessToken: key,
			TokenType:   "api-key",
		}); err != nil {
			return fmt.Errorf("save credentials: %w", err)
		}
		fmt.Println("logged in")
		return nil
	case deviceAuth:
		return fmt.Errorf("login --device-auth: OAuth device-code flow is not yet implemented")
	default:
		return fmt.Errorf("login requires --with-api-key or --device-auth")
	}
}

func runLogout(cmd *cobra.Command, args []string) error {
	store := oauthstore.NewFileStore(config.HomeDir())
	if err := store.Delete(loginStoreKey); err != nil {
		return fmt.Errorf("remove credentials: %w", err)
	}
	fmt.Println("logged out")
	return nil
}

// ─── mcp / mcp-server ───

func runMCP(cmd *cobra.Command, args []string) error {
	home := config.HomeDir()
	mcpCfg, path, err := config.LoadMCPConfig(home)
	if err != nil {
		return fmt.Errorf("load mcp config: %w", err)
	}
	fmt.Printf("MCP servers (%s):\n", path)
	if len(mcpCfg.Servers) == 0 {
		fmt.Println("  (none configured)")
		return nil
	}
	for _, s := range mcpCfg.Servers {
		status := "disabled"
		if s.Enabled {
			status = "enabled"
		}
		fmt.Printf("  %-20s %-10s %s\n", s.Name, status, s.Endpoint)
	}
	return nil
}

func runMCPServer(cmd *cobra.Command, args []string) error {
	return fmt.Errorf("mcp-server: stdio MCP server mode is not yet implemented")
}

// ─── features ───

func runFeaturesList(cmd *cobra.Command, args []string) error {
	fmt.Println("feature flags: (none registered yet)")
	return nil
}

// ─── Gateway server mode (ambient, outside spec scope) ───

func runServe(cmd *cobra.Command, args []string) error {
	log, err := logger.NewLogger(logger.Config{
		Level:      "info",
		Format:     "json",
		OutputPath: "stdout",
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	log.Info("starting codex gateway", zap.String("version", cliVersion))

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := application.NewApp(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := app.Start(ctx); err != nil {
		log.Fatal("failed to start application", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		log.Error("error during shutdown", zap.Error(err))
		os.Exit(1)
	}

	log.Info("application stopped successfully")
	return nil
}

// ─── Doctor ───

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Printf("Codex Doctor v%s\n\n", cliVersion)

	checks := []struct {
		name  string
		check func() (string, bool)
	}{
		{"config file", checkConfig},
		{"Go toolchain", checkGo},
	}

	allOK := true
	for _, c := range checks {
		val, ok := c.check()
		icon := "\033[92m✓\033[0m"
		if !ok {
			icon = "\033[91m✗\033[0m"
			allOK = false
		}
		fmt.Printf("  %s %s: %s\n", icon, c.name, val)
	}

	fmt.Println()
	if allOK {
		fmt.Println("all checks passed")
	} else {
		fmt.Println("some checks failed, see above")
	}
	return nil
}

func checkConfig() (string, bool) {
	path := filepath.Join(config.HomeDir(), "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return path, true
	}
	return fmt.Sprintf("not found: %s", path), false
}

func checkGo() (string, bool) {
	for _, p := range []string{"/usr/local/go/bin/go", "/usr/bin/go", "/usr/lib/go/bin/go"} {
		if _, err := os.Stat(p); err == nil {
			return "installed", true
		}
	}
	return "not installed", false
}
