package entity

import "time"

// SandboxMode controls how freely the model may touch the local environment.
type SandboxMode string

const (
	SandboxReadOnly       SandboxMode = "read-only"
	SandboxWorkspaceWrite SandboxMode = "workspace-write"
	SandboxDangerFull     SandboxMode = "danger-full-access"
)

// ApprovalPolicy controls when a tool call must be confirmed by the user.
type ApprovalPolicy string

const (
	ApprovalUntrusted ApprovalPolicy = "untrusted"
	ApprovalOnFailure ApprovalPolicy = "on-failure"
	ApprovalOnRequest ApprovalPolicy = "on-request"
	ApprovalNever     ApprovalPolicy = "never"
)

// AutoCompactMode selects whether the engine may compact history on its own.
type AutoCompactMode string

const (
	AutoCompactAuto   AutoCompactMode = "auto"
	AutoCompactManual AutoCompactMode = "manual"
)

// TurnContext is the immutable per-turn configuration snapshot (spec 3).
// Every field is unexported; construct via NewTurnContext and derive
// amendments via the With* copy-returning helpers so a TurnContext already
// appended to a rollout can never be mutated out from under it.
type TurnContext struct {
	cwd              string
	sandboxMode      SandboxMode
	approvalPolicy   ApprovalPolicy
	model            string
	reasoningEffort  string
	summaryMode      string
	autoCompactMode  AutoCompactMode
	compactThreshold int
	createdAt        time.Time
}

// TurnContextConfig carries the fields needed to build a TurnContext.
type TurnContextConfig struct {
	Cwd              string
	SandboxMode      SandboxMode
	ApprovalPolicy   ApprovalPolicy
	Model            string
	ReasoningEffort  string
	SummaryMode      string
	AutoCompactMode  AutoCompactMode
	CompactThreshold int
}

// NewTurnContext builds a TurnContext, defaulting unset fields conservatively.
func NewTurnContext(cfg TurnContextConfig) *TurnContext {
	tc := &TurnContext{
		cwd:              cfg.Cwd,
		sandboxMode:      cfg.SandboxMode,
		approvalPolicy:   cfg.ApprovalPolicy,
		model:            cfg.Model,
		reasoningEffort:  cfg.ReasoningEffort,
		summaryMode:      cfg.SummaryMode,
		autoCompactMode:  cfg.AutoCompactMode,
		compactThreshold: cfg.CompactThreshold,
		createdAt:        time.Now(),
	}
	if tc.sandboxMode == "" {
		tc.sandboxMode = SandboxWorkspaceWrite
	}
	if tc.approvalPolicy == "" {
		tc.approvalPolicy = ApprovalOnRequest
	}
	if tc.autoCompactMode == "" {
		tc.autoCompactMode = AutoCompactAuto
	}
	return tc
}

func (t *TurnContext) Cwd() string                    { return t.cwd }
func (t *TurnContext) SandboxMode() SandboxMode        { return t.sandboxMode }
func (t *TurnContext) ApprovalPolicy() ApprovalPolicy  { return t.approvalPolicy }
func (t *TurnContext) Model() string                   { return t.model }
func (t *TurnContext) ReasoningEffort() string         { return t.reasoningEffort }
func (t *TurnContext) SummaryMode() string             { return t.summaryMode }
func (t *TurnContext) AutoCompactMode() AutoCompactMode { return t.autoCompactMode }
func (t *TurnContext) CompactThreshold() int           { return t.compactThreshold }
func (t *TurnContext) CreatedAt() time.Time            { return t.createdAt }

// WithOverrides returns a copy of t with any non-zero fields in override applied.
// Used by Submission.OverrideTurnContext (spec 3 "Overrideable at submission time").
func (t *TurnContext) WithOverrides(override TurnContextConfig) *TurnContext {
	next := *t
	if override.Cwd != "" {
		next.cwd = override.Cwd
	}
	if override.SandboxMode != "" {
		next.sandboxMode = override.SandboxMode
	}
	if override.ApprovalPolicy != "" {
		next.approvalPolicy = override.ApprovalPolicy
	}
	if override.Model != "" {
		next.model = override.Model
	}
	if override.ReasoningEffort != "" {
		next.reasoningEffort = override.ReasoningEffort
	}
	if override.SummaryMode != "" {
		next.summaryMode = override.SummaryMode
	}
	if override.AutoCompactMode != "" {
		next.autoCompactMode = override.AutoCompactMode
	}
	if override.CompactThreshold != 0 {
		next.compactThreshold = override.CompactThreshold
	}
	next.createdAt = time.Now()
	return &next
}
