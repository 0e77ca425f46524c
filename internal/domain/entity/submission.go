package entity

// SubmissionKind enumerates the closed set of operations a caller may submit
// to the conversation engine (spec 4.F "Given a submission").
type SubmissionKind string

const (
	SubUserInput            SubmissionKind = "user_input"
	SubUserTurn             SubmissionKind = "user_turn"
	SubCompact               SubmissionKind = "compact"
	SubInterrupt             SubmissionKind = "interrupt"
	SubOverrideTurnContext   SubmissionKind = "override_turn_context"
	SubShutdown              SubmissionKind = "shutdown"
	SubExecApproval          SubmissionKind = "exec_approval"
	SubPatchApproval         SubmissionKind = "patch_approval"
	SubResolveElicitation    SubmissionKind = "resolve_elicitation"
	SubPlanModeApproval      SubmissionKind = "plan_mode_approval"
	SubEnterPlanModeApproval SubmissionKind = "enter_plan_mode_approval"
	SubUserQuestionAnswer    SubmissionKind = "user_question_answer"
)

// ReviewDecision is the user's verdict on an ExecApproval or PatchApproval.
type ReviewDecision string

const (
	DecisionApproved                    ReviewDecision = "approved"
	DecisionApprovedExecpolicyAmendment ReviewDecision = "approved_execpolicy_amendment"
	DecisionDenied                      ReviewDecision = "denied"
	DecisionAbort                       ReviewDecision = "abort"
)

// ElicitationAction is the user's verdict on an MCP elicitation prompt.
type ElicitationAction string

const (
	ElicitationAccept  ElicitationAction = "accept"
	ElicitationDecline ElicitationAction = "decline"
	ElicitationCancel  ElicitationAction = "cancel"
)

// Submission is the tagged union of operations the engine accepts (spec 4.F).
// Exactly one of the typed payload fields is populated per Kind; unused
// fields are zero. This mirrors a Rust enum in the source material without
// requiring a third-party sum-type library the example pack never uses.
type Submission struct {
	ID   string
	Kind SubmissionKind

	// SubUserInput / SubUserTurn
	UserText      string
	TurnOverrides *TurnContextConfig

	// SubInterrupt / SubShutdown: no payload beyond ID.

	// SubOverrideTurnContext
	Overrides *TurnContextConfig

	// SubExecApproval
	ExecApprovalID   string
	ExecDecision     ReviewDecision
	PolicyAmendment  []string // argv prefix to persist when DecisionApprovedExecpolicyAmendment

	// SubPatchApproval
	PatchApprovalID string
	PatchDecision   ReviewDecision

	// SubResolveElicitation
	ElicitationID     string
	ElicitationResult ElicitationAction

	// SubPlanModeApproval / SubEnterPlanModeApproval
	PlanApprovalID string
	PlanApproved   bool

	// SubUserQuestionAnswer
	QuestionToolCallID string
	QuestionAnswers    map[string]string
}

// ApprovalRequestKind enumerates the tagged union of pending approval requests
// (spec 3 "ApprovalRequest").
type ApprovalRequestKind string

const (
	ApprovalExec             ApprovalRequestKind = "exec"
	ApprovalApplyPatch       ApprovalRequestKind = "apply_patch"
	ApprovalMcpElicitation   ApprovalRequestKind = "mcp_elicitation"
	ApprovalPlan             ApprovalRequestKind = "plan"
	ApprovalUserQuestion     ApprovalRequestKind = "user_question"
)

// ExecPolicyAmendment is a proposed, permanently-approvable argv prefix.
type ExecPolicyAmendment struct {
	Prefix []string
}

// FileChange describes one file mutation proposed by apply_patch.
type FileChange struct {
	Path         string
	Op           string // "add" | "update" | "delete"
	ContentHash  string
	NewContent   string
}

// QuestionItem is one question within a UserQuestion approval request.
type QuestionItem struct {
	Header      string
	Question    string
	MultiSelect bool
	Options     []string
}

// ApprovalRequest carries enough identity to correlate a user decision with
// the pending tool call it gates.
type ApprovalRequest struct {
	ID         string
	Kind       ApprovalRequestKind
	ToolCallID string

	// ApprovalExec
	Command         []string
	PolicyAmendment *ExecPolicyAmendment

	// ApprovalApplyPatch
	Changes []FileChange

	// ApprovalMcpElicitation
	ServerID string
	Prompt   string

	// ApprovalPlan
	PlanSummary string

	// ApprovalUserQuestion
	Questions []QuestionItem
}
