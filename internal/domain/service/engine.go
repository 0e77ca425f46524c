package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/codex-go/codex/internal/domain/entity"
	"github.com/codex-go/codex/internal/domain/service/approval"
	"github.com/codex-go/codex/internal/infrastructure/rollout"
	"go.uber.org/zap"
)

// Engine is the Submission-dispatching front door described in spec 4.F. It
// wraps an AgentLoop with the turn-level bookkeeping a single Run call does
// not own: the persistent TurnContext, the conversation history carried
// across turns, and routing of control Submissions (approvals, interrupt,
// compact, turn-context overrides) that arrive out of band while a turn is
// in flight.
//
// AgentLoop itself still runs the ReAct mechanics unchanged (internal/domain/
// service/agent_loop.go). Engine only adds the envelope spec 4.F calls the
// "submission queue": exactly one turn active at a time, with every other
// Submission kind either mutating shared state synchronously or resolving a
// pending entry in the approval.Queue that the tool layer's ApprovalSink
// (internal/infrastructure/tool/approval_sink.go) is blocked on.
type Engine struct {
	mu         sync.Mutex
	loop       *AgentLoop
	approvals  *approval.Queue
	logger     *zap.Logger
	tc         *entity.TurnContext
	history    []LLMMessage
	turnActive bool
	cancelTurn context.CancelFunc
	rollout    *rollout.Writer
}

// NewEngine builds an Engine around an already-configured AgentLoop. approvals
// may be nil when the caller never registered approval-gated tools (e.g. a
// full-auto sandbox profile), in which case any *Approval Submission fails
// with an explanatory error instead of panicking.
func NewEngine(loop *AgentLoop, approvals *approval.Queue, tc *entity.TurnContext, logger *zap.Logger) *Engine {
	if tc == nil {
		tc = entity.NewTurnContext(entity.TurnContextConfig{})
	}
	return &Engine{
		loop:      loop,
		approvals: approvals,
		logger:    logger,
		tc:        tc,
	}
}

// TurnContext returns the engine's current turn context snapshot.
func (e *Engine) TurnContext() *entity.TurnContext {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tc
}

// SetRollout attaches the rollout journal this engine appends to as turns
// progress. Called once during bootstrap, after the writer's
// SessionConfigured line has already been written (spec 4.G). nil disables
// journaling entirely — e.g. `codex exec` one-shot runs that never resume.
func (e *Engine) SetRollout(w *rollout.Writer) {
	e.mu.Lock()
	e.rollout = w
	tc := e.tc
	e.mu.Unlock()
	if w != nil {
		e.appendRollout(rollout.NewTurnContextLine(time.Now(), tc))
	}
}

// appendRollout journals one line, logging (not failing the turn) on error —
// a rollout write failure must never abort an in-flight conversation.
func (e *Engine) appendRollout(line rollout.RolloutLine, err error) {
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("rollout: failed to encode line", zap.Error(err))
		}
		return
	}
	e.mu.Lock()
	w := e.rollout
	e.mu.Unlock()
	if w == nil {
		return
	}
	if err := w.Append(line); err != nil && e.logger != nil {
		e.logger.Warn("rollout: failed to append line", zap.Error(err))
	}
}

func (e *Engine) appendResponseItem(item entity.ResponseItem) {
	e.appendRollout(rollout.NewResponseItemLine(time.Now(), item))
}

// Submit dispatches one Submission (spec 4.F "Given a submission"). A turn
// Submission (SubUserInput/SubUserTurn) returns a live event channel the
// caller must drain until closed. Every other kind is a control operation:
// it mutates engine state or resolves a pending approval and returns a nil
// channel, or — for SubCompact — a single synthesized EventCompacted.
func (e *Engine) Submit(parent context.Context, sub entity.Submission) (<-chan entity.AgentEvent, error) {
	switch sub.Kind {
	case entity.SubUserInput, entity.SubUserTurn:
		return e.startTurn(parent, sub)
	case entity.SubInterrupt:
		e.interrupt()
		return nil, nil
	case entity.SubOverrideTurnContext:
		e.overrideTurnContext(sub.Overrides)
		return nil, nil
	case entity.SubCompact:
		return e.compactNow()
	case entity.SubShutdown:
		e.shutdown()
		return nil, nil
	case entity.SubExecApproval:
		return nil, e.resolveExec(sub)
	case entity.SubPatchApproval:
		return nil, e.resolvePatch(sub)
	case entity.SubResolveElicitation:
		return nil, e.resolveElicitation(sub)
	case entity.SubPlanModeApproval, entity.SubEnterPlanModeApproval:
		return nil, e.resolvePlan(sub)
	case entity.SubUserQuestionAnswer:
		return nil, e.resolveUserQuestion(sub)
	default:
		return nil, fmt.Errorf("engine: unsupported submission kind %q", sub.Kind)
	}
}

// startTurn begins a new turn. Only one turn may be active at a time — the
// teacher's Telegram/CLI adapters serialize turns per chat/session the same
// way; Engine makes that serialization explicit and rejects overlap instead
// of silently interleaving two ReAct loops over one history slice.
func (e *Engine) startTurn(parent context.Context, sub entity.Submission) (<-chan entity.AgentEvent, error) {
	e.mu.Lock()
	if e.turnActive {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine: a turn is already in progress")
	}
	if sub.TurnOverrides != nil {
		e.tc = e.tc.WithOverrides(*sub.TurnOverrides)
	}
	tc := e.tc
	turnCtx, cancel := context.WithCancel(parent)
	e.cancelTurn = cancel
	e.turnActive = true
	historySnapshot := append([]LLMMessage(nil), e.history...)
	e.mu.Unlock()

	out := make(chan entity.AgentEvent, 64)

	go func() {
		defer close(out)
		defer func() {
			e.mu.Lock()
			e.turnActive = false
			e.cancelTurn = nil
			e.mu.Unlock()
			cancel()
		}()

		e.emit(out, entity.AgentEvent{Type: entity.EventTaskStarted})

		if userMsg, err := entity.NewMessageItem(entity.RoleUser, []entity.ContentPart{{Type: "input_text", Text: sub.UserText}}); err == nil {
			e.appendResponseItem(userMsg)
		}

		result, events := e.loop.Run(turnCtx, "", sub.UserText, historySnapshot, tc.Model())

		turnMessages := []LLMMessage{{Role: "user", Content: sub.UserText}}
		interrupted := false

		for ev := range events {
			out <- ev

			switch ev.Type {
			case entity.EventToolCall:
				if ev.ToolCall != nil {
					turnMessages = append(turnMessages, LLMMessage{
						Role: "assistant",
						ToolCalls: []entity.ToolCallInfo{{
							ID:        ev.ToolCall.ID,
							Name:      ev.ToolCall.Name,
							Arguments: ev.ToolCall.Arguments,
						}},
					})
					argsJSON, _ := json.Marshal(ev.ToolCall.Arguments)
					e.appendResponseItem(&entity.FunctionCallItem{
						CallID: ev.ToolCall.ID, Name: ev.ToolCall.Name, Arguments: string(argsJSON),
					})
				}
			case entity.EventToolResult:
				if ev.ToolCall != nil {
					turnMessages = append(turnMessages, LLMMessage{
						Role:       "tool",
						Content:    ev.ToolCall.Output,
						ToolCallID: ev.ToolCall.ID,
						Name:       ev.ToolCall.Name,
					})
					e.appendResponseItem(&entity.FunctionCallOutputItem{
						CallID: ev.ToolCall.ID, Content: ev.ToolCall.Output, Success: ev.ToolCall.Success,
					})
				}
			case entity.EventError:
				if ev.Error == "context cancelled" {
					interrupted = true
				}
			}
		}
		// A cancel during streaming surfaces as an LLM error event rather than
		// "context cancelled"; the cancelled turn context still marks the turn interrupted.
		if turnCtx.Err() != nil {
			interrupted = true
		}

		if result.FinalContent != "" {
			turnMessages = append(turnMessages, LLMMessage{Role: "assistant", Content: result.FinalContent})
			if asstMsg, err := entity.NewMessageItem(entity.RoleAssistant, []entity.ContentPart{{Type: "output_text", Text: result.FinalContent}}); err == nil {
				e.appendResponseItem(asstMsg)
			}
		}

		e.mu.Lock()
		e.history = append(e.history, turnMessages...)
		rw := e.rollout
		e.mu.Unlock()
		if rw != nil {
			if err := rw.Flush(); err != nil && e.logger != nil {
				e.logger.Warn("rollout: flush after turn failed", zap.Error(err))
			}
		}

		if interrupted {
			e.emit(out, entity.AgentEvent{Type: entity.EventTurnInterrupted})
		} else {
			e.emit(out, entity.AgentEvent{Type: entity.EventTaskComplete, Content: result.FinalContent})
		}
	}()

	return out, nil
}

// interrupt implements the Ctrl-C contract (spec 4.F / 4.I): cancel the
// active turn's context so runLoop's ctx.Err() check unwinds it, and drain
// every pending and active approval so the tool goroutines blocked on
// ApprovalSink.RequestApproval unblock with an abort decision instead of
// hanging forever.
func (e *Engine) interrupt() {
	e.mu.Lock()
	cancel := e.cancelTurn
	e.mu.Unlock()

	if e.approvals != nil {
		e.approvals.AbortActiveAndDrain()
	}
	if cancel != nil {
		cancel()
	}
}

// shutdown implements Submission::Shutdown (spec 4.F / 4.G): interrupt any
// active turn, drain pending approvals, then signal the rollout writer,
// which drains before exit.
func (e *Engine) shutdown() {
	e.interrupt()
	e.mu.Lock()
	w := e.rollout
	e.mu.Unlock()
	if w == nil {
		return
	}
	if err := w.Close(); err != nil && e.logger != nil {
		e.logger.Warn("rollout: close on shutdown failed", zap.Error(err))
	}
}

func (e *Engine) overrideTurnContext(cfg *entity.TurnContextConfig) {
	if cfg == nil {
		return
	}
	e.mu.Lock()
	e.tc = e.tc.WithOverrides(*cfg)
	tc := e.tc
	e.mu.Unlock()
	e.appendRollout(rollout.NewTurnContextLine(time.Now(), tc))
}

// compactNow runs manual compaction (Submission::Compact) against the
// engine's carried-over history, reusing AgentLoop.compactMessages rather
// than duplicating its summarize-then-truncate fallback logic.
func (e *Engine) compactNow() (<-chan entity.AgentEvent, error) {
	e.mu.Lock()
	before := len(e.history)
	e.history = e.loop.compactMessages(e.history)
	after := len(e.history)
	e.mu.Unlock()

	summary := fmt.Sprintf("compacted %d messages to %d", before, after)
	e.appendResponseItem(&entity.CompactedItem{Message: summary})

	return e.oneShot(entity.AgentEvent{
		Type:    entity.EventCompacted,
		Summary: summary,
	}), nil
}

func (e *Engine) oneShot(ev entity.AgentEvent) <-chan entity.AgentEvent {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	ch := make(chan entity.AgentEvent, 1)
	ch <- ev
	close(ch)
	return ch
}

func (e *Engine) emit(ch chan<- entity.AgentEvent, ev entity.AgentEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	ch <- ev
}

func (e *Engine) resolveExec(sub entity.Submission) error {
	if e.approvals == nil {
		return fmt.Errorf("engine: no approval queue configured")
	}
	ok := e.approvals.Resolve(approval.Decision{
		RequestID:       sub.ExecApprovalID,
		ExecDecision:    sub.ExecDecision,
		PolicyAmendment: sub.PolicyAmendment,
	})
	if !ok {
		return fmt.Errorf("engine: exec approval %q is not the active request", sub.ExecApprovalID)
	}
	return nil
}

func (e *Engine) resolvePatch(sub entity.Submission) error {
	if e.approvals == nil {
		return fmt.Errorf("engine: no approval queue configured")
	}
	ok := e.approvals.Resolve(approval.Decision{
		RequestID:     sub.PatchApprovalID,
		PatchDecision: sub.PatchDecision,
	})
	if !ok {
		return fmt.Errorf("engine: patch approval %q is not the active request", sub.PatchApprovalID)
	}
	return nil
}

func (e *Engine) resolveElicitation(sub entity.Submission) error {
	if e.approvals == nil {
		return fmt.Errorf("engine: no approval queue configured")
	}
	ok := e.approvals.Resolve(approval.Decision{
		RequestID:         sub.ElicitationID,
		ElicitationResult: sub.ElicitationResult,
	})
	if !ok {
		return fmt.Errorf("engine: elicitation %q is not the active request", sub.ElicitationID)
	}
	return nil
}

func (e *Engine) resolvePlan(sub entity.Submission) error {
	if e.approvals == nil {
		return fmt.Errorf("engine: no approval queue configured")
	}
	ok := e.approvals.Resolve(approval.Decision{
		RequestID:    sub.PlanApprovalID,
		PlanApproved: sub.PlanApproved,
	})
	if !ok {
		return fmt.Errorf("engine: plan approval %q is not the active request", sub.PlanApprovalID)
	}
	return nil
}

func (e *Engine) resolveUserQuestion(sub entity.Submission) error {
	if e.approvals == nil {
		return fmt.Errorf("engine: no approval queue configured")
	}
	ok := e.approvals.Resolve(approval.Decision{
		RequestID:       sub.QuestionToolCallID,
		QuestionAnswers: sub.QuestionAnswers,
	})
	if !ok {
		return fmt.Errorf("engine: user question %q is not the active request", sub.QuestionToolCallID)
	}
	return nil
}
