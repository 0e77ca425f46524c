package tool

import (
	"context"
	"fmt"

	"github.com/codex-go/codex/internal/domain/entity"
	domaintool "github.com/codex-go/codex/internal/domain/tool"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserQuestionTool asks the human one or more questions mid-turn, via the
// approval overlay's UserQuestion request kind (spec 4.C/4.I). Multi-select
// questions present [x]/[ ]-labeled options; answers are collected one
// question at a time and merged into a single map on completion.
type UserQuestionTool struct {
	approvals ApprovalSink
	logger    *zap.Logger
}

func NewUserQuestionTool(approvals ApprovalSink, logger *zap.Logger) *UserQuestionTool {
	return &UserQuestionTool{approvals: approvals, logger: logger}
}

func (t *UserQuestionTool) Name() string         { return "user_question" }
func (t *UserQuestionTool) Kind() domaintool.Kind { return domaintool.KindCommunicate }
func (t *UserQuestionTool) Description() string {
	return `Ask the user one or more clarifying questions before continuing. Each question has a short header, the question text, and an optional set of options (multi_select allows choosing more than one).`
}

func (t *UserQuestionTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"questions": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"header":       map[string]interface{}{"type": "string"},
						"question":     map[string]interface{}{"type": "string"},
						"multi_select": map[string]interface{}{"type": "boolean"},
						"options": map[string]interface{}{
							"type":  "array",
							"items": map[string]interface{}{"type": "string"},
						},
					},
					"required": []string{"header", "question"},
				},
			},
		},
		"required": []string{"questions"},
	}
}

func (t *UserQuestionTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	if t.approvals == nil {
		return &domaintool.Result{Success: false, Error: "user_question requires an approval channel, none configured"}, nil
	}

	raw, ok := args["questions"].([]interface{})
	if !ok || len(raw) == 0 {
		return &domaintool.Result{Success: false, Error: "questions is required"}, nil
	}

	questions := make([]entity.QuestionItem, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		item := entity.QuestionItem{
			Header:   fmt.Sprint(m["header"]),
			Question: fmt.Sprint(m["question"]),
		}
		if ms, ok := m["multi_select"].(bool); ok {
			item.MultiSelect = ms
		}
		if opts, ok := m["options"].([]interface{}); ok {
			for _, o := range opts {
				item.Options = append(item.Options, fmt.Sprint(o))
			}
		}
		questions = append(questions, item)
	}

	req := &entity.ApprovalRequest{
		ID:        uuid.NewString(),
		Kind:      entity.ApprovalUserQuestion,
		Questions: questions,
	}

	t.logger.Info("user_question awaiting answers", zap.Int("count", len(questions)))
	decision, err := t.approvals.RequestApproval(ctx, req)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}

	if len(decision.QuestionAnswers) == 0 {
		return &domaintool.Result{Success: false, Error: "user cancelled the question", Output: "aborted"}, nil
	}

	return &domaintool.Result{
		Success: true,
		Output:  "Received answers from user.",
		Metadata: map[string]interface{}{
			"answers": decision.QuestionAnswers,
		},
	}, nil
}
