package approval

import "strings"

// MultiQuestionState advances a UserQuestion approval request one question at
// a time, collecting an answer per header before the overlay emits a single
// merged UserQuestionAnswer submission (spec 4.I).
type MultiQuestionState struct {
	ToolCallID string
	Questions  []QuestionItem
	current    int
	answers    map[string]string
}

// QuestionItem mirrors entity.QuestionItem locally to avoid a domain/service
// -> domain/entity import cycle concern; callers construct it from the
// ApprovalRequest's Questions field.
type QuestionItem struct {
	Header      string
	Question    string
	MultiSelect bool
	Options     []string
}

// NewMultiQuestionState starts at the first question.
func NewMultiQuestionState(toolCallID string, questions []QuestionItem) *MultiQuestionState {
	return &MultiQuestionState{
		ToolCallID: toolCallID,
		Questions:  questions,
		answers:    make(map[string]string, len(questions)),
	}
}

// Current returns the question awaiting an answer, or ok=false once every
// question has been answered.
func (s *MultiQuestionState) Current() (QuestionItem, bool) {
	if s.current >= len(s.Questions) {
		return QuestionItem{}, false
	}
	return s.Questions[s.current], true
}

// Answer records a free-text (single-select) answer for the current question
// and advances to the next one.
func (s *MultiQuestionState) Answer(text string) {
	q, ok := s.Current()
	if !ok {
		return
	}
	s.answers[q.Header] = text
	s.current++
}

// AnswerMultiSelect joins the toggled option labels for the current
// multi-select question with ", " (spec: "joins toggled labels with \", \"");
// an empty selection becomes the literal "(no selection)".
func (s *MultiQuestionState) AnswerMultiSelect(selected []string) {
	q, ok := s.Current()
	if !ok {
		return
	}
	answer := "(no selection)"
	if len(selected) > 0 {
		answer = strings.Join(selected, ", ")
	}
	s.answers[q.Header] = answer
	s.current++
}

// Done reports whether every question has been answered.
func (s *MultiQuestionState) Done() bool {
	return s.current >= len(s.Questions)
}

// CollectedAnswers returns the header->answer map once Done, for building
// the final UserQuestionAnswer submission.
func (s *MultiQuestionState) CollectedAnswers() map[string]string {
	out := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// OptionLabel renders a multi-select option's checkbox label per spec
// ("[x]/[ ]"): checked when present in selected.
func OptionLabel(option string, selected map[string]bool) string {
	if selected[option] {
		return "[x] " + option
	}
	return "[ ] " + option
}
