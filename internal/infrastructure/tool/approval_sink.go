package tool

import (
	"context"

	"github.com/codex-go/codex/internal/domain/entity"
	"github.com/codex-go/codex/internal/domain/service/approval"
)

// ApprovalSink is the tool layer's view of the approval overlay (component I):
// enqueue a request and block until a human resolves it or aborts the queue.
type ApprovalSink interface {
	RequestApproval(ctx context.Context, req *entity.ApprovalRequest) (approval.Decision, error)
}

// QueueApprovalSink adapts a *approval.Queue to the ApprovalSink interface
// used by tools.
type QueueApprovalSink struct {
	Queue *approval.Queue
}

func NewQueueApprovalSink(q *approval.Queue) *QueueApprovalSink {
	return &QueueApprovalSink{Queue: q}
}

func (s *QueueApprovalSink) RequestApproval(ctx context.Context, req *entity.ApprovalRequest) (approval.Decision, error) {
	ch := s.Queue.Enqueue(req)
	select {
	case decision := <-ch:
		return decision, nil
	case <-ctx.Done():
		return approval.Decision{}, ctx.Err()
	}
}
