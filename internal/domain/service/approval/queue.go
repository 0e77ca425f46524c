// Package approval implements the async request/response overlay described
// in spec 4.I: a priority queue of pending ApprovalRequests, one active at a
// time, with Ctrl-C abort-and-drain semantics. Generalizes the teacher's
// synchronous AgentHook.BeforeToolCall veto chain (internal/domain/service/
// hooks.go) into an out-of-band request/response exchange, since a tool call
// here may need to suspend for seconds or minutes awaiting a human decision
// rather than returning a bool inline.
package approval

import (
	"container/heap"
	"sync"

	"github.com/codex-go/codex/internal/domain/entity"
)

// Decision is the resolved outcome delivered back to the engine for one
// ApprovalRequest. Exactly one of the typed fields is meaningful, selected by
// the request's Kind.
type Decision struct {
	RequestID string

	ExecDecision    entity.ReviewDecision
	PolicyAmendment []string

	PatchDecision entity.ReviewDecision

	ElicitationResult entity.ElicitationAction

	PlanApproved bool

	QuestionAnswers map[string]string
}

// item is one queued request plus its delivery priority and arrival order
// (arrival order breaks priority ties, keeping the queue FIFO-stable).
type item struct {
	req      *entity.ApprovalRequest
	priority int
	seq      int
	index    int
}

// priorityQueue implements container/heap.Interface over pending items;
// higher priority value pops first, ties broken by earlier arrival.
type priorityQueue []*item

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].priority != pq[j].priority {
		return pq[i].priority > pq[j].priority
	}
	return pq[i].seq < pq[j].seq
}
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}
func (pq *priorityQueue) Push(x interface{}) {
	it := x.(*item)
	it.index = len(*pq)
	*pq = append(*pq, it)
}
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return it
}

// Priority assigns a queue priority per ApprovalRequestKind; exec and patch
// approvals block the turn loop directly so they outrank advisory prompts
// like MCP elicitations and plan approvals.
func Priority(kind entity.ApprovalRequestKind) int {
	switch kind {
	case entity.ApprovalExec, entity.ApprovalApplyPatch:
		return 2
	case entity.ApprovalUserQuestion, entity.ApprovalPlan:
		return 1
	default:
		return 0
	}
}

// Queue serializes pending ApprovalRequests behind one active overlay slot.
// Safe for concurrent use: tool goroutines call Enqueue and await their
// Decision; the render/input loop calls Active/Resolve/Abort.
type Queue struct {
	mu      sync.Mutex
	pq      priorityQueue
	seq     int
	active  *item
	waiters map[string]chan Decision
}

// NewQueue constructs an empty approval queue.
func NewQueue() *Queue {
	q := &Queue{waiters: make(map[string]chan Decision)}
	heap.Init(&q.pq)
	return q
}

// Enqueue adds req to the queue and returns a channel that receives its
// Decision once resolved (by Resolve) or aborted (by AbortActiveAndDrain).
// The caller should treat the channel as single-delivery and buffered.
func (q *Queue) Enqueue(req *entity.ApprovalRequest) <-chan Decision {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan Decision, 1)
	q.waiters[req.ID] = ch
	q.seq++
	heap.Push(&q.pq, &item{req: req, priority: Priority(req.Kind), seq: q.seq})
	q.promoteActiveLocked()
	return ch
}

// promoteActiveLocked fills the active slot from the queue head if empty.
// Caller must hold q.mu.
func (q *Queue) promoteActiveLocked() {
	if q.active != nil || q.pq.Len() == 0 {
		return
	}
	q.active = heap.Pop(&q.pq).(*item)
}

// Active returns the currently-overlaid request, or nil if the queue is empty.
func (q *Queue) Active() *entity.ApprovalRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active == nil {
		return nil
	}
	return q.active.req
}

// Resolve delivers a Decision for the currently active request and promotes
// the next queued request (if any) into the active slot. Returns false if
// requestID does not match the active request.
func (q *Queue) Resolve(decision Decision) bool {
	q.mu.Lock()
	if q.active == nil || q.active.req.ID != decision.RequestID {
		q.mu.Unlock()
		return false
	}
	ch := q.waiters[decision.RequestID]
	delete(q.waiters, decision.RequestID)
	q.active = nil
	q.promoteActiveLocked()
	q.mu.Unlock()

	if ch != nil {
		ch <- decision
		close(ch)
	}
	return true
}

// AbortActiveAndDrain implements the spec's Ctrl-C contract: the active
// request is resolved with its kind's abort decision (ReviewDecision::Abort,
// ElicitationAction::Cancel, plan approved=false, or an empty question map),
// and every still-queued request receives the same abort treatment and is
// removed, rather than left to surface later.
func (q *Queue) AbortActiveAndDrain() {
	q.mu.Lock()
	var toAbort []*item
	if q.active != nil {
		toAbort = append(toAbort, q.active)
		q.active = nil
	}
	for q.pq.Len() > 0 {
		toAbort = append(toAbort, heap.Pop(&q.pq).(*item))
	}
	chans := make(map[string]chan Decision, len(toAbort))
	for _, it := range toAbort {
		if ch, ok := q.waiters[it.req.ID]; ok {
			chans[it.req.ID] = ch
			delete(q.waiters, it.req.ID)
		}
	}
	q.mu.Unlock()

	for _, it := range toAbort {
		ch, ok := chans[it.req.ID]
		if !ok {
			continue
		}
		ch <- abortDecisionFor(it.req)
		close(ch)
	}
}

func abortDecisionFor(req *entity.ApprovalRequest) Decision {
	d := Decision{RequestID: req.ID}
	switch req.Kind {
	case entity.ApprovalExec:
		d.ExecDecision = entity.DecisionAbort
	case entity.ApprovalApplyPatch:
		d.PatchDecision = entity.DecisionAbort
	case entity.ApprovalMcpElicitation:
		d.ElicitationResult = entity.ElicitationCancel
	case entity.ApprovalPlan:
		d.PlanApproved = false
	case entity.ApprovalUserQuestion:
		d.QuestionAnswers = map[string]string{}
	}
	return d
}
