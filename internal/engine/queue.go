package engine

import (
	"container/heap"
	"context"
	"log"
	"sync"

	"breakout_trading/internal/market"
	"breakout_trading/internal/models"
)

// Priority orders queue service: lower value drains first. Closes always
// jump ahead of adds.
type Priority int

const (
	PriorityClose   Priority = 0
	PriorityPyramid Priority = 1
	PriorityEntry   Priority = 2
	PriorityOther   Priority = 3
)

// OrderRequest is one pending submission.
type OrderRequest struct {
	Kind models.OrderKind
	Spec market.OrderSpec
}

type queueItem struct {
	req      OrderRequest
	priority Priority
	seq      uint64
}

// orderHeap orders by priority, ties broken by insertion sequence so replay
// is deterministic.
type orderHeap []*queueItem

func (h orderHeap) Len() int { return len(h) }
func (h orderHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h orderHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *orderHeap) Push(x interface{}) { *h = append(*h, x.(*queueItem)) }
func (h *orderHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// OrderQueue is a stable priority queue with a single drain goroutine. The
// drain takes one request at a time to completion (success or exhausted
// retries) before pulling the next, which keeps submission ordering
// deterministic and matches the dispatcher's concurrency of one.
type OrderQueue struct {
	submit func(OrderRequest) error

	mu    sync.Mutex
	items orderHeap
	seq   uint64
	wake  chan struct{}
}

// NewOrderQueue builds a queue draining into submit. Submit is expected to
// do its own retrying; a returned error means the request is dropped.
func NewOrderQueue(submit func(OrderRequest) error) *OrderQueue {
	return &OrderQueue{
		submit: submit,
		wake:   make(chan struct{}, 1),
	}
}

// Enqueue inserts the request and wakes the drain loop.
func (q *OrderQueue) Enqueue(req OrderRequest, prio Priority) {
	q.mu.Lock()
	q.seq++
	heap.Push(&q.items, &queueItem{req: req, priority: prio, seq: q.seq})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len reports the number of queued requests.
func (q *OrderQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// pop removes the highest-priority request, or returns false when empty.
func (q *OrderQueue) pop() (OrderRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return OrderRequest{}, false
	}
	item := heap.Pop(&q.items).(*queueItem)
	return item.req, true
}

// Run is the drain loop. Failed submissions are logged and dropped, never
// requeued: requeueing a failed order is how duplicate submissions happen.
func (q *OrderQueue) Run(ctx context.Context) {
	for {
		req, ok := q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}
		if ctx.Err() != nil {
			return
		}
		if err := q.submit(req); err != nil {
			log.Printf("ERROR: dropping %s order for %s (qty %s): %v",
				req.Kind, req.Spec.Symbol, req.Spec.Qty, err)
		}
	}
}
