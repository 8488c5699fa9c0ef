package scoring

import (
	"container/heap"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/mempool-engine/pkg/types"
)

type queueItem struct {
	opp   *types.Opportunity
	index int
}

type oppHeap []*queueItem

func (h oppHeap) Len() int           { return len(h) }
func (h oppHeap) Less(i, j int) bool { return types.Better(h[i].opp, h[j].opp) }
func (h oppHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *oppHeap) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *oppHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// Queue is a bounded best-first queue of opportunities holding at most one
// entry per token.
type Queue struct {
	mu       sync.Mutex
	items    oppHeap
	byToken  map[common.Address]*queueItem
	capacity int
	maxAge   time.Duration
	ready    chan struct{}
	now      func() time.Time
}

// NewQueue creates a queue. Entries older than maxAge are dropped on Pop.
func NewQueue(capacity int, maxAge time.Duration) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	return &Queue{
		byToken:  make(map[common.Address]*queueItem),
		capacity: capacity,
		maxAge:   maxAge,
		ready:    make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Push offers an opportunity. A queued entry for the same token is replaced
// only by a better one. When full, the worst entry is evicted if the new one
// ranks above it. Returns whether the opportunity was queued.
func (q *Queue) Push(opp *types.Opportunity) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.byToken[opp.Token]; ok {
		if !types.Better(opp, existing.opp) {
			QueueDroppedTotal.WithLabelValues("outranked").Inc()
			return false
		}
		existing.opp = opp
		heap.Fix(&q.items, existing.index)
		QueueDroppedTotal.WithLabelValues("replaced").Inc()
		q.signal()
		return true
	}

	if len(q.items) >= q.capacity {
		worst := q.worstLocked()
		if !types.Better(opp, worst.opp) {
			QueueDroppedTotal.WithLabelValues("capacity").Inc()
			return false
		}
		heap.Remove(&q.items, worst.index)
		delete(q.byToken, worst.opp.Token)
		QueueDroppedTotal.WithLabelValues("capacity").Inc()
	}

	item := &queueItem{opp: opp}
	heap.Push(&q.items, item)
	q.byToken[opp.Token] = item
	QueueDepth.Set(float64(len(q.items)))
	q.signal()
	return true
}

// Pop returns the best fresh opportunity, or nil when none is queued.
func (q *Queue) Pop() *types.Opportunity {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) > 0 {
		item := heap.Pop(&q.items).(*queueItem)
		delete(q.byToken, item.opp.Token)

		if q.maxAge > 0 && q.now().Sub(item.opp.ScoredAt) > q.maxAge {
			QueueDroppedTotal.WithLabelValues("stale").Inc()
			continue
		}

		QueueDepth.Set(float64(len(q.items)))
		if len(q.items) > 0 {
			q.signal()
		}
		return item.opp
	}

	QueueDepth.Set(0)
	return nil
}

// Ready is signalled whenever an opportunity may be available.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of queued opportunities.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) worstLocked() *queueItem {
	worst := q.items[0]
	for _, it := range q.items[1:] {
		if types.Better(worst.opp, it.opp) {
			worst = it
		}
	}
	return worst
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
