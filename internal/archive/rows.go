package archive

import (
	"container/heap"
	"time"

	"discordqa/internal/domain"
)

// timeLayout is how message timestamps are written to SQLite. It is the text form
// datetime() returns, so created_at compares correctly against SQLite date
// expressions as well as literal dates.
const timeLayout = "2006-01-02 15:04:05"

// normalizeValue converts driver values into JSON-friendly evidence values.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return x
	}
}

// nearestHeap is a max-heap on distance holding the best k candidates seen so far.
type nearestHeap []domain.EvidenceRow

func (h nearestHeap) Len() int { return len(h) }
func (h nearestHeap) Less(i, j int) bool {
	if h[i].Distance != h[j].Distance {
		return h[i].Distance > h[j].Distance
	}
	return h[i].ID > h[j].ID
}
func (h nearestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *nearestHeap) Push(x any)   { *h = append(*h, x.(domain.EvidenceRow)) }
func (h *nearestHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// offer keeps row if it is among the k closest so far.
func (h *nearestHeap) offer(row domain.EvidenceRow, k int) {
	if h.Len() < k {
		heap.Push(h, row)
		return
	}
	worst := (*h)[0]
	if row.Distance < worst.Distance || (row.Distance == worst.Distance && row.ID < worst.ID) {
		(*h)[0] = row
		heap.Fix(h, 0)
	}
}

// sorted drains the heap into ascending distance order.
func (h *nearestHeap) sorted() []domain.EvidenceRow {
	out := make([]domain.EvidenceRow, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(domain.EvidenceRow)
	}
	return out
}
