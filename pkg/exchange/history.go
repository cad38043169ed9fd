package exchange

import (
	"sync"

	"github.com/gammazero/deque"
)

// history is the append-only trade log. Reads are bounded: at most the n
// most recent transactions come back, oldest first. Capping the log itself
// is left to the surrounding service.
type history struct {
	mu  sync.Mutex
	log deque.Deque[Transaction]
}

func (h *history) append(t Transaction) {
	if t.IsZero() {
		return
	}
	h.mu.Lock()
	h.log.PushBack(t)
	h.mu.Unlock()
}

func (h *history) last() (Transaction, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.log.Len() == 0 {
		return Transaction{}, false
	}
	return h.log.Back(), true
}

func (h *history) recent(n int) []Transaction {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > h.log.Len() {
		n = h.log.Len()
	}
	if n <= 0 {
		return nil
	}
	out := make([]Transaction, 0, n)
	for i := h.log.Len() - n; i < h.log.Len(); i++ {
		out = append(out, h.log.At(i))
	}
	return out
}

func (h *history) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.log.Len()
}
