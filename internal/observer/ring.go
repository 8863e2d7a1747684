package observer

import "github.com/alanyoungcy/coinwatch/internal/domain"

// tradeRing is a fixed-capacity deque that only grows at the front. Once
// full, pushing evicts the oldest trade.
type tradeRing struct {
	buf  []domain.Trade
	head int
	size int
}

func newTradeRing(capacity int) *tradeRing {
	if capacity < 1 {
		capacity = 1
	}
	return &tradeRing{buf: make([]domain.Trade, capacity)}
}

func (r *tradeRing) pushFront(t domain.Trade) {
	n := len(r.buf)
	r.head = (r.head - 1 + n) % n
	r.buf[r.head] = t
	if r.size < n {
		r.size++
	}
}

func (r *tradeRing) len() int { return r.size }

// snapshot copies the contents newest first.
func (r *tradeRing) snapshot() []domain.Trade {
	out := make([]domain.Trade, r.size)
	for i := range out {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}
